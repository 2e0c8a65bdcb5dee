package pipeline

import (
	"encoding/json"
	"os"
	"sync"

	"github.com/ZacxDev/flowgraph/fs"
)

// LockFileName is where cached output locations are recorded between
// pipeline runs.
const LockFileName = "flowgraph.lock"

// LockFileEntry maps a job's original output paths to their
// content-addressed copies in the cache directory.
type LockFileEntry struct {
	CachedFiles map[string]string
}

type LockFileManager interface {
	LoadLockFile() error
	SaveFreshLockFile() error
	GetCachedEntry(string) (LockFileEntry, bool)
	AddFreshEntry(string, LockFileEntry)

	LockFile() map[string]LockFileEntry
	FreshLockFile() map[string]LockFileEntry
}

type lockFileManager struct {
	lockFile      map[string]LockFileEntry
	freshLockFile map[string]LockFileEntry
	fs            fs.FileSystem
	mu            sync.Mutex
}

func NewLockFileManager(filesystem fs.FileSystem) LockFileManager {
	return &lockFileManager{
		lockFile:      make(map[string]LockFileEntry),
		freshLockFile: make(map[string]LockFileEntry),
		fs:            filesystem,
	}
}

func (lm *lockFileManager) LoadLockFile() error {
	data, err := lm.fs.ReadFile(LockFileName)
	if err != nil {
		if os.IsNotExist(err) {
			return nil // It's okay if the lock file doesn't exist yet
		}
		return err
	}

	return json.Unmarshal(data, &lm.lockFile)
}

func (lm *lockFileManager) SaveFreshLockFile() error {
	data, err := json.MarshalIndent(lm.freshLockFile, "", "  ")
	if err != nil {
		return err
	}

	return lm.fs.WriteFile(LockFileName, data, 0644)
}

func (lm *lockFileManager) GetCachedEntry(key string) (LockFileEntry, bool) {
	lm.mu.Lock()
	defer lm.mu.Unlock()
	entry, exists := lm.lockFile[key]
	return entry, exists
}

func (lm *lockFileManager) AddFreshEntry(key string, entry LockFileEntry) {
	lm.mu.Lock()
	defer lm.mu.Unlock()
	if entry.CachedFiles == nil {
		entry.CachedFiles = make(map[string]string)
	}
	lm.freshLockFile[key] = entry
}

func (lm *lockFileManager) LockFile() map[string]LockFileEntry {
	lm.mu.Lock()
	defer lm.mu.Unlock()
	return lm.lockFile
}

func (lm *lockFileManager) FreshLockFile() map[string]LockFileEntry {
	lm.mu.Lock()
	defer lm.mu.Unlock()
	return lm.freshLockFile
}
