package pipeline

import (
	"crypto/md5"
	"crypto/sha256"
	"encoding/hex"
	"io"
	"os"
	"path/filepath"

	iofs "io/fs"

	"github.com/ZacxDev/flowgraph/fs"
	"github.com/pkg/errors"
)

// DefaultCacheDir holds content-addressed copies of job outputs.
const DefaultCacheDir = ".flowgraph-cache"

// CacheManager stores and restores job outputs so a job whose command and
// inputs are unchanged can be skipped on the next run.
type CacheManager interface {
	EnsureCacheDir() error
	LockfileKey(spec *JobSpec) string
	ApplyCachedFileChanges(LockFileEntry) error
	CollectAndStoreFileChanges(*JobSpec) (*LockFileEntry, error)
}

type cacheManager struct {
	fs       fs.FileSystem
	cacheDir string
}

func NewCacheManager(filesystem fs.FileSystem, cacheDir string) CacheManager {
	if cacheDir == "" {
		cacheDir = DefaultCacheDir
	}
	return &cacheManager{
		fs:       filesystem,
		cacheDir: cacheDir,
	}
}

// LockfileKey derives the cache identity of a job from its command, the
// content hash of its inputs, and its declared output patterns.
func (cm *cacheManager) LockfileKey(spec *JobSpec) string {
	h := md5.New()
	io.WriteString(h, spec.Cmd)
	io.WriteString(h, spec.InputHash)
	for _, pattern := range spec.Outputs {
		io.WriteString(h, pattern)
	}
	return hex.EncodeToString(h.Sum(nil))
}

func (cm *cacheManager) ApplyCachedFileChanges(entry LockFileEntry) error {
	if err := cm.verifyCacheIntegrity(entry); err != nil {
		return errors.Wrap(err, "cache integrity check failed")
	}

	for originalPath, cachedPath := range entry.CachedFiles {
		if err := cm.restoreFile(cachedPath, originalPath); err != nil {
			return errors.Wrapf(err, "error restoring file %s", originalPath)
		}
	}

	return nil
}

func (cm *cacheManager) CollectAndStoreFileChanges(spec *JobSpec) (*LockFileEntry, error) {
	entry := LockFileEntry{
		CachedFiles: make(map[string]string),
	}

	for _, pattern := range spec.Outputs {
		if err := cm.processGlobPattern(pattern, &entry); err != nil {
			return nil, errors.WithStack(err)
		}
	}

	return &entry, nil
}

func (cm *cacheManager) processGlobPattern(pattern string, entry *LockFileEntry) error {
	matches, err := cm.fs.DoublestarGlob(pattern)
	if err != nil {
		return errors.Wrapf(err, "error expanding glob pattern %s", pattern)
	}

	for _, match := range matches {
		if err := cm.processMatch(match, entry); err != nil {
			return err
		}
	}

	return nil
}

func (cm *cacheManager) processMatch(match string, entry *LockFileEntry) error {
	return cm.fs.WalkDir(match, func(path string, d iofs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			cachedPath, err := cm.cacheFile(path)
			if err != nil {
				return errors.Wrapf(err, "error caching file %s", path)
			}
			entry.CachedFiles[path] = cachedPath
		}
		return nil
	})
}

func (cm *cacheManager) verifyCacheIntegrity(entry LockFileEntry) error {
	for _, cachedPath := range entry.CachedFiles {
		if _, err := cm.fs.Stat(cachedPath); os.IsNotExist(err) {
			return errors.Errorf("cached file %s is missing", cachedPath)
		}
	}
	return nil
}

func (cm *cacheManager) restoreFile(cachedPath, originalPath string) error {
	content, err := cm.fs.ReadFile(cachedPath)
	if err != nil {
		return errors.Wrapf(err, "error reading cached file %s", cachedPath)
	}

	originalInfo, statErr := cm.fs.Stat(originalPath)
	fileMode := os.FileMode(0644)
	if statErr == nil && originalInfo != nil {
		fileMode = originalInfo.Mode()
	} else if statErr != nil && !os.IsNotExist(statErr) {
		return errors.Wrapf(statErr, "error stating original file %s", originalPath)
	}

	if err := cm.fs.MkdirAll(filepath.Dir(originalPath), 0755); err != nil {
		return errors.Wrapf(err, "error creating directory for %s", originalPath)
	}

	// Write through a temp file so a crash never leaves a half-restored
	// output behind.
	tempFile := originalPath + ".tmp"
	if err := cm.fs.WriteFile(tempFile, content, fileMode); err != nil {
		return err
	}
	return cm.fs.Rename(tempFile, originalPath)
}

func (cm *cacheManager) cacheFile(originalPath string) (string, error) {
	content, err := cm.fs.ReadFile(originalPath)
	if err != nil {
		return "", errors.Wrapf(err, "error reading file %s", originalPath)
	}

	hash := sha256.Sum256(content)
	cachedPath := filepath.Join(cm.cacheDir, hex.EncodeToString(hash[:]))

	if err := cm.fs.MkdirAll(filepath.Dir(cachedPath), 0755); err != nil {
		return "", errors.Wrap(err, "error creating cache directory")
	}

	if err := cm.fs.WriteFile(cachedPath, content, 0644); err != nil {
		return "", errors.Wrap(err, "error writing cached file")
	}

	return cachedPath, nil
}

func (cm *cacheManager) EnsureCacheDir() error {
	return cm.fs.MkdirAll(cm.cacheDir, 0755)
}
