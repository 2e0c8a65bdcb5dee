package mock

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	iofs "io/fs"

	"github.com/bmatcuk/doublestar/v4"
)

type mockDirEntry struct {
	name string
	info iofs.FileInfo
}

func (m *mockDirEntry) Name() string                 { return m.name }
func (m *mockDirEntry) IsDir() bool                  { return false }
func (m *mockDirEntry) Type() iofs.FileMode          { return 0 }
func (m *mockDirEntry) Info() (iofs.FileInfo, error) { return m.info, nil }

type mockFileInfo struct {
	name string
	mode os.FileMode
	size int64
}

func (m *mockFileInfo) Name() string       { return m.name }
func (m *mockFileInfo) Size() int64        { return m.size }
func (m *mockFileInfo) Mode() os.FileMode  { return m.mode }
func (m *mockFileInfo) ModTime() time.Time { return time.Now() }
func (m *mockFileInfo) IsDir() bool        { return m.mode.IsDir() }
func (m *mockFileInfo) Sys() interface{}   { return nil }

// MockFileSystem implements the fs.FileSystem interface in memory for
// testing.
type MockFileSystem struct {
	Files    map[string][]byte
	fileMode map[string]os.FileMode
}

func NewMockFileSystem() *MockFileSystem {
	return &MockFileSystem{
		Files:    make(map[string][]byte),
		fileMode: make(map[string]os.FileMode),
	}
}

func (m *MockFileSystem) ReadFile(filename string) ([]byte, error) {
	if data, ok := m.Files[filename]; ok {
		return data, nil
	}
	return nil, os.ErrNotExist
}

func (m *MockFileSystem) WriteFile(filename string, data []byte, perm os.FileMode) error {
	m.Files[filename] = data
	m.fileMode[filename] = perm
	return nil
}

func (m *MockFileSystem) MkdirAll(path string, perm os.FileMode) error {
	return nil
}

func (m *MockFileSystem) Stat(name string) (os.FileInfo, error) {
	if data, ok := m.Files[name]; ok {
		return &mockFileInfo{name: filepath.Base(name), mode: m.fileMode[name], size: int64(len(data))}, nil
	}
	return nil, os.ErrNotExist
}

func (m *MockFileSystem) Rename(oldpath, newpath string) error {
	if data, ok := m.Files[oldpath]; ok {
		m.Files[newpath] = data
		m.fileMode[newpath] = m.fileMode[oldpath]
		delete(m.Files, oldpath)
		delete(m.fileMode, oldpath)
		return nil
	}
	return os.ErrNotExist
}

func (m *MockFileSystem) DoublestarGlob(pattern string) ([]string, error) {
	var matches []string
	for filename := range m.Files {
		matched, err := doublestar.Match(pattern, filename)
		if err != nil {
			return nil, err
		}
		if matched {
			matches = append(matches, filename)
		}
	}
	return matches, nil
}

func (m *MockFileSystem) WalkDir(root string, fn iofs.WalkDirFunc) error {
	for path, data := range m.Files {
		if !strings.HasPrefix(path, root) {
			continue
		}
		entry := &mockDirEntry{
			name: filepath.Base(path),
			info: &mockFileInfo{name: filepath.Base(path), mode: m.fileMode[path], size: int64(len(data))},
		}
		if err := fn(path, entry, nil); err != nil {
			return err
		}
	}
	return nil
}
