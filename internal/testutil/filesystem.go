package testutil

import (
	"bytes"
	"fmt"
	"io"
	"io/fs"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"docwatch/internal/dw"
)

// MockFile represents a file in the mock filesystem.
type MockFile struct {
	Content []byte
	ModTime time.Time
}

// MockFilesystemManager is an in-memory flat filesystem for testing. Files
// whose name starts with '.' are ignored. Safe for concurrent use.
type MockFilesystemManager struct {
	mu    sync.Mutex
	files map[string]*MockFile
	tick  time.Time

	locked       map[string]int // remaining AcquireRead failures; -1 is forever
	removeErrs   map[string]error
	renameErrs   map[string][]error // consumed one per Rename call on the source
	acquireCalls map[string]int
	renames      []string
}

// NewMockFilesystemManager creates a new mock filesystem.
func NewMockFilesystemManager() *MockFilesystemManager {
	return &MockFilesystemManager{
		files:        make(map[string]*MockFile),
		tick:         time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		locked:       make(map[string]int),
		removeErrs:   make(map[string]error),
		renameErrs:   make(map[string][]error),
		acquireCalls: make(map[string]int),
	}
}

// AddFile creates or overwrites a file. Each write advances its mtime.
func (m *MockFilesystemManager) AddFile(path string, content []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tick = m.tick.Add(time.Second)
	m.files[filepath.Clean(path)] = &MockFile{Content: content, ModTime: m.tick}
}

// DeleteFile removes a file as an outside actor would.
func (m *MockFilesystemManager) DeleteFile(path string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.files, filepath.Clean(path))
}

// Exists reports whether path is present.
func (m *MockFilesystemManager) Exists(path string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.files[filepath.Clean(path)]
	return ok
}

// Content returns the bytes stored at path.
func (m *MockFilesystemManager) Content(path string) ([]byte, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	f, ok := m.files[filepath.Clean(path)]
	if !ok {
		return nil, false
	}
	return f.Content, true
}

// Names returns the base names of all files in dir, sorted.
func (m *MockFilesystemManager) Names(dir string) []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	var names []string
	for p := range m.files {
		if filepath.Dir(p) == filepath.Clean(dir) {
			names = append(names, filepath.Base(p))
		}
	}
	sort.Strings(names)
	return names
}

// LockFile makes the next n AcquireRead calls on path fail with dw.ErrLocked.
// A negative n keeps the file locked until UnlockFile.
func (m *MockFilesystemManager) LockFile(path string, n int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.locked[filepath.Clean(path)] = n
}

// UnlockFile releases a lock set with LockFile.
func (m *MockFilesystemManager) UnlockFile(path string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.locked, filepath.Clean(path))
}

// AcquireCalls returns how many times AcquireRead was called for path.
func (m *MockFilesystemManager) AcquireCalls(path string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.acquireCalls[filepath.Clean(path)]
}

// FailRemove makes Remove on path return err until cleared with a nil err.
func (m *MockFilesystemManager) FailRemove(path string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err == nil {
		delete(m.removeErrs, filepath.Clean(path))
		return
	}
	m.removeErrs[filepath.Clean(path)] = err
}

// FailRename queues errors returned by successive Rename calls from path.
func (m *MockFilesystemManager) FailRename(path string, errs ...error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p := filepath.Clean(path)
	m.renameErrs[p] = append(m.renameErrs[p], errs...)
}

// Renames returns the successful renames as "old -> new" base names.
func (m *MockFilesystemManager) Renames() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.renames...)
}

func (m *MockFilesystemManager) ListFiles(dir string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	dir = filepath.Clean(dir)
	var paths []string
	for p := range m.files {
		if filepath.Dir(p) == dir && !isHidden(filepath.Base(p)) {
			paths = append(paths, p)
		}
	}
	sort.Strings(paths)
	return paths, nil
}

func (m *MockFilesystemManager) Stat(path string) (fs.FileInfo, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	f, ok := m.files[filepath.Clean(path)]
	if !ok {
		return nil, &fs.PathError{Op: "stat", Path: path, Err: fs.ErrNotExist}
	}
	return &mockFileInfo{name: filepath.Base(path), size: int64(len(f.Content)), modTime: f.ModTime}, nil
}

func (m *MockFilesystemManager) Open(path string) (io.ReadCloser, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	f, ok := m.files[filepath.Clean(path)]
	if !ok {
		return nil, &fs.PathError{Op: "open", Path: path, Err: fs.ErrNotExist}
	}
	return io.NopCloser(bytes.NewReader(f.Content)), nil
}

func (m *MockFilesystemManager) AcquireRead(path string) (io.Closer, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p := filepath.Clean(path)
	m.acquireCalls[p]++
	if _, ok := m.files[p]; !ok {
		return nil, &fs.PathError{Op: "open", Path: path, Err: fs.ErrNotExist}
	}
	if n, ok := m.locked[p]; ok {
		switch {
		case n < 0:
			return nil, fmt.Errorf("%w: %s", dw.ErrLocked, path)
		case n > 0:
			m.locked[p] = n - 1
			return nil, fmt.Errorf("%w: %s", dw.ErrLocked, path)
		default:
			delete(m.locked, p)
		}
	}
	return nopLock{}, nil
}

type nopLock struct{}

func (nopLock) Close() error { return nil }

func (m *MockFilesystemManager) Rename(oldPath, newPath string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	oldPath, newPath = filepath.Clean(oldPath), filepath.Clean(newPath)

	if errs := m.renameErrs[oldPath]; len(errs) > 0 {
		m.renameErrs[oldPath] = errs[1:]
		return errs[0]
	}
	f, ok := m.files[oldPath]
	if !ok {
		return &fs.PathError{Op: "rename", Path: oldPath, Err: fs.ErrNotExist}
	}
	if _, exists := m.files[newPath]; exists {
		return &fs.PathError{Op: "rename", Path: newPath, Err: fs.ErrExist}
	}
	m.files[newPath] = f
	delete(m.files, oldPath)
	m.renames = append(m.renames, filepath.Base(oldPath)+" -> "+filepath.Base(newPath))
	return nil
}

func (m *MockFilesystemManager) Remove(path string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	p := filepath.Clean(path)
	if err, ok := m.removeErrs[p]; ok {
		return err
	}
	if _, ok := m.files[p]; !ok {
		return &fs.PathError{Op: "remove", Path: path, Err: fs.ErrNotExist}
	}
	delete(m.files, p)
	return nil
}

func (m *MockFilesystemManager) IsIgnored(name string) bool {
	return isHidden(name)
}

func isHidden(name string) bool {
	return strings.HasPrefix(name, ".")
}

// mockFileInfo implements fs.FileInfo
type mockFileInfo struct {
	name    string
	size    int64
	modTime time.Time
}

func (m *mockFileInfo) Name() string       { return m.name }
func (m *mockFileInfo) Size() int64        { return m.size }
func (m *mockFileInfo) Mode() fs.FileMode  { return 0644 }
func (m *mockFileInfo) ModTime() time.Time { return m.modTime }
func (m *mockFileInfo) IsDir() bool        { return false }
func (m *mockFileInfo) Sys() any           { return nil }

// Compile-time check
var _ dw.FilesystemManager = (*MockFilesystemManager)(nil)
