package fs

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"

	"github.com/gofrs/flock"

	"docwatch/internal/dw"
)

// OSFilesystemManager is the real filesystem implementation of FilesystemManager.
type OSFilesystemManager struct {
	ignore *IgnoreMatcher
}

// NewOSFilesystemManager creates a filesystem manager that skips names
// matching ignore.
func NewOSFilesystemManager(ignore *IgnoreMatcher) *OSFilesystemManager {
	if ignore == nil {
		ignore = &IgnoreMatcher{}
	}
	return &OSFilesystemManager{ignore: ignore}
}

// NewOSFilesystemManagerForDir builds the ignore list for watchDir from the
// defaults, the configured patterns and the directory's ignore file.
func NewOSFilesystemManagerForDir(watchDir string, configured []string) (*OSFilesystemManager, error) {
	fromFile, err := ParseIgnoreFile(filepath.Join(watchDir, IgnoreFileName))
	if err != nil {
		return nil, err
	}
	patterns := make([]string, 0, len(DefaultIgnorePatterns)+len(configured)+len(fromFile))
	patterns = append(patterns, DefaultIgnorePatterns...)
	patterns = append(patterns, configured...)
	patterns = append(patterns, fromFile...)

	m, err := NewIgnoreMatcher(patterns)
	if err != nil {
		return nil, err
	}
	return NewOSFilesystemManager(m), nil
}

// ListFiles returns regular, non-ignored files directly inside dir, sorted.
func (m *OSFilesystemManager) ListFiles(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("reading directory: %w", err)
	}

	var paths []string
	for _, entry := range entries {
		if !entry.Type().IsRegular() {
			continue
		}
		if m.ignore.Match(entry.Name()) {
			continue
		}
		paths = append(paths, filepath.Join(dir, entry.Name()))
	}
	sort.Strings(paths)
	return paths, nil
}

// Stat returns fresh file info for a path.
func (m *OSFilesystemManager) Stat(path string) (fs.FileInfo, error) {
	return os.Stat(path)
}

// Open opens a file for reading.
func (m *OSFilesystemManager) Open(path string) (io.ReadCloser, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, err
	}
	if info.IsDir() {
		return nil, fmt.Errorf("cannot open directory as file: %s", path)
	}
	return os.Open(path)
}

// AcquireRead takes a shared advisory lock on path. A writer holding an
// exclusive lock, or a file we may not read, yields dw.ErrLocked.
func (m *OSFilesystemManager) AcquireRead(path string) (io.Closer, error) {
	lock := flock.New(path, flock.SetFlag(os.O_RDONLY))
	acquired, err := lock.TryRLock()
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, err
		}
		if errors.Is(err, fs.ErrPermission) {
			return nil, fmt.Errorf("%w: %s: %w", dw.ErrLocked, path, err)
		}
		return nil, fmt.Errorf("locking %s: %w", path, err)
	}
	if !acquired {
		return nil, fmt.Errorf("%w: %s", dw.ErrLocked, path)
	}
	return &readLock{lock: lock}, nil
}

type readLock struct {
	lock *flock.Flock
}

func (l *readLock) Close() error {
	return l.lock.Close()
}

// Rename moves oldPath to newPath and fails with fs.ErrExist instead of
// replacing a file. A hard link claims the target atomically; filesystems
// without link support fall back to a check followed by a rename.
func (m *OSFilesystemManager) Rename(oldPath, newPath string) error {
	err := os.Link(oldPath, newPath)
	if err == nil {
		if err := os.Remove(oldPath); err != nil {
			_ = os.Remove(newPath)
			return fmt.Errorf("removing %s after link: %w", oldPath, err)
		}
		return nil
	}
	if errors.Is(err, fs.ErrExist) || errors.Is(err, fs.ErrNotExist) {
		return err
	}

	if _, statErr := os.Lstat(newPath); statErr == nil {
		return &os.LinkError{Op: "rename", Old: oldPath, New: newPath, Err: fs.ErrExist}
	} else if !errors.Is(statErr, fs.ErrNotExist) {
		return fmt.Errorf("checking %s: %w", newPath, statErr)
	}
	return os.Rename(oldPath, newPath)
}

// Remove deletes a file.
func (m *OSFilesystemManager) Remove(path string) error {
	return os.Remove(path)
}

// IsIgnored reports whether name matches an ignore pattern.
func (m *OSFilesystemManager) IsIgnored(name string) bool {
	return m.ignore.Match(name)
}

// Compile-time check that OSFilesystemManager implements dw.FilesystemManager interface
var _ dw.FilesystemManager = (*OSFilesystemManager)(nil)
