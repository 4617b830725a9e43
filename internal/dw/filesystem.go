package dw

import (
	"io"
	"io/fs"
)

// FilesystemManager abstracts access to the watched directory so the
// pipeline can be tested without touching the real filesystem.
type FilesystemManager interface {
	// ListFiles returns the paths of regular, non-ignored files directly
	// inside dir. Subdirectories are not descended into.
	ListFiles(dir string) ([]string, error)

	// Stat returns fresh file info. Missing files yield an fs.ErrNotExist error.
	Stat(path string) (fs.FileInfo, error)

	// Open opens a file for reading.
	Open(path string) (io.ReadCloser, error)

	// AcquireRead takes a shared lock on path. It returns ErrLocked if a
	// writer holds the file or it cannot be opened for permission reasons.
	// The returned closer releases the lock.
	AcquireRead(path string) (io.Closer, error)

	// Rename moves oldPath to newPath without ever replacing an existing
	// file. It returns an fs.ErrExist error if newPath is taken.
	Rename(oldPath, newPath string) error

	// Remove deletes a file. Missing files yield an fs.ErrNotExist error.
	Remove(path string) error

	// IsIgnored reports whether a file name matches the configured ignore patterns.
	IsIgnored(name string) bool
}
