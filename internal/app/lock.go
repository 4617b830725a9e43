package app

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/gofrs/flock"
)

// LockFileName is the instance lock inside base_dir.
const LockFileName = "docwatch.lock"

// ErrInstanceRunning means another process holds the instance lock,
// usually a running `docwatch run`.
var ErrInstanceRunning = errors.New("another docwatch process is running")

// acquireInstanceLock takes the exclusive instance lock without blocking.
// Release it with Unlock.
func acquireInstanceLock(baseDir string) (*flock.Flock, error) {
	if baseDir == "" {
		return nil, errors.New("base_dir is not configured")
	}
	if err := os.MkdirAll(baseDir, 0755); err != nil {
		return nil, fmt.Errorf("creating base directory: %w", err)
	}

	lock := flock.New(filepath.Join(baseDir, LockFileName))
	acquired, err := lock.TryLock()
	if err != nil {
		return nil, fmt.Errorf("taking instance lock: %w", err)
	}
	if !acquired {
		return nil, fmt.Errorf("%w: %s is held", ErrInstanceRunning, lock.Path())
	}
	return lock, nil
}
