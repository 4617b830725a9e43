// Package artifacts stores derived thumbnails and previews.
package artifacts

import (
	"errors"
	"fmt"
	"strings"
)

// ErrNotFound is returned by Get for a key that was never stored or was deleted.
var ErrNotFound = errors.New("artifact not found")

// validateKey rejects keys that could escape a flat namespace.
func validateKey(key string) error {
	if key == "" || key == "." || key == ".." || strings.ContainsAny(key, `/\`) {
		return fmt.Errorf("invalid artifact key: %q", key)
	}
	return nil
}

func checkSize(expected, written int64) error {
	if expected >= 0 && written != expected {
		return fmt.Errorf("size mismatch: expected %d bytes, got %d", expected, written)
	}
	return nil
}
