// Package fingerprint computes content identities for watched files.
package fingerprint

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"io/fs"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"docwatch/internal/dw"
)

// DefaultCacheSize is the number of fingerprints kept in memory.
const DefaultCacheSize = 4096

// Source is the part of the filesystem the hasher reads from.
type Source interface {
	Stat(path string) (fs.FileInfo, error)
	Open(path string) (io.ReadCloser, error)
}

type cacheKey struct {
	path    string
	size    int64
	modTime time.Time
}

// Hasher computes SHA-256 fingerprints. Results are cached by path, size and
// modification time, so reconcile passes over unchanged files do not reread
// them. A cache size of zero or less disables caching.
type Hasher struct {
	src   Source
	cache *lru.Cache[cacheKey, dw.Fingerprint]
}

// New creates a Hasher reading through src.
func New(src Source, cacheSize int) *Hasher {
	h := &Hasher{src: src}
	if cacheSize > 0 {
		h.cache, _ = lru.New[cacheKey, dw.Fingerprint](cacheSize)
	}
	return h
}

// Fingerprint returns the SHA-256 and size of the file at path.
func (h *Hasher) Fingerprint(path string) (dw.Fingerprint, error) {
	info, err := h.src.Stat(path)
	if err != nil {
		return dw.Fingerprint{}, err
	}
	key := cacheKey{path: path, size: info.Size(), modTime: info.ModTime()}
	if h.cache != nil {
		if fp, ok := h.cache.Get(key); ok {
			return fp, nil
		}
	}

	f, err := h.src.Open(path)
	if err != nil {
		return dw.Fingerprint{}, err
	}
	defer f.Close()

	sum := sha256.New()
	n, err := io.Copy(sum, f)
	if err != nil {
		return dw.Fingerprint{}, fmt.Errorf("hashing %s: %w", path, err)
	}
	fp := dw.Fingerprint{Hash: hex.EncodeToString(sum.Sum(nil)), Size: n}

	if h.cache != nil {
		h.cache.Add(key, fp)
	}
	return fp, nil
}

var _ dw.Fingerprinter = (*Hasher)(nil)
