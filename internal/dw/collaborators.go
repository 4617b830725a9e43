package dw

import (
	"context"
	"io"
)

// Extractor turns a file into plain text. An empty string means the file has
// no usable content; it is not an error.
type Extractor interface {
	// Supports reports whether the file name has an extension on the allow-list.
	Supports(name string) bool
	Extract(ctx context.Context, path string) (string, error)
}

// Enrichment is the metadata suggested for a file by the summarizer.
type Enrichment struct {
	Filename   string // Suggested file name; empty keeps the current one
	CommonName string
	Summary    string
	Keyword    string
	Category   string
}

// Summarizer produces enrichment for a text prefix. It never fails: on error
// it returns a fallback record derived from name.
type Summarizer interface {
	Summarize(ctx context.Context, name, text string) Enrichment
}

// Renderer produces thumbnail and preview artifacts for a file and returns
// their artifact keys.
type Renderer interface {
	Render(ctx context.Context, path, filename string) (thumbnail, preview string, err error)
}

// ArtifactStore holds derived artifacts (thumbnails and previews) by key.
type ArtifactStore interface {
	Put(ctx context.Context, key string, r io.Reader, size int64) error
	Get(ctx context.Context, key string, w io.Writer) error
	List(ctx context.Context) ([]string, error)
	// Delete removes an artifact. Missing keys are not an error.
	Delete(ctx context.Context, key string) error
}

// Fingerprint is the content identity of a file.
type Fingerprint struct {
	Hash string
	Size int64
}

// Fingerprinter computes content fingerprints.
type Fingerprinter interface {
	Fingerprint(path string) (Fingerprint, error)
}
