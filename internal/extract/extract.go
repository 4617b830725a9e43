// Package extract turns supported document types into plain text.
package extract

import (
	"context"
	"fmt"
	"io"
	"path/filepath"
	"sort"
	"strings"

	"docwatch/internal/dw"
)

// Func extracts text from a file's content.
type Func func(ctx context.Context, r io.Reader) (string, error)

// PathFunc extracts text from a file on disk, for tools that need a path.
type PathFunc func(ctx context.Context, path string) (string, error)

// Opener opens files for reading. dw.FilesystemManager satisfies it.
type Opener interface {
	Open(path string) (io.ReadCloser, error)
}

// Options tunes a Registry.
type Options struct {
	// Extensions narrows the allow-list. Empty allows every registered type.
	Extensions []string

	// OCR runs tesseract over PDFs without a text layer.
	OCR bool
}

type entry struct {
	fromReader Func
	fromPath   PathFunc
}

// Registry maps lower-cased file extensions to extractors.
type Registry struct {
	opener  Opener
	logger  dw.Logger
	entries map[string]entry
	allowed map[string]bool
}

var _ dw.Extractor = (*Registry)(nil)

// NewRegistry creates a registry with every built-in extractor registered.
func NewRegistry(opener Opener, opts Options, logger dw.Logger) (*Registry, error) {
	if logger == nil {
		logger = dw.NopLogger{}
	}
	r := &Registry{
		opener:  opener,
		logger:  logger,
		entries: make(map[string]entry),
	}

	for _, ext := range []string{".txt", ".log", ".json", ".xml", ".rtf"} {
		r.Register(ext, PlainText)
	}
	r.Register(".md", Markdown)
	r.Register(".html", HTML)
	r.Register(".htm", HTML)
	r.Register(".eml", Email)
	r.Register(".docx", DOCX)
	r.Register(".pptx", PPTX)
	r.RegisterPath(".pdf", (&PDF{OCR: opts.OCR, Logger: logger}).Extract)

	if err := r.Allow(opts.Extensions); err != nil {
		return nil, err
	}
	return r, nil
}

// Register binds ext to a content extractor.
func (r *Registry) Register(ext string, fn Func) {
	r.entries[normalizeExt(ext)] = entry{fromReader: fn}
}

// RegisterPath binds ext to an extractor that reads from disk itself.
func (r *Registry) RegisterPath(ext string, fn PathFunc) {
	r.entries[normalizeExt(ext)] = entry{fromPath: fn}
}

// Allow narrows the allow-list to exts. Empty exts allows every registered type.
func (r *Registry) Allow(exts []string) error {
	if len(exts) == 0 {
		r.allowed = nil
		return nil
	}
	allowed := make(map[string]bool, len(exts))
	for _, ext := range exts {
		ext = normalizeExt(ext)
		if _, ok := r.entries[ext]; !ok {
			return fmt.Errorf("no extractor for extension %q", ext)
		}
		allowed[ext] = true
	}
	r.allowed = allowed
	return nil
}

// Extensions returns the allowed extensions in sorted order.
func (r *Registry) Extensions() []string {
	var exts []string
	for ext := range r.entries {
		if r.allowed == nil || r.allowed[ext] {
			exts = append(exts, ext)
		}
	}
	sort.Strings(exts)
	return exts
}

// Supports reports whether name has an allowed extension.
func (r *Registry) Supports(name string) bool {
	ext := strings.ToLower(filepath.Ext(name))
	if _, ok := r.entries[ext]; !ok {
		return false
	}
	return r.allowed == nil || r.allowed[ext]
}

// Extract returns the text of the file at path.
func (r *Registry) Extract(ctx context.Context, path string) (string, error) {
	ext := strings.ToLower(filepath.Ext(path))
	e, ok := r.entries[ext]
	if !ok || (r.allowed != nil && !r.allowed[ext]) {
		return "", fmt.Errorf("unsupported file type %q", ext)
	}

	if e.fromPath != nil {
		return e.fromPath(ctx, path)
	}

	f, err := r.opener.Open(path)
	if err != nil {
		return "", fmt.Errorf("opening %s: %w", filepath.Base(path), err)
	}
	defer f.Close()

	text, err := e.fromReader(ctx, f)
	if err != nil {
		return "", fmt.Errorf("extracting %s: %w", filepath.Base(path), err)
	}
	return text, nil
}

func normalizeExt(ext string) string {
	ext = strings.ToLower(strings.TrimSpace(ext))
	if ext != "" && !strings.HasPrefix(ext, ".") {
		ext = "." + ext
	}
	return ext
}
