package testutil

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"sync"

	"docwatch/internal/artifacts"
	"docwatch/internal/dw"
	"docwatch/internal/fingerprint"
)

// DefaultExtensions are the file types the stub extractor accepts.
var DefaultExtensions = []string{".txt", ".pdf", ".md", ".docx"}

// StubExtractor returns a file's raw bytes as its text.
type StubExtractor struct {
	fsmgr      dw.FilesystemManager
	extensions []string

	mu    sync.Mutex
	errs  map[string]error
	calls int
}

// NewStubExtractor creates an extractor reading through fsmgr.
func NewStubExtractor(fsmgr dw.FilesystemManager) *StubExtractor {
	return &StubExtractor{fsmgr: fsmgr, extensions: DefaultExtensions, errs: make(map[string]error)}
}

func (e *StubExtractor) Supports(name string) bool {
	ext := strings.ToLower(filepath.Ext(name))
	for _, allowed := range e.extensions {
		if ext == allowed {
			return true
		}
	}
	return false
}

func (e *StubExtractor) Extract(ctx context.Context, path string) (string, error) {
	e.mu.Lock()
	e.calls++
	err := e.errs[filepath.Base(path)]
	e.mu.Unlock()
	if err != nil {
		return "", err
	}

	rc, err := e.fsmgr.Open(path)
	if err != nil {
		return "", err
	}
	defer rc.Close()
	data, err := io.ReadAll(rc)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// Fail makes extraction of name return err.
func (e *StubExtractor) Fail(name string, err error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.errs[name] = err
}

// Calls returns the number of Extract calls.
func (e *StubExtractor) Calls() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.calls
}

// StubSummarizer returns canned enrichment. Without a canned record it
// keeps the file name and summarizes the first line of text.
type StubSummarizer struct {
	mu      sync.Mutex
	canned  map[string]dw.Enrichment
	failing bool
	calls   int
}

func NewStubSummarizer() *StubSummarizer {
	return &StubSummarizer{canned: make(map[string]dw.Enrichment)}
}

// Suggest sets the enrichment returned for files called name.
func (s *StubSummarizer) Suggest(name string, e dw.Enrichment) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.canned[name] = e
}

// SetFailing makes every call return the fallback record.
func (s *StubSummarizer) SetFailing(failing bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failing = failing
}

// Calls returns the number of Summarize calls.
func (s *StubSummarizer) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

func (s *StubSummarizer) Summarize(ctx context.Context, name, text string) dw.Enrichment {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++

	stem := strings.TrimSuffix(name, filepath.Ext(name))
	if s.failing {
		return dw.Enrichment{CommonName: stem, Keyword: "Uncategorized", Category: "Unsorted"}
	}
	if e, ok := s.canned[name]; ok {
		return e
	}
	first, _, _ := strings.Cut(strings.TrimSpace(text), "\n")
	return dw.Enrichment{
		CommonName: stem,
		Summary:    "About " + first,
		Keyword:    "general",
		Category:   "Documents",
	}
}

// StubRenderer writes small placeholder artifacts to a store.
type StubRenderer struct {
	store dw.ArtifactStore

	mu    sync.Mutex
	err   error
	calls int
}

func NewStubRenderer(store dw.ArtifactStore) *StubRenderer {
	return &StubRenderer{store: store}
}

// SetError makes Render fail with err; nil restores success.
func (r *StubRenderer) SetError(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.err = err
}

// Calls returns the number of Render calls.
func (r *StubRenderer) Calls() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.calls
}

func (r *StubRenderer) Render(ctx context.Context, path, filename string) (string, string, error) {
	r.mu.Lock()
	r.calls++
	err := r.err
	r.mu.Unlock()
	if err != nil {
		return "", "", err
	}

	thumb, preview := dw.ThumbnailKey(filename), dw.PreviewKey(filename)
	for _, key := range []string{thumb, preview} {
		data := []byte("jpeg:" + key)
		if err := r.store.Put(ctx, key, bytes.NewReader(data), int64(len(data))); err != nil {
			return "", "", fmt.Errorf("storing %s: %w", key, err)
		}
	}
	return thumb, preview, nil
}

// Pipeline bundles a mock filesystem with stub collaborators.
type Pipeline struct {
	FS         *MockFilesystemManager
	Extractor  *StubExtractor
	Summarizer *StubSummarizer
	Renderer   *StubRenderer
	Artifacts  *artifacts.MemoryStore
}

// NewPipeline creates a mock filesystem and stubs wired to it.
func NewPipeline() *Pipeline {
	fsmgr := NewMockFilesystemManager()
	store := artifacts.NewMemoryStore()
	return &Pipeline{
		FS:         fsmgr,
		Extractor:  NewStubExtractor(fsmgr),
		Summarizer: NewStubSummarizer(),
		Renderer:   NewStubRenderer(store),
		Artifacts:  store,
	}
}

// Collaborators returns the stubs as dw.Collaborators.
func (p *Pipeline) Collaborators() dw.Collaborators {
	return dw.Collaborators{
		Extractor:     p.Extractor,
		Summarizer:    p.Summarizer,
		Renderer:      p.Renderer,
		Artifacts:     p.Artifacts,
		Fingerprinter: fingerprint.New(p.FS, 0),
	}
}
