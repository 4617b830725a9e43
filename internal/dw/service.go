package dw

import (
	"fmt"
	"path/filepath"
	"sync"
)

// DuplicatePolicy decides what intake does with a file whose content is
// already cataloged under another name.
type DuplicatePolicy string

const (
	// DuplicateSkip leaves the file on disk uncataloged.
	DuplicateSkip DuplicatePolicy = "skip"
	// DuplicateConflict records a pending Conflict for human review.
	DuplicateConflict DuplicatePolicy = "conflict"
)

// RemovalPolicy decides what happens to a Document whose file is gone.
type RemovalPolicy string

const (
	RemovalArchive RemovalPolicy = "archive"
	RemovalDelete  RemovalPolicy = "delete"
)

// ParseDuplicatePolicy validates a configured duplicate policy. Empty means skip.
func ParseDuplicatePolicy(s string) (DuplicatePolicy, error) {
	switch p := DuplicatePolicy(s); p {
	case "":
		return DuplicateSkip, nil
	case DuplicateSkip, DuplicateConflict:
		return p, nil
	default:
		return "", fmt.Errorf("unknown duplicate policy: %q", s)
	}
}

// ParseRemovalPolicy validates a configured removal policy. Empty means archive.
func ParseRemovalPolicy(s string) (RemovalPolicy, error) {
	switch p := RemovalPolicy(s); p {
	case "":
		return RemovalArchive, nil
	case RemovalArchive, RemovalDelete:
		return p, nil
	default:
		return "", fmt.Errorf("unknown removal policy: %q", s)
	}
}

// Options tunes the pipeline.
type Options struct {
	// WatchDir is the absolute path of the watched directory.
	WatchDir string

	// LockRetry bounds waiting for writers that are still flushing a file.
	LockRetry RetryPolicy

	// RenameRetry bounds retries of renames that fail with a transient error.
	RenameRetry RetryPolicy

	// ChunkChars is the size of the text prefix sent for enrichment.
	ChunkChars int

	// Workers bounds concurrent intakes during reconciliation.
	Workers int

	DuplicatePolicy DuplicatePolicy
	RemovalPolicy   RemovalPolicy
}

// DefaultChunkChars matches a 3000 token window at four characters per token.
const DefaultChunkChars = 12000

// DefaultOptions returns options for watchDir with production defaults.
func DefaultOptions(watchDir string) Options {
	return Options{
		WatchDir:        watchDir,
		LockRetry:       DefaultLockRetry(),
		RenameRetry:     DefaultLockRetry(),
		ChunkChars:      DefaultChunkChars,
		Workers:         4,
		DuplicatePolicy: DuplicateSkip,
		RemovalPolicy:   RemovalArchive,
	}
}

func (o Options) withDefaults() Options {
	if o.ChunkChars <= 0 {
		o.ChunkChars = DefaultChunkChars
	}
	if o.Workers <= 0 {
		o.Workers = 1
	}
	if o.DuplicatePolicy == "" {
		o.DuplicatePolicy = DuplicateSkip
	}
	if o.RemovalPolicy == "" {
		o.RemovalPolicy = RemovalArchive
	}
	o.WatchDir = filepath.Clean(o.WatchDir)
	return o
}

// Collaborators are the external adapters the pipeline calls out to.
type Collaborators struct {
	Extractor     Extractor
	Summarizer    Summarizer
	Renderer      Renderer
	Artifacts     ArtifactStore
	Fingerprinter Fingerprinter
}

// Service keeps the catalog consistent with the watched directory. It owns
// intake, reconciliation, conflict resolution and the orphan sweep.
type Service struct {
	catalog       Catalog
	fsmgr         FilesystemManager
	extractor     Extractor
	summarizer    Summarizer
	renderer      Renderer
	artifacts     ArtifactStore
	fingerprinter Fingerprinter
	opts          Options
	logger        Logger
	clock         Clock

	names     *keyedMutex[string]
	conflicts *keyedMutex[int64]

	// passMu keeps reconcile and sweep passes from overlapping.
	passMu sync.Mutex
}

// NewService creates a Service with the provided dependencies.
func NewService(catalog Catalog, fsmgr FilesystemManager, c Collaborators, opts Options, logger Logger, clock Clock) *Service {
	return &Service{
		catalog:       catalog,
		fsmgr:         fsmgr,
		extractor:     c.Extractor,
		summarizer:    c.Summarizer,
		renderer:      c.Renderer,
		artifacts:     c.Artifacts,
		fingerprinter: c.Fingerprinter,
		opts:          opts.withDefaults(),
		logger:        logger,
		clock:         clock,
		names:         newKeyedMutex[string](),
		conflicts:     newKeyedMutex[int64](),
	}
}

// WatchDir returns the watched directory.
func (s *Service) WatchDir() string { return s.opts.WatchDir }

// pathOf returns the absolute path of a file in the watched directory.
func (s *Service) pathOf(filename string) string {
	return filepath.Join(s.opts.WatchDir, filename)
}
