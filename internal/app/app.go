package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/google/uuid"

	"docwatch/internal/artifacts"
	"docwatch/internal/config"
	"docwatch/internal/database"
	"docwatch/internal/dw"
	"docwatch/internal/encryption"
	"docwatch/internal/extract"
	"docwatch/internal/fingerprint"
	"docwatch/internal/fs"
	"docwatch/internal/model"
	"docwatch/internal/render"
	"docwatch/internal/summarize"
)

// App is the application layer between the CLI and dw.Service.
// It constructs all dependencies from config, exposes high-level operations
// that accept raw CLI input, and releases the catalog and log file on Close.
type App struct {
	cfg       *config.Config
	catalog   *database.SQLiteCatalog
	fsmgr     *fs.OSFilesystemManager
	artifacts dw.ArtifactStore
	encryptor dw.Encryptor
	service   *dw.Service
	logger    *slog.Logger
	dlog      dw.Logger
	logFile   io.Closer
}

// NewApp creates a fully wired App from the given config.
// operation identifies the CLI command being run (e.g. "run", "reconcile")
// and is attached to every log line. The caller must call Close when done.
func NewApp(ctx context.Context, cfg *config.Config, operation string) (*App, error) {
	if err := CheckWatchDir(cfg.WatchDir); err != nil {
		return nil, err
	}

	level, err := ParseLevel(cfg.LogLevel)
	if err != nil {
		return nil, err
	}
	logger, logFile, err := newLogger(cfg.LogDir, uuid.NewString(), level, os.Stderr)
	if err != nil {
		return nil, fmt.Errorf("creating logger: %w", err)
	}
	logger = logger.With("op", operation)
	dlog := &slogAdapter{l: logger}

	a := &App{cfg: cfg, logger: logger, dlog: dlog, logFile: logFile}
	if err := a.wire(ctx); err != nil {
		a.Close()
		return nil, err
	}
	return a, nil
}

func (a *App) wire(ctx context.Context) error {
	cfg := a.cfg

	catalog, err := database.NewCatalogFromConfig(cfg.Database)
	if err != nil {
		return fmt.Errorf("opening catalog: %w", err)
	}
	a.catalog = catalog
	if err := catalog.CheckMigrations(); err != nil {
		return fmt.Errorf("catalog schema out of date: %w", err)
	}

	a.fsmgr, err = fs.NewOSFilesystemManagerForDir(cfg.WatchDir, cfg.Filesystem.Ignore)
	if err != nil {
		return fmt.Errorf("loading ignore patterns: %w", err)
	}

	extractor, err := extract.NewRegistry(a.fsmgr, extract.Options{
		Extensions: cfg.Intake.Extensions,
		OCR:        cfg.Intake.OCR,
	}, a.dlog)
	if err != nil {
		return fmt.Errorf("creating extractor: %w", err)
	}

	summarizer, err := summarize.NewSummarizerFromConfig(cfg.Summarizer, a.dlog)
	if err != nil {
		return fmt.Errorf("creating summarizer: %w", err)
	}

	a.artifacts, err = artifacts.NewArtifactStoreFromConfig(ctx, cfg.Artifacts)
	if err != nil {
		return fmt.Errorf("creating artifact store: %w", err)
	}

	a.encryptor, err = encryption.NewEncryptorFromConfig(cfg.Encryption)
	if err != nil {
		return fmt.Errorf("creating encryptor: %w", err)
	}

	opts, err := serviceOptions(cfg)
	if err != nil {
		return err
	}

	a.service = dw.NewService(catalog, a.fsmgr, dw.Collaborators{
		Extractor:     extractor,
		Summarizer:    summarizer,
		Renderer:      render.New(a.artifacts, extractor, nil, a.dlog),
		Artifacts:     a.artifacts,
		Fingerprinter: fingerprint.New(a.fsmgr, fingerprint.DefaultCacheSize),
	}, opts, a.dlog, dw.RealClock{})
	return nil
}

// serviceOptions translates the config into pipeline options.
func serviceOptions(cfg *config.Config) (dw.Options, error) {
	dup, err := dw.ParseDuplicatePolicy(cfg.Intake.DuplicatePolicy)
	if err != nil {
		return dw.Options{}, err
	}
	removal, err := dw.ParseRemovalPolicy(cfg.Catalog.RemovalPolicy)
	if err != nil {
		return dw.Options{}, err
	}

	opts := dw.DefaultOptions(cfg.WatchDir)
	opts.LockRetry = dw.RetryPolicy{MaxAttempts: cfg.Intake.LockAttempts, Backoff: cfg.Intake.LockBackoff.Duration}
	opts.RenameRetry = dw.RetryPolicy{MaxAttempts: cfg.Intake.RenameAttempts, Backoff: cfg.Intake.LockBackoff.Duration}
	opts.ChunkChars = cfg.Summarizer.ChunkChars
	opts.Workers = cfg.Intake.Workers
	opts.DuplicatePolicy = dup
	opts.RemovalPolicy = removal
	return opts, nil
}

// CheckWatchDir verifies that dir is an existing directory the process can
// list and create files in.
func CheckWatchDir(dir string) error {
	if dir == "" {
		return errors.New("watch_dir is not configured")
	}
	info, err := os.Stat(dir)
	if err != nil {
		return fmt.Errorf("watch_dir: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("watch_dir is not a directory: %s", dir)
	}
	if _, err := os.ReadDir(dir); err != nil {
		return fmt.Errorf("watch_dir is not readable: %w", err)
	}

	// The scratch file name starts with a dot so the default ignore patterns hide
	// it from a watcher that is already running.
	scratch, err := os.CreateTemp(dir, ".docwatch-writable-*")
	if err != nil {
		return fmt.Errorf("watch_dir is not writable: %w", err)
	}
	scratch.Close()
	return os.Remove(scratch.Name())
}

// Service returns the underlying pipeline service.
func (a *App) Service() *dw.Service { return a.service }

// Documents returns the active documents, newest first.
func (a *App) Documents(ctx context.Context) ([]*model.Document, error) {
	return a.service.ListActiveDocuments(ctx)
}

// Document returns one document by file name.
func (a *App) Document(ctx context.Context, filename string) (*model.Document, error) {
	return a.service.GetDocument(ctx, filename)
}

// RemoveDocument deletes a document's file and applies the removal policy.
func (a *App) RemoveDocument(ctx context.Context, filename string) error {
	if err := a.service.RemoveDocument(ctx, filename); err != nil {
		return err
	}
	a.logger.Info("document removed", "file", filename, "policy", a.cfg.Catalog.RemovalPolicy)
	return nil
}

// Conflicts returns the pending conflicts, oldest first.
func (a *App) Conflicts(ctx context.Context) ([]*model.Conflict, error) {
	return a.service.ListPendingConflicts(ctx)
}

// ResolveConflict applies the named action (keep_old, replace or keep_both).
func (a *App) ResolveConflict(ctx context.Context, id int64, action string) (*model.Conflict, error) {
	act, ok := model.ParseConflictAction(action)
	if !ok {
		return nil, fmt.Errorf("%w: %q", dw.ErrInvalidAction, action)
	}
	c, err := a.service.ResolveConflict(ctx, id, act)
	if err != nil {
		return nil, err
	}
	a.logger.Info("conflict resolved", "id", id, "action", act, "file", c.NewFilename)
	return c, nil
}

// Reconcile runs one reconcile pass followed by the orphan sweep. It needs
// the instance lock, so it fails while the watcher is running.
func (a *App) Reconcile(ctx context.Context, full bool) (*dw.ReconcileReport, error) {
	lock, err := acquireInstanceLock(a.cfg.BaseDir)
	if err != nil {
		return nil, err
	}
	defer lock.Unlock()

	report, err := a.service.ReconcileAndSweep(ctx, dw.ReconcileOptions{Full: full})
	if report != nil {
		a.logReport("reconcile finished", report)
	}
	return report, err
}

// Sweep removes artifacts that no active document references.
func (a *App) Sweep(ctx context.Context) (int, error) {
	lock, err := acquireInstanceLock(a.cfg.BaseDir)
	if err != nil {
		return 0, err
	}
	defer lock.Unlock()

	n, err := a.service.Sweep(ctx)
	if err != nil {
		return n, err
	}
	a.logger.Info("sweep finished", "removed", n)
	return n, nil
}

// Intake runs one file through the pipeline. rawPath may be relative to
// the working directory but must name a file directly inside watch_dir.
func (a *App) Intake(ctx context.Context, rawPath string) (dw.Outcome, error) {
	abs, err := filepath.Abs(rawPath)
	if err != nil {
		return 0, fmt.Errorf("resolving path: %w", err)
	}
	if filepath.Dir(abs) != filepath.Clean(a.cfg.WatchDir) {
		return 0, fmt.Errorf("%s is not in the watched directory %s", abs, a.cfg.WatchDir)
	}

	lock, err := acquireInstanceLock(a.cfg.BaseDir)
	if err != nil {
		return 0, err
	}
	defer lock.Unlock()

	outcome, err := a.service.Intake(ctx, abs, dw.ReasonManual)
	if err != nil {
		return outcome, err
	}
	a.logger.Info("intake finished", "file", filepath.Base(abs), "outcome", outcome)
	return outcome, nil
}

// WriteArtifact copies a document's thumbnail, or its preview when preview
// is true, to w.
func (a *App) WriteArtifact(ctx context.Context, filename string, preview bool, w io.Writer) error {
	doc, err := a.service.GetDocument(ctx, filename)
	if err != nil {
		return err
	}
	key := doc.ThumbnailPath
	if preview {
		key = doc.PreviewPath
	}
	if key == "" {
		return fmt.Errorf("no artifact rendered for %s", filename)
	}
	if err := a.artifacts.Get(ctx, key, w); err != nil {
		return fmt.Errorf("reading artifact %s: %w", key, err)
	}
	return nil
}

// SetupKeys generates the snapshot key pair.
func (a *App) SetupKeys(passphrase string) error {
	if err := a.encryptor.Setup(passphrase); err != nil {
		return err
	}
	a.logger.Info("snapshot keys created", "public_key", a.cfg.Encryption.PublicKeyPath)
	return nil
}

func (a *App) logReport(msg string, r *dw.ReconcileReport) {
	a.logger.Info(msg,
		"scanned", r.Scanned,
		"created", r.Count(dw.OutcomeCreated),
		"updated", r.Count(dw.OutcomeUpdated),
		"unchanged", r.Count(dw.OutcomeUnchanged),
		"repaired", r.Repaired,
		"skipped", r.Count(dw.OutcomeDuplicateSkipped),
		"conflicts", r.Count(dw.OutcomeConflictRecorded),
		"failed", len(r.Failures),
		"archived", r.Archived,
		"deleted", r.Deleted,
		"dismissed", r.Dismissed,
		"swept", r.Swept,
		"duration", r.Duration,
	)
	for _, f := range r.Failures {
		a.logger.Warn("intake failed", "file", f.Filename, "error", f.Err)
	}
}

// Close closes the catalog and the log file.
func (a *App) Close() error {
	var firstErr error
	if a.catalog != nil {
		if err := a.catalog.Close(); err != nil {
			firstErr = fmt.Errorf("closing catalog: %w", err)
		}
	}
	if a.logFile != nil {
		a.logFile.Close()
	}
	return firstErr
}
