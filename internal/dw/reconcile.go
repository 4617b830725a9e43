package dw

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"docwatch/internal/model"
)

// ReconcileOptions tunes a reconcile pass.
type ReconcileOptions struct {
	// Full also reads archived documents, so a delete policy purges rows left
	// behind by an earlier archive policy.
	Full bool
}

// FileFailure is one file whose intake failed during a pass.
type FileFailure struct {
	Filename string
	Err      error
}

// ReconcileReport summarizes a reconcile pass.
type ReconcileReport struct {
	Scanned   int             // Supported files found on disk
	Outcomes  map[Outcome]int // Intake outcomes for files that needed work
	Repaired  int             // Intakes triggered by incomplete records
	Failures  []FileFailure
	Archived  int
	Deleted   int
	Dismissed int // Pending conflicts whose new file vanished
	Swept     int // Orphan artifacts removed, when run with a sweep
	Duration  time.Duration
}

// Count returns the number of intakes that ended with o.
func (r *ReconcileReport) Count(o Outcome) int {
	return r.Outcomes[o]
}

// Mutations returns the number of catalog changes the pass made.
func (r *ReconcileReport) Mutations() int {
	return r.Count(OutcomeCreated) + r.Count(OutcomeUpdated) + r.Count(OutcomeConflictRecorded) +
		r.Archived + r.Deleted + r.Dismissed
}

type intakeJob struct {
	path   string
	reason Reason
}

// Reconcile brings the catalog in line with the watched directory: new files
// are taken in, incomplete records repaired, and documents whose file is gone
// archived or deleted according to the removal policy. Removals run only
// after every intake of the pass has finished.
func (s *Service) Reconcile(ctx context.Context, opts ReconcileOptions) (*ReconcileReport, error) {
	s.passMu.Lock()
	defer s.passMu.Unlock()
	return s.reconcile(ctx, opts)
}

// ReconcileAndSweep runs a reconcile pass followed by the orphan sweep, with
// no other pass in between.
func (s *Service) ReconcileAndSweep(ctx context.Context, opts ReconcileOptions) (*ReconcileReport, error) {
	s.passMu.Lock()
	defer s.passMu.Unlock()

	report, err := s.reconcile(ctx, opts)
	if err != nil {
		return report, err
	}
	swept, err := s.sweep(ctx)
	report.Swept = swept
	if err != nil {
		return report, fmt.Errorf("sweeping artifacts: %w", err)
	}
	return report, nil
}

func (s *Service) reconcile(ctx context.Context, opts ReconcileOptions) (*ReconcileReport, error) {
	start := s.clock.Now()
	report := &ReconcileReport{Outcomes: make(map[Outcome]int)}

	paths, err := s.fsmgr.ListFiles(s.opts.WatchDir)
	if err != nil {
		return report, fmt.Errorf("listing watched directory: %w", err)
	}
	onDisk := make(map[string]string, len(paths))
	for _, p := range paths {
		name := filepath.Base(p)
		if s.extractor.Supports(name) {
			onDisk[name] = p
		}
	}
	report.Scanned = len(onDisk)

	docs, err := s.catalog.ListDocuments(ctx, opts.Full)
	if err != nil {
		return report, fmt.Errorf("listing documents: %w", err)
	}
	known := make(map[string]*model.Document, len(docs))
	for _, d := range docs {
		known[d.Filename] = d
	}

	var jobs []intakeJob
	for name, p := range onDisk {
		d, ok := known[name]
		switch {
		case !ok:
			jobs = append(jobs, intakeJob{path: p, reason: ReasonReconcile})
		case d.Archived || d.Incomplete():
			jobs = append(jobs, intakeJob{path: p, reason: ReasonRepair})
		}
	}
	sort.Slice(jobs, func(i, j int) bool { return jobs[i].path < jobs[j].path })

	if err := s.runIntakes(ctx, jobs, report); err != nil {
		report.Duration = s.clock.Now().Sub(start)
		return report, err
	}

	for name, d := range known {
		if _, ok := onDisk[name]; ok {
			continue
		}
		if err := ctx.Err(); err != nil {
			return report, err
		}
		if err := s.removeVanished(ctx, d, report); err != nil {
			return report, err
		}
	}

	if err := s.dismissVanishedConflicts(ctx, report); err != nil {
		return report, err
	}

	report.Duration = s.clock.Now().Sub(start)
	s.logger.Info("reconcile complete",
		"scanned", report.Scanned,
		"created", report.Count(OutcomeCreated),
		"updated", report.Count(OutcomeUpdated),
		"repaired", report.Repaired,
		"failed", len(report.Failures),
		"archived", report.Archived,
		"deleted", report.Deleted,
		"dismissed", report.Dismissed,
	)
	return report, nil
}

// runIntakes processes jobs with bounded concurrency. A failing file is
// recorded and never stops the others.
func (s *Service) runIntakes(ctx context.Context, jobs []intakeJob, report *ReconcileReport) error {
	var mu sync.Mutex
	g := new(errgroup.Group)
	g.SetLimit(s.opts.Workers)

	for _, job := range jobs {
		if ctx.Err() != nil {
			break
		}
		g.Go(func() error {
			outcome, err := s.Intake(ctx, job.path, job.reason)

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				if ctx.Err() == nil {
					report.Failures = append(report.Failures, FileFailure{Filename: filepath.Base(job.path), Err: err})
					s.logger.Warn("intake failed", "file", filepath.Base(job.path), "error", err)
				}
				return nil
			}
			report.Outcomes[outcome]++
			if job.reason == ReasonRepair {
				report.Repaired++
			}
			return nil
		})
	}
	_ = g.Wait()
	return ctx.Err()
}

// removeVanished applies the removal policy to a document whose file was not
// listed, after confirming the file is really gone.
func (s *Service) removeVanished(ctx context.Context, d *model.Document, report *ReconcileReport) error {
	unlock := s.names.Lock(d.Filename)
	defer unlock()

	if _, err := s.fsmgr.Stat(s.pathOf(d.Filename)); err == nil {
		return nil
	} else if !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("checking %s: %w", d.Filename, err)
	}

	cur, err := s.catalog.GetDocument(ctx, d.Filename)
	if err != nil {
		return fmt.Errorf("reloading %s: %w", d.Filename, err)
	}
	if cur == nil {
		return nil
	}
	removed, err := s.applyRemoval(ctx, cur)
	if err != nil {
		return err
	}
	switch {
	case !removed:
	case s.opts.RemovalPolicy == RemovalDelete:
		report.Deleted++
	default:
		report.Archived++
	}
	return nil
}

// applyRemoval archives or deletes d according to the removal policy. It
// reports whether the catalog changed. The caller holds the lock on d's name.
func (s *Service) applyRemoval(ctx context.Context, d *model.Document) (bool, error) {
	switch s.opts.RemovalPolicy {
	case RemovalDelete:
		if err := s.catalog.DeleteDocument(ctx, d.Filename); err != nil {
			return false, fmt.Errorf("%w: deleting %s: %w", ErrCatalogWrite, d.Filename, err)
		}
		s.logger.Info("document deleted", "file", d.Filename)
	default:
		if d.Archived {
			return false, nil
		}
		if err := s.catalog.ArchiveDocument(ctx, d.Filename, s.clock.Now()); err != nil {
			return false, fmt.Errorf("%w: archiving %s: %w", ErrCatalogWrite, d.Filename, err)
		}
		s.logger.Info("document archived", "file", d.Filename)
	}
	return true, nil
}

// dismissVanishedConflicts closes pending conflicts whose new file no longer
// exists, recording no action.
func (s *Service) dismissVanishedConflicts(ctx context.Context, report *ReconcileReport) error {
	pending, err := s.catalog.ListConflicts(ctx, model.ConflictPending)
	if err != nil {
		return fmt.Errorf("listing pending conflicts: %w", err)
	}
	for _, c := range pending {
		dismissed, err := s.dismissIfVanished(ctx, c.ID)
		if err != nil {
			return err
		}
		if dismissed {
			report.Dismissed++
		}
	}
	return nil
}

func (s *Service) dismissIfVanished(ctx context.Context, id int64) (bool, error) {
	unlock := s.conflicts.Lock(id)
	defer unlock()

	c, err := s.catalog.GetConflict(ctx, id)
	if err != nil {
		return false, fmt.Errorf("loading conflict %d: %w", id, err)
	}
	if c == nil || c.Status != model.ConflictPending {
		return false, nil
	}

	unlockName := s.names.Lock(c.NewFilename)
	defer unlockName()

	if _, err := s.fsmgr.Stat(s.pathOf(c.NewFilename)); err == nil {
		return false, nil
	} else if !errors.Is(err, fs.ErrNotExist) {
		return false, fmt.Errorf("checking %s: %w", c.NewFilename, err)
	}

	err = s.catalog.CloseConflict(ctx, c.ID, model.ActionNone, s.clock.Now(), nil)
	if errors.Is(err, ErrConflictNotPending) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("dismissing conflict %d: %w", c.ID, err)
	}
	s.logger.Info("conflict dismissed, new file is gone", "conflict", c.ID, "file", c.NewFilename)
	return true, nil
}
