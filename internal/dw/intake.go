package dw

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"path/filepath"
	"strings"

	"docwatch/internal/model"
)

// maxNameSuffix bounds the numeric suffixes tried when a target name is taken.
const maxNameSuffix = 1000

// Intake brings one file of the watched directory into the catalog.
//
// Expected non-success results (unsupported type, no content, duplicates,
// vanished files) are reported as an Outcome with a nil error. Errors mean
// the attempt was abandoned without touching the catalog; the file is picked
// up again by the next reconcile pass or watch event.
func (s *Service) Intake(ctx context.Context, path string, reason Reason) (Outcome, error) {
	path = filepath.Clean(path)
	if filepath.Dir(path) != s.opts.WatchDir {
		return 0, fmt.Errorf("path is not in the watched directory: %s", path)
	}
	name := filepath.Base(path)

	if !s.extractor.Supports(name) || s.fsmgr.IsIgnored(name) {
		s.logger.Debug("skipping unsupported file", "file", name)
		return OutcomeUnsupportedType, nil
	}

	unlock := s.names.Lock(name)
	defer unlock()

	pending, err := s.catalog.FindPendingConflict(ctx, name)
	if err != nil {
		return 0, fmt.Errorf("checking pending conflicts: %w", err)
	}
	if pending != nil {
		s.logger.Debug("file awaits conflict resolution", "file", name, "conflict", pending.ID)
		return OutcomePendingConflict, nil
	}

	lease, err := s.acquire(ctx, path)
	if errors.Is(err, fs.ErrNotExist) {
		return OutcomeMissing, nil
	}
	if err != nil {
		s.logger.Warn("file stayed locked", "file", name, "reason", reason, "error", err)
		return 0, err
	}
	defer lease.Close()

	fp, err := s.fingerprinter.Fingerprint(path)
	if errors.Is(err, fs.ErrNotExist) {
		return OutcomeMissing, nil
	}
	if err != nil {
		return 0, fmt.Errorf("fingerprinting %s: %w", name, err)
	}

	existing, err := s.catalog.GetDocument(ctx, name)
	if err != nil {
		return 0, fmt.Errorf("looking up document: %w", err)
	}
	sameContent := existing != nil && existing.ContentHash == fp.Hash && existing.FileSize == fp.Size
	if sameContent && !existing.Archived && !existing.Incomplete() {
		return OutcomeUnchanged, nil
	}

	holder, err := s.catalog.FindActiveByHash(ctx, fp.Hash)
	if err != nil {
		return 0, fmt.Errorf("checking for duplicate content: %w", err)
	}
	duplicate := holder != nil && holder.Filename != name
	if duplicate && s.opts.DuplicatePolicy == DuplicateSkip {
		if err := s.retireRewritten(ctx, existing, holder); err != nil {
			return 0, err
		}
		s.logger.Info("duplicate content skipped", "file", name, "existing", holder.Filename, "hash", fp.Hash)
		return OutcomeDuplicateSkipped, nil
	}

	var enr Enrichment
	if sameContent && existing.Summary != "" {
		enr = enrichmentOf(existing)
	} else {
		text, err := s.extractor.Extract(ctx, path)
		if err != nil {
			s.logger.Warn("extraction failed", "file", name, "error", err)
			text = ""
		}
		if strings.TrimSpace(text) == "" {
			s.logger.Info("no content extracted", "file", name)
			return OutcomeNoContent, nil
		}
		enr = s.summarizer.Summarize(ctx, name, firstChunk(text, s.opts.ChunkChars))
		if enr.Summary == "" && existing != nil && existing.Summary != "" {
			// Enrichment fell back; keep the better record.
			enr = enrichmentOf(existing)
		}
	}

	if duplicate {
		if err := s.retireRewritten(ctx, existing, holder); err != nil {
			return 0, err
		}
		return s.recordConflict(ctx, model.KindDuplicate, holder, name, fp, enr)
	}

	finalName := name
	if existing == nil && !hasKeepBothPrefix(name) {
		target := suggestedName(enr.Filename, name)
		if target != name && s.opts.DuplicatePolicy == DuplicateConflict {
			held, err := s.catalog.GetDocument(ctx, target)
			if err != nil {
				return 0, fmt.Errorf("looking up target name: %w", err)
			}
			if held != nil && !held.Archived {
				return s.recordConflict(ctx, model.KindVariant, held, name, fp, enr)
			}
		}
		if target != name {
			var unlockTarget func()
			finalName, unlockTarget, err = s.renameNoClobber(ctx, name, target)
			if err != nil {
				return 0, fmt.Errorf("renaming %s: %w", name, err)
			}
			if unlockTarget != nil {
				defer unlockTarget()
			}
			path = s.pathOf(finalName)
			if finalName != name {
				s.logger.Info("file renamed", "from", name, "to", finalName)
			}
		}
	}

	thumbnail, preview := "", ""
	if sameContent && existing.ThumbnailPath != "" {
		thumbnail, preview = existing.ThumbnailPath, existing.PreviewPath
	} else {
		thumbnail, preview, err = s.renderer.Render(ctx, path, finalName)
		if err != nil {
			s.logger.Warn("rendering failed", "file", finalName, "error", err)
			thumbnail, preview = "", ""
		}
	}

	// The upsert is the commit point; nothing after a cancellation may reach it.
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	doc := &model.Document{
		Filename:      finalName,
		CommonName:    enr.CommonName,
		Summary:       enr.Summary,
		Keyword:       enr.Keyword,
		Category:      enr.Category,
		FileSize:      fp.Size,
		ContentHash:   fp.Hash,
		ThumbnailPath: thumbnail,
		PreviewPath:   preview,
		DateAdded:     s.clock.Now(),
	}
	res, err := s.catalog.UpsertDocument(ctx, doc)
	if errors.Is(err, ErrDuplicateContent) {
		s.logger.Info("duplicate content skipped", "file", finalName, "hash", fp.Hash)
		return OutcomeDuplicateSkipped, nil
	}
	if err != nil {
		s.logger.Error("catalog write failed", "file", finalName, "error", err)
		return 0, fmt.Errorf("%w: %w", ErrCatalogWrite, err)
	}

	outcome := OutcomeUnchanged
	switch res {
	case UpsertCreated:
		outcome = OutcomeCreated
	case UpsertUpdated:
		outcome = OutcomeUpdated
	}
	if outcome != OutcomeUnchanged {
		s.logger.Info("document cataloged", "file", finalName, "outcome", outcome, "reason", reason)
	}
	return outcome, nil
}

// acquire takes the read lock on path, retrying while the file is locked.
func (s *Service) acquire(ctx context.Context, path string) (io.Closer, error) {
	var lease io.Closer
	err := s.opts.LockRetry.Do(ctx, func(err error) bool {
		return errors.Is(err, ErrLocked)
	}, func(attempt int) error {
		l, err := s.fsmgr.AcquireRead(path)
		if err != nil {
			s.logger.Debug("file not readable yet", "file", filepath.Base(path), "attempt", attempt, "error", err)
			return err
		}
		lease = l
		return nil
	})
	if err != nil {
		return nil, err
	}
	return lease, nil
}

// retireRewritten applies the removal policy to existing, the active row of
// a file whose bytes now duplicate holder. Its recorded content no longer
// exists on disk. The caller holds the lock on existing's name.
func (s *Service) retireRewritten(ctx context.Context, existing, holder *model.Document) error {
	if existing == nil || existing.Archived {
		return nil
	}
	if _, err := s.applyRemoval(ctx, existing); err != nil {
		return err
	}
	s.logger.Info("rewritten file duplicates another document", "file", existing.Filename, "existing", holder.Filename)
	return nil
}

// renameNoClobber renames the file called from to target, appending a
// numeric suffix until a free name is found. The caller holds the lock on
// from; the lock on the chosen name is returned so the caller can hold it
// through the upsert. A candidate is only locked once it is absent on disk,
// so two renames never wait on each other's source.
func (s *Service) renameNoClobber(ctx context.Context, from, target string) (string, func(), error) {
	src := s.pathOf(from)
	for n := 0; n < maxNameSuffix; n++ {
		candidate := withSuffix(target, n)
		if candidate == from {
			return from, nil, nil
		}
		if _, err := s.fsmgr.Stat(s.pathOf(candidate)); err == nil {
			continue
		} else if !errors.Is(err, fs.ErrNotExist) {
			return "", nil, fmt.Errorf("checking %s: %w", candidate, err)
		}

		unlock := s.names.Lock(candidate)
		err := s.opts.RenameRetry.Do(ctx, func(err error) bool {
			return !errors.Is(err, fs.ErrExist) && !errors.Is(err, fs.ErrNotExist)
		}, func(int) error {
			return s.fsmgr.Rename(src, s.pathOf(candidate))
		})
		if err == nil {
			return candidate, unlock, nil
		}
		unlock()
		if !errors.Is(err, fs.ErrExist) {
			return "", nil, err
		}
	}
	return "", nil, fmt.Errorf("no free name for %s after %d attempts", target, maxNameSuffix)
}

// recordConflict stores a pending Conflict between the new file and an
// existing document and leaves the new file untouched.
func (s *Service) recordConflict(ctx context.Context, kind model.ConflictKind, existing *model.Document, newName string, fp Fingerprint, enr Enrichment) (Outcome, error) {
	c := &model.Conflict{
		Kind:             kind,
		ExistingFilename: existing.Filename,
		NewFilename:      newName,
		ExistingSummary:  existing.Summary,
		NewSummary:       enr.Summary,
		DiffSummary:      describeDifference(kind, existing, fp, enr),
		Status:           model.ConflictPending,
		ActionTaken:      model.ActionNone,
		DateAdded:        s.clock.Now(),
		NewCommonName:    enr.CommonName,
		NewKeyword:       enr.Keyword,
		NewCategory:      enr.Category,
		NewContentHash:   fp.Hash,
		NewFileSize:      fp.Size,
	}
	created, err := s.catalog.CreateConflict(ctx, c)
	if err != nil {
		return 0, fmt.Errorf("%w: recording conflict: %w", ErrCatalogWrite, err)
	}
	s.logger.Info("conflict recorded", "conflict", created.ID, "kind", kind, "existing", existing.Filename, "new", newName)
	return OutcomeConflictRecorded, nil
}

func describeDifference(kind model.ConflictKind, existing *model.Document, fp Fingerprint, enr Enrichment) string {
	if kind == model.KindDuplicate {
		return fmt.Sprintf("identical content (%d bytes, sha256 %s)", fp.Size, shortHash(fp.Hash))
	}
	var parts []string
	parts = append(parts, fmt.Sprintf("size %d -> %d bytes", existing.FileSize, fp.Size))
	if existing.Category != enr.Category {
		parts = append(parts, fmt.Sprintf("category %q -> %q", existing.Category, enr.Category))
	}
	if existing.Keyword != enr.Keyword {
		parts = append(parts, fmt.Sprintf("keyword %q -> %q", existing.Keyword, enr.Keyword))
	}
	return "same suggested name, different content: " + strings.Join(parts, "; ")
}

func shortHash(h string) string {
	if len(h) > 12 {
		return h[:12]
	}
	return h
}

func enrichmentOf(d *model.Document) Enrichment {
	return Enrichment{
		Filename:   d.Filename,
		CommonName: d.CommonName,
		Summary:    d.Summary,
		Keyword:    d.Keyword,
		Category:   d.Category,
	}
}
