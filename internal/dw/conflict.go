package dw

import (
	"context"
	"errors"
	"fmt"
	"io/fs"

	"docwatch/internal/model"
)

// maxKeepBothAttempts bounds the search for a free keep_both name.
const maxKeepBothAttempts = 100

// ListPendingConflicts returns the conflicts awaiting a decision, oldest first.
func (s *Service) ListPendingConflicts(ctx context.Context) ([]*model.Conflict, error) {
	conflicts, err := s.catalog.ListConflicts(ctx, model.ConflictPending)
	if err != nil {
		return nil, fmt.Errorf("listing pending conflicts: %w", err)
	}
	return conflicts, nil
}

// GetConflict returns a conflict by ID, or ErrConflictNotFound.
func (s *Service) GetConflict(ctx context.Context, id int64) (*model.Conflict, error) {
	c, err := s.catalog.GetConflict(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("loading conflict %d: %w", id, err)
	}
	if c == nil {
		return nil, ErrConflictNotFound
	}
	return c, nil
}

// ResolveConflict applies action to a pending conflict and marks it resolved.
//
//   - keep_old deletes the new file; the catalog is unchanged.
//   - replace copies the new file's enrichment onto the existing document and
//     deletes the new file.
//   - keep_both renames the new file with a timestamp prefix and takes it in
//     as an independent document.
//
// The filesystem change runs inside the catalog transaction that flips the
// status, so a failure leaves the conflict pending and a second resolution
// returns ErrConflictNotPending without touching any file.
func (s *Service) ResolveConflict(ctx context.Context, id int64, action model.ConflictAction) (*model.Conflict, error) {
	if _, ok := model.ParseConflictAction(string(action)); !ok {
		return nil, fmt.Errorf("%w: %q", ErrInvalidAction, action)
	}

	unlock := s.conflicts.Lock(id)
	defer unlock()

	c, err := s.GetConflict(ctx, id)
	if err != nil {
		return nil, err
	}
	if c.Status != model.ConflictPending {
		return nil, ErrConflictNotPending
	}

	var intakePath string
	if err := s.applyResolution(ctx, c, action, &intakePath); err != nil {
		return nil, err
	}
	s.logger.Info("conflict resolved", "conflict", c.ID, "action", action, "new", c.NewFilename)

	if intakePath != "" {
		if outcome, err := s.Intake(ctx, intakePath, ReasonManual); err != nil {
			s.logger.Warn("intake after keep_both failed", "file", intakePath, "error", err)
		} else {
			s.logger.Debug("kept file cataloged", "file", intakePath, "outcome", outcome)
		}
	}

	return s.GetConflict(ctx, id)
}

func (s *Service) applyResolution(ctx context.Context, c *model.Conflict, action model.ConflictAction, intakePath *string) error {
	unlockName := s.names.Lock(c.NewFilename)
	defer unlockName()

	newPath := s.pathOf(c.NewFilename)
	now := s.clock.Now()

	switch action {
	case model.ActionKeepOld:
		return s.closeConflict(s.catalog.CloseConflict(ctx, c.ID, action, now, func() error {
			return s.removeIfPresent(newPath)
		}))

	case model.ActionReplace:
		existing, err := s.catalog.GetDocument(ctx, c.ExistingFilename)
		if err != nil {
			return fmt.Errorf("loading %s: %w", c.ExistingFilename, err)
		}
		if existing == nil || existing.Archived {
			return fmt.Errorf("%w: %s", ErrReplaceTargetMissing, c.ExistingFilename)
		}
		return s.closeConflict(s.catalog.ApplyReplace(ctx, c, now, func() error {
			return s.removeIfPresent(newPath)
		}))

	case model.ActionKeepBoth:
		if c.Kind == model.KindDuplicate {
			return ErrKeepBothIdentical
		}
		target, err := s.keepBothName(ctx, c.NewFilename)
		if err != nil {
			return err
		}
		unlockTarget := s.names.Lock(target)
		defer unlockTarget()

		targetPath := s.pathOf(target)
		renamed := false
		err = s.catalog.CloseConflict(ctx, c.ID, action, now, func() error {
			if err := s.fsmgr.Rename(newPath, targetPath); err != nil {
				return fmt.Errorf("renaming %s: %w", c.NewFilename, err)
			}
			renamed = true
			return nil
		})
		if err != nil && renamed {
			if rerr := s.fsmgr.Rename(targetPath, newPath); rerr != nil {
				s.logger.Error("reverting keep_both rename failed", "from", target, "to", c.NewFilename, "error", rerr)
			}
		}
		if err := s.closeConflict(err); err != nil {
			return err
		}
		*intakePath = targetPath
		return nil

	default:
		return fmt.Errorf("%w: %q", ErrInvalidAction, action)
	}
}

func (s *Service) closeConflict(err error) error {
	if err == nil || errors.Is(err, ErrConflictNotPending) {
		return err
	}
	return fmt.Errorf("resolving conflict: %w", err)
}

// removeIfPresent deletes path; a file that is already gone counts as removed.
func (s *Service) removeIfPresent(path string) error {
	if err := s.fsmgr.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("removing %s: %w", path, err)
	}
	return nil
}

// keepBothName picks a timestamp-prefixed name that is free on disk, in the
// catalog and among conflicts.
func (s *Service) keepBothName(ctx context.Context, name string) (string, error) {
	now := s.clock.Now()
	for n := 0; n < maxKeepBothAttempts; n++ {
		candidate := keepBothCandidate(now, name, n)
		if _, err := s.fsmgr.Stat(s.pathOf(candidate)); err == nil {
			continue
		} else if !errors.Is(err, fs.ErrNotExist) {
			return "", fmt.Errorf("checking %s: %w", candidate, err)
		}
		taken, err := s.catalog.NameTaken(ctx, candidate)
		if err != nil {
			return "", fmt.Errorf("checking catalog for %s: %w", candidate, err)
		}
		if !taken {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("no free keep_both name for %s", name)
}
