package dw

import (
	"context"
	"fmt"
)

// Sweep deletes derived artifacts whose source filename has no matching
// non-archived document. It returns the number of artifacts removed.
func (s *Service) Sweep(ctx context.Context) (int, error) {
	s.passMu.Lock()
	defer s.passMu.Unlock()
	return s.sweep(ctx)
}

func (s *Service) sweep(ctx context.Context) (int, error) {
	keys, err := s.artifacts.List(ctx)
	if err != nil {
		return 0, fmt.Errorf("listing artifacts: %w", err)
	}

	docs, err := s.catalog.ListDocuments(ctx, false)
	if err != nil {
		return 0, fmt.Errorf("listing documents: %w", err)
	}
	active := make(map[string]bool, len(docs))
	for _, d := range docs {
		active[d.Filename] = true
	}

	removed := 0
	for _, key := range keys {
		name, ok := SourceFromArtifactKey(key)
		if !ok || active[name] {
			continue
		}
		if err := ctx.Err(); err != nil {
			return removed, err
		}
		deleted, err := s.deleteOrphan(ctx, name, key)
		if err != nil {
			return removed, err
		}
		if deleted {
			removed++
		}
	}

	if removed > 0 {
		s.logger.Info("sweep complete", "removed", removed)
	}
	return removed, nil
}

// deleteOrphan deletes key unless name became an active document after the
// listing. Holding the name lock waits out an intake that has rendered but
// not yet committed.
func (s *Service) deleteOrphan(ctx context.Context, name, key string) (bool, error) {
	unlock := s.names.Lock(name)
	defer unlock()

	doc, err := s.catalog.GetDocument(ctx, name)
	if err != nil {
		return false, fmt.Errorf("reloading %s: %w", name, err)
	}
	if doc != nil && !doc.Archived {
		return false, nil
	}
	if err := s.artifacts.Delete(ctx, key); err != nil {
		return false, fmt.Errorf("deleting artifact %s: %w", key, err)
	}
	s.logger.Debug("orphan artifact removed", "key", key)
	return true, nil
}
