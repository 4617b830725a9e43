package dw

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"

	"docwatch/internal/model"
)

// EventOp is the kind of a filesystem change notification.
type EventOp int

const (
	EventCreated EventOp = iota
	EventDeleted
)

func (op EventOp) String() string {
	switch op {
	case EventCreated:
		return "created"
	case EventDeleted:
		return "deleted"
	default:
		return "unknown"
	}
}

// Event is a change notification for one file in the watched directory.
type Event struct {
	Op   EventOp
	Path string
}

// ListActiveDocuments returns non-archived documents, newest first.
func (s *Service) ListActiveDocuments(ctx context.Context) ([]*model.Document, error) {
	docs, err := s.catalog.ListDocuments(ctx, false)
	if err != nil {
		return nil, fmt.Errorf("listing documents: %w", err)
	}
	return docs, nil
}

// GetDocument returns the document with the given filename, or ErrDocumentNotFound.
func (s *Service) GetDocument(ctx context.Context, filename string) (*model.Document, error) {
	doc, err := s.catalog.GetDocument(ctx, filename)
	if err != nil {
		return nil, fmt.Errorf("loading document: %w", err)
	}
	if doc == nil {
		return nil, ErrDocumentNotFound
	}
	return doc, nil
}

// RemoveDocument deletes the document's file from the watched directory, if
// still present, and applies the removal policy to its catalog entry.
func (s *Service) RemoveDocument(ctx context.Context, filename string) error {
	if filename == "" || filepath.Base(filename) != filename {
		return fmt.Errorf("invalid filename: %q", filename)
	}

	unlock := s.names.Lock(filename)
	defer unlock()

	doc, err := s.catalog.GetDocument(ctx, filename)
	if err != nil {
		return fmt.Errorf("loading document: %w", err)
	}
	if doc == nil {
		return ErrDocumentNotFound
	}

	if err := s.removeIfPresent(s.pathOf(filename)); err != nil {
		return err
	}
	_, err = s.applyRemoval(ctx, doc)
	return err
}

// HandleEvent applies one watch notification. Deliveries are at-least-once,
// so both paths are idempotent.
func (s *Service) HandleEvent(ctx context.Context, ev Event) error {
	switch ev.Op {
	case EventCreated:
		_, err := s.Intake(ctx, ev.Path, ReasonWatch)
		return err
	case EventDeleted:
		return s.handleDeleted(ctx, ev.Path)
	default:
		return fmt.Errorf("unknown event op: %d", ev.Op)
	}
}

// handleDeleted applies the removal policy to the document behind path if
// the file is really gone. A file that reappeared is left to intake.
func (s *Service) handleDeleted(ctx context.Context, path string) error {
	path = filepath.Clean(path)
	if filepath.Dir(path) != s.opts.WatchDir {
		return nil
	}
	name := filepath.Base(path)

	unlock := s.names.Lock(name)
	defer unlock()

	if _, err := s.fsmgr.Stat(path); err == nil {
		return nil
	} else if !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("checking %s: %w", name, err)
	}

	doc, err := s.catalog.GetDocument(ctx, name)
	if err != nil {
		return fmt.Errorf("loading document: %w", err)
	}
	if doc == nil {
		return nil
	}
	_, err = s.applyRemoval(ctx, doc)
	return err
}
