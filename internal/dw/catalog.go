package dw

import (
	"context"
	"time"

	"docwatch/internal/model"
)

// UpsertResult reports what an upsert did to the catalog.
type UpsertResult int

const (
	UpsertCreated UpsertResult = iota
	UpsertUpdated
	UpsertUnchanged
)

// Catalog is the durable store of Documents and Conflicts.
// Lookups return nil and no error when nothing matches.
type Catalog interface {
	// Document operations

	// GetDocument returns the document with the given filename, archived or not.
	GetDocument(ctx context.Context, filename string) (*model.Document, error)

	// FindActiveByHash returns the non-archived document holding contentHash.
	FindActiveByHash(ctx context.Context, contentHash string) (*model.Document, error)

	// ListDocuments returns documents newest first. Archived rows are included
	// only when includeArchived is true.
	ListDocuments(ctx context.Context, includeArchived bool) ([]*model.Document, error)

	// UpsertDocument inserts doc or updates the row with the same filename in
	// a single transaction, clearing the archived flag. It returns
	// ErrDuplicateContent if another non-archived row holds doc.ContentHash, and
	// UpsertUnchanged without writing if the stored row already matches.
	UpsertDocument(ctx context.Context, doc *model.Document) (UpsertResult, error)

	// ArchiveDocument flags the document archived. Missing rows are not an error.
	ArchiveDocument(ctx context.Context, filename string, at time.Time) error

	// DeleteDocument removes the row. Missing rows are not an error.
	DeleteDocument(ctx context.Context, filename string) error

	// Conflict operations

	// CreateConflict stores a new pending conflict and returns it with its ID.
	CreateConflict(ctx context.Context, c *model.Conflict) (*model.Conflict, error)

	GetConflict(ctx context.Context, id int64) (*model.Conflict, error)

	// FindPendingConflict returns the pending conflict whose new file is filename.
	FindPendingConflict(ctx context.Context, newFilename string) (*model.Conflict, error)

	// ListConflicts returns conflicts with the given status, oldest first.
	ListConflicts(ctx context.Context, status model.ConflictStatus) ([]*model.Conflict, error)

	// CloseConflict flips a pending conflict to resolved with the given action.
	// It returns ErrConflictNotPending if the conflict was already resolved.
	// apply, if not nil, runs inside the transaction after the status check;
	// an error from it rolls the transition back.
	CloseConflict(ctx context.Context, id int64, action model.ConflictAction, at time.Time, apply func() error) error

	// ApplyReplace copies the conflict's new-file enrichment onto the existing
	// document and closes the conflict with the replace action, in one
	// transaction. apply behaves as in CloseConflict.
	ApplyReplace(ctx context.Context, c *model.Conflict, at time.Time, apply func() error) error

	// NameTaken reports whether any document or conflict references filename.
	NameTaken(ctx context.Context, filename string) (bool, error)

	// BackupTo writes a consistent copy of the catalog to path.
	BackupTo(path string) error

	Close() error
}
