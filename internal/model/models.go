package model

import "time"

// Document is one cataloged file in the watched directory.
// Filename is the identity; ContentHash is unique among non-archived rows.
type Document struct {
	Filename      string    // Base name within the watched directory
	CommonName    string    // Human-friendly name from enrichment
	Summary       string    // Empty until enrichment succeeds
	Keyword       string
	Category      string
	FileSize      int64     // Bytes
	ContentHash   string    // SHA-256 hex of the file bytes
	ThumbnailPath string    // Artifact key, empty when rendering failed
	PreviewPath   string    // Artifact key, empty when rendering failed
	Archived      bool      // Excluded from active views, kept for audit
	DateAdded     time.Time // Time of the last mutation, not creation
}

// Incomplete reports whether the document is missing enrichment or artifacts
// and should be re-run through intake by a repair pass.
func (d *Document) Incomplete() bool {
	return d.Summary == "" || d.ThumbnailPath == ""
}

// ConflictStatus is the lifecycle state of a Conflict.
type ConflictStatus string

const (
	ConflictPending  ConflictStatus = "pending"
	ConflictResolved ConflictStatus = "resolved"
)

// ConflictAction records how a Conflict was resolved.
type ConflictAction string

const (
	ActionNone     ConflictAction = "none"
	ActionKeepOld  ConflictAction = "keep_old"
	ActionReplace  ConflictAction = "replace"
	ActionKeepBoth ConflictAction = "keep_both"
)

// ParseConflictAction converts user input into a resolution action.
// ActionNone is not accepted; it is only recorded for dismissed conflicts.
func ParseConflictAction(s string) (ConflictAction, bool) {
	switch a := ConflictAction(s); a {
	case ActionKeepOld, ActionReplace, ActionKeepBoth:
		return a, true
	default:
		return "", false
	}
}

// ConflictKind distinguishes why a Conflict was raised.
type ConflictKind string

const (
	// KindDuplicate means the new file is byte-identical to an existing Document.
	KindDuplicate ConflictKind = "duplicate"
	// KindVariant means the new file wants the name of an existing Document
	// but its content differs.
	KindVariant ConflictKind = "variant"
)

// Conflict is a pending decision about a new file colliding with an existing Document.
// While pending, the file named NewFilename stays on disk untouched and uncataloged.
type Conflict struct {
	ID               int64
	Kind             ConflictKind
	ExistingFilename string
	NewFilename      string
	ExistingSummary  string
	NewSummary       string
	DiffSummary      string
	Status           ConflictStatus
	ActionTaken      ConflictAction
	DateAdded        time.Time
	ResolvedAt       time.Time // Zero while pending

	// Enrichment and fingerprint of the new file, applied by a replace resolution.
	NewCommonName  string
	NewKeyword     string
	NewCategory    string
	NewContentHash string
	NewFileSize    int64
}
