package dw

import "errors"

var (
	// ErrLocked means the file could not be opened for exclusive read within
	// the retry budget. The file is left for the next reconcile pass or watch event.
	ErrLocked = errors.New("file is locked")

	// ErrCatalogWrite wraps failures of the upsert commit point.
	ErrCatalogWrite = errors.New("catalog write failed")

	// ErrDuplicateContent is returned by the catalog when an upsert would give a
	// second non-archived document the same content hash.
	ErrDuplicateContent = errors.New("content hash already cataloged")

	ErrDocumentNotFound   = errors.New("document not found")
	ErrConflictNotFound   = errors.New("conflict not found")
	ErrConflictNotPending = errors.New("conflict is not pending")
	ErrInvalidAction      = errors.New("invalid conflict action")

	// ErrKeepBothIdentical rejects keep_both for byte-identical files, which
	// would leave two active documents with one content hash.
	ErrKeepBothIdentical = errors.New("keep_both is not allowed for identical content")

	// ErrReplaceTargetMissing means the document a replace resolution would
	// overwrite is gone or archived.
	ErrReplaceTargetMissing = errors.New("existing document is not active")
)
