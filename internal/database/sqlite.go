package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/mattn/go-sqlite3"

	"docwatch/internal/database/migrations"
	"docwatch/internal/dw"
	"docwatch/internal/model"
)

var documentColumns = []string{
	"filename", "common_name", "summary", "keyword", "category", "file_size",
	"content_hash", "thumbnail_path", "preview_path", "archived", "date_added",
}

var conflictColumns = []string{
	"id", "kind", "existing_filename", "new_filename", "existing_summary", "new_summary",
	"diff_summary", "status", "action_taken", "date_added", "new_common_name",
	"new_keyword", "new_category", "new_content_hash", "new_file_size", "resolved_at",
}

// queryer is satisfied by both *sql.DB and *sql.Tx.
type queryer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type rowScanner interface {
	Scan(dest ...any) error
}

// SQLiteCatalog implements dw.Catalog on SQLite.
type SQLiteCatalog struct {
	db   *sql.DB
	path string
}

// NewSQLiteCatalog opens the catalog at path and brings its schema up to date.
// path can be a file path or ":memory:".
func NewSQLiteCatalog(path string) (*SQLiteCatalog, error) {
	db, err := OpenConnection(path)
	if err != nil {
		return nil, err
	}
	if err := migrations.MigrateUp(db); err != nil {
		db.Close()
		return nil, err
	}
	return &SQLiteCatalog{db: db, path: path}, nil
}

// NewSQLiteCatalogFromDB wraps an existing, already migrated connection.
func NewSQLiteCatalogFromDB(db *sql.DB) *SQLiteCatalog {
	return &SQLiteCatalog{db: db}
}

// OpenConnection opens and configures a SQLite connection.
// SQLite allows a single writer, so the pool is capped at one connection;
// this also keeps a ":memory:" database shared by every query.
func OpenConnection(path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("opening catalog: %w", err)
	}
	db.SetMaxOpenConns(1)

	pragmas := []string{
		"PRAGMA foreign_keys = ON",
		"PRAGMA busy_timeout = 5000",
	}
	if path != ":memory:" {
		pragmas = append(pragmas, "PRAGMA journal_mode = WAL")
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			db.Close()
			return nil, fmt.Errorf("configuring catalog (%s): %w", p, err)
		}
	}
	return db, nil
}

// Document operations

func (s *SQLiteCatalog) GetDocument(ctx context.Context, filename string) (*model.Document, error) {
	return getDocument(ctx, s.db, sq.Eq{"filename": filename})
}

func (s *SQLiteCatalog) FindActiveByHash(ctx context.Context, contentHash string) (*model.Document, error) {
	return getDocument(ctx, s.db, sq.Eq{"content_hash": contentHash, "archived": 0})
}

func (s *SQLiteCatalog) ListDocuments(ctx context.Context, includeArchived bool) ([]*model.Document, error) {
	q := sq.Select(documentColumns...).From("documents").OrderBy("date_added DESC", "filename")
	if !includeArchived {
		q = q.Where(sq.Eq{"archived": 0})
	}
	query, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("building query: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing documents: %w", err)
	}
	defer rows.Close()

	var docs []*model.Document
	for rows.Next() {
		d, err := scanDocument(rows)
		if err != nil {
			return nil, err
		}
		docs = append(docs, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("listing documents: %w", err)
	}
	return docs, nil
}

// UpsertDocument inserts or updates doc in one transaction:
//  1. Rejects the write if another active row holds the same content hash.
//  2. Compares against the stored row; if nothing but the timestamp differs,
//     nothing is written.
//  3. Otherwise inserts, or updates in place and clears the archived flag.
func (s *SQLiteCatalog) UpsertDocument(ctx context.Context, doc *model.Document) (dw.UpsertResult, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("starting transaction: %w", err)
	}
	defer tx.Rollback()

	holder, err := getDocument(ctx, tx, sq.Eq{"content_hash": doc.ContentHash, "archived": 0})
	if err != nil {
		return 0, err
	}
	if holder != nil && holder.Filename != doc.Filename {
		return 0, fmt.Errorf("%w: held by %s", dw.ErrDuplicateContent, holder.Filename)
	}

	current, err := getDocument(ctx, tx, sq.Eq{"filename": doc.Filename})
	if err != nil {
		return 0, err
	}

	var (
		q      sq.Sqlizer
		result dw.UpsertResult
	)
	switch {
	case current == nil:
		q = sq.Insert("documents").Columns(documentColumns...).Values(
			doc.Filename, doc.CommonName, doc.Summary, doc.Keyword, doc.Category, doc.FileSize,
			doc.ContentHash, doc.ThumbnailPath, doc.PreviewPath, 0, doc.DateAdded,
		)
		result = dw.UpsertCreated
	case documentsEqual(current, doc):
		return dw.UpsertUnchanged, nil
	default:
		q = sq.Update("documents").SetMap(map[string]any{
			"common_name":    doc.CommonName,
			"summary":        doc.Summary,
			"keyword":        doc.Keyword,
			"category":       doc.Category,
			"file_size":      doc.FileSize,
			"content_hash":   doc.ContentHash,
			"thumbnail_path": doc.ThumbnailPath,
			"preview_path":   doc.PreviewPath,
			"archived":       0,
			"date_added":     doc.DateAdded,
		}).Where(sq.Eq{"filename": doc.Filename})
		result = dw.UpsertUpdated
	}

	if err := execSqlizer(ctx, tx, q); err != nil {
		if isUniqueViolation(err) {
			return 0, fmt.Errorf("%w: %v", dw.ErrDuplicateContent, err)
		}
		return 0, fmt.Errorf("writing document: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("committing transaction: %w", err)
	}
	return result, nil
}

// documentsEqual compares the stored state of two documents.
// DateAdded is excluded: it records when a change happened, not what changed.
func documentsEqual(a, b *model.Document) bool {
	return a.Filename == b.Filename &&
		a.CommonName == b.CommonName &&
		a.Summary == b.Summary &&
		a.Keyword == b.Keyword &&
		a.Category == b.Category &&
		a.FileSize == b.FileSize &&
		a.ContentHash == b.ContentHash &&
		a.ThumbnailPath == b.ThumbnailPath &&
		a.PreviewPath == b.PreviewPath &&
		a.Archived == b.Archived
}

func (s *SQLiteCatalog) ArchiveDocument(ctx context.Context, filename string, at time.Time) error {
	q := sq.Update("documents").
		Set("archived", 1).
		Set("date_added", at).
		Where(sq.Eq{"filename": filename, "archived": 0})
	if err := execSqlizer(ctx, s.db, q); err != nil {
		return fmt.Errorf("archiving document: %w", err)
	}
	return nil
}

func (s *SQLiteCatalog) DeleteDocument(ctx context.Context, filename string) error {
	if err := execSqlizer(ctx, s.db, sq.Delete("documents").Where(sq.Eq{"filename": filename})); err != nil {
		return fmt.Errorf("deleting document: %w", err)
	}
	return nil
}

// Conflict operations

func (s *SQLiteCatalog) CreateConflict(ctx context.Context, c *model.Conflict) (*model.Conflict, error) {
	query, args, err := sq.Insert("conflicts").Columns(conflictColumns[1:len(conflictColumns)-1]...).Values(
		c.Kind, c.ExistingFilename, c.NewFilename, c.ExistingSummary, c.NewSummary,
		c.DiffSummary, c.Status, c.ActionTaken, c.DateAdded, c.NewCommonName,
		c.NewKeyword, c.NewCategory, c.NewContentHash, c.NewFileSize,
	).ToSql()
	if err != nil {
		return nil, fmt.Errorf("building query: %w", err)
	}

	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("inserting conflict: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("reading conflict id: %w", err)
	}

	created := *c
	created.ID = id
	return &created, nil
}

func (s *SQLiteCatalog) GetConflict(ctx context.Context, id int64) (*model.Conflict, error) {
	return getConflict(ctx, s.db, sq.Eq{"id": id})
}

func (s *SQLiteCatalog) FindPendingConflict(ctx context.Context, newFilename string) (*model.Conflict, error) {
	return getConflict(ctx, s.db, sq.Eq{"new_filename": newFilename, "status": model.ConflictPending})
}

func (s *SQLiteCatalog) ListConflicts(ctx context.Context, status model.ConflictStatus) ([]*model.Conflict, error) {
	query, args, err := sq.Select(conflictColumns...).From("conflicts").
		Where(sq.Eq{"status": status}).OrderBy("date_added", "id").ToSql()
	if err != nil {
		return nil, fmt.Errorf("building query: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing conflicts: %w", err)
	}
	defer rows.Close()

	var conflicts []*model.Conflict
	for rows.Next() {
		c, err := scanConflict(rows)
		if err != nil {
			return nil, err
		}
		conflicts = append(conflicts, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("listing conflicts: %w", err)
	}
	return conflicts, nil
}

func (s *SQLiteCatalog) CloseConflict(ctx context.Context, id int64, action model.ConflictAction, at time.Time, apply func() error) error {
	return s.inTx(ctx, func(tx *sql.Tx) error {
		if err := closePending(ctx, tx, id, action, at); err != nil {
			return err
		}
		if apply != nil {
			return apply()
		}
		return nil
	})
}

func (s *SQLiteCatalog) ApplyReplace(ctx context.Context, c *model.Conflict, at time.Time, apply func() error) error {
	return s.inTx(ctx, func(tx *sql.Tx) error {
		if err := closePending(ctx, tx, c.ID, model.ActionReplace, at); err != nil {
			return err
		}

		query, args, err := sq.Update("documents").SetMap(map[string]any{
			"common_name": c.NewCommonName,
			"summary":     c.NewSummary,
			"keyword":     c.NewKeyword,
			"category":    c.NewCategory,
			"date_added":  at,
		}).Where(sq.Eq{"filename": c.ExistingFilename, "archived": 0}).ToSql()
		if err != nil {
			return fmt.Errorf("building query: %w", err)
		}
		res, err := tx.ExecContext(ctx, query, args...)
		if err != nil {
			return fmt.Errorf("updating %s: %w", c.ExistingFilename, err)
		}
		if n, err := res.RowsAffected(); err != nil {
			return fmt.Errorf("updating %s: %w", c.ExistingFilename, err)
		} else if n == 0 {
			return fmt.Errorf("%w: %s", dw.ErrReplaceTargetMissing, c.ExistingFilename)
		}

		if apply != nil {
			return apply()
		}
		return nil
	})
}

// closePending flips a conflict from pending to resolved. Zero affected rows
// means it was already resolved or never existed.
func closePending(ctx context.Context, tx *sql.Tx, id int64, action model.ConflictAction, at time.Time) error {
	query, args, err := sq.Update("conflicts").
		Set("status", model.ConflictResolved).
		Set("action_taken", action).
		Set("resolved_at", at).
		Where(sq.Eq{"id": id, "status": model.ConflictPending}).ToSql()
	if err != nil {
		return fmt.Errorf("building query: %w", err)
	}

	res, err := tx.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("closing conflict: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("closing conflict: %w", err)
	}
	if n > 0 {
		return nil
	}

	existing, err := getConflict(ctx, tx, sq.Eq{"id": id})
	if err != nil {
		return err
	}
	if existing == nil {
		return dw.ErrConflictNotFound
	}
	return dw.ErrConflictNotPending
}

func (s *SQLiteCatalog) NameTaken(ctx context.Context, filename string) (bool, error) {
	var taken bool
	err := s.db.QueryRowContext(ctx, `
		SELECT EXISTS (SELECT 1 FROM documents WHERE filename = ?)
		    OR EXISTS (SELECT 1 FROM conflicts WHERE new_filename = ? OR existing_filename = ?)`,
		filename, filename, filename,
	).Scan(&taken)
	if err != nil {
		return false, fmt.Errorf("checking name %s: %w", filename, err)
	}
	return taken, nil
}

// Path returns the file path of the catalog, empty for wrapped connections.
func (s *SQLiteCatalog) Path() string {
	return s.path
}

// CheckMigrations verifies that the schema is at the latest version.
func (s *SQLiteCatalog) CheckMigrations() error {
	return migrations.CheckDBMigrationStatus(s.db)
}

// BackupTo writes a consistent copy of the catalog to destPath.
func (s *SQLiteCatalog) BackupTo(destPath string) error {
	if _, err := s.db.Exec("VACUUM INTO ?", destPath); err != nil {
		return fmt.Errorf("backing up catalog: %w", err)
	}
	return nil
}

// Close closes the database connection.
func (s *SQLiteCatalog) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

func (s *SQLiteCatalog) inTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("starting transaction: %w", err)
	}
	defer tx.Rollback()

	if err := fn(tx); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}
	return nil
}

func getDocument(ctx context.Context, q queryer, where sq.Eq) (*model.Document, error) {
	query, args, err := sq.Select(documentColumns...).From("documents").Where(where).Limit(1).ToSql()
	if err != nil {
		return nil, fmt.Errorf("building query: %w", err)
	}
	d, err := scanDocument(q.QueryRowContext(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return d, err
}

func getConflict(ctx context.Context, q queryer, where sq.Eq) (*model.Conflict, error) {
	query, args, err := sq.Select(conflictColumns...).From("conflicts").Where(where).Limit(1).ToSql()
	if err != nil {
		return nil, fmt.Errorf("building query: %w", err)
	}
	c, err := scanConflict(q.QueryRowContext(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return c, err
}

func scanDocument(r rowScanner) (*model.Document, error) {
	var d model.Document
	err := r.Scan(&d.Filename, &d.CommonName, &d.Summary, &d.Keyword, &d.Category, &d.FileSize,
		&d.ContentHash, &d.ThumbnailPath, &d.PreviewPath, &d.Archived, &d.DateAdded)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}
	if err != nil {
		return nil, fmt.Errorf("scanning document: %w", err)
	}
	return &d, nil
}

func scanConflict(r rowScanner) (*model.Conflict, error) {
	var (
		c          model.Conflict
		resolvedAt sql.NullTime
	)
	err := r.Scan(&c.ID, &c.Kind, &c.ExistingFilename, &c.NewFilename, &c.ExistingSummary,
		&c.NewSummary, &c.DiffSummary, &c.Status, &c.ActionTaken, &c.DateAdded,
		&c.NewCommonName, &c.NewKeyword, &c.NewCategory, &c.NewContentHash, &c.NewFileSize,
		&resolvedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}
	if err != nil {
		return nil, fmt.Errorf("scanning conflict: %w", err)
	}
	if resolvedAt.Valid {
		c.ResolvedAt = resolvedAt.Time
	}
	return &c, nil
}

func execSqlizer(ctx context.Context, q queryer, s sq.Sqlizer) error {
	query, args, err := s.ToSql()
	if err != nil {
		return fmt.Errorf("building query: %w", err)
	}
	_, err = q.ExecContext(ctx, query, args...)
	return err
}

func isUniqueViolation(err error) bool {
	var se sqlite3.Error
	return errors.As(err, &se) && se.ExtendedCode == sqlite3.ErrConstraintUnique
}

// Compile-time check that SQLiteCatalog implements dw.Catalog.
var _ dw.Catalog = (*SQLiteCatalog)(nil)
