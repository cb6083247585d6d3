package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"csync/internal/csync"
	"csync/internal/database/migrations"
	"csync/internal/database/sqlc"

	_ "github.com/mattn/go-sqlite3" // SQLite driver
)

// SQLiteDatabase is the record index. It lives in the content store's
// database file so content_files can cascade from content.
type SQLiteDatabase struct {
	db      *sql.DB
	queries *sqlc.Queries
	path    string
}

// NewSQLiteDatabase creates a new SQLite database connection.
// path can be a file path or ":memory:" for in-memory database.
func NewSQLiteDatabase(path string) (*SQLiteDatabase, error) {
	db, err := OpenConnection(path)
	if err != nil {
		return nil, err
	}

	return &SQLiteDatabase{
		db:      db,
		queries: sqlc.New(db),
		path:    path,
	}, nil
}

// NewSQLiteDatabaseFromDB wraps an existing database connection.
// The caller is responsible for ensuring the connection is properly configured.
func NewSQLiteDatabaseFromDB(db *sql.DB) *SQLiteDatabase {
	return &SQLiteDatabase{
		db:      db,
		queries: sqlc.New(db),
		path:    "",
	}
}

// OpenConnection opens and configures a SQLite database connection with appropriate PRAGMAs.
// This is exported for use in tools and tests that need a properly configured SQLite connection.
// path can be a file path or ":memory:" for in-memory database.
func OpenConnection(path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// One connection: PRAGMAs are per connection and each ":memory:"
	// connection is a separate database.
	db.SetMaxOpenConns(1)

	// Enable foreign key constraints (SQLite default is OFF for backward compatibility)
	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}
	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to set busy timeout: %w", err)
	}

	return db, nil
}

// DB returns the underlying connection, shared with the content store.
func (s *SQLiteDatabase) DB() *sql.DB {
	return s.db
}

// Content file operations

func toContentFile(row sqlc.ContentFile) csync.ContentFile {
	return csync.ContentFile{
		ID:        row.ID,
		Path:      row.Path,
		Mtime:     time.Unix(row.Mtime, 0).UTC(),
		ContentID: row.ContentID,
	}
}

func (s *SQLiteDatabase) ContentFileList(ctx context.Context) (*csync.FileList, error) {
	rows, err := s.queries.ListContentFiles(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing content files: %w", err)
	}
	files := make([]csync.ContentFile, len(rows))
	for i, row := range rows {
		files[i] = toContentFile(row)
	}
	return csync.NewFileList(files), nil
}

// FindContentFileByPath returns the row for path, or nil.
func (s *SQLiteDatabase) FindContentFileByPath(ctx context.Context, path string) (*csync.ContentFile, error) {
	row, err := s.queries.GetContentFileByPath(ctx, path)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil // Not found
		}
		return nil, fmt.Errorf("finding content file by path: %w", err)
	}
	cf := toContentFile(row)
	return &cf, nil
}

func (s *SQLiteDatabase) RegisterFileRename(ctx context.Context, oldPath, newPath string) error {
	n, err := s.queries.RenameContentFile(ctx, sqlc.RenameContentFileParams{
		NewPath: newPath,
		OldPath: oldPath,
	})
	if err != nil {
		return fmt.Errorf("renaming content file: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("renaming content file: no row at %s", oldPath)
	}
	return nil
}

// SaveContentFile validates cf, checks both uniqueness constraints and then
// inserts or updates it in one transaction.
func (s *SQLiteDatabase) SaveContentFile(ctx context.Context, cf *csync.ContentFile) error {
	if err := cf.Validate(); err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("starting transaction: %w", err)
	}
	defer tx.Rollback()

	qtx := s.queries.WithTx(tx)

	if ok, err := pathIsUnique(ctx, qtx, cf); err != nil {
		return err
	} else if !ok {
		return &csync.ValidationError{Field: "path", Reason: fmt.Sprintf("%s is already managed by another row", cf.Path)}
	}
	if ok, err := contentIDIsUnique(ctx, qtx, cf); err != nil {
		return err
	} else if !ok {
		return &csync.ValidationError{Field: "contentId", Reason: fmt.Sprintf("content %d is already managed by another row", cf.ContentID)}
	}

	if cf.Persisted() {
		err = qtx.UpdateContentFile(ctx, sqlc.UpdateContentFileParams{
			Path:      cf.Path,
			Mtime:     cf.Mtime.Unix(),
			ContentID: cf.ContentID,
			ID:        cf.ID,
		})
		if err != nil {
			return fmt.Errorf("updating content file: %w", err)
		}
	} else {
		row, err := qtx.InsertContentFile(ctx, sqlc.InsertContentFileParams{
			Path:      cf.Path,
			Mtime:     cf.Mtime.Unix(),
			ContentID: cf.ContentID,
		})
		if err != nil {
			return fmt.Errorf("inserting content file: %w", err)
		}
		cf.ID = row.ID
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}
	return nil
}

func (s *SQLiteDatabase) DeleteContentFile(ctx context.Context, cf *csync.ContentFile) error {
	if err := s.queries.DeleteContentFile(ctx, cf.ID); err != nil {
		return fmt.Errorf("deleting content file: %w", err)
	}
	return nil
}

func (s *SQLiteDatabase) PathIsUnique(ctx context.Context, cf *csync.ContentFile) (bool, error) {
	return pathIsUnique(ctx, s.queries, cf)
}

func (s *SQLiteDatabase) ContentIDIsUnique(ctx context.Context, cf *csync.ContentFile) (bool, error) {
	return contentIDIsUnique(ctx, s.queries, cf)
}

func pathIsUnique(ctx context.Context, q *sqlc.Queries, cf *csync.ContentFile) (bool, error) {
	n, err := q.CountOtherContentFilesWithPath(ctx, sqlc.CountOtherContentFilesWithPathParams{
		Path: cf.Path,
		ID:   cf.ID,
	})
	if err != nil {
		return false, fmt.Errorf("checking path uniqueness: %w", err)
	}
	return n == 0, nil
}

func contentIDIsUnique(ctx context.Context, q *sqlc.Queries, cf *csync.ContentFile) (bool, error) {
	n, err := q.CountOtherContentFilesWithContentID(ctx, sqlc.CountOtherContentFilesWithContentIDParams{
		ContentID: cf.ContentID,
		ID:        cf.ID,
	})
	if err != nil {
		return false, fmt.Errorf("checking content id uniqueness: %w", err)
	}
	return n == 0, nil
}

// Sync run tracking

func (s *SQLiteDatabase) CreateSyncRun(ctx context.Context, runUUID, operation, parameters string, startedAt time.Time) (*sqlc.SyncRun, error) {
	run, err := s.queries.InsertSyncRun(ctx, sqlc.InsertSyncRunParams{
		RunUuid:    runUUID,
		Operation:  operation,
		Parameters: parameters,
		StartedAt:  startedAt,
	})
	if err != nil {
		return nil, fmt.Errorf("creating sync run: %w", err)
	}
	return &run, nil
}

// FinishSyncRun records the outcome of a run. runErr may be empty.
func (s *SQLiteDatabase) FinishSyncRun(ctx context.Context, id int64, status string, counts csync.Counts, runErr string) error {
	err := s.queries.FinishSyncRun(ctx, sqlc.FinishSyncRunParams{
		Status:      status,
		FinishedAt:  sql.NullTime{Time: time.Now(), Valid: true},
		Created:     int64(counts.Created),
		Updated:     int64(counts.Updated),
		Renamed:     int64(counts.Renamed),
		WrittenBack: int64(counts.WrittenBack),
		Deleted:     int64(counts.Deleted),
		Skipped:     int64(counts.Skipped),
		Error:       runErr,
		ID:          id,
	})
	if err != nil {
		return fmt.Errorf("finishing sync run: %w", err)
	}
	return nil
}

func (s *SQLiteDatabase) ListSyncRuns(ctx context.Context, limit int) ([]*sqlc.SyncRun, error) {
	runs, err := s.queries.ListSyncRuns(ctx, int64(limit))
	if err != nil {
		return nil, fmt.Errorf("listing sync runs: %w", err)
	}

	result := make([]*sqlc.SyncRun, len(runs))
	for i := range runs {
		result[i] = &runs[i]
	}
	return result, nil
}

func (s *SQLiteDatabase) MaxSyncRunID(ctx context.Context) (int64, error) {
	id, err := s.queries.GetMaxSyncRunID(ctx)
	if err != nil {
		return 0, fmt.Errorf("getting max sync run ID: %w", err)
	}
	return id, nil
}

// Path returns the database file path (or ":memory:" for in-memory databases).
func (s *SQLiteDatabase) Path() string {
	return s.path
}

// VerifyEnvironment checks the content store tables. A database the CMS has
// not initialized fails with *csync.InadequateSchemaError.
func (s *SQLiteDatabase) VerifyEnvironment(ctx context.Context) error {
	var id int64
	err := s.db.QueryRowContext(ctx, `
		SELECT c.id
		FROM content c
		JOIN content_tags ct ON ct.content_id = c.id
		JOIN tags t ON t.id = ct.tag_id
		LIMIT 1`).Scan(&id)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return &csync.InadequateSchemaError{Err: err}
	}
	return nil
}

// CheckMigrations verifies the index schema is up-to-date.
func (s *SQLiteDatabase) CheckMigrations() error {
	return migrations.Index.CheckStatus(s.db)
}

// Migrate applies pending index migrations.
func (s *SQLiteDatabase) Migrate() error {
	return migrations.Index.Up(s.db)
}

// BackupTo creates a complete copy of the database at destPath using VACUUM INTO.
func (s *SQLiteDatabase) BackupTo(destPath string) error {
	_, err := s.db.Exec("VACUUM INTO ?", destPath)
	if err != nil {
		return fmt.Errorf("backing up database: %w", err)
	}
	return nil
}

// Close closes the database connection.
func (s *SQLiteDatabase) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// Compile-time check that SQLiteDatabase implements csync.Index
var _ csync.Index = (*SQLiteDatabase)(nil)
