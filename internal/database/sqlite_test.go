package database

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"

	"csync/internal/cms"
	"csync/internal/csync"
)

// newTestDB creates a new in-memory database with the content store and
// index schemas applied.
func newTestDB(t *testing.T) *SQLiteDatabase {
	t.Helper()

	db, err := NewSQLiteDatabase(":memory:")
	if err != nil {
		t.Fatalf("failed to create database: %v", err)
	}

	for _, schema := range []string{cms.Schema, Schema} {
		if _, err := db.db.Exec(schema); err != nil {
			db.Close()
			t.Fatalf("failed to apply schema: %v", err)
		}
	}

	t.Cleanup(func() {
		db.Close()
	})

	return db
}

// insertContent adds a bare content row and returns its id.
func insertContent(t *testing.T, db *SQLiteDatabase, address string) int64 {
	t.Helper()
	res, err := db.db.Exec(`
		INSERT INTO content (content_class, address, address_derived, created_at, updated_at)
		VALUES ('page', ?, 1, datetime('now'), datetime('now'))`, address)
	if err != nil {
		t.Fatalf("inserting content: %v", err)
	}
	id, _ := res.LastInsertId()
	return id
}

var testMtime = time.Date(2024, 1, 15, 10, 30, 0, 0, time.UTC)

func saveFile(t *testing.T, db *SQLiteDatabase, path string, contentID int64) *csync.ContentFile {
	t.Helper()
	cf := &csync.ContentFile{Path: path, ContentID: contentID}
	cf.SetMtime(testMtime)
	if err := db.SaveContentFile(context.Background(), cf); err != nil {
		t.Fatalf("SaveContentFile(%s) error = %v", path, err)
	}
	return cf
}

func TestSQLiteDatabase_FindContentFileByPath(t *testing.T) {
	ctx := context.Background()

	t.Run("returns nil when not found", func(t *testing.T) {
		db := newTestDB(t)

		cf, err := db.FindContentFileByPath(ctx, "/nowhere.md")
		if err != nil {
			t.Fatalf("FindContentFileByPath() error = %v", err)
		}
		if cf != nil {
			t.Errorf("FindContentFileByPath() = %+v, want nil", cf)
		}
	})

	t.Run("returns saved row", func(t *testing.T) {
		db := newTestDB(t)
		id := insertContent(t, db, "/a")
		saved := saveFile(t, db, "/a.md", id)

		cf, err := db.FindContentFileByPath(ctx, "/a.md")
		if err != nil {
			t.Fatalf("FindContentFileByPath() error = %v", err)
		}
		if cf == nil {
			t.Fatal("FindContentFileByPath() returned nil")
		}
		if cf.ID != saved.ID || cf.ContentID != id {
			t.Errorf("row = %+v, want id %d content %d", cf, saved.ID, id)
		}
		if !cf.Mtime.Equal(testMtime) {
			t.Errorf("Mtime = %v, want %v", cf.Mtime, testMtime)
		}
	})
}

func TestSQLiteDatabase_SaveContentFile(t *testing.T) {
	ctx := context.Background()

	t.Run("assigns an id on insert", func(t *testing.T) {
		db := newTestDB(t)
		cf := saveFile(t, db, "/a.md", insertContent(t, db, "/a"))
		if !cf.Persisted() {
			t.Error("row was not assigned an id")
		}
	})

	t.Run("updates mtime in place", func(t *testing.T) {
		db := newTestDB(t)
		cf := saveFile(t, db, "/a.md", insertContent(t, db, "/a"))
		id := cf.ID

		cf.SetMtime(testMtime.Add(time.Hour))
		if err := db.SaveContentFile(ctx, cf); err != nil {
			t.Fatalf("SaveContentFile() error = %v", err)
		}
		if cf.ID != id {
			t.Errorf("ID changed from %d to %d", id, cf.ID)
		}
		got, _ := db.FindContentFileByPath(ctx, "/a.md")
		if !got.Mtime.Equal(testMtime.Add(time.Hour)) {
			t.Errorf("Mtime = %v", got.Mtime)
		}
	})

	t.Run("rejects invalid rows", func(t *testing.T) {
		db := newTestDB(t)
		var verr *csync.ValidationError
		err := db.SaveContentFile(ctx, &csync.ContentFile{Path: "/a.md", ContentID: 1})
		if !errors.As(err, &verr) || verr.Field != "mtime" {
			t.Errorf("SaveContentFile() error = %v, want mtime ValidationError", err)
		}
	})

	t.Run("rejects a second row for the same path", func(t *testing.T) {
		db := newTestDB(t)
		saveFile(t, db, "/a.md", insertContent(t, db, "/a"))

		cf := &csync.ContentFile{Path: "/a.md", ContentID: insertContent(t, db, "/b")}
		cf.SetMtime(testMtime)
		var verr *csync.ValidationError
		if err := db.SaveContentFile(ctx, cf); !errors.As(err, &verr) || verr.Field != "path" {
			t.Errorf("SaveContentFile() error = %v, want path ValidationError", err)
		}
	})

	t.Run("rejects a second row for the same content", func(t *testing.T) {
		db := newTestDB(t)
		id := insertContent(t, db, "/a")
		saveFile(t, db, "/a.md", id)

		cf := &csync.ContentFile{Path: "/copy.md", ContentID: id}
		cf.SetMtime(testMtime)
		var verr *csync.ValidationError
		if err := db.SaveContentFile(ctx, cf); !errors.As(err, &verr) || verr.Field != "contentId" {
			t.Errorf("SaveContentFile() error = %v, want contentId ValidationError", err)
		}
	})

	t.Run("rejects unknown content", func(t *testing.T) {
		db := newTestDB(t)
		cf := &csync.ContentFile{Path: "/a.md", ContentID: 42}
		cf.SetMtime(testMtime)
		if err := db.SaveContentFile(ctx, cf); err == nil {
			t.Error("SaveContentFile() expected foreign key error")
		}
	})
}

func TestSQLiteDatabase_Uniqueness(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	id := insertContent(t, db, "/a")
	saved := saveFile(t, db, "/a.md", id)

	if ok, err := db.PathIsUnique(ctx, saved); err != nil || !ok {
		t.Errorf("PathIsUnique(self) = %v, %v, want true", ok, err)
	}
	if ok, err := db.ContentIDIsUnique(ctx, saved); err != nil || !ok {
		t.Errorf("ContentIDIsUnique(self) = %v, %v, want true", ok, err)
	}

	other := &csync.ContentFile{Path: "/a.md", ContentID: id}
	if ok, _ := db.PathIsUnique(ctx, other); ok {
		t.Error("PathIsUnique() = true for a taken path")
	}
	if ok, _ := db.ContentIDIsUnique(ctx, other); ok {
		t.Error("ContentIDIsUnique() = true for managed content")
	}
}

func TestSQLiteDatabase_RegisterFileRename(t *testing.T) {
	ctx := context.Background()

	t.Run("moves the row", func(t *testing.T) {
		db := newTestDB(t)
		saved := saveFile(t, db, "/a.md", insertContent(t, db, "/a"))

		if err := db.RegisterFileRename(ctx, "/a.md", "/posts/b.md"); err != nil {
			t.Fatalf("RegisterFileRename() error = %v", err)
		}
		if old, _ := db.FindContentFileByPath(ctx, "/a.md"); old != nil {
			t.Error("old path still indexed")
		}
		moved, _ := db.FindContentFileByPath(ctx, "/posts/b.md")
		if moved == nil || moved.ID != saved.ID {
			t.Errorf("moved row = %+v, want id %d", moved, saved.ID)
		}
	})

	t.Run("fails for unknown path", func(t *testing.T) {
		db := newTestDB(t)
		if err := db.RegisterFileRename(ctx, "/missing.md", "/b.md"); err == nil {
			t.Error("RegisterFileRename() expected error")
		}
	})
}

func TestSQLiteDatabase_ContentFileList(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	saveFile(t, db, "/b.md", insertContent(t, db, "/b"))
	saveFile(t, db, "/a.md", insertContent(t, db, "/a"))

	list, err := db.ContentFileList(ctx)
	if err != nil {
		t.Fatalf("ContentFileList() error = %v", err)
	}
	if list.Len() != 2 {
		t.Fatalf("Len() = %d, want 2", list.Len())
	}
	if list.ByPath("/a.md") == nil || list.ByPath("/b.md") == nil {
		t.Error("list is missing a path")
	}
}

func TestSQLiteDatabase_DeleteContentFile(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	id := insertContent(t, db, "/a")
	cf := saveFile(t, db, "/a.md", id)

	if err := db.DeleteContentFile(ctx, cf); err != nil {
		t.Fatalf("DeleteContentFile() error = %v", err)
	}
	if got, _ := db.FindContentFileByPath(ctx, "/a.md"); got != nil {
		t.Error("row still exists")
	}

	var n int
	db.db.QueryRow(`SELECT COUNT(*) FROM content WHERE id = ?`, id).Scan(&n)
	if n != 1 {
		t.Error("deleting the row removed its content")
	}
}

func TestSQLiteDatabase_CascadeFromContent(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	id := insertContent(t, db, "/a")
	saveFile(t, db, "/a.md", id)

	if _, err := db.db.Exec(`DELETE FROM content WHERE id = ?`, id); err != nil {
		t.Fatalf("deleting content: %v", err)
	}
	if got, _ := db.FindContentFileByPath(ctx, "/a.md"); got != nil {
		t.Error("content_files row survived its content")
	}
}

func TestSQLiteDatabase_SyncRuns(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)

	maxID, err := db.MaxSyncRunID(ctx)
	if err != nil {
		t.Fatalf("MaxSyncRunID() error = %v", err)
	}
	if maxID != 0 {
		t.Errorf("MaxSyncRunID() = %d, want 0", maxID)
	}

	first, err := db.CreateSyncRun(ctx, uuid.NewString(), "sync", "", testMtime)
	if err != nil {
		t.Fatalf("CreateSyncRun() error = %v", err)
	}
	if first.Status != "running" {
		t.Errorf("Status = %q, want running", first.Status)
	}
	second, err := db.CreateSyncRun(ctx, uuid.NewString(), "sync", "file_to_db_only", testMtime.Add(time.Minute))
	if err != nil {
		t.Fatalf("CreateSyncRun() error = %v", err)
	}

	counts := csync.Counts{Created: 2, Updated: 1, Deleted: 1}
	if err := db.FinishSyncRun(ctx, first.ID, "success", counts, ""); err != nil {
		t.Fatalf("FinishSyncRun() error = %v", err)
	}
	if err := db.FinishSyncRun(ctx, second.ID, "error", csync.Counts{}, "boom"); err != nil {
		t.Fatalf("FinishSyncRun() error = %v", err)
	}

	runs, err := db.ListSyncRuns(ctx, 10)
	if err != nil {
		t.Fatalf("ListSyncRuns() error = %v", err)
	}
	if len(runs) != 2 {
		t.Fatalf("len(runs) = %d, want 2", len(runs))
	}
	if runs[0].ID != second.ID {
		t.Errorf("runs[0] = %d, want newest run %d first", runs[0].ID, second.ID)
	}
	if runs[0].Status != "error" || runs[0].Error != "boom" {
		t.Errorf("runs[0] = %+v", runs[0])
	}
	if runs[1].Created != 2 || runs[1].Updated != 1 || runs[1].Deleted != 1 {
		t.Errorf("runs[1] counts = %+v", runs[1])
	}
	if !runs[1].FinishedAt.Valid {
		t.Error("FinishedAt not set")
	}

	if err := db.FinishSyncRun(ctx, first.ID, "done", counts, ""); err == nil {
		t.Error("FinishSyncRun() expected error for invalid status")
	}

	maxID, _ = db.MaxSyncRunID(ctx)
	if maxID != second.ID {
		t.Errorf("MaxSyncRunID() = %d, want %d", maxID, second.ID)
	}
}

func TestSQLiteDatabase_VerifyEnvironment(t *testing.T) {
	ctx := context.Background()

	t.Run("accepts a content store schema", func(t *testing.T) {
		db := newTestDB(t)
		if err := db.VerifyEnvironment(ctx); err != nil {
			t.Errorf("VerifyEnvironment() error = %v", err)
		}
	})

	t.Run("rejects a bare database", func(t *testing.T) {
		db, err := NewSQLiteDatabase(":memory:")
		if err != nil {
			t.Fatalf("NewSQLiteDatabase() error = %v", err)
		}
		defer db.Close()

		var schemaErr *csync.InadequateSchemaError
		if err := db.VerifyEnvironment(ctx); !errors.As(err, &schemaErr) {
			t.Errorf("VerifyEnvironment() error = %v, want InadequateSchemaError", err)
		}
	})
}

func TestSQLiteDatabase_BackupTo(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	saveFile(t, db, "/a.md", insertContent(t, db, "/a"))

	destPath := filepath.Join(t.TempDir(), "backup.db")
	if err := db.BackupTo(destPath); err != nil {
		t.Fatalf("BackupTo() error = %v", err)
	}

	// Open the backup and verify it has the data
	backup, err := NewSQLiteDatabase(destPath)
	if err != nil {
		t.Fatalf("opening backup: %v", err)
	}
	defer backup.Close()

	cf, err := backup.FindContentFileByPath(ctx, "/a.md")
	if err != nil {
		t.Fatalf("FindContentFileByPath() error = %v", err)
	}
	if cf == nil {
		t.Error("backup does not contain the content file")
	}
}

func TestSQLiteDatabase_CheckMigrations(t *testing.T) {
	t.Run("fails on DB without migrations applied", func(t *testing.T) {
		db, err := NewSQLiteDatabase(":memory:")
		if err != nil {
			t.Fatalf("NewSQLiteDatabase() error = %v", err)
		}
		defer db.Close()

		if err := db.CheckMigrations(); err == nil {
			t.Error("CheckMigrations() expected error for missing schema")
		}
	})

	t.Run("passes after Migrate", func(t *testing.T) {
		db, err := NewSQLiteDatabase(":memory:")
		if err != nil {
			t.Fatalf("NewSQLiteDatabase() error = %v", err)
		}
		defer db.Close()

		if err := cms.Migrations.Up(db.DB()); err != nil {
			t.Fatalf("cms migrations: %v", err)
		}
		if err := db.Migrate(); err != nil {
			t.Fatalf("Migrate() error = %v", err)
		}
		if err := db.CheckMigrations(); err != nil {
			t.Errorf("CheckMigrations() error = %v", err)
		}
	})
}
