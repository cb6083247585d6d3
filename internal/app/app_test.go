package app

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"csync/internal/config"
	"csync/internal/csync"
	"csync/internal/database"
)

func init() {
	logOutput = io.Discard
}

// newTestConfig returns a config with an in-memory database and a temp
// content directory.
func newTestConfig(t *testing.T) *config.Config {
	t.Helper()
	dir := t.TempDir()
	contentDir := filepath.Join(dir, "content")
	if err := os.MkdirAll(contentDir, 0755); err != nil {
		t.Fatal(err)
	}
	cfg := config.NewConfig("test-instance", filepath.Join(dir, "base"), contentDir)
	cfg.Database = config.DatabaseConfig{Type: "memory"}
	return cfg
}

func newTestApp(t *testing.T, cfg *config.Config, operation string) *CSyncApp {
	t.Helper()
	a, err := NewCSyncApp(context.Background(), cfg, operation)
	if err != nil {
		t.Fatalf("NewCSyncApp() error = %v", err)
	}
	return a
}

func writeContent(t *testing.T, cfg *config.Config, name, data string) string {
	t.Helper()
	path := filepath.Join(cfg.ContentDir, name)
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(data), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestNewCSyncApp_ContentDir(t *testing.T) {
	t.Run("missing", func(t *testing.T) {
		cfg := newTestConfig(t)
		cfg.ContentDir = filepath.Join(cfg.BaseDir, "nope")
		if _, err := NewCSyncApp(context.Background(), cfg, OpSync); err == nil {
			t.Fatal("NewCSyncApp() expected error for missing content dir")
		}
	})

	t.Run("not a directory", func(t *testing.T) {
		cfg := newTestConfig(t)
		file := writeContent(t, cfg, "file.md", "x")
		cfg.ContentDir = file
		if _, err := NewCSyncApp(context.Background(), cfg, OpSync); err == nil {
			t.Fatal("NewCSyncApp() expected error for file content dir")
		}
	})
}

func TestCSyncApp_Sync(t *testing.T) {
	ctx := context.Background()
	cfg := newTestConfig(t)
	writeContent(t, cfg, "hello.md", "title: Hello\ncontentClass: post\ntags: go\n\nBody")

	a := newTestApp(t, cfg, OpSync)
	defer a.Close()

	var processed []string
	a.Hooks().On(csync.EventAfterProcessFile, func(ev csync.Event) error {
		processed = append(processed, ev.Path)
		return nil
	})

	report, err := a.Sync(ctx, csync.DefaultSyncOptions())
	if err != nil {
		t.Fatalf("Sync() error = %v", err)
	}
	if report.Counts.Created != 1 {
		t.Errorf("Counts.Created = %d, want 1", report.Counts.Created)
	}
	if len(processed) != 1 || processed[0] != "/hello.md" {
		t.Errorf("processed = %v, want [/hello.md]", processed)
	}

	report, err = a.Sync(ctx, csync.DefaultSyncOptions())
	if err != nil {
		t.Fatalf("second Sync() error = %v", err)
	}
	if report.Counts.Unchanged != 1 || report.Counts.Mutated() {
		t.Errorf("second pass counts = %+v, want one unchanged", report.Counts)
	}

	runs, err := a.History(ctx, 10)
	if err != nil {
		t.Fatalf("History() error = %v", err)
	}
	if len(runs) != 2 {
		t.Fatalf("len(History()) = %d, want 2", len(runs))
	}
	for _, run := range runs {
		if run.Status != RunSuccess {
			t.Errorf("run %d status = %q, want %q", run.ID, run.Status, RunSuccess)
		}
		if run.Operation != OpSync {
			t.Errorf("run %d operation = %q, want %q", run.ID, run.Operation, OpSync)
		}
	}

	entries, err := a.List(ctx)
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("len(List()) = %d, want 1", len(entries))
	}
	got := entries[0]
	if got.Path != "/hello.md" || got.Class != "post" || got.Address != "/hello" {
		t.Errorf("List()[0] = %+v", got)
	}
}

func TestCSyncApp_SyncRecordsFailedRun(t *testing.T) {
	ctx := context.Background()
	cfg := newTestConfig(t)
	writeContent(t, cfg, "bad.md", "title Hello\ncontentClass: post\n\nbody")

	a := newTestApp(t, cfg, OpSync)
	defer a.Close()

	if _, err := a.Sync(ctx, csync.DefaultSyncOptions()); err == nil {
		t.Fatal("Sync() expected error for malformed file")
	}

	runs, err := a.History(ctx, 10)
	if err != nil {
		t.Fatalf("History() error = %v", err)
	}
	if len(runs) != 1 || runs[0].Status != RunError {
		t.Fatalf("History() = %+v, want one failed run", runs)
	}
	if runs[0].Error == "" {
		t.Error("failed run has no error text")
	}
}

func TestCSyncApp_SkipMalformed(t *testing.T) {
	cfg := newTestConfig(t)
	cfg.Sync.SkipMalformed = true
	writeContent(t, cfg, "bad.md", "title Hello\ncontentClass: post\n\nbody")
	writeContent(t, cfg, "good.md", "title: Good\ncontentClass: page\n\n")

	a := newTestApp(t, cfg, OpSync)
	defer a.Close()

	report, err := a.Sync(context.Background(), csync.DefaultSyncOptions())
	if err != nil {
		t.Fatalf("Sync() error = %v", err)
	}
	if report.Counts.Skipped != 1 || report.Counts.Created != 1 {
		t.Errorf("Counts = %+v, want one skipped and one created", report.Counts)
	}
}

func TestCSyncApp_Status(t *testing.T) {
	ctx := context.Background()
	cfg := newTestConfig(t)
	writeContent(t, cfg, "a.md", "title: A\ncontentClass: page\n\n")

	a := newTestApp(t, cfg, OpStatus)
	defer a.Close()

	plan, err := a.Status(ctx)
	if err != nil {
		t.Fatalf("Status() error = %v", err)
	}
	if len(plan.Entries) != 1 || plan.Entries[0].State != csync.PlanNew {
		t.Fatalf("Status() entries = %+v, want one new", plan.Entries)
	}

	// Status never writes.
	entries, err := a.List(ctx)
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(entries) != 0 {
		t.Errorf("List() after Status() = %+v, want empty", entries)
	}
}

func TestCSyncApp_Parse(t *testing.T) {
	cfg := newTestConfig(t)
	path := writeContent(t, cfg, "blog/post.md", "title: First Post\ncontentClass: post\ntags: a, b\n\nHi")

	a := newTestApp(t, cfg, OpParse)
	defer a.Close()

	c, err := a.Parse(path)
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if c.Class() != "post" {
		t.Errorf("Class() = %q, want post", c.Class())
	}
	if names := csync.TagNames(c.Tags()); strings.Join(names, ",") != "a,b" {
		t.Errorf("tags = %v, want [a b]", names)
	}
	if c.ID() != 0 {
		t.Errorf("ID() = %d, want unsaved record", c.ID())
	}

	outside := filepath.Join(cfg.BaseDir, "elsewhere.md")
	if _, err := a.Parse(outside); !errors.Is(err, csync.ErrNotTracked) {
		t.Errorf("Parse(outside) error = %v, want ErrNotTracked", err)
	}
}

func TestCSyncApp_Lock(t *testing.T) {
	cfg := newTestConfig(t)

	first := newTestApp(t, cfg, OpSync)
	if _, err := first.Sync(context.Background(), csync.DefaultSyncOptions()); err != nil {
		t.Fatalf("Sync() error = %v", err)
	}

	second := newTestApp(t, cfg, OpSync)
	defer second.Close()
	if _, err := second.Sync(context.Background(), csync.DefaultSyncOptions()); !errors.Is(err, ErrLocked) {
		t.Fatalf("concurrent Sync() error = %v, want ErrLocked", err)
	}

	if err := first.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if _, err := second.Sync(context.Background(), csync.DefaultSyncOptions()); err != nil {
		t.Fatalf("Sync() after release error = %v", err)
	}
}

func TestCSyncApp_SnapshotOnClose(t *testing.T) {
	ctx := context.Background()
	cfg := newTestConfig(t)
	cfg.Snapshot.Type = "filesystem"
	cfg.Snapshot.FSRoot = filepath.Join(cfg.BaseDir, "snapshots")
	writeContent(t, cfg, "a.md", "title: A\ncontentClass: page\n\n")

	a := newTestApp(t, cfg, OpSync)
	if _, err := a.Sync(ctx, csync.DefaultSyncOptions()); err != nil {
		t.Fatalf("Sync() error = %v", err)
	}
	if err := a.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	version, err := os.ReadFile(filepath.Join(cfg.Snapshot.FSRoot, cfg.InstanceID+".version"))
	if err != nil {
		t.Fatalf("reading snapshot version: %v", err)
	}
	if strings.TrimSpace(string(version)) != "1" {
		t.Errorf("snapshot version = %q, want 1", version)
	}

	dest := filepath.Join(t.TempDir(), "restored.db")
	if err := RestoreSnapshot(ctx, cfg, dest, ""); err != nil {
		t.Fatalf("RestoreSnapshot() error = %v", err)
	}
	// Restoring never overwrites.
	if err := RestoreSnapshot(ctx, cfg, dest, ""); err == nil {
		t.Error("RestoreSnapshot() onto existing file expected error")
	}

	restored, err := database.NewSQLiteDatabase(dest)
	if err != nil {
		t.Fatalf("opening restored db: %v", err)
	}
	defer restored.Close()
	list, err := restored.ContentFileList(ctx)
	if err != nil {
		t.Fatalf("ContentFileList() error = %v", err)
	}
	if list.Len() != 1 || list.ByPath("/a.md") == nil {
		t.Errorf("restored paths = %v, want [/a.md]", list.Paths())
	}
}

func TestCSyncApp_NoSnapshotWithoutChanges(t *testing.T) {
	cfg := newTestConfig(t)
	cfg.Snapshot.Type = "filesystem"
	cfg.Snapshot.FSRoot = filepath.Join(cfg.BaseDir, "snapshots")

	a := newTestApp(t, cfg, OpSync)
	if _, err := a.Sync(context.Background(), csync.DefaultSyncOptions()); err != nil {
		t.Fatalf("Sync() error = %v", err)
	}
	if err := a.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	if _, err := os.Stat(filepath.Join(cfg.Snapshot.FSRoot, cfg.InstanceID+".db")); !os.IsNotExist(err) {
		t.Errorf("snapshot written for a run with no changes (stat err = %v)", err)
	}
}

func TestNewCSyncApp_BehindSnapshot(t *testing.T) {
	cfg := newTestConfig(t)
	cfg.Snapshot.Type = "filesystem"
	cfg.Snapshot.FSRoot = filepath.Join(cfg.BaseDir, "snapshots")
	if err := os.MkdirAll(cfg.Snapshot.FSRoot, 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(cfg.Snapshot.FSRoot, cfg.InstanceID+".version"), []byte("5"), 0644); err != nil {
		t.Fatal(err)
	}

	_, err := NewCSyncApp(context.Background(), cfg, OpSync)
	if err == nil || !strings.Contains(err.Error(), "behind") {
		t.Fatalf("NewCSyncApp() error = %v, want local database behind snapshot", err)
	}
}

func TestMigrate(t *testing.T) {
	cfg := newTestConfig(t)
	cfg.Database = config.DatabaseConfig{Type: "sqlite", DataDir: filepath.Join(cfg.BaseDir, "db")}

	if _, err := NewCSyncApp(context.Background(), cfg, OpSync); err == nil {
		t.Fatal("NewCSyncApp() on an empty database expected error")
	}

	if err := Migrate(cfg, false); err == nil {
		t.Fatal("Migrate() without CMS tables expected error")
	}
	if err := Migrate(cfg, true); err != nil {
		t.Fatalf("Migrate(withCMS) error = %v", err)
	}

	a := newTestApp(t, cfg, OpSync)
	if err := a.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
}

func TestKeygen(t *testing.T) {
	cfg := newTestConfig(t)

	if err := Keygen(cfg, "secret"); err != nil {
		t.Fatalf("Keygen() error = %v", err)
	}
	if err := Keygen(cfg, "secret"); err == nil {
		t.Error("second Keygen() expected error")
	}
}
