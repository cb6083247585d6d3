package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"csync/internal/cms"
	"csync/internal/config"
	"csync/internal/content"
	"csync/internal/csync"
	"csync/internal/database"
	"csync/internal/database/sqlc"
	"csync/internal/fs"
	"csync/internal/snapshot"
	"csync/internal/watch"
)

// Operation names recorded in sync_runs.
const (
	OpSync    = "sync"
	OpStatus  = "status"
	OpWatch   = "watch"
	OpParse   = "parse"
	OpHistory = "history"
	OpList    = "list"
)

// logOutput receives log lines in addition to the log file.
var logOutput io.Writer = os.Stderr

// CSyncApp is the application layer between the CLI and the Synchronizer.
// It builds every dependency from config. Close uploads a database snapshot
// when a run changed something.
type CSyncApp struct {
	cfg       *config.Config
	root      string
	db        *database.SQLiteDatabase
	store     *cms.Store
	ignore    *fs.IgnoreMatcher
	sync      *csync.Synchronizer
	snapshots csync.SnapshotStore
	lock      *RunLock
	ids       csync.IDGenerator
	operation string

	logger    *slog.Logger
	logCloser io.Closer

	lastRunID int64
	mutated   bool
}

// NewCSyncApp creates a fully wired CSyncApp from the given config.
// operation identifies the CLI command being run (e.g. "sync", "watch").
// The caller must call Close when done.
func NewCSyncApp(ctx context.Context, cfg *config.Config, operation string) (*CSyncApp, error) {
	if cfg.ContentDir == "" {
		return nil, fmt.Errorf("content_dir is not configured")
	}
	root, err := filepath.Abs(cfg.ContentDir)
	if err != nil {
		return nil, fmt.Errorf("resolving content_dir: %w", err)
	}
	info, err := os.Stat(root)
	if err != nil {
		return nil, fmt.Errorf("content directory not accessible: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("content_dir is not a directory: %s", root)
	}

	runID := time.Now().UTC().Format("20060102T150405Z")
	logger, logCloser, err := newLogger(cfg.LogDir, cfg.Log, runID, logOutput)
	if err != nil {
		return nil, fmt.Errorf("creating logger: %w", err)
	}
	adapter := &slogAdapter{l: logger}

	db, err := database.NewDatabaseFromConfig(cfg.Database, cfg.InstanceID)
	if err != nil {
		logCloser.Close()
		return nil, fmt.Errorf("opening database: %w", err)
	}
	fail := func(err error) (*CSyncApp, error) {
		db.Close()
		logCloser.Close()
		return nil, err
	}

	// A fresh in-memory database has no schema yet.
	if cfg.Database.Type == "memory" {
		if err := migrate(db, true); err != nil {
			return fail(err)
		}
	}
	if err := db.VerifyEnvironment(ctx); err != nil {
		return fail(err)
	}
	if err := db.CheckMigrations(); err != nil {
		return fail(fmt.Errorf("database schema out of date (run csync migrate): %w", err))
	}

	ignore, err := fs.LoadIgnoreMatcher(root, cfg.Filesystem.Ignore)
	if err != nil {
		return fail(err)
	}
	osfs := fs.NewOSFilesystemManager(ignore)
	var fsmgr csync.FilesystemManager = osfs
	if operation == OpStatus || operation == OpWatch {
		cached, err := fs.NewCachedReader(osfs, fs.DefaultCacheSize)
		if err != nil {
			return fail(err)
		}
		fsmgr = cached
	}

	snapshots, err := snapshot.NewStoreFromConfig(ctx, cfg.Snapshot)
	if err != nil {
		return fail(fmt.Errorf("creating snapshot store: %w", err))
	}
	if snapshots != nil {
		// Check local DB version against the remote snapshot version.
		remoteVersion, err := snapshots.Version(ctx, cfg.InstanceID)
		if err != nil {
			return fail(fmt.Errorf("checking remote snapshot version: %w", err))
		}
		localMax, err := db.MaxSyncRunID(ctx)
		if err != nil {
			return fail(fmt.Errorf("checking local database version: %w", err))
		}
		if remoteVersion > localMax {
			return fail(fmt.Errorf("local database is behind its snapshot (local=%d, remote=%d): restore it with csync snapshot restore", localMax, remoteVersion))
		}
	}

	store := cms.NewStore(db.DB(), content.Registry())
	hooks := csync.NewHooks()
	hooks.On(csync.EventAfterProcessFile, func(ev csync.Event) error {
		if ev.Action != csync.ActionUnchanged {
			logger.Info("processed file", "path", ev.Path, "action", string(ev.Action), "content_id", ev.ContentID)
		}
		return nil
	})

	s, err := csync.NewSynchronizer(csync.Options{
		Root:          root,
		Store:         store,
		Index:         db,
		FS:            fsmgr,
		Hooks:         hooks,
		Logger:        adapter,
		Clock:         csync.RealClock{},
		SkipMalformed: cfg.Sync.SkipMalformed,
	})
	if err != nil {
		return fail(fmt.Errorf("creating synchronizer: %w", err))
	}

	return &CSyncApp{
		cfg:       cfg,
		root:      root,
		db:        db,
		store:     store,
		ignore:    ignore,
		sync:      s,
		snapshots: snapshots,
		lock:      NewRunLock(cfg.BaseDir),
		ids:       csync.UUIDGenerator{},
		operation: operation,
		logger:    logger,
		logCloser: logCloser,
	}, nil
}

// Hooks returns the synchronizer's hook registry so callers can observe a run.
func (a *CSyncApp) Hooks() *csync.Hooks {
	return a.sync.Hooks()
}

// Sync runs one reconciliation pass under the run lock and records it in
// sync_runs. The lock is held until Close.
func (a *CSyncApp) Sync(ctx context.Context, opts csync.SyncOptions) (*csync.SyncReport, error) {
	if err := a.lock.Acquire(); err != nil {
		return nil, err
	}

	run := NewSyncRun(a.operation, opts, a.cfg.Sync.SkipMalformed, a.ids)
	rec, err := a.db.CreateSyncRun(ctx, run.UUID, run.Operation, run.Parameters, time.Now().UTC())
	if err != nil {
		return nil, err
	}
	run.ID = rec.ID

	report, syncErr := a.sync.SyncContent(ctx, opts)
	run.Finish(report, syncErr)

	// A cancelled pass still gets its outcome stored.
	if err := a.db.FinishSyncRun(context.WithoutCancel(ctx), run.ID, run.Status, run.Counts, run.ErrorText()); err != nil {
		return report, errors.Join(syncErr, err)
	}
	a.lastRunID = run.ID
	if run.Counts.Mutated() {
		a.mutated = true
	}

	a.logger.Info("sync finished",
		"run", run.ID,
		"status", run.Status,
		"created", run.Counts.Created,
		"updated", run.Counts.Updated,
		"renamed", run.Counts.Renamed,
		"written_back", run.Counts.WrittenBack,
		"deleted", run.Counts.Deleted,
		"skipped", run.Counts.Skipped,
	)
	return report, syncErr
}

// Status predicts what Sync would do without changing anything.
func (a *CSyncApp) Status(ctx context.Context) (*csync.Plan, error) {
	list, err := a.db.ContentFileList(ctx)
	if err != nil {
		return nil, err
	}
	return a.sync.Plan(ctx, list)
}

// Parse builds the record the file at rawPath describes without saving it.
// rawPath must lie under the content root.
func (a *CSyncApp) Parse(rawPath string) (csync.Content, error) {
	absPath, err := filepath.Abs(rawPath)
	if err != nil {
		return nil, fmt.Errorf("resolving path: %w", err)
	}
	norm := a.sync.Normalizer()
	if !norm.Contains(absPath) {
		return nil, fmt.Errorf("%s: %w", absPath, csync.ErrNotTracked)
	}
	return a.sync.PreviewFile(norm.ToDBPath(absPath))
}

// History returns the most recent sync runs.
func (a *CSyncApp) History(ctx context.Context, limit int) ([]*sqlc.SyncRun, error) {
	return a.db.ListSyncRuns(ctx, limit)
}

// ListEntry is one managed file and the record it manages.
type ListEntry struct {
	Path      string
	Mtime     time.Time
	ContentID int64
	Class     string
	Address   string
}

// List returns every indexed file with its record, in path order.
func (a *CSyncApp) List(ctx context.Context) ([]ListEntry, error) {
	list, err := a.db.ContentFileList(ctx)
	if err != nil {
		return nil, err
	}

	var out []ListEntry
	for cf := range list.All() {
		e := ListEntry{Path: cf.Path, Mtime: cf.Mtime, ContentID: cf.ContentID}
		c, err := a.store.ContentByID(ctx, cf.ContentID)
		if err != nil {
			return nil, err
		}
		if c != nil {
			e.Class = c.Class()
			e.Address = csync.Address(c)
		}
		out = append(out, e)
	}
	return out, nil
}

// Watch syncs once, then again after every debounced burst of changes under
// the content root, until ctx is done.
func (a *CSyncApp) Watch(ctx context.Context, opts csync.SyncOptions) error {
	if err := a.lock.Acquire(); err != nil {
		return err
	}
	debounce, err := a.cfg.Watch.DebounceDuration()
	if err != nil {
		return err
	}

	adapter := &slogAdapter{l: a.logger}
	w, err := watch.NewWatcher(a.root, a.ignore, debounce, adapter)
	if err != nil {
		return err
	}
	defer w.Close()

	a.logger.Info("watching", "root", a.root, "debounce", debounce.String())
	runner := watch.NewRunner(w, func(ctx context.Context) error {
		_, err := a.Sync(ctx, opts)
		return err
	}, adapter)
	return runner.Run(ctx)
}

// Close uploads a database snapshot if any run changed something, then
// closes all resources.
func (a *CSyncApp) Close() error {
	var firstErr error

	if a.mutated && a.snapshots != nil {
		if err := a.uploadSnapshot(context.Background()); err != nil {
			firstErr = err
		}
	}

	if err := a.db.Close(); err != nil && firstErr == nil {
		firstErr = fmt.Errorf("closing database: %w", err)
	}
	if err := a.lock.Release(); err != nil && firstErr == nil {
		firstErr = fmt.Errorf("releasing run lock: %w", err)
	}
	if a.logCloser != nil {
		a.logCloser.Close()
	}
	return firstErr
}

// uploadSnapshot copies the database to a temp file and uploads it with
// version = the last sync run id.
func (a *CSyncApp) uploadSnapshot(ctx context.Context) error {
	tmpFile, err := os.CreateTemp("", "csync-db-snapshot-*.db")
	if err != nil {
		return fmt.Errorf("creating temp file for db snapshot: %w", err)
	}
	tmpPath := tmpFile.Name()
	tmpFile.Close()
	defer os.Remove(tmpPath)

	if err := a.db.BackupTo(tmpPath); err != nil {
		return err
	}

	f, err := os.Open(tmpPath)
	if err != nil {
		return fmt.Errorf("opening db snapshot for upload: %w", err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return fmt.Errorf("stat db snapshot: %w", err)
	}

	if err := a.snapshots.Put(ctx, a.cfg.InstanceID, f, info.Size(), a.lastRunID); err != nil {
		return fmt.Errorf("uploading db snapshot: %w", err)
	}
	a.logger.Info("uploaded db snapshot", "version", a.lastRunID, "bytes", info.Size())
	return nil
}

// Migrate applies the index migrations, and the content store migrations
// first when withCMS is set. Without them the database must already hold
// the CMS tables.
func Migrate(cfg *config.Config, withCMS bool) error {
	db, err := database.NewDatabaseFromConfig(cfg.Database, cfg.InstanceID)
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer db.Close()

	if err := migrate(db, withCMS); err != nil {
		return err
	}
	return db.VerifyEnvironment(context.Background())
}

func migrate(db *database.SQLiteDatabase, withCMS bool) error {
	if withCMS {
		if err := cms.Migrations.Up(db.DB()); err != nil {
			return err
		}
	}
	return db.Migrate()
}

// Keygen creates the snapshot key pair named in the config. Existing keys
// are never overwritten.
func Keygen(cfg *config.Config, passphrase string) error {
	sealer := snapshot.NewAgeSealer(nil, cfg.Snapshot.PublicKeyPath, cfg.Snapshot.PrivateKeyPath)
	if sealer.IsConfigured() {
		return fmt.Errorf("snapshot keys already exist at %s", filepath.Dir(cfg.Snapshot.PrivateKeyPath))
	}
	return snapshot.Keygen(cfg.Snapshot.PublicKeyPath, cfg.Snapshot.PrivateKeyPath, passphrase)
}

// RestoreSnapshot downloads the instance's latest snapshot to dest, which
// must not exist. passphrase unlocks encrypted snapshots and is ignored
// otherwise.
func RestoreSnapshot(ctx context.Context, cfg *config.Config, dest, passphrase string) error {
	store, err := snapshot.NewStoreFromConfig(ctx, cfg.Snapshot)
	if err != nil {
		return fmt.Errorf("creating snapshot store: %w", err)
	}
	if store == nil {
		return fmt.Errorf("snapshots are not configured")
	}
	if sealer, ok := store.(*snapshot.AgeSealer); ok {
		if err := sealer.Unlock(passphrase); err != nil {
			return err
		}
	}

	f, err := os.OpenFile(dest, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0644)
	if err != nil {
		return fmt.Errorf("creating %s: %w", dest, err)
	}
	if err := store.Get(ctx, cfg.InstanceID, f); err != nil {
		f.Close()
		os.Remove(dest)
		return err
	}
	return f.Close()
}

// SnapshotEncrypted reports whether restoring needs a passphrase.
func SnapshotEncrypted(cfg *config.Config) bool {
	return cfg.Snapshot.Type != "" && cfg.Snapshot.Encrypt
}
