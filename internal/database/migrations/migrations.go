package migrations

import (
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"io/fs"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/golang-migrate/migrate/v4/source"
	"github.com/golang-migrate/migrate/v4/source/iofs"
)

//go:embed files/*.sql
var indexFiles embed.FS

// Set is one independently versioned group of migrations. The content store
// and the record index share a database file, so each tracks its version in
// its own table.
type Set struct {
	Name  string
	Files fs.FS
	Dir   string
	Table string
}

// Index is the record index schema (content_files, sync_runs).
var Index = Set{
	Name:  "index",
	Files: indexFiles,
	Dir:   "files",
	Table: "csync_schema_migrations",
}

// CheckStatus verifies that the database schema is up-to-date.
// Returns nil if the database is at the latest version.
// Returns an error describing any version mismatch or migration issues.
func (s Set) CheckStatus(db *sql.DB) error {
	m, err := s.newMigrate(db)
	if err != nil {
		return fmt.Errorf("failed to create migrate instance: %w", err)
	}
	// Note: We don't close m here because it would close the db connection
	// The caller owns the db and is responsible for closing it

	version, dirty, err := m.Version()
	if err != nil {
		if errors.Is(err, migrate.ErrNilVersion) {
			return fmt.Errorf("%s database has no schema version (needs migration)", s.Name)
		}
		return fmt.Errorf("failed to get %s database version: %w", s.Name, err)
	}

	if dirty {
		return fmt.Errorf("%s database is in dirty state at version %d (migration failed previously)", s.Name, version)
	}

	sourceDriver, err := iofs.New(s.Files, s.Dir)
	if err != nil {
		return fmt.Errorf("failed to read migration files: %w", err)
	}
	defer sourceDriver.Close()

	latestVersion, err := getLatestVersion(sourceDriver)
	if err != nil {
		return fmt.Errorf("failed to determine latest version: %w", err)
	}

	if version < latestVersion {
		return fmt.Errorf("%s database is at version %d but latest is %d (%d migrations behind)",
			s.Name, version, latestVersion, latestVersion-version)
	}

	if version > latestVersion {
		return fmt.Errorf("%s database version %d is ahead of binary version %d (binary needs update)",
			s.Name, version, latestVersion)
	}

	return nil
}

// Up runs all pending migrations to bring the schema to the latest version.
func (s Set) Up(db *sql.DB) error {
	m, err := s.newMigrate(db)
	if err != nil {
		return fmt.Errorf("failed to create migrate instance: %w", err)
	}

	if err := m.Up(); err != nil {
		if errors.Is(err, migrate.ErrNoChange) {
			return nil
		}
		return fmt.Errorf("%s migration failed: %w", s.Name, err)
	}

	return nil
}

// newMigrate creates a new migrate instance for the given database.
func (s Set) newMigrate(db *sql.DB) (*migrate.Migrate, error) {
	sourceDriver, err := iofs.New(s.Files, s.Dir)
	if err != nil {
		return nil, fmt.Errorf("failed to create source driver: %w", err)
	}

	// Wraps *sql.DB with SQLite-specific migration logic.
	dbDriver, err := sqlite3.WithInstance(db, &sqlite3.Config{MigrationsTable: s.Table})
	if err != nil {
		sourceDriver.Close()
		return nil, fmt.Errorf("failed to create database driver: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", sourceDriver, "sqlite3", dbDriver)
	if err != nil {
		sourceDriver.Close()
		return nil, fmt.Errorf("failed to create migrate instance: %w", err)
	}

	return m, nil
}

// getLatestVersion returns the highest version number available in the source.
func getLatestVersion(src source.Driver) (uint, error) {
	version, err := src.First()
	if err != nil {
		return 0, err
	}

	latestVersion := version
	for {
		nextVersion, err := src.Next(latestVersion)
		if err != nil {
			// Any error from Next() means there are no more migrations.
			break
		}
		latestVersion = nextVersion
	}

	return latestVersion, nil
}
