package cms

import (
	"embed"

	"csync/internal/database/migrations"
)

//go:embed migrations/*.sql
var migrationFiles embed.FS

// Migrations creates the content store schema. A CMS that owns the database
// normally applies its own; `csync migrate --with-cms` applies these for
// standalone use.
var Migrations = migrations.Set{
	Name:  "content store",
	Files: migrationFiles,
	Dir:   "migrations",
	Table: "cms_schema_migrations",
}
