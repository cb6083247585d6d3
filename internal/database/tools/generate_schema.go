package main

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	"csync/internal/cms"
	"csync/internal/database"
	"csync/internal/database/migrations"
)

func main() {
	db, err := database.OpenConnection(":memory:")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to open database: %v\n", err)
		os.Exit(1)
	}
	defer db.Close()

	// The index references content, so the content store goes first.
	if err := cms.Migrations.Up(db); err != nil {
		fmt.Fprintf(os.Stderr, "Migration failed: %v\n", err)
		os.Exit(1)
	}
	cmsTables, err := tableNames(db)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to list tables: %v\n", err)
		os.Exit(1)
	}
	if err := migrations.Index.Up(db); err != nil {
		fmt.Fprintf(os.Stderr, "Migration failed: %v\n", err)
		os.Exit(1)
	}

	skip := map[string]bool{
		cms.Migrations.Table:   true,
		migrations.Index.Table: true,
	}

	outputs := []struct {
		path   string
		source string
		keep   func(table string) bool
	}{
		{
			path:   filepath.Join("internal", "cms", "schema.sql"),
			source: "internal/cms/migrations/*.sql",
			keep:   func(table string) bool { return cmsTables[table] },
		},
		{
			path:   filepath.Join("internal", "database", "schema.sql"),
			source: "internal/database/migrations/files/*.sql",
			keep:   func(table string) bool { return !cmsTables[table] },
		},
	}

	for _, out := range outputs {
		schema, err := extractSchema(db, out.source, func(table string) bool {
			return !skip[table] && out.keep(table)
		})
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to extract schema: %v\n", err)
			os.Exit(1)
		}
		if err := os.WriteFile(out.path, []byte(schema), 0644); err != nil {
			fmt.Fprintf(os.Stderr, "Failed to write schema file: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("✓ Generated %s from migrations\n", out.path)
	}
}

func tableNames(db *sql.DB) (map[string]bool, error) {
	rows, err := db.Query(`SELECT name FROM sqlite_master WHERE type = 'table'`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	names := make(map[string]bool)
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		names[name] = true
	}
	return names, rows.Err()
}

// extractSchema extracts the CREATE statements for tables and indexes that
// keep accepts, excluding SQLite internal tables.
func extractSchema(db *sql.DB, source string, keep func(table string) bool) (string, error) {
	query := `
		SELECT tbl_name, sql || ';'
		FROM sqlite_master
		WHERE type IN ('table', 'index')
		  AND name NOT LIKE 'sqlite_%'
		  AND sql IS NOT NULL
		ORDER BY
		  CASE type
		    WHEN 'table' THEN 1
		    WHEN 'index' THEN 2
		  END,
		  name
	`

	rows, err := db.Query(query)
	if err != nil {
		return "", fmt.Errorf("query failed: %w", err)
	}
	defer rows.Close()

	var schema string
	for rows.Next() {
		var table, stmt string
		if err := rows.Scan(&table, &stmt); err != nil {
			return "", fmt.Errorf("scan failed: %w", err)
		}
		if keep(table) {
			schema += stmt + "\n\n"
		}
	}

	if err := rows.Err(); err != nil {
		return "", fmt.Errorf("rows error: %w", err)
	}

	header := fmt.Sprintf(`-- This file is auto-generated from migration files.
-- DO NOT EDIT MANUALLY. Run 'go generate ./internal/database' to regenerate.
-- Source: %s

`, source)
	return header + schema, nil
}
