package database

import (
	"fmt"
	"os"
	"path/filepath"

	"csync/internal/config"
)

// NewDatabaseFromConfig opens the shared content database based on the database config type.
func NewDatabaseFromConfig(cfg config.DatabaseConfig, instanceID string) (*SQLiteDatabase, error) {
	switch cfg.Type {
	case "sqlite":
		dbPath := cfg.Path
		if dbPath == "" {
			if cfg.DataDir == "" {
				return nil, fmt.Errorf("data_dir or path required for sqlite database")
			}
			if err := os.MkdirAll(cfg.DataDir, 0755); err != nil {
				return nil, fmt.Errorf("creating data_dir: %w", err)
			}
			dbPath = filepath.Join(cfg.DataDir, instanceID+".db")
		}
		return NewSQLiteDatabase(dbPath)
	case "memory":
		return NewSQLiteDatabase(":memory:")
	default:
		return nil, fmt.Errorf("unknown database type: %s", cfg.Type)
	}
}
