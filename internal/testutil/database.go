package testutil

import (
	"testing"

	"csync/internal/cms"
	"csync/internal/content"
	"csync/internal/database"
)

// NewTestDB creates an in-memory SQLite database with both the content store
// and the record index schemas applied. The database is automatically closed
// when the test completes.
func NewTestDB(t *testing.T) (*database.SQLiteDatabase, *cms.Store) {
	t.Helper()

	sqlDB, err := database.OpenConnection(":memory:")
	if err != nil {
		t.Fatalf("failed to open database: %v", err)
	}

	for _, schema := range []string{cms.Schema, database.Schema} {
		if _, err := sqlDB.Exec(schema); err != nil {
			sqlDB.Close()
			t.Fatalf("failed to apply schema: %v", err)
		}
	}

	db := database.NewSQLiteDatabaseFromDB(sqlDB)
	store := cms.NewStore(sqlDB, content.Registry())

	t.Cleanup(func() {
		db.Close()
	})

	return db, store
}
