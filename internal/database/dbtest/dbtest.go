// Package dbtest opens throwaway sqlite databases with the blacklist schema applied.
package dbtest

import (
	"path/filepath"
	"testing"

	"ipblacklist/internal/database"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Open returns a migrated database backed by a file in t.TempDir(). It goes
// through the same SetupDB path as the server, pool settings included.
func Open(t testing.TB) *gorm.DB {
	t.Helper()

	dsn := filepath.Join(t.TempDir(), "blacklist.db") + "?_busy_timeout=5000&_foreign_keys=on"
	db, err := database.SetupDB(
		database.WithDialector(sqlite.Open(dsn)),
		database.WithLogger(logger.Discard),
	)
	if err != nil {
		t.Fatalf("setup test database: %v", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("get sql.DB: %v", err)
	}

	t.Cleanup(func() {
		_ = sqlDB.Close()
	})

	return db
}
