package testutil

import (
	"path/filepath"
	"testing"

	"github.com/xxxsen/mdesk/internal/config"
	"github.com/xxxsen/mdesk/internal/repo"
)

// OpenTestDB opens a migrated sqlite database in a per-test temp dir.
func OpenTestDB(t *testing.T) (*repo.DB, func()) {
	t.Helper()
	db, err := repo.Open(config.DatabaseConfig{
		Driver: "sqlite",
		Path:   filepath.Join(t.TempDir(), "mdesk_test.db"),
	})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if err := repo.ApplyMigrations(db); err != nil {
		t.Fatalf("migrations: %v", err)
	}
	return db, func() {
		_ = db.Close()
	}
}
