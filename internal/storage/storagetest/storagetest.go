// Package storagetest opens throwaway sqlite stores for tests.
package storagetest

import (
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"rando/backend/internal/storage"
)

// New returns a migrated store backed by a sqlite file in t.TempDir().
func New(t testing.TB) *storage.Service {
	t.Helper()

	dsn := filepath.Join(t.TempDir(), fmt.Sprintf("rando_test_%d.db", time.Now().UnixNano()))
	db, err := storage.OpenSQLite(dsn)
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})

	if err := storage.AutoMigrate(db); err != nil {
		t.Fatalf("automigrate: %v", err)
	}
	return storage.NewStorageService(db, nil)
}
