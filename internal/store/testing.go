package store

import (
	"testing"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// NewTestGormStore opens an in-memory sqlite database and migrates it,
// following Desarso-godantic's gorm.io/driver/sqlite dependency for fast
// store tests instead of spinning up a real postgres instance. The DSN
// uses a shared cache, so every store opened in one test binary sees the
// same database.
func NewTestGormStore(t *testing.T) *GormStore {
	t.Helper()

	db, err := gorm.Open(sqlite.Open("file::memory:?cache=shared"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite test store: %v", err)
	}

	s := NewGormStore(db)
	if err := s.AutoMigrate(); err != nil {
		t.Fatalf("migrate sqlite test store: %v", err)
	}

	return s
}
