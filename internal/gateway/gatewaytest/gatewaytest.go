// Package gatewaytest opens throwaway in-memory stores for tests.
package gatewaytest

import (
	"context"
	"fmt"
	"testing"

	"anoa.com/kudosfeed/internal/gateway"
	"github.com/google/uuid"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Open returns a migrated SQLite database private to t.
func Open(t testing.TB) *gorm.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := gateway.Migrate(context.Background(), db); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})
	return db
}

// New returns a Gateway over a fresh database, plus the database for seeding.
func New(t testing.TB) (gateway.Gateway, *gorm.DB) {
	db := Open(t)
	return gateway.NewGateway(db), db
}
