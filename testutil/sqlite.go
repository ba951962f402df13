package testutil

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"gorm.io/driver/sqlite"

	"github.com/kbukum/resilience-core/database"
	"github.com/kbukum/resilience-core/logger"
)

// NewSQLite opens an in-memory SQLite database named after the test,
// migrates models and closes it when the test ends. The single connection
// keeps SQLite writers serialized the way a row lock would.
func NewSQLite(t testing.TB, models ...interface{}) *database.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", strings.ReplaceAll(t.Name(), "/", "_"))
	cfg := database.Config{
		Enabled:      true,
		Driver:       database.DriverSQLite,
		DSN:          dsn,
		MaxOpenConns: 1,
		LogLevel:     "silent",
	}
	db, err := database.NewWithContext(context.Background(), sqlite.Open(dsn), cfg, logger.Nop())
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	if len(models) > 0 {
		if err := db.AutoMigrate(models...); err != nil {
			t.Fatalf("auto-migrate: %v", err)
		}
	}
	return db
}
