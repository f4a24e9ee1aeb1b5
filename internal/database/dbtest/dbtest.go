// Package dbtest provides migrated in-memory databases for tests.
package dbtest

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"todo-api/internal/database"

	"github.com/gofrs/uuid"
	"gorm.io/gorm/logger"
)

// New returns a pool over a private in-memory sqlite database with every
// migration applied. The pool is closed when the test ends.
func New(t testing.TB) *database.DatabasePool {
	t.Helper()

	name := strings.ReplaceAll(uuid.Must(uuid.NewV4()).String(), "-", "")
	pool, err := database.NewDatabasePool(&database.PoolConfig{
		Driver:       database.DriverSQLite,
		DSN:          fmt.Sprintf("file:%s?mode=memory&cache=shared", name),
		MaxOpenConns: 1,
		MaxIdleConns: 1,
		LogLevel:     logger.Silent,
	})
	if err != nil {
		t.Fatalf("open test database: %v", err)
	}

	if _, err := pool.Migrate(context.Background()); err != nil {
		_ = pool.Close()
		t.Fatalf("migrate test database: %v", err)
	}

	t.Cleanup(func() {
		_ = pool.Close()
	})

	return pool
}
