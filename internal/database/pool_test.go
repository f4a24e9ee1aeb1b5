package database_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"todo-api/internal/database"
	"todo-api/internal/database/dbtest"

	"gorm.io/gorm/logger"
)

func TestDefaultPoolConfig(t *testing.T) {
	config := database.DefaultPoolConfig()

	if config.MaxOpenConns != 25 {
		t.Errorf("Expected MaxOpenConns to be 25, got %d", config.MaxOpenConns)
	}

	if config.MaxIdleConns != 10 {
		t.Errorf("Expected MaxIdleConns to be 10, got %d", config.MaxIdleConns)
	}

	if config.ConnMaxLifetime != time.Hour {
		t.Errorf("Expected ConnMaxLifetime to be 1 hour, got %v", config.ConnMaxLifetime)
	}

	if config.ConnMaxIdleTime != time.Minute*30 {
		t.Errorf("Expected ConnMaxIdleTime to be 30 minutes, got %v", config.ConnMaxIdleTime)
	}

	if config.Driver != database.DriverPostgres {
		t.Errorf("Expected Driver to be postgres, got %s", config.Driver)
	}
}

func TestNewDatabasePool_WithNilConfig(t *testing.T) {
	_, err := database.NewDatabasePool(nil)

	if !errors.Is(err, database.ErrEmptyDSN) {
		t.Errorf("Expected ErrEmptyDSN, got %v", err)
	}
}

func TestPoolConfig_Validation(t *testing.T) {
	tests := []struct {
		name    string
		config  *database.PoolConfig
		wantErr error
	}{
		{
			name: "Zero values configuration",
			config: &database.PoolConfig{
				Driver:   database.DriverSQLite,
				LogLevel: logger.Silent,
			},
			wantErr: database.ErrEmptyDSN,
		},
		{
			name: "Negative values configuration",
			config: &database.PoolConfig{
				Driver:          database.DriverSQLite,
				DSN:             "file::memory:",
				MaxOpenConns:    -1,
				ConnMaxLifetime: -time.Hour,
				LogLevel:        logger.Silent,
			},
			wantErr: database.ErrInvalidPoolConfig,
		},
		{
			name: "Unknown driver",
			config: &database.PoolConfig{
				Driver: "mysql",
				DSN:    "user:pass@/db",
			},
			wantErr: database.ErrInvalidPoolConfig,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := database.NewDatabasePool(tt.config)
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("Expected %v, got %v", tt.wantErr, err)
			}
		})
	}
}

func TestDatabasePool_WithoutConnection(t *testing.T) {
	pool := &database.DatabasePool{}

	defer func() {
		if r := recover(); r != nil {
			t.Errorf("pool should handle nil DB gracefully, but got panic: %v", r)
		}
	}()

	if _, hasError := pool.Stats()["error"]; !hasError {
		t.Error("Expected error in stats when DB is nil")
	}

	if err := pool.Health(context.Background()); !errors.Is(err, database.ErrNotConnected) {
		t.Errorf("Expected ErrNotConnected, got %v", err)
	}

	if err := pool.Close(); err != nil {
		t.Errorf("Expected no error when closing nil DB, got: %v", err)
	}

	if _, err := pool.Migrate(context.Background()); !errors.Is(err, database.ErrNotConnected) {
		t.Errorf("Expected ErrNotConnected, got %v", err)
	}
}

func TestDatabasePool_MigrateSQLite(t *testing.T) {
	pool := dbtest.New(t)

	if err := pool.Health(context.Background()); err != nil {
		t.Fatalf("Expected healthy pool, got: %v", err)
	}

	for _, table := range []string{"users", "tasks", "audit_logs"} {
		if !pool.DB.Migrator().HasTable(table) {
			t.Errorf("Expected table %s to exist", table)
		}
	}

	version, err := pool.Migrate(context.Background())
	if err != nil {
		t.Fatalf("Expected re-running migrations to be a no-op, got: %v", err)
	}

	if version != 3 {
		t.Errorf("Expected schema version 3, got %d", version)
	}

	stats := pool.Stats()
	if stats["max_open_connections"] != 1 {
		t.Errorf("Expected max_open_connections 1, got %v", stats["max_open_connections"])
	}
}

func TestDatabasePool_CascadeOnUserDelete(t *testing.T) {
	pool := dbtest.New(t)
	db := pool.DB

	if err := db.Exec("INSERT INTO users (id, email, password_hash) VALUES (?, ?, ?)",
		"u-1", "a@x.io", "hash").Error; err != nil {
		t.Fatalf("Failed to insert user: %v", err)
	}

	if err := db.Exec("INSERT INTO tasks (id, owner_id, title) VALUES (?, ?, ?)",
		"t-1", "u-1", "Buy milk").Error; err != nil {
		t.Fatalf("Failed to insert task: %v", err)
	}

	if err := db.Exec("INSERT INTO tasks (id, owner_id, title) VALUES (?, ?, ?)",
		"t-2", "missing", "Orphan").Error; err == nil {
		t.Error("Expected foreign key violation for unknown owner")
	}

	if err := db.Exec("DELETE FROM users WHERE id = ?", "u-1").Error; err != nil {
		t.Fatalf("Failed to delete user: %v", err)
	}

	var count int64
	if err := db.Raw("SELECT COUNT(*) FROM tasks").Scan(&count).Error; err != nil {
		t.Fatalf("Failed to count tasks: %v", err)
	}

	if count != 0 {
		t.Errorf("Expected 0 tasks after cascade, got %d", count)
	}
}

func TestDatabase_Transactions(t *testing.T) {
	db := dbtest.New(t).DB

	tx := db.Begin()
	if err := tx.Exec("INSERT INTO users (id, email, password_hash) VALUES (?, ?, ?)",
		"tx-1", "tx@x.io", "hash").Error; err != nil {
		t.Fatalf("Failed to insert in transaction: %v", err)
	}
	tx.Rollback()

	var count int64
	if err := db.Raw("SELECT COUNT(*) FROM users WHERE id = ?", "tx-1").Scan(&count).Error; err != nil {
		t.Fatalf("Failed to count users after rollback: %v", err)
	}

	if count != 0 {
		t.Errorf("Expected 0 users after rollback, got %d", count)
	}
}

func BenchmarkDefaultPoolConfig(b *testing.B) {
	for i := 0; i < b.N; i++ {
		_ = database.DefaultPoolConfig()
	}
}
