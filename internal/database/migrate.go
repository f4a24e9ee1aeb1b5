package database

import (
	"context"
	"embed"
	"fmt"
	"io/fs"

	"github.com/pressly/goose/v3"
)

//go:embed migrations/*.sql
var migrationFiles embed.FS

// Migrate applies all pending schema migrations and returns the resulting
// schema version.
func (p *DatabasePool) Migrate(ctx context.Context) (int64, error) {
	const op = "database.DatabasePool.Migrate"

	if p.DB == nil {
		return 0, fmt.Errorf("%s: %w", op, ErrNotConnected)
	}

	sqlDB, err := p.DB.DB()
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}

	dialect := goose.DialectPostgres
	if p.Driver() == DriverSQLite {
		dialect = goose.DialectSQLite3
	}

	migrations, err := fs.Sub(migrationFiles, "migrations")
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}

	provider, err := goose.NewProvider(dialect, sqlDB, migrations)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}

	if _, err := provider.Up(ctx); err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}

	version, err := provider.GetDBVersion(ctx)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}

	return version, nil
}
