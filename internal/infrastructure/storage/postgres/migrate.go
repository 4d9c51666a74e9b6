package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"io/fs"

	"github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"

	"fieldsettings/pkg/logger"
)

// MigrationsDir is the directory of goose files inside the embedded FS.
const MigrationsDir = "migrations"

// newMigrator builds a goose provider over the goose files in fsys/MigrationsDir.
func newMigrator(sqlDB *sql.DB, fsys fs.FS) (*goose.Provider, error) {
	dir, err := fs.Sub(fsys, MigrationsDir)
	if err != nil {
		return nil, fmt.Errorf("open migrations: %w", err)
	}
	provider, err := goose.NewProvider(goose.DialectPostgres, sqlDB, dir)
	if err != nil {
		return nil, fmt.Errorf("create migrator: %w", err)
	}
	return provider, nil
}

// withMigrator runs fn with a provider bound to a database/sql view of pool.
func withMigrator(pool *Pool, fsys fs.FS, fn func(p *goose.Provider) error) error {
	sqlDB := stdlib.OpenDBFromPool(pool.Pool)
	defer sqlDB.Close()

	provider, err := newMigrator(sqlDB, fsys)
	if err != nil {
		return err
	}
	return fn(provider)
}

// Migrate applies pending migrations and returns the number applied.
func Migrate(ctx context.Context, pool *Pool, fsys fs.FS) (int, error) {
	log := logger.FromContext(ctx).WithComponent("migrate")

	applied := 0
	err := withMigrator(pool, fsys, func(p *goose.Provider) error {
		results, err := p.Up(ctx)
		for _, r := range results {
			if r.Error != nil {
				continue
			}
			applied++
			log.Infow("migration applied",
				"version", r.Source.Version,
				"path", r.Source.Path,
				"duration", r.Duration,
			)
		}
		if err != nil {
			return fmt.Errorf("apply migrations: %w", err)
		}
		return nil
	})
	return applied, err
}

// MigrationStatus reports whether each known migration has been applied.
func MigrationStatus(ctx context.Context, pool *Pool, fsys fs.FS) ([]*goose.MigrationStatus, error) {
	var statuses []*goose.MigrationStatus
	err := withMigrator(pool, fsys, func(p *goose.Provider) error {
		var err error
		statuses, err = p.Status(ctx)
		if err != nil {
			return fmt.Errorf("migration status: %w", err)
		}
		return nil
	})
	return statuses, err
}
