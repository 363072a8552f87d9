package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	migratepg "github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	_ "github.com/jackc/pgx/v5/stdlib" // database/sql driver "pgx"

	"github.com/marmos91/tierkeeper/internal/logger"
	"github.com/marmos91/tierkeeper/pkg/location/postgres/migrations"
)

// MigrationStatus is the schema version after a migration run.
type MigrationStatus struct {
	Version uint
	Dirty   bool
	Applied bool // false when the schema was already current
}

func runMigrations(ctx context.Context, connString string) (*MigrationStatus, error) {
	db, err := sql.Open("pgx", connString)
	if err != nil {
		return nil, fmt.Errorf("open database connection: %w", err)
	}
	defer db.Close()

	if err := db.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("ping database: %w", err)
	}

	driver, err := migratepg.WithInstance(db, &migratepg.Config{
		MigrationsTable: "schema_migrations",
	})
	if err != nil {
		return nil, fmt.Errorf("create migrate driver: %w", err)
	}
	source, err := iofs.New(migrations.FS, ".")
	if err != nil {
		return nil, fmt.Errorf("create migration source: %w", err)
	}
	m, err := migrate.NewWithInstance("iofs", source, "postgres", driver)
	if err != nil {
		return nil, fmt.Errorf("create migrate instance: %w", err)
	}

	// golang-migrate takes a PostgreSQL advisory lock around Up.
	status := &MigrationStatus{Applied: true}
	err = m.Up()
	switch {
	case errors.Is(err, migrate.ErrNoChange):
		status.Applied = false
	case err != nil:
		return nil, fmt.Errorf("migration failed: %w", err)
	}

	version, dirty, err := m.Version()
	if err != nil && !errors.Is(err, migrate.ErrNilVersion) {
		return nil, fmt.Errorf("read migration version: %w", err)
	}
	status.Version, status.Dirty = version, dirty

	logger.Info("Location store schema", "version", version, "dirty", dirty, "applied", status.Applied)
	if dirty {
		logger.Warn("Location store schema is dirty, manual intervention required")
	}
	return status, nil
}

// RunMigrations applies pending migrations. Used by `tierkeeper migrate`.
func RunMigrations(ctx context.Context, cfg Config) (*MigrationStatus, error) {
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return runMigrations(ctx, cfg.ConnectionString())
}
