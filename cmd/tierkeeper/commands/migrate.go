package commands

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/marmos91/tierkeeper/internal/logger"
	"github.com/marmos91/tierkeeper/pkg/config"
	"github.com/marmos91/tierkeeper/pkg/location/postgres"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Run database migrations",
	Long: `Apply pending schema migrations.

For a postgres location store this runs the versioned SQL migrations. The run
history schema (SQLite or PostgreSQL) is migrated when it is opened.

Badger and memory location stores need no migration.

Examples:
  tierkeeper migrate
  tierkeeper migrate --config /etc/tierkeeper/config.yaml`,
	Args: cobra.NoArgs,
	RunE: runMigrate,
}

func runMigrate(cmd *cobra.Command, args []string) error {
	cfg, err := config.MustLoad(GetConfigFile())
	if err != nil {
		return err
	}
	if err := InitLogger(cfg); err != nil {
		return err
	}

	ctx := context.Background()
	out := cmd.OutOrStdout()

	if cfg.LocationStore.Type == "postgres" {
		logger.Info("Running location store migrations", logger.KeyStore, "postgres")
		status, err := postgres.RunMigrations(ctx, cfg.LocationStore.Postgres)
		if err != nil {
			return fmt.Errorf("location store migration failed: %w", err)
		}
		if status.Dirty {
			return fmt.Errorf("location store schema version %d is dirty, fix it manually", status.Version)
		}
		state := "already up to date"
		if status.Applied {
			state = "migrated"
		}
		_, _ = fmt.Fprintf(out, "Location store: %s (schema version %d)\n", state, status.Version)
	} else {
		_, _ = fmt.Fprintf(out, "Location store: nothing to migrate (type: %s)\n", cfg.LocationStore.Type)
	}

	if !cfg.History.Enabled {
		_, _ = fmt.Fprintln(out, "Run history: disabled")
		return nil
	}

	store, err := config.CreateHistory(cfg.History)
	if err != nil {
		return fmt.Errorf("run history migration failed: %w", err)
	}
	defer func() { _ = store.Close() }()

	if err := store.Healthcheck(ctx); err != nil {
		return fmt.Errorf("run history migration verification failed: %w", err)
	}
	_, _ = fmt.Fprintf(out, "Run history: migrated (database type: %s)\n", cfg.History.Type)
	return nil
}
