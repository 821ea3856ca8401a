package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/spec-kit/support-iq/internal/persistence"
)

var migrateFlags struct {
	dir string
}

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply SQL migrations to POSTGRES_DSN",
	RunE:  runMigrate,
}

func init() {
	migrateCmd.Flags().StringVar(&migrateFlags.dir, "dir", "", "Migrations directory (default POSTGRES_MIGRATIONS_DIR)")
}

func runMigrate(cmd *cobra.Command, _ []string) error {
	cfg, logger, err := loadConfig()
	if err != nil {
		return err
	}
	defer logger.Sync() //nolint:errcheck

	if cfg.Postgres.DSN == "" {
		return errors.New("POSTGRES_DSN is required for migrate")
	}
	dir := cfg.Postgres.MigrationsDir
	if migrateFlags.dir != "" {
		dir = migrateFlags.dir
	}

	pg, err := persistence.NewPostgres(cmd.Context(), cfg.Postgres, logger)
	if err != nil {
		return err
	}
	defer pg.Close()

	if err := persistence.RunMigrations(cmd.Context(), pg.PoolHandle(), dir, logger); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "migrations in %s applied\n", dir)
	return nil
}
