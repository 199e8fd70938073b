package main

import (
	"fmt"

	"github.com/mohammad-safakhou/bulkcart/internal/app"
	"github.com/mohammad-safakhou/bulkcart/internal/store"
	"github.com/spf13/cobra"
)

func migrateCMD(cfgPath *string) *cobra.Command {
	var migDir string
	var direction string
	var steps int

	var migrate = &cobra.Command{
		Use:   "migrate",
		Short: "Run run-history database migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(*cfgPath)
			if err != nil {
				return err
			}
			dsn, err := cfg.Storage.Postgres.DSN()
			if err != nil {
				return fmt.Errorf("%w: postgres not configured (storage.postgres.host/dbname or url): %w", app.ErrSetup, err)
			}
			return store.Migrate(migDir, dsn, direction, steps)
		},
	}
	migrate.Flags().StringVar(&migDir, "dir", "", "migrations source such as file://internal/store/migrations (default: built in)")
	migrate.Flags().StringVar(&direction, "direction", "up", "up or down")
	migrate.Flags().IntVar(&steps, "steps", 0, "number of steps (0 = all)")

	return migrate
}
