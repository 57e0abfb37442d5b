package main

import (
	"github.com/DominikKuenkele/sgs-housing-bot/db"
	"github.com/DominikKuenkele/sgs-housing-bot/internal/clifmt"
	"github.com/spf13/cobra"
)

func newMigrateCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create the database schema",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := ensureDataRoot(); err != nil {
				return err
			}
			cfg := dbConfigFromViper()
			cfg.AutoMigrate = false
			gdb, err := db.Open(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer func() { _ = db.Close(gdb) }()
			if err := db.Migrate(gdb.WithContext(cmd.Context())); err != nil {
				return err
			}
			opts.logger.Info("schema_migrated", "dsn", cfg.DSN)
			clifmt.New(cmd.OutOrStdout()).Successf("schema ready at %s", cfg.DSN)
			return nil
		},
	}
}
