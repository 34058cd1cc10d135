package main

import (
	"fmt"

	"github.com/phrazzld/pintask/internal/platform/postgres"
	"github.com/spf13/cobra"
)

// migrationCommands are the goose commands the migrate subcommand accepts.
var migrationCommands = map[string]bool{
	"up":      true,
	"down":    true,
	"status":  true,
	"version": true,
	"reset":   true,
}

func newMigrateCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate [up|down|status|version|reset]",
		Short: "Run database migrations against the postgres task store",
		Long: `Run the embedded database migrations.

Examples:
  pintask migrate
  pintask migrate status
  DATABASE_URL=postgres://... pintask migrate down`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			command := "up"
			if len(args) == 1 {
				command = args[0]
			}
			if !migrationCommands[command] {
				return fmt.Errorf("unknown migration command %q", command)
			}

			cfg, log, err := loadConfig(opts)
			if err != nil {
				return err
			}
			if cfg.Database.URL == "" {
				return fmt.Errorf("database.url (or DATABASE_URL) is required to run migrations")
			}

			db, err := postgres.Open(cmd.Context(), cfg.Database, log)
			if err != nil {
				return err
			}
			defer func() { _ = db.Close() }()

			return postgres.Migrate(cmd.Context(), db, command, log)
		},
	}
}
