package main

import (
	"encoding/json"

	"github.com/phrazzld/pintask/internal/scheduler"
	"github.com/spf13/cobra"
)

func newReconcileCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "reconcile",
		Short: "Run one reconciliation against the configured store and print the result",
		Long: `Fail every overdue active task, deliver pending failure notifications
and print the run as JSON. Useful from cron when the service is not running.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := loadConfig(opts)
			if err != nil {
				return err
			}

			repo, db, err := openRepository(cmd.Context(), cfg, log, false)
			if err != nil {
				return err
			}

			app, err := newApplication(cfg, log, repo, db, nil)
			if err != nil {
				if db != nil {
					_ = db.Close()
				}
				return err
			}
			defer app.shutdown()

			result, err := app.scheduler.RunOnce(cmd.Context(), scheduler.TriggerManual)
			if err != nil {
				return err
			}

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(result)
		},
	}
}
