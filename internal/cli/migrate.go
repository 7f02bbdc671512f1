package cli

import (
	"context"
	"time"

	"github.com/spf13/cobra"

	"github.com/utafrali/review-service/internal/app"
)

func newMigrateCmd() *cobra.Command {
	var (
		dryRun  bool
		timeout time.Duration
	)

	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply database migrations",
		Long:  "Apply the embedded schema migrations that are not yet recorded in schema_migrations.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if dryRun {
				return app.ListMigrations(cmd.OutOrStdout())
			}

			cfg, log, err := loadConfig()
			if err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
			defer cancel()
			return app.Migrate(ctx, cfg, log)
		},
	}

	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "list migration files without connecting")
	cmd.Flags().DurationVar(&timeout, "timeout", 2*time.Minute, "overall deadline for the migration run")

	return cmd
}
