// Package cli defines the cobra command tree for review-service.
package cli

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/utafrali/review-service/internal/app"
	"github.com/utafrali/review-service/internal/config"
	pkgconfig "github.com/utafrali/review-service/pkg/config"
	"github.com/utafrali/review-service/pkg/logger"
)

var flagEnvFiles []string

// NewRootCmd creates the root cobra command with global flags.
func NewRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "review-service",
		Short:         "Reviews and comments API",
		Long:          "Serves business reviews and threaded post comments, keeping business ratings in step with the business service.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.PersistentFlags().StringSliceVar(&flagEnvFiles, "env-file", []string{".env"}, "dotenv files loaded before reading the environment")

	root.AddCommand(
		newServeCmd(),
		newMigrateCmd(),
		newVersionCmd(),
	)

	return root
}

// loadConfig reads the dotenv files, then the environment, and builds the
// service logger.
func loadConfig() (*config.Config, *slog.Logger, error) {
	loaded, err := pkgconfig.LoadDotEnv(flagEnvFiles...)
	if err != nil {
		return nil, nil, fmt.Errorf("load env files: %w", err)
	}

	cfg, err := config.Load()
	if err != nil {
		return nil, nil, err
	}

	log := logger.New(app.ServiceName, cfg.LogLevel)
	if len(loaded) > 0 {
		log.Debug("loaded env files", slog.Any("files", loaded))
	}
	return cfg, log, nil
}
