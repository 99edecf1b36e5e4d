package main

import (
	"context"
	"os"
	"querypilot-ai/config"
	"querypilot-ai/internal/di"
	"querypilot-ai/internal/observability"

	"github.com/spf13/cobra"
	"go.uber.org/dig"
)

var logLevel string

// rootCmd is the querypilot command line. It talks to the target database
// and the model directly, without the HTTP server.
var rootCmd = &cobra.Command{
	Use:           "querypilot",
	Short:         "Ask questions about your database in plain language",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "error", "Log level written to stderr (debug, info, warn, error)")
	rootCmd.AddCommand(askCmd, schemaCmd, tokenCmd)
}

// bootstrap loads the environment and builds the same container the server
// uses. The returned cleanup closes every connection.
func bootstrap(ctx context.Context) (*config.Environment, *dig.Container, func(), error) {
	env, err := config.LoadEnv()
	if err != nil {
		return nil, nil, nil, err
	}

	logger := observability.NewLogger(logLevel, "text", os.Stderr)
	container, err := di.Initialize(ctx, env, logger)
	if err != nil {
		return nil, nil, nil, err
	}

	cleanup := func() { di.Shutdown(context.Background(), container, logger) }
	return env, container, cleanup, nil
}
