// Package cli is the command-line driving adapter. Every command builds the
// application through wire.New.
package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ericfisherdev/actionwatch/internal/config"
	"github.com/ericfisherdev/actionwatch/internal/domain/port/driven"
	"github.com/ericfisherdev/actionwatch/internal/wire"
)

// Options customizes how commands assemble the application.
type Options struct {
	// LoadConfig defaults to config.Load.
	LoadConfig func() (*config.Config, error)
	// CIClient replaces the GitHub client.
	CIClient driven.CIClient
}

// NewRootCmd returns the actionwatch command tree.
func NewRootCmd(opts Options) *cobra.Command {
	if opts.LoadConfig == nil {
		opts.LoadConfig = config.Load
	}

	root := &cobra.Command{
		Use:   "actionwatch",
		Short: "Watch GitHub Actions runs and notify when they change",
		Long: `actionwatch polls the latest workflow run of each watched repository
branch and emits a notification whenever that run's status or conclusion
changes. State is kept in SQLite so restarts never repeat a notification.`,
		Version:       wire.Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.AddCommand(
		newServeCmd(opts),
		newCheckCmd(opts),
		newAuthCmd(opts),
		newTargetsCmd(opts),
	)
	return root
}

// openApp loads configuration and wires the application. Logs go to the
// command's stderr; notifications and prompts go to its stdout.
func openApp(cmd *cobra.Command, opts Options) (*wire.App, error) {
	cfg, err := opts.LoadConfig()
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	logger := cfg.NewLogger(cmd.ErrOrStderr())

	app, err := wire.New(cmd.Context(), cfg, logger, wire.Options{
		Out:      cmd.OutOrStdout(),
		CIClient: opts.CIClient,
	})
	if err != nil {
		return nil, fmt.Errorf("starting actionwatch: %w", err)
	}
	return app, nil
}

func closeApp(app *wire.App) {
	if err := app.Close(context.Background()); err != nil {
		app.Logger.Error("shutdown failed", "error", err)
	}
}
