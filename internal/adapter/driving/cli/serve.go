package cli

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	httphandler "github.com/ericfisherdev/actionwatch/internal/adapter/driving/http"
	"github.com/ericfisherdev/actionwatch/internal/adapter/driving/web"
	"github.com/ericfisherdev/actionwatch/internal/wire"
)

const shutdownTimeout = 10 * time.Second

func newServeCmd(opts Options) *cobra.Command {
	var listen string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Poll watched targets and serve the dashboard and API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd, opts, listen)
		},
	}
	cmd.Flags().StringVar(&listen, "listen", "", "listen address (overrides ACTIONWATCH_LISTEN_ADDR)")
	return cmd
}

func runServe(cmd *cobra.Command, opts Options, listen string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, err := openApp(cmd, opts)
	if err != nil {
		return err
	}
	defer closeApp(app)
	logger := app.Logger

	res, err := app.SeedTargets(ctx)
	if err != nil {
		return fmt.Errorf("seeding targets: %w", err)
	}
	if app.Config.TargetsFile != "" {
		logger.Info("targets file imported", "path", app.Config.TargetsFile, "added", res.Added, "skipped", res.Skipped)
	}

	addr := app.Config.ListenAddr
	if listen != "" {
		addr = listen
	}
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", addr, err)
	}

	srv := &http.Server{
		Handler:           newHTTPHandler(app),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	if err := app.Monitor.Start(ctx); err != nil {
		return fmt.Errorf("start monitor: %w", err)
	}

	serveErr := make(chan error, 1)
	go func() {
		logger.Info("http server starting", "addr", ln.Addr().String())
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	logger.Info("actionwatch started",
		"addr", ln.Addr().String(),
		"poll_interval", app.Config.PollInterval,
		"version", wire.Version,
	)

	var runErr error
	select {
	case <-ctx.Done():
	case runErr = <-serveErr:
		logger.Error("http server error", "error", runErr)
	}
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", "error", err)
	}
	if err := app.Monitor.Stop(shutdownCtx); err != nil {
		logger.Error("monitor shutdown error", "error", err)
	}
	if err := app.Broker.Shutdown(shutdownCtx); err != nil {
		logger.Error("authentication shutdown error", "error", err)
	}

	logger.Info("shutdown complete")
	return runErr
}

// newHTTPHandler mounts the JSON API and the dashboard on one mux.
func newHTTPHandler(app *wire.App) http.Handler {
	mux := http.NewServeMux()

	api := httphandler.NewHandler(app.Targets, app.Monitor, app.Broker, app.Notifications, app.DB, app.Logger)
	httphandler.RegisterAPIRoutes(mux, api)

	dashboard := web.NewHandler(app.Targets, app.Monitor, app.Broker, app.Notifications, app.Logger)
	web.RegisterRoutes(mux, dashboard)

	return httphandler.ApplyMiddleware(mux, app.Logger)
}
