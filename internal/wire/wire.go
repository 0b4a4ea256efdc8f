// Package wire assembles the application from configuration. Every CLI
// command builds the same graph through New.
package wire

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"time"

	githubadapter "github.com/ericfisherdev/actionwatch/internal/adapter/driven/github"
	"github.com/ericfisherdev/actionwatch/internal/adapter/driven/notify"
	"github.com/ericfisherdev/actionwatch/internal/adapter/driven/oauth"
	sqliteadapter "github.com/ericfisherdev/actionwatch/internal/adapter/driven/sqlite"
	"github.com/ericfisherdev/actionwatch/internal/adapter/driven/targetfile"
	"github.com/ericfisherdev/actionwatch/internal/application"
	"github.com/ericfisherdev/actionwatch/internal/config"
	"github.com/ericfisherdev/actionwatch/internal/domain/port/driven"
	"github.com/ericfisherdev/actionwatch/internal/telemetry"
)

// Version is reported to telemetry and by the CLI. Release builds set it
// with -ldflags.
var Version = "dev"

// App is the assembled object graph.
type App struct {
	Config        *config.Config
	Logger        *slog.Logger
	DB            *sqliteadapter.DB
	Targets       *application.TargetService
	Monitor       *application.MonitorService
	Broker        *application.CredentialBroker
	Notifications driven.NotificationStore
	Dispatcher    *notify.Dispatcher
	Telemetry     *telemetry.Providers
}

// Options tunes the assembly for the calling command.
type Options struct {
	// Out receives console notifications and the device-flow prompt.
	// Defaults to os.Stderr.
	Out io.Writer
	// CIClient replaces the GitHub client. Tests use it to avoid the network.
	CIClient driven.CIClient
}

// New opens the database, runs migrations and wires every adapter and service.
// The caller must Close the returned App.
func New(ctx context.Context, cfg *config.Config, logger *slog.Logger, opts Options) (_ *App, err error) {
	if logger == nil {
		logger = slog.Default()
	}
	out := opts.Out
	if out == nil {
		out = os.Stderr
	}

	app := &App{Config: cfg, Logger: logger}
	defer func() {
		if err != nil {
			_ = app.Close(context.Background())
		}
	}()

	// 1. Telemetry (noop unless OTEL_EXPORTER_OTLP_ENDPOINT is set).
	if app.Telemetry, err = telemetry.Setup(ctx, "actionwatch", Version); err != nil {
		return nil, err
	}
	metrics, err := application.NewMetrics(app.Telemetry.MeterProvider)
	if err != nil {
		return nil, err
	}

	// 2. Database and migrations.
	if app.DB, err = sqliteadapter.NewDB(cfg.DBPath); err != nil {
		return nil, err
	}
	logger.Debug("database opened", "path", cfg.DBPath)
	if err = sqliteadapter.RunMigrations(app.DB.Writer); err != nil {
		return nil, err
	}

	// 3. Stores.
	targetStore := sqliteadapter.NewTargetRepo(app.DB)
	feedStore := sqliteadapter.NewNotificationRepo(app.DB)
	app.Notifications = feedStore
	credentialStore, err := sqliteadapter.NewCredentialRepo(app.DB, cfg.SecretKey)
	if err != nil {
		return nil, err
	}

	// 4. Credentials: stored token, then env, then gh; device flow when configured.
	brokerOpts := []application.BrokerOption{
		application.WithCredentialStore(credentialStore),
		application.WithTokenSources(
			oauth.StaticSource{Label: "env", Value: cfg.GitHubToken},
			oauth.NewGHCLISource(cfg.APIBaseURL),
		),
		application.WithBrokerLogger(logger),
	}
	if cfg.HasOAuth() {
		flow, err := oauth.NewDeviceFlow(cfg.OAuthClientID, cfg.OAuthBaseURL, cfg.OAuthScopes, oauth.WithLogger(logger))
		if err != nil {
			return nil, err
		}
		prompter := oauth.NewConsolePrompter()
		prompter.Out = out
		brokerOpts = append(brokerOpts, application.WithAuthorizer(flow, prompter.Prompt))
	}
	app.Broker = application.NewCredentialBroker(brokerOpts...)

	// 5. CI client.
	ci := opts.CIClient
	if ci == nil {
		if ci, err = githubadapter.NewClient(cfg.APIBaseURL); err != nil {
			return nil, err
		}
	}

	// 6. Notifier sinks.
	sinks := []notify.Sink{
		notify.NewConsoleSink(out),
		notify.NewFeedSink(feedStore, cfg.FeedRetention),
	}
	if cfg.WebhookURL != "" {
		hook, err := notify.NewWebhookSink(cfg.WebhookURL, &http.Client{Timeout: 10 * time.Second})
		if err != nil {
			return nil, err
		}
		sinks = append(sinks, hook)
	}
	if cfg.SQSQueueURL != "" {
		queue, err := notify.NewSQSSink(ctx, cfg.SQSQueueURL)
		if err != nil {
			return nil, err
		}
		sinks = append(sinks, queue)
	}
	app.Dispatcher = notify.NewDispatcher(logger, sinks...)

	// 7. Services.
	app.Targets = application.NewTargetService(targetStore, logger)
	app.Monitor = application.NewMonitorService(ci, app.Broker, targetStore, app.Dispatcher,
		application.MonitorConfig{
			Interval:         cfg.PollInterval,
			FetchTimeout:     cfg.FetchTimeout,
			ReauthTimeout:    cfg.ReauthTimeout,
			Concurrency:      cfg.Concurrency,
			FailureThreshold: uint32(cfg.FailureThreshold),
		},
		application.WithLogger(logger),
		application.WithMetrics(metrics),
		application.WithTracerProvider(app.Telemetry.TracerProvider),
	)

	logger.Info("application wired",
		"db_path", cfg.DBPath,
		"api_base_url", cfg.APIBaseURL,
		"sinks", app.Dispatcher.Sinks(),
		"interactive_auth", cfg.HasOAuth(),
		"telemetry", app.Telemetry.Enabled(),
	)
	return app, nil
}

// SeedTargets imports ACTIONWATCH_TARGETS_FILE when configured. Targets
// already watched are skipped.
func (a *App) SeedTargets(ctx context.Context) (application.ImportResult, error) {
	if a.Config.TargetsFile == "" {
		return application.ImportResult{}, nil
	}
	keys, err := targetfile.Load(a.Config.TargetsFile)
	if err != nil {
		return application.ImportResult{}, err
	}
	return a.Targets.Import(ctx, keys)
}

// Close flushes telemetry and closes the database.
func (a *App) Close(ctx context.Context) error {
	var errs []error
	if a.Telemetry != nil {
		if err := a.Telemetry.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("shutdown telemetry: %w", err))
		}
	}
	if a.DB != nil {
		if err := a.DB.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close database: %w", err))
		}
	}
	return errors.Join(errs...)
}
