// Package config loads application configuration from environment variables.
package config

import (
	"encoding/base64"
	"fmt"
	"io"
	"log/slog"
	"math"
	"os"
	"strconv"
	"strings"
	"time"
)

// maxIntervalMillis is the largest POLL_INTERVAL_MS a time.Duration can hold.
const maxIntervalMillis = math.MaxInt64 / int64(time.Millisecond)

// Config holds the application configuration loaded from environment variables.
type Config struct {
	PollInterval     time.Duration
	APIBaseURL       string
	FetchTimeout     time.Duration
	ReauthTimeout    time.Duration
	Concurrency      int
	FailureThreshold int

	GitHubToken   string
	OAuthClientID string
	OAuthBaseURL  string
	OAuthScopes   []string
	SecretKey     []byte // nil disables credential persistence.

	DBPath        string
	ListenAddr    string
	TargetsFile   string
	FeedRetention int

	WebhookURL  string
	SQSQueueURL string

	LogLevel  slog.Level
	LogFormat string
}

// HasOAuth reports whether interactive device-flow authentication is configured.
func (c *Config) HasOAuth() bool {
	return c.OAuthClientID != ""
}

// NewLogger builds the process logger from LogLevel and LogFormat.
func (c *Config) NewLogger(w io.Writer) *slog.Logger {
	opts := &slog.HandlerOptions{Level: c.LogLevel}
	if c.LogFormat == "json" {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

// Load reads configuration from environment variables and returns a validated Config.
// No variable is required: without a token source or OAuth client id the
// monitor starts and reports every fetch as unauthenticated.
// Optional variables with defaults: ACTIONWATCH_POLL_INTERVAL (1m, overridden by
// POLL_INTERVAL_MS), ACTIONWATCH_API_BASE_URL (https://api.github.com/),
// ACTIONWATCH_FETCH_TIMEOUT (15s), ACTIONWATCH_REAUTH_TIMEOUT (5m),
// ACTIONWATCH_CONCURRENCY (4), ACTIONWATCH_FAILURE_THRESHOLD (5),
// ACTIONWATCH_OAUTH_BASE_URL (https://github.com), ACTIONWATCH_OAUTH_SCOPES (repo),
// ACTIONWATCH_DB_PATH (actionwatch.db), ACTIONWATCH_LISTEN_ADDR (127.0.0.1:8080),
// ACTIONWATCH_FEED_RETENTION (500), ACTIONWATCH_LOG_LEVEL (info), ACTIONWATCH_LOG_FORMAT (text).
func Load() (*Config, error) {
	cfg := &Config{
		GitHubToken:   os.Getenv("ACTIONWATCH_GITHUB_TOKEN"),
		OAuthClientID: os.Getenv("ACTIONWATCH_OAUTH_CLIENT_ID"),
		TargetsFile:   os.Getenv("ACTIONWATCH_TARGETS_FILE"),
		WebhookURL:    os.Getenv("ACTIONWATCH_WEBHOOK_URL"),
		SQSQueueURL:   os.Getenv("ACTIONWATCH_SQS_QUEUE_URL"),
	}

	var err error

	if cfg.PollInterval, err = positiveDuration("ACTIONWATCH_POLL_INTERVAL", time.Minute); err != nil {
		return nil, err
	}
	if v, ok := os.LookupEnv("POLL_INTERVAL_MS"); ok && v != "" {
		ms, err := strconv.ParseInt(v, 10, 64)
		if err != nil || ms <= 0 || ms > maxIntervalMillis {
			return nil, fmt.Errorf("POLL_INTERVAL_MS must be a positive integer, got %q", v)
		}
		cfg.PollInterval = time.Duration(ms) * time.Millisecond
	}

	cfg.APIBaseURL = "https://api.github.com/"
	for _, key := range []string{"CI_PROVIDER_BASE_URL", "ACTIONWATCH_API_BASE_URL"} {
		if v, ok := os.LookupEnv(key); ok && v != "" {
			cfg.APIBaseURL = v
		}
	}

	if cfg.FetchTimeout, err = positiveDuration("ACTIONWATCH_FETCH_TIMEOUT", 15*time.Second); err != nil {
		return nil, err
	}
	if cfg.ReauthTimeout, err = positiveDuration("ACTIONWATCH_REAUTH_TIMEOUT", 5*time.Minute); err != nil {
		return nil, err
	}
	if cfg.Concurrency, err = positiveInt("ACTIONWATCH_CONCURRENCY", 4); err != nil {
		return nil, err
	}
	if cfg.FailureThreshold, err = positiveInt("ACTIONWATCH_FAILURE_THRESHOLD", 5); err != nil {
		return nil, err
	}
	if cfg.FeedRetention, err = positiveInt("ACTIONWATCH_FEED_RETENTION", 500); err != nil {
		return nil, err
	}

	cfg.OAuthBaseURL = "https://github.com"
	if v, ok := os.LookupEnv("ACTIONWATCH_OAUTH_BASE_URL"); ok && v != "" {
		cfg.OAuthBaseURL = v
	}

	cfg.OAuthScopes = []string{"repo"}
	if v, ok := os.LookupEnv("ACTIONWATCH_OAUTH_SCOPES"); ok {
		cfg.OAuthScopes = splitList(v)
	}

	if v, ok := os.LookupEnv("ACTIONWATCH_SECRET_KEY"); ok && v != "" {
		key, err := base64.StdEncoding.DecodeString(v)
		if err != nil {
			return nil, fmt.Errorf("ACTIONWATCH_SECRET_KEY is not valid base64: %w", err)
		}
		if len(key) != 32 {
			return nil, fmt.Errorf("ACTIONWATCH_SECRET_KEY must decode to 32 bytes, got %d", len(key))
		}
		cfg.SecretKey = key
	}

	cfg.DBPath = "actionwatch.db"
	if v, ok := os.LookupEnv("ACTIONWATCH_DB_PATH"); ok && v != "" {
		cfg.DBPath = v
	}

	cfg.ListenAddr = "127.0.0.1:8080"
	if v, ok := os.LookupEnv("ACTIONWATCH_LISTEN_ADDR"); ok && v != "" {
		cfg.ListenAddr = v
	}

	cfg.LogLevel = slog.LevelInfo
	if v, ok := os.LookupEnv("ACTIONWATCH_LOG_LEVEL"); ok && v != "" {
		if err := cfg.LogLevel.UnmarshalText([]byte(v)); err != nil {
			return nil, fmt.Errorf("ACTIONWATCH_LOG_LEVEL has invalid level %q: %w", v, err)
		}
	}

	cfg.LogFormat = "text"
	if v, ok := os.LookupEnv("ACTIONWATCH_LOG_FORMAT"); ok && v != "" {
		v = strings.ToLower(v)
		if v != "text" && v != "json" {
			return nil, fmt.Errorf("ACTIONWATCH_LOG_FORMAT must be text or json, got %q", v)
		}
		cfg.LogFormat = v
	}

	return cfg, nil
}

func positiveDuration(key string, def time.Duration) (time.Duration, error) {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return def, nil
	}
	parsed, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("%s has invalid duration %q: %w", key, v, err)
	}
	if parsed <= 0 {
		return 0, fmt.Errorf("%s must be positive, got %s", key, parsed)
	}
	return parsed, nil
}

func positiveInt(key string, def int) (int, error) {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s has invalid integer %q: %w", key, v, err)
	}
	if n <= 0 {
		return 0, fmt.Errorf("%s must be positive, got %d", key, n)
	}
	return n, nil
}

// splitList splits a comma or space separated list, dropping empty items.
func splitList(v string) []string {
	fields := strings.FieldsFunc(v, func(r rune) bool { return r == ',' || r == ' ' })
	out := make([]string, 0, len(fields))
	for _, f := range fields {
		if f = strings.TrimSpace(f); f != "" {
			out = append(out, f)
		}
	}
	return out
}
