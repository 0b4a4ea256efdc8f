package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ericfisherdev/actionwatch/internal/domain/port/driven"
)

// credentialService is the CredentialStore slot holding the GitHub token.
const credentialService = "github_token"

// Compile-time interface satisfaction check.
var _ driven.CredentialProvider = (*CredentialBroker)(nil)

// ErrAuthInProgress is returned by StartAuthentication while a flow is running.
var ErrAuthInProgress = errors.New("authentication already in progress")

// AuthStatus is a snapshot of the broker's credential state.
type AuthStatus struct {
	Authenticated bool
	Source        string
	Interactive   bool
	InProgress    bool
	Pending       *driven.DevicePrompt
}

// CredentialBroker owns the in-memory credential for the process and hands it
// to the monitor. A credential is resolved lazily in this order: the encrypted
// credential store, then each configured TokenSource. Refresh runs the
// interactive authorizer when one is configured.
type CredentialBroker struct {
	mu      sync.RWMutex
	token   string
	source  string
	pending *driven.DevicePrompt

	store      driven.CredentialStore // nil disables persistence.
	sources    []driven.TokenSource
	authorizer driven.Authorizer // nil means non-interactive.
	prompt     func(driven.DevicePrompt)
	logger     *slog.Logger

	running  atomic.Bool
	bg       sync.WaitGroup
	bgMu     sync.Mutex
	bgCancel context.CancelFunc
}

// BrokerOption configures a CredentialBroker.
type BrokerOption func(*CredentialBroker)

// WithCredentialStore persists obtained tokens across restarts.
func WithCredentialStore(store driven.CredentialStore) BrokerOption {
	return func(b *CredentialBroker) { b.store = store }
}

// WithTokenSources sets the non-interactive sources consulted after the store.
func WithTokenSources(sources ...driven.TokenSource) BrokerOption {
	return func(b *CredentialBroker) { b.sources = append(b.sources, sources...) }
}

// WithAuthorizer enables interactive refresh. prompt receives the device code
// the user must enter; it may be nil.
func WithAuthorizer(a driven.Authorizer, prompt func(driven.DevicePrompt)) BrokerOption {
	return func(b *CredentialBroker) {
		b.authorizer = a
		b.prompt = prompt
	}
}

// WithBrokerLogger overrides the default logger.
func WithBrokerLogger(logger *slog.Logger) BrokerOption {
	return func(b *CredentialBroker) { b.logger = logger }
}

// NewCredentialBroker creates a broker with no cached credential.
func NewCredentialBroker(opts ...BrokerOption) *CredentialBroker {
	b := &CredentialBroker{logger: slog.Default()}
	for _, o := range opts {
		o(b)
	}
	return b
}

// Credential returns the cached credential, resolving it on first use.
func (b *CredentialBroker) Credential(ctx context.Context) (string, error) {
	b.mu.RLock()
	token := b.token
	b.mu.RUnlock()
	if token != "" {
		return token, nil
	}

	token, source, err := b.resolve(ctx)
	if err != nil {
		return "", err
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.token == "" {
		b.token, b.source = token, source
		b.logger.Info("credential resolved", "source", source)
	}
	return b.token, nil
}

// Refresh obtains a fresh credential. With an authorizer it runs the
// interactive flow and persists the result; otherwise it re-reads the
// configured sources.
func (b *CredentialBroker) Refresh(ctx context.Context) (string, error) {
	if b.authorizer == nil {
		token, source, err := b.resolve(ctx)
		if err != nil {
			return "", err
		}
		b.set(token, source)
		return token, nil
	}
	return b.Authenticate(ctx)
}

// Authenticate runs the interactive authorizer unconditionally and stores the
// resulting token.
func (b *CredentialBroker) Authenticate(ctx context.Context) (string, error) {
	if b.authorizer == nil {
		return "", fmt.Errorf("interactive authentication not configured (set ACTIONWATCH_OAUTH_CLIENT_ID): %w", driven.ErrNotAuthenticated)
	}

	token, err := b.authorizer.Authorize(ctx, b.onPrompt)

	b.mu.Lock()
	b.pending = nil
	b.mu.Unlock()

	if err != nil {
		return "", fmt.Errorf("authorize: %w", err)
	}
	if token == "" {
		return "", fmt.Errorf("authorize: empty token: %w", driven.ErrNotAuthenticated)
	}

	if b.store != nil {
		if err := b.store.Set(ctx, credentialService, token); err != nil {
			if errors.Is(err, driven.ErrEncryptionKeyNotSet) {
				b.logger.Warn("credential not persisted; it will be lost on restart", "error", err)
			} else {
				b.logger.Error("persist credential failed", "error", err)
			}
		}
	}

	b.set(token, "oauth")
	b.logger.Info("authentication complete")
	return token, nil
}

// StartAuthentication runs Authenticate in the background, detached from
// ctx cancellation and bounded by timeout. Only one flow runs at a time.
func (b *CredentialBroker) StartAuthentication(ctx context.Context, timeout time.Duration) error {
	if b.authorizer == nil {
		return fmt.Errorf("interactive authentication not configured (set ACTIONWATCH_OAUTH_CLIENT_ID): %w", driven.ErrNotAuthenticated)
	}
	if !b.running.CompareAndSwap(false, true) {
		return ErrAuthInProgress
	}

	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), timeout)
	b.bgMu.Lock()
	b.bgCancel = cancel
	b.bgMu.Unlock()

	b.bg.Add(1)
	go func() {
		defer b.bg.Done()
		defer b.running.Store(false)
		defer cancel()

		if _, err := b.Authenticate(ctx); err != nil {
			b.logger.Error("background authentication failed", "error", err)
		}
	}()
	return nil
}

// Wait blocks until background authentications finish.
func (b *CredentialBroker) Wait() {
	b.bg.Wait()
}

// Shutdown cancels a running background authentication and waits for it to
// exit or for ctx to expire.
func (b *CredentialBroker) Shutdown(ctx context.Context) error {
	b.bgMu.Lock()
	if b.bgCancel != nil {
		b.bgCancel()
	}
	b.bgMu.Unlock()

	done := make(chan struct{})
	go func() {
		b.bg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("waiting for background authentication: %w", ctx.Err())
	}
}

// Interactive reports whether Authenticate can run a device flow.
func (b *CredentialBroker) Interactive() bool {
	return b.authorizer != nil
}

// Clear discards the cached credential and deletes the stored copy.
func (b *CredentialBroker) Clear(ctx context.Context) error {
	b.set("", "")

	if b.store == nil {
		return nil
	}
	if err := b.store.Delete(ctx, credentialService); err != nil {
		return fmt.Errorf("delete stored credential: %w", err)
	}
	return nil
}

// Status reports whether a credential is available without triggering any
// interactive flow.
func (b *CredentialBroker) Status(ctx context.Context) AuthStatus {
	_, err := b.Credential(ctx)

	b.mu.RLock()
	defer b.mu.RUnlock()

	status := AuthStatus{
		Authenticated: err == nil,
		Source:        b.source,
		Interactive:   b.authorizer != nil,
		InProgress:    b.running.Load(),
	}
	if b.pending != nil {
		p := *b.pending
		status.Pending = &p
	}
	return status
}

func (b *CredentialBroker) onPrompt(p driven.DevicePrompt) {
	b.mu.Lock()
	b.pending = &p
	b.mu.Unlock()

	if b.prompt != nil {
		b.prompt(p)
	}
}

func (b *CredentialBroker) set(token, source string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.token = token
	b.source = source
}

// resolve walks the store and token sources. Source failures are logged and
// skipped.
func (b *CredentialBroker) resolve(ctx context.Context) (string, string, error) {
	if b.store != nil {
		token, err := b.store.Get(ctx, credentialService)
		switch {
		case err == nil && token != "":
			return token, "store", nil
		case err != nil && !errors.Is(err, driven.ErrEncryptionKeyNotSet):
			b.logger.Warn("read stored credential failed", "error", err)
		}
	}

	for _, src := range b.sources {
		token, err := src.Token(ctx)
		if err != nil {
			b.logger.Debug("token source unavailable", "source", src.Name(), "error", err)
			continue
		}
		if token != "" {
			return token, src.Name(), nil
		}
	}

	return "", "", driven.ErrNotAuthenticated
}
