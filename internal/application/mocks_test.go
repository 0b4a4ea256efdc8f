package application_test

import (
	"context"
	"sort"
	"sync"

	"github.com/ericfisherdev/actionwatch/internal/domain/model"
	"github.com/ericfisherdev/actionwatch/internal/domain/port/driven"
)

// --- Mock implementations ---

type fakeCI struct {
	mu    sync.Mutex
	fetch func(ctx context.Context, key model.TargetKey, token string) (model.RunSummary, error)
	calls []fetchCall
}

type fetchCall struct {
	Key   model.TargetKey
	Token string
}

func (f *fakeCI) FetchLatestRun(ctx context.Context, key model.TargetKey, token string) (model.RunSummary, error) {
	f.mu.Lock()
	f.calls = append(f.calls, fetchCall{Key: key, Token: token})
	fn := f.fetch
	f.mu.Unlock()
	return fn(ctx, key, token)
}

func (f *fakeCI) Calls() []fetchCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]fetchCall(nil), f.calls...)
}

// fakeStore is an in-memory TargetStore keyed by the target triple.
type fakeStore struct {
	mu       sync.Mutex
	targets  map[model.TargetKey]*model.WatchTarget
	sets     []setCall
	listErr  error
	setErr   error
	honorCtx bool // SetState fails on a done context, like a real driver.
	onSet    func(key model.TargetKey)
	onListed func()
}

type setCall struct {
	Key   model.TargetKey
	State model.RunState
}

func newFakeStore(keys ...model.TargetKey) *fakeStore {
	s := &fakeStore{targets: make(map[model.TargetKey]*model.WatchTarget)}
	for _, k := range keys {
		s.targets[k] = &model.WatchTarget{Key: k}
	}
	return s
}

func (s *fakeStore) ListTargets(_ context.Context) ([]model.WatchTarget, error) {
	s.mu.Lock()
	if s.listErr != nil {
		s.mu.Unlock()
		return nil, s.listErr
	}
	out := make([]model.WatchTarget, 0, len(s.targets))
	for _, t := range s.targets {
		cp := *t
		if t.LastKnownState != nil {
			st := *t.LastKnownState
			cp.LastKnownState = &st
		}
		out = append(out, cp)
	}
	hook := s.onListed
	s.mu.Unlock()

	sort.Slice(out, func(i, j int) bool { return out[i].Key.String() < out[j].Key.String() })
	if hook != nil {
		hook()
	}
	return out, nil
}

func (s *fakeStore) GetState(_ context.Context, key model.TargetKey) (*model.RunState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.targets[key]
	if !ok {
		return nil, driven.ErrTargetNotFound
	}
	if t.LastKnownState == nil {
		return nil, nil
	}
	st := *t.LastKnownState
	return &st, nil
}

func (s *fakeStore) SetState(ctx context.Context, key model.TargetKey, state model.RunState) error {
	if s.honorCtx && ctx.Err() != nil {
		return ctx.Err()
	}
	s.mu.Lock()
	hook := s.onSet
	s.sets = append(s.sets, setCall{Key: key, State: state})
	if s.setErr != nil {
		err := s.setErr
		s.mu.Unlock()
		return err
	}
	t, ok := s.targets[key]
	if !ok {
		s.mu.Unlock()
		return driven.ErrTargetNotFound
	}
	st := state
	t.LastKnownState = &st
	s.mu.Unlock()

	if hook != nil {
		hook(key)
	}
	return nil
}

func (s *fakeStore) AddTarget(_ context.Context, target model.WatchTarget) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.targets[target.Key]; ok {
		return driven.ErrTargetAlreadyExists
	}
	cp := target
	s.targets[target.Key] = &cp
	return nil
}

func (s *fakeStore) RemoveTarget(_ context.Context, key model.TargetKey) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.targets[key]; !ok {
		return driven.ErrTargetNotFound
	}
	delete(s.targets, key)
	return nil
}

func (s *fakeStore) state(key model.TargetKey) *model.RunState {
	st, _ := s.GetState(context.Background(), key)
	return st
}

func (s *fakeStore) has(key model.TargetKey) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.targets[key]
	return ok
}

func (s *fakeStore) Sets() []setCall {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]setCall(nil), s.sets...)
}

type fakeNotifier struct {
	mu       sync.Mutex
	sent     []model.Notification
	onNotify func()
}

func (n *fakeNotifier) Notify(_ context.Context, msg model.Notification) {
	n.mu.Lock()
	n.sent = append(n.sent, msg)
	hook := n.onNotify
	n.mu.Unlock()

	if hook != nil {
		hook()
	}
}

func (n *fakeNotifier) Sent() []model.Notification {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]model.Notification(nil), n.sent...)
}

// fakeCreds is a CredentialProvider whose Refresh hands out the next token.
type fakeCreds struct {
	mu         sync.Mutex
	token      string
	next       []string
	refreshErr error
	refreshes  int
	clears     int
}

func (c *fakeCreds) Credential(_ context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.token == "" {
		return "", driven.ErrNotAuthenticated
	}
	return c.token, nil
}

func (c *fakeCreds) Refresh(_ context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.refreshes++
	if c.refreshErr != nil {
		return "", c.refreshErr
	}
	if len(c.next) == 0 {
		return "", driven.ErrNotAuthenticated
	}
	c.token, c.next = c.next[0], c.next[1:]
	return c.token, nil
}

func (c *fakeCreds) Clear(_ context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	// The cached token is kept so concurrent readers never observe an empty
	// credential mid-refresh.
	c.clears++
	return nil
}

func (c *fakeCreds) counts() (refreshes, clears int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.refreshes, c.clears
}

type fakeCredentialStore struct {
	mu     sync.Mutex
	values map[string]string
	setErr error
	getErr error
}

func newFakeCredentialStore() *fakeCredentialStore {
	return &fakeCredentialStore{values: make(map[string]string)}
}

func (s *fakeCredentialStore) Set(_ context.Context, service, plaintext string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.setErr != nil {
		return s.setErr
	}
	s.values[service] = plaintext
	return nil
}

func (s *fakeCredentialStore) Get(_ context.Context, service string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.getErr != nil {
		return "", s.getErr
	}
	return s.values[service], nil
}

func (s *fakeCredentialStore) Delete(_ context.Context, service string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.values, service)
	return nil
}

type staticSource struct {
	name  string
	token string
	err   error
}

func (s staticSource) Name() string { return s.name }

func (s staticSource) Token(_ context.Context) (string, error) { return s.token, s.err }

type fakeAuthorizer struct {
	token  string
	err    error
	prompt driven.DevicePrompt
	calls  int
}

func (a *fakeAuthorizer) Authorize(_ context.Context, prompt func(driven.DevicePrompt)) (string, error) {
	a.calls++
	if prompt != nil {
		prompt(a.prompt)
	}
	return a.token, a.err
}
