package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/sony/gobreaker"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/ericfisherdev/actionwatch/internal/domain/model"
	"github.com/ericfisherdev/actionwatch/internal/domain/port/driven"
)

// ErrMonitorRunning is returned by Start when the polling loop is already running.
var ErrMonitorRunning = errors.New("monitor already running")

// Outcome is the per-target result of a cycle.
type Outcome string

const (
	OutcomeNotified    Outcome = "notified"
	OutcomeUnchanged   Outcome = "unchanged"
	OutcomeFetchFailed Outcome = "fetch_failed"
	OutcomeStoreFailed Outcome = "store_failed"
	OutcomeSkipped     Outcome = "skipped" // Target removed while the cycle was running.
)

// TargetResult records what happened to one target during a cycle.
type TargetResult struct {
	Target  model.TargetKey
	Outcome Outcome
	Reason  DecisionReason
	RunID   int64
	Err     error
}

// CycleReport summarizes one pass over the watch list.
type CycleReport struct {
	ID        string
	Seq       uint64
	Trigger   string
	StartedAt time.Time
	Duration  time.Duration
	Results   []TargetResult
}

// Count returns the number of results with the given outcome.
func (r CycleReport) Count(o Outcome) int {
	var n int
	for _, res := range r.Results {
		if res.Outcome == o {
			n++
		}
	}
	return n
}

// MonitorConfig holds the scheduler's tunables.
type MonitorConfig struct {
	Interval         time.Duration // Period between scheduled cycles.
	FetchTimeout     time.Duration // Bound on each CI API call and state write.
	ReauthTimeout    time.Duration // Bound on an interactive reauthorization.
	Concurrency      int           // Targets processed in parallel within a cycle.
	FailureThreshold uint32        // Consecutive failures before a target is reported as failing.
}

func (c MonitorConfig) withDefaults() MonitorConfig {
	if c.Interval <= 0 {
		c.Interval = time.Minute
	}
	if c.FetchTimeout <= 0 {
		c.FetchTimeout = 15 * time.Second
	}
	if c.ReauthTimeout <= 0 {
		c.ReauthTimeout = 5 * time.Minute
	}
	if c.Concurrency <= 0 {
		c.Concurrency = 4
	}
	if c.FailureThreshold == 0 {
		c.FailureThreshold = 5
	}
	return c
}

// MonitorOption configures a MonitorService.
type MonitorOption func(*MonitorService)

// WithLogger overrides the default logger.
func WithLogger(logger *slog.Logger) MonitorOption {
	return func(s *MonitorService) { s.logger = logger }
}

// WithMetrics records cycle metrics on m.
func WithMetrics(m *Metrics) MonitorOption {
	return func(s *MonitorService) { s.metrics = m }
}

// WithTracerProvider overrides the global tracer provider.
func WithTracerProvider(tp trace.TracerProvider) MonitorOption {
	return func(s *MonitorService) { s.tracer = tp.Tracer(instrumentationName) }
}

// MonitorService polls the CI provider for every watch target, decides
// whether the latest run is new information and, if so, notifies and
// persists the new state.
//
// Cycles never overlap: scheduled cycles, CheckNow and CheckTarget all
// serialize on cycleMu, so a later cycle's state write can never be
// overtaken by an earlier one. Within a cycle each target is handled by
// exactly one goroutine.
type MonitorService struct {
	ci       driven.CIClient
	creds    driven.CredentialProvider
	store    driven.TargetStore
	notifier driven.Notifier
	cfg      MonitorConfig
	logger   *slog.Logger
	metrics  *Metrics
	tracer   trace.Tracer

	cycleMu sync.Mutex
	seq     uint64
	reauth  singleflight.Group

	breakersMu sync.Mutex
	breakers   map[model.TargetKey]*gobreaker.TwoStepCircuitBreaker

	lastCycle atomic.Pointer[CycleReport]

	runMu  sync.Mutex
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewMonitorService creates a MonitorService with all required dependencies.
func NewMonitorService(
	ci driven.CIClient,
	creds driven.CredentialProvider,
	store driven.TargetStore,
	notifier driven.Notifier,
	cfg MonitorConfig,
	opts ...MonitorOption,
) *MonitorService {
	s := &MonitorService{
		ci:       ci,
		creds:    creds,
		store:    store,
		notifier: notifier,
		cfg:      cfg.withDefaults(),
		logger:   slog.Default(),
		tracer:   otel.Tracer(instrumentationName),
		breakers: make(map[model.TargetKey]*gobreaker.TwoStepCircuitBreaker),
	}
	for _, o := range opts {
		o(s)
	}
	if s.metrics == nil {
		s.metrics = noopMetrics()
	}
	return s
}

// Start launches the polling loop in the background. If any targets are
// watched it runs one cycle immediately, then one per interval, until ctx is
// canceled or Stop is called. It returns ErrMonitorRunning if a loop started
// earlier has not been stopped.
func (s *MonitorService) Start(ctx context.Context) error {
	s.runMu.Lock()
	defer s.runMu.Unlock()

	if s.cancel != nil {
		return ErrMonitorRunning
	}
	ctx, s.cancel = context.WithCancel(ctx)

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.loop(ctx)
	}()
	return nil
}

// Stop cancels the polling loop and waits for it to exit or for ctx to expire.
// An in-flight cycle is abandoned; each target's state write is atomic.
func (s *MonitorService) Stop(ctx context.Context) error {
	s.runMu.Lock()
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
	s.runMu.Unlock()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("waiting for monitor to stop: %w", ctx.Err())
	}
}

func (s *MonitorService) loop(ctx context.Context) {
	s.logger.Info("monitor started", "interval", s.cfg.Interval, "concurrency", s.cfg.Concurrency)

	targets, err := s.store.ListTargets(ctx)
	switch {
	case err != nil:
		s.logger.Error("list targets at startup failed", "error", err)
	case len(targets) > 0:
		s.runLogged(ctx, "startup")
	default:
		s.logger.Info("no watch targets yet, waiting for the first interval")
	}

	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("monitor stopped")
			return
		case <-ticker.C:
			s.runLogged(ctx, "scheduled")
		}
	}
}

func (s *MonitorService) runLogged(ctx context.Context, trigger string) {
	if _, err := s.runCycle(ctx, trigger); err != nil && ctx.Err() == nil {
		s.logger.Error("monitor cycle failed", "trigger", trigger, "error", err)
	}
}

// CheckNow runs one full cycle immediately, outside the timer. It waits for
// any cycle already in progress. The error is non-nil only when the cycle as
// a whole could not run; per-target failures are reported in the result.
func (s *MonitorService) CheckNow(ctx context.Context) (CycleReport, error) {
	return s.runCycle(ctx, "manual")
}

// CheckTarget runs the per-target pipeline for a single watched target.
func (s *MonitorService) CheckTarget(ctx context.Context, key model.TargetKey) (TargetResult, error) {
	s.cycleMu.Lock()
	defer s.cycleMu.Unlock()

	previous, err := s.store.GetState(ctx, key)
	if err != nil {
		return TargetResult{}, fmt.Errorf("get state for %s: %w", key, err)
	}

	res := s.processTarget(ctx, model.WatchTarget{Key: key, LastKnownState: previous})
	s.logger.Info("target checked", "target", key.String(), "outcome", res.Outcome)
	return res, nil
}

// LastCycle returns the most recent completed cycle report, or nil.
func (s *MonitorService) LastCycle() *CycleReport {
	return s.lastCycle.Load()
}

func (s *MonitorService) runCycle(ctx context.Context, trigger string) (CycleReport, error) {
	s.cycleMu.Lock()
	defer s.cycleMu.Unlock()

	s.seq++
	report := CycleReport{
		ID:        uuid.NewString(),
		Seq:       s.seq,
		Trigger:   trigger,
		StartedAt: time.Now(),
	}

	ctx, span := s.tracer.Start(ctx, "monitor.cycle", trace.WithAttributes(
		attribute.String("cycle.id", report.ID),
		attribute.Int64("cycle.seq", int64(report.Seq)),
		attribute.String("cycle.trigger", trigger),
	))
	defer span.End()

	targets, err := s.store.ListTargets(ctx)
	if err != nil {
		report.Duration = time.Since(report.StartedAt)
		s.metrics.recordCycle(ctx, trigger, report.Duration, true)
		span.RecordError(err)
		span.SetStatus(codes.Error, "list targets failed")
		return report, fmt.Errorf("list targets: %w", err)
	}
	s.pruneBreakers(targets)

	results := make([]TargetResult, len(targets))

	var g errgroup.Group
	g.SetLimit(s.cfg.Concurrency)
	for i, t := range targets {
		g.Go(func() error {
			results[i] = s.processTarget(ctx, t)
			return nil
		})
	}
	_ = g.Wait()

	report.Results = results
	report.Duration = time.Since(report.StartedAt)
	s.lastCycle.Store(&report)

	cycleErr := ctx.Err()
	s.metrics.recordCycle(ctx, trigger, report.Duration, cycleErr != nil)

	s.logger.Info("monitor cycle complete",
		"cycle_id", report.ID,
		"seq", report.Seq,
		"trigger", trigger,
		"targets", len(targets),
		"notified", report.Count(OutcomeNotified),
		"unchanged", report.Count(OutcomeUnchanged),
		"fetch_failed", report.Count(OutcomeFetchFailed),
		"store_failed", report.Count(OutcomeStoreFailed),
		"duration", report.Duration.Round(time.Millisecond),
	)

	if cycleErr != nil {
		return report, fmt.Errorf("cycle interrupted: %w", cycleErr)
	}
	return report, nil
}

// processTarget fetches, decides and, on a notify decision, alerts and
// persists. All errors stop at this boundary.
func (s *MonitorService) processTarget(ctx context.Context, t model.WatchTarget) TargetResult {
	res := TargetResult{Target: t.Key}
	log := s.logger.With("target", t.Key.String())

	ctx, span := s.tracer.Start(ctx, "monitor.target", trace.WithAttributes(
		attribute.String("target", t.Key.String()),
	))
	defer span.End()

	summary, err := s.fetch(ctx, t.Key)
	if err != nil {
		kind := driven.FetchErrorKind(err)
		log.Warn("fetch latest run failed", "kind", kind, "error", err)
		s.metrics.recordFetchFailure(ctx, kind)
		span.RecordError(err)
		span.SetStatus(codes.Error, "fetch failed")
		res.Outcome = OutcomeFetchFailed
		res.Err = err
		return res
	}

	res.RunID = summary.RunID
	decision := Decide(t.LastKnownState, summary)
	res.Reason = decision.Reason
	span.SetAttributes(attribute.String("decision.reason", string(decision.Reason)))

	if !decision.Notify {
		log.Debug("run unchanged", "run_id", summary.RunID, "status", summary.Status)
		res.Outcome = OutcomeUnchanged
		return res
	}

	s.notifier.Notify(ctx, BuildNotification(t.Key, summary, time.Now()))
	s.metrics.recordNotification(ctx, decision.Reason)

	// The write is a single atomic statement and runs detached from
	// cancellation so a notification is not repeated after shutdown.
	persistCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.cfg.FetchTimeout)
	defer cancel()

	if err := s.store.SetState(persistCtx, t.Key, decision.Next); err != nil {
		if errors.Is(err, driven.ErrTargetNotFound) {
			log.Info("target removed during cycle, state not persisted", "run_id", summary.RunID)
			res.Outcome = OutcomeSkipped
			return res
		}
		log.Error("persist run state failed; the next cycle may repeat this notification",
			"run_id", summary.RunID, "error", err)
		s.metrics.recordStoreFailure(ctx)
		span.RecordError(err)
		res.Outcome = OutcomeStoreFailed
		res.Err = err
		return res
	}

	log.Info("run state changed",
		"run_id", summary.RunID,
		"status", summary.Status,
		"conclusion", summary.Conclusion,
		"reason", decision.Reason,
	)
	res.Outcome = OutcomeNotified
	return res
}

// fetch runs the authorized fetch and reports its outcome to the target's
// failure breaker. The breaker only observes: the fetch runs in every state.
// While the breaker is open outcomes are not recorded; it half-opens after
// its timeout and the next outcome decides whether it closes.
func (s *MonitorService) fetch(ctx context.Context, key model.TargetKey) (model.RunSummary, error) {
	done, allowErr := s.breakerFor(key).Allow()

	summary, err := s.authorizedFetch(ctx, key)
	if allowErr == nil {
		done(err == nil || errors.Is(err, context.Canceled))
	}
	return summary, err
}

// authorizedFetch fetches with the current credential and, on a 401,
// reauthorizes once and retries the same fetch once.
func (s *MonitorService) authorizedFetch(ctx context.Context, key model.TargetKey) (model.RunSummary, error) {
	token, err := s.creds.Credential(ctx)
	if err != nil {
		return model.RunSummary{}, fmt.Errorf("resolve credential: %w", err)
	}

	summary, err := s.fetchOnce(ctx, key, token)
	if !errors.Is(err, driven.ErrUnauthorized) {
		return summary, err
	}

	s.logger.Info("credential rejected, reauthorizing", "target", key.String())
	fresh, authErr := s.reauthorize(ctx, token)
	s.metrics.recordReauthorization(ctx, authErr == nil)
	if authErr != nil {
		return model.RunSummary{}, fmt.Errorf("reauthorize after %w: %w", err, authErr)
	}

	return s.fetchOnce(ctx, key, fresh)
}

func (s *MonitorService) fetchOnce(ctx context.Context, key model.TargetKey, token string) (model.RunSummary, error) {
	ctx, cancel := context.WithTimeout(ctx, s.cfg.FetchTimeout)
	defer cancel()
	return s.ci.FetchLatestRun(ctx, key, token)
}

// reauthorize replaces a rejected credential. Concurrent callers holding the
// same stale token share one attempt, and a caller whose token was already
// replaced gets the replacement without a new attempt.
func (s *MonitorService) reauthorize(ctx context.Context, stale string) (string, error) {
	v, err, _ := s.reauth.Do(stale, func() (interface{}, error) {
		if current, err := s.creds.Credential(ctx); err == nil && current != stale {
			return current, nil
		}

		if err := s.creds.Clear(ctx); err != nil {
			s.logger.Warn("clear rejected credential failed", "error", err)
		}

		ctx, cancel := context.WithTimeout(ctx, s.cfg.ReauthTimeout)
		defer cancel()
		return s.creds.Refresh(ctx)
	})
	if err != nil {
		return "", err
	}
	return v.(string), nil
}

func (s *MonitorService) breakerFor(key model.TargetKey) *gobreaker.TwoStepCircuitBreaker {
	s.breakersMu.Lock()
	defer s.breakersMu.Unlock()

	if cb, ok := s.breakers[key]; ok {
		return cb
	}

	threshold := s.cfg.FailureThreshold
	cb := gobreaker.NewTwoStepCircuitBreaker(gobreaker.Settings{
		Name:        key.String(),
		MaxRequests: 1,
		Timeout:     s.cfg.Interval / 2,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= threshold
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			s.metrics.recordBreakerTransition(context.Background(), to.String())
			if to == gobreaker.StateOpen {
				s.logger.Warn("target failing persistently", "target", name, "consecutive_failures", threshold)
				return
			}
			s.logger.Info("target breaker state changed", "target", name, "from", from.String(), "to", to.String())
		},
	})
	s.breakers[key] = cb
	return cb
}

// pruneBreakers drops breakers for targets no longer watched.
func (s *MonitorService) pruneBreakers(targets []model.WatchTarget) {
	live := make(map[model.TargetKey]struct{}, len(targets))
	for _, t := range targets {
		live[t.Key] = struct{}{}
	}

	s.breakersMu.Lock()
	defer s.breakersMu.Unlock()
	for key := range s.breakers {
		if _, ok := live[key]; !ok {
			delete(s.breakers, key)
		}
	}
}
