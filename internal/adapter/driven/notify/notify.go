// Package notify delivers run-state notifications to one or more sinks.
package notify

import (
	"context"
	"log/slog"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/ericfisherdev/actionwatch/internal/domain/model"
	"github.com/ericfisherdev/actionwatch/internal/domain/port/driven"
)

// sinkTimeout bounds a single sink delivery.
const sinkTimeout = 10 * time.Second

// Sink is a notification destination.
type Sink interface {
	Send(ctx context.Context, n model.Notification) error
	Name() string
}

// Compile-time interface satisfaction check.
var _ driven.Notifier = (*Dispatcher)(nil)

// Dispatcher fans a notification out to every configured sink. It implements
// driven.Notifier: sink failures are logged and never returned.
type Dispatcher struct {
	sinks  []Sink
	logger *slog.Logger
}

// NewDispatcher creates a dispatcher over sinks.
func NewDispatcher(logger *slog.Logger, sinks ...Sink) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{sinks: sinks, logger: logger}
}

// Notify assigns n an ID and sends it to every sink in order. Each delivery
// gets its own timeout and survives cancellation of ctx so an in-flight alert
// is not cut short by shutdown.
func (d *Dispatcher) Notify(ctx context.Context, n model.Notification) {
	if n.CreatedAt.IsZero() {
		n.CreatedAt = time.Now().UTC()
	}
	if n.ID == "" {
		n.ID = newID(n.CreatedAt)
	}

	for _, sink := range d.sinks {
		sendCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), sinkTimeout)
		err := sink.Send(sendCtx, n)
		cancel()

		if err != nil {
			d.logger.Error("notification delivery failed",
				"sink", sink.Name(),
				"target", n.Target.String(),
				"run_id", n.RunID,
				"error", err,
			)
		}
	}
}

func newID(t time.Time) string {
	return ulid.MustNew(ulid.Timestamp(t), ulid.DefaultEntropy()).String()
}

// Sinks returns the configured sink names.
func (d *Dispatcher) Sinks() []string {
	names := make([]string, 0, len(d.sinks))
	for _, s := range d.sinks {
		names = append(names, s.Name())
	}
	return names
}

// payload is the JSON document sent by the webhook and SQS sinks.
type payload struct {
	ID         string    `json:"id,omitempty"`
	Owner      string    `json:"owner"`
	Repo       string    `json:"repo"`
	Branch     string    `json:"branch"`
	RunID      int64     `json:"run_id"`
	RunName    string    `json:"run_name,omitempty"`
	Status     string    `json:"status"`
	Conclusion string    `json:"conclusion,omitempty"`
	URL        string    `json:"url,omitempty"`
	Title      string    `json:"title"`
	Body       string    `json:"body"`
	CreatedAt  time.Time `json:"created_at"`
}

func newPayload(n model.Notification) payload {
	return payload{
		ID:         n.ID,
		Owner:      n.Target.Owner,
		Repo:       n.Target.Repo,
		Branch:     n.Target.Branch,
		RunID:      n.RunID,
		RunName:    n.RunName,
		Status:     string(n.Status),
		Conclusion: string(n.Conclusion),
		URL:        n.URL,
		Title:      n.Title,
		Body:       n.Body,
		CreatedAt:  n.CreatedAt,
	}
}
