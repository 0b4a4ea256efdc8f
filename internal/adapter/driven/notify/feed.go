package notify

import (
	"context"
	"fmt"
	"time"

	"github.com/ericfisherdev/actionwatch/internal/domain/model"
	"github.com/ericfisherdev/actionwatch/internal/domain/port/driven"
)

// DefaultFeedRetention is the number of notifications the feed keeps.
const DefaultFeedRetention = 500

// FeedSink records notifications in the store backing the web feed and
// trims it to the newest retain entries.
type FeedSink struct {
	store  driven.NotificationStore
	retain int
}

// NewFeedSink creates a feed sink. retain <= 0 uses DefaultFeedRetention.
func NewFeedSink(store driven.NotificationStore, retain int) *FeedSink {
	if retain <= 0 {
		retain = DefaultFeedRetention
	}
	return &FeedSink{store: store, retain: retain}
}

// Name returns the sink identifier.
func (s *FeedSink) Name() string { return "feed" }

// Send records n under a fresh ULID and prunes the feed.
func (s *FeedSink) Send(ctx context.Context, n model.Notification) error {
	if n.CreatedAt.IsZero() {
		n.CreatedAt = time.Now().UTC()
	}
	if n.ID == "" {
		n.ID = newID(n.CreatedAt)
	}

	if err := s.store.Record(ctx, n); err != nil {
		return fmt.Errorf("record notification: %w", err)
	}
	if _, err := s.store.Prune(ctx, s.retain); err != nil {
		return fmt.Errorf("prune notification feed: %w", err)
	}
	return nil
}
