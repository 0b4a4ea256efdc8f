package driven

import (
	"context"

	"github.com/ericfisherdev/actionwatch/internal/domain/model"
)

// Notifier displays a user-facing alert. Delivery is fire-and-forget:
// implementations log their own failures and never report them to the caller.
type Notifier interface {
	Notify(ctx context.Context, n model.Notification)
}

// NotificationStore records delivered notifications for the feed.
type NotificationStore interface {
	Record(ctx context.Context, n model.Notification) error
	// ListRecent returns up to limit notifications, newest first.
	ListRecent(ctx context.Context, limit int) ([]model.Notification, error)
	// Prune deletes all but the newest keep notifications and returns the number removed.
	Prune(ctx context.Context, keep int) (int64, error)
}
