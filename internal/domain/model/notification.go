package model

import "time"

// Notification is a user-facing alert emitted when a target's run state changes.
type Notification struct {
	ID         string // ULID, assigned when the notification is recorded.
	Target     TargetKey
	RunID      int64
	RunName    string
	Status     RunStatus
	Conclusion RunConclusion
	URL        string
	Title      string
	Body       string
	CreatedAt  time.Time
}
