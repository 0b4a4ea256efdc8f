// Package viewmodel defines presentation-ready structs for the dashboard
// components. View models decouple template rendering from domain model types.
package viewmodel

// DashboardViewModel holds everything rendered on the dashboard page.
type DashboardViewModel struct {
	CSRFToken     string
	Flash         string // One-shot message from the last form post.
	Auth          AuthViewModel
	LastCycle     *CycleViewModel // nil until the first cycle completes.
	Targets       []TargetViewModel
	Notifications []NotificationViewModel
}

// AuthViewModel holds presentation-ready credential state.
type AuthViewModel struct {
	Authenticated   bool
	Source          string
	CanAuthenticate bool // Interactive and no flow running.
	InProgress      bool
	UserCode        string
	VerificationURI string
}

// TargetViewModel holds presentation-ready data for a watch-list row.
type TargetViewModel struct {
	Label      string // owner/repo@branch
	Owner      string
	Repo       string
	Branch     string
	RunID      int64
	Status     string
	Conclusion string
	BadgeClass string // CSS class for the state badge.
	UpdatedAgo string
	Observed   bool // false until a run has been recorded.
}

// CycleViewModel summarizes the last completed cycle.
type CycleViewModel struct {
	Seq         uint64
	Trigger     string
	StartedAgo  string
	Duration    string
	Notified    int
	Unchanged   int
	Failed      int
	FailedLines []string // "target: error" for every failed target.
}

// NotificationViewModel holds presentation-ready data for a feed entry.
type NotificationViewModel struct {
	ID         string
	Title      string
	Target     string
	BodyHTML   string // Sanitized HTML.
	URL        string
	BadgeClass string
	CreatedAgo string
}
