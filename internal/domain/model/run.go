package model

import "time"

// RunStatus is the lifecycle status of a workflow run as reported by GitHub.
type RunStatus string

const (
	RunStatusQueued     RunStatus = "queued"
	RunStatusInProgress RunStatus = "in_progress"
	RunStatusCompleted  RunStatus = "completed"
	RunStatusWaiting    RunStatus = "waiting"
	RunStatusRequested  RunStatus = "requested"
	RunStatusPending    RunStatus = "pending"
)

// RunConclusion is the outcome of a workflow run. It is empty until GitHub
// reports one, which normally happens when the run completes.
type RunConclusion string

const (
	RunConclusionNone           RunConclusion = ""
	RunConclusionSuccess        RunConclusion = "success"
	RunConclusionFailure        RunConclusion = "failure"
	RunConclusionCancelled      RunConclusion = "cancelled"
	RunConclusionSkipped        RunConclusion = "skipped"
	RunConclusionTimedOut       RunConclusion = "timed_out"
	RunConclusionActionRequired RunConclusion = "action_required"
	RunConclusionNeutral        RunConclusion = "neutral"
	RunConclusionStale          RunConclusion = "stale"
)

// RunState is the last run observation that was acted upon for a target.
// It is replaced only when a notification fires.
type RunState struct {
	RunID      int64
	Status     RunStatus
	Conclusion RunConclusion
}

// RunSummary is the latest run fetched for a target during a cycle.
// It is never persisted directly; see RunSummary.State.
type RunSummary struct {
	RunID      int64
	Name       string
	Status     RunStatus
	Conclusion RunConclusion
	HTMLURL    string
	Event      string
	HeadSHA    string
	UpdatedAt  time.Time
}

// State projects the summary onto the fields tracked between cycles.
func (s RunSummary) State() RunState {
	return RunState{
		RunID:      s.RunID,
		Status:     s.Status,
		Conclusion: s.Conclusion,
	}
}
