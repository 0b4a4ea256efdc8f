package application

import "github.com/ericfisherdev/actionwatch/internal/domain/model"

// DecisionReason explains why Decide returned its result.
type DecisionReason string

const (
	ReasonFirstObservation DecisionReason = "first_observation"
	ReasonNewRun           DecisionReason = "new_run"
	ReasonStateChanged     DecisionReason = "state_changed"
	ReasonUnchanged        DecisionReason = "unchanged"
)

// Decision is the outcome of evaluating a fetched run against the stored state.
// Next is meaningful only when Notify is true.
type Decision struct {
	Notify bool
	Next   model.RunState
	Reason DecisionReason
}

// Decide compares the last acted-upon state with the freshly fetched run.
// Rules are evaluated in order and the first match wins:
//  1. no previous state -> notify
//  2. different run ID -> notify
//  3. different status or conclusion -> notify
//  4. otherwise -> no-op
//
// Comparison is structural: a completed run without a conclusion is just
// another state. Decide is pure and total.
func Decide(previous *model.RunState, current model.RunSummary) Decision {
	next := current.State()

	switch {
	case previous == nil:
		return Decision{Notify: true, Next: next, Reason: ReasonFirstObservation}
	case previous.RunID != current.RunID:
		return Decision{Notify: true, Next: next, Reason: ReasonNewRun}
	case previous.Status != current.Status || previous.Conclusion != current.Conclusion:
		return Decision{Notify: true, Next: next, Reason: ReasonStateChanged}
	default:
		return Decision{Reason: ReasonUnchanged}
	}
}
