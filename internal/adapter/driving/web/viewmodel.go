package web

import (
	"fmt"
	"time"

	vm "github.com/ericfisherdev/actionwatch/internal/adapter/driving/web/viewmodel"
	"github.com/ericfisherdev/actionwatch/internal/application"
	"github.com/ericfisherdev/actionwatch/internal/domain/model"
)

// badgeClass maps a run status/conclusion pair to a badge CSS class.
func badgeClass(status model.RunStatus, conclusion model.RunConclusion) string {
	switch conclusion {
	case model.RunConclusionSuccess:
		return "badge-success"
	case model.RunConclusionFailure, model.RunConclusionTimedOut, model.RunConclusionActionRequired:
		return "badge-failure"
	case model.RunConclusionNone:
		if status == "" {
			return "badge-none"
		}
		if status == model.RunStatusCompleted {
			return "badge-neutral"
		}
		return "badge-running"
	default:
		return "badge-neutral"
	}
}

// ago formats the time elapsed since t in the coarsest sensible unit.
func ago(t, now time.Time) string {
	if t.IsZero() {
		return ""
	}
	d := now.Sub(t)
	switch {
	case d < time.Minute:
		return "just now"
	case d < time.Hour:
		return fmt.Sprintf("%dm ago", int(d.Minutes()))
	case d < 24*time.Hour:
		return fmt.Sprintf("%dh ago", int(d.Hours()))
	default:
		return fmt.Sprintf("%dd ago", int(d.Hours()/24))
	}
}

func toTargetViewModel(t model.WatchTarget, now time.Time) vm.TargetViewModel {
	v := vm.TargetViewModel{
		Label:      t.Key.String(),
		Owner:      t.Key.Owner,
		Repo:       t.Key.Repo,
		Branch:     t.Key.Branch,
		BadgeClass: badgeClass("", model.RunConclusionNone),
	}
	if s := t.LastKnownState; s != nil {
		v.Observed = true
		v.RunID = s.RunID
		v.Status = string(s.Status)
		v.Conclusion = string(s.Conclusion)
		v.BadgeClass = badgeClass(s.Status, s.Conclusion)
		v.UpdatedAgo = ago(t.StateUpdatedAt, now)
	}
	return v
}

func toCycleViewModel(r *application.CycleReport, now time.Time) *vm.CycleViewModel {
	if r == nil {
		return nil
	}
	v := &vm.CycleViewModel{
		Seq:        r.Seq,
		Trigger:    r.Trigger,
		StartedAgo: ago(r.StartedAt, now),
		Duration:   r.Duration.Round(time.Millisecond).String(),
		Notified:   r.Count(application.OutcomeNotified),
		Unchanged:  r.Count(application.OutcomeUnchanged),
		Failed:     r.Count(application.OutcomeFetchFailed) + r.Count(application.OutcomeStoreFailed),
	}
	for _, res := range r.Results {
		if res.Err != nil {
			v.FailedLines = append(v.FailedLines, fmt.Sprintf("%s: %v", res.Target, res.Err))
		}
	}
	return v
}

func toNotificationViewModel(n model.Notification, now time.Time) vm.NotificationViewModel {
	return vm.NotificationViewModel{
		ID:         n.ID,
		Title:      n.Title,
		Target:     n.Target.String(),
		BodyHTML:   RenderMarkdown(NotificationMarkdown(n)),
		URL:        n.URL,
		BadgeClass: badgeClass(n.Status, n.Conclusion),
		CreatedAgo: ago(n.CreatedAt, now),
	}
}

func toAuthViewModel(s application.AuthStatus) vm.AuthViewModel {
	v := vm.AuthViewModel{
		Authenticated:   s.Authenticated,
		Source:          s.Source,
		CanAuthenticate: s.Interactive && !s.InProgress,
		InProgress:      s.InProgress,
	}
	if p := s.Pending; p != nil {
		v.UserCode = p.UserCode
		v.VerificationURI = p.VerificationURI
		if p.VerificationURIComplete != "" {
			v.VerificationURI = p.VerificationURIComplete
		}
	}
	return v
}
