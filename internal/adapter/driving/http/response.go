package httphandler

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/ericfisherdev/actionwatch/internal/application"
	"github.com/ericfisherdev/actionwatch/internal/domain/model"
	"github.com/ericfisherdev/actionwatch/internal/domain/port/driven"
)

// writeJSON marshals v to JSON and writes it to the response with the given
// status code. If marshaling fails, a 500 error is written instead.
func writeJSON(w http.ResponseWriter, status int, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"error":"internal server error"}`))
		return
	}

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_, _ = w.Write(data)
}

// writeError writes a JSON error response with the given status code and message.
func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, errorResponse{Error: message})
}

// errorResponse is the standard error response body.
type errorResponse struct {
	Error string `json:"error"`
}

// HealthResponse is the JSON representation of the health check endpoint.
type HealthResponse struct {
	Status    string `json:"status"`
	Time      string `json:"time"`
	LastCycle string `json:"last_cycle,omitempty"`
	Database  string `json:"database,omitempty"`
}

// RunStateResponse is the last run state that triggered a notification.
type RunStateResponse struct {
	RunID      int64  `json:"run_id"`
	Status     string `json:"status"`
	Conclusion string `json:"conclusion,omitempty"`
	UpdatedAt  string `json:"updated_at,omitempty"`
}

// TargetResponse is the JSON representation of a watch target.
type TargetResponse struct {
	Target  string            `json:"target"`
	Owner   string            `json:"owner"`
	Repo    string            `json:"repo"`
	Branch  string            `json:"branch"`
	AddedAt string            `json:"added_at"`
	LastRun *RunStateResponse `json:"last_run"`
}

// AddTargetRequest is the JSON body for the add target endpoint.
type AddTargetRequest struct {
	Repository string `json:"repository"` // owner/repo
	Branch     string `json:"branch"`
}

// TargetResultResponse is one target's outcome within a cycle.
type TargetResultResponse struct {
	Target  string `json:"target"`
	Outcome string `json:"outcome"`
	Reason  string `json:"reason,omitempty"`
	RunID   int64  `json:"run_id,omitempty"`
	Error   string `json:"error,omitempty"`
	Kind    string `json:"error_kind,omitempty"`
}

// CycleResponse is the JSON representation of a cycle report.
type CycleResponse struct {
	ID         string                 `json:"id"`
	Seq        uint64                 `json:"seq"`
	Trigger    string                 `json:"trigger"`
	StartedAt  string                 `json:"started_at"`
	DurationMS int64                  `json:"duration_ms"`
	Counts     map[string]int         `json:"counts"`
	Results    []TargetResultResponse `json:"results"`
}

// NotificationResponse is one entry of the notification feed.
type NotificationResponse struct {
	ID         string `json:"id"`
	Target     string `json:"target"`
	RunID      int64  `json:"run_id"`
	RunName    string `json:"run_name,omitempty"`
	Status     string `json:"status"`
	Conclusion string `json:"conclusion,omitempty"`
	URL        string `json:"url,omitempty"`
	Title      string `json:"title"`
	Body       string `json:"body"`
	CreatedAt  string `json:"created_at"`
}

// DevicePromptResponse is the pending half of a device authorization.
type DevicePromptResponse struct {
	UserCode        string `json:"user_code"`
	VerificationURI string `json:"verification_uri"`
	ExpiresAt       string `json:"expires_at,omitempty"`
}

// AuthResponse reports the credential state.
type AuthResponse struct {
	Authenticated bool                  `json:"authenticated"`
	Source        string                `json:"source,omitempty"`
	Interactive   bool                  `json:"interactive"`
	InProgress    bool                  `json:"in_progress"`
	Pending       *DevicePromptResponse `json:"pending,omitempty"`
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}

// toTargetResponse converts a domain WatchTarget to its JSON representation.
func toTargetResponse(t model.WatchTarget) TargetResponse {
	resp := TargetResponse{
		Target:  t.Key.String(),
		Owner:   t.Key.Owner,
		Repo:    t.Key.Repo,
		Branch:  t.Key.Branch,
		AddedAt: formatTime(t.AddedAt),
	}
	if s := t.LastKnownState; s != nil {
		resp.LastRun = &RunStateResponse{
			RunID:      s.RunID,
			Status:     string(s.Status),
			Conclusion: string(s.Conclusion),
			UpdatedAt:  formatTime(t.StateUpdatedAt),
		}
	}
	return resp
}

func toTargetResultResponse(r application.TargetResult) TargetResultResponse {
	resp := TargetResultResponse{
		Target:  r.Target.String(),
		Outcome: string(r.Outcome),
		Reason:  string(r.Reason),
		RunID:   r.RunID,
	}
	if r.Err != nil {
		resp.Error = r.Err.Error()
		resp.Kind = driven.FetchErrorKind(r.Err)
	}
	return resp
}

// toCycleResponse converts a cycle report to its JSON representation.
func toCycleResponse(r application.CycleReport) CycleResponse {
	results := make([]TargetResultResponse, 0, len(r.Results))
	counts := make(map[string]int)
	for _, res := range r.Results {
		results = append(results, toTargetResultResponse(res))
		counts[string(res.Outcome)]++
	}

	return CycleResponse{
		ID:         r.ID,
		Seq:        r.Seq,
		Trigger:    r.Trigger,
		StartedAt:  formatTime(r.StartedAt),
		DurationMS: r.Duration.Milliseconds(),
		Counts:     counts,
		Results:    results,
	}
}

func toNotificationResponse(n model.Notification) NotificationResponse {
	return NotificationResponse{
		ID:         n.ID,
		Target:     n.Target.String(),
		RunID:      n.RunID,
		RunName:    n.RunName,
		Status:     string(n.Status),
		Conclusion: string(n.Conclusion),
		URL:        n.URL,
		Title:      n.Title,
		Body:       n.Body,
		CreatedAt:  formatTime(n.CreatedAt),
	}
}

func toAuthResponse(s application.AuthStatus) AuthResponse {
	resp := AuthResponse{
		Authenticated: s.Authenticated,
		Source:        s.Source,
		Interactive:   s.Interactive,
		InProgress:    s.InProgress,
	}
	if p := s.Pending; p != nil {
		uri := p.VerificationURI
		if p.VerificationURIComplete != "" {
			uri = p.VerificationURIComplete
		}
		resp.Pending = &DevicePromptResponse{
			UserCode:        p.UserCode,
			VerificationURI: uri,
			ExpiresAt:       formatTime(p.ExpiresAt),
		}
	}
	return resp
}
