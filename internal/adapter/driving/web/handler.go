// Package web implements the HTML dashboard driving adapter using templ components.
package web

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	vm "github.com/ericfisherdev/actionwatch/internal/adapter/driving/web/viewmodel"
	"github.com/ericfisherdev/actionwatch/internal/application"
	"github.com/ericfisherdev/actionwatch/internal/domain/model"
	"github.com/ericfisherdev/actionwatch/internal/domain/port/driven"
)

const (
	feedSize       = 20
	maxFlashLength = 200
	authTimeout    = 15 * time.Minute
)

// Monitor is the scheduler surface the dashboard drives.
type Monitor interface {
	CheckNow(ctx context.Context) (application.CycleReport, error)
	CheckTarget(ctx context.Context, key model.TargetKey) (application.TargetResult, error)
	LastCycle() *application.CycleReport
}

// Authenticator is the credential surface the dashboard drives.
type Authenticator interface {
	Status(ctx context.Context) application.AuthStatus
	StartAuthentication(ctx context.Context, timeout time.Duration) error
}

// NotificationFeed lists recorded notifications.
type NotificationFeed interface {
	ListRecent(ctx context.Context, limit int) ([]model.Notification, error)
}

// Handler is the web driving adapter that serves the HTML dashboard.
type Handler struct {
	targets *application.TargetService
	monitor Monitor
	auth    Authenticator
	feed    NotificationFeed
	logger  *slog.Logger
	now     func() time.Time
}

// NewHandler creates a Handler with all required dependencies.
func NewHandler(
	targets *application.TargetService,
	monitor Monitor,
	auth Authenticator,
	feed NotificationFeed,
	logger *slog.Logger,
) *Handler {
	return &Handler{
		targets: targets,
		monitor: monitor,
		auth:    auth,
		feed:    feed,
		logger:  logger,
		now:     time.Now,
	}
}

// Dashboard renders the main page with the full HTML layout.
func (h *Handler) Dashboard(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	now := h.now()

	targets, err := h.targets.List(ctx)
	if err != nil {
		h.logger.Error("failed to list targets for dashboard", "error", err)
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}
	items, err := h.feed.ListRecent(ctx, feedSize)
	if err != nil {
		h.logger.Error("failed to list notifications for dashboard", "error", err)
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}

	page := vm.DashboardViewModel{
		CSRFToken: csrfToken(w, r),
		Flash:     truncate(r.URL.Query().Get("flash"), maxFlashLength),
		Auth:      toAuthViewModel(h.auth.Status(ctx)),
		LastCycle: toCycleViewModel(h.monitor.LastCycle(), now),
	}
	for _, t := range targets {
		page.Targets = append(page.Targets, toTargetViewModel(t, now))
	}
	for _, n := range items {
		page.Notifications = append(page.Notifications, toNotificationViewModel(n, now))
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := Layout("actionwatch", Dashboard(page)).Render(ctx, w); err != nil {
		h.logger.Error("failed to render dashboard", "error", err)
		http.Error(w, "internal server error", http.StatusInternalServerError)
	}
}

// AddTarget handles the add-target form.
func (h *Handler) AddTarget(w http.ResponseWriter, r *http.Request) {
	repo, branch := r.FormValue("repository"), r.FormValue("branch")

	target, err := h.targets.Add(r.Context(), repo, branch)
	switch {
	case err == nil:
		h.redirect(w, r, "Watching "+target.Key.String()+".")
	case errors.Is(err, model.ErrInvalidTarget):
		h.redirect(w, r, err.Error())
	case errors.Is(err, driven.ErrTargetAlreadyExists):
		h.redirect(w, r, fmt.Sprintf("%s@%s is already watched.", repo, branch))
	default:
		h.logger.Error("failed to add target", "repository", repo, "branch", branch, "error", err)
		h.redirect(w, r, "Could not add the target.")
	}
}

// RemoveTarget handles a watch-list row's remove button.
func (h *Handler) RemoveTarget(w http.ResponseWriter, r *http.Request) {
	key, ok := h.formKey(w, r)
	if !ok {
		return
	}

	err := h.targets.Remove(r.Context(), key)
	switch {
	case err == nil:
		h.redirect(w, r, "Stopped watching "+key.String()+".")
	case errors.Is(err, driven.ErrTargetNotFound):
		h.redirect(w, r, key.String()+" is not watched.")
	default:
		h.logger.Error("failed to remove target", "target", key.String(), "error", err)
		h.redirect(w, r, "Could not remove the target.")
	}
}

// CheckTarget handles a watch-list row's check button.
func (h *Handler) CheckTarget(w http.ResponseWriter, r *http.Request) {
	key, ok := h.formKey(w, r)
	if !ok {
		return
	}

	res, err := h.monitor.CheckTarget(r.Context(), key)
	switch {
	case err == nil:
		h.redirect(w, r, fmt.Sprintf("%s: %s.", key, res.Outcome))
	case errors.Is(err, driven.ErrTargetNotFound):
		h.redirect(w, r, key.String()+" is not watched.")
	default:
		h.logger.Warn("target check failed", "target", key.String(), "error", err)
		h.redirect(w, r, fmt.Sprintf("%s: %v", key, err))
	}
}

// CheckNow handles the header's check-now button.
func (h *Handler) CheckNow(w http.ResponseWriter, r *http.Request) {
	report, err := h.monitor.CheckNow(r.Context())
	if err != nil {
		h.logger.Error("manual cycle failed", "cycle_id", report.ID, "error", err)
		h.redirect(w, r, "Check failed: "+err.Error())
		return
	}

	h.redirect(w, r, fmt.Sprintf("Checked %d targets: %d notified, %d failed.",
		len(report.Results),
		report.Count(application.OutcomeNotified),
		report.Count(application.OutcomeFetchFailed)+report.Count(application.OutcomeStoreFailed)))
}

// StartAuth starts the device flow. The user code shows up on the next
// dashboard load.
func (h *Handler) StartAuth(w http.ResponseWriter, r *http.Request) {
	err := h.auth.StartAuthentication(r.Context(), authTimeout)
	switch {
	case err == nil:
		h.redirect(w, r, "Requested a device code from GitHub. Reload to see it.")
	case errors.Is(err, application.ErrAuthInProgress):
		h.redirect(w, r, "Authentication is already in progress.")
	case errors.Is(err, driven.ErrNotAuthenticated):
		h.redirect(w, r, "Interactive sign-in is not configured.")
	default:
		h.logger.Error("start authentication failed", "error", err)
		h.redirect(w, r, "Could not start authentication.")
	}
}

// csrfProtect rejects POSTs whose CSRF token does not match the cookie.
func (h *Handler) csrfProtect(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !validateCSRF(r) {
			h.logger.Warn("csrf validation failed", "path", r.URL.Path)
			http.Error(w, "invalid csrf token", http.StatusForbidden)
			return
		}
		next(w, r)
	}
}

func (h *Handler) formKey(w http.ResponseWriter, r *http.Request) (model.TargetKey, bool) {
	key := model.TargetKey{
		Owner:  r.FormValue("owner"),
		Repo:   r.FormValue("repo"),
		Branch: r.FormValue("branch"),
	}
	if err := key.Validate(); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return model.TargetKey{}, false
	}
	return key, true
}

// redirect sends the browser back to the dashboard with a one-shot message.
func (h *Handler) redirect(w http.ResponseWriter, r *http.Request, flash string) {
	http.Redirect(w, r, "/?flash="+url.QueryEscape(flash), http.StatusSeeOther)
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "…"
}
