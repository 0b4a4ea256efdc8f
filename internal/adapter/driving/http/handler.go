// Package httphandler is the JSON API driving adapter.
package httphandler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/ericfisherdev/actionwatch/internal/application"
	"github.com/ericfisherdev/actionwatch/internal/domain/model"
	"github.com/ericfisherdev/actionwatch/internal/domain/port/driven"
)

const (
	defaultFeedLimit = 50
	maxFeedLimit     = 500

	// authTimeout bounds a device flow started over HTTP. GitHub device codes
	// expire after 15 minutes.
	authTimeout = 15 * time.Minute
)

// Monitor is the scheduler surface the API drives.
type Monitor interface {
	CheckNow(ctx context.Context) (application.CycleReport, error)
	CheckTarget(ctx context.Context, key model.TargetKey) (application.TargetResult, error)
	LastCycle() *application.CycleReport
}

// Authenticator is the credential surface the API drives.
type Authenticator interface {
	Status(ctx context.Context) application.AuthStatus
	StartAuthentication(ctx context.Context, timeout time.Duration) error
}

// NotificationFeed lists recorded notifications.
type NotificationFeed interface {
	ListRecent(ctx context.Context, limit int) ([]model.Notification, error)
}

// Pinger reports database reachability for the health endpoint.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Handler is the HTTP driving adapter that serves the REST API.
type Handler struct {
	targets *application.TargetService
	monitor Monitor
	auth    Authenticator
	feed    NotificationFeed
	db      Pinger
	logger  *slog.Logger
}

// NewHandler creates a Handler with all required dependencies. db may be nil.
func NewHandler(
	targets *application.TargetService,
	monitor Monitor,
	auth Authenticator,
	feed NotificationFeed,
	db Pinger,
	logger *slog.Logger,
) *Handler {
	return &Handler{
		targets: targets,
		monitor: monitor,
		auth:    auth,
		feed:    feed,
		db:      db,
		logger:  logger,
	}
}

// RegisterAPIRoutes registers every /api/v1 route on mux.
func RegisterAPIRoutes(mux *http.ServeMux, h *Handler) {
	mux.HandleFunc("GET /api/v1/health", h.Health)
	mux.HandleFunc("GET /api/v1/targets", h.ListTargets)
	mux.HandleFunc("POST /api/v1/targets", h.AddTarget)
	mux.HandleFunc("DELETE /api/v1/targets/{owner}/{repo}/{branch...}", h.RemoveTarget)
	mux.HandleFunc("POST /api/v1/targets/{owner}/{repo}/check/{branch...}", h.CheckTarget)
	mux.HandleFunc("POST /api/v1/check", h.CheckNow)
	mux.HandleFunc("GET /api/v1/notifications", h.ListNotifications)
	mux.HandleFunc("GET /api/v1/auth", h.AuthStatus)
	mux.HandleFunc("POST /api/v1/auth", h.StartAuth)
}

// NewServeMux creates an http.Handler with the API routes registered and
// wrapped with logging and recovery middleware.
func NewServeMux(h *Handler, logger *slog.Logger) http.Handler {
	mux := http.NewServeMux()
	RegisterAPIRoutes(mux, h)
	return ApplyMiddleware(mux, logger)
}

// Health reports liveness, the last completed cycle and database reachability.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	resp := HealthResponse{
		Status: "ok",
		Time:   time.Now().UTC().Format(time.RFC3339),
	}
	if last := h.monitor.LastCycle(); last != nil {
		resp.LastCycle = formatTime(last.StartedAt)
	}

	status := http.StatusOK
	if h.db != nil {
		resp.Database = "ok"
		if err := h.db.Ping(r.Context()); err != nil {
			h.logger.Error("health check database ping failed", "error", err)
			resp.Status = "degraded"
			resp.Database = "unreachable"
			status = http.StatusServiceUnavailable
		}
	}

	writeJSON(w, status, resp)
}

// ListTargets returns every watch target, or those fuzzy-matching ?q=.
func (h *Handler) ListTargets(w http.ResponseWriter, r *http.Request) {
	targets, err := h.targets.Find(r.Context(), r.URL.Query().Get("q"))
	if err != nil {
		h.logger.Error("failed to list targets", "error", err)
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	resp := make([]TargetResponse, 0, len(targets))
	for _, t := range targets {
		resp = append(resp, toTargetResponse(t))
	}

	writeJSON(w, http.StatusOK, resp)
}

// AddTarget adds a target to the watch list. The next cycle reports its
// first observation.
func (h *Handler) AddTarget(w http.ResponseWriter, r *http.Request) {
	var req AddTargetRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	target, err := h.targets.Add(r.Context(), req.Repository, req.Branch)
	switch {
	case err == nil:
		writeJSON(w, http.StatusCreated, toTargetResponse(target))
	case errors.Is(err, model.ErrInvalidTarget):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, driven.ErrTargetAlreadyExists):
		writeError(w, http.StatusConflict, "target already watched")
	default:
		h.logger.Error("failed to add target", "repository", req.Repository, "branch", req.Branch, "error", err)
		writeError(w, http.StatusInternalServerError, "internal server error")
	}
}

// RemoveTarget removes a target and its state from the watch list.
func (h *Handler) RemoveTarget(w http.ResponseWriter, r *http.Request) {
	key, ok := pathKey(w, r)
	if !ok {
		return
	}

	if err := h.targets.Remove(r.Context(), key); err != nil {
		if errors.Is(err, driven.ErrTargetNotFound) {
			writeError(w, http.StatusNotFound, "target not found")
			return
		}
		h.logger.Error("failed to remove target", "target", key.String(), "error", err)
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// CheckTarget runs the fetch/decide/notify pipeline for one target now.
func (h *Handler) CheckTarget(w http.ResponseWriter, r *http.Request) {
	key, ok := pathKey(w, r)
	if !ok {
		return
	}

	res, err := h.monitor.CheckTarget(r.Context(), key)
	if err != nil {
		if errors.Is(err, driven.ErrTargetNotFound) {
			writeError(w, http.StatusNotFound, "target not found")
			return
		}
		h.logger.Error("target check failed", "target", key.String(), "error", err)
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, toTargetResultResponse(res))
}

// CheckNow runs a full cycle immediately. Per-target failures are part of the
// 200 report; 502 means the cycle itself could not run.
func (h *Handler) CheckNow(w http.ResponseWriter, r *http.Request) {
	report, err := h.monitor.CheckNow(r.Context())
	if err != nil {
		h.logger.Error("manual cycle failed", "cycle_id", report.ID, "error", err)
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, toCycleResponse(report))
}

// ListNotifications returns the newest notifications, ?limit= capped at 500.
func (h *Handler) ListNotifications(w http.ResponseWriter, r *http.Request) {
	limit := defaultFeedLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = min(n, maxFeedLimit)
	}

	items, err := h.feed.ListRecent(r.Context(), limit)
	if err != nil {
		h.logger.Error("failed to list notifications", "error", err)
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	resp := make([]NotificationResponse, 0, len(items))
	for _, n := range items {
		resp = append(resp, toNotificationResponse(n))
	}

	writeJSON(w, http.StatusOK, resp)
}

// AuthStatus reports whether a credential is available and any pending
// device code.
func (h *Handler) AuthStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, toAuthResponse(h.auth.Status(r.Context())))
}

// StartAuth starts the device flow in the background and returns 202. The
// user code appears in GET /api/v1/auth once GitHub issues it.
func (h *Handler) StartAuth(w http.ResponseWriter, r *http.Request) {
	err := h.auth.StartAuthentication(r.Context(), authTimeout)
	switch {
	case err == nil:
		writeJSON(w, http.StatusAccepted, toAuthResponse(h.auth.Status(r.Context())))
	case errors.Is(err, application.ErrAuthInProgress):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, driven.ErrNotAuthenticated):
		writeError(w, http.StatusNotImplemented, err.Error())
	default:
		h.logger.Error("start authentication failed", "error", err)
		writeError(w, http.StatusInternalServerError, "internal server error")
	}
}

// pathKey builds a TargetKey from the {owner}/{repo}/{branch...} wildcards,
// writing a 400 when any part is empty.
func pathKey(w http.ResponseWriter, r *http.Request) (model.TargetKey, bool) {
	key := model.TargetKey{
		Owner:  r.PathValue("owner"),
		Repo:   r.PathValue("repo"),
		Branch: r.PathValue("branch"),
	}
	if err := key.Validate(); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return model.TargetKey{}, false
	}
	return key, true
}
