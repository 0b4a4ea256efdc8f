package web

import (
	"io/fs"
	"net/http"
)

// RegisterRoutes registers the dashboard page, its form endpoints and the
// embedded static assets on mux.
func RegisterRoutes(mux *http.ServeMux, h *Handler) {
	staticFS, _ := fs.Sub(StaticFS, "static")
	mux.Handle("GET /static/", http.StripPrefix("/static/", http.FileServerFS(staticFS)))

	mux.HandleFunc("GET /{$}", h.Dashboard)
	mux.HandleFunc("POST /targets", h.csrfProtect(h.AddTarget))
	mux.HandleFunc("POST /targets/remove", h.csrfProtect(h.RemoveTarget))
	mux.HandleFunc("POST /targets/check", h.csrfProtect(h.CheckTarget))
	mux.HandleFunc("POST /check", h.csrfProtect(h.CheckNow))
	mux.HandleFunc("POST /auth", h.csrfProtect(h.StartAuth))
}
