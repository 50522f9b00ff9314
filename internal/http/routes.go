package httpx

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
)

var errNotFound = errors.New("not found")

// RouterDeps holds everything the HTTP router can serve. Auth and Portal are
// optional; a nil value leaves that surface unmounted.
type RouterDeps struct {
	Auth        *AuthHandlers
	Portal      *PortalConfig
	Metrics     http.Handler
	MetricsPath string
	Edge        EdgeObserver
	Logger      *slog.Logger
}

// NewRouter creates the HTTP router. When the portal is mounted, the edge
// redirect filter runs ahead of every route so signed-in and signed-out
// visitors are bounced before any page or guard runs.
func NewRouter(deps RouterDeps) http.Handler {
	r := chi.NewRouter()
	if deps.Portal != nil {
		r.Use(EdgeFilter(deps.Portal.Edge, deps.Edge))
	}

	r.Get("/healthz", healthHandler)
	r.Head("/healthz", healthHandler)
	if deps.Metrics != nil {
		path := deps.MetricsPath
		if path == "" {
			path = "/metrics"
		}
		r.Method(http.MethodGet, path, deps.Metrics)
	}

	if deps.Auth != nil {
		r.Route("/auth", deps.Auth.Routes)
	}
	if deps.Portal != nil {
		cfg := *deps.Portal
		if cfg.Logger == nil {
			cfg.Logger = deps.Logger
		}
		RegisterPortalRoutes(r, cfg)
	}

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		if isAPIRequest(r) || deps.Portal == nil || deps.Portal.Pages == nil {
			WriteError(w, ErrorParams{Code: http.StatusNotFound, ErrCode: "not_found", Err: errNotFound})
			return
		}
		deps.Portal.Pages.Render(w, r, http.StatusNotFound, PageNotFound, PageData{Title: "Page not found"})
	})
	return r
}
