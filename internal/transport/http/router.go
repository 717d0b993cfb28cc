package httptransport

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"linkhub/internal/platform/health"
	"linkhub/internal/platform/middleware"
)

// RouterConfig carries the router's cross-cutting dependencies.
type RouterConfig struct {
	TokenValidator middleware.TokenValidator
	AdminToken     string
	Health         *health.Handler
	Logger         *slog.Logger
}

// NewRouter wires the session endpoints with the middleware stack.
//
// Tenant routes require a bearer token scoped to the path tenant; admin
// routes require the shared operator token. Health and metrics are open.
func NewRouter(h *Handler, cfg RouterConfig) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.Recovery(cfg.Logger))
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger(cfg.Logger))
	r.Use(middleware.Timeout(60 * time.Second))

	if cfg.Health != nil {
		cfg.Health.Register(r)
	}
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	r.Route("/tenants/{tenantID}", func(r chi.Router) {
		r.Use(middleware.RequireTenantAuth(cfg.TokenValidator, cfg.Logger))

		r.Post("/session/connect", h.handleConnect)
		r.Post("/session/disconnect", h.handleDisconnect)
		r.Get("/session", h.handleStatus)

		r.With(middleware.ContentTypeJSON).Post("/messages", h.handleSend)
	})

	r.Route("/admin", func(r chi.Router) {
		r.Use(middleware.RequireAdminToken(cfg.AdminToken, cfg.Logger))
		r.Get("/sessions", h.handleAdminSessions)
	})

	return r
}
