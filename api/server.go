/*
server.go - HTTP router and middleware configuration

PURPOSE:
  Configures the chi router, middleware stack, and route definitions.
  This is the wiring layer that connects URLs to handlers.

MIDDLEWARE STACK:
  1. Logger:     request logging
  2. Recoverer:  panic recovery (500 instead of crash)
  3. RequestID:  unique id per request for tracing
  4. CORS:       cross-origin requests for the portal frontend

ROUTE GROUPS:
  /api/students/{id}/*   schedule, hours, day breakdown, punch submission
  /api/punches/{id}/*    approval and ledger freeze
  /api/admin/*           configuration authoring
  /metrics               Prometheus collectors
  /healthz               liveness

SECURITY NOTE:
  Authentication and session handling live in the portal gateway in
  front of this service; every endpoint here trusts its caller.

SEE ALSO:
  - handlers.go: handler implementations
  - cmd/server/main.go: server startup
*/
package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// NewRouter creates a router with all routes configured.
func NewRouter(h *Handler) *chi.Mux {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"http://localhost:5173", "http://localhost:8080"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
	}))

	// API routes
	r.Route("/api", func(r chi.Router) {
		r.Route("/students/{id}", func(r chi.Router) {
			r.Get("/schedule", h.GetSchedule)
			r.Get("/hours", h.GetHours)
			r.Get("/days/{date}", h.GetDay)
			r.Post("/time-in", h.TimeIn)
			r.Post("/time-out", h.TimeOut)
		})

		r.Route("/punches/{id}", func(r chi.Router) {
			r.Post("/status", h.SetPunchStatus)
			r.Post("/freeze", h.FreezePunch)
		})

		// Authoring surface for coordinator/supervisor collaborators.
		r.Route("/admin", func(r chi.Router) {
			r.Post("/students", h.PutStudent)
			r.Post("/events", h.PutCoordinatorEvent)
			r.Post("/overrides/student", h.PutStudentOverride)
			r.Post("/overrides/dated", h.PutDatedOverride)
			r.Post("/shifts", h.PutShift)
			r.Post("/overtime-grants", h.PutOvertimeGrant)
		})
	})

	if h.Metrics != nil {
		r.Method(http.MethodGet, "/metrics",
			promhttp.HandlerFor(h.Metrics.Registry, promhttp.HandlerOpts{}))
	}
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	return r
}
