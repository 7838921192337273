/*
server.go - HTTP router and middleware configuration

PURPOSE:
  Configures the HTTP router (chi), middleware stack, and route definitions.
  This is the wiring layer that connects URLs to handlers.

MIDDLEWARE STACK:
  1. RequestID:  Unique ID per request for tracing
  2. RealIP:     Client address from proxy headers
  3. Access log: One logrus entry per request
  4. Recoverer:  Panic recovery (500 instead of crash)
  5. CORS:       Cross-origin requests for the frontend
  6. Rate limit: Per-IP token bucket (optional)

ROUTE GROUPS:
  /healthz              Liveness and store ping, no auth
  /api/clients/*        Client registry
  /api/assignments      Preparer assignments
  /api/returns/gstr1/*  Outward returns
  /api/returns/gstr3b/* Liability returns
  /api/notifications/*  Caller's inbox
  /api/activity, /api/board, /api/summary, /api/due-dates  Reports

  Everything under /api requires a bearer token (RequirePrincipal).

SEE ALSO:
  - handlers.go: Handler implementations
  - principal.go: Token validation
  - cmd/server/main.go: Server startup
*/
package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/sirupsen/logrus"

	"github.com/warp/filing-engine/filing"
)

// RouterConfig carries the cross-cutting pieces of the router.
type RouterConfig struct {
	Tokens         *TokenIssuer
	AllowedOrigins []string
	RateLimiter    *RateLimiter // nil disables rate limiting
}

// NewRouter creates a new router with all routes configured.
func NewRouter(h *Handler, cfg RouterConfig) *chi.Mux {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(accessLog(h.Log))
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"X-Request-Id"},
		AllowCredentials: true,
		MaxAge:           300,
	}))
	if cfg.RateLimiter != nil {
		r.Use(cfg.RateLimiter.Middleware())
	}

	r.Get("/healthz", h.Health)

	// API routes
	r.Route("/api", func(r chi.Router) {
		r.Use(RequirePrincipal(cfg.Tokens))

		r.Route("/clients", func(r chi.Router) {
			r.Get("/", h.ListClients)
			r.Post("/", h.CreateClient)
			r.Post("/{id}/deactivate", h.DeactivateClient)
		})

		r.Route("/assignments", func(r chi.Router) {
			r.Get("/", h.ListAssignments)
			r.Put("/", h.UpsertAssignment)
		})

		r.Route("/returns", func(r chi.Router) {
			r.Route("/"+string(filing.KindOutward), func(r chi.Router) {
				r.Post("/", h.OpenReturn(filing.KindOutward))
				r.Get("/{id}", h.GetReturn(filing.KindOutward))
				r.Put("/{id}/figures", h.UpdateOutwardFigures)
				r.Put("/{id}/checklist", h.SetChecklistItem)
				r.Post("/{id}/submit", h.SubmitForReview)
				r.Post("/{id}/review", h.ReviewDecision)
				r.Post("/{id}/file", h.FileReturn(filing.KindOutward))
			})
			r.Route("/"+string(filing.KindLiability), func(r chi.Router) {
				r.Post("/", h.OpenReturn(filing.KindLiability))
				r.Get("/{id}", h.GetReturn(filing.KindLiability))
				r.Put("/{id}/figures", h.UpdateLiabilityFigures)
				r.Post("/{id}/file", h.FileReturn(filing.KindLiability))
			})
		})

		r.Route("/notifications", func(r chi.Router) {
			r.Get("/", h.ListNotifications)
			r.Post("/read", h.MarkNotificationsRead)
		})

		r.Get("/activity", h.ListActivity)
		r.Get("/board", h.Board)
		r.Get("/summary", h.Summary)
		r.Get("/due-dates", h.DueDates)
	})

	return r
}

// accessLog writes one entry per request once the response is done.
func accessLog(log logrus.FieldLogger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			defer func() {
				entry := log.WithFields(logrus.Fields{
					"method":      r.Method,
					"path":        r.URL.Path,
					"status":      ww.Status(),
					"bytes":       ww.BytesWritten(),
					"duration_ms": time.Since(start).Milliseconds(),
					"request_id":  middleware.GetReqID(r.Context()),
					"remote_addr": r.RemoteAddr,
				})
				if ww.Status() >= http.StatusInternalServerError {
					entry.Warn("request")
					return
				}
				entry.Info("request")
			}()
			next.ServeHTTP(ww, r)
		})
	}
}
