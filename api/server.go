/*
server.go - HTTP router and middleware configuration

PURPOSE:
  Configures the HTTP router (chi), middleware stack, and route definitions.
  This is the wiring layer that connects URLs to handlers.

MIDDLEWARE STACK:
  1. RequestID:  Unique ID per request for tracing
  2. RealIP:     Client IP from X-Forwarded-For / X-Real-IP
  3. accessLog:  zap request logging
  4. Recoverer:  Panic recovery (500 instead of crash)
  5. CORS:       Cross-origin requests for the frontend
  6. Rate limit: Per-IP token bucket (disabled when RateLimitPerMinute is 0)

ROUTE GROUPS:
  /api/health, /api/auth/login   Public
  /api/days, /api/balance, ...   Any authenticated user
  student group                  Record entry, notes, redemption
  admin group                    Settlement, parent check, adjustments,
                                 demo scenarios (opt-in)

SEE ALSO:
  - handlers.go:   Handler implementations
  - middleware.go: Auth, access log, rate limit
  - scenarios.go:  Demo scenario endpoints
*/
package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/warp/gametime/generic"
)

// RouterConfig holds the HTTP-only settings.
type RouterConfig struct {
	AllowedOrigins     []string
	RateLimitPerMinute int  // 0 disables rate limiting
	EnableScenarios    bool // mounts the demo scenario endpoints
}

// NewRouter creates a new router with all routes configured.
func NewRouter(h *Handler, cfg RouterConfig) *chi.Mux {
	r := chi.NewRouter()

	origins := cfg.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(accessLog(h.Log))
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type"},
		MaxAge:         300,
	}))
	if cfg.RateLimitPerMinute > 0 {
		r.Use(newIPRateLimiter(cfg.RateLimitPerMinute).middleware)
	}

	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusNotFound, "not found", nil)
	})

	r.Route("/api", func(r chi.Router) {
		r.Get("/health", h.Health)
		r.Post("/auth/login", h.Login)

		r.Group(func(r chi.Router) {
			r.Use(authenticate(h.Tokens))

			// Students see their own data; admins name a student or get the first.
			r.Get("/me", h.Me)
			r.Get("/days/{day}", h.GetDay)
			r.Get("/balance", h.GetBalance)
			r.Get("/redeem/history", h.RedeemHistory)

			r.Group(func(r chi.Router) {
				r.Use(requireRole(generic.RoleStudent))
				r.Put("/days/{day}", h.PutDay)
				r.Post("/days/{day}/notes", h.AddNote)
				r.Delete("/days/notes/{id}", h.DeleteNote)
				r.Post("/redeem", h.Redeem)
			})

			r.Group(func(r chi.Router) {
				r.Use(requireRole(generic.RoleAdmin))
				r.Post("/days/{day}/settle", h.SettleDay)
				r.Route("/admin", func(r chi.Router) {
					r.Get("/students", h.ListStudents)
					r.Get("/days/{day}", h.GetDay)
					r.Post("/days/{day}/check", h.CheckDay)
					r.Post("/ledger/adjust", h.Adjust)
					if cfg.EnableScenarios {
						r.Get("/scenarios", h.ListScenarios)
						r.Post("/scenarios/load", h.LoadScenario)
					}
				})
			})
		})
	})

	return r
}
