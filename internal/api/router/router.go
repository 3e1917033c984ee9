package router

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	httpmiddleware "github.com/openharvest/outreach-platform/internal/http/middleware"
	"github.com/openharvest/outreach-platform/internal/identity"
	"github.com/openharvest/outreach-platform/internal/invites"
	"github.com/openharvest/outreach-platform/internal/observability/metrics"
	"github.com/openharvest/outreach-platform/internal/prospects"
	"github.com/openharvest/outreach-platform/internal/session"
	"github.com/openharvest/outreach-platform/pkg/logging"
)

// Config holds router configuration
type Config struct {
	Logger *logging.Logger

	Tokens  *identity.TokenIssuer
	Revoker session.Revoker

	IdentityHandler *identity.Handler
	ProspectHandler *prospects.Handler
	ProspectStream  *prospects.StreamHandler
	UserStream      *identity.StreamHandler
	InviteHandler   *invites.Handler

	Metrics        *metrics.OutreachMetrics
	MetricsHandler http.Handler

	CORSAllowedOrigins []string

	// BackendMode is reported by the health endpoint ("remote" or
	// "local").
	BackendMode string
}

// New creates a new Chi router with all routes configured
func New(cfg *Config) http.Handler {
	r := chi.NewRouter()

	// Middleware
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	r.Use(chimiddleware.Compress(5))
	if len(cfg.CORSAllowedOrigins) > 0 {
		r.Use(httpmiddleware.CORS(cfg.CORSAllowedOrigins))
	}
	if cfg.Logger != nil {
		r.Use(httpmiddleware.RequestLogger(cfg.Logger))
	}
	if cfg.Metrics != nil {
		r.Use(httpmiddleware.Metrics(cfg.Metrics))
	}

	claims := func(req *http.Request) (*identity.SessionClaims, bool) {
		return httpmiddleware.SessionFromContext(req.Context())
	}

	// Public endpoints (health, metrics, sign-in flows)
	r.Group(func(public chi.Router) {
		public.Get("/healthz", healthHandler(cfg.BackendMode))
		if cfg.MetricsHandler != nil {
			public.Handle("/metrics", cfg.MetricsHandler)
		}
		public.Route("/api/auth", func(auth chi.Router) {
			auth.Post("/login", cfg.IdentityHandler.Login)
			auth.Post("/register", cfg.IdentityHandler.Register)
			auth.Post("/reset", cfg.IdentityHandler.RequestPasswordReset)
			auth.Post("/reset/confirm", cfg.IdentityHandler.ConfirmPasswordReset)
		})
	})

	// Authenticated routes
	r.Group(func(authed chi.Router) {
		authed.Use(httpmiddleware.SessionAuth(cfg.Tokens, cfg.Revoker))

		// Registered as full paths rather than a second
		// Route("/api/auth", ...): chi panics when two groups mount a
		// sub-router on the same path.
		authed.Post("/api/auth/logout", cfg.IdentityHandler.Logout(claims))
		authed.Get("/api/auth/me", cfg.IdentityHandler.Me(claims))
		authed.Post("/api/auth/tour", cfg.IdentityHandler.MarkTourSeen(claims))

		authed.Route("/api/prospects", func(p chi.Router) {
			p.Post("/", cfg.ProspectHandler.Create)
			p.Get("/", cfg.ProspectHandler.List)
			if cfg.ProspectStream != nil {
				p.Get("/stream", cfg.ProspectStream.Serve)
			}
			p.Route("/{id}", func(one chi.Router) {
				one.Get("/", cfg.ProspectHandler.Get)
				one.Post("/followups", cfg.ProspectHandler.AddFollowUp)
				one.Post("/status", cfg.ProspectHandler.CycleStatus)
				one.Post("/baptism", cfg.ProspectHandler.ToggleBaptism)
				one.With(requireAdmin()).Put("/assignment", cfg.ProspectHandler.Assign)
			})
		})

		authed.Route("/api/users", func(users chi.Router) {
			users.Get("/", cfg.IdentityHandler.ListUsers)
			if cfg.UserStream != nil {
				users.Get("/stream", cfg.UserStream.Serve)
			}
			users.Put("/{id}/profile", cfg.IdentityHandler.UpdateProfile(claims))
			users.With(requireAdmin()).Put("/{id}/approval", cfg.IdentityHandler.SetApproval(claims))
			users.With(requireAdmin()).Put("/{id}/role", cfg.IdentityHandler.SetRole(claims))
		})

		if cfg.InviteHandler != nil {
			authed.Route("/api/invitations", func(inv chi.Router) {
				inv.Use(requireAdmin())
				inv.Post("/", cfg.InviteHandler.Create)
				inv.Get("/", cfg.InviteHandler.List)
			})
		}
	})

	return r
}

func requireAdmin() func(http.Handler) http.Handler {
	return httpmiddleware.RequireRole(identity.RoleSuperAdmin, identity.RoleAdmin)
}

func healthHandler(backendMode string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]string{
			"status":  "ok",
			"backend": backendMode,
		})
	}
}
