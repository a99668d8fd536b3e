package handler

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/aryan0dhankhar/assettrack/internal/observability/metrics"
	"github.com/aryan0dhankhar/assettrack/internal/security/audit"
	"github.com/aryan0dhankhar/assettrack/internal/security/middleware"
	"github.com/aryan0dhankhar/assettrack/internal/security/ratelimit"
)

// RouterConfig wires handlers and cross-cutting middleware into one router.
type RouterConfig struct {
	Auth     *AuthHandler
	Users    *UsersHandler
	Tenants  *TenantsHandler
	Health   *HealthHandler
	Resolver middleware.PrincipalResolver
	Audit    *audit.Logger

	// Limiter applies to every /api request; LoginLimiter only to login.
	// Either may be nil.
	Limiter      *ratelimit.Limiter
	LoginLimiter *ratelimit.Limiter

	// TrustProxy takes the client address from X-Forwarded-For and X-Real-IP.
	// Only enable it behind a proxy that overwrites those headers.
	TrustProxy bool

	AllowedOrigins []string
	Logger         *slog.Logger
}

// NewRouter builds the HTTP surface.
func NewRouter(cfg RouterConfig) http.Handler {
	log := cfg.Logger
	if log == nil {
		log = slog.Default()
	}

	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	if cfg.TrustProxy {
		r.Use(chimw.RealIP)
	}
	r.Use(chimw.Recoverer)
	r.Use(requestLogger(log))
	r.Use(metrics.HTTPMetricsMiddleware)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"X-Request-Id"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Get("/healthz", cfg.Health.Health)
	r.Get("/readyz", cfg.Health.Ready)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api", func(r chi.Router) {
		if cfg.Limiter != nil {
			r.Use(middleware.RateLimit(cfg.Limiter, log))
		}
		r.Use(middleware.ValidateQuery(log))
		r.Use(middleware.RequireJSONBody(log))

		r.Route("/auth", func(r chi.Router) {
			r.With(loginLimit(cfg.LoginLimiter, log)...).Post("/login", cfg.Auth.Login)
			r.Post("/register", cfg.Auth.Register)
			r.With(middleware.Authenticate(cfg.Resolver, log)).Post("/change-password", cfg.Auth.ChangePassword)
		})

		r.Group(func(r chi.Router) {
			r.Use(middleware.Authenticate(cfg.Resolver, log))
			if cfg.Audit != nil {
				r.Use(middleware.Audit(cfg.Audit))
			}

			r.Route("/users", func(r chi.Router) {
				r.Get("/", cfg.Users.List)
				r.Post("/", cfg.Users.Create)
				r.Get("/me", cfg.Users.Me)
				r.Put("/me", cfg.Users.UpdateMe)
				r.Get("/{id}", cfg.Users.Get)
				r.Put("/{id}", cfg.Users.Update)
				r.Delete("/{id}", cfg.Users.Delete)
			})

			r.Route("/tenants", func(r chi.Router) {
				r.Get("/", cfg.Tenants.List)
				r.Post("/", cfg.Tenants.Create)
				r.Get("/{id}", cfg.Tenants.Get)
				r.Put("/{id}", cfg.Tenants.Update)
				r.Delete("/{id}", cfg.Tenants.Delete)
				r.Put("/{id}/smtp", cfg.Tenants.UpdateSMTP)
				r.Put("/{id}/stripe", cfg.Tenants.UpdateStripe)
			})
		})
	})

	return r
}

func loginLimit(l *ratelimit.Limiter, log *slog.Logger) []func(http.Handler) http.Handler {
	if l == nil {
		return nil
	}
	return []func(http.Handler) http.Handler{
		middleware.RateLimit(l, log),
		middleware.RateLimitUsername(l, log),
	}
}

// requestLogger logs one line per completed request.
func requestLogger(log *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()

			next.ServeHTTP(ww, r)

			log.Info("request completed",
				slog.String("request_id", chimw.GetReqID(r.Context())),
				slog.String("method", r.Method),
				slog.String("path", r.URL.Path),
				slog.Int("status", ww.Status()),
				slog.Duration("duration", time.Since(start)),
			)
		})
	}
}
