package api

import (
	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/AaravAtGit/DecentChat/internal/api/middleware"
	"github.com/AaravAtGit/DecentChat/internal/config"
	"github.com/AaravAtGit/DecentChat/internal/handlers"
	"github.com/AaravAtGit/DecentChat/internal/relay"
	"github.com/AaravAtGit/DecentChat/internal/store"
)

// Deps are the components the router serves.
type Deps struct {
	Hub     *relay.Hub
	Nodes   store.NodeStore // nil when the relay runs memory only
	Backend string
	Redis   *store.RedisStore // optional
}

// NewRouter creates and configures the HTTP router.
func NewRouter(logger zerolog.Logger, cfg *config.Config, deps Deps) *chi.Mux {
	r := chi.NewRouter()

	// Metrics middleware (first to capture all requests)
	r.Use(middleware.Metrics)

	// Security middleware (order matters!)
	r.Use(middleware.SecurityHeaders)
	r.Use(middleware.MaxBodySize(8 * 1024)) // 8KB max body
	r.Use(middleware.ValidateRequest)

	// Standard middleware
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(middleware.Logger(logger))
	r.Use(chimw.Recoverer)

	// Rate limiting needs Redis for its counters
	if deps.Redis != nil {
		limiter := middleware.NewRateLimiter(deps.Redis.Client(), logger, middleware.RateLimiterConfig{
			Whitelist:        cfg.RateLimitWhitelist,
			AutoBlockEnabled: cfg.AutoBlockEnabled,
		})
		r.Use(limiter.Middleware)
	}

	// CORS - browser clients connect from any origin
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"X-RateLimit-Limit", "X-RateLimit-Remaining", "X-RateLimit-Reset", "Retry-After"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	h := handlers.NewHandler(deps.Hub, deps.Nodes, deps.Backend, deps.Redis)
	admin := middleware.NewAdminAuth(cfg.AdminSecret)

	// Metrics endpoint (for Prometheus scraping)
	r.Handle("/metrics", promhttp.Handler())

	// Graph sync
	r.Handle("/gun", deps.Hub.Handler())

	// Read-only projections of the graph
	r.Get("/", h.Root)
	r.Get("/api", h.Root)
	r.Get("/health", h.Health)
	r.Get("/stats", h.Stats)
	r.Get("/channels", h.ListChannels)
	r.Get("/messages/{channel}", h.GetChannelMessages)
	r.Get("/who/{username}", h.Who)

	// Raw node access for operators
	r.Group(func(r chi.Router) {
		r.Use(admin.RequireAdmin)
		r.Get("/graph/*", h.GetNode)
	})

	return r
}
