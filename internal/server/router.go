package server

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/hrplatform/docingest/internal/api/handlers"
	"github.com/hrplatform/docingest/internal/api/middleware"
)

// multipartOverhead is allowed on top of the upload limit for form boundaries and fields.
const multipartOverhead int64 = 1 << 20

type RouterConfig struct {
	AuthValidator      middleware.AuthValidator
	DocumentHandler    *handlers.DocumentHandler
	Logger             *slog.Logger
	MaxUploadBytes     int64
	RateLimitPerMinute int
	// TrustProxy takes the client address from X-Forwarded-For / X-Real-IP.
	// Only set it behind a proxy that overwrites those headers.
	TrustProxy bool
}

func NewRouter(cfg RouterConfig) http.Handler {
	r := chi.NewRouter()

	limiter := middleware.NewRateLimiter(cfg.RateLimitPerMinute)

	if cfg.TrustProxy {
		r.Use(chimw.RealIP)
	}
	r.Use(middleware.RequestID)
	r.Use(middleware.SentryMiddleware)
	r.Use(middleware.AccessLog(cfg.Logger))
	r.Use(limiter.Middleware)
	r.Use(middleware.MaxBodyBytes(cfg.MaxUploadBytes + multipartOverhead))

	r.Get("/health", handlers.Health)

	r.Route("/api", func(r chi.Router) {
		r.Use(middleware.APIKeyAuth(cfg.AuthValidator))

		r.Route("/documents", func(r chi.Router) {
			r.Post("/upload", cfg.DocumentHandler.Upload)
			r.Post("/query", cfg.DocumentHandler.Query)
			r.Get("/", cfg.DocumentHandler.List)
			r.Get("/{id}", cfg.DocumentHandler.Get)
			r.Get("/{id}/chunks", cfg.DocumentHandler.Chunks)
			r.Get("/{id}/download", cfg.DocumentHandler.Download)
			r.Delete("/{id}", cfg.DocumentHandler.Delete)
		})
	})

	return r
}
