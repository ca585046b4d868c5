// Package api provides the HTTP API of the gallery account service.
package api

import (
	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"github.com/michalmalinowski87/photo-sub008/internal/api/handler"
	"github.com/michalmalinowski87/photo-sub008/internal/api/middleware"
	"github.com/michalmalinowski87/photo-sub008/internal/provider/resilience"
)

// RouterConfig holds configuration for the router.
type RouterConfig struct {
	Version         string
	BuildTime       string
	Logger          zerolog.Logger
	Metrics         *middleware.Metrics
	RequireTLS      bool
	TokenValidator  middleware.TokenValidator
	DeletionService handler.DeletionService
	ReadinessChecks []handler.ReadinessCheck
	Registry        *resilience.Registry
}

// NewRouter creates a new chi router with all API routes configured.
func NewRouter(cfg RouterConfig) *chi.Mux {
	r := chi.NewRouter()

	// Global middleware - order matters
	r.Use(middleware.RequestID) // Generate/propagate request ID first
	r.Use(middleware.Tracing()) // Distributed tracing
	if cfg.Metrics != nil {
		r.Use(cfg.Metrics.Middleware()) // HTTP metrics
	}
	r.Use(middleware.Logger(cfg.Logger))         // Structured logging
	r.Use(middleware.Recovery(cfg.Logger))       // Panic recovery
	r.Use(chimiddleware.RealIP)                  // Real IP extraction
	r.Use(middleware.SecurityHeaders)            // Security headers (HSTS, CSP, etc.)
	r.Use(middleware.RequireTLS(cfg.RequireTLS)) // TLS enforcement behind the load balancer

	opsHandler := handler.NewOpsHandler(handler.OpsConfig{
		Version:   cfg.Version,
		BuildTime: cfg.BuildTime,
		Checks:    cfg.ReadinessChecks,
		Registry:  cfg.Registry,
	})
	deletionHandler := handler.NewDeletionHandler(cfg.DeletionService, cfg.Logger)

	authMiddleware := middleware.Auth(cfg.TokenValidator)

	r.Route("/v1", func(r chi.Router) {
		// Ops endpoints (public)
		r.Route("/ops", func(r chi.Router) {
			r.Get("/health", opsHandler.HealthCheck)
			r.Get("/ready", opsHandler.ReadinessCheck)
			r.With(authMiddleware, middleware.RateLimitByAccount(middleware.OpsRateLimit)).
				Get("/status", opsHandler.SystemStatus)
		})

		// Deletion of the caller's own account - account-based rate limiting
		r.Route("/me/deletion", func(r chi.Router) {
			r.Use(authMiddleware)
			r.Use(middleware.RateLimitByAccount(middleware.DeletionRateLimit))
			r.Get("/", deletionHandler.GetDeletionStatus)
			r.With(middleware.RequireJSON).Post("/", deletionHandler.RequestDeletion)
			r.Delete("/", deletionHandler.CancelDeletion)
		})

		// Emailed undo link (public, token only) - strict per-IP limit
		r.Route("/account-deletion", func(r chi.Router) {
			r.Use(middleware.RateLimitByIP(middleware.UndoRateLimit))
			r.Use(middleware.PageSecurityHeaders)
			r.Get("/undo", deletionHandler.UndoDeletion)
		})
	})

	return r
}
