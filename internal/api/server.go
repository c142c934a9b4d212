// Package api provides the HTTP API server for ReturnsX.
package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/returnsx/returnsx/internal/domain"
	"github.com/returnsx/returnsx/internal/processor"
	"github.com/returnsx/returnsx/internal/rules"
)

// Server represents the HTTP API server.
type Server struct {
	router  *chi.Mux
	handler *Handler
	server  *http.Server
	config  domain.ServerConfig
}

// NewServer creates a new API server.
func NewServer(cfg domain.ServerConfig, repo domain.Repository, cache domain.Cache, bus domain.EventBus, engine *rules.Engine, proc *processor.Processor, salt string, version string) *Server {
	handler := NewHandler(repo, cache, bus, engine, proc, salt, version)
	router := chi.NewRouter()

	// Global middleware stack
	router.Use(CORSMiddleware)         // CORS for embedded checkout widgets
	router.Use(RecoverMiddleware)      // Recover from panics
	router.Use(TracingMiddleware)      // OpenTelemetry tracing
	router.Use(LoggingMiddleware)      // Request logging
	router.Use(middleware.RealIP)      // Extract real IP
	router.Use(middleware.Compress(5)) // Gzip compression

	// Health endpoints (no store required)
	router.Get("/health", handler.Health)
	router.Get("/ready", handler.Ready)

	// API routes (store required)
	router.Route("/", func(r chi.Router) {
		r.Use(StoreMiddleware)

		// Order event ingestion
		r.Post("/events", handler.IngestEvent)

		// Customer profiles and assessments
		r.Get("/customers/{id}", handler.GetCustomer)
		r.Get("/customers/{id}/assessment", handler.GetAssessment)
		r.Get("/customers/{id}/events", handler.ListCustomerEvents)
		r.Delete("/customers/{id}", handler.DeleteCustomer)

		// Risk configuration
		r.Get("/config", handler.GetRiskConfig)
		r.Put("/config", handler.PutRiskConfig)

		// Override rule management
		r.Get("/rules", handler.ListRules)
		r.Get("/rules/{id}", handler.GetRule)
		r.Post("/rules", handler.CreateRule)
		r.Delete("/rules/{id}", handler.DeleteRule)
		r.Post("/rules/reload", handler.ReloadRules)
	})

	return &Server{
		router:  router,
		handler: handler,
		config:  cfg,
	}
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)

	s.server = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  time.Duration(s.config.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(s.config.WriteTimeout) * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	return s.server.ListenAndServe()
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

// Router returns the Chi router for testing.
func (s *Server) Router() *chi.Mux {
	return s.router
}

// Handler returns the handler for testing.
func (s *Server) Handler() *Handler {
	return s.handler
}
