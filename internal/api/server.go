package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/opensource-finance/kestrel/internal/domain"
	"github.com/opensource-finance/kestrel/internal/fraud"
	"github.com/opensource-finance/kestrel/internal/orchestrator"
)

// Server represents the HTTP API server.
type Server struct {
	router  *chi.Mux
	handler *Handler
	server  *http.Server
	config  domain.ServerConfig
}

// NewServer creates a new API server.
func NewServer(cfg domain.ServerConfig, auth domain.AuthConfig, repo domain.Repository, cache domain.Cache, bus domain.EventBus, orch *orchestrator.Orchestrator, engine *fraud.Engine, version string) *Server {
	handler := NewHandler(repo, cache, bus, orch, engine, version)
	router := chi.NewRouter()

	// Global middleware stack
	router.Use(CORSMiddleware)         // CORS for browser clients
	router.Use(RecoverMiddleware)      // Recover from panics
	router.Use(TracingMiddleware)      // OpenTelemetry tracing
	router.Use(LoggingMiddleware)      // Request logging
	router.Use(middleware.RealIP)      // Extract real IP
	router.Use(middleware.Compress(5)) // Gzip compression

	// Health endpoints (no tenant or auth required)
	router.Get("/health", handler.Health)
	router.Get("/ready", handler.Ready)

	// API routes (tenant required, bearer token when configured)
	router.Route("/", func(r chi.Router) {
		r.Use(AuthMiddleware(auth))
		r.Use(TenantMiddleware)

		// Application evaluation
		r.Post("/applications/evaluate", handler.Evaluate)
		r.Get("/applications/{id}", handler.GetApplication)

		// Decision audit retrieval
		r.Get("/decisions/{id}", handler.GetDecision)

		// Resolved case ingestion
		r.Post("/cases", handler.CreateCase)

		// Fraud rule management
		r.Get("/fraud-rules", handler.ListFraudRules)
		r.Get("/fraud-rules/{id}", handler.GetFraudRule)
		r.Post("/fraud-rules", handler.CreateFraudRule)
		r.Post("/fraud-rules/reload", handler.ReloadFraudRules)
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
