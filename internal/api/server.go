// Package api provides the HTTP surface of the backend. It is a thin layer
// over the ledger and the importer; all reconciliation decisions live in
// the application packages.
package api

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/budgetnz/envelope-sync-backend/internal/api/handlers"
	"github.com/budgetnz/envelope-sync-backend/internal/api/middleware"
	"github.com/budgetnz/envelope-sync-backend/internal/application/importer"
	"github.com/budgetnz/envelope-sync-backend/internal/infrastructure/storage"
)

// Config holds API server configuration.
type Config struct {
	Port           int
	AllowedOrigins []string
}

// DefaultConfig returns sensible defaults for the API server.
func DefaultConfig() Config {
	return Config{
		Port:           8080,
		AllowedOrigins: []string{"http://localhost:3000", "http://localhost:5173"},
	}
}

// Server is the HTTP API server.
type Server struct {
	config     Config
	router     chi.Router
	httpServer *http.Server
	logger     *slog.Logger
	ledger     storage.Ledger
	processor  *importer.Processor
}

// NewServer creates a new API server.
func NewServer(cfg Config, ledger storage.Ledger, processor *importer.Processor, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}

	s := &Server{
		config:    cfg,
		router:    chi.NewRouter(),
		logger:    logger,
		ledger:    ledger,
		processor: processor,
	}

	s.setupMiddleware()
	s.setupRoutes()

	return s
}

// setupMiddleware configures global middleware.
func (s *Server) setupMiddleware() {
	corsConfig := middleware.CORSConfig{
		AllowedOrigins: s.config.AllowedOrigins,
		AllowedMethods: []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type"},
	}
	s.router.Use(middleware.CORS(corsConfig))
	s.router.Use(middleware.Logging(s.logger))
}

// setupRoutes configures all API routes.
func (s *Server) setupRoutes() {
	// Health check (no /api prefix - for load balancers)
	healthHandler := handlers.NewHealthHandler()
	s.router.Get("/health", healthHandler.ServeHTTP)

	s.router.Route("/api", func(r chi.Router) {
		transactionsHandler := handlers.NewTransactionsHandler(s.ledger, s.processor)
		r.Get("/transactions", transactionsHandler.List)
		r.Post("/transactions", transactionsHandler.Create)
		r.Post("/transactions/import", transactionsHandler.Import)
		r.Post("/transactions/{id}/approve", transactionsHandler.Approve)

		envelopesHandler := handlers.NewEnvelopesHandler(s.ledger)
		r.Get("/envelopes", envelopesHandler.List)
		r.Get("/envelopes/{id}", envelopesHandler.Get)

		accountsHandler := handlers.NewAccountsHandler(s.ledger)
		r.Get("/accounts", accountsHandler.List)
		r.Get("/accounts/{id}", accountsHandler.Get)

		recurringHandler := handlers.NewRecurringIncomesHandler(s.ledger)
		r.Get("/recurring-incomes", recurringHandler.List)

		runsHandler := handlers.NewRunsHandler(s.ledger)
		r.Get("/runs", runsHandler.List)
	})
}

// Router exposes the configured router, mainly for tests.
func (s *Server) Router() chi.Router {
	return s.router
}

// Start begins listening. Blocks until the server stops.
func (s *Server) Start() error {
	addr := fmt.Sprintf(":%d", s.config.Port)
	s.httpServer = &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	s.logger.Info("api server listening", "addr", addr)
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}
