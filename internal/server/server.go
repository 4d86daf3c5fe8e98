// Package server provides the HTTP server and routing.
package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rs/zerolog"

	instrumenthandlers "github.com/aristath/costbook/internal/modules/instruments/handlers"
	ledgerhandlers "github.com/aristath/costbook/internal/modules/ledger/handlers"
	positionhandlers "github.com/aristath/costbook/internal/modules/positions/handlers"
	reporthandlers "github.com/aristath/costbook/internal/modules/reports/handlers"
)

// Config holds server configuration
type Config struct {
	Log                zerolog.Logger
	Port               int
	DevMode            bool
	InstrumentHandlers *instrumenthandlers.Handler
	LedgerHandlers     *ledgerhandlers.Handler
	PositionHandlers   *positionhandlers.Handler
	ReportHandlers     *reporthandlers.Handler
	SystemHandlers     *SystemHandlers
}

// Server represents the HTTP server
type Server struct {
	router *chi.Mux
	server *http.Server
	log    zerolog.Logger
}

// New creates a new HTTP server
func New(cfg Config) *Server {
	router := chi.NewRouter()

	router.Use(middleware.RequestID)
	router.Use(middleware.RealIP)
	router.Use(middleware.Recoverer)
	router.Use(middleware.Timeout(30 * time.Second))

	// Permissive CORS in dev mode only
	if cfg.DevMode {
		router.Use(cors.Handler(cors.Options{
			AllowedOrigins:   []string{"*"},
			AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
			AllowedHeaders:   []string{"Accept", "Content-Type"},
			AllowCredentials: false,
			MaxAge:           300,
		}))
	}

	router.Route("/api", func(r chi.Router) {
		cfg.InstrumentHandlers.RegisterRoutes(r)
		cfg.LedgerHandlers.RegisterRoutes(r)
		cfg.PositionHandlers.RegisterRoutes(r)
		cfg.ReportHandlers.RegisterRoutes(r)

		r.Get("/system/health", cfg.SystemHandlers.HandleHealth)
	})

	return &Server{
		router: router,
		server: &http.Server{
			Addr:         fmt.Sprintf(":%d", cfg.Port),
			Handler:      router,
			ReadTimeout:  15 * time.Second,
			WriteTimeout: 30 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
		log: cfg.Log.With().Str("component", "server").Logger(),
	}
}

// Start begins listening for HTTP requests. Blocks until the server is
// shut down.
func (s *Server) Start() error {
	s.log.Info().Str("addr", s.server.Addr).Msg("HTTP server listening")
	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("http server failed: %w", err)
	}
	return nil
}

// Shutdown gracefully stops the server
func (s *Server) Shutdown(ctx context.Context) error {
	s.log.Info().Msg("Shutting down HTTP server")
	return s.server.Shutdown(ctx)
}

// Router exposes the router for tests
func (s *Server) Router() *chi.Mux {
	return s.router
}
