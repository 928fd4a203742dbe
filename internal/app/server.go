package app

import (
	"context"
	"errors"
	"net/http"
	"slices"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"github.com/markdave123-py/Pagewise/internal/api/handlers"
	appMiddleware "github.com/markdave123-py/Pagewise/internal/api/middlewares"
	"github.com/markdave123-py/Pagewise/internal/config"
	"github.com/markdave123-py/Pagewise/internal/core/ingestion_engine"
)

// Server wraps the HTTP server instance and its handlers.
type Server struct {
	httpServer *http.Server
	logger     *zap.Logger
}

// NewServer builds and wires all routes.
func NewServer(cfg *config.Config, logger *zap.Logger, ing ingestion_engine.Ingestor, sweeper handlers.Sweeper) *Server {
	// without a signing secret there is no token to trust, so the form names the owner
	docHandler := handlers.NewDocumentHandler(ing, cfg.MaxFileSize, cfg.JWTSecret == "", logger)
	jobHandler := handlers.NewJobHandler(ing.JobStore(), logger)
	healthHandler := handlers.NewHealthHandler(ing)
	reconcileHandler := handlers.NewReconcileHandler(sweeper, cfg.ReconcileAfter, logger)

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.CorsOrigins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: !slices.Contains(cfg.CorsOrigins, "*"),
	}))

	// public endpoints
	r.Get("/health", healthHandler.Health)
	r.Get("/job/{jobID}", jobHandler.GetJob)

	// uploads, attributed to the token holder when one is sent
	r.Group(func(up chi.Router) {
		up.Use(appMiddleware.JWTMiddleware(cfg.JWTSecret))
		up.Post("/extract/async", docHandler.ExtractAsync)
		up.Post("/extract", docHandler.Extract)
	})

	// operator endpoints need a token holder
	r.Group(func(admin chi.Router) {
		admin.Use(appMiddleware.JWTMiddleware(cfg.JWTSecret))
		admin.Use(appMiddleware.RequireUser)
		admin.Get("/admin/reconcile", reconcileHandler.Report)
	})

	httpSrv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	return &Server{httpServer: httpSrv, logger: logger}
}

func (s *Server) Handler() http.Handler { return s.httpServer.Handler }

// Start runs the HTTP server until it is shut down.
func (s *Server) Start() error {
	s.logger.Info("HTTP server listening", zap.String("addr", s.httpServer.Addr))
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down HTTP server")
	return s.httpServer.Shutdown(ctx)
}
