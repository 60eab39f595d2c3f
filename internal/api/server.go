package api

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/edvin/dochub/internal/api/handler"
	mw "github.com/edvin/dochub/internal/api/middleware"
	"github.com/edvin/dochub/internal/core"
)

type Server struct {
	router chi.Router
	logger zerolog.Logger
	pool   *pgxpool.Pool
	runner handler.BackupRunner

	storeReady func() bool
}

func NewServer(logger zerolog.Logger, pool *pgxpool.Pool, runner handler.BackupRunner,
	history *core.HistoryService, notifications *core.NotificationService, storeReady func() bool) *Server {
	s := &Server{
		router:     chi.NewRouter(),
		logger:     logger,
		pool:       pool,
		runner:     runner,
		storeReady: storeReady,
	}

	s.setupMiddleware()
	s.setupRoutes(history, notifications)

	return s
}

func (s *Server) setupMiddleware() {
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(mw.RequestLogger(s.logger))
	s.router.Use(middleware.Recoverer)
	s.router.Use(mw.Metrics)
}

func (s *Server) setupRoutes(history *core.HistoryService, notifications *core.NotificationService) {
	// Prometheus metrics endpoint
	s.router.Handle("/metrics", promhttp.Handler())

	// Health check endpoints
	s.router.Get("/healthz", s.handleHealthz)
	s.router.Get("/readyz", s.handleReadyz)

	s.router.Route("/api/v1", func(r chi.Router) {
		backup := handler.NewBackup(s.runner, history)
		r.Post("/backups/trigger", backup.Trigger)
		r.Get("/backups/progress/{jobID}", backup.Progress)
		r.Get("/backups/remote", backup.ListRemote)
		r.Get("/backups/history", backup.History)

		notification := handler.NewNotification(notifications)
		r.Get("/notifications", notification.List)
		r.Post("/notifications/{id}/read", notification.MarkRead)
	})
}

func (s *Server) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

func (s *Server) handleReadyz(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	checks := map[string]string{}
	healthy := true

	if err := s.pool.Ping(ctx); err != nil {
		checks["db"] = err.Error()
		healthy = false
	} else {
		checks["db"] = "ok"
	}

	if s.storeReady() {
		checks["remote_store"] = "ok"
	} else {
		checks["remote_store"] = "initializing"
		healthy = false
	}

	w.Header().Set("Content-Type", "application/json")
	if healthy {
		w.WriteHeader(http.StatusOK)
	} else {
		w.WriteHeader(http.StatusServiceUnavailable)
	}
	json.NewEncoder(w).Encode(checks)
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}
