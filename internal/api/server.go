package api

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/notescan/notescan/internal/core/config"
	"github.com/notescan/notescan/internal/feed"
	"github.com/notescan/notescan/internal/infra/redis"
	"github.com/notescan/notescan/internal/notes"
)

// ServerConfig wires the HTTP server.
type ServerConfig struct {
	Port     int
	Registry *config.Registry
	Feed     *feed.Service
	// Notes may be nil; note endpoints then answer 503.
	Notes *notes.Manager
	// Cache may be nil; the explorer proxy then always goes upstream.
	Cache          *redis.Client
	ExplorerAPIKey string
	CacheTTL       time.Duration
	Hub            *Hub
	// Health reports the readiness of the backing stores.
	Health func(ctx context.Context) error
	Log    *slog.Logger
}

// Server is the HTTP front of the service.
type Server struct {
	cfg  ServerConfig
	http *http.Server
	log  *slog.Logger
}

// NewServer builds the router and the underlying http.Server.
func NewServer(cfg ServerConfig) *Server {
	if cfg.Log == nil {
		cfg.Log = slog.Default()
	}
	if cfg.Port == 0 {
		cfg.Port = 8080
	}
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = 60 * time.Second
	}

	s := &Server{cfg: cfg, log: cfg.Log.With("component", "api")}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))

	r.Get("/healthz", s.handleHealth)
	r.Handle("/metrics", promhttp.Handler())
	r.Get("/ws", s.handleWS)

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/feed", s.handleFeed)
		r.Get("/tx/{chain}/{hash}", s.handleReceipt)
		r.Get("/notes", s.handleNotes)
		r.Post("/notes", s.handlePublish)
		r.Get("/explorer/{chain}", s.handleExplorerProxy)
	})

	s.http = &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// Start serves until the listener fails or Shutdown is called.
func (s *Server) Start() error {
	s.log.Info("http server listening", "addr", s.http.Addr)
	if err := s.http.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Shutdown drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.http.Shutdown(ctx)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if s.cfg.Health != nil {
		if err := s.cfg.Health(r.Context()); err != nil {
			writeError(w, http.StatusServiceUnavailable, fmt.Sprintf("unhealthy: %v", err))
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	if s.cfg.Hub == nil {
		writeError(w, http.StatusServiceUnavailable, "live push is not enabled")
		return
	}
	s.cfg.Hub.ServeWS(w, r)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
