// Package server implements the swarm HTTP server: REST API, auth, SSE
// real-time events and Prometheus metrics.
package server

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/aiswarm/orchestrator/comms"
	"github.com/aiswarm/orchestrator/config"
	"github.com/aiswarm/orchestrator/events"
	"github.com/aiswarm/orchestrator/server/api"
	"github.com/aiswarm/orchestrator/server/ws"
)

// Server is the swarm HTTP server.
type Server struct {
	cfg     config.ServerConfig
	mux     *http.ServeMux
	httpSrv *http.Server
	logger  *slog.Logger

	system   api.System
	handlers *api.Handlers
	sse      *ws.Hub
	detach   func()

	startTime time.Time
	version   string
}

// New creates a Server for sys. Notifications raised on notify are streamed
// to SSE clients.
func New(cfg config.ServerConfig, sys api.System, notify *events.Hub, ver string, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	s := &Server{
		cfg:       cfg,
		mux:       http.NewServeMux(),
		logger:    logger,
		system:    sys,
		sse:       ws.NewHub(logger),
		startTime: time.Now(),
		version:   ver,
	}
	if notify != nil {
		s.detach = s.sse.Attach(notify)
	}
	comms.RegisterMetrics()
	ws.RegisterMetrics()
	s.registerRoutes()
	return s
}

// Handler returns the root HTTP handler.
func (s *Server) Handler() http.Handler { return s.mux }

// Start begins listening. It blocks until the server stops.
func (s *Server) Start() error {
	addr := s.cfg.Addr
	if addr == "" {
		addr = ":9090"
	}
	s.httpSrv = &http.Server{
		Addr:              addr,
		Handler:           s.mux,
		ReadHeaderTimeout: 15 * time.Second,
	}
	s.logger.Info("server listening", slog.String("addr", addr), slog.Bool("auth", s.authEnabled()))
	return s.httpSrv.ListenAndServe()
}

// Stop gracefully shuts down the HTTP server and stops streaming events.
func (s *Server) Stop(ctx context.Context) error {
	if s.detach != nil {
		s.detach()
	}
	if s.httpSrv == nil {
		return nil
	}
	return s.httpSrv.Shutdown(ctx)
}

// registerRoutes sets up all HTTP routes.
func (s *Server) registerRoutes() {
	h := &api.Handlers{
		System:  s.system,
		Logger:  s.logger,
		Version: s.version,
		StartAt: s.startTime,
	}
	s.handlers = h

	// Public routes (no auth required)
	s.mux.HandleFunc("POST /api/auth/login", s.handleLogin)
	s.mux.HandleFunc("GET /api/status", h.StatusHandler())
	s.mux.Handle("GET /metrics", promhttp.Handler())

	// SSE: auth handled inline because EventSource can't set headers
	s.mux.HandleFunc("GET /events", s.handleSSE)

	// Protected API
	apiMux := http.NewServeMux()
	h.RegisterRoutes(apiMux)
	apiMux.HandleFunc("GET /api/auth/me", s.handleMe)

	s.mux.Handle("/api/", s.authMiddleware(apiMux))
}

// writeJSON encodes v as JSON and writes it with the given status code.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeJSONError writes a JSON error response.
func writeJSONError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// handleSSE streams notifications. The token travels as a query parameter.
func (s *Server) handleSSE(w http.ResponseWriter, r *http.Request) {
	if s.authEnabled() {
		if _, err := verifyJWT(s.cfg.Auth.JWTSecret, r.URL.Query().Get("token")); err != nil {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
	}
	s.sse.ServeSSE(w, r)
}
