// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/jeranaias/chatdeck/internal/commands"
	"github.com/jeranaias/chatdeck/internal/config"
	"github.com/jeranaias/chatdeck/internal/localnet"
)

const (
	// MaxBodyBytes caps the size of an invocation's argument object.
	MaxBodyBytes = 1 << 20

	// ShutdownTimeout bounds graceful shutdown.
	ShutdownTimeout = 5 * time.Second

	healthTimeout = 2 * time.Second
)

// ============================================================================
// CONFIGURATION
// ============================================================================

// Config configures the IPC server.
type Config struct {
	Addr           string
	AllowedOrigins []string
	RateLimit      float64 // requests per second per client
	Burst          int
	Version        string
}

// ConfigFromSettings builds a Config from the [server] settings table.
func ConfigFromSettings(s config.ServerSettings, version string) Config {
	return Config{
		Addr:           s.Addr,
		AllowedOrigins: s.AllowedOrigins,
		RateLimit:      s.RateLimit,
		Burst:          s.Burst,
		Version:        version,
	}
}

// ============================================================================
// SERVER
// ============================================================================

// Server exposes the command registry over local HTTP.
type Server struct {
	cfg      Config
	registry *commands.Registry
	env      *commands.Context
	log      zerolog.Logger
	router   chi.Router
	started  time.Time

	server *http.Server
}

// New creates a Server dispatching to registry with env.
func New(cfg Config, registry *commands.Registry, env *commands.Context, logger zerolog.Logger) *Server {
	s := &Server{
		cfg:      cfg,
		registry: registry,
		env:      env,
		log:      logger,
		started:  time.Now(),
	}
	s.setupRoutes()
	return s
}

// Handler returns the HTTP handler with all middleware applied.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) setupRoutes() {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(LoggingMiddleware(s.log))
	r.Use(MetricsMiddleware)
	if len(s.cfg.AllowedOrigins) > 0 {
		r.Use(CORSMiddleware(s.cfg.AllowedOrigins))
	}

	r.Get("/health", s.handleHealth)
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	r.Group(func(r chi.Router) {
		if s.cfg.RateLimit > 0 && s.cfg.Burst > 0 {
			r.Use(RateLimitMiddleware(NewRateLimiter(s.cfg.RateLimit, s.cfg.Burst), s.log))
		}
		r.Use(RequireJSON)
		r.Use(LimitBody(MaxBodyBytes))
		r.Post("/invoke/{command}", s.handleInvoke)
	})

	s.router = r
}

// ============================================================================
// HANDLERS
// ============================================================================

// InvokeResponse is the body of a successful invocation.
type InvokeResponse struct {
	Result any `json:"result"`
}

// ErrorResponse is the body of a failed request.
type ErrorResponse struct {
	Error string `json:"error"`
}

func (s *Server) handleInvoke(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "command")

	body, err := io.ReadAll(r.Body)
	if err != nil {
		var mbe *http.MaxBytesError
		if errors.As(err, &mbe) {
			writeError(w, http.StatusRequestEntityTooLarge, fmt.Sprintf("request body exceeds %d bytes", mbe.Limit))
			return
		}
		writeError(w, http.StatusBadRequest, "failed to read request body")
		return
	}

	var args json.RawMessage
	if len(body) > 0 {
		if !json.Valid(body) {
			writeError(w, http.StatusBadRequest, "request body is not valid JSON")
			return
		}
		args = body
	}

	result, err := s.registry.Dispatch(r.Context(), s.env, name, args)
	if err != nil {
		writeError(w, statusFor(err), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, InvokeResponse{Result: result})
}

// HealthResponse is the body of GET /health.
type HealthResponse struct {
	Status        string `json:"status"`
	Version       string `json:"version,omitempty"`
	UptimeSeconds int64  `json:"uptime_seconds"`
	Ollama        string `json:"ollama"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	resp := HealthResponse{
		Status:        "ok",
		Version:       s.cfg.Version,
		UptimeSeconds: int64(time.Since(s.started).Seconds()),
		Ollama:        "unknown",
	}

	if s.env != nil && s.env.Ollama != nil {
		ctx, cancel := context.WithTimeout(r.Context(), healthTimeout)
		defer cancel()
		if err := s.env.Ollama.CheckRunning(ctx); err != nil {
			resp.Ollama = "unavailable"
		} else {
			resp.Ollama = "running"
		}
	}

	writeJSON(w, http.StatusOK, resp)
}

// ============================================================================
// SERVER LIFECYCLE
// ============================================================================

// ListenAndServe listens on the configured loopback address and serves until
// ctx is cancelled, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context) error {
	if err := localnet.ValidateListenAddr(s.cfg.Addr); err != nil {
		return err
	}
	ln, err := net.Listen("tcp", s.cfg.Addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.cfg.Addr, err)
	}
	return s.Serve(ctx, ln)
}

// Serve serves on ln until ctx is cancelled.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	s.server = &http.Server{
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       120 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	errc := make(chan error, 1)
	go func() {
		s.log.Info().Str("addr", ln.Addr().String()).Str("version", s.cfg.Version).Msg("server listening")
		errc <- s.server.Serve(ln)
	}()

	select {
	case err := <-errc:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	s.log.Info().Msg("server shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), ShutdownTimeout)
	defer cancel()
	if err := s.server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("graceful shutdown: %w", err)
	}
	if err := <-errc; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// ============================================================================
// HELPERS
// ============================================================================

// statusFor maps dispatch failures to HTTP status codes.
func statusFor(err error) int {
	var ie *commands.InvokeError
	if errors.As(err, &ie) {
		switch ie.Kind {
		case commands.KindUnknownCommand, commands.KindInvalidArgs:
			return http.StatusBadRequest
		}
	}
	return http.StatusInternalServerError
}

// writeJSON writes a JSON response.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, ErrorResponse{Error: message})
}
