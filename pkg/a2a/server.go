package a2a

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/ordermesh/ordermesh/pkg/logger"
	"github.com/ordermesh/ordermesh/pkg/telemetry"
)

// ============================================================================
// A2A SERVER - HTTP+JSON Transport
// ============================================================================

// ServerConfig configures the A2A HTTP server.
type ServerConfig struct {
	Host            string
	Port            int
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
}

func (c *ServerConfig) setDefaults() {
	if c.Host == "" {
		c.Host = "0.0.0.0"
	}
	if c.Port == 0 {
		c.Port = 8080
	}
	if c.ReadTimeout == 0 {
		c.ReadTimeout = 30 * time.Second
	}
	if c.WriteTimeout == 0 {
		c.WriteTimeout = 120 * time.Second
	}
	if c.ShutdownTimeout == 0 {
		c.ShutdownTimeout = 10 * time.Second
	}
}

// Server exposes a Handler over the A2A HTTP+JSON transport:
//
//	GET  /.well-known/agent.json   capability card
//	POST /                         submit a message, returns the task
//	GET  /tasks/{id}               task lookup
//	POST /tasks/{id}/cancel        cancellation
//	GET  /health                   liveness
//	GET  /metrics                  Prometheus metrics
type Server struct {
	cfg     ServerConfig
	handler Handler
	httpSrv *http.Server
}

// NewServer builds a server around the given protocol handler.
func NewServer(cfg ServerConfig, handler Handler) *Server {
	cfg.setDefaults()

	s := &Server{cfg: cfg, handler: handler}

	r := chi.NewRouter()
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(requestMetrics)
	r.Use(requestLogging)

	r.Get(WellKnownCardPath, s.handleCard)
	r.Post("/", s.handleSend)
	r.Get("/tasks/{id}", s.handleGetTask)
	r.Post("/tasks/{id}/cancel", s.handleCancelTask)
	r.Get("/health", s.handleHealth)
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	s.httpSrv = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Handler:      r,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}
	return s
}

// Addr returns the configured listen address.
func (s *Server) Addr() string { return s.httpSrv.Addr }

// Router returns the HTTP handler, mainly for tests.
func (s *Server) Router() http.Handler { return s.httpSrv.Handler }

// Start runs the server until ctx is cancelled, then drains in-flight
// requests within the shutdown timeout.
func (s *Server) Start(ctx context.Context) error {
	log := logger.GetLogger()

	errCh := make(chan error, 1)
	go func() {
		log.Info("a2a server listening", "addr", s.httpSrv.Addr, "agent", s.handler.Card().Name)
		if err := s.httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("a2a server: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
	defer cancel()
	log.Info("a2a server shutting down", "addr", s.httpSrv.Addr)
	return s.httpSrv.Shutdown(shutdownCtx)
}

// ============================================================================
// HANDLERS
// ============================================================================

func (s *Server) handleCard(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, s.handler.Card())
}

func (s *Server) handleSend(w http.ResponseWriter, r *http.Request) {
	var params SendParams
	if err := json.NewDecoder(r.Body).Decode(&params); err != nil {
		respondError(w, WrapError(CodeValidation, err, "malformed request body"))
		return
	}

	task, err := s.handler.OnMessage(r.Context(), params.Message)
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, task)
}

func (s *Server) handleGetTask(w http.ResponseWriter, r *http.Request) {
	task, err := s.handler.GetTask(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, task)
}

func (s *Server) handleCancelTask(w http.ResponseWriter, r *http.Request) {
	var params CancelParams
	if r.Body != nil {
		// An empty body is a valid cancel with no reason.
		_ = json.NewDecoder(r.Body).Decode(&params)
	}

	task, err := s.handler.CancelTask(r.Context(), chi.URLParam(r, "id"), params.Reason)
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, task)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{
		"status": "ok",
		"agent":  s.handler.Card().Name,
	})
}

// ============================================================================
// RESPONSE PLUMBING
// ============================================================================

func respondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.GetLogger().Error("encoding response", "error", err)
	}
}

// respondError writes the protocol error envelope {code, message} with the
// status the code maps to.
func respondError(w http.ResponseWriter, err error) {
	var pe *Error
	if !errors.As(err, &pe) {
		pe = WrapError(CodeRuntime, err, "internal error")
	}
	respondJSON(w, HTTPStatus(pe.Code), map[string]string{
		"code":    string(pe.Code),
		"message": pe.Message,
	})
}

// ============================================================================
// MIDDLEWARE
// ============================================================================

func requestLogging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		logger.GetLogger().Debug("request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"duration", time.Since(start),
		)
	})
}

func requestMetrics(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		route := chi.RouteContext(r.Context()).RoutePattern()
		if route == "" {
			route = r.URL.Path
		}
		telemetry.Metrics.RequestsTotal.WithLabelValues(route, strconv.Itoa(ww.Status())).Inc()
		telemetry.Metrics.RequestDuration.WithLabelValues(route).Observe(time.Since(start).Seconds())
	})
}
