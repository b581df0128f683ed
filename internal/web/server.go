// Package web serves the chat stream and automation endpoints over HTTP.
package web

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/haasonsaas/agentcore/internal/agent"
	"github.com/haasonsaas/agentcore/internal/auth"
	"github.com/haasonsaas/agentcore/internal/automation"
	"github.com/haasonsaas/agentcore/internal/harness"
)

// maxBodyBytes bounds request bodies.
const maxBodyBytes = 1 << 20

// Config wires the HTTP surface.
type Config struct {
	Chat    *agent.ChatService
	Runtime *automation.Runtime

	// Tools is the registry offered to chat turns.
	Tools *harness.Registry

	// Auth verifies bearer tokens. Nil or secretless means dev headers.
	Auth *auth.JWTService

	// Gatherer serves /metrics when set.
	Gatherer    prometheus.Gatherer
	MetricsPath string

	// Debug emits debug_error events.
	Debug bool

	Logger *slog.Logger
}

// Server is the HTTP handler.
type Server struct {
	config Config
	logger *slog.Logger
	mux    *http.ServeMux
}

// NewServer builds the routes.
func NewServer(config Config) *Server {
	if config.Logger == nil {
		config.Logger = slog.Default()
	}
	if config.MetricsPath == "" {
		config.MetricsPath = "/metrics"
	}
	if config.Tools == nil {
		config.Tools = harness.NewRegistry()
	}
	s := &Server{
		config: config,
		logger: config.Logger.With("component", "web"),
		mux:    http.NewServeMux(),
	}

	authed := auth.Middleware(config.Auth, s.logger)
	s.mux.Handle("POST /v1/chat", authed(http.HandlerFunc(s.handleChat)))
	s.mux.Handle("GET /v1/automations", authed(http.HandlerFunc(s.handleListAutomations)))
	s.mux.Handle("GET /v1/automations/{id}", authed(http.HandlerFunc(s.handleGetAutomation)))
	s.mux.Handle("POST /v1/automations/{id}/run", authed(http.HandlerFunc(s.handleRunAutomation)))
	s.mux.Handle("GET /v1/automations/{id}/runs", authed(http.HandlerFunc(s.handleListRuns)))
	s.mux.HandleFunc("GET /healthz", s.handleHealth)
	if config.Gatherer != nil {
		s.mux.Handle("GET "+config.MetricsPath, promhttp.HandlerFor(config.Gatherer, promhttp.HandlerOpts{}))
	}
	return s
}

// Handler returns the routes wrapped in recovery and request logging.
func (s *Server) Handler() http.Handler {
	return LoggingMiddleware(s.logger)(RecoveryMiddleware(s.logger)(s.mux))
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}
