package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/haruo/kaigi/internal/observability"
	"github.com/haruo/kaigi/pkg/orchestrator"
	"github.com/haruo/kaigi/pkg/team"
	"github.com/haruo/kaigi/pkg/toolexecutor"
)

// maxQueryBody caps the request body for /query.
const maxQueryBody = 1 << 20

// StatusUnconfigured is reported by /health when no remote tool
// endpoint is configured. The other states come from the prober.
const StatusUnconfigured = "unconfigured"

// Engine runs one conversation per query. *orchestrator.Engine
// satisfies it.
type Engine interface {
	Execute(ctx context.Context, query string) orchestrator.Result
}

// SchemaProvider renders the database schema for /schema.
// *datastore.Store satisfies it.
type SchemaProvider interface {
	Schema(ctx context.Context, table string) (string, error)
}

// ServerConfig holds API server dependencies.
type ServerConfig struct {
	Addr   string
	Engine Engine
	Schema SchemaProvider
	Team   *team.Registry
	Tools  *toolexecutor.Executor

	// Endpoint reports the tool endpoint probe state. Nil means no
	// remote endpoint is configured.
	Endpoint func() string

	Logger zerolog.Logger
}

// Server is the HTTP boundary: POST /query runs a conversation,
// GET /schema and GET /health describe the system, GET /metrics is the
// Prometheus scrape target.
type Server struct {
	cfg    ServerConfig
	logger zerolog.Logger
	server *http.Server
}

// NewServer creates the API server.
func NewServer(cfg ServerConfig) (*Server, error) {
	if cfg.Engine == nil {
		return nil, fmt.Errorf("engine is required")
	}
	if cfg.Addr == "" {
		cfg.Addr = ":8000"
	}

	s := &Server{
		cfg:    cfg,
		logger: cfg.Logger.With().Str("component", "api").Logger(),
	}
	s.server = &http.Server{
		Addr:    cfg.Addr,
		Handler: s.Handler(),
	}
	return s, nil
}

// Handler returns the routing handler, exposed separately so tests can
// drive it without a listener.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/query", s.handleQuery)
	mux.HandleFunc("/schema", s.handleSchema)
	mux.HandleFunc("/health", s.handleHealth)
	mux.Handle("/metrics", observability.MetricsHandler())
	return s.logRequests(mux)
}

// Start begins serving in the background.
func (s *Server) Start() error {
	s.logger.Info().
		Str("addr", s.server.Addr).
		Msg("Starting API server")

	go func() {
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.logger.Error().Err(err).Msg("API server error")
		}
	}()
	return nil
}

// Stop shuts the server down gracefully.
func (s *Server) Stop() error {
	s.logger.Info().Msg("Shutting down API server")
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("failed to shutdown API server: %w", err)
	}
	return nil
}

type queryRequest struct {
	Query string `json:"query"`
}

func (s *Server) handleQuery(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	var req queryRequest
	body := http.MaxBytesReader(w, r.Body, maxQueryBody)
	if err := json.NewDecoder(body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid request body: %v", err))
		return
	}

	result := s.cfg.Engine.Execute(r.Context(), req.Query)

	// A failed conversation is the caller's 400, with the full result
	// so the transcript stays inspectable.
	status := http.StatusOK
	if !result.Success {
		status = http.StatusBadRequest
	}
	writeJSON(w, status, result)
}

func (s *Server) handleSchema(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	if s.cfg.Schema == nil {
		writeError(w, http.StatusServiceUnavailable, "no database configured")
		return
	}

	text, err := s.cfg.Schema.Schema(r.Context(), "")
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(text))
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	agents := 0
	if s.cfg.Team != nil {
		agents = s.cfg.Team.Count()
	}
	tools := []string{}
	if s.cfg.Tools != nil {
		tools = s.cfg.Tools.Names()
	}
	endpoint := StatusUnconfigured
	if s.cfg.Endpoint != nil {
		endpoint = s.cfg.Endpoint()
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":   "ok",
		"agents":   agents,
		"tools":    tools,
		"endpoint": endpoint,
	})
}

// logRequests wraps the mux with a zerolog access log.
func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}

		next.ServeHTTP(rec, r)

		s.logger.Info().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", rec.status).
			Dur("elapsed", time.Since(start)).
			Msg("Request served")
	})
}

// statusRecorder captures the response status for the access log.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
