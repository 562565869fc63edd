package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/haruo/kaigi/pkg/toolexecutor"
)

// Server exposes a local tool registry over the tool call envelope:
// POST /mcp for HTTP callers, GET /mcp/ws for WebSocket callers, and
// GET /health for probes. Every RPC reply is HTTP 200 with the outcome
// in the envelope, matching the endpoint contract the client expects.
type Server struct {
	executor *toolexecutor.Executor
	logger   zerolog.Logger
	upgrader websocket.Upgrader
	server   *http.Server
}

// ServerConfig holds tool server configuration.
type ServerConfig struct {
	Addr     string
	Executor *toolexecutor.Executor
	Logger   zerolog.Logger
}

// NewServer creates a tool server for the executor's registry.
func NewServer(cfg ServerConfig) (*Server, error) {
	if cfg.Executor == nil {
		return nil, fmt.Errorf("executor is required")
	}
	if cfg.Addr == "" {
		cfg.Addr = ":8080"
	}

	s := &Server{
		executor: cfg.Executor,
		logger:   cfg.Logger.With().Str("component", "mcp-server").Logger(),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
	}
	s.server = &http.Server{
		Addr:    cfg.Addr,
		Handler: s.Handler(),
	}
	return s, nil
}

// Handler returns the routing handler, exposed separately so tests can
// mount it on httptest servers.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/mcp", s.handleRPC)
	mux.HandleFunc("/mcp/ws", s.handleWS)
	mux.HandleFunc("/health", s.handleHealth)
	return mux
}

// Start begins serving in the background.
func (s *Server) Start() error {
	s.logger.Info().
		Str("addr", s.server.Addr).
		Strs("tools", s.executor.Names()).
		Msg("Starting tool server")

	go func() {
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.logger.Error().Err(err).Msg("Tool server error")
		}
	}()
	return nil
}

// Stop shuts the server down gracefully.
func (s *Server) Stop() error {
	s.logger.Info().Msg("Shutting down tool server")
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("failed to shutdown tool server: %w", err)
	}
	return nil
}

func (s *Server) handleRPC(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	body, err := io.ReadAll(r.Body)
	if err != nil {
		writeResponse(w, ErrorResponse(0, CodeParseError, "Parse error"))
		return
	}

	var req Request
	if err := json.Unmarshal(body, &req); err != nil {
		writeResponse(w, ErrorResponse(0, CodeParseError, "Parse error"))
		return
	}

	writeResponse(w, s.dispatch(r.Context(), &req))
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn().Err(err).Msg("WebSocket upgrade failed")
		return
	}
	defer conn.Close()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				s.logger.Warn().Err(err).Msg("WebSocket read failed")
			}
			return
		}

		var req Request
		var resp *Response
		if err := json.Unmarshal(data, &req); err != nil {
			resp = ErrorResponse(0, CodeParseError, "Parse error")
		} else {
			resp = s.dispatch(r.Context(), &req)
		}

		if err := conn.WriteJSON(resp); err != nil {
			s.logger.Warn().Err(err).Msg("WebSocket write failed")
			return
		}
	}
}

// dispatch runs one envelope against the registry.
func (s *Server) dispatch(ctx context.Context, req *Request) *Response {
	if req.JSONRPC != Version {
		return ErrorResponse(req.ID, CodeInvalidRequest, "Invalid request")
	}
	if req.Method != MethodToolsCall {
		return ErrorResponse(req.ID, CodeMethodNotFound, "Method not found")
	}
	if req.Params.Name == "" {
		return ErrorResponse(req.ID, CodeInvalidParams, "Missing tool name")
	}
	if !s.executor.Has(req.Params.Name) {
		return ErrorResponse(req.ID, CodeInvalidParams, fmt.Sprintf("Unknown tool: %s", req.Params.Name))
	}

	start := time.Now()
	result := s.executor.Execute(ctx, req.Params.Name, req.Params.Arguments)

	s.logger.Debug().
		Str("tool", req.Params.Name).
		Int64("id", req.ID).
		Bool("success", result.Success).
		Dur("elapsed", time.Since(start)).
		Msg("Tool call served")

	if !result.Success {
		if result.Kind == toolexecutor.KindValidation {
			return ErrorResponse(req.ID, CodeInvalidParams, result.Error)
		}
		return ErrorResponse(req.ID, CodeToolFailed, fmt.Sprintf("Tool execution failed: %s", result.Error))
	}
	return ResultResponse(req.ID, TextResult(result.Output))
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(map[string]interface{}{
		"status": "ok",
		"tools":  s.executor.Names(),
	})
}

func writeResponse(w http.ResponseWriter, resp *Response) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(resp)
}
