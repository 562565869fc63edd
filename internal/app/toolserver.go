package app

import (
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/haruo/kaigi/internal/config"
	"github.com/haruo/kaigi/internal/logger"
	"github.com/haruo/kaigi/pkg/datastore"
	"github.com/haruo/kaigi/pkg/mcp"
	"github.com/haruo/kaigi/pkg/toolexecutor"
	"github.com/haruo/kaigi/pkg/webtools"
)

// ToolServer hosts the local tool suite behind the wire protocol so an
// engine in another process can call it as its remote endpoint. It
// carries the same tools the engine would register locally.
type ToolServer struct {
	config *config.Config
	logger *logger.Logger

	store    *datastore.Store
	renderer *webtools.Renderer
	executor *toolexecutor.Executor
	server   *mcp.Server

	running bool
	mu      sync.Mutex
}

// NewToolServer creates a tool server with the full suite registered.
func NewToolServer(cfg *config.Config, log *logger.Logger) (*ToolServer, error) {
	zl := log.Zerolog()

	store, err := datastore.Open(cfg.Database.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	zl.Info().Str("path", store.Path()).Msg("Database opened")

	executor, renderer, err := buildExecutor(cfg, store)
	if err != nil {
		_ = store.Close()
		return nil, err
	}
	zl.Info().Int("tools", executor.Count()).Msg("Tool executor initialized")

	server, err := mcp.NewServer(mcp.ServerConfig{
		Addr:     cfg.MCP.Addr,
		Executor: executor,
		Logger:   zl,
	})
	if err != nil {
		if renderer != nil {
			_ = renderer.Close()
		}
		_ = store.Close()
		return nil, fmt.Errorf("failed to create tool server: %w", err)
	}

	return &ToolServer{
		config:   cfg,
		logger:   log,
		store:    store,
		renderer: renderer,
		executor: executor,
		server:   server,
	}, nil
}

// Start begins serving tool calls.
func (t *ToolServer) Start() error {
	t.mu.Lock()
	if t.running {
		t.mu.Unlock()
		return fmt.Errorf("tool server is already running")
	}
	t.running = true
	t.mu.Unlock()

	if err := t.server.Start(); err != nil {
		return fmt.Errorf("failed to start tool server: %w", err)
	}

	zl := t.logger.Zerolog()
	zl.Info().
		Str("addr", t.config.MCP.Addr).
		Strs("tools", t.executor.Names()).
		Msg("Tool server started")
	return nil
}

// Stop shuts the server down and releases resources.
func (t *ToolServer) Stop() error {
	t.mu.Lock()
	if !t.running {
		t.mu.Unlock()
		return fmt.Errorf("tool server is not running")
	}
	t.running = false
	t.mu.Unlock()

	logger := t.logger.Zerolog()
	logger.Info().Msg("Stopping tool server")

	if err := t.server.Stop(); err != nil {
		logger.Error().Err(err).Msg("Failed to stop tool server")
	}

	if t.renderer != nil {
		if err := t.renderer.Close(); err != nil {
			logger.Error().Err(err).Msg("Failed to close browser renderer")
		}
		t.renderer = nil
	}

	if t.store != nil {
		if err := t.store.Close(); err != nil {
			logger.Error().Err(err).Msg("Failed to close database")
		}
		t.store = nil
	}

	logger.Info().Msg("Tool server stopped")
	return nil
}

// Executor returns the registered tool executor.
func (t *ToolServer) Executor() *toolexecutor.Executor {
	return t.executor
}

// Wait blocks until SIGINT or SIGTERM, then stops the server.
func (t *ToolServer) Wait() {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigChan
	zl := t.logger.Zerolog()
	zl.Info().Str("signal", sig.String()).Msg("Received signal")

	if err := t.Stop(); err != nil {
		zl.Error().Err(err).Msg("Failed to stop tool server")
	}
}
