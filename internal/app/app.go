package app

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/haruo/kaigi/internal/api"
	"github.com/haruo/kaigi/internal/config"
	"github.com/haruo/kaigi/internal/logger"
	"github.com/haruo/kaigi/internal/observability"
	"github.com/haruo/kaigi/internal/tracing"
	"github.com/haruo/kaigi/pkg/agent"
	"github.com/haruo/kaigi/pkg/datastore"
	"github.com/haruo/kaigi/pkg/gateway"
	"github.com/haruo/kaigi/pkg/mcp"
	"github.com/haruo/kaigi/pkg/orchestrator"
	"github.com/haruo/kaigi/pkg/sandbox"
	"github.com/haruo/kaigi/pkg/team"
	"github.com/haruo/kaigi/pkg/toolexecutor"
	"github.com/haruo/kaigi/pkg/webtools"
	"github.com/haruo/kaigi/pkg/workspace"
)

// App wires the conversation engine and its services together and owns
// their lifecycle: the datastore, the tool suite, the optional remote
// endpoint, the team, the engine, and the HTTP API.
type App struct {
	config *config.Config
	logger *logger.Logger

	// Core components
	store      *datastore.Store
	renderer   *webtools.Renderer
	executor   *toolexecutor.Executor
	remote     *mcp.Client
	gateway    *gateway.Gateway
	prober     *gateway.Prober
	directives *workspace.Directives
	watcher    *workspace.Watcher
	team       *team.Registry
	engine     *orchestrator.Engine

	// Services
	apiServer *api.Server

	running        bool
	mu             sync.Mutex
	tracingEnabled bool
}

// New creates an app instance with all components initialized in
// dependency order. Nothing is listening yet; call Start for that, or
// Execute directly for a one-shot query.
func New(cfg *config.Config, log *logger.Logger) (*App, error) {
	observability.EnsureRegistered()

	a := &App{
		config: cfg,
		logger: log,
	}

	if cfg.Tracing.Enabled {
		zl := log.Zerolog()
		if err := tracing.InitOpenTelemetry("kaigi"); err != nil {
			zl.Warn().Err(err).Msg("Failed to initialize tracing, continuing without it")
		} else {
			a.tracingEnabled = true
			zl.Info().Msg("Tracing initialized")
		}
	}

	if err := a.initComponents(); err != nil {
		_ = a.Close()
		return nil, fmt.Errorf("failed to initialize components: %w", err)
	}

	if err := a.initServices(); err != nil {
		_ = a.Close()
		return nil, fmt.Errorf("failed to initialize services: %w", err)
	}

	return a, nil
}

// initComponents builds the tool layer and the engine.
func (a *App) initComponents() error {
	cfg := a.config
	zl := a.logger.Zerolog()

	store, err := datastore.Open(cfg.Database.Path)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	a.store = store
	zl.Info().Str("path", store.Path()).Msg("Database opened")

	executor, renderer, err := buildExecutor(cfg, store)
	if err != nil {
		return err
	}
	a.executor = executor
	a.renderer = renderer
	zl.Info().Int("tools", executor.Count()).Msg("Tool executor initialized")

	gatewayOpts := []gateway.Option{
		gateway.WithFallback(executor),
		gateway.WithLogger(zl),
	}

	if cfg.Tools.Endpoint != "" {
		dialURL, err := toolEndpointURL(cfg.Tools.Endpoint, cfg.Tools.Transport)
		if err != nil {
			return err
		}
		client, err := mcp.NewClient(dialURL,
			mcp.WithTimeout(time.Duration(cfg.Orchestrator.ToolTimeoutSeconds)*time.Second),
			mcp.WithLogger(zl),
		)
		if err != nil {
			return fmt.Errorf("failed to create tool endpoint client: %w", err)
		}
		a.remote = client
		a.prober = gateway.NewProber(client, cfg.Tools.ProbeSchedule, zl)
		gatewayOpts = append(gatewayOpts, gateway.WithRemote(client))
		zl.Info().
			Str("endpoint", client.Endpoint()).
			Str("transport", cfg.Tools.Transport).
			Msg("Tool endpoint configured")
	}

	a.gateway = gateway.New(gatewayOpts...)

	if cfg.Workspace.Dir != "" {
		directives, err := workspace.LoadDirectives(cfg.Workspace.Dir)
		if err != nil {
			return fmt.Errorf("failed to load workspace directives: %w", err)
		}
		watcher, err := workspace.NewWatcher(directives)
		if err != nil {
			return fmt.Errorf("failed to create workspace watcher: %w", err)
		}
		a.directives = directives
		a.watcher = watcher
		zl.Info().
			Str("dir", cfg.Workspace.Dir).
			Int("directives", directives.Count()).
			Msg("Workspace loaded")
	}

	completer, err := agent.NewCompleter(agent.ProviderConfig{
		Provider: cfg.LLM.Provider,
		APIKey:   cfg.LLM.APIKey,
		BaseURL:  cfg.LLM.BaseURL,
	})
	if err != nil {
		return fmt.Errorf("failed to create completer: %w", err)
	}

	specs := team.DefaultTeam(cfg.LLM.Model)
	for i := range specs {
		specs[i].Temperature = cfg.LLM.Temperature
	}
	registry, err := team.Build(specs, completer, executor, a.directives)
	if err != nil {
		return fmt.Errorf("failed to build team: %w", err)
	}
	a.team = registry
	zl.Info().Strs("agents", registry.Names()).Msg("Team built")

	selectorModel := cfg.LLM.SelectorModel
	if selectorModel == "" {
		selectorModel = cfg.LLM.Model
	}
	a.engine = orchestrator.New(registry, a.gateway,
		orchestrator.WithSelector(orchestrator.NewAutoSelector(completer, selectorModel)),
		orchestrator.WithMaxRounds(cfg.Orchestrator.MaxRounds),
		orchestrator.WithLogger(zl),
	)
	zl.Info().
		Str("provider", cfg.LLM.Provider).
		Str("model", cfg.LLM.Model).
		Str("selector_model", selectorModel).
		Int("max_rounds", cfg.Orchestrator.MaxRounds).
		Msg("Engine initialized")

	return nil
}

// initServices builds the HTTP boundary.
func (a *App) initServices() error {
	var endpointStatus func() string
	if a.prober != nil {
		endpointStatus = a.prober.Status
	}

	server, err := api.NewServer(api.ServerConfig{
		Addr:     a.config.Server.Addr,
		Engine:   a.engine,
		Schema:   a.store,
		Team:     a.team,
		Tools:    a.executor,
		Endpoint: endpointStatus,
		Logger:   a.logger.Zerolog(),
	})
	if err != nil {
		return fmt.Errorf("failed to create API server: %w", err)
	}
	a.apiServer = server
	zl := a.logger.Zerolog()
	zl.Info().Str("addr", a.config.Server.Addr).Msg("API server initialized")

	return nil
}

// Start starts the background services: the endpoint prober, the
// workspace watcher, and the API server.
func (a *App) Start() error {
	a.mu.Lock()
	if a.running {
		a.mu.Unlock()
		return fmt.Errorf("app is already running")
	}
	a.running = true
	a.mu.Unlock()

	traceID := tracing.NewTraceID()
	logger := a.logger.Zerolog().With().Str("trace_id", traceID).Logger()
	logger.Info().Msg("Starting kaigi")

	if a.prober != nil {
		if err := a.prober.Start(); err != nil {
			return fmt.Errorf("failed to start endpoint prober: %w", err)
		}
		logger.Info().Msg("Endpoint prober started")
	}

	if a.watcher != nil {
		if err := a.watcher.Start(); err != nil {
			logger.Warn().Err(err).Msg("Failed to start workspace watcher")
		} else {
			logger.Info().Msg("Workspace watcher started")
		}
	}

	if err := a.apiServer.Start(); err != nil {
		return fmt.Errorf("failed to start API server: %w", err)
	}

	logger.Info().Msg("kaigi started")
	return nil
}

// Stop stops the services gracefully and releases resources.
func (a *App) Stop() error {
	a.mu.Lock()
	if !a.running {
		a.mu.Unlock()
		return fmt.Errorf("app is not running")
	}
	a.running = false
	a.mu.Unlock()

	logger := a.logger.Zerolog()
	logger.Info().Msg("Stopping kaigi")

	if err := a.apiServer.Stop(); err != nil {
		logger.Error().Err(err).Msg("Failed to stop API server")
	}

	if a.watcher != nil {
		if err := a.watcher.Stop(); err != nil {
			logger.Error().Err(err).Msg("Failed to stop workspace watcher")
		}
	}

	if a.prober != nil {
		a.prober.Stop()
	}

	if err := a.Close(); err != nil {
		return err
	}

	logger.Info().Msg("kaigi stopped")
	return nil
}

// Close releases resources without touching services. The one-shot
// query path uses it directly, having never called Start.
func (a *App) Close() error {
	logger := a.logger.Zerolog()

	if a.renderer != nil {
		if err := a.renderer.Close(); err != nil {
			logger.Error().Err(err).Msg("Failed to close browser renderer")
		}
		a.renderer = nil
	}

	if a.store != nil {
		if err := a.store.Close(); err != nil {
			logger.Error().Err(err).Msg("Failed to close database")
		}
		a.store = nil
	}

	if a.tracingEnabled {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := tracing.ShutdownOpenTelemetry(ctx); err != nil {
			logger.Error().Err(err).Msg("Failed to shutdown tracing")
		}
		cancel()
		a.tracingEnabled = false
	}

	return nil
}

// Wait blocks until SIGINT or SIGTERM, then stops the app.
func (a *App) Wait() {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigChan
	zl := a.logger.Zerolog()
	zl.Info().Str("signal", sig.String()).Msg("Received signal")

	if err := a.Stop(); err != nil {
		zl.Error().Err(err).Msg("Failed to stop app")
	}
}

// Execute runs one conversation for the query. The HTTP API reaches
// the engine through the server; this is the CLI path.
func (a *App) Execute(ctx context.Context, query string) orchestrator.Result {
	return a.engine.Execute(ctx, query)
}

// Engine returns the conversation engine.
func (a *App) Engine() *orchestrator.Engine {
	return a.engine
}

// Team returns the agent registry.
func (a *App) Team() *team.Registry {
	return a.team
}

// Executor returns the local tool executor.
func (a *App) Executor() *toolexecutor.Executor {
	return a.executor
}

// Config returns the app configuration.
func (a *App) Config() *config.Config {
	return a.config
}

// buildExecutor registers the full local tool suite on one executor:
// the SQL tools, the web tools, and the code interpreter. The returned
// renderer is nil unless the browser is enabled.
func buildExecutor(cfg *config.Config, store *datastore.Store) (*toolexecutor.Executor, *webtools.Renderer, error) {
	executor := toolexecutor.New()
	executor.SetTimeout(time.Duration(cfg.Orchestrator.ToolTimeoutSeconds) * time.Second)

	defs := store.Definitions()

	var renderer *webtools.Renderer
	webOpts := []webtools.Option{}
	if cfg.Browser.Enabled {
		if cfg.Browser.ControlURL != "" {
			renderer = webtools.NewRemoteRenderer(cfg.Browser.ControlURL)
		} else {
			renderer = webtools.NewRenderer()
		}
		webOpts = append(webOpts, webtools.WithRenderer(renderer))
	}
	web := webtools.New(webtools.DefaultConfig(), webOpts...)
	defs = append(defs, web.Definitions()...)

	sandboxCfg := sandbox.DefaultConfig()
	sandboxCfg.MaxDuration = time.Duration(cfg.Sandbox.MaxDurationSeconds) * time.Second
	sandboxCfg.AllowedModules = cfg.Sandbox.AllowedModules
	interp, err := sandbox.NewInterpreter(sandboxCfg)
	if err != nil {
		if renderer != nil {
			_ = renderer.Close()
		}
		return nil, nil, fmt.Errorf("failed to create code interpreter: %w", err)
	}
	defs = append(defs, interp.Definition())

	for _, def := range defs {
		if err := executor.Register(def); err != nil {
			if renderer != nil {
				_ = renderer.Close()
			}
			return nil, nil, fmt.Errorf("failed to register tool %s: %w", def.Name, err)
		}
	}

	return executor, renderer, nil
}

// toolEndpointURL normalizes the configured endpoint to the transport:
// ws dialing uses the /mcp/ws route with a ws scheme, http posting the
// /mcp route. Endpoints that already carry a custom path keep it.
func toolEndpointURL(endpoint, transport string) (string, error) {
	u, err := url.Parse(endpoint)
	if err != nil {
		return "", fmt.Errorf("invalid tools.endpoint %q: %w", endpoint, err)
	}

	switch transport {
	case "ws":
		switch u.Scheme {
		case "http":
			u.Scheme = "ws"
		case "https":
			u.Scheme = "wss"
		}
		if u.Path == "" || u.Path == "/" || u.Path == "/mcp" {
			u.Path = "/mcp/ws"
		}
	default:
		switch u.Scheme {
		case "ws":
			u.Scheme = "http"
		case "wss":
			u.Scheme = "https"
		}
		if u.Path == "" || u.Path == "/" || u.Path == "/mcp/ws" {
			u.Path = "/mcp"
		}
	}

	return u.String(), nil
}
