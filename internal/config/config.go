package config

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/robfig/cron/v3"

	"github.com/haruo/kaigi/pkg/sandbox"
)

// Config represents the main kaigi configuration
type Config struct {
	// LLM provider shared by all agents
	LLM LLMConfig `json:"llm" mapstructure:"llm"`

	// Orchestrator loop limits
	Orchestrator OrchestratorConfig `json:"orchestrator" mapstructure:"orchestrator"`

	// Remote tool endpoint
	Tools ToolsConfig `json:"tools" mapstructure:"tools"`

	// Database for the SQL tools
	Database DatabaseConfig `json:"database" mapstructure:"database"`

	// Code interpreter limits
	Sandbox SandboxConfig `json:"sandbox" mapstructure:"sandbox"`

	// Headless browser for scraping
	Browser BrowserConfig `json:"browser" mapstructure:"browser"`

	// Workspace directory with agent directives
	Workspace WorkspaceConfig `json:"workspace" mapstructure:"workspace"`

	// HTTP API server
	Server ServerConfig `json:"server" mapstructure:"server"`

	// Standalone MCP tool server
	MCP MCPConfig `json:"mcp" mapstructure:"mcp"`

	// Logging
	Log LogConfig `json:"log" mapstructure:"log"`

	// Tracing
	Tracing TracingConfig `json:"tracing" mapstructure:"tracing"`
}

// LLMConfig holds the model provider configuration
type LLMConfig struct {
	Provider      string  `json:"provider" mapstructure:"provider"` // openai, anthropic, ollama
	Model         string  `json:"model" mapstructure:"model"`
	BaseURL       string  `json:"base_url" mapstructure:"base_url"`
	APIKey        string  `json:"api_key" mapstructure:"api_key"`
	SelectorModel string  `json:"selector_model" mapstructure:"selector_model"` // empty: use model
	Temperature   float64 `json:"temperature" mapstructure:"temperature"`
}

// OrchestratorConfig holds conversation loop limits
type OrchestratorConfig struct {
	MaxRounds          int `json:"max_rounds" mapstructure:"max_rounds"`
	ToolTimeoutSeconds int `json:"tool_timeout_seconds" mapstructure:"tool_timeout_seconds"`
}

// ToolsConfig holds the remote tool endpoint configuration. An empty
// endpoint means tools run in-process only.
type ToolsConfig struct {
	Endpoint      string `json:"endpoint" mapstructure:"endpoint"`
	Transport     string `json:"transport" mapstructure:"transport"` // http, ws
	ProbeSchedule string `json:"probe_schedule" mapstructure:"probe_schedule"`
}

// DatabaseConfig holds the SQLite database location
type DatabaseConfig struct {
	Path string `json:"path" mapstructure:"path"`
}

// SandboxConfig holds code interpreter limits
type SandboxConfig struct {
	MaxDurationSeconds int      `json:"max_duration_seconds" mapstructure:"max_duration_seconds"`
	AllowedModules     []string `json:"allowed_modules" mapstructure:"allowed_modules"`
}

// BrowserConfig holds the headless browser settings. ControlURL points
// at an already-running browser; empty means launch one on demand.
type BrowserConfig struct {
	Enabled    bool   `json:"enabled" mapstructure:"enabled"`
	ControlURL string `json:"control_url" mapstructure:"control_url"`
}

// WorkspaceConfig holds the directives directory. Empty disables
// workspace lookups and the watcher.
type WorkspaceConfig struct {
	Dir string `json:"dir" mapstructure:"dir"`
}

// ServerConfig holds the HTTP API listen address
type ServerConfig struct {
	Addr string `json:"addr" mapstructure:"addr"`
}

// MCPConfig holds the standalone tool server listen address
type MCPConfig struct {
	Addr string `json:"addr" mapstructure:"addr"`
}

// LogConfig holds logging configuration
type LogConfig struct {
	Level  string `json:"level" mapstructure:"level"`
	File   string `json:"file" mapstructure:"file"`
	Pretty bool   `json:"pretty" mapstructure:"pretty"`
}

// TracingConfig holds tracing configuration. Span export is a
// deployment concern; the engine only installs the tracer provider.
type TracingConfig struct {
	Enabled bool `json:"enabled" mapstructure:"enabled"`
}

// DefaultConfig returns a config with default values: a local Ollama
// model, the demo database in the working directory, and both servers
// on their usual ports.
func DefaultConfig() *Config {
	return &Config{
		LLM: LLMConfig{
			Provider:    "ollama",
			Model:       "qwen2.5-coder:7b-instruct-q4_K_M",
			Temperature: 0,
		},
		Orchestrator: OrchestratorConfig{
			MaxRounds:          12,
			ToolTimeoutSeconds: 30,
		},
		Tools: ToolsConfig{
			Transport:     "http",
			ProbeSchedule: "@every 30s",
		},
		Database: DatabaseConfig{
			Path: "kaigi.db",
		},
		Sandbox: SandboxConfig{
			MaxDurationSeconds: 5,
			AllowedModules:     sandbox.Modules(),
		},
		Browser: BrowserConfig{
			Enabled: false,
		},
		Workspace: WorkspaceConfig{
			Dir: "",
		},
		Server: ServerConfig{
			Addr: ":8000",
		},
		MCP: MCPConfig{
			Addr: ":8080",
		},
		Log: LogConfig{
			Level:  "info",
			Pretty: true,
		},
		Tracing: TracingConfig{
			Enabled: false,
		},
	}
}

// String returns a JSON representation of the config
func (c *Config) String() string {
	data, _ := json.MarshalIndent(c, "", "  ")
	return string(data)
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	switch c.LLM.Provider {
	case "openai", "anthropic":
		if c.LLM.APIKey == "" {
			return fmt.Errorf("llm.api_key is required for provider %s", c.LLM.Provider)
		}
	case "ollama":
		// No key needed for a local endpoint.
	case "":
		return fmt.Errorf("llm.provider is required (openai, anthropic, or ollama)")
	default:
		return fmt.Errorf("invalid llm.provider %s (must be: openai, anthropic, ollama)", c.LLM.Provider)
	}

	if c.LLM.Model == "" {
		return fmt.Errorf("llm.model is required")
	}
	if c.LLM.Temperature < 0 || c.LLM.Temperature > 1 {
		return fmt.Errorf("llm.temperature must be between 0 and 1, got %g", c.LLM.Temperature)
	}

	if c.Orchestrator.MaxRounds <= 0 {
		return fmt.Errorf("orchestrator.max_rounds must be positive, got %d", c.Orchestrator.MaxRounds)
	}
	if c.Orchestrator.ToolTimeoutSeconds <= 0 {
		return fmt.Errorf("orchestrator.tool_timeout_seconds must be positive, got %d", c.Orchestrator.ToolTimeoutSeconds)
	}

	if c.Tools.Transport != "http" && c.Tools.Transport != "ws" {
		return fmt.Errorf("invalid tools.transport %s (must be: http, ws)", c.Tools.Transport)
	}
	if c.Tools.ProbeSchedule != "" {
		if _, err := cron.ParseStandard(c.Tools.ProbeSchedule); err != nil {
			return fmt.Errorf("invalid tools.probe_schedule %q: %w", c.Tools.ProbeSchedule, err)
		}
	}

	if c.Database.Path == "" {
		return fmt.Errorf("database.path is required (the SQL tools need a SQLite file)")
	}

	if c.Sandbox.MaxDurationSeconds <= 0 {
		return fmt.Errorf("sandbox.max_duration_seconds must be positive, got %d", c.Sandbox.MaxDurationSeconds)
	}
	available := sandbox.Modules()
	for _, name := range c.Sandbox.AllowedModules {
		if !contains(available, name) {
			return fmt.Errorf("unknown sandbox module %q (available: %s)", name, strings.Join(available, ", "))
		}
	}

	if c.Server.Addr == "" {
		return fmt.Errorf("server.addr is required")
	}
	if c.MCP.Addr == "" {
		return fmt.Errorf("mcp.addr is required")
	}

	validLevels := []string{"debug", "info", "warn", "error"}
	if !contains(validLevels, c.Log.Level) {
		return fmt.Errorf("invalid log.level %s (must be one of: %s)", c.Log.Level, strings.Join(validLevels, ", "))
	}

	return nil
}

func contains(values []string, want string) bool {
	for _, v := range values {
		if v == want {
			return true
		}
	}
	return false
}
