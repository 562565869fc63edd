package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	assert.Equal(t, "ollama", cfg.LLM.Provider)
	assert.Equal(t, "qwen2.5-coder:7b-instruct-q4_K_M", cfg.LLM.Model)
	assert.Zero(t, cfg.LLM.Temperature)
	assert.Equal(t, 12, cfg.Orchestrator.MaxRounds)
	assert.Equal(t, 30, cfg.Orchestrator.ToolTimeoutSeconds)
	assert.Equal(t, "http", cfg.Tools.Transport)
	assert.Equal(t, "@every 30s", cfg.Tools.ProbeSchedule)
	assert.Equal(t, "kaigi.db", cfg.Database.Path)
	assert.Equal(t, 5, cfg.Sandbox.MaxDurationSeconds)
	assert.NotEmpty(t, cfg.Sandbox.AllowedModules)
	assert.False(t, cfg.Browser.Enabled)
	assert.Equal(t, ":8000", cfg.Server.Addr)
	assert.Equal(t, ":8080", cfg.MCP.Addr)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.True(t, cfg.Log.Pretty)
	assert.False(t, cfg.Tracing.Enabled)

	assert.NoError(t, cfg.Validate(), "defaults must validate")
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{
			name:    "unknown provider",
			mutate:  func(c *Config) { c.LLM.Provider = "gemini" },
			wantErr: "invalid llm.provider",
		},
		{
			name:    "empty provider",
			mutate:  func(c *Config) { c.LLM.Provider = "" },
			wantErr: "llm.provider is required",
		},
		{
			name: "openai without api key",
			mutate: func(c *Config) {
				c.LLM.Provider = "openai"
				c.LLM.APIKey = ""
			},
			wantErr: "llm.api_key is required for provider openai",
		},
		{
			name: "anthropic with api key passes",
			mutate: func(c *Config) {
				c.LLM.Provider = "anthropic"
				c.LLM.Model = "claude-sonnet-4-20250514"
				c.LLM.APIKey = "sk-ant-test"
			},
		},
		{
			name:    "empty model",
			mutate:  func(c *Config) { c.LLM.Model = "" },
			wantErr: "llm.model is required",
		},
		{
			name:    "temperature out of range",
			mutate:  func(c *Config) { c.LLM.Temperature = 1.5 },
			wantErr: "llm.temperature must be between 0 and 1",
		},
		{
			name:    "zero max rounds",
			mutate:  func(c *Config) { c.Orchestrator.MaxRounds = 0 },
			wantErr: "orchestrator.max_rounds must be positive",
		},
		{
			name:    "zero tool timeout",
			mutate:  func(c *Config) { c.Orchestrator.ToolTimeoutSeconds = 0 },
			wantErr: "orchestrator.tool_timeout_seconds must be positive",
		},
		{
			name:    "unknown transport",
			mutate:  func(c *Config) { c.Tools.Transport = "grpc" },
			wantErr: "invalid tools.transport",
		},
		{
			name:    "bad probe schedule",
			mutate:  func(c *Config) { c.Tools.ProbeSchedule = "every other tuesday" },
			wantErr: "invalid tools.probe_schedule",
		},
		{
			name:   "empty probe schedule is fine",
			mutate: func(c *Config) { c.Tools.ProbeSchedule = "" },
		},
		{
			name:    "empty database path",
			mutate:  func(c *Config) { c.Database.Path = "" },
			wantErr: "database.path is required",
		},
		{
			name:    "zero sandbox duration",
			mutate:  func(c *Config) { c.Sandbox.MaxDurationSeconds = 0 },
			wantErr: "sandbox.max_duration_seconds must be positive",
		},
		{
			name:    "unknown sandbox module",
			mutate:  func(c *Config) { c.Sandbox.AllowedModules = []string{"math", "fs"} },
			wantErr: `unknown sandbox module "fs"`,
		},
		{
			name:    "empty server addr",
			mutate:  func(c *Config) { c.Server.Addr = "" },
			wantErr: "server.addr is required",
		},
		{
			name:    "empty mcp addr",
			mutate:  func(c *Config) { c.MCP.Addr = "" },
			wantErr: "mcp.addr is required",
		},
		{
			name:    "unknown log level",
			mutate:  func(c *Config) { c.Log.Level = "verbose" },
			wantErr: "invalid log.level",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)

			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestConfigString(t *testing.T) {
	cfg := DefaultConfig()
	s := cfg.String()

	assert.Contains(t, s, `"provider": "ollama"`)
	assert.Contains(t, s, `"max_rounds": 12`)
}
