package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewLoader(t *testing.T) {
	loader := NewLoader("/path/to/kaigi.json")
	assert.NotNil(t, loader)
	assert.Equal(t, "/path/to/kaigi.json", loader.configPath)
}

func TestLoaderLoad(t *testing.T) {
	t.Run("defaults when no config file exists", func(t *testing.T) {
		t.Setenv("HOME", t.TempDir())

		cfg, err := Load("")

		require.NoError(t, err)
		assert.Equal(t, "ollama", cfg.LLM.Provider)
		assert.Equal(t, "qwen2.5-coder:7b-instruct-q4_K_M", cfg.LLM.Model)
		assert.Equal(t, 12, cfg.Orchestrator.MaxRounds)
		assert.Equal(t, ":8000", cfg.Server.Addr)
		assert.Equal(t, ":8080", cfg.MCP.Addr)
	})

	t.Run("explicit path that does not exist is an error", func(t *testing.T) {
		configPath := filepath.Join(t.TempDir(), "nonexistent.json")

		_, err := Load(configPath)

		require.Error(t, err)
		assert.Contains(t, err.Error(), "config file not found")
	})

	t.Run("file values override defaults", func(t *testing.T) {
		configPath := filepath.Join(t.TempDir(), "kaigi.json")
		testConfig := `{
			"llm": {
				"provider": "openai",
				"model": "gpt-4o-mini",
				"api_key": "sk-test-key"
			},
			"orchestrator": {
				"max_rounds": 6
			},
			"database": {
				"path": "shop.db"
			}
		}`
		require.NoError(t, os.WriteFile(configPath, []byte(testConfig), 0644))

		cfg, err := Load(configPath)

		require.NoError(t, err)
		assert.Equal(t, "openai", cfg.LLM.Provider)
		assert.Equal(t, "gpt-4o-mini", cfg.LLM.Model)
		assert.Equal(t, 6, cfg.Orchestrator.MaxRounds)
		assert.Equal(t, "shop.db", cfg.Database.Path)

		// Untouched sections keep their defaults.
		assert.Equal(t, 30, cfg.Orchestrator.ToolTimeoutSeconds)
		assert.Equal(t, "http", cfg.Tools.Transport)
		assert.Equal(t, "info", cfg.Log.Level)
	})

	t.Run("environment overrides file", func(t *testing.T) {
		configPath := filepath.Join(t.TempDir(), "kaigi.json")
		testConfig := `{"llm": {"model": "from-file"}}`
		require.NoError(t, os.WriteFile(configPath, []byte(testConfig), 0644))

		t.Setenv("KAIGI_LLM_MODEL", "from-env")
		t.Setenv("KAIGI_ORCHESTRATOR_MAX_ROUNDS", "3")

		cfg, err := Load(configPath)

		require.NoError(t, err)
		assert.Equal(t, "from-env", cfg.LLM.Model)
		assert.Equal(t, 3, cfg.Orchestrator.MaxRounds)
	})

	t.Run("environment works without a file", func(t *testing.T) {
		t.Setenv("HOME", t.TempDir())
		t.Setenv("KAIGI_TOOLS_ENDPOINT", "http://127.0.0.1:9999/mcp")

		cfg, err := Load("")

		require.NoError(t, err)
		assert.Equal(t, "http://127.0.0.1:9999/mcp", cfg.Tools.Endpoint)
	})

	t.Run("invalid JSON", func(t *testing.T) {
		configPath := filepath.Join(t.TempDir(), "invalid.json")
		require.NoError(t, os.WriteFile(configPath, []byte("{not json"), 0644))

		_, err := Load(configPath)

		require.Error(t, err)
		assert.Contains(t, err.Error(), "failed to read config file")
	})
}

func TestGetConfigPath(t *testing.T) {
	t.Run("explicit path", func(t *testing.T) {
		loader := NewLoader("/etc/kaigi.json")
		assert.Equal(t, "/etc/kaigi.json", loader.GetConfigPath())
	})

	t.Run("default path under home", func(t *testing.T) {
		home := t.TempDir()
		t.Setenv("HOME", home)

		loader := NewLoader("")
		assert.Equal(t, filepath.Join(home, ".kaigi", "kaigi.json"), loader.GetConfigPath())
	})
}
