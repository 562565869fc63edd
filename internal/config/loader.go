package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

// Loader handles configuration loading
type Loader struct {
	configPath string
}

// NewLoader creates a new config loader
func NewLoader(configPath string) *Loader {
	return &Loader{
		configPath: configPath,
	}
}

// Load loads the configuration: defaults, then the config file when one
// exists, then KAIGI_* environment variables on top. An explicitly
// given path that does not exist is an error; the default path is
// allowed to be absent.
func (l *Loader) Load() (*Config, error) {
	v := viper.New()
	v.SetConfigType("json")
	v.SetEnvPrefix("KAIGI")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v)

	configPath := l.configPath
	if configPath == "" {
		configPath = defaultPath()
	}
	if configPath != "" {
		if _, err := os.Stat(configPath); err == nil {
			v.SetConfigFile(configPath)
			if err := v.ReadInConfig(); err != nil {
				return nil, fmt.Errorf("failed to read config file: %w", err)
			}
		} else if l.configPath != "" {
			return nil, fmt.Errorf("config file not found: %s", configPath)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return cfg, nil
}

// GetConfigPath returns the config file path
func (l *Loader) GetConfigPath() string {
	if l.configPath != "" {
		return l.configPath
	}
	return defaultPath()
}

// setDefaults registers every key with viper so environment variables
// resolve during Unmarshal even when no config file exists.
func setDefaults(v *viper.Viper) {
	d := DefaultConfig()

	v.SetDefault("llm.provider", d.LLM.Provider)
	v.SetDefault("llm.model", d.LLM.Model)
	v.SetDefault("llm.base_url", d.LLM.BaseURL)
	v.SetDefault("llm.api_key", d.LLM.APIKey)
	v.SetDefault("llm.selector_model", d.LLM.SelectorModel)
	v.SetDefault("llm.temperature", d.LLM.Temperature)

	v.SetDefault("orchestrator.max_rounds", d.Orchestrator.MaxRounds)
	v.SetDefault("orchestrator.tool_timeout_seconds", d.Orchestrator.ToolTimeoutSeconds)

	v.SetDefault("tools.endpoint", d.Tools.Endpoint)
	v.SetDefault("tools.transport", d.Tools.Transport)
	v.SetDefault("tools.probe_schedule", d.Tools.ProbeSchedule)

	v.SetDefault("database.path", d.Database.Path)

	v.SetDefault("sandbox.max_duration_seconds", d.Sandbox.MaxDurationSeconds)
	v.SetDefault("sandbox.allowed_modules", d.Sandbox.AllowedModules)

	v.SetDefault("browser.enabled", d.Browser.Enabled)
	v.SetDefault("browser.control_url", d.Browser.ControlURL)

	v.SetDefault("workspace.dir", d.Workspace.Dir)

	v.SetDefault("server.addr", d.Server.Addr)
	v.SetDefault("mcp.addr", d.MCP.Addr)

	v.SetDefault("log.level", d.Log.Level)
	v.SetDefault("log.file", d.Log.File)
	v.SetDefault("log.pretty", d.Log.Pretty)

	v.SetDefault("tracing.enabled", d.Tracing.Enabled)
}

// defaultPath is $HOME/.kaigi/kaigi.json, or empty when the home
// directory cannot be determined.
func defaultPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".kaigi", "kaigi.json")
}

// Load is a convenience function that creates a loader and loads the config
func Load(configPath string) (*Config, error) {
	loader := NewLoader(configPath)
	return loader.Load()
}
