package team

import (
	"fmt"
	"os"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/haruo/kaigi/pkg/agent"
	"github.com/haruo/kaigi/pkg/toolexecutor"
	"github.com/haruo/kaigi/pkg/workspace"
)

// Spec describes one agent to build. Directive sources are tried in
// order: inline Directive, DirectiveFile, then the workspace lookup by
// agent name.
type Spec struct {
	Name          string   `json:"name" mapstructure:"name"`
	Description   string   `json:"description" mapstructure:"description"`
	Directive     string   `json:"directive,omitempty" mapstructure:"directive"`
	DirectiveFile string   `json:"directive_file,omitempty" mapstructure:"directive_file"`
	Tools         []string `json:"tools,omitempty" mapstructure:"tools"`
	Model         string   `json:"model,omitempty" mapstructure:"model"`
	Temperature   float64  `json:"temperature" mapstructure:"temperature"`
	MaxTokens     int      `json:"max_tokens,omitempty" mapstructure:"max_tokens"`
}

// Build constructs a registry from specs. Every tool binding is checked
// against the executor before any agent is built, so a misconfigured
// team fails whole, not half-registered. ws may be nil when no
// workspace directory is configured; when set, it is also wired into
// each agent as the live directive source, so a workspace file for an
// agent overrides its built-in directive turn by turn.
func Build(specs []Spec, completer agent.Completer, tools *toolexecutor.Executor, ws *workspace.Directives) (*Registry, error) {
	if len(specs) == 0 {
		return nil, fmt.Errorf("team has no agents")
	}

	var source agent.DirectiveSource
	if ws != nil {
		source = ws
	}

	registry := NewRegistry()

	for _, spec := range specs {
		toolSpecs, err := tools.Specs(spec.Tools)
		if err != nil {
			return nil, fmt.Errorf("agent %s: %w", spec.Name, err)
		}

		directive, err := resolveDirective(spec, ws)
		if err != nil {
			return nil, fmt.Errorf("agent %s: %w", spec.Name, err)
		}

		a, err := agent.New(agent.Config{
			Name:        spec.Name,
			Description: spec.Description,
			Directive:   directive,
			Tools:       spec.Tools,
			Model:       spec.Model,
			Temperature: spec.Temperature,
			MaxTokens:   spec.MaxTokens,
			Directives:  source,
		}, completer, toolSpecs)
		if err != nil {
			return nil, err
		}

		if err := registry.Register(a); err != nil {
			return nil, err
		}

		log.Debug().
			Str("agent", spec.Name).
			Strs("tools", spec.Tools).
			Str("model", spec.Model).
			Msg("Agent built")
	}

	return registry, nil
}

// resolveDirective picks the first directive source that yields text.
func resolveDirective(spec Spec, ws *workspace.Directives) (string, error) {
	if strings.TrimSpace(spec.Directive) != "" {
		return spec.Directive, nil
	}

	if spec.DirectiveFile != "" {
		data, err := os.ReadFile(spec.DirectiveFile)
		if err != nil {
			return "", fmt.Errorf("failed to read directive file: %w", err)
		}
		return strings.TrimSpace(string(data)), nil
	}

	if ws != nil {
		if directive, ok := ws.Lookup(spec.Name); ok {
			return directive, nil
		}
	}

	return "", fmt.Errorf("no directive: set directive, directive_file, or add %s.md to the workspace", spec.Name)
}

// DefaultTeam returns the built-in three-agent team, all on one model.
func DefaultTeam(model string) []Spec {
	return []Spec{
		{
			Name:        "sql_analyst",
			Description: "Answers questions about customers, products, and orders from the SQL database",
			Directive: "You are a SQL analyst for a small commerce database. " +
				"Answer data questions by inspecting the schema with get_database_schema " +
				"and running read-only queries with execute_sql_query. " +
				"Base every answer on query results, never on guesses. " +
				"State the final answer clearly, then say TERMINATE.",
			Tools: []string{"get_database_schema", "execute_sql_query"},
			Model: model,
		},
		{
			Name:        "researcher",
			Description: "Searches the web and reads pages for current information",
			Directive: "You are a web researcher. " +
				"Use web_search to find current information and scrape_webpage to read promising pages. " +
				"Report what you found and where. " +
				"State the final answer clearly, then say TERMINATE.",
			Tools: []string{"web_search", "scrape_webpage"},
			Model: model,
		},
		{
			Name:        "quant",
			Description: "Runs JavaScript calculations and statistics on intermediate results",
			Directive: "You are a data analyst. " +
				"Use run_code to compute statistics and verify arithmetic; " +
				"assign the value you want reported to the result variable. " +
				"Show the numbers that support your conclusion. " +
				"State the final answer clearly, then say TERMINATE.",
			Tools: []string{"run_code"},
			Model: model,
		},
	}
}
