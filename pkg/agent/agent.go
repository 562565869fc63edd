package agent

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/haruo/kaigi/internal/observability"
	"github.com/haruo/kaigi/internal/tracing"
	"github.com/haruo/kaigi/pkg/conversation"
	"github.com/haruo/kaigi/pkg/toolexecutor"
)

// TerminateMarker ends a conversation when an agent's reply ends with it.
const TerminateMarker = "TERMINATE"

const (
	// maxToolIterations bounds completion rounds within a single turn.
	maxToolIterations = 4
	// maxAttempts bounds retries of one completion call.
	maxAttempts = 3
)

// ErrAgentResponse wraps completer failures that survive retries.
var ErrAgentResponse = errors.New("agent response failed")

// ToolRunner dispatches one tool call and reports the outcome in the
// Result, never as an error. *gateway.Gateway satisfies it.
type ToolRunner interface {
	Call(ctx context.Context, tool string, args map[string]interface{}) toolexecutor.Result
}

// DirectiveSource supplies live directive overrides by agent name.
// *workspace.Directives satisfies it.
type DirectiveSource interface {
	Lookup(name string) (string, bool)
}

// Config describes one agent.
type Config struct {
	Name        string   `json:"name"`
	Description string   `json:"description"`
	Directive   string   `json:"directive"`
	Tools       []string `json:"tools,omitempty"`
	Model       string   `json:"model"`
	Temperature float64  `json:"temperature"`
	MaxTokens   int      `json:"max_tokens,omitempty"`

	// Directives, when set, is consulted on every turn; a hit replaces
	// the static directive. The workspace watcher keeps it fresh.
	Directives DirectiveSource `json:"-"`
}

// Agent is one conversation participant: a directive, a set of bound
// tools, and a completer that produces its turns.
type Agent struct {
	name        string
	description string
	directive   string
	directives  DirectiveSource
	tools       []string
	specs       []toolexecutor.Spec
	completer   Completer
	model       string
	temperature float64
	maxTokens   int
}

// New creates an agent. The specs must describe exactly the tools the
// agent is allowed to call; the team factory resolves them.
func New(cfg Config, completer Completer, specs []toolexecutor.Spec) (*Agent, error) {
	if cfg.Name == "" {
		return nil, errors.New("agent name cannot be empty")
	}
	if cfg.Model == "" {
		return nil, fmt.Errorf("agent %s: model cannot be empty", cfg.Name)
	}
	if completer == nil {
		return nil, fmt.Errorf("agent %s: completer is required", cfg.Name)
	}
	if cfg.Temperature < 0 || cfg.Temperature > 1 {
		return nil, fmt.Errorf("agent %s: temperature must be between 0 and 1", cfg.Name)
	}

	return &Agent{
		name:        cfg.Name,
		description: cfg.Description,
		directive:   cfg.Directive,
		directives:  cfg.Directives,
		tools:       append([]string(nil), cfg.Tools...),
		specs:       specs,
		completer:   completer,
		model:       cfg.Model,
		temperature: cfg.Temperature,
		maxTokens:   cfg.MaxTokens,
	}, nil
}

// Name returns the agent name.
func (a *Agent) Name() string { return a.name }

// Description returns the one-line role description used in selection
// rosters.
func (a *Agent) Description() string { return a.description }

// Directive returns the directive the agent would use right now,
// honoring a live override when a source is configured.
func (a *Agent) Directive() string {
	if a.directives != nil {
		if d, ok := a.directives.Lookup(a.name); ok && d != "" {
			return d
		}
	}
	return a.directive
}

// Tools returns the names of the tools bound to this agent.
func (a *Agent) Tools() []string {
	return append([]string(nil), a.tools...)
}

// Respond produces the agent's next turn. Tool calls requested by the
// model run through the ToolRunner; the request/result pairs are
// appended to state as they happen, and the loop feeds the grown
// transcript back to the model until it answers in plain text or the
// iteration bound is hit. The returned reply is NOT appended to state;
// the caller owns that, along with round accounting.
func (a *Agent) Respond(ctx context.Context, state *conversation.State, tools ToolRunner) (conversation.Message, bool, error) {
	ctx, span := tracing.StartSpan(ctx, "kaigi.agent", "agent.respond",
		attribute.String("agent", a.name),
		attribute.String("model", a.model),
	)
	defer span.End()

	logger := tracing.LoggerFromContext(ctx, log.Logger).With().Str("agent", a.name).Logger()

	directive := a.Directive()
	toolsUsed := false
	for iteration := 0; iteration < maxToolIterations; iteration++ {
		resp, err := a.completeWithRetry(ctx, Request{
			Model:       a.model,
			System:      directive,
			Messages:    state.Messages(),
			Tools:       a.specs,
			Temperature: a.temperature,
			MaxTokens:   a.maxTokens,
		})
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return conversation.Message{}, toolsUsed, fmt.Errorf("%w: %s: %v", ErrAgentResponse, a.name, err)
		}

		if len(resp.ToolCalls) == 0 {
			return conversation.AssistantMessage(a.name, resp.Content), toolsUsed, nil
		}

		toolsUsed = true
		state.Append(conversation.Message{
			Role:      conversation.RoleAssistant,
			Sender:    a.name,
			Content:   resp.Content,
			ToolCalls: resp.ToolCalls,
		})

		for _, call := range resp.ToolCalls {
			logger.Debug().Str("tool", call.Name).Msg("Agent requested tool")
			result := tools.Call(ctx, call.Name, call.Arguments)

			content := result.Output
			if !result.Success {
				content = result.Error
				logger.Warn().
					Str("tool", call.Name).
					Str("kind", string(result.Kind)).
					Msg("Tool call failed; result surfaced to agent")
			}
			state.Append(conversation.ToolMessage(a.name, call.ID, call.Name, content))
		}
	}

	err := fmt.Errorf("%w: %s: exceeded %d tool iterations in one turn", ErrAgentResponse, a.name, maxToolIterations)
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	return conversation.Message{}, toolsUsed, err
}

// completeWithRetry calls the completer with exponential backoff:
// 1s, 2s between attempts, retryable errors only.
func (a *Agent) completeWithRetry(ctx context.Context, req Request) (*Response, error) {
	var lastErr error

	for attempt := 0; attempt < maxAttempts; attempt++ {
		start := time.Now()
		resp, err := a.completer.Complete(ctx, req)
		observability.RecordCompletion(a.completer.Provider(), time.Since(start), err == nil)
		if err == nil {
			return resp, nil
		}

		lastErr = err
		if !IsRetryable(err) {
			return nil, err
		}
		if attempt == maxAttempts-1 {
			break
		}

		delay := time.Duration(1<<attempt) * time.Second
		log.Info().
			Str("agent", a.name).
			Int("attempt", attempt+1).
			Dur("delay", delay).
			Err(err).
			Msg("Retrying completion")

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(delay):
		}
	}

	return nil, fmt.Errorf("max retries (%d) exceeded: %w", maxAttempts, lastErr)
}

// IsTerminal reports whether content ends with the terminate marker,
// ignoring trailing whitespace.
func IsTerminal(content string) bool {
	return strings.HasSuffix(strings.TrimRight(content, " \t\r\n"), TerminateMarker)
}

// StripTerminal removes a trailing terminate marker and the whitespace
// around it. Content without the marker is returned unchanged.
func StripTerminal(content string) string {
	trimmed := strings.TrimRight(content, " \t\r\n")
	if !strings.HasSuffix(trimmed, TerminateMarker) {
		return content
	}
	return strings.TrimRight(strings.TrimSuffix(trimmed, TerminateMarker), " \t\r\n")
}
