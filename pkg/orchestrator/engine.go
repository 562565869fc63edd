// Package orchestrator runs multi-agent conversations: a selector picks
// the next speaker, the speaker takes its turn (tools included), and the
// loop continues until an agent says TERMINATE, the round budget runs
// out, or the context is cancelled. Execute never returns a Go error;
// every failure becomes a Result the caller can render.
package orchestrator

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel/attribute"

	"github.com/haruo/kaigi/internal/observability"
	"github.com/haruo/kaigi/internal/tracing"
	"github.com/haruo/kaigi/pkg/agent"
	"github.com/haruo/kaigi/pkg/conversation"
	"github.com/haruo/kaigi/pkg/team"
	"github.com/haruo/kaigi/pkg/toolexecutor"
)

// Phase is where a conversation currently is. Phases are per-Execute
// state, reported to hooks and debug logs.
type Phase string

const (
	PhaseIdle           Phase = "idle"
	PhaseSelecting      Phase = "selecting"
	PhaseAwaitingAgent  Phase = "awaiting_agent"
	PhaseExecutingTools Phase = "executing_tools"
	PhaseTerminated     Phase = "terminated"
)

// Termination reasons carried in Result.Reason.
const (
	ReasonTerminate = "terminate"
	ReasonMaxRounds = "max_rounds"
	ReasonNoSpeaker = "no_speaker"
	ReasonCancelled = "cancelled"
	ReasonError     = "error"
)

const defaultMaxRounds = 12

// Result is the outcome of one conversation.
type Result struct {
	Success      bool                   `json:"success"`
	Answer       string                 `json:"answer"`
	Conversation []conversation.Message `json:"conversation"`
	Participants []string               `json:"participants"`
	Rounds       int                    `json:"rounds"`
	Reason       string                 `json:"reason"`
	Err          string                 `json:"error,omitempty"`
}

// ToolRunner dispatches tool calls for agent turns. *gateway.Gateway
// satisfies it.
type ToolRunner = agent.ToolRunner

// Engine drives conversations over a fixed team. Safe for concurrent
// Execute calls; each call owns its own state.
type Engine struct {
	team      *team.Registry
	tools     ToolRunner
	selector  Selector
	maxRounds int
	hooks     Hooks
	logger    zerolog.Logger
	clock     func() time.Time
}

// Option configures an Engine.
type Option func(*Engine)

// WithSelector sets the speaker selection policy.
func WithSelector(s Selector) Option {
	return func(e *Engine) { e.selector = s }
}

// WithMaxRounds caps completed agent turns per conversation.
func WithMaxRounds(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.maxRounds = n
		}
	}
}

// WithHooks sets observer hooks.
func WithHooks(h Hooks) Option {
	return func(e *Engine) { e.hooks = h }
}

// WithLogger sets the engine logger.
func WithLogger(logger zerolog.Logger) Option {
	return func(e *Engine) { e.logger = logger }
}

// WithClock overrides the time source used for duration accounting.
func WithClock(clock func() time.Time) Option {
	return func(e *Engine) {
		if clock != nil {
			e.clock = clock
		}
	}
}

// New creates an engine for a team. tools dispatches the team's tool
// calls; pass the gateway.
func New(t *team.Registry, tools ToolRunner, opts ...Option) *Engine {
	e := &Engine{
		team:      t,
		tools:     tools,
		maxRounds: defaultMaxRounds,
		logger:    log.Logger,
		clock:     time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.selector == nil {
		e.selector = NewRoundRobinSelector()
	}
	return e
}

// MaxRounds returns the configured round budget.
func (e *Engine) MaxRounds() int { return e.maxRounds }

// Execute runs one conversation for query. It never returns a Go error
// and never lets a panic escape: failures come back as a Result with
// Success=false and Err set.
func (e *Engine) Execute(ctx context.Context, query string) (result Result) {
	start := e.clock()
	state := conversation.NewState(query)

	ctx, span := tracing.StartSpan(ctx, "kaigi.orchestrator", "orchestrator.execute",
		attribute.String("conversation_id", state.ID()),
	)
	defer span.End()

	logger := tracing.LoggerFromContext(ctx, e.logger).With().
		Str("conversation_id", state.ID()).
		Logger()

	phase := PhaseIdle
	transition := func(next Phase) {
		logger.Debug().
			Str("from", string(phase)).
			Str("to", string(next)).
			Msg("Phase transition")
		phase = next
		e.hooks.firePhase(logger, next)
	}

	defer func() {
		if r := recover(); r != nil {
			logger.Error().Interface("panic", r).Msg("Conversation panicked")
			state.Append(conversation.SystemMessage(fmt.Sprintf("internal error: %v", r)))
			transition(PhaseTerminated)
			result = e.failure(state, ReasonError, fmt.Sprintf("internal error: %v", r))
		}
		observability.RecordConversation(result.Reason, result.Rounds, e.clock().Sub(start))
		logger.Info().
			Bool("success", result.Success).
			Str("reason", result.Reason).
			Int("rounds", result.Rounds).
			Strs("participants", result.Participants).
			Msg("Conversation finished")
	}()

	logger.Info().
		Str("query", query).
		Int("max_rounds", e.maxRounds).
		Msg("Conversation started")

	for state.Rounds() < e.maxRounds {
		if ctx.Err() != nil {
			return e.cancelled(state, ctx.Err(), transition)
		}

		transition(PhaseSelecting)
		speaker, err := e.selector.Next(ctx, state, e.team.List())
		if err != nil {
			state.Append(conversation.SystemMessage(fmt.Sprintf("no speaker selected: %v", err)))
			transition(PhaseTerminated)
			return e.failure(state, ReasonNoSpeaker, err.Error())
		}

		transition(PhaseAwaitingAgent)
		e.hooks.fireTurn(logger, speaker.Name(), state.Rounds())

		runner := &observedRunner{
			inner:      e.tools,
			agent:      speaker.Name(),
			hooks:      e.hooks,
			logger:     logger,
			phase:      func() Phase { return phase },
			transition: transition,
		}

		reply, toolsUsed, err := speaker.Respond(ctx, state, runner)
		if err != nil {
			if ctx.Err() != nil {
				return e.cancelled(state, ctx.Err(), transition)
			}
			logger.Error().Err(err).Str("agent", speaker.Name()).Msg("Agent turn failed")
			state.Append(conversation.SystemMessage(fmt.Sprintf("agent %s failed: %v", speaker.Name(), err)))
			transition(PhaseTerminated)
			return e.failure(state, ReasonError, err.Error())
		}

		state.Append(reply)
		state.AdvanceRound()
		observability.RecordTurn(speaker.Name())

		logger.Debug().
			Str("agent", speaker.Name()).
			Int("round", state.Rounds()).
			Bool("tools_used", toolsUsed).
			Msg("Turn completed")

		if agent.IsTerminal(reply.Content) {
			transition(PhaseTerminated)
			return Result{
				Success:      true,
				Answer:       agent.StripTerminal(reply.Content),
				Conversation: state.Messages(),
				Participants: state.Participants(),
				Rounds:       state.Rounds(),
				Reason:       ReasonTerminate,
			}
		}
	}

	transition(PhaseTerminated)

	last, ok := state.LastAssistant()
	if !ok {
		return e.failure(state, ReasonMaxRounds, "no agent produced a reply")
	}
	return Result{
		Success:      true,
		Answer:       agent.StripTerminal(last.Content),
		Conversation: state.Messages(),
		Participants: state.Participants(),
		Rounds:       state.Rounds(),
		Reason:       ReasonMaxRounds,
	}
}

// cancelled finishes a conversation cut short by its context.
func (e *Engine) cancelled(state *conversation.State, cause error, transition func(Phase)) Result {
	state.Append(conversation.SystemMessage(fmt.Sprintf("conversation cancelled: %v", cause)))
	transition(PhaseTerminated)
	return e.failure(state, ReasonCancelled, cause.Error())
}

func (e *Engine) failure(state *conversation.State, reason, errMsg string) Result {
	return Result{
		Success:      false,
		Conversation: state.Messages(),
		Participants: state.Participants(),
		Rounds:       state.Rounds(),
		Reason:       reason,
		Err:          errMsg,
	}
}

// observedRunner wraps the engine's ToolRunner for one turn: it flips
// the phase to executing_tools on first use and feeds tool calls to the
// hooks.
type observedRunner struct {
	inner      ToolRunner
	agent      string
	hooks      Hooks
	logger     zerolog.Logger
	phase      func() Phase
	transition func(Phase)
}

func (r *observedRunner) Call(ctx context.Context, tool string, args map[string]interface{}) toolexecutor.Result {
	if r.phase() != PhaseExecutingTools {
		r.transition(PhaseExecutingTools)
	}
	r.hooks.fireToolCall(r.logger, r.agent, tool)
	return r.inner.Call(ctx, tool, args)
}
