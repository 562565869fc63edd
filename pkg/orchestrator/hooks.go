package orchestrator

import "github.com/rs/zerolog"

// Hooks are optional observer sinks for conversation progress. Nil
// functions are skipped. A panicking hook is recovered and logged;
// observation can never affect the conversation.
type Hooks struct {
	// OnPhase fires on every phase transition.
	OnPhase func(phase Phase)
	// OnTurn fires when an agent is handed the turn. round is the count
	// of turns completed before this one.
	OnTurn func(agent string, round int)
	// OnToolCall fires before each tool dispatch within a turn.
	OnToolCall func(agent, tool string)
}

func (h Hooks) firePhase(logger zerolog.Logger, phase Phase) {
	if h.OnPhase == nil {
		return
	}
	defer recoverHook(logger, "OnPhase")
	h.OnPhase(phase)
}

func (h Hooks) fireTurn(logger zerolog.Logger, agent string, round int) {
	if h.OnTurn == nil {
		return
	}
	defer recoverHook(logger, "OnTurn")
	h.OnTurn(agent, round)
}

func (h Hooks) fireToolCall(logger zerolog.Logger, agent, tool string) {
	if h.OnToolCall == nil {
		return
	}
	defer recoverHook(logger, "OnToolCall")
	h.OnToolCall(agent, tool)
}

func recoverHook(logger zerolog.Logger, name string) {
	if r := recover(); r != nil {
		logger.Warn().
			Str("hook", name).
			Interface("panic", r).
			Msg("Hook panicked")
	}
}
