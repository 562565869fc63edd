package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode"

	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel/attribute"

	"github.com/haruo/kaigi/internal/observability"
	"github.com/haruo/kaigi/internal/tracing"
	"github.com/haruo/kaigi/pkg/agent"
	"github.com/haruo/kaigi/pkg/conversation"
)

// ErrNoEligibleAgents is returned when a selector is handed an empty
// eligible set.
var ErrNoEligibleAgents = errors.New("no eligible agents")

// Selector picks the next speaker. Implementations must be pure
// functions of the transcript and roster; the engine may call them from
// concurrent conversations.
type Selector interface {
	Next(ctx context.Context, state *conversation.State, eligible []*agent.Agent) (*agent.Agent, error)
}

// selectorWindow is how many trailing messages the decision model sees.
const selectorWindow = 8

const selectorDirective = "You coordinate a team of agents answering a user's question. " +
	"Given the conversation so far, decide which agent should speak next. " +
	"Reply with exactly one agent name from the roster, nothing else."

// AutoSelector asks a decision model to pick the next speaker. The
// previous speaker is excluded from the candidates whenever another
// agent is available, except when its tool results are still unread; a
// reply the model fumbles falls back to deterministic round-robin.
type AutoSelector struct {
	completer agent.Completer
	model     string
}

// NewAutoSelector creates a model-driven selector.
func NewAutoSelector(completer agent.Completer, model string) *AutoSelector {
	return &AutoSelector{completer: completer, model: model}
}

// Next picks the next speaker.
func (s *AutoSelector) Next(ctx context.Context, state *conversation.State, eligible []*agent.Agent) (*agent.Agent, error) {
	if len(eligible) == 0 {
		return nil, ErrNoEligibleAgents
	}
	if len(eligible) == 1 {
		return eligible[0], nil
	}

	ctx, span := tracing.StartSpan(ctx, "kaigi.orchestrator", "selector.next",
		attribute.Int("eligible", len(eligible)),
	)
	defer span.End()

	// An agent whose tool results nobody has spoken about yet gets the
	// turn back to read them.
	if name, forced := unreadToolResults(state); forced {
		for _, a := range eligible {
			if a.Name() == name {
				return a, nil
			}
		}
	}

	prev := previousSpeaker(state)
	candidates := excludeByName(eligible, prev)

	resp, err := s.completer.Complete(ctx, agent.Request{
		Model:    s.model,
		System:   selectorDirective,
		Messages: []conversation.Message{conversation.UserMessage(selectorPrompt(candidates, state))},
	})
	if err != nil {
		log.Warn().Err(err).Msg("Speaker selection failed, falling back to round-robin")
		observability.RecordSpeakerFallback()
		return nextAfter(eligible, prev), nil
	}

	if chosen := resolveName(resp.Content, candidates); chosen != nil {
		log.Debug().
			Str("agent", chosen.Name()).
			Msg("Speaker selected")
		return chosen, nil
	}

	log.Warn().
		Str("reply", firstNameLine(resp.Content)).
		Msg("Unrecognized speaker reply, falling back to round-robin")
	observability.RecordSpeakerFallback()
	return nextAfter(eligible, prev), nil
}

// RoundRobinSelector rotates through the roster in registration order.
// It is also the fallback policy inside AutoSelector.
type RoundRobinSelector struct{}

// NewRoundRobinSelector creates a round-robin selector.
func NewRoundRobinSelector() *RoundRobinSelector {
	return &RoundRobinSelector{}
}

// Next returns the eligible agent after the previous speaker, or the
// first agent when nobody has spoken.
func (s *RoundRobinSelector) Next(_ context.Context, state *conversation.State, eligible []*agent.Agent) (*agent.Agent, error) {
	if len(eligible) == 0 {
		return nil, ErrNoEligibleAgents
	}
	return nextAfter(eligible, previousSpeaker(state)), nil
}

// selectorPrompt renders the roster and the trailing transcript window.
func selectorPrompt(candidates []*agent.Agent, state *conversation.State) string {
	var b strings.Builder

	b.WriteString("Agents:\n")
	for _, a := range candidates {
		fmt.Fprintf(&b, "%s: %s\n", a.Name(), a.Description())
	}

	b.WriteString("\nRecent conversation:\n")
	messages := state.Messages()
	if len(messages) > selectorWindow {
		messages = messages[len(messages)-selectorWindow:]
	}
	for _, msg := range messages {
		label := msg.Sender
		if label == "" {
			label = msg.Role
		}
		if msg.Role == conversation.RoleTool {
			fmt.Fprintf(&b, "%s [%s result]: %s\n", label, msg.ToolName, msg.Content)
			continue
		}
		fmt.Fprintf(&b, "%s: %s\n", label, msg.Content)
	}

	b.WriteString("\nWhich agent should speak next? Reply with exactly one name.")
	return b.String()
}

// resolveName maps the model's reply to a candidate: first an exact
// match after trimming whitespace and punctuation, then a reply that
// contains exactly one candidate name.
func resolveName(reply string, candidates []*agent.Agent) *agent.Agent {
	trimmed := strings.ToLower(strings.TrimFunc(reply, func(r rune) bool {
		return unicode.IsSpace(r) || unicode.IsPunct(r)
	}))
	if trimmed == "" {
		return nil
	}

	for _, a := range candidates {
		if strings.ToLower(a.Name()) == trimmed {
			return a
		}
	}

	lower := strings.ToLower(reply)
	var found *agent.Agent
	for _, a := range candidates {
		if strings.Contains(lower, strings.ToLower(a.Name())) {
			if found != nil {
				return nil
			}
			found = a
		}
	}
	return found
}

// previousSpeaker returns the agent behind the most recent assistant or
// tool message, or "" when no agent has acted yet.
func previousSpeaker(state *conversation.State) string {
	messages := state.Messages()
	for i := len(messages) - 1; i >= 0; i-- {
		switch messages[i].Role {
		case conversation.RoleAssistant, conversation.RoleTool:
			if messages[i].Sender != "" {
				return messages[i].Sender
			}
		}
	}
	return ""
}

// unreadToolResults reports whether the transcript ends with tool
// results no reply has covered, and whose agent they belong to.
func unreadToolResults(state *conversation.State) (string, bool) {
	messages := state.Messages()
	for i := len(messages) - 1; i >= 0; i-- {
		switch messages[i].Role {
		case conversation.RoleSystem:
			continue
		case conversation.RoleTool:
			return messages[i].Sender, messages[i].Sender != ""
		default:
			return "", false
		}
	}
	return "", false
}

// excludeByName filters one agent out, keeping order. The caller
// guarantees at least two eligible agents, so the result is never
// empty.
func excludeByName(eligible []*agent.Agent, name string) []*agent.Agent {
	if name == "" {
		return eligible
	}
	out := make([]*agent.Agent, 0, len(eligible))
	for _, a := range eligible {
		if a.Name() != name {
			out = append(out, a)
		}
	}
	if len(out) == 0 {
		return eligible
	}
	return out
}

// nextAfter returns the eligible agent following prev in roster order,
// or the first agent when prev is empty or unknown.
func nextAfter(eligible []*agent.Agent, prev string) *agent.Agent {
	if prev == "" {
		return eligible[0]
	}
	for i, a := range eligible {
		if a.Name() == prev {
			return eligible[(i+1)%len(eligible)]
		}
	}
	return eligible[0]
}

// firstNameLine keeps logged replies to one short line.
func firstNameLine(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[:i]
	}
	if runes := []rune(s); len(runes) > 80 {
		s = string(runes[:80]) + "..."
	}
	return s
}
