package conversation

import (
	"fmt"
	"strings"
	"time"

	gonanoid "github.com/matoous/go-nanoid/v2"
)

// State holds the transcript and round accounting for a single engine run.
// A State is owned by exactly one Execute call and is not safe for
// concurrent use; nothing in it survives across runs.
type State struct {
	id           string
	query        string
	started      time.Time
	messages     []Message
	rounds       int
	participants []string
	seen         map[string]bool
}

// NewState creates conversation state seeded with the user query.
func NewState(query string) *State {
	id, _ := gonanoid.New()
	s := &State{
		id:      id,
		query:   query,
		started: time.Now(),
		seen:    make(map[string]bool),
	}
	s.Append(UserMessage(query))
	return s
}

// ID returns the conversation identifier.
func (s *State) ID() string { return s.id }

// Query returns the originating user query.
func (s *State) Query() string { return s.query }

// Started returns the time the state was created.
func (s *State) Started() time.Time { return s.started }

// Append adds a message to the transcript. Prior messages are never
// mutated. A zero timestamp is stamped with the current time, and
// assistant senders are recorded as participants in first-appearance
// order.
func (s *State) Append(msg Message) {
	if msg.Timestamp.IsZero() {
		msg.Timestamp = time.Now()
	}
	if msg.Role == RoleAssistant && msg.Sender != "" && !s.seen[msg.Sender] {
		s.seen[msg.Sender] = true
		s.participants = append(s.participants, msg.Sender)
	}
	s.messages = append(s.messages, msg)
}

// Messages returns a copy of the transcript.
func (s *State) Messages() []Message {
	out := make([]Message, len(s.messages))
	copy(out, s.messages)
	return out
}

// Len returns the number of messages in the transcript.
func (s *State) Len() int { return len(s.messages) }

// Rounds returns the number of completed agent turns. Turns, not
// messages: a turn that issued tool calls still counts once.
func (s *State) Rounds() int { return s.rounds }

// AdvanceRound marks one agent turn as completed.
func (s *State) AdvanceRound() { s.rounds++ }

// Participants returns the agents that spoke, in first-appearance order.
func (s *State) Participants() []string {
	out := make([]string, len(s.participants))
	copy(out, s.participants)
	return out
}

// LastSpeaker returns the sender of the most recent assistant message,
// or "" when no agent has spoken yet.
func (s *State) LastSpeaker() string {
	for i := len(s.messages) - 1; i >= 0; i-- {
		if s.messages[i].Role == RoleAssistant && s.messages[i].Sender != "" {
			return s.messages[i].Sender
		}
	}
	return ""
}

// Last returns the most recent message and true, or a zero Message and
// false for an empty transcript.
func (s *State) Last() (Message, bool) {
	if len(s.messages) == 0 {
		return Message{}, false
	}
	return s.messages[len(s.messages)-1], true
}

// LastAssistant returns the most recent assistant message, if any.
func (s *State) LastAssistant() (Message, bool) {
	for i := len(s.messages) - 1; i >= 0; i-- {
		if s.messages[i].Role == RoleAssistant {
			return s.messages[i], true
		}
	}
	return Message{}, false
}

// Render formats the transcript for humans: one line per message, tool
// results indented under the turn that produced them.
func (s *State) Render() string {
	var b strings.Builder
	fmt.Fprintf(&b, "conversation %s (%d messages, %d rounds)\n", s.id, len(s.messages), s.rounds)
	for _, msg := range s.messages {
		switch msg.Role {
		case RoleTool:
			fmt.Fprintf(&b, "  tool(%s): %s\n", msg.ToolName, firstLine(msg.Content))
		case RoleAssistant:
			label := msg.Sender
			if label == "" {
				label = RoleAssistant
			}
			fmt.Fprintf(&b, "%s: %s\n", label, msg.Content)
		default:
			fmt.Fprintf(&b, "%s: %s\n", msg.Role, msg.Content)
		}
	}
	return b.String()
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i] + " ..."
	}
	return s
}
