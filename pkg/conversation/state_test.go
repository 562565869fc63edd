package conversation

import (
	"strings"
	"testing"
	"time"
)

func TestNewState(t *testing.T) {
	t.Run("seeds transcript with user query", func(t *testing.T) {
		s := NewState("how many customers are there?")

		if s.ID() == "" {
			t.Error("expected non-empty conversation id")
		}
		if s.Len() != 1 {
			t.Fatalf("expected 1 message, got %d", s.Len())
		}
		msg, ok := s.Last()
		if !ok {
			t.Fatal("expected last message")
		}
		if msg.Role != RoleUser || msg.Content != "how many customers are there?" {
			t.Errorf("unexpected seed message: %+v", msg)
		}
		if s.Rounds() != 0 {
			t.Errorf("expected 0 rounds, got %d", s.Rounds())
		}
	})

	t.Run("empty query is still a valid seed", func(t *testing.T) {
		s := NewState("")
		if s.Len() != 1 {
			t.Fatalf("expected 1 message, got %d", s.Len())
		}
	})
}

func TestAppend(t *testing.T) {
	t.Run("stamps zero timestamps", func(t *testing.T) {
		s := NewState("q")
		s.Append(AssistantMessage("sql_analyst", "checking"))

		msg, _ := s.Last()
		if msg.Timestamp.IsZero() {
			t.Error("expected timestamp to be stamped")
		}
	})

	t.Run("preserves explicit timestamps", func(t *testing.T) {
		s := NewState("q")
		ts := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
		s.Append(Message{Role: RoleAssistant, Sender: "a", Content: "x", Timestamp: ts})

		msg, _ := s.Last()
		if !msg.Timestamp.Equal(ts) {
			t.Errorf("expected %v, got %v", ts, msg.Timestamp)
		}
	})

	t.Run("is append-only", func(t *testing.T) {
		s := NewState("q")
		s.Append(AssistantMessage("a", "first"))

		msgs := s.Messages()
		msgs[0].Content = "mutated"
		msgs[1].Content = "mutated"

		got := s.Messages()
		if got[0].Content != "q" || got[1].Content != "first" {
			t.Error("expected Messages copy to protect transcript")
		}
	})
}

func TestParticipants(t *testing.T) {
	t.Run("first appearance order without duplicates", func(t *testing.T) {
		s := NewState("q")
		s.Append(AssistantMessage("researcher", "looking"))
		s.Append(AssistantMessage("sql_analyst", "querying"))
		s.Append(AssistantMessage("researcher", "found it"))

		got := s.Participants()
		want := []string{"researcher", "sql_analyst"}
		if len(got) != len(want) {
			t.Fatalf("expected %v, got %v", want, got)
		}
		for i := range want {
			if got[i] != want[i] {
				t.Fatalf("expected %v, got %v", want, got)
			}
		}
	})

	t.Run("tool and system messages do not join participants", func(t *testing.T) {
		s := NewState("q")
		s.Append(ToolMessage("sql_analyst", "call-1", "execute_sql_query", "5"))
		s.Append(SystemMessage("note"))

		if len(s.Participants()) != 0 {
			t.Errorf("expected no participants, got %v", s.Participants())
		}
	})
}

func TestRounds(t *testing.T) {
	s := NewState("q")
	s.Append(AssistantMessage("a", "turn one"))
	s.AdvanceRound()
	s.Append(AssistantMessage("a", "with tools"))
	s.Append(ToolMessage("a", "c1", "run_code", "42"))
	s.Append(AssistantMessage("a", "done"))
	s.AdvanceRound()

	if s.Rounds() != 2 {
		t.Errorf("expected 2 rounds, got %d", s.Rounds())
	}
}

func TestLastSpeaker(t *testing.T) {
	s := NewState("q")
	if s.LastSpeaker() != "" {
		t.Errorf("expected empty last speaker, got %q", s.LastSpeaker())
	}

	s.Append(AssistantMessage("quant", "calculating"))
	s.Append(ToolMessage("quant", "c1", "run_code", "ok"))
	if s.LastSpeaker() != "quant" {
		t.Errorf("expected quant, got %q", s.LastSpeaker())
	}
}

func TestRender(t *testing.T) {
	s := NewState("count the customers")
	s.Append(AssistantMessage("sql_analyst", "running the count"))
	s.Append(ToolMessage("sql_analyst", "c1", "execute_sql_query", "count\n-----\n5"))

	out := s.Render()
	if !strings.Contains(out, "user: count the customers") {
		t.Errorf("missing user line:\n%s", out)
	}
	if !strings.Contains(out, "sql_analyst: running the count") {
		t.Errorf("missing assistant line:\n%s", out)
	}
	if !strings.Contains(out, "tool(execute_sql_query): count ...") {
		t.Errorf("missing indented tool line:\n%s", out)
	}
}
