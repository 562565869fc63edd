package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/haruo/kaigi/pkg/agent"
	"github.com/haruo/kaigi/pkg/conversation"
	"github.com/haruo/kaigi/pkg/team"
	"github.com/haruo/kaigi/pkg/toolexecutor"
)

// stubCompleter delegates to a closure so each agent in a test can
// script its own behavior.
type stubCompleter struct {
	fn func(req agent.Request) (*agent.Response, error)
}

func (s stubCompleter) Complete(_ context.Context, req agent.Request) (*agent.Response, error) {
	return s.fn(req)
}

func (s stubCompleter) Provider() string { return "stub" }

func makeAgent(t *testing.T, name, description string, fn func(req agent.Request) (*agent.Response, error)) *agent.Agent {
	t.Helper()
	a, err := agent.New(agent.Config{
		Name:        name,
		Description: description,
		Directive:   "directive for " + name,
		Model:       "test-model",
	}, stubCompleter{fn: fn}, nil)
	require.NoError(t, err)
	return a
}

func makeTeam(t *testing.T, agents ...*agent.Agent) *team.Registry {
	t.Helper()
	registry := team.NewRegistry()
	for _, a := range agents {
		require.NoError(t, registry.Register(a))
	}
	return registry
}

// sayings returns a completer fn that replies with each string in turn
// and repeats the last one forever.
func sayings(lines ...string) func(req agent.Request) (*agent.Response, error) {
	i := 0
	return func(agent.Request) (*agent.Response, error) {
		line := lines[len(lines)-1]
		if i < len(lines) {
			line = lines[i]
			i++
		}
		return &agent.Response{Content: line}, nil
	}
}

type mapRunner struct {
	mu      sync.Mutex
	results map[string]toolexecutor.Result
	calls   []string
}

func (r *mapRunner) Call(_ context.Context, tool string, _ map[string]interface{}) toolexecutor.Result {
	r.mu.Lock()
	r.calls = append(r.calls, tool)
	r.mu.Unlock()
	if res, ok := r.results[tool]; ok {
		return res
	}
	return toolexecutor.Fail(toolexecutor.KindValidation, "tool not found: "+tool)
}

func TestEngine_Execute_Terminate(t *testing.T) {
	analyst := makeAgent(t, "sql_analyst", "database answers",
		sayings("There are 5 customers. TERMINATE"))
	engine := New(makeTeam(t, analyst), &mapRunner{})

	result := engine.Execute(context.Background(), "how many customers?")

	assert.True(t, result.Success)
	assert.Equal(t, "There are 5 customers.", result.Answer)
	assert.Equal(t, ReasonTerminate, result.Reason)
	assert.Equal(t, 1, result.Rounds)
	assert.Equal(t, []string{"sql_analyst"}, result.Participants)
	assert.Empty(t, result.Err)

	// user query + one reply
	require.Len(t, result.Conversation, 2)
	assert.Equal(t, conversation.RoleUser, result.Conversation[0].Role)
	assert.Equal(t, "how many customers?", result.Conversation[0].Content)
}

func TestEngine_Execute_MaxRounds(t *testing.T) {
	var turns []string
	a := makeAgent(t, "alpha", "first", sayings("alpha is still thinking"))
	b := makeAgent(t, "beta", "second", sayings("beta has more to add"))

	engine := New(makeTeam(t, a, b), &mapRunner{},
		WithMaxRounds(4),
		WithHooks(Hooks{OnTurn: func(agent string, round int) {
			turns = append(turns, fmt.Sprintf("%s@%d", agent, round))
		}}),
	)

	result := engine.Execute(context.Background(), "unresolvable")

	assert.True(t, result.Success)
	assert.Equal(t, ReasonMaxRounds, result.Reason)
	assert.Equal(t, 4, result.Rounds)
	assert.Equal(t, "beta has more to add", result.Answer)
	assert.Equal(t, []string{"alpha", "beta"}, result.Participants)

	// Default round-robin alternates; nobody speaks twice in a row.
	assert.Equal(t, []string{"alpha@0", "beta@1", "alpha@2", "beta@3"}, turns)
}

func TestEngine_Execute_EmptyTeam(t *testing.T) {
	engine := New(makeTeam(t), &mapRunner{})

	result := engine.Execute(context.Background(), "anyone there?")

	assert.False(t, result.Success)
	assert.Equal(t, ReasonNoSpeaker, result.Reason)
	assert.Contains(t, result.Err, "no eligible agents")
	assert.Zero(t, result.Rounds)

	last := result.Conversation[len(result.Conversation)-1]
	assert.Equal(t, conversation.RoleSystem, last.Role)
}

func TestEngine_Execute_AgentFailure(t *testing.T) {
	broken := makeAgent(t, "flaky", "fails", func(agent.Request) (*agent.Response, error) {
		return nil, errors.New("invalid api key")
	})
	engine := New(makeTeam(t, broken), &mapRunner{})

	result := engine.Execute(context.Background(), "hello?")

	assert.False(t, result.Success)
	assert.Equal(t, ReasonError, result.Reason)
	assert.Contains(t, result.Err, "flaky")
	assert.Zero(t, result.Rounds)

	last := result.Conversation[len(result.Conversation)-1]
	assert.Equal(t, conversation.RoleSystem, last.Role)
	assert.Contains(t, last.Content, "agent flaky failed")
}

func TestEngine_Execute_Cancelled(t *testing.T) {
	a := makeAgent(t, "alpha", "first", sayings("still going"))
	engine := New(makeTeam(t, a), &mapRunner{})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	result := engine.Execute(ctx, "too late")

	assert.False(t, result.Success)
	assert.Equal(t, ReasonCancelled, result.Reason)

	last := result.Conversation[len(result.Conversation)-1]
	assert.Equal(t, conversation.RoleSystem, last.Role)
	assert.Contains(t, last.Content, "cancelled")
}

func TestEngine_Execute_ToolTurn(t *testing.T) {
	calls := 0
	analyst := makeAgent(t, "sql_analyst", "database answers", func(req agent.Request) (*agent.Response, error) {
		calls++
		if calls == 1 {
			return &agent.Response{ToolCalls: []conversation.ToolCall{
				{ID: "call_1", Name: "execute_sql_query", Arguments: map[string]interface{}{"sql": "SELECT COUNT(*) FROM customers"}},
			}}, nil
		}
		return &agent.Response{Content: "There are 5 customers. TERMINATE"}, nil
	})

	runner := &mapRunner{results: map[string]toolexecutor.Result{
		"execute_sql_query": toolexecutor.OK("count\n-----\n5"),
	}}

	var phases []Phase
	var toolCalls []string
	engine := New(makeTeam(t, analyst), runner, WithHooks(Hooks{
		OnPhase:    func(p Phase) { phases = append(phases, p) },
		OnToolCall: func(agent, tool string) { toolCalls = append(toolCalls, agent+":"+tool) },
	}))

	result := engine.Execute(context.Background(), "how many customers?")

	require.True(t, result.Success)
	assert.Equal(t, "There are 5 customers.", result.Answer)
	assert.Equal(t, []string{"execute_sql_query"}, runner.calls)
	assert.Equal(t, []string{"sql_analyst:execute_sql_query"}, toolCalls)

	assert.Equal(t, []Phase{PhaseSelecting, PhaseAwaitingAgent, PhaseExecutingTools, PhaseTerminated}, phases)

	// user, tool request, tool result, final reply
	require.Len(t, result.Conversation, 4)
	assert.Equal(t, conversation.RoleTool, result.Conversation[2].Role)
	assert.Equal(t, "count\n-----\n5", result.Conversation[2].Content)
	assert.Equal(t, 1, result.Rounds, "a turn with tool calls still counts once")
}

func TestEngine_Execute_FailedToolSurfacesToAgent(t *testing.T) {
	calls := 0
	analyst := makeAgent(t, "sql_analyst", "database answers", func(req agent.Request) (*agent.Response, error) {
		calls++
		if calls == 1 {
			return &agent.Response{ToolCalls: []conversation.ToolCall{
				{ID: "call_1", Name: "execute_sql_query", Arguments: map[string]interface{}{"sql": "DELETE FROM customers"}},
			}}, nil
		}
		// The model saw the error text and recovers.
		last := req.Messages[len(req.Messages)-1]
		return &agent.Response{Content: "The query was rejected: " + last.Content + " TERMINATE"}, nil
	})

	runner := &mapRunner{results: map[string]toolexecutor.Result{
		"execute_sql_query": toolexecutor.Fail(toolexecutor.KindValidation,
			"SQL Error: Only SELECT queries are allowed for security reasons."),
	}}
	engine := New(makeTeam(t, analyst), runner)

	result := engine.Execute(context.Background(), "delete everything")

	assert.True(t, result.Success, "a failed tool is conversation input, not an engine failure")
	assert.Contains(t, result.Answer, "Only SELECT queries are allowed")
}

func TestEngine_Execute_HookPanicsAreContained(t *testing.T) {
	analyst := makeAgent(t, "sql_analyst", "database answers",
		sayings("Done. TERMINATE"))

	engine := New(makeTeam(t, analyst), &mapRunner{}, WithHooks(Hooks{
		OnPhase: func(Phase) { panic("observer bug") },
		OnTurn:  func(string, int) { panic("observer bug") },
	}))

	result := engine.Execute(context.Background(), "does observation break us?")

	assert.True(t, result.Success)
	assert.Equal(t, "Done.", result.Answer)
}

func TestEngine_Execute_CompleterPanicIsContained(t *testing.T) {
	bomb := makeAgent(t, "bomb", "panics", func(agent.Request) (*agent.Response, error) {
		panic("completer exploded")
	})
	engine := New(makeTeam(t, bomb), &mapRunner{})

	var result Result
	require.NotPanics(t, func() {
		result = engine.Execute(context.Background(), "tick tick")
	})

	assert.False(t, result.Success)
	assert.Equal(t, ReasonError, result.Reason)
	assert.Contains(t, result.Err, "internal error")
}

func TestEngine_Execute_ConcurrentCalls(t *testing.T) {
	analyst := makeAgent(t, "sql_analyst", "database answers",
		func(agent.Request) (*agent.Response, error) {
			return &agent.Response{Content: "42. TERMINATE"}, nil
		})
	engine := New(makeTeam(t, analyst), &mapRunner{})

	var wg sync.WaitGroup
	results := make([]Result, 8)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i] = engine.Execute(context.Background(), fmt.Sprintf("query %d", i))
		}(i)
	}
	wg.Wait()

	for i, result := range results {
		assert.True(t, result.Success, "call %d", i)
		assert.Equal(t, fmt.Sprintf("query %d", i), result.Conversation[0].Content)
	}
}

func TestEngine_Defaults(t *testing.T) {
	engine := New(makeTeam(t), &mapRunner{})
	assert.Equal(t, defaultMaxRounds, engine.MaxRounds())

	engine = New(makeTeam(t), &mapRunner{}, WithMaxRounds(-1))
	assert.Equal(t, defaultMaxRounds, engine.MaxRounds(), "non-positive budgets are ignored")
}
