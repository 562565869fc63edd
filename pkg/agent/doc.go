// Package agent models one conversation participant: a named role with
// a directive, a set of bound tools, and an LLM completer that produces
// its turns.
//
// Invariants:
// - Tool calls requested by the model run through the ToolRunner only.
// - Completion failures retry with backoff; retries never mask context cancellation.
// - A reply ending in TERMINATE signals the conversation is done.
//
// Usage:
//
//	completer, _ := agent.NewCompleter(agent.ProviderConfig{Provider: "ollama"})
//	a, _ := agent.New(agent.Config{
//		Name:  "researcher",
//		Model: "qwen2.5-coder:7b-instruct-q4_K_M",
//	}, completer, specs)
//	reply, toolsUsed, _ := a.Respond(ctx, state, runner)
//	_ = reply
//	_ = toolsUsed
package agent
