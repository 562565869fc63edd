package agent

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"

	"github.com/haruo/kaigi/pkg/conversation"
	"github.com/haruo/kaigi/pkg/toolexecutor"
)

// Completer is the decision function behind an agent: one completion
// call against an LLM provider.
type Completer interface {
	// Complete performs one completion call.
	Complete(ctx context.Context, req Request) (*Response, error)

	// Provider returns the provider name.
	Provider() string
}

// Request contains the parameters for one completion call.
type Request struct {
	Model       string
	System      string
	Messages    []conversation.Message
	Tools       []toolexecutor.Spec
	Temperature float64
	MaxTokens   int
}

// Response is the provider's reply: text content, any tool calls the
// model requested, and token accounting when the provider reports it.
type Response struct {
	Content   string
	ToolCalls []conversation.ToolCall
	Usage     *Usage
}

// Usage tracks token consumption of one completion.
type Usage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}

// ProviderConfig selects and configures a completion provider.
type ProviderConfig struct {
	Provider string `json:"provider"` // "openai", "ollama", "anthropic"
	APIKey   string `json:"api_key"`
	BaseURL  string `json:"base_url"` // OpenAI-compatible endpoints only
}

// ollamaBaseURL is Ollama's OpenAI-compatible endpoint, the default
// local deployment.
const ollamaBaseURL = "http://localhost:11434/v1"

// NewCompleter creates a completer from provider configuration.
// "ollama" is the OpenAI protocol pointed at a local endpoint; Ollama
// ignores the API key but its client requires one.
func NewCompleter(cfg ProviderConfig) (Completer, error) {
	switch cfg.Provider {
	case "openai":
		return NewOpenAICompleter(cfg.APIKey, cfg.BaseURL), nil
	case "ollama":
		baseURL := cfg.BaseURL
		if baseURL == "" {
			baseURL = ollamaBaseURL
		}
		apiKey := cfg.APIKey
		if apiKey == "" {
			apiKey = "ollama"
		}
		return NewOpenAICompleter(apiKey, baseURL), nil
	case "anthropic":
		return NewAnthropicCompleter(cfg.APIKey), nil
	default:
		return nil, fmt.Errorf("unsupported provider: %s", cfg.Provider)
	}
}

// IsRetryable reports whether a completion error is worth retrying:
// timeouts, rate limits, and server-side failures. Cancelled contexts
// are never retryable.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}

	msg := err.Error()
	for _, marker := range []string{
		"429", "rate limit", "overloaded",
		"500", "502", "503", "504",
		"connection reset", "connection refused",
	} {
		if strings.Contains(msg, marker) {
			return true
		}
	}
	return false
}
