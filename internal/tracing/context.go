package tracing

import (
	"context"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// ContextKey is the type for context keys
type ContextKey string

const (
	// TraceIDKey is the context key for trace ID
	TraceIDKey ContextKey = "trace_id"
	// ConversationIDKey is the context key for the conversation ID
	ConversationIDKey ContextKey = "conversation_id"
	// AgentNameKey is the context key for the speaking agent
	AgentNameKey ContextKey = "agent"
	// TurnKey is the context key for the turn number
	TurnKey ContextKey = "turn"
)

// TraceContext holds tracing information carried across a conversation.
type TraceContext struct {
	TraceID        string
	ConversationID string
	AgentName      string
	Turn           int
}

// NewTraceID generates a new trace ID
func NewTraceID() string {
	return uuid.New().String()
}

// WithTraceID adds a trace ID to the context
func WithTraceID(ctx context.Context, traceID string) context.Context {
	return context.WithValue(ctx, TraceIDKey, traceID)
}

// WithConversationID adds a conversation ID to the context
func WithConversationID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, ConversationIDKey, id)
}

// WithAgentName adds the speaking agent to the context
func WithAgentName(ctx context.Context, name string) context.Context {
	return context.WithValue(ctx, AgentNameKey, name)
}

// WithTurn adds the turn number to the context
func WithTurn(ctx context.Context, turn int) context.Context {
	return context.WithValue(ctx, TurnKey, turn)
}

// GetTraceID retrieves the trace ID from the context
func GetTraceID(ctx context.Context) string {
	if traceID, ok := ctx.Value(TraceIDKey).(string); ok {
		return traceID
	}
	return ""
}

// GetConversationID retrieves the conversation ID from the context
func GetConversationID(ctx context.Context) string {
	if id, ok := ctx.Value(ConversationIDKey).(string); ok {
		return id
	}
	return ""
}

// GetAgentName retrieves the speaking agent from the context
func GetAgentName(ctx context.Context) string {
	if name, ok := ctx.Value(AgentNameKey).(string); ok {
		return name
	}
	return ""
}

// GetTurn retrieves the turn number from the context, or -1 when absent
func GetTurn(ctx context.Context) int {
	if turn, ok := ctx.Value(TurnKey).(int); ok {
		return turn
	}
	return -1
}

// FromContext extracts all tracing information from the context
func FromContext(ctx context.Context) *TraceContext {
	return &TraceContext{
		TraceID:        GetTraceID(ctx),
		ConversationID: GetConversationID(ctx),
		AgentName:      GetAgentName(ctx),
		Turn:           GetTurn(ctx),
	}
}

// NewConversationContext seeds a context for one engine run: a fresh
// trace ID plus the conversation ID.
func NewConversationContext(ctx context.Context, conversationID string) context.Context {
	if GetTraceID(ctx) == "" {
		ctx = WithTraceID(ctx, NewTraceID())
	}
	return WithConversationID(ctx, conversationID)
}

// PropagateToLogger adds tracing context to a zerolog logger
func PropagateToLogger(ctx context.Context, logger zerolog.Logger) zerolog.Logger {
	tc := FromContext(ctx)

	if tc.TraceID != "" {
		logger = logger.With().Str("trace_id", tc.TraceID).Logger()
	}
	if tc.ConversationID != "" {
		logger = logger.With().Str("conversation_id", tc.ConversationID).Logger()
	}
	if tc.AgentName != "" {
		logger = logger.With().Str("agent", tc.AgentName).Logger()
	}
	if tc.Turn >= 0 {
		logger = logger.With().Int("turn", tc.Turn).Logger()
	}

	return logger
}

// LoggerFromContext creates a logger with tracing context from the given context
func LoggerFromContext(ctx context.Context, baseLogger zerolog.Logger) zerolog.Logger {
	return PropagateToLogger(ctx, baseLogger)
}
