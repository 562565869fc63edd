// Package gateway dispatches tool calls for agents: remote-first against
// a tool endpoint, with local fallback handlers for transport and
// protocol failures. Application failures reported by the endpoint are
// surfaced as-is; the remote handler already ran, so retrying it locally
// would execute the tool twice.
package gateway

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/haruo/kaigi/internal/observability"
	"github.com/haruo/kaigi/internal/tracing"
	"github.com/haruo/kaigi/pkg/toolexecutor"

	"go.opentelemetry.io/otel/attribute"
)

// Call origins recorded in result metadata, logs, and metrics.
const (
	OriginRemote   = "remote"
	OriginFallback = "fallback"
	OriginLocal    = "local"
)

// RemoteCaller invokes a tool on a remote endpoint. *mcp.Client
// satisfies it; errors must be classified with toolexecutor kinds.
type RemoteCaller interface {
	Call(ctx context.Context, tool string, args map[string]interface{}) (string, error)
	Endpoint() string
}

// Gateway routes tool calls. With no remote configured every call runs
// on the local executor; with a remote configured the endpoint is tried
// first and the local executor serves as the fallback.
type Gateway struct {
	remote RemoteCaller
	local  *toolexecutor.Executor
	logger zerolog.Logger
}

// Option configures a Gateway.
type Option func(*Gateway)

// WithRemote sets the remote tool endpoint client.
func WithRemote(rc RemoteCaller) Option {
	return func(g *Gateway) { g.remote = rc }
}

// WithFallback sets the local executor used as fallback and for
// local-only dispatch.
func WithFallback(exec *toolexecutor.Executor) Option {
	return func(g *Gateway) { g.local = exec }
}

// WithLogger sets the gateway logger.
func WithLogger(logger zerolog.Logger) Option {
	return func(g *Gateway) { g.logger = logger }
}

// New creates a gateway.
func New(opts ...Option) *Gateway {
	g := &Gateway{logger: zerolog.Nop()}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// HasRemote reports whether a remote endpoint is configured.
func (g *Gateway) HasRemote() bool { return g.remote != nil }

// Resolves reports whether a call to the tool can be dispatched at all:
// remotely, or by a registered local handler.
func (g *Gateway) Resolves(tool string) bool {
	if g.remote != nil {
		return true
	}
	return g.local != nil && g.local.Has(tool)
}

// Call dispatches one tool call and always returns a Result; failures
// are encoded in the value so a broken tool can never abort a
// conversation. Result metadata records the origin that served the
// call.
func (g *Gateway) Call(ctx context.Context, tool string, args map[string]interface{}) toolexecutor.Result {
	ctx, span := tracing.StartSpan(ctx, "kaigi.gateway", "gateway.call",
		attribute.String("tool", tool),
	)
	defer span.End()

	logger := tracing.LoggerFromContext(ctx, g.logger)
	start := time.Now()

	if g.remote == nil {
		result := g.callLocal(ctx, tool, args, OriginLocal)
		observability.RecordToolCall(tool, OriginLocal, outcome(result), time.Since(start))
		return result
	}

	output, err := g.remote.Call(ctx, tool, args)
	if err == nil {
		logger.Debug().
			Str("tool", tool).
			Str("origin", OriginRemote).
			Dur("elapsed", time.Since(start)).
			Msg("Tool call completed")
		observability.RecordToolCall(tool, OriginRemote, "ok", time.Since(start))
		return remoteResult(output)
	}

	kind := toolexecutor.KindOf(err)
	if kind == "" {
		kind = toolexecutor.KindTransport
	}

	if toolexecutor.Fallbackable(kind) && g.local != nil && g.local.Has(tool) {
		logger.Warn().
			Str("tool", tool).
			Str("kind", string(kind)).
			Err(err).
			Msg("Tool endpoint failed, using local fallback")
		observability.RecordToolFallback(tool, string(kind))

		result := g.callLocal(ctx, tool, args, OriginFallback)
		if result.Metadata == nil {
			result.Metadata = map[string]interface{}{}
		}
		result.Metadata["fallback_reason"] = string(kind)
		observability.RecordToolCall(tool, OriginFallback, outcome(result), time.Since(start))
		return result
	}

	logger.Warn().
		Str("tool", tool).
		Str("kind", string(kind)).
		Dur("elapsed", time.Since(start)).
		Err(err).
		Msg("Tool call failed")
	observability.RecordToolCall(tool, OriginRemote, string(kind), time.Since(start))

	result := toolexecutor.Fail(kind, err.Error())
	result.Metadata = map[string]interface{}{"origin": OriginRemote}
	return result
}

func (g *Gateway) callLocal(ctx context.Context, tool string, args map[string]interface{}, origin string) toolexecutor.Result {
	if g.local == nil {
		result := toolexecutor.Fail(toolexecutor.KindTransport,
			"no tool endpoint configured and no local handler registered for "+tool)
		result.Metadata = map[string]interface{}{"origin": origin}
		return result
	}
	result := g.local.Execute(ctx, tool, args)
	if result.Metadata == nil {
		result.Metadata = map[string]interface{}{}
	}
	result.Metadata["origin"] = origin
	return result
}

func remoteResult(output string) toolexecutor.Result {
	result := toolexecutor.OK(output)
	result.Metadata = map[string]interface{}{"origin": OriginRemote}
	return result
}

func outcome(r toolexecutor.Result) string {
	if r.Success {
		return "ok"
	}
	if r.Kind != "" {
		return string(r.Kind)
	}
	return "error"
}
