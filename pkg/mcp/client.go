package mcp

import (
	"context"
	"fmt"
	"net/url"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/haruo/kaigi/pkg/toolexecutor"
)

// DefaultTimeout bounds a tool call when the caller's context carries no
// deadline of its own.
const DefaultTimeout = 30 * time.Second

// Transport carries one envelope to the endpoint and returns the decoded
// reply. Implementations classify their own failures: connection-level
// problems as transport, undecodable bodies as protocol.
type Transport interface {
	RoundTrip(ctx context.Context, req *Request) (*Response, error)
	Healthy(ctx context.Context) error
	Endpoint() string
}

// Client calls tools on a remote endpoint and classifies every failure
// as transport, protocol, or application so the gateway can decide
// whether a local fallback is allowed.
type Client struct {
	transport Transport
	timeout   time.Duration
	nextID    atomic.Int64
	logger    zerolog.Logger
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithTimeout overrides the default per-call timeout.
func WithTimeout(d time.Duration) ClientOption {
	return func(c *Client) {
		if d > 0 {
			c.timeout = d
		}
	}
}

// WithLogger sets the client logger.
func WithLogger(logger zerolog.Logger) ClientOption {
	return func(c *Client) { c.logger = logger }
}

// WithTransport replaces the transport. Used by tests and by callers
// with bespoke wiring.
func WithTransport(t Transport) ClientOption {
	return func(c *Client) { c.transport = t }
}

// NewClient builds a client for the endpoint URL. http and https
// endpoints use the HTTP transport, ws and wss endpoints the WebSocket
// transport.
func NewClient(endpoint string, opts ...ClientOption) (*Client, error) {
	c := &Client{
		timeout: DefaultTimeout,
		logger:  zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(c)
	}

	if c.transport == nil {
		u, err := url.Parse(endpoint)
		if err != nil {
			return nil, fmt.Errorf("invalid tool endpoint %q: %w", endpoint, err)
		}
		switch u.Scheme {
		case "http", "https":
			c.transport = NewHTTPTransport(endpoint)
		case "ws", "wss":
			c.transport = NewWSTransport(endpoint)
		default:
			return nil, fmt.Errorf("unsupported tool endpoint scheme %q", u.Scheme)
		}
	}
	return c, nil
}

// Endpoint returns the endpoint URL this client talks to.
func (c *Client) Endpoint() string {
	return c.transport.Endpoint()
}

// Call invokes a remote tool and returns its text output. Errors are
// always classified: toolexecutor.KindOf(err) distinguishes transport,
// protocol, and application failures.
func (c *Client) Call(ctx context.Context, tool string, args map[string]interface{}) (string, error) {
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	id := c.nextID.Add(1)
	req := NewRequest(id, tool, args)

	start := time.Now()
	resp, err := c.transport.RoundTrip(ctx, req)
	if err != nil {
		if toolexecutor.KindOf(err) == "" {
			err = toolexecutor.NewError(toolexecutor.KindTransport, tool, err)
		}
		c.logger.Warn().
			Str("tool", tool).
			Int64("id", id).
			Dur("elapsed", time.Since(start)).
			Err(err).
			Msg("Tool endpoint round trip failed")
		return "", err
	}

	if err := resp.Validate(id); err != nil {
		return "", toolexecutor.NewError(toolexecutor.KindProtocol, tool, err)
	}
	if resp.Error != nil {
		return "", toolexecutor.NewError(toolexecutor.KindApplication, tool, resp.Error)
	}

	c.logger.Debug().
		Str("tool", tool).
		Int64("id", id).
		Dur("elapsed", time.Since(start)).
		Msg("Tool endpoint call completed")

	return resp.Result.Text(), nil
}

// Healthy probes the endpoint health route.
func (c *Client) Healthy(ctx context.Context) error {
	return c.transport.Healthy(ctx)
}

// healthURL derives the sibling /health route for an endpoint URL,
// mapping ws schemes back to http.
func healthURL(endpoint string) string {
	u, err := url.Parse(endpoint)
	if err != nil {
		return ""
	}
	switch u.Scheme {
	case "ws":
		u.Scheme = "http"
	case "wss":
		u.Scheme = "https"
	}
	u.Path = "/health"
	u.RawQuery = ""
	return u.String()
}
