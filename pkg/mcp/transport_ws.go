package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/haruo/kaigi/pkg/toolexecutor"
)

// WSTransport carries envelopes over a per-call WebSocket connection.
// Dialing per call keeps the transport stateless; the endpoint serves
// the same request/response envelope as its HTTP route.
type WSTransport struct {
	endpoint string
	health   string
	dialer   *websocket.Dialer
	client   *http.Client
}

// NewWSTransport builds the WebSocket transport for an endpoint URL such
// as ws://tools:8080/mcp/ws.
func NewWSTransport(endpoint string) *WSTransport {
	return &WSTransport{
		endpoint: endpoint,
		health:   healthURL(endpoint),
		dialer:   websocket.DefaultDialer,
		client:   &http.Client{},
	}
}

// Endpoint returns the endpoint URL.
func (t *WSTransport) Endpoint() string { return t.endpoint }

// RoundTrip dials, writes the request, and reads one reply.
func (t *WSTransport) RoundTrip(ctx context.Context, req *Request) (*Response, error) {
	conn, _, err := t.dialer.DialContext(ctx, t.endpoint, nil)
	if err != nil {
		return nil, toolexecutor.NewError(toolexecutor.KindTransport, req.Params.Name, err)
	}
	defer conn.Close()

	if deadline, ok := ctx.Deadline(); ok {
		conn.SetWriteDeadline(deadline)
		conn.SetReadDeadline(deadline)
	} else {
		conn.SetWriteDeadline(time.Now().Add(DefaultTimeout))
		conn.SetReadDeadline(time.Now().Add(DefaultTimeout))
	}

	if err := conn.WriteJSON(req); err != nil {
		return nil, toolexecutor.NewError(toolexecutor.KindTransport, req.Params.Name, fmt.Errorf("write: %w", err))
	}

	_, data, err := conn.ReadMessage()
	if err != nil {
		return nil, toolexecutor.NewError(toolexecutor.KindTransport, req.Params.Name, fmt.Errorf("read: %w", err))
	}

	var resp Response
	if err := json.Unmarshal(data, &resp); err != nil {
		return nil, toolexecutor.NewError(toolexecutor.KindProtocol, req.Params.Name,
			fmt.Errorf("undecodable response frame: %w", err))
	}
	return &resp, nil
}

// Healthy GETs the endpoint's /health route over plain HTTP.
func (t *WSTransport) Healthy(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, t.health, nil)
	if err != nil {
		return err
	}
	resp, err := t.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("health check returned HTTP %d", resp.StatusCode)
	}
	return nil
}
