package mcp

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/haruo/kaigi/pkg/toolexecutor"
)

// HTTPTransport posts envelopes to an HTTP endpoint.
type HTTPTransport struct {
	endpoint string
	health   string
	client   *http.Client
}

// NewHTTPTransport builds the HTTP transport for an endpoint URL such as
// http://tools:8080/mcp. Timeouts are governed by the call context.
func NewHTTPTransport(endpoint string) *HTTPTransport {
	return &HTTPTransport{
		endpoint: endpoint,
		health:   healthURL(endpoint),
		client:   &http.Client{},
	}
}

// Endpoint returns the endpoint URL.
func (t *HTTPTransport) Endpoint() string { return t.endpoint }

// RoundTrip posts the request envelope and decodes the reply.
// Connection failures are transport-class; a body that does not decode
// as an envelope is protocol-class unless the endpoint also signalled an
// HTTP error status, which points at infrastructure rather than the
// tool protocol.
func (t *HTTPTransport) RoundTrip(ctx context.Context, req *Request) (*Response, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, toolexecutor.NewError(toolexecutor.KindProtocol, req.Params.Name, fmt.Errorf("encode request: %w", err))
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, t.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, toolexecutor.NewError(toolexecutor.KindTransport, req.Params.Name, err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	httpResp, err := t.client.Do(httpReq)
	if err != nil {
		return nil, toolexecutor.NewError(toolexecutor.KindTransport, req.Params.Name, err)
	}
	defer httpResp.Body.Close()

	data, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return nil, toolexecutor.NewError(toolexecutor.KindTransport, req.Params.Name, fmt.Errorf("read response: %w", err))
	}

	var resp Response
	if err := json.Unmarshal(data, &resp); err != nil {
		if httpResp.StatusCode >= 400 {
			return nil, toolexecutor.Errorf(toolexecutor.KindTransport, req.Params.Name,
				"endpoint returned HTTP %d", httpResp.StatusCode)
		}
		return nil, toolexecutor.NewError(toolexecutor.KindProtocol, req.Params.Name,
			fmt.Errorf("undecodable response body: %w", err))
	}
	return &resp, nil
}

// Healthy GETs the endpoint's /health route.
func (t *HTTPTransport) Healthy(ctx context.Context) error {
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
