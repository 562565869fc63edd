// Package mcp implements the JSON-RPC tool call envelope spoken between
// the engine and a tool endpoint, a client that classifies failures by
// layer, and an HTTP/WebSocket server that exposes a local tool registry
// on the same wire format.
package mcp

import (
	"fmt"
	"strings"
)

// Version is the JSON-RPC protocol version carried by every envelope.
const Version = "2.0"

// MethodToolsCall is the only method the tool endpoint understands.
const MethodToolsCall = "tools/call"

// JSON-RPC error codes used by the tool endpoint.
const (
	CodeParseError     = -32700
	CodeInvalidRequest = -32600
	CodeMethodNotFound = -32601
	CodeInvalidParams  = -32602
	CodeToolFailed     = -32000
)

// Params identifies the tool and its arguments.
type Params struct {
	Name      string                 `json:"name"`
	Arguments map[string]interface{} `json:"arguments,omitempty"`
}

// Request is a tool call envelope. IDs are unique per client so
// responses can be correlated.
type Request struct {
	JSONRPC string `json:"jsonrpc"`
	ID      int64  `json:"id"`
	Method  string `json:"method"`
	Params  Params `json:"params"`
}

// NewRequest builds a tools/call request.
func NewRequest(id int64, tool string, args map[string]interface{}) *Request {
	return &Request{
		JSONRPC: Version,
		ID:      id,
		Method:  MethodToolsCall,
		Params:  Params{Name: tool, Arguments: args},
	}
}

// Content is one block of tool output.
type Content struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// CallResult is the success payload of a tool call.
type CallResult struct {
	Content []Content `json:"content"`
}

// TextResult wraps text in a single-block result.
func TextResult(text string) *CallResult {
	return &CallResult{Content: []Content{{Type: "text", Text: text}}}
}

// Text concatenates the text blocks of a result.
func (r *CallResult) Text() string {
	if r == nil {
		return ""
	}
	var b strings.Builder
	for _, c := range r.Content {
		if c.Type == "text" {
			b.WriteString(c.Text)
		}
	}
	return b.String()
}

// RPCError is the failure payload of a tool call.
type RPCError struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

func (e *RPCError) Error() string {
	return fmt.Sprintf("%s (code %d)", e.Message, e.Code)
}

// Response is a tool call reply. Exactly one of Result and Error is set
// in a valid envelope.
type Response struct {
	JSONRPC string      `json:"jsonrpc"`
	ID      int64       `json:"id"`
	Result  *CallResult `json:"result,omitempty"`
	Error   *RPCError   `json:"error,omitempty"`
}

// ResultResponse builds a success reply.
func ResultResponse(id int64, result *CallResult) *Response {
	return &Response{JSONRPC: Version, ID: id, Result: result}
}

// ErrorResponse builds a failure reply.
func ErrorResponse(id int64, code int, message string) *Response {
	return &Response{JSONRPC: Version, ID: id, Error: &RPCError{Code: code, Message: message}}
}

// Validate checks envelope semantics against the request id. It reports
// the first violation: wrong version, id mismatch, or a result/error
// pairing that is not exactly-one-of.
func (r *Response) Validate(wantID int64) error {
	if r.JSONRPC != Version {
		return fmt.Errorf("unexpected jsonrpc version %q", r.JSONRPC)
	}
	if r.ID != wantID {
		return fmt.Errorf("response id %d does not match request id %d", r.ID, wantID)
	}
	if r.Result == nil && r.Error == nil {
		return fmt.Errorf("response carries neither result nor error")
	}
	if r.Result != nil && r.Error != nil {
		return fmt.Errorf("response carries both result and error")
	}
	return nil
}
