package mcp

import (
	"testing"
)

func TestResponseValidate(t *testing.T) {
	tests := []struct {
		name    string
		resp    Response
		wantID  int64
		wantErr bool
	}{
		{
			name:   "valid result",
			resp:   Response{JSONRPC: Version, ID: 7, Result: TextResult("ok")},
			wantID: 7,
		},
		{
			name:   "valid error",
			resp:   Response{JSONRPC: Version, ID: 7, Error: &RPCError{Code: CodeToolFailed, Message: "nope"}},
			wantID: 7,
		},
		{
			name:    "wrong version",
			resp:    Response{JSONRPC: "1.0", ID: 7, Result: TextResult("ok")},
			wantID:  7,
			wantErr: true,
		},
		{
			name:    "id mismatch",
			resp:    Response{JSONRPC: Version, ID: 8, Result: TextResult("ok")},
			wantID:  7,
			wantErr: true,
		},
		{
			name:    "neither result nor error",
			resp:    Response{JSONRPC: Version, ID: 7},
			wantID:  7,
			wantErr: true,
		},
		{
			name:    "both result and error",
			resp:    Response{JSONRPC: Version, ID: 7, Result: TextResult("ok"), Error: &RPCError{Code: 1, Message: "x"}},
			wantID:  7,
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.resp.Validate(tt.wantID)
			if tt.wantErr && err == nil {
				t.Error("expected validation error")
			}
			if !tt.wantErr && err != nil {
				t.Errorf("unexpected error: %v", err)
			}
		})
	}
}

func TestCallResultText(t *testing.T) {
	t.Run("joins text blocks", func(t *testing.T) {
		r := &CallResult{Content: []Content{
			{Type: "text", Text: "first"},
			{Type: "image", Text: "ignored"},
			{Type: "text", Text: " second"},
		}}
		if got := r.Text(); got != "first second" {
			t.Errorf("expected %q, got %q", "first second", got)
		}
	})

	t.Run("nil result", func(t *testing.T) {
		var r *CallResult
		if got := r.Text(); got != "" {
			t.Errorf("expected empty, got %q", got)
		}
	})
}

func TestNewRequest(t *testing.T) {
	req := NewRequest(3, "execute_sql_query", map[string]interface{}{"query": "SELECT 1"})

	if req.JSONRPC != Version {
		t.Errorf("expected version %s, got %s", Version, req.JSONRPC)
	}
	if req.Method != MethodToolsCall {
		t.Errorf("expected method %s, got %s", MethodToolsCall, req.Method)
	}
	if req.ID != 3 || req.Params.Name != "execute_sql_query" {
		t.Errorf("unexpected request: %+v", req)
	}
}
