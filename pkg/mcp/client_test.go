package mcp

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/haruo/kaigi/pkg/toolexecutor"
)

// rpcStub answers every POST with a canned reply built from the request id.
func rpcStub(t *testing.T, reply func(id int64) interface{}) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req Request
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(reply(req.ID))
	}))
}

func TestClientCall_Success(t *testing.T) {
	srv := rpcStub(t, func(id int64) interface{} {
		return ResultResponse(id, TextResult("42"))
	})
	defer srv.Close()

	client, err := NewClient(srv.URL)
	require.NoError(t, err)

	out, err := client.Call(context.Background(), "run_code", map[string]interface{}{"code": "result = 42"})
	require.NoError(t, err)
	assert.Equal(t, "42", out)
}

func TestClientCall_ApplicationError(t *testing.T) {
	srv := rpcStub(t, func(id int64) interface{} {
		return ErrorResponse(id, CodeToolFailed, "Query execution failed: no such table")
	})
	defer srv.Close()

	client, err := NewClient(srv.URL)
	require.NoError(t, err)

	_, err = client.Call(context.Background(), "execute_sql_query", map[string]interface{}{"query": "SELECT * FROM nope"})
	require.Error(t, err)
	assert.True(t, toolexecutor.IsApplication(err))
	assert.Contains(t, err.Error(), "no such table")
}

func TestClientCall_TransportError(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	endpoint := srv.URL
	srv.Close() // connection refused from here on

	client, err := NewClient(endpoint)
	require.NoError(t, err)

	_, err = client.Call(context.Background(), "web_search", map[string]interface{}{"query": "x"})
	require.Error(t, err)
	assert.True(t, toolexecutor.IsTransport(err))
}

func TestClientCall_ProtocolErrors(t *testing.T) {
	t.Run("undecodable body", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte("<html>not json</html>"))
		}))
		defer srv.Close()

		client, err := NewClient(srv.URL)
		require.NoError(t, err)

		_, err = client.Call(context.Background(), "t", nil)
		require.Error(t, err)
		assert.True(t, toolexecutor.IsProtocol(err))
	})

	t.Run("id mismatch", func(t *testing.T) {
		srv := rpcStub(t, func(id int64) interface{} {
			return ResultResponse(id+99, TextResult("ok"))
		})
		defer srv.Close()

		client, err := NewClient(srv.URL)
		require.NoError(t, err)

		_, err = client.Call(context.Background(), "t", nil)
		require.Error(t, err)
		assert.True(t, toolexecutor.IsProtocol(err))
	})

	t.Run("neither result nor error", func(t *testing.T) {
		srv := rpcStub(t, func(id int64) interface{} {
			return &Response{JSONRPC: Version, ID: id}
		})
		defer srv.Close()

		client, err := NewClient(srv.URL)
		require.NoError(t, err)

		_, err = client.Call(context.Background(), "t", nil)
		require.Error(t, err)
		assert.True(t, toolexecutor.IsProtocol(err))
	})

	t.Run("wrong version", func(t *testing.T) {
		srv := rpcStub(t, func(id int64) interface{} {
			return &Response{JSONRPC: "1.0", ID: id, Result: TextResult("ok")}
		})
		defer srv.Close()

		client, err := NewClient(srv.URL)
		require.NoError(t, err)

		_, err = client.Call(context.Background(), "t", nil)
		require.Error(t, err)
		assert.True(t, toolexecutor.IsProtocol(err))
	})
}

func TestClientCall_HTTPErrorStatusWithoutEnvelope(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "bad gateway", http.StatusBadGateway)
	}))
	defer srv.Close()

	client, err := NewClient(srv.URL)
	require.NoError(t, err)

	_, err = client.Call(context.Background(), "t", nil)
	require.Error(t, err)
	assert.True(t, toolexecutor.IsTransport(err))
}

func TestClientCall_Timeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	defer srv.Close()

	client, err := NewClient(srv.URL, WithTimeout(50*time.Millisecond))
	require.NoError(t, err)

	start := time.Now()
	_, err = client.Call(context.Background(), "slow", nil)
	require.Error(t, err)
	assert.True(t, toolexecutor.IsTransport(err))
	assert.Less(t, time.Since(start), time.Second)
}

func TestClientCall_UniqueIDs(t *testing.T) {
	var ids []int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req Request
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		ids = append(ids, req.ID)
		_ = json.NewEncoder(w).Encode(ResultResponse(req.ID, TextResult("ok")))
	}))
	defer srv.Close()

	client, err := NewClient(srv.URL)
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		_, err := client.Call(context.Background(), "t", nil)
		require.NoError(t, err)
	}

	require.Len(t, ids, 3)
	seen := map[int64]bool{}
	for _, id := range ids {
		assert.False(t, seen[id], "request id %d reused", id)
		seen[id] = true
	}
}

func TestNewClient_SchemeSelection(t *testing.T) {
	t.Run("http endpoint", func(t *testing.T) {
		c, err := NewClient("http://tools:8080/mcp")
		require.NoError(t, err)
		_, ok := c.transport.(*HTTPTransport)
		assert.True(t, ok)
	})

	t.Run("ws endpoint", func(t *testing.T) {
		c, err := NewClient("ws://tools:8080/mcp/ws")
		require.NoError(t, err)
		_, ok := c.transport.(*WSTransport)
		assert.True(t, ok)
	})

	t.Run("unsupported scheme", func(t *testing.T) {
		_, err := NewClient("ftp://tools:8080/mcp")
		assert.Error(t, err)
	})
}

func TestHealthURL(t *testing.T) {
	tests := []struct {
		endpoint string
		want     string
	}{
		{"http://tools:8080/mcp", "http://tools:8080/health"},
		{"https://tools/mcp", "https://tools/health"},
		{"ws://tools:8080/mcp/ws", "http://tools:8080/health"},
		{"wss://tools/mcp/ws", "https://tools/health"},
	}
	for _, tt := range tests {
		if got := healthURL(tt.endpoint); got != tt.want {
			t.Errorf("healthURL(%q) = %q, want %q", tt.endpoint, got, tt.want)
		}
	}
}

func TestWSTransport_RoundTrip(t *testing.T) {
	exec := toolexecutor.New()
	require.NoError(t, exec.Register(toolexecutor.Definition{
		Name:        "ping",
		Description: "Replies pong",
		Handler: func(ctx context.Context, args map[string]interface{}) (interface{}, error) {
			return "pong", nil
		},
	}))

	server, err := NewServer(ServerConfig{Addr: ":0", Executor: exec})
	require.NoError(t, err)

	srv := httptest.NewServer(server.Handler())
	defer srv.Close()

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/mcp/ws"
	client, err := NewClient(wsURL)
	require.NoError(t, err)

	out, err := client.Call(context.Background(), "ping", nil)
	require.NoError(t, err)
	assert.Equal(t, "pong", out)

	_, err = client.Call(context.Background(), "missing", nil)
	require.Error(t, err)
	assert.True(t, toolexecutor.IsApplication(err))
}
