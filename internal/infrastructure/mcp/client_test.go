package mcp

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"taskdeck/agent-api/internal/domain/tool"
)

type rpcRequest struct {
	Method string         `json:"method"`
	Params map[string]any `json:"params"`
}

func newMCPServer(t *testing.T, handle func(req rpcRequest, auth string) any) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, rpcPath, r.URL.Path)
		var req rpcRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(handle(req, r.Header.Get("Authorization")))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestListToolsFiltersToAllowedNames(t *testing.T) {
	srv := newMCPServer(t, func(req rpcRequest, auth string) any {
		require.Equal(t, "tools/list", req.Method)
		return map[string]any{"jsonrpc": "2.0", "id": 1, "result": map[string]any{"tools": []any{
			map[string]any{"name": "google_search", "description": "Search the web", "inputSchema": map[string]any{"type": "object"}},
			map[string]any{"name": "scrape", "description": "Fetch a page"},
			map[string]any{"name": "python_exec", "description": "Run code"},
		}}}
	})

	client := NewClient(srv.URL, time.Second, []string{"google_search", "scrape"}, zerolog.Nop())
	tools, err := client.ListTools(context.Background())
	require.NoError(t, err)
	require.Len(t, tools, 2)
	assert.Equal(t, "google_search", tools[0].Name())
	assert.Equal(t, "scrape", tools[1].Name())
	assert.Equal(t, "object", tools[1].Schema()["type"])
}

func TestProxyToolCallsRemoteWithCallerAuth(t *testing.T) {
	var gotAuth string
	var gotArgs map[string]any
	srv := newMCPServer(t, func(req rpcRequest, auth string) any {
		if req.Method == "tools/list" {
			return map[string]any{"jsonrpc": "2.0", "id": 1, "result": map[string]any{"tools": []any{
				map[string]any{"name": "google_search"},
			}}}
		}
		gotAuth = auth
		gotArgs, _ = req.Params["arguments"].(map[string]any)
		return map[string]any{"jsonrpc": "2.0", "id": 2, "result": map[string]any{
			"content": []any{
				map[string]any{"type": "text", "text": "result one"},
				map[string]any{"type": "image", "data": "..."},
				map[string]any{"type": "text", "text": "result two"},
			},
		}}
	})

	client := NewClient(srv.URL, time.Second, nil, zerolog.Nop())
	tools, err := client.ListTools(context.Background())
	require.NoError(t, err)
	require.Len(t, tools, 1)

	result, err := tools[0].Invoke(context.Background(), map[string]any{"q": "sprint planning"}, tool.ExecContext{AuthHeader: "Bearer t"})
	require.NoError(t, err)
	assert.Equal(t, "result one\nresult two", result.Text)
	assert.Equal(t, "Bearer t", gotAuth)
	assert.Equal(t, "sprint planning", gotArgs["q"])
}

func TestCallToolReportsRemoteErrors(t *testing.T) {
	srv := newMCPServer(t, func(req rpcRequest, auth string) any {
		if req.Params["name"] == "broken" {
			return map[string]any{"jsonrpc": "2.0", "id": 1, "error": map[string]any{"code": -32601, "message": "no such tool"}}
		}
		return map[string]any{"jsonrpc": "2.0", "id": 1, "result": map[string]any{
			"isError": true,
			"content": []any{map[string]any{"type": "text", "text": "quota exceeded"}},
		}}
	})
	client := NewClient(srv.URL, time.Second, nil, zerolog.Nop())

	_, err := client.CallTool(context.Background(), "", "broken", nil)
	var rpcErr *rpcError
	require.ErrorAs(t, err, &rpcErr)
	assert.Equal(t, -32601, rpcErr.Code)

	result, err := client.CallTool(context.Background(), "", "google_search", map[string]any{})
	require.NoError(t, err)
	assert.True(t, result.IsError)
	assert.Equal(t, "quota exceeded", result.Error)
}
