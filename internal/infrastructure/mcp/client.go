// Package mcp discovers and invokes tools exposed by a remote MCP server over JSON-RPC.
package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/rs/zerolog"

	"taskdeck/agent-api/internal/domain/tool"
)

const rpcPath = "/v1/mcp"

// Client implements tool.Source for an MCP server.
type Client struct {
	httpClient *resty.Client
	allowed    map[string]struct{}
	nextID     atomic.Int64
	log        zerolog.Logger
}

// NewClient constructs the MCP client. When allow is non-empty only the listed
// tools are exposed.
func NewClient(baseURL string, timeout time.Duration, allow []string, log zerolog.Logger) *Client {
	allowed := make(map[string]struct{}, len(allow))
	for _, name := range allow {
		if name = strings.TrimSpace(name); name != "" {
			allowed[name] = struct{}{}
		}
	}
	return &Client{
		httpClient: resty.New().
			SetBaseURL(strings.TrimRight(baseURL, "/")).
			SetHeader("Content-Type", "application/json").
			SetTimeout(timeout),
		allowed: allowed,
		log:     log.With().Str("component", "mcp-client").Logger(),
	}
}

type remoteTool struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	InputSchema map[string]any `json:"inputSchema"`
}

type content struct {
	Type string `json:"type"`
	Text string `json:"text,omitempty"`
}

// ListTools fetches the tools via JSON-RPC call tools/list.
func (c *Client) ListTools(ctx context.Context) ([]tool.Tool, error) {
	var result struct {
		Tools []remoteTool `json:"tools"`
	}
	if err := c.call(ctx, "", "tools/list", map[string]any{}, &result); err != nil {
		return nil, fmt.Errorf("mcp list tools: %w", err)
	}

	tools := make([]tool.Tool, 0, len(result.Tools))
	for _, rt := range result.Tools {
		if len(c.allowed) > 0 {
			if _, ok := c.allowed[rt.Name]; !ok {
				continue
			}
		}
		schema := rt.InputSchema
		if schema == nil {
			schema = map[string]any{"type": "object", "properties": map[string]any{}}
		}
		tools = append(tools, &proxyTool{client: c, name: rt.Name, description: rt.Description, schema: schema})
	}
	c.log.Debug().Int("listed", len(result.Tools)).Int("exposed", len(tools)).Msg("mcp tools discovered")
	return tools, nil
}

// CallTool triggers a tool execution via JSON-RPC tools/call.
func (c *Client) CallTool(ctx context.Context, authHeader, name string, args map[string]any) (*tool.Result, error) {
	var result struct {
		Content []content `json:"content"`
		IsError bool      `json:"isError"`
		Error   string    `json:"error"`
	}
	params := map[string]any{"name": name, "arguments": args}
	if err := c.call(ctx, authHeader, "tools/call", params, &result); err != nil {
		return nil, fmt.Errorf("mcp call %s: %w", name, err)
	}

	texts := make([]string, 0, len(result.Content))
	for _, item := range result.Content {
		if item.Type == "text" && item.Text != "" {
			texts = append(texts, item.Text)
		}
	}
	text := strings.Join(texts, "\n")
	if result.IsError {
		if result.Error == "" {
			result.Error = text
		}
		return tool.ErrorResult(result.Error), nil
	}
	return &tool.Result{Text: text}, nil
}

func (c *Client) call(ctx context.Context, authHeader, method string, params any, out any) error {
	payload := map[string]any{
		"jsonrpc": "2.0",
		"method":  method,
		"params":  params,
		"id":      c.nextID.Add(1),
	}

	var rpcResp rpcResponse
	req := c.httpClient.R().
		SetContext(ctx).
		SetBody(payload).
		SetResult(&rpcResp)
	if authHeader != "" {
		req.SetHeader("Authorization", authHeader)
	}
	resp, err := req.Post(rpcPath)
	if err != nil {
		return err
	}
	if resp.IsError() {
		return fmt.Errorf("status %d: %s", resp.StatusCode(), resp.String())
	}
	if rpcResp.Error != nil {
		return rpcResp.Error
	}
	if err := json.Unmarshal(rpcResp.Result, out); err != nil {
		return fmt.Errorf("decode result: %w", err)
	}
	return nil
}

type rpcResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	Result  json.RawMessage `json:"result"`
	Error   *rpcError       `json:"error"`
	ID      any             `json:"id"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (r *rpcError) Error() string {
	return fmt.Sprintf("mcp error (%d): %s", r.Code, r.Message)
}

// proxyTool forwards invocations of a discovered tool to the MCP server.
type proxyTool struct {
	client      *Client
	name        string
	description string
	schema      map[string]any
}

func (p *proxyTool) Name() string           { return p.name }
func (p *proxyTool) Description() string    { return p.description }
func (p *proxyTool) Schema() map[string]any { return p.schema }

func (p *proxyTool) Invoke(ctx context.Context, args map[string]any, exec tool.ExecContext) (*tool.Result, error) {
	return p.client.CallTool(ctx, exec.AuthHeader, p.name, args)
}
