// Package pmtools exposes the project-management REST API to the model as tools.
package pmtools

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/rs/zerolog"

	"taskdeck/agent-api/internal/domain/tool"
)

// Client calls the project-management API on behalf of the chat user.
type Client struct {
	http *resty.Client
	log  zerolog.Logger
}

// NewClient creates a resty-backed client for baseURL.
func NewClient(baseURL string, timeout time.Duration, log zerolog.Logger) *Client {
	return &Client{
		http: resty.New().
			SetBaseURL(strings.TrimRight(baseURL, "/")).
			SetHeader("Content-Type", "application/json").
			SetHeader("Accept", "application/json").
			SetTimeout(timeout),
		log: log.With().Str("component", "pm-client").Logger(),
	}
}

// APIError is a non-2xx answer of the project-management API.
type APIError struct {
	Method string
	Path   string
	Status int
	Body   string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("project API %s %s returned %d: %s", e.Method, e.Path, e.Status, e.Body)
}

func (c *Client) do(ctx context.Context, exec tool.ExecContext, method, path string, query map[string]string, body any) (any, error) {
	req := c.http.R().SetContext(ctx)
	if exec.AuthHeader != "" {
		req.SetHeader("Authorization", exec.AuthHeader)
	}
	if exec.ConversationID != "" {
		req.SetHeader("X-Conversation-ID", exec.ConversationID)
	}
	for k, v := range query {
		if v != "" {
			req.SetQueryParam(k, v)
		}
	}
	if body != nil {
		req.SetBody(body)
	}

	resp, err := req.Execute(method, path)
	if err != nil {
		return nil, fmt.Errorf("project API %s %s: %w", method, path, err)
	}
	if resp.IsError() {
		return nil, &APIError{Method: method, Path: path, Status: resp.StatusCode(), Body: truncate(resp.String(), 512)}
	}
	if resp.StatusCode() == http.StatusNoContent || len(resp.Body()) == 0 {
		return map[string]any{"ok": true}, nil
	}

	var out any
	if err := json.Unmarshal(resp.Body(), &out); err != nil {
		return nil, fmt.Errorf("decode project API response: %w", err)
	}
	c.log.Debug().Str("method", method).Str("path", path).Int("status", resp.StatusCode()).Msg("project API call")
	return out, nil
}

func truncate(s string, max int) string {
	s = strings.TrimSpace(s)
	if len(s) <= max {
		return s
	}
	return s[:max] + "..."
}
