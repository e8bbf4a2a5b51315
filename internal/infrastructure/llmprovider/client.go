package llmprovider

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"
	openai "github.com/sashabaranov/go-openai"

	"taskdeck/agent-api/internal/domain/llm"
)

// Client implements llm.Provider on top of an OpenAI-compatible endpoint.
type Client struct {
	api     *openai.Client
	timeout time.Duration
	log     zerolog.Logger
}

// NewClient creates a go-openai backed provider. When apiKey is empty the caller's
// Authorization header is forwarded instead.
//
// timeout bounds a whole non-streaming call, but only the wait for response
// headers of a streamed one. A stream then lives as long as the caller's context.
func NewClient(baseURL, apiKey string, timeout time.Duration, log zerolog.Logger) *Client {
	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.ResponseHeaderTimeout = timeout

	cfg := openai.DefaultConfig(apiKey)
	cfg.BaseURL = strings.TrimRight(baseURL, "/")
	cfg.HTTPClient = &http.Client{
		Transport: &callerTransport{base: transport, apiKey: apiKey},
	}
	return &Client{
		api:     openai.NewClientWithConfig(cfg),
		timeout: timeout,
		log:     log.With().Str("component", "llm-client").Logger(),
	}
}

// CreateChatCompletion calls /chat/completions without streaming.
func (c *Client) CreateChatCompletion(ctx context.Context, req llm.ChatCompletionRequest) (*llm.ChatCompletionResponse, error) {
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}
	resp, err := c.api.CreateChatCompletion(ctx, toOpenAIRequest(req))
	if err != nil {
		return nil, classify("model.complete", err)
	}
	return fromOpenAIResponse(resp), nil
}

// CreateChatCompletionStream opens a streamed /chat/completions call.
func (c *Client) CreateChatCompletionStream(ctx context.Context, req llm.ChatCompletionRequest) (llm.Stream, error) {
	oreq := toOpenAIRequest(req)
	oreq.Stream = true
	stream, err := c.api.CreateChatCompletionStream(ctx, oreq)
	if err != nil {
		return nil, classify("model.stream", err)
	}
	return &openAIStream{stream: stream}, nil
}

var _ llm.Provider = (*Client)(nil)

type openAIStream struct {
	stream *openai.ChatCompletionStream
}

func (s *openAIStream) Recv() (*llm.ChatCompletionDelta, error) {
	chunk, err := s.stream.Recv()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, err
		}
		return nil, classify("model.recv", err)
	}
	return fromOpenAIChunk(chunk), nil
}

func (s *openAIStream) Close() error {
	return s.stream.Close()
}

// callerTransport forwards the caller identity of the request context.
type callerTransport struct {
	base   http.RoundTripper
	apiKey string
}

func (t *callerTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	caller := llm.CallerFromContext(req.Context())
	if (t.apiKey == "" && caller.AuthHeader != "") || caller.RequestID != "" {
		req = req.Clone(req.Context())
		if t.apiKey == "" && caller.AuthHeader != "" {
			req.Header.Set("Authorization", caller.AuthHeader)
		}
		if caller.RequestID != "" {
			req.Header.Set("X-Request-ID", caller.RequestID)
		}
	}
	return t.base.RoundTrip(req)
}
