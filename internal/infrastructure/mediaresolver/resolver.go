package mediaresolver

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/rs/zerolog"

	"taskdeck/agent-api/internal/config"
	"taskdeck/agent-api/internal/domain/llm"
	"taskdeck/agent-api/internal/domain/upload"
)

// ErrNotConfigured is returned for remote references when MEDIA_RESOLVE_URL is empty.
var ErrNotConfigured = errors.New("media resolver endpoint not configured")

const maxInlineTextBytes = 256 << 10

// Resolver turns file parts into inline model content. data: URLs are decoded locally;
// every other reference is sent to the media service.
type Resolver struct {
	http       *resty.Client
	endpoint   string
	serviceKey string
	log        zerolog.Logger
}

// NewResolver constructs the resolver from configuration.
func NewResolver(cfg *config.Config, log zerolog.Logger) *Resolver {
	timeout := cfg.MediaResolveTimeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Resolver{
		http: resty.New().
			SetHeader("Content-Type", "application/json").
			SetTimeout(timeout),
		endpoint:   strings.TrimSpace(cfg.MediaResolveURL),
		serviceKey: strings.TrimSpace(cfg.MediaServiceKey),
		log:        log.With().Str("component", "media-resolver").Logger(),
	}
}

type resolveRequest struct {
	Payload struct {
		URL       string `json:"url"`
		MediaType string `json:"mediaType,omitempty"`
	} `json:"payload"`
}

type resolvedItem struct {
	MediaType string `json:"mediaType"`
	Text      string `json:"text,omitempty"`
	DataURL   string `json:"dataUrl,omitempty"`
}

type resolveResponse struct {
	Payload struct {
		Contents []resolvedItem `json:"contents"`
	} `json:"payload"`
}

// Resolve implements upload.Resolver.
func (r *Resolver) Resolve(ctx context.Context, mediaType, locator string) ([]upload.Content, error) {
	if strings.HasPrefix(locator, "data:") {
		content, err := decodeDataURL(locator, mediaType)
		if err != nil {
			return nil, err
		}
		return []upload.Content{content}, nil
	}
	if r.endpoint == "" {
		return nil, ErrNotConfigured
	}

	var body resolveRequest
	body.Payload.URL = locator
	body.Payload.MediaType = mediaType

	var out resolveResponse
	req := r.http.R().
		SetContext(ctx).
		SetBody(body).
		SetResult(&out)
	if r.serviceKey != "" {
		req.SetHeader("X-Media-Service-Key", r.serviceKey)
	}
	if caller := llm.CallerFromContext(ctx); caller.AuthHeader != "" {
		req.SetHeader("Authorization", caller.AuthHeader)
	}

	resp, err := req.Post(r.endpoint)
	if err != nil {
		return nil, fmt.Errorf("call media resolve endpoint: %w", err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("media resolve error: status=%d body=%s", resp.StatusCode(), strings.TrimSpace(resp.String()))
	}
	if len(out.Payload.Contents) == 0 {
		return nil, errors.New("media resolve returned no content")
	}

	contents := make([]upload.Content, 0, len(out.Payload.Contents))
	for _, item := range out.Payload.Contents {
		contents = append(contents, upload.Content{MediaType: item.MediaType, Text: item.Text, DataURL: item.DataURL})
	}
	r.log.Debug().Str("locator", redact(locator)).Int("contents", len(contents)).Msg("resolved upload")
	return contents, nil
}

// decodeDataURL inlines images as-is and decodes text-like media into text.
func decodeDataURL(raw, declared string) (upload.Content, error) {
	header, payload, ok := strings.Cut(strings.TrimPrefix(raw, "data:"), ",")
	if !ok {
		return upload.Content{}, errors.New("malformed data URL")
	}
	mediaType, params, _ := strings.Cut(header, ";")
	if mediaType == "" {
		mediaType = declared
	}

	if strings.HasPrefix(mediaType, "image/") {
		return upload.Content{MediaType: mediaType, DataURL: raw}, nil
	}
	if !isTextLike(mediaType) {
		return upload.Content{}, fmt.Errorf("unsupported inline media type %q", mediaType)
	}

	var data []byte
	if strings.Contains(params, "base64") {
		decoded, err := base64.StdEncoding.DecodeString(payload)
		if err != nil {
			return upload.Content{}, fmt.Errorf("decode data URL: %w", err)
		}
		data = decoded
	} else {
		unescaped, err := url.PathUnescape(payload)
		if err != nil {
			return upload.Content{}, fmt.Errorf("decode data URL: %w", err)
		}
		data = []byte(unescaped)
	}
	if len(data) > maxInlineTextBytes {
		data = data[:maxInlineTextBytes]
	}
	return upload.Content{MediaType: mediaType, Text: string(data)}, nil
}

func isTextLike(mediaType string) bool {
	switch {
	case strings.HasPrefix(mediaType, "text/"):
		return true
	case mediaType == "application/json", mediaType == "application/xml", mediaType == "application/x-yaml":
		return true
	}
	return false
}

func redact(locator string) string {
	if u, err := url.Parse(locator); err == nil && u.RawQuery != "" {
		u.RawQuery = ""
		return u.String()
	}
	return locator
}

var _ upload.Resolver = (*Resolver)(nil)
