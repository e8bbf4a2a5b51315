package llmprovider

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/rs/zerolog"

	"taskdeck/agent-api/internal/domain/dedup"
	"taskdeck/agent-api/internal/domain/llm"
)

// CatalogEntry mirrors one element of the /models listing.
type CatalogEntry struct {
	ID            string `json:"id"`
	ContextLength *int   `json:"context_length,omitempty"`
}

type catalogResponse struct {
	Data []CatalogEntry `json:"data"`
}

// Catalog caches the model listing of the upstream API.
type Catalog struct {
	http   *resty.Client
	apiKey string
	ttl    time.Duration
	dedup  *dedup.Deduplicator
	log    zerolog.Logger

	mu        sync.RWMutex
	models    map[string]CatalogEntry
	fetchedAt time.Time
}

// NewCatalog creates a catalog reading baseURL/models and caching it for ttl.
func NewCatalog(baseURL, apiKey string, ttl time.Duration, d *dedup.Deduplicator, log zerolog.Logger) *Catalog {
	return &Catalog{
		http: resty.New().
			SetBaseURL(strings.TrimRight(baseURL, "/")).
			SetHeader("Accept", "application/json").
			SetTimeout(10 * time.Second),
		apiKey: apiKey,
		ttl:    ttl,
		dedup:  d,
		log:    log.With().Str("component", "model-catalog").Logger(),
	}
}

// Lookup returns the catalog entry of id, refreshing the cache when stale.
func (c *Catalog) Lookup(ctx context.Context, id string) (CatalogEntry, bool, error) {
	models, err := c.snapshot(ctx)
	if err != nil {
		return CatalogEntry{}, false, err
	}
	entry, ok := models[id]
	return entry, ok, nil
}

func (c *Catalog) snapshot(ctx context.Context) (map[string]CatalogEntry, error) {
	c.mu.RLock()
	if c.models != nil && time.Since(c.fetchedAt) < c.ttl {
		models := c.models
		c.mu.RUnlock()
		return models, nil
	}
	stale := c.models
	c.mu.RUnlock()

	models, _, err := dedup.Do(ctx, c.dedup, "catalog", c.fetch)
	if err != nil {
		if stale != nil {
			c.log.Warn().Err(err).Msg("model catalog refresh failed, serving stale entries")
			return stale, nil
		}
		return nil, err
	}
	return models, nil
}

func (c *Catalog) fetch(ctx context.Context) (map[string]CatalogEntry, error) {
	var resp catalogResponse
	request := c.http.R().
		SetContext(ctx).
		SetResult(&resp)

	switch caller := llm.CallerFromContext(ctx); {
	case c.apiKey != "":
		request.SetAuthToken(c.apiKey)
	case caller.AuthHeader != "":
		request.SetHeader("Authorization", caller.AuthHeader)
	}

	httpResp, err := request.Get("/models")
	if err != nil {
		return nil, fmt.Errorf("fetch model catalog: %w", err)
	}
	if httpResp.IsError() {
		return nil, fmt.Errorf("model catalog returned %d: %s", httpResp.StatusCode(), httpResp.String())
	}

	models := make(map[string]CatalogEntry, len(resp.Data))
	for _, entry := range resp.Data {
		models[entry.ID] = entry
	}

	c.mu.Lock()
	c.models = models
	c.fetchedAt = time.Now()
	c.mu.Unlock()

	c.log.Debug().Int("models", len(models)).Msg("model catalog refreshed")
	return models, nil
}
