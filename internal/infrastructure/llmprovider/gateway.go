package llmprovider

import (
	"context"
	"strings"

	"github.com/rs/zerolog"

	"taskdeck/agent-api/internal/domain/dedup"
	turnerrors "taskdeck/agent-api/internal/domain/errors"
	"taskdeck/agent-api/internal/domain/llm"
)

// GatewayConfig holds the defaults used when a requested model is unknown.
type GatewayConfig struct {
	DefaultChatModel     string
	DefaultSummaryModel  string
	DefaultContextLength int
	// Resolve maps aliases such as "fast" to concrete model ids.
	Resolve func(string) string
}

// Gateway implements llm.ModelGateway against the upstream model catalog.
type Gateway struct {
	catalog *Catalog
	cfg     GatewayConfig
	dedup   *dedup.Deduplicator
	log     zerolog.Logger
}

// NewGateway creates a model gateway.
func NewGateway(catalog *Catalog, cfg GatewayConfig, d *dedup.Deduplicator, log zerolog.Logger) *Gateway {
	if cfg.Resolve == nil {
		cfg.Resolve = func(s string) string { return s }
	}
	return &Gateway{
		catalog: catalog,
		cfg:     cfg,
		dedup:   d,
		log:     log.With().Str("component", "model-gateway").Logger(),
	}
}

// SelectModel resolves requested into a catalog model. Unknown or empty ids fall back to the
// default of the usage class.
func (g *Gateway) SelectModel(ctx context.Context, requested string, usage llm.UsageClass) (llm.Model, error) {
	requested = strings.TrimSpace(requested)
	key := "model:" + string(usage) + ":" + requested
	model, _, err := dedup.Do(ctx, g.dedup, key, func(ctx context.Context) (llm.Model, error) {
		return g.selectModel(ctx, requested, usage)
	})
	return model, err
}

func (g *Gateway) selectModel(ctx context.Context, requested string, usage llm.UsageClass) (llm.Model, error) {
	if requested != "" {
		id := g.cfg.Resolve(requested)
		entry, ok, err := g.catalog.Lookup(ctx, id)
		if err != nil {
			return llm.Model{}, turnerrors.Upstream("model.catalog", err)
		}
		if ok {
			return g.model(entry, false), nil
		}
		g.log.Info().Str("requested", requested).Str("usage", string(usage)).Msg("model not in catalog")
	}

	id := g.defaultFor(usage)
	entry, ok, err := g.catalog.Lookup(ctx, id)
	if err != nil {
		return llm.Model{}, turnerrors.Upstream("model.catalog", err)
	}
	if !ok {
		entry = CatalogEntry{ID: id}
	}
	return g.model(entry, requested != ""), nil
}

func (g *Gateway) defaultFor(usage llm.UsageClass) string {
	if usage == llm.UsageSummary && g.cfg.DefaultSummaryModel != "" {
		return g.cfg.DefaultSummaryModel
	}
	return g.cfg.DefaultChatModel
}

func (g *Gateway) model(entry CatalogEntry, fallback bool) llm.Model {
	contextLength := g.cfg.DefaultContextLength
	if entry.ContextLength != nil && *entry.ContextLength > 0 {
		contextLength = *entry.ContextLength
	}
	return llm.Model{ID: entry.ID, ContextLength: contextLength, Fallback: fallback}
}

var _ llm.ModelGateway = (*Gateway)(nil)
