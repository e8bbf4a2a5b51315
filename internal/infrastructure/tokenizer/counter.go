// Package tokenizer counts prompt tokens with the cl100k/o200k BPE encodings.
package tokenizer

import (
	"strings"

	"github.com/rs/zerolog"
	"github.com/tiktoken-go/tokenizer"

	"taskdeck/agent-api/internal/domain/llm"
)

// Counter implements llm.TokenCounter with a tiktoken codec.
// It falls back to the character estimate when the text cannot be encoded.
type Counter struct {
	codec    tokenizer.Codec
	fallback llm.EstimateCounter
}

// NewCounter picks the encoding used by model. Unknown models use cl100k_base.
func NewCounter(model string, log zerolog.Logger) *Counter {
	encoding := tokenizer.Cl100kBase
	if strings.HasPrefix(model, "gpt-4o") || strings.HasPrefix(model, "o1") || strings.HasPrefix(model, "o3") {
		encoding = tokenizer.O200kBase
	}

	codec, err := tokenizer.Get(encoding)
	if err != nil {
		log.Warn().Err(err).Str("encoding", string(encoding)).Msg("tokenizer unavailable, estimating tokens")
		return &Counter{}
	}
	return &Counter{codec: codec}
}

// CountTokens implements llm.TokenCounter.
func (c *Counter) CountTokens(text string) int {
	if text == "" {
		return 0
	}
	if c.codec == nil {
		return c.fallback.CountTokens(text)
	}
	ids, _, err := c.codec.Encode(text)
	if err != nil {
		return c.fallback.CountTokens(text)
	}
	return len(ids)
}

var _ llm.TokenCounter = (*Counter)(nil)
