package tokenizer

import (
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"

	"taskdeck/agent-api/internal/domain/llm"
)

func TestCounterCountsTokens(t *testing.T) {
	tests := []struct {
		name  string
		model string
	}{
		{name: "cl100k", model: "gpt-4-turbo"},
		{name: "o200k", model: "gpt-4o-mini"},
		{name: "unknown model", model: "llama-3-70b"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := NewCounter(tt.model, zerolog.Nop())
			assert.Equal(t, 0, c.CountTokens(""))
			n := c.CountTokens("Create an epic for payments in project 42")
			assert.Greater(t, n, 3)
			assert.Less(t, n, 20)
		})
	}
}

func TestCounterDrivesTrimming(t *testing.T) {
	c := NewCounter("gpt-4o-mini", zerolog.Nop())
	messages := []llm.ChatMessage{
		{Role: llm.RoleSystem, Content: "system"},
		{Role: llm.RoleUser, Content: "old question " + strings.Repeat("lorem ipsum ", 200)},
		{Role: llm.RoleAssistant, Content: "old answer"},
		{Role: llm.RoleUser, Content: "new question"},
	}

	res := llm.TrimMessagesToFitContext(messages, 200, c)
	assert.Greater(t, res.TrimmedCount, 0)
	assert.Equal(t, "new question", res.Messages[len(res.Messages)-1].Content)
	assert.Equal(t, llm.RoleSystem, res.Messages[0].Role)
}
