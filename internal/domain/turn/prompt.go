package turn

import (
	"context"
	"strings"

	"taskdeck/agent-api/internal/domain/conversation"
	"taskdeck/agent-api/internal/domain/dedup"
	"taskdeck/agent-api/internal/domain/llm"
	"taskdeck/agent-api/internal/domain/tool"
)

// Profile is the system prompt and tool set of one agent type.
type Profile struct {
	Prompt string
	Tools  *tool.Set
}

// DirectiveFunc renders the instruction that binds a turn to a project.
type DirectiveFunc func(projectID int64) string

func systemPrompt(profile Profile, projectID *int64, directive DirectiveFunc) llm.ChatMessage {
	prompt := strings.TrimSpace(profile.Prompt)
	if projectID != nil && directive != nil {
		if d := strings.TrimSpace(directive(*projectID)); d != "" {
			prompt += "\n\n" + d
		}
	}
	return llm.ChatMessage{Role: llm.RoleSystem, Content: prompt}
}

// toolSet returns the profile tools, plus the web search tools when requested and available.
// A failing web search source only drops those tools.
func (o *Orchestrator) toolSet(ctx context.Context, profile Profile, agent conversation.AgentType, webSearch bool) *tool.Set {
	if !webSearch || o.webSearch == nil {
		return profile.Tools
	}
	extra, _, err := dedup.Do(ctx, o.dedup, "websearch:tools", o.webSearch.ListTools)
	if err != nil {
		o.log.Warn().Err(err).Str("agent", string(agent)).Msg("web search tools unavailable")
		return profile.Tools
	}
	set := profile.Tools.Clone()
	for _, t := range extra {
		set.Add(t)
	}
	return set
}
