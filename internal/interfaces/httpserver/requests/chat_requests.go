package requests

import (
	"encoding/json"
	"fmt"
	"strings"

	"taskdeck/agent-api/internal/domain/conversation"
	"taskdeck/agent-api/internal/domain/llm"
	"taskdeck/agent-api/internal/domain/turn"
)

// ChatRequest is the body of POST /v1/agents/{agent}/chat. It carries either a
// conversationId with one message, or the legacy flat messages array.
type ChatRequest struct {
	ConversationID   string          `json:"conversationId"`
	Message          *ChatMessage    `json:"message"`
	Messages         []LegacyMessage `json:"messages"`
	ProjectID        *int64          `json:"projectId"`
	SelectedModel    string          `json:"selectedModel"`
	WebSearchEnabled bool            `json:"webSearchEnabled"`
}

// ChatMessage is a message with tagged content parts.
type ChatMessage struct {
	Role  conversation.Role  `json:"role"`
	Parts conversation.Parts `json:"parts"`
}

// LegacyMessage accepts either a plain content string or parts.
type LegacyMessage struct {
	Role    conversation.Role  `json:"role"`
	Content *string            `json:"content,omitempty"`
	Parts   conversation.Parts `json:"parts,omitempty"`
}

func (m LegacyMessage) parts() conversation.Parts {
	if len(m.Parts) > 0 {
		return m.Parts
	}
	if m.Content != nil {
		return conversation.Parts{conversation.TextPart{Text: *m.Content}}
	}
	return nil
}

// IsLegacy reports whether the body uses the stateless messages array.
func (r ChatRequest) IsLegacy() bool {
	return strings.TrimSpace(r.ConversationID) == "" && r.Message == nil && r.Messages != nil
}

// ToTurn decodes the body into the matching turn request variant.
func (r ChatRequest) ToTurn(agent conversation.AgentType, caller llm.Caller) turn.Request {
	opts := turn.Options{
		AgentType:        agent,
		ProjectID:        r.ProjectID,
		SelectedModel:    strings.TrimSpace(r.SelectedModel),
		WebSearchEnabled: r.WebSearchEnabled,
		Caller:           caller,
	}

	if r.IsLegacy() {
		messages := make([]turn.InboundMessage, 0, len(r.Messages))
		for _, m := range r.Messages {
			messages = append(messages, turn.InboundMessage{Role: m.Role, Parts: m.parts()})
		}
		return turn.StatelessTurn{Options: opts, Messages: messages}
	}

	req := turn.PersistentTurn{Options: opts, ConversationID: strings.TrimSpace(r.ConversationID)}
	if r.Message != nil {
		req.Message = &turn.InboundMessage{Role: r.Message.Role, Parts: r.Message.Parts}
	}
	return req
}

// DecodeChatRequest parses raw into a ChatRequest.
func DecodeChatRequest(raw []byte) (ChatRequest, error) {
	var req ChatRequest
	if len(strings.TrimSpace(string(raw))) == 0 {
		return req, fmt.Errorf("request body is required")
	}
	if err := json.Unmarshal(raw, &req); err != nil {
		return req, fmt.Errorf("invalid request body: %w", err)
	}
	return req, nil
}
