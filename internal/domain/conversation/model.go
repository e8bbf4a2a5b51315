package conversation

import (
	"fmt"
	"time"
)

// AgentType identifies which chat agent owns a conversation.
type AgentType string

const (
	AgentProject AgentType = "project"
	AgentSprint  AgentType = "sprint"
	AgentBacklog AgentType = "backlog"
	AgentMeeting AgentType = "meeting"
)

// AgentTypes lists every supported agent.
var AgentTypes = []AgentType{AgentProject, AgentSprint, AgentBacklog, AgentMeeting}

// ParseAgentType validates a raw agent name.
func ParseAgentType(raw string) (AgentType, error) {
	for _, t := range AgentTypes {
		if string(t) == raw {
			return t, nil
		}
	}
	return "", fmt.Errorf("unknown agent type %q", raw)
}

// Role is the author of a message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

// Valid reports whether r is one of the persisted roles.
func (r Role) Valid() bool {
	return r == RoleUser || r == RoleAssistant || r == RoleSystem
}

// Conversation is one chat session between a user and an agent.
// ID is assigned by the caller and stays stable across turns.
type Conversation struct {
	ID            string     `json:"id"`
	AgentType     AgentType  `json:"agentType"`
	ProjectID     *int64     `json:"projectId"`
	Title         string     `json:"title,omitempty"`
	Summary       string     `json:"summary,omitempty"`
	CreatedAt     time.Time  `json:"createdAt"`
	UpdatedAt     time.Time  `json:"updatedAt"`
	LastMessageAt *time.Time `json:"lastMessageAt"`
}

// Placeholder returns the empty conversation reported for ids that were never persisted.
func Placeholder(id string, agentType AgentType) *Conversation {
	return &Conversation{
		ID:        id,
		AgentType: agentType,
	}
}

// Message is one entry of the append-only conversation log.
type Message struct {
	ID             string    `json:"id"`
	ConversationID string    `json:"conversationId"`
	Role           Role      `json:"role"`
	Parts          Parts     `json:"parts"`
	ToolName       string    `json:"toolName,omitempty"`
	ToolCallID     string    `json:"toolCallId,omitempty"`
	CreatedAt      time.Time `json:"createdAt"`
}

// Text joins the text parts of the message.
func (m Message) Text() string {
	return m.Parts.Text()
}

// History is the persisted state of a conversation. Conversation is nil when the id is unseen.
type History struct {
	Conversation *Conversation `json:"conversation"`
	Messages     []Message     `json:"messages"`
}
