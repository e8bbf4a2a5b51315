package turn

import (
	"strings"

	"taskdeck/agent-api/internal/domain/conversation"
	turnerrors "taskdeck/agent-api/internal/domain/errors"
	"taskdeck/agent-api/internal/domain/llm"
)

// Options are the settings shared by every kind of turn request.
type Options struct {
	AgentType        conversation.AgentType
	ProjectID        *int64
	SelectedModel    string
	WebSearchEnabled bool
	Caller           llm.Caller
}

// InboundMessage is a message as received from the client.
type InboundMessage struct {
	Role  conversation.Role
	Parts conversation.Parts
}

// Request is a decoded turn request. It is either a PersistentTurn or a StatelessTurn.
type Request interface {
	options() Options
	Validate() error
}

// PersistentTurn continues a stored conversation with one new message.
type PersistentTurn struct {
	Options
	ConversationID string
	Message        *InboundMessage
}

// StatelessTurn answers a flat message list without touching storage.
type StatelessTurn struct {
	Options
	Messages []InboundMessage
}

func (t PersistentTurn) options() Options { return t.Options }
func (t StatelessTurn) options() Options  { return t.Options }

// Validate checks the fields required by the persistent path.
func (t PersistentTurn) Validate() error {
	if strings.TrimSpace(t.ConversationID) == "" {
		return turnerrors.InvalidRequest("conversationId is required")
	}
	if t.Message == nil || len(t.Message.Parts) == 0 {
		return turnerrors.InvalidRequest("message is required")
	}
	if t.Message.Role != conversation.RoleUser {
		return turnerrors.InvalidRequest("message role must be user")
	}
	return validateAgent(t.AgentType)
}

// Validate checks the fields required by the stateless path.
func (t StatelessTurn) Validate() error {
	if len(t.Messages) == 0 {
		return turnerrors.InvalidRequest("messages must not be empty")
	}
	for _, m := range t.Messages {
		if !m.Role.Valid() {
			return turnerrors.InvalidRequest("unsupported message role " + string(m.Role))
		}
	}
	return validateAgent(t.AgentType)
}

func validateAgent(agent conversation.AgentType) error {
	if _, err := conversation.ParseAgentType(string(agent)); err != nil {
		return turnerrors.InvalidRequest(err.Error())
	}
	return nil
}
