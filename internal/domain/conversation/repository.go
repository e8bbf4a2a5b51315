package conversation

import (
	"context"
	"errors"
)

// ErrNotFound is returned when a conversation id has never been persisted.
var ErrNotFound = errors.New("conversation not found")

// UpsertParams describes the conversation attributes attached on every turn.
type UpsertParams struct {
	ID        string
	AgentType AgentType
	// ProjectID overwrites the stored project when non-nil and leaves it unchanged otherwise.
	ProjectID *int64
	// Title is only applied when the conversation has no title yet.
	Title string
}

// Store persists conversations and their message logs.
type Store interface {
	// Upsert creates the conversation when unseen and re-attaches its attributes otherwise.
	Upsert(ctx context.Context, params UpsertParams) (*Conversation, error)
	// GetHistory returns the conversation and its messages in creation order.
	// Unseen ids yield a nil conversation and no messages, not an error.
	GetHistory(ctx context.Context, id string) (*History, error)
	// AppendMessage adds msg to the end of the conversation log.
	AppendMessage(ctx context.Context, msg *Message) error
	// SetSummary stores a generated summary for the conversation.
	SetSummary(ctx context.Context, id, summary string) error
}
