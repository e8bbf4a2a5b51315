package entities

import (
	"encoding/json"
	"fmt"
	"time"

	"gorm.io/datatypes"

	"taskdeck/agent-api/internal/domain/conversation"
)

// Message is one row of the append-only conversation log.
// Sequence is assigned by the database and defines log order.
type Message struct {
	Sequence       uint           `gorm:"primaryKey;autoIncrement;index:idx_messages_conversation_sequence,priority:2"`
	PublicID       string         `gorm:"type:varchar(64);uniqueIndex;not null"`
	ConversationID string         `gorm:"type:varchar(128);index:idx_messages_conversation_sequence,priority:1;not null"`
	Role           string         `gorm:"type:varchar(20);not null"`
	Parts          datatypes.JSON `gorm:"not null"`
	ToolName       string         `gorm:"type:varchar(128);not null;default:''"`
	ToolCallID     string         `gorm:"type:varchar(128);not null;default:''"`
	CreatedAt      time.Time      `gorm:"autoCreateTime"`
}

// TableName specifies the table name for Message.
func (Message) TableName() string {
	return "messages"
}

// EtoD converts the database entity to the domain model.
func (m *Message) EtoD() (*conversation.Message, error) {
	var parts conversation.Parts
	if len(m.Parts) > 0 {
		if err := json.Unmarshal(m.Parts, &parts); err != nil {
			return nil, fmt.Errorf("decode parts of message %s: %w", m.PublicID, err)
		}
	}
	return &conversation.Message{
		ID:             m.PublicID,
		ConversationID: m.ConversationID,
		Role:           conversation.Role(m.Role),
		Parts:          parts,
		ToolName:       m.ToolName,
		ToolCallID:     m.ToolCallID,
		CreatedAt:      m.CreatedAt,
	}, nil
}

// NewSchemaMessage creates a database entity from the domain model.
func NewSchemaMessage(msg *conversation.Message) (*Message, error) {
	parts := msg.Parts
	if parts == nil {
		parts = conversation.Parts{}
	}
	raw, err := json.Marshal(parts)
	if err != nil {
		return nil, fmt.Errorf("encode message parts: %w", err)
	}
	return &Message{
		PublicID:       msg.ID,
		ConversationID: msg.ConversationID,
		Role:           string(msg.Role),
		Parts:          datatypes.JSON(raw),
		ToolName:       msg.ToolName,
		ToolCallID:     msg.ToolCallID,
		CreatedAt:      msg.CreatedAt,
	}, nil
}
