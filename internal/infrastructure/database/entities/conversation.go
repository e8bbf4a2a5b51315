package entities

import (
	"time"

	"taskdeck/agent-api/internal/domain/conversation"
)

// Conversation is the database row of a chat session.
type Conversation struct {
	ID            string    `gorm:"type:varchar(128);primaryKey"`
	CreatedAt     time.Time `gorm:"autoCreateTime"`
	UpdatedAt     time.Time `gorm:"autoUpdateTime"`
	AgentType     string    `gorm:"type:varchar(20);index:idx_conversations_agent_type;not null"`
	ProjectID     *int64    `gorm:"index:idx_conversations_project_id"`
	Title         string    `gorm:"type:varchar(256);not null;default:''"`
	Summary       string    `gorm:"type:text;not null;default:''"`
	MessageCount  int       `gorm:"not null;default:0"`
	LastMessageAt *time.Time
}

// TableName specifies the table name for Conversation.
func (Conversation) TableName() string {
	return "conversations"
}

// EtoD converts the database entity to the domain model.
func (c *Conversation) EtoD() *conversation.Conversation {
	return &conversation.Conversation{
		ID:            c.ID,
		AgentType:     conversation.AgentType(c.AgentType),
		ProjectID:     c.ProjectID,
		Title:         c.Title,
		Summary:       c.Summary,
		CreatedAt:     c.CreatedAt,
		UpdatedAt:     c.UpdatedAt,
		LastMessageAt: c.LastMessageAt,
	}
}

// NewSchemaConversation creates a database entity from upsert parameters.
func NewSchemaConversation(params conversation.UpsertParams) *Conversation {
	return &Conversation{
		ID:        params.ID,
		AgentType: string(params.AgentType),
		ProjectID: params.ProjectID,
		Title:     params.Title,
	}
}
