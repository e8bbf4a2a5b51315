package entities

import (
	"time"

	"taskdeck/agent-api/internal/domain/status"
)

// SummaryTask is a queued request to summarize a conversation.
type SummaryTask struct {
	ID             uint              `gorm:"primaryKey"`
	CreatedAt      time.Time         `gorm:"autoCreateTime"`
	UpdatedAt      time.Time         `gorm:"autoUpdateTime"`
	ConversationID string            `gorm:"type:varchar(128);index:idx_summary_tasks_conversation;not null"`
	Status         status.TaskStatus `gorm:"type:varchar(20);index:idx_summary_tasks_status_queued_at,priority:1;not null"`
	Attempts       int               `gorm:"not null;default:0"`
	QueuedAt       time.Time         `gorm:"index:idx_summary_tasks_status_queued_at,priority:2;not null"`
	StartedAt      *time.Time
	FinishedAt     *time.Time
	Error          string `gorm:"type:text;not null;default:''"`
}

// TableName specifies the table name for SummaryTask.
func (SummaryTask) TableName() string {
	return "summary_tasks"
}
