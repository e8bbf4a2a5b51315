package conversation

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	domain "taskdeck/agent-api/internal/domain/conversation"
	"taskdeck/agent-api/internal/infrastructure/database/entities"
)

// Repository persists conversations and their message logs with GORM.
type Repository struct {
	db *gorm.DB
}

// NewRepository builds a conversation repository.
func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// Upsert creates the conversation or re-attaches agent type, project and title.
func (r *Repository) Upsert(ctx context.Context, params domain.UpsertParams) (*domain.Conversation, error) {
	entity := entities.NewSchemaConversation(params)

	assignments := map[string]any{
		"agent_type": string(params.AgentType),
		"updated_at": time.Now(),
	}
	if params.ProjectID != nil {
		assignments["project_id"] = *params.ProjectID
	}
	if params.Title != "" {
		assignments["title"] = gorm.Expr("CASE WHEN conversations.title = '' THEN ? ELSE conversations.title END", params.Title)
	}

	if err := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "id"}},
			DoUpdates: clause.Assignments(assignments),
		}).
		Create(entity).Error; err != nil {
		return nil, fmt.Errorf("upsert conversation %s: %w", params.ID, err)
	}

	var stored entities.Conversation
	if err := r.db.WithContext(ctx).Where("id = ?", params.ID).First(&stored).Error; err != nil {
		return nil, fmt.Errorf("reload conversation %s: %w", params.ID, err)
	}
	return stored.EtoD(), nil
}

// GetHistory returns the conversation and its log ordered by sequence.
func (r *Repository) GetHistory(ctx context.Context, id string) (*domain.History, error) {
	var conv entities.Conversation
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&conv).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return &domain.History{Messages: []domain.Message{}}, nil
		}
		return nil, fmt.Errorf("fetch conversation %s: %w", id, err)
	}

	var rows []entities.Message
	if err := r.db.WithContext(ctx).
		Where("conversation_id = ?", id).
		Order("sequence ASC").
		Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("fetch messages of %s: %w", id, err)
	}

	messages := make([]domain.Message, 0, len(rows))
	for i := range rows {
		msg, err := rows[i].EtoD()
		if err != nil {
			return nil, err
		}
		messages = append(messages, *msg)
	}

	return &domain.History{
		Conversation: conv.EtoD(),
		Messages:     messages,
	}, nil
}

// AppendMessage inserts msg and bumps the conversation counters in one transaction.
func (r *Repository) AppendMessage(ctx context.Context, msg *domain.Message) error {
	if msg.ID == "" {
		msg.ID = "msg_" + uuid.NewString()
	}
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = time.Now().UTC()
	}

	entity, err := entities.NewSchemaMessage(msg)
	if err != nil {
		return err
	}

	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		result := tx.Model(&entities.Conversation{}).
			Where("id = ?", msg.ConversationID).
			Updates(map[string]any{
				"message_count":   gorm.Expr("message_count + 1"),
				"last_message_at": msg.CreatedAt,
				"updated_at":      msg.CreatedAt,
			})
		if result.Error != nil {
			return fmt.Errorf("touch conversation %s: %w", msg.ConversationID, result.Error)
		}
		if result.RowsAffected == 0 {
			return domain.ErrNotFound
		}
		if err := tx.Create(entity).Error; err != nil {
			return fmt.Errorf("append message to %s: %w", msg.ConversationID, err)
		}
		return nil
	})
}

// SetSummary stores the generated summary of a conversation.
func (r *Repository) SetSummary(ctx context.Context, id, summary string) error {
	result := r.db.WithContext(ctx).
		Model(&entities.Conversation{}).
		Where("id = ?", id).
		Update("summary", summary)
	if result.Error != nil {
		return fmt.Errorf("set summary of %s: %w", id, result.Error)
	}
	if result.RowsAffected == 0 {
		return domain.ErrNotFound
	}
	return nil
}

var _ domain.Store = (*Repository)(nil)
