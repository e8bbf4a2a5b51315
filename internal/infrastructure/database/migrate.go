package database

import (
	"context"

	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"taskdeck/agent-api/internal/infrastructure/database/entities"
)

// AutoMigrate applies schema changes for conversations, messages and summary tasks.
func AutoMigrate(ctx context.Context, db *gorm.DB, log zerolog.Logger) error {
	if err := db.WithContext(ctx).AutoMigrate(
		&entities.Conversation{},
		&entities.Message{},
		&entities.SummaryTask{},
	); err != nil {
		return err
	}

	log.Info().Msg("database schema up to date")
	return nil
}
