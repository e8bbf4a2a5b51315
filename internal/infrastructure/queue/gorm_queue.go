package queue

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"taskdeck/agent-api/internal/domain/status"
	"taskdeck/agent-api/internal/infrastructure/database/entities"
)

// DefaultMaxAttempts bounds how often one summary task is tried.
const DefaultMaxAttempts = 3

// DefaultStaleAfter is how long a task may stay in progress before it is reclaimed.
const DefaultStaleAfter = 10 * time.Minute

// claimCandidates is how many queued rows one Dequeue tries to claim before giving up.
const claimCandidates = 5

var errStaleClaim = errors.New("worker did not finish the task in time")

// GormQueue implements TaskQueue on the summary_tasks table. Claims are
// optimistic updates guarded by status, so it works on PostgreSQL and SQLite.
type GormQueue struct {
	db          *gorm.DB
	maxAttempts int
	staleAfter  time.Duration
	log         zerolog.Logger
}

// NewGormQueue creates a new database-backed task queue. Tasks in progress for
// longer than staleAfter are treated as abandoned by a crashed worker.
func NewGormQueue(db *gorm.DB, maxAttempts int, staleAfter time.Duration, log zerolog.Logger) *GormQueue {
	if maxAttempts <= 0 {
		maxAttempts = DefaultMaxAttempts
	}
	if staleAfter <= 0 {
		staleAfter = DefaultStaleAfter
	}
	return &GormQueue{
		db:          db,
		maxAttempts: maxAttempts,
		staleAfter:  staleAfter,
		log:         log.With().Str("component", "summary-queue").Logger(),
	}
}

// Enqueue adds a summary task, coalescing with a task that is still queued.
func (q *GormQueue) Enqueue(ctx context.Context, conversationID string) error {
	return q.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var existing int64
		if err := tx.Model(&entities.SummaryTask{}).
			Where("conversation_id = ? AND status = ?", conversationID, status.TaskQueued).
			Count(&existing).Error; err != nil {
			return fmt.Errorf("check queued summary: %w", err)
		}
		if existing > 0 {
			return nil
		}
		task := entities.SummaryTask{
			ConversationID: conversationID,
			Status:         status.TaskQueued,
			QueuedAt:       time.Now().UTC(),
		}
		if err := tx.Create(&task).Error; err != nil {
			return fmt.Errorf("enqueue summary: %w", err)
		}
		return nil
	})
}

// ScheduleSummary queues a summary after a finished turn.
func (q *GormQueue) ScheduleSummary(ctx context.Context, conversationID string) error {
	return q.Enqueue(ctx, conversationID)
}

// Dequeue reclaims abandoned tasks, then claims the oldest queued task.
func (q *GormQueue) Dequeue(ctx context.Context) (*Task, error) {
	if err := q.reclaimStale(ctx); err != nil {
		return nil, err
	}

	var candidates []entities.SummaryTask
	err := q.db.WithContext(ctx).
		Where("status = ?", status.TaskQueued).
		Order("queued_at ASC, id ASC").
		Limit(claimCandidates).
		Find(&candidates).Error
	if err != nil {
		return nil, fmt.Errorf("dequeue task: %w", err)
	}

	for _, candidate := range candidates {
		now := time.Now().UTC()
		result := q.db.WithContext(ctx).
			Model(&entities.SummaryTask{}).
			Where("id = ? AND status = ?", candidate.ID, status.TaskQueued).
			Updates(map[string]any{
				"status":     status.TaskInProgress,
				"started_at": now,
				"attempts":   gorm.Expr("attempts + 1"),
			})
		if result.Error != nil {
			return nil, fmt.Errorf("claim task %d: %w", candidate.ID, result.Error)
		}
		if result.RowsAffected == 0 {
			// another worker won the claim
			continue
		}
		return &Task{
			ID:             candidate.ID,
			ConversationID: candidate.ConversationID,
			Attempts:       candidate.Attempts + 1,
			QueuedAt:       candidate.QueuedAt,
		}, nil
	}
	return nil, nil
}

// MarkCompleted updates the task status to completed.
func (q *GormQueue) MarkCompleted(ctx context.Context, taskID uint) error {
	now := time.Now().UTC()
	result := q.db.WithContext(ctx).
		Model(&entities.SummaryTask{}).
		Where("id = ?", taskID).
		Updates(map[string]any{
			"status":      status.TaskCompleted,
			"finished_at": now,
			"error":       "",
		})
	if result.Error != nil {
		return fmt.Errorf("mark completed: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("summary task not found: %d", taskID)
	}
	return nil
}

// MarkFailed puts the task back in the queue until it reaches the attempt limit.
// A task is not requeued when a newer task of the same conversation is already queued.
func (q *GormQueue) MarkFailed(ctx context.Context, taskID uint, taskErr error) error {
	message := ""
	if taskErr != nil {
		message = taskErr.Error()
	}

	var task entities.SummaryTask
	var next status.TaskStatus
	err := q.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.First(&task, taskID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return fmt.Errorf("summary task not found: %d", taskID)
			}
			return fmt.Errorf("load task: %w", err)
		}

		var queued int64
		if err := tx.Model(&entities.SummaryTask{}).
			Where("conversation_id = ? AND status = ? AND id <> ?", task.ConversationID, status.TaskQueued, taskID).
			Count(&queued).Error; err != nil {
			return fmt.Errorf("check queued summary: %w", err)
		}

		now := time.Now().UTC()
		updates := map[string]any{"error": message}
		if task.Attempts < q.maxAttempts && queued == 0 {
			next = status.TaskQueued
			updates["queued_at"] = now
		} else {
			next = status.TaskFailed
			updates["finished_at"] = now
		}
		updates["status"] = next

		result := tx.Model(&entities.SummaryTask{}).
			Where("id = ? AND status = ?", taskID, status.TaskInProgress).
			Updates(updates)
		if result.Error != nil {
			return fmt.Errorf("mark failed: %w", result.Error)
		}
		if result.RowsAffected == 0 {
			return fmt.Errorf("summary task %d is not in progress", taskID)
		}
		return nil
	})
	if err != nil {
		return err
	}
	q.log.Debug().Uint("task_id", taskID).Int("attempts", task.Attempts).Str("status", string(next)).Msg("summary task failed")
	return nil
}

// reclaimStale fails or requeues tasks whose worker stopped before finishing them.
func (q *GormQueue) reclaimStale(ctx context.Context) error {
	var stale []entities.SummaryTask
	cutoff := time.Now().UTC().Add(-q.staleAfter)
	if err := q.db.WithContext(ctx).
		Where("status = ? AND started_at < ?", status.TaskInProgress, cutoff).
		Find(&stale).Error; err != nil {
		return fmt.Errorf("find stale tasks: %w", err)
	}
	for _, task := range stale {
		if err := q.MarkFailed(ctx, task.ID, errStaleClaim); err != nil {
			// a worker finished it in the meantime
			q.log.Debug().Err(err).Uint("task_id", task.ID).Msg("skip stale task")
			continue
		}
		q.log.Warn().Uint("task_id", task.ID).Str("conversation_id", task.ConversationID).Msg("reclaimed stale summary task")
	}
	return nil
}

// GetQueueDepth returns the number of queued tasks.
func (q *GormQueue) GetQueueDepth(ctx context.Context) (int64, error) {
	var count int64
	err := q.db.WithContext(ctx).
		Model(&entities.SummaryTask{}).
		Where("status = ?", status.TaskQueued).
		Count(&count).Error
	if err != nil {
		return 0, fmt.Errorf("get queue depth: %w", err)
	}
	return count, nil
}
