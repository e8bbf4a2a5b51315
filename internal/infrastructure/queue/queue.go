package queue

import (
	"context"
	"time"
)

// Task represents a queued conversation summary.
type Task struct {
	ID             uint
	ConversationID string
	Attempts       int
	QueuedAt       time.Time
}

// TaskQueue defines the interface for task queue operations.
type TaskQueue interface {
	// Enqueue adds a task for the conversation unless one is already waiting
	Enqueue(ctx context.Context, conversationID string) error

	// Dequeue claims the oldest queued task and marks it in_progress. Nil when the queue is empty.
	Dequeue(ctx context.Context) (*Task, error)

	// MarkCompleted updates task status to completed
	MarkCompleted(ctx context.Context, taskID uint) error

	// MarkFailed requeues the task, or fails it once its attempts are used up
	MarkFailed(ctx context.Context, taskID uint, err error) error

	// GetQueueDepth returns the number of queued tasks
	GetQueueDepth(ctx context.Context) (int64, error)
}
