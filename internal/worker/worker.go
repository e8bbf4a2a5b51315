package worker

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"taskdeck/agent-api/internal/domain/summary"
	"taskdeck/agent-api/internal/infrastructure/metrics"
	"taskdeck/agent-api/internal/infrastructure/observability"
	"taskdeck/agent-api/internal/infrastructure/queue"
)

const jobType = "conversation_summary"

// Summarizer regenerates the summary of one conversation.
type Summarizer interface {
	Summarize(ctx context.Context, conversationID string) error
}

// Worker processes summary tasks from the queue.
type Worker struct {
	id           int
	queue        queue.TaskQueue
	summarizer   Summarizer
	taskTimeout  time.Duration
	pollInterval time.Duration
	log          zerolog.Logger
	stopChan     chan struct{}
	stopOnce     sync.Once
}

// NewWorker creates a new background worker.
func NewWorker(
	id int,
	queue queue.TaskQueue,
	summarizer Summarizer,
	taskTimeout time.Duration,
	pollInterval time.Duration,
	log zerolog.Logger,
) *Worker {
	return &Worker{
		id:           id,
		queue:        queue,
		summarizer:   summarizer,
		taskTimeout:  taskTimeout,
		pollInterval: pollInterval,
		log:          log.With().Int("worker_id", id).Str("component", "worker").Logger(),
		stopChan:     make(chan struct{}),
	}
}

// Start begins processing tasks from the queue.
func (w *Worker) Start(ctx context.Context) {
	w.log.Info().Msg("worker started")

	ticker := time.NewTicker(w.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.log.Info().Msg("worker stopped by context")
			return
		case <-w.stopChan:
			w.log.Info().Msg("worker stopped")
			return
		case <-ticker.C:
			// drain the queue before waiting for the next tick
			for w.processNextTask(ctx) {
				select {
				case <-ctx.Done():
					return
				case <-w.stopChan:
					return
				default:
				}
			}
		}
	}
}

// Stop gracefully stops the worker.
func (w *Worker) Stop() {
	w.stopOnce.Do(func() { close(w.stopChan) })
}

// processNextTask handles one task and reports whether one was found.
func (w *Worker) processNextTask(ctx context.Context) bool {
	if depth, err := w.queue.GetQueueDepth(ctx); err == nil {
		metrics.SetQueueDepth(int(depth))
	}

	task, err := w.queue.Dequeue(ctx)
	if err != nil {
		w.log.Error().Err(err).Msg("failed to dequeue task")
		return false
	}
	if task == nil {
		return false
	}

	log := w.log.With().Uint("task_id", task.ID).Str("conversation_id", task.ConversationID).Int("attempt", task.Attempts).Logger()
	log.Debug().Msg("processing summary task")

	taskCtx, span := observability.StartSummarySpan(ctx, task.ID, task.ConversationID, task.Attempts)
	defer span.End()
	if w.taskTimeout > 0 {
		var cancel context.CancelFunc
		taskCtx, cancel = context.WithTimeout(taskCtx, w.taskTimeout)
		defer cancel()
	}

	err = w.summarizer.Summarize(taskCtx, task.ConversationID)
	if err != nil && !errors.Is(err, summary.ErrNothingToSummarize) {
		observability.RecordError(span, err, "retryable")
		log.Warn().Err(err).Msg("summary task failed")
		metrics.RecordBackgroundJob(jobType, "failed")
		if markErr := w.queue.MarkFailed(ctx, task.ID, err); markErr != nil {
			log.Error().Err(markErr).Msg("failed to mark task as failed")
		}
		return true
	}

	if err := w.queue.MarkCompleted(ctx, task.ID); err != nil {
		log.Error().Err(err).Msg("failed to mark task as completed")
		return true
	}
	metrics.RecordBackgroundJob(jobType, "completed")
	log.Debug().Msg("summary task completed")
	return true
}
