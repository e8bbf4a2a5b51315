// Package status defines shared lifecycle types for turns and background tasks.
package status

import "errors"

// TurnState is a stage of the conversation turn lifecycle.
type TurnState string

const (
	TurnReceived         TurnState = "received"
	TurnResolved         TurnState = "resolved"
	TurnHistoryLoaded    TurnState = "history_loaded"
	TurnUserMsgPersisted TurnState = "user_msg_persisted"
	TurnModelInvoked     TurnState = "model_invoked"
	TurnStepLoop         TurnState = "step_loop"

	// Terminal states
	TurnFinished TurnState = "finished"
	TurnAborted  TurnState = "aborted"
	TurnFailed   TurnState = "failed"
)

// ErrInvalidTransition is returned when a state transition is not allowed.
var ErrInvalidTransition = errors.New("invalid status transition")

// IsTerminal returns true if the turn can no longer change state.
func (s TurnState) IsTerminal() bool {
	return s == TurnFinished || s == TurnAborted || s == TurnFailed
}

// String returns the string representation of the state.
func (s TurnState) String() string {
	return string(s)
}

// Stateless turns skip the persistence stages, so RECEIVED may jump straight to MODEL_INVOKED.
var validTurnTransitions = map[TurnState][]TurnState{
	TurnReceived:         {TurnResolved, TurnModelInvoked, TurnAborted, TurnFailed},
	TurnResolved:         {TurnHistoryLoaded, TurnAborted, TurnFailed},
	TurnHistoryLoaded:    {TurnUserMsgPersisted, TurnAborted, TurnFailed},
	TurnUserMsgPersisted: {TurnModelInvoked, TurnAborted, TurnFailed},
	TurnModelInvoked:     {TurnStepLoop, TurnAborted, TurnFailed},
	TurnStepLoop:         {TurnStepLoop, TurnFinished, TurnAborted, TurnFailed},
	TurnFinished:         {},
	TurnAborted:          {},
	TurnFailed:           {},
}

// CanTransitionTo checks if moving from s to target is allowed.
func (s TurnState) CanTransitionTo(target TurnState) bool {
	for _, t := range validTurnTransitions[s] {
		if t == target {
			return true
		}
	}
	return false
}

// TransitionTo attempts the transition and returns an error if it is invalid.
func (s TurnState) TransitionTo(target TurnState) (TurnState, error) {
	if !s.CanTransitionTo(target) {
		return s, ErrInvalidTransition
	}
	return target, nil
}

// TaskStatus is the lifecycle of a queued background task.
type TaskStatus string

const (
	TaskQueued     TaskStatus = "queued"
	TaskInProgress TaskStatus = "in_progress"
	TaskCompleted  TaskStatus = "completed"
	TaskFailed     TaskStatus = "failed"
)

// IsTerminal returns true if the task will not be picked up again.
func (s TaskStatus) IsTerminal() bool {
	return s == TaskCompleted || s == TaskFailed
}

// ErrorSeverity indicates how an error should be handled.
type ErrorSeverity string

const (
	ErrorSeverityRetryable ErrorSeverity = "retryable" // Retry with backoff
	ErrorSeverityRecovered ErrorSeverity = "recovered" // Reported back to the model, turn continues
	ErrorSeverityFatal     ErrorSeverity = "fatal"     // Fails the turn
)

// String returns the string representation of the error severity.
func (e ErrorSeverity) String() string {
	return string(e)
}

// IsRetryable returns true if the error can be retried.
func (e ErrorSeverity) IsRetryable() bool {
	return e == ErrorSeverityRetryable
}

// IsFatal returns true if the error should fail the turn.
func (e ErrorSeverity) IsFatal() bool {
	return e == ErrorSeverityFatal
}
