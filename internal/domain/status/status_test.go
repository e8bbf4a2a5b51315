package status_test

import (
	"testing"

	"taskdeck/agent-api/internal/domain/status"
)

func TestTurnState_IsTerminal(t *testing.T) {
	tests := []struct {
		name     string
		state    status.TurnState
		expected bool
	}{
		{"received is not terminal", status.TurnReceived, false},
		{"resolved is not terminal", status.TurnResolved, false},
		{"step loop is not terminal", status.TurnStepLoop, false},
		{"finished is terminal", status.TurnFinished, true},
		{"aborted is terminal", status.TurnAborted, true},
		{"failed is terminal", status.TurnFailed, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.state.IsTerminal(); got != tt.expected {
				t.Errorf("TurnState.IsTerminal() = %v, want %v", got, tt.expected)
			}
		})
	}
}

func TestTurnState_CanTransitionTo(t *testing.T) {
	tests := []struct {
		name     string
		from     status.TurnState
		to       status.TurnState
		expected bool
	}{
		{"received to resolved", status.TurnReceived, status.TurnResolved, true},
		{"stateless received to model invoked", status.TurnReceived, status.TurnModelInvoked, true},
		{"resolved to history loaded", status.TurnResolved, status.TurnHistoryLoaded, true},
		{"history loaded to user persisted", status.TurnHistoryLoaded, status.TurnUserMsgPersisted, true},
		{"user persisted to model invoked", status.TurnUserMsgPersisted, status.TurnModelInvoked, true},
		{"model invoked to step loop", status.TurnModelInvoked, status.TurnStepLoop, true},
		{"step loop repeats", status.TurnStepLoop, status.TurnStepLoop, true},
		{"step loop to finished", status.TurnStepLoop, status.TurnFinished, true},
		{"resolved cannot skip history", status.TurnResolved, status.TurnModelInvoked, false},
		{"received cannot finish", status.TurnReceived, status.TurnFinished, false},
		{"finished is final", status.TurnFinished, status.TurnStepLoop, false},
		{"aborted is final", status.TurnAborted, status.TurnFailed, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.from.CanTransitionTo(tt.to); got != tt.expected {
				t.Errorf("%s -> %s = %v, want %v", tt.from, tt.to, got, tt.expected)
			}
		})
	}
}

func TestTurnState_TransitionTo(t *testing.T) {
	next, err := status.TurnModelInvoked.TransitionTo(status.TurnStepLoop)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if next != status.TurnStepLoop {
		t.Errorf("got %s, want %s", next, status.TurnStepLoop)
	}

	same, err := status.TurnFinished.TransitionTo(status.TurnFailed)
	if err != status.ErrInvalidTransition {
		t.Errorf("expected ErrInvalidTransition, got %v", err)
	}
	if same != status.TurnFinished {
		t.Errorf("state changed on invalid transition: %s", same)
	}
}

func TestTaskStatus_IsTerminal(t *testing.T) {
	if status.TaskQueued.IsTerminal() || status.TaskInProgress.IsTerminal() {
		t.Error("queued and in_progress must not be terminal")
	}
	if !status.TaskCompleted.IsTerminal() || !status.TaskFailed.IsTerminal() {
		t.Error("completed and failed must be terminal")
	}
}

func TestErrorSeverity(t *testing.T) {
	if !status.ErrorSeverityRetryable.IsRetryable() {
		t.Error("retryable severity should be retryable")
	}
	if status.ErrorSeverityRecovered.IsRetryable() || status.ErrorSeverityRecovered.IsFatal() {
		t.Error("recovered severity is neither retryable nor fatal")
	}
	if !status.ErrorSeverityFatal.IsFatal() {
		t.Error("fatal severity should be fatal")
	}
}
