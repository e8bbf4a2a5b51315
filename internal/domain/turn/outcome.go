package turn

import (
	"taskdeck/agent-api/internal/domain/status"
	"taskdeck/agent-api/internal/domain/tool"
)

// FallbackAcknowledgement is the assistant text used when tools ran but the model said nothing.
const FallbackAcknowledgement = "Done. I've completed the requested actions."

// Outcome is the terminal result of a turn: Finished, Aborted or Failed.
type Outcome interface {
	State() status.TurnState
}

// Finished means the step loop completed.
type Finished struct {
	Text       string
	Steps      int
	Model      string
	Executions []tool.Execution
}

// Aborted means the caller cancelled the turn.
type Aborted struct {
	Steps int
}

// Failed means an unexpected error stopped the turn.
type Failed struct {
	Err   error
	Steps int
}

func (Finished) State() status.TurnState { return status.TurnFinished }
func (Aborted) State() status.TurnState  { return status.TurnAborted }
func (Failed) State() status.TurnState   { return status.TurnFailed }

// ToolCalls returns how many tool calls ran during the turn.
func (f Finished) ToolCalls() int {
	return len(f.Executions)
}
