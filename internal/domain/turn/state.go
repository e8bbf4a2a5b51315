package turn

import (
	"github.com/rs/zerolog"

	"taskdeck/agent-api/internal/domain/status"
)

// stateTracker follows one turn through its lifecycle.
type stateTracker struct {
	state   status.TurnState
	visited []status.TurnState
	log     zerolog.Logger
}

func newStateTracker(log zerolog.Logger) *stateTracker {
	return &stateTracker{
		state:   status.TurnReceived,
		visited: []status.TurnState{status.TurnReceived},
		log:     log,
	}
}

func (t *stateTracker) to(target status.TurnState) {
	next, err := t.state.TransitionTo(target)
	if err != nil {
		t.log.Warn().
			Str("from", t.state.String()).
			Str("to", target.String()).
			Msg("unexpected turn state transition")
		next = target
	}
	t.log.Debug().Str("from", t.state.String()).Str("to", next.String()).Msg("turn state")
	t.state = next
	t.visited = append(t.visited, next)
}
