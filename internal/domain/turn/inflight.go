package turn

import (
	"context"
	"sync"
)

// InFlight tracks the cancel functions of running persistent turns by conversation id.
type InFlight struct {
	mu    sync.Mutex
	seq   uint64
	turns map[string]inflightTurn
}

type inflightTurn struct {
	token  uint64
	cancel context.CancelFunc
}

// NewInFlight creates an empty registry.
func NewInFlight() *InFlight {
	return &InFlight{turns: make(map[string]inflightTurn)}
}

// Register records cancel for conversationID and returns a func that removes it again.
func (f *InFlight) Register(conversationID string, cancel context.CancelFunc) func() {
	f.mu.Lock()
	f.seq++
	token := f.seq
	f.turns[conversationID] = inflightTurn{token: token, cancel: cancel}
	f.mu.Unlock()

	return func() {
		f.mu.Lock()
		defer f.mu.Unlock()
		if current, ok := f.turns[conversationID]; ok && current.token == token {
			delete(f.turns, conversationID)
		}
	}
}

// Cancel stops the running turn of conversationID. It reports whether one was running.
func (f *InFlight) Cancel(conversationID string) bool {
	f.mu.Lock()
	current, ok := f.turns[conversationID]
	f.mu.Unlock()
	if !ok {
		return false
	}
	current.cancel()
	return true
}

// Active reports whether conversationID has a running turn.
func (f *InFlight) Active(conversationID string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.turns[conversationID]
	return ok
}
