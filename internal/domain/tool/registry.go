package tool

import (
	"fmt"
	"sort"
	"sync"

	"taskdeck/agent-api/internal/domain/llm"
)

// Registry holds the statically known tools by name.
type Registry struct {
	mu    sync.RWMutex
	tools map[string]Tool
}

// NewRegistry creates a registry populated with tools.
func NewRegistry(tools ...Tool) (*Registry, error) {
	r := &Registry{tools: make(map[string]Tool)}
	for _, t := range tools {
		if err := r.Register(t); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// Register adds t, rejecting duplicate names.
func (r *Registry) Register(t Tool) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	name := t.Name()
	if name == "" {
		return fmt.Errorf("tool has no name")
	}
	if _, exists := r.tools[name]; exists {
		return fmt.Errorf("tool already registered: %s", name)
	}
	r.tools[name] = t
	return nil
}

// Get retrieves a tool by name.
func (r *Registry) Get(name string) (Tool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	t, ok := r.tools[name]
	return t, ok
}

// Names lists the registered tool names in sorted order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.tools))
	for name := range r.tools {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Select builds a Set from the named tools. Unknown names are an error so a
// misconfigured agent fails at startup rather than mid-turn.
func (r *Registry) Select(names []string) (*Set, error) {
	set := NewSet()
	for _, name := range names {
		t, ok := r.Get(name)
		if !ok {
			return nil, fmt.Errorf("unknown tool %q", name)
		}
		set.Add(t)
	}
	return set, nil
}

// Set is the ordered capability set offered to the model in one turn.
type Set struct {
	order []string
	tools map[string]Tool
}

// NewSet creates an empty set.
func NewSet() *Set {
	return &Set{tools: make(map[string]Tool)}
}

// Add appends t unless a tool with the same name is already present.
func (s *Set) Add(t Tool) {
	if _, exists := s.tools[t.Name()]; exists {
		return
	}
	s.order = append(s.order, t.Name())
	s.tools[t.Name()] = t
}

// Clone returns a copy that can be extended without touching s.
func (s *Set) Clone() *Set {
	out := NewSet()
	if s == nil {
		return out
	}
	for _, name := range s.order {
		out.Add(s.tools[name])
	}
	return out
}

// Lookup finds a tool in the set.
func (s *Set) Lookup(name string) (Tool, bool) {
	if s == nil {
		return nil, false
	}
	t, ok := s.tools[name]
	return t, ok
}

// Len returns the number of tools in the set.
func (s *Set) Len() int {
	if s == nil {
		return 0
	}
	return len(s.order)
}

// Definitions renders the set for the model in insertion order.
func (s *Set) Definitions() []llm.ToolDefinition {
	if s.Len() == 0 {
		return nil
	}
	defs := make([]llm.ToolDefinition, 0, len(s.order))
	for _, name := range s.order {
		defs = append(defs, Definition(s.tools[name]))
	}
	return defs
}
