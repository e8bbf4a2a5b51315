package tool

import (
	"context"
	"encoding/json"
	"fmt"
)

// FuncTool adapts a typed Go function into a Tool. Arguments are decoded into A
// and the returned value is encoded as the JSON result text.
type FuncTool[A any] struct {
	name        string
	description string
	schema      map[string]any
	fn          func(ctx context.Context, args A, exec ExecContext) (any, error)
}

// NewFunc builds a FuncTool whose schema is reflected from A.
func NewFunc[A any](name, description string, fn func(ctx context.Context, args A, exec ExecContext) (any, error)) *FuncTool[A] {
	return &FuncTool[A]{
		name:        name,
		description: description,
		schema:      SchemaFor[A](),
		fn:          fn,
	}
}

func (t *FuncTool[A]) Name() string           { return t.name }
func (t *FuncTool[A]) Description() string    { return t.description }
func (t *FuncTool[A]) Schema() map[string]any { return t.schema }

// Invoke implements Tool.
func (t *FuncTool[A]) Invoke(ctx context.Context, args map[string]any, exec ExecContext) (*Result, error) {
	raw, err := json.Marshal(args)
	if err != nil {
		return nil, fmt.Errorf("encode arguments: %w", err)
	}
	var typed A
	if err := json.Unmarshal(raw, &typed); err != nil {
		return nil, fmt.Errorf("decode arguments: %w", err)
	}
	out, err := t.fn(ctx, typed, exec)
	if err != nil {
		return nil, err
	}
	return JSONResult(out)
}
