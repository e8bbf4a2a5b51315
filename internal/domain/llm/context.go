package llm

import "context"

type callerKey struct{}

// Caller describes who triggered the current model or tool call.
type Caller struct {
	AuthHeader string
	RequestID  string
}

// ContextWithCaller stores the caller in ctx for downstream model and tool calls.
func ContextWithCaller(ctx context.Context, caller Caller) context.Context {
	if caller == (Caller{}) {
		return ctx
	}
	return context.WithValue(ctx, callerKey{}, caller)
}

// CallerFromContext returns the caller stored in ctx, if any.
func CallerFromContext(ctx context.Context) Caller {
	if ctx == nil {
		return Caller{}
	}
	caller, _ := ctx.Value(callerKey{}).(Caller)
	return caller
}
