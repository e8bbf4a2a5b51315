package tool

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
)

// Recorder observes finished tool executions.
type Recorder func(toolName string, status ExecutionStatus, duration time.Duration)

// Executor runs model-requested tool calls against a Set. Every failure mode
// (bad arguments, unknown tool, tool error, timeout) becomes an error Result;
// only caller cancellation is returned as an error.
type Executor struct {
	validator *Validator
	timeout   time.Duration
	recorder  Recorder
	log       zerolog.Logger
}

// NewExecutor creates an executor applying timeout to every call.
func NewExecutor(timeout time.Duration, recorder Recorder, log zerolog.Logger) *Executor {
	return &Executor{
		validator: NewValidator(),
		timeout:   timeout,
		recorder:  recorder,
		log:       log.With().Str("component", "tool-executor").Logger(),
	}
}

// Execute runs call and reports its outcome. order is the 1-based position of the call within the turn.
func (e *Executor) Execute(ctx context.Context, set *Set, call Call, exec ExecContext, order int) (Execution, error) {
	execution := Execution{
		CallID:         call.ID,
		ToolName:       call.Name,
		Arguments:      call.Arguments,
		ExecutionOrder: order,
	}
	start := time.Now()

	result, err := e.invoke(ctx, set, &call, exec)
	execution.Arguments = call.Arguments
	execution.Duration = time.Since(start)

	if err != nil && errors.Is(err, context.Canceled) && ctx.Err() != nil {
		return execution, ctx.Err()
	}

	switch {
	case err != nil:
		execution.Status = ExecutionStatusFailed
		execution.ErrorMessage = err.Error()
		execution.Result = ErrorResult(err.Error())
	case result == nil:
		execution.Status = ExecutionStatusCompleted
		execution.Result = &Result{}
	case result.IsError:
		execution.Status = ExecutionStatusFailed
		execution.ErrorMessage = result.Error
		execution.Result = result
	default:
		execution.Status = ExecutionStatusCompleted
		execution.Result = result
	}

	if execution.Status == ExecutionStatusFailed {
		e.log.Warn().
			Str("tool", call.Name).
			Str("call_id", call.ID).
			Str("error", execution.ErrorMessage).
			Msg("tool call failed")
	}
	if e.recorder != nil {
		e.recorder(call.Name, execution.Status, execution.Duration)
	}
	return execution, nil
}

func (e *Executor) invoke(ctx context.Context, set *Set, call *Call, exec ExecContext) (*Result, error) {
	if call.DecodeError != nil {
		return nil, call.DecodeError
	}
	t, ok := set.Lookup(call.Name)
	if !ok {
		return nil, fmt.Errorf("unknown tool %q", call.Name)
	}

	call.Arguments = injectProjectID(t, call.Arguments, exec.ProjectID)
	if err := e.validator.Validate(t, call.Arguments); err != nil {
		return nil, err
	}

	callCtx := ctx
	if e.timeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, e.timeout)
		defer cancel()
	}

	result, err := t.Invoke(callCtx, call.Arguments, exec)
	if err != nil && errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
		return nil, fmt.Errorf("tool %s timed out after %s", call.Name, e.timeout)
	}
	return result, err
}

func injectProjectID(t Tool, args map[string]any, projectID *int64) map[string]any {
	if projectID == nil || !DeclaresProperty(t.Schema(), ProjectIDArg) {
		return args
	}
	if v, ok := args[ProjectIDArg]; ok && v != nil {
		return args
	}
	out := make(map[string]any, len(args)+1)
	for k, v := range args {
		out[k] = v
	}
	out[ProjectIDArg] = *projectID
	return out
}
