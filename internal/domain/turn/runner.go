package turn

import (
	"context"
	"errors"
	"io"
	"strings"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	turnerrors "taskdeck/agent-api/internal/domain/errors"
	"taskdeck/agent-api/internal/domain/llm"
	"taskdeck/agent-api/internal/domain/retry"
	"taskdeck/agent-api/internal/domain/tool"
)

// MaxSteps is the hard cap on model calls per turn.
const MaxSteps = 20

var tracer = otel.Tracer("taskdeck/agent-api/turn")

// runParams describes one pass through the step loop.
type runParams struct {
	model    llm.Model
	messages []llm.ChatMessage
	tools    *tool.Set
	exec     tool.ExecContext
	sink     Sink
}

// runResult is what the step loop produced, even when it stopped early.
type runResult struct {
	text       string
	steps      int
	executions []tool.Execution
}

// Runner drives the model and tool step loop.
type Runner struct {
	provider   llm.Provider
	executor   *tool.Executor
	maxSteps   int
	openPolicy retry.Policy
	log        zerolog.Logger
}

// NewRunner creates a step loop runner. maxSteps outside (0, MaxSteps] falls back to MaxSteps.
func NewRunner(provider llm.Provider, executor *tool.Executor, maxSteps int, openPolicy retry.Policy, log zerolog.Logger) *Runner {
	if maxSteps <= 0 || maxSteps > MaxSteps {
		maxSteps = MaxSteps
	}
	if openPolicy.Retryable == nil {
		classifier := turnerrors.NewClassifier()
		openPolicy.Retryable = func(err error) bool {
			return classifier.Classify(err).IsRetryable()
		}
	}
	return &Runner{
		provider:   provider,
		executor:   executor,
		maxSteps:   maxSteps,
		openPolicy: openPolicy,
		log:        log.With().Str("component", "turn-runner").Logger(),
	}
}

// Run executes model steps until the model stops calling tools or the step cap is hit.
// Each step is one model call. Tool calls of a step run sequentially in the order the model emitted them.
func (r *Runner) Run(ctx context.Context, p runParams) (runResult, error) {
	var res runResult
	var text strings.Builder

	sink := p.sink
	if sink == nil {
		sink = discardSink{}
	}
	messages := append([]llm.ChatMessage(nil), p.messages...)
	definitions := p.tools.Definitions()

	for step := 1; step <= r.maxSteps; step++ {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		res.steps = step

		req := llm.ChatCompletionRequest{
			Model:    p.model.ID,
			Messages: messages,
			Tools:    definitions,
			Stream:   true,
		}
		if len(definitions) > 0 {
			req.ToolChoice = "auto"
		}

		assistant, err := r.step(ctx, step, req, sink)
		if err != nil {
			return res, err
		}
		text.WriteString(assistant.Content)
		messages = append(messages, assistant)

		if len(assistant.ToolCalls) == 0 {
			break
		}

		for _, call := range assistant.ToolCalls {
			if err := ctx.Err(); err != nil {
				return res, err
			}
			execution, err := r.executeTool(ctx, p, call, len(res.executions)+1)
			if err != nil {
				return res, err
			}
			res.executions = append(res.executions, execution)
			messages = append(messages, llm.ChatMessage{
				Role:       llm.RoleTool,
				ToolCallID: call.ID,
				Name:       call.Function.Name,
				Content:    execution.Result.ModelContent(),
			})
		}

		if step == r.maxSteps {
			r.log.Warn().
				Str("conversation_id", p.exec.ConversationID).
				Int("max_steps", r.maxSteps).
				Msg("step cap reached with pending tool results")
		}
	}

	res.text = text.String()
	return res, nil
}

func (r *Runner) step(ctx context.Context, step int, req llm.ChatCompletionRequest, sink Sink) (llm.ChatMessage, error) {
	ctx, span := tracer.Start(ctx, "turn.step")
	defer span.End()
	span.SetAttributes(
		attribute.Int("turn.step", step),
		attribute.String("llm.model", req.Model),
		attribute.Int("llm.tools", len(req.Tools)),
	)

	stream, err := retry.ExecuteWithResult(ctx, r.openPolicy, func(ctx context.Context, attempt int) (llm.Stream, error) {
		if attempt > 0 {
			r.log.Debug().Int("attempt", attempt).Str("model", req.Model).Msg("retrying model stream")
		}
		return r.provider.CreateChatCompletionStream(ctx, req)
	})
	if err != nil {
		return llm.ChatMessage{}, r.streamError(ctx, span, "model.stream", err)
	}
	defer stream.Close()

	acc := newStreamAccumulator(step)
	for {
		delta, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return llm.ChatMessage{}, r.streamError(ctx, span, "model.recv", err)
		}
		acc.Apply(delta)
		if chunk := delta.TextDelta(); chunk != "" {
			if err := sink.WriteText(chunk); err != nil {
				span.SetStatus(codes.Error, "sink closed")
				return llm.ChatMessage{}, turnerrors.Cancellation("stream.write", err)
			}
		}
	}

	msg := acc.Message()
	span.SetAttributes(
		attribute.Int("llm.tool_calls", len(msg.ToolCalls)),
		attribute.String("llm.finish_reason", acc.FinishReason()),
	)
	return msg, nil
}

func (r *Runner) streamError(ctx context.Context, span trace.Span, op string, err error) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}
	span.RecordError(err)
	span.SetStatus(codes.Error, op)
	var te *turnerrors.TurnError
	if errors.As(err, &te) {
		return err
	}
	return turnerrors.Upstream(op, err)
}

func (r *Runner) executeTool(ctx context.Context, p runParams, call llm.ToolCall, order int) (tool.Execution, error) {
	ctx, span := tracer.Start(ctx, "turn.tool")
	defer span.End()
	span.SetAttributes(
		attribute.String("tool.name", call.Function.Name),
		attribute.String("tool.call_id", call.ID),
		attribute.Int("tool.order", order),
	)

	execution, err := r.executor.Execute(ctx, p.tools, tool.ParseToolCall(call), p.exec, order)
	if err != nil {
		return execution, err
	}
	span.SetAttributes(attribute.String("tool.status", string(execution.Status)))
	if execution.Status == tool.ExecutionStatusFailed {
		span.SetStatus(codes.Error, execution.ErrorMessage)
	}
	return execution, nil
}
