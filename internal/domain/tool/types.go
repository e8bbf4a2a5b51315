package tool

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"taskdeck/agent-api/internal/domain/llm"
)

// ProjectIDArg is the argument name tools use for the bound project.
const ProjectIDArg = "project_id"

// ExecContext is the per-invocation context handed to every tool.
// AuthHeader is the caller's forwarded Authorization header; it is never a model-visible argument.
type ExecContext struct {
	AuthHeader     string
	ConversationID string
	ProjectID      *int64
	AgentType      string
}

// Tool is a capability the model may invoke by name.
type Tool interface {
	Name() string
	Description() string
	// Schema is the JSON schema of the arguments object.
	Schema() map[string]any
	Invoke(ctx context.Context, args map[string]any, exec ExecContext) (*Result, error)
}

// Source supplies tools discovered at runtime, such as a remote MCP server.
type Source interface {
	ListTools(ctx context.Context) ([]Tool, error)
}

// Result is the outcome reported back to the model.
type Result struct {
	Text    string `json:"text"`
	IsError bool   `json:"is_error"`
	Error   string `json:"error,omitempty"`
}

// ErrorResult builds a failed result carrying message.
func ErrorResult(message string) *Result {
	return &Result{IsError: true, Error: message}
}

// JSONResult marshals v into a successful result.
func JSONResult(v any) (*Result, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode tool result: %w", err)
	}
	return &Result{Text: string(raw)}, nil
}

// ModelContent renders the result as the content of a tool message.
func (r *Result) ModelContent() string {
	if r == nil {
		return `{"error":"tool produced no result"}`
	}
	if r.IsError {
		raw, _ := json.Marshal(map[string]string{"error": firstNonEmpty(r.Error, "tool execution failed")})
		return string(raw)
	}
	if r.Text == "" {
		return "[tool execution completed]"
	}
	return r.Text
}

// ExecutionStatus is the outcome of one tool execution.
type ExecutionStatus string

const (
	ExecutionStatusCompleted ExecutionStatus = "completed"
	ExecutionStatusFailed    ExecutionStatus = "failed"
)

// Call encapsulates one tool call requested by the model.
type Call struct {
	ID        string         `json:"id"`
	Name      string         `json:"name"`
	Arguments map[string]any `json:"arguments"`
	// RawArguments is kept when the arguments could not be decoded.
	RawArguments string `json:"-"`
	DecodeError  error  `json:"-"`
}

// Execution records a finished tool call.
type Execution struct {
	CallID         string          `json:"call_id"`
	ToolName       string          `json:"tool_name"`
	Arguments      map[string]any  `json:"arguments"`
	Result         *Result         `json:"result,omitempty"`
	Status         ExecutionStatus `json:"status"`
	ErrorMessage   string          `json:"error_message,omitempty"`
	ExecutionOrder int             `json:"execution_order"`
	Duration       time.Duration   `json:"duration"`
}

// ParseToolCall converts a model tool call into a Call. Malformed arguments are
// recorded on the Call rather than returned, so the failure can be reported to the model.
func ParseToolCall(call llm.ToolCall) Call {
	parsed := Call{
		ID:           call.ID,
		Name:         call.Function.Name,
		RawArguments: call.Function.Arguments,
	}
	if call.Function.Arguments == "" {
		parsed.Arguments = map[string]any{}
		return parsed
	}
	var args map[string]any
	if err := json.Unmarshal([]byte(call.Function.Arguments), &args); err != nil {
		parsed.DecodeError = fmt.Errorf("invalid JSON arguments: %w", err)
		return parsed
	}
	if args == nil {
		args = map[string]any{}
	}
	parsed.Arguments = args
	return parsed
}

// Definition converts a tool into the model-facing definition.
func Definition(t Tool) llm.ToolDefinition {
	return llm.ToolDefinition{
		Type: "function",
		Function: llm.ToolFunctionSchema{
			Name:        t.Name(),
			Description: t.Description(),
			Parameters:  t.Schema(),
		},
	}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
