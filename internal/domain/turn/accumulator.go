package turn

import (
	"fmt"
	"sort"
	"strings"

	"taskdeck/agent-api/internal/domain/llm"
)

// streamAccumulator rebuilds the assistant message of one model step from streamed chunks.
// Only the first choice is used.
type streamAccumulator struct {
	step         int
	role         string
	finishReason string
	content      strings.Builder
	toolCalls    map[int]*toolCallAccumulator
}

type toolCallAccumulator struct {
	call llm.ToolCall
	args strings.Builder
}

func newStreamAccumulator(step int) *streamAccumulator {
	return &streamAccumulator{
		step:      step,
		role:      llm.RoleAssistant,
		toolCalls: make(map[int]*toolCallAccumulator),
	}
}

func (a *streamAccumulator) Apply(delta *llm.ChatCompletionDelta) {
	if delta == nil {
		return
	}
	for _, choice := range delta.Choices {
		if choice.Index != 0 {
			continue
		}
		if choice.Delta.Role != "" {
			a.role = choice.Delta.Role
		}
		a.content.WriteString(choice.Delta.Content)
		for pos, call := range choice.Delta.ToolCalls {
			a.addOrUpdateToolCall(pos, call)
		}
		if choice.FinishReason != "" {
			a.finishReason = choice.FinishReason
		}
	}
}

// Fragments of one call share an index; the id only arrives on the first fragment.
func (a *streamAccumulator) addOrUpdateToolCall(pos int, call llm.ToolCall) {
	index := pos
	if call.Index != nil {
		index = *call.Index
	}

	builder, ok := a.toolCalls[index]
	if !ok {
		builder = &toolCallAccumulator{}
		builder.call.Type = "function"
		a.toolCalls[index] = builder
	}
	if call.ID != "" {
		builder.call.ID = call.ID
	}
	if call.Type != "" {
		builder.call.Type = call.Type
	}
	if call.Function.Name != "" {
		builder.call.Function.Name = call.Function.Name
	}
	builder.args.WriteString(call.Function.Arguments)
}

// Message returns the assistant message produced so far.
func (a *streamAccumulator) Message() llm.ChatMessage {
	msg := llm.ChatMessage{
		Role:    a.role,
		Content: a.content.String(),
	}

	indexes := make([]int, 0, len(a.toolCalls))
	for idx := range a.toolCalls {
		indexes = append(indexes, idx)
	}
	sort.Ints(indexes)

	for _, idx := range indexes {
		builder := a.toolCalls[idx]
		call := builder.call
		call.Function.Arguments = builder.args.String()
		if call.ID == "" {
			call.ID = fmt.Sprintf("call_%d_%d", a.step, idx)
		}
		if call.Function.Name == "" {
			continue
		}
		msg.ToolCalls = append(msg.ToolCalls, call)
	}
	return msg
}

func (a *streamAccumulator) FinishReason() string {
	return a.finishReason
}
