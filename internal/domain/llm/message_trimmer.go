package llm

import "unicode/utf8"

const (
	// DefaultContextLength is used when the model context length is unknown.
	DefaultContextLength = 128000

	// TokenEstimateRatio estimates ~4 characters per token.
	TokenEstimateRatio = 4

	// SafetyMarginRatio reserves space for the response.
	SafetyMarginRatio = 0.80

	messageOverheadTokens  = 10
	toolCallOverheadTokens = 20
	imagePartTokens        = 85
)

// TokenCounter counts the tokens of a piece of text.
type TokenCounter interface {
	CountTokens(text string) int
}

// EstimateCounter approximates token counts as characters / 4.
type EstimateCounter struct{}

// CountTokens implements TokenCounter.
func (EstimateCounter) CountTokens(text string) int {
	return utf8.RuneCountInString(text) / TokenEstimateRatio
}

// CountMessageTokens estimates the prompt tokens used by a single message.
func CountMessageTokens(counter TokenCounter, msg ChatMessage) int {
	if counter == nil {
		counter = EstimateCounter{}
	}
	total := messageOverheadTokens + counter.CountTokens(msg.Content)
	for _, part := range msg.Parts {
		switch part.Type {
		case PartTypeText:
			total += counter.CountTokens(part.Text)
		case PartTypeImageURL:
			total += imagePartTokens
		}
	}
	for _, tc := range msg.ToolCalls {
		total += toolCallOverheadTokens
		total += counter.CountTokens(tc.Function.Name)
		total += counter.CountTokens(tc.Function.Arguments)
	}
	return total
}

// CountMessagesTokens estimates the prompt tokens used by all messages.
func CountMessagesTokens(counter TokenCounter, messages []ChatMessage) int {
	total := 0
	for _, msg := range messages {
		total += CountMessageTokens(counter, msg)
	}
	return total
}

// TrimMessagesResult contains the result of trimming messages.
type TrimMessagesResult struct {
	Messages        []ChatMessage
	TrimmedCount    int
	EstimatedTokens int
}

// TrimMessagesToFitContext drops the oldest history until the messages fit the context window.
// Removal order: tool results, assistant messages with tool calls, then the oldest
// remaining message. System messages and the final message are never removed.
func TrimMessagesToFitContext(messages []ChatMessage, contextLength int, counter TokenCounter) TrimMessagesResult {
	if contextLength <= 0 {
		contextLength = DefaultContextLength
	}
	maxTokens := int(float64(contextLength) * SafetyMarginRatio)

	perMessage := make([]int, len(messages))
	current := 0
	for i, msg := range messages {
		perMessage[i] = CountMessageTokens(counter, msg)
		current += perMessage[i]
	}
	if current <= maxTokens {
		return TrimMessagesResult{Messages: messages, EstimatedTokens: current}
	}

	result := make([]ChatMessage, len(messages))
	copy(result, messages)
	trimmed := 0

	for current > maxTokens {
		idx := pickRemovable(result)
		if idx == -1 {
			break
		}
		current -= perMessage[idx]
		result = append(result[:idx], result[idx+1:]...)
		perMessage = append(perMessage[:idx], perMessage[idx+1:]...)
		trimmed++
	}

	return TrimMessagesResult{
		Messages:        result,
		TrimmedCount:    trimmed,
		EstimatedTokens: current,
	}
}

func pickRemovable(messages []ChatMessage) int {
	last := len(messages) - 1
	predicates := []func(ChatMessage) bool{
		func(m ChatMessage) bool { return m.Role == RoleTool },
		func(m ChatMessage) bool { return m.Role == RoleAssistant && len(m.ToolCalls) > 0 },
		func(m ChatMessage) bool { return m.Role != RoleSystem },
	}
	for _, match := range predicates {
		for i := 0; i < last; i++ {
			if match(messages[i]) {
				return i
			}
		}
	}
	return -1
}
