package llmprovider

import (
	openai "github.com/sashabaranov/go-openai"

	"taskdeck/agent-api/internal/domain/llm"
)

func toOpenAIRequest(req llm.ChatCompletionRequest) openai.ChatCompletionRequest {
	out := openai.ChatCompletionRequest{
		Model:    req.Model,
		Messages: make([]openai.ChatCompletionMessage, 0, len(req.Messages)),
	}
	for _, msg := range req.Messages {
		out.Messages = append(out.Messages, toOpenAIMessage(msg))
	}
	for _, def := range req.Tools {
		out.Tools = append(out.Tools, openai.Tool{
			Type: openai.ToolTypeFunction,
			Function: &openai.FunctionDefinition{
				Name:        def.Function.Name,
				Description: def.Function.Description,
				Parameters:  def.Function.Parameters,
			},
		})
	}
	if req.ToolChoice != "" && len(out.Tools) > 0 {
		out.ToolChoice = req.ToolChoice
	}
	if req.Temperature != nil {
		out.Temperature = *req.Temperature
	}
	if req.MaxTokens != nil {
		out.MaxTokens = *req.MaxTokens
	}
	return out
}

func toOpenAIMessage(msg llm.ChatMessage) openai.ChatCompletionMessage {
	out := openai.ChatCompletionMessage{
		Role:       msg.Role,
		Name:       msg.Name,
		ToolCallID: msg.ToolCallID,
	}
	// go-openai rejects messages that set both Content and MultiContent.
	if len(msg.Parts) > 0 {
		for _, part := range msg.Parts {
			switch part.Type {
			case llm.PartTypeImageURL:
				out.MultiContent = append(out.MultiContent, openai.ChatMessagePart{
					Type:     openai.ChatMessagePartTypeImageURL,
					ImageURL: &openai.ChatMessageImageURL{URL: part.ImageURL, Detail: openai.ImageURLDetailAuto},
				})
			default:
				out.MultiContent = append(out.MultiContent, openai.ChatMessagePart{
					Type: openai.ChatMessagePartTypeText,
					Text: part.Text,
				})
			}
		}
	} else {
		out.Content = msg.Content
	}
	for _, call := range msg.ToolCalls {
		out.ToolCalls = append(out.ToolCalls, openai.ToolCall{
			ID:   call.ID,
			Type: openai.ToolTypeFunction,
			Function: openai.FunctionCall{
				Name:      call.Function.Name,
				Arguments: call.Function.Arguments,
			},
		})
	}
	return out
}

func fromOpenAIToolCalls(calls []openai.ToolCall) []llm.ToolCall {
	if len(calls) == 0 {
		return nil
	}
	out := make([]llm.ToolCall, 0, len(calls))
	for _, call := range calls {
		out = append(out, llm.ToolCall{
			Index: call.Index,
			ID:    call.ID,
			Type:  string(call.Type),
			Function: llm.ToolFunction{
				Name:      call.Function.Name,
				Arguments: call.Function.Arguments,
			},
		})
	}
	return out
}

func fromOpenAIChunk(chunk openai.ChatCompletionStreamResponse) *llm.ChatCompletionDelta {
	delta := &llm.ChatCompletionDelta{Choices: make([]llm.ChatCompletionDeltaChoice, 0, len(chunk.Choices))}
	for _, choice := range chunk.Choices {
		delta.Choices = append(delta.Choices, llm.ChatCompletionDeltaChoice{
			Index: choice.Index,
			Delta: llm.ChatMessage{
				Role:      choice.Delta.Role,
				Content:   choice.Delta.Content,
				ToolCalls: fromOpenAIToolCalls(choice.Delta.ToolCalls),
			},
			FinishReason: string(choice.FinishReason),
		})
	}
	return delta
}

func fromOpenAIResponse(resp openai.ChatCompletionResponse) *llm.ChatCompletionResponse {
	out := &llm.ChatCompletionResponse{
		ID:    resp.ID,
		Model: resp.Model,
		Usage: &llm.Usage{
			PromptTokens:     resp.Usage.PromptTokens,
			CompletionTokens: resp.Usage.CompletionTokens,
			TotalTokens:      resp.Usage.TotalTokens,
		},
	}
	for _, choice := range resp.Choices {
		out.Choices = append(out.Choices, llm.ChatCompletionChoice{
			Index: choice.Index,
			Message: llm.ChatMessage{
				Role:      choice.Message.Role,
				Content:   choice.Message.Content,
				ToolCalls: fromOpenAIToolCalls(choice.Message.ToolCalls),
			},
			FinishReason: string(choice.FinishReason),
		})
	}
	return out
}
