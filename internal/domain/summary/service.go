// Package summary generates short conversation summaries in the background.
package summary

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"taskdeck/agent-api/internal/domain/conversation"
	"taskdeck/agent-api/internal/domain/llm"
)

const (
	instruction = "Summarize the following project-management conversation in at most three sentences. " +
		"Mention the project entities that were created or changed. Reply with the summary only."
	maxSummaryTokens = 200
	// minMessages is the shortest log worth summarizing.
	minMessages = 2
)

// ErrNothingToSummarize is returned when the conversation is unseen or too short.
var ErrNothingToSummarize = errors.New("nothing to summarize")

// Service produces and stores conversation summaries.
type Service struct {
	store         conversation.Store
	models        llm.ModelGateway
	provider      llm.Provider
	counter       llm.TokenCounter
	contextLength int
	log           zerolog.Logger
}

// NewService creates a summary service.
func NewService(store conversation.Store, models llm.ModelGateway, provider llm.Provider, counter llm.TokenCounter, contextLength int, log zerolog.Logger) *Service {
	if counter == nil {
		counter = llm.EstimateCounter{}
	}
	return &Service{
		store:         store,
		models:        models,
		provider:      provider,
		counter:       counter,
		contextLength: contextLength,
		log:           log.With().Str("component", "summary-service").Logger(),
	}
}

// Summarize regenerates the summary of conversationID.
func (s *Service) Summarize(ctx context.Context, conversationID string) error {
	history, err := s.store.GetHistory(ctx, conversationID)
	if err != nil {
		return fmt.Errorf("load history: %w", err)
	}
	if history.Conversation == nil || len(history.Messages) < minMessages {
		return ErrNothingToSummarize
	}

	model, err := s.models.SelectModel(ctx, "", llm.UsageSummary)
	if err != nil {
		return fmt.Errorf("select summary model: %w", err)
	}

	messages := []llm.ChatMessage{{Role: llm.RoleSystem, Content: instruction}}
	messages = append(messages, llm.ChatMessage{Role: llm.RoleUser, Content: transcript(history.Messages)})
	contextLength := model.ContextLength
	if contextLength <= 0 {
		contextLength = s.contextLength
	}
	trimmed := llm.TrimMessagesToFitContext(messages, contextLength, s.counter)

	maxTokens := maxSummaryTokens
	resp, err := s.provider.CreateChatCompletion(ctx, llm.ChatCompletionRequest{
		Model:     model.ID,
		Messages:  trimmed.Messages,
		MaxTokens: &maxTokens,
	})
	if err != nil {
		return fmt.Errorf("generate summary: %w", err)
	}
	if len(resp.Choices) == 0 {
		return errors.New("generate summary: empty response")
	}
	text := strings.TrimSpace(resp.Choices[0].Message.Text())
	if text == "" {
		return errors.New("generate summary: blank text")
	}

	if err := s.store.SetSummary(ctx, conversationID, text); err != nil {
		return fmt.Errorf("store summary: %w", err)
	}
	s.log.Debug().Str("conversation_id", conversationID).Str("model", model.ID).Int("messages", len(history.Messages)).Msg("summary updated")
	return nil
}

// transcript renders the message log as "role: text" lines, newest last.
func transcript(messages []conversation.Message) string {
	var sb strings.Builder
	for _, msg := range messages {
		text := strings.TrimSpace(msg.Text())
		if text == "" {
			continue
		}
		sb.WriteString(string(msg.Role))
		sb.WriteString(": ")
		sb.WriteString(text)
		sb.WriteString("\n")
	}
	return strings.TrimRight(sb.String(), "\n")
}
