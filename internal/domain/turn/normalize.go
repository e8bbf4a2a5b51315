package turn

import (
	"context"
	"fmt"
	"strings"

	"taskdeck/agent-api/internal/domain/conversation"
	"taskdeck/agent-api/internal/domain/dedup"
	"taskdeck/agent-api/internal/domain/llm"
	"taskdeck/agent-api/internal/domain/upload"
)

// historyMessages projects the persisted log into model messages.
func historyMessages(messages []conversation.Message) []llm.ChatMessage {
	out := make([]llm.ChatMessage, 0, len(messages))
	for _, msg := range messages {
		text := msg.Text()
		if strings.TrimSpace(text) == "" {
			continue
		}
		out = append(out, llm.ChatMessage{
			Role:    string(msg.Role),
			Content: text,
		})
	}
	return out
}

// partsNormalizer turns inbound parts into model content, resolving file parts inline.
type partsNormalizer struct {
	uploads upload.Resolver
	dedup   *dedup.Deduplicator
}

func (n partsNormalizer) message(ctx context.Context, role conversation.Role, parts conversation.Parts) (llm.ChatMessage, error) {
	msg := llm.ChatMessage{Role: string(role)}
	hasImage := false

	for _, part := range parts {
		switch p := part.(type) {
		case conversation.TextPart:
			if p.Text == "" {
				continue
			}
			msg.Parts = append(msg.Parts, llm.ContentPart{Type: llm.PartTypeText, Text: p.Text})
		case conversation.FilePart:
			contents, err := n.resolve(ctx, p)
			if err != nil {
				if ctx.Err() != nil {
					return llm.ChatMessage{}, ctx.Err()
				}
				msg.Parts = append(msg.Parts, llm.ContentPart{Type: llm.PartTypeText, Text: unreadableFileNote(p)})
				continue
			}
			for _, c := range contents {
				if c.IsImage() {
					hasImage = true
					msg.Parts = append(msg.Parts, llm.ContentPart{Type: llm.PartTypeImageURL, ImageURL: c.DataURL})
					continue
				}
				msg.Parts = append(msg.Parts, llm.ContentPart{Type: llm.PartTypeText, Text: c.Text})
			}
		}
	}

	// Plain text goes out as a string so text-only models accept it.
	if !hasImage {
		msg.Content = msg.Text()
		msg.Parts = nil
	}
	return msg, nil
}

func (n partsNormalizer) resolve(ctx context.Context, file conversation.FilePart) ([]upload.Content, error) {
	if n.uploads == nil {
		if isImageDataURL(file) {
			return []upload.Content{{MediaType: file.MediaType, DataURL: file.URL}}, nil
		}
		return nil, fmt.Errorf("no upload resolver configured")
	}
	contents, _, err := dedup.Do(ctx, n.dedup, "upload:"+file.URL, func(ctx context.Context) ([]upload.Content, error) {
		return n.uploads.Resolve(ctx, file.MediaType, file.URL)
	})
	return contents, err
}

func isImageDataURL(file conversation.FilePart) bool {
	return strings.HasPrefix(file.URL, "data:image/") ||
		(strings.HasPrefix(file.URL, "data:") && strings.HasPrefix(file.MediaType, "image/"))
}

func unreadableFileNote(file conversation.FilePart) string {
	if file.MediaType == "" {
		return "[Attached file could not be loaded]"
	}
	return fmt.Sprintf("[Attached %s file could not be loaded]", file.MediaType)
}
