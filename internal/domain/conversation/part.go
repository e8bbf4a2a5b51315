package conversation

import (
	"encoding/json"
	"fmt"
	"strings"
)

const (
	partTypeText = "text"
	partTypeFile = "file"
)

// FilePlaceholder replaces file content in the persisted log.
const FilePlaceholder = "[Attached file]"

// Part is one element of a message. The set of implementations is closed.
type Part interface {
	partType() string
}

// TextPart is plain message text.
type TextPart struct {
	Text string
}

// FilePart references an uploaded or inline file.
type FilePart struct {
	MediaType string
	// URL is a data: URL, an absolute URL, or an upload reference.
	URL string
}

func (TextPart) partType() string { return partTypeText }
func (FilePart) partType() string { return partTypeFile }

// Parts is an ordered list of message parts with a tagged JSON encoding.
type Parts []Part

type wirePart struct {
	Type      string  `json:"type"`
	Text      *string `json:"text,omitempty"`
	MediaType string  `json:"mediaType,omitempty"`
	URL       string  `json:"url,omitempty"`
}

// MarshalJSON encodes parts as [{type:"text",text} | {type:"file",mediaType,url}].
func (p Parts) MarshalJSON() ([]byte, error) {
	out := make([]wirePart, 0, len(p))
	for _, part := range p {
		switch v := part.(type) {
		case TextPart:
			text := v.Text
			out = append(out, wirePart{Type: partTypeText, Text: &text})
		case FilePart:
			out = append(out, wirePart{Type: partTypeFile, MediaType: v.MediaType, URL: v.URL})
		default:
			return nil, fmt.Errorf("unsupported part %T", part)
		}
	}
	return json.Marshal(out)
}

// UnmarshalJSON decodes the tagged part encoding, rejecting unknown types.
func (p *Parts) UnmarshalJSON(data []byte) error {
	var raw []wirePart
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	parts := make(Parts, 0, len(raw))
	for i, w := range raw {
		switch w.Type {
		case partTypeText:
			if w.Text == nil {
				return fmt.Errorf("part %d: text part without text", i)
			}
			parts = append(parts, TextPart{Text: *w.Text})
		case partTypeFile:
			if strings.TrimSpace(w.URL) == "" {
				return fmt.Errorf("part %d: file part without url", i)
			}
			parts = append(parts, FilePart{MediaType: w.MediaType, URL: w.URL})
		default:
			return fmt.Errorf("part %d: unknown part type %q", i, w.Type)
		}
	}
	*p = parts
	return nil
}

// Text joins the text parts with newlines.
func (p Parts) Text() string {
	var sb strings.Builder
	for _, part := range p {
		t, ok := part.(TextPart)
		if !ok || t.Text == "" {
			continue
		}
		if sb.Len() > 0 {
			sb.WriteString("\n")
		}
		sb.WriteString(t.Text)
	}
	return sb.String()
}

// TextOnly keeps the non-empty text parts, substituting FilePlaceholder when none remain.
func (p Parts) TextOnly() Parts {
	out := make(Parts, 0, len(p))
	for _, part := range p {
		if t, ok := part.(TextPart); ok && strings.TrimSpace(t.Text) != "" {
			out = append(out, t)
		}
	}
	if len(out) == 0 {
		out = append(out, TextPart{Text: FilePlaceholder})
	}
	return out
}

// TextParts builds a single text part list.
func TextParts(text string) Parts {
	return Parts{TextPart{Text: text}}
}
