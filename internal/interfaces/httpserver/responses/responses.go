package responses

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"taskdeck/agent-api/internal/domain/conversation"
	turnerrors "taskdeck/agent-api/internal/domain/errors"
)

// ErrorResponse is the JSON error body of auxiliary routes.
type ErrorResponse struct {
	Error     string `json:"error"`
	Kind      string `json:"kind,omitempty"`
	RequestID string `json:"request_id,omitempty"`
}

// StatusFor maps a turn error kind to its HTTP status.
func StatusFor(err error) int {
	switch turnerrors.KindOf(err) {
	case turnerrors.KindInvalidRequest:
		return http.StatusBadRequest
	case turnerrors.KindCancellation:
		// nginx convention for a client that went away
		return 499
	default:
		return http.StatusInternalServerError
	}
}

// Message returns the client-facing text of err.
func Message(err error) string {
	var te *turnerrors.TurnError
	if errors.As(err, &te) && te.Kind == turnerrors.KindInvalidRequest {
		return te.Message
	}
	return err.Error()
}

// HandleError writes err as a JSON error body.
func HandleError(c *gin.Context, err error) {
	c.AbortWithStatusJSON(StatusFor(err), ErrorResponse{
		Error:     Message(err),
		Kind:      string(turnerrors.KindOf(err)),
		RequestID: c.GetString(RequestIDKey),
	})
}

// HandlePlainError writes err as a plain-text body, as the chat route does.
func HandlePlainError(c *gin.Context, err error) {
	c.Header("Content-Type", "text/plain; charset=utf-8")
	c.AbortWithStatus(StatusFor(err))
	_, _ = c.Writer.WriteString(Message(err))
}

// RequestIDKey is the gin context key of the request id.
const RequestIDKey = "request_id"

// HistoryResponse is returned by GET /v1/agents/{agent}/chat.
type HistoryResponse struct {
	Conversation *conversation.Conversation `json:"conversation"`
	Messages     []conversation.Message     `json:"messages"`
}

// FromHistory maps the domain history, never returning a nil message list.
func FromHistory(h *conversation.History) HistoryResponse {
	if h == nil {
		return HistoryResponse{Messages: []conversation.Message{}}
	}
	messages := h.Messages
	if messages == nil {
		messages = []conversation.Message{}
	}
	return HistoryResponse{Conversation: h.Conversation, Messages: messages}
}

// CancelResponse is returned by the cancel route.
type CancelResponse struct {
	Cancelled bool `json:"cancelled"`
}
