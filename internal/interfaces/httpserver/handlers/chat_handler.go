package handlers

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"taskdeck/agent-api/internal/domain/conversation"
	turnerrors "taskdeck/agent-api/internal/domain/errors"
	"taskdeck/agent-api/internal/domain/llm"
	"taskdeck/agent-api/internal/domain/turn"
	"taskdeck/agent-api/internal/interfaces/httpserver/requests"
	"taskdeck/agent-api/internal/interfaces/httpserver/responses"
)

// TurnService is the part of the turn orchestrator used by the HTTP layer.
type TurnService interface {
	Execute(ctx context.Context, req turn.Request, sink turn.Sink) turn.Outcome
	History(ctx context.Context, agent conversation.AgentType, id string) (*conversation.History, error)
	Cancel(conversationID string) bool
}

// ChatHandler exposes the agent chat endpoints.
type ChatHandler struct {
	service TurnService
	log     zerolog.Logger
}

// NewChatHandler constructs the handler.
func NewChatHandler(service TurnService, log zerolog.Logger) *ChatHandler {
	return &ChatHandler{
		service: service,
		log:     log.With().Str("handler", "chat").Logger(),
	}
}

// Chat handles POST /v1/agents/:agent/chat
// @Summary Run one chat turn
// @Description Streams the assistant answer as plain text.
// @Tags Chat
// @Accept json
// @Produce plain
// @Param agent path string true "Agent type"
// @Success 200 {string} string "streamed assistant text"
// @Failure 400 {string} string
// @Failure 500 {string} string
// @Router /v1/agents/{agent}/chat [post]
func (h *ChatHandler) Chat(c *gin.Context) {
	agent, err := conversation.ParseAgentType(c.Param("agent"))
	if err != nil {
		responses.HandlePlainError(c, turnerrors.InvalidRequest(err.Error()))
		return
	}

	raw, err := c.GetRawData()
	if err != nil {
		responses.HandlePlainError(c, turnerrors.InvalidRequest("could not read request body"))
		return
	}
	body, err := requests.DecodeChatRequest(raw)
	if err != nil {
		responses.HandlePlainError(c, turnerrors.InvalidRequest(err.Error()))
		return
	}

	caller := llm.Caller{
		AuthHeader: strings.TrimSpace(c.GetHeader("Authorization")),
		RequestID:  c.GetString(responses.RequestIDKey),
	}
	req := body.ToTurn(agent, caller)

	writer := newTextStreamWriter(c)
	outcome := h.service.Execute(c.Request.Context(), req, writer)

	log := h.log.With().Str("agent", string(agent)).Str("request_id", caller.RequestID).Logger()
	switch o := outcome.(type) {
	case turn.Finished:
		writer.commit()
		log.Debug().Int("steps", o.Steps).Int("tool_calls", o.ToolCalls()).Str("model", o.Model).Msg("turn finished")
	case turn.Aborted:
		log.Info().Int("steps", o.Steps).Msg("turn aborted by caller")
	case turn.Failed:
		if !writer.started {
			if turnerrors.KindOf(o.Err) != turnerrors.KindInvalidRequest {
				log.Error().Err(o.Err).Msg("turn failed")
			}
			responses.HandlePlainError(c, o.Err)
			return
		}
		// headers are already sent; the truncated stream is all the client gets
		log.Error().Err(o.Err).Int("steps", o.Steps).Msg("turn failed mid-stream")
		_ = c.Error(o.Err)
	}
}

// History handles GET /v1/agents/:agent/chat?id=
// @Summary Get the conversation history
// @Tags Chat
// @Produce json
// @Param agent path string true "Agent type"
// @Param id query string true "Conversation ID"
// @Success 200 {object} responses.HistoryResponse
// @Failure 400 {object} responses.ErrorResponse
// @Router /v1/agents/{agent}/chat [get]
func (h *ChatHandler) History(c *gin.Context) {
	agent, err := conversation.ParseAgentType(c.Param("agent"))
	if err != nil {
		responses.HandleError(c, turnerrors.InvalidRequest(err.Error()))
		return
	}

	history, err := h.service.History(c.Request.Context(), agent, c.Query("id"))
	if err != nil {
		if turnerrors.KindOf(err) != turnerrors.KindInvalidRequest {
			h.log.Error().Err(err).Str("conversation_id", c.Query("id")).Msg("load history")
		}
		responses.HandleError(c, err)
		return
	}
	c.JSON(http.StatusOK, responses.FromHistory(history))
}

// Cancel handles POST /v1/agents/:agent/chat/:conversationId/cancel
// @Summary Cancel the running turn of a conversation
// @Tags Chat
// @Produce json
// @Param agent path string true "Agent type"
// @Param conversationId path string true "Conversation ID"
// @Success 200 {object} responses.CancelResponse
// @Router /v1/agents/{agent}/chat/{conversationId}/cancel [post]
func (h *ChatHandler) Cancel(c *gin.Context) {
	if _, err := conversation.ParseAgentType(c.Param("agent")); err != nil {
		responses.HandleError(c, turnerrors.InvalidRequest(err.Error()))
		return
	}
	id := strings.TrimSpace(c.Param("conversationId"))
	if id == "" {
		responses.HandleError(c, turnerrors.InvalidRequest("conversationId is required"))
		return
	}
	c.JSON(http.StatusOK, responses.CancelResponse{Cancelled: h.service.Cancel(id)})
}
