package v1

import (
	"github.com/gin-gonic/gin"

	"taskdeck/agent-api/internal/interfaces/httpserver/handlers"
)

func registerChatRoutes(router gin.IRoutes, handler *handlers.ChatHandler) {
	router.POST("/agents/:agent/chat", handler.Chat)
	router.GET("/agents/:agent/chat", handler.History)
	router.POST("/agents/:agent/chat/:conversationId/cancel", handler.Cancel)
}
