package middlewares

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"taskdeck/agent-api/internal/interfaces/httpserver/responses"
)

const requestIDHeader = "X-Request-Id"

// RequestID injects an X-Request-Id header when missing and makes it available via gin context.
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		requestID := c.GetHeader(requestIDHeader)
		if requestID == "" {
			requestID = uuid.NewString()
			c.Request.Header.Set(requestIDHeader, requestID)
		}
		c.Writer.Header().Set(requestIDHeader, requestID)
		c.Set(responses.RequestIDKey, requestID)
		c.Next()
	}
}
