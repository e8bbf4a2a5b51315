package middlewares

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"taskdeck/agent-api/internal/infrastructure/observability"
	"taskdeck/agent-api/internal/interfaces/httpserver/responses"
)

// LoggingMiddleware logs HTTP requests with OpenTelemetry trace context.
func LoggingMiddleware(logger zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path

		c.Next()

		statusCode := c.Writer.Status()
		logEvent := logger.Info()
		if statusCode >= 500 {
			logEvent = logger.Error()
		} else if statusCode >= 400 {
			logEvent = logger.Warn()
		}

		if traceID, spanID := observability.TraceIDs(c.Request.Context()); traceID != "" {
			logEvent = logEvent.Str("trace_id", traceID).Str("span_id", spanID)
		}
		if requestID := c.GetString(responses.RequestIDKey); requestID != "" {
			logEvent = logEvent.Str("request_id", requestID)
		}

		logEvent.
			Str("client_ip", c.ClientIP()).
			Str("method", c.Request.Method).
			Str("path", path).
			Int("status", statusCode).
			Int("bytes", c.Writer.Size()).
			Dur("latency", time.Since(start)).
			Msg(c.Errors.ByType(gin.ErrorTypePrivate).String())
	}
}
