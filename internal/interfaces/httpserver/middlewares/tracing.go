package middlewares

import (
	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"

	"taskdeck/agent-api/internal/infrastructure/observability"
	"taskdeck/agent-api/internal/interfaces/httpserver/responses"
)

// TracingMiddleware creates a server span for each HTTP request.
func TracingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := otel.GetTextMapPropagator().Extract(c.Request.Context(), propagation.HeaderCarrier(c.Request.Header))

		route := c.FullPath()
		if route == "" {
			route = c.Request.URL.Path
		}
		ctx, span := observability.StartRequestSpan(ctx, c.Request.Method, route)
		defer span.End()
		c.Request = c.Request.WithContext(ctx)

		if requestID := c.GetString(responses.RequestIDKey); requestID != "" {
			span.SetAttributes(attribute.String("request.id", requestID))
		}

		c.Next()

		span.SetAttributes(observability.RequestAttributes(route, c.Param("conversationId"), c.Param("agent"))...)
		status := c.Writer.Status()
		span.SetAttributes(attribute.Int("http.status_code", status))
		if status >= 500 {
			span.SetStatus(codes.Error, c.Errors.String())
			if len(c.Errors) > 0 {
				span.RecordError(c.Errors.Last())
			}
		}
	}
}
