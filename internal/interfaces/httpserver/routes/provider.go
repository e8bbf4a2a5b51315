package routes

import (
	"github.com/gin-gonic/gin"

	"taskdeck/agent-api/internal/interfaces/httpserver/handlers"
	v1 "taskdeck/agent-api/internal/interfaces/httpserver/routes/v1"
)

// Provider coordinates all route registrations.
type Provider struct {
	V1 *v1.Routes
}

// NewProvider constructs the route provider.
func NewProvider(handlerProvider *handlers.Provider) *Provider {
	return &Provider{
		V1: v1.NewRoutes(handlerProvider),
	}
}

// Register attaches all available routes.
func (p *Provider) Register(router gin.IRouter) {
	p.V1.Register(router)
}
