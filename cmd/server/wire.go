//go:build wireinject

package main

import (
	"context"

	"github.com/google/wire"

	"taskdeck/agent-api/internal/config"
	"taskdeck/agent-api/internal/domain/turn"
	"taskdeck/agent-api/internal/infrastructure/auth"
	"taskdeck/agent-api/internal/infrastructure/logger"
	conversationrepo "taskdeck/agent-api/internal/infrastructure/repository/conversation"
	"taskdeck/agent-api/internal/interfaces/httpserver"
	"taskdeck/agent-api/internal/interfaces/httpserver/handlers"
)

var turnSet = wire.NewSet(
	newAgentsConfig,
	newDeduplicator,
	conversationrepo.NewRepository,
	newLLMClient,
	newModelGateway,
	newToolRegistry,
	newProfiles,
	newWebSearchSource,
	newRunner,
	newSummaryQueue,
	newOrchestrator,
	wire.Bind(new(handlers.TurnService), new(*turn.Orchestrator)),
	newWorkerPool,
)

// BuildApplication describes the same graph main assembles by hand.
func BuildApplication(ctx context.Context) (*Application, error) {
	wire.Build(
		config.Load,
		logger.New,
		newDatabaseConfig,
		newGormDB,
		auth.NewValidator,
		turnSet,
		handlers.NewProvider,
		newReadinessCheck,
		httpserver.New,
		NewApplication,
	)
	return nil, nil
}
