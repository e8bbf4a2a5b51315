package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"

	"taskdeck/agent-api/internal/config"
	"taskdeck/agent-api/internal/infrastructure/auth"
	"taskdeck/agent-api/internal/infrastructure/logger"
	"taskdeck/agent-api/internal/infrastructure/observability"
	conversationrepo "taskdeck/agent-api/internal/infrastructure/repository/conversation"
	"taskdeck/agent-api/internal/interfaces/httpserver"
	"taskdeck/agent-api/internal/interfaces/httpserver/handlers"
	"taskdeck/agent-api/internal/worker"
)

// Application runs the HTTP server and the background summary workers.
type Application struct {
	httpServer *httpserver.HTTPServer
	workers    *worker.Pool
	log        zerolog.Logger
}

func NewApplication(httpServer *httpserver.HTTPServer, workers *worker.Pool, log zerolog.Logger) *Application {
	return &Application{
		httpServer: httpServer,
		workers:    workers,
		log:        log,
	}
}

func (a *Application) Start(ctx context.Context) error {
	if a.workers != nil {
		a.workers.Start(ctx)
		defer a.workers.Stop()
	}
	return a.httpServer.Run(ctx)
}

func main() {
	loadEnvFiles()

	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	log := logger.New(cfg)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTelemetry, err := observability.Setup(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("initialize observability")
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		if err := shutdownTelemetry(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("shutdown telemetry")
		}
	}()

	agents, err := newAgentsConfig(cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("load agents config")
	}

	db, err := newGormDB(ctx, newDatabaseConfig(cfg), log)
	if err != nil {
		log.Fatal().Err(err).Msg("initialize database")
	}

	authValidator, err := auth.NewValidator(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("initialize auth validator")
	}

	deduplicator := newDeduplicator()
	store := conversationrepo.NewRepository(db)
	llmClient := newLLMClient(cfg, log)
	gateway := newModelGateway(cfg, agents, deduplicator, log)

	registry, err := newToolRegistry(cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("build tool registry")
	}
	profiles, err := newProfiles(agents, registry)
	if err != nil {
		log.Fatal().Err(err).Msg("build agent profiles")
	}

	summaryQueue := newSummaryQueue(cfg, db, log)
	orchestrator := newOrchestrator(
		cfg,
		agents,
		store,
		gateway,
		newRunner(cfg, llmClient, log),
		profiles,
		deduplicator,
		newWebSearchSource(cfg, agents, log),
		summaryQueue,
		log,
	)
	workerPool := newWorkerPool(cfg, summaryQueue, store, gateway, llmClient, log)

	httpServer := httpserver.New(cfg, log, handlers.NewProvider(orchestrator, log), authValidator, newReadinessCheck(db))
	app := NewApplication(httpServer, workerPool, log)

	if err := app.Start(ctx); err != nil {
		log.Fatal().Err(err).Msg("application stopped with error")
	}

	log.Info().Msg("application exited cleanly")
}

func loadEnvFiles() {
	paths := []string{".env", "../.env"}
	for _, path := range paths {
		if _, err := os.Stat(path); err == nil {
			if err := godotenv.Overload(path); err != nil {
				fmt.Fprintf(os.Stderr, "warning: failed to load %s: %v\n", path, err)
			}
		}
	}
}
