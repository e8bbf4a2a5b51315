package main

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"taskdeck/agent-api/internal/config"
	"taskdeck/agent-api/internal/domain/conversation"
	"taskdeck/agent-api/internal/domain/dedup"
	"taskdeck/agent-api/internal/domain/retry"
	"taskdeck/agent-api/internal/domain/summary"
	"taskdeck/agent-api/internal/domain/tool"
	"taskdeck/agent-api/internal/domain/turn"
	"taskdeck/agent-api/internal/infrastructure/database"
	"taskdeck/agent-api/internal/infrastructure/llmprovider"
	"taskdeck/agent-api/internal/infrastructure/mcp"
	"taskdeck/agent-api/internal/infrastructure/mediaresolver"
	"taskdeck/agent-api/internal/infrastructure/metrics"
	"taskdeck/agent-api/internal/infrastructure/pmtools"
	"taskdeck/agent-api/internal/infrastructure/queue"
	conversationrepo "taskdeck/agent-api/internal/infrastructure/repository/conversation"
	"taskdeck/agent-api/internal/infrastructure/tokenizer"
	"taskdeck/agent-api/internal/interfaces/httpserver"
	"taskdeck/agent-api/internal/worker"
)

func newAgentsConfig(cfg *config.Config) (*config.AgentsConfig, error) {
	return config.LoadAgents(cfg.AgentsConfigPath)
}

func newDatabaseConfig(cfg *config.Config) database.Config {
	return database.Config{
		Driver:          cfg.DatabaseDriver,
		DSN:             cfg.DatabaseURL,
		MaxIdleConns:    cfg.DBMaxIdleConns,
		MaxOpenConns:    cfg.DBMaxOpenConns,
		ConnMaxLifetime: cfg.DBConnLifetime,
		LogLevel:        gormlogger.Warn,
	}
}

func newGormDB(ctx context.Context, cfg database.Config, log zerolog.Logger) (*gorm.DB, error) {
	db, err := database.Connect(cfg)
	if err != nil {
		return nil, err
	}
	if err := database.AutoMigrate(ctx, db, log); err != nil {
		return nil, err
	}
	return db, nil
}

func newDeduplicator() *dedup.Deduplicator {
	return dedup.New(metrics.RecordDedup)
}

func newLLMClient(cfg *config.Config, log zerolog.Logger) *llmprovider.Client {
	return llmprovider.NewClient(cfg.LLMAPIURL, cfg.LLMAPIKey, cfg.LLMTimeout, log)
}

func newModelGateway(cfg *config.Config, agents *config.AgentsConfig, d *dedup.Deduplicator, log zerolog.Logger) *llmprovider.Gateway {
	catalog := llmprovider.NewCatalog(cfg.LLMAPIURL, cfg.LLMAPIKey, cfg.LLMCatalogTTL, d, log)
	return llmprovider.NewGateway(catalog, llmprovider.GatewayConfig{
		DefaultChatModel:     cfg.DefaultChatModel,
		DefaultSummaryModel:  cfg.DefaultSummaryModel,
		DefaultContextLength: cfg.ModelContextLength,
		Resolve:              agents.ResolveModelAlias,
	}, d, log)
}

func newToolRegistry(cfg *config.Config, log zerolog.Logger) (*tool.Registry, error) {
	client := pmtools.NewClient(cfg.PMAPIURL, cfg.PMAPITimeout, log)
	return tool.NewRegistry(pmtools.Tools(client)...)
}

// newProfiles binds every agent type to its prompt and tool subset.
func newProfiles(agents *config.AgentsConfig, registry *tool.Registry) (map[conversation.AgentType]turn.Profile, error) {
	profiles := make(map[conversation.AgentType]turn.Profile, len(conversation.AgentTypes))
	for _, agentType := range conversation.AgentTypes {
		def, ok := agents.Agent(string(agentType))
		if !ok {
			return nil, fmt.Errorf("agents config has no definition for %q", agentType)
		}
		set, err := registry.Select(def.Tools)
		if err != nil {
			return nil, fmt.Errorf("agent %q: %w", agentType, err)
		}
		profiles[agentType] = turn.Profile{Prompt: def.Prompt, Tools: set}
	}
	return profiles, nil
}

// newWebSearchSource returns nil when no MCP server is configured.
func newWebSearchSource(cfg *config.Config, agents *config.AgentsConfig, log zerolog.Logger) tool.Source {
	if cfg.MCPToolsURL == "" {
		return nil
	}
	return mcp.NewClient(cfg.MCPToolsURL, cfg.ToolTimeout, agents.WebSearchTools, log)
}

func newRunner(cfg *config.Config, client *llmprovider.Client, log zerolog.Logger) *turn.Runner {
	executor := tool.NewExecutor(cfg.ToolTimeout, metrics.ToolRecorder(), log)
	policy := retry.DefaultPolicy()
	policy.MaxRetries = cfg.ModelStreamRetries
	return turn.NewRunner(client, executor, cfg.MaxSteps, policy, log)
}

// newSummaryQueue reclaims tasks a worker held for twice the task timeout.
func newSummaryQueue(cfg *config.Config, db *gorm.DB, log zerolog.Logger) *queue.GormQueue {
	return queue.NewGormQueue(db, queue.DefaultMaxAttempts, 2*cfg.SummaryTaskTimeout, log)
}

func newOrchestrator(
	cfg *config.Config,
	agents *config.AgentsConfig,
	store *conversationrepo.Repository,
	gateway *llmprovider.Gateway,
	runner *turn.Runner,
	profiles map[conversation.AgentType]turn.Profile,
	d *dedup.Deduplicator,
	webSearch tool.Source,
	summaries *queue.GormQueue,
	log zerolog.Logger,
) *turn.Orchestrator {
	var scheduler turn.SummaryScheduler
	if cfg.SummaryEnabled {
		scheduler = summaries
	}
	return turn.NewOrchestrator(turn.Dependencies{
		Store:         store,
		Models:        gateway,
		Runner:        runner,
		Profiles:      profiles,
		Directive:     agents.ProjectDirectiveFor,
		Dedup:         d,
		WebSearch:     webSearch,
		Uploads:       mediaresolver.NewResolver(cfg, log),
		Counter:       tokenizer.NewCounter(cfg.DefaultChatModel, log),
		Summaries:     scheduler,
		Recorder:      metrics.TurnRecorder(),
		ContextLength: cfg.ModelContextLength,
	}, log)
}

// newWorkerPool returns nil when background summaries are disabled.
func newWorkerPool(
	cfg *config.Config,
	q *queue.GormQueue,
	store *conversationrepo.Repository,
	gateway *llmprovider.Gateway,
	client *llmprovider.Client,
	log zerolog.Logger,
) *worker.Pool {
	if !cfg.SummaryEnabled {
		return nil
	}
	summarizer := summary.NewService(store, gateway, client, tokenizer.NewCounter(cfg.DefaultSummaryModel, log), cfg.ModelContextLength, log)
	return worker.NewPool(q, summarizer, worker.Config{
		WorkerCount:  cfg.SummaryWorkerCount,
		TaskTimeout:  cfg.SummaryTaskTimeout,
		PollInterval: cfg.SummaryPollEvery,
	}, log)
}

func newReadinessCheck(db *gorm.DB) httpserver.ReadinessCheck {
	return func(ctx context.Context) error {
		return database.Ping(db)
	}
}
