package bootstrap

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/zatekoja/databaseguru/backend/internal/adapters/cache"
	"github.com/zatekoja/databaseguru/backend/internal/adapters/connectors"
	"github.com/zatekoja/databaseguru/backend/internal/adapters/database"
	"github.com/zatekoja/databaseguru/backend/internal/application/services"
	"github.com/zatekoja/databaseguru/backend/internal/domain/providers"
	"github.com/zatekoja/databaseguru/backend/internal/domain/repositories"
	"github.com/zatekoja/databaseguru/backend/internal/infrastructure/clients/openai"
	"github.com/zatekoja/databaseguru/backend/internal/infrastructure/clients/postgres"
	"github.com/zatekoja/databaseguru/backend/internal/infrastructure/clients/redis"
	"github.com/zatekoja/databaseguru/backend/pkg/config"
)

// Pinger reports whether a backing store is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Engine is the fully wired correction engine shared by the server and the CLI.
type Engine struct {
	Service  *services.QueryService
	Registry *connectors.Registry
	// Store is nil when corrections are kept in memory.
	Store Pinger
	// Cache is nil when Redis is disabled or unreachable.
	Cache providers.CacheProvider

	closers []func() error
}

// Options tweak how the engine is assembled.
type Options struct {
	// ForceMemoryStore ignores CORRECTION_STORE and keeps corrections in memory.
	ForceMemoryStore bool
	// SkipRedis builds the engine without the schema cache.
	SkipRedis bool
}

// NewEngine opens every configured dependency and wires the correction engine.
// On error, anything already opened is closed.
func NewEngine(ctx context.Context, cfg *config.Config, opts Options) (_ *Engine, err error) {
	e := &Engine{}
	defer func() {
		if err != nil {
			_ = e.Close()
		}
	}()

	correctionRepo, err := e.openStore(ctx, cfg, opts)
	if err != nil {
		return nil, err
	}

	if cfg.Redis.Enabled && !opts.SkipRedis {
		redisClient, err := redis.NewClient(&cfg.Redis)
		if err != nil {
			// Continue without Redis; schemas are introspected on every request
			log.Warn().Err(err).Msg("Failed to initialize Redis client")
		} else {
			e.closers = append(e.closers, redisClient.Close)
			e.Cache = cache.NewRedisAdapter(redisClient)
			log.Info().Msg("Redis client initialized successfully")
		}
	}

	var schemaProvider providers.SchemaProvider = connectors.NewSchemaInspector()
	if e.Cache != nil {
		schemaProvider = database.NewCachedSchemaProvider(schemaProvider, e.Cache, cfg.Correction.SchemaCacheTTL)
	}

	var (
		generator providers.SQLGenerator
		corrector providers.ModelCorrector
		planner   services.QueryPlanner
	)
	llmClient, err := openai.NewClient(&cfg.OpenAI)
	if err != nil {
		log.Warn().Err(err).Msg("OpenAI client unavailable, only supplied SQL and deterministic fixes will work")
	} else {
		llm := services.NewLLMSQLGenerator(llmClient)
		generator, corrector, planner = llm, llm, llm
	}

	pool := connectors.NewWorkerPool(cfg.Correction.SyncWorkers)
	registry, err := connectors.OpenRegistry(ctx, cfg.Connections, pool)
	if err != nil {
		return nil, fmt.Errorf("open user databases: %w", err)
	}
	e.Registry = registry
	e.closers = append(e.closers, registry.Close)

	classifier := services.NewErrorClassifier()
	memory := services.NewCorrectionMemory(correctionRepo, classifier, cfg.Correction.EnableLearning)
	verifier := services.NewResultVerifier(services.VerifierConfig{
		ExtremeValueThreshold: cfg.Correction.ExtremeValueThreshold,
		EnableDiagnostics:     cfg.Correction.EnableDiagnostics,
	})
	orchestrator := services.NewRetryOrchestrator(
		generator,
		corrector,
		classifier,
		services.NewQuickFixer(classifier),
		memory,
		verifier,
		services.NewSQLGuard(),
		services.OrchestratorConfig{
			MaxRetries:     cfg.Correction.MaxRetries,
			MaxRows:        cfg.Correction.MaxRows,
			QueryTimeout:   cfg.Correction.QueryTimeout,
			CandidateLimit: cfg.Correction.CandidateLimit,
		},
	)
	coordinator := services.NewMultiDBCoordinator(orchestrator, func(conn providers.SyncConnection) providers.Connection {
		return connectors.NewPooled(conn, pool)
	})

	e.Service = services.NewQueryService(registry, schemaProvider, planner, coordinator, memory,
		services.QueryServiceConfig{AllowWrite: cfg.Correction.AllowWrite})
	e.Service.SetVerifier(verifier)
	return e, nil
}

func (e *Engine) openStore(ctx context.Context, cfg *config.Config, opts Options) (repositories.CorrectionRepository, error) {
	if opts.ForceMemoryStore || cfg.Correction.Store != config.StorePostgres {
		log.Warn().Msg("Learned corrections kept in memory and lost on restart")
		return database.NewMemoryCorrectionStore(), nil
	}

	pgClient, err := postgres.NewClient(&cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("initialize PostgreSQL client: %w", err)
	}
	e.closers = append(e.closers, pgClient.Close)

	adapter := database.NewCorrectionAdapter(pgClient)
	if err := adapter.InitSchema(ctx); err != nil {
		return nil, fmt.Errorf("initialize corrections schema: %w", err)
	}
	e.Store = pgClient
	log.Info().Msg("Learned corrections stored in PostgreSQL")
	return adapter, nil
}

// Close releases everything in reverse order of opening and returns the first error.
func (e *Engine) Close() error {
	var first error
	for i := len(e.closers) - 1; i >= 0; i-- {
		if err := e.closers[i](); err != nil && first == nil {
			first = err
		}
	}
	e.closers = nil
	return first
}
