package bootstrap

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/kirillkom/loan-rag-assistant/internal/config"
	"github.com/kirillkom/loan-rag-assistant/internal/core/ports"
	"github.com/kirillkom/loan-rag-assistant/internal/core/usecase"
	"github.com/kirillkom/loan-rag-assistant/internal/infrastructure/llm/ollama"
	"github.com/kirillkom/loan-rag-assistant/internal/infrastructure/llm/openai"
	"github.com/kirillkom/loan-rag-assistant/internal/infrastructure/queue/nats"
	"github.com/kirillkom/loan-rag-assistant/internal/infrastructure/repository/memory"
	"github.com/kirillkom/loan-rag-assistant/internal/infrastructure/repository/postgres"
	"github.com/kirillkom/loan-rag-assistant/internal/infrastructure/resilience"
	"github.com/kirillkom/loan-rag-assistant/internal/infrastructure/search/redis"
	"github.com/kirillkom/loan-rag-assistant/internal/infrastructure/vector/qdrant"
)

const (
	embedAttemptTimeout  = 10 * time.Second
	workerAttemptTimeout = time.Minute
)

type App struct {
	Config config.Config

	Store   ports.LoanStore
	Index   ports.SearchIndex
	Queue   *nats.Queue
	Loans   ports.LoanService
	Indexer ports.LoanIndexer

	Parser    ports.QueryParser
	Retriever ports.Retriever
	Chat      ports.ChatService

	Executor *resilience.Executor

	// Checks are the backend probes reported by the health endpoint.
	Checks map[string]func(context.Context) bool

	closers []func()
}

// New wires the adapters selected by cfg. observer may be nil.
func New(ctx context.Context, cfg config.Config, observer ports.PipelineObserver) (*App, error) {
	app := &App{Config: cfg, Checks: map[string]func(context.Context) bool{}}
	executor := resilience.NewExecutor(resilienceConfig(cfg))
	app.Executor = executor

	var redisClient *redis.Client
	needsRedis := cfg.RecordStore == config.RecordStoreRedis || cfg.SearchBackend == config.SearchBackendRedis
	if needsRedis {
		vectorDim := 0
		if cfg.EmbeddingsEnabled {
			vectorDim = cfg.VectorDim
		}
		client, err := redis.New(redis.Config{
			Addrs:     cfg.RedisAddrs,
			Username:  cfg.RedisUsername,
			Password:  cfg.RedisPassword,
			DB:        cfg.RedisDB,
			IndexName: cfg.RedisIndex,
			VectorDim: vectorDim,
		})
		if err != nil {
			app.Close()
			return nil, fmt.Errorf("init redis: %w", err)
		}
		if err := client.EnsureIndex(ctx); err != nil {
			client.Close()
			app.Close()
			return nil, fmt.Errorf("ensure redis index: %w", err)
		}
		redisClient = client
		app.closers = append(app.closers, client.Close)
		app.Checks["redis"] = client.Ping
	}

	var history ports.ChatHistoryStore
	switch cfg.RecordStore {
	case config.RecordStoreMemory:
		app.Store = memory.NewLoanStore()
		history = memory.NewChatHistoryStore(cfg.ChatHistoryPerUser)
	case config.RecordStorePostgres:
		db, err := postgres.OpenDB(cfg.PostgresDSN)
		if err != nil {
			app.Close()
			return nil, fmt.Errorf("open postgres: %w", err)
		}
		app.closers = append(app.closers, func() { _ = db.Close() })
		if err := postgres.EnsureSchema(ctx, db); err != nil {
			app.Close()
			return nil, fmt.Errorf("ensure schema: %w", err)
		}
		app.Store = postgres.NewLoanRepository(db)
		history = postgres.NewChatHistoryRepository(db)
		app.Checks["postgres"] = func(ctx context.Context) bool { return db.PingContext(ctx) == nil }
	case config.RecordStoreRedis:
		app.Store = redis.NewLoanStore(redisClient)
		history = redis.NewChatHistoryStore(redisClient, cfg.ChatHistoryPerUser)
	default:
		app.Close()
		return nil, fmt.Errorf("unsupported RECORD_STORE %q", cfg.RecordStore)
	}

	generator, embedder, err := newLLM(cfg, executor, app.Checks)
	if err != nil {
		app.Close()
		return nil, err
	}

	switch cfg.SearchBackend {
	case config.SearchBackendNone:
	case config.SearchBackendRedis:
		app.Index = redis.NewSearchIndex(redisClient)
	case config.SearchBackendQdrant:
		vectorDim := 0
		if embedder != nil {
			vectorDim = cfg.VectorDim
		}
		client := qdrant.New(cfg.QdrantURL, cfg.QdrantCollection, vectorDim)
		if err := client.EnsureCollection(ctx); err != nil {
			app.Close()
			return nil, fmt.Errorf("ensure qdrant collection: %w", err)
		}
		app.Index = qdrant.NewSearchIndex(client)
		app.Checks["qdrant"] = client.Ping
	default:
		app.Close()
		return nil, fmt.Errorf("unsupported SEARCH_BACKEND %q", cfg.SearchBackend)
	}

	var publisher ports.EventPublisher
	if cfg.QueueEnabled {
		queue, err := nats.NewWithOptions(cfg.NATSURL, cfg.NATSSubject, nats.Options{
			QueueGroup:         cfg.NATSQueueGroup,
			ResilienceExecutor: executor,
		})
		if err != nil {
			app.Close()
			return nil, fmt.Errorf("init message queue: %w", err)
		}
		app.Queue = queue
		publisher = queue
		app.closers = append(app.closers, queue.Close)
		app.Checks["nats"] = queue.Ping
	}

	var indexer ports.LoanIndexer
	if app.Index != nil {
		indexer = usecase.NewIndexLoanUseCase(app.Store, app.Index, embedder)
		app.Indexer = indexer
	}

	app.Loans = usecase.NewLoanUseCase(app.Store, publisher, indexer)
	app.Parser = usecase.NewQueryInterpreter()
	app.Retriever = usecase.NewRetrievalEngine(app.Store, app.Index, embedder, usecase.RetrievalOptions{
		SemanticEnabled: cfg.RAGSemanticEnabled,
		RRFK:            cfg.RAGFusionRRFK,
		CandidateFactor: cfg.RAGCandidateFactor,
	}, observer)

	responder := usecase.NewResponseGenerator(generator, usecase.GeneratorOptions{
		Timeout:   time.Duration(cfg.GenerationTimeoutSeconds) * time.Second,
		MaxTokens: cfg.GenerationMaxTokens,
	}, observer)
	app.Chat = usecase.NewChatUseCase(app.Parser, app.Retriever, responder, app.Store, history, usecase.ChatOptions{
		RetrieveLimit:     cfg.ChatRetrieveLimit,
		AnalyticalRecords: cfg.ChatAnalyticalRecords,
		Policy: usecase.ComplexityPolicy{
			MinLength: cfg.ComplexMinLength,
			Triggers:  cfg.ComplexTriggers,
		},
	}, observer)

	if cfg.SeedFile != "" {
		n, err := SeedFromFile(ctx, app.Store, cfg.SeedFile)
		if err != nil {
			app.Close()
			return nil, fmt.Errorf("seed loans: %w", err)
		}
		slog.Info("loans_seeded", "file", cfg.SeedFile, "created", n)
	}

	return app, nil
}

// newLLM returns the generator and, when embeddings are enabled, the embedder
// of the configured provider. Both are nil for LLM_PROVIDER=none.
func newLLM(
	cfg config.Config,
	executor *resilience.Executor,
	checks map[string]func(context.Context) bool,
) (ports.TextGenerator, ports.Embedder, error) {
	var (
		generator ports.TextGenerator
		embedder  ports.Embedder
	)
	switch cfg.LLMProvider {
	case config.LLMProviderNone:
	case config.LLMProviderOllama:
		client := ollama.New(cfg.OllamaURL, cfg.OllamaGenModel, cfg.OllamaEmbedModel, executor)
		generator = ollama.NewGenerator(client)
		if cfg.EmbeddingsEnabled {
			embedder = ollama.NewEmbedder(client)
		}
		checks["ollama"] = client.Ping
	case config.LLMProviderOpenAI:
		client := openai.New(openai.Config{
			APIKey:      cfg.OpenAIAPIKey,
			BaseURL:     cfg.OpenAIBaseURL,
			ChatModel:   cfg.OpenAIChatModel,
			EmbedModel:  cfg.OpenAIEmbedModel,
			Dimensions:  cfg.VectorDim,
			Temperature: float32(cfg.OpenAITemperature),
		}, executor)
		generator = openai.NewGenerator(client)
		if cfg.EmbeddingsEnabled {
			embedder = openai.NewEmbedder(client)
		}
		checks["openai"] = client.Ping
	default:
		return nil, nil, fmt.Errorf("unsupported LLM_PROVIDER %q", cfg.LLMProvider)
	}
	return generator, embedder, nil
}

func resilienceConfig(cfg config.Config) resilience.Config {
	out := resilience.DefaultConfig()
	out.RetryMaxAttempts = cfg.RetryMaxAttempts
	out.RetryInitialBackoff = time.Duration(cfg.RetryInitialBackoffMS) * time.Millisecond
	out.RetryMaxBackoff = time.Duration(cfg.RetryMaxBackoffMS) * time.Millisecond
	out.BreakerEnabled = cfg.BreakerEnabled
	out.BreakerFailureRatio = cfg.BreakerFailureRatio
	out.BreakerOpenTimeout = time.Duration(cfg.BreakerOpenSeconds) * time.Second

	// Generation runs under its own deadline, so it gets a single retry.
	out.Operations = map[string]resilience.OperationPolicy{
		ollama.OpGenerate: {MaxAttempts: 2},
		openai.OpChat:     {MaxAttempts: 2},
		ollama.OpEmbed:    {AttemptTimeout: embedAttemptTimeout},
		openai.OpEmbed:    {AttemptTimeout: embedAttemptTimeout},
		"worker.":         {AttemptTimeout: workerAttemptTimeout},
	}
	return out
}

// Close releases the backends in reverse order of creation.
func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}
