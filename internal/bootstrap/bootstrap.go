package bootstrap

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/kirillkom/movie-search-assistant/internal/adapters/session"
	"github.com/kirillkom/movie-search-assistant/internal/config"
	"github.com/kirillkom/movie-search-assistant/internal/core/domain"
	"github.com/kirillkom/movie-search-assistant/internal/core/ports"
	"github.com/kirillkom/movie-search-assistant/internal/core/usecase"
	"github.com/kirillkom/movie-search-assistant/internal/infrastructure/cache/memory"
	"github.com/kirillkom/movie-search-assistant/internal/infrastructure/cache/rediscache"
	"github.com/kirillkom/movie-search-assistant/internal/infrastructure/llm/ollama"
	"github.com/kirillkom/movie-search-assistant/internal/infrastructure/llm/openai"
	"github.com/kirillkom/movie-search-assistant/internal/infrastructure/llm/throttle"
	"github.com/kirillkom/movie-search-assistant/internal/infrastructure/queue/nats"
	"github.com/kirillkom/movie-search-assistant/internal/infrastructure/repository/postgres"
	"github.com/kirillkom/movie-search-assistant/internal/infrastructure/resilience"
	"github.com/kirillkom/movie-search-assistant/internal/infrastructure/search/elastic"
	"github.com/kirillkom/movie-search-assistant/internal/infrastructure/vector/qdrant"
)

type App struct {
	Config config.Config

	Service  *usecase.AnswerUseCase
	Sessions *session.Registry
	// Queue is nil unless answered-query events are enabled.
	Queue *nats.Queue

	closeFns []func()
}

func New(ctx context.Context, cfg config.Config) (*App, error) {
	app := &App{Config: cfg}
	ok := false
	defer func() {
		if !ok {
			app.Close()
		}
	}()

	// One round trip per backend call; the breaker still sheds load when a
	// backend keeps failing.
	backendExecutor := resilience.NewExecutor(resilience.SingleAttempt())

	embedder, generator, err := newModels(cfg, backendExecutor)
	if err != nil {
		return nil, err
	}
	embedder = throttle.NewEmbedder(embedder, time.Duration(cfg.EmbedMinIntervalMS)*time.Millisecond)

	searchBackend := elastic.New(cfg.ElasticURL, elastic.Options{
		Username:           cfg.ElasticUsername,
		Password:           cfg.ElasticPassword,
		APIKey:             cfg.ElasticAPIKey,
		Timeout:            time.Duration(cfg.ElasticTimeoutSeconds) * time.Second,
		ResilienceExecutor: backendExecutor,
	})

	dispatcherCfg := usecase.DefaultDispatcherConfig()
	dispatcherCfg.Index = cfg.ElasticIndex
	dispatcher := usecase.NewStrategyDispatcher(embedder, searchBackend, usecase.NewQueryBuilder(domain.DefaultIndexFields()), dispatcherCfg)
	normalizer := usecase.NewResultNormalizer(0)

	store, err := app.newCacheStore(ctx, cfg)
	if err != nil {
		return nil, err
	}

	generationRetrier := resilience.NewExecutor(
		resilience.FixedBackoff(cfg.GenerationMaxAttempts, time.Duration(cfg.GenerationBackoffMS)*time.Millisecond).WithoutBreaker(),
	)

	var semanticCache *usecase.SemanticCache
	orchestrator := usecase.NewGenerationOrchestrator(generator, generationRetrier, nil)
	if store != nil {
		semanticCache = usecase.NewSemanticCache(embedder, store, usecase.SemanticCacheConfig{
			Dims:      cfg.CacheDims,
			Threshold: cfg.CacheThreshold,
		})
		if err := semanticCache.Provision(ctx); err != nil {
			return nil, fmt.Errorf("provision semantic cache: %w", err)
		}
		orchestrator = usecase.NewGenerationOrchestrator(generator, generationRetrier, semanticCache)
	}

	var publisher ports.EventPublisher
	if cfg.EventsEnabled {
		queue, err := NewQueue(cfg)
		if err != nil {
			return nil, err
		}
		app.Queue = queue
		app.closeFns = append(app.closeFns, queue.Close)
		publisher = queue
	}

	sessions, err := session.NewRegistry(cfg.SessionMaxActive, domain.DefaultSystemPrompt)
	if err != nil {
		return nil, fmt.Errorf("init session registry: %w", err)
	}

	app.Sessions = sessions
	app.Service = usecase.NewAnswerUseCase(dispatcher, normalizer, semanticCache, orchestrator, publisher, usecase.AnswerConfig{
		CacheEnabled: cfg.CacheEnabled,
		Threshold:    cfg.CacheThreshold,
	})

	slog.Info("bootstrap_ready",
		"llm_provider", cfg.LLMProvider,
		"cache_backend", cfg.CacheBackend,
		"cache_enabled", cfg.CacheEnabled && store != nil,
		"events_enabled", cfg.EventsEnabled,
		"index", cfg.ElasticIndex,
	)
	ok = true
	return app, nil
}

// NewQueue connects to NATS with a publish executor of its own.
func NewQueue(cfg config.Config) (*nats.Queue, error) {
	queue, err := nats.NewWithOptions(cfg.NATSURL, cfg.NATSSubject, nats.Options{
		ResilienceExecutor: resilience.NewExecutor(resilience.DefaultConfig()),
	})
	if err != nil {
		return nil, fmt.Errorf("init message queue: %w", err)
	}
	return queue, nil
}

func newModels(cfg config.Config, executor *resilience.Executor) (ports.Embedder, ports.GenerationService, error) {
	timeout := time.Duration(cfg.LLMTimeoutSeconds) * time.Second
	switch cfg.LLMProvider {
	case "", "ollama":
		client := ollama.New(cfg.OllamaURL, cfg.OllamaGenModel, cfg.OllamaEmbedModel, ollama.Options{
			Timeout:            timeout,
			ResilienceExecutor: executor,
		})
		return ollama.NewEmbedder(client), ollama.NewChatGenerator(client), nil
	case "openai":
		openaiCfg := openai.Config{
			BaseURL:         cfg.OpenAIBaseURL,
			APIKey:          cfg.OpenAIAPIKey,
			ChatModel:       cfg.OpenAIChatModel,
			EmbeddingModel:  cfg.OpenAIEmbeddingModel,
			AzureAPIVersion: cfg.OpenAIAzureAPIVersion,
			Temperature:     cfg.OpenAITemperature,
		}
		embedder, err := openai.NewEmbedder(openaiCfg)
		if err != nil {
			return nil, nil, fmt.Errorf("init openai embedder: %w", err)
		}
		generator, err := openai.NewChatGenerator(openaiCfg)
		if err != nil {
			return nil, nil, fmt.Errorf("init openai generator: %w", err)
		}
		return embedder, generator, nil
	default:
		return nil, nil, fmt.Errorf("unsupported llm provider %q", cfg.LLMProvider)
	}
}

// newCacheStore returns nil when the cache backend is disabled.
func (a *App) newCacheStore(ctx context.Context, cfg config.Config) (ports.CacheStore, error) {
	retention := domain.CacheRetention{
		MaxEntries: cfg.CacheMaxEntries,
		MaxAge:     time.Duration(cfg.CacheMaxAgeSeconds) * time.Second,
	}
	if !cfg.CacheBackendEnabled() {
		return nil, nil
	}
	switch cfg.CacheBackend {
	case "memory":
		return memory.NewStore(retention), nil
	case "qdrant":
		return qdrant.New(cfg.QdrantURL, cfg.QdrantCollection, retention), nil
	case "postgres":
		db, err := postgres.OpenDB(cfg.PostgresDSN)
		if err != nil {
			return nil, fmt.Errorf("open postgres: %w", err)
		}
		a.closeFns = append(a.closeFns, func() { _ = db.Close() })
		return postgres.NewSemanticCacheRepository(db, retention), nil
	case "redis":
		client, err := rediscache.Connect(ctx, cfg.RedisURL)
		if err != nil {
			return nil, fmt.Errorf("connect redis: %w", err)
		}
		a.closeFns = append(a.closeFns, func() { _ = client.Close() })
		return rediscache.NewStore(client, cfg.RedisPrefix, retention), nil
	default:
		return nil, fmt.Errorf("unsupported cache backend %q", cfg.CacheBackend)
	}
}

func (a *App) Close() {
	for i := len(a.closeFns) - 1; i >= 0; i-- {
		a.closeFns[i]()
	}
	a.closeFns = nil
}
