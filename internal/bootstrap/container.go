package bootstrap

import (
	"context"
	"fmt"

	"docqa-be/internal/config"
	"docqa-be/internal/controller"
	"docqa-be/internal/pkg/logger"
	"docqa-be/internal/repository/unitofwork"
	"docqa-be/internal/service"
	"docqa-be/pkg/cache"
	"docqa-be/pkg/embedding"
	"docqa-be/pkg/embedding/jina"
	"docqa-be/pkg/events"
	"docqa-be/pkg/llm/factory"
	"docqa-be/pkg/rag/assembler"
	"docqa-be/pkg/rag/conversation"
	"docqa-be/pkg/rag/history"
	"docqa-be/pkg/rag/rank"
	"docqa-be/pkg/rag/search"
	"docqa-be/pkg/rag/window"

	pktNats "docqa-be/pkg/nats"

	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

// DocumentTopic is the in-process topic carrying document change events.
const DocumentTopic = events.TypeDocumentChanged

type Container struct {
	Logger logger.ILogger

	// Controllers
	ChatController     controller.IChatController
	DocumentController controller.IDocumentController

	// Background Services (Exposed for main.go to run)
	ConsumerService service.IConsumerService
	// NatsSubscriber is nil when NATS_URL is unset or unreachable.
	NatsSubscriber *pktNats.Subscriber

	closers []func()
}

// NewContainer wires the context pipeline. db may be nil when neither the
// pgvector index nor the durable history archive is in use.
func NewContainer(db *gorm.DB, cfg *config.Config, sysLogger logger.ILogger) (*Container, error) {
	c := &Container{Logger: sysLogger}

	// 1. Core Facades
	var uowFactory unitofwork.RepositoryFactory
	if db != nil {
		uowFactory = unitofwork.NewRepositoryFactory(db)
	}

	// 2. Cache backends
	var rdb *redis.Client
	if cfg.Cache.Backend != "memory" {
		opt, err := redis.ParseURL(cfg.App.RedisURL)
		if err != nil {
			sysLogger.Warn("Bootstrap", "failed to parse Redis URL, using direct Addr", map[string]interface{}{
				"error": err.Error(),
			})
			opt = &redis.Options{Addr: cfg.App.RedisURL}
		}
		rdb = redis.NewClient(opt)
		if err := rdb.Ping(context.Background()).Err(); err != nil {
			// Stores fail open, so a cold Redis only costs recomputation.
			sysLogger.Warn("Bootstrap", "failed to connect to Redis", map[string]interface{}{
				"error": err.Error(),
			})
		}
		c.closers = append(c.closers, func() { _ = rdb.Close() })
	}

	var cacheStore cache.Store
	switch cfg.Cache.Backend {
	case "redis":
		cacheStore = cache.NewRedisStore(rdb, cfg.Cache.KeyPrefix)
	case "tiered":
		cacheStore = cache.NewTieredStore(
			cache.NewMemoryStore(cfg.Cache.CleanupInterval),
			cache.NewRedisStore(rdb, cfg.Cache.KeyPrefix),
		)
	default:
		cacheStore = cache.NewMemoryStore(cfg.Cache.CleanupInterval)
	}

	// 3. Embedding Provider based on Config
	var rawEmbedder embedding.EmbeddingProvider
	switch cfg.Ai.EmbeddingProvider {
	case "ollama":
		rawEmbedder = embedding.NewOllamaProvider(cfg.Ai.OllamaBaseURL, cfg.Ai.OllamaModel)
	case "jina":
		rawEmbedder = jina.NewJinaProvider(cfg.Keys.Jina)
	default:
		rawEmbedder = embedding.NewGeminiProvider(cfg.Keys.GoogleGemini)
	}
	embedder := embedding.NewCachedProvider(rawEmbedder, cacheStore, sysLogger, cache.Options{
		TTL:       cfg.Cache.EmbeddingTTL,
		OpTimeout: cfg.Cache.OpTimeout,
	})
	sysLogger.Info("Bootstrap", "embedding provider ready", map[string]interface{}{
		"provider": cfg.Ai.EmbeddingProvider,
		"model":    embedder.Model(),
	})

	// 4. Vector index
	var index search.VectorIndex
	switch cfg.Context.VectorIndex {
	case "chromem":
		chromemIndex, err := search.NewChromemIndex(cfg.Context.ChromemPath, embedder)
		if err != nil {
			return nil, fmt.Errorf("failed to open chromem index: %w", err)
		}
		index = chromemIndex
	default:
		if uowFactory == nil {
			return nil, fmt.Errorf("pgvector index requires a database connection")
		}
		index = search.NewPgVectorIndex(uowFactory)
	}

	// 5. Retrieval pipeline
	ranker, err := rank.NewRanker(rank.Config{
		Weights:        cfg.Context.RankWeights(),
		IdealMinTokens: cfg.Context.IdealMinTokens,
		IdealMaxTokens: cfg.Context.IdealMaxTokens,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to build ranker: %w", err)
	}
	results := search.NewResultCache(cacheStore, sysLogger, cache.Options{
		TTL:       cfg.Cache.SearchTTL,
		OpTimeout: cfg.Cache.OpTimeout,
	})
	pipeline := search.NewPipeline(embedder, index, results, ranker, search.Config{
		TopK:        cfg.Context.SearchTopK,
		Threshold:   cfg.Context.SearchThreshold,
		MaxPassages: cfg.Context.MaxPassages,
		Timeout:     cfg.Ai.UpstreamTimeout,
	}, sysLogger)
	fitter := window.NewFitter(sysLogger, window.Options{MinUsefulTokens: cfg.Context.MinUsefulTokens})

	// 6. Conversation state
	storeOpts := conversation.Options{
		TTL: cfg.Cache.ConversationTTL,
		Retention: conversation.Limits{
			MaxTurns:  cfg.Context.MaxTurns,
			MaxTokens: cfg.Context.MaxTokens,
		},
	}
	var convStore conversation.Store
	if rdb != nil {
		convStore = conversation.NewRedisStore(rdb, cfg.Cache.KeyPrefix+"conversation:", storeOpts)
	} else {
		convStore = conversation.NewMemoryStore(storeOpts)
	}

	var archive assembler.Archive
	if uowFactory != nil {
		archive = history.NewArchive(uowFactory)
	}

	asm := assembler.NewAssembler(convStore, archive, pipeline, fitter, assembler.Config{
		BudgetTokens:    cfg.Context.TokenBudget,
		ReserveTokens:   cfg.Context.ReserveTokens,
		History:         storeOpts.Retention,
		UpstreamTimeout: cfg.Ai.UpstreamTimeout,
	}, sysLogger)

	// 7. LLM Provider based on Config
	llmBaseURL := ""
	if cfg.Ai.LLMProvider == "ollama" {
		llmBaseURL = cfg.Ai.OllamaBaseURL
	}
	llmProvider, err := factory.NewLLMProvider(
		cfg.Ai.LLMProvider,
		cfg.Ai.LLMModel,
		llmBaseURL,
		cfg.Keys.HuggingFace,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize LLM provider: %w", err)
	}
	sysLogger.Info("Bootstrap", "LLM provider ready", map[string]interface{}{
		"provider": cfg.Ai.LLMProvider,
		"model":    cfg.Ai.LLMModel,
	})

	// 8. Event Bus
	pubSub := gochannel.NewGoChannel(gochannel.Config{}, logger.NewWatermillAdapter(sysLogger))
	c.closers = append(c.closers, func() { _ = pubSub.Close() })

	var natsPub *pktNats.Publisher
	if cfg.App.NatsURL != "" {
		if natsPub, err = pktNats.NewPublisher(cfg.App.NatsURL, sysLogger); err != nil {
			sysLogger.Warn("Bootstrap", "failed to connect to NATS publisher, events stay in-process", map[string]interface{}{
				"error": err.Error(),
			})
			natsPub = nil
		} else {
			c.closers = append(c.closers, natsPub.Close)
		}
		if c.NatsSubscriber, err = pktNats.NewSubscriber(cfg.App.NatsURL, sysLogger); err != nil {
			sysLogger.Warn("Bootstrap", "failed to connect to NATS subscriber", map[string]interface{}{
				"error": err.Error(),
			})
			c.NatsSubscriber = nil
		} else {
			c.closers = append(c.closers, c.NatsSubscriber.Close)
		}
	}

	// 9. Services
	publisherService := service.NewPublisherService(DocumentTopic, pubSub, natsPub, sysLogger)
	c.ConsumerService = service.NewConsumerService(pubSub, DocumentTopic, results, sysLogger)

	chatService := service.NewChatService(asm, llmProvider, cfg.Ai.CompletionTimeout, sysLogger)
	documentService := service.NewDocumentService(index, embedder, publisherService, sysLogger)

	// 10. Controllers
	c.ChatController = controller.NewChatController(chatService)
	c.DocumentController = controller.NewDocumentController(documentService)

	return c, nil
}

// Close releases broker and cache connections in reverse order of creation.
func (c *Container) Close() {
	for i := len(c.closers) - 1; i >= 0; i-- {
		c.closers[i]()
	}
}
