package admin

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/hrplatform/docingest/internal/api/handlers"
	"github.com/hrplatform/docingest/internal/config"
	"github.com/hrplatform/docingest/internal/embedding"
	"github.com/hrplatform/docingest/internal/extract"
	"github.com/hrplatform/docingest/internal/jobs"
	"github.com/hrplatform/docingest/internal/openai"
	"github.com/hrplatform/docingest/internal/repository"
	"github.com/hrplatform/docingest/internal/server"
	"github.com/hrplatform/docingest/internal/service"
	"github.com/hrplatform/docingest/internal/storage"
)

// app is the fully wired server: HTTP handler, auth and the optional re-embedding worker.
type app struct {
	auth    *service.AuthService
	handler http.Handler
	worker  *jobs.Worker
	closers []func() error
}

func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
}

func newApp(ctx context.Context, cfg *config.Config, pool *pgxpool.Pool, logger *slog.Logger) (*app, error) {
	a := &app{}

	companyRepo := repository.NewCompanyRepository(pool)
	apiKeyRepo := repository.NewAPIKeyRepository(pool)
	docRepo := repository.NewDocumentRepository(pool)
	chunkRepo := repository.NewChunkRepository(pool)
	jobRepo := repository.NewEmbeddingJobRepository(pool)

	store, err := newFileStore(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}

	var aiClient *openai.Client
	if cfg.HasOpenAI() {
		aiClient = openai.NewClientWithConfig(openai.Config{
			APIKey:            cfg.OpenAIAPIKey,
			BaseURL:           cfg.OpenAIBaseURL,
			EmbeddingModel:    cfg.EmbeddingModel,
			ChatModel:         cfg.ChatModel,
			ChatFallbackModel: cfg.ChatFallbackModel,
			KillSwitch:        cfg.AIKillSwitch,
			Logger:            logger,
		})
	}

	cache, closeCache, err := newEmbeddingCache(ctx, cfg, pool)
	if err != nil {
		return nil, err
	}
	if closeCache != nil {
		a.closers = append(a.closers, closeCache)
	}

	model, chain := newEmbedders(cfg, aiClient, cache, logger)

	a.auth = service.NewAuthService(companyRepo, apiKeyRepo, &service.DefaultUUIDGenerator{})

	ingestSvc := service.NewIngestionService(
		store,
		extract.New(),
		chain,
		repository.NewTxRunner(pool),
		&service.DefaultUUIDGenerator{},
		service.IngestionConfig{
			MaxUploadBytes: cfg.MaxUploadBytes,
			MinTextChars:   cfg.MinTextChars,
			Chunk: service.ChunkConfig{
				Size:      cfg.ChunkSize,
				Overlap:   cfg.ChunkOverlap,
				Lookahead: cfg.ChunkLookahead,
			},
		},
		logger,
	)

	// A nil *openai.Client must not become a non-nil interface.
	var chat service.AnswerClient
	if aiClient != nil && cfg.ModelsEnabled() {
		chat = aiClient
	}

	querySvc := service.NewQueryService(
		docRepo,
		chunkRepo,
		chain,
		chat,
		openai.NewTokenCounter(),
		service.QueryConfig{TopK: cfg.QueryTopK, MaxContextTokens: cfg.MaxContextTokens},
		logger,
	)

	docSvc := service.NewDocumentService(docRepo, chunkRepo, store, logger)

	a.handler = server.NewRouter(server.RouterConfig{
		AuthValidator:      a.auth,
		DocumentHandler:    handlers.NewDocumentHandler(docSvc, ingestSvc, querySvc, logger),
		Logger:             logger,
		MaxUploadBytes:     cfg.MaxUploadBytes,
		RateLimitPerMinute: cfg.RateLimitPerMinute,
		TrustProxy:         cfg.TrustProxy,
	})

	if model != nil {
		reembedSvc := service.NewReembedService(chunkRepo, model, logger)
		a.worker = jobs.NewWorker(jobs.NewReembedWorker(jobRepo, reembedSvc, logger), cfg.ReembedInterval, logger)
	}

	return a, nil
}

func newFileStore(ctx context.Context, cfg *config.Config, logger *slog.Logger) (storage.FileStore, error) {
	switch cfg.StorageBackend {
	case config.StorageS3:
		store, err := storage.NewS3Store(ctx, storage.S3Config{
			Endpoint:        cfg.S3Endpoint,
			Region:          cfg.S3Region,
			AccessKeyID:     cfg.S3AccessKey,
			SecretAccessKey: cfg.S3SecretKey,
			Bucket:          cfg.S3Bucket,
			UsePathStyle:    true,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create S3 store: %w", err)
		}
		if err := store.EnsureBucket(ctx); err != nil {
			return nil, fmt.Errorf("failed to ensure S3 bucket: %w", err)
		}
		logger.Info("storage ready", "backend", config.StorageS3, "bucket", cfg.S3Bucket)
		return store, nil
	default:
		store, err := storage.NewLocalStore(cfg.UploadDir)
		if err != nil {
			return nil, fmt.Errorf("failed to create local store: %w", err)
		}
		logger.Info("storage ready", "backend", config.StorageLocal, "root", store.Root())
		return store, nil
	}
}

// newEmbeddingCache returns nil when caching is off. The close func is nil
// unless the cache owns a connection.
func newEmbeddingCache(ctx context.Context, cfg *config.Config, pool *pgxpool.Pool) (embedding.Cache, func() error, error) {
	switch cfg.EmbeddingCache {
	case config.CacheRedis:
		client, err := embedding.NewRedisClientFromURL(ctx, cfg.RedisURL)
		if err != nil {
			return nil, nil, err
		}
		return embedding.NewRedisCache(client, cfg.EmbeddingCacheTTL), client.Close, nil
	case config.CachePostgres:
		return repository.NewEmbeddingCacheRepository(pool), nil, nil
	default:
		return nil, nil, nil
	}
}

// newEmbedders returns the bare model embedder (nil when models are off) and
// the fallback chain the pipeline uses.
func newEmbedders(cfg *config.Config, client *openai.Client, cache embedding.Cache, logger *slog.Logger) (embedding.Embedder, *embedding.FallbackEmbedder) {
	if client == nil || !cfg.ModelsEnabled() {
		logger.Warn("embedding model disabled, using hash embeddings",
			"has_api_key", cfg.HasOpenAI(), "kill_switch", cfg.AIKillSwitch)
		return nil, embedding.NewFallbackEmbedder(nil, logger)
	}

	var model embedding.Embedder = embedding.NewModelEmbedder(client)
	if cache != nil {
		model = embedding.NewCachedEmbedder(model, cache, logger)
	}
	return model, embedding.NewFallbackEmbedder(model, logger)
}
