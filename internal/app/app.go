// internal/app/app.go
package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/markdave123-py/Pagewise/internal/config"
	"github.com/markdave123-py/Pagewise/internal/core"
	"github.com/markdave123-py/Pagewise/internal/core/chunker"
	db "github.com/markdave123-py/Pagewise/internal/core/database"
	"github.com/markdave123-py/Pagewise/internal/core/extractor"
	"github.com/markdave123-py/Pagewise/internal/core/ingestion_engine"
	"github.com/markdave123-py/Pagewise/internal/core/jobstore"
	"github.com/markdave123-py/Pagewise/internal/core/layout"
	"github.com/markdave123-py/Pagewise/internal/core/llm"
	"github.com/markdave123-py/Pagewise/internal/core/notify"
	objectclient "github.com/markdave123-py/Pagewise/internal/core/object-client"
	"github.com/markdave123-py/Pagewise/internal/core/sanitizer"
)

type App struct {
	DBClient   *db.DatabaseClient
	Ingestor   *ingestion_engine.DocumentIngestor
	Reconciler *ingestion_engine.Reconciler
	Server     *Server

	runner  *ingestion_engine.Runner
	closers []func() error
	logger  *zap.Logger
}

// NewApp connects every collaborator and builds the HTTP server. ctx bounds
// the background janitor; startup itself is limited to five minutes.
func NewApp(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*App, error) {
	appCtx, cancel := context.WithTimeout(ctx, 5*time.Minute)
	defer cancel()

	a := &App{logger: logger}
	ok := false
	defer func() {
		if !ok {
			a.Close()
		}
	}()

	dbClient, err := db.NewDatabaseClient(appCtx, cfg)
	if err != nil {
		return nil, err
	}
	a.DBClient = dbClient
	a.closers = append(a.closers, dbClient.Close)
	logger.Info("database initialized and ready")

	jobs, err := a.newJobStore(ctx, appCtx, cfg)
	if err != nil {
		return nil, err
	}

	var objects core.ObjectClient
	s3Client, err := objectclient.NewS3Client(appCtx, cfg, logger)
	switch {
	case errors.Is(err, objectclient.ErrNotConfigured):
		logger.Warn("object storage not configured, originals will not be kept")
	case err != nil:
		return nil, err
	default:
		objects = s3Client
	}

	embedder, err := a.newEmbedder(appCtx, cfg)
	if err != nil {
		return nil, fmt.Errorf("couldn't initialize the embedder, %w", err)
	}

	notifiers := notify.Multi{notify.NewLogNotifier(logger)}
	if cfg.WebhookURL != "" {
		notifiers = append(notifiers, notify.NewWebhookNotifier(cfg.WebhookURL, cfg.WebhookTimeout))
	}

	runner, err := ingestion_engine.NewRunner(2*cfg.MaxConcurrentJobs, logger)
	if err != nil {
		return nil, err
	}
	a.runner = runner

	scanner := sanitizer.NewScanner()
	pdfExtractor := extractor.NewPDFExtractor(extractor.NewDocconvExtractor(), logger)
	docIngestor, err := ingestion_engine.NewDocumentIngestor(ingestion_engine.Deps{
		DB:       dbClient,
		Identity: dbClient,
		Objects:  objects,
		Embedder: embedder,
		Jobs:     jobs,
		Notifier: notifiers,
		Reader:   ingestion_engine.NewReader(pdfExtractor, layout.DefaultOptions(), cfg.MaxPDFPages, logger),
		Chunker: chunker.New(
			chunker.WithChunkSize(cfg.ChunkSize),
			chunker.WithOverlap(cfg.ChunkOverlap),
			chunker.WithMaxChunks(cfg.MaxChunksPerPDF),
			chunker.WithScanner(scanner),
		),
		Scanner: scanner,
		Gate:    ingestion_engine.NewGate(cfg.MaxConcurrentJobs),
		Runner:  runner,
		Logger:  logger,
	}, ingestion_engine.IngestConfig{
		MinFileSize:   cfg.MinFileSize,
		MaxFileSize:   cfg.MaxFileSize,
		InsertBatch:   cfg.ChunkInsertBatch,
		StorageFolder: cfg.SpacesFolder,
	})
	if err != nil {
		return nil, err
	}
	a.Ingestor = docIngestor
	a.Reconciler = ingestion_engine.NewReconciler(dbClient, logger)
	a.Server = NewServer(cfg, logger, docIngestor, a.Reconciler)

	ok = true
	return a, nil
}

func (a *App) newJobStore(ctx, appCtx context.Context, cfg *config.Config) (core.JobStore, error) {
	policy := jobstore.TTLPolicy{
		Processing: cfg.JobTTL,
		Completed:  cfg.JobTTLCompleted,
		Failed:     cfg.JobTTLFailed,
	}
	if cfg.RedisAddr == "" {
		store := jobstore.NewMemoryStore(policy)
		store.StartJanitor(ctx, time.Minute)
		a.logger.Info("job store ready", zap.String("backend", store.Name()))
		return store, nil
	}

	client, err := jobstore.NewRedisClient(appCtx, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
	if err != nil {
		return nil, err
	}
	store := jobstore.NewRedisStore(client, policy)
	a.closers = append(a.closers, store.Close)
	a.logger.Info("job store ready", zap.String("backend", store.Name()), zap.String("addr", cfg.RedisAddr))
	return store, nil
}

// newEmbedder picks the provider and wraps it in the retrying batch client.
func (a *App) newEmbedder(ctx context.Context, cfg *config.Config) (core.EmbeddingProvider, error) {
	var (
		provider  core.EmbeddingProvider
		batchSize = cfg.EmbedBatchSize
	)
	switch cfg.EmbedProvider {
	case "gemini":
		g, err := llm.NewGeminiEmbedder(ctx, cfg.AIAPIKey, cfg.EmbedModel)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, g.Close)
		provider = g
		batchSize = min(batchSize, llm.GeminiMaxBatch)
	default:
		o, err := llm.NewOpenAIEmbedder(llm.OpenAIConfig{
			APIKey:    cfg.OpenAIAPIKey,
			BaseURL:   cfg.OpenAIBaseURL,
			Model:     cfg.OpenAIEmbedModel,
			BatchSize: batchSize,
		})
		if err != nil {
			return nil, err
		}
		provider = o
	}

	a.logger.Info("embedder ready",
		zap.String("provider", cfg.EmbedProvider),
		zap.String("model", provider.ModelName()),
		zap.Int("dimensions", cfg.EmbedDim),
		zap.Int("batch_size", batchSize),
	)
	return llm.NewClient(provider, a.logger,
		llm.WithBatchSize(batchSize),
		llm.WithMaxAttempts(cfg.EmbedMaxRetries),
		llm.WithBaseBackoff(cfg.EmbedBaseBackoff),
		llm.WithDimensions(cfg.EmbedDim),
		llm.WithRateLimit(cfg.EmbedRPS, 1),
	), nil
}

// Close stops the worker pool and closes connections in reverse order.
func (a *App) Close() {
	if a.runner != nil {
		a.runner.Release()
	}
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			a.logger.Warn("close failed", zap.Error(err))
		}
	}
	a.closers = nil
}
