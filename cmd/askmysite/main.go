// Package main wires together the askmysite service binary.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"cloud.google.com/go/pubsub"
	gcsclient "cloud.google.com/go/storage"
	"go.uber.org/zap"

	"github.com/askmysite/askmysite/internal/api"
	"github.com/askmysite/askmysite/internal/clock/system"
	"github.com/askmysite/askmysite/internal/config"
	"github.com/askmysite/askmysite/internal/crawl"
	"github.com/askmysite/askmysite/internal/dispatcher"
	"github.com/askmysite/askmysite/internal/hash/sha256"
	"github.com/askmysite/askmysite/internal/id/uuid"
	"github.com/askmysite/askmysite/internal/index"
	anthropicllm "github.com/askmysite/askmysite/internal/llm/anthropic"
	openaillm "github.com/askmysite/askmysite/internal/llm/openai"
	"github.com/askmysite/askmysite/internal/logging"
	"github.com/askmysite/askmysite/internal/metrics"
	"github.com/askmysite/askmysite/internal/pipeline"
	memorypublisher "github.com/askmysite/askmysite/internal/publisher/memory"
	pubsubpublisher "github.com/askmysite/askmysite/internal/publisher/pubsub"
	queueMemory "github.com/askmysite/askmysite/internal/queue/memory"
	"github.com/askmysite/askmysite/internal/rag"
	"github.com/askmysite/askmysite/internal/storage/gcs"
	memoryStorage "github.com/askmysite/askmysite/internal/storage/memory"
	"github.com/askmysite/askmysite/internal/vecstore"
	"github.com/askmysite/askmysite/internal/worker"
)

func main() {
	cfgPath := flag.String("config", "", "Path to config file")
	flag.Parse()

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config failed: %v\n", err)
		os.Exit(1)
	}
	logger, err := logging.New(cfg.Logging.Development)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger init failed: %v\n", err)
		os.Exit(1)
	}
	defer func() {
		if syncErr := logger.Sync(); syncErr != nil {
			fmt.Fprintf(os.Stderr, "logger sync failed: %v\n", syncErr)
		}
	}()
	zap.ReplaceGlobals(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	metrics.Init()

	embedder, err := openaillm.New(openaillm.Config{
		APIKey:  cfg.LLM.OpenAIAPIKey,
		Model:   cfg.LLM.EmbeddingModel,
		BaseURL: cfg.LLM.EmbeddingBaseURL,
	})
	if err != nil {
		logger.Fatal("embedder init failed", zap.Error(err))
	}
	generator, err := anthropicllm.New(anthropicllm.Config{
		APIKey:    cfg.LLM.AnthropicAPIKey,
		Model:     cfg.LLM.AnthropicModel,
		MaxTokens: cfg.LLM.AnthropicMaxTokens,
	})
	if err != nil {
		logger.Fatal("generator init failed", zap.Error(err))
	}

	var vectorIndex vecstore.VectorIndex
	switch cfg.Index.Provider {
	case "postgres":
		pgIndex, err := vecstore.NewPostgresIndex(ctx, vecstore.PostgresConfig{
			DSN:   cfg.Index.DSN,
			Table: cfg.Index.Table,
		})
		if err != nil {
			logger.Fatal("postgres index init failed", zap.Error(err))
		}
		defer pgIndex.Close()
		if err := pgIndex.EnsureSchema(ctx, cfg.Index.Dimensions); err != nil {
			logger.Fatal("postgres schema init failed", zap.Error(err))
		}
		vectorIndex = pgIndex
	default:
		vectorIndex = vecstore.NewMemoryIndex()
	}

	var publisher rag.Publisher
	if cfg.PubSub.ProjectID != "" && cfg.PubSub.TopicName != "" {
		client, err := pubsub.NewClient(ctx, cfg.PubSub.ProjectID)
		if err != nil {
			logger.Fatal("pubsub client init failed", zap.Error(err))
		}
		defer func() {
			if closeErr := client.Close(); closeErr != nil {
				logger.Warn("pubsub client close failed", zap.Error(closeErr))
			}
		}()
		publisher = pubsubpublisher.New(client.Topic(cfg.PubSub.TopicName))
	} else {
		publisher = memorypublisher.New()
	}

	var archive rag.BlobStore
	switch cfg.Storage.Provider {
	case "gcs":
		client, err := gcsclient.NewClient(ctx)
		if err != nil {
			logger.Fatal("storage client init failed", zap.Error(err))
		}
		defer func() {
			if closeErr := client.Close(); closeErr != nil {
				logger.Warn("storage client close failed", zap.Error(closeErr))
			}
		}()
		archive, err = gcs.New(client, gcs.Config{Bucket: cfg.Storage.GCSBucket})
		if err != nil {
			logger.Fatal("gcs blob store init failed", zap.Error(err))
		}
	case "memory":
		archive = memoryStorage.NewBlobStore()
	}

	hasher := sha256.New()
	clock := system.New()
	idGen := uuid.New()
	jobStore := memoryStorage.NewJobStore(idGen, clock)
	queue := queueMemory.NewQueue(cfg.Crawler.QueueDepth)
	fetcher := crawl.NewFetcher(crawl.FetcherConfig{
		UserAgent:       cfg.Crawler.UserAgent,
		Timeout:         cfg.FetchTimeout(),
		PolitenessDelay: cfg.PolitenessDelay(),
	}, logger.Named("fetcher"))

	indexer := index.New(embedder, vectorIndex, logger.Named("indexer"))
	retriever := index.NewRetriever(embedder, vectorIndex)
	pipe := pipeline.New(
		jobStore,
		fetcher,
		hasher,
		clock,
		indexer,
		retriever,
		generator,
		publisher,
		archive,
		logger.Named("pipeline"),
		pipeline.Config{TopK: cfg.Retrieval.TopK},
	)

	workerCfg := worker.Config{JobTimeout: cfg.JobTimeout()}
	var workers []*worker.Worker
	for i := 0; i < cfg.Crawler.Concurrency; i++ {
		workers = append(workers, worker.New(
			queue,
			pipe,
			workerCfg,
			logger.Named("worker").With(zap.Int("index", i)),
		))
	}
	dispatch := dispatcher.New(queue, workers)

	apiServer := api.NewServer(jobStore, dispatch, pipe, cfg, logger.Named("api"))

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           apiServer.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Info("dispatcher started", zap.Int("workers", len(workers)))
		dispatch.Run(ctx)
	}()

	go func() {
		logger.Info("http server started", zap.Int("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", zap.Error(err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutdown initiated")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", zap.Error(err))
	}
	queue.Close()
	logger.Info("shutdown complete")
}
