package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/calyx-labs/ragline/internal/config"
	dbRedis "github.com/calyx-labs/ragline/internal/db/redis"
	"github.com/calyx-labs/ragline/internal/domain"
	"github.com/calyx-labs/ragline/internal/embedding"
	"github.com/calyx-labs/ragline/internal/ingest"
	logpkg "github.com/calyx-labs/ragline/internal/logger"
	"github.com/calyx-labs/ragline/internal/metrics"
	"github.com/calyx-labs/ragline/internal/rag"
	"github.com/calyx-labs/ragline/internal/transport/httpapi"
	openaiTransport "github.com/calyx-labs/ragline/internal/transport/openai"
	"github.com/calyx-labs/ragline/internal/vectorstore"
	"github.com/calyx-labs/ragline/internal/version"
)

func main() {
	env := config.GetEnv()

	cfg, err := config.Load(env)
	if err != nil {
		panic("failed to load config: " + err.Error())
	}

	logger, err := logpkg.New(env, cfg.Logging.Level)
	if err != nil {
		panic("failed to create logger: " + err.Error())
	}
	defer func() { _ = logger.Sync() }()

	logger.Info("Starting ragline API server",
		zap.String("version", version.Version),
		zap.String("commit", version.Commit),
		zap.String("env", env),
		zap.Int("http_port", cfg.HTTP.Port),
		zap.Strings("db_addrs", cfg.Database.Addrs),
	)

	store, err := dbRedis.NewStore(dbRedis.Config{
		Addrs:    cfg.Database.Addrs,
		Username: cfg.Database.Username,
		Password: cfg.Database.Password,
	})
	if err != nil {
		logger.Fatal("Failed to create database store", zap.Error(err))
	}
	defer store.Close()

	ctx := context.Background()
	if err := store.WaitForReady(ctx, time.Duration(cfg.Database.ReadinessTimeout)*time.Second); err != nil {
		logger.Fatal("Database not ready", zap.Error(err))
	}
	logger.Info("Connected to database")

	// Register metrics explicitly (no init())
	metrics.RegisterEmbeddingMetrics()
	metrics.RegisterPipelineMetrics()

	// Embedder chain: OpenAI -> Cached
	var embedder domain.Embedder = openaiTransport.NewEmbedder(&openaiTransport.EmbedderConfig{
		APIKey:     cfg.Embedding.APIKey,
		BaseURL:    cfg.Embedding.BaseURL,
		Model:      cfg.Embedding.Model,
		Dimensions: cfg.Embedding.Dimensions,
		Provider:   "openai",
		Logger:     logger,
	})
	if cfg.Embedding.Cache {
		embedder = embedding.NewCachedEmbedder(
			embedder, store, cfg.Embedding.Model, cfg.Storage.KeyPrefix, logger,
		)
	}
	logger.Info("Embedder created",
		zap.String("model", cfg.Embedding.Model),
		zap.Int("dimensions", cfg.Embedding.Dimensions),
		zap.Bool("cache", cfg.Embedding.Cache),
	)

	generator := openaiTransport.NewGenerator(&openaiTransport.GeneratorConfig{
		APIKey:      cfg.Inference.APIKey,
		BaseURL:     cfg.Inference.BaseURL,
		Model:       cfg.Inference.Model,
		MaxTokens:   cfg.Inference.MaxTokens,
		Temperature: cfg.Inference.Temperature,
		Provider:    "openai",
		Logger:      logger,
	})

	vstore := vectorstore.New(store, cfg.Storage.KeyPrefix).
		WithHNSW(vectorstore.HNSWConfig{
			M:           cfg.Index.HNSWM,
			EFConstruct: cfg.Index.HNSWEFConstruct,
		}).
		WithIsolationM(cfg.Index.IsolationM)

	ingester := ingest.New(vstore, embedder, cfg.Ingest.Workers, logger)

	template, err := cfg.LoadTemplate()
	if err != nil {
		logger.Fatal("Failed to load reprompt template", zap.Error(err))
	}

	factory := rag.NewFactory(rag.FactoryConfig{
		Embedder:   embedder,
		Store:      vstore,
		Generator:  generator,
		Collection: cfg.RAG.Collection,
		Template:   template,
		TopK:       cfg.RAG.TopK,
		Candidates: cfg.RAG.Candidates,
		Logger:     logger,
	})

	server := httpapi.NewServer(httpapi.Config{
		Factory:      factory,
		Ingester:     ingester,
		Collections:  vstore,
		Pinger:       store,
		NewSource:    sourceFactory(cfg, logger),
		StreamBuffer: cfg.RAG.StreamBuffer,
		Logger:       logger,
	})

	r := chi.NewRouter()
	r.Use(httpapi.JSONRecoverer(logger))
	r.Use(chiMiddleware.RequestID)
	r.Use(httpapi.WideEvent(logger))
	r.Use(metrics.Middleware())
	server.Routes(r)

	addr := fmt.Sprintf(":%d", cfg.HTTP.Port)
	srv := &http.Server{
		Addr:        addr,
		Handler:     r,
		ReadTimeout: time.Duration(cfg.HTTP.ReadTimeoutSec) * time.Second,
		// no WriteTimeout: /query streams for as long as generation runs
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)

	go func() {
		logger.Info("Starting HTTP server", zap.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("HTTP server error", zap.Error(err))
		}
	}()

	<-quit
	logger.Info("Received shutdown signal")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Duration(cfg.HTTP.ShutdownSec)*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Error during shutdown", zap.Error(err))
	}

	logger.Info("Server stopped gracefully")
}

// sourceFactory builds a fresh row source per upload from the configured
// ingest path.
func sourceFactory(cfg config.Config, logger *zap.Logger) func() (ingest.Source, error) {
	return func() (ingest.Source, error) {
		if cfg.Ingest.SourcePath == "" {
			return nil, fmt.Errorf("ingest.source_path is not configured")
		}
		switch cfg.Ingest.Format {
		case "parquet":
			return ingest.NewParquetSource(cfg.Ingest.SourcePath, logger), nil
		default:
			return ingest.NewCSVSource(cfg.Ingest.SourcePath, logger), nil
		}
	}
}
