// Command homefinder-ingest loads a JSON array of listings into the vector index.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/kailas-cloud/homefinder/internal/app"
	"github.com/kailas-cloud/homefinder/internal/config"
	logpkg "github.com/kailas-cloud/homefinder/internal/logger"
	"github.com/kailas-cloud/homefinder/internal/metrics"
	"github.com/kailas-cloud/homefinder/internal/repository/embcache"
	"github.com/kailas-cloud/homefinder/internal/usecase/ingest"
)

func main() {
	os.Exit(run())
}

func run() int {
	env := flag.String("env", config.GetEnv(), "config environment (local, dev, prod)")
	file := flag.String("file", "", "listings JSON file (default: ingest.file from config)")
	flag.Parse()

	cfg, err := config.Load(*env)
	if err != nil {
		fmt.Fprintln(os.Stderr, "failed to load config:", err)
		return 1
	}
	if *file != "" {
		cfg.Ingest.File = *file
	}

	logger, err := logpkg.NewLogger(*env, cfg.Logging.Level)
	if err != nil {
		fmt.Fprintln(os.Stderr, "failed to create logger:", err)
		return 1
	}
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	metrics.RegisterEmbeddingMetrics()
	metrics.RegisterServiceMetrics()

	src, err := os.Open(cfg.Ingest.File)
	if err != nil {
		logger.Error("Failed to open listings file", zap.String("file", cfg.Ingest.File), zap.Error(err))
		return 1
	}
	defer src.Close()

	store, err := app.OpenStore(ctx, cfg.Database, logger)
	if err != nil {
		logger.Error("Failed to open database", zap.Error(err))
		return 1
	}
	defer store.Close()

	listings, err := app.ListingIndex(ctx, &cfg, store, logger)
	if err != nil {
		logger.Error("Failed to prepare listing index", zap.Error(err))
		return 1
	}

	var embedder ingest.Embedder = app.Embedder(cfg.Embedding, logger)
	if cfg.Ingest.CacheEmbeddings {
		embedder = embcache.New(embedder, store, embcache.Config{
			KeyPrefix:  cfg.Storage.KeyPrefix,
			Model:      cfg.Embedding.Model,
			Dimensions: cfg.Index.Dimensions,
			TTL:        time.Duration(cfg.Ingest.CacheTTLHours) * time.Hour,
		}, metrics.EmbeddingCacheTotal, logger)
	}

	svc := ingest.New(listings, embedder, ingest.Config{
		Workers:       cfg.Ingest.Workers,
		UpsertRetries: cfg.Ingest.UpsertRetries,
	}, logger)

	logger.Info("Ingesting listings",
		zap.String("file", cfg.Ingest.File),
		zap.Int("batch_size", listings.BatchSize()),
		zap.Bool("cache_embeddings", cfg.Ingest.CacheEmbeddings),
	)
	report, err := svc.Ingest(ctx, src)
	printReport(report)
	if err != nil {
		logger.Error("Ingestion aborted", zap.Error(err))
		return 1
	}
	return 0
}

func printReport(r ingest.Report) {
	out := struct {
		ingest.Report
		Duration string `json:"duration"`
	}{Report: r, Duration: r.Duration.Round(time.Millisecond).String()}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	_ = enc.Encode(out)
}
