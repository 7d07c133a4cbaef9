// Package app assembles the components shared by the homefinder binaries.
package app

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/kailas-cloud/homefinder/internal/config"
	"github.com/kailas-cloud/homefinder/internal/db"
	dbValkey "github.com/kailas-cloud/homefinder/internal/db/valkey"
	listingrepo "github.com/kailas-cloud/homefinder/internal/repository/listing"
	openaiEmb "github.com/kailas-cloud/homefinder/internal/transport/openai"
	embeddinguc "github.com/kailas-cloud/homefinder/internal/usecase/embedding"
)

// OpenStore connects to Valkey and waits until it answers.
func OpenStore(ctx context.Context, cfg config.DatabaseConfig, logger *zap.Logger) (*dbValkey.Store, error) {
	store, err := dbValkey.NewStore(dbValkey.Config{
		Addrs:    cfg.Addrs,
		Username: cfg.Username,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err != nil {
		return nil, fmt.Errorf("create database store: %w", err)
	}
	if err := store.WaitForReady(ctx, time.Duration(cfg.ReadinessTimeout)*time.Second); err != nil {
		store.Close()
		return nil, fmt.Errorf("database not ready: %w", err)
	}
	logger.Info("Connected to database", zap.Strings("addrs", cfg.Addrs))
	return store, nil
}

// ListingIndex builds the listing repository and creates the FT index when it is missing.
func ListingIndex(ctx context.Context, cfg *config.Config, store db.Store, logger *zap.Logger) (*listingrepo.Repo, error) {
	metric, err := db.ParseDistanceMetric(cfg.Index.Metric)
	if err != nil {
		return nil, fmt.Errorf("index metric: %w", err)
	}
	repo := listingrepo.New(store, listingrepo.Config{
		KeyPrefix:          cfg.Storage.KeyPrefix,
		Name:               cfg.Index.Name,
		Dimensions:         cfg.Index.Dimensions,
		Distance:           metric,
		HNSWM:              cfg.Index.HNSWM,
		HNSWEFConstruction: cfg.Index.HNSWEFConstruct,
		BatchSize:          cfg.Index.UpsertBatchSize,
		QueryTimeout:       cfg.Index.QueryTimeout(),
		WriteTimeout:       cfg.Index.WriteTimeout(),
	})

	created, err := repo.EnsureIndex(ctx)
	if err != nil {
		return nil, fmt.Errorf("ensure listing index: %w", err)
	}
	logger.Info("Listing index ready",
		zap.String("name", cfg.Index.Name),
		zap.Bool("created", created),
		zap.Int("dimensions", cfg.Index.Dimensions),
		zap.String("metric", string(metric)),
		zap.String("cloud", cfg.Index.Cloud),
		zap.String("region", cfg.Index.Region),
	)
	return repo, nil
}

// Embedder assembles the embedding chain: OpenAI transport wrapped in retries,
// per-attempt timeouts and rate limiting.
func Embedder(cfg config.EmbeddingConfig, logger *zap.Logger) *embeddinguc.ResilientEmbedder {
	base := openaiEmb.NewEmbedder(&openaiEmb.Config{
		APIKey:     cfg.APIKey,
		BaseURL:    cfg.BaseURL,
		Model:      cfg.Model,
		Dimensions: cfg.Dimensions,
		Provider:   cfg.Provider,
		Logger:     logger,
	})
	return embeddinguc.NewResilientEmbedder(base, embeddinguc.Config{
		Provider:          cfg.Provider,
		Model:             cfg.Model,
		Timeout:           cfg.Timeout(),
		MaxRetries:        cfg.MaxRetries,
		InitialBackoff:    cfg.RetryInitialBackoff(),
		RequestsPerSecond: cfg.RequestsPerSecond,
	}, logger)
}
