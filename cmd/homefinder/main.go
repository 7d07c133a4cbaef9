package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/kailas-cloud/homefinder/internal/app"
	"github.com/kailas-cloud/homefinder/internal/config"
	"github.com/kailas-cloud/homefinder/internal/domain/session"
	logpkg "github.com/kailas-cloud/homefinder/internal/logger"
	"github.com/kailas-cloud/homefinder/internal/metrics"
	contactrepo "github.com/kailas-cloud/homefinder/internal/repository/contact"
	sessionrepo "github.com/kailas-cloud/homefinder/internal/repository/session"
	chiTransport "github.com/kailas-cloud/homefinder/internal/transport/chi"
	"github.com/kailas-cloud/homefinder/internal/transport/ws"
	"github.com/kailas-cloud/homefinder/internal/usecase/agent"
	healthuc "github.com/kailas-cloud/homefinder/internal/usecase/health"
	searchuc "github.com/kailas-cloud/homefinder/internal/usecase/search"
	"github.com/kailas-cloud/homefinder/internal/version"
)

func main() {
	env := config.GetEnv()

	cfg, err := config.Load(env)
	if err != nil {
		panic("failed to load config: " + err.Error())
	}

	logger, err := logpkg.NewLogger(env, cfg.Logging.Level)
	if err != nil {
		panic("failed to create logger: " + err.Error())
	}
	defer func() { _ = logger.Sync() }()

	logger.Info("Starting homefinder API server",
		zap.String("version", version.Version),
		zap.String("commit", version.Commit),
		zap.String("env", env),
		zap.Int("http_port", cfg.HTTP.Port),
		zap.Strings("db_addrs", cfg.Database.Addrs),
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	metrics.RegisterEmbeddingMetrics()
	metrics.RegisterServiceMetrics()

	store, err := app.OpenStore(ctx, cfg.Database, logger)
	if err != nil {
		logger.Fatal("Failed to open database", zap.Error(err))
	}
	defer store.Close()

	listings, err := app.ListingIndex(ctx, &cfg, store, logger)
	if err != nil {
		logger.Fatal("Failed to prepare listing index", zap.Error(err))
	}

	embedder := app.Embedder(cfg.Embedding, logger)
	logger.Info("Embedder created",
		zap.String("provider", cfg.Embedding.Provider),
		zap.String("model", cfg.Embedding.Model),
	)

	lang, err := session.ParseLanguage(cfg.Agent.DefaultLanguage)
	if err != nil {
		logger.Fatal("Invalid default language", zap.Error(err))
	}

	searchSvc := searchuc.New(listings, embedder, searchuc.Config{
		DefaultTopK: cfg.Search.DefaultTopK,
		MaxTopK:     cfg.Search.MaxTopK,
	}, logger)

	hub := ws.NewHub(ws.Config{}, logger)
	agentSvc := agent.New(
		searchSvc,
		sessionrepo.New(store, cfg.Storage.KeyPrefix, cfg.Agent.SessionTTL()),
		contactrepo.New(store, cfg.Storage.KeyPrefix),
		hub,
		agent.Config{DefaultLanguage: lang, DefaultTopK: cfg.Search.DefaultTopK},
		logger,
	)
	healthSvc := healthuc.New(store, listings, embedder)

	server := chiTransport.NewServer(agentSvc, searchSvc, healthSvc, hub, logger)

	addr := fmt.Sprintf(":%d", cfg.HTTP.Port)
	srv := &http.Server{
		Addr:              addr,
		Handler:           server.Router(chiTransport.Options{APIKeys: cfg.Auth.APIKeys}),
		ReadHeaderTimeout: time.Duration(cfg.HTTP.ReadTimeoutSec) * time.Second,
		WriteTimeout:      time.Duration(cfg.HTTP.WriteTimeoutSec) * time.Second,
	}

	go func() {
		logger.Info("Starting HTTP server", zap.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("HTTP server error", zap.Error(err))
		}
	}()

	<-ctx.Done()
	logger.Info("Received shutdown signal")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Duration(cfg.HTTP.ShutdownSec)*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Error during shutdown", zap.Error(err))
	}

	logger.Info("Server stopped gracefully")
}
