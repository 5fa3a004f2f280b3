package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/platformbuilds/dashbridge/internal/api"
	"github.com/platformbuilds/dashbridge/internal/config"
	"github.com/platformbuilds/dashbridge/internal/enrich"
	"github.com/platformbuilds/dashbridge/internal/logging"
	"github.com/platformbuilds/dashbridge/internal/repo"
	"github.com/platformbuilds/dashbridge/internal/services"
	"github.com/platformbuilds/dashbridge/internal/tracing"
	"github.com/platformbuilds/dashbridge/internal/version"
	"github.com/platformbuilds/dashbridge/pkg/cache"
	"github.com/platformbuilds/dashbridge/pkg/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	logger := logger.New(cfg.LogLevel)
	logger.Info("Starting dashbridge", "version", version.Version, "commit", version.CommitHash, "environment", cfg.Environment)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if cfg.Monitoring.TracingEnabled {
		tp, err := tracing.NewTracerProvider(ctx, cfg.Monitoring.ServiceName, version.Version, cfg.Monitoring.OTLPEndpoint)
		if err != nil {
			logger.Fatal("Failed to initialize tracing", "error", err)
		}
		defer func() {
			shutdownCtx, done := context.WithTimeout(context.Background(), 5*time.Second)
			defer done()
			if err := tp.Shutdown(shutdownCtx); err != nil {
				logger.Error("Failed to flush traces", "error", err)
			}
		}()
		logger.Info("Tracing enabled", "otlp_endpoint", cfg.Monitoring.OTLPEndpoint)
	}

	store := newStore(ctx, cfg, logger)
	ilog := logging.FromCoreLogger(logger)

	enricher, err := enrich.New(cfg.Enrichment, logging.With(ilog, "component", "enrich"))
	if err != nil {
		logger.Fatal("Failed to initialize query enrichment", "error", err)
	}
	if enricher.Enabled() {
		logger.Info("Query suggestions enabled", "provider", cfg.Enrichment.Provider, "model", cfg.Enrichment.Model)
	}

	converter := services.NewConverter(cfg.Conversion, enricher, ilog)
	artifacts := repo.NewArtifactStore(store, cfg.CacheTTL())
	jobStore := repo.NewJobStore(store, cfg.JobTTL(), logging.With(ilog, "component", "jobs"))
	go jobStore.RunJanitor(ctx, time.Minute)

	jobs := services.NewJobService(converter, jobStore, artifacts, ilog)
	conversions := services.NewConversionService(jobs, repo.NewBatchStore(store, cfg.CacheTTL()), ilog)

	apiServer := api.NewServer(cfg, logger, store, conversions, jobs)

	if cfg.Source != "" {
		watcher := config.NewConfigWatcher(cfg, cfg.Source, logger)
		watcher.RegisterWatcher(apiServer.ApplyConfig)
		go func() {
			if err := watcher.Start(ctx); err != nil {
				logger.Warn("Configuration hot reload disabled", "error", err)
			}
		}()
	}

	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		<-sigChan
		logger.Info("Shutdown signal received")
		cancel()
	}()

	if err := apiServer.Start(ctx); err != nil {
		logger.Fatal("Server failed", "error", err)
	}

	logger.Info("dashbridge shutdown complete")
}

// newStore builds the byte store behind jobs, artifacts and batches. In
// memory mode entries are swept locally; with auto_swap the service starts
// on memory and moves to Valkey once it answers.
func newStore(ctx context.Context, cfg *config.Config, log logger.Logger) cache.ValkeyCluster {
	ttl := cfg.CacheTTL()
	if cfg.Cache.Mode == "memory" {
		mem := cache.NewNoopValkeyCache(log, ttl)
		go mem.RunJanitor(ctx, time.Minute)
		return mem
	}

	if cfg.Cache.AutoSwap {
		mem := cache.NewNoopValkeyCache(log, ttl)
		go mem.RunJanitor(ctx, time.Minute)
		if cfg.Cache.Mode == "single" {
			return cache.NewAutoSwapForSingle(cfg.Cache.Nodes[0], cfg.Cache.DB, cfg.Cache.Password, ttl, log, mem)
		}
		return cache.NewAutoSwapForCluster(cfg.Cache.Nodes, cfg.Cache.Password, ttl, log, mem)
	}

	var (
		store cache.ValkeyCluster
		err   error
	)
	if cfg.Cache.Mode == "single" {
		store, err = cache.NewValkeySingle(cfg.Cache.Nodes[0], cfg.Cache.DB, cfg.Cache.Password, ttl)
	} else {
		store, err = cache.NewValkeyCluster(cfg.Cache.Nodes, cfg.Cache.Password, ttl)
	}
	if err != nil {
		log.Fatal("Failed to connect to Valkey", "mode", cfg.Cache.Mode, "nodes", cfg.Cache.Nodes, "error", err)
	}
	log.Info("Valkey store initialized", "mode", cfg.Cache.Mode, "nodes", len(cfg.Cache.Nodes))
	return store
}
