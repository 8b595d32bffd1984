// Package main provides the entry point for the StageZero server, a log
// classification pipeline that matches uploaded log artifacts against a
// MITRE ATT&CK technique index and produces an incident report.
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/lvonguyen/stagezero/internal/api"
	"github.com/lvonguyen/stagezero/internal/api/gateway"
	"github.com/lvonguyen/stagezero/internal/classifier"
	"github.com/lvonguyen/stagezero/internal/config"
	"github.com/lvonguyen/stagezero/internal/delivery"
	"github.com/lvonguyen/stagezero/internal/ingestion"
	"github.com/lvonguyen/stagezero/internal/mitre"
	"github.com/lvonguyen/stagezero/internal/observability"
	"github.com/lvonguyen/stagezero/internal/report"
	"github.com/lvonguyen/stagezero/internal/store"
)

// Version information (injected at build time via ldflags)
var (
	Version   = "dev"
	GitCommit = "unknown"
	BuildTime = "unknown"
)

func main() {
	configPath := flag.String("config", "configs/config.yaml", "Path to config file")
	showVersion := flag.Bool("version", false, "Show version information")
	flag.Parse()

	if *showVersion {
		fmt.Printf("StageZero %s (commit: %s, built: %s)\n", Version, GitCommit, BuildTime)
		os.Exit(0)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		cfg = config.Default()
	}

	logger, err := observability.NewLogger(cfg.Logging)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger init failed: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	logger.Info("starting StageZero",
		zap.String("version", Version),
		zap.String("config", *configPath),
	)

	metrics := observability.NewMetrics()

	// Corpus failures are logged once here and the server runs degraded
	// with an empty index rather than aborting.
	index, err := mitre.LoadFile(cfg.Corpus.Path, logger)
	if err != nil {
		logger.Warn("technique corpus unavailable, running with empty index",
			zap.Error(err),
		)
	}
	metrics.IndexSize.Set(float64(index.Len()))

	var redisClient *redis.Client
	if cfg.Redis.Enabled {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: os.Getenv(cfg.Redis.PasswordEnv),
			DB:       cfg.Redis.DB,
			PoolSize: cfg.Redis.PoolSize,
		})
		if err := redisClient.Ping(context.Background()).Err(); err != nil {
			logger.Warn("redis unreachable, caching and rate limiting disabled",
				zap.String("addr", cfg.Redis.Addr),
				zap.Error(err),
			)
			redisClient = nil
		}
	}

	artifacts, err := store.NewArtifactStore(cfg.Artifacts.Dir, cfg.Classifier.ExcerptBytes, logger)
	if err != nil {
		logger.Fatal("artifact store init failed", zap.Error(err))
	}

	opts := api.Options{Metrics: metrics}
	if redisClient != nil {
		opts.Cache = store.NewReportCache(redisClient, cfg.Redis.CacheTTL, logger)
		if cfg.Server.RateLimit.Enabled {
			opts.Limiter = gateway.NewRateLimiter(redisClient, cfg.Server.RateLimit, logger).Middleware
		}
	}

	server := api.NewServer(
		cfg,
		logger,
		classifier.New(index, logger, cfg.Classifier.Workers),
		report.NewBuilder(logger),
		ingestion.NewLoader(logger),
		artifacts,
		delivery.NewClient(cfg.Delivery, logger),
		opts,
	)

	httpServer := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      server.Handler(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	go func() {
		logger.Info("server listening", zap.String("addr", httpServer.Addr))
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server error", zap.Error(err))
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigChan
	logger.Info("shutting down", zap.String("signal", sig.String()))

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown error", zap.Error(err))
	}
	logger.Info("server stopped")
}
