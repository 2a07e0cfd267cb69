package main

import (
	"context"
	"os"
	"time"

	"buckify/internal/amqp"
	"buckify/internal/auth"
	"buckify/internal/cache"
	"buckify/internal/cli"
	"buckify/internal/core"
	apphttp "buckify/internal/http"
	applog "buckify/internal/log"
	"buckify/internal/services"
	"buckify/internal/worker"
)

func main() {
	cli.LoadEnvFile()
	logger := cli.SetupLogger(os.Getenv("LOG_LEVEL"), applog.ComponentApp)
	cfg := cli.LoadAndValidateConfig(logger)

	startCtx, cancelStart := context.WithTimeout(context.Background(), 30*time.Second)
	backend := cli.InitBackend(startCtx, logger, cfg)
	store := backend.Store

	overviews := cache.NewLRUCache[core.MonthOverview](cfg.CacheSize, cfg.CacheTTL)
	caches := cache.NewManager()
	caches.Register(overviews)
	caches.StartCleanup(cfg.CacheTTL)

	summary := services.NewSummaryService(store, store, overviews)
	categories := services.NewCategoryService(store, store,
		services.WithDeleteLimit(cfg.CategoryDeleteLimit),
		services.WithCacheInvalidator(summary))
	transactions := services.NewTransactionService(store, store, summary)

	importOpts := []services.ImportOption{
		services.WithMaxBytes(cfg.ImportMaxBytes),
		services.WithImportInvalidator(summary),
	}
	var publisher *amqp.Client
	if cfg.AMQPEnabled() {
		var err error
		publisher, err = amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue)
		if err != nil {
			logger.Warn("Failed to initialize AMQP client, scanning imports inline", applog.FieldError, err)
		} else {
			importOpts = append(importOpts, services.WithPublisher(publisher))
			logger.Info("Initialized AMQP client", "exchange", cfg.AMQPExchange, "queue", cfg.AMQPQueue)
		}
	}
	imports := services.NewImportService(store, store, store,
		cli.NewStatementScanner(startCtx, logger, cfg), importOpts...)
	cancelStart()

	// With a publisher the worker owns the purge; otherwise nothing else runs it.
	var purger *worker.PurgeScheduler
	if publisher == nil {
		purger = worker.NewPurgeScheduler(imports, cfg.ImportRetention)
		if _, err := purger.Schedule(cfg.ImportPurgeSchedule); err != nil {
			logger.Error("Failed to schedule import purge", applog.FieldError, err)
			os.Exit(1)
		}
		purger.Start()
	}

	issuer, err := auth.NewIssuer(cfg.JWTSecret, cfg.JWTTTL)
	if err != nil {
		logger.Error("Failed to initialize token issuer", applog.FieldError, err)
		os.Exit(1)
	}

	srv := apphttp.NewServer(":"+cfg.Port, apphttp.Services{
		Categories:   categories,
		Transactions: transactions,
		Summary:      summary,
		Imports:      imports,
	}, apphttp.Options{
		Auth:               issuer,
		Pinger:             store,
		Logger:             logger,
		RateLimitPerMinute: cfg.RateLimitPerMinute,
	})

	ctx, done := cli.GracefulShutdown(logger, 30*time.Second, func(ctx context.Context) {
		if err := srv.Shutdown(ctx); err != nil {
			logger.Error("Server shutdown error", applog.FieldError, err)
		}
		if purger != nil {
			purger.Stop()
		}
		caches.Stop()
		if publisher != nil {
			publisher.Close()
		}
		if err := backend.Close(); err != nil {
			logger.Error("Failed to close store", applog.FieldError, err)
		}
	})

	logger.Info("Starting buckify server",
		"port", cfg.Port,
		"backend", cfg.DataBackend,
		"scanner_enabled", cfg.ScannerEnabled(),
		"amqp_enabled", publisher != nil)
	if err := srv.ListenAndServe(); err != nil {
		logger.Error("Server error", applog.FieldError, err, "port", cfg.Port)
		os.Exit(1)
	}

	cli.WaitForShutdown(ctx, done)
	logger.Info("Server stopped gracefully")
}
