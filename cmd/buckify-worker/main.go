package main

import (
	"context"
	"errors"
	"os"
	"time"

	"buckify/internal/amqp"
	"buckify/internal/backend"
	"buckify/internal/cli"
	applog "buckify/internal/log"
	"buckify/internal/services"
	"buckify/internal/worker"
)

func main() {
	cli.LoadEnvFile()
	logger := cli.SetupLogger(os.Getenv("LOG_LEVEL"), applog.ComponentWorker)
	logger.Info("Starting buckify-worker")

	cfg := cli.LoadAndValidateConfig(logger)
	if backend.BackendType(cfg.DataBackend) != backend.SQLiteBackend {
		logger.Error("The worker shares state with the server and needs DATA_BACKEND=sqlite", "backend", cfg.DataBackend)
		os.Exit(1)
	}
	if !cfg.AMQPEnabled() {
		logger.Error("AMQP_URL is required for the worker")
		os.Exit(1)
	}

	startCtx, cancelStart := context.WithTimeout(context.Background(), 30*time.Second)
	store := cli.InitBackend(startCtx, logger, cfg)
	imports := services.NewImportService(store.Store, store.Store, store.Store,
		cli.NewStatementScanner(startCtx, logger, cfg),
		services.WithMaxBytes(cfg.ImportMaxBytes))
	cancelStart()

	client, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue)
	if err != nil {
		logger.Error("Failed to initialize AMQP client", applog.FieldError, err)
		os.Exit(1)
	}

	purger := worker.NewPurgeScheduler(imports, cfg.ImportRetention)
	if _, err := purger.Schedule(cfg.ImportPurgeSchedule); err != nil {
		logger.Error("Failed to schedule import purge", applog.FieldError, err)
		os.Exit(1)
	}

	scans := worker.NewScanWorker(imports)
	consumed := make(chan struct{})

	ctx, done := cli.GracefulShutdown(logger, 30*time.Second, func(ctx context.Context) {
		purger.Stop()
		// The consumer returns once the signal context is cancelled.
		select {
		case <-consumed:
		case <-ctx.Done():
		}
		client.Close()
		if err := store.Close(); err != nil {
			logger.Error("Failed to close store", applog.FieldError, err)
		}
	})

	// Purge anything that expired while the worker was down.
	purger.RunOnce(ctx)
	purger.Start()

	go func() {
		defer close(consumed)
		if err := client.ConsumeImportScans(ctx, scans.HandleScanMessage); err != nil && !errors.Is(err, context.Canceled) {
			logger.Error("Message consumption failed", applog.FieldError, err)
		}
	}()

	logger.Info("Worker ready", "queue", cfg.AMQPQueue, "purge_schedule", cfg.ImportPurgeSchedule)
	cli.WaitForShutdown(ctx, done)
}
