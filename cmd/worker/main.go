package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/melbournemould/leadboard/internal/client"
	"github.com/melbournemould/leadboard/internal/config"
	"github.com/melbournemould/leadboard/internal/database"
	"github.com/melbournemould/leadboard/internal/handlers"
	"github.com/melbournemould/leadboard/internal/logger"
	"github.com/melbournemould/leadboard/internal/metrics"
	"github.com/melbournemould/leadboard/internal/queue"
	"github.com/melbournemould/leadboard/internal/repository"
	"github.com/melbournemould/leadboard/internal/worker"
)

func main() {
	ctx := context.Background()

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	if err := cfg.ValidateWorker(); err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	logger.Init(cfg.Logging.Level, cfg.Logging.Format)
	logger.Info(ctx, "Worker starting",
		"poll_interval", cfg.Worker.PollInterval,
		"concurrency", cfg.Worker.Concurrency,
		"max_retry_attempts", cfg.Retry.MaxAttempts)

	// Initialize database connection
	db, err := database.InitFromConfig(ctx, cfg.Database)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()

	logger.Info(ctx, "Database connection established")

	jobQueue, err := queue.New(ctx, cfg.Queue.Type, db.DB, cfg.Queue.RedisURL)
	if err != nil {
		log.Fatalf("Failed to initialize queue: %v", err)
	}
	defer jobQueue.Close()

	logger.Info(ctx, "Queue initialized", "type", cfg.Queue.Type)

	backoffDelays := worker.BackoffSchedule(cfg.Retry.BackoffBase, cfg.Retry.MaxAttempts)
	logger.Info(ctx, "Retry configuration",
		"max_attempts", cfg.Retry.MaxAttempts,
		"backoff_base", cfg.Retry.BackoffBase,
		"backoff_delays", backoffDelays)

	var serviceMetrics *metrics.ServiceMetrics
	var reg *prometheus.Registry
	if cfg.Metrics.Enabled {
		reg = prometheus.NewRegistry()
		reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
		serviceMetrics = metrics.NewServiceMetrics(reg, cfg.Metrics.Namespace)
	}

	processor := worker.NewProcessor(worker.ProcessorConfig{
		Queue:         jobQueue,
		LeadRepo:      repository.NewLeadRepository(db.DB),
		AttemptRepo:   repository.NewNotificationAttemptRepository(db.DB),
		Notifier:      client.NewWebhookNotifier(cfg.Notification.WebhookURL, cfg.Notification.Token, cfg.Notification.Timeout),
		Metrics:       serviceMetrics,
		PollInterval:  cfg.Worker.PollInterval,
		Concurrency:   cfg.Worker.Concurrency,
		MaxAttempts:   cfg.Retry.MaxAttempts,
		BackoffDelays: backoffDelays,
	})

	// Health and metrics endpoint
	var opsServer *http.Server
	if reg != nil {
		router := handlers.NewRouter(handlers.RouterConfig{
			Metrics:  serviceMetrics,
			Gatherer: reg,
			Checks: map[string]handlers.HealthCheck{
				"database": db.HealthCheck,
				"queue":    jobQueue.HealthCheck,
			},
		})
		opsServer = &http.Server{
			Addr:         cfg.Worker.MetricsAddr,
			Handler:      router,
			ReadTimeout:  5 * time.Second,
			WriteTimeout: 10 * time.Second,
		}
		go func() {
			logger.Info(ctx, "Metrics server listening", "address", cfg.Worker.MetricsAddr)
			if err := opsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.LogError(ctx, "Metrics server error", err)
			}
		}()
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	workerCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	workerErrors := make(chan error, 1)
	go func() {
		workerErrors <- processor.Start(workerCtx)
	}()

	logger.Info(ctx, "Worker started successfully")

	select {
	case err := <-workerErrors:
		if err != nil && !errors.Is(err, context.Canceled) {
			logger.Error(ctx, "Worker error", "error", err.Error())
		}

	case sig := <-sigChan:
		logger.Info(ctx, "Received shutdown signal", "signal", sig.String())

		cancel()

		shutdownTimeout := time.NewTimer(30 * time.Second)
		defer shutdownTimeout.Stop()

		select {
		case <-workerErrors:
			logger.Info(ctx, "Worker stopped gracefully")
		case <-shutdownTimeout.C:
			logger.Warn(ctx, "Worker shutdown timeout exceeded, forcing exit")
		}
	}

	if opsServer != nil {
		shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancelShutdown()
		opsServer.Shutdown(shutdownCtx)
	}

	logger.Info(ctx, "Worker shutdown complete")
}
