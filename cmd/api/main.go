package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/melbournemould/leadboard/internal/config"
	"github.com/melbournemould/leadboard/internal/database"
	"github.com/melbournemould/leadboard/internal/handlers"
	"github.com/melbournemould/leadboard/internal/logger"
	"github.com/melbournemould/leadboard/internal/metrics"
	"github.com/melbournemould/leadboard/internal/queue"
	"github.com/melbournemould/leadboard/internal/repository"
	"github.com/melbournemould/leadboard/migrations"
)

func main() {
	ctx := context.Background()

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	if err := cfg.ValidateAPI(); err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	logger.Init(cfg.Logging.Level, cfg.Logging.Format)
	logger.Info(ctx, "API Server starting",
		"host", cfg.API.Host,
		"port", cfg.API.Port,
		"queue_type", cfg.Queue.Type,
		"notifications_enabled", cfg.Notification.Enabled)

	// Initialize database connection
	db, err := database.InitFromConfig(ctx, cfg.Database)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()

	logger.Info(ctx, "Database connection established")

	if err := database.RunMigrations(ctx, db.DB, migrations.FS); err != nil {
		log.Fatalf("Failed to run migrations: %v", err)
	}

	logger.Info(ctx, "Database migrations completed")

	// Initialize repositories
	leadRepo := repository.NewLeadRepository(db.DB)
	attemptRepo := repository.NewNotificationAttemptRepository(db.DB)

	// Metrics
	var (
		serviceMetrics *metrics.ServiceMetrics
		gatherer       prometheus.Gatherer
	)
	if cfg.Metrics.Enabled {
		reg := prometheus.NewRegistry()
		reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
		serviceMetrics = metrics.NewServiceMetrics(reg, cfg.Metrics.Namespace)
		gatherer = reg
	}

	checks := map[string]handlers.HealthCheck{"database": db.HealthCheck}
	leadCfg := handlers.LeadHandlerConfig{
		LeadRepo:    leadRepo,
		AttemptRepo: attemptRepo,
		Metrics:     serviceMetrics,
	}

	// Status changes are announced on the queue only when notifications are enabled
	if cfg.Notification.Enabled {
		jobQueue, err := queue.New(ctx, cfg.Queue.Type, db.DB, cfg.Queue.RedisURL)
		if err != nil {
			log.Fatalf("Failed to initialize queue: %v", err)
		}
		defer jobQueue.Close()

		leadCfg.Jobs = jobQueue
		checks["queue"] = jobQueue.HealthCheck
		logger.Info(ctx, "Queue initialized", "type", cfg.Queue.Type)
	}

	router := handlers.NewRouter(
		handlers.RouterConfig{Metrics: serviceMetrics, Gatherer: gatherer, Checks: checks},
		handlers.NewLeadHandler(leadCfg),
		handlers.NewStatsHandler(leadRepo),
	)

	// Create HTTP server
	addr := fmt.Sprintf("%s:%s", cfg.API.Host, cfg.API.Port)
	server := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in a goroutine
	serverErrors := make(chan error, 1)
	go func() {
		logger.Info(ctx, "HTTP server listening", "address", addr)
		serverErrors <- server.ListenAndServe()
	}()

	// Set up signal handling for graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	// Wait for shutdown signal or server error
	select {
	case err := <-serverErrors:
		log.Fatalf("Server error: %v", err)

	case sig := <-sigChan:
		logger.Info(ctx, "Received shutdown signal", "signal", sig.String())

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Error(ctx, "Server shutdown error", "error", err.Error())
			server.Close()
		}

		logger.Info(ctx, "Server shutdown complete")
	}
}
