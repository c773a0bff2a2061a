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

	"github.com/melbournemould/leadboard/internal/board"
	"github.com/melbournemould/leadboard/internal/client"
	"github.com/melbournemould/leadboard/internal/config"
	"github.com/melbournemould/leadboard/internal/database"
	"github.com/melbournemould/leadboard/internal/handlers"
	"github.com/melbournemould/leadboard/internal/logger"
	"github.com/melbournemould/leadboard/internal/metrics"
	"github.com/melbournemould/leadboard/internal/queue"
)

func main() {
	ctx := context.Background()

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	if err := cfg.ValidateBoard(); err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	loc, err := cfg.Board.Location()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	logger.Init(cfg.Logging.Level, cfg.Logging.Format)
	logger.Info(ctx, "Board service starting",
		"host", cfg.Board.Host,
		"port", cfg.Board.Port,
		"lead_store_url", cfg.Board.StoreURL,
		"time_zone", loc.String())

	// Metrics
	var (
		serviceMetrics *metrics.ServiceMetrics
		boardMetrics   *metrics.BoardMetrics
		gatherer       prometheus.Gatherer
	)
	if cfg.Metrics.Enabled {
		reg := prometheus.NewRegistry()
		reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
		serviceMetrics = metrics.NewServiceMetrics(reg, cfg.Metrics.Namespace)
		boardMetrics = metrics.NewBoardMetrics(reg, cfg.Metrics.Namespace)
		gatherer = reg
	}

	store := client.NewLeadStoreClient(
		cfg.Board.StoreURL,
		cfg.Board.StoreToken,
		cfg.Board.StoreTimeout,
		client.WithRateLimit(cfg.Board.RequestRate, cfg.Board.RequestBurst),
		client.WithStoreMetrics(boardMetrics),
	)

	sessionCfg := board.SessionConfig{
		Store:    store,
		Metrics:  boardMetrics,
		Location: loc,
	}
	checks := map[string]handlers.HealthCheck{}

	// Bulk status and archive requests are published for an external consumer.
	// Without a reachable queue those two actions are unavailable.
	jobQueue, queueDB, err := openQueue(ctx, cfg)
	if err != nil {
		logger.LogError(ctx, "Job queue unavailable, bulk status and archive are disabled", err)
	} else {
		if queueDB != nil {
			defer queueDB.Close()
		}
		defer jobQueue.Close()
		sessionCfg.Jobs = jobQueue
		checks["queue"] = jobQueue.HealthCheck
	}

	session := board.NewSession(sessionCfg)

	// A failed first load leaves an empty board with the error shown; reload retries
	if err := session.Load(session.Context(ctx)); err != nil {
		logger.LogError(ctx, "Initial board load failed", err)
	}

	router := handlers.NewRouter(
		handlers.RouterConfig{Metrics: serviceMetrics, Gatherer: gatherer, Checks: checks},
		handlers.NewBoardHandler(session),
	)

	addr := fmt.Sprintf("%s:%s", cfg.Board.Host, cfg.Board.Port)
	server := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: cfg.Board.StoreTimeout + 15*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	serverErrors := make(chan error, 1)
	go func() {
		logger.Info(ctx, "HTTP server listening", "address", addr, "session_id", session.ID())
		serverErrors <- server.ListenAndServe()
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

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

// openQueue connects the queue named by QUEUE_TYPE. The database queue needs
// its own connection since the board otherwise reaches the store over HTTP;
// that connection is returned so the caller can close it after the queue.
// It is nil for the Redis queue.
func openQueue(ctx context.Context, cfg *config.Config) (queue.Queue, *database.DB, error) {
	if cfg.Queue.Type == queue.TypeRedis {
		q, err := queue.New(ctx, cfg.Queue.Type, nil, cfg.Queue.RedisURL)
		return q, nil, err
	}

	db, err := database.InitFromConfig(ctx, cfg.Database)
	if err != nil {
		return nil, nil, err
	}
	q, err := queue.New(ctx, cfg.Queue.Type, db.DB, cfg.Queue.RedisURL)
	if err != nil {
		db.Close()
		return nil, nil, err
	}
	return q, db, nil
}
