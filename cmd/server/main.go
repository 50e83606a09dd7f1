package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/tierboard/internal/auth"
	"github.com/tierboard/internal/config"
	"github.com/tierboard/internal/events"
	"github.com/tierboard/internal/handler"
	"github.com/tierboard/internal/kafka"
	"github.com/tierboard/internal/metrics"
	"github.com/tierboard/internal/postgres"
	"github.com/tierboard/internal/redis"
	"github.com/tierboard/internal/service"
	"github.com/tierboard/internal/storage"
	"github.com/tierboard/internal/storage/memory"
	"github.com/tierboard/internal/websocket"
	"github.com/tierboard/internal/worker"
)

func newLogger(cfg *config.LogConfig) *slog.Logger {
	opts := &slog.HandlerOptions{Level: cfg.SlogLevel()}
	if cfg.Format == "text" {
		return slog.New(slog.NewTextHandler(os.Stdout, opts))
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, opts))
}

func main() {
	// Parse command line flags
	configPath := flag.String("config", "config.yaml", "Path to configuration file")
	flag.Parse()

	// Load configuration
	cfg, loadErr := config.Load(*configPath)
	if loadErr != nil {
		cfg = config.DefaultConfig()
	}

	// Setup structured logging
	logger := newLogger(&cfg.Log)
	slog.SetDefault(logger)
	if loadErr != nil {
		logger.Warn("failed to load config file, using defaults", "error", loadErr)
	}

	// Create context with cancellation
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Metrics registry
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m := metrics.New(registry)

	// Initialize WebSocket hub
	wsHub := websocket.NewHub(logger)
	go wsHub.Run()
	logger.Info("WebSocket hub initialized")

	publisher := events.NewFanout(logger, wsHub)

	// Initialize storage
	var (
		store    storage.Storage
		eventLog handler.EventLog
	)
	switch cfg.Storage.Driver {
	case config.StorageDriverPostgres:
		logger.Info("connecting to PostgreSQL", "host", cfg.Postgres.Host, "database", cfg.Postgres.Database)
		postgresRepo, err := postgres.NewRepository(&cfg.Postgres, logger)
		if err != nil {
			logger.Error("failed to connect to PostgreSQL", "error", err)
			os.Exit(1)
		}
		defer postgresRepo.Close()

		// Run database migrations
		if err := postgresRepo.RunMigrations(ctx); err != nil {
			logger.Error("failed to run migrations", "error", err)
			os.Exit(1)
		}
		logger.Info("connected to PostgreSQL")

		store = postgresRepo
		eventLog = postgresRepo
		publisher.Subscribe(postgresRepo)
	default:
		logger.Warn("using in-memory storage, state is lost on restart")
		store = memory.New()
	}

	// Publish committed placements to Kafka
	if cfg.Kafka.Enabled && cfg.Kafka.PublishEvents {
		eventProducer, err := kafka.NewEventProducer(&cfg.Kafka, logger)
		if err != nil {
			logger.Warn("failed to create Kafka event producer, continuing without it", "error", err)
		} else {
			defer eventProducer.Close()
			publisher.Subscribe(eventProducer)
			logger.Info("publishing placement events", "topic", cfg.Kafka.EventsTopic)
		}
	}

	// Initialize the ranking engine
	engine := service.NewEngine(store, &cfg.Leaderboard, &cfg.Bulk, publisher, m, logger)

	// Initialize Redis rank index
	if cfg.Redis.Enabled {
		logger.Info("connecting to Redis", "addr", cfg.Redis.Addr)
		rankIndex, err := redis.NewRankIndex(&cfg.Redis, logger)
		if err != nil {
			logger.Error("failed to connect to Redis", "error", err)
			os.Exit(1)
		}
		defer rankIndex.Close()
		engine.SetRankIndex(rankIndex)
		logger.Info("connected to Redis")
	}

	// Initialize reconcile worker
	reconcileWorker := worker.NewReconcileWorker(engine, &cfg.Sync, logger)

	// Reconcile totals and rebuild the rank index on startup (recovery)
	logger.Info("reconciling global points from the ledger")
	if _, err := reconcileWorker.RunOnce(ctx); err != nil {
		logger.Warn("failed to reconcile on startup", "error", err)
	}

	// Start reconcile worker
	if cfg.Sync.Enabled {
		if err := reconcileWorker.Start(ctx); err != nil {
			logger.Error("failed to start reconcile worker", "error", err)
			os.Exit(1)
		}
	}

	// Initialize Kafka consumer for bulk placement ingestion
	var kafkaConsumer *kafka.Consumer
	if cfg.Kafka.Enabled {
		logger.Info("initializing Kafka consumer",
			"brokers", cfg.Kafka.Brokers,
			"topic", cfg.Kafka.Topic,
		)
		var err error
		kafkaConsumer, err = kafka.NewConsumer(&cfg.Kafka, engine, logger)
		if err != nil {
			logger.Warn("failed to create Kafka consumer, continuing without Kafka", "error", err)
		} else {
			if err := kafkaConsumer.Start(); err != nil {
				logger.Warn("failed to start Kafka consumer, continuing without Kafka", "error", err)
				kafkaConsumer = nil
			} else {
				logger.Info("Kafka consumer started successfully")
			}
		}
	}

	// Admin sessions
	issuer, err := auth.NewIssuer(&cfg.Auth)
	if err != nil {
		logger.Warn("admin routes disabled", "error", err)
		issuer = nil
	}

	// Initialize HTTP handler
	httpHandler := handler.NewHandler(engine, wsHub, issuer, registry, logger)
	if eventLog != nil {
		httpHandler.SetEventLog(eventLog)
	}

	// Create HTTP server
	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      httpHandler.Router(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	// Start server in goroutine
	go func() {
		logger.Info("starting HTTP server", "port", cfg.Server.Port, "storage", cfg.Storage.Driver)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("HTTP server error", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down server...")

	// Create shutdown context with timeout
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	// Shutdown HTTP server
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("failed to shutdown server", "error", err)
	}

	// Stop Kafka consumer
	if kafkaConsumer != nil {
		if err := kafkaConsumer.Stop(); err != nil {
			logger.Error("failed to stop Kafka consumer", "error", err)
		}
	}

	// Stop reconcile worker
	if reconcileWorker.IsRunning() {
		if err := reconcileWorker.Stop(); err != nil {
			logger.Error("failed to stop reconcile worker", "error", err)
		}
	}

	// Stop WebSocket hub
	wsHub.Stop()

	logger.Info("server stopped")
}
