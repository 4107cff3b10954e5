package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"

	"github.com/convrelay/convrelay/internal/capi"
	"github.com/convrelay/convrelay/internal/config"
	"github.com/convrelay/convrelay/internal/geo"
	"github.com/convrelay/convrelay/internal/logging"
	"github.com/convrelay/convrelay/internal/messaging/nats"
	"github.com/convrelay/convrelay/internal/pipeline"
	"github.com/convrelay/convrelay/internal/repository"
	"github.com/convrelay/convrelay/internal/worker"
)

func main() {
	// Parse command-line flags
	configPath := flag.String("config", "", "path to config file")
	migrationsPath := flag.String("migrations", "file://migrations", "path to migration files")
	flag.Parse()

	// Load configuration
	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// Initialize structured logging
	logger := logging.New(
		logging.ParseLevel(cfg.Logging.Level),
		cfg.Logging.Format,
	).With(logging.Service("worker"))
	logging.SetDefault(logger)

	logger.Info("Starting worker service",
		"log_level", cfg.Logging.Level,
		"nats_url", cfg.NATS.URL,
	)

	// Run database migrations
	logger.Info("Running database migrations")
	m, err := migrate.New(*migrationsPath, cfg.Database.URL)
	if err != nil {
		log.Fatalf("Failed to initialize migrations: %v", err)
	}
	if err := m.Up(); err != nil && err != migrate.ErrNoChange {
		log.Fatalf("Failed to run migrations: %v", err)
	}
	logger.Info("Database migrations completed")

	// Initialize repository
	repo, err := repository.NewPostgresRepository(context.Background(), cfg.Database.URL)
	if err != nil {
		log.Fatalf("Failed to connect to PostgreSQL: %v", err)
	}
	defer repo.Close()

	// Initialize geo enrichment client
	geoClient := geo.NewClient(geo.Config{
		BaseURL:   cfg.Geo.BaseURL,
		AccessKey: cfg.Geo.AccessKey,
		Timeout:   cfg.Geo.Timeout,
	}, logger)
	if cfg.Geo.AccessKey == "" {
		logger.Warn("Geo access key not configured, enrichment disabled")
	}

	// Initialize Conversions API forwarder
	forwarder := capi.NewForwarder(capi.Config{
		GraphURL:      cfg.Meta.GraphURL,
		APIVersion:    cfg.Meta.APIVersion,
		PixelID:       cfg.Meta.PixelID,
		AccessToken:   cfg.Meta.AccessToken,
		TestEventCode: cfg.Meta.TestEventCode,
		Timeout:       cfg.Meta.Timeout,
	}, logger)
	if cfg.Meta.PixelID == "" || cfg.Meta.AccessToken == "" {
		logger.Warn("Conversions API not configured, events will be stored but not forwarded")
	}

	// Assemble the processing pipeline
	proc := pipeline.New(geoClient, repo, forwarder, logger)

	// Connect to NATS JetStream
	natsCfg := nats.DefaultConfig()
	natsCfg.URL = cfg.NATS.URL
	natsCfg.Name = "convrelay-worker"
	natsCfg.Username = cfg.NATS.Username
	natsCfg.Password = cfg.NATS.Password
	natsCfg.Token = cfg.NATS.Token

	jsClient, err := nats.NewJetStreamClient(natsCfg, logger)
	if err != nil {
		log.Fatalf("Failed to connect to NATS: %v", err)
	}
	defer jsClient.Close()

	consumerCfg := nats.DefaultConsumerConfig()
	consumerCfg.MaxAckPending = cfg.Worker.MaxInFlight
	consumerCfg.MaxDeliver = cfg.Worker.MaxDeliver
	consumerCfg.AckWait = cfg.Worker.AckWait
	consumerCfg.RetryBase = cfg.Worker.RetryBase
	consumerCfg.RetryMax = cfg.Worker.RetryMax

	w := worker.New(jsClient, proc, consumerCfg, logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := w.Start(ctx); err != nil {
		log.Fatalf("Failed to start worker: %v", err)
	}

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down worker")
	w.Stop()

	// Give in-flight handlers a moment to finish their current attempt
	time.Sleep(2 * time.Second)

	logger.Info("Worker stopped")
}
