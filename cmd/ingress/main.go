package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/convrelay/convrelay/internal/config"
	"github.com/convrelay/convrelay/internal/handlers"
	"github.com/convrelay/convrelay/internal/logging"
	"github.com/convrelay/convrelay/internal/messaging/nats"
	"github.com/convrelay/convrelay/internal/ratelimit"
	"github.com/convrelay/convrelay/internal/server"
)

func main() {
	// Parse command-line flags
	configPath := flag.String("config", "", "path to config file")
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
	).With(logging.Service("ingress"))
	logging.SetDefault(logger)

	logger.Info("Starting ingress service",
		"port", cfg.Server.Port,
		"log_level", cfg.Logging.Level,
		"nats_url", cfg.NATS.URL,
	)

	// Initialize rate limiter
	var rateLimiter ratelimit.RateLimiter
	if cfg.Ingestion.RateLimitEnabled {
		limiter, err := ratelimit.NewRedisRateLimiter(
			cfg.Redis.URL,
			cfg.Ingestion.RateLimitRequests,
			cfg.Ingestion.RateLimitWindow,
			false,
		)
		if err != nil {
			logger.Warn("Failed to initialize Redis rate limiter, continuing without",
				logging.FieldError, err.Error())
			rateLimiter = &ratelimit.NoOpRateLimiter{}
		} else {
			rateLimiter = limiter
			logger.Info("Rate limiting enabled",
				"requests", cfg.Ingestion.RateLimitRequests,
				"window", cfg.Ingestion.RateLimitWindow.String())
		}
	} else {
		rateLimiter = &ratelimit.NoOpRateLimiter{}
		logger.Info("Rate limiting disabled in configuration")
	}
	defer rateLimiter.Close()

	// Connect to NATS JetStream and make sure the queue exists
	natsCfg := nats.DefaultConfig()
	natsCfg.URL = cfg.NATS.URL
	natsCfg.Name = "convrelay-ingress"
	natsCfg.Username = cfg.NATS.Username
	natsCfg.Password = cfg.NATS.Password
	natsCfg.Token = cfg.NATS.Token

	jsClient, err := nats.NewJetStreamClient(natsCfg, logger)
	if err != nil {
		log.Fatalf("Failed to connect to NATS: %v", err)
	}
	defer jsClient.Close()

	if err := jsClient.EnsureStream(context.Background(), nats.ConversionsStream); err != nil {
		log.Fatalf("Failed to ensure conversions stream: %v", err)
	}

	// Initialize HTTP handlers
	handler := handlers.NewEventHandler(jsClient, rateLimiter, cfg.Ingestion.APIKey, logger)
	router := server.NewRouter(handler)

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	// Start server in goroutine
	go func() {
		logger.Info("Ingress service listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server error: %v", err)
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.WriteTimeout)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Fatalf("Server forced to shutdown: %v", err)
	}

	// Flush queued publishes before exiting
	if err := jsClient.Drain(); err != nil {
		logger.Warn("NATS drain failed", logging.FieldError, err.Error())
	}

	logger.Info("Server stopped")
}
