package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"cinepay/cmd/consumers/jobs"
	"cinepay/internal/api"
	"cinepay/internal/config"
	"cinepay/internal/consumers"
	"cinepay/internal/logger"
)

func main() {
	cfg := config.Load()
	logger.Init(cfg.LogLevel, cfg.LogFormat)
	log := logger.Get()

	log.Info("Starting consumers service...")

	if cfg.NATS.URL == "" {
		logger.Fatal("NATS_URL is required for the consumers service")
	}
	cfg.NATS.ClientID = "cinepay-consumers"

	consumerService, err := consumers.NewConsumerService(cfg)
	if err != nil {
		logger.Fatal("Failed to create consumer service", "error", err)
	}
	if err := consumerService.Start(); err != nil {
		logger.Fatal("Failed to start consumers", "error", err)
	}

	// Replays only make sense against the shared Postgres log
	var (
		stack  *api.Stack
		replay *jobs.WebhookReplayJob
	)
	if cfg.Webhook.Store == config.StorePostgres {
		cfg.NATS.ClientID = "cinepay-replay"
		stack, err = api.NewStack(cfg)
		if err != nil {
			logger.Fatal("Failed to build webhook pipeline", "error", err)
		}
		replay = jobs.NewWebhookReplayJob(stack.Reconciler, cfg.Webhook.ReplayInterval)
		if err := replay.Start(context.Background()); err != nil {
			logger.Fatal("Failed to start webhook replay job", "error", err)
		}
	} else {
		log.Warn("Webhook replay job disabled", "store", cfg.Webhook.Store)
	}

	log.Info("Consumers service started successfully")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("Shutting down consumers service...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if replay != nil {
		if err := replay.Stop(); err != nil {
			log.Error("Error stopping replay job", "error", err)
		}
	}
	if err := consumerService.Shutdown(ctx); err != nil {
		log.Error("Error during shutdown", "error", err)
	}
	if stack != nil {
		if err := stack.Close(); err != nil {
			log.Error("Error closing webhook pipeline", "error", err)
		}
	}

	log.Info("Consumers service stopped")
}
