package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"feeledger/internal/config"
	applog "feeledger/internal/log"
	"feeledger/internal/notify"
)

func main() {
	// Load .env file for local development (ignore errors in production/docker)
	_ = godotenv.Load()

	logger := applog.New(applog.DefaultConfig())
	applog.SetDefault(logger)

	logger.Info("Starting status-worker", applog.FieldOperation, applog.OpStartup)

	cfg := config.Load()
	if err := cfg.ValidateAMQP(); err != nil {
		logger.Error("Configuration validation failed", "error", err)
		os.Exit(1)
	}

	amqpClient, err := notify.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue)
	if err != nil {
		logger.Error("Failed to initialize AMQP client", "error", err)
		os.Exit(1)
	}
	defer amqpClient.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigChan
		logger.Info("Shutdown signal received", "signal", sig.String())
		cancel()
	}()

	consumerLog := logger.WithComponent(applog.ComponentAMQP)
	err = amqpClient.ConsumeRunStatus(ctx, func(msg *notify.RunStatusMessage) error {
		consumerLog.Info("Import run status",
			applog.FieldRunID, msg.RunID,
			"job", msg.Job,
			applog.FieldTenant, msg.Tenant,
			applog.FieldMarketplace, msg.Marketplace,
			applog.FieldPeriod, msg.Period,
			"status", msg.Status,
			"note", msg.Note,
			applog.FieldError, msg.Error)
		return nil
	})
	if err != nil && err != context.Canceled {
		logger.Error("Message consumption failed", "error", err)
		os.Exit(1)
	}

	logger.Info("status-worker stopped", applog.FieldOperation, applog.OpShutdown)
}
