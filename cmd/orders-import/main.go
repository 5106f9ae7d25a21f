package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/joho/godotenv"

	"feeledger/internal/config"
	"feeledger/internal/core"
	applog "feeledger/internal/log"
	"feeledger/internal/notify"
	"feeledger/internal/orders"
	"feeledger/internal/spapi"
	"feeledger/internal/storage"
)

func main() {
	// Load .env file for local development (ignore errors in production/docker)
	_ = godotenv.Load()

	logger := applog.New(applog.DefaultConfig())
	applog.SetDefault(logger)

	logger.Info("Starting orders-import", applog.FieldOperation, applog.OpStartup)

	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		logger.Error("Configuration validation failed", "error", err)
		os.Exit(1)
	}

	runID := uuid.NewString()
	period := core.Period{Year: cfg.PeriodYear, Month: cfg.PeriodMonth}
	tz, err := time.LoadLocation(cfg.Timezone)
	if err != nil {
		logger.Error("Failed to load timezone", "error", err, "timezone", cfg.Timezone)
		os.Exit(1)
	}

	marketplace, err := spapi.PickMarketplace(cfg.Marketplace)
	if err != nil {
		logger.Error("Unknown marketplace", "error", err)
		os.Exit(1)
	}

	store, err := storage.Open(cfg.SQLiteDBPath, logger.WithComponent(applog.ComponentStorage).Logger)
	if err != nil {
		logger.Error("Failed to open database", "error", err, "path", cfg.SQLiteDBPath)
		os.Exit(1)
	}
	defer store.Close()
	store.SetBatchSize(cfg.BatchSize)

	api := spapi.NewHTTPClient(spapi.HTTPConfig{
		Marketplace:    marketplace,
		ClientID:       cfg.SPAPIClientID,
		ClientSecret:   cfg.SPAPIClientSecret,
		RefreshToken:   cfg.SPAPIRefreshToken,
		RequestsPerSec: cfg.SPAPIRequestsPerSec,
		MaxTokenPages:  cfg.SPAPIMaxTokenPages,
		MaxRetries:     cfg.SPAPIMaxRetries,
		Logger:         logger.WithComponent(applog.ComponentSPAPI).Logger,
	})

	importer := orders.NewImporter(api, store, orders.Config{
		Tenant:        cfg.Tenant,
		MarketplaceID: marketplace.ID,
		Period:        period,
		TZ:            tz,
		Table:         cfg.OrdersTable,
		ColumnStyle:   cfg.OrdersColumnStyle,
		DateMode:      cfg.OrdersDateMode,
		ExportDir:     cfg.ExportDir,
		ExportFormat:  cfg.ExportFormat,
		RunID:         runID,
	}, logger.WithComponent(applog.ComponentOrders).Logger)

	// Run-status notifications are optional.
	if cfg.AMQPURL != "" {
		amqpClient, err := notify.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue)
		if err != nil {
			logger.Error("Failed to initialize AMQP client", "error", err)
			os.Exit(1)
		}
		defer amqpClient.Close()
		importer.Notify = &notify.RunPublisher{
			Client:      amqpClient,
			RunID:       runID,
			Job:         "orders-import",
			Tenant:      cfg.Tenant,
			Marketplace: marketplace.Code,
			Period:      period.String(),
		}
		logger.Info("Run status notifications enabled", "exchange", cfg.AMQPExchange, "queue", cfg.AMQPQueue)
	} else {
		logger.Info("Run status notifications disabled - no AMQP_URL provided")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigChan
		logger.Info("Shutdown signal received", "signal", sig.String())
		cancel()
	}()

	runFields := applog.NewFields().WithRun(runID, cfg.Tenant, marketplace.Code, period.String())

	started := time.Now()
	summary, err := importer.Run(ctx)
	if err != nil {
		logger.Error("Order import failed", runFields.WithError(err).Args()...)
		if errors.Is(err, spapi.ErrForbidden) {
			os.Exit(2)
		}
		os.Exit(1)
	}

	logger.Info("Order import complete",
		applog.FieldRunID, runID,
		applog.FieldMarketplace, marketplace.Code,
		applog.FieldPeriod, period.String(),
		"listed", summary.Listed,
		"in_month", summary.InMonth,
		"upserted", summary.Upserted,
		"duration", time.Since(started).Round(time.Second).String())
}
