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
	"feeledger/internal/export"
	"feeledger/internal/finance"
	applog "feeledger/internal/log"
	"feeledger/internal/notify"
	"feeledger/internal/review"
	"feeledger/internal/spapi"
	"feeledger/internal/storage"
)

func main() {
	// Load .env file for local development (ignore errors in production/docker)
	_ = godotenv.Load()

	logger := applog.New(applog.DefaultConfig())
	applog.SetDefault(logger)

	logger.Info("Starting fees-import", applog.FieldOperation, applog.OpStartup)

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

	pipeline := finance.NewPipeline(api, store, finance.PipelineConfig{
		Tenant:              cfg.Tenant,
		Marketplace:         marketplace.Code,
		Period:              period,
		TZ:                  tz,
		Workers:             cfg.Workers,
		FeesTable:           cfg.FeesTable,
		FeeLinesTable:       cfg.FeeLinesTable,
		AccountFeesTable:    cfg.AccountFeesTable,
		LinesCategoryColumn: cfg.FeeLinesCategoryColumn,
		LinesTypeColumn:     cfg.FeeLinesTypeColumn,
		Tolerance:           cfg.PromoMatchTolerance,
		UnknownLimit:        cfg.PromoUnknownSamples,
	}, logger.WithComponent(applog.ComponentFinance).Logger)

	// Run-status notifications are optional.
	if cfg.AMQPURL != "" {
		amqpClient, err := notify.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue)
		if err != nil {
			logger.Error("Failed to initialize AMQP client", "error", err)
			os.Exit(1)
		}
		defer amqpClient.Close()
		pipeline.Notify = &notify.RunPublisher{
			Client:      amqpClient,
			RunID:       runID,
			Job:         "fees-import",
			Tenant:      cfg.Tenant,
			Marketplace: marketplace.Code,
			Period:      period.String(),
		}
		logger.Info("Run status notifications enabled", "exchange", cfg.AMQPExchange, "queue", cfg.AMQPQueue)
	} else {
		logger.Info("Run status notifications disabled - no AMQP_URL provided")
	}

	// The promotion review sheet is optional.
	if cfg.ReviewSpreadsheetID != "" {
		reviewer, err := review.NewFromEnv(context.Background())
		if err != nil {
			logger.Error("Failed to initialize review sheet client", "error", err)
			os.Exit(1)
		}
		pipeline.Review = reviewer
		logger.Info("Promotion review sheet enabled", "spreadsheet_id", cfg.ReviewSpreadsheetID)
	} else {
		logger.Info("Promotion review sheet disabled - no REVIEW_SPREADSHEET_ID provided")
	}

	if cfg.ExportDir != "" {
		pipeline.Export = &export.Audit{Dir: cfg.ExportDir, RunID: runID, Format: cfg.ExportFormat}
		logger.Info("Audit exports enabled", "dir", cfg.ExportDir, "format", cfg.ExportFormat)
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
	summary, err := pipeline.Execute(ctx)
	if err != nil {
		logger.Error("Fee import failed", runFields.WithError(err).Args()...)
		if errors.Is(err, spapi.ErrForbidden) {
			os.Exit(2)
		}
		os.Exit(1)
	}

	logger.Info("Fee import complete",
		applog.FieldRunID, runID,
		applog.FieldMarketplace, marketplace.Code,
		applog.FieldPeriod, period.String(),
		"groups", summary.Groups,
		"fee_lines", summary.FeeLines,
		"order_rows", summary.OrderRows,
		"account_rows", summary.AccountRows,
		"duration", time.Since(started).Round(time.Second).String())
}
