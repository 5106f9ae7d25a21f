package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	// Import target
	PeriodYear  int
	PeriodMonth int
	Marketplace string
	Tenant      string
	Timezone    string

	// Selling-partner API
	SPAPIClientID       string
	SPAPIClientSecret   string
	SPAPIRefreshToken   string
	SPAPIMaxTokenPages  int
	SPAPIMaxRetries     int
	SPAPIRequestsPerSec float64
	Workers             int

	// Database
	SQLiteDBPath           string
	FeesTable              string
	FeeLinesTable          string
	AccountFeesTable       string
	OrdersTable            string
	FeeLinesTypeColumn     string
	FeeLinesCategoryColumn string
	OrdersColumnStyle      string
	OrdersDateMode         string
	BatchSize              int

	// Classifier policy
	PromoMatchTolerance float64
	PromoUnknownSamples int

	// Audit exports
	ExportDir    string
	ExportFormat string

	// AMQP
	AMQPURL      string
	AMQPExchange string
	AMQPQueue    string

	// Promotion review sheet
	ReviewSpreadsheetID string
	ReviewSheetName     string
}

func Load() *Config {
	defYear, defMonth := previousMonth(time.Now())

	cfg := &Config{
		PeriodYear:  getEnvInt("PERIOD_YEAR", defYear),
		PeriodMonth: getEnvInt("PERIOD_MONTH", defMonth),
		Marketplace: getEnv("MARKETPLACE", "IT"),
		Tenant:      getEnv("TENANT_ID", ""),
		Timezone:    getEnv("TIMEZONE", "Europe/Rome"),

		SPAPIClientID:       getEnv("SPAPI_CLIENT_ID", ""),
		SPAPIClientSecret:   getEnv("SPAPI_CLIENT_SECRET", ""),
		SPAPIRefreshToken:   getEnv("SPAPI_REFRESH_TOKEN", ""),
		SPAPIMaxTokenPages:  getEnvInt("SPAPI_MAX_TOKEN_PAGES", 500),
		SPAPIMaxRetries:     getEnvInt("SPAPI_MAX_RETRIES", 6),
		SPAPIRequestsPerSec: getEnvFloat("SPAPI_REQUESTS_PER_SEC", 0.5),
		Workers:             getEnvInt("IMPORT_WORKERS", 4),

		SQLiteDBPath:           getEnv("SQLITE_DB_PATH", "./data/feeledger.db"),
		FeesTable:              getEnv("FEES_TABLE", "amazon_fees"),
		FeeLinesTable:          getEnv("FEE_LINES_TABLE", "amazon_fee_lines"),
		AccountFeesTable:       getEnv("ACCOUNT_FEES_TABLE", "amazon_account_fees"),
		OrdersTable:            getEnv("ORDERS_TABLE", "amazon_orders"),
		FeeLinesTypeColumn:     getEnv("FEE_LINES_TYPE_COLUMN", "fee_type"),
		FeeLinesCategoryColumn: getEnv("FEE_LINES_CATEGORY_COLUMN", "fee_category"),
		OrdersColumnStyle:      getEnv("ORDERS_COLUMN_STYLE", "snake"),
		OrdersDateMode:         getEnv("ORDERS_DATE_MODE", "created"),
		BatchSize:              getEnvInt("UPSERT_BATCH_SIZE", 300),

		PromoMatchTolerance: getEnvFloat("PROMO_MATCH_TOLERANCE", 0.02),
		PromoUnknownSamples: getEnvInt("PROMO_UNKNOWN_SAMPLES", 80),

		ExportDir:    getEnv("EXPORT_DIR", ""),
		ExportFormat: getEnv("EXPORT_FORMAT", "csv"),

		AMQPURL:      getEnv("AMQP_URL", ""),
		AMQPExchange: getEnv("AMQP_EXCHANGE", "feeledger"),
		AMQPQueue:    getEnv("AMQP_QUEUE", "import_runs"),

		ReviewSpreadsheetID: getEnv("REVIEW_SPREADSHEET_ID", ""),
		ReviewSheetName:     getEnv("REVIEW_SHEET_NAME", "PromoReview"),
	}

	return cfg
}

// Validate validates the configuration and returns an error if invalid
func (c *Config) Validate() error {
	var errors []string

	if c.PeriodMonth < 1 || c.PeriodMonth > 12 {
		errors = append(errors, fmt.Sprintf("invalid period month %d: must be between 1 and 12", c.PeriodMonth))
	}
	if c.PeriodYear < 2000 || c.PeriodYear > 2200 {
		errors = append(errors, fmt.Sprintf("invalid period year %d", c.PeriodYear))
	}

	if strings.TrimSpace(c.Marketplace) == "" {
		errors = append(errors, "marketplace cannot be empty")
	}

	if _, err := time.LoadLocation(c.Timezone); err != nil {
		errors = append(errors, fmt.Sprintf("invalid timezone '%s': %v", c.Timezone, err))
	}

	if c.SPAPIClientID == "" {
		errors = append(errors, "SPAPI_CLIENT_ID is required")
	}
	if c.SPAPIClientSecret == "" {
		errors = append(errors, "SPAPI_CLIENT_SECRET is required")
	}
	if c.SPAPIRefreshToken == "" {
		errors = append(errors, "SPAPI_REFRESH_TOKEN is required")
	}

	if c.SPAPIMaxTokenPages < 1 {
		errors = append(errors, fmt.Sprintf("invalid max token pages %d: must be at least 1", c.SPAPIMaxTokenPages))
	}
	if c.SPAPIRequestsPerSec <= 0 {
		errors = append(errors, fmt.Sprintf("invalid request rate %v: must be positive", c.SPAPIRequestsPerSec))
	}
	if c.Workers < 1 || c.Workers > 32 {
		errors = append(errors, fmt.Sprintf("invalid worker count %d: must be between 1 and 32", c.Workers))
	}

	if c.SQLiteDBPath == "" {
		errors = append(errors, "SQLite database path cannot be empty")
	} else {
		dir := filepath.Dir(c.SQLiteDBPath)
		if dir != "." && dir != "" {
			if _, err := os.Stat(dir); os.IsNotExist(err) {
				if err := os.MkdirAll(dir, 0755); err != nil {
					errors = append(errors, fmt.Sprintf("cannot create SQLite database directory '%s': %v", dir, err))
				}
			}
		}
	}

	if c.OrdersColumnStyle != "snake" && c.OrdersColumnStyle != "camel" {
		errors = append(errors, fmt.Sprintf("invalid orders column style '%s': must be 'snake' or 'camel'", c.OrdersColumnStyle))
	}

	if c.OrdersDateMode != "created" && c.OrdersDateMode != "updated" {
		errors = append(errors, fmt.Sprintf("invalid orders date mode '%s': must be 'created' or 'updated'", c.OrdersDateMode))
	}

	if c.BatchSize < 1 {
		errors = append(errors, fmt.Sprintf("invalid batch size %d: must be at least 1", c.BatchSize))
	} else if c.BatchSize > 1000 {
		errors = append(errors, fmt.Sprintf("invalid batch size %d: must be at most 1000", c.BatchSize))
	}

	if c.PromoMatchTolerance < 0 {
		errors = append(errors, fmt.Sprintf("invalid promotion match tolerance %v: must not be negative", c.PromoMatchTolerance))
	}
	if c.PromoUnknownSamples < 1 {
		errors = append(errors, fmt.Sprintf("invalid unknown sample cap %d: must be at least 1", c.PromoUnknownSamples))
	}

	switch c.ExportFormat {
	case "", "csv", "xlsx", "both":
	default:
		errors = append(errors, fmt.Sprintf("invalid export format '%s': must be 'csv', 'xlsx' or 'both'", c.ExportFormat))
	}

	if c.AMQPURL != "" {
		errors = append(errors, c.amqpErrors()...)
	}

	if len(errors) > 0 {
		return fmt.Errorf("configuration validation failed:\n- %s", strings.Join(errors, "\n- "))
	}

	return nil
}

// ValidateAMQP validates only the AMQP settings, for consumers that need no
// API credentials. Unlike Validate, the URL is required here.
func (c *Config) ValidateAMQP() error {
	var errors []string
	if c.AMQPURL == "" {
		errors = append(errors, "AMQP_URL is required")
	} else {
		errors = append(errors, c.amqpErrors()...)
	}
	if len(errors) > 0 {
		return fmt.Errorf("configuration validation failed:\n- %s", strings.Join(errors, "\n- "))
	}
	return nil
}

func (c *Config) amqpErrors() []string {
	var errors []string
	if parsedURL, err := url.Parse(c.AMQPURL); err != nil {
		errors = append(errors, fmt.Sprintf("invalid AMQP URL '%s': %v", c.AMQPURL, err))
	} else if parsedURL.Scheme != "amqp" && parsedURL.Scheme != "amqps" {
		errors = append(errors, fmt.Sprintf("invalid AMQP URL scheme '%s': must be 'amqp' or 'amqps'", parsedURL.Scheme))
	}
	if c.AMQPExchange == "" {
		errors = append(errors, "AMQP exchange name cannot be empty when AMQP URL is provided")
	}
	if c.AMQPQueue == "" {
		errors = append(errors, "AMQP queue name cannot be empty when AMQP URL is provided")
	}
	return errors
}

// previousMonth is the default import target: the last completed month.
func previousMonth(now time.Time) (year, month int) {
	prev := now.AddDate(0, -1, -now.Day()+1)
	return prev.Year(), int(prev.Month())
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}
