package orders

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"feeledger/internal/core"
	"feeledger/internal/export"
	"feeledger/internal/spapi"
	"feeledger/internal/storage"
)

// Notifier publishes run lifecycle updates.
type Notifier interface {
	Publish(ctx context.Context, status, note string, runErr error) error
}

// Config is the per-run policy of the order import.
type Config struct {
	Tenant        string
	MarketplaceID string
	Period        core.Period
	TZ            *time.Location

	Table       string        // default amazon_orders
	ColumnStyle string        // snake or camel, default snake
	DateMode    string        // created or updated, default created
	SafetyLag   time.Duration // keep-away from now, default 2m

	ExportDir    string // optional CSV/XLSX audit of the upserted orders
	ExportFormat string
	RunID        string
}

// Importer pulls the month's orders and upserts one row per order.
type Importer struct {
	API    spapi.Client
	Store  *storage.Store
	Cfg    Config
	Log    *slog.Logger
	Notify Notifier // optional

	now func() time.Time
}

// Summary reports what one execution did.
type Summary struct {
	Listed   int
	InMonth  int
	Upserted int
}

func NewImporter(api spapi.Client, store *storage.Store, cfg Config, logger *slog.Logger) *Importer {
	if cfg.Table == "" {
		cfg.Table = "amazon_orders"
	}
	if cfg.ColumnStyle == "" {
		cfg.ColumnStyle = "snake"
	}
	if cfg.DateMode == "" {
		cfg.DateMode = spapi.DateModeCreated
	}
	if cfg.SafetyLag <= 0 {
		cfg.SafetyLag = 2 * time.Minute
	}
	if cfg.TZ == nil {
		cfg.TZ = time.UTC
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Importer{API: api, Store: store, Cfg: cfg, Log: logger, now: time.Now}
}

// col maps a snake_case column name to the configured column style.
func (i *Importer) col(snake string) string {
	if i.Cfg.ColumnStyle != "camel" {
		return snake
	}
	parts := strings.Split(snake, "_")
	for n := 1; n < len(parts); n++ {
		if parts[n] == "" {
			continue
		}
		parts[n] = strings.ToUpper(parts[n][:1]) + parts[n][1:]
	}
	return strings.Join(parts, "")
}

// Run lists orders in the padded month window, filtered by creation or
// last-update date per the configured mode, keeps those whose purchase date
// falls inside the month in local time, and upserts them.
func (i *Importer) Run(ctx context.Context) (Summary, error) {
	summary, err := i.run(ctx)
	if i.Notify != nil {
		status, note := "loaded", fmt.Sprintf("orders=%d", summary.Upserted)
		if err != nil {
			status, note = "failed", ""
		}
		if nerr := i.Notify.Publish(ctx, status, note, err); nerr != nil {
			i.Log.Warn("publishing run status failed", "status", status, "error", nerr)
		}
	}
	return summary, err
}

func (i *Importer) run(ctx context.Context) (Summary, error) {
	var summary Summary

	start, next := core.MonthBoundsLocal(i.Cfg.Period, i.Cfg.TZ)
	after := start.AddDate(0, 0, -1).UTC()
	before := core.ClampBefore(after, next.AddDate(0, 0, 1).UTC(), i.now(), i.Cfg.SafetyLag, i.Cfg.TZ)
	if !before.After(after) {
		return summary, fmt.Errorf("empty import window for %s", i.Cfg.Period)
	}
	i.Log.Info("order window resolved",
		"marketplace_id", i.Cfg.MarketplaceID, "period", i.Cfg.Period.String(),
		"after", after, "before", before)

	if i.Notify != nil {
		if err := i.Notify.Publish(ctx, "started", "", nil); err != nil {
			i.Log.Warn("publishing run status failed", "status", "started", "error", err)
		}
	}

	listed, err := i.API.ListOrders(ctx, spapi.OrderWindow{After: after, Before: before, Mode: i.Cfg.DateMode})
	if err != nil {
		if !errors.Is(err, spapi.ErrBadRequest) || len(listed) == 0 {
			return summary, fmt.Errorf("list orders: %w", err)
		}
		i.Log.Warn("order listing ended early, keeping partial pages", "orders", len(listed), "error", err)
	}
	summary.Listed = len(listed)

	var rows []storage.Row
	var exportRows [][]string
	for _, o := range listed {
		purchased, ok := core.ParseISOZ(o.Str("PurchaseDate"))
		if !ok {
			continue
		}
		local := purchased.In(i.Cfg.TZ)
		if local.Before(start) || !local.Before(next) {
			continue
		}
		summary.InMonth++

		row := i.orderRow(o, purchased)
		rows = append(rows, row)
		if i.Cfg.ExportDir != "" {
			exportRows = append(exportRows, exportRow(o, purchased))
		}
	}

	n, err := i.Store.Upsert(ctx, i.Cfg.Table, rows, []string{
		i.col("tenant_id"), i.col("amazon_order_id"), i.col("marketplace"),
	})
	if err != nil {
		return summary, fmt.Errorf("upsert orders: %w", err)
	}
	summary.Upserted = n

	if i.Cfg.ExportDir != "" {
		if err := i.export(exportRows); err != nil {
			i.Log.Warn("exporting order audit failed", "error", err)
		}
	}

	i.Log.Info("order import finished",
		"listed", summary.Listed, "in_month", summary.InMonth, "upserted", summary.Upserted)
	return summary, nil
}

func (i *Importer) orderRow(o core.Document, purchased time.Time) storage.Row {
	total, currency, hasTotal := core.MoneyAmount(o.Doc("OrderTotal"))

	row := storage.Row{
		i.col("tenant_id"):        i.Cfg.Tenant,
		i.col("amazon_order_id"):  o.Str("AmazonOrderId"),
		i.col("marketplace"):      i.Cfg.MarketplaceID,
		i.col("purchase_date"):    core.ISOZ(purchased),
		i.col("last_update_date"): o.Str("LastUpdateDate"),
		i.col("order_status"):     o.Str("OrderStatus"),
		i.col("currency"):         currency,
		i.col("order_type"):       o.Str("OrderType"),
		i.col("sales_channel"):    o.Str("SalesChannel"),

		i.col("fulfillment_channel"):             o.Str("FulfillmentChannel"),
		i.col("ship_service_level"):              o.Str("ShipServiceLevel"),
		i.col("shipment_service_level_category"): o.Str("ShipmentServiceLevelCategory"),
		i.col("number_of_items_shipped"):         o.Int("NumberOfItemsShipped"),
		i.col("number_of_items_unshipped"):       o.Int("NumberOfItemsUnshipped"),
		i.col("is_business_order"):               boolInt(o, "IsBusinessOrder"),
		i.col("is_prime"):                        boolInt(o, "IsPrime"),
	}
	if hasTotal {
		f, _ := total.Float64()
		row[i.col("order_total")] = f
	} else {
		row[i.col("order_total")] = nil
	}
	return row
}

var orderExportHeader = []string{
	"AmazonOrderId", "PurchaseDate", "OrderStatus", "OrderTotal", "Currency",
	"OrderType", "SalesChannel", "FulfillmentChannel", "IsBusinessOrder", "IsPrime",
}

func exportRow(o core.Document, purchased time.Time) []string {
	total, currency, hasTotal := core.MoneyAmount(o.Doc("OrderTotal"))
	totalStr := ""
	if hasTotal {
		totalStr = total.StringFixed(2)
	}
	return []string{
		o.Str("AmazonOrderId"), core.ISOZ(purchased), o.Str("OrderStatus"), totalStr, currency,
		o.Str("OrderType"), o.Str("SalesChannel"), o.Str("FulfillmentChannel"),
		fmt.Sprint(boolInt(o, "IsBusinessOrder")), fmt.Sprint(boolInt(o, "IsPrime")),
	}
}

func (i *Importer) export(rows [][]string) error {
	stem := fmt.Sprintf("orders_%s_%s_%s", strings.ToLower(i.Cfg.MarketplaceID), i.Cfg.Period.String(), i.Cfg.RunID)
	format := i.Cfg.ExportFormat

	if format == "" || format == export.FormatCSV || format == export.FormatBoth {
		if err := export.WriteCSV(i.Cfg.ExportDir+"/"+stem+".csv", orderExportHeader, rows); err != nil {
			return err
		}
	}
	if format == export.FormatXLSX || format == export.FormatBoth {
		sheets := map[string]export.Sheet{"Orders": {Header: orderExportHeader, Rows: rows}}
		if err := export.WriteXLSX(i.Cfg.ExportDir+"/"+stem+".xlsx", sheets); err != nil {
			return err
		}
	}
	return nil
}

func boolInt(o core.Document, keys ...string) int {
	v, ok := o.First(keys...)
	if !ok {
		return 0
	}
	if b, isBool := v.(bool); isBool && b {
		return 1
	}
	if s, isStr := v.(string); isStr && strings.EqualFold(s, "true") {
		return 1
	}
	return 0
}
