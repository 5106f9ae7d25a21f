package orders

import (
	"context"
	"encoding/csv"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"feeledger/internal/core"
	"feeledger/internal/spapi"
	"feeledger/internal/storage"
)

type fakeAPI struct {
	listOrders func(ctx context.Context, w spapi.OrderWindow) ([]core.Document, error)
}

func (f *fakeAPI) ListEventGroups(context.Context, time.Time, time.Time) ([]spapi.EventGroup, error) {
	return nil, nil
}

func (f *fakeAPI) ListEventsForGroup(context.Context, string) (spapi.Events, error) {
	return nil, nil
}

func (f *fakeAPI) ListOrders(ctx context.Context, w spapi.OrderWindow) ([]core.Document, error) {
	return f.listOrders(ctx, w)
}

func testStore(t *testing.T) *storage.Store {
	t.Helper()
	store, err := storage.Open(filepath.Join(t.TempDir(), "orders.db"), slog.Default())
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func order(id, purchased string) core.Document {
	return core.Document{
		"AmazonOrderId": id,
		"PurchaseDate":  purchased,
		"OrderStatus":   "Shipped",
		"OrderTotal":    map[string]any{"CurrencyCode": "EUR", "Amount": "25.90"},
		"SalesChannel":  "Amazon.it",
		"IsPrime":       true,
	}
}

func testImporter(t *testing.T, api spapi.Client, store *storage.Store) *Importer {
	t.Helper()
	return NewImporter(api, store, Config{
		Tenant:        "tenant-1",
		MarketplaceID: "APJ6JRA9NG5V4",
		Period:        core.Period{Year: 2025, Month: 7},
		TZ:            time.UTC,
	}, slog.Default())
}

func TestRun_FiltersAndUpserts(t *testing.T) {
	store := testStore(t)
	api := &fakeAPI{
		listOrders: func(_ context.Context, w spapi.OrderWindow) ([]core.Document, error) {
			if !w.Before.After(w.After) {
				t.Errorf("window inverted: %+v", w)
			}
			if w.Mode != spapi.DateModeCreated {
				t.Errorf("mode = %q, want %q by default", w.Mode, spapi.DateModeCreated)
			}
			return []core.Document{
				order("ORD-IN", "2025-07-10T12:00:00Z"),
				order("ORD-OUT", "2025-06-30T10:00:00Z"),
				order("ORD-BAD", "not-a-date"),
			}, nil
		},
	}
	imp := testImporter(t, api, store)

	summary, err := imp.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if summary.Listed != 3 || summary.InMonth != 1 || summary.Upserted != 1 {
		t.Errorf("summary = %+v, want Listed 3, InMonth 1, Upserted 1", summary)
	}

	var status string
	var total float64
	var prime int
	err = store.DB().QueryRow(
		"SELECT order_status, order_total, is_prime FROM amazon_orders WHERE amazon_order_id = ?",
		"ORD-IN").Scan(&status, &total, &prime)
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if status != "Shipped" || total != 25.90 || prime != 1 {
		t.Errorf("row = %q %v %d", status, total, prime)
	}
}

func TestRun_Idempotent(t *testing.T) {
	store := testStore(t)
	api := &fakeAPI{
		listOrders: func(context.Context, spapi.OrderWindow) ([]core.Document, error) {
			return []core.Document{order("ORD-1", "2025-07-10T12:00:00Z")}, nil
		},
	}
	imp := testImporter(t, api, store)

	for n := 0; n < 2; n++ {
		if _, err := imp.Run(context.Background()); err != nil {
			t.Fatalf("Run #%d: %v", n+1, err)
		}
	}

	var count int
	if err := store.DB().QueryRow("SELECT COUNT(*) FROM amazon_orders").Scan(&count); err != nil {
		t.Fatalf("count: %v", err)
	}
	if count != 1 {
		t.Errorf("rows = %d, want 1", count)
	}
}

func TestRun_UpdatedDateMode(t *testing.T) {
	store := testStore(t)
	var gotMode string
	api := &fakeAPI{
		listOrders: func(_ context.Context, w spapi.OrderWindow) ([]core.Document, error) {
			gotMode = w.Mode
			return []core.Document{order("ORD-1", "2025-07-10T12:00:00Z")}, nil
		},
	}
	imp := testImporter(t, api, store)
	imp.Cfg.DateMode = spapi.DateModeUpdated

	summary, err := imp.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if gotMode != spapi.DateModeUpdated {
		t.Errorf("mode = %q, want %q", gotMode, spapi.DateModeUpdated)
	}
	if summary.Upserted != 1 {
		t.Errorf("upserted = %d, want 1", summary.Upserted)
	}
}

func TestRun_KeepsPartialsOnBadRequest(t *testing.T) {
	store := testStore(t)
	api := &fakeAPI{
		listOrders: func(context.Context, spapi.OrderWindow) ([]core.Document, error) {
			return []core.Document{order("ORD-1", "2025-07-10T12:00:00Z")}, spapi.ErrBadRequest
		},
	}
	imp := testImporter(t, api, store)

	summary, err := imp.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if summary.Upserted != 1 {
		t.Errorf("upserted = %d, want 1 (partial pages kept)", summary.Upserted)
	}
}

func TestRun_FailsOnOtherErrors(t *testing.T) {
	store := testStore(t)
	api := &fakeAPI{
		listOrders: func(context.Context, spapi.OrderWindow) ([]core.Document, error) {
			return []core.Document{order("ORD-1", "2025-07-10T12:00:00Z")}, spapi.ErrThrottled
		},
	}
	imp := testImporter(t, api, store)

	if _, err := imp.Run(context.Background()); err == nil {
		t.Fatal("expected a throttled listing to fail the run")
	}
}

func TestRun_ExportsCSV(t *testing.T) {
	store := testStore(t)
	dir := t.TempDir()
	api := &fakeAPI{
		listOrders: func(context.Context, spapi.OrderWindow) ([]core.Document, error) {
			return []core.Document{order("ORD-1", "2025-07-10T12:00:00Z")}, nil
		},
	}
	imp := testImporter(t, api, store)
	imp.Cfg.ExportDir = dir
	imp.Cfg.ExportFormat = "csv"
	imp.Cfg.RunID = "run-1"

	if _, err := imp.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}

	f, err := os.Open(filepath.Join(dir, "orders_apj6jra9ng5v4_2025-07_run-1.csv"))
	if err != nil {
		t.Fatalf("open export: %v", err)
	}
	defer f.Close()

	records, err := csv.NewReader(f).ReadAll()
	if err != nil {
		t.Fatalf("read export: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("records = %d, want header plus one row", len(records))
	}
	if records[1][0] != "ORD-1" || records[1][3] != "25.90" {
		t.Errorf("row = %v", records[1])
	}
}

func TestCol_CamelStyle(t *testing.T) {
	imp := &Importer{Cfg: Config{ColumnStyle: "camel"}}
	tests := []struct {
		in   string
		want string
	}{
		{"tenant_id", "tenantId"},
		{"amazon_order_id", "amazonOrderId"},
		{"shipment_service_level_category", "shipmentServiceLevelCategory"},
		{"marketplace", "marketplace"},
	}
	for _, tt := range tests {
		if got := imp.col(tt.in); got != tt.want {
			t.Errorf("col(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}

	snake := &Importer{Cfg: Config{ColumnStyle: "snake"}}
	if got := snake.col("tenant_id"); got != "tenant_id" {
		t.Errorf("snake col = %q", got)
	}
}
