package storage

import (
	"context"
	"log/slog"
	"path/filepath"
	"testing"
)

func testStore(t *testing.T) *Store {
	t.Helper()
	store, err := Open(filepath.Join(t.TempDir(), "test.db"), slog.Default())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func accountFeeRow(typ string, amount float64) Row {
	return Row{
		"tenant_id":                "tenant-1",
		"marketplace":              "IT",
		"date":                     "2025-07-10",
		"category":                 "ServiceFee",
		"type":                     typ,
		"currency":                 "EUR",
		"amount":                   amount,
		"financial_event_group_id": "GRP-1",
		"source_list":              "ServiceFeeEventList",
		"period_year":              2025,
		"period_month":             7,
	}
}

var accountFeeConflict = []string{
	"tenant_id", "marketplace", "date", "category", "type", "currency",
	"financial_event_group_id", "period_year", "period_month",
}

func TestUpsert_InsertThenUpdate(t *testing.T) {
	store := testStore(t)
	ctx := context.Background()

	n, err := store.Upsert(ctx, "amazon_account_fees", []Row{accountFeeRow("Subscription", 39.99)}, accountFeeConflict)
	if err != nil {
		t.Fatalf("first upsert: %v", err)
	}
	if n != 1 {
		t.Errorf("written = %d, want 1", n)
	}

	// Same conflict key, new amount: the row is replaced, not duplicated.
	if _, err := store.Upsert(ctx, "amazon_account_fees", []Row{accountFeeRow("Subscription", 41.50)}, accountFeeConflict); err != nil {
		t.Fatalf("second upsert: %v", err)
	}

	var count int
	var amount float64
	if err := store.DB().QueryRow("SELECT COUNT(*), MAX(amount) FROM amazon_account_fees").Scan(&count, &amount); err != nil {
		t.Fatalf("query: %v", err)
	}
	if count != 1 {
		t.Errorf("rows = %d, want 1", count)
	}
	if amount != 41.50 {
		t.Errorf("amount = %v, want 41.50", amount)
	}
}

func TestUpsert_DropsUnknownColumnAndRetries(t *testing.T) {
	store := testStore(t)
	ctx := context.Background()

	row := accountFeeRow("Subscription", 39.99)
	row["bogus_column"] = "surplus"

	n, err := store.Upsert(ctx, "amazon_account_fees", []Row{row}, accountFeeConflict)
	if err != nil {
		t.Fatalf("upsert with unknown column: %v", err)
	}
	if n != 1 {
		t.Errorf("written = %d, want 1", n)
	}

	var count int
	if err := store.DB().QueryRow("SELECT COUNT(*) FROM amazon_account_fees").Scan(&count); err != nil {
		t.Fatalf("query: %v", err)
	}
	if count != 1 {
		t.Errorf("rows = %d, want 1", count)
	}

	// The column stays dropped for subsequent batches on the same table.
	row2 := accountFeeRow("StorageFee", 5.00)
	row2["bogus_column"] = "again"
	if _, err := store.Upsert(ctx, "amazon_account_fees", []Row{row2}, accountFeeConflict); err != nil {
		t.Fatalf("second upsert: %v", err)
	}
}

func TestUpsert_Batches(t *testing.T) {
	store := testStore(t)
	store.SetBatchSize(3)
	ctx := context.Background()

	rows := make([]Row, 10)
	for i := range rows {
		rows[i] = Row{
			"line_hash":                string(rune('a'+i)) + "0000000000000000000000000000000",
			"posted_at_utc":            "2025-07-10T12:00:00Z",
			"finance_date_local":       "2025-07-10",
			"transaction_phase":        "Payment",
			"fee_category":             "ShipmentItemFee",
			"fee_type":                 "Commission",
			"currency":                 "EUR",
			"amount_signed":            "-3.100000",
			"amount_abs":               "3.100000",
			"marketplace":              "IT",
			"period_year":              2025,
			"period_month":             7,
			"tenant_id":                "tenant-1",
		}
	}

	n, err := store.Upsert(ctx, "amazon_fee_lines", rows, []string{"line_hash"})
	if err != nil {
		t.Fatalf("Upsert: %v", err)
	}
	if n != 10 {
		t.Errorf("written = %d, want 10", n)
	}

	var count int
	if err := store.DB().QueryRow("SELECT COUNT(*) FROM amazon_fee_lines").Scan(&count); err != nil {
		t.Fatalf("query: %v", err)
	}
	if count != 10 {
		t.Errorf("rows = %d, want 10", count)
	}
}

func TestUpsert_EmptyInputIsNoop(t *testing.T) {
	store := testStore(t)

	n, err := store.Upsert(context.Background(), "amazon_fee_lines", nil, []string{"line_hash"})
	if err != nil {
		t.Fatalf("Upsert: %v", err)
	}
	if n != 0 {
		t.Errorf("written = %d, want 0", n)
	}
}

func TestUnknownColumn(t *testing.T) {
	tests := []struct {
		msg  string
		want string
		ok   bool
	}{
		{`table amazon_fees has no column named bogus_column`, "bogus_column", true},
		{`no such column: t.extra_col`, "extra_col", true},
		{`UNIQUE constraint failed: amazon_fees.id`, "", false},
		{``, "", false},
	}
	for _, tt := range tests {
		var err error
		if tt.msg != "" {
			err = errString(tt.msg)
		}
		col, ok := unknownColumn(err)
		if ok != tt.ok || col != tt.want {
			t.Errorf("unknownColumn(%q) = (%q, %v), want (%q, %v)", tt.msg, col, ok, tt.want, tt.ok)
		}
	}
}

type errString string

func (e errString) Error() string { return string(e) }
