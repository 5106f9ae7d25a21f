package finance

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"feeledger/internal/core"
)

func testRun(t *testing.T) *Run {
	t.Helper()
	return NewRun(RunConfig{
		Marketplace: "IT",
		Tenant:      "tenant-1",
		Period:      core.Period{Year: 2025, Month: 7},
		TZ:          time.UTC,
	})
}

func testGroup() GroupMeta {
	return GroupMeta{
		ID:    "GRP-1",
		Start: time.Date(2025, 7, 1, 0, 0, 0, 0, time.UTC),
		End:   time.Date(2025, 7, 31, 23, 59, 59, 0, time.UTC),
	}
}

func money(amount any) map[string]any {
	return map[string]any{"CurrencyCode": "EUR", "CurrencyAmount": amount}
}

func shipmentEvent(posted string, items ...any) core.Document {
	return core.Document{
		"AmazonOrderId":    "171-0000001-0000001",
		"PostedDate":       posted,
		"ShipmentItemList": items,
	}
}

func findLines(r *Run, category string) []core.LineItem {
	var out []core.LineItem
	for _, l := range r.Lines {
		if l.Category == category {
			out = append(out, l)
		}
	}
	return out
}

func TestExtractShipments_FeesChargesAndQuantity(t *testing.T) {
	r := testRun(t)
	ev := shipmentEvent("2025-07-10T12:00:00Z", map[string]any{
		"SellerSKU":       "SKU-1",
		"ASIN":            "B000TEST01",
		"QuantityShipped": 2.0,
		"ItemFeeList": []any{
			map[string]any{"FeeType": "Commission", "FeeAmount": money(-3.10)},
			map[string]any{"FeeType": "FBAPerUnitFulfillmentFee", "FeeAmount": money(-2.70)},
		},
		"ItemChargeList": []any{
			map[string]any{"ChargeType": "Principal", "ChargeAmount": money(19.99)},
			map[string]any{"ChargeType": "ShippingCharge", "ChargeAmount": nil},
		},
	})

	r.ExtractShipments(Events{listShipment: {ev}}, testGroup())

	fees := findLines(r, "ShipmentItemFee")
	if len(fees) != 2 {
		t.Fatalf("fee lines = %d, want 2", len(fees))
	}
	if fees[0].Type != "Commission" || fees[0].AmountSigned.String() != "-3.1" {
		t.Errorf("unexpected fee line %+v", fees[0])
	}
	if !fees[0].AmountAbs.Equal(decimal.RequireFromString("3.1")) {
		t.Errorf("AmountAbs = %s", fees[0].AmountAbs)
	}

	// The nil-amount shipping charge must be dropped, not zeroed.
	charges := findLines(r, "ShipmentItemCharge")
	if len(charges) != 1 {
		t.Fatalf("charge lines = %d, want 1", len(charges))
	}

	qty := r.qtyByKey[QtyKey{OrderID: "171-0000001-0000001", SKU: "SKU-1", ASIN: "B000TEST01", Phase: core.PhasePayment}]
	if qty != 2 {
		t.Errorf("quantity = %d, want 2", qty)
	}
}

func TestExtractShipments_MonthBoundary(t *testing.T) {
	r := testRun(t)
	item := map[string]any{
		"SellerSKU":   "SKU-1",
		"ItemFeeList": []any{map[string]any{"FeeType": "Commission", "FeeAmount": money(-1.0)}},
	}

	events := Events{listShipment: {
		shipmentEvent("2025-06-30T23:59:59Z", item),
		shipmentEvent("2025-07-01T00:00:00Z", item),
		shipmentEvent("2025-07-31T23:59:59Z", item),
		shipmentEvent("2025-08-01T00:00:00Z", item),
	}}
	r.ExtractShipments(events, testGroup())

	if len(r.Lines) != 2 {
		t.Fatalf("lines = %d, want exactly the two in-month events", len(r.Lines))
	}
	for _, l := range r.Lines {
		if l.DateLocal != "2025-07-01" && l.DateLocal != "2025-07-31" {
			t.Errorf("unexpected line date %s", l.DateLocal)
		}
	}
}

func TestExtractShipments_PromotionAmountFallback(t *testing.T) {
	promo := func(amount float64) map[string]any {
		return map[string]any{
			"PromotionType":   "PromotionMetaDataDefinitionValue",
			"PromotionAmount": money(amount),
		}
	}
	item := func(p map[string]any) map[string]any {
		return map[string]any{
			"SellerSKU": "SKU-1",
			"ItemChargeList": []any{
				map[string]any{"ChargeType": "ShippingCharge", "ChargeAmount": money(3.00)},
			},
			"PromotionList": []any{p},
		}
	}

	t.Run("matches shipping within tolerance", func(t *testing.T) {
		r := testRun(t)
		r.ExtractShipments(Events{listShipment: {shipmentEvent("2025-07-10T12:00:00Z", item(promo(-3.01)))}}, testGroup())

		promos := findLines(r, "Promotion")
		if len(promos) != 1 {
			t.Fatalf("promotion lines = %d, want 1", len(promos))
		}
		if promos[0].Type != "ShipPromotion" {
			t.Errorf("bucket = %q, want ShipPromotion", promos[0].Type)
		}
	})

	t.Run("outside tolerance stays unknown", func(t *testing.T) {
		r := testRun(t)
		r.ExtractShipments(Events{listShipment: {shipmentEvent("2025-07-10T12:00:00Z", item(promo(-5.00)))}}, testGroup())

		promos := findLines(r, "Promotion")
		if len(promos) != 1 {
			t.Fatalf("promotion lines = %d, want 1", len(promos))
		}
		if promos[0].Type != PromotionUnknown {
			t.Errorf("bucket = %q, want %q", promos[0].Type, PromotionUnknown)
		}
	})

	t.Run("near-zero unknown goes to review not ledger", func(t *testing.T) {
		r := testRun(t)
		r.ExtractShipments(Events{listShipment: {shipmentEvent("2025-07-10T12:00:00Z", item(promo(-0.001)))}}, testGroup())

		if len(findLines(r, "Promotion")) != 0 {
			t.Error("near-zero unknown promotion must not reach the ledger")
		}
		if len(r.Unknown) != 1 {
			t.Fatalf("review samples = %d, want 1", len(r.Unknown))
		}
		if r.Unknown[0].SourceList != listShipment {
			t.Errorf("sample source = %q", r.Unknown[0].SourceList)
		}
	})
}

func TestPromotionDedup(t *testing.T) {
	promo := map[string]any{
		"PromotionType":   "Lightning Deal",
		"PromotionId":     "LD-1",
		"PromotionAmount": money(-2.00),
	}
	item := map[string]any{"SellerSKU": "SKU-1", "PromotionList": []any{promo, promo}}

	r := testRun(t)
	r.ExtractShipments(Events{listShipment: {shipmentEvent("2025-07-10T12:00:00Z", item)}}, testGroup())

	if got := len(findLines(r, "Promotion")); got != 1 {
		t.Errorf("promotion lines = %d, want 1 after dedup", got)
	}
	if r.PromoDupSkipped != 1 {
		t.Errorf("PromoDupSkipped = %d, want 1", r.PromoDupSkipped)
	}

	// Same identity but different amount is a distinct promotion.
	other := map[string]any{
		"PromotionType":   "Lightning Deal",
		"PromotionId":     "LD-1",
		"PromotionAmount": money(-2.50),
	}
	item2 := map[string]any{"SellerSKU": "SKU-1", "PromotionList": []any{other}}
	r.ExtractShipments(Events{listShipment: {shipmentEvent("2025-07-10T12:00:00Z", item2)}}, testGroup())

	if got := len(findLines(r, "Promotion")); got != 2 {
		t.Errorf("promotion lines = %d, want 2", got)
	}
}

func TestExtractRefunds_Tiers(t *testing.T) {
	t.Run("explicit event-level lists", func(t *testing.T) {
		r := testRun(t)
		ev := core.Document{
			"AmazonOrderId": "171-1",
			"PostedDate":    "2025-07-05T10:00:00Z",
			"RefundChargeList": []any{
				map[string]any{"ChargeType": "Principal", "ChargeAmount": money(-9.99)},
			},
			"RefundFeeList": []any{
				map[string]any{"FeeType": "RefundCommission", "FeeAmount": money(-0.80)},
			},
		}
		r.ExtractRefunds(Events{"RefundEventList": {ev}}, testGroup())

		if len(findLines(r, "RefundCharge")) != 1 || len(findLines(r, "RefundFee")) != 1 {
			t.Fatalf("lines = %+v", r.Lines)
		}
		if r.RefundScansUsed != 0 {
			t.Errorf("RefundScansUsed = %d, want 0", r.RefundScansUsed)
		}
	})

	t.Run("empty refund lists fall through to plain lists", func(t *testing.T) {
		r := testRun(t)
		ev := core.Document{
			"AmazonOrderId":    "171-1",
			"PostedDate":       "2025-07-05T10:00:00Z",
			"RefundChargeList": []any{},
			"ChargeList": []any{
				map[string]any{"ChargeType": "Principal", "ChargeAmount": money(-9.99)},
			},
			"RefundFeeList": []any{},
			"FeeList": []any{
				map[string]any{"FeeType": "RefundCommission", "FeeAmount": money(-0.80)},
			},
		}
		r.ExtractRefunds(Events{"RefundEventList": {ev}}, testGroup())

		if len(findLines(r, "RefundCharge")) != 1 || len(findLines(r, "RefundFee")) != 1 {
			t.Fatalf("lines = %+v", r.Lines)
		}
		if r.RefundScansUsed != 0 {
			t.Errorf("RefundScansUsed = %d, want 0", r.RefundScansUsed)
		}
	})

	t.Run("nested item adjustment lists", func(t *testing.T) {
		r := testRun(t)
		ev := core.Document{
			"AmazonOrderId": "171-1",
			"PostedDate":    "2025-07-05T10:00:00Z",
			"ShipmentItemAdjustmentList": []any{map[string]any{
				"SellerSKU":       "SKU-9",
				"QuantityShipped": 1.0,
				"ItemChargeAdjustmentList": []any{
					map[string]any{"ChargeType": "Principal", "ChargeAmount": money(-9.99)},
				},
				"ItemFeeAdjustmentList": []any{
					map[string]any{"FeeType": "Commission", "FeeAmount": money(1.50)},
				},
			}},
		}
		r.ExtractRefunds(Events{"RefundEventList": {ev}}, testGroup())

		if len(findLines(r, "RefundChargeAdjustment")) != 1 || len(findLines(r, "RefundFeeAdjustment")) != 1 {
			t.Fatalf("lines = %+v", r.Lines)
		}
		if r.RefundScansUsed != 0 {
			t.Errorf("RefundScansUsed = %d, want 0", r.RefundScansUsed)
		}
		qty := r.qtyByKey[QtyKey{OrderID: "171-1", SKU: "SKU-9", Phase: core.PhaseRefund}]
		if qty != 1 {
			t.Errorf("refund quantity = %d, want 1", qty)
		}
	})

	t.Run("structural scan as last resort", func(t *testing.T) {
		r := testRun(t)
		ev := core.Document{
			"AmazonOrderId": "171-1",
			"PostedDate":    "2025-07-05T10:00:00Z",
			"SomeOpaqueWrapper": map[string]any{
				"InnerThing": map[string]any{
					"FeeType":   "RefundCommission",
					"FeeAmount": money(-0.80),
				},
			},
		}
		r.ExtractRefunds(Events{"RefundEventList": {ev}}, testGroup())

		fees := findLines(r, "RefundFee")
		if len(fees) != 1 {
			t.Fatalf("scanned fee lines = %d, want 1", len(fees))
		}
		if fees[0].SourceList != "RefundEventList/Scan" {
			t.Errorf("source = %q", fees[0].SourceList)
		}
		if r.RefundScansUsed != 1 {
			t.Errorf("RefundScansUsed = %d, want 1", r.RefundScansUsed)
		}
	})
}

func TestExtractAdjustments(t *testing.T) {
	r := testRun(t)
	ev := core.Document{
		"PostedDate":       "2025-07-15T08:00:00Z",
		"AdjustmentType":   "REVERSAL_REIMBURSEMENT",
		"AdjustmentAmount": money(4.20),
	}
	r.ExtractAdjustments(Events{"AdjustmentEventList": {ev}}, testGroup())

	lines := findLines(r, "Adjustment")
	if len(lines) != 1 {
		t.Fatalf("lines = %d, want 1", len(lines))
	}
	if lines[0].Type != "ReversalReimbursement" {
		t.Errorf("type = %q, want ReversalReimbursement", lines[0].Type)
	}
	if lines[0].OrderID != "" {
		t.Errorf("adjustment should be account-level, got order %q", lines[0].OrderID)
	}
}

func TestExtractGenericList_CamelCase(t *testing.T) {
	r := testRun(t)
	ev := core.Document{
		"amazonOrderId": "171-2",
		"postedDate":    "2025-07-12T09:00:00Z",
		"chargeList": []any{
			map[string]any{"chargeType": "Principal", "chargeAmount": map[string]any{"currencyCode": "EUR", "CurrencyAmount": -7.5}},
		},
	}
	r.ExtractGenericList(Events{"ChargebackEventList": {ev}}, testGroup(), "ChargebackEventList")

	lines := findLines(r, "ChargebackCharge")
	if len(lines) != 1 {
		t.Fatalf("lines = %d, want 1", len(lines))
	}
	if lines[0].OrderID != "171-2" || lines[0].Currency != "EUR" {
		t.Errorf("line = %+v", lines[0])
	}
}

func TestExtractGenericList_CouponPaymentPromotion(t *testing.T) {
	r := testRun(t)
	ev := core.Document{
		"PostedDate":  "2025-07-12T09:00:00Z",
		"CouponId":    "CP-77",
		"TotalAmount": money(-1.50),
	}
	events := Events{listCouponPayment: {ev, ev}}
	r.ExtractGenericList(events, testGroup(), listCouponPayment)

	promos := findLines(r, "Promotion")
	if len(promos) != 1 {
		t.Fatalf("promotion lines = %d, want 1 after dedup", len(promos))
	}
	if promos[0].Type != "Coupon" {
		t.Errorf("bucket = %q, want Coupon", promos[0].Type)
	}
	if r.PromoDupSkipped != 1 {
		t.Errorf("PromoDupSkipped = %d, want 1", r.PromoDupSkipped)
	}
}

func TestEventTimeFallbacks(t *testing.T) {
	r := testRun(t)
	g := testGroup()

	if got := r.eventTime(core.Document{"PostedDate": "2025-07-03T10:00:00Z"}, g); !got.Equal(time.Date(2025, 7, 3, 10, 0, 0, 0, time.UTC)) {
		t.Errorf("posted date not used: %v", got)
	}
	if got := r.eventTime(core.Document{}, g); !got.Equal(g.End) {
		t.Errorf("group end fallback not used: %v", got)
	}
	if got := r.eventTime(core.Document{}, GroupMeta{Start: g.Start}); !got.Equal(g.Start) {
		t.Errorf("group start fallback not used: %v", got)
	}
}
