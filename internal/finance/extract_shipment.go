package finance

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"

	"feeledger/internal/core"
)

// sumItemShippingComponents totals the absolute shipping charge and shipping
// tax on one shipment item. The totals feed the amount-matching fallback:
// an unexplained negative promotion matching one of them is a shipping
// promotion whatever its label says.
func sumItemShippingComponents(item core.Document) (ship, shipTax decimal.Decimal) {
	for _, ch := range item.List("ItemChargeList") {
		amt, _, ok := core.MoneyAmount(ch.Doc("ChargeAmount"))
		if !ok {
			continue
		}
		switch ch.Str("ChargeType") {
		case "ShippingCharge", "Shipping":
			ship = ship.Add(amt.Abs())
		case "ShippingTax":
			shipTax = shipTax.Add(amt.Abs())
		}
	}
	return ship, shipTax
}

// ExtractShipments walks the shipment event list: item fees, item charges,
// promotions (with the amount-matching fallback and promotion dedup) and the
// shipment-item adjustment fees. Shipped quantity lands in the Payment phase.
func (r *Run) ExtractShipments(events Events, g GroupMeta) {
	for _, ev := range events[listShipment] {
		day, utc, local := r.eventDay(ev, g)
		if !r.inMonth(local) {
			continue
		}
		orderID := ev.Str("AmazonOrderId")

		for _, item := range ev.List("ShipmentItemList") {
			sku := item.Str("SellerSKU")
			asin := item.Str("ASIN")

			qty := item.Int("QuantityShipped")
			if qty == 0 {
				qty = item.Int("QuantityOrdered")
			}
			r.bumpQty(orderID, sku, asin, qty, core.PhasePayment)

			shipTotal, shipTaxTotal := sumItemShippingComponents(item)

			for _, fee := range item.List("ItemFeeList") {
				amt, cur, ok := core.MoneyAmount(fee.Doc("FeeAmount"))
				r.add(lineParams{
					DateLocal: day, PostedAt: utc,
					Category: "ShipmentItemFee", Type: fee.Str("FeeType"), Currency: cur,
					Amount: amt, HasAmount: ok,
					OrderID: orderID, SKU: sku, ASIN: asin,
					GroupID: g.ID, SourceList: listShipment,
				})
			}

			for _, ch := range item.List("ItemChargeList") {
				amt, cur, ok := core.MoneyAmount(ch.Doc("ChargeAmount"))
				if !ok {
					continue
				}
				r.add(lineParams{
					DateLocal: day, PostedAt: utc,
					Category: "ShipmentItemCharge", Type: ch.Str("ChargeType"), Currency: cur,
					Amount: amt, HasAmount: true,
					OrderID: orderID, SKU: sku, ASIN: asin,
					GroupID: g.ID, SourceList: listShipment,
				})
			}

			for _, pr := range item.List("PromotionList") {
				r.extractItemPromotion(pr, orderID, sku, asin, day, utc, g, shipTotal, shipTaxTotal)
			}
		}

		for _, item := range ev.List("ShipmentItemAdjustmentList") {
			sku := item.Str("SellerSKU")
			asin := item.Str("ASIN")
			for _, fee := range item.List("ItemFeeList") {
				amt, cur, ok := core.MoneyAmount(fee.Doc("FeeAmount"))
				r.add(lineParams{
					DateLocal: day, PostedAt: utc,
					Category: "ShipmentItemAdjustmentFee", Type: fee.Str("FeeType"), Currency: cur,
					Amount: amt, HasAmount: ok,
					OrderID: orderID, SKU: sku, ASIN: asin,
					GroupID: g.ID, SourceList: listShipment,
				})
			}
		}
	}
}

func (r *Run) extractItemPromotion(pr core.Document, orderID, sku, asin, day string, utc time.Time, g GroupMeta, shipTotal, shipTaxTotal decimal.Decimal) {
	ptype := pr.Str("PromotionType")
	pid := pr.Str("PromotionId")
	amt, cur, hasAmt := core.MoneyAmount(pr.Doc("PromotionAmount"))

	bucket := NormalizePromotion(ptype, listShipment, "", pr, pid)

	// Text was ambiguous but the monetary signature may not be: a negative
	// amount matching the item's shipping components is a shipping promo.
	if (bucket == PromotionUnknown || bucket == "Deal") && hasAmt && amt.IsNegative() {
		if (!shipTotal.IsZero() && core.NearlyEqual(amt.Abs(), shipTotal, r.Tolerance)) ||
			(!shipTaxTotal.IsZero() && core.NearlyEqual(amt.Abs(), shipTaxTotal, r.Tolerance)) {
			bucket = "ShipPromotion"
		}
	}

	// Still unknown with no meaningful amount: review sample, not ledger.
	if bucket == PromotionUnknown && (!hasAmt || amt.Abs().Cmp(r.nearZeroLimit) < 0) {
		snippet, _ := json.Marshal(pr)
		r.sampleUnknown(UnknownPromotion{
			OrderID:    orderID,
			SourceList: listShipment,
			RawType:    ptype,
			RawSnippet: string(snippet),
			Amount:     amt,
			Currency:   cur,
		})
		return
	}

	if r.promoSeenBefore(orderID, sku, asin, bucket, amt, hasAmt, cur, utc, g.ID) {
		return
	}

	r.add(lineParams{
		DateLocal: day, PostedAt: utc,
		Category: "Promotion", Type: bucket, Currency: cur,
		Amount: amt, HasAmount: hasAmt,
		OrderID: orderID, SKU: sku, ASIN: asin,
		GroupID: g.ID, SourceList: listShipment,
	})
}
