package finance

import (
	"feeledger/internal/core"
)

// ExtractRefunds walks the refund event list. The refund shape varies
// unpredictably across fee categories, so extraction is three-tiered:
// explicit event-level charge/fee lists first, then explicit adjustment
// lists nested under shipment items, and only when neither exists anywhere
// in the event, a recursive structural scan of the whole payload.
func (r *Run) ExtractRefunds(events Events, g GroupMeta) {
	for _, ev := range events["RefundEventList"] {
		day, utc, local := r.eventDay(ev, g)
		if !r.inMonth(local) {
			continue
		}
		orderID := ev.Str("AmazonOrderId", "OrderId")
		sku := ev.Str("SellerSKU")
		asin := ev.Str("ASIN")

		for _, listName := range []string{"ShipmentItemAdjustmentList", "ShipmentItemList"} {
			for _, it := range ev.List(listName) {
				qty := it.Int("QuantityShipped")
				if qty == 0 {
					qty = it.Int("QuantityOrdered")
				}
				itemSKU := it.Str("SellerSKU")
				if itemSKU == "" {
					itemSKU = sku
				}
				itemASIN := it.Str("ASIN")
				if itemASIN == "" {
					itemASIN = asin
				}
				r.bumpQty(orderID, itemSKU, itemASIN, qty, core.PhaseRefund)
			}
		}

		chargeLists := ev.List("RefundChargeList", "ChargeList")
		feeLists := ev.List("RefundFeeList", "FeeList")

		for _, ch := range chargeLists {
			amt, cur, ok := core.MoneyAmount(ch.Doc("ChargeAmount", "Amount"))
			r.add(lineParams{
				DateLocal: day, PostedAt: utc,
				Category: "RefundCharge", Type: ch.Str("ChargeType", "Type"), Currency: cur,
				Amount: amt, HasAmount: ok,
				OrderID: orderID, SKU: sku, ASIN: asin,
				GroupID: g.ID, SourceList: "RefundEventList",
			})
		}

		for _, fee := range feeLists {
			amt, cur, ok := core.MoneyAmount(fee.Doc("FeeAmount"))
			r.add(lineParams{
				DateLocal: day, PostedAt: utc,
				Category: "RefundFee", Type: fee.Str("FeeType", "Type"), Currency: cur,
				Amount: amt, HasAmount: ok,
				OrderID: orderID, SKU: sku, ASIN: asin,
				GroupID: g.ID, SourceList: "RefundEventList",
			})
		}

		hadExplicit := len(chargeLists) > 0 || len(feeLists) > 0

		for _, item := range ev.List("ShipmentItemAdjustmentList") {
			itemSKU := item.Str("SellerSKU")
			if itemSKU == "" {
				itemSKU = sku
			}
			itemASIN := item.Str("ASIN")
			if itemASIN == "" {
				itemASIN = asin
			}
			chargeAdj := item.List("ItemChargeAdjustmentList")
			feeAdj := item.List("ItemFeeAdjustmentList")
			if len(chargeAdj) > 0 || len(feeAdj) > 0 {
				hadExplicit = true
			}
			for _, ch := range chargeAdj {
				amt, cur, ok := core.MoneyAmount(ch.Doc("ChargeAmount", "Amount"))
				r.add(lineParams{
					DateLocal: day, PostedAt: utc,
					Category: "RefundChargeAdjustment", Type: ch.Str("ChargeType", "Type"), Currency: cur,
					Amount: amt, HasAmount: ok,
					OrderID: orderID, SKU: itemSKU, ASIN: itemASIN,
					GroupID: g.ID, SourceList: "RefundEventList",
				})
			}
			for _, fee := range feeAdj {
				amt, cur, ok := core.MoneyAmount(fee.Doc("FeeAmount"))
				r.add(lineParams{
					DateLocal: day, PostedAt: utc,
					Category: "RefundFeeAdjustment", Type: fee.Str("FeeType", "Type"), Currency: cur,
					Amount: amt, HasAmount: ok,
					OrderID: orderID, SKU: itemSKU, ASIN: itemASIN,
					GroupID: g.ID, SourceList: "RefundEventList",
				})
			}
		}

		if !hadExplicit {
			var found []scannedComponent
			scanMoneyComponents(map[string]any(ev), []string{"RefundEvent"}, &found)
			for _, c := range found {
				r.add(lineParams{
					DateLocal: day, PostedAt: utc,
					Category: c.Category, Type: c.Type, Currency: c.Currency,
					Amount: c.Amount, HasAmount: c.HasAmt,
					OrderID: orderID, SKU: sku, ASIN: asin,
					GroupID: g.ID, SourceList: "RefundEventList/Scan",
				})
			}
			r.RefundScansUsed++
		}
	}
}
