package finance

import (
	"strings"

	"feeledger/internal/core"
)

// ExtractServiceFees walks the service-fee event list. Vine, lightning-deal
// and best-deal fees are recognized by substring over the combined fee type
// and description, in that priority order; everything else keeps its raw
// type or falls back to a generic ServiceFee label.
func (r *Run) ExtractServiceFees(events Events, g GroupMeta) {
	for _, ev := range events["ServiceFeeEventList"] {
		day, utc, local := r.eventDay(ev, g)
		if !r.inMonth(local) {
			continue
		}
		orderID := ev.Str("AmazonOrderId")
		sku := ev.Str("SellerSKU")
		asin := ev.Str("ASIN")

		for _, fee := range ev.List("FeeList") {
			amt, cur, ok := core.MoneyAmount(fee.Doc("FeeAmount"))
			rawType := fee.Str("FeeType", "Type")
			desc := fee.Str("FeeDescription", "Description")
			l := strings.ToLower(rawType + " " + desc)

			var typ string
			switch {
			case strings.Contains(l, "vine"):
				typ = "VineFee"
			case strings.Contains(l, "lightning") || strings.Contains(l, "blitzangebot"):
				typ = "LightningDealFee"
			case strings.Contains(l, "best deal") || strings.Contains(l, "7-day") || strings.Contains(l, "7 day"):
				typ = "BestDealFee"
			case rawType != "":
				typ = rawType
			default:
				typ = "ServiceFee"
			}

			r.add(lineParams{
				DateLocal: day, PostedAt: utc,
				Category: "ServiceFee", Type: typ, Currency: cur,
				Amount: amt, HasAmount: ok,
				OrderID: orderID, SKU: sku, ASIN: asin,
				GroupID: g.ID, SourceList: "ServiceFeeEventList",
			})
		}
	}
}
