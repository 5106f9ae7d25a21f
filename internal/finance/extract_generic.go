package finance

import (
	"strings"

	"feeledger/internal/core"
)

// GenericEventLists are the fee/charge list shapes handled by the shared
// extractor. The two payment lists additionally emit one order-level
// promotion per event.
var GenericEventLists = []string{
	"GuaranteeClaimEventList",
	"ChargebackEventList",
	"RemovalShipmentEventList",
	"RemovalShipmentAdjustmentEventList",
	"SellerDealPaymentEventList",
	"CouponPaymentEventList",
	"ProductAdsPaymentEventList",
	"ValueAddedServiceChargeEventList",
	"CapacityReservationBillingEventList",
	"ImagingServicesFeeEventList",
	"NetworkComminglingTransactionEventList",
}

// ExtractGenericList handles one named fee/charge event-list shape. Field
// names are read in both PascalCase and camelCase; the category label is
// derived from the list name with the EventList suffix stripped. Guarantee
// claims and chargebacks are reversals, so their item quantities land in
// the Refund phase.
func (r *Run) ExtractGenericList(events Events, g GroupMeta, listName string) {
	prefix := strings.TrimSuffix(listName, "EventList")

	var phaseHint core.Phase
	if listName == "GuaranteeClaimEventList" || listName == "ChargebackEventList" {
		phaseHint = core.PhaseRefund
	}

	for _, ev := range events[listName] {
		day, utc, local := r.eventDay(ev, g)
		if !r.inMonth(local) {
			continue
		}

		orderID := ev.Str("AmazonOrderId", "OrderId", "amazonOrderId", "orderId")
		sku := ev.Str("SellerSKU", "sellerSku", "sellerSKU")
		asin := ev.Str("ASIN", "asin")

		if phaseHint != "" {
			for _, itemList := range []string{"ShipmentItemAdjustmentList", "ShipmentItemList"} {
				for _, it := range ev.List(itemList) {
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
					r.bumpQty(orderID, itemSKU, itemASIN, qty, phaseHint)
				}
			}
		}

		for _, ch := range ev.List("ChargeList", "chargeList") {
			amt, cur, ok := core.MoneyAmount(ch.Doc("ChargeAmount", "Amount", "chargeAmount", "amount"))
			r.add(lineParams{
				DateLocal: day, PostedAt: utc,
				Category: prefix + "Charge", Type: ch.Str("ChargeType", "Type", "chargeType", "type"), Currency: cur,
				Amount: amt, HasAmount: ok,
				OrderID: orderID, SKU: sku, ASIN: asin,
				GroupID: g.ID, SourceList: listName,
			})
		}

		for _, fee := range ev.List("FeeList", "feeList") {
			amt, cur, ok := core.MoneyAmount(fee.Doc("FeeAmount", "feeAmount"))
			r.add(lineParams{
				DateLocal: day, PostedAt: utc,
				Category: prefix + "Fee", Type: fee.Str("FeeType", "Type", "feeType", "type"), Currency: cur,
				Amount: amt, HasAmount: ok,
				OrderID: orderID, SKU: sku, ASIN: asin,
				GroupID: g.ID, SourceList: listName,
			})
		}

		if listName == listCouponPayment || listName == listSellerDealPayment {
			amt, cur, hasAmt := core.MoneyAmount(ev.Doc("TotalAmount", "totalAmount", "Amount", "amount"))
			pid := ev.Str("PromotionId", "promotionId", "DealId", "dealId", "CouponId", "couponId")
			bucket := NormalizePromotion("", listName, "", ev, pid)

			if r.promoSeenBefore(orderID, sku, asin, bucket, amt, hasAmt, cur, utc, g.ID) {
				continue
			}

			r.add(lineParams{
				DateLocal: day, PostedAt: utc,
				Category: "Promotion", Type: bucket, Currency: cur,
				Amount: amt, HasAmount: hasAmt,
				OrderID: orderID, SKU: sku, ASIN: asin,
				GroupID: g.ID, SourceList: listName,
			})
		}
	}
}

// ExtractAll runs every extractor against one group's events.
func (r *Run) ExtractAll(events Events, g GroupMeta) {
	r.ExtractShipments(events, g)
	r.ExtractServiceFees(events, g)
	r.ExtractRefunds(events, g)
	r.ExtractAdjustments(events, g)
	for _, name := range GenericEventLists {
		r.ExtractGenericList(events, g, name)
	}
}
