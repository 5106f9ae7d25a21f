package finance

import (
	"encoding/json"
	"regexp"
	"strings"

	"feeledger/internal/core"
)

// Source lists with dedicated classification rules.
const (
	listShipment          = "ShipmentEventList"
	listCouponPayment     = "CouponPaymentEventList"
	listSellerDealPayment = "SellerDealPaymentEventList"
)

type promoRule struct {
	re    *regexp.Regexp
	label string
}

// Ordered text rules matched against the combined type+charge-type text and
// the serialized lowercase raw object. First match wins. The vocabulary is a
// tuned heuristic, not a platform contract ("Blitzangebot" is the DE
// marketplace's term for a lightning deal).
var promoTextRules = []promoRule{
	{regexp.MustCompile(`(?i)\blightning\b`), "LightningDeal"},
	{regexp.MustCompile(`(?i)\bblitzangebot\b`), "LightningDeal"},
	{regexp.MustCompile(`(?i)\blightning\s*deal\b`), "LightningDeal"},
	{regexp.MustCompile(`(?i)\bdeal of the day\b|\bdotd\b`), "DealOfTheDay"},
	{regexp.MustCompile(`(?i)\b7[ -]?day\b|\bbest deal\b`), "BestDeal"},
	{regexp.MustCompile(`(?i)\bprime\s+exclusive\b`), "PrimeExclusiveDiscount"},
	{regexp.MustCompile(`(?i)\bprice\s*discount\b|\bdiscount\b`), "PriceDiscount"},
	{regexp.MustCompile(`(?i)\bcoupon\b|\bvoucher\b`), "Coupon"},
	{regexp.MustCompile(`(?i)\bsubscribe(\s*&\s*save|\s*and\s*save|\s*&\s*s)\b|\bS&S\b`), "SubscribeAndSave"},
	{regexp.MustCompile(`(?i)\boutlet\b`), "OutletDeal"},
	{regexp.MustCompile(`(?i)\bship(ping)?\s*(promo|discount)\b`), "ShipPromotion"},
	{regexp.MustCompile(`(?i)\bship(ping)?\b`), "ShipPromotion"},
}

// Ordered rules matched against a structured promotion identifier, checked
// before the free-text rules whenever an identifier is present.
var promoIDRules = []promoRule{
	{regexp.MustCompile(`(?i)\bfree\s*shipping\b|\bcore\s*free\s*shipping\b`), "ShipPromotion"},
	{regexp.MustCompile(`(?i)\bpercentage\s+off\b`), "PriceDiscount"},
	{regexp.MustCompile(`(?i)\bplcc\b|\bfree[- ]financing\b|\bfinancing\b`), "CreditCardFinancing"},
	{regexp.MustCompile(`(?i)\bpaws[-_]?v2\b`), "SystemPromo"},
	{regexp.MustCompile(`(?i)\bplm[-_]`), "PlatformPromo"},
	{regexp.MustCompile(`(?i)^[0-9a-f]{8}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{12}$`), "PromoIdOnly"},
	{regexp.MustCompile(`(?i)\bblitzangebot\b`), "LightningDeal"},
	{regexp.MustCompile(`(?i)\blightning\s*deal\b`), "LightningDeal"},
}

var blitzangebotRe = regexp.MustCompile(`(?i)\bblitzangebot\b`)

// PromotionUnknown is the bucket for promotion entries the classifier could
// not resolve; near-zero unknowns are routed to the review side channel
// instead of the ledger.
const PromotionUnknown = "Promotion(Unknown)"

// NormalizePromotion maps a raw promotion entry to a canonical category.
// Precedence: dedicated source-list rules, then identifier-pattern rules,
// then free-text rules, then source-specific fallbacks.
func NormalizePromotion(ptype, sourceList, chargeType string, raw core.Document, promotionID string) string {
	text := strings.TrimSpace(strings.TrimSpace(ptype) + " " + strings.TrimSpace(chargeType))
	rawStr := ""
	if raw != nil {
		if b, err := json.Marshal(raw); err == nil {
			rawStr = strings.ToLower(string(b))
		}
	}

	if sourceList == listCouponPayment {
		return "Coupon"
	}

	if sourceList == listSellerDealPayment {
		et := strings.ToUpper(raw.Str("EventType", "eventType"))
		desc := strings.ToLower(raw.Str("DealDescription", "dealDescription"))
		pid := promotionID
		if pid == "" {
			pid = raw.Str("DealId", "dealId")
		}
		if strings.Contains(et, "LIGHTNING") || strings.Contains(desc, "blitzangebot") ||
			strings.Contains(desc, "lightning") || blitzangebotRe.MatchString(pid) {
			return "LightningDeal"
		}
		if strings.Contains(et, "BEST") || strings.Contains(et, "7-DAY") ||
			strings.Contains(et, "7 DAY") || strings.Contains(desc, "best deal") {
			return "BestDeal"
		}
		return "Deal"
	}

	if promotionID != "" {
		for _, rule := range promoIDRules {
			if rule.re.MatchString(promotionID) {
				return rule.label
			}
		}
	}

	for _, rule := range promoTextRules {
		if rule.re.MatchString(text) || (rawStr != "" && rule.re.MatchString(rawStr)) {
			return rule.label
		}
	}

	if strings.EqualFold(chargeType, "promotion") && sourceList == listShipment {
		return "Promo_Item"
	}
	if ptype == "PromotionMetaDataDefinitionValue" {
		return PromotionUnknown
	}

	if s := strings.TrimSpace(ptype); s != "" {
		return s
	}
	if s := strings.TrimSpace(chargeType); s != "" {
		return s
	}
	return "Promotion"
}
