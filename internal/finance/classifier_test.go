package finance

import (
	"testing"

	"feeledger/internal/core"
)

func TestNormalizePromotion(t *testing.T) {
	tests := []struct {
		name        string
		ptype       string
		sourceList  string
		chargeType  string
		raw         core.Document
		promotionID string
		want        string
	}{
		{
			name:       "coupon payment list always coupon",
			sourceList: listCouponPayment,
			ptype:      "Lightning Deal Fee",
			want:       "Coupon",
		},
		{
			name:       "seller deal lightning by event type",
			sourceList: listSellerDealPayment,
			raw:        core.Document{"EventType": "LIGHTNING_DEAL"},
			want:       "LightningDeal",
		},
		{
			name:       "seller deal best deal by description",
			sourceList: listSellerDealPayment,
			raw:        core.Document{"DealDescription": "Best Deal summer"},
			want:       "BestDeal",
		},
		{
			name:        "seller deal blitzangebot by deal id",
			sourceList:  listSellerDealPayment,
			promotionID: "Blitzangebot-2025-07",
			raw:         core.Document{},
			want:        "LightningDeal",
		},
		{
			name:       "seller deal generic",
			sourceList: listSellerDealPayment,
			raw:        core.Document{"EventType": "DEAL_PAYMENT"},
			want:       "Deal",
		},
		{
			name:        "id rules beat text rules",
			sourceList:  listShipment,
			ptype:       "coupon for lightning deal",
			promotionID: "Core Free Shipping Promo",
			want:        "ShipPromotion",
		},
		{
			name:        "bare uuid id",
			sourceList:  listShipment,
			promotionID: "a1b2c3d4-e5f6-0718-9a0b-c1d2e3f4a5b6",
			want:        "PromoIdOnly",
		},
		{
			name:        "paws system promo",
			sourceList:  listShipment,
			promotionID: "PAWS-V2-12345",
			want:        "SystemPromo",
		},
		{
			name:        "plm platform promo",
			sourceList:  listShipment,
			promotionID: "PLM-ABCDEF",
			want:        "PlatformPromo",
		},
		{
			name:       "lightning beats coupon in text order",
			sourceList: listShipment,
			ptype:      "coupon lightning deal",
			want:       "LightningDeal",
		},
		{
			name:       "text rule from raw object",
			sourceList: listShipment,
			raw:        core.Document{"PromotionMetaDataDefinitionValue": "Subscribe & Save"},
			ptype:      "PromotionMetaDataDefinitionValue",
			want:       "SubscribeAndSave",
		},
		{
			name:       "order-level shipment promotion fallback",
			sourceList: listShipment,
			chargeType: "Promotion",
			want:       "Promo_Item",
		},
		{
			name:       "opaque metadata type stays unknown",
			sourceList: listShipment,
			ptype:      "PromotionMetaDataDefinitionValue",
			want:       PromotionUnknown,
		},
		{
			name:       "verbatim type fallback",
			sourceList: listShipment,
			ptype:      "SomeOpaqueLabel",
			want:       "SomeOpaqueLabel",
		},
		{
			name:       "empty everything",
			sourceList: listShipment,
			want:       "Promotion",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := NormalizePromotion(tt.ptype, tt.sourceList, tt.chargeType, tt.raw, tt.promotionID)
			if got != tt.want {
				t.Errorf("NormalizePromotion() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestCanonicalType(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"COMPENSATED_CLAWBACK", "CompensatedClawback"},
		{"FBA_INVENTORY_PLACEMENT_SERVICE_FEE", "FBAInventoryPlacementServiceFee"},
		{"LONG_TERM_STORAGE_FEE", "LongTermStorageFee"},
		{"REVERSAL_REIMBURSEMENT", "ReversalReimbursement"},
		{"SOME_OTHER_CODE", "SomeOtherCode"},
		{"FBAPerUnitFulfillmentFee", "FBAPerUnitFulfillmentFee"},
		{"Commission", "Commission"},
		{"  SHIPPING_LABEL  ", "ShippingLabel"},
		{"", ""},
	}
	for _, tt := range tests {
		if got := CanonicalType(tt.in); got != tt.want {
			t.Errorf("CanonicalType(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
