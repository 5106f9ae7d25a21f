package core

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Phase marks whether a line represents a forward charge/fee or a reversal.
type Phase string

const (
	PhasePayment Phase = "Payment"
	PhaseRefund  Phase = "Refund"
)

// OrderLevelSKU is the SKU placeholder for lines that carry an order id but
// no item identity.
const OrderLevelSKU = "_ORDER_LEVEL_"

// LineItem is the atomic unit of the ledger: one normalized monetary entry
// extracted from a raw event. AmountAbs is always |AmountSigned|; a line is
// never constructed for an absent or unparsable amount.
type LineItem struct {
	DateLocal    string // YYYY-MM-DD in the run's timezone
	PostedAtUTC  time.Time
	Category     string
	Type         string
	Currency     string
	AmountSigned decimal.Decimal
	AmountAbs    decimal.Decimal
	OrderID      string
	SKU          string
	ASIN         string
	GroupID      string
	SourceList   string
}

// NewLineItem builds a line item, deriving AmountAbs from the signed amount.
func NewLineItem(dateLocal string, postedAt time.Time, category, typ, currency string, amount decimal.Decimal, orderID, sku, asin, groupID, sourceList string) LineItem {
	return LineItem{
		DateLocal:    dateLocal,
		PostedAtUTC:  postedAt,
		Category:     category,
		Type:         typ,
		Currency:     currency,
		AmountSigned: amount,
		AmountAbs:    amount.Abs(),
		OrderID:      orderID,
		SKU:          sku,
		ASIN:         asin,
		GroupID:      groupID,
		SourceList:   sourceList,
	}
}

// IsRefundCategory reports whether a category belongs to the refund phase.
func IsRefundCategory(category string) bool {
	return strings.HasPrefix(category, "Refund") ||
		strings.HasPrefix(category, "GuaranteeClaim") ||
		strings.HasPrefix(category, "Chargeback")
}

// PhaseOf maps a category to its transaction phase.
func PhaseOf(category string) Phase {
	if IsRefundCategory(category) {
		return PhaseRefund
	}
	return PhasePayment
}
