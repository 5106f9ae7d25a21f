package finance

import (
	"strings"

	"github.com/shopspring/decimal"

	"feeledger/internal/core"
)

// scannedComponent is one fee- or charge-shaped amount discovered by the
// structural scanner.
type scannedComponent struct {
	Category string // RefundFee or RefundCharge
	Type     string
	Amount   decimal.Decimal
	HasAmt   bool
	Currency string
}

// scanMoneyComponents recursively walks an arbitrarily nested document and
// collects every sub-object carrying a FeeAmount or a ChargeAmount/Amount
// money object, with the nearest available type hint. It is the refund
// extractor's last resort when an event exposes no recognized structured
// list; applying it alongside structured data would double count.
func scanMoneyComponents(v any, path []string, out *[]scannedComponent) {
	switch t := v.(type) {
	case map[string]any:
		doc := core.Document(t)
		typ := doc.Str("FeeType", "ChargeType", "Type")
		if typ == "" && len(path) >= 2 {
			typ = strings.Join(path[len(path)-2:], "/")
		}
		if feeAmt, ok := doc.First("FeeAmount"); ok {
			if m, isDoc := core.AsDocument(feeAmt); isDoc {
				amt, cur, has := core.MoneyAmount(m)
				*out = append(*out, scannedComponent{Category: "RefundFee", Type: typ, Amount: amt, HasAmt: has, Currency: cur})
			}
		}
		if chgAmt, ok := doc.First("ChargeAmount", "Amount"); ok {
			if m, isDoc := core.AsDocument(chgAmt); isDoc {
				amt, cur, has := core.MoneyAmount(m)
				*out = append(*out, scannedComponent{Category: "RefundCharge", Type: typ, Amount: amt, HasAmt: has, Currency: cur})
			}
		}
		for k, child := range t {
			scanMoneyComponents(child, append(path, k), out)
		}
	case []any:
		for _, child := range t {
			scanMoneyComponents(child, path, out)
		}
	}
}
