// Package core provides the primitives shared by the ingestion pipeline:
// exact decimal money parsing, raw-document field access, month/timezone
// math and the normalized ledger line item.
package core

import (
	"encoding/json"
	"strings"

	"github.com/shopspring/decimal"
)

// ParseAmount converts a raw monetary value into an exact decimal.
// Raw payloads carry amounts as JSON numbers or as strings; both are
// accepted. ok is false when the value is absent, empty or unparsable;
// callers must drop the line in that case, an unparsable amount is not a
// zero amount.
func ParseAmount(v any) (decimal.Decimal, bool) {
	switch t := v.(type) {
	case nil:
		return decimal.Decimal{}, false
	case decimal.Decimal:
		return t, true
	case float64:
		return decimal.NewFromFloat(t), true
	case int:
		return decimal.NewFromInt(int64(t)), true
	case int64:
		return decimal.NewFromInt(t), true
	case json.Number:
		d, err := decimal.NewFromString(t.String())
		if err != nil {
			return decimal.Decimal{}, false
		}
		return d, true
	case string:
		s := strings.TrimSpace(t)
		if s == "" {
			return decimal.Decimal{}, false
		}
		d, err := decimal.NewFromString(s)
		if err != nil {
			return decimal.Decimal{}, false
		}
		return d, true
	default:
		return decimal.Decimal{}, false
	}
}

// MoneyAmount reads a platform money object of the shape
// {Amount|CurrencyAmount, CurrencyCode|currencyCode}. The currency is
// preserved verbatim and never converted.
func MoneyAmount(m Document) (decimal.Decimal, string, bool) {
	if m == nil {
		return decimal.Decimal{}, "", false
	}
	cur := m.Str("CurrencyCode", "currencyCode")
	val, ok := m.First("Amount", "CurrencyAmount")
	if !ok {
		return decimal.Decimal{}, cur, false
	}
	amt, ok := ParseAmount(val)
	return amt, cur, ok
}

// NearlyEqual reports whether a and b differ by at most tol.
func NearlyEqual(a, b, tol decimal.Decimal) bool {
	return a.Sub(b).Abs().Cmp(tol) <= 0
}
