// Package finance implements the financial-event normalization pipeline:
// the promotion classifier, the per-event-list extractors, run-scoped
// deduplication and the per-order and account-level aggregation.
package finance

import (
	"regexp"
	"strings"
)

// Explicit display forms for enumeration codes whose generic transform
// would come out wrong (acronyms, compounds).
var canonicalTypeMap = map[string]string{
	"COMPENSATED_CLAWBACK":                "CompensatedClawback",
	"WAREHOUSE_LOST":                      "WarehouseLost",
	"WAREHOUSE_DAMAGE":                    "WarehouseDamage",
	"FBA_INVENTORY_PLACEMENT_SERVICE_FEE": "FBAInventoryPlacementServiceFee",
	"LONG_TERM_STORAGE_FEE":               "LongTermStorageFee",
	"REVERSAL_REIMBURSEMENT":              "ReversalReimbursement",
}

var upperSnakeRe = regexp.MustCompile(`^[A-Z0-9_]+$`)

// CanonicalType maps a raw platform fee/adjustment enumeration code to its
// stable display form. Codes outside the explicit table fall back to a
// generic UPPER_SNAKE → PascalCase transform; anything that is not an
// enumeration code at all is returned verbatim.
func CanonicalType(t string) string {
	t = strings.TrimSpace(t)
	if t == "" {
		return ""
	}
	if mapped, ok := canonicalTypeMap[t]; ok {
		return mapped
	}
	if !upperSnakeRe.MatchString(t) {
		return t
	}
	parts := strings.Split(t, "_")
	var b strings.Builder
	for _, p := range parts {
		if p == "" {
			continue
		}
		b.WriteString(strings.ToUpper(p[:1]))
		b.WriteString(strings.ToLower(p[1:]))
	}
	return b.String()
}
