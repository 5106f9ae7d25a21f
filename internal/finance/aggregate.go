package finance

import (
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"feeledger/internal/core"
)

// OrderRow is one per-order/SKU aggregate, split by phase. The breakdown
// keeps the signed category:type map verbatim; FeeTotal is the sum of
// absolute values across that phase's entries only.
type OrderRow struct {
	OrderID      string
	SKU          string
	ASIN         string
	Marketplace  string
	Currency     string
	FeeTotal     decimal.Decimal
	Breakdown    map[string]decimal.Decimal
	Phase        core.Phase
	LastPostedAt time.Time
	Period       core.Period
	Tenant       string
	Quantity     int
}

// AccountRow is one account-level bucket built from lines without an order
// identity, absolute-value summed.
type AccountRow struct {
	Tenant      string
	Marketplace string
	Date        string
	Category    string
	Type        string
	Currency    string
	Amount      decimal.Decimal
	GroupID     string
	SourceList  string
	Period      core.Period
}

type phaseKey struct {
	OrderID  string
	SKU      string
	ASIN     string
	Currency string
	Phase    core.Phase
}

// lastPostedTimes computes the latest posted timestamp per order item,
// currency and phase, for the aggregate rows' last-activity field.
func (r *Run) lastPostedTimes() map[phaseKey]time.Time {
	out := make(map[phaseKey]time.Time)
	for _, l := range r.Lines {
		if l.OrderID == "" {
			continue
		}
		k := phaseKey{
			OrderID:  l.OrderID,
			SKU:      skuOrOrderLevel(l.SKU),
			ASIN:     l.ASIN,
			Currency: l.Currency,
			Phase:    core.PhaseOf(l.Category),
		}
		if cur, ok := out[k]; !ok || l.PostedAtUTC.After(cur) {
			out[k] = l.PostedAtUTC
		}
	}
	return out
}

// OrderRows builds the per-order/SKU aggregate rows from the accumulated
// category map, one row per non-empty phase. Keys without an order id are
// excluded here; they belong to AccountRows.
func (r *Run) OrderRows() []OrderRow {
	lastPosted := r.lastPostedTimes()
	fallbackPosted := time.Date(r.Period.Year, time.Month(r.Period.Month), 1, 0, 0, 0, 0, r.TZ).UTC()

	keys := make([]IdentityKey, 0, len(r.signedByCatKey))
	for k := range r.signedByCatKey {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		a, b := keys[i], keys[j]
		if a.OrderID != b.OrderID {
			return a.OrderID < b.OrderID
		}
		if a.SKU != b.SKU {
			return a.SKU < b.SKU
		}
		if a.ASIN != b.ASIN {
			return a.ASIN < b.ASIN
		}
		return a.Currency < b.Currency
	})

	var rows []OrderRow
	for _, key := range keys {
		if key.OrderID == "" {
			continue
		}
		catMap := r.signedByCatKey[key]

		payCat := make(map[string]decimal.Decimal)
		refCat := make(map[string]decimal.Decimal)
		for catKey, signed := range catMap {
			category := catKey
			if i := strings.IndexByte(catKey, ':'); i >= 0 {
				category = catKey[:i]
			}
			if core.IsRefundCategory(category) {
				refCat[catKey] = signed
			} else {
				payCat[catKey] = signed
			}
		}

		for _, split := range []struct {
			phase core.Phase
			cats  map[string]decimal.Decimal
		}{
			{core.PhasePayment, payCat},
			{core.PhaseRefund, refCat},
		} {
			if len(split.cats) == 0 {
				continue
			}
			feeTotal := decimal.Zero
			for _, v := range split.cats {
				feeTotal = feeTotal.Add(v.Abs())
			}

			posted, ok := lastPosted[phaseKey{
				OrderID:  key.OrderID,
				SKU:      key.SKU,
				ASIN:     key.ASIN,
				Currency: key.Currency,
				Phase:    split.phase,
			}]
			if !ok {
				posted = fallbackPosted
			}

			qty := r.qtyByKey[QtyKey{OrderID: key.OrderID, SKU: key.SKU, ASIN: key.ASIN, Phase: split.phase}]

			rows = append(rows, OrderRow{
				OrderID:      key.OrderID,
				SKU:          key.SKU,
				ASIN:         key.ASIN,
				Marketplace:  r.Marketplace,
				Currency:     key.Currency,
				FeeTotal:     feeTotal,
				Breakdown:    split.cats,
				Phase:        split.phase,
				LastPostedAt: posted,
				Period:       r.Period,
				Tenant:       r.Tenant,
				Quantity:     qty,
			})
		}
	}
	return rows
}

type accountKey struct {
	Date     string
	Category string
	Type     string
	Currency string
	GroupID  string
}

// AccountRows aggregates every line lacking an order identity into
// per-(date, category, type, currency, group) buckets.
func (r *Run) AccountRows() []AccountRow {
	agg := make(map[accountKey]decimal.Decimal)
	source := make(map[accountKey]string)
	var order []accountKey

	for _, l := range r.Lines {
		if l.OrderID != "" {
			continue
		}
		k := accountKey{Date: l.DateLocal, Category: l.Category, Type: l.Type, Currency: l.Currency, GroupID: l.GroupID}
		if _, seen := agg[k]; !seen {
			order = append(order, k)
			source[k] = l.SourceList
		}
		agg[k] = agg[k].Add(l.AmountAbs)
	}

	rows := make([]AccountRow, 0, len(order))
	for _, k := range order {
		rows = append(rows, AccountRow{
			Tenant:      r.Tenant,
			Marketplace: r.Marketplace,
			Date:        k.Date,
			Category:    k.Category,
			Type:        k.Type,
			Currency:    k.Currency,
			Amount:      agg[k].Round(2),
			GroupID:     k.GroupID,
			SourceList:  source[k],
			Period:      r.Period,
		})
	}
	return rows
}
