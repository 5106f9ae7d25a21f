package finance

import (
	"feeledger/internal/core"
)

// ExtractAdjustments emits one line per adjustment event, with the type
// canonicalized. Adjustments carry no item identity.
func (r *Run) ExtractAdjustments(events Events, g GroupMeta) {
	for _, ev := range events["AdjustmentEventList"] {
		day, utc, local := r.eventDay(ev, g)
		if !r.inMonth(local) {
			continue
		}
		amt, cur, ok := core.MoneyAmount(ev.Doc("AdjustmentAmount"))
		r.add(lineParams{
			DateLocal: day, PostedAt: utc,
			Category: "Adjustment", Type: CanonicalType(ev.Str("AdjustmentType")), Currency: cur,
			Amount: amt, HasAmount: ok,
			OrderID: ev.Str("AmazonOrderId"),
			GroupID: g.ID, SourceList: "AdjustmentEventList",
		})
	}
}
