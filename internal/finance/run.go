package finance

import (
	"time"

	"github.com/shopspring/decimal"

	"feeledger/internal/core"
)

// IdentityKey groups line items for aggregation. An empty OrderID marks an
// account-level line, which is routed to the account aggregate and never to
// a per-order row.
type IdentityKey struct {
	OrderID  string
	SKU      string
	ASIN     string
	Currency string
}

// QtyKey accumulates shipped/refunded quantities per order item and phase.
type QtyKey struct {
	OrderID string
	SKU     string
	ASIN    string
	Phase   core.Phase
}

type promoKey struct {
	OrderID   string
	SKU       string
	ASIN      string
	Bucket    string
	Amount    float64
	Currency  string
	PostedISO string
	GroupID   string
}

// UnknownPromotion is one sample routed to the manual-review side channel.
type UnknownPromotion struct {
	OrderID    string
	SourceList string
	RawType    string
	ChargeType string
	RawSnippet string
	Amount     decimal.Decimal
	Currency   string
}

// GroupMeta carries the settlement-group identity and window used for date
// fallbacks when an event has no usable posted date.
type GroupMeta struct {
	ID    string
	Start time.Time
	End   time.Time
}

// Events is one group's raw payload: event-list name → raw events.
type Events map[string][]core.Document

// Run owns all mutable state of one pipeline execution: the flat ledger,
// the dedup sets, the accumulator maps and the review samples. State is
// never shared between runs; tests build a fresh Run per case.
type Run struct {
	Marketplace string
	Tenant      string
	Period      core.Period
	TZ          *time.Location

	MonthStartLocal time.Time
	MonthNextLocal  time.Time

	// Heuristic policy, configurable rather than hard-coded.
	Tolerance     decimal.Decimal
	UnknownLimit  int
	nearZeroLimit decimal.Decimal

	Lines   []core.LineItem
	Unknown []UnknownPromotion

	promoSeen       map[promoKey]struct{}
	PromoDupSkipped int
	LineDupSkipped  int
	RefundScansUsed int

	absByKey       map[IdentityKey]map[string]decimal.Decimal
	signedByKey    map[IdentityKey]map[string]decimal.Decimal
	signedByCatKey map[IdentityKey]map[string]decimal.Decimal
	qtyByKey       map[QtyKey]int

	now func() time.Time
}

// RunConfig is the policy a Run is built from.
type RunConfig struct {
	Marketplace  string
	Tenant       string
	Period       core.Period
	TZ           *time.Location
	Tolerance    decimal.Decimal // amount-matching tolerance, default 0.02
	UnknownLimit int             // review-sample cap, default 80
}

// NewRun builds a fresh run with empty state.
func NewRun(cfg RunConfig) *Run {
	tz := cfg.TZ
	if tz == nil {
		tz = time.UTC
	}
	tol := cfg.Tolerance
	if tol.IsZero() {
		tol = decimal.RequireFromString("0.02")
	}
	limit := cfg.UnknownLimit
	if limit <= 0 {
		limit = 80
	}
	start, next := core.MonthBoundsLocal(cfg.Period, tz)
	return &Run{
		Marketplace:     cfg.Marketplace,
		Tenant:          cfg.Tenant,
		Period:          cfg.Period,
		TZ:              tz,
		MonthStartLocal: start,
		MonthNextLocal:  next,
		Tolerance:       tol,
		UnknownLimit:    limit,
		nearZeroLimit:   decimal.RequireFromString("0.005"),
		promoSeen:       make(map[promoKey]struct{}),
		absByKey:        make(map[IdentityKey]map[string]decimal.Decimal),
		signedByKey:     make(map[IdentityKey]map[string]decimal.Decimal),
		signedByCatKey:  make(map[IdentityKey]map[string]decimal.Decimal),
		qtyByKey:        make(map[QtyKey]int),
		now:             time.Now,
	}
}

// lineParams is one candidate ledger entry. HasAmount is false when the
// monetary field was absent or unparsable; such candidates are discarded
// here, in one place, rather than in every extractor.
type lineParams struct {
	DateLocal  string
	PostedAt   time.Time
	Category   string
	Type       string
	Currency   string
	Amount     decimal.Decimal
	HasAmount  bool
	OrderID    string
	SKU        string
	ASIN       string
	GroupID    string
	SourceList string
}

// add appends a line to the ledger and folds it into the three accumulator
// maps keyed by identity.
func (r *Run) add(p lineParams) {
	if !p.HasAmount {
		return
	}
	line := core.NewLineItem(p.DateLocal, p.PostedAt, p.Category, p.Type, p.Currency,
		p.Amount, p.OrderID, p.SKU, p.ASIN, p.GroupID, p.SourceList)
	r.Lines = append(r.Lines, line)

	key := IdentityKey{
		OrderID:  p.OrderID,
		SKU:      skuOrOrderLevel(p.SKU),
		ASIN:     p.ASIN,
		Currency: p.Currency,
	}
	typCan := CanonicalType(p.Type)

	bump(r.absByKey, key, typCan, line.AmountAbs)
	bump(r.signedByKey, key, typCan, line.AmountSigned)
	bump(r.signedByCatKey, key, p.Category+":"+typCan, line.AmountSigned)
}

func bump(m map[IdentityKey]map[string]decimal.Decimal, key IdentityKey, sub string, amt decimal.Decimal) {
	inner, ok := m[key]
	if !ok {
		inner = make(map[string]decimal.Decimal)
		m[key] = inner
	}
	inner[sub] = inner[sub].Add(amt)
}

func skuOrOrderLevel(sku string) string {
	if sku == "" {
		return core.OrderLevelSKU
	}
	return sku
}

// bumpQty accumulates a positive quantity for an order item in a phase.
// Lines without an order identity carry no quantity.
func (r *Run) bumpQty(orderID, sku, asin string, qty int, phase core.Phase) {
	if orderID == "" || qty <= 0 {
		return
	}
	key := QtyKey{OrderID: orderID, SKU: skuOrOrderLevel(sku), ASIN: asin, Phase: phase}
	r.qtyByKey[key] += qty
}

// promoSeenBefore records a promotion identity and reports whether it was
// already emitted in this run. The same underlying promotion can surface
// through both the shipment list and a payment list; the first emission
// wins regardless of which extractor produced it.
func (r *Run) promoSeenBefore(orderID, sku, asin, bucket string, amt decimal.Decimal, hasAmt bool, currency string, postedAt time.Time, groupID string) bool {
	var amount float64
	if hasAmt {
		amount, _ = amt.Float64()
	}
	k := promoKey{
		OrderID:   orderID,
		SKU:       skuOrOrderLevel(sku),
		ASIN:      asin,
		Bucket:    bucket,
		Amount:    amount,
		Currency:  currency,
		PostedISO: core.ISOZ(postedAt),
		GroupID:   groupID,
	}
	if _, dup := r.promoSeen[k]; dup {
		r.PromoDupSkipped++
		return true
	}
	r.promoSeen[k] = struct{}{}
	return false
}

// sampleUnknown captures an unresolved promotion for manual review, bounded
// by the configured cap.
func (r *Run) sampleUnknown(s UnknownPromotion) {
	if len(r.Unknown) >= r.UnknownLimit {
		return
	}
	r.Unknown = append(r.Unknown, s)
}

// inMonth reports whether a local timestamp falls inside the half-open
// month window.
func (r *Run) inMonth(local time.Time) bool {
	return !local.Before(r.MonthStartLocal) && local.Before(r.MonthNextLocal)
}

// eventTime resolves an event's posted timestamp: the first recognized date
// field, else the group end, the group start, then the current time.
func (r *Run) eventTime(ev core.Document, g GroupMeta) time.Time {
	if s := ev.Str("PostedDate", "postedDate", "EventDate", "eventDate", "Date", "date"); s != "" {
		if t, ok := core.ParseISOZ(s); ok {
			return t
		}
	}
	if !g.End.IsZero() {
		return g.End
	}
	if !g.Start.IsZero() {
		return g.Start
	}
	return r.now().UTC()
}

// eventDay resolves the event timestamp to UTC plus its local calendar day.
func (r *Run) eventDay(ev core.Document, g GroupMeta) (day string, utc, local time.Time) {
	utc = r.eventTime(ev, g).UTC()
	local = utc.In(r.TZ)
	return local.Format("2006-01-02"), utc, local
}
