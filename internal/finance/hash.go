package finance

import (
	"crypto/md5"
	"encoding/hex"
	"strconv"
	"strings"
	"time"

	"feeledger/internal/core"
)

// FeeLine is one immutable audit record. Hash is the md5 of the ordered
// identity fields and doubles as the store's conflict key, so re-running a
// month is a no-op for lines already persisted.
type FeeLine struct {
	Hash        string
	PostedAtUTC string
	DateLocal   string
	Phase       core.Phase
	Category    string
	Type        string
	Currency    string
	Signed      string
	Abs         string
	OrderID     string
	SKU         string
	ASIN        string
	GroupID     string
	SourceList  string
	Marketplace string
	Period      core.Period
	Tenant      string
}

// FeeLines materializes the accumulated raw lines into hashable audit
// records, deduplicating within the run on the hash itself. Category, type
// and currency fall back to explicit unknowns so the hash never varies on
// missing-versus-empty.
func (r *Run) FeeLines() []FeeLine {
	seen := make(map[string]struct{}, len(r.Lines))
	out := make([]FeeLine, 0, len(r.Lines))

	for _, l := range r.Lines {
		cat := l.Category
		if cat == "" {
			cat = "UnknownCategory"
		}
		typ := l.Type
		if typ == "" {
			typ = "UnknownType"
		}
		cur := l.Currency
		if cur == "" {
			cur = "EUR"
		}

		posted := l.PostedAtUTC
		if posted.IsZero() {
			if d, err := time.ParseInLocation("2006-01-02", l.DateLocal, r.TZ); err == nil {
				posted = d.UTC()
			} else {
				posted = time.Now().UTC()
			}
		}

		phase := core.PhaseOf(cat)
		signed := l.AmountSigned.StringFixed(6)
		abs := l.AmountAbs.StringFixed(6)

		key := strings.Join([]string{
			core.ISOZ(posted),
			l.DateLocal,
			string(phase),
			cat,
			typ,
			cur,
			signed,
			abs,
			l.OrderID,
			l.SKU,
			l.ASIN,
			l.GroupID,
			l.SourceList,
			r.Marketplace,
			strconv.Itoa(r.Period.Year),
			strconv.Itoa(r.Period.Month),
			r.Tenant,
		}, "|")

		sum := md5.Sum([]byte(key))
		hash := hex.EncodeToString(sum[:])
		if _, dup := seen[hash]; dup {
			r.LineDupSkipped++
			continue
		}
		seen[hash] = struct{}{}

		out = append(out, FeeLine{
			Hash:        hash,
			PostedAtUTC: core.ISOZ(posted),
			DateLocal:   l.DateLocal,
			Phase:       phase,
			Category:    cat,
			Type:        typ,
			Currency:    cur,
			Signed:      signed,
			Abs:         abs,
			OrderID:     l.OrderID,
			SKU:         l.SKU,
			ASIN:        l.ASIN,
			GroupID:     l.GroupID,
			SourceList:  l.SourceList,
			Marketplace: r.Marketplace,
			Period:      r.Period,
			Tenant:      r.Tenant,
		})
	}
	return out
}
