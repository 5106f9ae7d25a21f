package finance

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"feeledger/internal/core"
	"feeledger/internal/spapi"
	"feeledger/internal/storage"
)

// Notifier publishes run lifecycle updates to interested consumers.
type Notifier interface {
	Publish(ctx context.Context, status, note string, runErr error) error
}

// Reviewer receives unresolved promotion samples for manual triage.
type Reviewer interface {
	AppendSamples(ctx context.Context, samples []UnknownPromotion) error
}

// Exporter writes run audit artifacts to disk.
type Exporter interface {
	ExportRun(run *Run, lines []FeeLine) error
}

// PipelineConfig is the per-run policy of the fee import.
type PipelineConfig struct {
	Tenant      string
	Marketplace string
	Period      core.Period
	TZ          *time.Location

	Workers   int           // concurrent group fetches, default 4
	SafetyLag time.Duration // keep-away from now, default 5m

	FeesTable        string // default amazon_fees
	FeeLinesTable    string // default amazon_fee_lines
	AccountFeesTable string // default amazon_account_fees

	// Optional overrides for the fee-line category/type column names, for
	// targets whose schema predates the current naming.
	LinesCategoryColumn string
	LinesTypeColumn     string

	Tolerance    float64
	UnknownLimit int
}

// Pipeline drives one fee import: list the event groups overlapping the
// padded month window, fetch each group's events concurrently, extract and
// aggregate sequentially, then upsert account buckets, audit lines and
// per-order aggregates in that order.
type Pipeline struct {
	API   spapi.Client
	Store *storage.Store
	Cfg   PipelineConfig
	Log   *slog.Logger

	Notify Notifier // optional
	Review Reviewer // optional
	Export Exporter // optional

	now func() time.Time
}

// RunSummary reports what one execution did.
type RunSummary struct {
	Groups         int
	GroupsFailed   int
	Lines          int
	FeeLines       int
	OrderRows      int
	AccountRows    int
	PromoDups      int
	LineDups       int
	RefundScans    int
	UnknownSamples int
}

// NewPipeline applies defaults and returns a ready pipeline.
func NewPipeline(api spapi.Client, store *storage.Store, cfg PipelineConfig, logger *slog.Logger) *Pipeline {
	if cfg.Workers <= 0 {
		cfg.Workers = 4
	}
	if cfg.SafetyLag <= 0 {
		cfg.SafetyLag = 5 * time.Minute
	}
	if cfg.FeesTable == "" {
		cfg.FeesTable = "amazon_fees"
	}
	if cfg.FeeLinesTable == "" {
		cfg.FeeLinesTable = "amazon_fee_lines"
	}
	if cfg.AccountFeesTable == "" {
		cfg.AccountFeesTable = "amazon_account_fees"
	}
	if cfg.LinesCategoryColumn == "" {
		cfg.LinesCategoryColumn = "fee_category"
	}
	if cfg.LinesTypeColumn == "" {
		cfg.LinesTypeColumn = "fee_type"
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Pipeline{API: api, Store: store, Cfg: cfg, Log: logger, now: time.Now}
}

// window pads the month by one day on each side, then clamps the upper
// bound to the end of yesterday and to now minus the safety lag.
func (p *Pipeline) window() (after, before time.Time) {
	start, next := core.MonthBoundsLocal(p.Cfg.Period, p.Cfg.TZ)
	after = start.AddDate(0, 0, -1).UTC()
	before = next.AddDate(0, 0, 1).UTC()
	before = core.ClampBefore(after, before, p.now(), p.Cfg.SafetyLag, p.Cfg.TZ)
	return after, before
}

// Execute runs the import end to end and returns its summary. Credential
// failures abort immediately; a single group failing keeps the rest of the
// run alive with whatever pages that group delivered.
func (p *Pipeline) Execute(ctx context.Context) (RunSummary, error) {
	summary, err := p.execute(ctx)
	if p.Notify != nil {
		status, note := "loaded", fmt.Sprintf("groups=%d lines=%d", summary.Groups, summary.Lines)
		if err != nil {
			status, note = "failed", ""
		}
		if nerr := p.Notify.Publish(ctx, status, note, err); nerr != nil {
			p.Log.Warn("publishing run status failed", "status", status, "error", nerr)
		}
	}
	return summary, err
}

func (p *Pipeline) execute(ctx context.Context) (RunSummary, error) {
	var summary RunSummary

	after, before := p.window()
	if !before.After(after) {
		return summary, fmt.Errorf("empty import window for %s", p.Cfg.Period)
	}
	p.Log.Info("import window resolved",
		"marketplace", p.Cfg.Marketplace, "period", p.Cfg.Period.String(),
		"after", after, "before", before)

	if p.Notify != nil {
		if err := p.Notify.Publish(ctx, "started", "", nil); err != nil {
			p.Log.Warn("publishing run status failed", "status", "started", "error", err)
		}
	}

	groups, err := p.API.ListEventGroups(ctx, after, before)
	if err != nil {
		return summary, fmt.Errorf("list event groups: %w", err)
	}
	summary.Groups = len(groups)
	p.Log.Info("event groups listed", "count", len(groups))

	var mu sync.Mutex
	byID := make(map[string]spapi.Events, len(groups))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.Cfg.Workers)
	for _, grp := range groups {
		grp := grp
		g.Go(func() error {
			events, err := p.API.ListEventsForGroup(gctx, grp.ID)
			if err != nil {
				if errors.Is(err, spapi.ErrForbidden) {
					return err
				}
				mu.Lock()
				summary.GroupsFailed++
				mu.Unlock()
				p.Log.Warn("group fetch failed, keeping partial pages",
					"group_id", grp.ID, "error", err)
			}
			mu.Lock()
			byID[grp.ID] = events
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return summary, fmt.Errorf("fetch event groups: %w", err)
	}

	run := NewRun(RunConfig{
		Marketplace:  p.Cfg.Marketplace,
		Tenant:       p.Cfg.Tenant,
		Period:       p.Cfg.Period,
		TZ:           p.Cfg.TZ,
		Tolerance:    toleranceDecimal(p.Cfg.Tolerance),
		UnknownLimit: p.Cfg.UnknownLimit,
	})
	for _, grp := range groups {
		events := byID[grp.ID]
		if len(events) == 0 {
			continue
		}
		run.ExtractAll(Events(events), GroupMeta{ID: grp.ID, Start: grp.Start, End: grp.End})
	}
	summary.Lines = len(run.Lines)
	summary.PromoDups = run.PromoDupSkipped
	summary.RefundScans = run.RefundScansUsed
	summary.UnknownSamples = len(run.Unknown)

	lines := run.FeeLines()
	summary.FeeLines = len(lines)
	summary.LineDups = run.LineDupSkipped
	orderRows := run.OrderRows()
	summary.OrderRows = len(orderRows)
	accountRows := run.AccountRows()
	summary.AccountRows = len(accountRows)

	if p.Export != nil {
		if err := p.Export.ExportRun(run, lines); err != nil {
			p.Log.Warn("exporting audit artifacts failed", "error", err)
		}
	}
	if p.Review != nil && len(run.Unknown) > 0 {
		if err := p.Review.AppendSamples(ctx, run.Unknown); err != nil {
			p.Log.Warn("appending review samples failed", "count", len(run.Unknown), "error", err)
		}
	}

	if _, err := p.Store.Upsert(ctx, p.Cfg.AccountFeesTable, p.accountFeeRows(accountRows), []string{
		"tenant_id", "marketplace", "date", "category", "type", "currency",
		"financial_event_group_id", "period_year", "period_month",
	}); err != nil {
		return summary, fmt.Errorf("upsert account fees: %w", err)
	}

	if _, err := p.Store.Upsert(ctx, p.Cfg.FeeLinesTable, p.feeLineRows(lines), []string{"line_hash"}); err != nil {
		return summary, fmt.Errorf("upsert fee lines: %w", err)
	}

	if _, err := p.Store.Upsert(ctx, p.Cfg.FeesTable, p.orderFeeRows(orderRows), []string{
		"amazon_order_id", "seller_sku", "marketplace", "period_year", "period_month", "currency", "transaction_phase",
	}); err != nil {
		return summary, fmt.Errorf("upsert order fees: %w", err)
	}

	p.Log.Info("fee import finished",
		"groups", summary.Groups, "groups_failed", summary.GroupsFailed,
		"lines", summary.Lines, "fee_lines", summary.FeeLines,
		"order_rows", summary.OrderRows, "account_rows", summary.AccountRows,
		"promo_dups_skipped", summary.PromoDups, "line_dups_skipped", summary.LineDups,
		"refund_scans", summary.RefundScans, "unknown_samples", summary.UnknownSamples)
	return summary, nil
}

func (p *Pipeline) accountFeeRows(rows []AccountRow) []storage.Row {
	out := make([]storage.Row, 0, len(rows))
	for _, r := range rows {
		amount, _ := r.Amount.Float64()
		out = append(out, storage.Row{
			"tenant_id":                r.Tenant,
			"marketplace":              r.Marketplace,
			"date":                     r.Date,
			"category":                 r.Category,
			"type":                     r.Type,
			"currency":                 r.Currency,
			"amount":                   amount,
			"financial_event_group_id": r.GroupID,
			"source_list":              r.SourceList,
			"period_year":              r.Period.Year,
			"period_month":             r.Period.Month,
		})
	}
	return out
}

func (p *Pipeline) feeLineRows(lines []FeeLine) []storage.Row {
	out := make([]storage.Row, 0, len(lines))
	for _, l := range lines {
		out = append(out, storage.Row{
			"line_hash":                l.Hash,
			"posted_at_utc":            l.PostedAtUTC,
			"finance_date_local":       l.DateLocal,
			"transaction_phase":        string(l.Phase),
			p.Cfg.LinesCategoryColumn:  l.Category,
			p.Cfg.LinesTypeColumn:      l.Type,
			"currency":                 l.Currency,
			"amount_signed":            l.Signed,
			"amount_abs":               l.Abs,
			"amazon_order_id":          l.OrderID,
			"seller_sku":               l.SKU,
			"asin":                     l.ASIN,
			"financial_event_group_id": l.GroupID,
			"source_list":              l.SourceList,
			"marketplace":              l.Marketplace,
			"period_year":              l.Period.Year,
			"period_month":             l.Period.Month,
			"tenant_id":                l.Tenant,
		})
	}
	return out
}

func (p *Pipeline) orderFeeRows(rows []OrderRow) []storage.Row {
	out := make([]storage.Row, 0, len(rows))
	for _, r := range rows {
		breakdown := make(map[string]float64, len(r.Breakdown))
		for k, v := range r.Breakdown {
			f, _ := v.Round(6).Float64()
			breakdown[k] = f
		}
		bd, err := json.Marshal(breakdown)
		if err != nil {
			bd = []byte("{}")
		}
		feeTotal, _ := r.FeeTotal.Round(2).Float64()
		out = append(out, storage.Row{
			"tenant_id":         r.Tenant,
			"amazon_order_id":   r.OrderID,
			"seller_sku":        r.SKU,
			"asin":              r.ASIN,
			"marketplace":       r.Marketplace,
			"currency":          r.Currency,
			"period_year":       r.Period.Year,
			"period_month":      r.Period.Month,
			"transaction_phase": string(r.Phase),
			"fee_total":         feeTotal,
			"fee_breakdown":     string(bd),
			"quantity":          r.Quantity,
			"last_posted_at":    core.ISOZ(r.LastPostedAt),
		})
	}
	return out
}

// toleranceDecimal converts the configured float tolerance; zero defers to
// the run default.
func toleranceDecimal(f float64) decimal.Decimal {
	if f <= 0 {
		return decimal.Zero
	}
	return decimal.NewFromFloat(f)
}
