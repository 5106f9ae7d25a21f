package export

import (
	"fmt"
	"path/filepath"
	"strings"

	"feeledger/internal/finance"
)

var feeLineHeader = []string{
	"DateLocal", "Category", "Type", "Currency", "AmountSigned", "AmountAbs",
	"AmazonOrderId", "SellerSKU", "ASIN", "FinancialEventGroupId", "SourceList", "PostedAtUTC",
}

var unknownPromoHeader = []string{
	"AmazonOrderId", "SourceList", "RawType", "ChargeType", "Amount", "Currency", "RawSnippet",
}

// Format selects the audit artifact formats.
const (
	FormatCSV  = "csv"
	FormatXLSX = "xlsx"
	FormatBoth = "both"
)

// Audit writes per-run audit files under Dir, named by run id.
type Audit struct {
	Dir    string
	RunID  string
	Format string // csv, xlsx or both; default csv
}

var _ finance.Exporter = (*Audit)(nil)

func (a *Audit) wantCSV() bool {
	return a.Format == "" || a.Format == FormatCSV || a.Format == FormatBoth
}

func (a *Audit) wantXLSX() bool {
	return a.Format == FormatXLSX || a.Format == FormatBoth
}

// ExportRun writes the run's fee lines and unresolved promotion samples.
func (a *Audit) ExportRun(run *finance.Run, lines []finance.FeeLine) error {
	lineRows := make([][]string, 0, len(lines))
	for _, l := range lines {
		lineRows = append(lineRows, []string{
			l.DateLocal, l.Category, l.Type, l.Currency, l.Signed, l.Abs,
			l.OrderID, l.SKU, l.ASIN, l.GroupID, l.SourceList, l.PostedAtUTC,
		})
	}

	unknownRows := make([][]string, 0, len(run.Unknown))
	for _, u := range run.Unknown {
		unknownRows = append(unknownRows, []string{
			u.OrderID, u.SourceList, u.RawType, u.ChargeType,
			u.Amount.StringFixed(2), u.Currency, u.RawSnippet,
		})
	}

	stem := fmt.Sprintf("%s_%s_%s", strings.ToLower(run.Marketplace), run.Period.String(), a.RunID)

	if a.wantCSV() {
		if err := WriteCSV(filepath.Join(a.Dir, "fee_lines_"+stem+".csv"), feeLineHeader, lineRows); err != nil {
			return err
		}
		if len(unknownRows) > 0 {
			if err := WriteCSV(filepath.Join(a.Dir, "promo_unknown_"+stem+".csv"), unknownPromoHeader, unknownRows); err != nil {
				return err
			}
		}
	}

	if a.wantXLSX() {
		sheets := map[string]Sheet{
			"FeeLines": {Header: feeLineHeader, Rows: lineRows},
		}
		if len(unknownRows) > 0 {
			sheets["UnknownPromotions"] = Sheet{Header: unknownPromoHeader, Rows: unknownRows}
		}
		if err := WriteXLSX(filepath.Join(a.Dir, "fee_lines_"+stem+".xlsx"), sheets); err != nil {
			return err
		}
	}
	return nil
}
