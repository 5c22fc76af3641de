// Package output provides utilities for formatting and displaying recognition results.
package output

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/iwvelando/revenue-recognition/internal/config"
	"github.com/iwvelando/revenue-recognition/internal/recognition"
	"github.com/iwvelando/revenue-recognition/internal/revenue"
	"github.com/iwvelando/revenue-recognition/pkg/constants"
	"github.com/iwvelando/revenue-recognition/pkg/format"
	"github.com/iwvelando/revenue-recognition/pkg/mathutil"
	"github.com/shopspring/decimal"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

// Layout names the derived output columns.
type Layout struct {
	BatchColumn string
	TotalDays   string
	TaxAmount   string
	NetAmount   string
	DailyRate   string
	Variance    string
	MonthLabel  string
}

// DefaultLayout returns the default column names.
func DefaultLayout() Layout {
	return Layout{
		BatchColumn: constants.DefaultBatchColumn,
		TotalDays:   constants.DefaultTotalDaysCol,
		TaxAmount:   constants.DefaultTaxAmountCol,
		NetAmount:   constants.DefaultNetAmountCol,
		DailyRate:   constants.DefaultDailyRateCol,
		Variance:    constants.DefaultVarianceCol,
		MonthLabel:  constants.DefaultMonthLabel,
	}
}

// NewLayout builds a Layout from the configured column names. Empty names
// keep their defaults.
func NewLayout(fields config.FieldsConfig) Layout {
	l := DefaultLayout()
	set := func(dst *string, v string) {
		if v != "" {
			*dst = v
		}
	}
	set(&l.BatchColumn, fields.BatchColumn)
	set(&l.TotalDays, fields.TotalDays)
	set(&l.TaxAmount, fields.TaxAmount)
	set(&l.NetAmount, fields.NetAmount)
	set(&l.DailyRate, fields.DailyRate)
	set(&l.Variance, fields.Variance)
	set(&l.MonthLabel, fields.MonthLabel)
	return l
}

// PrettyFormat outputs a human-readable rather than machine-readable table.
func PrettyFormat(w io.Writer, results []recognition.Result, layout Layout) error {
	p := message.NewPrinter(language.English)
	pw := &prettyWriter{w: w}
	for i, result := range results {
		s := result.Summary
		pw.printf("--- Results for batch %s ---\n", result.Key)
		if s.Empty {
			pw.printf("no records\n")
		} else {
			pw.printf("Month   | Label | Recognized\n")
			pw.printf("_____   | _____ | __________\n")
			for _, key := range result.Allocation.Months {
				pw.printf("%s | %s | %s\n", key, key.Label(layout.MonthLabel), prettyAmount(p, result.Allocation.Totals[key]))
			}
			pw.printf("Total recognized: %s\n", prettyAmount(p, result.Allocation.Totals.Total()))
		}
		pw.printf("records: %d, allocated: %d, flagged: %d, skipped: %d, unbalanced: %d\n",
			s.Records, s.Allocated, s.Flagged, s.Skipped, s.Unbalanced)
		for _, issue := range s.Issues {
			pw.printf("  warning: %v\n", issue)
		}
		if i < len(results)-1 {
			pw.printf("\n")
		}
	}
	return pw.err
}

// prettyWriter keeps the first write error and drops every later write.
type prettyWriter struct {
	w   io.Writer
	err error
}

func (pw *prettyWriter) printf(format string, args ...any) {
	if pw.err != nil {
		return
	}
	_, pw.err = fmt.Fprintf(pw.w, format, args...)
}

// prettyAmount renders amount like format.Currency, with the printer's
// grouping: -¥1,234.56.
func prettyAmount(p *message.Printer, amount float64) string {
	if !mathutil.IsFinite(amount) {
		return format.Currency(amount)
	}
	rounded := decimal.NewFromFloat(amount).Round(constants.DecimalPlaces)
	formatted := p.Sprintf("%s%.2f", format.CurrencySymbol, rounded.Abs().InexactFloat64())
	if rounded.IsNegative() {
		return "-" + formatted
	}
	return formatted
}

// CsvFormat outputs one row per record across all batches: the batch key,
// the record's own columns, the derived columns, one column per month and the
// variance. Cells of months outside a record's batch are empty.
func CsvFormat(w io.Writer, results []recognition.Result, layout Layout) error {
	columns := passthroughColumns(results)
	months := allMonths(results)

	header := []string{layout.BatchColumn}
	header = append(header, columns...)
	header = append(header, layout.TotalDays, layout.TaxAmount, layout.NetAmount, layout.DailyRate)
	for _, key := range months {
		header = append(header, key.Label(layout.MonthLabel))
	}
	header = append(header, layout.Variance)

	cw := csv.NewWriter(w)
	if err := cw.Write(header); err != nil {
		return err
	}
	for _, result := range results {
		for _, rec := range result.Allocation.Records {
			row := make([]string, 0, len(header))
			row = append(row, result.Key)
			for _, column := range columns {
				v, _ := rec.Raw.Get(column)
				row = append(row, cell(v))
			}
			row = append(row, derivedCells(rec)...)
			for _, key := range months {
				v, ok := rec.Monthly[key]
				if !ok {
					row = append(row, "")
					continue
				}
				row = append(row, number(v))
			}
			row = append(row, varianceCell(rec))
			if err := cw.Write(row); err != nil {
				return err
			}
		}
	}
	cw.Flush()
	return cw.Error()
}

func derivedCells(rec revenue.Record) []string {
	if rec.ValidFrom.IsZero() {
		return []string{"", number(rec.TaxAmount), number(rec.NetAmount), ""}
	}
	return []string{
		strconv.Itoa(rec.TotalDays),
		number(rec.TaxAmount),
		number(rec.NetAmount),
		number(rec.DailyRate),
	}
}

func varianceCell(rec revenue.Record) string {
	if rec.Monthly == nil {
		return ""
	}
	variance, ok := revenue.Variance(rec)
	if !ok {
		return "NaN"
	}
	return variance.StringFixed(constants.DecimalPlaces)
}

// passthroughColumns returns every record column in first-seen order.
func passthroughColumns(results []recognition.Result) []string {
	seen := make(map[string]bool)
	var columns []string
	for _, result := range results {
		for _, rec := range result.Allocation.Records {
			for _, column := range rec.Raw.Columns {
				if !seen[column] {
					seen[column] = true
					columns = append(columns, column)
				}
			}
		}
	}
	return columns
}

func allMonths(results []recognition.Result) []revenue.MonthKey {
	seen := make(map[revenue.MonthKey]bool)
	var months []revenue.MonthKey
	for _, result := range results {
		for _, key := range result.Allocation.Months {
			if !seen[key] {
				seen[key] = true
				months = append(months, key)
			}
		}
	}
	revenue.SortMonths(months)
	return months
}

func cell(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case float64:
		return number(t)
	case time.Time:
		return t.Format(constants.DayLayout)
	default:
		return fmt.Sprint(t)
	}
}

// number renders v without rounding; NaN and infinities stay visible.
func number(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// Amount is a float64 that encodes NaN and infinities as JSON strings.
type Amount float64

// MarshalJSON implements json.Marshaler.
func (a Amount) MarshalJSON() ([]byte, error) {
	if !mathutil.IsFinite(float64(a)) {
		return json.Marshal(number(float64(a)))
	}
	return []byte(number(float64(a))), nil
}

// BatchView is the JSON form of a batch result.
type BatchView struct {
	Key     string       `json:"key"`
	Summary SummaryView  `json:"summary"`
	Months  []MonthView  `json:"months"`
	Records []RecordView `json:"records"`
}

// SummaryView is the JSON form of recognition.Summary.
type SummaryView struct {
	Records    int      `json:"records"`
	Allocated  int      `json:"allocated"`
	Flagged    int      `json:"flagged"`
	Skipped    int      `json:"skipped"`
	Unbalanced int      `json:"unbalanced"`
	Empty      bool     `json:"empty"`
	Issues     []string `json:"issues,omitempty"`
}

// MonthView is one month of a batch.
type MonthView struct {
	Month string `json:"month"`
	Label string `json:"label"`
	Total Amount `json:"total"`
}

// RecordView is one record with its derived values.
type RecordView struct {
	Index     int               `json:"index"`
	Fields    map[string]any    `json:"fields"`
	Columns   []string          `json:"columns"`
	ValidFrom string            `json:"validFrom,omitempty"`
	ValidTo   string            `json:"validTo,omitempty"`
	TotalDays int               `json:"totalDays"`
	TaxAmount Amount            `json:"taxAmount"`
	NetAmount Amount            `json:"netAmount"`
	DailyRate Amount            `json:"dailyRate"`
	Monthly   map[string]Amount `json:"monthly,omitempty"`
	Variance  string            `json:"variance,omitempty"`
	Skipped   bool              `json:"skipped,omitempty"`
	Issues    []string          `json:"issues,omitempty"`
}

// Views converts results into their JSON form.
func Views(results []recognition.Result, layout Layout) []BatchView {
	views := make([]BatchView, 0, len(results))
	for _, result := range results {
		s := result.Summary
		view := BatchView{
			Key: result.Key,
			Summary: SummaryView{
				Records:    s.Records,
				Allocated:  s.Allocated,
				Flagged:    s.Flagged,
				Skipped:    s.Skipped,
				Unbalanced: s.Unbalanced,
				Empty:      s.Empty,
				Issues:     errorStrings(s.Issues),
			},
			Months:  make([]MonthView, 0, len(result.Allocation.Months)),
			Records: make([]RecordView, 0, len(result.Allocation.Records)),
		}
		for _, key := range result.Allocation.Months {
			view.Months = append(view.Months, MonthView{
				Month: key.String(),
				Label: key.Label(layout.MonthLabel),
				Total: Amount(result.Allocation.Totals[key]),
			})
		}
		for _, rec := range result.Allocation.Records {
			view.Records = append(view.Records, recordView(rec))
		}
		views = append(views, view)
	}
	return views
}

func recordView(rec revenue.Record) RecordView {
	rv := RecordView{
		Index:     rec.Raw.Index,
		Fields:    jsonFields(rec.Raw.Values),
		Columns:   rec.Raw.Columns,
		TotalDays: rec.TotalDays,
		TaxAmount: Amount(rec.TaxAmount),
		NetAmount: Amount(rec.NetAmount),
		DailyRate: Amount(rec.DailyRate),
		Variance:  varianceCell(rec),
		Skipped:   rec.Skipped(),
		Issues:    errorStrings(rec.Issues),
	}
	if !rec.ValidFrom.IsZero() {
		rv.ValidFrom = rec.ValidFrom.Format(constants.DayLayout)
		rv.ValidTo = rec.ValidTo.Format(constants.DayLayout)
	}
	if rec.Monthly != nil {
		rv.Monthly = make(map[string]Amount, len(rec.Monthly))
		for key, v := range rec.Monthly {
			rv.Monthly[key.String()] = Amount(v)
		}
	}
	return rv
}

// jsonFields returns values with every non-finite float replaced by its
// Amount, which encoding/json accepts.
func jsonFields(values map[string]any) map[string]any {
	if values == nil {
		return nil
	}
	out := make(map[string]any, len(values))
	for name, v := range values {
		out[name] = jsonValue(v)
	}
	return out
}

func jsonValue(v any) any {
	switch t := v.(type) {
	case float64:
		if !mathutil.IsFinite(t) {
			return Amount(t)
		}
	case float32:
		if !mathutil.IsFinite(float64(t)) {
			return Amount(t)
		}
	case map[string]any:
		return jsonFields(t)
	case []any:
		out := make([]any, len(t))
		for i, item := range t {
			out[i] = jsonValue(item)
		}
		return out
	}
	return v
}

func errorStrings(errs []error) []string {
	if len(errs) == 0 {
		return nil
	}
	out := make([]string, 0, len(errs))
	for _, err := range errs {
		out = append(out, err.Error())
	}
	return out
}

// JSONFormat outputs the results as an indented JSON array of batches.
func JSONFormat(w io.Writer, results []recognition.Result, layout Layout) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	return enc.Encode(Views(results, layout))
}

// Write renders results in the named output format.
func Write(w io.Writer, outputFormat string, results []recognition.Result, layout Layout) error {
	switch outputFormat {
	case constants.OutputFormatPretty:
		return PrettyFormat(w, results, layout)
	case constants.OutputFormatCSV:
		return CsvFormat(w, results, layout)
	case constants.OutputFormatJSON:
		return JSONFormat(w, results, layout)
	default:
		return fmt.Errorf("unsupported output format %q", outputFormat)
	}
}
