// Package revenue implements daily-prorated revenue recognition: each record's
// after-tax amount is spread evenly over the calendar days it covers and the
// per-day amounts are accumulated into calendar-month buckets.
package revenue

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/iwvelando/revenue-recognition/pkg/datetime"
)

// RawRecord is one input row. Values are passed through to the output
// verbatim; Columns keeps the order the fields appeared in.
type RawRecord struct {
	Index   int
	Columns []string
	Values  map[string]any
}

// Get returns the value stored under field and whether it was present.
func (r RawRecord) Get(field string) (any, bool) {
	v, ok := r.Values[field]
	return v, ok
}

// Batch holds the records that share one grouping key. Allocation ranges are
// computed per batch.
type Batch struct {
	Key     string
	Records []RawRecord
}

// FieldNames names the input fields the normalizer reads.
type FieldNames struct {
	Amount    string
	ValidFrom string
	ValidTo   string
}

// Record is a normalized input row.
type Record struct {
	Raw RawRecord

	ReceiptAmount float64
	// ValidFrom is the first instant of the first covered day and ValidTo the
	// last instant of the last covered day.
	ValidFrom time.Time
	ValidTo   time.Time
	TotalDays int
	TaxAmount float64
	NetAmount float64
	DailyRate float64

	// Monthly is nil until the record has been allocated.
	Monthly MonthlyRevenue

	Issues []error
}

// Skipped reports whether the record is excluded from allocation because its
// validity range could not be established.
func (r Record) Skipped() bool {
	for _, issue := range r.Issues {
		if IsValidationError(issue) {
			return true
		}
	}
	return false
}

// Flagged reports whether the record carries a data-quality issue.
func (r Record) Flagged() bool {
	for _, issue := range r.Issues {
		if IsDataQualityError(issue) {
			return true
		}
	}
	return false
}

// MonthKey identifies a calendar month.
type MonthKey struct {
	Year  int
	Month time.Month
}

// MonthOf returns the month t falls in.
func MonthOf(t time.Time) MonthKey {
	return MonthKey{Year: t.Year(), Month: t.Month()}
}

// ParseMonthKey parses a key rendered by String.
func ParseMonthKey(s string) (MonthKey, error) {
	t, err := time.Parse(datetime.DateTimeLayout, s)
	if err != nil {
		return MonthKey{}, fmt.Errorf("invalid month key %q: %w", s, err)
	}
	return MonthOf(t), nil
}

// String renders the key as 2006-01.
func (k MonthKey) String() string {
	return fmt.Sprintf("%04d-%02d", k.Year, int(k.Month))
}

// Before reports whether k is an earlier month than other.
func (k MonthKey) Before(other MonthKey) bool {
	if k.Year != other.Year {
		return k.Year < other.Year
	}
	return k.Month < other.Month
}

// Label renders the key with a template such as "{year}年{month}月收入".
// The month is not zero padded.
func (k MonthKey) Label(template string) string {
	r := strings.NewReplacer(
		"{year}", strconv.Itoa(k.Year),
		"{month}", strconv.Itoa(int(k.Month)),
	)
	return r.Replace(template)
}

// MonthlyRevenue maps a month to the revenue recognized in it.
type MonthlyRevenue map[MonthKey]float64

// Keys returns the months in chronological order.
func (m MonthlyRevenue) Keys() []MonthKey {
	keys := make([]MonthKey, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	SortMonths(keys)
	return keys
}

// Total sums every month.
func (m MonthlyRevenue) Total() float64 {
	total := 0.0
	for _, k := range m.Keys() {
		total += m[k]
	}
	return total
}

// SortMonths sorts keys chronologically in place.
func SortMonths(keys []MonthKey) {
	sort.Slice(keys, func(i, j int) bool { return keys[i].Before(keys[j]) })
}
