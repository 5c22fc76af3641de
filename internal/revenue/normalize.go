package revenue

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/iwvelando/revenue-recognition/pkg/datetime"
	"github.com/iwvelando/revenue-recognition/pkg/mathutil"
	"github.com/spf13/cast"
)

// Normalizer derives the day span, tax, after-tax amount and daily
// recognition rate of raw records.
type Normalizer struct {
	TaxRate  float64
	Fields   FieldNames
	Location *time.Location
}

// NewNormalizer creates a Normalizer. A nil location reads dates in UTC.
func NewNormalizer(taxRate float64, fields FieldNames, loc *time.Location) *Normalizer {
	if loc == nil {
		loc = time.UTC
	}
	return &Normalizer{TaxRate: taxRate, Fields: fields, Location: loc}
}

// NormalizeAll normalizes every record of a batch in order.
func (n *Normalizer) NormalizeAll(raws []RawRecord) []Record {
	records := make([]Record, 0, len(raws))
	for _, raw := range raws {
		records = append(records, n.Normalize(raw))
	}
	return records
}

// Normalize returns the normalized form of raw. Problems are attached to the
// record as issues instead of being returned, so one bad row never stops a
// batch.
func (n *Normalizer) Normalize(raw RawRecord) Record {
	rec := Record{Raw: raw}

	amount, issue := n.amount(raw)
	if issue != nil {
		rec.Issues = append(rec.Issues, issue)
	}
	rec.ReceiptAmount = amount
	rec.TaxAmount = amount / (1 + n.TaxRate) * n.TaxRate
	rec.NetAmount = amount - rec.TaxAmount

	from, fromIssue := n.day(raw, n.Fields.ValidFrom)
	to, toIssue := n.day(raw, n.Fields.ValidTo)
	if fromIssue != nil || toIssue != nil {
		for _, issue := range []error{fromIssue, toIssue} {
			if issue != nil {
				rec.Issues = append(rec.Issues, issue)
			}
		}
		return rec
	}

	rec.ValidFrom = datetime.StartOfDay(from)
	rec.ValidTo = datetime.EndOfDay(to)
	rec.TotalDays = datetime.DaysBetween(rec.ValidFrom, rec.ValidTo) + 1
	rec.DailyRate = rec.NetAmount / float64(rec.TotalDays)

	if from.After(to) {
		rec.Issues = append(rec.Issues, &ValidationError{
			Index:  raw.Index,
			Field:  n.Fields.ValidFrom,
			Reason: fmt.Sprintf("%s is after %s", from.Format(datetime.DayLayout), to.Format(datetime.DayLayout)),
			Err:    ErrInvertedRange,
		})
	}

	return rec
}

func (n *Normalizer) amount(raw RawRecord) (float64, error) {
	value, ok := raw.Get(n.Fields.Amount)
	if !ok || isBlank(value) {
		return math.NaN(), &DataQualityError{Index: raw.Index, Field: n.Fields.Amount, Err: ErrMissingField}
	}
	if s, isString := value.(string); isString {
		value = strings.TrimSpace(s)
	}

	amount, err := cast.ToFloat64E(value)
	if err != nil {
		return math.NaN(), &DataQualityError{
			Index: raw.Index,
			Field: n.Fields.Amount,
			Value: value,
			Err:   fmt.Errorf("%w: %v", ErrNotNumeric, err),
		}
	}
	if !mathutil.IsFinite(amount) {
		return amount, &DataQualityError{Index: raw.Index, Field: n.Fields.Amount, Value: value, Err: ErrNotNumeric}
	}
	return amount, nil
}

func (n *Normalizer) day(raw RawRecord, field string) (time.Time, error) {
	value, ok := raw.Get(field)
	if !ok || isBlank(value) {
		return time.Time{}, &ValidationError{Index: raw.Index, Field: field, Err: ErrMissingField}
	}
	if s, isString := value.(string); isString {
		value = strings.TrimSpace(s)
	}

	day, err := datetime.ParseDay(value, n.Location)
	if err != nil {
		return time.Time{}, &ValidationError{
			Index: raw.Index,
			Field: field,
			Err:   fmt.Errorf("%w: %v", ErrInvalidDate, err),
		}
	}
	return day, nil
}

func isBlank(value any) bool {
	if value == nil {
		return true
	}
	s, ok := value.(string)
	return ok && strings.TrimSpace(s) == ""
}
