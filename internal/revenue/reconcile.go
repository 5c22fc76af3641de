package revenue

import (
	"github.com/iwvelando/revenue-recognition/pkg/constants"
	"github.com/iwvelando/revenue-recognition/pkg/mathutil"
	"github.com/shopspring/decimal"
)

// Variance returns the after-tax amount minus everything allocated to the
// record's months, rounded to cents. ok is false for skipped records and
// whenever a value involved is NaN or infinite.
func Variance(rec Record) (variance decimal.Decimal, ok bool) {
	if rec.Monthly == nil || !mathutil.IsFinite(rec.NetAmount) {
		return decimal.Zero, false
	}
	allocated := decimal.Zero
	for _, key := range rec.Monthly.Keys() {
		v := rec.Monthly[key]
		if !mathutil.IsFinite(v) {
			return decimal.Zero, false
		}
		allocated = allocated.Add(decimal.NewFromFloat(v))
	}
	return decimal.NewFromFloat(rec.NetAmount).Sub(allocated).Round(constants.DecimalPlaces), true
}

// Reconcile returns the positions of the allocated records whose variance
// exceeds tolerance. Records without a computable variance are left to the
// data-quality checks.
func Reconcile(alloc Allocation, tolerance float64) []int {
	limit := decimal.NewFromFloat(tolerance)
	var unbalanced []int
	for i, rec := range alloc.Records {
		if rec.Skipped() {
			continue
		}
		variance, ok := Variance(rec)
		if ok && variance.Abs().GreaterThan(limit) {
			unbalanced = append(unbalanced, i)
		}
	}
	return unbalanced
}
