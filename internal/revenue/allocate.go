package revenue

import (
	"time"

	"github.com/iwvelando/revenue-recognition/pkg/constants"
	"github.com/iwvelando/revenue-recognition/pkg/datetime"
)

// Allocation is the result of allocating one batch.
type Allocation struct {
	// Records are copies of the input records with Monthly populated.
	// Skipped records keep a nil Monthly.
	Records []Record
	// Months lists every month of every year touched by the batch, in
	// chronological order.
	Months []MonthKey
	// Totals sums the allocated records per month.
	Totals MonthlyRevenue
}

// Allocate spreads each record's daily rate over the calendar months of the
// batch. Every allocatable record receives an entry for every month of every
// year between the earliest and the latest date of the batch, including
// months it does not overlap, which stay 0.
//
// Allocate does not modify records; calling it twice on the same input gives
// the same result.
func Allocate(records []Record) Allocation {
	out := Allocation{
		Records: make([]Record, len(records)),
		Totals:  make(MonthlyRevenue),
	}

	var allocatable []int
	for i, rec := range records {
		out.Records[i] = rec
		out.Records[i].Monthly = nil
		out.Records[i].Issues = append([]error(nil), rec.Issues...)
		if !rec.Skipped() {
			allocatable = append(allocatable, i)
			out.Records[i].Monthly = make(MonthlyRevenue)
		}
	}
	if len(allocatable) == 0 {
		return out
	}

	minDate, maxDate := span(records, allocatable)

	for year := minDate.Year(); year <= maxDate.Year(); year++ {
		for month := time.January; month <= constants.MonthsPerYear; month++ {
			key := MonthKey{Year: year, Month: month}
			monthStart, monthEnd := datetime.MonthBounds(year, month)
			out.Months = append(out.Months, key)
			out.Totals[key] = 0

			for _, i := range allocatable {
				rec := &out.Records[i]
				if _, ok := rec.Monthly[key]; !ok {
					rec.Monthly[key] = 0
				}
				days, overlaps := OverlapDays(rec.ValidFrom, rec.ValidTo, monthStart, monthEnd)
				if !overlaps {
					continue
				}
				rec.Monthly[key] += rec.DailyRate * float64(days)
			}
		}
	}

	for _, key := range out.Months {
		for _, i := range allocatable {
			out.Totals[key] += out.Records[i].Monthly[key]
		}
	}

	return out
}

// OverlapDays returns how many days the validity range [from, to] shares with
// the month [monthStart, monthEnd] and whether the two overlap at all. from is
// expected at the start of a day, to and monthEnd at the end of one.
//
// The branch order matters at month boundaries:
//   - from strictly inside the month: count from from to the earlier of to
//     and monthEnd;
//   - otherwise to strictly inside the month: count from monthStart to to;
//   - otherwise the whole month;
//   - finally a range starting on the month's last day counts exactly 1.
func OverlapDays(from, to, monthStart, monthEnd time.Time) (int, bool) {
	if !from.Before(monthEnd) || !to.After(monthStart) {
		return 0, false
	}

	days := datetime.DaysBetween(monthStart, monthEnd) + 1
	if from.After(monthStart) && from.Before(monthEnd) {
		if to.Before(monthEnd) {
			days = datetime.DaysBetween(from, to) + 1
		} else {
			days = datetime.DaysBetween(from, monthEnd) + 1
		}
	} else if to.After(monthStart) && to.Before(monthEnd) {
		days = datetime.DaysBetween(monthStart, to) + 1
	}

	if datetime.SameDay(from, monthEnd) {
		days = 1
	}

	return days, true
}

// span returns the earliest and latest boundary instants over the union of
// every allocatable record's ValidFrom and ValidTo.
func span(records []Record, allocatable []int) (time.Time, time.Time) {
	first := records[allocatable[0]]
	minDate, maxDate := first.ValidFrom, first.ValidFrom
	for _, i := range allocatable {
		for _, t := range []time.Time{records[i].ValidFrom, records[i].ValidTo} {
			if t.Before(minDate) {
				minDate = t
			}
			if t.After(maxDate) {
				maxDate = t
			}
		}
	}
	return minDate, maxDate
}
