// Package datetime provides date and time utility functions.
//
// Calendar arithmetic is done on civil dates anchored in UTC: a validity date
// is first read in the configured zone, then rebuilt at UTC midnight, so every
// day is exactly 24 hours long and whole-day differences never drift across a
// DST change.
package datetime

import (
	"fmt"
	"time"

	"github.com/iwvelando/revenue-recognition/pkg/constants"
	"github.com/spf13/cast"
)

const (
	// DateTimeLayout is the month key format.
	DateTimeLayout = constants.DateTimeLayout

	// DayLayout is the calendar date format.
	DayLayout = constants.DayLayout

	secondsPerDay = 24 * 60 * 60
)

// MustParseTime parses a date string using the given layout and panics on error.
// This is intended for use in tests where the date string is known to be valid.
func MustParseTime(layout, dateStr string) time.Time {
	t, err := time.Parse(layout, dateStr)
	if err != nil {
		panic(err)
	}
	return t
}

// ParseDay coerces value (a time.Time, a date or date-time string, or Unix
// seconds) into the civil date it falls on in loc. The result is UTC midnight
// of that date; the time of day is discarded.
func ParseDay(value any, loc *time.Location) (time.Time, error) {
	if loc == nil {
		loc = time.UTC
	}
	t, err := cast.ToTimeInDefaultLocationE(value, loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("unable to read %v as a date: %w", value, err)
	}
	t = t.In(loc)
	return Civil(t.Year(), t.Month(), t.Day()), nil
}

// Civil returns UTC midnight of the given calendar date.
func Civil(year int, month time.Month, dayOfMonth int) time.Time {
	return time.Date(year, month, dayOfMonth, 0, 0, 0, 0, time.UTC)
}

// StartOfDay returns the first instant of t's calendar day.
func StartOfDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}

// EndOfDay returns the last instant of t's calendar day.
func EndOfDay(t time.Time) time.Time {
	return StartOfDay(t).AddDate(0, 0, 1).Add(-time.Nanosecond)
}

// DaysBetween returns the number of whole days from a to b, truncated toward
// zero. It is negative when b is before a. Seconds are used rather than
// time.Duration, which saturates for spans of about 292 years.
func DaysBetween(a, b time.Time) int {
	return int((b.Unix() - a.Unix()) / secondsPerDay)
}

// MonthBounds returns the first and last instant of the given month.
func MonthBounds(year int, month time.Month) (time.Time, time.Time) {
	start := Civil(year, month, 1)
	end := EndOfDay(start.AddDate(0, 1, -1))
	return start, end
}

// SameDay reports whether a and b fall on the same calendar day.
func SameDay(a, b time.Time) bool {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}
