package revenue

import (
	"errors"
	"fmt"
)

// Sentinel errors wrapped by the typed record errors.
var (
	ErrMissingField  = errors.New("missing field")
	ErrNotNumeric    = errors.New("not numeric")
	ErrInvalidDate   = errors.New("invalid date")
	ErrInvertedRange = errors.New("valid-from is after valid-to")
	ErrEmptyBatch    = errors.New("empty batch")
	ErrUnbalanced    = errors.New("allocation does not reconcile")
)

// ValidationError marks a record whose validity range cannot be used. Such
// records are excluded from allocation; their dates are never reordered.
type ValidationError struct {
	Index  int
	Field  string
	Reason string
	Err    error
}

func (e *ValidationError) Error() string {
	msg := fmt.Sprintf("record %d: invalid %s", e.Index, e.Field)
	if e.Reason != "" {
		msg += ": " + e.Reason
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *ValidationError) Unwrap() error {
	return e.Err
}

// DataQualityError marks a record whose amount is missing or non-numeric. The
// record is still allocated and the resulting NaN flows into every derived
// value.
type DataQualityError struct {
	Index int
	Field string
	Value any
	Err   error
}

func (e *DataQualityError) Error() string {
	if e.Value == nil {
		return fmt.Sprintf("record %d: %s: %v", e.Index, e.Field, e.Err)
	}
	return fmt.Sprintf("record %d: %s %q: %v", e.Index, e.Field, fmt.Sprint(e.Value), e.Err)
}

func (e *DataQualityError) Unwrap() error {
	return e.Err
}

// IsValidationError reports whether err is or wraps a *ValidationError.
func IsValidationError(err error) bool {
	var target *ValidationError
	return errors.As(err, &target)
}

// IsDataQualityError reports whether err is or wraps a *DataQualityError.
func IsDataQualityError(err error) bool {
	var target *DataQualityError
	return errors.As(err, &target)
}
