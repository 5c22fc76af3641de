// Package format renders monetary amounts for people.
package format

import (
	"math"
	"strings"

	"github.com/iwvelando/revenue-recognition/pkg/constants"
	"github.com/iwvelando/revenue-recognition/pkg/mathutil"
	"github.com/shopspring/decimal"
)

// CurrencySymbol prefixes amounts rendered by Currency.
const CurrencySymbol = "¥"

// Currency returns a currency string with a yuan sign and thousands separators (e.g., "-¥1,234.56").
func Currency(amount float64) string {
	if !mathutil.IsFinite(amount) {
		return nonFinite(amount)
	}
	formatted := NumericCurrency(math.Abs(amount))
	if decimal.NewFromFloat(amount).Round(constants.DecimalPlaces).IsNegative() {
		return "-" + CurrencySymbol + formatted
	}
	return CurrencySymbol + formatted
}

// NumericCurrency returns a currency string without a currency symbol but with separators (e.g., "-1,234.56").
// NaN and infinities are rendered verbatim so bad data stays visible.
func NumericCurrency(amount float64) string {
	if !mathutil.IsFinite(amount) {
		return nonFinite(amount)
	}
	d := decimal.NewFromFloat(amount).Round(constants.DecimalPlaces)
	sign := ""
	if d.IsNegative() {
		sign = "-"
	}
	return sign + groupThousands(d.Abs().StringFixed(constants.DecimalPlaces))
}

func nonFinite(amount float64) string {
	switch {
	case math.IsInf(amount, 1):
		return "+Inf"
	case math.IsInf(amount, -1):
		return "-Inf"
	default:
		return "NaN"
	}
}

func groupThousands(formatted string) string {
	parts := strings.SplitN(formatted, ".", 2)
	intPart := parts[0]
	decPart := ""
	if len(parts) == 2 {
		decPart = "." + parts[1]
	}

	if len(intPart) > 3 {
		var builder strings.Builder
		for i, digit := range intPart {
			if i > 0 && (len(intPart)-i)%3 == 0 {
				builder.WriteByte(',')
			}
			builder.WriteRune(digit)
		}
		intPart = builder.String()
	}

	return intPart + decPart
}
