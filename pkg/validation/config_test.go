package validation

import (
	"math"
	"strings"
	"testing"
)

func TestValidateTaxRate(t *testing.T) {
	tests := []struct {
		rate      float64
		expectErr bool
	}{
		{0, false},
		{0.01, false},
		{0.06, false},
		{0.999, false},
		{1, true},
		{-0.01, true},
		{math.NaN(), true},
	}

	for _, tt := range tests {
		err := ValidateTaxRate(tt.rate)
		if (err != nil) != tt.expectErr {
			t.Errorf("ValidateTaxRate(%v) error = %v, expected error %v", tt.rate, err, tt.expectErr)
		}
	}
}

func TestValidateMonthLabel(t *testing.T) {
	tests := []struct {
		name     string
		template string
		warnings int
	}{
		{"Default label", "{year}年{month}月收入", 0},
		{"No year", "{month}月收入", 1},
		{"No placeholders", "收入", 2},
		{"Empty", "", 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			warnings := ValidateMonthLabel(tt.template)
			if len(warnings) != tt.warnings {
				t.Errorf("ValidateMonthLabel(%q) = %v, expected %d warnings", tt.template, warnings, tt.warnings)
			}
		})
	}
}

func TestValidateColumnNames(t *testing.T) {
	warnings := ValidateColumnNames(map[string]string{
		"fields.amount":    "实收金额",
		"fields.netAmount": "实收金额",
		"fields.validFrom": "有效起始时间",
		"fields.variance":  "",
		"fields.dailyRate": "",
	})

	if len(warnings) != 1 {
		t.Fatalf("ValidateColumnNames() = %v, expected 1 warning", warnings)
	}
	if !strings.Contains(warnings[0], "fields.amount, fields.netAmount") {
		t.Errorf("ValidateColumnNames() = %q, expected both keys to be named", warnings[0])
	}
}

func TestValidateWorkers(t *testing.T) {
	if w := ValidateWorkers(4); w != "" {
		t.Errorf("ValidateWorkers(4) = %q, expected no warning", w)
	}
	if w := ValidateWorkers(0); w == "" {
		t.Errorf("ValidateWorkers(0) expected a warning")
	}
}
