// Package validation provides configuration validation utilities.
package validation

import (
	"fmt"
	"math"
	"sort"
	"strings"
)

// ValidateTaxRate checks that rate is a usable inclusive tax rate, 0 <= rate < 1.
func ValidateTaxRate(rate float64) error {
	if math.IsNaN(rate) || rate < 0 || rate >= 1 {
		return fmt.Errorf("tax rate must be in [0, 1), got %v", rate)
	}
	return nil
}

// ValidateMonthLabel warns about month column templates that would render the
// same label for different months.
func ValidateMonthLabel(template string) []string {
	var warnings []string
	if strings.TrimSpace(template) == "" {
		return []string{"month label template is empty; every month column would share one name"}
	}
	if !strings.Contains(template, "{year}") {
		warnings = append(warnings, fmt.Sprintf("month label %q has no {year} placeholder; multi-year batches will produce duplicate columns", template))
	}
	if !strings.Contains(template, "{month}") {
		warnings = append(warnings, fmt.Sprintf("month label %q has no {month} placeholder; months will produce duplicate columns", template))
	}
	return warnings
}

// ValidateColumnNames warns when two configured columns share a name. Keys are
// the configuration keys, values the column names.
func ValidateColumnNames(columns map[string]string) []string {
	byName := make(map[string][]string)
	for key, name := range columns {
		if name == "" {
			continue
		}
		byName[name] = append(byName[name], key)
	}

	var warnings []string
	for name, keys := range byName {
		if len(keys) < 2 {
			continue
		}
		sort.Strings(keys)
		warnings = append(warnings, fmt.Sprintf("column %q is configured for %s", name, strings.Join(keys, ", ")))
	}
	sort.Strings(warnings)
	return warnings
}

// ValidateWorkers warns when the batch concurrency is not positive.
func ValidateWorkers(workers int) string {
	if workers < 1 {
		return fmt.Sprintf("workers is %d; batches will be processed sequentially", workers)
	}
	return ""
}
