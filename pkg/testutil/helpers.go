// Package testutil provides common utility functions for testing.
package testutil

import (
	"github.com/iwvelando/revenue-recognition/internal/recognition"
	"github.com/iwvelando/revenue-recognition/internal/revenue"
)

// FindBatch finds a batch result by key in the results slice.
// Returns a pointer to the result if found, nil otherwise.
func FindBatch(results []recognition.Result, key string) *recognition.Result {
	for i := range results {
		if results[i].Key == key {
			return &results[i]
		}
	}
	return nil
}

// Record builds a raw record from alternating column names and values, keeping
// the column order.
func Record(index int, columnsAndValues ...any) revenue.RawRecord {
	rec := revenue.RawRecord{Index: index, Values: make(map[string]any)}
	for i := 0; i+1 < len(columnsAndValues); i += 2 {
		name, _ := columnsAndValues[i].(string)
		rec.Columns = append(rec.Columns, name)
		rec.Values[name] = columnsAndValues[i+1]
	}
	return rec
}
