package testutil

import (
	"strings"
	"testing"

	"github.com/iwvelando/revenue-recognition/internal/recognition"
)

func TestFindBatch(t *testing.T) {
	results := []recognition.Result{{Key: "a"}, {Key: "b"}}

	if got := FindBatch(results, "b"); got == nil || got.Key != "b" {
		t.Errorf("FindBatch(b) = %v, expected the b result", got)
	}
	if got := FindBatch(results, "c"); got != nil {
		t.Errorf("FindBatch(c) = %v, expected nil", got)
	}

	FindBatch(results, "a").Summary.Records = 3
	if results[0].Summary.Records != 3 {
		t.Errorf("FindBatch() should return a pointer into the slice")
	}
}

func TestRecord(t *testing.T) {
	rec := Record(2, "z", 1, "a", "x")

	if rec.Index != 2 {
		t.Errorf("Index = %d, expected 2", rec.Index)
	}
	if got := strings.Join(rec.Columns, ","); got != "z,a" {
		t.Errorf("Columns = %s, expected z,a", got)
	}
	if v, ok := rec.Get("a"); !ok || v != "x" {
		t.Errorf("Get(a) = %v, %v", v, ok)
	}
}
