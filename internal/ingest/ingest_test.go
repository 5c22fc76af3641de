package ingest

import (
	"errors"
	"path/filepath"
	"strings"
	"testing"
)

func TestLoad(t *testing.T) {
	batches, err := Load(filepath.Join("testdata", "batches.yaml"))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if len(batches) != 3 {
		t.Fatalf("Load() returned %d batches, expected 3", len(batches))
	}
	keys := []string{"会员_微信", "会员_支付宝", "空"}
	for i, key := range keys {
		if batches[i].Key != key {
			t.Errorf("batch %d key = %q, expected %q", i, batches[i].Key, key)
		}
	}

	first := batches[0].Records
	if len(first) != 2 {
		t.Fatalf("batch 0 has %d records, expected 2", len(first))
	}
	if first[1].Index != 1 {
		t.Errorf("record index = %d, expected 1", first[1].Index)
	}
	expectedColumns := "订单号,实收金额,有效起始时间,有效到期时间,备注"
	if got := strings.Join(first[1].Columns, ","); got != expectedColumns {
		t.Errorf("Columns = %s, expected %s", got, expectedColumns)
	}
	if v, _ := first[0].Get("实收金额"); v != 1060 {
		t.Errorf("amount = %#v, expected 1060", v)
	}
	if v, _ := first[1].Get("实收金额"); v != "530.00" {
		t.Errorf("amount = %#v, expected the quoted string", v)
	}
	if v, _ := first[0].Get("有效起始时间"); v != "2024-01-01" {
		t.Errorf("valid-from = %#v, expected 2024-01-01", v)
	}

	// Block style keeps the written order, not a sorted one.
	expectedColumns = "订单号,有效到期时间,有效起始时间,实收金额"
	if got := strings.Join(batches[1].Records[0].Columns, ","); got != expectedColumns {
		t.Errorf("Columns = %s, expected %s", got, expectedColumns)
	}

	if len(batches[2].Records) != 0 {
		t.Errorf("empty batch has %d records", len(batches[2].Records))
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join("testdata", "missing.yaml")); err == nil {
		t.Errorf("Load() expected error but got none")
	}
}

func TestDecodeJSON(t *testing.T) {
	doc := `{"batches": [{"key": "k", "records": [{"b": 1, "a": "2024-01-01"}]}]}`

	batches, err := Decode(strings.NewReader(doc))
	if err != nil {
		t.Fatalf("Decode() error = %v", err)
	}
	if len(batches) != 1 || len(batches[0].Records) != 1 {
		t.Fatalf("Decode() = %+v, expected one batch with one record", batches)
	}
	if got := strings.Join(batches[0].Records[0].Columns, ","); got != "b,a" {
		t.Errorf("Columns = %s, expected b,a", got)
	}
}

func TestDecodeAliases(t *testing.T) {
	doc := `
shared: &shared {amount: 10, from: 2024-01-01, to: 2024-01-02}
batches:
  - key: k
    records:
      - *shared
`
	batches, err := Decode(strings.NewReader(doc))
	if err != nil {
		t.Fatalf("Decode() error = %v", err)
	}
	if got := strings.Join(batches[0].Records[0].Columns, ","); got != "amount,from,to" {
		t.Errorf("Columns = %s, expected amount,from,to", got)
	}
}

func TestDecodeMissingRecords(t *testing.T) {
	batches, err := Decode(strings.NewReader("batches:\n  - key: k\n"))
	if err != nil {
		t.Fatalf("Decode() error = %v", err)
	}
	if len(batches) != 1 || len(batches[0].Records) != 0 {
		t.Errorf("Decode() = %+v, expected one empty batch", batches)
	}
}

func TestDecodeErrors(t *testing.T) {
	tests := []struct {
		name    string
		doc     string
		wantErr string
	}{
		{"Empty document", "", "no batches"},
		{"No batches list", "records: []\n", "no batches"},
		{"Batches not a list", "batches: 3\n", "no batches"},
		{"Root is a list", "- 1\n- 2\n", "expected a mapping"},
		{"Malformed YAML", "batches: [\n", "failed to parse"},
		{"Missing key", "batches:\n  - records: []\n", "missing key"},
		{"Batch not a mapping", "batches:\n  - k\n", "expected a mapping"},
		{"Duplicate key", "batches:\n  - key: k\n  - key: k\n", "already used by batch 0"},
		{"Records not a list", "batches:\n  - key: k\n    records: {a: 1}\n", "records must be a list"},
		{"Record not a mapping", "batches:\n  - key: k\n    records: [1]\n", "record 0"},
		{"Duplicate field", "batches:\n  - key: k\n    records:\n      - {a: 1, a: 2}\n", "duplicate field"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Decode(strings.NewReader(tt.doc))
			if err == nil {
				t.Fatalf("Decode() expected error but got none")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Decode() error = %v, expected it to contain %q", err, tt.wantErr)
			}
		})
	}
}

func TestDecodeNoBatchesSentinel(t *testing.T) {
	_, err := Decode(strings.NewReader("foo: bar\n"))
	if !errors.Is(err, ErrNoBatches) {
		t.Errorf("Decode() error = %v, expected %v", err, ErrNoBatches)
	}
}
