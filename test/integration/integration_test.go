package integration

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"math"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/iwvelando/revenue-recognition/internal/config"
	"github.com/iwvelando/revenue-recognition/internal/ingest"
	"github.com/iwvelando/revenue-recognition/internal/recognition"
	"github.com/iwvelando/revenue-recognition/internal/revenue"
	"github.com/iwvelando/revenue-recognition/internal/store"
	"github.com/iwvelando/revenue-recognition/pkg/constants"
	"github.com/iwvelando/revenue-recognition/pkg/output"
	"github.com/iwvelando/revenue-recognition/pkg/testutil"
	"go.uber.org/zap"
)

// runPipeline loads the test configuration and batches and recognizes them
// exactly as main() does.
func runPipeline(t *testing.T) (*config.Configuration, []recognition.Result) {
	t.Helper()

	conf, err := config.LoadConfiguration("../test_config.yaml")
	if err != nil {
		t.Fatalf("LoadConfiguration() error = %v", err)
	}
	if warnings := conf.ValidateConfiguration(); len(warnings) != 0 {
		t.Errorf("ValidateConfiguration() = %v, expected no warnings", warnings)
	}

	batches, err := ingest.Load("../test_batches.yaml")
	if err != nil {
		t.Fatalf("ingest.Load() error = %v", err)
	}

	results, err := recognition.Recognize(context.Background(), zap.NewNop(), *conf, batches)
	if err != nil {
		t.Fatalf("Recognize() error = %v", err)
	}
	return conf, results
}

func month(year int, m time.Month) revenue.MonthKey {
	return revenue.MonthKey{Year: year, Month: m}
}

func TestMainIntegrationBaseline(t *testing.T) {
	_, results := runPipeline(t)

	expectedBatches := []string{"会员_微信", "会员_支付宝", "空"}
	if len(results) != len(expectedBatches) {
		t.Fatalf("Expected %d batches, got %d", len(expectedBatches), len(results))
	}
	for i, expected := range expectedBatches {
		if results[i].Key != expected {
			t.Errorf("Expected batch %s, got %s", expected, results[i].Key)
		}
	}

	baselineChecks := []struct {
		batch    string
		month    revenue.MonthKey
		expected float64
	}{
		{"会员_微信", month(2024, time.January), 1314.81},
		{"会员_微信", month(2024, time.February), 185.19},
		{"会员_微信", month(2024, time.March), 0},
		{"会员_微信", month(2024, time.December), 0},
		{"会员_支付宝", month(2023, time.January), 0},
		{"会员_支付宝", month(2023, time.December), 1000},
		{"会员_支付宝", month(2024, time.January), 1000},
	}
	for _, check := range baselineChecks {
		result := testutil.FindBatch(results, check.batch)
		if result == nil {
			t.Fatalf("batch %s not found", check.batch)
		}
		got, ok := result.Allocation.Totals[check.month]
		if !ok {
			t.Errorf("%s %s missing", check.batch, check.month)
			continue
		}
		if math.Abs(got-check.expected) > 0.01 {
			t.Errorf("%s %s = %.2f, expected %.2f", check.batch, check.month, got, check.expected)
		}
	}

	wechat := testutil.FindBatch(results, "会员_微信")
	if len(wechat.Allocation.Months) != 12 {
		t.Errorf("会员_微信 months = %d, expected 12", len(wechat.Allocation.Months))
	}
	s := wechat.Summary
	if s.Records != 3 || s.Allocated != 2 || s.Skipped != 1 || s.Flagged != 0 || s.Unbalanced != 0 {
		t.Errorf("会员_微信 summary = %+v", s)
	}
	if s.Err() == nil || !strings.Contains(s.Err().Error(), "record 2") {
		t.Errorf("会员_微信 Err() = %v, expected the skipped record to be reported", s.Err())
	}

	alipay := testutil.FindBatch(results, "会员_支付宝")
	if len(alipay.Allocation.Months) != 24 {
		t.Errorf("会员_支付宝 months = %d, expected 24", len(alipay.Allocation.Months))
	}
	if total := alipay.Allocation.Totals.Total(); math.Abs(total-2000) > 0.01 {
		t.Errorf("会员_支付宝 total = %.2f, expected 2000", total)
	}

	if empty := testutil.FindBatch(results, "空"); !empty.Summary.Empty {
		t.Errorf("空 summary = %+v, expected an empty batch", empty.Summary)
	}
}

func TestCSVOutputFormat(t *testing.T) {
	conf, results := runPipeline(t)

	var buf bytes.Buffer
	if err := output.Write(&buf, conf.Output.Format, results, output.NewLayout(conf.Fields)); err != nil {
		t.Fatalf("output.Write() error = %v", err)
	}

	rows, err := csv.NewReader(&buf).ReadAll()
	if err != nil {
		t.Fatalf("failed to read CSV: %v", err)
	}
	if len(rows) != 5 {
		t.Fatalf("CSV rows = %d, expected a header and 4 records", len(rows))
	}

	header := rows[0]
	// batch + 4 record columns + 4 derived + 24 months + variance
	if len(header) != 34 {
		t.Errorf("CSV header has %d columns, expected 34: %v", len(header), header)
	}
	expectedStart := []string{"分组", "订单号", "实收金额", "有效起始时间", "有效到期时间", "总服务器天数", "应交税费", "税后金额", "DRR", "2023年1月收入"}
	for i, expected := range expectedStart {
		if header[i] != expected {
			t.Errorf("header[%d] = %q, expected %q", i, header[i], expected)
		}
	}
	if header[len(header)-1] != constants.DefaultVarianceCol {
		t.Errorf("last column = %q, expected %q", header[len(header)-1], constants.DefaultVarianceCol)
	}

	// A1 lies entirely in January 2024.
	a1 := rows[1]
	if a1[0] != "会员_微信" || a1[1] != "A1" || a1[5] != "31" {
		t.Errorf("A1 row = %v", a1)
	}
	if net, err := strconv.ParseFloat(a1[7], 64); err != nil || math.Abs(net-1000) > 1e-9 {
		t.Errorf("A1 %s = %q, expected 1000", constants.DefaultNetAmountCol, a1[7])
	}
	if a1[len(a1)-1] != "0.00" {
		t.Errorf("A1 variance = %q, expected 0.00", a1[len(a1)-1])
	}
	// Months of the other batch's year are blank for A1.
	if a1[9] != "" {
		t.Errorf("A1 2023年1月收入 = %q, expected blank", a1[9])
	}

	// A3 has an unusable start date.
	a3 := rows[3]
	if a3[5] != "" || a3[8] != "" || a3[len(a3)-1] != "" {
		t.Errorf("A3 row = %v, expected blank derived cells", a3)
	}
}

func TestPrettyOutputFormat(t *testing.T) {
	conf, results := runPipeline(t)

	var buf bytes.Buffer
	if err := output.PrettyFormat(&buf, results, output.NewLayout(conf.Fields)); err != nil {
		t.Fatalf("PrettyFormat() error = %v", err)
	}
	out := buf.String()

	expected := []string{
		"--- Results for batch 会员_微信 ---",
		"2024-01 | 2024年1月收入 | ¥1,314.81",
		"Total recognized: ¥1,500.00",
		"records: 3, allocated: 2, flagged: 0, skipped: 1, unbalanced: 0",
		"--- Results for batch 空 ---",
		"no records",
	}
	for _, want := range expected {
		if !strings.Contains(out, want) {
			t.Errorf("PrettyFormat() output missing %q\n%s", want, out)
		}
	}
}

func TestJSONOutputFormat(t *testing.T) {
	conf, results := runPipeline(t)

	var buf bytes.Buffer
	if err := output.JSONFormat(&buf, results, output.NewLayout(conf.Fields)); err != nil {
		t.Fatalf("JSONFormat() error = %v", err)
	}

	var views []struct {
		Key     string `json:"key"`
		Records []struct {
			ValidFrom string `json:"validFrom"`
			Skipped   bool   `json:"skipped"`
		} `json:"records"`
	}
	if err := json.Unmarshal(buf.Bytes(), &views); err != nil {
		t.Fatalf("failed to decode JSON output: %v", err)
	}
	if len(views) != 3 {
		t.Fatalf("JSON batches = %d, expected 3", len(views))
	}
	if got := views[0].Records[1].ValidFrom; got != "2024-01-15" {
		t.Errorf("A2 validFrom = %q, expected the floored date 2024-01-15", got)
	}
	if !views[0].Records[2].Skipped {
		t.Errorf("A3 skipped = false, expected true")
	}
}

func TestStoreRoundTrip(t *testing.T) {
	conf, results := runPipeline(t)

	s, err := store.Open(filepath.Join(t.TempDir(), "runs.db"), zap.NewNop())
	if err != nil {
		t.Fatalf("store.Open() error = %v", err)
	}
	defer func() { _ = s.Close() }()

	ctx := context.Background()
	runID, err := s.SaveRun(ctx, conf.Rate(), results)
	if err != nil {
		t.Fatalf("SaveRun() error = %v", err)
	}

	totals, err := s.MonthlyTotals(ctx, runID)
	if err != nil {
		t.Fatalf("MonthlyTotals() error = %v", err)
	}
	// 12 months for 会员_微信 and 24 for 会员_支付宝
	if len(totals) != 36 {
		t.Fatalf("MonthlyTotals() = %d rows, expected 36", len(totals))
	}

	sum := map[string]float64{}
	for _, total := range totals {
		sum[total.BatchKey] += total.Total
	}
	for batch, expected := range map[string]float64{"会员_微信": 1500, "会员_支付宝": 2000} {
		if math.Abs(sum[batch]-expected) > 0.01 {
			t.Errorf("stored total for %s = %.2f, expected %.2f", batch, sum[batch], expected)
		}
	}
}

func TestConfigurationVariations(t *testing.T) {
	batches, err := ingest.Load("../test_batches.yaml")
	if err != nil {
		t.Fatalf("ingest.Load() error = %v", err)
	}

	tests := []struct {
		name     string
		body     string
		expected float64
	}{
		{"Default rate", "taxRate: 0.06\n", 1500},
		{"No tax", "taxRate: 0\n", 1590},
		{"Higher rate", "taxRate: 0.13\nworkers: 8\n", 1590 / 1.13},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			conf, err := config.LoadConfigurationFromReader(strings.NewReader(tt.body))
			if err != nil {
				t.Fatalf("LoadConfigurationFromReader() error = %v", err)
			}
			results, err := recognition.Recognize(context.Background(), zap.NewNop(), *conf, batches)
			if err != nil {
				t.Fatalf("Recognize() error = %v", err)
			}
			total := testutil.FindBatch(results, "会员_微信").Allocation.Totals.Total()
			if math.Abs(total-tt.expected) > 0.01 {
				t.Errorf("会员_微信 total = %.2f, expected %.2f", total, tt.expected)
			}
		})
	}
}
