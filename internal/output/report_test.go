package output

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/tidwall/gjson"

	"github.com/torosent/pulsewire/internal/metrics"
	"github.com/torosent/pulsewire/internal/report"
	"github.com/torosent/pulsewire/internal/threshold"
)

func sampleSummary() Summary {
	snap := metrics.Snapshot{
		TotalRequests:    100,
		ErrorCount:       5,
		SuccessRatePct:   95,
		ErrorRatePct:     5,
		AverageLatencyMs: 12.5,
		P99LatencyMs:     80,
		ResponseCodes: []metrics.CodeBucket{
			{Code: "200", Count: 95, Percentage: 95},
			{Code: "500", Count: 5, Percentage: 5},
		},
		Errors: []metrics.ErrorBucket{{Type: "server_error_500", Count: 5}},
	}
	stats := report.DeliveryStats{Attempts: 10, Delivered: 9, Failed: 1, LastError: "collector rejected snapshot"}
	return NewSummary(snap, stats, "checkout", "01HZY", 2*time.Second)
}

func TestPrintReportBasic(t *testing.T) {
	var buf bytes.Buffer
	PrintReport(&buf, sampleSummary())

	out := buf.String()
	for _, want := range []string{
		"Total Requests:    100",
		"Errors:            5",
		"Success Rate:      95.00%",
		"Run ID:            01HZY",
		"Duration:          2s",
		"200: 95 (95.0%)",
		"server_error_500: 5",
		"Delivered:       9",
		"Last Error:      collector rejected snapshot",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("report missing %q:\n%s", want, out)
		}
	}
}

func TestPrintReportOmitsEmptySections(t *testing.T) {
	var buf bytes.Buffer
	PrintReport(&buf, NewSummary(metrics.Snapshot{SuccessRatePct: 100}, report.DeliveryStats{}, "idle", "", time.Second))

	out := buf.String()
	for _, absent := range []string{"Response Codes:", "\nErrors:\n", "Run ID:", "Last Error:", "Thresholds:"} {
		if strings.Contains(out, absent) {
			t.Errorf("report should omit %q:\n%s", absent, out)
		}
	}
}

func TestPrintJSONReport(t *testing.T) {
	var buf bytes.Buffer
	if err := PrintJSONReport(&buf, sampleSummary()); err != nil {
		t.Fatalf("PrintJSONReport failed: %v", err)
	}

	doc := buf.String()
	if got := gjson.Get(doc, "duration_ms").Float(); got != 2000 {
		t.Errorf("duration_ms = %v, want 2000", got)
	}
	if got := gjson.Get(doc, "snapshot.total_requests").Int(); got != 100 {
		t.Errorf("snapshot.total_requests = %d, want 100", got)
	}
	if got := gjson.Get(doc, "snapshot.response_codes.#").Int(); got != 2 {
		t.Errorf("response_codes length = %d, want 2", got)
	}
	if got := gjson.Get(doc, "delivery.failed").Int(); got != 1 {
		t.Errorf("delivery.failed = %d, want 1", got)
	}
	if gjson.Get(doc, "delivery.last_status_code").Exists() {
		t.Error("last_status_code should be omitted when zero")
	}
}

func TestReportIncludesThresholds(t *testing.T) {
	s := sampleSummary()
	th, err := threshold.ParseMultiple([]string{"errors:rate < 0.1", "delivery:failed == 0"})
	if err != nil {
		t.Fatal(err)
	}
	s.Thresholds = threshold.NewEvaluator(th).Evaluate(threshold.Input{
		Snapshot: s.Snapshot,
		Delivery: report.DeliveryStats{Attempts: 10, Delivered: 9, Failed: 1},
	})

	var buf bytes.Buffer
	PrintReport(&buf, s)
	out := buf.String()
	for _, want := range []string{"Thresholds:", "✓ errors:rate < 0.1: 0.05 < 0.10", "✗ delivery:failed == 0: 1.00 == 0.00"} {
		if !strings.Contains(out, want) {
			t.Errorf("report missing %q:\n%s", want, out)
		}
	}

	buf.Reset()
	if err := PrintJSONReport(&buf, s); err != nil {
		t.Fatal(err)
	}
	doc := buf.String()
	if got := gjson.Get(doc, "thresholds.#").Int(); got != 2 {
		t.Fatalf("thresholds length = %d, want 2", got)
	}
	if gjson.Get(doc, "thresholds.1.pass").Bool() {
		t.Error("thresholds.1.pass = true, want false")
	}
	if got := gjson.Get(doc, "thresholds.0.threshold.expression").String(); got != "errors:rate < 0.1" {
		t.Errorf("expression = %q", got)
	}
}
