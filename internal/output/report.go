package output

import (
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/torosent/pulsewire/internal/metrics"
	"github.com/torosent/pulsewire/internal/report"
	"github.com/torosent/pulsewire/internal/threshold"
)

// Summary is the end-of-run report printed on exit.
type Summary struct {
	RunID      string           `json:"run_id,omitempty"`
	Target     string           `json:"target_url"`
	Duration   time.Duration    `json:"-"`
	DurationMs float64          `json:"duration_ms"`
	Snapshot   metrics.Snapshot `json:"snapshot"`
	Delivery   DeliverySummary  `json:"delivery"`

	Thresholds []threshold.Result `json:"thresholds,omitempty"`
}

// DeliverySummary mirrors report.DeliveryStats with JSON names.
type DeliverySummary struct {
	Attempts       int64  `json:"attempts"`
	Delivered      int64  `json:"delivered"`
	Failed         int64  `json:"failed"`
	LastStatusCode int    `json:"last_status_code,omitempty"`
	LastError      string `json:"last_error,omitempty"`
}

// NewSummary assembles a Summary from the final snapshot and delivery counters.
func NewSummary(snap metrics.Snapshot, stats report.DeliveryStats, target, runID string, elapsed time.Duration) Summary {
	return Summary{
		RunID:      runID,
		Target:     target,
		Duration:   elapsed,
		DurationMs: float64(elapsed) / float64(time.Millisecond),
		Snapshot:   snap,
		Delivery: DeliverySummary{
			Attempts:       stats.Attempts,
			Delivered:      stats.Delivered,
			Failed:         stats.Failed,
			LastStatusCode: stats.LastStatusCode,
			LastError:      stats.LastError,
		},
	}
}

// PrintReport outputs a human-readable summary report.
func PrintReport(w io.Writer, s Summary) {
	snap := s.Snapshot
	fmt.Fprintln(w, "\n--- Reporting Summary ---")
	fmt.Fprintf(w, "Target:            %s\n", s.Target)
	if s.RunID != "" {
		fmt.Fprintf(w, "Run ID:            %s\n", s.RunID)
	}
	fmt.Fprintf(w, "Duration:          %s\n", s.Duration.Round(time.Millisecond))
	fmt.Fprintf(w, "Total Requests:    %d\n", snap.TotalRequests)
	fmt.Fprintf(w, "Errors:            %d\n", snap.ErrorCount)
	fmt.Fprintf(w, "Success Rate:      %.2f%%\n", snap.SuccessRatePct)
	fmt.Fprintf(w, "Bytes Sent:        %d\n", snap.BytesSent)
	fmt.Fprintf(w, "Bytes Received:    %d\n", snap.BytesReceived)
	fmt.Fprintln(w, "\nLatency:")
	fmt.Fprintf(w, "  Window Mean:     %.2fms\n", snap.AverageLatencyMs)
	fmt.Fprintf(w, "  P50:             %.2fms\n", snap.P50LatencyMs)
	fmt.Fprintf(w, "  P90:             %.2fms\n", snap.P90LatencyMs)
	fmt.Fprintf(w, "  P99:             %.2fms\n", snap.P99LatencyMs)

	if len(snap.ResponseCodes) > 0 {
		fmt.Fprintln(w, "\nResponse Codes:")
		for _, row := range snap.ResponseCodes {
			fmt.Fprintf(w, "  %s: %d (%.1f%%)\n", row.Code, row.Count, row.Percentage)
		}
	}
	if len(snap.Errors) > 0 {
		fmt.Fprintln(w, "\nErrors:")
		for _, row := range snap.Errors {
			fmt.Fprintf(w, "  %s: %d\n", row.Type, row.Count)
		}
	}

	fmt.Fprintln(w, "\nDelivery:")
	fmt.Fprintf(w, "  Attempts:        %d\n", s.Delivery.Attempts)
	fmt.Fprintf(w, "  Delivered:       %d\n", s.Delivery.Delivered)
	fmt.Fprintf(w, "  Failed:          %d\n", s.Delivery.Failed)
	if s.Delivery.LastError != "" {
		fmt.Fprintf(w, "  Last Error:      %s\n", s.Delivery.LastError)
	}

	if len(s.Thresholds) > 0 {
		fmt.Fprintln(w, "\nThresholds:")
		for _, r := range s.Thresholds {
			fmt.Fprintf(w, "  %s\n", r.Message)
		}
	}
}

// PrintJSONReport outputs a JSON-formatted report.
func PrintJSONReport(w io.Writer, s Summary) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(s)
}
