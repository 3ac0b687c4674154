package report

import (
	"time"

	"github.com/torosent/pulsewire/internal/metrics"
)

// Status is the reporting state carried by every payload.
type Status string

const (
	StatusRunning Status = "running"
	StatusStopped Status = "stopped"
)

// Payload is the JSON document sent to the collector.
type Payload struct {
	RequestsPerSecond   float64 `json:"requests_per_second"`
	TotalRequests       int64   `json:"total_requests"`
	ActiveConnections   int     `json:"active_connections"`
	AverageResponseTime float64 `json:"average_response_time"`
	SuccessRate         float64 `json:"success_rate"`
	ErrorRate           float64 `json:"error_rate"`
	ErrorCount          int64   `json:"error_count"`
	TargetURL           string  `json:"target_url"`
	Status              Status  `json:"status"`
	StartTime           *string `json:"start_time"`
	BytesSent           int64   `json:"bytes_sent"`
	BytesReceived       int64   `json:"bytes_received"`
	Timestamp           int64   `json:"timestamp"`

	RunID           string                `json:"run_id,omitempty"`
	P50ResponseTime float64               `json:"p50_response_time"`
	P90ResponseTime float64               `json:"p90_response_time"`
	P99ResponseTime float64               `json:"p99_response_time"`
	Errors          []metrics.ErrorBucket `json:"errors"`
	ResponseCodes   []metrics.CodeBucket  `json:"response_codes"`
}

// FromSnapshot converts snap into a Payload. A zero startedAt encodes as a
// null start_time.
func FromSnapshot(snap metrics.Snapshot, status Status, target string, startedAt time.Time, runID string) Payload {
	p := Payload{
		RequestsPerSecond:   snap.RequestsPerSecond,
		TotalRequests:       snap.TotalRequests,
		ActiveConnections:   snap.ActiveConnections,
		AverageResponseTime: snap.AverageLatencyMs,
		SuccessRate:         snap.SuccessRatePct,
		ErrorRate:           snap.ErrorRatePct,
		ErrorCount:          snap.ErrorCount,
		TargetURL:           target,
		Status:              status,
		BytesSent:           snap.BytesSent,
		BytesReceived:       snap.BytesReceived,
		Timestamp:           snap.Timestamp,
		RunID:               runID,
		P50ResponseTime:     snap.P50LatencyMs,
		P90ResponseTime:     snap.P90LatencyMs,
		P99ResponseTime:     snap.P99LatencyMs,
		Errors:              snap.Errors,
		ResponseCodes:       snap.ResponseCodes,
	}
	if !startedAt.IsZero() {
		ts := startedAt.UTC().Format(time.RFC3339)
		p.StartTime = &ts
	}
	// The collector expects arrays, never null.
	if p.Errors == nil {
		p.Errors = []metrics.ErrorBucket{}
	}
	if p.ResponseCodes == nil {
		p.ResponseCodes = []metrics.CodeBucket{}
	}
	return p
}
