package metrics

import "time"

// Snapshot is an immutable set of statistics derived from Recorder state.
type Snapshot struct {
	Timestamp         int64   `json:"timestamp"`
	RequestsPerSecond float64 `json:"requests_per_second"`
	TotalRequests     int64   `json:"total_requests"`
	ActiveConnections int     `json:"active_connections"`
	ErrorCount        int64   `json:"error_count"`
	AverageLatencyMs  float64 `json:"average_latency_ms"`
	SuccessRatePct    float64 `json:"success_rate"`
	ErrorRatePct      float64 `json:"error_rate"`
	BytesSent         int64   `json:"bytes_sent"`
	BytesReceived     int64   `json:"bytes_received"`

	P50LatencyMs float64 `json:"p50_latency_ms"`
	P90LatencyMs float64 `json:"p90_latency_ms"`
	P99LatencyMs float64 `json:"p99_latency_ms"`

	ResponseCodes []CodeBucket  `json:"response_codes,omitempty"`
	Errors        []ErrorBucket `json:"errors,omitempty"`
}

// Build derives a Snapshot from st. It never modifies st.
func Build(st State, requestsPerSecond float64, activeConnections int, now time.Time) Snapshot {
	if requestsPerSecond < 0 {
		requestsPerSecond = 0
	}
	if activeConnections < 0 {
		activeConnections = 0
	}

	snap := Snapshot{
		Timestamp:         now.Unix(),
		RequestsPerSecond: requestsPerSecond,
		TotalRequests:     st.Total,
		ActiveConnections: activeConnections,
		ErrorCount:        st.Errors,
		AverageLatencyMs:  mean(st.Window),
		SuccessRatePct:    SuccessRate(st.Total, st.Errors),
		BytesSent:         st.BytesSent,
		BytesReceived:     st.BytesReceived,
		P50LatencyMs:      st.P50LatencyMs,
		P90LatencyMs:      st.P90LatencyMs,
		P99LatencyMs:      st.P99LatencyMs,
		ResponseCodes:     FlattenCodes(st.Codes),
		Errors:            FlattenErrors(st.ErrorTypes),
	}
	snap.ErrorRatePct = 100 - snap.SuccessRatePct
	return snap
}

// SuccessRate returns the percentage of successful observations, 100 when
// nothing has been observed yet.
func SuccessRate(total, errors int64) float64 {
	if total <= 0 {
		return 100
	}
	return float64(total-errors) / float64(total) * 100
}

func mean(samples []float64) float64 {
	if len(samples) == 0 {
		return 0
	}
	var sum float64
	for _, v := range samples {
		sum += v
	}
	return sum / float64(len(samples))
}
