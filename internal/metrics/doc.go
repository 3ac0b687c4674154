// Package metrics accumulates observations from a running process and derives
// point-in-time statistics from them.
//
// # Recorder
//
// The central [Recorder] type owns every counter. Producers feed it one
// [Observation] per logical unit of work:
//
//	rec := metrics.NewRecorder(metrics.DefaultWindowSize)
//
//	err := rec.Record(metrics.Observation{
//		Success:       true,
//		BytesSent:     512,
//		BytesReceived: 2048,
//		Code:          "200",
//	}.WithLatency(42.5))
//
// Negative byte counts and negative, NaN or infinite latencies are rejected
// with an error matching [ErrInvalidObservation]; rejected observations leave
// the Recorder untouched.
//
// # Snapshots
//
// [Recorder.Snapshot] copies the state under the Recorder's lock and derives a
// [Snapshot] from the copy with [Build]. Requests per second and active
// connections are not tracked by the Recorder; the caller supplies them:
//
//	snap := rec.Snapshot(rps, activeConnections)
//	fmt.Printf("%.1f%% success, %.2fms avg\n", snap.SuccessRatePct, snap.AverageLatencyMs)
//
// Average latency is computed over the rolling window (the most recent
// samples only). Percentiles come from a lifetime HDR histogram.
//
// # Thread Safety
//
// Record and Snapshot share a single mutex, so a snapshot never observes a
// half-applied observation. Safe for concurrent producers.
//
// # Limitations
//
// Byte accumulators are int64 and wrap on overflow.
package metrics
