package metrics

import (
	"sync"
	"time"

	"github.com/HdrHistogram/hdrhistogram-go"
)

// DefaultWindowSize is the number of latency samples kept for averaging.
const DefaultWindowSize = 100

// Recorder accumulates observations in a thread-safe manner.
type Recorder struct {
	mu            sync.Mutex
	total         int64
	errors        int64
	bytesSent     int64
	bytesReceived int64
	window        *latencyWindow
	hist          *hdrhistogram.Histogram
	codes         map[string]int64
	errorTypes    map[string]int64
	now           func() time.Time
}

// State is a consistent copy of the Recorder's counters.
type State struct {
	Total         int64
	Errors        int64
	BytesSent     int64
	BytesReceived int64
	// Window holds the rolling latency samples (ms) in arrival order.
	Window     []float64
	Codes      map[string]int64
	ErrorTypes map[string]int64

	// Lifetime latency percentiles in milliseconds.
	P50LatencyMs float64
	P90LatencyMs float64
	P99LatencyMs float64
}

// NewRecorder creates a Recorder whose rolling window keeps windowSize
// samples. A non-positive size selects DefaultWindowSize.
func NewRecorder(windowSize int) *Recorder {
	// Track latencies from 1µs up to 60s with 3 significant figures.
	h := hdrhistogram.New(1, 60_000_000, 3)
	return &Recorder{
		window:     newLatencyWindow(windowSize),
		hist:       h,
		codes:      make(map[string]int64),
		errorTypes: make(map[string]int64),
		now:        time.Now,
	}
}

// WindowSize reports the capacity of the rolling latency window.
func (r *Recorder) WindowSize() int {
	return r.window.capacity()
}

// Record applies one observation. Invalid observations are rejected without
// touching any counter.
func (r *Recorder) Record(obs Observation) error {
	if err := obs.validate(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.total++
	if !obs.Success {
		r.errors++
		r.errorTypes[obs.errorLabel()]++
	}
	r.bytesSent += obs.BytesSent
	r.bytesReceived += obs.BytesReceived

	if obs.Code != "" {
		r.codes[obs.Code]++
	}

	if obs.HasLatency {
		r.window.push(obs.LatencyMs)

		us := int64(obs.LatencyMs * 1000)
		if us < r.hist.LowestTrackableValue() {
			us = r.hist.LowestTrackableValue()
		}
		if us > r.hist.HighestTrackableValue() {
			us = r.hist.HighestTrackableValue()
		}
		// us is clamped to the trackable range, the only case RecordValue rejects.
		_ = r.hist.RecordValue(us)
	}
	return nil
}

// State returns a copy of the current counters taken under the lock.
func (r *Recorder) State() State {
	r.mu.Lock()
	defer r.mu.Unlock()

	st := State{
		Total:         r.total,
		Errors:        r.errors,
		BytesSent:     r.bytesSent,
		BytesReceived: r.bytesReceived,
		Window:        r.window.values(),
		Codes:         make(map[string]int64, len(r.codes)),
		ErrorTypes:    make(map[string]int64, len(r.errorTypes)),
	}
	for k, v := range r.codes {
		st.Codes[k] = v
	}
	for k, v := range r.errorTypes {
		st.ErrorTypes[k] = v
	}
	if r.hist.TotalCount() > 0 {
		st.P50LatencyMs = float64(r.hist.ValueAtQuantile(50)) / 1000
		st.P90LatencyMs = float64(r.hist.ValueAtQuantile(90)) / 1000
		st.P99LatencyMs = float64(r.hist.ValueAtQuantile(99)) / 1000
	}
	return st
}

// Snapshot derives statistics from a consistent copy of the state. The lock
// is released before derivation.
func (r *Recorder) Snapshot(requestsPerSecond float64, activeConnections int) Snapshot {
	return Build(r.State(), requestsPerSecond, activeConnections, r.now())
}
