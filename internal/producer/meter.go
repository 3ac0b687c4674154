package producer

import (
	"sync"
	"time"
)

const defaultMeterWindow = 5

// Meter measures throughput over a sliding window of complete one-second
// buckets. The current, partial second is not counted.
type Meter struct {
	mu      sync.Mutex
	now     func() time.Time
	start   int64
	window  int64
	counts  []int64
	seconds []int64 // unix second each bucket currently holds
}

// NewMeter returns a meter averaging over the last windowSeconds seconds.
func NewMeter(windowSeconds int) *Meter {
	return newMeterWithClock(windowSeconds, time.Now)
}

func newMeterWithClock(windowSeconds int, now func() time.Time) *Meter {
	if windowSeconds <= 0 {
		windowSeconds = defaultMeterWindow
	}
	// One extra bucket holds the second in progress.
	size := windowSeconds + 1
	return &Meter{
		now:     now,
		start:   now().Unix(),
		window:  int64(windowSeconds),
		counts:  make([]int64, size),
		seconds: make([]int64, size),
	}
}

// Mark records n events at the current time.
func (m *Meter) Mark(n int64) {
	m.mu.Lock()
	defer m.mu.Unlock()

	sec := m.now().Unix()
	idx := int(sec % int64(len(m.counts)))
	if m.seconds[idx] != sec {
		m.seconds[idx] = sec
		m.counts[idx] = 0
	}
	m.counts[idx] += n
}

// Rate returns events per second across the window, or across the complete
// seconds since the meter was created if that is shorter.
func (m *Meter) Rate() float64 {
	m.mu.Lock()
	defer m.mu.Unlock()

	sec := m.now().Unix()
	oldest := sec - m.window

	var sum int64
	for i, s := range m.seconds {
		if s >= oldest && s < sec {
			sum += m.counts[i]
		}
	}

	span := m.window
	if elapsed := sec - m.start; elapsed < span {
		span = elapsed
	}
	if span <= 0 {
		return 0
	}
	return float64(sum) / float64(span)
}
