package output

import (
	"fmt"
	"io"
	"sync/atomic"
	"time"

	"github.com/torosent/pulsewire/internal/metrics"
	"github.com/torosent/pulsewire/internal/report"
)

// StateSource exposes the recorder counters shown on the progress line.
// *metrics.Recorder satisfies it.
type StateSource interface {
	State() metrics.State
}

// DeliverySource exposes the scheduler state shown on the progress line.
// *report.Scheduler satisfies it.
type DeliverySource interface {
	Active() bool
	Stats() report.DeliveryStats
}

// ProgressReporter displays real-time progress updates.
type ProgressReporter struct {
	state    StateSource
	delivery DeliverySource
	ticker   *time.Ticker
	done     chan struct{}
	finished chan struct{}
	writer   io.Writer
	active   int32
}

// NewProgressReporter creates a progress reporter that updates at the given interval.
func NewProgressReporter(state StateSource, delivery DeliverySource, interval time.Duration, writer io.Writer) *ProgressReporter {
	if writer == nil {
		writer = io.Discard
	}
	if interval <= 0 {
		interval = time.Second
	}
	return &ProgressReporter{
		state:    state,
		delivery: delivery,
		ticker:   time.NewTicker(interval),
		done:     make(chan struct{}),
		finished: make(chan struct{}),
		writer:   writer,
	}
}

// Start begins displaying progress updates in a background goroutine.
func (p *ProgressReporter) Start() {
	if !atomic.CompareAndSwapInt32(&p.active, 0, 1) {
		return // already running
	}
	go p.run()
}

// Stop halts progress updates and ends the line.
func (p *ProgressReporter) Stop() {
	if atomic.CompareAndSwapInt32(&p.active, 1, 0) {
		close(p.done)
		p.ticker.Stop()
		<-p.finished
		fmt.Fprintln(p.writer)
	}
}

func (p *ProgressReporter) run() {
	defer close(p.finished)
	for {
		select {
		case <-p.ticker.C:
			fmt.Fprint(p.writer, "\r"+ProgressLine(p.state.State(), p.delivery.Active(), p.delivery.Stats()))
		case <-p.done:
			return
		}
	}
}

// ProgressLine renders one status line from the recorder and delivery state.
func ProgressLine(st metrics.State, active bool, stats report.DeliveryStats) string {
	status := report.StatusStopped
	if active {
		status = report.StatusRunning
	}
	line := fmt.Sprintf("Observed: %d | Errors: %d | Success: %.1f%% | Status: %s | Sent: %d | Failed: %d",
		st.Total, st.Errors, metrics.SuccessRate(st.Total, st.Errors), status, stats.Delivered, stats.Failed)
	if stats.ConsecutiveFailures > 0 && stats.LastStatusCode != 0 {
		line += fmt.Sprintf(" | Last: HTTP %d", stats.LastStatusCode)
	} else if stats.ConsecutiveFailures > 0 {
		line += " | Last: unreachable"
	}
	return line
}
