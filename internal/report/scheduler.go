package report

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
	"go.uber.org/zap"

	"github.com/torosent/pulsewire/internal/logging"
	"github.com/torosent/pulsewire/internal/metrics"
	"github.com/torosent/pulsewire/internal/tracing"
)

const (
	DefaultInterval = 2 * time.Second
	DefaultTimeout  = 5 * time.Second
)

// SnapshotSource produces a consistent snapshot for the supplied gauges.
// *metrics.Recorder satisfies it.
type SnapshotSource interface {
	Snapshot(requestsPerSecond float64, activeConnections int) metrics.Snapshot
}

// Options configures a Scheduler.
type Options struct {
	Interval time.Duration // time between the end of one attempt and the next cycle
	Timeout  time.Duration // per-attempt delivery bound
	Target   string        // reported as target_url

	// Gauges supplies requests per second and active connections while Active.
	Gauges func() (float64, int)

	Logger *zap.Logger
	Tracer trace.Tracer
	Now    func() time.Time
}

func (o *Options) normalize() {
	if o.Interval <= 0 {
		o.Interval = DefaultInterval
	}
	if o.Timeout <= 0 {
		o.Timeout = DefaultTimeout
	}
	o.Logger = logging.OrNop(o.Logger)
	if o.Tracer == nil {
		o.Tracer = noop.NewTracerProvider().Tracer("")
	}
	if o.Now == nil {
		o.Now = time.Now
	}
}

// DeliveryStats counts delivery attempts. Reporting failures live here and
// nowhere else.
type DeliveryStats struct {
	Attempts            int64
	Delivered           int64
	Failed              int64
	ConsecutiveFailures int64
	LastStatusCode      int // status of the last rejected delivery, 0 if none
	LastError           string
	LastAttempt         time.Time
	LastSuccess         time.Time
}

// Scheduler drives periodic delivery of snapshots to a Sink.
type Scheduler struct {
	source SnapshotSource
	sink   Sink
	opts   Options

	// stopCh wakes the loop for the final stopped delivery after Stop.
	stopCh chan struct{}

	mu        sync.Mutex
	active    bool
	startedAt time.Time
	runID     string
	stops     []stopEvent // stopped payloads owed to the collector
	cycles    int64
	stats     DeliveryStats
	last      Payload
	hasLast   bool
}

// stopEvent identifies the run a Stop ended.
type stopEvent struct {
	startedAt time.Time
	runID     string
}

func NewScheduler(source SnapshotSource, sink Sink, opts Options) *Scheduler {
	opts.normalize()
	return &Scheduler{
		source: source,
		sink:   sink,
		opts:   opts,
		stopCh: make(chan struct{}, 1),
	}
}

// Start moves the scheduler to Active. It is a no-op when already Active.
func (s *Scheduler) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.active {
		return
	}
	s.active = true
	s.startedAt = s.opts.Now()
	s.runID = ulid.Make().String()
	s.opts.Logger.Info("reporting started",
		zap.String("run_id", s.runID),
		zap.String("target", s.opts.Target),
	)
}

// Stop moves the scheduler to Idle and asks the loop to deliver a final
// stopped payload immediately. Every Stop yields exactly one stopped payload
// for the run it ended, even if Start follows before the loop wakes up or
// Run is shutting down. It is a no-op when already Idle.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.active {
		s.mu.Unlock()
		return
	}
	s.active = false
	runID := s.runID
	s.stops = append(s.stops, stopEvent{startedAt: s.startedAt, runID: runID})
	s.mu.Unlock()

	s.opts.Logger.Info("reporting stopped", zap.String("run_id", runID))
	select {
	case s.stopCh <- struct{}{}:
	default:
	}
}

// Toggle flips between Active and Idle and reports the new state.
func (s *Scheduler) Toggle() bool {
	if s.Active() {
		s.Stop()
		return false
	}
	s.Start()
	return true
}

func (s *Scheduler) Active() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.active
}

// Run drives delivery cycles until ctx is done. Pending stopped payloads are
// delivered before it returns and, if the scheduler is still Active, one last
// stopped payload follows on a fresh timeout.
func (s *Scheduler) Run(ctx context.Context) error {
	timer := time.NewTimer(s.opts.Interval)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			s.shutdown(ctx)
			return nil
		case <-s.stopCh:
			if !timer.Stop() {
				select {
				case <-timer.C:
				default:
				}
			}
			s.deliverStops(ctx)
		case <-timer.C:
			s.deliverStops(ctx)
			s.cycle(ctx)
		}
		timer.Reset(s.opts.Interval)
	}
}

func (s *Scheduler) shutdown(ctx context.Context) {
	s.deliverStops(ctx)

	s.mu.Lock()
	wasActive := s.active
	s.active = false
	startedAt, runID := s.startedAt, s.runID
	s.mu.Unlock()
	if !wasActive {
		return
	}
	s.opts.Logger.Info("delivering final snapshot before exit")
	s.deliver(context.WithoutCancel(ctx), s.stoppedPayload(stopEvent{startedAt: startedAt, runID: runID}))
}

// deliverStops sends one stopped payload per pending Stop, oldest first. They
// are not abandoned when ctx ends; each still gets its own attempt timeout.
func (s *Scheduler) deliverStops(ctx context.Context) {
	s.mu.Lock()
	stops := s.stops
	s.stops = nil
	s.mu.Unlock()

	for _, ev := range stops {
		s.deliver(context.WithoutCancel(ctx), s.stoppedPayload(ev))
	}
}

func (s *Scheduler) stoppedPayload(ev stopEvent) Payload {
	snap := s.source.Snapshot(0, 0)
	return FromSnapshot(snap, StatusStopped, s.opts.Target, ev.startedAt, ev.runID)
}

func (s *Scheduler) cycle(ctx context.Context) {
	s.deliver(ctx, s.buildPayload())
}

func (s *Scheduler) buildPayload() Payload {
	s.mu.Lock()
	active := s.active
	startedAt := s.startedAt
	runID := s.runID
	s.mu.Unlock()

	var rps float64
	var conns int
	status := StatusStopped
	if active {
		status = StatusRunning
		if s.opts.Gauges != nil {
			rps, conns = s.opts.Gauges()
		}
	}

	snap := s.source.Snapshot(rps, conns)
	return FromSnapshot(snap, status, s.opts.Target, startedAt, runID)
}

func (s *Scheduler) deliver(ctx context.Context, p Payload) {
	s.mu.Lock()
	s.cycles++
	cycle := s.cycles
	s.mu.Unlock()

	ctx, span := tracing.StartCycleSpan(ctx, s.opts.Tracer, string(p.Status), p.TargetURL, p.RunID)
	attemptCtx, cancel := context.WithTimeout(ctx, s.opts.Timeout)
	err := s.send(attemptCtx, p)
	cancel()

	s.record(p, err)

	var attrs []attribute.KeyValue
	var derr *DeliveryError
	if errors.As(err, &derr) && derr.StatusCode != 0 {
		attrs = append(attrs, tracing.AttrHTTPStatus.Int(derr.StatusCode))
	}
	tracing.EndSpan(span, err, attrs...)

	if err != nil {
		fields := []zap.Field{
			zap.Int64("cycle", cycle),
			zap.String("status", string(p.Status)),
			zap.Error(err),
		}
		if derr != nil && derr.StatusCode != 0 {
			fields = append(fields, zap.Int("status_code", derr.StatusCode))
		}
		s.opts.Logger.Warn("snapshot delivery failed", fields...)
		return
	}
	s.opts.Logger.Debug("snapshot delivered",
		zap.Int64("cycle", cycle),
		zap.String("status", string(p.Status)),
		zap.Int64("total_requests", p.TotalRequests),
	)
}

// send isolates the loop from a misbehaving sink.
func (s *Scheduler) send(ctx context.Context, p Payload) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &DeliveryError{Err: fmt.Errorf("sink panic: %v", r)}
		}
	}()
	err = s.sink.Send(ctx, p)
	if err != nil && !errors.Is(err, ErrDeliveryFailed) {
		err = &DeliveryError{Err: err}
	}
	return err
}

func (s *Scheduler) record(p Payload, err error) {
	now := s.opts.Now()

	s.mu.Lock()
	defer s.mu.Unlock()

	s.stats.Attempts++
	s.stats.LastAttempt = now
	s.last = p
	s.hasLast = true

	if err != nil {
		s.stats.Failed++
		s.stats.ConsecutiveFailures++
		s.stats.LastError = err.Error()
		var derr *DeliveryError
		if errors.As(err, &derr) {
			s.stats.LastStatusCode = derr.StatusCode
		}
		return
	}
	s.stats.Delivered++
	s.stats.ConsecutiveFailures = 0
	s.stats.LastSuccess = now
	s.stats.LastError = ""
	s.stats.LastStatusCode = 0
}

// Stats returns a copy of the delivery counters.
func (s *Scheduler) Stats() DeliveryStats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stats
}

// Last returns the most recently attempted payload.
func (s *Scheduler) Last() (Payload, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.last, s.hasLast
}

// RunID returns the ID of the current or most recent run, empty before the
// first Start.
func (s *Scheduler) RunID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.runID
}

// StartedAt returns when the current or most recent run began.
func (s *Scheduler) StartedAt() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.startedAt
}
