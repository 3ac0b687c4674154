package producer

import (
	"context"
	"math/rand"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/torosent/pulsewire/internal/metrics"
)

// Recorder accepts observations. *metrics.Recorder satisfies it.
type Recorder interface {
	Record(obs metrics.Observation) error
}

// Producer feeds observations into a Recorder until ctx ends.
type Producer interface {
	Run(ctx context.Context, rec Recorder) error
	Gauges() (requestsPerSecond float64, activeConnections int)
}

// failureKind is one fabricated failure class with its relative weight.
type failureKind struct {
	label  string
	code   string
	weight float64
}

var failureKinds = []failureKind{
	{label: "connection_timeout", code: "timeout", weight: 0.4},
	{label: "server_error_500", code: "500", weight: 0.3},
	{label: "rate_limited_429", code: "429", weight: 0.2},
	{label: "other_errors", code: "other", weight: 0.1},
}

const successCode = "200"

var _ Producer = (*Synthetic)(nil)

// Synthetic fabricates observations with random latency, byte counts and a
// configurable failure ratio.
type Synthetic struct {
	opt   Options
	meter *Meter

	inFlight atomic.Int64
	produced atomic.Int64
	rejected atomic.Int64

	rngMu sync.Mutex
	rng   *rand.Rand
}

func NewSynthetic(opt Options) *Synthetic {
	opt.normalize()
	return &Synthetic{
		opt:   opt,
		meter: NewMeter(defaultMeterWindow),
		rng:   rand.New(rand.NewSource(opt.Seed)),
	}
}

// Gauges reports recent throughput and the number of simulated in-flight units.
func (s *Synthetic) Gauges() (float64, int) {
	return s.meter.Rate(), int(s.inFlight.Load())
}

// Produced returns how many observations were accepted by the recorder.
func (s *Synthetic) Produced() int64 {
	return s.produced.Load()
}

// Run paces work through the arrival model and a fixed pool of workers. It
// returns nil when ctx ends or Options.Limit observations have been produced.
func (s *Synthetic) Run(ctx context.Context, rec Recorder) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	arrival := newArrivalController(s.opt, s.expFloat64)
	permits := make(chan struct{}, s.opt.Concurrency)
	var issued int64

	// Scheduler: serializes pacing to avoid burst overshoot across workers.
	go func() {
		defer close(permits)
		for {
			if ctx.Err() != nil {
				return
			}
			if s.opt.Limit > 0 && issued >= s.opt.Limit {
				return
			}
			if err := arrival.Wait(ctx); err != nil {
				return
			}
			issued++
			select {
			case permits <- struct{}{}:
			case <-ctx.Done():
				return
			}
		}
	}()

	var wg sync.WaitGroup
	wg.Add(s.opt.Concurrency)
	for i := 0; i < s.opt.Concurrency; i++ {
		go func() {
			defer wg.Done()
			for range permits {
				if !s.work(ctx, rec) {
					return
				}
			}
		}()
	}
	wg.Wait()

	s.opt.Logger.Debug("synthetic producer finished",
		zap.Int64("produced", s.produced.Load()),
		zap.Int64("rejected", s.rejected.Load()),
	)
	return nil
}

// work simulates one unit and records it. It reports false once ctx ends.
func (s *Synthetic) work(ctx context.Context, rec Recorder) bool {
	obs, latency := s.next()

	s.inFlight.Add(1)
	ok := sleepCtx(ctx, latency)
	s.inFlight.Add(-1)
	if !ok {
		return false
	}

	if err := rec.Record(obs); err != nil {
		s.rejected.Add(1)
		s.opt.Logger.Warn("observation rejected", zap.Error(err))
		return true
	}
	s.produced.Add(1)
	s.meter.Mark(1)
	return true
}

// next draws the outcome of one simulated unit of work.
func (s *Synthetic) next() (metrics.Observation, time.Duration) {
	s.rngMu.Lock()
	defer s.rngMu.Unlock()

	latency := s.opt.LatencyMin
	if span := s.opt.LatencyMax - s.opt.LatencyMin; span > 0 {
		latency += time.Duration(s.rng.Int63n(int64(span) + 1))
	}

	obs := metrics.Observation{
		Success:    true,
		Code:       successCode,
		BytesSent:  200 + s.rng.Int63n(1000),
		LatencyMs:  float64(latency) / float64(time.Millisecond),
		HasLatency: true,
	}

	if s.rng.Float64() < s.opt.FailureRatio {
		kind := pickFailure(s.rng.Float64())
		obs.Success = false
		obs.Code = kind.code
		obs.ErrorType = kind.label
		obs.BytesReceived = s.rng.Int63n(256)
	} else {
		obs.BytesReceived = 500 + s.rng.Int63n(50_000)
	}
	return obs, latency
}

func (s *Synthetic) expFloat64() float64 {
	s.rngMu.Lock()
	defer s.rngMu.Unlock()
	return s.rng.ExpFloat64()
}

// pickFailure maps u in [0,1) onto failureKinds by weight.
func pickFailure(u float64) failureKind {
	var acc float64
	for _, k := range failureKinds {
		acc += k.weight
		if u < acc {
			return k
		}
	}
	return failureKinds[len(failureKinds)-1]
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
