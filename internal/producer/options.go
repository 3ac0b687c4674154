package producer

import (
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/torosent/pulsewire/internal/config"
	"github.com/torosent/pulsewire/internal/logging"
)

// Options configure a Synthetic producer.
type Options struct {
	Rate         int           // observations per second (0 means unlimited)
	Concurrency  int           // simulated in-flight workers
	Arrival      ArrivalModel  // uniform or poisson
	FailureRatio float64       // fraction of observations that fail, in [0,1]
	LatencyMin   time.Duration // lower bound of simulated latency
	LatencyMax   time.Duration // upper bound of simulated latency
	Seed         int64         // 0 means time-based
	Limit        int64         // stop after this many observations (0 means until cancelled)

	LimiterFactory func(rps int) *rate.Limiter // optional injection for tests
	Logger         *zap.Logger
}

// OptionsFromConfig maps producer settings onto Options.
func OptionsFromConfig(cfg config.ProducerConfig) Options {
	return Options{
		Rate:         cfg.Rate,
		Concurrency:  cfg.Concurrency,
		Arrival:      ArrivalModel(cfg.Arrival),
		FailureRatio: cfg.FailureRatio,
		LatencyMin:   cfg.LatencyMin,
		LatencyMax:   cfg.LatencyMax,
		Seed:         cfg.Seed,
	}
}

func (o *Options) normalize() {
	if o.Concurrency <= 0 {
		o.Concurrency = 1
	}
	if o.Rate < 0 {
		o.Rate = 0
	}
	if o.Limit < 0 {
		o.Limit = 0
	}
	if o.Arrival == "" {
		o.Arrival = ArrivalModelUniform
	}
	if o.FailureRatio < 0 {
		o.FailureRatio = 0
	}
	if o.FailureRatio > 1 {
		o.FailureRatio = 1
	}
	if o.LatencyMin < 0 {
		o.LatencyMin = 0
	}
	if o.LatencyMax < o.LatencyMin {
		o.LatencyMax = o.LatencyMin
	}
	if o.Seed == 0 {
		o.Seed = time.Now().UnixNano()
	}
	if o.LimiterFactory == nil {
		o.LimiterFactory = func(rps int) *rate.Limiter {
			if rps <= 0 {
				return rate.NewLimiter(rate.Inf, 0)
			}
			// Burst equal to rps to smooth pacing under concurrency.
			return rate.NewLimiter(rate.Limit(rps), rps)
		}
	}
	o.Logger = logging.OrNop(o.Logger)
}
