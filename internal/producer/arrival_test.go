package producer

import (
	"context"
	"testing"
	"time"
)

func TestPoissonArrivalNextDelayUsesSampler(t *testing.T) {
	ctrl := &poissonArrival{rate: 200, sample: func() float64 { return 1 }}
	delay := ctrl.nextDelay()
	expected := time.Second / 200
	if delay != expected {
		t.Fatalf("expected delay %s, got %s", expected, delay)
	}
}

func TestPoissonArrivalUnlimitedRate(t *testing.T) {
	ctrl := &poissonArrival{rate: 0, sample: func() float64 { return 1 }}
	if delay := ctrl.nextDelay(); delay != 0 {
		t.Fatalf("expected no delay for unlimited rate, got %s", delay)
	}
	if err := ctrl.Wait(context.Background()); err != nil {
		t.Fatalf("Wait() error = %v", err)
	}
}

func TestPoissonArrivalWaitCancelledContext(t *testing.T) {
	ctrl := &poissonArrival{rate: 0.000001, sample: func() float64 { return 1 }}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := ctrl.Wait(ctx); err == nil {
		t.Fatalf("expected context error when cancelled")
	}
}

func TestNewArrivalControllerSelectsModel(t *testing.T) {
	opt := Options{Rate: 10, Arrival: ArrivalModelPoisson}
	opt.normalize()
	if _, ok := newArrivalController(opt, func() float64 { return 1 }).(*poissonArrival); !ok {
		t.Error("poisson model should use poissonArrival")
	}

	opt = Options{Rate: 10}
	opt.normalize()
	if _, ok := newArrivalController(opt, nil).(*uniformArrival); !ok {
		t.Error("default model should use uniformArrival")
	}
}

func TestPickFailureWeights(t *testing.T) {
	tests := []struct {
		u    float64
		want string
	}{
		{0, "connection_timeout"},
		{0.39, "connection_timeout"},
		{0.4, "server_error_500"},
		{0.69, "server_error_500"},
		{0.75, "rate_limited_429"},
		{0.95, "other_errors"},
		{0.999999, "other_errors"},
	}
	for _, tt := range tests {
		if got := pickFailure(tt.u).label; got != tt.want {
			t.Errorf("pickFailure(%v) = %s, want %s", tt.u, got, tt.want)
		}
	}
}
