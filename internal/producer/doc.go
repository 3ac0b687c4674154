// Package producer supplies observations to a metrics recorder.
//
// A [Producer] runs until its context ends, feeding [metrics.Observation]
// values into a [Recorder], and exposes the live gauges the delivery loop
// reports while active:
//
//	type Producer interface {
//		Run(ctx context.Context, rec Recorder) error
//		Gauges() (requestsPerSecond float64, activeConnections int)
//	}
//
// [Synthetic] fabricates observations for demonstrations and tests. It never
// touches the network: each worker sleeps for a random latency and then
// records a success or one of a fixed set of failure kinds.
//
// # Arrival Models
//
// Synthetic paces work the same way real traffic would arrive:
//   - [ArrivalModelUniform]: fixed spacing through a token bucket
//   - [ArrivalModelPoisson]: exponentially distributed gaps
//
// A rate of zero removes pacing altogether.
package producer
