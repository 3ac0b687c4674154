package metrics

import (
	"errors"
	"fmt"
	"math"
)

// ErrInvalidObservation is matched (via errors.Is) by every error Record returns.
var ErrInvalidObservation = errors.New("invalid observation")

// Observation is one recorded unit of work.
type Observation struct {
	Success       bool
	LatencyMs     float64
	HasLatency    bool
	BytesSent     int64
	BytesReceived int64

	// Code is an optional response code label ("200", "503", "timeout").
	Code string
	// ErrorType labels a failure. When empty and Err is set, the label is
	// derived from Err's type.
	ErrorType string
	Err       error
}

// WithLatency returns a copy of o carrying the given latency in milliseconds.
func (o Observation) WithLatency(ms float64) Observation {
	o.LatencyMs = ms
	o.HasLatency = true
	return o
}

// InvalidObservationError describes a rejected observation.
type InvalidObservationError struct {
	Field  string
	Reason string
}

func (e *InvalidObservationError) Error() string {
	return fmt.Sprintf("invalid observation: %s %s", e.Field, e.Reason)
}

func (e *InvalidObservationError) Is(target error) bool {
	return target == ErrInvalidObservation
}

func (o Observation) validate() error {
	if o.BytesSent < 0 {
		return &InvalidObservationError{Field: "bytes_sent", Reason: fmt.Sprintf("must be non-negative, got %d", o.BytesSent)}
	}
	if o.BytesReceived < 0 {
		return &InvalidObservationError{Field: "bytes_received", Reason: fmt.Sprintf("must be non-negative, got %d", o.BytesReceived)}
	}
	if o.HasLatency {
		switch {
		case math.IsNaN(o.LatencyMs), math.IsInf(o.LatencyMs, 0):
			return &InvalidObservationError{Field: "latency_ms", Reason: "must be finite"}
		case o.LatencyMs < 0:
			return &InvalidObservationError{Field: "latency_ms", Reason: fmt.Sprintf("must be non-negative, got %g", o.LatencyMs)}
		}
	}
	return nil
}

func (o Observation) errorLabel() string {
	if o.ErrorType != "" {
		return o.ErrorType
	}
	if o.Err != nil {
		return FriendlyErrorName(fmt.Sprintf("%T", o.Err))
	}
	return "unknown"
}
