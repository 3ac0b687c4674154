// Package threshold evaluates end-of-run assertions such as
// "latency:p99 < 250" against the final snapshot and delivery counters.
package threshold

import (
	"fmt"
	"math"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/torosent/pulsewire/internal/metrics"
	"github.com/torosent/pulsewire/internal/report"
)

// Threshold is a single parsed assertion.
type Threshold struct {
	Metric    string  `json:"metric"`    // latency, errors, requests or delivery
	Aggregate string  `json:"aggregate"` // e.g. p99, avg, rate, count, failed
	Operator  string  `json:"operator"`
	Value     float64 `json:"value"`
	Raw       string  `json:"expression"`
}

// Result is the outcome of evaluating one Threshold.
type Result struct {
	Threshold Threshold `json:"threshold"`
	Actual    float64   `json:"actual"`
	Pass      bool      `json:"pass"`
	Message   string    `json:"message"`
}

// Input is everything a threshold can be checked against.
type Input struct {
	Snapshot metrics.Snapshot
	Delivery report.DeliveryStats
	Elapsed  time.Duration
}

var pattern = regexp.MustCompile(`^([a-z_]+):([a-z0-9]+)\s*([<>=!]+)\s*([0-9.]+)$`)

// aggregates lists the aggregates each metric accepts.
var aggregates = map[string][]string{
	"latency":  {"avg", "p50", "p90", "p99"},
	"errors":   {"count", "rate"},
	"requests": {"count", "rate"},
	"delivery": {"delivered", "failed", "rate"},
}

var operators = []string{"<", "<=", ">", ">=", "=="}

// Evaluator checks a fixed set of thresholds.
type Evaluator struct {
	thresholds []Threshold
}

func NewEvaluator(thresholds []Threshold) *Evaluator {
	return &Evaluator{thresholds: thresholds}
}

// Evaluate checks every threshold against in, in declaration order.
func (e *Evaluator) Evaluate(in Input) []Result {
	if len(e.thresholds) == 0 {
		return nil
	}
	results := make([]Result, 0, len(e.thresholds))
	for _, t := range e.thresholds {
		results = append(results, evaluateOne(t, in))
	}
	return results
}

// Failed returns the results that did not pass.
func Failed(results []Result) []Result {
	var out []Result
	for _, r := range results {
		if !r.Pass {
			out = append(out, r)
		}
	}
	return out
}

func evaluateOne(t Threshold, in Input) Result {
	actual, err := extractValue(t, in)
	if err != nil {
		return Result{Threshold: t, Message: fmt.Sprintf("error: %v", err)}
	}

	pass := compareValues(actual, t.Operator, t.Value)
	status := "✓"
	if !pass {
		status = "✗"
	}
	return Result{
		Threshold: t,
		Actual:    actual,
		Pass:      pass,
		Message:   fmt.Sprintf("%s %s: %.2f %s %.2f", status, t.Raw, actual, t.Operator, t.Value),
	}
}

// Parse parses one threshold expression. Supported forms:
//
//	latency:p99 < 250        percentile or window mean latency in ms
//	errors:rate < 0.05       failed observations as a fraction of the total
//	errors:count < 10
//	requests:rate > 100      observations per second over the whole run
//	requests:count > 1000
//	delivery:failed == 0     rejected or unreachable deliveries
//	delivery:delivered >= 1
//	delivery:rate < 0.1      failed deliveries as a fraction of attempts
func Parse(s string) (Threshold, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Threshold{}, fmt.Errorf("empty threshold string")
	}

	m := pattern.FindStringSubmatch(s)
	if m == nil {
		return Threshold{}, fmt.Errorf("invalid threshold format: %q (expected metric:aggregate operator value, e.g. 'latency:p99 < 250')", s)
	}
	metric, aggregate, operator, raw := m[1], m[2], m[3], m[4]

	value, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return Threshold{}, fmt.Errorf("invalid threshold value %q: %v", raw, err)
	}

	allowed, ok := aggregates[metric]
	if !ok {
		return Threshold{}, fmt.Errorf("unsupported metric: %q (supported: %s)", metric, strings.Join(metricNames(), ", "))
	}
	if !contains(allowed, aggregate) {
		return Threshold{}, fmt.Errorf("unsupported aggregate %q for %s (supported: %s)", aggregate, metric, strings.Join(allowed, ", "))
	}
	if !contains(operators, operator) {
		return Threshold{}, fmt.Errorf("unsupported operator: %q (supported: %s)", operator, strings.Join(operators, ", "))
	}

	return Threshold{
		Metric:    metric,
		Aggregate: aggregate,
		Operator:  operator,
		Value:     value,
		Raw:       s,
	}, nil
}

// ParseMultiple parses every expression and reports all failures at once.
func ParseMultiple(exprs []string) ([]Threshold, error) {
	if len(exprs) == 0 {
		return nil, nil
	}

	result := make([]Threshold, 0, len(exprs))
	var problems []string
	for i, s := range exprs {
		t, err := Parse(s)
		if err != nil {
			problems = append(problems, fmt.Sprintf("threshold[%d]: %v", i, err))
			continue
		}
		result = append(result, t)
	}
	if len(problems) > 0 {
		return nil, fmt.Errorf("threshold parsing errors: %s", strings.Join(problems, "; "))
	}
	return result, nil
}

func extractValue(t Threshold, in Input) (float64, error) {
	snap := in.Snapshot
	switch t.Metric + ":" + t.Aggregate {
	case "latency:avg":
		return snap.AverageLatencyMs, nil
	case "latency:p50":
		return snap.P50LatencyMs, nil
	case "latency:p90":
		return snap.P90LatencyMs, nil
	case "latency:p99":
		return snap.P99LatencyMs, nil
	case "errors:count":
		return float64(snap.ErrorCount), nil
	case "errors:rate":
		return ratio(snap.ErrorCount, snap.TotalRequests), nil
	case "requests:count":
		return float64(snap.TotalRequests), nil
	case "requests:rate":
		if in.Elapsed <= 0 {
			return 0, nil
		}
		return float64(snap.TotalRequests) / in.Elapsed.Seconds(), nil
	case "delivery:delivered":
		return float64(in.Delivery.Delivered), nil
	case "delivery:failed":
		return float64(in.Delivery.Failed), nil
	case "delivery:rate":
		return ratio(in.Delivery.Failed, in.Delivery.Attempts), nil
	default:
		return 0, fmt.Errorf("unsupported threshold %s:%s", t.Metric, t.Aggregate)
	}
}

func ratio(part, total int64) float64 {
	if total <= 0 {
		return 0
	}
	return float64(part) / float64(total)
}

func compareValues(actual float64, operator string, expected float64) bool {
	const epsilon = 1e-9

	switch operator {
	case "<":
		return actual < expected
	case "<=":
		return actual <= expected || math.Abs(actual-expected) < epsilon
	case ">":
		return actual > expected
	case ">=":
		return actual >= expected || math.Abs(actual-expected) < epsilon
	case "==":
		return math.Abs(actual-expected) < epsilon
	default:
		return false
	}
}

func metricNames() []string {
	names := make([]string, 0, len(aggregates))
	for name := range aggregates {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func contains(list []string, v string) bool {
	for _, item := range list {
		if item == v {
			return true
		}
	}
	return false
}
