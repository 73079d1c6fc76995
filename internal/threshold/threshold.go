package threshold

import (
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"

	"github.com/torosent/relaxsim/internal/sweep"
)

const (
	MetricRankError   = "rank_error"
	MetricFailedCells = "failed_cells"
)

// Threshold represents a rank-error assertion that can pass or fail.
type Threshold struct {
	Metric    string  // "rank_error" or "failed_cells"
	Aggregate string  // e.g., "mean", "p99", "worst1", "max", "count", "rate"
	Operator  string  // e.g., "<", "<=", ">", ">=", "=="
	Value     float64 // The threshold value to compare against
	Raw       string  // Original threshold string for display
}

// Result represents the outcome of evaluating a threshold. Rank-error
// thresholds yield one result per cell.
type Result struct {
	Threshold Threshold
	Cell      string
	Actual    float64
	Pass      bool
	Message   string
}

// Evaluator evaluates thresholds against a sweep table.
type Evaluator struct {
	thresholds []Threshold
}

// NewEvaluator creates a new threshold evaluator.
func NewEvaluator(thresholds []Threshold) *Evaluator {
	return &Evaluator{
		thresholds: thresholds,
	}
}

// Evaluate checks all thresholds against the table. Cells without a
// completed repetition are skipped by rank-error thresholds.
func (e *Evaluator) Evaluate(table *sweep.Table) []Result {
	if len(e.thresholds) == 0 || table == nil {
		return nil
	}

	var results []Result
	for _, t := range e.thresholds {
		if t.Metric == MetricFailedCells {
			results = append(results, e.evaluateOne(t, "", failureValue(t.Aggregate, table)))
			continue
		}
		for _, c := range table.Cells {
			if c.Runs == 0 {
				continue
			}
			results = append(results, e.evaluateOne(t, c.Key.String(), rankErrorValue(t.Aggregate, c)))
		}
	}
	return results
}

// Failed reports whether any result failed.
func Failed(results []Result) bool {
	for _, r := range results {
		if !r.Pass {
			return true
		}
	}
	return false
}

func (e *Evaluator) evaluateOne(t Threshold, cell string, actual float64) Result {
	pass := compareValues(actual, t.Operator, t.Value)
	status := "✓"
	if !pass {
		status = "✗"
	}

	message := fmt.Sprintf("%s %s: %.2f %s %.2f", status, t.Raw, actual, t.Operator, t.Value)
	if cell != "" {
		message += " [" + cell + "]"
	}
	return Result{
		Threshold: t,
		Cell:      cell,
		Actual:    actual,
		Pass:      pass,
		Message:   message,
	}
}

var thresholdPattern = regexp.MustCompile(`^([a-z_]+):([a-z0-9]+)\s*([<>=!]+)\s*([0-9.]+)$`)

// Parse parses a threshold string into a Threshold struct.
// Supported formats:
// - "rank_error:mean < 4"        (pooled mean rank error of every cell)
// - "rank_error:p99 <= 20"       (99th percentile; also p50, p90, worst1)
// - "rank_error:max < 100"       (largest rank error of every cell)
// - "failed_cells:count == 0"    (failed units)
// - "failed_cells:rate < 0.01"   (failed share of units)
func Parse(s string) (Threshold, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Threshold{}, fmt.Errorf("empty threshold string")
	}

	matches := thresholdPattern.FindStringSubmatch(s)
	if matches == nil {
		return Threshold{}, fmt.Errorf("invalid threshold format: %q (expected format: metric:aggregate operator value, e.g., 'rank_error:mean < 4')", s)
	}

	metric := matches[1]
	aggregate := matches[2]
	operator := matches[3]
	valueStr := matches[4]

	value, err := strconv.ParseFloat(valueStr, 64)
	if err != nil {
		return Threshold{}, fmt.Errorf("invalid threshold value %q: %v", valueStr, err)
	}

	switch metric {
	case MetricRankError:
		if !contains([]string{"mean", "avg", "p50", "p90", "p99", "worst1", "max"}, aggregate) {
			return Threshold{}, fmt.Errorf("unsupported aggregate %q for rank_error (supported: mean, avg, p50, p90, p99, worst1, max)", aggregate)
		}
	case MetricFailedCells:
		if !contains([]string{"count", "rate"}, aggregate) {
			return Threshold{}, fmt.Errorf("unsupported aggregate %q for failed_cells (use 'count' or 'rate')", aggregate)
		}
	default:
		return Threshold{}, fmt.Errorf("unsupported metric: %q (supported: rank_error, failed_cells)", metric)
	}

	if !contains([]string{"<", "<=", ">", ">=", "=="}, operator) {
		return Threshold{}, fmt.Errorf("unsupported operator: %q (supported: <, <=, >, >=, ==)", operator)
	}

	return Threshold{
		Metric:    metric,
		Aggregate: aggregate,
		Operator:  operator,
		Value:     value,
		Raw:       s,
	}, nil
}

// ParseMultiple parses multiple threshold strings.
func ParseMultiple(thresholds []string) ([]Threshold, error) {
	if len(thresholds) == 0 {
		return nil, nil
	}

	result := make([]Threshold, 0, len(thresholds))
	var errors []string

	for i, s := range thresholds {
		t, err := Parse(s)
		if err != nil {
			errors = append(errors, fmt.Sprintf("threshold[%d]: %v", i, err))
			continue
		}
		result = append(result, t)
	}

	if len(errors) > 0 {
		return nil, fmt.Errorf("threshold parsing errors: %s", strings.Join(errors, "; "))
	}

	return result, nil
}

func contains(valid []string, s string) bool {
	for _, v := range valid {
		if s == v {
			return true
		}
	}
	return false
}

func rankErrorValue(aggregate string, c *sweep.Cell) float64 {
	s := c.Summary
	switch aggregate {
	case "p50":
		return float64(s.P50)
	case "p90":
		return float64(s.P90)
	case "p99":
		return float64(s.P99)
	case "worst1":
		return float64(s.WorstOnePercent)
	case "max":
		return float64(s.Max)
	default:
		return s.Mean
	}
}

func failureValue(aggregate string, table *sweep.Table) float64 {
	if aggregate == "rate" {
		return table.FailureRate()
	}
	return float64(len(table.Failures))
}

func compareValues(actual float64, operator string, expected float64) bool {
	// Handle floating point comparison with small epsilon
	epsilon := 1e-9

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
