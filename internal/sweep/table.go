package sweep

import (
	"fmt"

	"github.com/torosent/relaxsim/internal/engine"
	"github.com/torosent/relaxsim/internal/metrics"
)

// Failure describes a unit of work that did not produce a result.
type Failure struct {
	Key        CellKey
	Repetition int
	Seed       uint64
	Err        error
	Stack      string // set for panics
}

func (f Failure) Error() string {
	return fmt.Sprintf("cell {%s} repetition %d seed %d: %v", f.Key, f.Repetition, f.Seed, f.Err)
}

func (f Failure) Unwrap() error {
	return f.Err
}

// Cell aggregates the completed repetitions of one grid cell.
type Cell struct {
	Key     CellKey
	Samples int
	// Runs is the number of completed repetitions; Expected is how many were scheduled.
	Runs     int
	Expected int

	// Summary pools the rank errors of every completed repetition.
	Summary   metrics.Summary
	Histogram []metrics.Bucket
	// Repetitions holds each completed repetition's own summary in repetition order.
	Repetitions []metrics.Summary

	Dequeues       int
	Fallbacks      int
	ForcedEnqueues int
	EnqueueSkew    metrics.Skew
	DequeueSkew    metrics.Skew

	// RankErrors concatenates the repetitions' rank errors when errors are kept.
	RankErrors []uint64
	// Distributions is built from the first completed repetition of a traced sweep.
	Distributions *engine.Distributions
}

// Complete reports whether every scheduled repetition finished.
func (c *Cell) Complete() bool {
	return c.Runs == c.Expected
}

// Readout is the mean over repetitions of each repetition's readout value.
func (c *Cell) Readout(r metrics.Readout) float64 {
	if len(c.Repetitions) == 0 {
		return 0
	}
	var sum float64
	for _, s := range c.Repetitions {
		sum += s.Value(r)
	}
	return sum / float64(len(c.Repetitions))
}

// Table is the finalized outcome of a sweep.
type Table struct {
	// Cells in report order; cells whose repetitions all failed are kept with Runs == 0.
	Cells    []*Cell
	Failures []Failure
	// Skipped counts units never started because the sweep was aborted.
	Skipped int
}

// Cell looks up a cell by key.
func (t *Table) Cell(key CellKey) (*Cell, bool) {
	for _, c := range t.Cells {
		if c.Key == key {
			return c, true
		}
	}
	return nil, false
}

// FailureRate is the share of scheduled units that failed.
func (t *Table) FailureRate() float64 {
	total := len(t.Failures) + t.Skipped
	for _, c := range t.Cells {
		total += c.Runs
	}
	if total == 0 {
		return 0
	}
	return float64(len(t.Failures)) / float64(total)
}

// outcome is what a worker hands to the aggregator for one unit.
type outcome struct {
	index     int
	result    *engine.Result
	collector *metrics.Collector
	failure   *Failure
}

// buildTable folds outcomes in unit order so floating point sums do not
// depend on completion order.
func buildTable(units []Unit, outcomes []*outcome, samples int) *Table {
	t := &Table{}
	var cell *Cell
	var pooled *metrics.Collector
	var enqSkew, deqSkew []metrics.Skew

	flush := func() {
		if cell == nil {
			return
		}
		if pooled != nil {
			cell.Summary = pooled.Summary()
			cell.Histogram = pooled.Histogram()
		}
		cell.EnqueueSkew = meanSkew(enqSkew)
		cell.DequeueSkew = meanSkew(deqSkew)
		t.Cells = append(t.Cells, cell)
	}

	for i, u := range units {
		if cell == nil || cell.Key != u.Key {
			flush()
			cell = &Cell{Key: u.Key, Samples: samples}
			pooled = nil
			enqSkew, deqSkew = nil, nil
		}
		cell.Expected++

		o := outcomes[i]
		switch {
		case o == nil:
			t.Skipped++
		case o.failure != nil:
			t.Failures = append(t.Failures, *o.failure)
		default:
			res := o.result
			cell.Runs++
			cell.Repetitions = append(cell.Repetitions, res.Summary)
			cell.Dequeues += res.Dequeues
			cell.Fallbacks += res.Fallbacks
			cell.ForcedEnqueues += res.ForcedEnqueues
			enqSkew = append(enqSkew, res.EnqueueSkew)
			deqSkew = append(deqSkew, res.DequeueSkew)
			cell.RankErrors = append(cell.RankErrors, res.RankErrors...)
			if cell.Distributions == nil && len(res.Trace) > 0 {
				d := engine.BuildDistributions(res)
				cell.Distributions = &d
			}
			if pooled == nil {
				pooled = metrics.NewCollector(int64(u.Spec.Prefill + u.Spec.Ops))
			}
			pooled.Merge(o.collector)
		}
	}
	flush()
	return t
}

func meanSkew(vs []metrics.Skew) metrics.Skew {
	if len(vs) == 0 {
		return metrics.Skew{}
	}
	var out metrics.Skew
	for _, s := range vs {
		out.Mean += s.Mean
		out.StdDev += s.StdDev
	}
	n := float64(len(vs))
	out.Mean /= n
	out.StdDev /= n
	return out
}
