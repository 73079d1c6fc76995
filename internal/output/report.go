package output

import (
	"fmt"
	"io"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/sugawarayuuta/sonnet"

	"github.com/torosent/relaxsim/internal/engine"
	"github.com/torosent/relaxsim/internal/metrics"
	"github.com/torosent/relaxsim/internal/queue"
	"github.com/torosent/relaxsim/internal/sweep"
)

// Meta describes the run a report was produced by.
type Meta struct {
	ID          string // generated when empty
	Mode        string
	CreatedAt   time.Time // time.Now when zero
	BaseSeed    uint64
	Readout     metrics.Readout
	TraceParent string
}

// Row is the flat summary of one cell.
type Row struct {
	Subqueues      int              `json:"subqueues" yaml:"subqueues"`
	Samples        int              `json:"samples" yaml:"samples"`
	Ops            int              `json:"ops" yaml:"ops"`
	Prefill        int              `json:"prefill" yaml:"prefill"`
	Heuristic      queue.Kind       `json:"heuristic" yaml:"heuristic"`
	Runs           int              `json:"runs" yaml:"runs"`
	Expected       int              `json:"expected" yaml:"expected"`
	ReadoutValue   float64          `json:"readout_value" yaml:"readout_value"`
	Mean           float64          `json:"mean" yaml:"mean"`
	StdDev         float64          `json:"std_dev" yaml:"std_dev"`
	P50            int64            `json:"p50" yaml:"p50"`
	P90            int64            `json:"p90" yaml:"p90"`
	P99            int64            `json:"p99" yaml:"p99"`
	WorstOnePct    int64            `json:"worst_one_percent" yaml:"worst_one_percent"`
	Max            uint64           `json:"max" yaml:"max"`
	Dequeues       int              `json:"dequeues" yaml:"dequeues"`
	Fallbacks      int              `json:"fallbacks" yaml:"fallbacks"`
	ForcedEnqueues int              `json:"forced_enqueues" yaml:"forced_enqueues"`
	EnqueueSkew    metrics.Skew     `json:"enqueue_skew" yaml:"enqueue_skew"`
	DequeueSkew    metrics.Skew     `json:"dequeue_skew" yaml:"dequeue_skew"`
	Histogram      []metrics.Bucket `json:"histogram" yaml:"histogram"`
	RankErrors     []uint64         `json:"rank_errors,omitempty" yaml:"rank_errors,omitempty"`
}

// FailureRow reports a unit of work that produced no result.
type FailureRow struct {
	Subqueues  int        `json:"subqueues" yaml:"subqueues"`
	Ops        int        `json:"ops" yaml:"ops"`
	Prefill    int        `json:"prefill" yaml:"prefill"`
	Heuristic  queue.Kind `json:"heuristic" yaml:"heuristic"`
	Repetition int        `json:"repetition" yaml:"repetition"`
	Seed       uint64     `json:"seed" yaml:"seed"`
	Error      string     `json:"error" yaml:"error"`
	Stack      string     `json:"stack,omitempty" yaml:"stack,omitempty"`
}

// DistributionRow carries the sorted distributions of one traced cell.
type DistributionRow struct {
	Subqueues            int        `json:"subqueues" yaml:"subqueues"`
	Ops                  int        `json:"ops" yaml:"ops"`
	Prefill              int        `json:"prefill" yaml:"prefill"`
	Heuristic            queue.Kind `json:"heuristic" yaml:"heuristic"`
	engine.Distributions `yaml:",inline"`
}

// Report is the serialisable outcome of one command.
type Report struct {
	ID            string            `json:"id" yaml:"id"`
	Mode          string            `json:"mode" yaml:"mode"`
	CreatedAt     time.Time         `json:"created_at" yaml:"created_at"`
	BaseSeed      uint64            `json:"base_seed" yaml:"base_seed"`
	Readout       metrics.Readout   `json:"readout" yaml:"readout"`
	TraceParent   string            `json:"trace_parent,omitempty" yaml:"trace_parent,omitempty"`
	Skipped       int               `json:"skipped,omitempty" yaml:"skipped,omitempty"`
	Rows          []Row             `json:"rows" yaml:"rows"`
	Failures      []FailureRow      `json:"failures" yaml:"failures"`
	Distributions []DistributionRow `json:"distributions,omitempty" yaml:"distributions,omitempty"`
	Thresholds    *ThresholdSummary `json:"thresholds,omitempty" yaml:"thresholds,omitempty"`
}

// NewReport flattens a sweep table. Rows follow the table's cell order;
// cells without a completed repetition produce no row.
func NewReport(meta Meta, table *sweep.Table) *Report {
	if meta.ID == "" {
		meta.ID = ulid.Make().String()
	}
	if meta.CreatedAt.IsZero() {
		meta.CreatedAt = time.Now()
	}
	readout, err := metrics.ParseReadout(string(meta.Readout))
	if err != nil {
		readout = metrics.ReadoutAverage
	}
	r := &Report{
		ID:          meta.ID,
		Mode:        meta.Mode,
		CreatedAt:   meta.CreatedAt.UTC(),
		BaseSeed:    meta.BaseSeed,
		Readout:     readout,
		TraceParent: meta.TraceParent,
		Rows:        []Row{},
		Failures:    []FailureRow{},
	}
	if table == nil {
		return r
	}
	r.Skipped = table.Skipped

	for _, c := range table.Cells {
		if c.Runs == 0 {
			continue
		}
		s := c.Summary
		r.Rows = append(r.Rows, Row{
			Subqueues:      c.Key.Subqueues,
			Samples:        c.Samples,
			Ops:            c.Key.Ops,
			Prefill:        c.Key.Prefill,
			Heuristic:      c.Key.Heuristic,
			Runs:           c.Runs,
			Expected:       c.Expected,
			ReadoutValue:   c.Readout(readout),
			Mean:           s.Mean,
			StdDev:         s.StdDev,
			P50:            s.P50,
			P90:            s.P90,
			P99:            s.P99,
			WorstOnePct:    s.WorstOnePercent,
			Max:            s.Max,
			Dequeues:       c.Dequeues,
			Fallbacks:      c.Fallbacks,
			ForcedEnqueues: c.ForcedEnqueues,
			EnqueueSkew:    c.EnqueueSkew,
			DequeueSkew:    c.DequeueSkew,
			Histogram:      c.Histogram,
			RankErrors:     c.RankErrors,
		})
		if c.Distributions != nil {
			r.Distributions = append(r.Distributions, DistributionRow{
				Subqueues:     c.Key.Subqueues,
				Ops:           c.Key.Ops,
				Prefill:       c.Key.Prefill,
				Heuristic:     c.Key.Heuristic,
				Distributions: *c.Distributions,
			})
		}
	}

	for _, f := range table.Failures {
		msg := ""
		if f.Err != nil {
			msg = f.Err.Error()
		}
		r.Failures = append(r.Failures, FailureRow{
			Subqueues:  f.Key.Subqueues,
			Ops:        f.Key.Ops,
			Prefill:    f.Key.Prefill,
			Heuristic:  f.Key.Heuristic,
			Repetition: f.Repetition,
			Seed:       f.Seed,
			Error:      msg,
			Stack:      f.Stack,
		})
	}
	return r
}

// PrintReport outputs a human-readable summary report.
func PrintReport(w io.Writer, r *Report) {
	fmt.Fprintf(w, "\n--- Relaxation Results (%s) ---\n", r.Mode)
	fmt.Fprintf(w, "Run ID:            %s\n", r.ID)
	fmt.Fprintf(w, "Base Seed:         %d\n", r.BaseSeed)
	fmt.Fprintf(w, "Readout:           %s\n", r.Readout)
	fmt.Fprintf(w, "Cells:             %d\n", len(r.Rows))
	fmt.Fprintf(w, "Failed Units:      %d\n", len(r.Failures))
	if r.Skipped > 0 {
		fmt.Fprintf(w, "Skipped Units:     %d\n", r.Skipped)
	}
	if r.TraceParent != "" {
		fmt.Fprintf(w, "Trace:             %s\n", r.TraceParent)
	}

	if len(r.Rows) == 1 {
		row := r.Rows[0]
		fmt.Fprintf(w, "\nConfiguration:     D=%d d=%d ops=%d prefill=%d heuristic=%s runs=%d\n",
			row.Subqueues, row.Samples, row.Ops, row.Prefill, row.Heuristic, row.Runs)
		fmt.Fprintln(w, "\nRank Error:")
		fmt.Fprintf(w, "  Dequeues:        %d\n", row.Dequeues)
		fmt.Fprintf(w, "  Mean:            %.3f\n", row.Mean)
		fmt.Fprintf(w, "  StdDev:          %.3f\n", row.StdDev)
		fmt.Fprintf(w, "  P50:             %d\n", row.P50)
		fmt.Fprintf(w, "  P90:             %d\n", row.P90)
		fmt.Fprintf(w, "  P99:             %d\n", row.P99)
		fmt.Fprintf(w, "  Max:             %d\n", row.Max)
		fmt.Fprintf(w, "  Readout:         %.3f\n", row.ReadoutValue)
		fmt.Fprintln(w, "\nLanes:")
		fmt.Fprintf(w, "  Enqueues/lane:   %.1f (stddev %.2f)\n", row.EnqueueSkew.Mean, row.EnqueueSkew.StdDev)
		fmt.Fprintf(w, "  Dequeues/lane:   %.1f (stddev %.2f)\n", row.DequeueSkew.Mean, row.DequeueSkew.StdDev)
		fmt.Fprintf(w, "  Fallbacks:       %d\n", row.Fallbacks)
		if row.ForcedEnqueues > 0 {
			fmt.Fprintf(w, "  Forced Enqueues: %d\n", row.ForcedEnqueues)
		}
	} else if len(r.Rows) > 1 {
		fmt.Fprintln(w, "\nCells:")
		fmt.Fprintf(w, "  %-10s %9s %10s %9s %5s %10s %10s %8s %8s\n",
			"heuristic", "subqueues", "ops", "prefill", "runs", "readout", "mean", "p99", "max")
		for _, row := range r.Rows {
			fmt.Fprintf(w, "  %-10s %9d %10d %9d %5d %10.3f %10.3f %8d %8d\n",
				row.Heuristic, row.Subqueues, row.Ops, row.Prefill, row.Runs,
				row.ReadoutValue, row.Mean, row.P99, row.Max)
		}
	}

	if len(r.Failures) > 0 {
		fmt.Fprintln(w, "\nFailures:")
		for _, f := range r.Failures {
			fmt.Fprintf(w, "  - D=%d ops=%d prefill=%d heuristic=%s repetition=%d seed=%d: %s\n",
				f.Subqueues, f.Ops, f.Prefill, f.Heuristic, f.Repetition, f.Seed, f.Error)
		}
	}
}

// PrintJSONReport outputs a JSON-formatted report.
func PrintJSONReport(w io.Writer, r *Report) error {
	enc := sonnet.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(r)
}
