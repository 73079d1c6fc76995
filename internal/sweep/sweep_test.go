package sweep_test

import (
	"context"
	"errors"
	"reflect"
	"strings"
	"sync"
	"testing"

	"github.com/torosent/relaxsim/internal/engine"
	"github.com/torosent/relaxsim/internal/metrics"
	"github.com/torosent/relaxsim/internal/queue"
	"github.com/torosent/relaxsim/internal/sweep"
)

type recordingLogger struct {
	mu   sync.Mutex
	errs []error
}

func (l *recordingLogger) LogFailure(err error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.errs = append(l.errs, err)
}

func smallGrid() sweep.Grid {
	return sweep.Grid{
		Subqueues:  []int{4},
		Ops:        []int{1000, 2000},
		Prefill:    []int{100, 250},
		Heuristics: []queue.Kind{queue.KindLength},
		Seed:       42,
	}
}

func TestFourCellSweep(t *testing.T) {
	table, err := sweep.New(sweep.Options{Workers: 4}).Run(context.Background(), smallGrid())
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if len(table.Cells) != 4 {
		t.Fatalf("cells = %d, want 4", len(table.Cells))
	}
	if len(table.Failures) != 0 {
		t.Fatalf("failures = %v, want none", table.Failures)
	}
	for _, c := range table.Cells {
		if !c.Complete() {
			t.Errorf("cell %s incomplete", c.Key)
		}
		if c.Dequeues != c.Key.Ops/2 {
			t.Errorf("cell %s dequeues = %d, want %d", c.Key, c.Dequeues, c.Key.Ops/2)
		}
		if c.Summary.Count != int64(c.Dequeues) {
			t.Errorf("cell %s summary count = %d, want %d", c.Key, c.Summary.Count, c.Dequeues)
		}
		if len(c.Histogram) == 0 {
			t.Errorf("cell %s has no histogram", c.Key)
		}
	}
	for i := 1; i < len(table.Cells); i++ {
		if !table.Cells[i-1].Key.Less(table.Cells[i].Key) {
			t.Fatalf("cells not in report order: %s before %s", table.Cells[i-1].Key, table.Cells[i].Key)
		}
	}

	// Each cell reproduces on its own.
	for _, c := range table.Cells {
		g := smallGrid()
		g.Ops = []int{c.Key.Ops}
		g.Prefill = []int{c.Key.Prefill}
		single, err := sweep.New(sweep.Options{Workers: 1}).Run(context.Background(), g)
		if err != nil {
			t.Fatalf("Run() error = %v", err)
		}
		if !reflect.DeepEqual(single.Cells[0], c) {
			t.Errorf("cell %s differs when run alone", c.Key)
		}
	}
}

func TestResultsIndependentOfWorkerCount(t *testing.T) {
	g := smallGrid()
	g.Subqueues = []int{1, 4, 16}
	g.Heuristics = queue.Kinds
	g.Runs = 3
	g.Mix = engine.MixRandom
	g.EnqueueProbability = 0.5

	one, err := sweep.New(sweep.Options{Workers: 1, KeepErrors: true}).Run(context.Background(), g)
	if err != nil {
		t.Fatalf("Run(1 worker) error = %v", err)
	}
	eight, err := sweep.New(sweep.Options{Workers: 8, KeepErrors: true}).Run(context.Background(), g)
	if err != nil {
		t.Fatalf("Run(8 workers) error = %v", err)
	}
	if !reflect.DeepEqual(one, eight) {
		t.Fatal("tables differ between 1 and 8 workers")
	}
}

func TestFailedUnitsAreIsolated(t *testing.T) {
	g := smallGrid()
	g.Runs = 2
	bad := sweep.CellKey{Subqueues: 4, Ops: 2000, Prefill: 250, Heuristic: queue.KindLength}

	simulate := func(spec engine.Spec, opt engine.Options) (*engine.Result, error) {
		if spec.Ops == bad.Ops && spec.Prefill == bad.Prefill {
			if spec.Seed == sweep.DeriveSeed(g.Seed, bad, 0) {
				panic("boom")
			}
			return nil, queue.ErrEmptyQueue
		}
		return engine.Run(spec, opt)
	}
	logger := &recordingLogger{}
	d := sweep.New(sweep.Options{Workers: 3, Simulate: simulate, Logger: logger})
	table, err := d.Run(context.Background(), g)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	if len(table.Failures) != 2 {
		t.Fatalf("failures = %d, want 2", len(table.Failures))
	}
	var panicked, empty bool
	for _, f := range table.Failures {
		if f.Key != bad {
			t.Errorf("failure key = %s, want %s", f.Key, bad)
		}
		switch {
		case errors.Is(f, sweep.ErrWorkerPanic):
			panicked = true
			if f.Repetition != 0 || f.Stack == "" {
				t.Errorf("panic failure = %+v, want repetition 0 with a stack", f)
			}
		case errors.Is(f, queue.ErrEmptyQueue):
			empty = true
			if f.Repetition != 1 || f.Seed != sweep.DeriveSeed(g.Seed, bad, 1) {
				t.Errorf("empty failure = %+v, want repetition 1 with its seed", f)
			}
		}
	}
	if !panicked || !empty {
		t.Fatalf("failures = %v, want one panic and one empty queue", table.Failures)
	}
	if len(logger.errs) != 2 {
		t.Errorf("logged %d failures, want 2", len(logger.errs))
	}

	for _, c := range table.Cells {
		if c.Key == bad {
			if c.Runs != 0 || c.Complete() {
				t.Errorf("failed cell runs = %d, want 0", c.Runs)
			}
			continue
		}
		if !c.Complete() {
			t.Errorf("cell %s incomplete", c.Key)
		}
	}
	done, failed, total := d.Progress().Snapshot()
	if done != 8 || failed != 2 || total != 8 {
		t.Errorf("progress = %d/%d failed %d, want 8/8 failed 2", done, total, failed)
	}
	if got := table.FailureRate(); got != 0.25 {
		t.Errorf("FailureRate() = %v, want 0.25", got)
	}
}

func TestFailFastAborts(t *testing.T) {
	g := smallGrid()
	g.Runs = 4
	simulate := func(spec engine.Spec, opt engine.Options) (*engine.Result, error) {
		return nil, errors.New("always fails")
	}
	table, err := sweep.New(sweep.Options{Workers: 1, FailFast: true, Simulate: simulate}).Run(context.Background(), g)
	if !errors.Is(err, sweep.ErrAborted) {
		t.Fatalf("Run() error = %v, want ErrAborted", err)
	}
	if len(table.Failures) != 1 || table.Skipped != 15 {
		t.Fatalf("failures = %d skipped = %d, want 1 and 15", len(table.Failures), table.Skipped)
	}
}

func TestInvalidGridRejectedBeforeRunning(t *testing.T) {
	calls := 0
	simulate := func(spec engine.Spec, opt engine.Options) (*engine.Result, error) {
		calls++
		return engine.Run(spec, opt)
	}
	tests := []struct {
		name   string
		mutate func(*sweep.Grid)
	}{
		{"no ops", func(g *sweep.Grid) { g.Ops = nil }},
		{"zero prefill", func(g *sweep.Grid) { g.Prefill = []int{100, 0} }},
		{"zero subqueues", func(g *sweep.Grid) { g.Subqueues = []int{0} }},
		{"bad heuristic", func(g *sweep.Grid) { g.Heuristics = []queue.Kind{"fastest"} }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g := smallGrid()
			tt.mutate(&g)
			_, err := sweep.New(sweep.Options{Simulate: simulate}).Run(context.Background(), g)
			if !errors.Is(err, engine.ErrInvalidConfig) {
				t.Fatalf("Run() error = %v, want ErrInvalidConfig", err)
			}
		})
	}
	if calls != 0 {
		t.Fatalf("simulate called %d times for invalid grids", calls)
	}
}

func TestExpandAndSeeds(t *testing.T) {
	g := smallGrid()
	g.Runs = 2
	g.Heuristics = []queue.Kind{queue.KindOperation, queue.KindLength}
	units := g.Expand()
	if len(units) != 16 {
		t.Fatalf("units = %d, want 16", len(units))
	}
	seeds := map[uint64]bool{}
	for _, u := range units {
		if seeds[u.Spec.Seed] {
			t.Fatalf("duplicate seed %d", u.Spec.Seed)
		}
		seeds[u.Spec.Seed] = true
		if u.Spec.Seed != sweep.DeriveSeed(42, u.Key, u.Repetition) {
			t.Errorf("unit %s/%d seed mismatch", u.Key, u.Repetition)
		}
	}
	if units[0].Key.Heuristic != queue.KindLength {
		t.Errorf("first unit heuristic = %s, want length", units[0].Key.Heuristic)
	}

	g.FixedSeed = true
	units = g.Expand()
	if units[0].Spec.Seed != 42 || units[1].Spec.Seed != 43 {
		t.Errorf("fixed seeds = %d, %d, want 42, 43", units[0].Spec.Seed, units[1].Spec.Seed)
	}

	g.Ops = []int{1000, 1000}
	if got := len(g.Cells()); got != 4 {
		t.Errorf("Cells() with duplicate ops = %d, want 4", got)
	}
}

func TestReadoutAndDistributions(t *testing.T) {
	g := smallGrid()
	g.Ops = []int{1000}
	g.Prefill = []int{100}
	g.Runs = 3
	table, err := sweep.New(sweep.Options{Trace: true, KeepErrors: true}).Run(context.Background(), g)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	c := table.Cells[0]
	if len(c.Repetitions) != 3 || len(c.RankErrors) != 1500 {
		t.Fatalf("repetitions = %d errors = %d, want 3 and 1500", len(c.Repetitions), len(c.RankErrors))
	}
	want := (c.Repetitions[0].Mean + c.Repetitions[1].Mean + c.Repetitions[2].Mean) / 3
	if got := c.Readout(metrics.ReadoutAverage); got != want {
		t.Errorf("Readout(average) = %v, want %v", got, want)
	}
	if c.Distributions == nil || len(c.Distributions.RankErrors) != 500 {
		t.Fatalf("distributions missing or wrong size")
	}
	if !strings.Contains(c.Key.String(), "ops=1000") {
		t.Errorf("Key.String() = %q", c.Key.String())
	}
}

func TestContextCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	table, err := sweep.New(sweep.Options{Workers: 2}).Run(ctx, smallGrid())
	if !errors.Is(err, sweep.ErrAborted) {
		t.Fatalf("Run() error = %v, want ErrAborted", err)
	}
	if table.Skipped != 4 {
		t.Errorf("skipped = %d, want 4", table.Skipped)
	}
}
