package sweep

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"runtime/debug"
	"sync"

	"code.hybscloud.com/atomix"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/torosent/relaxsim/internal/engine"
	"github.com/torosent/relaxsim/internal/metrics"
	"github.com/torosent/relaxsim/internal/tracing"
)

var (
	// ErrWorkerPanic wraps the value recovered from a panicking unit.
	ErrWorkerPanic = errors.New("worker panic")
	// ErrAborted is returned when a sweep stops before every unit ran.
	ErrAborted = errors.New("sweep aborted")
)

// FailureLogger is told about every failed unit as it happens.
type FailureLogger interface {
	LogFailure(err error)
}

// SimulateFunc runs one unit. engine.Run is the default.
type SimulateFunc func(engine.Spec, engine.Options) (*engine.Result, error)

// Options configure a Driver.
type Options struct {
	Workers         int  // 0 means GOMAXPROCS
	FailFast        bool // abort on the first failed unit
	KeepErrors      bool // retain raw rank errors in the table
	Trace           bool // trace dequeues and build distributions
	CheckInvariants bool
	Tracer          trace.Tracer
	Logger          FailureLogger
	Simulate        SimulateFunc
}

func (o *Options) normalize() {
	if o.Workers <= 0 {
		o.Workers = runtime.GOMAXPROCS(0)
	}
	if o.Tracer == nil {
		o.Tracer = noop.NewTracerProvider().Tracer("relaxsim")
	}
	if o.Simulate == nil {
		o.Simulate = engine.Run
	}
}

// Progress exposes live counters of a running sweep.
type Progress struct {
	total  atomix.Int64
	done   atomix.Int64
	failed atomix.Int64
}

// Snapshot returns finished units (failed included), failed units and the total.
func (p *Progress) Snapshot() (done, failed, total int64) {
	return p.done.LoadAcquire(), p.failed.LoadAcquire(), p.total.LoadAcquire()
}

// Driver runs the units of a grid on a fixed pool of workers.
type Driver struct {
	opt      Options
	progress Progress
}

// New creates a driver.
func New(opt Options) *Driver {
	opt.normalize()
	return &Driver{opt: opt}
}

// Progress returns the driver's live counters.
func (d *Driver) Progress() *Progress {
	return &d.progress
}

// Run validates the grid, executes every unit and returns the aggregated table.
// Invalid grids are rejected before any unit starts. Failed units are listed in
// the table; the table is also returned alongside ErrAborted when the context is
// cancelled or FailFast stops the sweep.
func (d *Driver) Run(ctx context.Context, g Grid) (*Table, error) {
	if err := g.Validate(); err != nil {
		return nil, err
	}
	units := g.Expand()
	d.progress.done.StoreRelease(0)
	d.progress.failed.StoreRelease(0)
	d.progress.total.StoreRelease(int64(len(units)))

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	ctx, sweepSpan := tracing.StartSpan(ctx, d.opt.Tracer, "sweep",
		attribute.Int("relaxsim.units", len(units)),
		attribute.Int("relaxsim.workers", d.opt.Workers),
	)

	var cursor atomix.Uint64
	results := make(chan *outcome, d.opt.Workers)

	var wg sync.WaitGroup
	wg.Add(d.opt.Workers)
	for w := 0; w < d.opt.Workers; w++ {
		go func() {
			defer wg.Done()
			for ctx.Err() == nil {
				i := cursor.AddAcqRel(1) - 1
				if i >= uint64(len(units)) {
					return
				}
				o := d.execute(ctx, int(i), units[i])
				if o.failure != nil && d.opt.FailFast {
					cancel()
				}
				results <- o
			}
		}()
	}
	go func() {
		wg.Wait()
		close(results)
	}()

	outcomes := make([]*outcome, len(units))
	for o := range results {
		outcomes[o.index] = o
		d.progress.done.AddAcqRel(1)
		if o.failure == nil {
			continue
		}
		d.progress.failed.AddAcqRel(1)
		if d.opt.Logger != nil {
			d.opt.Logger.LogFailure(*o.failure)
		}
	}

	table := buildTable(units, outcomes, g.Samples)
	var err error
	if table.Skipped > 0 {
		err = fmt.Errorf("%w: %d of %d units not run", ErrAborted, table.Skipped, len(units))
	}
	tracing.EndSpan(sweepSpan, err,
		attribute.Int("relaxsim.failures", len(table.Failures)),
	)
	return table, err
}

func (d *Driver) execute(ctx context.Context, index int, u Unit) (out *outcome) {
	_, span := tracing.StartSpan(ctx, d.opt.Tracer, "simulate cell",
		attribute.Int("relaxsim.subqueues", u.Key.Subqueues),
		attribute.Int("relaxsim.ops", u.Key.Ops),
		attribute.Int("relaxsim.prefill", u.Key.Prefill),
		attribute.String("relaxsim.heuristic", string(u.Key.Heuristic)),
		attribute.Int("relaxsim.repetition", u.Repetition),
		attribute.Int64("relaxsim.seed", int64(u.Spec.Seed)),
	)

	out = &outcome{index: index}
	defer func() {
		if r := recover(); r != nil {
			out.result, out.collector = nil, nil
			out.failure = &Failure{
				Key:        u.Key,
				Repetition: u.Repetition,
				Seed:       u.Spec.Seed,
				Err:        fmt.Errorf("%w: %v", ErrWorkerPanic, r),
				Stack:      string(debug.Stack()),
			}
		}
		var err error
		if out.failure != nil {
			err = out.failure.Err
		}
		tracing.EndSpan(span, err)
	}()

	res, err := d.opt.Simulate(u.Spec, engine.Options{
		Trace:           d.opt.Trace,
		CheckInvariants: d.opt.CheckInvariants,
	})
	if err == nil && res == nil {
		err = errors.New("simulation returned no result")
	}
	if err != nil {
		out.failure = &Failure{Key: u.Key, Repetition: u.Repetition, Seed: u.Spec.Seed, Err: err}
		return out
	}

	col := metrics.NewCollector(int64(u.Spec.Prefill + u.Spec.Ops))
	col.RecordAll(res.RankErrors)
	if !d.opt.KeepErrors {
		res.RankErrors = nil
	}
	out.result = res
	out.collector = col
	return out
}
