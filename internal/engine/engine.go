package engine

import (
	"errors"
	"fmt"
	"math/rand/v2"

	"github.com/torosent/relaxsim/internal/metrics"
	"github.com/torosent/relaxsim/internal/queue"
)

// ErrInvariant is returned by runs with CheckInvariants when the structure,
// the rank index and the issued-op counts disagree.
var ErrInvariant = errors.New("invariant violated")

// Stream constants separate the sampling and op-mix generators of one seed.
const (
	sampleStream = 0x9e3779b97f4a7c15
	mixStream    = 0xc2b2ae3d27d4eb4f
)

// State is the phase of a run.
type State int

const (
	StatePrefilling State = iota
	StateMeasuring
	StateDone
)

func (s State) String() string {
	switch s {
	case StatePrefilling:
		return "prefilling"
	case StateMeasuring:
		return "measuring"
	case StateDone:
		return "done"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Options tune what a run records beyond rank errors.
type Options struct {
	Trace           bool // keep a DequeueSample per measured dequeue
	CheckInvariants bool // verify the structure after every operation
}

// DequeueSample is the trace entry of one measured dequeue.
type DequeueSample struct {
	Number       int        // 1-based measured dequeue number
	Item         queue.Item // dequeued item
	RankError    int
	Present      int
	LaneDequeues uint64
}

// Result is the outcome of one run.
type Result struct {
	Spec           Spec              `json:"spec"`
	RankErrors     []uint64          `json:"rank_errors,omitempty"`
	Enqueues       int               `json:"enqueues"`
	Dequeues       int               `json:"dequeues"`
	ForcedEnqueues int               `json:"forced_enqueues,omitempty"`
	Fallbacks      int               `json:"fallbacks"`
	Summary        metrics.Summary   `json:"summary"`
	Lanes          []queue.LaneStats `json:"lanes,omitempty"`
	EnqueueSkew    metrics.Skew      `json:"enqueue_skew"`
	DequeueSkew    metrics.Skew      `json:"dequeue_skew"`
	Trace          []DequeueSample   `json:"-"`
}

// Engine executes one Spec. It owns its queue structure and generators
// exclusively and is discarded after Run.
type Engine struct {
	spec  Spec
	opt   Options
	state State
	q     *queue.Structure
	mix   *rand.Rand
	res   *Result

	prefilled int
}

// New validates spec and prepares a run.
func New(spec Spec, opt Options) (*Engine, error) {
	spec.normalize()
	if err := spec.Validate(); err != nil {
		return nil, err
	}
	rng := rand.New(rand.NewPCG(spec.Seed, sampleStream))
	q, err := queue.New(queue.Options{
		Subqueues:    spec.Subqueues,
		Samples:      spec.Samples,
		Sampling:     spec.Sampling,
		Heuristic:    spec.Heuristic,
		CapacityHint: spec.Prefill + spec.Ops,
	}, rng)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}

	res := &Result{Spec: spec}
	if n := spec.Dequeues(); n >= 0 {
		res.RankErrors = make([]uint64, 0, n)
	}
	return &Engine{
		spec:  spec,
		opt:   opt,
		state: StatePrefilling,
		q:     q,
		mix:   rand.New(rand.NewPCG(spec.Seed, mixStream)),
		res:   res,
	}, nil
}

// State returns the current phase.
func (e *Engine) State() State {
	return e.state
}

// Run drives the engine from Prefilling to Done.
func (e *Engine) Run() (*Result, error) {
	if e.state != StatePrefilling {
		return nil, fmt.Errorf("engine already in state %s", e.state)
	}

	for i := 0; i < e.spec.Prefill; i++ {
		if _, err := e.q.Enqueue(); err != nil {
			return nil, fmt.Errorf("prefill enqueue %d: %w", i, err)
		}
		e.prefilled++
		if err := e.check(); err != nil {
			return nil, err
		}
	}

	e.state = StateMeasuring
	if e.spec.ResetCounters {
		e.q.ResetCounters()
	}

	for i := 0; i < e.spec.Ops; i++ {
		if err := e.step(i); err != nil {
			return nil, fmt.Errorf("op %d of %s: %w", i, e.spec.Label(), err)
		}
		if err := e.check(); err != nil {
			return nil, err
		}
	}

	e.state = StateDone
	e.finish()
	return e.res, nil
}

func (e *Engine) step(i int) error {
	switch e.nextOp(i) {
	case OpDequeue:
		d, err := e.q.Dequeue()
		if err != nil {
			return err
		}
		e.res.Dequeues++
		e.res.RankErrors = append(e.res.RankErrors, uint64(d.RankError))
		if d.Fallback {
			e.res.Fallbacks++
		}
		if e.opt.Trace {
			e.res.Trace = append(e.res.Trace, DequeueSample{
				Number:       e.res.Dequeues,
				Item:         d.Item,
				RankError:    d.RankError,
				Present:      d.Present,
				LaneDequeues: d.LaneDequeues,
			})
		}
	default:
		if _, err := e.q.Enqueue(); err != nil {
			return err
		}
		e.res.Enqueues++
	}
	return nil
}

func (e *Engine) nextOp(i int) Op {
	if e.spec.Script != nil {
		return e.spec.Script[i]
	}
	if e.spec.Mix == MixRandom {
		op := OpDequeue
		if e.mix.Float64() < e.spec.EnqueueProbability {
			op = OpEnqueue
		}
		if op == OpDequeue && e.q.Len() == 0 {
			e.res.ForcedEnqueues++
			op = OpEnqueue
		}
		return op
	}
	if i%2 == 0 {
		return OpEnqueue
	}
	return OpDequeue
}

// check compares the engine's own op count with what the structure holds.
func (e *Engine) check() error {
	if !e.opt.CheckInvariants {
		return nil
	}
	issued := e.prefilled + e.res.Enqueues - e.res.Dequeues
	if issued != e.q.Len() || e.q.Len() != e.q.Tracked() || e.q.Len() != e.q.LaneLenTotal() {
		return fmt.Errorf("%w in state %s: issued=%d len=%d tracked=%d lanes=%d",
			ErrInvariant, e.state, issued, e.q.Len(), e.q.Tracked(), e.q.LaneLenTotal())
	}
	return nil
}

func (e *Engine) finish() {
	res := e.res
	res.Summary = metrics.Summarize(res.RankErrors, int64(e.spec.Prefill+e.spec.Ops))
	res.Lanes = e.q.Lanes()

	enq := make([]uint64, len(res.Lanes))
	deq := make([]uint64, len(res.Lanes))
	for i, lane := range res.Lanes {
		enq[i] = lane.Enqueues
		deq[i] = lane.Dequeues
	}
	res.EnqueueSkew = metrics.LaneSkew(enq)
	res.DequeueSkew = metrics.LaneSkew(deq)
}

// Run is a shortcut for New followed by Engine.Run.
func Run(spec Spec, opt Options) (*Result, error) {
	e, err := New(spec, opt)
	if err != nil {
		return nil, err
	}
	return e.Run()
}
