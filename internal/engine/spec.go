package engine

import (
	"errors"
	"fmt"
	"strings"

	"github.com/torosent/relaxsim/internal/queue"
)

// ErrInvalidConfig is returned for configurations rejected before a run starts.
var ErrInvalidConfig = errors.New("invalid config")

// Mix names the policy that orders enqueues and dequeues after prefill.
type Mix string

const (
	// MixAlternating issues enqueue, dequeue, enqueue, ... starting with an enqueue.
	MixAlternating Mix = "alternating"
	// MixRandom issues an enqueue with probability EnqueueProbability, else a
	// dequeue. A dequeue drawn while the queue is empty becomes an enqueue.
	MixRandom Mix = "random"
)

// ParseMix converts a user supplied name into a Mix.
func ParseMix(s string) (Mix, error) {
	switch m := Mix(strings.ToLower(strings.TrimSpace(s))); m {
	case "", MixAlternating:
		return MixAlternating, nil
	case MixRandom:
		return MixRandom, nil
	}
	return "", fmt.Errorf("unknown op mix %q (supported: alternating, random)", s)
}

// Op is one measured operation in a scripted run.
type Op uint8

const (
	OpEnqueue Op = iota
	OpDequeue
)

func (o Op) String() string {
	if o == OpDequeue {
		return "dequeue"
	}
	return "enqueue"
}

// Spec fully determines one simulation run.
type Spec struct {
	Subqueues          int            `json:"subqueues" yaml:"subqueues"`
	Samples            int            `json:"samples" yaml:"samples"`
	Sampling           queue.Sampling `json:"sampling" yaml:"sampling"`
	Heuristic          queue.Kind     `json:"heuristic" yaml:"heuristic"`
	Prefill            int            `json:"prefill" yaml:"prefill"`
	Ops                int            `json:"ops" yaml:"ops"`
	Mix                Mix            `json:"mix" yaml:"mix"`
	EnqueueProbability float64        `json:"enqueue_probability" yaml:"enqueue_probability"`
	ResetCounters      bool           `json:"reset_counters,omitempty" yaml:"reset_counters,omitempty"`
	Seed               uint64         `json:"seed" yaml:"seed"`

	// Script replaces Mix when set; it must hold exactly Ops entries.
	Script []Op `json:"-" yaml:"-"`
}

// normalize fills defaults for optional fields.
func (s *Spec) normalize() {
	if s.Samples == 0 {
		s.Samples = 2
	}
	if s.Sampling == "" {
		s.Sampling = queue.SamplingNaive
	}
	if s.Heuristic == "" {
		s.Heuristic = queue.KindLength
	}
	if s.Mix == "" {
		s.Mix = MixAlternating
	}
}

// Validate reports every problem with the spec in one error wrapping ErrInvalidConfig.
func (s Spec) Validate() error {
	s.normalize()
	var issues []string
	if s.Subqueues < 1 {
		issues = append(issues, fmt.Sprintf("subqueues must be >= 1, got %d", s.Subqueues))
	}
	if s.Samples < 1 {
		issues = append(issues, fmt.Sprintf("samples must be >= 1, got %d", s.Samples))
	}
	if s.Ops < 1 {
		issues = append(issues, fmt.Sprintf("ops must be >= 1, got %d", s.Ops))
	}
	if s.Prefill < 1 {
		issues = append(issues, fmt.Sprintf("prefill must be >= 1, got %d", s.Prefill))
	}
	if _, err := queue.NewHeuristic(s.Heuristic); err != nil {
		issues = append(issues, err.Error())
	}
	if s.Sampling != queue.SamplingNaive && s.Sampling != queue.SamplingUniques {
		issues = append(issues, fmt.Sprintf("unknown sampling %q", s.Sampling))
	}
	if s.Mix != MixAlternating && s.Mix != MixRandom {
		issues = append(issues, fmt.Sprintf("unknown op mix %q", s.Mix))
	}
	if s.EnqueueProbability < 0 || s.EnqueueProbability > 1 {
		issues = append(issues, fmt.Sprintf("enqueue probability must be within [0, 1], got %g", s.EnqueueProbability))
	}
	if s.Script != nil && len(s.Script) != s.Ops {
		issues = append(issues, fmt.Sprintf("script holds %d ops, want %d", len(s.Script), s.Ops))
	}
	if len(issues) > 0 {
		return fmt.Errorf("%w %s: %s", ErrInvalidConfig, s.Label(), strings.Join(issues, "; "))
	}
	return nil
}

// Label is a compact human readable identity used in errors and logs.
func (s Spec) Label() string {
	return fmt.Sprintf("{subqueues=%d ops=%d prefill=%d heuristic=%s seed=%d}",
		s.Subqueues, s.Ops, s.Prefill, s.Heuristic, s.Seed)
}

// Dequeues returns how many dequeues the measuring phase issues when that
// number is fixed by the mix, or -1 when it depends on the random draw.
func (s Spec) Dequeues() int {
	switch {
	case s.Script != nil:
		n := 0
		for _, op := range s.Script {
			if op == OpDequeue {
				n++
			}
		}
		return n
	case s.Mix == MixRandom:
		return -1
	default:
		return s.Ops / 2
	}
}
