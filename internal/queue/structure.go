// Package queue implements the sequential model of a choice-of-d relaxed FIFO
// queue: an array of FIFO lanes, a sampler and a lane selection heuristic.
//
// Every enqueued item gets the next value of a per-structure insertion
// counter and is registered in a rankindex.Index, so a dequeue can report its
// rank error: the number of still-present items that were inserted earlier.
package queue

import (
	"errors"
	"fmt"
	"math/rand/v2"
	"strings"

	"github.com/torosent/relaxsim/internal/rankindex"
)

var (
	// ErrEmptyQueue is returned when dequeuing from a structure with no items.
	ErrEmptyQueue = errors.New("queue: empty")
	// ErrInvalidOptions is returned by New for unusable options.
	ErrInvalidOptions = errors.New("queue: invalid options")
)

// Sampling selects how candidate lanes are drawn.
type Sampling string

const (
	// SamplingNaive draws every candidate uniformly with replacement.
	SamplingNaive Sampling = "naive"
	// SamplingUniques draws distinct lanes; the sample count is capped at the lane count.
	SamplingUniques Sampling = "uniques"
)

// ParseSampling converts a user supplied name into a Sampling.
func ParseSampling(s string) (Sampling, error) {
	switch Sampling(strings.ToLower(strings.TrimSpace(s))) {
	case SamplingNaive, "":
		return SamplingNaive, nil
	case SamplingUniques:
		return SamplingUniques, nil
	}
	return "", fmt.Errorf("unknown sampling %q (supported: naive, uniques)", s)
}

// Options configure a Structure.
type Options struct {
	Subqueues    int      // number of lanes, >= 1
	Samples      int      // candidates per operation (0 means 2)
	Sampling     Sampling // empty means naive
	Heuristic    Kind
	CapacityHint int // expected number of enqueues, sizes the rank index
}

// Dequeued describes one successful dequeue.
type Dequeued struct {
	Item      Item
	RankError int  // present items inserted before Item at the time of the dequeue
	Present   int  // items present immediately before the dequeue
	Lane      int  // lane the item was taken from
	Fallback  bool // the heuristic's first choice was empty

	LaneDequeues uint64 // the lane's dequeue total, this one included
}

// LaneStats is a snapshot of one lane's counters.
type LaneStats struct {
	Len      int    `json:"len"`
	Enqueues uint64 `json:"enqueues"`
	Dequeues uint64 `json:"dequeues"`
}

// Structure is a set of FIFO lanes behind choice-of-d routing. It is not safe
// for concurrent use.
type Structure struct {
	lanes     []Subqueue
	heuristic Heuristic
	samples   int
	sampling  Sampling
	rng       *rand.Rand
	ranks     *rankindex.Index

	next       uint64 // next insertion index
	dequeued   uint64
	candidates []int
	perm       []int
}

// New builds an empty Structure driven by rng.
func New(opt Options, rng *rand.Rand) (*Structure, error) {
	if opt.Subqueues < 1 {
		return nil, fmt.Errorf("%w: subqueue count must be >= 1, got %d", ErrInvalidOptions, opt.Subqueues)
	}
	if opt.Samples == 0 {
		opt.Samples = 2
	}
	if opt.Samples < 1 {
		return nil, fmt.Errorf("%w: sample count must be >= 1, got %d", ErrInvalidOptions, opt.Samples)
	}
	if opt.Sampling == "" {
		opt.Sampling = SamplingNaive
	}
	if opt.Sampling != SamplingNaive && opt.Sampling != SamplingUniques {
		return nil, fmt.Errorf("%w: unknown sampling %q", ErrInvalidOptions, opt.Sampling)
	}
	if opt.Sampling == SamplingUniques && opt.Samples > opt.Subqueues {
		opt.Samples = opt.Subqueues
	}
	if rng == nil {
		return nil, fmt.Errorf("%w: nil random source", ErrInvalidOptions)
	}
	h, err := NewHeuristic(opt.Heuristic)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidOptions, err)
	}

	s := &Structure{
		lanes:      make([]Subqueue, opt.Subqueues),
		heuristic:  h,
		samples:    opt.Samples,
		sampling:   opt.Sampling,
		rng:        rng,
		ranks:      rankindex.New(opt.CapacityHint),
		candidates: make([]int, opt.Samples),
	}
	if opt.Sampling == SamplingUniques {
		s.perm = make([]int, opt.Subqueues)
		for i := range s.perm {
			s.perm[i] = i
		}
	}
	return s, nil
}

// Enqueue inserts a fresh item and returns it.
func (s *Structure) Enqueue() (Item, error) {
	idx := s.next
	if err := s.ranks.Insert(idx); err != nil {
		return Item{}, err
	}
	s.next++

	lane := s.choose(s.heuristic.EnqueueKey, s.sample())
	it := Item{Index: idx, Lane: lane, LaneSeq: s.lanes[lane].Enqueues()}
	s.lanes[lane].PushTail(it)
	return it, nil
}

// Dequeue removes an item chosen by the heuristic and reports its rank error.
//
// When the chosen lane is empty the heuristic is re-applied to the non-empty
// sampled lanes; when every sampled lane is empty the lanes are scanned
// round-robin from the chosen index and the first non-empty one is used.
func (s *Structure) Dequeue() (Dequeued, error) {
	if s.Len() == 0 {
		return Dequeued{}, ErrEmptyQueue
	}

	cands := s.sample()
	lane := s.choose(s.heuristic.DequeueKey, cands)
	fallback := false
	if s.lanes[lane].Len() == 0 {
		fallback = true
		lane = s.fallbackLane(lane, cands)
	}

	it, err := s.lanes[lane].PopHead()
	if err != nil {
		return Dequeued{}, err
	}

	present := s.ranks.Len()
	rankErr := s.ranks.CountLess(it.Index)
	if err := s.ranks.Remove(it.Index); err != nil {
		return Dequeued{}, fmt.Errorf("lane %d returned untracked item: %w", lane, err)
	}
	s.dequeued++

	return Dequeued{
		Item:      it,
		RankError: rankErr,
		Present:   present,
		Lane:      lane,
		Fallback:  fallback,

		LaneDequeues: s.lanes[lane].Dequeues(),
	}, nil
}

// Len returns the number of items held across all lanes.
func (s *Structure) Len() int {
	return int(s.next - s.dequeued)
}

// Subqueues returns the number of lanes.
func (s *Structure) Subqueues() int {
	return len(s.lanes)
}

// Issued returns the number of enqueues and dequeues performed so far.
func (s *Structure) Issued() (enqueues, dequeues uint64) {
	return s.next, s.dequeued
}

// Tracked returns the size of the rank index's present set.
func (s *Structure) Tracked() int {
	return s.ranks.Len()
}

// LaneLenTotal sums the lane lengths. It equals Len unless an invariant broke.
func (s *Structure) LaneLenTotal() int {
	total := 0
	for i := range s.lanes {
		total += s.lanes[i].Len()
	}
	return total
}

// Lanes snapshots every lane's counters.
func (s *Structure) Lanes() []LaneStats {
	out := make([]LaneStats, len(s.lanes))
	for i := range s.lanes {
		out[i] = LaneStats{
			Len:      s.lanes[i].Len(),
			Enqueues: s.lanes[i].Enqueues(),
			Dequeues: s.lanes[i].Dequeues(),
		}
	}
	return out
}

// ResetCounters zeroes the heuristic counters of every lane.
func (s *Structure) ResetCounters() {
	for i := range s.lanes {
		s.lanes[i].ResetCounters()
	}
}

// sample fills the candidate buffer. With one lane every candidate is 0.
func (s *Structure) sample() []int {
	n := len(s.lanes)
	if s.sampling == SamplingUniques {
		for i := range s.candidates {
			j := i + s.rng.IntN(n-i)
			s.perm[i], s.perm[j] = s.perm[j], s.perm[i]
			s.candidates[i] = s.perm[i]
		}
		return s.candidates
	}
	for i := range s.candidates {
		if n == 1 {
			s.candidates[i] = 0
			continue
		}
		s.candidates[i] = s.rng.IntN(n)
	}
	return s.candidates
}

// choose returns the candidate with the lowest key. Ties are kept
// reservoir-style, the k-th tied candidate replacing the pick with
// probability 1/k, so every tied sample slot is equally likely.
func (s *Structure) choose(key func(*Subqueue) uint64, cands []int) int {
	best := cands[0]
	bestKey := key(&s.lanes[best])
	ties := 1
	for _, c := range cands[1:] {
		k := key(&s.lanes[c])
		switch {
		case k < bestKey:
			best, bestKey, ties = c, k, 1
		case k == bestKey:
			ties++
			if s.rng.IntN(ties) == 0 {
				best = c
			}
		}
	}
	return best
}

func (s *Structure) fallbackLane(chosen int, cands []int) int {
	nonEmpty := make([]int, 0, len(cands))
	for _, c := range cands {
		if s.lanes[c].Len() > 0 {
			nonEmpty = append(nonEmpty, c)
		}
	}
	if len(nonEmpty) > 0 {
		return s.choose(s.heuristic.DequeueKey, nonEmpty)
	}

	n := len(s.lanes)
	for step := 1; step < n; step++ {
		lane := (chosen + step) % n
		if s.lanes[lane].Len() > 0 {
			return lane
		}
	}
	return chosen
}
