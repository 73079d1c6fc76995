package sweep

import (
	"fmt"
	"sort"
	"strings"

	"github.com/torosent/relaxsim/internal/engine"
	"github.com/torosent/relaxsim/internal/queue"
)

// CellKey identifies one cell of a sweep. Repetitions of a cell share its key.
type CellKey struct {
	Subqueues int
	Ops       int
	Prefill   int
	Heuristic queue.Kind
}

func (k CellKey) String() string {
	return fmt.Sprintf("subqueues=%d ops=%d prefill=%d heuristic=%s", k.Subqueues, k.Ops, k.Prefill, k.Heuristic)
}

// Less orders keys by heuristic, subqueues, prefill, then ops.
func (k CellKey) Less(o CellKey) bool {
	if k.Heuristic != o.Heuristic {
		return k.Heuristic < o.Heuristic
	}
	if k.Subqueues != o.Subqueues {
		return k.Subqueues < o.Subqueues
	}
	if k.Prefill != o.Prefill {
		return k.Prefill < o.Prefill
	}
	return k.Ops < o.Ops
}

// Grid is the Cartesian product a sweep covers plus the settings shared by every unit.
type Grid struct {
	Subqueues  []int
	Ops        []int
	Prefill    []int
	Heuristics []queue.Kind

	Samples            int
	Sampling           queue.Sampling
	Mix                engine.Mix
	EnqueueProbability float64
	ResetCounters      bool

	// Runs is the number of repetitions per cell; 0 means 1.
	Runs int
	// Seed is the base seed every unit seed derives from.
	Seed uint64
	// FixedSeed runs repetition r with Seed+r instead of a derived seed.
	FixedSeed bool
}

// Unit is one independent simulation: a cell, a repetition and its seed.
type Unit struct {
	Key        CellKey
	Repetition int
	Spec       engine.Spec
}

func (g Grid) runs() int {
	if g.Runs < 1 {
		return 1
	}
	return g.Runs
}

// Cells returns every distinct cell key in report order.
func (g Grid) Cells() []CellKey {
	seen := make(map[CellKey]struct{})
	var keys []CellKey
	for _, h := range g.Heuristics {
		for _, d := range g.Subqueues {
			for _, p := range g.Prefill {
				for _, o := range g.Ops {
					k := CellKey{Subqueues: d, Ops: o, Prefill: p, Heuristic: h}
					if _, dup := seen[k]; dup {
						continue
					}
					seen[k] = struct{}{}
					keys = append(keys, k)
				}
			}
		}
	}
	sort.SliceStable(keys, func(i, j int) bool { return keys[i].Less(keys[j]) })
	return keys
}

// Expand lists every unit of work, cells in report order and repetitions
// ascending within a cell. Specs are not validated here.
func (g Grid) Expand() []Unit {
	cells := g.Cells()
	runs := g.runs()
	units := make([]Unit, 0, len(cells)*runs)
	for _, k := range cells {
		for r := 0; r < runs; r++ {
			seed := DeriveSeed(g.Seed, k, r)
			if g.FixedSeed {
				seed = g.Seed + uint64(r)
			}
			units = append(units, Unit{
				Key:        k,
				Repetition: r,
				Spec: engine.Spec{
					Subqueues:          k.Subqueues,
					Samples:            g.Samples,
					Sampling:           g.Sampling,
					Heuristic:          k.Heuristic,
					Prefill:            k.Prefill,
					Ops:                k.Ops,
					Mix:                g.Mix,
					EnqueueProbability: g.EnqueueProbability,
					ResetCounters:      g.ResetCounters,
					Seed:               seed,
				},
			})
		}
	}
	return units
}

// Validate checks the grid shape and every unit spec before anything runs.
// The returned error wraps engine.ErrInvalidConfig.
func (g Grid) Validate() error {
	var issues []string
	if len(g.Subqueues) == 0 {
		issues = append(issues, "no subqueue counts")
	}
	if len(g.Ops) == 0 {
		issues = append(issues, "no ops values")
	}
	if len(g.Prefill) == 0 {
		issues = append(issues, "no prefill values")
	}
	if len(g.Heuristics) == 0 {
		issues = append(issues, "no heuristics")
	}
	if g.Runs < 0 {
		issues = append(issues, fmt.Sprintf("runs must be >= 1, got %d", g.Runs))
	}
	if len(issues) > 0 {
		return fmt.Errorf("%w: %s", engine.ErrInvalidConfig, strings.Join(issues, "; "))
	}
	for _, u := range g.Expand() {
		if err := u.Spec.Validate(); err != nil {
			return err
		}
	}
	return nil
}

// DeriveSeed mixes the base seed with a cell's coordinates and the repetition
// number. The result depends on nothing else, so a unit's randomness is the
// same whatever the worker count or completion order.
func DeriveSeed(base uint64, key CellKey, repetition int) uint64 {
	h := splitmix64(base)
	h = splitmix64(h ^ uint64(key.Subqueues))
	h = splitmix64(h ^ uint64(key.Ops))
	h = splitmix64(h ^ uint64(key.Prefill))
	for i := 0; i < len(key.Heuristic); i++ {
		h = splitmix64(h ^ uint64(key.Heuristic[i]))
	}
	return splitmix64(h ^ uint64(repetition))
}

func splitmix64(x uint64) uint64 {
	x += 0x9e3779b97f4a7c15
	x = (x ^ (x >> 30)) * 0xbf58476d1ce4e5b9
	x = (x ^ (x >> 27)) * 0x94d049bb133111eb
	return x ^ (x >> 31)
}
