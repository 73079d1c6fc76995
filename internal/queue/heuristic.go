package queue

import (
	"fmt"
	"math/rand/v2"
	"strings"
)

// Kind names a lane selection heuristic.
type Kind string

const (
	// KindLength routes by current lane length (d-RA).
	KindLength Kind = "length"
	// KindOperation routes by the per-lane operation counter (d-CBO).
	KindOperation Kind = "operation"
	// KindProgress balances enqueue and dequeue counts separately: enqueue
	// to the lane with fewest enqueues, dequeue from the lane with fewest dequeues.
	KindProgress Kind = "progress"
)

// Kinds lists every supported heuristic.
var Kinds = []Kind{KindLength, KindOperation, KindProgress}

// ParseKind converts a user supplied name into a Kind.
func ParseKind(s string) (Kind, error) {
	k := Kind(strings.ToLower(strings.TrimSpace(s)))
	for _, known := range Kinds {
		if k == known {
			return k, nil
		}
	}
	return "", fmt.Errorf("unknown heuristic %q (supported: length, operation, progress)", s)
}

// Heuristic picks one of two sampled lanes for an operation. Both Choose
// methods must return a or b.
//
// EnqueueKey and DequeueKey rank a single lane; the lane with the lower key
// wins. Structure uses the keys to pick among d candidates with uniform tie
// breaking, and the Choose methods are the two-lane case of the same order.
type Heuristic interface {
	Kind() Kind
	EnqueueKey(lane *Subqueue) uint64
	DequeueKey(lane *Subqueue) uint64
	ChooseForEnqueue(lanes []Subqueue, a, b int, rng *rand.Rand) int
	ChooseForDequeue(lanes []Subqueue, a, b int, rng *rand.Rand) int
}

// NewHeuristic returns the strategy for kind.
func NewHeuristic(kind Kind) (Heuristic, error) {
	switch kind {
	case KindLength:
		return lengthHeuristic{}, nil
	case KindOperation:
		return operationHeuristic{}, nil
	case KindProgress:
		return progressHeuristic{}, nil
	default:
		return nil, fmt.Errorf("unknown heuristic %q", kind)
	}
}

type lengthHeuristic struct{}

func (lengthHeuristic) Kind() Kind { return KindLength }

// Shortest lane takes the enqueue, longest lane serves the dequeue.
func (lengthHeuristic) EnqueueKey(l *Subqueue) uint64 { return uint64(l.Len()) }
func (lengthHeuristic) DequeueKey(l *Subqueue) uint64 { return ^uint64(l.Len()) }

func (h lengthHeuristic) ChooseForEnqueue(lanes []Subqueue, a, b int, rng *rand.Rand) int {
	return pickLower(h.EnqueueKey, lanes, a, b, rng)
}

func (h lengthHeuristic) ChooseForDequeue(lanes []Subqueue, a, b int, rng *rand.Rand) int {
	return pickLower(h.DequeueKey, lanes, a, b, rng)
}

type operationHeuristic struct{}

func (operationHeuristic) Kind() Kind { return KindOperation }

func (operationHeuristic) EnqueueKey(l *Subqueue) uint64 { return l.Ops() }
func (operationHeuristic) DequeueKey(l *Subqueue) uint64 { return ^l.Ops() }

func (h operationHeuristic) ChooseForEnqueue(lanes []Subqueue, a, b int, rng *rand.Rand) int {
	return pickLower(h.EnqueueKey, lanes, a, b, rng)
}

func (h operationHeuristic) ChooseForDequeue(lanes []Subqueue, a, b int, rng *rand.Rand) int {
	return pickLower(h.DequeueKey, lanes, a, b, rng)
}

type progressHeuristic struct{}

func (progressHeuristic) Kind() Kind { return KindProgress }

func (progressHeuristic) EnqueueKey(l *Subqueue) uint64 { return l.EnqueuesSinceReset() }
func (progressHeuristic) DequeueKey(l *Subqueue) uint64 { return l.DequeuesSinceReset() }

func (h progressHeuristic) ChooseForEnqueue(lanes []Subqueue, a, b int, rng *rand.Rand) int {
	return pickLower(h.EnqueueKey, lanes, a, b, rng)
}

func (h progressHeuristic) ChooseForDequeue(lanes []Subqueue, a, b int, rng *rand.Rand) int {
	return pickLower(h.DequeueKey, lanes, a, b, rng)
}

func pickLower(key func(*Subqueue) uint64, lanes []Subqueue, a, b int, rng *rand.Rand) int {
	if a == b {
		return a
	}
	ka, kb := key(&lanes[a]), key(&lanes[b])
	switch {
	case ka < kb:
		return a
	case kb < ka:
		return b
	}
	if rng.IntN(2) == 0 {
		return a
	}
	return b
}
