package engine

import "sort"

// Distributions are the sorted per-dequeue series of a traced run.
type Distributions struct {
	// RankErrors of every measured dequeue.
	RankErrors []float64 `json:"rank_errors" yaml:"rank_errors"`
	// EnqueueDequeueGap is the item's insertion index minus the dequeue number.
	EnqueueDequeueGap []float64 `json:"enqueue_dequeue_gap" yaml:"enqueue_dequeue_gap"`
	// LaneDequeueLoad is the lane's dequeue count (before this dequeue) minus
	// the mean dequeue count per lane.
	LaneDequeueLoad []float64 `json:"lane_dequeue_load" yaml:"lane_dequeue_load"`
	// LaneEnqueueLoad is the item's position in its lane minus the mean
	// number of enqueues per lane when it was inserted.
	LaneEnqueueLoad []float64 `json:"lane_enqueue_load" yaml:"lane_enqueue_load"`
}

// BuildDistributions derives the four distributions from a traced result.
// It returns a zero value when the run was not traced.
func BuildDistributions(res *Result) Distributions {
	if res == nil || len(res.Trace) == 0 {
		return Distributions{}
	}
	lanes := float64(res.Spec.Subqueues)
	n := len(res.Trace)
	d := Distributions{
		RankErrors:        make([]float64, n),
		EnqueueDequeueGap: make([]float64, n),
		LaneDequeueLoad:   make([]float64, n),
		LaneEnqueueLoad:   make([]float64, n),
	}
	for i, s := range res.Trace {
		d.RankErrors[i] = float64(s.RankError)
		d.EnqueueDequeueGap[i] = float64(int64(s.Item.Index) - int64(s.Number))
		d.LaneDequeueLoad[i] = float64(s.LaneDequeues) - 1 - float64(s.Number-1)/lanes
		d.LaneEnqueueLoad[i] = float64(s.Item.LaneSeq) - float64(s.Item.Index)/lanes
	}
	sort.Float64s(d.RankErrors)
	sort.Float64s(d.EnqueueDequeueGap)
	sort.Float64s(d.LaneDequeueLoad)
	sort.Float64s(d.LaneEnqueueLoad)
	return d
}
