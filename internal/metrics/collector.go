package metrics

import (
	"math"
	"sync"

	"github.com/HdrHistogram/hdrhistogram-go"
)

// Collector accumulates rank errors in a thread-safe manner.
type Collector struct {
	mu    sync.Mutex
	hist  *hdrhistogram.Histogram
	count int64
	sum   float64
	sumSq float64
	min   uint64
	max   uint64
}

// Summary is the aggregate view of a set of rank errors.
type Summary struct {
	Count           int64   `json:"count" yaml:"count"`
	Mean            float64 `json:"mean" yaml:"mean"`
	StdDev          float64 `json:"std_dev" yaml:"std_dev"`
	Min             uint64  `json:"min" yaml:"min"`
	P50             int64   `json:"p50" yaml:"p50"`
	P90             int64   `json:"p90" yaml:"p90"`
	P99             int64   `json:"p99" yaml:"p99"`
	WorstOnePercent int64   `json:"worst_one_percent" yaml:"worst_one_percent"`
	Max             uint64  `json:"max" yaml:"max"`
}

// Bucket is one non-empty histogram bar.
type Bucket struct {
	From  int64 `json:"from" yaml:"from"`
	To    int64 `json:"to" yaml:"to"`
	Count int64 `json:"count" yaml:"count"`
}

// NewCollector creates a collector for rank errors up to highest. Larger
// values are clamped into the top bucket for percentiles; Mean and Max stay exact.
func NewCollector(highest int64) *Collector {
	if highest < 2 {
		highest = 2
	}
	// Rank errors of 0 are common; 3 significant figures keeps small values exact.
	return &Collector{hist: hdrhistogram.New(1, highest, 3)}
}

// Record adds one rank error.
func (c *Collector) Record(v uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.record(v)
}

// RecordAll adds every value in vs.
func (c *Collector) RecordAll(vs []uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, v := range vs {
		c.record(v)
	}
}

func (c *Collector) record(v uint64) {
	hv := int64(v)
	if v > math.MaxInt64 || hv > c.hist.HighestTrackableValue() {
		hv = c.hist.HighestTrackableValue()
	}
	_ = c.hist.RecordValue(hv)

	if c.count == 0 || v < c.min {
		c.min = v
	}
	if v > c.max {
		c.max = v
	}
	c.count++
	f := float64(v)
	c.sum += f
	c.sumSq += f * f
}

// Merge folds other's samples into c.
func (c *Collector) Merge(other *Collector) {
	if other == nil || other == c {
		return
	}
	other.mu.Lock()
	hist := hdrhistogram.Import(other.hist.Export())
	count, sum, sumSq, min, max := other.count, other.sum, other.sumSq, other.min, other.max
	other.mu.Unlock()

	c.mu.Lock()
	defer c.mu.Unlock()
	c.hist.Merge(hist)
	if count > 0 {
		if c.count == 0 || min < c.min {
			c.min = min
		}
		if max > c.max {
			c.max = max
		}
	}
	c.count += count
	c.sum += sum
	c.sumSq += sumSq
}

// Summary computes the aggregate statistics.
func (c *Collector) Summary() Summary {
	c.mu.Lock()
	defer c.mu.Unlock()

	s := Summary{Count: c.count}
	if c.count == 0 {
		return s
	}
	n := float64(c.count)
	s.Mean = c.sum / n
	if variance := c.sumSq/n - s.Mean*s.Mean; variance > 0 {
		s.StdDev = math.Sqrt(variance)
	}
	s.Min = c.min
	s.Max = c.max
	s.P50 = c.hist.ValueAtQuantile(50)
	s.P90 = c.hist.ValueAtQuantile(90)
	s.P99 = c.hist.ValueAtQuantile(99)
	s.WorstOnePercent = s.P99
	return s
}

// Histogram returns the non-empty histogram bars in ascending order.
func (c *Collector) Histogram() []Bucket {
	c.mu.Lock()
	defer c.mu.Unlock()

	var out []Bucket
	for _, bar := range c.hist.Distribution() {
		if bar.Count == 0 {
			continue
		}
		out = append(out, Bucket{From: bar.From, To: bar.To, Count: bar.Count})
	}
	return out
}

// Summarize is a shortcut for a one-off collector over vs.
func Summarize(vs []uint64, highest int64) Summary {
	c := NewCollector(highest)
	c.RecordAll(vs)
	return c.Summary()
}
