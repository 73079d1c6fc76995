package metrics

import (
	"fmt"
	"math"
	"strings"
)

// Readout selects the single number a sweep cell is reported as.
type Readout string

const (
	ReadoutAverage         Readout = "average"
	ReadoutMedian          Readout = "median"
	ReadoutWorstOnePercent Readout = "worst-one-percent"
	ReadoutMax             Readout = "max"
)

// ParseReadout converts a user supplied name into a Readout.
func ParseReadout(s string) (Readout, error) {
	switch r := Readout(strings.ToLower(strings.TrimSpace(s))); r {
	case "", ReadoutAverage:
		return ReadoutAverage, nil
	case ReadoutMedian, ReadoutWorstOnePercent, ReadoutMax:
		return r, nil
	}
	return "", fmt.Errorf("unknown readout %q (supported: average, median, worst-one-percent, max)", s)
}

// Value extracts the readout from a summary.
func (s Summary) Value(r Readout) float64 {
	switch r {
	case ReadoutMedian:
		return float64(s.P50)
	case ReadoutWorstOnePercent:
		return float64(s.WorstOnePercent)
	case ReadoutMax:
		return float64(s.Max)
	default:
		return s.Mean
	}
}

// Skew is the spread of a per-lane counter.
type Skew struct {
	Mean   float64 `json:"mean" yaml:"mean"`
	StdDev float64 `json:"std_dev" yaml:"std_dev"`
}

// LaneSkew returns the mean and population standard deviation of values.
func LaneSkew(values []uint64) Skew {
	if len(values) == 0 {
		return Skew{}
	}
	var sum float64
	for _, v := range values {
		sum += float64(v)
	}
	mean := sum / float64(len(values))
	var sq float64
	for _, v := range values {
		d := float64(v) - mean
		sq += d * d
	}
	return Skew{Mean: mean, StdDev: math.Sqrt(sq / float64(len(values)))}
}
