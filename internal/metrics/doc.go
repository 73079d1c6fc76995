// Package metrics aggregates rank errors produced by simulation runs.
//
// The central [Collector] wraps an HdrHistogram so percentiles stay cheap for
// runs with millions of dequeues, while count, mean, standard deviation, min
// and max are tracked exactly:
//
//	c := metrics.NewCollector(int64(prefill + ops))
//	c.RecordAll(result.RankErrors)
//	summary := c.Summary()
//
// Collectors from repeated runs of the same sweep cell are combined with
// [Collector.Merge]; [Collector.Histogram] exposes the non-empty buckets for
// downstream plotting.
//
// # Readouts
//
// A [Readout] picks the number a cell is reported as: average, median,
// worst-one-percent (the 99th percentile point) or max.
//
// # Thread Safety
//
// Collector methods lock internally and may be called from several goroutines.
package metrics
