package output

import (
	"fmt"
	"io"
	"sync/atomic"
	"time"
)

// ProgressSource reports finished, failed and total units of a sweep.
type ProgressSource interface {
	Snapshot() (done, failed, total int64)
}

// ProgressReporter displays real-time progress updates.
type ProgressReporter struct {
	source   ProgressSource
	ticker   *time.Ticker
	done     chan struct{}
	finished chan struct{}
	writer   io.Writer
	active   int32
	start    time.Time
}

// NewProgressReporter creates a progress reporter that updates at the given interval.
func NewProgressReporter(source ProgressSource, interval time.Duration, writer io.Writer) *ProgressReporter {
	if writer == nil {
		writer = io.Discard
	}
	return &ProgressReporter{
		source:   source,
		ticker:   time.NewTicker(interval),
		done:     make(chan struct{}),
		finished: make(chan struct{}),
		writer:   writer,
		start:    time.Now(),
	}
}

// Start begins displaying progress updates in a background goroutine.
func (p *ProgressReporter) Start() {
	if !atomic.CompareAndSwapInt32(&p.active, 0, 1) {
		return // already running
	}
	go p.run()
}

// Stop halts progress updates and prints a final line.
func (p *ProgressReporter) Stop() {
	if atomic.CompareAndSwapInt32(&p.active, 1, 0) {
		close(p.done)
		p.ticker.Stop()
		<-p.finished
		fmt.Fprintf(p.writer, "%s\n", p.line())
		return
	}
	p.ticker.Stop()
}

func (p *ProgressReporter) run() {
	defer close(p.finished)
	for {
		select {
		case <-p.ticker.C:
			fmt.Fprint(p.writer, p.line())
		case <-p.done:
			return
		}
	}
}

func (p *ProgressReporter) line() string {
	done, failed, total := p.source.Snapshot()
	elapsed := time.Since(p.start).Truncate(100 * time.Millisecond)
	line := fmt.Sprintf("\rCells: %d/%d | Failed: %d | Elapsed: %s", done, total, failed, elapsed)
	if done > 0 && done < total {
		remaining := time.Duration(float64(elapsed) / float64(done) * float64(total-done))
		line += fmt.Sprintf(" | ETA: %s", remaining.Truncate(time.Second))
	}
	return line
}
