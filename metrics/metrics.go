// Package metrics provides atomic per-item counters and the JobReport
// summary the CLI prints once a clone job stops. The engines do not use
// Counters; the CLI builds its JobReport from the persisted job row.
package metrics

import (
	"fmt"
	"sync/atomic"
	"time"

	json "github.com/goccy/go-json"
)

// Counters accumulates per-item outcomes for one job using atomic
// operations, so concurrent goroutines can record results without a
// surrounding lock.
type Counters struct {
	completed int64
	failed    int64
	skipped   int64
	bytes     int64
	startTime time.Time
}

// NewCounters starts a fresh set of counters, timestamped now.
func NewCounters() *Counters {
	return &Counters{startTime: time.Now()}
}

// RecordCompleted records one item copied or indexed successfully,
// accumulating its byte size toward the report's total.
func (c *Counters) RecordCompleted(size int64) {
	atomic.AddInt64(&c.completed, 1)
	atomic.AddInt64(&c.bytes, size)
}

// RecordFailed records one item that ended in a terminal failure.
func (c *Counters) RecordFailed() {
	atomic.AddInt64(&c.failed, 1)
}

// RecordSkipped records one item a conflict policy left untouched.
func (c *Counters) RecordSkipped() {
	atomic.AddInt64(&c.skipped, 1)
}

// JobReport is the final summary of a clone run, rendered by the CLI once
// the job stops.
type JobReport struct {
	StartTime  time.Time     `json:"startTime"`
	EndTime    time.Time     `json:"endTime"`
	Completed  int64         `json:"completed"`
	Failed     int64         `json:"failed"`
	Skipped    int64         `json:"skipped"`
	BytesMoved int64         `json:"bytesMoved"`
	Duration   time.Duration `json:"duration"`
	Throughput float64       `json:"throughput"` // items/sec
}

// Report renders the accumulated counters into a JobReport, computing the
// overall duration and items-per-second throughput.
func (c *Counters) Report() JobReport {
	endTime := time.Now()
	duration := endTime.Sub(c.startTime)

	completed := atomic.LoadInt64(&c.completed)
	var throughput float64
	if duration > 0 {
		throughput = float64(completed) / duration.Seconds()
	}

	return JobReport{
		StartTime:  c.startTime,
		EndTime:    endTime,
		Completed:  completed,
		Failed:     atomic.LoadInt64(&c.failed),
		Skipped:    atomic.LoadInt64(&c.skipped),
		BytesMoved: atomic.LoadInt64(&c.bytes),
		Duration:   duration,
		Throughput: throughput,
	}
}

// MarshalJSON renders Duration as a Go duration string rather than a raw
// nanosecond count, which is what a caller piping the report into another
// tool actually wants to read.
func (r JobReport) MarshalJSON() ([]byte, error) {
	type alias JobReport
	return json.Marshal(&struct {
		alias
		Duration string `json:"duration"`
	}{
		alias:    alias(r),
		Duration: r.Duration.String(),
	})
}

// String renders the report for the CLI's plain-text summary line.
func (r JobReport) String() string {
	return fmt.Sprintf(
		"completed in %s: completed: %d, failed: %d, skipped: %d, bytes moved: %d, throughput: %.2f items/sec",
		r.Duration, r.Completed, r.Failed, r.Skipped, r.BytesMoved, r.Throughput,
	)
}
