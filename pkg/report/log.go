// Package report renders manipulator runs for operators.
package report

import (
	"fmt"
	"sync"
	"time"

	"github.com/marmos91/tierkeeper/internal/bytesize"
	"github.com/marmos91/tierkeeper/internal/logger"
	"github.com/marmos91/tierkeeper/pkg/manipulator"
)

// LogReporter writes the query result and the run summary of one
// manipulator through the logger:
//
//	delete query took 12ms to find 40 objects
//	delete processed 40 objects, total size 1.2GiB in 3.4s
//
// Counters reset on FlushSummary so a LogReporter can serve successive runs.
type LogReporter struct {
	action manipulator.Action
	now    func() time.Time

	mu        sync.Mutex
	started   time.Time
	elapsed   time.Duration
	processed int
	bytes     int64
}

var _ manipulator.Reporter = (*LogReporter)(nil)

// NewLogReporter creates a LogReporter for action.
func NewLogReporter(action manipulator.Action) *LogReporter {
	return &LogReporter{action: action, now: time.Now}
}

func (r *LogReporter) StartTiming() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.started = r.now()
	r.elapsed = 0
}

func (r *LogReporter) EndTiming() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.started.IsZero() {
		r.elapsed = r.now().Sub(r.started)
	}
}

func (r *LogReporter) RecordQueryResult(count int) {
	r.mu.Lock()
	elapsed := r.elapsed
	r.mu.Unlock()

	logger.Info(fmt.Sprintf("%s query took %s to find %d objects", r.action, round(elapsed), count),
		logger.KeyManipulator, r.action.Kind(),
		logger.KeyCandidates, count,
		logger.KeyDurationMs, float64(elapsed.Microseconds())/1000.0,
	)
}

func (r *LogReporter) RecordTransition(bytes int64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.processed++
	r.bytes += bytes
}

func (r *LogReporter) FlushSummary() {
	r.mu.Lock()
	processed, total, elapsed := r.processed, r.bytes, r.elapsed
	r.processed, r.bytes = 0, 0
	r.mu.Unlock()

	logger.Info(Summary(r.action, processed, total, elapsed),
		logger.KeyManipulator, r.action.Kind(),
		logger.KeyProcessed, processed,
		logger.KeyTotalBytes, total,
		logger.KeyDurationMs, float64(elapsed.Microseconds())/1000.0,
	)
}

// Summary formats the one-line run summary.
func Summary(action manipulator.Action, processed int, totalBytes int64, elapsed time.Duration) string {
	return fmt.Sprintf("%s processed %d objects, total size %s in %s",
		action, processed, bytesize.Format(totalBytes), round(elapsed))
}

func round(d time.Duration) time.Duration {
	switch {
	case d >= time.Second:
		return d.Round(10 * time.Millisecond)
	case d >= time.Millisecond:
		return d.Round(time.Microsecond)
	default:
		return d
	}
}
