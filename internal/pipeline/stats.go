package pipeline

import (
	"sync"
	"time"
)

// RunStats accumulates per-file outcomes. Merge is associative and
// commutative (component-wise sums), so shards folded in any arrival
// order produce identical totals.
type RunStats struct {
	Total          int
	Optimized      int
	SkippedLarger  int
	SkippedPattern int
	SkippedDryRun  int
	Failed         int

	OriginalBytes  int64
	ResultingBytes int64
}

// Fold accumulates one outcome.
func (s *RunStats) Fold(out Outcome) {
	s.Total++
	switch out.Status {
	case StatusOptimized:
		s.Optimized++
	case StatusSkippedLarger:
		s.SkippedLarger++
	case StatusSkippedPattern:
		s.SkippedPattern++
	case StatusSkippedDryRun:
		s.SkippedDryRun++
	case StatusFailed:
		s.Failed++
	}
	s.OriginalBytes += out.OriginalSize
	s.ResultingBytes += out.ResultSize
}

// Merge combines two shards into a new value.
func (s RunStats) Merge(o RunStats) RunStats {
	return RunStats{
		Total:          s.Total + o.Total,
		Optimized:      s.Optimized + o.Optimized,
		SkippedLarger:  s.SkippedLarger + o.SkippedLarger,
		SkippedPattern: s.SkippedPattern + o.SkippedPattern,
		SkippedDryRun:  s.SkippedDryRun + o.SkippedDryRun,
		Failed:         s.Failed + o.Failed,
		OriginalBytes:  s.OriginalBytes + o.OriginalBytes,
		ResultingBytes: s.ResultingBytes + o.ResultingBytes,
	}
}

// Skipped returns the combined count of all skip variants.
func (s RunStats) Skipped() int {
	return s.SkippedLarger + s.SkippedPattern + s.SkippedDryRun
}

// SpaceSaved returns the aggregate byte difference between sources and
// results. Positive means the results are smaller.
func (s RunStats) SpaceSaved() int64 {
	return s.OriginalBytes - s.ResultingBytes
}

// PercentSaved returns the relative reduction, 0 when nothing was read.
func (s RunStats) PercentSaved() float64 {
	if s.OriginalBytes == 0 {
		return 0
	}
	return (1 - float64(s.ResultingBytes)/float64(s.OriginalBytes)) * 100
}

// Report is the finalized result of one run.
type Report struct {
	Stats    RunStats
	Elapsed  time.Duration
	Outcomes []Outcome
}

// Failures returns the outcomes that failed, in arrival order.
func (r Report) Failures() []Outcome {
	var failed []Outcome
	for _, out := range r.Outcomes {
		if out.Status == StatusFailed {
			failed = append(failed, out)
		}
	}
	return failed
}

// Aggregator folds outcomes into RunStats. The fold itself is the only
// synchronized operation; arrival order does not affect the result.
type Aggregator struct {
	mu       sync.Mutex
	stats    RunStats
	outcomes []Outcome
	started  time.Time
}

func NewAggregator() *Aggregator {
	return &Aggregator{started: time.Now()}
}

// Fold accumulates one outcome. Safe for concurrent use.
func (a *Aggregator) Fold(out Outcome) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.stats.Fold(out)
	a.outcomes = append(a.outcomes, out)
}

// Finalize snapshots the run into a Report. Call once all outcomes have
// been received (or on cancellation, for a best-effort report).
func (a *Aggregator) Finalize() Report {
	a.mu.Lock()
	defer a.mu.Unlock()
	return Report{
		Stats:    a.stats,
		Elapsed:  time.Since(a.started),
		Outcomes: append([]Outcome(nil), a.outcomes...),
	}
}
