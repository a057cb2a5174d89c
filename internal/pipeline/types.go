// Package pipeline contains the batch machinery: candidate enumeration,
// the bounded worker pool, and order-independent run statistics.
package pipeline

import (
	"context"
	"fmt"
	"io/fs"
	"time"

	"squish/pkg/imgutil"
)

// Candidate is a discovered input file. Immutable once enumerated.
type Candidate struct {
	// Path is the absolute source path.
	Path string

	// Rel is the slash-separated path relative to the input root; it
	// fixes the file's position under the output root.
	Rel string

	// Format is the image kind declared by the file extension.
	Format imgutil.Kind

	Size    int64
	Mode    fs.FileMode
	ModTime time.Time
}

// Status classifies the terminal result of processing one candidate.
type Status int

const (
	StatusOptimized Status = iota
	StatusSkippedLarger
	StatusSkippedPattern
	StatusSkippedDryRun
	StatusFailed
)

func (s Status) String() string {
	switch s {
	case StatusOptimized:
		return "optimized"
	case StatusSkippedLarger:
		return "skipped (would grow)"
	case StatusSkippedPattern:
		return "skipped (pattern)"
	case StatusSkippedDryRun:
		return "skipped (dry run)"
	case StatusFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Skipped reports whether the status is any of the skip variants.
func (s Status) Skipped() bool {
	switch s {
	case StatusSkippedLarger, StatusSkippedPattern, StatusSkippedDryRun:
		return true
	}
	return false
}

// Outcome is the immutable result of executing one candidate's plan.
// ResultSize equals OriginalSize whenever no bytes were produced for
// the target (skips other than dry-run, and failures).
type Outcome struct {
	Candidate    Candidate
	Status       Status
	OriginalSize int64
	ResultSize   int64
	Elapsed      time.Duration

	// Err is set only for StatusFailed.
	Err error

	// Detail is an optional human note, e.g. preserved metadata summary.
	Detail string
}

// Saved returns the byte reduction achieved for this file.
func (o Outcome) Saved() int64 {
	return o.OriginalSize - o.ResultSize
}

// Engine executes one candidate and returns its outcome. Implementations
// must be safe for concurrent use; the pool invokes Execute from
// multiple workers.
type Engine interface {
	Execute(ctx context.Context, c Candidate) Outcome
}

// ProgressUpdate is a delta event for the reporting sink. One TotalDelta
// per enumerated candidate, one done-delta per outcome.
type ProgressUpdate struct {
	TotalDelta      int
	DoneDelta       int
	OptimizedDelta  int
	SkippedDelta    int
	FailedDelta     int
	BytesSavedDelta int64
}

// EnumerationError aborts a run before any scheduling: the input root is
// missing, unreadable, or a skip pattern is malformed.
type EnumerationError struct {
	Root string
	Err  error
}

func (e *EnumerationError) Error() string {
	return fmt.Sprintf("enumerate %s: %v", e.Root, e.Err)
}

func (e *EnumerationError) Unwrap() error {
	return e.Err
}
