package pipeline

import (
	"context"
	"errors"
	"sync"

	"squish/internal/config"
)

// Run fans the candidate set out to exactly cfg.Workers concurrent
// engine invocations and folds the outcomes into a Report. Outcome
// arrival order is unspecified; attribution to candidates is exact.
// Cancelling ctx stops dispatch immediately, lets in-flight files finish
// cleanly, and still yields a best-effort report.
func Run(ctx context.Context, candidates []Candidate, cfg config.Effective, eng Engine, updates chan<- ProgressUpdate) (Report, error) {
	agg := NewAggregator()

	if updates != nil {
		for range candidates {
			updates <- ProgressUpdate{TotalDelta: 1}
		}
	}

	jobs := make(chan Candidate)
	results := make(chan Outcome)

	workers := cfg.Workers
	if workers < 1 {
		workers = 1
	}

	var wg sync.WaitGroup
	wg.Add(workers)
	for i := 0; i < workers; i++ {
		go func() {
			defer wg.Done()
			for cand := range jobs {
				if ctx != nil && ctx.Err() != nil {
					return
				}
				results <- eng.Execute(ctx, cand)
			}
		}()
	}

	collectorDone := make(chan struct{})
	go func() {
		defer close(collectorDone)
		for out := range results {
			agg.Fold(out)
			if updates != nil {
				updates <- deltaFor(out)
			}
		}
	}()

	go func() {
		defer close(jobs)
		for _, cand := range candidates {
			if ctx == nil {
				jobs <- cand
				continue
			}
			select {
			case jobs <- cand:
			case <-ctx.Done():
				return
			}
		}
	}()

	wg.Wait()
	close(results)
	<-collectorDone

	report := agg.Finalize()

	if ctx != nil {
		if err := ctx.Err(); err != nil && !errors.Is(err, context.Canceled) {
			return report, err
		}
	}
	return report, nil
}

func deltaFor(out Outcome) ProgressUpdate {
	update := ProgressUpdate{DoneDelta: 1}
	switch {
	case out.Status == StatusOptimized:
		update.OptimizedDelta = 1
		update.BytesSavedDelta = out.Saved()
	case out.Status.Skipped():
		update.SkippedDelta = 1
	default:
		update.FailedDelta = 1
	}
	return update
}
