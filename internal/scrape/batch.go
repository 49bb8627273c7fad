package scrape

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// BatchConfig tunes batch execution. Workers defaults to 1, which runs
// jurisdictions strictly in submission order. PacePerMinute, when
// positive, spaces out jurisdiction starts across all workers.
type BatchConfig struct {
	Workers       int
	PacePerMinute int
}

// Orchestrator runs an ordered batch of jurisdiction queries. Results
// are order-preserving: out[i] always belongs to queries[i], whatever
// the worker count. Jurisdictions are isolated; one failing slot never
// touches its neighbors. A fatal session error stops dispatching and
// fills the remaining slots with the stop cause.
type Orchestrator struct {
	runner  JurisdictionRunner
	workers int
	limiter *rate.Limiter
	logger  *zap.Logger
}

func NewOrchestrator(runner JurisdictionRunner, cfg BatchConfig, logger *zap.Logger) *Orchestrator {
	workers := cfg.Workers
	if workers <= 0 {
		workers = 1
	}
	var limiter *rate.Limiter
	if cfg.PacePerMinute > 0 {
		limiter = rate.NewLimiter(rate.Limit(float64(cfg.PacePerMinute)/60.0), 1)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Orchestrator{runner: runner, workers: workers, limiter: limiter, logger: logger}
}

// Run executes the batch and returns one result per query, in order.
// The error is non-nil only when the batch as a whole stopped early; it
// is also stamped into every slot that never ran.
func (o *Orchestrator) Run(ctx context.Context, queries []JurisdictionQuery) ([]JurisdictionResult, error) {
	results := make([]JurisdictionResult, len(queries))
	if len(queries) == 0 {
		return results, nil
	}
	o.logger.Info("batch starting",
		zap.Int("jurisdictions", len(queries)), zap.Int("workers", o.workers))

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	var mu sync.Mutex
	var fatal error
	filled := make([]bool, len(queries))

	indexes := make(chan int)
	var wg sync.WaitGroup
	for w := 0; w < o.workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range indexes {
				if o.limiter != nil {
					if err := o.limiter.Wait(runCtx); err != nil {
						return
					}
				}
				res := o.runner.RunJurisdiction(runCtx, queries[i])
				results[i] = res
				filled[i] = true
				if IsFatal(res.Err) {
					mu.Lock()
					if fatal == nil {
						fatal = res.Err
						cancel()
					}
					mu.Unlock()
				}
			}
		}()
	}

dispatch:
	for i := range queries {
		select {
		case indexes <- i:
		case <-runCtx.Done():
			break dispatch
		}
	}
	close(indexes)
	wg.Wait()

	mu.Lock()
	stopCause := fatal
	mu.Unlock()
	var cause error
	switch {
	case stopCause != nil:
		cause = fmt.Errorf("batch stopped: %w", stopCause)
	case ctx.Err() != nil:
		cause = ctx.Err()
	}
	if cause != nil {
		skipped := 0
		for i := range results {
			if filled[i] {
				continue
			}
			skipped++
			results[i] = JurisdictionResult{
				Query:     queries[i],
				Err:       cause,
				ErrorText: cause.Error(),
				Agencies:  []Agency{},
			}
		}
		o.logger.Warn("batch stopped early",
			zap.Int("skipped", skipped), zap.Error(cause))
		return results, cause
	}
	o.logger.Info("batch finished", zap.Int("jurisdictions", len(queries)))
	return results, nil
}
