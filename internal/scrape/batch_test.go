package scrape

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type scriptedBatchRunner struct {
	mu      sync.Mutex
	calls   []JurisdictionQuery
	outcome func(ctx context.Context, q JurisdictionQuery) JurisdictionResult
}

func (r *scriptedBatchRunner) RunJurisdiction(ctx context.Context, q JurisdictionQuery) JurisdictionResult {
	r.mu.Lock()
	r.calls = append(r.calls, q)
	r.mu.Unlock()
	return r.outcome(ctx, q)
}

func (r *scriptedBatchRunner) called() []JurisdictionQuery {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]JurisdictionQuery(nil), r.calls...)
}

func echoResult(q JurisdictionQuery) JurisdictionResult {
	return JurisdictionResult{
		Query:    q,
		Agencies: []Agency{{ProviderName: q.Location + " CARE", SourceLocation: q.Location}},
	}
}

func batchQueries(locations ...string) []JurisdictionQuery {
	out := make([]JurisdictionQuery, len(locations))
	for i, loc := range locations {
		out[i] = JurisdictionQuery{State: "NC", Location: loc, Method: MethodStatic}
	}
	return out
}

func TestBatchPreservesOrderAcrossWorkers(t *testing.T) {
	t.Parallel()

	runner := &scriptedBatchRunner{
		outcome: func(_ context.Context, q JurisdictionQuery) JurisdictionResult {
			// vary completion order so slot order has to be deliberate
			time.Sleep(time.Duration(len(q.Location)%3) * 5 * time.Millisecond)
			return echoResult(q)
		},
	}
	orch := NewOrchestrator(runner, BatchConfig{Workers: 3}, zap.NewNop())
	queries := batchQueries("Raleigh", "Durham", "Cary", "Apex", "Wilson", "Boone")

	results, err := orch.Run(context.Background(), queries)
	require.NoError(t, err)
	require.Len(t, results, len(queries))
	for i, q := range queries {
		require.Equal(t, q.Location, results[i].Query.Location, "slot %d", i)
		require.NoError(t, results[i].Err)
	}
}

func TestBatchSingleWorkerRunsInSubmissionOrder(t *testing.T) {
	t.Parallel()

	runner := &scriptedBatchRunner{
		outcome: func(_ context.Context, q JurisdictionQuery) JurisdictionResult {
			return echoResult(q)
		},
	}
	orch := NewOrchestrator(runner, BatchConfig{}, zap.NewNop())
	queries := batchQueries("Raleigh", "Durham", "Cary")

	results, err := orch.Run(context.Background(), queries)
	require.NoError(t, err)
	require.Len(t, results, 3)
	require.Equal(t, queries, runner.called())
}

func TestBatchIsolatesNonFatalFailures(t *testing.T) {
	t.Parallel()

	runner := &scriptedBatchRunner{
		outcome: func(_ context.Context, q JurisdictionQuery) JurisdictionResult {
			if q.Location == "Durham" {
				return JurisdictionResult{
					Query:     q,
					Agencies:  []Agency{},
					Err:       fmt.Errorf("listing page 1: %w", ErrBlockedByDefense),
					ErrorText: "listing page 1: blocked by site defense",
				}
			}
			return echoResult(q)
		},
	}
	orch := NewOrchestrator(runner, BatchConfig{Workers: 2}, zap.NewNop())
	queries := batchQueries("Raleigh", "Durham", "Cary")

	results, err := orch.Run(context.Background(), queries)
	require.NoError(t, err)
	require.NoError(t, results[0].Err)
	require.ErrorIs(t, results[1].Err, ErrBlockedByDefense)
	require.NoError(t, results[2].Err)
	require.Len(t, runner.called(), 3)
}

func TestBatchStopsOnFatalSession(t *testing.T) {
	t.Parallel()

	fatalErr := fmt.Errorf("new headless session: chrome exited: %w", ErrFatalSession)
	runner := &scriptedBatchRunner{
		outcome: func(ctx context.Context, q JurisdictionQuery) JurisdictionResult {
			if q.Location == "Raleigh" {
				return JurisdictionResult{Query: q, Agencies: []Agency{}, Err: fatalErr, ErrorText: fatalErr.Error()}
			}
			// everything else waits for the batch to stop it
			<-ctx.Done()
			return JurisdictionResult{Query: q, Agencies: []Agency{}, Err: ctx.Err(), ErrorText: ctx.Err().Error()}
		},
	}
	orch := NewOrchestrator(runner, BatchConfig{Workers: 2}, zap.NewNop())
	queries := batchQueries("Raleigh", "Durham", "Cary", "Apex")

	results, err := orch.Run(context.Background(), queries)
	require.ErrorIs(t, err, ErrFatalSession)
	require.ErrorContains(t, err, "batch stopped")

	require.ErrorIs(t, results[0].Err, ErrFatalSession)
	for i := 1; i < len(results); i++ {
		require.Error(t, results[i].Err, "slot %d", i)
		require.NotEmpty(t, results[i].ErrorText, "slot %d", i)
	}
}

func TestBatchHonorsParentCancellation(t *testing.T) {
	t.Parallel()

	runner := &scriptedBatchRunner{
		outcome: func(ctx context.Context, q JurisdictionQuery) JurisdictionResult {
			<-ctx.Done()
			return JurisdictionResult{Query: q, Agencies: []Agency{}, Err: ctx.Err(), ErrorText: ctx.Err().Error()}
		},
	}
	orch := NewOrchestrator(runner, BatchConfig{Workers: 2}, zap.NewNop())
	queries := batchQueries("Raleigh", "Durham", "Cary")

	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(30*time.Millisecond, cancel)

	results, err := orch.Run(ctx, queries)
	require.ErrorIs(t, err, context.Canceled)
	for i := range results {
		require.Error(t, results[i].Err, "slot %d", i)
	}
}

func TestBatchEmptyQueries(t *testing.T) {
	t.Parallel()

	runner := &scriptedBatchRunner{outcome: func(_ context.Context, q JurisdictionQuery) JurisdictionResult {
		return echoResult(q)
	}}
	orch := NewOrchestrator(runner, BatchConfig{Workers: 4}, zap.NewNop())

	results, err := orch.Run(context.Background(), nil)
	require.NoError(t, err)
	require.Empty(t, results)
	require.Empty(t, runner.called())
}

func TestBatchPacesDispatch(t *testing.T) {
	t.Parallel()

	runner := &scriptedBatchRunner{outcome: func(_ context.Context, q JurisdictionQuery) JurisdictionResult {
		return echoResult(q)
	}}
	// 1200/min is one start every 50ms, shared across both workers
	orch := NewOrchestrator(runner, BatchConfig{Workers: 2, PacePerMinute: 1200}, zap.NewNop())
	queries := batchQueries("Raleigh", "Durham", "Cary")

	start := time.Now()
	results, err := orch.Run(context.Background(), queries)
	require.NoError(t, err)
	require.Len(t, results, 3)
	require.GreaterOrEqual(t, time.Since(start), 90*time.Millisecond)
}
