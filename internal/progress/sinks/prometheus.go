package sinks

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/agencyatlas/npidb-crawler/internal/progress"
)

// PrometheusSink exports per-state run metrics from the progress
// stream. It complements the pipeline counters with the state label the
// hot path deliberately avoids.
type PrometheusSink struct {
	runsStarted   *prometheus.CounterVec
	runsCompleted *prometheus.CounterVec
	runsRunning   prometheus.Gauge
	runRuntime    *prometheus.HistogramVec
	pagesParsed   *prometheus.CounterVec
	detailsDone   *prometheus.CounterVec

	tracker *runTracker
}

// NewPrometheusSink registers the collectors against the provided
// registry; nil means the default registerer.
func NewPrometheusSink(reg prometheus.Registerer) (*PrometheusSink, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	s := &PrometheusSink{
		runsStarted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "npidb_state_runs_started_total",
			Help: "Runs started, partitioned by state.",
		}, []string{"state"}),
		runsCompleted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "npidb_state_runs_completed_total",
			Help: "Runs finished, partitioned by state and result.",
		}, []string{"state", "result"}),
		runsRunning: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "npidb_state_runs_running",
			Help: "Runs currently in flight.",
		}),
		runRuntime: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "npidb_state_run_runtime_seconds",
			Help:    "Wall time per finished run, partitioned by result.",
			Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600, 1200},
		}, []string{"result"}),
		pagesParsed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "npidb_state_listing_pages_total",
			Help: "Listing pages parsed, partitioned by state.",
		}, []string{"state"}),
		detailsDone: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "npidb_state_details_total",
			Help: "Detail pages extracted, partitioned by state.",
		}, []string{"state"}),
		tracker: newRunTracker(),
	}
	for _, collector := range []prometheus.Collector{
		s.runsStarted,
		s.runsCompleted,
		s.runsRunning,
		s.runRuntime,
		s.pagesParsed,
		s.detailsDone,
	} {
		if err := reg.Register(collector); err != nil {
			return nil, fmt.Errorf("register progress collector: %w", err)
		}
	}
	return s, nil
}

// Consume updates the collectors from the batch. Safe for concurrent use.
func (s *PrometheusSink) Consume(_ context.Context, batch []progress.Event) error {
	for _, evt := range batch {
		s.consumeEvent(evt)
	}
	return nil
}

func (s *PrometheusSink) consumeEvent(evt progress.Event) {
	switch evt.Stage {
	case progress.StageRunStart:
		s.runsStarted.WithLabelValues(evt.State).Inc()
		s.runsRunning.Inc()
		s.tracker.start(evt.RunID, evt.Timestamp)
	case progress.StagePageDone:
		s.pagesParsed.WithLabelValues(evt.State).Inc()
	case progress.StageDetailDone:
		s.detailsDone.WithLabelValues(evt.State).Inc()
	case progress.StageRunDone, progress.StageRunError:
		result := "ok"
		if evt.Stage == progress.StageRunError {
			result = "error"
		}
		s.runsCompleted.WithLabelValues(evt.State, result).Inc()
		s.runsRunning.Dec()
		if started, ok := s.tracker.finish(evt.RunID); ok {
			s.runRuntime.WithLabelValues(result).Observe(evt.Timestamp.Sub(started).Seconds())
		}
	}
}

// Close implements the Sink interface; collectors stay registered.
func (s *PrometheusSink) Close(context.Context) error {
	return nil
}

// runTracker remembers start times so terminal events can observe wall
// time without carrying it in the payload.
type runTracker struct {
	mu     sync.Mutex
	starts map[string]time.Time
}

func newRunTracker() *runTracker {
	return &runTracker{starts: make(map[string]time.Time)}
}

func (t *runTracker) start(runID string, at time.Time) {
	if runID == "" {
		return
	}
	t.mu.Lock()
	t.starts[runID] = at
	t.mu.Unlock()
}

func (t *runTracker) finish(runID string) (time.Time, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	started, ok := t.starts[runID]
	if ok {
		delete(t.starts, runID)
	}
	return started, ok
}
