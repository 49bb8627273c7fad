package scrape

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// RunsTotal tracks finished jurisdiction runs by method and outcome.
	RunsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "npidb_runs_total",
		Help: "The total number of jurisdiction runs, labeled by method and status.",
	}, []string{"method", "status"})
	// ActiveRuns tracks jurisdiction runs currently in flight.
	ActiveRuns = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "npidb_active_runs",
		Help: "The number of jurisdiction runs in flight.",
	})
	// ListingPagesTotal tracks listing pages parsed.
	ListingPagesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "npidb_listing_pages_total",
		Help: "The total number of listing pages parsed.",
	})
	// DetailFetchesTotal tracks detail page visits by outcome.
	DetailFetchesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "npidb_detail_fetches_total",
		Help: "The total number of detail page visits, labeled by outcome.",
	}, []string{"outcome"})
	// ChallengesTotal tracks bot-defense challenge pages encountered.
	ChallengesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "npidb_challenges_total",
		Help: "The total number of challenge pages served by the site.",
	})
	// StepRetriesTotal tracks single-step retries after transient failures.
	StepRetriesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "npidb_step_retries_total",
		Help: "The total number of step retries.",
	})
	// PartialExtractionsTotal tracks records kept with stub fields only.
	PartialExtractionsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "npidb_partial_extractions_total",
		Help: "The total number of agencies kept as partial records.",
	})
	// RunDuration observes end-to-end jurisdiction run time.
	RunDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "npidb_run_duration_seconds",
		Help:    "Duration of jurisdiction runs.",
		Buckets: prometheus.ExponentialBuckets(1, 2, 10),
	})
	// AgenciesPerRun observes how many agencies each run produced.
	AgenciesPerRun = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "npidb_agencies_per_run",
		Help:    "Agencies produced per jurisdiction run.",
		Buckets: []float64{0, 1, 5, 10, 25, 50, 100, 250},
	})
)
