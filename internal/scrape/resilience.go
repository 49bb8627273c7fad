package scrape

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"

	"go.uber.org/zap"

	"github.com/agencyatlas/npidb-crawler/internal/browser"
	"github.com/agencyatlas/npidb-crawler/internal/progress"
)

// DefaultStepTimeout bounds a single navigation or read step.
const DefaultStepTimeout = 25 * time.Second

// persistTimeout bounds the persistence tail of a run so a canceled
// batch still gets its results recorded.
const persistTimeout = 10 * time.Second

// StepRunner executes named pipeline steps under a per-step timeout
// with at most one retry. Retry applies only to timeouts and transient
// network failures; challenges and validation errors fail immediately.
type StepRunner struct {
	timeout time.Duration
	logger  *zap.Logger
}

func NewStepRunner(timeout time.Duration, logger *zap.Logger) *StepRunner {
	if timeout <= 0 {
		timeout = DefaultStepTimeout
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &StepRunner{timeout: timeout, logger: logger}
}

// Run executes fn under the step timeout, retrying once when the
// failure is retryable and the parent context is still alive.
func (r *StepRunner) Run(ctx context.Context, step string, fn func(context.Context) error) error {
	var err error
	for attempt := 0; attempt < 2; attempt++ {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		stepCtx, cancel := context.WithTimeout(ctx, r.timeout)
		err = fn(stepCtx)
		cancel()
		if err == nil {
			return nil
		}
		err = classifyStepError(step, err, ctx)
		if !IsRetryable(err) {
			return err
		}
		if attempt == 0 {
			StepRetriesTotal.Inc()
			r.logger.Warn("step failed, retrying once",
				zap.String("step", step), zap.Error(err))
		}
	}
	return err
}

// classifyStepError maps raw step failures onto the pipeline sentinels.
// Parent-context cancellation wins over everything else.
func classifyStepError(step string, err error, parent context.Context) error {
	if parent.Err() != nil {
		return parent.Err()
	}
	switch {
	case errors.Is(err, ErrBlockedByDefense),
		errors.Is(err, ErrInvalidQuery),
		errors.Is(err, ErrSelectorNotFound),
		errors.Is(err, ErrFatalSession),
		errors.Is(err, ErrNavigationTimeout):
		return err
	case errors.Is(err, context.DeadlineExceeded):
		return fmt.Errorf("%s: %w", step, ErrNavigationTimeout)
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return fmt.Errorf("%s: %w", step, ErrNavigationTimeout)
	}
	return fmt.Errorf("%s: %w", step, err)
}

// RunnerConfig tunes one runner instance.
type RunnerConfig struct {
	StepTimeout     time.Duration
	MaxListingPages int
	// DefaultMethod fills queries that leave Method empty. Empty keeps
	// the resolver's headless default.
	DefaultMethod string
	// SummaryTopic is where finished runs are published when a
	// Publisher is wired. Defaults to "npidb.runs".
	SummaryTopic string
	// Challenge defaults to DefaultChallenge when nil.
	Challenge ChallengePredicate
}

// RunnerDeps carries the runner's collaborators. Gateway, Snapshots,
// Publisher, and Events are optional; a nil value disables that side
// effect.
type RunnerDeps struct {
	Factories map[string]browser.SessionFactory
	Gateway   AgencyGateway
	Snapshots SnapshotStore
	Publisher Publisher
	Events    *progress.Hub
	Hasher    Hasher
	Clock     Clock
	IDs       IDGenerator
	Logger    *zap.Logger
}

// Runner drives one jurisdiction at a time through the state machine
// idle -> navigating -> extracting -> completed|aborted. It owns the
// session lifecycle: one fresh session per jurisdiction, closed before
// the result is returned. Safe for concurrent use; per-run state lives
// in the navigator and extractor built for each call.
type Runner struct {
	cfg     RunnerConfig
	deps    RunnerDeps
	steps   *StepRunner
	archive *PageArchiver
}

func NewRunner(cfg RunnerConfig, deps RunnerDeps) (*Runner, error) {
	if len(deps.Factories) == 0 {
		return nil, errors.New("runner needs at least one session factory")
	}
	if deps.Clock == nil {
		return nil, errors.New("runner needs a clock")
	}
	if deps.IDs == nil {
		return nil, errors.New("runner needs an id generator")
	}
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	if cfg.Challenge == nil {
		cfg.Challenge = DefaultChallenge
	}
	if cfg.SummaryTopic == "" {
		cfg.SummaryTopic = "npidb.runs"
	}
	return &Runner{
		cfg:     cfg,
		deps:    deps,
		steps:   NewStepRunner(cfg.StepTimeout, deps.Logger),
		archive: NewPageArchiver(deps.Snapshots, deps.Hasher, deps.Clock, deps.Logger),
	}, nil
}

// RunJurisdiction executes one jurisdiction end to end. The returned
// result always has its slot filled: validation failures, challenges,
// and session deaths land in Err while whatever was collected stays in
// Agencies.
func (r *Runner) RunJurisdiction(ctx context.Context, query JurisdictionQuery) JurisdictionResult {
	started := r.deps.Clock.Now()
	runID, err := r.deps.IDs.NewID()
	if err != nil {
		r.deps.Logger.Warn("run id generation failed", zap.Error(err))
	}
	res := JurisdictionResult{
		RunID:     runID,
		Query:     query,
		StartedAt: started,
		Agencies:  []Agency{},
	}

	if query.Method == "" && r.cfg.DefaultMethod != "" {
		query.Method = r.cfg.DefaultMethod
	}
	resolved, err := ResolveQuery(query)
	if err != nil {
		return r.finish(ctx, res, StateAborted, err)
	}
	res.Query = resolved.Query
	res.ListingURL = resolved.ListingURL

	logger := r.deps.Logger.With(
		zap.String("run_id", runID),
		zap.String("state", resolved.Query.State),
		zap.String("location", resolved.Query.Location),
		zap.String("method", resolved.Query.Method),
	)

	factory, ok := r.deps.Factories[resolved.Query.Method]
	if !ok || factory == nil {
		return r.finish(ctx, res, StateAborted,
			fmt.Errorf("%w: method %s is not enabled", ErrInvalidQuery, resolved.Query.Method))
	}

	ActiveRuns.Inc()
	defer ActiveRuns.Dec()
	r.emit(progress.StageRunStart, res, 0)
	r.transition(logger, StateIdle, StateNavigating)

	sess, err := factory.NewSession(ctx)
	if err != nil {
		return r.finish(ctx, res, StateAborted,
			fmt.Errorf("new %s session: %v: %w", resolved.Query.Method, err, ErrFatalSession))
	}
	defer func() {
		if cerr := sess.Close(); cerr != nil {
			logger.Warn("session close failed", zap.Error(cerr))
		}
	}()

	nav := NewNavigator(r.steps, NavigatorConfig{
		MaxListingPages: r.cfg.MaxListingPages,
		Challenge:       r.cfg.Challenge,
	}, logger)
	nav.Archive = r.archive
	nav.OnPage = func(page, newStubs int) {
		r.emit(progress.StagePageDone, res, page)
	}
	ext := NewExtractor(r.steps, r.cfg.Challenge, logger)
	ext.Archive = r.archive

	stubs, pages, navErr := nav.CollectStubs(ctx, sess, resolved)
	res.PagesVisited = pages
	if navErr != nil {
		// stubs gathered before the failure survive as partial records
		for _, stub := range stubs {
			res.Agencies = append(res.Agencies, AssemblePartialAgency(stub, resolved.Query))
		}
		return r.finish(ctx, res, StateAborted, navErr)
	}

	r.transition(logger, StateNavigating, StateExtracting)
	for i, stub := range stubs {
		if ctx.Err() != nil {
			for _, rest := range stubs[i:] {
				res.Agencies = append(res.Agencies, AssemblePartialAgency(rest, resolved.Query))
			}
			return r.finish(ctx, res, StateAborted, ctx.Err())
		}
		det, exErr := ext.ExtractDetail(ctx, sess, stub)
		switch {
		case exErr == nil:
			DetailFetchesTotal.WithLabelValues("ok").Inc()
			res.Agencies = append(res.Agencies, AssembleAgency(stub, det, resolved.Query))
			r.emit(progress.StageDetailDone, res, res.PagesVisited)
		case errors.Is(exErr, ErrBlockedByDefense) || IsFatal(exErr):
			// the session is burned; everything left becomes a partial record
			DetailFetchesTotal.WithLabelValues("blocked").Inc()
			for _, rest := range stubs[i:] {
				res.Agencies = append(res.Agencies, AssemblePartialAgency(rest, resolved.Query))
			}
			return r.finish(ctx, res, StateAborted, exErr)
		default:
			DetailFetchesTotal.WithLabelValues("partial").Inc()
			PartialExtractionsTotal.Inc()
			logger.Warn("detail extraction failed, keeping partial record",
				zap.String("detail_url", stub.DetailURL), zap.Error(exErr))
			res.Agencies = append(res.Agencies, AssemblePartialAgency(stub, resolved.Query))
		}
	}
	return r.finish(ctx, res, StateCompleted, nil)
}

// finish closes out a run: stamps the result, persists records and the
// run log, publishes the summary, and emits the terminal event. The
// persistence tail runs on a detached context so batch cancellation
// cannot lose completed work.
func (r *Runner) finish(ctx context.Context, res JurisdictionResult, state RunState, runErr error) JurisdictionResult {
	res.CompletedAt = r.deps.Clock.Now()
	res.Err = runErr
	if runErr != nil {
		res.ErrorText = runErr.Error()
	}

	status := "ok"
	if runErr != nil {
		status = "error"
		if errors.Is(runErr, ErrBlockedByDefense) {
			status = "blocked"
		}
	}
	method := res.Query.Method
	if method == "" {
		method = "unresolved"
	}
	RunsTotal.WithLabelValues(method, status).Inc()
	RunDuration.Observe(res.CompletedAt.Sub(res.StartedAt).Seconds())
	AgenciesPerRun.Observe(float64(len(res.Agencies)))

	logger := r.deps.Logger.With(zap.String("run_id", res.RunID))
	logger.Debug("run state", zap.String("to", string(state)))

	tailCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), persistTimeout)
	defer cancel()
	if r.deps.Gateway != nil {
		failed := 0
		for _, agency := range res.Agencies {
			if err := r.deps.Gateway.UpsertAgency(tailCtx, agency); err != nil {
				failed++
				logger.Warn("agency upsert failed",
					zap.String("detail_url", agency.DetailURL), zap.Error(err))
			}
		}
		if failed > 0 {
			logger.Warn("some agencies were not persisted", zap.Int("failed", failed))
		}
		if err := r.deps.Gateway.RecordRun(tailCtx, res.scrapeLog()); err != nil {
			logger.Warn("run log write failed", zap.Error(err))
		}
	}
	if r.deps.Publisher != nil {
		if _, err := r.deps.Publisher.Publish(tailCtx, r.cfg.SummaryTopic, res); err != nil {
			logger.Warn("run summary publish failed", zap.Error(err))
		}
	}

	if runErr != nil {
		r.emit(progress.StageRunError, res, res.PagesVisited)
		logger.Info("run aborted",
			zap.Int("agencies", len(res.Agencies)),
			zap.Int("pages", res.PagesVisited),
			zap.Error(runErr))
	} else {
		r.emit(progress.StageRunDone, res, res.PagesVisited)
		logger.Info("run completed",
			zap.Int("agencies", len(res.Agencies)),
			zap.Int("pages", res.PagesVisited))
	}
	return res
}

func (r *Runner) transition(logger *zap.Logger, from, to RunState) {
	logger.Debug("run state",
		zap.String("from", string(from)), zap.String("to", string(to)))
}

func (r *Runner) emit(stage progress.Stage, res JurisdictionResult, page int) {
	if r.deps.Events == nil {
		return
	}
	r.deps.Events.Emit(progress.Event{
		RunID:     res.RunID,
		Stage:     stage,
		State:     res.Query.State,
		Location:  res.Query.Location,
		Method:    res.Query.Method,
		Page:      page,
		Agencies:  len(res.Agencies),
		Err:       res.ErrorText,
		Timestamp: r.deps.Clock.Now(),
	})
}

func (res JurisdictionResult) scrapeLog() ScrapeLog {
	return ScrapeLog{
		RunID:         res.RunID,
		State:         res.Query.State,
		Location:      res.Query.Location,
		Method:        res.Query.Method,
		AgenciesFound: len(res.Agencies),
		PagesVisited:  res.PagesVisited,
		StartedAt:     res.StartedAt,
		CompletedAt:   res.CompletedAt,
		Error:         res.ErrorText,
	}
}
