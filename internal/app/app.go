// Package app initializes and holds long-lived application services, acting as a dependency injection container.
package app

import (
	"context"
	"fmt"
	"time"

	"cloud.google.com/go/storage"
	"go.uber.org/zap"

	"github.com/agencyatlas/npidb-crawler/internal/archive/gcs"
	"github.com/agencyatlas/npidb-crawler/internal/archive/local"
	archivemem "github.com/agencyatlas/npidb-crawler/internal/archive/memory"
	"github.com/agencyatlas/npidb-crawler/internal/browser"
	collysession "github.com/agencyatlas/npidb-crawler/internal/browser/colly"
	"github.com/agencyatlas/npidb-crawler/internal/browser/headless"
	"github.com/agencyatlas/npidb-crawler/internal/browser/static"
	"github.com/agencyatlas/npidb-crawler/internal/clock/system"
	"github.com/agencyatlas/npidb-crawler/internal/config"
	"github.com/agencyatlas/npidb-crawler/internal/export"
	"github.com/agencyatlas/npidb-crawler/internal/hash/sha256"
	"github.com/agencyatlas/npidb-crawler/internal/id/uuid"
	"github.com/agencyatlas/npidb-crawler/internal/logging"
	"github.com/agencyatlas/npidb-crawler/internal/metrics"
	"github.com/agencyatlas/npidb-crawler/internal/progress"
	"github.com/agencyatlas/npidb-crawler/internal/progress/sinks"
	publishmem "github.com/agencyatlas/npidb-crawler/internal/publish/memory"
	"github.com/agencyatlas/npidb-crawler/internal/publish/pubsub"
	"github.com/agencyatlas/npidb-crawler/internal/scrape"
	"github.com/agencyatlas/npidb-crawler/internal/store"
	storemem "github.com/agencyatlas/npidb-crawler/internal/store/memory"
	"github.com/agencyatlas/npidb-crawler/internal/store/postgres"
)

// App holds the shared, long-lived services for the scraper. It is
// initialized once at startup and handed to the commands that need it.
type App struct {
	Config       config.Config
	Logger       *zap.Logger
	Store        store.Store
	Snapshots    scrape.SnapshotStore
	Publisher    scrape.Publisher
	Factories    map[string]browser.SessionFactory
	Hub          *progress.Hub
	Runner       *scrape.Runner
	Orchestrator *scrape.Orchestrator
	Exporter     *export.Service
	Clock        scrape.Clock

	pubClose func() error
	gcsClose func() error
}

// NewApp builds every service the commands need from the loaded
// configuration. It fails fast: any service that cannot come up aborts
// startup with a wrapped error.
func NewApp(ctx context.Context, cfg config.Config) (*App, error) {
	logger, err := logging.New(cfg.Logging.Development)
	if err != nil {
		return nil, fmt.Errorf("initialize logger: %w", err)
	}
	metrics.Init()
	logger.Info("initializing services",
		zap.String("store", cfg.Store.Driver),
		zap.String("default_method", cfg.Scrape.DefaultMethod))

	a := &App{
		Config:   cfg,
		Logger:   logger,
		Clock:    system.New(),
		Exporter: export.NewService(logger),
	}
	if err := a.initStore(ctx, cfg); err != nil {
		return nil, err
	}
	if err := a.initSnapshots(ctx, cfg); err != nil {
		return nil, err
	}
	if err := a.initPublisher(ctx, cfg); err != nil {
		return nil, err
	}
	a.initFactories(cfg)

	sinkList := []progress.Sink{sinks.NewLogSink(logger)}
	promSink, err := sinks.NewPrometheusSink(nil)
	if err != nil {
		logger.Warn("prometheus progress sink unavailable", zap.Error(err))
	} else {
		sinkList = append(sinkList, promSink)
	}
	if a.Publisher != nil {
		sinkList = append(sinkList, sinks.NewPublisherSink(a.Publisher, cfg.PubSub.EventTopic))
	}
	a.Hub = progress.NewHub(progress.Options{
		Buffer:     cfg.Progress.Buffer,
		BatchSize:  cfg.Progress.BatchSize,
		FlushEvery: cfg.FlushInterval(),
		Logger:     logger,
	}, sinkList...)

	runner, err := scrape.NewRunner(scrape.RunnerConfig{
		StepTimeout:     cfg.StepTimeout(),
		MaxListingPages: cfg.Scrape.MaxListingPages,
		DefaultMethod:   cfg.Scrape.DefaultMethod,
		SummaryTopic:    cfg.Scrape.SummaryTopic,
	}, scrape.RunnerDeps{
		Factories: a.Factories,
		Gateway:   a.Store,
		Snapshots: a.Snapshots,
		Publisher: a.Publisher,
		Events:    a.Hub,
		Hasher:    sha256.New(),
		Clock:     a.Clock,
		IDs:       uuid.New(),
		Logger:    logger,
	})
	if err != nil {
		return nil, fmt.Errorf("initialize runner: %w", err)
	}
	a.Runner = runner
	a.Orchestrator = scrape.NewOrchestrator(runner, scrape.BatchConfig{
		Workers:       cfg.Batch.Workers,
		PacePerMinute: cfg.Batch.PacePerMinute,
	}, logger)

	logger.Info("services initialized")
	return a, nil
}

func (a *App) initStore(ctx context.Context, cfg config.Config) error {
	switch cfg.Store.Driver {
	case "memory":
		a.Logger.Info("using in-memory agency store")
		a.Store = storemem.New()
	case "postgres":
		a.Logger.Info("connecting to postgres")
		pg, err := postgres.New(ctx, postgres.Config{DSN: cfg.Store.DSN})
		if err != nil {
			return fmt.Errorf("initialize postgres store: %w", err)
		}
		if err := pg.EnsureSchema(ctx); err != nil {
			pg.Close()
			return fmt.Errorf("initialize postgres store: %w", err)
		}
		a.Store = pg
	default:
		return fmt.Errorf("unknown store driver: %s", cfg.Store.Driver)
	}
	return nil
}

func (a *App) initSnapshots(ctx context.Context, cfg config.Config) error {
	if !cfg.Archive.Enabled {
		a.Logger.Info("page snapshots disabled")
		return nil
	}
	switch cfg.Archive.Backend {
	case "local":
		snap, err := local.New(local.Config{BaseDir: cfg.Archive.LocalDir})
		if err != nil {
			return fmt.Errorf("initialize local snapshot store: %w", err)
		}
		a.Logger.Info("archiving page snapshots locally", zap.String("dir", cfg.Archive.LocalDir))
		a.Snapshots = snap
	case "gcs":
		client, err := storage.NewClient(ctx)
		if err != nil {
			return fmt.Errorf("initialize gcs client: %w", err)
		}
		snap, err := gcs.New(client, gcs.Config{Bucket: cfg.Archive.GCSBucket})
		if err != nil {
			_ = client.Close()
			return fmt.Errorf("initialize gcs snapshot store: %w", err)
		}
		a.Logger.Info("archiving page snapshots to gcs", zap.String("bucket", cfg.Archive.GCSBucket))
		a.Snapshots = snap
		a.gcsClose = client.Close
	case "memory":
		a.Snapshots = archivemem.New()
	default:
		return fmt.Errorf("unknown archive backend: %s", cfg.Archive.Backend)
	}
	return nil
}

func (a *App) initPublisher(ctx context.Context, cfg config.Config) error {
	if !cfg.PubSub.Enabled {
		return nil
	}
	switch cfg.PubSub.Backend {
	case "memory":
		a.Logger.Info("publishing run summaries in-memory")
		a.Publisher = publishmem.New()
	case "pubsub":
		pub, err := pubsub.New(ctx, cfg.PubSub.ProjectID)
		if err != nil {
			return fmt.Errorf("initialize pubsub publisher: %w", err)
		}
		a.Logger.Info("publishing run summaries", zap.String("project", cfg.PubSub.ProjectID))
		a.Publisher = pub
		a.pubClose = pub.Close
	default:
		return fmt.Errorf("unknown pubsub backend: %s", cfg.PubSub.Backend)
	}
	return nil
}

func (a *App) initFactories(cfg config.Config) {
	factories := make(map[string]browser.SessionFactory)
	if cfg.Browser.Headless.Enabled {
		factories[scrape.MethodHeadless] = headless.NewFactory(headless.Config{
			UserAgent:  cfg.Browser.UserAgent,
			SettleWait: cfg.SettleWait(),
			NoSandbox:  cfg.Browser.Headless.NoSandbox,
		}, a.Logger)
	}
	if cfg.Browser.Static.Enabled {
		factories[scrape.MethodStatic] = static.NewFactory(static.Config{
			UserAgent: cfg.Browser.UserAgent,
			Timeout:   cfg.StaticTimeout(),
			HostQPS:   cfg.Browser.Static.HostQPS,
		}, a.Logger)
	}
	if cfg.Browser.Colly.Enabled {
		factories[scrape.MethodColly] = collysession.NewFactory(collysession.Config{
			UserAgent:     cfg.Browser.UserAgent,
			RespectRobots: cfg.Browser.Colly.RespectRobots,
			Timeout:       cfg.CollyTimeout(),
			Delay:         cfg.CollyDelay(),
		}, a.Logger)
	}
	a.Factories = factories
}

// Close shuts services down in dependency order: the event hub first so
// queued events still reach their sinks, then the session factories,
// then the outbound clients and the store.
func (a *App) Close() {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := a.Hub.Close(ctx); err != nil {
		a.Logger.Warn("progress hub close failed", zap.Error(err))
	}
	for method, factory := range a.Factories {
		if err := factory.Close(); err != nil {
			a.Logger.Warn("session factory close failed",
				zap.String("method", method), zap.Error(err))
		}
	}
	if a.pubClose != nil {
		if err := a.pubClose(); err != nil {
			a.Logger.Warn("publisher close failed", zap.Error(err))
		}
	}
	if a.gcsClose != nil {
		if err := a.gcsClose(); err != nil {
			a.Logger.Warn("gcs client close failed", zap.Error(err))
		}
	}
	if a.Store != nil {
		a.Store.Close()
	}
	_ = a.Logger.Sync()
}
