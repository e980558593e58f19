// Package app builds the long-lived services from configuration and owns
// their shutdown. Backends are chosen per config section; the rest of the
// code only sees crawler interfaces.
package app

import (
	"context"
	"errors"
	"fmt"

	gcsstorage "cloud.google.com/go/storage"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/JakeFAU/tik-regcrawler/internal/alert"
	"github.com/JakeFAU/tik-regcrawler/internal/api"
	"github.com/JakeFAU/tik-regcrawler/internal/clock/system"
	"github.com/JakeFAU/tik-regcrawler/internal/config"
	"github.com/JakeFAU/tik-regcrawler/internal/crawler"
	"github.com/JakeFAU/tik-regcrawler/internal/dedup"
	"github.com/JakeFAU/tik-regcrawler/internal/extract"
	"github.com/JakeFAU/tik-regcrawler/internal/fetcher"
	"github.com/JakeFAU/tik-regcrawler/internal/fetcher/automation"
	collyfetcher "github.com/JakeFAU/tik-regcrawler/internal/fetcher/colly"
	"github.com/JakeFAU/tik-regcrawler/internal/health"
	"github.com/JakeFAU/tik-regcrawler/internal/id/uuid"
	"github.com/JakeFAU/tik-regcrawler/internal/metrics"
	"github.com/JakeFAU/tik-regcrawler/internal/orchestrator"
	"github.com/JakeFAU/tik-regcrawler/internal/progress"
	"github.com/JakeFAU/tik-regcrawler/internal/progress/sinks"
	"github.com/JakeFAU/tik-regcrawler/internal/publisher/pubsub"
	"github.com/JakeFAU/tik-regcrawler/internal/relevance"
	"github.com/JakeFAU/tik-regcrawler/internal/selector"
	"github.com/JakeFAU/tik-regcrawler/internal/source"
	"github.com/JakeFAU/tik-regcrawler/internal/storage/gcs"
	"github.com/JakeFAU/tik-regcrawler/internal/storage/local"
	"github.com/JakeFAU/tik-regcrawler/internal/storage/memory"
	"github.com/JakeFAU/tik-regcrawler/internal/storage/postgres"
	"github.com/JakeFAU/tik-regcrawler/internal/storage/redis"
	"github.com/JakeFAU/tik-regcrawler/internal/storage/sqlite"
)

// HealthStore is a health store that can also be read without side effects.
type HealthStore interface {
	crawler.HealthStore
	api.HealthReader
}

// Options override pieces of the default wiring, mostly for tests.
type Options struct {
	// Registerer receives the progress Prometheus collectors. Nil uses the
	// default registerer.
	Registerer prometheus.Registerer
	Clock      crawler.Clock
	IDs        crawler.IDGenerator
}

// App holds the wired services.
type App struct {
	Config       config.Config
	Logger       *zap.Logger
	Sources      *source.Catalog
	Runs         crawler.RunStore
	Health       HealthStore
	Selector     *selector.Selector
	Executor     *fetcher.Executor
	Orchestrator *orchestrator.Orchestrator
	Checks       []api.Check
	IDs          crawler.IDGenerator
	Clock        crawler.Clock

	hub     *progress.Hub
	closers []closer
}

type closer struct {
	name string
	fn   func() error
}

type records struct {
	docs   crawler.DocumentStore
	health HealthStore
	runs   crawler.RunStore
	stats  crawler.SourceStatsWriter
}

// New wires every service described by cfg. On error, anything already
// opened is closed before returning.
func New(ctx context.Context, cfg config.Config, logger *zap.Logger, opts Options) (a *App, err error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.Clock == nil {
		opts.Clock = system.New()
	}
	if opts.IDs == nil {
		opts.IDs = uuid.New()
	}
	metrics.Init()

	a = &App{Config: cfg, Logger: logger, IDs: opts.IDs, Clock: opts.Clock}
	defer func() {
		if err != nil {
			a.Close(context.WithoutCancel(ctx))
			a = nil
		}
	}()

	recs, err := a.openRecords(ctx)
	if err != nil {
		return nil, err
	}
	a.Runs = recs.runs
	a.Health = recs.health

	ttl, err := a.openTTLStore(ctx)
	if err != nil {
		return nil, err
	}
	blobs, err := a.openBlobStore(ctx)
	if err != nil {
		return nil, err
	}
	alerter, err := a.buildAlerter(ctx)
	if err != nil {
		return nil, err
	}
	executor, err := a.buildExecutor()
	if err != nil {
		return nil, err
	}
	a.Executor = executor

	catalog, err := source.NewCatalog(cfg.Sources, recs.stats)
	if err != nil {
		return nil, fmt.Errorf("build source catalog: %w", err)
	}
	if err := catalog.Load(ctx); err != nil {
		return nil, err
	}
	a.Sources = catalog

	table := relevance.DefaultTable()
	if cfg.Relevance.KeywordsFile != "" {
		table, err = relevance.LoadTable(cfg.Relevance.KeywordsFile)
		if err != nil {
			return nil, fmt.Errorf("load keyword table: %w", err)
		}
	}

	hub, err := a.buildProgress(opts.Registerer)
	if err != nil {
		return nil, err
	}
	a.hub = hub

	extractor := extract.New(extract.Config{
		MinTitleLength: cfg.Extract.MinTitleLength,
		MaxBodyLength:  cfg.Extract.MaxBodyLength,
	})
	a.Selector = selector.New(cfg.Selector, executor, selector.NewCache(ttl, cfg.Cache.StrategyTTL), opts.Clock, logger)
	a.Orchestrator = orchestrator.New(cfg.Run, orchestrator.Deps{
		Sources:    catalog,
		Adapters:   source.DefaultRegistry(extractor),
		Executor:   executor,
		Selector:   a.Selector,
		Scorer:     relevance.NewScorer(table),
		Threshold:  cfg.Relevance.Policy(),
		Gateway:    dedup.NewGateway(recs.docs, opts.IDs, opts.Clock, logger),
		Health:     health.NewMonitor(recs.health, opts.Clock, cfg.Health.FailureThreshold, logger),
		Alerter:    alerter,
		Provenance: source.NewProvenanceCache(ttl, cfg.Cache.ProvenanceTTL),
		Runs:       recs.runs,
		Blobs:      blobs,
		IDs:        opts.IDs,
		Clock:      opts.Clock,
		Progress:   hub,
	}, logger)

	logger.Info("application services initialized",
		zap.String("storage_backend", cfg.Storage.Backend),
		zap.String("blob_store", cfg.Storage.Blob),
		zap.Bool("redis", cfg.Redis.Enabled),
		zap.Bool("pubsub", cfg.PubSub.Enabled),
		zap.Int("sources", len(cfg.Sources)),
		zap.Any("strategies", executor.Available(crawler.DefaultStrategies())),
	)
	return a, nil
}

func (a *App) openRecords(ctx context.Context) (records, error) {
	switch a.Config.Storage.Backend {
	case config.BackendPostgres:
		store, err := postgres.New(ctx, a.Config.DB)
		if err != nil {
			return records{}, fmt.Errorf("initialize postgres: %w", err)
		}
		a.addCloser("postgres", func() error { store.Close(); return nil })
		if err := store.Migrate(ctx); err != nil {
			return records{}, fmt.Errorf("migrate postgres: %w", err)
		}
		a.Checks = append(a.Checks, api.Check{Name: "postgres", Fn: store.Ping})
		return records{docs: store, health: store, runs: store, stats: store}, nil
	case config.BackendSQLite:
		store, err := sqlite.Open(ctx, a.Config.SQLite.Path)
		if err != nil {
			return records{}, fmt.Errorf("initialize sqlite: %w", err)
		}
		a.addCloser("sqlite", store.Close)
		a.Checks = append(a.Checks, api.Check{Name: "sqlite", Fn: store.Ping})
		return records{docs: store, health: store, runs: store, stats: store}, nil
	case config.BackendMemory:
		a.Logger.Info("using in-memory record store; documents are lost on exit")
		return records{
			docs:   memory.NewDocumentStore(),
			health: memory.NewHealthStore(),
			runs:   memory.NewRunStore(),
			stats:  memory.NewStatsStore(),
		}, nil
	default:
		return records{}, fmt.Errorf("unknown storage backend: %s", a.Config.Storage.Backend)
	}
}

func (a *App) openTTLStore(ctx context.Context) (crawler.TTLStore, error) {
	if !a.Config.Redis.Enabled {
		return memory.NewTTLStore(a.Clock), nil
	}
	store, err := redis.New(ctx, a.Config.Redis.Config)
	if err != nil {
		return nil, fmt.Errorf("initialize redis: %w", err)
	}
	a.addCloser("redis", store.Close)
	a.Checks = append(a.Checks, api.Check{Name: "redis", Fn: store.Ping})
	return store, nil
}

// openBlobStore returns nil when snapshots are disabled.
func (a *App) openBlobStore(ctx context.Context) (crawler.BlobStore, error) {
	cfg := a.Config.Storage
	switch cfg.Blob {
	case config.BlobNone:
		return nil, nil
	case config.BlobMemory:
		return memory.NewBlobStore(), nil
	case config.BlobLocal:
		store, err := local.New(local.Config{BaseDir: cfg.LocalDir})
		if err != nil {
			return nil, fmt.Errorf("initialize local blob store: %w", err)
		}
		return store, nil
	case config.BlobGCS:
		client, err := gcsstorage.NewClient(ctx)
		if err != nil {
			return nil, fmt.Errorf("create gcs client: %w", err)
		}
		a.addCloser("gcs", client.Close)
		store, err := gcs.New(client, gcs.Config{Bucket: cfg.GCSBucket, Prefix: cfg.Prefix})
		if err != nil {
			return nil, fmt.Errorf("initialize gcs blob store: %w", err)
		}
		return store, nil
	default:
		return nil, fmt.Errorf("unknown blob store: %s", cfg.Blob)
	}
}

func (a *App) buildAlerter(ctx context.Context) (crawler.Alerter, error) {
	logAlerter := alert.NewLogAlerter(a.Logger)
	if !a.Config.PubSub.Enabled {
		return logAlerter, nil
	}
	pub, err := pubsub.New(ctx, a.Config.PubSub.ProjectID)
	if err != nil {
		return nil, fmt.Errorf("initialize pubsub: %w", err)
	}
	a.addCloser("pubsub", pub.Close)
	return alert.Multi{logAlerter, alert.NewPublishAlerter(pub, a.Config.Health.AlertTopic)}, nil
}

func (a *App) buildExecutor() (*fetcher.Executor, error) {
	cfg := a.Config
	executor := fetcher.NewExecutor(fetcher.Config{Timeout: cfg.Fetch.Timeout}, nil, a.Logger)
	executor.Register(crawler.StrategyPlain, collyfetcher.New(collyfetcher.Config{
		Profiles:    fetcher.DesktopProfiles,
		Timeout:     cfg.Fetch.Timeout,
		MaxBodySize: cfg.Fetch.MaxBodySize,
	}))
	executor.Register(crawler.StrategyAlternateProfile, collyfetcher.New(collyfetcher.Config{
		Profiles:    fetcher.MobileProfiles,
		Timeout:     cfg.Fetch.Timeout,
		MaxBodySize: cfg.Fetch.MaxBodySize,
	}))

	runners := map[string]automation.Runner{}
	for _, b := range []struct {
		strategy crawler.Strategy
		runner   string
		stealth  bool
	}{
		{strategy: crawler.StrategyAutomatedBrowser, runner: cfg.Automation.BrowserRunner},
		{strategy: crawler.StrategyStealthBrowser, runner: cfg.Automation.StealthRunner, stealth: true},
	} {
		if b.runner == config.RunnerNone {
			continue
		}
		r, ok := runners[b.runner]
		if !ok {
			var err error
			if r, err = a.buildRunner(b.runner); err != nil {
				return nil, err
			}
			runners[b.runner] = r
		}
		executor.Register(b.strategy, automation.NewFetcher(automation.Config{
			Stealth:               b.stealth,
			Timeout:               cfg.Fetch.Timeout,
			ScrollSteps:           cfg.Automation.ScrollSteps,
			MaxPreNavigationDelay: cfg.Automation.MaxPreNavigationDelay,
			Profiles:              fetcher.DesktopProfiles,
		}, r))
	}
	return executor, nil
}

func (a *App) buildRunner(name string) (automation.Runner, error) {
	cfg := a.Config.Automation
	switch name {
	case config.RunnerChromedp:
		r, err := automation.NewChromedp(automation.ChromedpConfig{
			MaxParallel: cfg.MaxParallel,
			SettleDelay: cfg.SettleDelay,
		})
		if err != nil {
			return nil, fmt.Errorf("initialize chromedp: %w", err)
		}
		a.addCloser("chromedp", func() error { r.Close(); return nil })
		return r, nil
	case config.RunnerRod:
		r := automation.NewRod(automation.RodConfig{RemoteURL: cfg.RodRemoteURL, BinPath: cfg.RodBinPath})
		a.addCloser("rod", r.Close)
		return r, nil
	case config.RunnerExec:
		return automation.NewExec(cfg.ExecCommand, cfg.ExecArgs...), nil
	default:
		return nil, fmt.Errorf("unknown automation runner: %s", name)
	}
}

func (a *App) buildProgress(reg prometheus.Registerer) (*progress.Hub, error) {
	cfg := a.Config.Progress
	hubSinks := []progress.Sink{sinks.NewLogSink(a.Logger)}
	if cfg.Prometheus {
		if reg == nil {
			reg = prometheus.DefaultRegisterer
		}
		ps, err := sinks.NewPrometheusSink(reg)
		if err != nil {
			return nil, fmt.Errorf("register progress metrics: %w", err)
		}
		hubSinks = append(hubSinks, ps)
	}
	return progress.NewHub(progress.Config{
		BufferSize:     cfg.BufferSize,
		MaxBatchEvents: cfg.MaxBatchEvents,
		FlushInterval:  cfg.FlushInterval,
		Logger:         a.Logger,
	}, hubSinks...), nil
}

func (a *App) addCloser(name string, fn func() error) {
	a.closers = append(a.closers, closer{name: name, fn: fn})
}

// Close drains the progress hub, then releases backends in reverse order of
// creation. Errors are logged, not returned.
func (a *App) Close(ctx context.Context) {
	if a.hub != nil {
		if err := a.hub.Close(ctx); err != nil && !errors.Is(err, context.Canceled) {
			a.Logger.Warn("progress hub did not drain", zap.Error(err))
		}
	}
	for i := len(a.closers) - 1; i >= 0; i-- {
		c := a.closers[i]
		if err := c.fn(); err != nil {
			a.Logger.Warn("error closing service", zap.String("service", c.name), zap.Error(err))
		}
	}
	a.closers = nil
	_ = a.Logger.Sync()
}
