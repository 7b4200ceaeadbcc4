// Package app initializes and holds long-lived harvester services, acting as a dependency injection container.
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path/filepath"
	"time"

	gcsstorage "cloud.google.com/go/storage"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.uber.org/zap"

	"github.com/JakeFAU/topic-harvester/internal/assembler"
	"github.com/JakeFAU/topic-harvester/internal/browser"
	"github.com/JakeFAU/topic-harvester/internal/clock/system"
	"github.com/JakeFAU/topic-harvester/internal/config"
	"github.com/JakeFAU/topic-harvester/internal/controller"
	"github.com/JakeFAU/topic-harvester/internal/crawler"
	"github.com/JakeFAU/topic-harvester/internal/dispatcher"
	"github.com/JakeFAU/topic-harvester/internal/extract"
	"github.com/JakeFAU/topic-harvester/internal/extractrun"
	collyfetcher "github.com/JakeFAU/topic-harvester/internal/fetcher/colly"
	"github.com/JakeFAU/topic-harvester/internal/hash/sha256"
	"github.com/JakeFAU/topic-harvester/internal/id/uuid"
	"github.com/JakeFAU/topic-harvester/internal/metrics"
	"github.com/JakeFAU/topic-harvester/internal/policy/ratelimit"
	"github.com/JakeFAU/topic-harvester/internal/publisher/pubsub"
	"github.com/JakeFAU/topic-harvester/internal/runlog"
	"github.com/JakeFAU/topic-harvester/internal/storage/gcs"
	"github.com/JakeFAU/topic-harvester/internal/storage/local"
	"github.com/JakeFAU/topic-harvester/internal/storage/memory"
	"github.com/JakeFAU/topic-harvester/internal/storage/postgres"
	"github.com/JakeFAU/topic-harvester/internal/telemetry"
	"github.com/JakeFAU/topic-harvester/internal/timestamp"
	"github.com/JakeFAU/topic-harvester/internal/worker"
)

// SessionFactory opens the browser used by the crawl controller. Tests replace it.
type SessionFactory func(cfg browser.Config, logger *zap.Logger) (crawler.BrowserSession, error)

// App holds the shared, long-lived services for one harvester process.
type App struct {
	cfg          config.Config
	logger       *zap.Logger
	runID        string
	ids          crawler.IDGenerator
	clock        crawler.Clock
	store        crawler.ObjectStore
	records      crawler.RecordStore
	publisher    crawler.Publisher
	sessions     SessionFactory
	tracing      *telemetry.Provider
	traceOptions []sdktrace.TracerProviderOption
	metricsSv    *http.Server
	closers      []io.Closer
}

// Option customizes App construction.
type Option func(*App)

// WithSessionFactory overrides how browser sessions are opened.
func WithSessionFactory(f SessionFactory) Option {
	return func(a *App) { a.sessions = f }
}

// WithObjectStore injects an object store instead of building one from config.
func WithObjectStore(store crawler.ObjectStore) Option {
	return func(a *App) { a.store = store }
}

// WithPublisher injects the acquisition event publisher.
func WithPublisher(p crawler.Publisher) Option {
	return func(a *App) { a.publisher = p }
}

// WithIDGenerator overrides how the run ID is generated.
func WithIDGenerator(ids crawler.IDGenerator) Option {
	return func(a *App) { a.ids = ids }
}

// WithTraceOptions appends tracer provider options, e.g. an in-process span processor.
func WithTraceOptions(opts ...sdktrace.TracerProviderOption) Option {
	return func(a *App) { a.traceOptions = append(a.traceOptions, opts...) }
}

// New builds every service named by cfg. It fails fast if any of them cannot be initialized.
func New(ctx context.Context, cfg config.Config, logger *zap.Logger, opts ...Option) (*App, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	a := &App{
		cfg:      cfg,
		ids:      uuid.New(),
		clock:    system.New(),
		sessions: defaultSessionFactory,
	}
	for _, opt := range opts {
		opt(a)
	}
	runID, err := a.ids.NewID()
	if err != nil {
		return nil, fmt.Errorf("generate run id: %w", err)
	}
	a.runID = runID
	a.logger = logger.With(zap.String("run_id", runID))

	a.tracing, err = telemetry.New(ctx, telemetry.Config{
		ServiceName: cfg.Telemetry.ServiceName,
		ProjectID:   cfg.TraceProject(),
		SampleRatio: cfg.Telemetry.SampleRatio,
	}, a.traceOptions...)
	if err != nil {
		return nil, fmt.Errorf("init tracing: %w", err)
	}
	a.closers = append(a.closers, a.tracing)

	if a.store == nil {
		if a.store, err = a.buildObjectStore(ctx); err != nil {
			a.Close()
			return nil, err
		}
	}
	if a.records, err = a.buildRecordStore(ctx); err != nil {
		a.Close()
		return nil, err
	}
	if a.publisher == nil && cfg.Acquire.Topic != "" {
		pub, err := pubsub.NewFromProject(ctx, cfg.PubSub.ProjectID)
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("init publisher: %w", err)
		}
		a.publisher = pub
		a.closers = append(a.closers, pub)
	}
	a.startMetrics()

	a.logger.Info("services initialized",
		zap.String("storage", cfg.Storage.Backend),
		zap.String("records", cfg.Records.Backend),
		zap.Bool("publisher", a.publisher != nil),
		zap.Bool("trace_export", a.tracing.Exported()),
	)
	return a, nil
}

// RunID identifies this process in logs, events and summaries.
func (a *App) RunID() string {
	return a.runID
}

// Logger returns the run-scoped logger.
func (a *App) Logger() *zap.Logger {
	return a.logger
}

// Store returns the shared object store.
func (a *App) Store() crawler.ObjectStore {
	return a.store
}

func (a *App) buildObjectStore(ctx context.Context) (crawler.ObjectStore, error) {
	switch a.cfg.Storage.Backend {
	case config.BackendLocal:
		store, err := local.New(local.Config{BaseDir: a.cfg.Storage.BaseDir})
		if err != nil {
			return nil, fmt.Errorf("init local storage: %w", err)
		}
		return store, nil
	case config.BackendGCS:
		client, err := gcsstorage.NewClient(ctx)
		if err != nil {
			return nil, fmt.Errorf("create gcs client: %w", err)
		}
		a.closers = append(a.closers, client)
		store, err := gcs.New(client, gcs.Config{Bucket: a.cfg.Storage.GCSBucket, Prefix: a.cfg.Storage.Prefix})
		if err != nil {
			return nil, fmt.Errorf("init gcs storage: %w", err)
		}
		return store, nil
	case config.BackendMemory:
		return memory.NewBlobStore(), nil
	default:
		return nil, fmt.Errorf("unknown storage backend: %s", a.cfg.Storage.Backend)
	}
}

func (a *App) buildRecordStore(ctx context.Context) (crawler.RecordStore, error) {
	switch a.cfg.Records.Backend {
	case config.BackendObject:
		return assembler.NewObjectRecordStore(a.store), nil
	case config.BackendPostgres:
		store, err := postgres.NewRecordStore(ctx, postgres.RecordStoreConfig{
			DSN:   a.cfg.Records.DSN,
			Table: a.cfg.Records.Table,
		})
		if err != nil {
			return nil, fmt.Errorf("init postgres records: %w", err)
		}
		a.closers = append(a.closers, closerFunc(func() error { store.Close(); return nil }))
		if err := store.EnsureSchema(ctx); err != nil {
			return nil, fmt.Errorf("ensure records schema: %w", err)
		}
		return store, nil
	default:
		return nil, fmt.Errorf("unknown records backend: %s", a.cfg.Records.Backend)
	}
}

func (a *App) startMetrics() {
	metrics.Init()
	if a.cfg.Metrics.ListenAddr == "" {
		return
	}
	a.metricsSv = &http.Server{
		Addr:              a.cfg.Metrics.ListenAddr,
		Handler:           metrics.Router(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		a.logger.Info("metrics server started", zap.String("addr", a.cfg.Metrics.ListenAddr))
		if err := a.metricsSv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.logger.Error("metrics server error", zap.Error(err))
		}
	}()
}

// NewCrawler wires the controller with its browser, worker pool and acquisition log.
// The returned cleanup closes the browser and the log.
func (a *App) NewCrawler() (*controller.Controller, func(), error) {
	norm, err := timestamp.New(a.cfg.Extract.Timezone)
	if err != nil {
		return nil, nil, err
	}
	session, err := a.sessions(browser.Config{
		Headless:          a.cfg.Crawl.Headless,
		UserAgent:         a.cfg.Crawl.UserAgent,
		NavigationTimeout: a.cfg.Crawl.NavTimeout,
	}, a.logger.Named("browser"))
	if err != nil {
		return nil, nil, fmt.Errorf("%w: open browser: %v", crawler.ErrControllerFatal, err)
	}
	log, err := runlog.Open(filepath.Join(a.cfg.RunLog.Dir, runlog.AcquisitionFile))
	if err != nil {
		session.Close()
		return nil, nil, err
	}

	fetcher := collyfetcher.New(collyfetcher.Config{
		UserAgent: a.cfg.Crawl.UserAgent,
		Timeout:   a.cfg.Acquire.RequestTimeout,
		Headers:   collyfetcher.HeadersFromMap(a.cfg.Acquire.Headers),
	})
	limiter := ratelimit.New(ratelimit.Config{RequestsPerSecond: a.cfg.Acquire.RequestsPerSecond}, a.clock)
	w := worker.New(a.store, fetcher, limiter, a.publisher, sha256.New(), a.clock, worker.Config{
		Keys:           crawler.NewKeyScheme(a.cfg.Crawl.SitePrefix),
		DocumentDelay:  a.cfg.Acquire.DocumentDelay,
		ImageDelay:     a.cfg.Acquire.ImageDelay,
		ImageCDNPrefix: a.cfg.Acquire.ImageCDNPrefix,
		Topic:          a.cfg.Acquire.Topic,
		RunID:          a.runID,
		Tracer:         a.tracing.Tracer(worker.TracerName),
	}, a.logger.Named("worker"))
	pool := dispatcher.New(w, a.cfg.Acquire.Concurrency, a.logger.Named("dispatcher"))

	ctrl := controller.New(session, pool, log, a.clock, norm, controller.Config{
		ListingURL:  a.cfg.Crawl.ListingURL,
		ConsentID:   a.cfg.Crawl.ConsentID,
		CardID:      a.cfg.Crawl.CardID,
		TimestampID: a.cfg.Crawl.TimestampID,
		LoadMoreID:  a.cfg.Crawl.LoadMoreID,
		CutoffYear:  a.cfg.Crawl.CutoffYear,
		SettleDelay: a.cfg.Crawl.SettleDelay,
		RunID:       a.runID,
	}, a.logger.Named("controller"))

	cleanup := func() {
		session.Close()
		if err := log.Close(); err != nil {
			a.logger.Warn("close acquisition log", zap.Error(err))
		}
	}
	return ctrl, cleanup, nil
}

// NewExtractor wires the conversion pass over every stored document.
func (a *App) NewExtractor() (*extractrun.Runner, func(), error) {
	norm, err := timestamp.New(a.cfg.Extract.Timezone)
	if err != nil {
		return nil, nil, err
	}
	log, err := runlog.Open(filepath.Join(a.cfg.RunLog.Dir, runlog.ConversionFile))
	if err != nil {
		return nil, nil, err
	}
	asm := assembler.New(a.records, crawler.NewKeyScheme(a.cfg.Crawl.SitePrefix), a.logger.Named("assembler"))
	runner := extractrun.New(
		a.store,
		extract.New(norm, a.logger.Named("extract")),
		asm,
		log,
		a.clock,
		extractrun.Config{
			Concurrency: a.cfg.Extract.Concurrency,
			RunID:       a.runID,
			Tracer:      a.tracing.Tracer(extractrun.TracerName),
		},
		a.logger.Named("extractrun"),
	)
	cleanup := func() {
		if err := log.Close(); err != nil {
			a.logger.Warn("close conversion log", zap.Error(err))
		}
	}
	return runner, cleanup, nil
}

// Close gracefully shuts down all services in the container, newest first.
func (a *App) Close() {
	if a.metricsSv != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := a.metricsSv.Shutdown(ctx); err != nil {
			a.logger.Warn("metrics server shutdown", zap.Error(err))
		}
		cancel()
	}
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i].Close(); err != nil {
			a.logger.Warn("error closing service", zap.Error(err))
		}
	}
	a.closers = nil
}

func defaultSessionFactory(cfg browser.Config, logger *zap.Logger) (crawler.BrowserSession, error) {
	return browser.NewSession(cfg, logger)
}

type closerFunc func() error

func (f closerFunc) Close() error { return f() }
