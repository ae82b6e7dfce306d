// Package server provides the application container: it builds every
// dependency from config and owns their shutdown.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"cloud.google.com/go/pubsub"
	"cloud.google.com/go/storage"
	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/borgius/n8n-local/internal/api"
	"github.com/borgius/n8n-local/internal/archive"
	"github.com/borgius/n8n-local/internal/clock/system"
	"github.com/borgius/n8n-local/internal/config"
	"github.com/borgius/n8n-local/internal/hash/sha256"
	"github.com/borgius/n8n-local/internal/id/uuid"
	"github.com/borgius/n8n-local/internal/ingest"
	"github.com/borgius/n8n-local/internal/job"
	"github.com/borgius/n8n-local/internal/jobspy"
	"github.com/borgius/n8n-local/internal/logging"
	memorypublisher "github.com/borgius/n8n-local/internal/publisher/memory"
	gcppublisher "github.com/borgius/n8n-local/internal/publisher/pubsub"
	redispublisher "github.com/borgius/n8n-local/internal/publisher/redis"
	"github.com/borgius/n8n-local/internal/scheduler"
	"github.com/borgius/n8n-local/internal/storage/gcs"
	"github.com/borgius/n8n-local/internal/storage/local"
	memorystorage "github.com/borgius/n8n-local/internal/storage/memory"
	pgstore "github.com/borgius/n8n-local/internal/storage/postgres"
	"github.com/borgius/n8n-local/internal/store"
	"github.com/borgius/n8n-local/internal/telemetry"
)

// ErrNoDatabase is returned by operations that need Postgres when the app
// was built in dry-run mode.
var ErrNoDatabase = errors.New("postgres is not configured in dry-run mode")

// BuildOptions adjusts Build.
type BuildOptions struct {
	// DryRun swaps Postgres for the in-memory job store.
	DryRun bool
	// Logger overrides the logger built from config.
	Logger *zap.Logger
}

// App contains the application's dependencies.
type App struct {
	cfg            config.Config
	logger         *zap.Logger
	searcher       *jobspy.Client
	jobs           store.JobRepository
	pgStore        *pgstore.JobStore
	service        *ingest.Service
	pubsubClient   *pubsub.Client
	pubsubPub      *gcppublisher.Publisher
	storage        *storage.Client
	redis          *goredis.Client
	tracerShutdown func(context.Context) error
}

// Build creates the application's dependencies.
func Build(ctx context.Context, cfg config.Config, opts BuildOptions) (*App, error) {
	logger := opts.Logger
	if logger == nil {
		var err error
		logger, err = logging.New(cfg.Logging)
		if err != nil {
			return nil, fmt.Errorf("logger init failed: %w", err)
		}
	}
	app := &App{cfg: cfg, logger: logger}

	if cfg.Telemetry.ServiceName != "" {
		tp, err := telemetry.InitTracerProvider(ctx, cfg.Telemetry.ServiceName)
		if err != nil {
			return nil, fmt.Errorf("tracer init failed: %w", err)
		}
		app.tracerShutdown = tp.Shutdown
	}

	app.logger.Info("building application dependencies", zap.Bool("dry_run", opts.DryRun))
	normalizer, err := job.NewNormalizer(job.NormalizerOptions{
		Strategy: job.IDStrategy(cfg.Ingest.IDStrategy),
		Logger:   logger.Named("normalizer"),
		Clock:    system.New(),
		Hasher:   sha256.New(),
		ShortIDs: uuid.New(),
	})
	if err != nil {
		return nil, fmt.Errorf("normalizer init failed: %w", err)
	}

	if err := app.setupDatabase(ctx, normalizer, opts.DryRun); err != nil {
		app.closeInfrastructure()
		return nil, err
	}

	arch, err := app.setupArchive(ctx)
	if err != nil {
		app.closeInfrastructure()
		return nil, err
	}

	publisher, err := app.setupPublisher(ctx)
	if err != nil {
		app.closeInfrastructure()
		return nil, err
	}

	app.searcher = jobspy.New(cfg.JobSpy.BaseURL(), cfg.JobSpy.Timeout(), logger)
	app.service, err = ingest.New(ingest.Options{
		Searcher:  app.searcher,
		Jobs:      app.jobs,
		Archive:   arch,
		Publisher: publisher,
		Topic:     cfg.Events.Topic,
		IDs:       uuid.New(),
		Clock:     system.New(),
		Logger:    logger,
	})
	if err != nil {
		app.closeInfrastructure()
		return nil, fmt.Errorf("ingest service init failed: %w", err)
	}
	return app, nil
}

// Logger returns the application logger.
func (a *App) Logger() *zap.Logger { return a.logger }

// Service returns the ingest pipeline.
func (a *App) Service() *ingest.Service { return a.service }

// Jobs returns the configured job repository.
func (a *App) Jobs() store.JobRepository { return a.jobs }

// Migrate creates the jobs schema and table.
func (a *App) Migrate(ctx context.Context) error {
	if a.pgStore == nil {
		return ErrNoDatabase
	}
	return a.pgStore.EnsureSchema(ctx)
}

// Handler builds the HTTP API.
func (a *App) Handler() http.Handler {
	var ready api.Pinger
	if a.pgStore != nil {
		ready = a.pgStore
	}
	return api.NewServer(a.service, a.jobs, ready, a.cfg.Server, a.logger).Handler()
}

// Serve runs the HTTP API until ctx is canceled or a signal arrives.
func (a *App) Serve(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", a.cfg.Server.Port),
		Handler:           a.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		a.logger.Info("http server started", zap.Int("port", a.cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
			stop()
		}
	}()

	<-ctx.Done()
	a.logger.Info("shutdown initiated")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		a.logger.Error("server shutdown error", zap.Error(err))
	}

	select {
	case err := <-errCh:
		return fmt.Errorf("http server: %w", err)
	default:
		return nil
	}
}

// NewScheduler builds a scheduler for the configured saved searches. The
// redis lock is used whenever redis.addr is set.
func (a *App) NewScheduler(runOnStart bool) (*scheduler.Scheduler, error) {
	opts := scheduler.Options{
		Runner:     a.service,
		Searches:   a.cfg.Schedule.Searches,
		LockTTL:    a.cfg.Schedule.LockTTL,
		RunOnStart: runOnStart,
		Logger:     a.logger,
	}
	if client := a.redisClient(); client != nil {
		opts.Locker = scheduler.NewRedisLocker(client)
	}
	s, err := scheduler.New(opts)
	if err != nil {
		return nil, fmt.Errorf("scheduler init failed: %w", err)
	}
	return s, nil
}

// RunSchedule starts the scheduler and blocks until ctx is canceled or a
// signal arrives.
func (a *App) RunSchedule(ctx context.Context, runOnStart bool) error {
	if len(a.cfg.Schedule.Searches) == 0 {
		return fmt.Errorf("no saved searches configured under schedule.searches")
	}
	s, err := a.NewScheduler(runOnStart)
	if err != nil {
		return err
	}
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := s.Start(ctx); err != nil {
		return fmt.Errorf("start scheduler: %w", err)
	}
	<-ctx.Done()
	<-s.Stop().Done()
	return nil
}

// Close gracefully shuts down the application.
func (a *App) Close(ctx context.Context) error {
	a.closeInfrastructure()
	a.closeObservability(ctx)
	a.logger.Info("shutdown complete")
	return nil
}

func (a *App) closeInfrastructure() {
	if a.pubsubPub != nil {
		a.pubsubPub.Close()
	}
	if a.pubsubClient != nil {
		if err := a.pubsubClient.Close(); err != nil {
			a.logger.Warn("pubsub client close failed", zap.Error(err))
		}
	}
	if a.storage != nil {
		if err := a.storage.Close(); err != nil {
			a.logger.Warn("gcs client close failed", zap.Error(err))
		}
	}
	if a.redis != nil {
		if err := a.redis.Close(); err != nil {
			a.logger.Warn("redis client close failed", zap.Error(err))
		}
	}
	if a.pgStore != nil {
		a.pgStore.Close()
	}
}

func (a *App) closeObservability(ctx context.Context) {
	if a.tracerShutdown != nil {
		if err := a.tracerShutdown(ctx); err != nil {
			a.logger.Warn("tracer shutdown failed", zap.Error(err))
		}
	}
	// Sync fails on stderr/stdout for some terminals; nothing useful to do.
	_ = a.logger.Sync()
}

func (a *App) setupDatabase(ctx context.Context, normalizer *job.Normalizer, dryRun bool) error {
	if dryRun {
		a.logger.Info("dry run: using in-memory job store")
		a.jobs = memorystorage.NewJobStore(normalizer, a.cfg.Ingest.Strict, a.logger)
		return nil
	}
	pg := a.cfg.Postgres
	var err error
	a.pgStore, err = pgstore.NewJobStore(ctx, pgstore.JobStoreConfig{
		DSN:             pg.DSN(),
		Schema:          pg.Schema,
		Table:           pg.Table,
		MaxConns:        pg.MaxConns,
		MinConns:        pg.MinConns,
		MaxConnLifetime: pg.MaxConnLifetime,
		Strict:          a.cfg.Ingest.Strict,
	}, normalizer, a.logger)
	if err != nil {
		return fmt.Errorf("job store init failed: %w", err)
	}
	a.jobs = a.pgStore
	a.logger.Info("postgres job store initialized",
		zap.String("host", pg.Host),
		zap.String("database", pg.Database),
		zap.String("table", pg.Schema+"."+pg.Table),
	)
	return nil
}

func (a *App) setupArchive(ctx context.Context) (*archive.Archive, error) {
	cfg := a.cfg.Archive
	if !cfg.Enabled {
		return nil, nil
	}
	var blobs store.BlobStore
	var err error
	switch cfg.Backend {
	case "gcs":
		a.storage, err = storage.NewClient(ctx)
		if err != nil {
			return nil, fmt.Errorf("gcs client init failed: %w", err)
		}
		blobs, err = gcs.New(a.storage, gcs.Config{
			Bucket:   cfg.Bucket,
			Metadata: map[string]string{"source": "jobspy"},
		})
		if err != nil {
			return nil, fmt.Errorf("gcs blob store init failed: %w", err)
		}
	case "local":
		blobs, err = local.New(local.Config{BaseDir: cfg.BaseDir})
		if err != nil {
			return nil, fmt.Errorf("local blob store init failed: %w", err)
		}
	default:
		blobs = memorystorage.NewBlobStore()
	}
	a.logger.Info("response archive enabled", zap.String("backend", cfg.Backend), zap.String("prefix", cfg.Prefix))
	return archive.New(blobs, cfg.Prefix)
}

func (a *App) setupPublisher(ctx context.Context) (store.Publisher, error) {
	switch a.cfg.Events.Backend {
	case "none":
		a.logger.Info("ingest events disabled")
		return nil, nil
	case "redis":
		a.logger.Info("publishing ingest events to redis stream", zap.String("stream", a.cfg.Events.Topic))
		return redispublisher.New(a.redisClient(), 0), nil
	case "pubsub":
		var err error
		a.pubsubClient, err = pubsub.NewClient(ctx, a.cfg.Events.ProjectID)
		if err != nil {
			return nil, fmt.Errorf("pubsub client init failed: %w", err)
		}
		a.pubsubPub = gcppublisher.New(a.pubsubClient.Topic(a.cfg.Events.Topic))
		a.logger.Info("Pub/Sub publisher initialized",
			zap.String("project", a.cfg.Events.ProjectID),
			zap.String("topic", a.cfg.Events.Topic),
		)
		return a.pubsubPub, nil
	default:
		return memorypublisher.New(), nil
	}
}

// redisClient lazily creates the shared client; nil when redis is not set.
func (a *App) redisClient() *goredis.Client {
	if a.redis == nil && a.cfg.Redis.Addr != "" {
		a.redis = goredis.NewClient(&goredis.Options{
			Addr:     a.cfg.Redis.Addr,
			Password: a.cfg.Redis.Password,
			DB:       a.cfg.Redis.DB,
		})
	}
	return a.redis
}
