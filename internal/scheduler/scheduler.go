// Package scheduler runs saved searches on cron schedules.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/borgius/n8n-local/internal/config"
	"github.com/borgius/n8n-local/internal/ingest"
	"github.com/borgius/n8n-local/internal/jobspy"
)

// DefaultLockTTL bounds how long one replica may hold a search lock.
const DefaultLockTTL = 30 * time.Minute

// Runner executes one search-and-ingest pass.
type Runner interface {
	SearchAndIngest(ctx context.Context, params jobspy.SearchParams) (ingest.Result, error)
}

// Locker guards a saved search against concurrent runs on other replicas.
// Acquire reports false without error when another holder owns the key.
type Locker interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (release func(context.Context) error, ok bool, err error)
}

// Options configures a Scheduler. Locker is optional.
type Options struct {
	Runner     Runner
	Searches   []config.SavedSearch
	Locker     Locker
	LockTTL    time.Duration
	RunOnStart bool
	Logger     *zap.Logger
}

// Scheduler wraps robfig/cron and runs every saved search on its spec.
type Scheduler struct {
	cron       *cron.Cron
	runner     Runner
	searches   map[string]search
	order      []string
	locker     Locker
	lockTTL    time.Duration
	runOnStart bool
	logger     *zap.Logger
	// startup tracks RunOnStart passes, which cron.Stop does not wait for.
	startup sync.WaitGroup
}

type search struct {
	spec   string
	params jobspy.SearchParams
}

// ErrUnknownSearch is returned by RunNow for names that are not configured.
var ErrUnknownSearch = errors.New("unknown saved search")

// New validates the saved searches and builds a Scheduler.
func New(opts Options) (*Scheduler, error) {
	if opts.Runner == nil {
		return nil, fmt.Errorf("runner is required")
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.LockTTL <= 0 {
		opts.LockTTL = DefaultLockTTL
	}
	logger := opts.Logger.Named("scheduler")
	s := &Scheduler{
		cron: cron.New(
			cron.WithLogger(cronLogger{logger: logger}),
			cron.WithChain(cron.SkipIfStillRunning(cronLogger{logger: logger})),
		),
		runner:     opts.Runner,
		searches:   make(map[string]search, len(opts.Searches)),
		locker:     opts.Locker,
		lockTTL:    opts.LockTTL,
		runOnStart: opts.RunOnStart,
		logger:     logger,
	}
	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)
	for _, saved := range opts.Searches {
		if _, dup := s.searches[saved.Name]; dup {
			return nil, fmt.Errorf("duplicate saved search %q", saved.Name)
		}
		if _, err := parser.Parse(saved.Spec); err != nil {
			return nil, fmt.Errorf("saved search %q: parse spec %q: %w", saved.Name, saved.Spec, err)
		}
		params, err := saved.SearchParams()
		if err != nil {
			return nil, err
		}
		s.searches[saved.Name] = search{spec: saved.Spec, params: params}
		s.order = append(s.order, saved.Name)
	}
	return s, nil
}

// Start registers one cron entry per saved search and starts the scheduler.
// ctx is handed to every run; cancel it to abort in-flight searches.
//
// RunOnStart passes go through the same wrapped job as the cron ticks, so a
// tick that fires while one is still running is skipped.
func (s *Scheduler) Start(ctx context.Context) error {
	ids := make([]cron.EntryID, 0, len(s.order))
	for _, name := range s.order {
		name := name
		id, err := s.cron.AddFunc(s.searches[name].spec, func() {
			s.run(ctx, name)
		})
		if err != nil {
			return fmt.Errorf("cron.AddFunc %q: %w", name, err)
		}
		ids = append(ids, id)
	}
	s.cron.Start()
	s.logger.Info("scheduler started", zap.Int("searches", len(s.order)))

	if s.runOnStart {
		for _, id := range ids {
			job := s.cron.Entry(id).WrappedJob
			s.startup.Add(1)
			go func() {
				defer s.startup.Done()
				job.Run()
			}()
		}
	}
	return nil
}

// Stop halts the cron loop and returns a context that is done once running
// searches finish, including RunOnStart passes.
func (s *Scheduler) Stop() context.Context {
	cronDone := s.cron.Stop()
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		<-cronDone.Done()
		s.startup.Wait()
		cancel()
		s.logger.Info("scheduler stopped")
	}()
	return ctx
}

// RunNow executes a saved search synchronously, honoring the lock.
func (s *Scheduler) RunNow(ctx context.Context, name string) (ingest.Result, bool, error) {
	if _, ok := s.searches[name]; !ok {
		return ingest.Result{}, false, fmt.Errorf("%w: %s", ErrUnknownSearch, name)
	}
	return s.execute(ctx, name)
}

func (s *Scheduler) run(ctx context.Context, name string) {
	if _, _, err := s.execute(ctx, name); err != nil {
		s.logger.Error("saved search failed", zap.String("search", name), zap.Error(err))
	}
}

// execute reports ran=false when another replica holds the lock.
func (s *Scheduler) execute(ctx context.Context, name string) (res ingest.Result, ran bool, err error) {
	logger := s.logger.With(zap.String("search", name))
	if s.locker != nil {
		release, ok, lerr := s.locker.Acquire(ctx, lockKey(name), s.lockTTL)
		if lerr != nil {
			return ingest.Result{}, false, fmt.Errorf("acquire lock: %w", lerr)
		}
		if !ok {
			logger.Info("saved search already running elsewhere, skipping")
			return ingest.Result{}, false, nil
		}
		defer func() {
			relCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
			defer cancel()
			if rerr := release(relCtx); rerr != nil {
				logger.Warn("release lock failed", zap.Error(rerr))
			}
		}()
	}

	logger.Info("saved search started")
	res, err = s.runner.SearchAndIngest(ctx, s.searches[name].params)
	if err != nil {
		return res, true, err
	}
	logger.Info("saved search complete",
		zap.String("run_id", res.RunID),
		zap.Int("received", res.Received),
		zap.Int("persisted", res.Persisted),
	)
	return res, true, nil
}

func lockKey(name string) string {
	return "jobspy:schedule:" + name
}

// cronLogger adapts zap to cron.Logger.
type cronLogger struct {
	logger *zap.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...any) {
	l.logger.Sugar().Debugw(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...any) {
	l.logger.Sugar().Errorw(msg, append(keysAndValues, "error", err)...)
}
