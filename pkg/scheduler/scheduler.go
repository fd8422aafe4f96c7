// Package scheduler runs Clippy's periodic jobs on cron schedules.
//
// Jobs that drive the browser take the action lock with skip-if-busy
// semantics: a job that finds the lock held logs and skips its run, there is
// no queue. REST-only jobs run without the lock.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron"
	"go.uber.org/zap"

	"github.com/entrhq/clippy/pkg/lock"
	"github.com/entrhq/clippy/pkg/neynar"
	"github.com/entrhq/clippy/pkg/orchestrator"
)

// Job names.
const (
	JobPost   = "post"
	JobFollow = "follow"
	JobEngage = "engage"
)

// Config holds the job schedules. Specs use robfig/cron syntax with a
// leading seconds field, or descriptors such as "@every 4h". An empty spec
// disables the job.
type Config struct {
	Post   string `yaml:"post" json:"post"`
	Follow string `yaml:"follow" json:"follow"`
	Engage string `yaml:"engage" json:"engage"`

	FollowKeywords []string `yaml:"follow_keywords" json:"follow_keywords"`
	EngageKeywords []string `yaml:"engage_keywords" json:"engage_keywords"`
	// EngageLimit caps the casts liked and replied to per engage run.
	EngageLimit int `yaml:"engage_limit" json:"engage_limit"`
	// EngageFollowAuthors follows the authors of replied casts over REST.
	EngageFollowAuthors bool `yaml:"engage_follow_authors" json:"engage_follow_authors"`

	// JobTimeout bounds a single job run.
	JobTimeout time.Duration `yaml:"job_timeout" json:"job_timeout"`
}

// DefaultConfig returns the default schedules.
func DefaultConfig() Config {
	return Config{
		Post:           "0 0 */4 * * *",
		Follow:         "0 30 */6 * * *",
		Engage:         "0 15 */2 * * *",
		FollowKeywords: []string{"farcaster", "onchain builders"},
		EngageKeywords: []string{"farcaster", "building"},
		EngageLimit:    3,
		JobTimeout:     15 * time.Minute,
	}
}

// Validate checks that every non-empty spec parses.
func (c Config) Validate() error {
	for name, spec := range map[string]string{JobPost: c.Post, JobFollow: c.Follow, JobEngage: c.Engage} {
		if spec == "" {
			continue
		}
		if _, err := cron.Parse(spec); err != nil {
			return fmt.Errorf("invalid %s schedule %q: %w", name, spec, err)
		}
	}
	if c.EngageLimit < 0 {
		return fmt.Errorf("engage_limit must not be negative")
	}
	return nil
}

// Actions are the browser-backed operations the jobs call.
// *orchestrator.Orchestrator implements it.
type Actions interface {
	PostCast(ctx context.Context, text string) (bool, error)
	FollowUsersByKeywords(ctx context.Context, keywords []string) orchestrator.Summary
}

// Writer produces cast text. *content.Generator implements it.
type Writer interface {
	GeneratePost(ctx context.Context, theme string) (string, error)
	GenerateReply(ctx context.Context, text, extra string) (string, error)
}

// CastIndex is the REST side used by the engage job. *neynar.Client
// implements it.
type CastIndex interface {
	SearchCasts(ctx context.Context, keywords []string, limit int) ([]neynar.Cast, error)
	LikeCast(ctx context.Context, hash string) error
	PublishCast(ctx context.Context, text, parentHash string) (string, error)
	FollowUsers(ctx context.Context, fids []int64) error
}

// Closer releases the browser. *browser.Manager implements it.
type Closer interface {
	Close() error
}

// Deps are the collaborators of the scheduler. Writer and Casts may be nil;
// jobs that need them are then not registered. Browser, when set, is closed
// at the end of every browser job before the lock is released.
type Deps struct {
	Lock    *lock.Manager
	Actions Actions
	Writer  Writer
	Casts   CastIndex
	Browser Closer
	Themes  []string
	Logger  *zap.Logger
}

// Scheduler owns the cron runner and the job implementations.
type Scheduler struct {
	cfg    Config
	deps   Deps
	logger *zap.Logger

	cron *cron.Cron
	jobs map[string]func(context.Context) error

	mu        sync.Mutex
	themeNext int

	// runMu guards stopped and the Add side of running
	runMu   sync.Mutex
	stopped bool
	running sync.WaitGroup
}

// New creates a scheduler and registers the enabled jobs.
func New(cfg Config, deps Deps) (*Scheduler, error) {
	if deps.Lock == nil || deps.Actions == nil {
		return nil, errors.New("scheduler requires a lock and browser actions")
	}
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.JobTimeout <= 0 {
		cfg.JobTimeout = DefaultConfig().JobTimeout
	}

	s := &Scheduler{
		cfg:    cfg,
		deps:   deps,
		logger: logger,
		cron:   cron.New(),
		jobs:   make(map[string]func(context.Context) error),
	}

	if deps.Writer != nil {
		s.jobs[JobPost] = s.postJob
	}
	s.jobs[JobFollow] = s.followJob
	if deps.Writer != nil && deps.Casts != nil {
		s.jobs[JobEngage] = s.engageJob
	}
	return s, nil
}

// Jobs returns the names of the available jobs.
func (s *Scheduler) Jobs() []string {
	var names []string
	for _, name := range []string{JobPost, JobFollow, JobEngage} {
		if _, ok := s.jobs[name]; ok {
			names = append(names, name)
		}
	}
	return names
}

// Run starts the cron schedules and blocks until ctx is done, then waits for
// running jobs to return. The stale action lock left by a crashed process is
// cleared first.
func (s *Scheduler) Run(ctx context.Context) error {
	s.deps.Lock.ClearStale()

	specs := map[string]string{JobPost: s.cfg.Post, JobFollow: s.cfg.Follow, JobEngage: s.cfg.Engage}
	scheduled := 0
	for _, name := range s.Jobs() {
		spec := specs[name]
		if spec == "" {
			continue
		}
		if err := s.cron.AddFunc(spec, func() { s.trigger(ctx, name) }); err != nil {
			return fmt.Errorf("failed to schedule %s job: %w", name, err)
		}
		s.logger.Info("job scheduled", zap.String("job", name), zap.String("spec", spec))
		scheduled++
	}

	if scheduled == 0 {
		s.logger.Warn("no jobs scheduled")
	}

	s.cron.Start()
	<-ctx.Done()
	s.cron.Stop()

	s.runMu.Lock()
	s.stopped = true
	s.runMu.Unlock()
	s.running.Wait()
	s.logger.Info("scheduler stopped")
	return nil
}

// trigger runs a job from a cron tick.
func (s *Scheduler) trigger(ctx context.Context, name string) {
	s.runMu.Lock()
	if s.stopped {
		s.runMu.Unlock()
		return
	}
	s.running.Add(1)
	s.runMu.Unlock()
	defer s.running.Done()

	if ctx.Err() != nil {
		return
	}
	if err := s.RunJob(ctx, name); err != nil {
		if errors.Is(err, lock.ErrLocked) {
			s.logger.Info("browser busy, skipping job", zap.String("job", name))
			return
		}
		s.logger.Error("job failed", zap.String("job", name), zap.Error(err))
	}
}

// RunJob runs one job now, bounded by the job timeout. It returns
// lock.ErrLocked when a browser job found the lock held.
func (s *Scheduler) RunJob(ctx context.Context, name string) error {
	job, ok := s.jobs[name]
	if !ok {
		return fmt.Errorf("unknown or disabled job %q", name)
	}

	ctx, cancel := context.WithTimeout(ctx, s.cfg.JobTimeout)
	defer cancel()

	start := time.Now()
	s.logger.Info("job started", zap.String("job", name))
	err := job(ctx)
	s.logger.Info("job finished", zap.String("job", name), zap.Duration("took", time.Since(start)), zap.Error(err))
	return err
}

func (s *Scheduler) nextTheme() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.deps.Themes) == 0 {
		return "whatever is on your mind today"
	}
	theme := s.deps.Themes[s.themeNext%len(s.deps.Themes)]
	s.themeNext++
	return theme
}
