package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"go.uber.org/zap"

	"github.com/entrhq/clippy/pkg/browser"
	"github.com/entrhq/clippy/pkg/config"
	"github.com/entrhq/clippy/pkg/content"
	"github.com/entrhq/clippy/pkg/lock"
	"github.com/entrhq/clippy/pkg/logging"
	"github.com/entrhq/clippy/pkg/neynar"
	"github.com/entrhq/clippy/pkg/orchestrator"
	"github.com/entrhq/clippy/pkg/profile"
	"github.com/entrhq/clippy/pkg/scheduler"
	"github.com/entrhq/clippy/pkg/workflow"
)

// app holds the wired components for one command invocation.
type app struct {
	cfg    *config.Config
	log    *logging.Logger
	logger *zap.Logger

	lock         *lock.Manager
	launcher     *browser.PlaywrightLauncher
	browser      *browser.Manager
	runner       *workflow.Runner
	neynar       *neynar.Client
	writer       *content.Generator
	orchestrator *orchestrator.Orchestrator
}

// loadConfig reads the configuration and applies command-line overrides.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(configPath, envFile)
	if err != nil {
		return nil, err
	}
	if logLevel != "" {
		cfg.Logging.Level = logLevel
	}
	if headful {
		cfg.Browser.Headless = false
	}
	return cfg, cfg.Validate()
}

// newApp wires every component. The browser is not launched until a
// workflow first asks for a session.
func newApp(cfg *config.Config) (*app, error) {
	// on error New returns a stderr logger and has already reported why
	log, _ := logging.New(cfg.Logging)
	logger := log.Logger

	a := &app{cfg: cfg, log: log, logger: logger}

	a.lock = newLockManager(cfg, logger)

	a.launcher = browser.NewPlaywrightLauncher()
	store := profile.NewStore(cfg.Browser.ProfileDir, logging.Component(logger, "profile"))
	a.browser = browser.NewManager(cfg.Browser, a.launcher, store, logging.Component(logger, "browser"))
	a.runner = workflow.NewRunner(a.browser, cfg.Workflow, logging.Component(logger, "workflow"))

	var (
		searcher orchestrator.Searcher
		err      error
	)
	if cfg.Neynar.Enabled() {
		a.neynar, err = neynar.NewClient(cfg.Neynar, neynar.WithLogger(logging.Component(logger, "neynar")))
		if err != nil {
			a.Close()
			return nil, err
		}
		searcher = a.neynar
	} else {
		logger.Info("neynar API key not set, discovery and engagement use the browser only")
	}

	if cfg.Content.Enabled() {
		a.writer, err = content.NewGenerator(cfg.Content, logging.Component(logger, "content"))
		if err != nil {
			a.Close()
			return nil, err
		}
	} else {
		logger.Info("OpenAI API key not set, content generation disabled")
	}

	a.orchestrator = orchestrator.New(searcher, a.runner, cfg.Orchestrator, logging.Component(logger, "orchestrator"))

	logger.Info("clippy initialized",
		zap.String("version", version),
		zap.String("config", cfg.ConfigFilePath),
		zap.String("profile_dir", cfg.Browser.ProfileDir),
		zap.Bool("headless", cfg.Browser.Headless),
		zap.String("log_path", log.LogPath()))
	return a, nil
}

// scheduler builds the job scheduler. Optional collaborators are passed as
// nil interfaces when not configured so their jobs are not registered.
func (a *app) scheduler() (*scheduler.Scheduler, error) {
	deps := scheduler.Deps{
		Lock:    a.lock,
		Actions: a.orchestrator,
		Browser: a.browser,
		Themes:  a.cfg.Content.Themes,
		Logger:  logging.Component(a.logger, "scheduler"),
	}
	if a.writer != nil {
		deps.Writer = a.writer
	}
	if a.neynar != nil {
		deps.Casts = a.neynar
	}
	return scheduler.New(a.cfg.Schedule, deps)
}

func newLockManager(cfg *config.Config, logger *zap.Logger) *lock.Manager {
	return lock.NewManager(cfg.Lock.Path,
		lock.WithPollInterval(cfg.Lock.PollInterval),
		lock.WithLogger(logging.Component(logger, "lock")))
}

// withLock runs fn while holding the browser lock, waiting up to the
// configured bound for a scheduled job to finish. The browser is closed
// before the lock is released so the next holder can open the profile.
func (a *app) withLock(ctx context.Context, task string, fn func() error) error {
	wait := lockWait
	if wait <= 0 {
		wait = a.cfg.Lock.AwaitTimeout
	}

	owner := lock.NewOwnerID(task)
	if !a.lock.AwaitAcquire(ctx, owner, wait) {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("browser is busy (lock held by %q for more than %s); run \"clippy unlock\" if no clippy process is running",
			a.lock.Owner(), wait)
	}
	defer a.lock.Release()
	defer func() {
		if err := a.browser.Close(); err != nil {
			a.logger.Warn("failed to close browser", zap.Error(err))
		}
	}()
	return fn()
}

// Close saves cookies, closes the browser and flushes the log.
func (a *app) Close() {
	if a.browser != nil {
		if err := a.browser.Close(); err != nil {
			a.logger.Warn("failed to close browser", zap.Error(err))
		}
	}
	if a.launcher != nil {
		if err := a.launcher.Shutdown(); err != nil {
			a.logger.Warn("failed to stop playwright", zap.Error(err))
		}
	}
	_ = a.log.Close()
}

// withApp loads the configuration, wires the app and closes it after fn.
func withApp(fn func(a *app) error) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	a, err := newApp(cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	start := time.Now()
	err = fn(a)
	if err != nil {
		a.logger.Error("command failed", zap.Duration("took", time.Since(start)), zap.Error(err))
	}
	return err
}

// stdout is swapped in tests.
var stdout io.Writer = os.Stdout
