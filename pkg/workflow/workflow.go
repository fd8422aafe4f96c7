// Package workflow implements the UI actions Clippy performs through the
// browser session: compose-and-post, search-for-profiles and
// follow-by-profile-URL.
//
// Every workflow has the same shape: navigate, wait for an element,
// interact, then wait for an outcome signal. Each run is wrapped in a
// bounded retry loop with a constant delay, and the page is reset after
// every failed attempt so the next attempt (or the next job) starts from a
// recoverable state.
//
// Callers must hold the action lock for the whole call.
package workflow

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/entrhq/clippy/pkg/browser"
)

// Defaults for Config.
const (
	DefaultAttempts       = 3
	DefaultRetryDelay     = 3 * time.Second
	DefaultComposePath    = "/~/compose"
	DefaultSearchPath     = "/~/search"
	DefaultConfirmTimeout = 8 * time.Second
	DefaultSettleTimeout  = 5 * time.Second
	DefaultResultsTimeout = 10 * time.Second
)

// Config controls retries and outcome waits.
type Config struct {
	// Attempts is the total number of tries per workflow call, including the first.
	Attempts   int           `yaml:"attempts" json:"attempts"`
	// RetryDelay is the first backoff interval and must be positive.
	RetryDelay time.Duration `yaml:"retry_delay" json:"retry_delay"`

	ComposePath string `yaml:"compose_path" json:"compose_path"`
	SearchPath  string `yaml:"search_path" json:"search_path"`

	// ConfirmTimeout bounds the wait for an explicit outcome signal (cast
	// toast, follow label flip).
	ConfirmTimeout time.Duration `yaml:"confirm_timeout" json:"confirm_timeout"`
	// SettleTimeout is the extra wait for the compose surface to go away
	// before a post is judged a probable failure.
	SettleTimeout  time.Duration `yaml:"settle_timeout" json:"settle_timeout"`
	ResultsTimeout time.Duration `yaml:"results_timeout" json:"results_timeout"`
}

// DefaultConfig returns the default workflow configuration.
func DefaultConfig() Config {
	return Config{
		Attempts:       DefaultAttempts,
		RetryDelay:     DefaultRetryDelay,
		ComposePath:    DefaultComposePath,
		SearchPath:     DefaultSearchPath,
		ConfirmTimeout: DefaultConfirmTimeout,
		SettleTimeout:  DefaultSettleTimeout,
		ResultsTimeout: DefaultResultsTimeout,
	}
}

// Validate checks the configuration.
func (c Config) Validate() error {
	if c.Attempts < 1 {
		return fmt.Errorf("attempts must be at least 1, got %d", c.Attempts)
	}
	if c.RetryDelay <= 0 {
		return fmt.Errorf("retry_delay must be positive, got %s", c.RetryDelay)
	}
	if !strings.HasPrefix(c.ComposePath, "/") || !strings.HasPrefix(c.SearchPath, "/") {
		return fmt.Errorf("compose_path and search_path must start with /")
	}
	return nil
}

func (c Config) withDefaults() Config {
	def := DefaultConfig()
	if c.Attempts < 1 {
		c.Attempts = def.Attempts
	}
	if c.RetryDelay <= 0 {
		c.RetryDelay = def.RetryDelay
	}
	if c.ComposePath == "" {
		c.ComposePath = def.ComposePath
	}
	if c.SearchPath == "" {
		c.SearchPath = def.SearchPath
	}
	if c.ConfirmTimeout <= 0 {
		c.ConfirmTimeout = def.ConfirmTimeout
	}
	if c.SettleTimeout <= 0 {
		c.SettleTimeout = def.SettleTimeout
	}
	if c.ResultsTimeout <= 0 {
		c.ResultsTimeout = def.ResultsTimeout
	}
	return c
}

// SessionProvider hands out the live browser session. *browser.Manager
// implements it.
type SessionProvider interface {
	Session(ctx context.Context, forceNew bool) (*browser.Session, error)
}

// Runner executes workflows against sessions from a SessionProvider.
type Runner struct {
	sessions SessionProvider
	cfg      Config
	logger   *zap.Logger
}

// NewRunner creates a workflow runner.
func NewRunner(sessions SessionProvider, cfg Config, logger *zap.Logger) *Runner {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Runner{
		sessions: sessions,
		cfg:      cfg.withDefaults(),
		logger:   logger,
	}
}

// Config returns the effective configuration.
func (r *Runner) Config() Config {
	return r.cfg
}

// open navigates to target and, if the site bounced the page to the login
// wall, logs in again and repeats the navigation.
func open(ctx context.Context, s *browser.Session, target string) error {
	if err := s.Navigate(target); err != nil {
		return err
	}
	if !s.OnLoginWall() {
		return nil
	}
	if err := s.EnsureAuthenticated(ctx); err != nil {
		return err
	}
	return s.Navigate(target)
}

// siteURL joins the web client base URL and an absolute path.
func siteURL(s *browser.Session, path string) string {
	return strings.TrimRight(s.Config().BaseURL, "/") + path
}
