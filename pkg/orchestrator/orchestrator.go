// Package orchestrator composes profile discovery with the browser workflows
// into the batch operations the scheduler and the CLI call.
//
// Callers hold the action lock for the duration of every method that
// touches the browser.
package orchestrator

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/entrhq/clippy/pkg/browser"
	"github.com/entrhq/clippy/pkg/workflow"
)

// Error record types.
const (
	ErrorTypeSearch   = "search"
	ErrorTypeFollow   = "follow"
	ErrorTypeCanceled = "canceled"
)

// Discovery modes.
const (
	DiscoveryREST = "rest"
	DiscoveryDOM  = "dom"
)

// Searcher discovers profile URLs through the REST indexer.
type Searcher interface {
	SearchUsersByKeywords(ctx context.Context, keywords []string) ([]string, error)
}

// Actions performs UI actions in the shared browser session.
// *workflow.Runner implements it.
type Actions interface {
	Follow(ctx context.Context, profileURL string) (workflow.Result, error)
	SearchProfiles(ctx context.Context, keywords []string) ([]string, error)
	Post(ctx context.Context, text string) (workflow.Result, error)
}

// Config controls batch pacing and limits.
type Config struct {
	// FollowDelay is the idle time between two follow attempts.
	FollowDelay time.Duration `yaml:"follow_delay" json:"follow_delay"`
	// MaxFollowsPerRun caps follow attempts per batch. Zero means no cap.
	MaxFollowsPerRun int `yaml:"max_follows_per_run" json:"max_follows_per_run"`
	// Discovery selects how candidates are found: "rest" (default when a
	// searcher is configured) or "dom".
	Discovery string `yaml:"discovery" json:"discovery"`
}

// DefaultConfig returns the default orchestrator configuration.
func DefaultConfig() Config {
	return Config{
		FollowDelay:      5 * time.Second,
		MaxFollowsPerRun: 20,
		Discovery:        DiscoveryREST,
	}
}

// Validate checks the configuration.
func (c Config) Validate() error {
	if c.FollowDelay < 0 {
		return fmt.Errorf("follow_delay must not be negative")
	}
	if c.MaxFollowsPerRun < 0 {
		return fmt.Errorf("max_follows_per_run must not be negative")
	}
	switch c.Discovery {
	case "", DiscoveryREST, DiscoveryDOM:
		return nil
	default:
		return fmt.Errorf("unknown discovery mode %q (want %q or %q)", c.Discovery, DiscoveryREST, DiscoveryDOM)
	}
}

// Orchestrator is the facade over discovery and browser workflows.
type Orchestrator struct {
	searcher Searcher
	actions  Actions
	cfg      Config
	logger   *zap.Logger
}

// New creates an orchestrator. searcher may be nil, in which case discovery
// always uses the browser search workflow.
func New(searcher Searcher, actions Actions, cfg Config, logger *zap.Logger) *Orchestrator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Orchestrator{
		searcher: searcher,
		actions:  actions,
		cfg:      cfg,
		logger:   logger,
	}
}

// SearchUsersByKeywords returns candidate profile URLs for keywords.
func (o *Orchestrator) SearchUsersByKeywords(ctx context.Context, keywords []string) ([]string, error) {
	if workflow.JoinKeywords(keywords) == "" {
		return nil, nil
	}
	if o.searcher != nil && o.cfg.Discovery != DiscoveryDOM {
		return o.searcher.SearchUsersByKeywords(ctx, keywords)
	}
	return o.actions.SearchProfiles(ctx, keywords)
}

// FollowUser follows one profile. It returns false without an error for
// expected failures such as an invalid URL, and an error only once retries
// are exhausted or the browser is unavailable.
func (o *Orchestrator) FollowUser(ctx context.Context, profileURL string) (bool, error) {
	res, err := o.actions.Follow(ctx, profileURL)
	if err != nil {
		return false, err
	}
	if !res.OK() {
		o.logger.Info("follow did not succeed",
			zap.String("profile", profileURL), zap.String("reason", res.Reason))
	}
	return res.OK(), nil
}

// PostCast publishes text. A probable failure reads as false.
func (o *Orchestrator) PostCast(ctx context.Context, text string) (bool, error) {
	res, err := o.actions.Post(ctx, text)
	if err != nil {
		return false, err
	}
	if !res.OK() {
		o.logger.Warn("cast probably not posted", zap.String("reason", res.Reason))
	}
	return res.OK(), nil
}

// FollowUsersByKeywords discovers profiles for keywords and follows them one
// at a time in discovery order. It never fails: discovery errors and
// per-profile failures are recorded in the summary.
func (o *Orchestrator) FollowUsersByKeywords(ctx context.Context, keywords []string) Summary {
	summary := newSummary(keywords)
	if len(summary.SearchedKeywords) == 0 {
		return summary
	}

	logger := o.logger.With(zap.Strings("keywords", summary.SearchedKeywords))

	profiles, err := o.SearchUsersByKeywords(ctx, summary.SearchedKeywords)
	if err != nil {
		logger.Error("profile discovery failed", zap.Error(err))
		summary.record(ErrorTypeSearch, workflow.JoinKeywords(summary.SearchedKeywords), err.Error())
		return summary
	}
	summary.ProfilesFound = len(profiles)
	logger.Info("profiles discovered", zap.Int("count", len(profiles)))

	for i, profileURL := range profiles {
		if o.cfg.MaxFollowsPerRun > 0 && i >= o.cfg.MaxFollowsPerRun {
			summary.NotAttempted = len(profiles) - i
			logger.Info("follow limit reached",
				zap.Int("limit", o.cfg.MaxFollowsPerRun), zap.Int("remaining", summary.NotAttempted))
			break
		}

		// FollowDelay is idle time between the end of one attempt and the
		// start of the next
		delay := o.cfg.FollowDelay
		if i == 0 {
			delay = 0
		}
		if err := browser.Sleep(ctx, delay); err != nil {
			summary.NotAttempted = len(profiles) - i
			summary.record(ErrorTypeCanceled, profileURL, err.Error())
			break
		}

		res, err := o.actions.Follow(ctx, profileURL)
		fatal := err != nil && workflow.IsFatal(err)
		switch {
		case fatal:
			summary.FailedToFollow++
			summary.NotAttempted = len(profiles) - i - 1
			kind := ErrorTypeFollow
			if ctx.Err() != nil {
				kind = ErrorTypeCanceled
			}
			summary.record(kind, profileURL, err.Error())
			logger.Error("browser unavailable, abandoning batch",
				zap.String("profile", profileURL), zap.Int("remaining", summary.NotAttempted), zap.Error(err))
		case err != nil:
			summary.FailedToFollow++
			summary.record(ErrorTypeFollow, profileURL, err.Error())
			logger.Warn("follow failed", zap.String("profile", profileURL), zap.Error(err))
		case res.Status == workflow.StatusSucceeded:
			summary.NewlyFollowed++
		case res.Status == workflow.StatusAlreadyDone:
			summary.AlreadyFollowed++
		default:
			summary.FailedToFollow++
			summary.record(ErrorTypeFollow, profileURL, res.Reason)
		}
		if fatal {
			break
		}
	}

	logger.Info("follow batch finished",
		zap.Int("found", summary.ProfilesFound),
		zap.Int("followed", summary.NewlyFollowed),
		zap.Int("already_followed", summary.AlreadyFollowed),
		zap.Int("failed", summary.FailedToFollow))
	return summary
}
