package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"gopkg.in/yaml.v3"

	"github.com/entrhq/clippy/pkg/health"
	"github.com/entrhq/clippy/pkg/lock"
	"github.com/entrhq/clippy/pkg/logging"
)

// runAgent runs the scheduler and, when enabled, the health server until
// the process is interrupted.
func runAgent(cmd *cobra.Command, args []string) error {
	return withApp(func(a *app) error {
		sched, err := a.scheduler()
		if err != nil {
			return err
		}
		// fail at startup, not at the first browser job, when the driver
		// cannot be installed
		if err := a.launcher.Initialize(); err != nil {
			return err
		}
		a.logger.Info("agent starting", zap.Strings("jobs", sched.Jobs()))

		g, ctx := errgroup.WithContext(cmd.Context())
		g.Go(func() error {
			return sched.Run(ctx)
		})
		if a.cfg.Health.Enabled {
			srv := health.NewServer(a.cfg.Health, a.browser, a.lock, logging.Component(a.logger, "health"))
			g.Go(func() error {
				return srv.Run(ctx)
			})
		}

		err = g.Wait()
		a.logger.Info("agent stopped", zap.Error(err))
		return err
	})
}

func runFollow(cmd *cobra.Command, args []string) error {
	return withApp(func(a *app) error {
		return a.withLock(cmd.Context(), "follow", func() error {
			ok, err := a.orchestrator.FollowUser(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if !ok {
				return fmt.Errorf("could not follow %s", args[0])
			}
			fmt.Fprintf(stdout, "following %s\n", args[0])
			return nil
		})
	})
}

func runSearch(cmd *cobra.Command, args []string) error {
	return withApp(func(a *app) error {
		// REST discovery does not need the browser, the DOM fallback does
		return a.withLock(cmd.Context(), "search", func() error {
			urls, err := a.orchestrator.SearchUsersByKeywords(cmd.Context(), args)
			if err != nil {
				return err
			}
			for _, u := range urls {
				fmt.Fprintln(stdout, u)
			}
			return nil
		})
	})
}

func runFollowKeywords(cmd *cobra.Command, args []string) error {
	return withApp(func(a *app) error {
		return a.withLock(cmd.Context(), "follow-keywords", func() error {
			summary := a.orchestrator.FollowUsersByKeywords(cmd.Context(), args)
			return printJSON(summary)
		})
	})
}

func runPost(cmd *cobra.Command, args []string) error {
	text := strings.TrimSpace(strings.Join(args, " "))

	return withApp(func(a *app) error {
		if text == "" {
			if a.writer == nil {
				return errors.New("no text given and content generation is not configured (set OPENAI_API_KEY)")
			}
			subject := theme
			if subject == "" && len(a.cfg.Content.Themes) > 0 {
				subject = a.cfg.Content.Themes[0]
			}
			generated, err := a.writer.GeneratePost(cmd.Context(), subject)
			if err != nil {
				return err
			}
			text = generated
		}

		return a.withLock(cmd.Context(), "post", func() error {
			ok, err := a.orchestrator.PostCast(cmd.Context(), text)
			if err != nil {
				return err
			}
			if !ok {
				return errors.New("the cast could not be confirmed as published")
			}
			fmt.Fprintf(stdout, "posted: %s\n", text)
			return nil
		})
	})
}

// runJob runs a scheduled job once. The job takes the lock itself, so a
// held lock is reported instead of waited on.
func runJob(cmd *cobra.Command, args []string) error {
	return withApp(func(a *app) error {
		sched, err := a.scheduler()
		if err != nil {
			return err
		}
		err = sched.RunJob(cmd.Context(), args[0])
		if errors.Is(err, lock.ErrLocked) {
			return fmt.Errorf("browser is busy (lock held by %q)", a.lock.Owner())
		}
		return err
	})
}

func runLogin(cmd *cobra.Command, args []string) error {
	headful = true
	return withApp(func(a *app) error {
		if err := a.launcher.Initialize(); err != nil {
			return err
		}
		return a.withLock(cmd.Context(), "login", func() error {
			fmt.Fprintln(stdout, "Complete the login in the browser window...")
			if _, err := a.browser.Session(cmd.Context(), true); err != nil {
				return err
			}
			a.browser.SaveCookies()
			fmt.Fprintf(stdout, "logged in; session saved to %s\n", a.cfg.Browser.ProfileDir)
			return nil
		})
	})
}

// runUnlock does not wire the browser.
func runUnlock(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	log, _ := logging.New(cfg.Logging)
	defer log.Close()

	m := newLockManager(cfg, log.Logger)
	if !m.IsLocked() {
		fmt.Fprintln(stdout, "not locked")
		return nil
	}
	owner := m.Owner()
	m.ClearStale()
	fmt.Fprintf(stdout, "removed lock held by %q\n", owner)
	return nil
}

func runConfig(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	enc := yaml.NewEncoder(stdout)
	enc.SetIndent(2)
	defer enc.Close()
	return enc.Encode(cfg.Redacted())
}

func printJSON(v interface{}) error {
	enc := json.NewEncoder(stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
