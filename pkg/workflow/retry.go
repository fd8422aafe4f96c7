package workflow

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"

	"github.com/entrhq/clippy/pkg/browser"
)

// ExhaustedError is returned when every attempt of a workflow failed.
type ExhaustedError struct {
	Workflow  string
	Subject   string
	Attempts  int
	LastError error
}

func (e *ExhaustedError) Error() string {
	if e.Subject == "" {
		return fmt.Sprintf("%s failed after %d attempts: %v", e.Workflow, e.Attempts, e.LastError)
	}
	return fmt.Sprintf("%s %s failed after %d attempts: %v", e.Workflow, e.Subject, e.Attempts, e.LastError)
}

func (e *ExhaustedError) Unwrap() error {
	return e.LastError
}

// IsFatal reports whether err means no local recovery is possible: the
// browser cannot be launched, login never completed, or the caller gave up.
func IsFatal(err error) bool {
	return errors.Is(err, browser.ErrLaunchFailed) ||
		errors.Is(err, browser.ErrAuthenticationTimedOut) ||
		errors.Is(err, context.Canceled) ||
		errors.Is(err, context.DeadlineExceeded)
}

// attemptFunc runs one attempt on a live session. A non-nil error fails the
// attempt; the returned Result is only used when the error is nil.
type attemptFunc func(ctx context.Context, s *browser.Session) (Result, error)

// retry runs fn up to cfg.Attempts times with a constant delay. After a failed
// attempt the page is reset. Fatal errors stop the loop immediately and are
// returned as they are; other errors surface as *ExhaustedError.
func (r *Runner) retry(ctx context.Context, name, subject string, fn attemptFunc) (Result, error) {
	logger := r.logger.With(zap.String("workflow", name))
	if subject != "" {
		logger = logger.With(zap.String("subject", subject))
	}

	var (
		result   Result
		attempts int
	)

	operation := func() error {
		attempts++

		s, err := r.sessions.Session(ctx, false)
		if err != nil {
			if IsFatal(err) {
				return backoff.Permanent(err)
			}
			return err
		}

		res, err := fn(ctx, s)
		if err != nil {
			s.Reset()
			if IsFatal(err) {
				return backoff.Permanent(err)
			}
			return err
		}

		result = res
		return nil
	}

	policy := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewConstantBackOff(r.cfg.RetryDelay), uint64(r.cfg.Attempts-1)),
		ctx,
	)

	notify := func(err error, next time.Duration) {
		logger.Warn("attempt failed, retrying",
			zap.Int("attempt", attempts),
			zap.Int("max_attempts", r.cfg.Attempts),
			zap.Duration("retry_in", next),
			zap.Error(err))
	}

	if err := backoff.RetryNotify(operation, policy, notify); err != nil {
		if IsFatal(err) {
			logger.Error("workflow aborted", zap.Int("attempt", attempts), zap.Error(err))
			return failed(ConfidenceUnknown, err.Error()), err
		}
		exhausted := &ExhaustedError{Workflow: name, Subject: subject, Attempts: attempts, LastError: err}
		logger.Error("workflow failed", zap.Error(exhausted))
		return failed(ConfidenceUnknown, err.Error()), exhausted
	}

	logger.Info("workflow finished",
		zap.String("status", string(result.Status)),
		zap.String("confidence", string(result.Confidence)),
		zap.Int("attempts", attempts))
	return result, nil
}
