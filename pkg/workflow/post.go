package workflow

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"go.uber.org/zap"

	"github.com/entrhq/clippy/pkg/browser"
)

// Post publishes text through the compose surface.
//
// Success detection is heuristic. An explicit "cast sent" toast yields a
// confirmed success. Leaving the compose route, or the compose box
// disappearing, yields a probable success. If the page is still on the
// compose route after one extra settle wait, the result is a probable
// failure; it is logged and returned without an error and is not retried,
// since the cast may in fact have gone out.
//
// An error is returned only when every attempt failed or the session could
// not be established.
func (r *Runner) Post(ctx context.Context, text string) (Result, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return failed(ConfidenceConfirmed, "empty cast text"), nil
	}

	return r.retry(ctx, "post", "", func(ctx context.Context, s *browser.Session) (Result, error) {
		cfg := s.Config()
		sel := cfg.Selectors

		if err := open(ctx, s, siteURL(s, r.cfg.ComposePath)); err != nil {
			return Result{}, err
		}
		if err := s.Page.WaitVisible(sel.ComposeBox, cfg.ActionTimeout); err != nil {
			return Result{}, fmt.Errorf("compose box not found: %w", err)
		}
		if err := s.Page.Fill(sel.ComposeBox, text, cfg.ActionTimeout); err != nil {
			return Result{}, fmt.Errorf("failed to type cast: %w", err)
		}
		if err := s.Page.Click(sel.CastSubmit, cfg.ActionTimeout); err != nil {
			return Result{}, fmt.Errorf("failed to click cast button: %w", err)
		}

		return r.verifyPosted(s), nil
	})
}

func (r *Runner) verifyPosted(s *browser.Session) Result {
	sel := s.Config().Selectors

	if err := s.Page.WaitVisible(sel.CastSentToast, r.cfg.ConfirmTimeout); err == nil {
		return succeeded(ConfidenceConfirmed, "cast sent notice shown")
	}
	if !r.onCompose(s.Page.URL()) {
		return succeeded(ConfidenceProbable, "left compose route")
	}
	if err := s.Page.WaitHidden(sel.ComposeBox, r.cfg.SettleTimeout); err == nil {
		return succeeded(ConfidenceProbable, "compose box closed")
	}
	if !r.onCompose(s.Page.URL()) {
		return succeeded(ConfidenceProbable, "left compose route")
	}

	r.logger.Warn("still on compose route after submitting, cast probably not sent",
		zap.String("url", s.Page.URL()))
	return failed(ConfidenceProbable, "still on compose route after submit")
}

func (r *Runner) onCompose(rawURL string) bool {
	u, err := url.Parse(rawURL)
	if err != nil {
		return false
	}
	return strings.HasPrefix(u.Path, r.cfg.ComposePath)
}
