package workflow

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/entrhq/clippy/pkg/browser"
)

// errNoFlip fails an attempt whose click did not change the follow label.
var errNoFlip = errors.New("follow label did not change after click")

// Follow follows the profile at profileURL.
//
// Invalid profile URLs fail without touching the browser. A control already
// labelled Following or Unfollow yields StatusAlreadyDone without a click.
// That label cannot tell "followed before" from "followed a moment ago", for
// instance by an earlier attempt whose confirmation was missed, so the
// result is only ConfidenceProbable.
func (r *Runner) Follow(ctx context.Context, profileURL string) (Result, error) {
	target, err := ParseProfileURL(profileURL)
	if err != nil {
		return failed(ConfidenceConfirmed, err.Error()), nil
	}

	return r.retry(ctx, "follow", target, func(ctx context.Context, s *browser.Session) (Result, error) {
		cfg := s.Config()
		sel := cfg.Selectors

		if err := open(ctx, s, target); err != nil {
			return Result{}, err
		}
		if err := s.Page.WaitVisible(sel.FollowControl, cfg.ActionTimeout); err != nil {
			return Result{}, fmt.Errorf("follow control not found: %w", err)
		}

		label, err := s.Page.Text(sel.FollowControl, cfg.ActionTimeout)
		if err != nil {
			return Result{}, fmt.Errorf("failed to read follow control: %w", err)
		}

		switch normalizeLabel(label) {
		case "following", "unfollow":
			return alreadyDone("already following"), nil
		case "follow":
		default:
			return Result{}, fmt.Errorf("unexpected follow control label %q", label)
		}

		if err := s.Page.Click(sel.FollowControl, cfg.ActionTimeout); err != nil {
			return Result{}, fmt.Errorf("failed to click follow: %w", err)
		}
		if err := s.Page.WaitVisible(sel.FollowedControl, r.cfg.ConfirmTimeout); err != nil {
			return Result{}, fmt.Errorf("%w: %v", errNoFlip, err)
		}
		return succeeded(ConfidenceConfirmed, "follow label flipped"), nil
	})
}

func normalizeLabel(label string) string {
	return strings.ToLower(strings.Join(strings.Fields(label), " "))
}
