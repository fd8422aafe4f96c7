package workflow

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/entrhq/clippy/pkg/browser"
)

// SearchProfiles searches the web client for keywords and returns the profile
// URLs on the people tab, deduplicated in page order.
//
// A missing people filter is read as "no results" and yields an empty list
// without an error.
func (r *Runner) SearchProfiles(ctx context.Context, keywords []string) ([]string, error) {
	query := JoinKeywords(keywords)
	if query == "" {
		return nil, nil
	}

	var profiles []string
	_, err := r.retry(ctx, "search", query, func(ctx context.Context, s *browser.Session) (Result, error) {
		cfg := s.Config()
		sel := cfg.Selectors
		profiles = nil

		if err := open(ctx, s, siteURL(s, r.cfg.SearchPath)); err != nil {
			return Result{}, err
		}
		if err := s.Page.WaitVisible(sel.SearchInput, cfg.ActionTimeout); err != nil {
			return Result{}, fmt.Errorf("search input not found: %w", err)
		}
		if err := s.Page.Fill(sel.SearchInput, query, cfg.ActionTimeout); err != nil {
			return Result{}, fmt.Errorf("failed to type query: %w", err)
		}
		if err := s.Page.Press(sel.SearchInput, "Enter", cfg.ActionTimeout); err != nil {
			return Result{}, fmt.Errorf("failed to submit query: %w", err)
		}

		if err := s.Page.WaitVisible(sel.PeopleFilter, cfg.ActionTimeout); err != nil {
			r.logger.Info("no people filter on search page, treating as no results",
				zap.String("query", query))
			return succeeded(ConfidenceProbable, "no people filter"), nil
		}
		if err := s.Page.Click(sel.PeopleFilter, cfg.ActionTimeout); err != nil {
			return Result{}, fmt.Errorf("failed to open people results: %w", err)
		}
		if err := s.Page.WaitVisible(sel.SearchResultLinks, r.cfg.ResultsTimeout); err != nil {
			r.logger.Info("no result links rendered", zap.String("query", query))
			return succeeded(ConfidenceProbable, "no result links"), nil
		}

		hrefs, err := s.Page.Attributes(sel.SearchResultLinks, "href")
		if err != nil {
			return Result{}, fmt.Errorf("failed to read result links: %w", err)
		}
		profiles = ProfileURLs(cfg.BaseURL, hrefs)

		r.logger.Info("collected profiles",
			zap.String("query", query),
			zap.Int("links", len(hrefs)),
			zap.Int("profiles", len(profiles)))
		return succeeded(ConfidenceConfirmed, ""), nil
	})
	if err != nil {
		return nil, err
	}
	return profiles, nil
}

// JoinKeywords trims keywords and joins the non-empty ones with spaces.
func JoinKeywords(keywords []string) string {
	parts := make([]string, 0, len(keywords))
	for _, k := range keywords {
		if k = strings.TrimSpace(k); k != "" {
			parts = append(parts, k)
		}
	}
	return strings.Join(parts, " ")
}
