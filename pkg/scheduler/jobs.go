package scheduler

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/entrhq/clippy/pkg/lock"
)

// postJob generates a cast and posts it through the browser. Generation
// happens before the lock is taken.
func (s *Scheduler) postJob(ctx context.Context) error {
	theme := s.nextTheme()
	text, err := s.deps.Writer.GeneratePost(ctx, theme)
	if err != nil {
		return fmt.Errorf("failed to generate post: %w", err)
	}

	return s.deps.Lock.Run(lock.NewOwnerID(JobPost), func() error {
		defer s.closeBrowser()
		ok, err := s.deps.Actions.PostCast(ctx, text)
		if err != nil {
			return err
		}
		if !ok {
			s.logger.Warn("cast probably not posted", zap.String("theme", theme))
			return nil
		}
		s.logger.Info("cast posted", zap.String("theme", theme), zap.Int("bytes", len(text)))
		return nil
	})
}

// followJob runs a follow-by-keywords batch under the lock.
func (s *Scheduler) followJob(ctx context.Context) error {
	return s.deps.Lock.Run(lock.NewOwnerID(JobFollow), func() error {
		defer s.closeBrowser()
		summary := s.deps.Actions.FollowUsersByKeywords(ctx, s.cfg.FollowKeywords)
		s.logger.Info("follow job summary",
			zap.Strings("keywords", summary.SearchedKeywords),
			zap.Int("found", summary.ProfilesFound),
			zap.Int("followed", summary.NewlyFollowed),
			zap.Int("already_followed", summary.AlreadyFollowed),
			zap.Int("failed", summary.FailedToFollow),
			zap.Int("errors", len(summary.Errors)))
		return nil
	})
}

// closeBrowser shuts the browser down at the end of a job so that the next
// lock holder, possibly another process, can open the profile.
func (s *Scheduler) closeBrowser() {
	if s.deps.Browser == nil {
		return
	}
	if err := s.deps.Browser.Close(); err != nil {
		s.logger.Warn("failed to close browser", zap.Error(err))
	}
}

// engageJob likes and replies to recent casts over REST. It does not touch
// the browser and so runs without the lock. A failure on one cast is logged
// and the next cast is tried. With EngageFollowAuthors set, the authors of
// replied casts are followed in one request at the end.
func (s *Scheduler) engageJob(ctx context.Context) error {
	casts, err := s.deps.Casts.SearchCasts(ctx, s.cfg.EngageKeywords, s.cfg.EngageLimit)
	if err != nil {
		return fmt.Errorf("failed to search casts: %w", err)
	}

	replied := 0
	var authors []int64
	seen := make(map[int64]bool)
	for _, c := range casts {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		logger := s.logger.With(zap.String("cast", c.Hash))

		if err := s.deps.Casts.LikeCast(ctx, c.Hash); err != nil {
			logger.Warn("failed to like cast", zap.Error(err))
		}

		reply, err := s.deps.Writer.GenerateReply(ctx, c.Text, "author: @"+c.Author.Username)
		if err != nil {
			logger.Warn("failed to generate reply", zap.Error(err))
			continue
		}
		if _, err := s.deps.Casts.PublishCast(ctx, reply, c.Hash); err != nil {
			logger.Warn("failed to publish reply", zap.Error(err))
			continue
		}
		replied++

		if fid := c.Author.FID; fid > 0 && !seen[fid] {
			seen[fid] = true
			authors = append(authors, fid)
		}
	}

	followed := 0
	if s.cfg.EngageFollowAuthors && len(authors) > 0 {
		if err := s.deps.Casts.FollowUsers(ctx, authors); err != nil {
			s.logger.Warn("failed to follow cast authors", zap.Int64s("fids", authors), zap.Error(err))
		} else {
			followed = len(authors)
		}
	}

	s.logger.Info("engage job summary",
		zap.Int("casts", len(casts)),
		zap.Int("replied", replied),
		zap.Int("authors_followed", followed))
	return nil
}
