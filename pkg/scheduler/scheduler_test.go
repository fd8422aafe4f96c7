package scheduler

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/entrhq/clippy/pkg/lock"
	"github.com/entrhq/clippy/pkg/neynar"
	"github.com/entrhq/clippy/pkg/orchestrator"
)

type fakeActions struct {
	mu       sync.Mutex
	posts    []string
	follows  [][]string
	lockSeen []bool
	lock     *lock.Manager
	postOK   bool
}

func (f *fakeActions) PostCast(_ context.Context, text string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.posts = append(f.posts, text)
	f.lockSeen = append(f.lockSeen, f.lock.IsLocked())
	return f.postOK, nil
}

func (f *fakeActions) FollowUsersByKeywords(_ context.Context, keywords []string) orchestrator.Summary {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.follows = append(f.follows, keywords)
	f.lockSeen = append(f.lockSeen, f.lock.IsLocked())
	return orchestrator.Summary{SearchedKeywords: keywords, ProfilesFound: 2, NewlyFollowed: 2}
}

func (f *fakeActions) followCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.follows)
}

type fakeWriter struct {
	themes  []string
	replies []string
	err     error
}

func (f *fakeWriter) GeneratePost(_ context.Context, theme string) (string, error) {
	f.themes = append(f.themes, theme)
	return "post about " + theme, f.err
}

func (f *fakeWriter) GenerateReply(_ context.Context, text, extra string) (string, error) {
	f.replies = append(f.replies, text+"|"+extra)
	return "nice: " + text, nil
}

type fakeCasts struct {
	casts     []neynar.Cast
	likeErr   map[string]error
	liked     []string
	published map[string]string
	followed  [][]int64
	followErr error
}

func (f *fakeCasts) SearchCasts(_ context.Context, _ []string, limit int) ([]neynar.Cast, error) {
	if limit < len(f.casts) {
		return f.casts[:limit], nil
	}
	return f.casts, nil
}

func (f *fakeCasts) LikeCast(_ context.Context, hash string) error {
	f.liked = append(f.liked, hash)
	return f.likeErr[hash]
}

func (f *fakeCasts) PublishCast(_ context.Context, text, parent string) (string, error) {
	f.published[parent] = text
	return "0xreply", nil
}

func (f *fakeCasts) FollowUsers(_ context.Context, fids []int64) error {
	f.followed = append(f.followed, fids)
	return f.followErr
}

type fakeBrowser struct {
	lock     *lock.Manager
	closes   int
	lockSeen []bool
}

func (f *fakeBrowser) Close() error {
	f.closes++
	f.lockSeen = append(f.lockSeen, f.lock.IsLocked())
	return nil
}

func newTestScheduler(t *testing.T, cfg Config, writer Writer, casts CastIndex) (*Scheduler, *fakeActions, *lock.Manager) {
	t.Helper()
	lm := lock.NewManager(filepath.Join(t.TempDir(), lock.DefaultFileName), lock.WithPollInterval(5*time.Millisecond))
	actions := &fakeActions{lock: lm, postOK: true}
	s, err := New(cfg, Deps{
		Lock:    lm,
		Actions: actions,
		Writer:  writer,
		Casts:   casts,
		Themes:  []string{"tools", "weekends"},
	})
	require.NoError(t, err)
	return s, actions, lm
}

func TestPostJob(t *testing.T) {
	writer := &fakeWriter{}
	s, actions, lm := newTestScheduler(t, DefaultConfig(), writer, nil)
	ctx := context.Background()

	require.NoError(t, s.RunJob(ctx, JobPost))
	require.NoError(t, s.RunJob(ctx, JobPost))
	require.NoError(t, s.RunJob(ctx, JobPost))

	assert.Equal(t, []string{"tools", "weekends", "tools"}, writer.themes)
	assert.Equal(t, "post about tools", actions.posts[0])
	assert.Equal(t, []bool{true, true, true}, actions.lockSeen, "lock held while posting")
	assert.False(t, lm.IsLocked(), "lock released afterwards")
}

func TestPostJob_GenerationFailureSkipsBrowser(t *testing.T) {
	writer := &fakeWriter{err: errors.New("quota exceeded")}
	s, actions, _ := newTestScheduler(t, DefaultConfig(), writer, nil)

	err := s.RunJob(context.Background(), JobPost)
	assert.ErrorContains(t, err, "quota exceeded")
	assert.Empty(t, actions.posts)
}

func TestBrowserJobsSkipWhenLocked(t *testing.T) {
	s, actions, lm := newTestScheduler(t, DefaultConfig(), &fakeWriter{}, nil)
	require.True(t, lm.TryAcquire("manual-run"))

	assert.ErrorIs(t, s.RunJob(context.Background(), JobFollow), lock.ErrLocked)
	assert.ErrorIs(t, s.RunJob(context.Background(), JobPost), lock.ErrLocked)
	assert.Empty(t, actions.follows)
	assert.Empty(t, actions.posts)
	assert.Equal(t, "manual-run", lm.Owner())
}

func TestFollowJob(t *testing.T) {
	cfg := DefaultConfig()
	cfg.FollowKeywords = []string{"zk", "rollups"}
	s, actions, lm := newTestScheduler(t, cfg, nil, nil)

	require.NoError(t, s.RunJob(context.Background(), JobFollow))
	assert.Equal(t, [][]string{{"zk", "rollups"}}, actions.follows)
	assert.False(t, lm.IsLocked())
}

func TestEngageJob(t *testing.T) {
	cfg := DefaultConfig()
	cfg.EngageLimit = 2
	writer := &fakeWriter{}
	casts := &fakeCasts{
		casts: []neynar.Cast{
			{Hash: "0x1", Text: "shipped it", Author: neynar.User{Username: "alice"}},
			{Hash: "0x2", Text: "gm", Author: neynar.User{Username: "bob"}},
			{Hash: "0x3", Text: "over the limit"},
		},
		likeErr:   map[string]error{"0x1": errors.New("already liked")},
		published: map[string]string{},
	}
	s, _, lm := newTestScheduler(t, cfg, writer, casts)

	// REST-only job ignores the browser lock
	require.True(t, lm.TryAcquire("browser-job"))

	require.NoError(t, s.RunJob(context.Background(), JobEngage))
	assert.Equal(t, []string{"0x1", "0x2"}, casts.liked)
	assert.Equal(t, map[string]string{"0x1": "nice: shipped it", "0x2": "nice: gm"}, casts.published)
	assert.Equal(t, "shipped it|author: @alice", writer.replies[0])
	assert.Empty(t, casts.followed, "authors are not followed by default")
}

func TestEngageJob_FollowsAuthors(t *testing.T) {
	cfg := DefaultConfig()
	cfg.EngageLimit = 4
	cfg.EngageFollowAuthors = true
	casts := &fakeCasts{
		casts: []neynar.Cast{
			{Hash: "0x1", Text: "a", Author: neynar.User{FID: 7, Username: "alice"}},
			{Hash: "0x2", Text: "b", Author: neynar.User{FID: 7, Username: "alice"}},
			{Hash: "0x3", Text: "c", Author: neynar.User{FID: 9, Username: "bob"}},
			{Hash: "0x4", Text: "d", Author: neynar.User{Username: "nofid"}},
		},
		published: map[string]string{},
	}
	s, _, _ := newTestScheduler(t, cfg, &fakeWriter{}, casts)

	require.NoError(t, s.RunJob(context.Background(), JobEngage))
	assert.Equal(t, [][]int64{{7, 9}}, casts.followed)

	// a failed follow does not fail the job
	casts.followErr = errors.New("signer revoked")
	casts.followed = nil
	require.NoError(t, s.RunJob(context.Background(), JobEngage))
	assert.Len(t, casts.followed, 1)
}

func TestBrowserJobsCloseBrowserUnderLock(t *testing.T) {
	lm := lock.NewManager(filepath.Join(t.TempDir(), lock.DefaultFileName), lock.WithPollInterval(5*time.Millisecond))
	b := &fakeBrowser{lock: lm}
	s, err := New(DefaultConfig(), Deps{
		Lock:    lm,
		Actions: &fakeActions{lock: lm, postOK: true},
		Writer:  &fakeWriter{},
		Browser: b,
	})
	require.NoError(t, err)

	require.NoError(t, s.RunJob(context.Background(), JobPost))
	require.NoError(t, s.RunJob(context.Background(), JobFollow))
	assert.Equal(t, 2, b.closes)
	assert.Equal(t, []bool{true, true}, b.lockSeen, "browser closed before the lock is released")
	assert.False(t, lm.IsLocked())

	// a job skipped on a held lock leaves the other holder's browser alone
	require.True(t, lm.TryAcquire("manual-run"))
	assert.ErrorIs(t, s.RunJob(context.Background(), JobFollow), lock.ErrLocked)
	assert.Equal(t, 2, b.closes)
}

func TestJobsRegistration(t *testing.T) {
	s, _, _ := newTestScheduler(t, DefaultConfig(), nil, nil)
	assert.Equal(t, []string{JobFollow}, s.Jobs())
	assert.Error(t, s.RunJob(context.Background(), JobPost))

	s, _, _ = newTestScheduler(t, DefaultConfig(), &fakeWriter{}, &fakeCasts{})
	assert.Equal(t, []string{JobPost, JobFollow, JobEngage}, s.Jobs())

	_, err := New(DefaultConfig(), Deps{})
	assert.Error(t, err)
}

func TestRun_ClearsStaleLockAndStops(t *testing.T) {
	cfg := Config{Follow: "@every 1s", FollowKeywords: []string{"x"}}
	s, actions, lm := newTestScheduler(t, cfg, nil, nil)
	require.True(t, lm.TryAcquire("crashed-process"))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	require.Eventually(t, func() bool { return actions.followCount() > 0 }, 5*time.Second, 20*time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("scheduler did not stop")
	}
	assert.False(t, lm.IsLocked())
}

func TestTriggerAfterStopIsIgnored(t *testing.T) {
	s, actions, _ := newTestScheduler(t, Config{FollowKeywords: []string{"x"}}, nil, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()
	cancel()
	require.NoError(t, <-done)

	// a cron tick that fires after Run returned does not start a job
	s.trigger(context.Background(), JobFollow)
	assert.Zero(t, actions.followCount())
}

func TestConfigValidate(t *testing.T) {
	assert.NoError(t, DefaultConfig().Validate())
	assert.NoError(t, Config{Post: "@every 4h"}.Validate())
	assert.NoError(t, Config{}.Validate())
	assert.Error(t, Config{Follow: "every tuesday"}.Validate())
	assert.Error(t, Config{EngageLimit: -1}.Validate())
}
