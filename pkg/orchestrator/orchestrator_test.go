package orchestrator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/entrhq/clippy/pkg/browser"
	"github.com/entrhq/clippy/pkg/workflow"
)

type fakeSearcher struct {
	urls  []string
	err   error
	calls int
}

func (f *fakeSearcher) SearchUsersByKeywords(_ context.Context, _ []string) ([]string, error) {
	f.calls++
	return f.urls, f.err
}

type fakeActions struct {
	mu sync.Mutex

	follow     func(url string) (workflow.Result, error)
	post       func(text string) (workflow.Result, error)
	searchURLs []string

	followed     []string
	followTimes  []time.Time
	followEnds   []time.Time
	searchCalled int
}

func (f *fakeActions) Follow(_ context.Context, url string) (workflow.Result, error) {
	f.mu.Lock()
	f.followed = append(f.followed, url)
	f.followTimes = append(f.followTimes, time.Now())
	f.mu.Unlock()
	defer func() {
		f.mu.Lock()
		f.followEnds = append(f.followEnds, time.Now())
		f.mu.Unlock()
	}()
	if f.follow == nil {
		return workflow.Result{Status: workflow.StatusSucceeded, Confidence: workflow.ConfidenceConfirmed}, nil
	}
	return f.follow(url)
}

func (f *fakeActions) SearchProfiles(_ context.Context, _ []string) ([]string, error) {
	f.searchCalled++
	return f.searchURLs, nil
}

func (f *fakeActions) Post(_ context.Context, text string) (workflow.Result, error) {
	return f.post(text)
}

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.FollowDelay = time.Millisecond
	return cfg
}

func TestFollowUsersByKeywords_EmptyKeywords(t *testing.T) {
	for _, keywords := range [][]string{nil, {}, {"", "  "}} {
		searcher := &fakeSearcher{}
		actions := &fakeActions{}
		o := New(searcher, actions, testConfig(), nil)

		s := o.FollowUsersByKeywords(context.Background(), keywords)
		assert.Zero(t, s.ProfilesFound)
		assert.Zero(t, s.NewlyFollowed)
		assert.Zero(t, s.AlreadyFollowed)
		assert.Zero(t, s.FailedToFollow)
		assert.NotNil(t, s.Errors)
		assert.Empty(t, s.Errors)
		assert.Zero(t, searcher.calls)
		assert.Zero(t, actions.searchCalled)
	}
}

func TestFollowUsersByKeywords_SearchFailure(t *testing.T) {
	searcher := &fakeSearcher{err: errors.New("indexer unavailable")}
	actions := &fakeActions{}
	o := New(searcher, actions, testConfig(), nil)

	s := o.FollowUsersByKeywords(context.Background(), []string{"x"})
	assert.Zero(t, s.ProfilesFound)
	require.Len(t, s.Errors, 1)
	assert.Equal(t, ErrorTypeSearch, s.Errors[0].Type)
	assert.Equal(t, "x", s.Errors[0].Subject)
	assert.Contains(t, s.Errors[0].Message, "indexer unavailable")
	assert.Empty(t, actions.followed)
}

func TestFollowUsersByKeywords_ContinuesPastFailure(t *testing.T) {
	urls := []string{"https://farcaster.xyz/a", "https://farcaster.xyz/b", "https://farcaster.xyz/c"}
	searcher := &fakeSearcher{urls: urls}
	actions := &fakeActions{follow: func(url string) (workflow.Result, error) {
		if url == urls[1] {
			return workflow.Result{Status: workflow.StatusFailed}, errors.New("follow control not found")
		}
		return workflow.Result{Status: workflow.StatusSucceeded, Confidence: workflow.ConfidenceConfirmed}, nil
	}}
	o := New(searcher, actions, testConfig(), nil)

	s := o.FollowUsersByKeywords(context.Background(), []string{"builders"})
	assert.Equal(t, 3, s.ProfilesFound)
	assert.Equal(t, 2, s.NewlyFollowed)
	assert.Equal(t, 1, s.FailedToFollow)
	require.Len(t, s.Errors, 1)
	assert.Equal(t, ErrorTypeFollow, s.Errors[0].Type)
	assert.Equal(t, urls[1], s.Errors[0].Subject)

	// discovery order, sequential
	assert.Equal(t, urls, actions.followed)
}

func TestFollowUsersByKeywords_Outcomes(t *testing.T) {
	results := map[string]workflow.Result{
		"https://farcaster.xyz/new":     {Status: workflow.StatusSucceeded, Confidence: workflow.ConfidenceConfirmed},
		"https://farcaster.xyz/old":     {Status: workflow.StatusAlreadyDone, Confidence: workflow.ConfidenceProbable},
		"https://farcaster.xyz/invalid": {Status: workflow.StatusFailed, Reason: "not a profile URL"},
	}
	searcher := &fakeSearcher{urls: []string{
		"https://farcaster.xyz/new",
		"https://farcaster.xyz/old",
		"https://farcaster.xyz/invalid",
	}}
	actions := &fakeActions{follow: func(url string) (workflow.Result, error) {
		return results[url], nil
	}}
	o := New(searcher, actions, testConfig(), nil)

	s := o.FollowUsersByKeywords(context.Background(), []string{"a", "b"})
	assert.Equal(t, []string{"a", "b"}, s.SearchedKeywords)
	assert.Equal(t, 1, s.NewlyFollowed)
	assert.Equal(t, 1, s.AlreadyFollowed)
	assert.Equal(t, 1, s.FailedToFollow)
	require.Len(t, s.Errors, 1)
	assert.Equal(t, "not a profile URL", s.Errors[0].Message)
}

func TestFollowUsersByKeywords_LimitAndPacing(t *testing.T) {
	searcher := &fakeSearcher{urls: []string{"u1", "u2", "u3", "u4"}}
	// each follow takes longer than the delay
	actions := &fakeActions{follow: func(string) (workflow.Result, error) {
		time.Sleep(40 * time.Millisecond)
		return workflow.Result{Status: workflow.StatusSucceeded, Confidence: workflow.ConfidenceConfirmed}, nil
	}}

	cfg := testConfig()
	cfg.MaxFollowsPerRun = 3
	cfg.FollowDelay = 25 * time.Millisecond
	o := New(searcher, actions, cfg, nil)

	start := time.Now()
	s := o.FollowUsersByKeywords(context.Background(), []string{"x"})
	assert.Equal(t, 4, s.ProfilesFound)
	assert.Equal(t, 3, s.NewlyFollowed)
	assert.Equal(t, 1, s.NotAttempted)
	require.Len(t, actions.followTimes, 3)
	require.Len(t, actions.followEnds, 3)

	// no delay before the first attempt
	assert.Less(t, actions.followTimes[0].Sub(start), 20*time.Millisecond)
	for i := 1; i < len(actions.followTimes); i++ {
		idle := actions.followTimes[i].Sub(actions.followEnds[i-1])
		assert.GreaterOrEqual(t, idle, 20*time.Millisecond, "idle time before follow %d", i+1)
	}
}

func TestFollowUsersByKeywords_StopsOnBrowserFailure(t *testing.T) {
	tests := []struct {
		name string
		err  error
	}{
		{"authentication timed out", browser.ErrAuthenticationTimedOut},
		{"launch failed", fmt.Errorf("%w: executable not found", browser.ErrLaunchFailed)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			urls := []string{"https://farcaster.xyz/a", "https://farcaster.xyz/b", "https://farcaster.xyz/c", "https://farcaster.xyz/d"}
			actions := &fakeActions{follow: func(url string) (workflow.Result, error) {
				if url == urls[0] {
					return workflow.Result{Status: workflow.StatusSucceeded}, nil
				}
				return workflow.Result{Status: workflow.StatusFailed}, tt.err
			}}
			o := New(&fakeSearcher{urls: urls}, actions, testConfig(), nil)

			s := o.FollowUsersByKeywords(context.Background(), []string{"x"})
			assert.Equal(t, urls[:2], actions.followed)
			assert.Equal(t, 1, s.NewlyFollowed)
			assert.Equal(t, 1, s.FailedToFollow)
			assert.Equal(t, 2, s.NotAttempted)
			require.Len(t, s.Errors, 1)
			assert.Equal(t, ErrorTypeFollow, s.Errors[0].Type)
			assert.Equal(t, urls[1], s.Errors[0].Subject)
		})
	}
}

func TestFollowUsersByKeywords_Canceled(t *testing.T) {
	searcher := &fakeSearcher{urls: []string{"u1", "u2"}}
	ctx, cancel := context.WithCancel(context.Background())
	actions := &fakeActions{follow: func(string) (workflow.Result, error) {
		cancel()
		return workflow.Result{Status: workflow.StatusSucceeded}, nil
	}}

	cfg := testConfig()
	cfg.FollowDelay = time.Hour
	o := New(searcher, actions, cfg, nil)

	s := o.FollowUsersByKeywords(ctx, []string{"x"})
	assert.Equal(t, 1, s.NewlyFollowed)
	assert.Equal(t, 1, s.NotAttempted)
	require.Len(t, s.Errors, 1)
	assert.Equal(t, ErrorTypeCanceled, s.Errors[0].Type)
}

func TestSearchUsersByKeywords_Discovery(t *testing.T) {
	searcher := &fakeSearcher{urls: []string{"rest"}}
	actions := &fakeActions{searchURLs: []string{"dom"}}

	got, err := New(searcher, actions, testConfig(), nil).SearchUsersByKeywords(context.Background(), []string{"x"})
	require.NoError(t, err)
	assert.Equal(t, []string{"rest"}, got)

	cfg := testConfig()
	cfg.Discovery = DiscoveryDOM
	got, err = New(searcher, actions, cfg, nil).SearchUsersByKeywords(context.Background(), []string{"x"})
	require.NoError(t, err)
	assert.Equal(t, []string{"dom"}, got)

	got, err = New(nil, actions, testConfig(), nil).SearchUsersByKeywords(context.Background(), []string{"x"})
	require.NoError(t, err)
	assert.Equal(t, []string{"dom"}, got)
	assert.Equal(t, 1, searcher.calls)
}

func TestFollowUser(t *testing.T) {
	tests := []struct {
		name    string
		result  workflow.Result
		err     error
		want    bool
		wantErr bool
	}{
		{name: "followed", result: workflow.Result{Status: workflow.StatusSucceeded}, want: true},
		{name: "already following", result: workflow.Result{Status: workflow.StatusAlreadyDone}, want: true},
		{name: "invalid url", result: workflow.Result{Status: workflow.StatusFailed, Reason: "not a profile URL"}},
		{name: "exhausted", result: workflow.Result{Status: workflow.StatusFailed}, err: errors.New("boom"), wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			actions := &fakeActions{follow: func(string) (workflow.Result, error) { return tt.result, tt.err }}
			ok, err := New(nil, actions, testConfig(), nil).FollowUser(context.Background(), "https://farcaster.xyz/a")
			assert.Equal(t, tt.want, ok)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestPostCast(t *testing.T) {
	var posted string
	actions := &fakeActions{post: func(text string) (workflow.Result, error) {
		posted = text
		if text == "stuck" {
			return workflow.Result{Status: workflow.StatusFailed, Confidence: workflow.ConfidenceProbable}, nil
		}
		return workflow.Result{Status: workflow.StatusSucceeded, Confidence: workflow.ConfidenceProbable}, nil
	}}
	o := New(nil, actions, testConfig(), nil)

	ok, err := o.PostCast(context.Background(), "gm")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "gm", posted)

	ok, err = o.PostCast(context.Background(), "stuck")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestSummaryJSON(t *testing.T) {
	s := newSummary([]string{"a"})
	s.record(ErrorTypeSearch, "a", "down")

	data, err := json.Marshal(s)
	require.NoError(t, err)
	assert.JSONEq(t, `{
		"searchedKeywords": ["a"],
		"profilesFound": 0,
		"newlyFollowed": 0,
		"alreadyFollowed": 0,
		"failedToFollow": 0,
		"notAttempted": 0,
		"errors": [{"type": "search", "subject": "a", "message": "down"}]
	}`, string(data))
}

func TestConfigValidate(t *testing.T) {
	assert.NoError(t, DefaultConfig().Validate())
	assert.Error(t, Config{Discovery: "carrier-pigeon"}.Validate())
	assert.Error(t, Config{FollowDelay: -time.Second}.Validate())
	assert.Error(t, Config{MaxFollowsPerRun: -1}.Validate())
}
