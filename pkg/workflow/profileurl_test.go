package workflow

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseProfileURL(t *testing.T) {
	tests := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{in: "https://farcaster.xyz/dwr", want: "https://farcaster.xyz/dwr"},
		{in: "https://farcaster.xyz/dwr/", want: "https://farcaster.xyz/dwr"},
		{in: " https://farcaster.xyz/v?x=1#top ", want: "https://farcaster.xyz/v"},
		{in: "http://localhost:8080/alice", want: "http://localhost:8080/alice"},
		{in: "https://farcaster.xyz", wantErr: true},
		{in: "https://farcaster.xyz/", wantErr: true},
		{in: "https://farcaster.xyz/dwr/casts", wantErr: true},
		{in: "https://farcaster.xyz/~/compose", wantErr: true},
		{in: "https://farcaster.xyz/search", wantErr: true},
		{in: "https://farcaster.xyz/NOTIFICATIONS", wantErr: true},
		{in: "/dwr", wantErr: true},
		{in: "mailto:dwr@example.com", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseProfileURL(tt.in)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidProfileURL)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestProfileURLs(t *testing.T) {
	got := ProfileURLs("https://farcaster.xyz", []string{
		"/dwr",
		"dwr",
		"/v",
		"/~/channel/dev",
		"https://farcaster.xyz/dwr",
		"https://warpcast.com/dwr",
		"%zz",
	})
	assert.Equal(t, []string{"https://farcaster.xyz/dwr", "https://farcaster.xyz/v"}, got)

	assert.Nil(t, ProfileURLs("://bad", []string{"/dwr"}))
}

func TestJoinKeywords(t *testing.T) {
	assert.Equal(t, "", JoinKeywords(nil))
	assert.Equal(t, "ai agents", JoinKeywords([]string{" ai", "", "agents "}))
}

func TestConfig(t *testing.T) {
	assert.NoError(t, DefaultConfig().Validate())

	cfg := DefaultConfig()
	cfg.Attempts = 0
	assert.Error(t, cfg.Validate())

	cfg = DefaultConfig()
	cfg.SearchPath = "search"
	assert.Error(t, cfg.Validate())

	// zero would be replaced by the default, so it is rejected up front
	cfg = DefaultConfig()
	cfg.RetryDelay = 0
	assert.ErrorContains(t, cfg.Validate(), "retry_delay must be positive")

	assert.Equal(t, DefaultConfig(), Config{}.withDefaults())
}

func TestResultOK(t *testing.T) {
	assert.True(t, succeeded(ConfidenceProbable, "").OK())
	assert.True(t, alreadyDone("").OK())
	assert.False(t, failed(ConfidenceUnknown, "").OK())
}
