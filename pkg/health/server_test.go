package health

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/entrhq/clippy/pkg/browser"
)

type fakeSession struct{ state browser.State }

func (f fakeSession) State() browser.State { return f.state }

type fakeLock struct {
	locked bool
	owner  string
}

func (f fakeLock) IsLocked() bool { return f.locked }
func (f fakeLock) Owner() string  { return f.owner }

func TestHandleStatus(t *testing.T) {
	tests := []struct {
		name    string
		session SessionState
		lock    LockState
		want    Status
	}{
		{
			name:    "live and busy",
			session: fakeSession{browser.StateLive},
			lock:    fakeLock{locked: true, owner: "follow-123"},
			want:    Status{Status: "ok", Session: "live", Locked: true, LockOwner: "follow-123"},
		},
		{
			name:    "idle",
			session: fakeSession{browser.StateAbsent},
			lock:    fakeLock{},
			want:    Status{Status: "ok", Session: "absent"},
		},
		{
			name: "no collaborators",
			want: Status{Status: "ok", Session: "absent"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := NewServer(DefaultConfig(), tt.session, tt.lock, nil)

			rec := httptest.NewRecorder()
			s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
			require.Equal(t, http.StatusOK, rec.Code)
			assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

			var got Status
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
			assert.NotEmpty(t, got.Uptime)
			got.Uptime = ""
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestRoutes(t *testing.T) {
	s := NewServer(Config{}, nil, nil, nil)

	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health/live", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())

	rec = httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/health", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)

	rec = httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/nope", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestRun(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().String()
	require.NoError(t, ln.Close())

	s := NewServer(Config{Enabled: true, Addr: addr}, fakeSession{browser.StateLive}, nil, nil)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	require.Eventually(t, func() bool {
		resp, err := http.Get("http://" + addr + "/health/live")
		if err != nil {
			return false
		}
		resp.Body.Close()
		return resp.StatusCode == http.StatusOK
	}, 2*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not shut down")
	}
}

func TestRun_ListenError(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	s := NewServer(Config{Addr: ln.Addr().String()}, nil, nil, nil)
	assert.Error(t, s.Run(context.Background()))
}
