// Package lock provides the file-based action lock that serializes access to
// the shared browser session across independently triggered tasks.
//
// The lock is a marker file holding the owner identifier. Creation uses
// O_EXCL so only one owner can hold it. Filesystem errors other than
// "already exists" are logged and read as "not locked": an occasional double
// run is preferred over a scheduler that stalls on a permission glitch.
//
// A marker left behind by a crashed process is removed by ClearStale at
// startup. This leaves a small window in which two processes started at the
// same moment can both run, in exchange for never deadlocking permanently.
package lock

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	// DefaultFileName is the marker file name in the working directory
	DefaultFileName = "browser.lock"

	// DefaultPollInterval is the AwaitAcquire polling interval
	DefaultPollInterval = 500 * time.Millisecond
)

// ErrLocked is returned by Run when another owner holds the lock.
var ErrLocked = errors.New("action lock is held by another owner")

// Manager manages one lock marker file.
type Manager struct {
	path         string
	pollInterval time.Duration
	logger       *zap.Logger
}

// Option configures a Manager.
type Option func(*Manager)

// WithPollInterval overrides the AwaitAcquire polling interval.
func WithPollInterval(d time.Duration) Option {
	return func(m *Manager) {
		if d > 0 {
			m.pollInterval = d
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(m *Manager) {
		if l != nil {
			m.logger = l
		}
	}
}

// NewManager creates a lock manager for the marker at path.
// If path is empty, defaults to ./browser.lock.
func NewManager(path string, opts ...Option) *Manager {
	if path == "" {
		path = DefaultFileName
	}
	m := &Manager{
		path:         path,
		pollInterval: DefaultPollInterval,
		logger:       zap.NewNop(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// NewOwnerID returns a unique owner identifier for a task.
func NewOwnerID(task string) string {
	return fmt.Sprintf("%s-%d-%s", task, os.Getpid(), uuid.NewString()[:8])
}

// Path returns the marker file path.
func (m *Manager) Path() string {
	return m.path
}

// TryAcquire creates the marker if absent. It never blocks.
func (m *Manager) TryAcquire(owner string) bool {
	if dir := filepath.Dir(m.path); dir != "." {
		if err := os.MkdirAll(dir, 0750); err != nil {
			m.logger.Warn("failed to create lock directory", zap.String("path", dir), zap.Error(err))
		}
	}

	// #nosec G304 -- lock path comes from configuration
	f, err := os.OpenFile(m.path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0600)
	if err != nil {
		if errors.Is(err, fs.ErrExist) {
			m.logger.Debug("lock already held", zap.String("owner", owner), zap.String("holder", m.Owner()))
			return false
		}
		// Availability over exclusion: proceed as if unlocked.
		m.logger.Warn("lock marker could not be created, proceeding unlocked",
			zap.String("path", m.path), zap.Error(err))
		return true
	}
	defer f.Close()

	if _, err := f.WriteString(owner); err != nil {
		m.logger.Warn("failed to write lock owner", zap.String("path", m.path), zap.Error(err))
	}
	m.logger.Debug("lock acquired", zap.String("owner", owner))
	return true
}

// IsLocked reports whether the marker exists.
func (m *Manager) IsLocked() bool {
	_, err := os.Stat(m.path)
	if err == nil {
		return true
	}
	if !errors.Is(err, fs.ErrNotExist) {
		m.logger.Warn("lock stat failed, treating as unlocked", zap.String("path", m.path), zap.Error(err))
	}
	return false
}

// Owner returns the owner recorded in the marker, or "" when unlocked or unreadable.
func (m *Manager) Owner() string {
	data, err := os.ReadFile(m.path)
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(data))
}

// Release removes the marker. Removing an absent marker is not an error.
func (m *Manager) Release() {
	if err := os.Remove(m.path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		m.logger.Warn("failed to remove lock marker", zap.String("path", m.path), zap.Error(err))
		return
	}
	m.logger.Debug("lock released")
}

// ClearStale removes a marker left over from a previous process.
func (m *Manager) ClearStale() {
	if !m.IsLocked() {
		return
	}
	m.logger.Info("removing stale lock marker", zap.String("path", m.path), zap.String("holder", m.Owner()))
	m.Release()
}

// AwaitAcquire polls TryAcquire until it succeeds, maxWait elapses, or ctx is done.
func (m *Manager) AwaitAcquire(ctx context.Context, owner string, maxWait time.Duration) bool {
	if m.TryAcquire(owner) {
		return true
	}

	deadline := time.NewTimer(maxWait)
	defer deadline.Stop()
	ticker := time.NewTicker(m.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return false
		case <-deadline.C:
			m.logger.Info("timed out waiting for lock",
				zap.String("owner", owner), zap.Duration("waited", maxWait))
			return false
		case <-ticker.C:
			if m.TryAcquire(owner) {
				return true
			}
		}
	}
}

// Run executes fn while holding the lock and releases it afterwards, including
// when fn panics. If the lock is held, fn is skipped and ErrLocked is returned.
func (m *Manager) Run(owner string, fn func() error) error {
	if !m.TryAcquire(owner) {
		return ErrLocked
	}
	defer m.Release()
	return fn()
}
