package browser

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/entrhq/clippy/pkg/profile"
)

// Manager owns the single long-lived browser instance bound to one profile
// directory. It never runs two instances at once: every transition happens
// under mu, and an instance is always closed before another is launched.
type Manager struct {
	mu       sync.Mutex
	cfg      Config
	launcher Launcher
	store    *profile.Store
	logger   *zap.Logger

	instance   Instance
	launchedAt time.Time

	// state holds a State and is readable without mu
	state atomic.Value
}

// Session is a handle to the live page, valid until the next call to
// Manager.Session with forceNew or Close.
type Session struct {
	Page       Page
	ProfileDir string

	manager  *Manager
	instance Instance
}

// NewManager creates a session manager. The profile directory is taken from
// store.
func NewManager(cfg Config, launcher Launcher, store *profile.Store, logger *zap.Logger) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	cfg.ProfileDir = store.Dir()
	m := &Manager{
		cfg:      cfg.withDefaults(),
		launcher: launcher,
		store:    store,
		logger:   logger,
	}
	m.setState(StateAbsent)
	return m
}

// Config returns the effective configuration.
func (m *Manager) Config() Config {
	return m.cfg
}

// State returns the current lifecycle state.
func (m *Manager) State() State {
	state, _ := m.state.Load().(State)
	return state
}

func (m *Manager) setState(state State) {
	m.state.Store(state)
}

// Session returns the live session, launching (and if needed authenticating)
// a browser first. A live instance is reused when its liveness probe passes;
// a dead one is closed and replaced. forceNew always closes and relaunches.
func (m *Manager) Session(ctx context.Context, forceNew bool) (*Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.instance != nil {
		switch {
		case forceNew:
			m.logger.Info("force refresh requested, closing browser")
			m.closeLocked()
		case m.instance.Page().Alive():
			m.setState(StateLive)
			return m.sessionLocked(), nil
		default:
			m.setState(StateStale)
			m.logger.Warn("browser session failed liveness probe, relaunching",
				zap.Duration("age", time.Since(m.launchedAt)))
			m.closeLocked()
		}
	}

	if err := m.launchLocked(ctx); err != nil {
		return nil, err
	}

	if err := m.authenticateLocked(ctx); err != nil {
		m.closeLocked()
		return nil, err
	}

	return m.sessionLocked(), nil
}

func (m *Manager) sessionLocked() *Session {
	return &Session{
		Page:       m.instance.Page(),
		ProfileDir: m.store.Dir(),
		manager:    m,
		instance:   m.instance,
	}
}

// launchLocked takes the manager from Absent to Live. A launch refused because
// the profile is locked by a dead process is retried once after purging.
func (m *Manager) launchLocked(ctx context.Context) error {
	m.setState(StateLaunching)

	if err := m.store.EnsureProfileDir(); err != nil {
		m.setState(StateAbsent)
		return fmt.Errorf("%w: %v", ErrLaunchFailed, err)
	}
	m.store.PurgeStaleArtifacts()

	opts := LaunchOptions{
		ProfileDir: m.store.Dir(),
		Headless:   m.cfg.Headless,
		Args:       m.cfg.LaunchArgs(),
		Viewport:   m.cfg.Viewport,
		Timeout:    m.cfg.LaunchTimeout,
	}

	m.logger.Info("launching browser",
		zap.String("profile", opts.ProfileDir), zap.Bool("headless", opts.Headless))

	instance, err := m.launcher.Launch(ctx, opts)
	if err != nil && IsProfileLockConflict(err) {
		m.logger.Warn("profile is locked by another browser process, purging and retrying", zap.Error(err))
		m.store.PurgeStaleArtifacts()
		instance, err = m.launcher.Launch(ctx, opts)
	}
	if err != nil {
		m.setState(StateAbsent)
		return fmt.Errorf("%w: %v", ErrLaunchFailed, err)
	}

	if !instance.Page().Alive() {
		_ = instance.Close()
		m.setState(StateAbsent)
		return fmt.Errorf("%w: new page failed liveness probe", ErrLaunchFailed)
	}

	if cookies := m.store.LoadCookies(); len(cookies) > 0 {
		if err := instance.AddCookies(cookies); err != nil {
			m.logger.Warn("failed to restore cookies", zap.Error(err))
		} else {
			m.logger.Debug("restored cookies", zap.Int("cookies", len(cookies)))
		}
	}

	m.instance = instance
	m.launchedAt = time.Now()
	m.setState(StateLive)
	return nil
}

// SaveCookies persists the live instance's cookies. Errors are logged only.
func (m *Manager) SaveCookies() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.saveCookiesLocked()
}

func (m *Manager) saveCookiesLocked() {
	if m.instance == nil {
		return
	}
	cookies, err := m.instance.Cookies()
	if err != nil {
		m.logger.Warn("failed to read browser cookies", zap.Error(err))
		return
	}
	if err := m.store.SaveCookies(cookies); err != nil {
		m.logger.Warn("failed to persist cookies", zap.Error(err))
	}
}

// Close saves cookies and closes the browser. Safe to call when absent.
func (m *Manager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.instance == nil {
		return nil
	}
	m.saveCookiesLocked()
	err := m.instance.Close()
	m.instance = nil
	m.setState(StateAbsent)
	return err
}

func (m *Manager) closeLocked() {
	if m.instance != nil {
		if err := m.instance.Close(); err != nil {
			m.logger.Debug("error closing browser", zap.Error(err))
		}
	}
	m.instance = nil
	m.setState(StateAbsent)
}

// IsLoginRoute reports whether rawURL is on the login wall.
func (m *Manager) IsLoginRoute(rawURL string) bool {
	u, err := url.Parse(rawURL)
	if err != nil {
		return false
	}
	return strings.HasPrefix(u.Path, m.cfg.LoginPath)
}

// IsProfileLockConflict reports whether a launch error means another (usually
// dead) Chromium process still owns the profile directory.
func IsProfileLockConflict(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	for _, marker := range []string{
		"processsingleton",
		"singletonlock",
		"profile appears to be in use",
		"user data directory is already in use",
	} {
		if strings.Contains(msg, marker) {
			return true
		}
	}
	return false
}

// Reset returns the page to a neutral state after a failed workflow step. If
// even that fails, the session is invalidated so the next caller relaunches.
func (s *Session) Reset() {
	if err := s.Page.Goto("about:blank", s.manager.cfg.NavigationTimeout); err != nil {
		s.manager.logger.Warn("page reset failed, invalidating session", zap.Error(err))
		s.manager.invalidateInstance(s.instance)
	}
}

// EnsureAuthenticated re-runs the login handshake if the page sits on the
// login wall, e.g. after the site expired the session mid-run.
func (s *Session) EnsureAuthenticated(ctx context.Context) error {
	if !s.OnLoginWall() {
		return nil
	}
	s.manager.mu.Lock()
	defer s.manager.mu.Unlock()
	if s.manager.instance != s.instance {
		return errors.New("browser session was replaced")
	}
	if err := s.manager.loginLocked(ctx, s.Page); err != nil {
		s.manager.closeLocked()
		return err
	}
	return nil
}

// OnLoginWall reports whether the page currently sits on the login route.
func (s *Session) OnLoginWall() bool {
	return s.manager.IsLoginRoute(s.Page.URL())
}

// Config returns the manager configuration the session was created under.
func (s *Session) Config() Config {
	return s.manager.cfg
}

// Navigate goes to rawURL within the navigation bound.
func (s *Session) Navigate(rawURL string) error {
	if err := s.Page.Goto(rawURL, s.manager.cfg.NavigationTimeout); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrNavigationFailed, rawURL, err)
	}
	return nil
}

// invalidateInstance closes inst if it is still the current instance.
func (m *Manager) invalidateInstance(inst Instance) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.instance == inst {
		m.closeLocked()
	}
}
