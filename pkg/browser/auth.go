package browser

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"
)

// authenticateLocked opens the landing page and, if the site redirects to the
// login wall, runs the login handshake.
func (m *Manager) authenticateLocked(ctx context.Context) error {
	page := m.instance.Page()
	if err := page.Goto(m.cfg.BaseURL, m.cfg.NavigationTimeout); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrNavigationFailed, m.cfg.BaseURL, err)
	}
	if !m.IsLoginRoute(page.URL()) {
		m.logger.Debug("restored session is authenticated", zap.String("url", page.URL()))
		return nil
	}
	return m.loginLocked(ctx, page)
}

// loginLocked drives the login wall. With an email configured it first tries
// the passwordless flow; any failure there falls through to the manual wait,
// which also covers the out-of-band click on the emailed link. Only the
// manual wait bound turns into ErrAuthenticationTimedOut.
func (m *Manager) loginLocked(ctx context.Context, page Page) error {
	m.setState(StateAuthenticating)
	m.logger.Info("login required", zap.String("url", page.URL()))

	if m.cfg.LoginEmail != "" {
		if err := m.emailLogin(ctx, page); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			m.logger.Warn("email login flow failed, waiting for manual login", zap.Error(err))
		} else {
			m.logger.Info("login link sent, confirm it from the inbox", zap.String("email", m.cfg.LoginEmail))
		}
	} else {
		m.logger.Info("no login email configured, complete login in the browser window",
			zap.Duration("timeout", m.cfg.ManualLoginTimeout))
	}

	err := poll(ctx, m.cfg.PollInterval, m.cfg.ManualLoginTimeout, func() bool {
		return !m.IsLoginRoute(page.URL())
	})
	if err != nil {
		if errors.Is(err, errWaitTimeout) {
			return fmt.Errorf("%w after %s", ErrAuthenticationTimedOut, m.cfg.ManualLoginTimeout)
		}
		return err
	}

	m.logger.Info("login completed", zap.String("url", page.URL()))
	m.setState(StateLive)
	m.saveCookiesLocked()
	return nil
}

// emailLogin clicks the email affordance, submits the address, and waits for
// one of the confirmation markers to appear on the page.
func (m *Manager) emailLogin(ctx context.Context, page Page) error {
	sel := m.cfg.Selectors
	timeout := m.cfg.ActionTimeout

	if err := page.Click(sel.EmailLoginButton, timeout); err != nil {
		return fmt.Errorf("email login button: %w", err)
	}
	if err := page.Fill(sel.EmailInput, m.cfg.LoginEmail, timeout); err != nil {
		return fmt.Errorf("email input: %w", err)
	}
	if err := page.Click(sel.EmailSubmit, timeout); err != nil {
		return fmt.Errorf("email submit: %w", err)
	}

	err := poll(ctx, m.cfg.PollInterval, m.cfg.EmailConfirmTimeout, func() bool {
		text, err := page.BodyText()
		return err == nil && ContainsAnyFold(text, m.cfg.ConfirmationMarkers)
	})
	if err != nil {
		return fmt.Errorf("waiting for email confirmation: %w", err)
	}
	return nil
}

// ContainsAnyFold reports whether text contains any of markers, ignoring case.
func ContainsAnyFold(text string, markers []string) bool {
	lower := strings.ToLower(text)
	for _, marker := range markers {
		if marker != "" && strings.Contains(lower, strings.ToLower(marker)) {
			return true
		}
	}
	return false
}
