// Package profile manages the on-disk browser profile: the user-data
// directory handed to Chromium, the serialized auth cookie jar next to it, and
// cleanup of single-instance lock files left behind by a crashed browser.
package profile

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"go.uber.org/zap"
)

const (
	// CookieFileName is the cookie jar file inside the profile directory
	CookieFileName = "auth_cookies.json"

	// DefaultSubdir is the Chromium profile subdirectory scanned by PurgeStaleArtifacts
	DefaultSubdir = "Default"
)

// Chromium single-instance artifacts. A live browser holds these; a crashed
// one leaves them behind and the next launch refuses the profile.
var (
	staleNames    = []string{"SingletonLock", "SingletonCookie", "SingletonSocket", "lockfile", "LOCK"}
	stalePatterns = []string{".org.chromium.Chromium.*", "Singleton*", "*.lock"}
)

// Cookie is one persisted browser cookie.
type Cookie struct {
	Name     string  `json:"name"`
	Value    string  `json:"value"`
	Domain   string  `json:"domain"`
	Path     string  `json:"path"`
	Expires  float64 `json:"expires"`
	HTTPOnly bool    `json:"httpOnly"`
	Secure   bool    `json:"secure"`
	SameSite string  `json:"sameSite,omitempty"`
}

// Store manages one profile directory.
type Store struct {
	dir    string
	logger *zap.Logger
}

// NewStore creates a store rooted at dir.
func NewStore(dir string, logger *zap.Logger) *Store {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{dir: dir, logger: logger}
}

// Dir returns the profile directory.
func (s *Store) Dir() string {
	return s.dir
}

// CookiePath returns the path of the cookie jar.
func (s *Store) CookiePath() string {
	return filepath.Join(s.dir, CookieFileName)
}

// EnsureProfileDir creates the profile directory tree if missing.
func (s *Store) EnsureProfileDir() error {
	if err := os.MkdirAll(s.dir, 0750); err != nil {
		return fmt.Errorf("failed to create profile directory: %w", err)
	}
	return nil
}

// PurgeStaleArtifacts deletes browser single-instance lock files from the
// profile root and its Default subdirectory. Failures are logged and skipped.
// It returns the paths that were removed.
func (s *Store) PurgeStaleArtifacts() []string {
	var removed []string
	for _, dir := range []string{s.dir, filepath.Join(s.dir, DefaultSubdir)} {
		removed = append(removed, s.purgeDir(dir)...)
	}
	if len(removed) > 0 {
		s.logger.Info("purged stale browser artifacts", zap.Strings("paths", removed))
	}
	return removed
}

func (s *Store) purgeDir(dir string) []string {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			s.logger.Warn("failed to read profile directory", zap.String("dir", dir), zap.Error(err))
		}
		return nil
	}

	var removed []string
	for _, entry := range entries {
		if entry.IsDir() || !IsStaleArtifact(entry.Name()) {
			continue
		}
		path := filepath.Join(dir, entry.Name())
		if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
			s.logger.Warn("failed to remove stale artifact", zap.String("path", path), zap.Error(err))
			continue
		}
		removed = append(removed, path)
	}
	return removed
}

// IsStaleArtifact reports whether name is a known browser lock artifact.
func IsStaleArtifact(name string) bool {
	for _, n := range staleNames {
		if name == n {
			return true
		}
	}
	for _, p := range stalePatterns {
		if ok, _ := filepath.Match(p, name); ok {
			return true
		}
	}
	return false
}

// LoadCookies reads the cookie jar. A missing or corrupt file yields no cookies.
func (s *Store) LoadCookies() []Cookie {
	data, err := os.ReadFile(s.CookiePath())
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			s.logger.Warn("failed to read cookie jar", zap.String("path", s.CookiePath()), zap.Error(err))
		}
		return nil
	}

	var cookies []Cookie
	if err := json.Unmarshal(data, &cookies); err != nil {
		s.logger.Warn("ignoring corrupt cookie jar", zap.String("path", s.CookiePath()), zap.Error(err))
		return nil
	}
	return cookies
}

// SaveCookies replaces the cookie jar.
func (s *Store) SaveCookies(cookies []Cookie) error {
	if err := s.EnsureProfileDir(); err != nil {
		return err
	}
	if cookies == nil {
		cookies = []Cookie{}
	}

	data, err := json.MarshalIndent(cookies, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode cookies: %w", err)
	}

	// Write to a temp file and rename so readers never see a partial jar
	tempPath := s.CookiePath() + ".tmp"
	if err := os.WriteFile(tempPath, data, 0600); err != nil {
		return fmt.Errorf("failed to write temp cookie file: %w", err)
	}
	if err := os.Rename(tempPath, s.CookiePath()); err != nil {
		os.Remove(tempPath)
		return fmt.Errorf("failed to rename temp cookie file: %w", err)
	}

	s.logger.Debug("saved cookie jar", zap.Int("cookies", len(cookies)))
	return nil
}
