// Package config loads Clippy's configuration.
//
// Values are layered: DefaultConfig, then the YAML file (clippy.yaml by
// default), then environment variables. Variables missing from the process
// environment are also looked up in a .env file. Secrets are normally
// supplied through the environment only.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap/zapcore"
	"gopkg.in/yaml.v3"

	"github.com/entrhq/clippy/pkg/browser"
	"github.com/entrhq/clippy/pkg/content"
	"github.com/entrhq/clippy/pkg/health"
	"github.com/entrhq/clippy/pkg/lock"
	"github.com/entrhq/clippy/pkg/logging"
	"github.com/entrhq/clippy/pkg/neynar"
	"github.com/entrhq/clippy/pkg/orchestrator"
	"github.com/entrhq/clippy/pkg/scheduler"
	"github.com/entrhq/clippy/pkg/workflow"
)

const (
	// DefaultFileName is the config file read when no path is given.
	DefaultFileName = "clippy.yaml"
	// DefaultEnvFile is the dotenv file consulted for missing variables.
	DefaultEnvFile = ".env"
	// DefaultProfileDir is the browser profile directory.
	DefaultProfileDir = "./browser-profile"
)

// Environment variables read by ApplyEnv.
const (
	EnvLoginEmail       = "CLIPPY_LOGIN_EMAIL"
	EnvHeadless         = "CLIPPY_HEADLESS"
	EnvProfileDir       = "CLIPPY_PROFILE_DIR"
	EnvLogLevel         = "CLIPPY_LOG_LEVEL"
	EnvHealthAddr       = "CLIPPY_HEALTH_ADDR"
	EnvNeynarAPIKey     = "NEYNAR_API_KEY"
	EnvNeynarSignerUUID = "NEYNAR_SIGNER_UUID"
	EnvOpenAIAPIKey     = "OPENAI_API_KEY"
	EnvOpenAIBaseURL    = "OPENAI_BASE_URL"
	EnvOpenAIModel      = "OPENAI_MODEL"
)

// Config is the complete Clippy configuration.
type Config struct {
	// Browser session, login and selectors
	Browser browser.Config `yaml:"browser" json:"browser"`

	// Retries and outcome waits of the UI workflows
	Workflow workflow.Config `yaml:"workflow" json:"workflow"`

	// Follow batch pacing and limits
	Orchestrator orchestrator.Config `yaml:"orchestrator" json:"orchestrator"`

	Neynar   neynar.Config    `yaml:"neynar" json:"neynar"`
	Content  content.Config   `yaml:"content" json:"content"`
	Schedule scheduler.Config `yaml:"schedule" json:"schedule"`
	Health   health.Config    `yaml:"health" json:"health"`
	Logging  logging.Options  `yaml:"logging" json:"logging"`
	Lock     LockConfig       `yaml:"lock" json:"lock"`

	// ConfigFilePath is the file the configuration was read from, if any
	ConfigFilePath string `yaml:"-" json:"-"`
}

// LockConfig configures the action lock.
type LockConfig struct {
	// Path of the marker file, relative to the working directory
	Path         string        `yaml:"path" json:"path"`
	PollInterval time.Duration `yaml:"poll_interval" json:"poll_interval"`
	// AwaitTimeout bounds how long one-shot commands wait for the lock
	AwaitTimeout time.Duration `yaml:"await_timeout" json:"await_timeout"`
}

// DefaultConfig returns a configuration suitable for most deployments.
func DefaultConfig() *Config {
	cfg := &Config{
		Browser:      browser.DefaultConfig(),
		Workflow:     workflow.DefaultConfig(),
		Orchestrator: orchestrator.DefaultConfig(),
		Neynar:       neynar.DefaultConfig(),
		Content:      content.DefaultConfig(),
		Schedule:     scheduler.DefaultConfig(),
		Health:       health.DefaultConfig(),
		Logging: logging.Options{
			Level:   "info",
			Console: true,
		},
		Lock: LockConfig{
			Path:         lock.DefaultFileName,
			PollInterval: lock.DefaultPollInterval,
			AwaitTimeout: 2 * time.Minute,
		},
	}
	cfg.Browser.ProfileDir = DefaultProfileDir
	return cfg
}

// Load builds the configuration from path and the environment. A missing
// file at the default path is not an error; a missing explicit path is.
// envFile names the dotenv file to consult ("" skips it); a missing dotenv
// file is ignored.
func Load(path, envFile string) (*Config, error) {
	cfg := DefaultConfig()

	if path == "" {
		path = DefaultFileName
		if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
			path = ""
		}
	}
	if path != "" {
		if err := cfg.loadFile(path); err != nil {
			return nil, err
		}
	}

	dotenv, err := readDotEnv(envFile)
	if err != nil {
		return nil, err
	}
	if err := cfg.ApplyEnv(lookupWith(dotenv)); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse config file: %w", err)
	}
	c.ConfigFilePath = path
	return nil
}

func readDotEnv(path string) (map[string]string, error) {
	if path == "" {
		return nil, nil
	}
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	vars, err := godotenv.Read(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	return vars, nil
}

// lookupWith returns a lookup that prefers the process environment and
// falls back to dotenv.
func lookupWith(dotenv map[string]string) func(string) (string, bool) {
	return func(key string) (string, bool) {
		if v, ok := os.LookupEnv(key); ok {
			return v, true
		}
		v, ok := dotenv[key]
		return v, ok
	}
}

// ApplyEnv overrides fields from environment variables found by lookup.
// Empty values are ignored.
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) error {
	get := func(key string) (string, bool) {
		v, ok := lookup(key)
		v = strings.TrimSpace(v)
		return v, ok && v != ""
	}

	if v, ok := get(EnvLoginEmail); ok {
		c.Browser.LoginEmail = v
	}
	if v, ok := get(EnvHeadless); ok {
		headless, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("invalid %s %q: %w", EnvHeadless, v, err)
		}
		c.Browser.Headless = headless
	}
	if v, ok := get(EnvProfileDir); ok {
		c.Browser.ProfileDir = v
	}
	if v, ok := get(EnvLogLevel); ok {
		c.Logging.Level = v
	}
	if v, ok := get(EnvHealthAddr); ok {
		c.Health.Addr = v
	}
	if v, ok := get(EnvNeynarAPIKey); ok {
		c.Neynar.APIKey = v
	}
	if v, ok := get(EnvNeynarSignerUUID); ok {
		c.Neynar.SignerUUID = v
	}
	if v, ok := get(EnvOpenAIAPIKey); ok {
		c.Content.APIKey = v
	}
	if v, ok := get(EnvOpenAIBaseURL); ok {
		c.Content.BaseURL = v
	}
	if v, ok := get(EnvOpenAIModel); ok {
		c.Content.Model = v
	}
	return nil
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	u, err := url.Parse(c.Browser.BaseURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("browser.base_url must be an absolute http(s) URL, got %q", c.Browser.BaseURL)
	}
	if c.Browser.ProfileDir == "" {
		return fmt.Errorf("browser.profile_dir is required")
	}
	if c.Browser.ManualLoginTimeout < 0 || c.Browser.NavigationTimeout < 0 || c.Browser.ActionTimeout < 0 {
		return fmt.Errorf("browser timeouts cannot be negative")
	}

	if err := c.Workflow.Validate(); err != nil {
		return fmt.Errorf("workflow: %w", err)
	}
	if err := c.Orchestrator.Validate(); err != nil {
		return fmt.Errorf("orchestrator: %w", err)
	}
	if err := c.Neynar.Validate(); err != nil {
		return fmt.Errorf("neynar: %w", err)
	}
	if err := c.Schedule.Validate(); err != nil {
		return fmt.Errorf("schedule: %w", err)
	}

	if c.Lock.Path == "" {
		return fmt.Errorf("lock.path is required")
	}
	if c.Lock.AwaitTimeout < 0 {
		return fmt.Errorf("lock.await_timeout cannot be negative")
	}

	if c.Health.Enabled && c.Health.Addr == "" {
		return fmt.Errorf("health.addr is required when the health server is enabled")
	}

	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if _, err := zapcore.ParseLevel(c.Logging.Level); err != nil {
		return fmt.Errorf("invalid logging level: %s (must be 'debug', 'info', 'warn' or 'error')", c.Logging.Level)
	}

	return nil
}

// Redacted returns a copy with secrets masked, for display.
func (c *Config) Redacted() *Config {
	out := *c
	out.Neynar.APIKey = mask(out.Neynar.APIKey)
	out.Neynar.SignerUUID = mask(out.Neynar.SignerUUID)
	out.Content.APIKey = mask(out.Content.APIKey)
	return &out
}

func mask(secret string) string {
	if secret == "" {
		return ""
	}
	if len(secret) <= 8 {
		return "****"
	}
	return secret[:4] + "****"
}
