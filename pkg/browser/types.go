package browser

import (
	"context"
	"errors"
	"time"

	"github.com/entrhq/clippy/pkg/profile"
)

// Errors reported by the session manager.
var (
	// ErrLaunchFailed means no browser could be started, even after purging
	// stale profile artifacts and retrying once
	ErrLaunchFailed = errors.New("browser launch failed")

	// ErrAuthenticationTimedOut means the login route was never left within
	// the manual login bound
	ErrAuthenticationTimedOut = errors.New("authentication timed out")

	// ErrNavigationFailed means a page navigation did not complete
	ErrNavigationFailed = errors.New("navigation failed")

	// errWaitTimeout is returned by poll when its bound elapses
	errWaitTimeout = errors.New("wait timed out")
)

// State is the lifecycle state of the managed session.
type State string

const (
	StateAbsent         State = "absent"
	StateLaunching      State = "launching"
	StateLive           State = "live"
	StateStale          State = "stale"
	StateAuthenticating State = "authenticating"
)

// Page is the slice of a browser page the workflows drive. Every call that
// waits on the DOM takes an explicit bound.
type Page interface {
	// Goto navigates and waits for DOMContentLoaded
	Goto(url string, timeout time.Duration) error

	// URL returns the current page URL
	URL() string

	// WaitVisible waits until the first element matching selector is visible
	WaitVisible(selector string, timeout time.Duration) error

	// WaitHidden waits until no element matching selector is visible
	WaitHidden(selector string, timeout time.Duration) error

	// Fill replaces the content of an input or contenteditable
	Fill(selector, value string, timeout time.Duration) error

	// Press sends a key (e.g. "Enter") to the first matching element
	Press(selector, key string, timeout time.Duration) error

	// Click clicks the first matching element
	Click(selector string, timeout time.Duration) error

	// Text returns the visible text of the first matching element
	Text(selector string, timeout time.Duration) (string, error)

	// Attributes returns attribute name of every matching element, in DOM order
	Attributes(selector, name string) ([]string, error)

	// BodyText returns the visible text of the whole document
	BodyText() (string, error)

	// Alive probes the page; false means the page or its browser is gone
	Alive() bool
}

// Instance is one launched browser process with its single page.
type Instance interface {
	Page() Page
	Cookies() ([]profile.Cookie, error)
	AddCookies(cookies []profile.Cookie) error
	Close() error
}

// Launcher starts browser instances on a persistent profile directory.
type Launcher interface {
	Launch(ctx context.Context, opts LaunchOptions) (Instance, error)
}

// LaunchOptions configures a browser launch.
type LaunchOptions struct {
	// ProfileDir is the Chromium user-data directory
	ProfileDir string

	// Headless controls whether the browser runs without a visible window
	Headless bool

	// Args are the command line switches passed to Chromium
	Args []string

	// Viewport sets the page viewport size
	Viewport Viewport

	// Timeout bounds the launch and is the page default timeout
	Timeout time.Duration
}

// Viewport represents the browser viewport dimensions.
type Viewport struct {
	Width  int `yaml:"width" json:"width"`
	Height int `yaml:"height" json:"height"`
}

// HardenedArgs are always passed to Chromium. They let the browser run on
// constrained hosts (containers, CI, small VMs).
var HardenedArgs = []string{
	"--no-sandbox",
	"--disable-setuid-sandbox",
	"--disable-dev-shm-usage",
	"--disable-gpu",
	"--no-first-run",
	"--no-default-browser-check",
	"--disable-blink-features=AutomationControlled",
}

// Default values for the session manager
const (
	DefaultBaseURL             = "https://farcaster.xyz"
	DefaultLoginPath           = "/~/login"
	DefaultViewportWidth       = 1280
	DefaultViewportHeight      = 900
	DefaultLaunchTimeout       = 60 * time.Second
	DefaultNavigationTimeout   = 30 * time.Second
	DefaultActionTimeout       = 10 * time.Second
	DefaultEmailConfirmTimeout = 30 * time.Second
	DefaultManualLoginTimeout  = 5 * time.Minute
	DefaultPollInterval        = 500 * time.Millisecond
)

// DefaultConfirmationMarkers are page texts (matched case-insensitively) that
// show the email login link was sent.
var DefaultConfirmationMarkers = []string{
	"check your email",
	"check your inbox",
	"we sent",
	"magic link",
	"verification link",
}

// Config configures the session manager.
type Config struct {
	// BaseURL is the landing page of the web client
	BaseURL string `yaml:"base_url" json:"base_url"`

	// LoginPath is the route prefix of the login wall
	LoginPath string `yaml:"login_path" json:"login_path"`

	// LoginEmail enables the passwordless email flow when set
	LoginEmail string `yaml:"login_email" json:"login_email"`

	// ProfileDir is the persistent browser profile directory
	ProfileDir string `yaml:"profile_dir" json:"profile_dir"`

	// Headless controls whether the browser runs without a visible window
	Headless bool `yaml:"headless" json:"headless"`

	// ExtraArgs are appended to HardenedArgs
	ExtraArgs []string `yaml:"extra_args" json:"extra_args"`

	Viewport Viewport `yaml:"viewport" json:"viewport"`

	LaunchTimeout       time.Duration `yaml:"launch_timeout" json:"launch_timeout"`
	NavigationTimeout   time.Duration `yaml:"navigation_timeout" json:"navigation_timeout"`
	ActionTimeout       time.Duration `yaml:"action_timeout" json:"action_timeout"`
	EmailConfirmTimeout time.Duration `yaml:"email_confirm_timeout" json:"email_confirm_timeout"`
	ManualLoginTimeout  time.Duration `yaml:"manual_login_timeout" json:"manual_login_timeout"`
	PollInterval        time.Duration `yaml:"poll_interval" json:"poll_interval"`

	// ConfirmationMarkers override DefaultConfirmationMarkers
	ConfirmationMarkers []string `yaml:"confirmation_markers" json:"confirmation_markers"`

	// Selectors locate every element the bot touches
	Selectors Selectors `yaml:"selectors" json:"selectors"`
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		BaseURL:   DefaultBaseURL,
		LoginPath: DefaultLoginPath,
		Headless:  true,
		Viewport: Viewport{
			Width:  DefaultViewportWidth,
			Height: DefaultViewportHeight,
		},
		LaunchTimeout:       DefaultLaunchTimeout,
		NavigationTimeout:   DefaultNavigationTimeout,
		ActionTimeout:       DefaultActionTimeout,
		EmailConfirmTimeout: DefaultEmailConfirmTimeout,
		ManualLoginTimeout:  DefaultManualLoginTimeout,
		PollInterval:        DefaultPollInterval,
		ConfirmationMarkers: append([]string(nil), DefaultConfirmationMarkers...),
		Selectors:           DefaultSelectors(),
	}
}

// withDefaults fills zero fields from DefaultConfig.
func (c Config) withDefaults() Config {
	def := DefaultConfig()
	if c.BaseURL == "" {
		c.BaseURL = def.BaseURL
	}
	if c.LoginPath == "" {
		c.LoginPath = def.LoginPath
	}
	if c.Viewport.Width == 0 || c.Viewport.Height == 0 {
		c.Viewport = def.Viewport
	}
	if c.LaunchTimeout <= 0 {
		c.LaunchTimeout = def.LaunchTimeout
	}
	if c.NavigationTimeout <= 0 {
		c.NavigationTimeout = def.NavigationTimeout
	}
	if c.ActionTimeout <= 0 {
		c.ActionTimeout = def.ActionTimeout
	}
	if c.EmailConfirmTimeout <= 0 {
		c.EmailConfirmTimeout = def.EmailConfirmTimeout
	}
	if c.ManualLoginTimeout <= 0 {
		c.ManualLoginTimeout = def.ManualLoginTimeout
	}
	if c.PollInterval <= 0 {
		c.PollInterval = def.PollInterval
	}
	if len(c.ConfirmationMarkers) == 0 {
		c.ConfirmationMarkers = def.ConfirmationMarkers
	}
	c.Selectors = c.Selectors.merge(def.Selectors)
	return c
}

// LaunchArgs returns HardenedArgs followed by ExtraArgs.
func (c Config) LaunchArgs() []string {
	args := make([]string, 0, len(HardenedArgs)+len(c.ExtraArgs))
	args = append(args, HardenedArgs...)
	return append(args, c.ExtraArgs...)
}
