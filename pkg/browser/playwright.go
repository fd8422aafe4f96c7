package browser

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/playwright-community/playwright-go"

	"github.com/entrhq/clippy/pkg/profile"
)

// PlaywrightLauncher launches Chromium through Playwright on a persistent
// user-data directory. The Playwright driver is installed and started on
// first use.
type PlaywrightLauncher struct {
	mu          sync.Mutex
	playwright  *playwright.Playwright
	initialized bool
}

// NewPlaywrightLauncher creates a launcher. Call Shutdown when done.
func NewPlaywrightLauncher() *PlaywrightLauncher {
	return &PlaywrightLauncher{}
}

// Initialize installs and starts the Playwright driver.
func (l *PlaywrightLauncher) Initialize() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.initializeLocked()
}

func (l *PlaywrightLauncher) initializeLocked() error {
	if l.initialized {
		return nil
	}

	// Install and run Playwright quietly; driver output is not ours to log
	opts := &playwright.RunOptions{
		Browsers: []string{"chromium"},
		Verbose:  false,
		Stdout:   io.Discard,
		Stderr:   io.Discard,
	}

	if err := playwright.Install(opts); err != nil {
		return fmt.Errorf("failed to install playwright: %w", err)
	}

	pw, err := playwright.Run(opts)
	if err != nil {
		return fmt.Errorf("failed to start playwright: %w", err)
	}

	l.playwright = pw
	l.initialized = true
	return nil
}

// Launch starts Chromium on opts.ProfileDir and returns its first page.
func (l *PlaywrightLauncher) Launch(ctx context.Context, opts LaunchOptions) (Instance, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if err := l.initializeLocked(); err != nil {
		return nil, err
	}

	timeout := millis(opts.Timeout)
	browserContext, err := l.playwright.Chromium.LaunchPersistentContext(opts.ProfileDir,
		playwright.BrowserTypeLaunchPersistentContextOptions{
			Headless: playwright.Bool(opts.Headless),
			Args:     opts.Args,
			Viewport: &playwright.Size{
				Width:  opts.Viewport.Width,
				Height: opts.Viewport.Height,
			},
			Timeout: playwright.Float(timeout),
		})
	if err != nil {
		return nil, fmt.Errorf("failed to launch persistent context: %w", err)
	}

	// A persistent context opens with one blank page; reuse it
	var page playwright.Page
	if pages := browserContext.Pages(); len(pages) > 0 {
		page = pages[0]
	} else {
		page, err = browserContext.NewPage()
		if err != nil {
			browserContext.Close()
			return nil, fmt.Errorf("failed to create page: %w", err)
		}
	}
	page.SetDefaultTimeout(timeout)

	return &playwrightInstance{
		context: browserContext,
		page:    &playwrightPage{page: page},
	}, nil
}

// Shutdown stops the Playwright driver.
func (l *PlaywrightLauncher) Shutdown() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.initialized && l.playwright != nil {
		if err := l.playwright.Stop(); err != nil {
			return fmt.Errorf("failed to stop playwright: %w", err)
		}
		l.initialized = false
	}
	return nil
}

type playwrightInstance struct {
	context playwright.BrowserContext
	page    *playwrightPage
}

func (i *playwrightInstance) Page() Page {
	return i.page
}

func (i *playwrightInstance) Cookies() ([]profile.Cookie, error) {
	cookies, err := i.context.Cookies()
	if err != nil {
		return nil, fmt.Errorf("failed to read cookies: %w", err)
	}

	out := make([]profile.Cookie, 0, len(cookies))
	for _, c := range cookies {
		cookie := profile.Cookie{
			Name:     c.Name,
			Value:    c.Value,
			Domain:   c.Domain,
			Path:     c.Path,
			Expires:  c.Expires,
			HTTPOnly: c.HttpOnly,
			Secure:   c.Secure,
		}
		if c.SameSite != nil {
			cookie.SameSite = string(*c.SameSite)
		}
		out = append(out, cookie)
	}
	return out, nil
}

func (i *playwrightInstance) AddCookies(cookies []profile.Cookie) error {
	in := make([]playwright.OptionalCookie, 0, len(cookies))
	for _, c := range cookies {
		cookie := playwright.OptionalCookie{
			Name:     c.Name,
			Value:    c.Value,
			Domain:   playwright.String(c.Domain),
			Path:     playwright.String(c.Path),
			Expires:  playwright.Float(c.Expires),
			HttpOnly: playwright.Bool(c.HTTPOnly),
			Secure:   playwright.Bool(c.Secure),
		}
		if c.SameSite != "" {
			sameSite := playwright.SameSiteAttribute(c.SameSite)
			cookie.SameSite = &sameSite
		}
		in = append(in, cookie)
	}
	if err := i.context.AddCookies(in); err != nil {
		return fmt.Errorf("failed to add cookies: %w", err)
	}
	return nil
}

func (i *playwrightInstance) Close() error {
	_ = i.page.page.Close() // Ignore errors, continue cleanup
	return i.context.Close()
}

type playwrightPage struct {
	page playwright.Page
}

func (p *playwrightPage) Goto(url string, timeout time.Duration) error {
	_, err := p.page.Goto(url, playwright.PageGotoOptions{
		WaitUntil: playwright.WaitUntilStateDomcontentloaded,
		Timeout:   playwright.Float(millis(timeout)),
	})
	return err
}

func (p *playwrightPage) URL() string {
	return p.page.URL()
}

func (p *playwrightPage) WaitVisible(selector string, timeout time.Duration) error {
	return p.page.Locator(selector).First().WaitFor(playwright.LocatorWaitForOptions{
		State:   playwright.WaitForSelectorStateVisible,
		Timeout: playwright.Float(millis(timeout)),
	})
}

func (p *playwrightPage) WaitHidden(selector string, timeout time.Duration) error {
	return p.page.Locator(selector).First().WaitFor(playwright.LocatorWaitForOptions{
		State:   playwright.WaitForSelectorStateHidden,
		Timeout: playwright.Float(millis(timeout)),
	})
}

func (p *playwrightPage) Fill(selector, value string, timeout time.Duration) error {
	return p.page.Locator(selector).First().Fill(value, playwright.LocatorFillOptions{
		Timeout: playwright.Float(millis(timeout)),
	})
}

func (p *playwrightPage) Press(selector, key string, timeout time.Duration) error {
	return p.page.Locator(selector).First().Press(key, playwright.LocatorPressOptions{
		Timeout: playwright.Float(millis(timeout)),
	})
}

func (p *playwrightPage) Click(selector string, timeout time.Duration) error {
	return p.page.Locator(selector).First().Click(playwright.LocatorClickOptions{
		Timeout: playwright.Float(millis(timeout)),
	})
}

func (p *playwrightPage) Text(selector string, timeout time.Duration) (string, error) {
	return p.page.Locator(selector).First().InnerText(playwright.LocatorInnerTextOptions{
		Timeout: playwright.Float(millis(timeout)),
	})
}

func (p *playwrightPage) Attributes(selector, name string) ([]string, error) {
	elements, err := p.page.Locator(selector).All()
	if err != nil {
		return nil, err
	}

	values := make([]string, 0, len(elements))
	for _, el := range elements {
		v, err := el.GetAttribute(name)
		if err != nil || v == "" {
			continue
		}
		values = append(values, v)
	}
	return values, nil
}

func (p *playwrightPage) BodyText() (string, error) {
	return p.page.Locator("body").InnerText()
}

// Alive evaluates a trivial expression; it fails once the page, its context
// or the browser process is gone.
func (p *playwrightPage) Alive() bool {
	if p.page.IsClosed() {
		return false
	}
	_, err := p.page.Evaluate("() => document.readyState")
	return err == nil
}

func millis(d time.Duration) float64 {
	return float64(d.Milliseconds())
}
