// Package browsertest provides scripted in-memory implementations of
// browser.Launcher, browser.Instance and browser.Page for tests.
package browsertest

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/entrhq/clippy/pkg/browser"
	"github.com/entrhq/clippy/pkg/profile"
)

// ErrNotFound is returned by a Page for selectors it does not know.
var ErrNotFound = errors.New("element not found")

// Page is a scripted browser.Page. Elements are plain selector strings; an
// element "exists" when it is marked visible.
type Page struct {
	mu sync.Mutex

	url     string
	alive   bool
	body    string
	visible map[string]bool
	texts   map[string]string
	attrs   map[string][]string

	// OnGoto maps a requested URL to the URL the page ends up on (redirects).
	// It may also return an error to fail the navigation.
	OnGoto func(p *Page, url string) (string, error)

	// OnClick runs after a click on selector succeeds.
	OnClick map[string]func(p *Page) error

	// FailClick makes clicks on the given selectors fail.
	FailClick map[string]error

	gotos   []string
	clicks  []string
	fills   map[string]string
	presses []string
}

// NewPage creates a live page on about:blank.
func NewPage() *Page {
	return &Page{
		url:       "about:blank",
		alive:     true,
		visible:   make(map[string]bool),
		texts:     make(map[string]string),
		attrs:     make(map[string][]string),
		OnClick:   make(map[string]func(p *Page) error),
		FailClick: make(map[string]error),
		fills:     make(map[string]string),
	}
}

// SetURL sets the current URL.
func (p *Page) SetURL(url string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.url = url
}

// SetAlive controls the liveness probe result.
func (p *Page) SetAlive(alive bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.alive = alive
}

// SetBody sets the document text.
func (p *Page) SetBody(text string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.body = text
}

// Show marks selector visible with the given text.
func (p *Page) Show(selector, text string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.visible[selector] = true
	p.texts[selector] = text
}

// Hide removes selector.
func (p *Page) Hide(selector string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.visible, selector)
	delete(p.texts, selector)
}

// SetAttributes sets the attribute values returned for selector.
func (p *Page) SetAttributes(selector string, values ...string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.attrs[selector] = values
}

// Gotos returns every navigated URL.
func (p *Page) Gotos() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.gotos...)
}

// Clicks returns every clicked selector.
func (p *Page) Clicks() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.clicks...)
}

// Filled returns the last value filled into selector.
func (p *Page) Filled(selector string) string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.fills[selector]
}

// Presses returns every "selector:key" pressed.
func (p *Page) Presses() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.presses...)
}

func (p *Page) Goto(url string, _ time.Duration) error {
	p.mu.Lock()
	p.gotos = append(p.gotos, url)
	hook := p.OnGoto
	p.mu.Unlock()

	final := url
	if hook != nil {
		var err error
		final, err = hook(p, url)
		if err != nil {
			return err
		}
	}
	p.SetURL(final)
	return nil
}

func (p *Page) URL() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.url
}

func (p *Page) WaitVisible(selector string, _ time.Duration) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.visible[selector] {
		return fmt.Errorf("%w: %s", ErrNotFound, selector)
	}
	return nil
}

func (p *Page) WaitHidden(selector string, _ time.Duration) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.visible[selector] {
		return fmt.Errorf("timeout: %s still visible", selector)
	}
	return nil
}

func (p *Page) Fill(selector, value string, _ time.Duration) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.visible[selector] {
		return fmt.Errorf("%w: %s", ErrNotFound, selector)
	}
	p.fills[selector] = value
	return nil
}

func (p *Page) Press(selector, key string, _ time.Duration) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.visible[selector] {
		return fmt.Errorf("%w: %s", ErrNotFound, selector)
	}
	p.presses = append(p.presses, selector+":"+key)
	return nil
}

func (p *Page) Click(selector string, _ time.Duration) error {
	p.mu.Lock()
	if err := p.FailClick[selector]; err != nil {
		p.mu.Unlock()
		return err
	}
	if !p.visible[selector] {
		p.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrNotFound, selector)
	}
	p.clicks = append(p.clicks, selector)
	hook := p.OnClick[selector]
	p.mu.Unlock()

	if hook != nil {
		return hook(p)
	}
	return nil
}

func (p *Page) Text(selector string, _ time.Duration) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.visible[selector] {
		return "", fmt.Errorf("%w: %s", ErrNotFound, selector)
	}
	return p.texts[selector], nil
}

func (p *Page) Attributes(selector, _ string) ([]string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.attrs[selector]...), nil
}

func (p *Page) BodyText() (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.body, nil
}

func (p *Page) Alive() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.alive
}

// Instance is a scripted browser.Instance.
type Instance struct {
	mu      sync.Mutex
	page    *Page
	cookies []profile.Cookie
	added   []profile.Cookie
	closed  bool
}

// NewInstance wraps page.
func NewInstance(page *Page) *Instance {
	return &Instance{page: page}
}

// SetCookies sets the cookies the browser reports.
func (i *Instance) SetCookies(cookies []profile.Cookie) {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.cookies = cookies
}

// Added returns the cookies restored into the browser.
func (i *Instance) Added() []profile.Cookie {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.added
}

// Closed reports whether Close was called.
func (i *Instance) Closed() bool {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.closed
}

// FakePage returns the scripted page.
func (i *Instance) FakePage() *Page {
	return i.page
}

func (i *Instance) Page() browser.Page {
	return i.page
}

func (i *Instance) Cookies() ([]profile.Cookie, error) {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.cookies, nil
}

func (i *Instance) AddCookies(cookies []profile.Cookie) error {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.added = append(i.added, cookies...)
	return nil
}

func (i *Instance) Close() error {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.closed = true
	i.page.SetAlive(false)
	return nil
}

// Launcher is a scripted browser.Launcher.
type Launcher struct {
	mu sync.Mutex

	// NewPage builds the page of each launched instance (default NewPage).
	NewPage func() *Page

	// Errors are returned by successive Launch calls before any success.
	Errors []error

	instances []*Instance
	options   []browser.LaunchOptions
	calls     int
}

func (l *Launcher) Launch(ctx context.Context, opts browser.LaunchOptions) (browser.Instance, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	l.calls++
	l.options = append(l.options, opts)
	if len(l.Errors) > 0 {
		err := l.Errors[0]
		l.Errors = l.Errors[1:]
		return nil, err
	}

	newPage := l.NewPage
	if newPage == nil {
		newPage = NewPage
	}
	inst := NewInstance(newPage())
	l.instances = append(l.instances, inst)
	return inst, nil
}

// Calls returns the number of Launch calls.
func (l *Launcher) Calls() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.calls
}

// Instances returns every successfully launched instance.
func (l *Launcher) Instances() []*Instance {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]*Instance(nil), l.instances...)
}

// Options returns the options of every Launch call.
func (l *Launcher) Options() []browser.LaunchOptions {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]browser.LaunchOptions(nil), l.options...)
}

// Last returns the most recent instance, or nil.
func (l *Launcher) Last() *Instance {
	l.mu.Lock()
	defer l.mu.Unlock()
	if len(l.instances) == 0 {
		return nil
	}
	return l.instances[len(l.instances)-1]
}
