// Package browsertest provides an in-memory browser backend for tests.
package browsertest

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/edgecomet/distill/internal/scrape/browser"
)

// Page describes what a fake tab renders for a URL
type Page struct {
	Title    string
	OGTags   map[string]string
	BodyHTML string
	NoBody   bool // WaitReady("body") never succeeds

	NavigateErr error
	EvaluateErr error
	RawResult   *string       // returned verbatim from Evaluate instead of the encoded page
	Delay       time.Duration // applied to Evaluate
	IgnoreCtx   bool          // Delay is not interrupted by context cancellation
	Panic       bool          // Evaluate panics
}

// Launcher is a scriptable browser.Launcher
type Launcher struct {
	mu         sync.Mutex
	pages      map[string]Page
	processes  []*Process
	launchErrs []error
	onLaunch   func(*Process)

	tabsCreated atomic.Int64
}

// NewLauncher returns an empty fake launcher
func NewLauncher() *Launcher {
	return &Launcher{pages: make(map[string]Page)}
}

// SetPage registers the page served for url
func (l *Launcher) SetPage(url string, p Page) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.pages[url] = p
}

// FailNextLaunch makes the next Launch call return err
func (l *Launcher) FailNextLaunch(err error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.launchErrs = append(l.launchErrs, err)
}

// OnLaunch registers fn to run on every newly launched process before it is returned
func (l *Launcher) OnLaunch(fn func(*Process)) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.onLaunch = fn
}

// Launch implements browser.Launcher
func (l *Launcher) Launch(ctx context.Context) (browser.Process, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if len(l.launchErrs) > 0 {
		err := l.launchErrs[0]
		l.launchErrs = l.launchErrs[1:]
		return nil, err
	}

	p := &Process{launcher: l, id: len(l.processes)}
	l.processes = append(l.processes, p)
	if l.onLaunch != nil {
		l.onLaunch(p)
	}
	return p, nil
}

// Launches returns how many processes were started successfully
func (l *Launcher) Launches() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.processes)
}

// Current returns the most recently launched process
func (l *Launcher) Current() *Process {
	l.mu.Lock()
	defer l.mu.Unlock()
	if len(l.processes) == 0 {
		return nil
	}
	return l.processes[len(l.processes)-1]
}

// Process returns the i-th launched process
func (l *Launcher) Process(i int) *Process {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.processes[i]
}

// TabsCreated counts successful NewTab calls across all processes
func (l *Launcher) TabsCreated() int {
	return int(l.tabsCreated.Load())
}

func (l *Launcher) page(url string) Page {
	l.mu.Lock()
	defer l.mu.Unlock()
	if p, ok := l.pages[url]; ok {
		return p
	}
	return Page{BodyHTML: "<body></body>"}
}

// Process is a fake browser process
type Process struct {
	launcher *Launcher
	id       int

	mu      sync.Mutex
	closed  bool
	tabErrs []error
	tabs    []*Tab
}

// ID returns the launch index of the process
func (p *Process) ID() int {
	return p.id
}

// FailNextTab queues err for the next NewTab call
func (p *Process) FailNextTab(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.tabErrs = append(p.tabErrs, err)
}

// Crash marks the process dead: new tabs fail with a process-lost error and existing tabs stop answering
func (p *Process) Crash() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
}

// Closed reports whether the process was closed or crashed
func (p *Process) Closed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closed
}

// Tabs returns every tab opened from this process
func (p *Process) Tabs() []*Tab {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]*Tab(nil), p.tabs...)
}

// NewTab implements browser.Process
func (p *Process) NewTab(ctx context.Context) (browser.Tab, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if len(p.tabErrs) > 0 {
		err := p.tabErrs[0]
		p.tabErrs = p.tabErrs[1:]
		return nil, err
	}
	if p.closed {
		return nil, browser.ErrProcessClosed
	}

	t := &Tab{proc: p}
	p.tabs = append(p.tabs, t)
	p.launcher.tabsCreated.Add(1)
	return t, nil
}

// Version implements browser.Process
func (p *Process) Version() string {
	return "FakeChrome/1.0"
}

// Close implements browser.Process
func (p *Process) Close() error {
	p.Crash()
	return nil
}

// Tab is a fake page
type Tab struct {
	proc *Process

	mu        sync.Mutex
	current   string
	navigated []string
	pingErr   error

	closes atomic.Int32
}

// FailPing makes future liveness probes return err
func (t *Tab) FailPing(err error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.pingErr = err
}

// CloseCount returns how many times Close was called
func (t *Tab) CloseCount() int {
	return int(t.closes.Load())
}

// Closed reports whether Close was called at least once
func (t *Tab) Closed() bool {
	return t.closes.Load() > 0
}

// Navigated returns the URLs this tab loaded, in order
func (t *Tab) Navigated() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]string(nil), t.navigated...)
}

func (t *Tab) usable() error {
	if t.Closed() {
		return errors.New("target closed")
	}
	if t.proc.Closed() {
		return browser.ErrProcessClosed
	}
	return nil
}

// Navigate implements browser.Tab
func (t *Tab) Navigate(ctx context.Context, url string) error {
	if err := t.usable(); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	page := t.proc.launcher.page(url)
	if page.NavigateErr != nil {
		return page.NavigateErr
	}

	t.mu.Lock()
	t.current = url
	t.navigated = append(t.navigated, url)
	t.mu.Unlock()
	return nil
}

// WaitReady implements browser.Tab. Only "body" is understood.
func (t *Tab) WaitReady(ctx context.Context, selector string) error {
	if err := t.usable(); err != nil {
		return err
	}

	page := t.proc.launcher.page(t.currentURL())
	if selector == "body" && !page.NoBody {
		return nil
	}

	<-ctx.Done()
	return ctx.Err()
}

// Evaluate implements browser.Tab. The script is ignored; the registered page is encoded
// the way the extraction script would encode it.
func (t *Tab) Evaluate(ctx context.Context, script string) (string, error) {
	if err := t.usable(); err != nil {
		return "", err
	}

	page := t.proc.launcher.page(t.currentURL())
	if page.Panic {
		panic("fake evaluate panic")
	}

	if page.Delay > 0 {
		if page.IgnoreCtx {
			time.Sleep(page.Delay)
		} else {
			select {
			case <-time.After(page.Delay):
			case <-ctx.Done():
				return "", ctx.Err()
			}
		}
	}

	if page.EvaluateErr != nil {
		return "", page.EvaluateErr
	}
	if page.RawResult != nil {
		return *page.RawResult, nil
	}

	body := page.BodyHTML
	if page.NoBody || body == "" {
		body = "<body></body>"
	}
	og := page.OGTags
	if og == nil {
		og = map[string]string{}
	}

	data, err := json.Marshal(map[string]interface{}{
		"title":     page.Title,
		"og_tags":   og,
		"body_html": body,
	})
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// Ping implements browser.Tab
func (t *Tab) Ping(ctx context.Context) error {
	if err := t.usable(); err != nil {
		return err
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.pingErr
}

// Close implements browser.Tab
func (t *Tab) Close() error {
	t.closes.Add(1)
	return nil
}

func (t *Tab) currentURL() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.current
}
