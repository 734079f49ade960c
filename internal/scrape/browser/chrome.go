package browser

import (
	"context"
	"fmt"
	"sync"

	cdpbrowser "github.com/chromedp/cdproto/browser"
	"github.com/chromedp/cdproto/target"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"
)

// ChromeOptions controls how Chrome processes are started
type ChromeOptions struct {
	ExecPath  string // empty uses chromedp's lookup
	Headless  bool
	NoSandbox bool
	UserAgent string

	Blocklist *Blocklist // requests it matches are aborted in every tab
	OnBlocked func()
}

// ChromeLauncher launches headless Chrome through chromedp
type ChromeLauncher struct {
	opts   ChromeOptions
	logger *zap.Logger
}

// NewChromeLauncher creates a launcher with the given options
func NewChromeLauncher(opts ChromeOptions, logger *zap.Logger) *ChromeLauncher {
	return &ChromeLauncher{opts: opts, logger: logger}
}

// Launch starts a new Chrome process. ctx bounds the startup only.
func (l *ChromeLauncher) Launch(ctx context.Context) (Process, error) {
	opts := []chromedp.ExecAllocatorOption{
		chromedp.Flag("headless", l.opts.Headless),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.Flag("no-first-run", true),
		chromedp.Flag("disable-extensions", true),
		chromedp.Flag("disable-background-networking", true),
		chromedp.Flag("mute-audio", true),
		chromedp.Flag("disable-sync", true),
		chromedp.Flag("disable-translate", true),
	}
	if l.opts.NoSandbox {
		opts = append(opts,
			chromedp.Flag("no-sandbox", true),
			chromedp.Flag("disable-setuid-sandbox", true))
	}
	if l.opts.ExecPath != "" {
		opts = append(opts, chromedp.ExecPath(l.opts.ExecPath))
	}
	if l.opts.UserAgent != "" {
		opts = append(opts, chromedp.UserAgent(l.opts.UserAgent))
	}

	allocatorOpts := append(chromedp.DefaultExecAllocatorOptions[:], opts...)
	allocCtx, allocCancel := chromedp.NewExecAllocator(context.Background(), allocatorOpts...)
	browserCtx, browserCancel := chromedp.NewContext(allocCtx)

	// The browser must outlive ctx, so only tie them together until startup finishes
	stop := context.AfterFunc(ctx, browserCancel)
	err := chromedp.Run(browserCtx)
	if !stop() && err == nil {
		err = ctx.Err()
	}
	if err != nil {
		browserCancel()
		allocCancel()
		return nil, fmt.Errorf("failed to start Chrome: %w", err)
	}

	proc := &chromeProcess{
		ctx:         browserCtx,
		cancel:      browserCancel,
		allocCancel: allocCancel,
		opts:        l.opts,
		logger:      l.logger,
	}

	if err := chromedp.Run(browserCtx, chromedp.ActionFunc(func(ctx context.Context) error {
		_, product, _, _, _, err := cdpbrowser.GetVersion().Do(ctx)
		if err != nil {
			return err
		}
		proc.version = product
		return nil
	})); err != nil {
		l.logger.Warn("Failed to capture browser version", zap.Error(err))
	}

	l.logger.Info("Chrome process started",
		zap.String("version", proc.version),
		zap.Bool("headless", l.opts.Headless),
		zap.Stringer("blocklist", l.opts.Blocklist))

	return proc, nil
}

type chromeProcess struct {
	ctx         context.Context
	cancel      context.CancelFunc
	allocCancel context.CancelFunc
	version     string
	opts        ChromeOptions
	logger      *zap.Logger
	closeOnce   sync.Once
}

func (p *chromeProcess) NewTab(ctx context.Context) (Tab, error) {
	if p.ctx.Err() != nil {
		return nil, ErrProcessClosed
	}

	tabCtx, tabCancel := chromedp.NewContext(p.ctx)

	var setup []chromedp.Action
	if !p.opts.Blocklist.Empty() {
		setup = append(setup, p.opts.Blocklist.intercept(tabCtx, p.opts.OnBlocked, p.logger))
	}

	if err := run(ctx, tabCtx, setup...); err != nil {
		tabCancel()
		if p.ctx.Err() != nil {
			return nil, fmt.Errorf("%w: %v", ErrProcessClosed, err)
		}
		return nil, err
	}

	return &chromeTab{ctx: tabCtx, cancel: tabCancel}, nil
}

func (p *chromeProcess) Version() string {
	return p.version
}

func (p *chromeProcess) Close() error {
	p.closeOnce.Do(func() {
		p.cancel()
		p.allocCancel()
	})
	return nil
}

type chromeTab struct {
	ctx       context.Context
	cancel    context.CancelFunc
	closeOnce sync.Once
}

func (t *chromeTab) Navigate(ctx context.Context, url string) error {
	return run(ctx, t.ctx, chromedp.Navigate(url))
}

func (t *chromeTab) WaitReady(ctx context.Context, selector string) error {
	return run(ctx, t.ctx, chromedp.WaitReady(selector, chromedp.ByQuery))
}

func (t *chromeTab) Evaluate(ctx context.Context, script string) (string, error) {
	var out string
	if err := run(ctx, t.ctx, chromedp.Evaluate(script, &out)); err != nil {
		return "", err
	}
	return out, nil
}

func (t *chromeTab) Ping(ctx context.Context) error {
	return run(ctx, t.ctx, chromedp.ActionFunc(func(ctx context.Context) error {
		_, err := target.GetTargetInfo().Do(ctx)
		return err
	}))
}

// Close cancels the tab context, which makes chromedp close the target
func (t *chromeTab) Close() error {
	t.closeOnce.Do(t.cancel)
	return nil
}

// run executes actions on tabCtx while honouring cancellation of ctx.
// Cancelling ctx aborts the actions without closing the tab.
func run(ctx, tabCtx context.Context, actions ...chromedp.Action) error {
	runCtx, cancel := context.WithCancel(tabCtx)
	defer cancel()

	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	err := chromedp.Run(runCtx, actions...)
	if err != nil && ctx.Err() != nil {
		return fmt.Errorf("%w: %v", ctx.Err(), err)
	}
	return err
}
