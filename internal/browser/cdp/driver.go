// Package cdp implements the browser driver on top of chromedp, speaking the
// Chrome DevTools Protocol to a locally launched Chrome or Chromium.
package cdp

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/chromedp/cdproto/emulation"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"

	"github.com/xkilldash9x/entra-login/internal/browser"
)

const shutdownGracePeriod = 10 * time.Second

var errPageOpen = errors.New("cdp: context already has a page")

// Driver launches Chrome through a chromedp exec allocator.
type Driver struct {
	logger        *zap.Logger
	actionTimeout time.Duration
}

var _ browser.Driver = (*Driver)(nil)

// Option configures a Driver.
type Option func(*Driver)

// WithActionTimeout bounds page actions whose context has no deadline.
func WithActionTimeout(d time.Duration) Option {
	return func(drv *Driver) { drv.actionTimeout = d }
}

// NewDriver returns a chromedp driver.
func NewDriver(logger *zap.Logger, opts ...Option) *Driver {
	if logger == nil {
		logger = zap.NewNop()
	}
	d := &Driver{
		logger:        logger.Named("cdp"),
		actionTimeout: browser.DefaultTimeout,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Launch starts Chrome and connects to it. The browser outlives ctx and is
// only torn down by Close.
func (d *Driver) Launch(ctx context.Context, opts browser.LaunchOptions) (browser.Browser, error) {
	root := context.WithoutCancel(ctx)
	allocCtx, allocCancel := chromedp.NewExecAllocator(root, AllocatorOptions(opts)...)
	browserCtx, browserCancel := chromedp.NewContext(allocCtx,
		chromedp.WithLogf(d.logger.Sugar().Debugf),
		chromedp.WithErrorf(d.logger.Sugar().Errorf),
	)

	// The first Run allocates the browser process.
	if err := runBounded(ctx, browserCtx); err != nil {
		browserCancel()
		allocCancel()
		return nil, fmt.Errorf("failed to start chrome: %w", err)
	}

	d.logger.Debug("Chrome started.", zap.Bool("headless", opts.Headless), zap.String("exec_path", opts.ExecPath))
	return &cdpBrowser{
		logger:        d.logger,
		actionTimeout: d.actionTimeout,
		browserCtx:    browserCtx,
		browserCancel: browserCancel,
		allocCancel:   allocCancel,
	}, nil
}

type cdpBrowser struct {
	logger        *zap.Logger
	actionTimeout time.Duration
	browserCtx    context.Context
	browserCancel context.CancelFunc
	allocCancel   context.CancelFunc
}

// NewContext opens a tab in a fresh browser context, so it shares no cookies
// or storage with any other tab.
func (b *cdpBrowser) NewContext(ctx context.Context, opts browser.ContextOptions) (browser.Context, error) {
	tabCtx, tabCancel := chromedp.NewContext(b.browserCtx, chromedp.WithNewBrowserContext())

	var setup chromedp.Tasks
	if opts.Locale != "" {
		setup = append(setup, emulation.SetLocaleOverride().WithLocale(opts.Locale))
	}
	if opts.Media != "" {
		setup = append(setup, emulation.SetEmulatedMedia().WithMedia(opts.Media))
	}

	if err := runBounded(ctx, tabCtx, setup...); err != nil {
		tabCancel()
		return nil, fmt.Errorf("failed to create browser context: %w", err)
	}
	return &cdpContext{
		logger:        b.logger,
		actionTimeout: b.actionTimeout,
		tabCtx:        tabCtx,
		tabCancel:     tabCancel,
	}, nil
}

func (b *cdpBrowser) Close(ctx context.Context) error {
	err := shutdown(ctx, b.browserCtx, shutdownGracePeriod)
	b.browserCancel()
	b.allocCancel()
	if err != nil {
		return fmt.Errorf("failed to close chrome: %w", err)
	}
	b.logger.Debug("Chrome closed.")
	return nil
}

type cdpContext struct {
	logger        *zap.Logger
	actionTimeout time.Duration
	tabCtx        context.Context
	tabCancel     context.CancelFunc

	mu     sync.Mutex
	opened bool
}

// NewPage returns the context's tab. A context hosts a single page.
func (c *cdpContext) NewPage(ctx context.Context) (browser.Page, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.opened {
		return nil, errPageOpen
	}
	c.opened = true
	return &Page{tabCtx: c.tabCtx, actionTimeout: c.actionTimeout}, nil
}

// Close closes the tab, which also disposes its browser context.
func (c *cdpContext) Close(ctx context.Context) error {
	err := shutdown(ctx, c.tabCtx, shutdownGracePeriod)
	c.tabCancel()
	if err != nil {
		return fmt.Errorf("failed to close browser context: %w", err)
	}
	return nil
}

// Page drives a single chromedp tab. Selectors are CSS queries.
type Page struct {
	tabCtx        context.Context
	actionTimeout time.Duration
}

var _ browser.Page = (*Page)(nil)

func (p *Page) Navigate(ctx context.Context, url string) error {
	if err := p.run(ctx, url, browser.StateAttached, chromedp.Navigate(url)); err != nil {
		return fmt.Errorf("navigate to %s: %w", url, err)
	}
	return nil
}

// Fill waits for the field to be visible, clears it and types value.
func (p *Page) Fill(ctx context.Context, selector, value string) error {
	return p.run(ctx, selector, browser.StateVisible,
		chromedp.WaitVisible(selector, chromedp.ByQuery),
		chromedp.Focus(selector, chromedp.ByQuery),
		chromedp.Clear(selector, chromedp.ByQuery),
		chromedp.SendKeys(selector, value, chromedp.ByQuery),
	)
}

func (p *Page) Click(ctx context.Context, selector string) error {
	return p.run(ctx, selector, browser.StateVisible,
		chromedp.Click(selector, chromedp.ByQuery, chromedp.NodeVisible),
	)
}

func (p *Page) WaitFor(ctx context.Context, selector string, state browser.State) error {
	var action chromedp.Action
	switch state {
	case browser.StateAttached:
		action = chromedp.WaitReady(selector, chromedp.ByQuery)
	case browser.StateDetached:
		action = chromedp.WaitNotPresent(selector, chromedp.ByQuery)
	case browser.StateVisible:
		action = chromedp.WaitVisible(selector, chromedp.ByQuery)
	case browser.StateHidden:
		action = chromedp.WaitNotVisible(selector, chromedp.ByQuery)
	default:
		return fmt.Errorf("cdp: unsupported wait state %s", state)
	}
	return p.run(ctx, selector, state, action)
}

// run executes actions on the tab, bounded by ctx (or the default action
// timeout when ctx has no deadline), and reports expiry as a TimeoutError.
func (p *Page) run(ctx context.Context, selector string, state browser.State, actions ...chromedp.Action) error {
	started := time.Now()
	opCtx, cancel := browser.WithDefaultTimeout(ctx, p.actionTimeout)
	defer cancel()

	runCtx, runCancel := combineContext(p.tabCtx, opCtx)
	defer runCancel()

	err := chromedp.Run(runCtx, actions...)
	if err != nil && opCtx.Err() != nil {
		// chromedp reports the derived context's cancellation; surface the
		// caller's reason instead.
		err = opCtx.Err()
	}
	return browser.AsTimeout(opCtx, err, selector, state, started)
}
