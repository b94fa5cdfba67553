// Package pw implements the browser driver on top of Playwright.
package pw

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/playwright-community/playwright-go"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/xkilldash9x/entra-login/internal/browser"
)

const (
	defaultInstallTimeout = 5 * time.Minute
	launchTimeout         = 60 * time.Second
	// waitSlice is the longest a single Playwright wait blocks before ctx is
	// checked again.
	waitSlice = 250 * time.Millisecond
)

// Driver launches Chromium through the Playwright driver process.
type Driver struct {
	logger         *zap.Logger
	install        bool
	installTimeout time.Duration
	actionTimeout  time.Duration

	// Seams for tests.
	installFn func(*playwright.RunOptions) error
	runFn     func(...*playwright.RunOptions) (*playwright.Playwright, error)
}

var _ browser.Driver = (*Driver)(nil)

// Option configures a Driver.
type Option func(*Driver)

// WithInstall makes Launch download Chromium first, bounded by timeout.
func WithInstall(timeout time.Duration) Option {
	return func(d *Driver) {
		d.install = true
		if timeout > 0 {
			d.installTimeout = timeout
		}
	}
}

// WithActionTimeout bounds page actions whose context has no deadline.
func WithActionTimeout(timeout time.Duration) Option {
	return func(d *Driver) { d.actionTimeout = timeout }
}

// NewDriver returns a Playwright driver.
func NewDriver(logger *zap.Logger, opts ...Option) *Driver {
	if logger == nil {
		logger = zap.NewNop()
	}
	d := &Driver{
		logger:         logger.Named("playwright"),
		installTimeout: defaultInstallTimeout,
		actionTimeout:  browser.DefaultTimeout,
		installFn: func(o *playwright.RunOptions) error {
			return playwright.Install(o)
		},
		runFn: playwright.Run,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Launch starts the Playwright driver and a Chromium instance.
func (d *Driver) Launch(ctx context.Context, opts browser.LaunchOptions) (browser.Browser, error) {
	if d.install {
		if err := d.ensureInstallation(ctx); err != nil {
			return nil, err
		}
	}

	pw, err := d.runFn()
	if err != nil {
		return nil, fmt.Errorf("failed to start playwright driver: %w", err)
	}

	b, err := pw.Chromium.Launch(launchOptions(opts))
	if err != nil {
		// Clean up the driver if browser launch fails.
		return nil, multierr.Append(fmt.Errorf("failed to launch browser instance: %w", err), pw.Stop())
	}

	d.logger.Info("Chromium launched.", zap.String("browser_version", b.Version()))
	return &pwBrowser{
		logger:        d.logger,
		actionTimeout: d.actionTimeout,
		pw:            pw,
		browser:       b,
		viewport:      viewport(opts),
	}, nil
}

func (d *Driver) ensureInstallation(ctx context.Context) error {
	d.logger.Info("Verifying Playwright browser installation...")
	installCtx, installCancel := context.WithTimeout(ctx, d.installTimeout)
	defer installCancel()

	// Install blocks and takes no context.
	installErrChan := make(chan error, 1)
	go func() {
		options := &playwright.RunOptions{
			Browsers: []string{"chromium"},
		}
		if err := d.installFn(options); err != nil {
			installErrChan <- fmt.Errorf("failed to install playwright browsers: %w", err)
			return
		}
		installErrChan <- nil
	}()

	select {
	case err := <-installErrChan:
		return err
	case <-installCtx.Done():
		return fmt.Errorf("timeout waiting for Playwright installation: %w", installCtx.Err())
	}
}

func launchOptions(opts browser.LaunchOptions) playwright.BrowserTypeLaunchOptions {
	launch := playwright.BrowserTypeLaunchOptions{
		Headless: playwright.Bool(opts.Headless),
		Timeout:  playwright.Float(float64(launchTimeout.Milliseconds())),
	}

	// Defaults necessary for stability, especially in containers.
	args := []string{
		"--no-sandbox",
		"--disable-dev-shm-usage",
	}
	if opts.DisableGPU {
		args = append(args, "--disable-gpu")
	}
	launch.Args = append(args, opts.Args...)

	if opts.ExecPath != "" {
		launch.ExecutablePath = playwright.String(opts.ExecPath)
	}
	return launch
}

func viewport(opts browser.LaunchOptions) *playwright.Size {
	if opts.WindowWidth <= 0 || opts.WindowHeight <= 0 {
		return nil
	}
	return &playwright.Size{Width: opts.WindowWidth, Height: opts.WindowHeight}
}

type pwBrowser struct {
	logger        *zap.Logger
	actionTimeout time.Duration
	pw            *playwright.Playwright
	browser       playwright.Browser
	viewport      *playwright.Size
}

// NewContext creates an isolated context; Playwright contexts never share
// cookies or storage.
func (b *pwBrowser) NewContext(ctx context.Context, opts browser.ContextOptions) (browser.Context, error) {
	contextOpts := playwright.BrowserNewContextOptions{
		Viewport: b.viewport,
	}
	if opts.Locale != "" {
		contextOpts.Locale = playwright.String(opts.Locale)
	}

	bctx, err := b.browser.NewContext(contextOpts)
	if err != nil {
		return nil, fmt.Errorf("failed to create browser context: %w", err)
	}
	return &pwContext{
		actionTimeout: b.actionTimeout,
		bctx:          bctx,
		media:         opts.Media,
	}, nil
}

// Close shuts the browser down and stops the driver process.
func (b *pwBrowser) Close(ctx context.Context) error {
	err := multierr.Combine(
		b.browser.Close(),
		b.pw.Stop(),
	)
	if err != nil {
		return fmt.Errorf("failed to close playwright browser: %w", err)
	}
	b.logger.Debug("Chromium closed.")
	return nil
}

type pwContext struct {
	actionTimeout time.Duration
	bctx          playwright.BrowserContext
	media         string
}

func (c *pwContext) NewPage(ctx context.Context) (browser.Page, error) {
	page, err := c.bctx.NewPage()
	if err != nil {
		return nil, fmt.Errorf("failed to open page: %w", err)
	}
	if c.media == "screen" {
		if err := page.EmulateMedia(playwright.PageEmulateMediaOptions{Media: playwright.MediaScreen}); err != nil {
			return nil, multierr.Append(fmt.Errorf("failed to emulate media: %w", err), page.Close())
		}
	}
	return &Page{page: page, actionTimeout: c.actionTimeout}, nil
}

func (c *pwContext) Close(ctx context.Context) error {
	if err := c.bctx.Close(); err != nil {
		return fmt.Errorf("failed to close browser context: %w", err)
	}
	return nil
}

// Page drives a Playwright page. Selectors use Playwright's selector engine,
// which accepts plain CSS.
type Page struct {
	page          playwright.Page
	actionTimeout time.Duration
}

var _ browser.Page = (*Page)(nil)

func (p *Page) Navigate(ctx context.Context, url string) error {
	started := time.Now()
	opCtx, cancel := browser.WithDefaultTimeout(ctx, p.actionTimeout)
	defer cancel()

	_, err := p.page.Goto(url, playwright.PageGotoOptions{
		Timeout:   remaining(opCtx),
		WaitUntil: playwright.WaitUntilStateLoad,
	})
	if err != nil {
		return fmt.Errorf("navigate to %s: %w", url, p.mapErr(opCtx, err, url, browser.StateAttached, started))
	}
	return nil
}

func (p *Page) Fill(ctx context.Context, selector, value string) error {
	started := time.Now()
	opCtx, cancel := browser.WithDefaultTimeout(ctx, p.actionTimeout)
	defer cancel()

	err := p.page.Locator(selector).Fill(value, playwright.LocatorFillOptions{Timeout: remaining(opCtx)})
	return p.mapErr(opCtx, err, selector, browser.StateVisible, started)
}

func (p *Page) Click(ctx context.Context, selector string) error {
	started := time.Now()
	opCtx, cancel := browser.WithDefaultTimeout(ctx, p.actionTimeout)
	defer cancel()

	err := p.page.Locator(selector).Click(playwright.LocatorClickOptions{Timeout: remaining(opCtx)})
	return p.mapErr(opCtx, err, selector, browser.StateVisible, started)
}

// WaitFor polls Locator.WaitFor in short slices so a cancelled ctx (a lost
// race, an interrupt) releases the wait promptly.
func (p *Page) WaitFor(ctx context.Context, selector string, state browser.State) error {
	started := time.Now()
	opCtx, cancel := browser.WithDefaultTimeout(ctx, p.actionTimeout)
	defer cancel()

	pwState, err := waitState(state)
	if err != nil {
		return err
	}
	locator := p.page.Locator(selector).First()

	for {
		if err := opCtx.Err(); err != nil {
			return browser.AsTimeout(opCtx, err, selector, state, started)
		}
		slice := waitSlice
		if left := time.Duration(*remaining(opCtx)) * time.Millisecond; left < slice {
			slice = left
		}
		err := locator.WaitFor(playwright.LocatorWaitForOptions{
			State:   pwState,
			Timeout: playwright.Float(float64(slice.Milliseconds())),
		})
		if err == nil {
			return nil
		}
		if !errors.Is(err, playwright.ErrTimeout) {
			return p.mapErr(opCtx, err, selector, state, started)
		}
	}
}

func (p *Page) mapErr(ctx context.Context, err error, selector string, state browser.State, started time.Time) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, playwright.ErrTimeout) {
		return &browser.TimeoutError{Selector: selector, State: state, After: time.Since(started), Err: err}
	}
	return browser.AsTimeout(ctx, err, selector, state, started)
}

func waitState(state browser.State) (*playwright.WaitForSelectorState, error) {
	switch state {
	case browser.StateAttached:
		return playwright.WaitForSelectorStateAttached, nil
	case browser.StateDetached:
		return playwright.WaitForSelectorStateDetached, nil
	case browser.StateVisible:
		return playwright.WaitForSelectorStateVisible, nil
	case browser.StateHidden:
		return playwright.WaitForSelectorStateHidden, nil
	default:
		return nil, fmt.Errorf("pw: unsupported wait state %s", state)
	}
}

// remaining converts the time left on ctx into a Playwright timeout in
// milliseconds. Playwright treats 0 as "no timeout", so at least 1 ms is
// returned.
func remaining(ctx context.Context) *float64 {
	deadline, ok := ctx.Deadline()
	if !ok {
		return playwright.Float(float64(browser.DefaultTimeout.Milliseconds()))
	}
	ms := time.Until(deadline).Milliseconds()
	if ms < 1 {
		ms = 1
	}
	return playwright.Float(float64(ms))
}
