// Package gorod implements the browser driver on top of go-rod.
package gorod

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/launcher/flags"
	"github.com/go-rod/rod/lib/proto"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/xkilldash9x/entra-login/internal/browser"
)

const (
	// pollInterval paces the waits rod has no native form for.
	pollInterval = 100 * time.Millisecond
	// cleanupGrace bounds how long Close waits for the browser process to exit.
	cleanupGrace = 5 * time.Second
)

// Driver launches a local Chromium through the rod launcher.
type Driver struct {
	logger        *zap.Logger
	actionTimeout time.Duration
}

var _ browser.Driver = (*Driver)(nil)

// Option configures a Driver.
type Option func(*Driver)

// WithActionTimeout bounds page actions whose context has no deadline.
func WithActionTimeout(timeout time.Duration) Option {
	return func(d *Driver) { d.actionTimeout = timeout }
}

// NewDriver returns a rod driver.
func NewDriver(logger *zap.Logger, opts ...Option) *Driver {
	if logger == nil {
		logger = zap.NewNop()
	}
	d := &Driver{
		logger:        logger.Named("rod"),
		actionTimeout: browser.DefaultTimeout,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Launch starts Chromium and connects to its DevTools endpoint. The browser
// outlives ctx; only Close ends it.
func (d *Driver) Launch(ctx context.Context, opts browser.LaunchOptions) (browser.Browser, error) {
	l := newLauncher(opts).Context(ctx)
	controlURL, err := l.Launch()
	if err != nil {
		return nil, fmt.Errorf("failed to launch browser instance: %w", err)
	}

	b := rod.New().ControlURL(controlURL).Context(context.WithoutCancel(ctx))
	if err := b.Connect(); err != nil {
		l.Kill()
		return nil, fmt.Errorf("failed to connect to browser: %w", err)
	}

	d.logger.Info("Chromium launched.", zap.String("control_url", controlURL))
	return &rodBrowser{
		logger:        d.logger,
		actionTimeout: d.actionTimeout,
		launcher:      l,
		browser:       b,
	}, nil
}

func newLauncher(opts browser.LaunchOptions) *launcher.Launcher {
	l := launcher.New().Headless(opts.Headless)
	if opts.ExecPath != "" {
		l = l.Bin(opts.ExecPath)
	}
	for name, values := range launcherFlags(opts) {
		l = l.Set(name, values...)
	}
	return l
}

// launcherFlags returns the Chromium switches beyond rod's defaults. Extra
// args may be given as --flag or --key=value.
func launcherFlags(opts browser.LaunchOptions) map[flags.Flag][]string {
	out := make(map[flags.Flag][]string)
	out[flags.NoSandbox] = nil
	out["disable-dev-shm-usage"] = nil
	if opts.DisableGPU {
		out["disable-gpu"] = nil
	}
	if opts.WindowWidth > 0 && opts.WindowHeight > 0 {
		out["window-size"] = []string{fmt.Sprintf("%d,%d", opts.WindowWidth, opts.WindowHeight)}
	}
	for _, arg := range opts.Args {
		arg = strings.TrimLeft(arg, "-")
		if arg == "" {
			continue
		}
		name, value, hasValue := strings.Cut(arg, "=")
		if hasValue {
			out[flags.Flag(name)] = []string{value}
		} else {
			out[flags.Flag(name)] = nil
		}
	}
	return out
}

type rodBrowser struct {
	logger        *zap.Logger
	actionTimeout time.Duration
	launcher      *launcher.Launcher
	browser       *rod.Browser
}

// NewContext opens an incognito browser context so no cookies or storage
// carry over from the default profile.
func (b *rodBrowser) NewContext(ctx context.Context, opts browser.ContextOptions) (browser.Context, error) {
	incognito, err := b.browser.Context(ctx).Incognito()
	if err != nil {
		return nil, fmt.Errorf("failed to create browser context: %w", err)
	}
	return &rodContext{
		actionTimeout: b.actionTimeout,
		bctx:          incognito.Context(context.WithoutCancel(ctx)),
		opts:          opts,
	}, nil
}

// Close shuts the browser down and removes its temporary profile.
func (b *rodBrowser) Close(ctx context.Context) error {
	err := b.browser.Close()
	b.launcher.Kill()

	done := make(chan struct{})
	go func() {
		b.launcher.Cleanup()
		close(done)
	}()

	grace, cancel := context.WithTimeout(ctx, cleanupGrace)
	defer cancel()
	select {
	case <-done:
	case <-grace.Done():
		err = multierr.Append(err, fmt.Errorf("timed out removing browser profile: %w", grace.Err()))
	}

	if err != nil {
		return fmt.Errorf("failed to close rod browser: %w", err)
	}
	b.logger.Debug("Chromium closed.")
	return nil
}

type rodContext struct {
	actionTimeout time.Duration
	bctx          *rod.Browser
	opts          browser.ContextOptions
}

func (c *rodContext) NewPage(ctx context.Context) (browser.Page, error) {
	page, err := c.bctx.Page(proto.TargetCreateTarget{URL: "about:blank"})
	if err != nil {
		return nil, fmt.Errorf("failed to open page: %w", err)
	}

	if c.opts.Locale != "" {
		if err := (proto.EmulationSetLocaleOverride{Locale: c.opts.Locale}).Call(page); err != nil {
			return nil, multierr.Append(fmt.Errorf("failed to set locale: %w", err), page.Close())
		}
	}
	if c.opts.Media != "" {
		if err := (proto.EmulationSetEmulatedMedia{Media: c.opts.Media}).Call(page); err != nil {
			return nil, multierr.Append(fmt.Errorf("failed to emulate media: %w", err), page.Close())
		}
	}
	return &Page{page: page, actionTimeout: c.actionTimeout}, nil
}

// Close disposes of the incognito context and every page in it.
func (c *rodContext) Close(ctx context.Context) error {
	if err := c.bctx.Close(); err != nil {
		return fmt.Errorf("failed to close browser context: %w", err)
	}
	return nil
}

// Page drives a rod page with CSS selectors.
type Page struct {
	page          *rod.Page
	actionTimeout time.Duration
}

var _ browser.Page = (*Page)(nil)

func (p *Page) Navigate(ctx context.Context, url string) error {
	return p.do(ctx, url, browser.StateAttached, func(page *rod.Page) error {
		if err := page.Navigate(url); err != nil {
			return fmt.Errorf("navigate to %s: %w", url, err)
		}
		return page.WaitLoad()
	})
}

// Fill replaces the element's value with value, waiting for it to become
// visible first.
func (p *Page) Fill(ctx context.Context, selector, value string) error {
	return p.do(ctx, selector, browser.StateVisible, func(page *rod.Page) error {
		el, err := page.Element(selector)
		if err != nil {
			return err
		}
		if err := el.WaitVisible(); err != nil {
			return err
		}
		if err := el.SelectAllText(); err != nil {
			return err
		}
		return el.Input(value)
	})
}

func (p *Page) Click(ctx context.Context, selector string) error {
	return p.do(ctx, selector, browser.StateVisible, func(page *rod.Page) error {
		el, err := page.Element(selector)
		if err != nil {
			return err
		}
		return el.Click(proto.InputMouseButtonLeft, 1)
	})
}

func (p *Page) WaitFor(ctx context.Context, selector string, state browser.State) error {
	return p.do(ctx, selector, state, func(page *rod.Page) error {
		switch state {
		case browser.StateAttached:
			_, err := page.Element(selector)
			return err
		case browser.StateVisible:
			el, err := page.Element(selector)
			if err != nil {
				return err
			}
			return el.WaitVisible()
		case browser.StateDetached, browser.StateHidden:
			return poll(page.GetContext(), func() (bool, error) {
				return gone(page, selector, state == browser.StateHidden)
			})
		default:
			return fmt.Errorf("gorod: unsupported wait state %s", state)
		}
	})
}

// do runs fn on a copy of the page bound to the action's deadline.
func (p *Page) do(ctx context.Context, selector string, state browser.State, fn func(*rod.Page) error) error {
	started := time.Now()
	opCtx, cancel := browser.WithDefaultTimeout(ctx, p.actionTimeout)
	defer cancel()

	err := fn(p.page.Context(opCtx))
	if err != nil && opCtx.Err() != nil {
		// rod reports whatever its sleeper saw; surface the caller's reason.
		err = opCtx.Err()
	}
	return browser.AsTimeout(opCtx, err, selector, state, started)
}

// gone reports whether selector matches nothing or, if hiddenOK, matches an
// element that is not visible.
func gone(page *rod.Page, selector string, hiddenOK bool) (bool, error) {
	has, el, err := page.Has(selector)
	if err != nil {
		return false, err
	}
	if !has {
		return true, nil
	}
	if !hiddenOK {
		return false, nil
	}
	visible, err := el.Visible()
	if err != nil {
		return false, err
	}
	return !visible, nil
}

// poll calls cond every pollInterval until it reports true, fails, or ctx ends.
func poll(ctx context.Context, cond func() (bool, error)) error {
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()
	for {
		ok, err := cond()
		if err != nil || ok {
			return err
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}
