package browsertest

import (
	"context"
	"sync"

	"github.com/xkilldash9x/entra-login/internal/browser"
)

// Driver hands out a single prepared Page and records the lifecycle calls
// made against it.
type Driver struct {
	Page *Page

	LaunchErr       error
	NewContextErr   error
	NewPageErr      error
	CloseContextErr error
	CloseBrowserErr error

	mu     sync.Mutex
	events []string
	launch browser.LaunchOptions
	ctxOpt browser.ContextOptions
}

var _ browser.Driver = (*Driver)(nil)

// NewDriver returns a driver that serves page.
func NewDriver(page *Page) *Driver {
	return &Driver{Page: page}
}

// Events lists lifecycle calls in order: launch, new-context, new-page,
// close-context, close-browser.
func (d *Driver) Events() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]string(nil), d.events...)
}

// LaunchOptions returns the options passed to the last Launch.
func (d *Driver) LaunchOptions() browser.LaunchOptions {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.launch
}

// ContextOptions returns the options passed to the last NewContext.
func (d *Driver) ContextOptions() browser.ContextOptions {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.ctxOpt
}

func (d *Driver) record(event string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.events = append(d.events, event)
}

func (d *Driver) Launch(ctx context.Context, opts browser.LaunchOptions) (browser.Browser, error) {
	if d.LaunchErr != nil {
		return nil, d.LaunchErr
	}
	d.mu.Lock()
	d.launch = opts
	d.mu.Unlock()
	d.record("launch")
	return &fakeBrowser{d: d}, nil
}

type fakeBrowser struct{ d *Driver }

func (b *fakeBrowser) NewContext(ctx context.Context, opts browser.ContextOptions) (browser.Context, error) {
	if b.d.NewContextErr != nil {
		return nil, b.d.NewContextErr
	}
	b.d.mu.Lock()
	b.d.ctxOpt = opts
	b.d.mu.Unlock()
	b.d.record("new-context")
	return &fakeContext{d: b.d}, nil
}

func (b *fakeBrowser) Close(ctx context.Context) error {
	b.d.record("close-browser")
	return b.d.CloseBrowserErr
}

type fakeContext struct{ d *Driver }

func (c *fakeContext) NewPage(ctx context.Context) (browser.Page, error) {
	if c.d.NewPageErr != nil {
		return nil, c.d.NewPageErr
	}
	c.d.record("new-page")
	if c.d.Page == nil {
		c.d.Page = NewPage()
	}
	return c.d.Page, nil
}

func (c *fakeContext) Close(ctx context.Context) error {
	c.d.record("close-context")
	return c.d.CloseContextErr
}
