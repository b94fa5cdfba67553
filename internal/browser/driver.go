// internal/browser/driver.go
package browser

import (
	"context"
	"fmt"

	"github.com/xkilldash9x/entra-login/internal/config"
)

// State is the presence state an element is awaited in.
type State int

const (
	// StateAttached waits for the element to be present in the DOM.
	StateAttached State = iota
	// StateDetached waits for the element to be removed from the DOM.
	StateDetached
	// StateVisible waits for the element to be present and visible.
	StateVisible
	// StateHidden waits for the element to be absent or not visible.
	StateHidden
)

func (s State) String() string {
	switch s {
	case StateAttached:
		return "attached"
	case StateDetached:
		return "detached"
	case StateVisible:
		return "visible"
	case StateHidden:
		return "hidden"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Driver launches browser instances. Implementations live in the cdp and pw
// sub-packages.
type Driver interface {
	Launch(ctx context.Context, opts LaunchOptions) (Browser, error)
}

// Browser is a running browser process.
type Browser interface {
	// NewContext creates an isolated browsing context with no cookies or storage.
	NewContext(ctx context.Context, opts ContextOptions) (Context, error)
	// Close terminates the browser and releases the driver resources behind it.
	Close(ctx context.Context) error
}

// Context is an isolated browsing context (an incognito-like profile).
type Context interface {
	NewPage(ctx context.Context) (Page, error)
	// Close disposes the context and every page in it.
	Close(ctx context.Context) error
}

// Page is a single tab. Every method blocks until the action completes, the
// element reaches the requested state, or ctx is done.
type Page interface {
	Navigate(ctx context.Context, url string) error
	Fill(ctx context.Context, selector, value string) error
	Click(ctx context.Context, selector string) error
	WaitFor(ctx context.Context, selector string, state State) error
}

// LaunchOptions configures the browser process.
type LaunchOptions struct {
	Headless     bool
	DisableGPU   bool
	ExecPath     string
	Args         []string
	WindowWidth  int
	WindowHeight int
}

// ContextOptions configures a browsing context.
type ContextOptions struct {
	Locale string
	// Media is the CSS media type to emulate, e.g. "screen".
	Media string
}

// LaunchOptionsFromConfig maps the browser configuration onto launch options.
func LaunchOptionsFromConfig(cfg config.BrowserConfig) LaunchOptions {
	return LaunchOptions{
		Headless:     cfg.Headless,
		DisableGPU:   cfg.DisableGPU,
		ExecPath:     cfg.ExecPath,
		Args:         cfg.Args,
		WindowWidth:  cfg.Viewport["width"],
		WindowHeight: cfg.Viewport["height"],
	}
}

// ContextOptionsFromConfig maps the browser configuration onto context options.
func ContextOptionsFromConfig(cfg config.BrowserConfig) ContextOptions {
	return ContextOptions{
		Locale: cfg.Locale,
		Media:  "screen",
	}
}
