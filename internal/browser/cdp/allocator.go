// internal/browser/cdp/allocator.go
package cdp

import (
	"strings"
	"time"

	"github.com/chromedp/chromedp"

	"github.com/xkilldash9x/entra-login/internal/browser"
)

// launchTimeout bounds how long Chrome may take to print its DevTools URL.
const launchTimeout = 60 * time.Second

// AllocatorOptions translates launch options into chromedp allocator options.
func AllocatorOptions(opts browser.LaunchOptions) []chromedp.ExecAllocatorOption {
	// Start with chromedp defaults; they include headless, which is overridden below.
	allocOpts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.WSURLReadTimeout(launchTimeout),
	)

	for name, value := range allocatorFlags(opts) {
		allocOpts = append(allocOpts, chromedp.Flag(name, value))
	}

	if opts.ExecPath != "" {
		allocOpts = append(allocOpts, chromedp.ExecPath(opts.ExecPath))
	}
	if opts.WindowWidth > 0 && opts.WindowHeight > 0 {
		allocOpts = append(allocOpts, chromedp.WindowSize(opts.WindowWidth, opts.WindowHeight))
	}
	return allocOpts
}

// allocatorFlags returns the command line flags layered on top of the
// chromedp defaults. A false value removes a default flag.
func allocatorFlags(opts browser.LaunchOptions) map[string]interface{} {
	flags := map[string]interface{}{
		// Required on hardened hosts and in containers.
		"no-sandbox":            true,
		"disable-dev-shm-usage": true,
		"headless":              opts.Headless,
		"hide-scrollbars":       opts.Headless,
		"mute-audio":            opts.Headless,
	}
	if opts.DisableGPU {
		flags["disable-gpu"] = true
	}

	// Extra flags from the config file's 'args' slice.
	for _, arg := range opts.Args {
		arg = strings.TrimLeft(strings.TrimSpace(arg), "-")
		if arg == "" {
			continue
		}
		if key, value, found := strings.Cut(arg, "="); found {
			flags[key] = value
			continue
		}
		flags[arg] = true
	}
	return flags
}
