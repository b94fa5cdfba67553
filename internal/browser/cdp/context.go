// internal/browser/cdp/context.go
package cdp

import (
	"context"
	"time"

	"github.com/chromedp/chromedp"
)

// combineContext derives a context from cdpCtx, which carries the chromedp
// target, that is also cancelled when opCtx is done. Cancelling the result
// aborts the running action without closing the tab.
func combineContext(cdpCtx, opCtx context.Context) (context.Context, context.CancelFunc) {
	combined, cancel := context.WithCancel(cdpCtx)
	stop := context.AfterFunc(opCtx, cancel)
	return combined, func() {
		stop()
		cancel()
	}
}

// runBounded runs actions on cdpCtx but returns as soon as ctx is done. The
// first Run on a chromedp context must use that context itself, so it cannot
// be derived. On early return the caller must cancel cdpCtx to release the
// pending Run.
func runBounded(ctx, cdpCtx context.Context, actions ...chromedp.Action) error {
	done := make(chan error, 1)
	go func() {
		done <- chromedp.Run(cdpCtx, actions...)
	}()

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// shutdown calls chromedp.Cancel, which blocks until the target or browser
// has gone away, and gives up after grace or when ctx is done.
func shutdown(ctx, cdpCtx context.Context, grace time.Duration) error {
	shutdownCtx, cancel := context.WithTimeout(ctx, grace)
	defer cancel()

	done := make(chan error, 1)
	go func() {
		done <- chromedp.Cancel(cdpCtx)
	}()

	select {
	case err := <-done:
		// Cancel reports context.Canceled when the target was already gone.
		if err == context.Canceled {
			return nil
		}
		return err
	case <-shutdownCtx.Done():
		return shutdownCtx.Err()
	}
}
