// internal/browser/session.go
package browser

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/multierr"
	"go.uber.org/zap"
)

// closeGracePeriod bounds teardown once the caller's context is gone.
const closeGracePeriod = 15 * time.Second

// Session owns the browser, its isolated context and the single page used
// for a login. Close releases them in reverse order of acquisition.
type Session struct {
	id      string
	logger  *zap.Logger
	browser Browser
	bctx    Context
	page    Page

	closeOnce sync.Once
	closeErr  error
}

// Open launches a browser, creates a fresh context in it and opens a page.
// Anything acquired before a failing step is released before Open returns.
func Open(ctx context.Context, driver Driver, launch LaunchOptions, opts ContextOptions, logger *zap.Logger) (*Session, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	id := uuid.NewString()
	log := logger.Named("session").With(zap.String("session_id", id))

	log.Debug("Launching browser.", zap.Bool("headless", launch.Headless))
	b, err := driver.Launch(ctx, launch)
	if err != nil {
		return nil, fmt.Errorf("failed to launch browser: %w", err)
	}

	bctx, err := b.NewContext(ctx, opts)
	if err != nil {
		err = fmt.Errorf("failed to create browser context: %w", err)
		return nil, multierr.Append(err, closeDetached(ctx, b.Close))
	}

	page, err := bctx.NewPage(ctx)
	if err != nil {
		err = fmt.Errorf("failed to open page: %w", err)
		err = multierr.Append(err, closeDetached(ctx, bctx.Close))
		return nil, multierr.Append(err, closeDetached(ctx, b.Close))
	}

	log.Info("Browser session opened.", zap.String("locale", opts.Locale))
	return &Session{
		id:      id,
		logger:  log,
		browser: b,
		bctx:    bctx,
		page:    page,
	}, nil
}

// ID is a random identifier used to correlate log lines.
func (s *Session) ID() string { return s.id }

// Page returns the session's page.
func (s *Session) Page() Page { return s.page }

// Close disposes the context and then the browser. It is safe to call more
// than once; later calls return the first result.
func (s *Session) Close(ctx context.Context) error {
	s.closeOnce.Do(func() {
		s.logger.Debug("Closing browser session.")
		s.closeErr = multierr.Combine(
			closeDetached(ctx, s.bctx.Close),
			closeDetached(ctx, s.browser.Close),
		)
		if s.closeErr != nil {
			s.logger.Warn("Browser session closed with errors.", zap.Error(s.closeErr))
			return
		}
		s.logger.Info("Browser session closed.")
	})
	return s.closeErr
}

// closeDetached runs fn with a context that survives cancellation of ctx, so
// teardown still happens after an interrupt.
func closeDetached(ctx context.Context, fn func(context.Context) error) error {
	cctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), closeGracePeriod)
	defer cancel()
	return fn(cctx)
}
