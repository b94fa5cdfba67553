// internal/browser/errors.go
package browser

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ErrTimeout is matched by every error caused by an element that never
// reached the awaited state in time.
var ErrTimeout = errors.New("browser: timed out waiting for element")

// TimeoutError reports which wait expired.
type TimeoutError struct {
	Selector string
	State    State
	After    time.Duration
	Err      error
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("timed out after %v waiting for %q to be %s", e.After.Round(time.Millisecond), e.Selector, e.State)
}

// Is makes errors.Is(err, ErrTimeout) true for any TimeoutError.
func (e *TimeoutError) Is(target error) bool { return target == ErrTimeout }

func (e *TimeoutError) Unwrap() error { return e.Err }

// AsTimeout converts an error produced while ctx expired into a
// TimeoutError. Errors unrelated to a deadline are returned unchanged.
func AsTimeout(ctx context.Context, err error, selector string, state State, started time.Time) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrTimeout) {
		return err
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return &TimeoutError{
			Selector: selector,
			State:    state,
			After:    time.Since(started),
			Err:      context.DeadlineExceeded,
		}
	}
	return err
}

// WithDefaultTimeout bounds ctx by d unless it already carries a deadline.
func WithDefaultTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if _, ok := ctx.Deadline(); ok || d <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d)
}

// DefaultTimeout bounds a page action when the caller's context has no deadline.
const DefaultTimeout = 30 * time.Second
