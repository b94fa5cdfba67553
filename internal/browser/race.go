// internal/browser/race.go
package browser

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/errgroup"
)

// Wait is one contender in WaitFirst.
type Wait struct {
	Name     string
	Selector string
	State    State
}

// Winner identifies the wait that settled first.
type Winner struct {
	Index int
	Wait  Wait
}

// Is reports whether the winning wait has the given name.
func (w Winner) Is(name string) bool { return w.Index >= 0 && w.Wait.Name == name }

var errNoWaits = errors.New("browser: WaitFirst requires at least one wait")

// WaitFirst issues every wait concurrently against page and returns the one
// that succeeds first. The remaining waits are cancelled and WaitFirst does
// not return until all of them have exited.
//
// If a wait fails before any has succeeded (typically a TimeoutError once
// ctx expires), that error is returned. When a success and a failure land
// together, the success wins.
func WaitFirst(ctx context.Context, page Page, waits ...Wait) (Winner, error) {
	if len(waits) == 0 {
		return Winner{Index: -1}, errNoWaits
	}

	raceCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	g, gctx := errgroup.WithContext(raceCtx)

	var (
		once   sync.Once
		won    atomic.Bool
		winner = Winner{Index: -1}
	)

	for i, w := range waits {
		g.Go(func() error {
			err := page.WaitFor(gctx, w.Selector, w.State)
			if err == nil {
				once.Do(func() {
					winner = Winner{Index: i, Wait: w}
					won.Store(true)
					cancel()
				})
				return nil
			}
			if won.Load() {
				// Released by the winner.
				return nil
			}
			return err
		})
	}

	err := g.Wait()
	if won.Load() {
		return winner, nil
	}
	if err == nil {
		err = ctx.Err()
	}
	return Winner{Index: -1}, err
}
