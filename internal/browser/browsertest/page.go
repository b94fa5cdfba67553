// Package browsertest provides an in-memory browser for exercising code that
// drives a browser.Page without launching Chrome.
package browsertest

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/xkilldash9x/entra-login/internal/browser"
)

// ActionKind classifies a recorded page interaction.
type ActionKind string

const (
	ActionNavigate ActionKind = "navigate"
	ActionFill     ActionKind = "fill"
	ActionClick    ActionKind = "click"
	ActionWait     ActionKind = "wait"
)

// Action is one interaction recorded by Page, in the order it completed.
type Action struct {
	Kind     ActionKind
	Selector string
	Value    string
}

func (a Action) String() string {
	if a.Value == "" {
		return fmt.Sprintf("%s %s", a.Kind, a.Selector)
	}
	return fmt.Sprintf("%s %s %s", a.Kind, a.Selector, a.Value)
}

// Transition mutates the DOM, optionally after a delay to mimic animations.
type Transition struct {
	Delay  time.Duration
	Remove []string
	Add    []string
}

// Page is a fake browser.Page. Its DOM is modelled as a set of selectors that
// are currently present. Fill and Click fail immediately on an absent
// element, so code that acts before the page has settled is caught.
type Page struct {
	mu       sync.Mutex
	present  map[string]bool
	changed  chan struct{}
	onClick  map[string][]Transition
	onNav    []Transition
	actions  []Action
	failures map[Action]error
	pending  atomic.Int32
	timers   sync.WaitGroup
}

var _ browser.Page = (*Page)(nil)

// NewPage returns a page whose DOM initially contains the given selectors.
func NewPage(present ...string) *Page {
	p := &Page{
		present:  make(map[string]bool),
		changed:  make(chan struct{}),
		onClick:  make(map[string][]Transition),
		failures: make(map[Action]error),
	}
	for _, s := range present {
		p.present[s] = true
	}
	return p
}

// OnNavigate queues transitions applied by Navigate.
func (p *Page) OnNavigate(ts ...Transition) *Page {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.onNav = append(p.onNav, ts...)
	return p
}

// OnClick queues transitions for successive clicks on selector. Each click
// consumes one; clicks beyond the queue change nothing.
func (p *Page) OnClick(selector string, ts ...Transition) *Page {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.onClick[selector] = append(p.onClick[selector], ts...)
	return p
}

// FailOn makes the matching action return err. Value is ignored for waits.
func (p *Page) FailOn(kind ActionKind, selector string, err error) *Page {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.failures[Action{Kind: kind, Selector: selector}] = err
	return p
}

// Navigate records the URL and applies the navigation transitions.
func (p *Page) Navigate(ctx context.Context, url string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.failures[Action{Kind: ActionNavigate}]; err != nil {
		return err
	}
	p.actions = append(p.actions, Action{Kind: ActionNavigate, Value: url})
	for _, t := range p.onNav {
		p.applyLocked(t)
	}
	p.onNav = nil
	return nil
}

// Fill records the value typed into selector.
func (p *Page) Fill(ctx context.Context, selector, value string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.failures[Action{Kind: ActionFill, Selector: selector}]; err != nil {
		return err
	}
	if !p.present[selector] {
		return fmt.Errorf("browsertest: fill %q: element not present", selector)
	}
	p.actions = append(p.actions, Action{Kind: ActionFill, Selector: selector, Value: value})
	return nil
}

// Click records the click and applies the next queued transition for selector.
func (p *Page) Click(ctx context.Context, selector string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.failures[Action{Kind: ActionClick, Selector: selector}]; err != nil {
		return err
	}
	if !p.present[selector] {
		return fmt.Errorf("browsertest: click %q: element not present", selector)
	}
	p.actions = append(p.actions, Action{Kind: ActionClick, Selector: selector})
	if queue := p.onClick[selector]; len(queue) > 0 {
		p.onClick[selector] = queue[1:]
		p.applyLocked(queue[0])
	}
	return nil
}

// WaitFor blocks until selector reaches state or ctx is done. Visible is
// treated as attached and hidden as detached.
func (p *Page) WaitFor(ctx context.Context, selector string, state browser.State) error {
	started := time.Now()
	p.pending.Add(1)
	defer p.pending.Add(-1)

	for {
		p.mu.Lock()
		if err := p.failures[Action{Kind: ActionWait, Selector: selector}]; err != nil {
			p.mu.Unlock()
			return err
		}
		want := state == browser.StateAttached || state == browser.StateVisible
		if p.present[selector] == want {
			p.actions = append(p.actions, Action{Kind: ActionWait, Selector: selector, Value: state.String()})
			p.mu.Unlock()
			return nil
		}
		changed := p.changed
		p.mu.Unlock()

		select {
		case <-changed:
		case <-ctx.Done():
			return browser.AsTimeout(ctx, ctx.Err(), selector, state, started)
		}
	}
}

// Set adds or removes selectors immediately.
func (p *Page) Set(t Transition) {
	p.mu.Lock()
	defer p.mu.Unlock()
	t.Delay = 0
	p.applyLocked(t)
}

// Present reports whether selector is currently in the DOM.
func (p *Page) Present(selector string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.present[selector]
}

// Actions returns a copy of the recorded interactions.
func (p *Page) Actions() []Action {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]Action(nil), p.actions...)
}

// Count returns how many recorded actions match kind and selector.
func (p *Page) Count(kind ActionKind, selector string) int {
	n := 0
	for _, a := range p.Actions() {
		if a.Kind == kind && a.Selector == selector {
			n++
		}
	}
	return n
}

// PendingWaits is the number of WaitFor calls that have not returned.
func (p *Page) PendingWaits() int { return int(p.pending.Load()) }

// Settle blocks until every delayed transition has been applied.
func (p *Page) Settle() { p.timers.Wait() }

func (p *Page) applyLocked(t Transition) {
	if t.Delay > 0 {
		p.timers.Add(1)
		delayed := t
		delayed.Delay = 0
		time.AfterFunc(t.Delay, func() {
			defer p.timers.Done()
			p.mu.Lock()
			defer p.mu.Unlock()
			p.applyLocked(delayed)
		})
		return
	}
	for _, s := range t.Remove {
		delete(p.present, s)
	}
	for _, s := range t.Add {
		p.present[s] = true
	}
	close(p.changed)
	p.changed = make(chan struct{})
}
