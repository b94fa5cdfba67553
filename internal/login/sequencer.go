package login

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/xkilldash9x/entra-login/internal/browser"
	"github.com/xkilldash9x/entra-login/internal/otp"
)

// DefaultWaitTimeout bounds every element wait and action.
const DefaultWaitTimeout = 30 * time.Second

const (
	branchOTP          = "otp"
	branchStaySignedIn = "stay-signed-in"
)

// Outcome reports which path a successful login took.
type Outcome struct {
	MFARequired bool
	Elapsed     time.Duration
}

// Sequencer drives a page that is already on the sign-in entry URL through
// username, password, the optional one-time code and the "stay signed in"
// prompt. A Sequencer is single use: running it twice on the same page
// without a fresh navigation is unsupported.
type Sequencer struct {
	page        browser.Page
	sel         Selectors
	gen         otp.Generator
	clock       otp.Clock
	waitTimeout time.Duration
	logger      *zap.Logger
}

// Option configures a Sequencer.
type Option func(*Sequencer)

// WithWaitTimeout sets the bound applied to each step.
func WithWaitTimeout(d time.Duration) Option {
	return func(s *Sequencer) {
		if d > 0 {
			s.waitTimeout = d
		}
	}
}

// WithClock overrides the time source used for one-time passwords.
func WithClock(clock otp.Clock) Option {
	return func(s *Sequencer) { s.clock = clock }
}

// WithLogger sets the logger; the sequencer names itself under it.
func WithLogger(logger *zap.Logger) Option {
	return func(s *Sequencer) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// NewSequencer returns a sequencer bound to page.
func NewSequencer(page browser.Page, sel Selectors, gen otp.Generator, opts ...Option) *Sequencer {
	s := &Sequencer{
		page:        page,
		sel:         sel,
		gen:         gen,
		clock:       time.Now,
		waitTimeout: DefaultWaitTimeout,
		logger:      zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.Named("sequencer")
	return s
}

// Run performs the sign-in. Any failure aborts the whole sequence and is
// returned as a *StepError; there are no retries.
func (s *Sequencer) Run(ctx context.Context, creds Credentials) (Outcome, error) {
	started := time.Now()
	if err := creds.Validate(); err != nil {
		return Outcome{}, err
	}
	if err := s.sel.Validate(); err != nil {
		return Outcome{}, err
	}
	log := s.logger.With(zap.Object("credentials", creds))
	log.Info("Starting sign-in sequence.")

	// Username. The field is replaced by an animated transition, so wait for
	// it to go away before the shared submit control is used again.
	if err := s.fill(ctx, StepFillUsername, s.sel.Username, creds.Username); err != nil {
		return Outcome{}, err
	}
	if err := s.click(ctx, StepSubmitUsername); err != nil {
		return Outcome{}, err
	}
	if err := s.await(ctx, StepAwaitUsernameDetached, s.sel.Username, browser.StateDetached); err != nil {
		return Outcome{}, err
	}

	// Password.
	if err := s.fill(ctx, StepFillPassword, s.sel.Password, creds.Password); err != nil {
		return Outcome{}, err
	}
	if err := s.click(ctx, StepSubmitPassword); err != nil {
		return Outcome{}, err
	}
	if err := s.await(ctx, StepAwaitPasswordDetached, s.sel.Password, browser.StateDetached); err != nil {
		return Outcome{}, err
	}

	// Either the one-time code prompt or the "stay signed in" prompt follows.
	winner, err := s.branch(ctx)
	if err != nil {
		return Outcome{}, err
	}

	out := Outcome{MFARequired: winner.Is(branchOTP)}
	log.Debug("MFA branch resolved.", zap.String("branch", winner.Wait.Name))

	if out.MFARequired {
		code, window, err := otp.Now(s.gen, creds.MFASecret, s.clock)
		if err != nil {
			return Outcome{}, stepErr(StepGenerateOTP, err)
		}
		log.Debug("One-time code generated.", zap.Time("window", window))
		if err := s.fill(ctx, StepFillOTP, s.sel.OTP, code); err != nil {
			return Outcome{}, err
		}
		if err := s.click(ctx, StepSubmitOTP); err != nil {
			return Outcome{}, err
		}
		if err := s.await(ctx, StepAwaitOTPDetached, s.sel.OTP, browser.StateDetached); err != nil {
			return Outcome{}, err
		}
		// The prompt is still animating in; the submit control it shares
		// must not be clicked before it is there.
		if err := s.await(ctx, StepAwaitStaySignedIn, s.sel.StaySignedIn, browser.StateAttached); err != nil {
			return Outcome{}, err
		}
	}

	// "Yes" on the stay-signed-in prompt.
	if err := s.click(ctx, StepConfirm); err != nil {
		return Outcome{}, err
	}

	out.Elapsed = time.Since(started)
	log.Info("Sign-in sequence completed.", zap.Bool("mfa", out.MFARequired), zap.Duration("elapsed", out.Elapsed))
	return out, nil
}

func (s *Sequencer) branch(ctx context.Context) (browser.Winner, error) {
	ctx, cancel := context.WithTimeout(ctx, s.waitTimeout)
	defer cancel()

	winner, err := browser.WaitFirst(ctx, s.page,
		browser.Wait{Name: branchOTP, Selector: s.sel.OTP, State: browser.StateAttached},
		browser.Wait{Name: branchStaySignedIn, Selector: s.sel.StaySignedIn, State: browser.StateAttached},
	)
	return winner, stepErr(StepMFABranch, err)
}

func (s *Sequencer) fill(ctx context.Context, step Step, selector, value string) error {
	ctx, cancel := context.WithTimeout(ctx, s.waitTimeout)
	defer cancel()

	s.logger.Debug("Filling field.", zap.String("step", string(step)), zap.String("selector", selector))
	return stepErr(step, s.page.Fill(ctx, selector, value))
}

func (s *Sequencer) click(ctx context.Context, step Step) error {
	ctx, cancel := context.WithTimeout(ctx, s.waitTimeout)
	defer cancel()

	s.logger.Debug("Clicking submit.", zap.String("step", string(step)))
	return stepErr(step, s.page.Click(ctx, s.sel.Submit))
}

func (s *Sequencer) await(ctx context.Context, step Step, selector string, state browser.State) error {
	ctx, cancel := context.WithTimeout(ctx, s.waitTimeout)
	defer cancel()

	s.logger.Debug("Waiting for element.", zap.String("step", string(step)), zap.String("selector", selector), zap.Stringer("state", state))
	return stepErr(step, s.page.WaitFor(ctx, selector, state))
}
