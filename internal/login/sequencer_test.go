package login

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest"
	"go.uber.org/zap/zaptest/observer"

	"github.com/xkilldash9x/entra-login/internal/browser"
	"github.com/xkilldash9x/entra-login/internal/browser/browsertest"
	"github.com/xkilldash9x/entra-login/internal/otp"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// Non-default markup, so the tests also prove selectors come from configuration.
var testSelectors = Selectors{
	Username:     "#user",
	Password:     "#pass",
	Submit:       "#next",
	OTP:          "#otc",
	StaySignedIn: "#kmsi",
}

const signedIn = "#signed-in"

var testCreds = Credentials{
	Username:  "alice@contoso.example",
	Password:  "correct horse battery staple",
	MFASecret: "JBSWY3DPEHPK3PXP",
}

// transitionDelay mimics the provider's animated step changes. Acting on the
// next field before the previous one detached fails on the fake page.
const transitionDelay = 5 * time.Millisecond

type portalOptions struct {
	mfa              bool
	passwordSticks   bool
	neitherAppears   bool
	transitionsDelay time.Duration
}

// newPortal scripts the email → password → [otc] → stay-signed-in flow.
func newPortal(o portalOptions) *browsertest.Page {
	p := browsertest.NewPage(testSelectors.Username, testSelectors.Submit)

	afterPassword := []string{testSelectors.StaySignedIn}
	if o.mfa {
		afterPassword = []string{testSelectors.OTP}
	}
	if o.neitherAppears {
		afterPassword = nil
	}

	clicks := []browsertest.Transition{
		{Delay: o.transitionsDelay, Remove: []string{testSelectors.Username}, Add: []string{testSelectors.Password}},
	}
	if o.passwordSticks {
		clicks = append(clicks, browsertest.Transition{})
	} else {
		clicks = append(clicks, browsertest.Transition{Delay: o.transitionsDelay, Remove: []string{testSelectors.Password}, Add: afterPassword})
	}
	if o.mfa {
		clicks = append(clicks, browsertest.Transition{Delay: o.transitionsDelay, Remove: []string{testSelectors.OTP}, Add: []string{testSelectors.StaySignedIn}})
	}
	clicks = append(clicks, browsertest.Transition{Remove: []string{testSelectors.StaySignedIn}, Add: []string{signedIn}})

	return p.OnClick(testSelectors.Submit, clicks...)
}

type mockGenerator struct {
	mock.Mock
}

func (m *mockGenerator) Generate(secret string, at time.Time) (string, error) {
	args := m.Called(secret, at)
	return args.String(0), args.Error(1)
}

var pinned = time.Date(2024, 5, 1, 12, 0, 15, 0, time.UTC)

func newSequencer(t *testing.T, page browser.Page, gen otp.Generator, timeout time.Duration) *Sequencer {
	t.Helper()
	return NewSequencer(page, testSelectors, gen,
		WithWaitTimeout(timeout),
		WithClock(func() time.Time { return pinned }),
		WithLogger(zaptest.NewLogger(t)),
	)
}

func fill(sel, value string) browsertest.Action {
	return browsertest.Action{Kind: browsertest.ActionFill, Selector: sel, Value: value}
}

func click(sel string) browsertest.Action {
	return browsertest.Action{Kind: browsertest.ActionClick, Selector: sel}
}

func wait(sel string, state browser.State) browsertest.Action {
	return browsertest.Action{Kind: browsertest.ActionWait, Selector: sel, Value: state.String()}
}

func TestRun_NoMFA(t *testing.T) {
	page := newPortal(portalOptions{transitionsDelay: transitionDelay})
	gen := new(mockGenerator)

	out, err := newSequencer(t, page, gen, time.Second).Run(context.Background(), testCreds)
	require.NoError(t, err)
	assert.False(t, out.MFARequired)
	assert.Positive(t, out.Elapsed)

	want := []browsertest.Action{
		fill(testSelectors.Username, testCreds.Username),
		click(testSelectors.Submit),
		wait(testSelectors.Username, browser.StateDetached),
		fill(testSelectors.Password, testCreds.Password),
		click(testSelectors.Submit),
		wait(testSelectors.Password, browser.StateDetached),
		wait(testSelectors.StaySignedIn, browser.StateAttached),
		click(testSelectors.Submit),
	}
	if diff := cmp.Diff(want, page.Actions()); diff != "" {
		t.Errorf("action trace mismatch (-want +got):\n%s", diff)
	}

	gen.AssertNotCalled(t, "Generate", mock.Anything, mock.Anything)
	assert.Zero(t, page.Count(browsertest.ActionFill, testSelectors.OTP), "the OTP field must never be touched")
	assert.True(t, page.Present(signedIn))
	assert.Zero(t, page.PendingWaits())
	page.Settle()
}

func TestRun_MFALogsCodeWindow(t *testing.T) {
	page := newPortal(portalOptions{mfa: true, transitionsDelay: transitionDelay})
	gen := new(mockGenerator)
	gen.On("Generate", testCreds.MFASecret, pinned).Return("492039", nil).Once()

	core, logs := observer.New(zapcore.DebugLevel)
	seq := NewSequencer(page, testSelectors, gen,
		WithWaitTimeout(time.Second),
		WithClock(func() time.Time { return pinned }),
		WithLogger(zap.New(core)),
	)
	_, err := seq.Run(context.Background(), testCreds)
	require.NoError(t, err)

	entries := logs.FilterMessage("One-time code generated.").All()
	require.Len(t, entries, 1)
	window, ok := entries[0].ContextMap()["window"].(time.Time)
	require.True(t, ok)
	assert.True(t, window.Equal(time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)), "window=%s", window)
	page.Settle()
}

func TestRun_MFA(t *testing.T) {
	page := newPortal(portalOptions{mfa: true, transitionsDelay: transitionDelay})
	gen := new(mockGenerator)
	gen.On("Generate", testCreds.MFASecret, pinned).Return("492039", nil).Once()

	out, err := newSequencer(t, page, gen, time.Second).Run(context.Background(), testCreds)
	require.NoError(t, err)
	assert.True(t, out.MFARequired)

	want := []browsertest.Action{
		fill(testSelectors.Username, testCreds.Username),
		click(testSelectors.Submit),
		wait(testSelectors.Username, browser.StateDetached),
		fill(testSelectors.Password, testCreds.Password),
		click(testSelectors.Submit),
		wait(testSelectors.Password, browser.StateDetached),
		wait(testSelectors.OTP, browser.StateAttached),
		fill(testSelectors.OTP, "492039"),
		click(testSelectors.Submit),
		wait(testSelectors.OTP, browser.StateDetached),
		wait(testSelectors.StaySignedIn, browser.StateAttached),
		click(testSelectors.Submit),
	}
	if diff := cmp.Diff(want, page.Actions()); diff != "" {
		t.Errorf("action trace mismatch (-want +got):\n%s", diff)
	}

	gen.AssertExpectations(t)
	gen.AssertNumberOfCalls(t, "Generate", 1)
	assert.Equal(t, 1, page.Count(browsertest.ActionFill, testSelectors.OTP))
	assert.Equal(t, 4, page.Count(browsertest.ActionClick, testSelectors.Submit))
	assert.True(t, page.Present(signedIn))
	page.Settle()
}

func TestRun_MFAWithRealTOTP(t *testing.T) {
	page := newPortal(portalOptions{mfa: true})
	gen := otp.NewTOTP()

	_, err := newSequencer(t, page, gen, time.Second).Run(context.Background(), testCreds)
	require.NoError(t, err)

	want, err := gen.Generate(testCreds.MFASecret, pinned)
	require.NoError(t, err)

	var typed string
	for _, a := range page.Actions() {
		if a.Kind == browsertest.ActionFill && a.Selector == testSelectors.OTP {
			typed = a.Value
		}
	}
	assert.Equal(t, want, typed)
	assert.Regexp(t, `^[0-9]{6}$`, typed)
}

// The submit control is shared, so each click must follow the fill of the
// field it submits, and each field is only touched after its predecessor
// detached.
func TestRun_SequencingInvariants(t *testing.T) {
	predecessor := map[string]string{
		testSelectors.Password: testSelectors.Username,
		testSelectors.OTP:      testSelectors.Password,
	}

	for _, mfa := range []bool{false, true} {
		page := newPortal(portalOptions{mfa: mfa, transitionsDelay: transitionDelay})
		gen := new(mockGenerator)
		gen.On("Generate", mock.Anything, mock.Anything).Return("123456", nil).Maybe()

		_, err := newSequencer(t, page, gen, time.Second).Run(context.Background(), testCreds)
		require.NoError(t, err)

		actions := page.Actions()
		clicks := page.Count(browsertest.ActionClick, testSelectors.Submit)
		detached := map[string]bool{}
		fillsSinceClick, clicked := 0, 0

		for i, a := range actions {
			switch a.Kind {
			case browsertest.ActionFill:
				if prev, ok := predecessor[a.Selector]; ok {
					assert.True(t, detached[prev], "mfa=%v: %s filled before %s detached (action %d)", mfa, a.Selector, prev, i)
				}
				fillsSinceClick++
			case browsertest.ActionClick:
				clicked++
				if clicked < clicks {
					assert.Positive(t, fillsSinceClick, "mfa=%v: submit click %d not preceded by a fill", mfa, clicked)
				}
				fillsSinceClick = 0
			case browsertest.ActionWait:
				if a.Value == browser.StateDetached.String() {
					detached[a.Selector] = true
				}
			}
		}
		page.Settle()
	}
}

func TestRun_PasswordNeverDetaches(t *testing.T) {
	page := newPortal(portalOptions{passwordSticks: true})
	gen := new(mockGenerator)

	_, err := newSequencer(t, page, gen, 50*time.Millisecond).Run(context.Background(), testCreds)
	require.Error(t, err)
	assert.ErrorIs(t, err, browser.ErrTimeout)

	var stepErr *StepError
	require.True(t, errors.As(err, &stepErr))
	assert.Equal(t, StepAwaitPasswordDetached, stepErr.Step)

	var te *browser.TimeoutError
	require.True(t, errors.As(err, &te))
	assert.Equal(t, testSelectors.Password, te.Selector)
	assert.Equal(t, browser.StateDetached, te.State)

	gen.AssertNotCalled(t, "Generate", mock.Anything, mock.Anything)
	assert.Zero(t, page.Count(browsertest.ActionFill, testSelectors.OTP))
	assert.Equal(t, 2, page.Count(browsertest.ActionClick, testSelectors.Submit), "no further clicks after a failed step")
}

func TestRun_NeitherBranchAppears(t *testing.T) {
	page := newPortal(portalOptions{neitherAppears: true})
	gen := new(mockGenerator)

	_, err := newSequencer(t, page, gen, 50*time.Millisecond).Run(context.Background(), testCreds)
	require.Error(t, err)
	assert.ErrorIs(t, err, browser.ErrTimeout)

	var stepErr *StepError
	require.True(t, errors.As(err, &stepErr))
	assert.Equal(t, StepMFABranch, stepErr.Step)
	assert.Zero(t, page.PendingWaits(), "both branch waits must be released")
	gen.AssertNotCalled(t, "Generate", mock.Anything, mock.Anything)
}

func TestRun_InvalidSecret(t *testing.T) {
	t.Run("MFAPathFailsBeforeFillingOTP", func(t *testing.T) {
		page := newPortal(portalOptions{mfa: true})
		creds := testCreds
		creds.MFASecret = "not base32!"

		_, err := newSequencer(t, page, otp.NewTOTP(), time.Second).Run(context.Background(), creds)
		require.Error(t, err)
		assert.ErrorIs(t, err, otp.ErrInvalidSecret)

		var stepErr *StepError
		require.True(t, errors.As(err, &stepErr))
		assert.Equal(t, StepGenerateOTP, stepErr.Step)
		assert.Zero(t, page.Count(browsertest.ActionFill, testSelectors.OTP))
	})

	t.Run("NoMFAPathIgnoresSecret", func(t *testing.T) {
		page := newPortal(portalOptions{})
		creds := testCreds
		creds.MFASecret = "not base32!"

		out, err := newSequencer(t, page, otp.NewTOTP(), time.Second).Run(context.Background(), creds)
		require.NoError(t, err)
		assert.False(t, out.MFARequired)
	})
}

func TestRun_InvalidCredentials(t *testing.T) {
	page := newPortal(portalOptions{})

	_, err := newSequencer(t, page, new(mockGenerator), time.Second).Run(context.Background(), Credentials{Password: "x"})
	assert.ErrorIs(t, err, ErrInvalidCredentials)
	assert.Empty(t, page.Actions(), "nothing is typed for an invalid bundle")
}

func TestRun_EmptySelector(t *testing.T) {
	page := newPortal(portalOptions{})
	sel := testSelectors
	sel.OTP = ""

	_, err := NewSequencer(page, sel, new(mockGenerator)).Run(context.Background(), testCreds)
	assert.ErrorContains(t, err, "otp selector must not be empty")
	assert.Empty(t, page.Actions())
}

func TestRun_DriverErrorAborts(t *testing.T) {
	boom := errors.New("node detached from document")
	page := newPortal(portalOptions{}).FailOn(browsertest.ActionFill, testSelectors.Password, boom)

	_, err := newSequencer(t, page, new(mockGenerator), time.Second).Run(context.Background(), testCreds)
	assert.ErrorIs(t, err, boom)
	assert.NotErrorIs(t, err, browser.ErrTimeout)

	var stepErr *StepError
	require.True(t, errors.As(err, &stepErr))
	assert.Equal(t, StepFillPassword, stepErr.Step)
	assert.Contains(t, err.Error(), "login step fill-password")
	assert.Equal(t, 1, page.Count(browsertest.ActionClick, testSelectors.Submit))
}

func TestRun_Cancelled(t *testing.T) {
	page := newPortal(portalOptions{passwordSticks: true})
	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(20*time.Millisecond, cancel)

	_, err := newSequencer(t, page, new(mockGenerator), time.Minute).Run(ctx, testCreds)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
	assert.NotErrorIs(t, err, browser.ErrTimeout)
}
