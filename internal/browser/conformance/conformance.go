// Package conformance runs the sign-in scenarios against a real browser
// driver and a local copy of the Entra ID markup. Every driver's integration
// test calls Run.
package conformance

import (
	"context"
	_ "embed"
	"net/http"
	"net/http/httptest"
	"os"
	"os/exec"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/xkilldash9x/entra-login/internal/browser"
	"github.com/xkilldash9x/entra-login/internal/login"
	"github.com/xkilldash9x/entra-login/internal/otp"
)

//go:embed testdata/portal.html
var portalHTML []byte

// NewDriverFunc builds the driver under test.
type NewDriverFunc func(t *testing.T) browser.Driver

// FindChrome returns a Chrome binary or skips the test.
func FindChrome(t *testing.T) string {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping browser integration test in short mode")
	}
	if p := os.Getenv("CHROME_PATH"); p != "" {
		return p
	}
	for _, name := range []string{"google-chrome", "google-chrome-stable", "chromium", "chromium-browser", "headless-shell"} {
		if p, err := exec.LookPath(name); err == nil {
			return p
		}
	}
	t.Skip("no Chrome or Chromium binary found (set CHROME_PATH)")
	return ""
}

// NewPortalServer serves the fixture portal. ?mfa=1 selects the flow that
// asks for a one-time code.
func NewPortalServer(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = w.Write(portalHTML)
	}))
	t.Cleanup(srv.Close)
	return srv
}

// Run exercises newDriver against the fixture portal.
func Run(t *testing.T, newDriver NewDriverFunc) {
	execPath := FindChrome(t)
	srv := NewPortalServer(t)

	open := func(t *testing.T, url string) *browser.Session {
		t.Helper()
		ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
		defer cancel()

		session, err := browser.Open(ctx, newDriver(t),
			browser.LaunchOptions{Headless: true, DisableGPU: true, ExecPath: execPath},
			browser.ContextOptions{Locale: "en-GB", Media: "screen"},
			zaptest.NewLogger(t),
		)
		require.NoError(t, err)
		t.Cleanup(func() {
			assert.NoError(t, session.Close(context.Background()))
		})

		require.NoError(t, session.Page().Navigate(ctx, url))
		return session
	}

	// The fixture reproduces the Entra ID markup, so the default selectors apply.
	selectors := login.DefaultSelectors()

	t.Run("LoginWithoutMFA", func(t *testing.T) {
		session := open(t, srv.URL+"/?mfa=0")
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		// The secret is never used when no code is requested.
		creds := login.Credentials{Username: "alice@contoso.example", Password: "hunter2", MFASecret: "not base32!"}
		out, err := login.NewSequencer(session.Page(), selectors, otp.NewTOTP(),
			login.WithWaitTimeout(5*time.Second),
			login.WithLogger(zaptest.NewLogger(t)),
		).Run(ctx, creds)
		require.NoError(t, err)
		assert.False(t, out.MFARequired)
		assert.NoError(t, session.Page().WaitFor(ctx, "#signed-in", browser.StateVisible))
	})

	t.Run("LoginWithMFA", func(t *testing.T) {
		session := open(t, srv.URL+"/?mfa=1")
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		creds := login.Credentials{Username: "alice@contoso.example", Password: "hunter2", MFASecret: "JBSWY3DPEHPK3PXP"}
		out, err := login.NewSequencer(session.Page(), selectors, otp.NewTOTP(),
			login.WithWaitTimeout(5*time.Second),
			login.WithLogger(zaptest.NewLogger(t)),
		).Run(ctx, creds)
		require.NoError(t, err)
		assert.True(t, out.MFARequired)
		assert.NoError(t, session.Page().WaitFor(ctx, "#signed-in", browser.StateVisible))
	})

	t.Run("WaitTimeout", func(t *testing.T) {
		session := open(t, srv.URL)
		ctx, cancel := context.WithTimeout(context.Background(), 300*time.Millisecond)
		defer cancel()

		err := session.Page().WaitFor(ctx, selectors.Username, browser.StateDetached)
		require.Error(t, err)
		assert.ErrorIs(t, err, browser.ErrTimeout)
	})

	t.Run("RaceReleasesLoser", func(t *testing.T) {
		session := open(t, srv.URL)
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		winner, err := browser.WaitFirst(ctx, session.Page(),
			browser.Wait{Name: "missing", Selector: "#never-rendered", State: browser.StateAttached},
			browser.Wait{Name: "email", Selector: selectors.Username, State: browser.StateAttached},
		)
		require.NoError(t, err)
		assert.True(t, winner.Is("email"))

		// The page is still usable after the losing wait was cancelled.
		require.NoError(t, session.Page().Fill(ctx, selectors.Username, "bob@contoso.example"))
	})
}
