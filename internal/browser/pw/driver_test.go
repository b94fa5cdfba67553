package pw

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/playwright-community/playwright-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/xkilldash9x/entra-login/internal/browser"
)

func TestLaunchOptions(t *testing.T) {
	opts := launchOptions(browser.LaunchOptions{
		Headless:   false,
		DisableGPU: true,
		ExecPath:   "/usr/bin/chromium",
		Args:       []string{"--lang=en-GB"},
	})

	require.NotNil(t, opts.Headless)
	assert.False(t, *opts.Headless)
	require.NotNil(t, opts.ExecutablePath)
	assert.Equal(t, "/usr/bin/chromium", *opts.ExecutablePath)
	assert.Equal(t, []string{"--no-sandbox", "--disable-dev-shm-usage", "--disable-gpu", "--lang=en-GB"}, opts.Args)
	require.NotNil(t, opts.Timeout)
	assert.Equal(t, float64(60000), *opts.Timeout)

	bare := launchOptions(browser.LaunchOptions{Headless: true})
	assert.True(t, *bare.Headless)
	assert.Nil(t, bare.ExecutablePath)
	assert.NotContains(t, bare.Args, "--disable-gpu")
}

func TestViewport(t *testing.T) {
	assert.Nil(t, viewport(browser.LaunchOptions{}))
	assert.Nil(t, viewport(browser.LaunchOptions{WindowWidth: 800}))
	assert.Equal(t, &playwright.Size{Width: 800, Height: 600}, viewport(browser.LaunchOptions{WindowWidth: 800, WindowHeight: 600}))
}

func TestWaitState(t *testing.T) {
	tests := map[browser.State]*playwright.WaitForSelectorState{
		browser.StateAttached: playwright.WaitForSelectorStateAttached,
		browser.StateDetached: playwright.WaitForSelectorStateDetached,
		browser.StateVisible:  playwright.WaitForSelectorStateVisible,
		browser.StateHidden:   playwright.WaitForSelectorStateHidden,
	}
	for state, want := range tests {
		got, err := waitState(state)
		require.NoError(t, err)
		assert.Equal(t, *want, *got, state.String())
	}

	_, err := waitState(browser.State(42))
	assert.Error(t, err)
}

func TestRemaining(t *testing.T) {
	assert.Equal(t, float64(browser.DefaultTimeout.Milliseconds()), *remaining(context.Background()))

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	ms := *remaining(ctx)
	assert.Greater(t, ms, float64(1000))
	assert.LessOrEqual(t, ms, float64(2000))

	expired, cancelExpired := context.WithTimeout(context.Background(), -time.Second)
	defer cancelExpired()
	assert.Equal(t, float64(1), *remaining(expired), "zero would disable the Playwright timeout")
}

func TestEnsureInstallation(t *testing.T) {
	t.Run("Success", func(t *testing.T) {
		d := NewDriver(zaptest.NewLogger(t), WithInstall(time.Second))
		var browsers []string
		d.installFn = func(o *playwright.RunOptions) error {
			browsers = o.Browsers
			return nil
		}
		require.NoError(t, d.ensureInstallation(context.Background()))
		assert.Equal(t, []string{"chromium"}, browsers)
	})

	t.Run("Failure", func(t *testing.T) {
		d := NewDriver(zaptest.NewLogger(t), WithInstall(time.Second))
		d.installFn = func(*playwright.RunOptions) error { return errors.New("no network") }
		err := d.ensureInstallation(context.Background())
		assert.ErrorContains(t, err, "no network")
	})

	t.Run("Timeout", func(t *testing.T) {
		d := NewDriver(zaptest.NewLogger(t), WithInstall(20*time.Millisecond))
		release := make(chan struct{})
		defer close(release)
		d.installFn = func(*playwright.RunOptions) error {
			<-release
			return nil
		}
		err := d.ensureInstallation(context.Background())
		assert.ErrorIs(t, err, context.DeadlineExceeded)
	})
}

func TestLaunch_DriverFailure(t *testing.T) {
	d := NewDriver(zaptest.NewLogger(t))
	d.installFn = func(*playwright.RunOptions) error {
		t.Fatal("install must not run unless enabled")
		return nil
	}
	boom := errors.New("driver missing")
	d.runFn = func(...*playwright.RunOptions) (*playwright.Playwright, error) { return nil, boom }

	b, err := d.Launch(context.Background(), browser.LaunchOptions{})
	assert.Nil(t, b)
	assert.ErrorIs(t, err, boom)
}

func TestLaunch_InstallFailureStopsBeforeDriver(t *testing.T) {
	d := NewDriver(zaptest.NewLogger(t), WithInstall(time.Second))
	d.installFn = func(*playwright.RunOptions) error { return errors.New("disk full") }
	d.runFn = func(...*playwright.RunOptions) (*playwright.Playwright, error) {
		t.Fatal("driver must not start after a failed install")
		return nil, nil
	}

	_, err := d.Launch(context.Background(), browser.LaunchOptions{})
	assert.ErrorContains(t, err, "disk full")
}
