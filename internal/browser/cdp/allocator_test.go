// internal/browser/cdp/allocator_test.go
package cdp

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/xkilldash9x/entra-login/internal/browser"
)

func TestAllocatorFlags(t *testing.T) {
	t.Run("Headed", func(t *testing.T) {
		flags := allocatorFlags(browser.LaunchOptions{Headless: false})
		// chromedp defaults to headless; a false value removes the flag.
		assert.Equal(t, false, flags["headless"])
		assert.Equal(t, false, flags["hide-scrollbars"])
		assert.Equal(t, true, flags["no-sandbox"])
		assert.Equal(t, true, flags["disable-dev-shm-usage"])
		assert.NotContains(t, flags, "disable-gpu")
	})

	t.Run("Headless", func(t *testing.T) {
		flags := allocatorFlags(browser.LaunchOptions{Headless: true, DisableGPU: true})
		assert.Equal(t, true, flags["headless"])
		assert.Equal(t, true, flags["disable-gpu"])
	})

	t.Run("CustomArgs", func(t *testing.T) {
		flags := allocatorFlags(browser.LaunchOptions{
			Args: []string{"--no-zygote", "lang=en-GB", "--user-agent=agent/1.0 (x=y)", "  ", "--"},
		})
		assert.Equal(t, true, flags["no-zygote"])
		assert.Equal(t, "en-GB", flags["lang"])
		assert.Equal(t, "agent/1.0 (x=y)", flags["user-agent"], "only the first '=' separates key and value")
		assert.NotContains(t, flags, "")
	})

	t.Run("ArgsOverrideDefaults", func(t *testing.T) {
		flags := allocatorFlags(browser.LaunchOptions{Args: []string{"--no-sandbox=false"}})
		assert.Equal(t, "false", flags["no-sandbox"])
	})
}

func TestAllocatorOptions(t *testing.T) {
	base := AllocatorOptions(browser.LaunchOptions{})
	full := AllocatorOptions(browser.LaunchOptions{
		ExecPath:     "/opt/chrome/chrome",
		WindowWidth:  1920,
		WindowHeight: 1080,
	})
	assert.NotEmpty(t, base)
	assert.Len(t, full, len(base)+2, "exec path and window size each add one option")

	partial := AllocatorOptions(browser.LaunchOptions{WindowWidth: 1920})
	assert.Len(t, partial, len(base), "window size needs both dimensions")
}

func TestCombineContext(t *testing.T) {
	defer goleak.VerifyNone(t)

	type key struct{}

	t.Run("CancelledBySecondary", func(t *testing.T) {
		primary := context.WithValue(context.Background(), key{}, "target")
		secondary, cancel := context.WithCancel(context.Background())

		combined, stop := combineContext(primary, secondary)
		defer stop()

		assert.Equal(t, "target", combined.Value(key{}), "values come from the primary context")
		cancel()
		select {
		case <-combined.Done():
		case <-time.After(time.Second):
			t.Fatal("combined context was not cancelled by the secondary context")
		}
	})

	t.Run("CancelledByPrimary", func(t *testing.T) {
		primary, cancel := context.WithCancel(context.Background())
		combined, stop := combineContext(primary, context.Background())
		defer stop()

		cancel()
		<-combined.Done()
		assert.ErrorIs(t, combined.Err(), context.Canceled)
	})

	t.Run("StopDoesNotCancelPrimary", func(t *testing.T) {
		primary, cancel := context.WithCancel(context.Background())
		defer cancel()
		_, stop := combineContext(primary, context.Background())
		stop()
		require.NoError(t, primary.Err())
	})
}
