package gorod_test

import (
	"testing"
	"time"

	"go.uber.org/zap/zaptest"

	"github.com/xkilldash9x/entra-login/internal/browser"
	"github.com/xkilldash9x/entra-login/internal/browser/conformance"
	"github.com/xkilldash9x/entra-login/internal/browser/gorod"
)

func TestIntegration(t *testing.T) {
	conformance.Run(t, func(t *testing.T) browser.Driver {
		return gorod.NewDriver(zaptest.NewLogger(t), gorod.WithActionTimeout(10*time.Second))
	})
}
