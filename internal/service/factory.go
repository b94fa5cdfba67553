// File: internal/service/factory.go
package service

import (
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/xkilldash9x/entra-login/internal/browser"
	"github.com/xkilldash9x/entra-login/internal/browser/cdp"
	"github.com/xkilldash9x/entra-login/internal/browser/gorod"
	"github.com/xkilldash9x/entra-login/internal/browser/pw"
	"github.com/xkilldash9x/entra-login/internal/config"
)

// DriverFactory builds the browser driver named by the configuration.
// Tests substitute it to run the login against a fake page.
type DriverFactory interface {
	NewDriver(cfg config.Interface, logger *zap.Logger) (browser.Driver, error)
}

// DriverFactoryFunc adapts a function to DriverFactory.
type DriverFactoryFunc func(cfg config.Interface, logger *zap.Logger) (browser.Driver, error)

func (f DriverFactoryFunc) NewDriver(cfg config.Interface, logger *zap.Logger) (browser.Driver, error) {
	return f(cfg, logger)
}

type concreteFactory struct{}

// NewDriverFactory returns the production factory.
func NewDriverFactory() DriverFactory {
	return concreteFactory{}
}

// NewDriver selects chromedp, Playwright or rod from browser.driver.
func (concreteFactory) NewDriver(cfg config.Interface, logger *zap.Logger) (browser.Driver, error) {
	bc := cfg.Browser()
	actionTimeout := cfg.Login().WaitTimeout

	switch strings.ToLower(bc.Driver) {
	case config.DriverChromedp, "":
		return cdp.NewDriver(logger, cdp.WithActionTimeout(actionTimeout)), nil
	case config.DriverPlaywright:
		opts := []pw.Option{pw.WithActionTimeout(actionTimeout)}
		if bc.Install {
			opts = append(opts, pw.WithInstall(bc.InstallTimeout))
		}
		return pw.NewDriver(logger, opts...), nil
	case config.DriverRod:
		return gorod.NewDriver(logger, gorod.WithActionTimeout(actionTimeout)), nil
	default:
		return nil, fmt.Errorf("unknown browser driver %q (hint: check ENTRALOGIN_BROWSER_DRIVER)", bc.Driver)
	}
}
