// Package service wires configuration, the browser driver and the login
// sequencer into a single authenticate operation.
package service

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/xkilldash9x/entra-login/internal/browser"
	"github.com/xkilldash9x/entra-login/internal/config"
	"github.com/xkilldash9x/entra-login/internal/login"
	"github.com/xkilldash9x/entra-login/internal/otp"
)

// Params carries everything Authenticate needs.
type Params struct {
	Config      config.Interface
	Credentials login.Credentials
	Logger      *zap.Logger

	// Optional. Defaults are the production factory and the RFC 6238 generator.
	Factory   DriverFactory
	Generator otp.Generator
	Clock     otp.Clock
}

// Authenticate opens a fresh browser session, navigates to the sign-in page
// and runs the login sequence. On success the session is returned and the
// caller owns it. On failure everything acquired so far has been released.
func Authenticate(ctx context.Context, p Params) (*browser.Session, login.Outcome, error) {
	if p.Config == nil {
		return nil, login.Outcome{}, errors.New("service: configuration is required")
	}
	logger := p.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	if err := p.Credentials.Validate(); err != nil {
		return nil, login.Outcome{}, err
	}

	factory := p.Factory
	if factory == nil {
		factory = NewDriverFactory()
	}
	gen := p.Generator
	if gen == nil {
		gen = otp.NewTOTP()
	}

	driver, err := factory.NewDriver(p.Config, logger)
	if err != nil {
		return nil, login.Outcome{}, err
	}

	bc := p.Config.Browser()
	session, err := browser.Open(ctx, driver,
		browser.LaunchOptionsFromConfig(bc),
		browser.ContextOptionsFromConfig(bc),
		logger,
	)
	if err != nil {
		return nil, login.Outcome{}, err
	}
	log := logger.With(zap.String("session_id", session.ID()))

	// Ensure cleanup happens if the login fails midway.
	success := false
	defer func() {
		if !success {
			if cerr := session.Close(ctx); cerr != nil {
				log.Warn("Failed to release browser session after login failure.", zap.Error(cerr))
			}
		}
	}()

	portal := p.Config.Portal()
	navCtx, cancel := context.WithTimeout(ctx, portal.NavigationTimeout)
	err = session.Page().Navigate(navCtx, portal.LoginURL)
	cancel()
	if err != nil {
		return nil, login.Outcome{}, fmt.Errorf("failed to open sign-in page: %w", err)
	}
	log.Debug("Sign-in page loaded.", zap.String("url", portal.LoginURL))

	opts := []login.Option{
		login.WithWaitTimeout(p.Config.Login().WaitTimeout),
		login.WithLogger(log),
	}
	if p.Clock != nil {
		opts = append(opts, login.WithClock(p.Clock))
	}
	seq := login.NewSequencer(session.Page(), login.SelectorsFromConfig(portal.Selectors), gen, opts...)

	outcome, err := seq.Run(ctx, p.Credentials)
	if err != nil {
		return nil, login.Outcome{}, err
	}

	success = true
	return session, outcome, nil
}
