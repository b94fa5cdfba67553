package cmd

import (
	"context"
	"errors"
	"fmt"

	"github.com/fatih/color"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/xkilldash9x/entra-login/internal/login"
	"github.com/xkilldash9x/entra-login/internal/observability"
	"github.com/xkilldash9x/entra-login/internal/otp"
	"github.com/xkilldash9x/entra-login/internal/service"
)

// Seams for tests.
var (
	authenticate                          = service.Authenticate
	driverFactory   service.DriverFactory = service.NewDriverFactory()
	waitForKeypress                       = waitForAnyKey
)

// runLogin signs in with the three positional credentials and holds the
// authenticated page open until a key is pressed.
func runLogin(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	cfg, err := getConfigFromContext(ctx)
	if err != nil {
		return err
	}
	logger := observability.GetLogger().With(zap.String("run_id", uuid.NewString()))

	creds := login.Credentials{
		Username:  args[0],
		Password:  args[1],
		MFASecret: args[2],
	}
	if err := otp.ValidateSecret(creds.MFASecret); err != nil {
		// Only fatal if the provider actually asks for a code.
		logger.Warn("MFA secret is not valid base32; sign-in will fail if a one-time code is requested.")
	}

	logger.Info("Signing in.",
		zap.String("username", creds.Username),
		zap.String("driver", cfg.Browser().Driver),
		zap.String("url", cfg.Portal().LoginURL),
	)

	session, outcome, err := authenticate(ctx, service.Params{
		Config:      cfg,
		Credentials: creds,
		Logger:      logger,
		Factory:     driverFactory,
	})
	if err != nil {
		if errors.Is(err, context.Canceled) {
			logger.Warn("Sign-in aborted.")
			return fmt.Errorf("sign-in interrupted: %w", err)
		}
		return fmt.Errorf("sign-in failed: %w", err)
	}
	defer func() {
		if cerr := session.Close(context.WithoutCancel(ctx)); cerr != nil {
			logger.Warn("Failed to close browser session.", zap.Error(cerr))
		}
	}()

	logger.Info("Signed in.",
		zap.String("session_id", session.ID()),
		zap.Bool("mfa", outcome.MFARequired),
		zap.Duration("elapsed", outcome.Elapsed),
	)

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "%s Signed in as %s\n", color.GreenString("✓"), creds.Username)
	if !cfg.Login().HoldOpen {
		return nil
	}

	fmt.Fprintln(out, "Press any key to quit.")
	if err := waitForKeypress(ctx, cmd.InOrStdin()); err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("waiting for keypress: %w", err)
	}
	return nil
}
