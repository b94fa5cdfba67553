package login

import (
	"fmt"

	"github.com/xkilldash9x/entra-login/internal/config"
)

// Selectors maps each element the sequencer touches to a CSS selector. The
// submit control is shared by every step, so correctness depends on
// sequencing rather than on selector uniqueness.
type Selectors struct {
	Username     string
	Password     string
	Submit       string
	OTP          string
	StaySignedIn string
}

// DefaultSelectors matches the Entra ID sign-in pages.
func DefaultSelectors() Selectors {
	return SelectorsFromConfig(config.NewDefaultConfig().Portal().Selectors)
}

// SelectorsFromConfig builds the selector set from portal configuration.
func SelectorsFromConfig(cfg config.SelectorConfig) Selectors {
	return Selectors{
		Username:     cfg.Username,
		Password:     cfg.Password,
		Submit:       cfg.Submit,
		OTP:          cfg.OTP,
		StaySignedIn: cfg.StaySignedIn,
	}
}

// Validate reports the first empty selector.
func (s Selectors) Validate() error {
	fields := []struct {
		name, value string
	}{
		{"username", s.Username},
		{"password", s.Password},
		{"submit", s.Submit},
		{"otp", s.OTP},
		{"stay_signed_in", s.StaySignedIn},
	}
	for _, f := range fields {
		if f.value == "" {
			return fmt.Errorf("login: %s selector must not be empty", f.name)
		}
	}
	return nil
}
