// Package login drives an Entra ID (Microsoft 365) sign-in through a browser
// page, including the optional TOTP challenge.
package login

import (
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap/zapcore"
)

// ErrInvalidCredentials is returned when a required credential is empty.
var ErrInvalidCredentials = errors.New("login: invalid credentials")

const redacted = "[REDACTED]"

// Credentials is the bundle supplied once per login attempt. It is never
// persisted and its secrets never reach a log sink.
type Credentials struct {
	Username  string
	Password  string
	MFASecret string
}

// Validate checks that username and password are present. The MFA secret is
// only checked when a one-time password is actually needed.
func (c Credentials) Validate() error {
	var missing []string
	if strings.TrimSpace(c.Username) == "" {
		missing = append(missing, "username")
	}
	if c.Password == "" {
		missing = append(missing, "password")
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: %s must not be empty", ErrInvalidCredentials, strings.Join(missing, " and "))
	}
	return nil
}

// String prints the username only.
func (c Credentials) String() string {
	return fmt.Sprintf("Credentials{Username: %q, Password: %s, MFASecret: %s}", c.Username, mask(c.Password), mask(c.MFASecret))
}

// GoString keeps %#v from leaking secrets.
func (c Credentials) GoString() string { return c.String() }

// MarshalLogObject implements zapcore.ObjectMarshaler.
func (c Credentials) MarshalLogObject(enc zapcore.ObjectEncoder) error {
	enc.AddString("username", c.Username)
	enc.AddString("password", mask(c.Password))
	enc.AddBool("mfa_secret_set", c.MFASecret != "")
	return nil
}

func mask(s string) string {
	if s == "" {
		return `""`
	}
	return redacted
}
