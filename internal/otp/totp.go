// Package otp computes the time-based one-time passwords (RFC 6238) that the
// identity provider asks for during multi-factor authentication.
package otp

import (
	"encoding/base32"
	"errors"
	"fmt"
	"strings"
	"time"

	potp "github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"
)

const (
	// Period is the TOTP time step.
	Period = 30 * time.Second
	// Digits is the length of a generated code.
	Digits = 6
)

// ErrInvalidSecret is returned when the shared secret is not valid base32.
var ErrInvalidSecret = errors.New("otp: secret is not valid base32")

// Generator produces the one-time password that is valid at a given instant.
type Generator interface {
	Generate(secret string, at time.Time) (string, error)
}

// Clock returns the current time. It exists so tests can pin the time window.
type Clock func() time.Time

// TOTP is the RFC 6238 generator: HMAC-SHA1, 30 second step, 6 digits.
type TOTP struct {
	opts totp.ValidateOpts
}

var _ Generator = (*TOTP)(nil)

// NewTOTP returns a generator configured the way authenticator apps are.
func NewTOTP() *TOTP {
	return &TOTP{
		opts: totp.ValidateOpts{
			Period:    uint(Period / time.Second),
			Skew:      0,
			Digits:    potp.DigitsSix,
			Algorithm: potp.AlgorithmSHA1,
		},
	}
}

// Generate returns the code for the time window containing at.
func (g *TOTP) Generate(secret string, at time.Time) (string, error) {
	normalized, err := NormalizeSecret(secret)
	if err != nil {
		return "", err
	}

	code, err := totp.GenerateCodeCustom(normalized, at, g.opts)
	if err != nil {
		if errors.Is(err, potp.ErrValidateSecretInvalidBase32) {
			return "", ErrInvalidSecret
		}
		return "", fmt.Errorf("otp: generating code: %w", err)
	}
	return code, nil
}

// Now generates the code for clock() and returns the start of the time step
// it belongs to.
func Now(g Generator, secret string, clock Clock) (string, time.Time, error) {
	if clock == nil {
		clock = time.Now
	}
	at := clock()
	code, err := g.Generate(secret, at)
	if err != nil {
		return "", time.Time{}, err
	}
	return code, WindowStart(at), nil
}

// NormalizeSecret canonicalizes a secret the way authenticator apps accept
// it: whitespace and dashes removed, upper case, padded to a multiple of 8.
// The result is guaranteed to decode as standard base32.
func NormalizeSecret(secret string) (string, error) {
	cleaned := strings.Map(func(r rune) rune {
		switch r {
		case ' ', '\t', '\n', '\r', '-':
			return -1
		}
		return r
	}, secret)
	cleaned = strings.ToUpper(strings.TrimRight(cleaned, "="))
	if cleaned == "" {
		return "", ErrInvalidSecret
	}

	if rem := len(cleaned) % 8; rem != 0 {
		cleaned += strings.Repeat("=", 8-rem)
	}
	if _, err := base32.StdEncoding.DecodeString(cleaned); err != nil {
		return "", ErrInvalidSecret
	}
	return cleaned, nil
}

// ValidateSecret reports whether secret could be used to generate codes.
func ValidateSecret(secret string) error {
	_, err := NormalizeSecret(secret)
	return err
}

// WindowStart returns the beginning of the time step containing at.
func WindowStart(at time.Time) time.Time {
	return at.Truncate(Period)
}
