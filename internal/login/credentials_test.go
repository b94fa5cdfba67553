package login

import (
	"fmt"
	"strconv"
	"strings"
	"testing"

	fuzz "github.com/AdaLogics/go-fuzz-headers"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestCredentials_Validate(t *testing.T) {
	tests := []struct {
		name    string
		creds   Credentials
		wantErr string
	}{
		{name: "Complete", creds: testCreds},
		{name: "SecretOptional", creds: Credentials{Username: "bob", Password: "pw"}},
		{name: "NoUsername", creds: Credentials{Password: "pw"}, wantErr: "username must not be empty"},
		{name: "BlankUsername", creds: Credentials{Username: "  ", Password: "pw"}, wantErr: "username must not be empty"},
		{name: "NoPassword", creds: Credentials{Username: "bob"}, wantErr: "password must not be empty"},
		{name: "Empty", creds: Credentials{}, wantErr: "username and password must not be empty"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.creds.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, ErrInvalidCredentials)
			assert.ErrorContains(t, err, tt.wantErr)
		})
	}
}

func TestCredentials_Redaction(t *testing.T) {
	for _, verb := range []string{"%v", "%+v", "%s", "%#v"} {
		out := fmt.Sprintf(verb, testCreds)
		assert.Contains(t, out, testCreds.Username, verb)
		assert.NotContains(t, out, testCreds.Password, verb)
		assert.NotContains(t, out, testCreds.MFASecret, verb)
	}

	core, logs := observer.New(zapcore.DebugLevel)
	zap.New(core).Info("login", zap.Object("credentials", testCreds))

	require.Equal(t, 1, logs.Len())
	fields := logs.All()[0].ContextMap()
	got, ok := fields["credentials"].(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, testCreds.Username, got["username"])
	assert.Equal(t, redacted, got["password"])
	assert.Equal(t, true, got["mfa_secret_set"])
	assert.NotContains(t, fmt.Sprint(fields), testCreds.Password)
	assert.NotContains(t, fmt.Sprint(fields), testCreds.MFASecret)
}

func TestSelectors(t *testing.T) {
	def := DefaultSelectors()
	assert.Equal(t, Selectors{
		Username:     "input[type=email]",
		Password:     "input[type=password]",
		Submit:       "input[type=submit]",
		OTP:          "input[name=otc]",
		StaySignedIn: "#KmsiCheckboxField",
	}, def)
	assert.NoError(t, def.Validate())

	sel := def
	sel.Submit = ""
	assert.ErrorContains(t, sel.Validate(), "submit selector must not be empty")
}

// FuzzCredentials checks validation and that formatting never reveals the
// password or secret.
func FuzzCredentials(f *testing.F) {
	f.Add([]byte("alice\x00hunter2\x00JBSWY3DP"))
	f.Add([]byte{})

	skeleton := Credentials{Password: "x", MFASecret: "x"}.String() + Credentials{}.String()

	f.Fuzz(func(t *testing.T, data []byte) {
		var c Credentials
		if err := fuzz.NewConsumer(data).GenerateStruct(&c); err != nil {
			return
		}

		err := c.Validate()
		valid := strings.TrimSpace(c.Username) != "" && c.Password != ""
		if valid {
			assert.NoError(t, err)
		} else {
			assert.ErrorIs(t, err, ErrInvalidCredentials)
		}

		out := strings.Replace(c.String(), strconv.Quote(c.Username), "", 1)
		for _, secret := range []string{c.Password, c.MFASecret} {
			if secret == "" || strings.Contains(skeleton, secret) {
				continue
			}
			assert.NotContains(t, out, secret)
		}
	})
}
