package errors_test

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/systmms/btbroker/internal/errors"
)

type fakeStatusErr struct{ code int }

func (e fakeStatusErr) Error() string   { return fmt.Sprintf("status %d", e.code) }
func (e fakeStatusErr) HTTPStatus() int { return e.code }

// TestUserErrorFormatting verifies UserError displays properly
func TestUserErrorFormatting(t *testing.T) {
	t.Parallel()

	err := errors.UserError{
		Message:    "Operation failed",
		Details:    "Connection timeout",
		Suggestion: "Check network connectivity",
	}

	errMsg := err.Error()

	assert.Contains(t, errMsg, "Operation failed")
	assert.Contains(t, errMsg, "Connection timeout")
	assert.Contains(t, errMsg, "Check network connectivity")
}

// TestConfigErrorFormatting verifies ConfigError displays with context
func TestConfigErrorFormatting(t *testing.T) {
	t.Parallel()

	err := errors.ConfigError{
		Field:      "BEYONDTRUST_API_URL",
		Value:      "not a url",
		Message:    "invalid URL",
		Suggestion: "Use format: https://host/BeyondTrust/api/public/v3",
	}

	errMsg := err.Error()

	assert.Contains(t, errMsg, "BEYONDTRUST_API_URL")
	assert.Contains(t, errMsg, "not a url")
	assert.Contains(t, errMsg, "invalid URL")
	assert.Contains(t, errMsg, "api/public/v3")
}

func TestPAMErrorSuggestions(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		err  error
		want string
	}{
		{"unauthorized", fakeStatusErr{401}, "BEYONDTRUST_API_KEY"},
		{"forbidden", fakeStatusErr{403}, "run-as user"},
		{"wrapped_not_found", fmt.Errorf("list accounts: %w", fakeStatusErr{404}), "BEYONDTRUST_API_URL"},
		{"tls", fmt.Errorf("x509: certificate signed by unknown authority"), "BEYONDTRUST_CERTIFICATE_CONTENT"},
		{"refused", fmt.Errorf("dial tcp: connection refused"), "Unable to connect"},
		{"unknown", fmt.Errorf("boom"), ""},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			err := errors.PAMError("sign-in", tt.err)
			var ue errors.UserError
			require.ErrorAs(t, err, &ue)
			assert.ErrorIs(t, err, tt.err)
			assert.Contains(t, ue.Message, "sign-in")
			if tt.want == "" {
				assert.Empty(t, ue.Suggestion)
			} else {
				assert.Contains(t, ue.Suggestion, tt.want)
			}
		})
	}
}

func TestIsRetryable(t *testing.T) {
	t.Parallel()

	assert.False(t, errors.IsRetryable(nil))
	assert.True(t, errors.IsRetryable(fakeStatusErr{503}))
	assert.True(t, errors.IsRetryable(fakeStatusErr{429}))
	assert.False(t, errors.IsRetryable(fakeStatusErr{409}))
	assert.True(t, errors.IsRetryable(fmt.Errorf("read: connection reset by peer")))
	assert.False(t, errors.IsRetryable(fmt.Errorf("invalid character")))
}

func TestSimplifyError(t *testing.T) {
	t.Parallel()

	assert.Nil(t, errors.SimplifyError(nil))

	ue := errors.UserError{Message: "already friendly"}
	assert.Equal(t, ue, errors.SimplifyError(ue))

	yamlErr := fmt.Errorf("load: %w", fmt.Errorf("yaml: line 3: mapping values are not allowed"))
	var ce errors.ConfigError
	require.ErrorAs(t, errors.SimplifyError(yamlErr), &ce)
	assert.Equal(t, "Invalid YAML format", ce.Message)

	plain := fmt.Errorf("something else")
	assert.Equal(t, plain, errors.SimplifyError(plain))
}
