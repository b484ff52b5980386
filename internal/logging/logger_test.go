package logging

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSecretRedaction(t *testing.T) {
	t.Parallel()

	for _, in := range []string{"my-secret-password", "", "password123!@#"} {
		assert.Equal(t, "[REDACTED]", Secret(in).String())
		assert.Equal(t, "[REDACTED]", Secret(in).GoString())
	}
}

func TestLoggerTiers(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	logger := NewWithWriter(&buf, false, true)

	logger.Info("cycle %d finished", 3)
	logger.Warn("path %s skipped", "Dev")
	logger.Error("checkout failed")
	logger.Debug("not written")

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	assert.Equal(t, []string{
		"✓ cycle 3 finished",
		"⚠ path Dev skipped",
		"✗ checkout failed",
	}, lines)
}

func TestLoggerDebugMode(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	logger := NewWithWriter(&buf, true, true)
	assert.True(t, logger.DebugEnabled())

	logger.Debug("request %s released", "42")
	assert.Equal(t, "[DEBUG] request 42 released\n", buf.String())
}

func TestLoggerNamed(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	logger := NewWithWriter(&buf, false, true).Named("refresh").Named("checkout")

	logger.Info("ok")
	assert.Equal(t, "✓ [refresh.checkout] ok\n", buf.String())
}

func TestLoggerNoSecretLeak(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	logger := NewWithWriter(&buf, true, true)
	logger.Info("credential for %s: %s", "bt.acc.DB.sa", Secret("hunter22"))

	assert.NotContains(t, buf.String(), "hunter22")
	assert.Contains(t, buf.String(), "[REDACTED]")
}

func TestRedactFunction(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		input    string
		secrets  []string
		expected string
	}{
		{
			name:     "single secret redacted",
			input:    "The password is secret123",
			secrets:  []string{"secret123"},
			expected: "The password is [REDACTED]",
		},
		{
			name:     "multiple secrets redacted",
			input:    "User admin with password secret123 and API key abc123",
			secrets:  []string{"admin", "secret123", "abc123"},
			expected: "User [REDACTED] with password [REDACTED] and API key [REDACTED]",
		},
		{
			name:     "empty secret ignored",
			input:    "This has no secrets",
			secrets:  []string{""},
			expected: "This has no secrets",
		},
		{
			name:     "short secret ignored",
			input:    "Short secret: ab",
			secrets:  []string{"ab"},
			expected: "Short secret: ab",
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.expected, Redact(tt.input, tt.secrets))
		})
	}
}
