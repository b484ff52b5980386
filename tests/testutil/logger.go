package testutil

import (
	"bytes"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/systmms/btbroker/internal/logging"
)

// LogBuffer collects log output for assertions. It is safe for concurrent
// use so a broker's background worker can log while the test reads.
//
// Example usage:
//
//	logger, logs := NewTestLogger(t, true)
//	co := checkout.New(client, nil, logger)
//	co.Run(ctx, acc)
//	logs.AssertContains(t, "bt.acc.DB01.sa")
//	logs.AssertNotContains(t, "the-password")
type LogBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

// Write implements io.Writer.
func (b *LogBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

// String returns everything logged so far.
func (b *LogBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

// Lines returns the logged lines without the trailing newline.
func (b *LogBuffer) Lines() []string {
	s := strings.TrimRight(b.String(), "\n")
	if s == "" {
		return nil
	}
	return strings.Split(s, "\n")
}

// AssertContains fails the test if the output lacks substr.
func (b *LogBuffer) AssertContains(t *testing.T, substr string) {
	t.Helper()
	assert.Contains(t, b.String(), substr, "log output should contain %q", substr)
}

// AssertNotContains fails the test if the output contains substr. Use it
// to check that secret values never reach the log.
func (b *LogBuffer) AssertNotContains(t *testing.T, substr string) {
	t.Helper()
	assert.NotContains(t, b.String(), substr, "log output should not contain %q", substr)
}

// NewTestLogger returns an uncoloured logger writing into a LogBuffer.
func NewTestLogger(t *testing.T, debug bool) (*logging.Logger, *LogBuffer) {
	t.Helper()
	buf := &LogBuffer{}
	return logging.NewWithWriter(buf, debug, true), buf
}
