package log

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew(t *testing.T) {
	for _, backend := range []string{"", BackendZap, BackendLogrus, BackendNop, "ZAP"} {
		logger, err := New(backend, "debug")
		require.NoError(t, err, backend)
		require.NotNil(t, logger, backend)
		logger.With("component", "test").Debug("built", "backend", backend)
	}
}

func TestNewRejectsUnknownBackend(t *testing.T) {
	_, err := New("syslog", "info")
	require.Error(t, err)
	assert.Equal(t, "Unsupported log backend: syslog", err.Error())
}

func TestNewRejectsBadLevel(t *testing.T) {
	_, err := New(BackendZap, "loud")
	assert.Error(t, err)

	_, err = New(BackendLogrus, "loud")
	assert.Error(t, err)
}

func TestDefault(t *testing.T) {
	logger := Default()
	require.NotNil(t, logger)
	logger.With("component", "test").Info("built")

	fallback, err := New("", "")
	require.NoError(t, err)
	assert.IsType(t, logger, fallback)
}
