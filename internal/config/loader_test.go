package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadAppliesDefaults(t *testing.T) {
	path := writeConfig(t, `
server:
  port: 9090
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, 10*time.Second, cfg.Server.ReadTimeout)
	assert.Equal(t, "info", cfg.Logging.Level)

	assert.Equal(t, 5, cfg.Confirmation.MaxAttempts)
	assert.Equal(t, 30*time.Second, cfg.Confirmation.RetryBaseDelay)
	assert.Equal(t, 300*time.Second, cfg.Confirmation.Timeout)
	assert.Equal(t, 24*time.Hour, cfg.Confirmation.PurgeAfter)

	assert.Equal(t, 3, cfg.Notification.MaxRetries)
	assert.Equal(t, 30*time.Second, cfg.Notification.RetryInterval)

	assert.Equal(t, 30*time.Second, cfg.Monitor.PollInterval)
	assert.Equal(t, 60*time.Second, cfg.Monitor.ErrorBackoff)
}

func TestLoadFillsRuleDefaults(t *testing.T) {
	path := writeConfig(t, `
monitor:
  rules:
    pix:
      auto_confirm_after: 10m
      max_wait: 48h
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	require.Len(t, cfg.Monitor.Rules, 4)

	pix := cfg.Monitor.Rules["pix"]
	assert.Equal(t, 10*time.Minute, pix.AutoConfirmAfter, "file overrides win")
	assert.Equal(t, 48*time.Hour, pix.MaxWait)

	stripe := cfg.Monitor.Rules["stripe"]
	assert.Equal(t, time.Minute, stripe.AutoConfirmAfter)
	assert.Equal(t, 2*time.Hour, stripe.MaxWait)

	bank := cfg.Monitor.Rules["bank_transfer"]
	assert.True(t, bank.RequireProof)
	assert.Equal(t, 60*time.Minute, bank.AutoConfirmAfter)
}

func TestLoadValidationFailures(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{
			name: "invalid port",
			content: `
server:
  port: 70000
`,
		},
		{
			name: "zero max attempts",
			content: `
confirmation:
  max_attempts: 0
`,
		},
		{
			name: "error backoff shorter than poll interval",
			content: `
monitor:
  poll_interval: 30s
  error_backoff: 5s
`,
		},
		{
			name: "max wait below auto confirm delay",
			content: `
monitor:
  rules:
    pix:
      auto_confirm_after: 2h
      max_wait: 1h
`,
		},
		{
			name: "kafka enabled without brokers",
			content: `
broker:
  kafka:
    enabled: true
`,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tc.content))
			assert.Error(t, err)
		})
	}
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.Error(t, err)
}
