package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoad_DefaultsApplied(t *testing.T) {
	cfg, err := Load(writeConfig(t, `
app:
  env: test
`))
	require.NoError(t, err)

	assert.Equal(t, "test", cfg.App.Env)
	assert.Equal(t, "info", cfg.App.LogLevel)
	assert.Equal(t, "paper", cfg.Trading.Mode)
	assert.False(t, cfg.Trading.Live())
	assert.Equal(t, 13.0, cfg.Trading.TakeProfitPct)
	assert.Equal(t, -6.0, cfg.Trading.StopLossPct)
	assert.Equal(t, "11:26", cfg.Session.EntryStart)
	assert.Equal(t, "14:25", cfg.Session.EntryEnd)
	assert.Equal(t, "15:00", cfg.Session.ForceExit)
	assert.Equal(t, "15:25", cfg.Session.SessionEnd)
	assert.Equal(t, "15:30", cfg.Session.MarketClose)
	assert.Equal(t, 5*time.Minute, cfg.Session.TickInterval())
	assert.Equal(t, time.Minute, cfg.Session.IdleInterval())
	assert.Equal(t, time.Minute, cfg.Session.PollInterval())
	assert.Equal(t, 2, cfg.Fetch.Retries)
	assert.Equal(t, 2*time.Minute, cfg.Fetch.Backoff())
	assert.Equal(t, 18, cfg.Analysis.WindowBars)
}

func TestLoad_ExplicitValuesSurviveDefaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, `
session:
  tick_seconds: 60
trading:
  quantity: 50
  stop_loss_pct: -4
`))
	require.NoError(t, err)
	assert.Equal(t, time.Minute, cfg.Session.TickInterval())
	assert.Equal(t, 50, cfg.Trading.Quantity)
	assert.Equal(t, -4.0, cfg.Trading.StopLossPct)
}

func TestLoad_LiveModeRequiresAllCredentials(t *testing.T) {
	cases := []struct {
		name string
		body string
	}{
		{"no credentials", `
trading:
  mode: live
`},
		{"missing access key", `
trading:
  mode: live
broker:
  client_id: CID
  access_token: TOK
`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tc.body))
			assert.Error(t, err)
		})
	}

	t.Run("complete credentials pass", func(t *testing.T) {
		cfg, err := Load(writeConfig(t, `
trading:
  mode: live
broker:
  client_id: CID
  access_token: TOK
  access_key: KEY
`))
		require.NoError(t, err)
		assert.True(t, cfg.Trading.Live())
	})
}

func TestLoad_RejectsBadValues(t *testing.T) {
	cases := []struct {
		name string
		body string
	}{
		{"bad mode", "trading:\n  mode: hybrid\n"},
		{"bad clock", "session:\n  entry_start: noon\n"},
		{"bad timezone", "session:\n  timezone: Mars/Olympus\n"},
		{"positive stop loss", "trading:\n  stop_loss_pct: 5\n"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tc.body))
			assert.Error(t, err)
		})
	}
}

func TestClock(t *testing.T) {
	h, m := Clock("11:26")
	assert.Equal(t, 11, h)
	assert.Equal(t, 26, m)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.Error(t, err)
}
