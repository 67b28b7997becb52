package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultsValidateInMonitorMode(t *testing.T) {
	cfg := Defaults()
	cfg.Mode = "monitor"
	assert.NoError(t, cfg.Validate())
}

func TestDefaultsRequireCredentialsInTradeMode(t *testing.T) {
	cfg := Defaults()
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "btc38: access_key")
	assert.Contains(t, err.Error(), "dex: account")
}

func TestValidateCollectsAllErrors(t *testing.T) {
	cfg := Defaults()
	cfg.Mode = "backtest"
	cfg.LogLevel = "verbose"
	cfg.Engine.ProfitThreshold = 0
	cfg.Fetcher.PollInterval = duration{0}

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown mode")
	assert.Contains(t, err.Error(), "unknown log_level")
	assert.Contains(t, err.Error(), "profit_threshold")
	assert.Contains(t, err.Error(), "poll_interval")
}

func TestValidatePartialEmailConfig(t *testing.T) {
	cfg := Defaults()
	cfg.Mode = "monitor"
	cfg.Notify.EmailUsername = "trader@example.com"

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "set together")
}

func TestLoadMergesFileOverDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	raw := `
mode = "monitor"

[engine]
profit_threshold = 0.03
tick_interval = "250ms"

[btc38]
access_key = "ak"
`
	require.NoError(t, os.WriteFile(path, []byte(raw), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "monitor", cfg.Mode)
	assert.Equal(t, 0.03, cfg.Engine.ProfitThreshold)
	assert.Equal(t, 250*time.Millisecond, cfg.Engine.TickInterval.Duration)
	assert.Equal(t, "ak", cfg.Btc38.AccessKey)

	// Untouched fields keep their defaults.
	assert.Equal(t, 500.0, cfg.Engine.MinTradeVolume)
	assert.Equal(t, 10*time.Second, cfg.Fetcher.LagTolerance.Duration)
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("MARKETMAKER_ENGINE_PROFIT_THRESHOLD", "0.05")
	t.Setenv("MARKETMAKER_DEX_WALLET_PASSWORD", "hunter2")
	t.Setenv("MARKETMAKER_FETCHER_LAG_TOLERANCE", "30s")
	t.Setenv("MARKETMAKER_NOTIFY_EVENTS", "trade_failed, exposure")
	t.Setenv("MARKETMAKER_BTC38_ENABLED", "false")

	cfg := Defaults()
	applyEnvOverrides(&cfg)

	assert.Equal(t, 0.05, cfg.Engine.ProfitThreshold)
	assert.Equal(t, "hunter2", cfg.Dex.WalletPassword)
	assert.Equal(t, 30*time.Second, cfg.Fetcher.LagTolerance.Duration)
	assert.Equal(t, []string{"trade_failed", "exposure"}, cfg.Notify.Events)
	assert.False(t, cfg.Btc38.Enabled)
}
