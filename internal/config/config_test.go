package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleYAML = `
stats:
  lookback: 20
signal:
  z_entry: 2.0
  z_exit: 0.5
risk:
  max_daily_loss: 500
  max_consecutive_losses: 3
  cooldown_duration: 30m
  max_daily_trades: 20
  max_position_duration: 2h
execution:
  symbol: MES
  size: 1
  contract_multiplier: 5
calendar:
  weekly_close_day: friday
  weekly_close_at: "17:00"
  weekly_reopen_day: sunday
  weekly_reopen_at: "18:00"
  maintenance_start: "16:00"
  maintenance_end: "16:15"
  session_rollover_at: "17:00"
  holidays: ["2026-12-25"]
`

func writeYAML(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadParsesFullDocument(t *testing.T) {
	path := writeYAML(t, sampleYAML)
	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 20, cfg.Stats.Lookback)
	assert.Equal(t, "MES", cfg.Execution.Symbol)
	assert.Equal(t, 5.0, cfg.Execution.ContractMultiplier)
	assert.Equal(t, "stop_first", cfg.Backtest.Tiebreak) // default applied
	assert.Equal(t, 5, cfg.WalkForward.Folds)             // default applied
}

func TestLoadAppliesEnvOverrides(t *testing.T) {
	path := writeYAML(t, sampleYAML)
	t.Setenv("MEANREVERT_LOG_LEVEL", "debug")
	t.Setenv("MEANREVERT_BRIDGE_URL", "http://example.invalid")
	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "http://example.invalid", cfg.Execution.BridgeURL)
}

func TestLoadMissingSymbolFailsValidation(t *testing.T) {
	path := writeYAML(t, "execution:\n  size: 1\n")
	_, err := Load(path)
	assert.Error(t, err)
}

func TestCalendarDomainParsesWeekdaysAndTimes(t *testing.T) {
	path := writeYAML(t, sampleYAML)
	cfg, err := Load(path)
	require.NoError(t, err)
	cal, err := cfg.CalendarDomain()
	require.NoError(t, err)
	require.Len(t, cal.Holidays, 1)
	assert.Equal(t, 2026, cal.Holidays[0].Year)
	assert.Equal(t, 12, cal.Holidays[0].Month)
	assert.Equal(t, 25, cal.Holidays[0].Day)
}

func TestRiskDomainParsesDurations(t *testing.T) {
	path := writeYAML(t, sampleYAML)
	cfg, err := Load(path)
	require.NoError(t, err)
	rc, err := cfg.RiskDomain()
	require.NoError(t, err)
	assert.Equal(t, 30*60*1e9, float64(rc.CooldownDuration))
}

func TestLoadRejectsBadTiebreak(t *testing.T) {
	path := writeYAML(t, sampleYAML+"backtest:\n  tiebreak: sideways\n")
	_, err := Load(path)
	assert.Error(t, err)
}
