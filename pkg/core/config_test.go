package core

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validConfig() MonitorConfig {
	cfg := MonitorConfig{
		Profile:    "alpha",
		ModelName:  "eurusd",
		Instrument: "eur-usd",
		Primary:    Account{ID: "101-001", Token: "a"},
		Secondary:  Account{ID: "101-002", Token: "b"},
	}
	cfg.ApplyDefaults()
	return cfg
}

func TestMonitorConfig_ApplyDefaults(t *testing.T) {
	cfg := validConfig()

	assert.Equal(t, "EUR_USD", cfg.Instrument)
	assert.Equal(t, DefaultEnvironment, cfg.Environment)
	assert.Equal(t, DefaultLossTriggerPips, cfg.LossTriggerPips)
	assert.Equal(t, DefaultProfitTriggerPips, cfg.ProfitTriggerPips)
	assert.Equal(t, DefaultHedgeMultiplier, cfg.HedgeMultiplier)
	assert.Equal(t, DefaultEMAShortPeriod, cfg.EMAShortPeriod)
	assert.Equal(t, DefaultEMALongPeriod, cfg.EMALongPeriod)
	assert.Equal(t, DefaultPipDiffThreshold, cfg.PipDiffThreshold)
	assert.Equal(t, DefaultTakeProfitPips, cfg.TakeProfitPips)
	assert.Equal(t, int64(DefaultTradeUnits), cfg.TradeUnits)
	assert.Equal(t, TimeframeM15, cfg.TrendTimeframe)
	assert.Nil(t, cfg.StopLossPips)

	explicit := MonitorConfig{LossTriggerPips: -5, HedgeMultiplier: 1.5}
	explicit.ApplyDefaults()
	assert.Equal(t, -5.0, explicit.LossTriggerPips)
	assert.Equal(t, 1.5, explicit.HedgeMultiplier)
}

func TestMonitorConfig_Validate(t *testing.T) {
	require.NoError(t, validConfig().Validate())

	negative := -1.0
	tt := []struct {
		name   string
		mutate func(*MonitorConfig)
	}{
		{"missing model", func(c *MonitorConfig) { c.ModelName = "" }},
		{"missing instrument", func(c *MonitorConfig) { c.Instrument = "" }},
		{"missing primary", func(c *MonitorConfig) { c.Primary.ID = "" }},
		{"positive loss trigger", func(c *MonitorConfig) { c.LossTriggerPips = 5 }},
		{"negative multiplier", func(c *MonitorConfig) { c.HedgeMultiplier = -2 }},
		{"zero period", func(c *MonitorConfig) { c.EMALongPeriod = 0 }},
		{"negative stop loss", func(c *MonitorConfig) { c.StopLossPips = &negative }},
	}

	for _, tc := range tt {
		t.Run(tc.name, func(t *testing.T) {
			cfg := validConfig()
			tc.mutate(&cfg)
			require.ErrorIs(t, cfg.Validate(), ErrConfigMissing)
		})
	}
}

func TestMonitorConfig_ValidateAccess(t *testing.T) {
	cfg := validConfig()
	require.NoError(t, cfg.ValidateAccess(MonitorPrimary))
	require.NoError(t, cfg.ValidateAccess(MonitorSecondary))

	cfg.Secondary.Token = ""
	require.ErrorIs(t, cfg.ValidateAccess(MonitorPrimary), ErrNoAccessToken)
	require.ErrorIs(t, cfg.ValidateAccess(MonitorSecondary), ErrNoAccessToken)

	cfg.Secondary.ID = ""
	require.ErrorIs(t, cfg.ValidateAccess(MonitorPrimary), ErrConfigMissing)
}

func TestMonitorConfig_PairFor(t *testing.T) {
	cfg := validConfig()
	cfg.CronPrimary = "*/5 * * * *"
	cfg.CronSecondary = "*/10 * * * *"

	own, hedge := cfg.PairFor(MonitorPrimary)
	assert.Equal(t, "101-001", own.ID)
	assert.Equal(t, "101-002", hedge.ID)

	own, hedge = cfg.PairFor(MonitorSecondary)
	assert.Equal(t, "101-002", own.ID)
	assert.Equal(t, "101-001", hedge.ID)

	assert.Equal(t, "*/5 * * * *", cfg.CronFor(MonitorPrimary))
	assert.Equal(t, "*/10 * * * *", cfg.CronFor(MonitorSecondary))
	assert.Equal(t, "alpha/eurusd", cfg.Name())
}

func TestNormalizeInstrument(t *testing.T) {
	assert.Equal(t, "EUR_USD", NormalizeInstrument(" eur-usd "))
	assert.Equal(t, "GBP_JPY", NormalizeInstrument("GBP_JPY"))
}
