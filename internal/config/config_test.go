package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/raykavin/hedgerun/pkg/core"
	"github.com/raykavin/hedgerun/pkg/exchange/oanda"
	"github.com/raykavin/hedgerun/pkg/storage"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func load(t *testing.T, env map[string]string) (*AppConfig, error) {
	t.Helper()
	for key, value := range env {
		t.Setenv(key, value)
	}

	v := viper.New()
	v.AutomaticEnv()
	setDefaults(v)
	return fromViper(v)
}

func TestLoad_Defaults(t *testing.T) {
	config, err := load(t, map[string]string{"HEDGERUN_USERNAME": "ana"})
	require.NoError(t, err)

	assert.Equal(t, "ana", config.Username)
	assert.Equal(t, DefaultStoragePath, config.StoragePath)
	assert.Equal(t, 15*time.Second, config.CallTimeout)
	assert.Equal(t, time.Second, config.EntryConfigDelay)
	assert.Equal(t, 5*time.Minute, config.EntryPassInterval)
	assert.Equal(t, 8, config.Workers)
	assert.False(t, config.Paper)
	assert.Equal(t, oanda.PracticeURL, config.BaseURL("practice"))
	assert.Equal(t, oanda.LiveURL, config.BaseURL("LIVE"))
	assert.Empty(t, config.Telegram.Users)
}

func TestLoad_Overrides(t *testing.T) {
	config, err := load(t, map[string]string{
		"HEDGERUN_ENTRY_PASS_INTERVAL": "1h30m",
		"HEDGERUN_CALL_TIMEOUT":        "1d",
		"HEDGERUN_PAPER":               "true",
		"TELEGRAM_ENABLED":             "true",
		"TELEGRAM_TOKEN":               "bot-token",
		"TELEGRAM_USERS":               "123, 456,",
	})
	require.NoError(t, err)

	assert.Equal(t, 90*time.Minute, config.EntryPassInterval)
	assert.Equal(t, 24*time.Hour, config.CallTimeout)
	assert.True(t, config.Paper)
	assert.Equal(t, []int{123, 456}, config.Telegram.Users)
}

func TestLoad_Invalid(t *testing.T) {
	tt := []struct {
		name string
		env  map[string]string
	}{
		{"duration", map[string]string{"HEDGERUN_CALL_TIMEOUT": "soon"}},
		{"telegram user", map[string]string{"TELEGRAM_USERS": "ana"}},
		{"telegram without token", map[string]string{"TELEGRAM_ENABLED": "true", "TELEGRAM_USERS": "1"}},
		{"mail without server", map[string]string{"SMTP_ENABLED": "true"}},
		{"webhook without url", map[string]string{"NOTIFICATION_API_ENABLED": "true"}},
		{"workers", map[string]string{"HEDGERUN_WORKERS": "0"}},
	}

	for _, tc := range tt {
		t.Run(tc.name, func(t *testing.T) {
			_, err := load(t, tc.env)
			require.Error(t, err)
		})
	}
}

const seedYAML = `
profiles:
  - name: alpha
    users: [ana, bruno]
accounts:
  - profile: alpha
    id: 101-001
    token: token-a
  - profile: alpha
    id: 101-002
    token: token-b
configs:
  - profile: alpha
    model_name: eurusd-hedge
    instrument: EUR-USD
    primary:
      id: 101-001
    secondary:
      id: 101-002
    stop_loss_pips: 15
    cron_schedule_primary: "*/5 * * * *"
  - profile: alpha
    model_name: broken
    instrument: GBP_USD
`

func TestSeed_Import(t *testing.T) {
	path := filepath.Join(t.TempDir(), "seed.yaml")
	require.NoError(t, os.WriteFile(path, []byte(seedYAML), 0o600))

	seed, err := LoadSeed(path)
	require.NoError(t, err)
	require.Len(t, seed.Configs, 2)

	store, err := storage.FromMemory()
	require.NoError(t, err)
	defer store.Close()

	imported, err := seed.Import(store)
	require.ErrorIs(t, err, core.ErrConfigMissing)
	assert.Equal(t, 4, imported)

	profiles, err := store.ProfilesForUser(context.Background(), "bruno")
	require.NoError(t, err)
	assert.Equal(t, []string{"alpha"}, profiles)

	cfg, err := store.ActiveConfig(context.Background(), "alpha", "eurusd-hedge")
	require.NoError(t, err)
	assert.Equal(t, "EUR_USD", cfg.Instrument)
	assert.Equal(t, "token-a", cfg.Primary.Token)
	assert.Equal(t, "token-b", cfg.Secondary.Token)
	require.NotNil(t, cfg.StopLossPips)
	assert.Equal(t, 15.0, *cfg.StopLossPips)
	assert.Equal(t, "*/5 * * * *", cfg.CronPrimary)
	assert.Equal(t, core.DefaultHedgeMultiplier, cfg.HedgeMultiplier)
}

func TestSeed_MissingFile(t *testing.T) {
	_, err := LoadSeed(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
}
