package hedgerun

import (
	"context"
	"testing"
	"time"

	"github.com/raykavin/hedgerun/pkg/core"
	"github.com/raykavin/hedgerun/pkg/exchange"
	"github.com/raykavin/hedgerun/pkg/logger/zerolog"
	"github.com/raykavin/hedgerun/pkg/scheduler"
	"github.com/raykavin/hedgerun/pkg/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newBot(t *testing.T, options ...Option) (*HedgeRun, *exchange.PaperBroker, *storage.Store) {
	t.Helper()

	store, err := storage.FromMemory()
	require.NoError(t, err)

	broker := exchange.NewPaperBroker(zerolog.Nop())
	options = append([]Option{
		WithLogger(zerolog.Nop()),
		WithStorage(store),
		WithExchange("Practice", broker),
	}, options...)

	bot, err := New(core.Settings{Username: "ana", Workers: 2}, options...)
	require.NoError(t, err)
	return bot, broker, store
}

func TestNew_RequiresExchange(t *testing.T) {
	store, err := storage.FromMemory()
	require.NoError(t, err)
	defer store.Close()

	_, err = New(core.Settings{}, WithStorage(store), WithLogger(zerolog.Nop()))
	require.Error(t, err)
}

func TestHedgeRun_RoutesByEnvironment(t *testing.T) {
	bot, broker, store := newBot(t)
	defer store.Close()

	broker.SetPosition(core.Position{AccountID: "101-001", Instrument: "EUR_USD", Units: 1000, UnrealizedPL: -0.5})

	cfg := core.MonitorConfig{
		Profile:    "alpha",
		ModelName:  "eurusd",
		Instrument: "EUR_USD",
		Primary:    core.Account{ID: "101-001", Token: "t1"},
		Secondary:  core.Account{ID: "101-002", Token: "t2"},
	}
	cfg.ApplyDefaults()

	action, err := bot.hedges.Run(context.Background(), cfg, core.MonitorPrimary)
	require.NoError(t, err)
	assert.Equal(t, core.ActionNoOp, action.Kind)

	cfg.Environment = "live"
	_, err = bot.hedges.Run(context.Background(), cfg, core.MonitorPrimary)
	require.ErrorIs(t, err, core.ErrConfigMissing)

	_, err = bot.entries.Run(context.Background(), cfg)
	require.ErrorIs(t, err, core.ErrConfigMissing)
}

func TestHedgeRun_Controls(t *testing.T) {
	bot, _, store := newBot(t)
	defer store.Close()

	assert.Equal(t, scheduler.StatusRunning, bot.Status())
	bot.Pause()
	assert.Equal(t, scheduler.StatusPaused, bot.Status())
	bot.Resume()
	assert.Equal(t, scheduler.StatusRunning, bot.Status())
}

func TestHedgeRun_RunStopsWithContext(t *testing.T) {
	bot, _, _ := newBot(t)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- bot.Run(ctx) }()

	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("bot did not stop")
	}
}
