package order

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/raykavin/hedgerun/pkg/core"
	"github.com/raykavin/hedgerun/pkg/exchange"
	"github.com/raykavin/hedgerun/pkg/logger/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memoryJournal struct {
	entries []core.JournalEntry
	fail    bool
}

func (j *memoryJournal) Record(entry *core.JournalEntry) error {
	if j.fail {
		return errors.New("disk full")
	}
	entry.ID = int64(len(j.entries) + 1)
	j.entries = append(j.entries, *entry)
	return nil
}

func (j *memoryJournal) Entries(filters ...core.JournalFilter) ([]core.JournalEntry, error) {
	return j.entries, nil
}

var (
	account = core.Account{ID: "101-001", Token: "token"}
	config  = core.MonitorConfig{Profile: "alpha", ModelName: "eurusd", Instrument: "EUR_USD"}
	fixed   = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
)

func newController(broker core.Broker, journal core.Journal) *Controller {
	controller := NewController(broker, zerolog.Nop(), WithCallTimeout(50*time.Millisecond), WithJournal(journal))
	controller.now = func() time.Time { return fixed }
	return controller
}

func TestController_PlaceMarketOrder(t *testing.T) {
	broker := exchange.NewPaperBroker(zerolog.Nop())
	journal := &memoryJournal{}
	controller := newController(broker, journal)

	result, err := controller.PlaceMarketOrder(context.Background(), config, account, core.MarketOrder{
		Instrument: "EUR_USD",
		Side:       core.SideTypeBuy,
		Units:      1000,
		EntryPrice: 1.1002,
	})
	require.NoError(t, err)
	assert.True(t, result.Accepted)

	require.Len(t, journal.entries, 1)
	entry := journal.entries[0]
	assert.Equal(t, core.JournalPlace, entry.Kind)
	assert.Equal(t, fixed, entry.Time)
	assert.Equal(t, "alpha", entry.Profile)
	assert.Equal(t, "eurusd", entry.Model)
	assert.Equal(t, account.ID, entry.AccountID)
	assert.Equal(t, int64(1000), entry.Units)
	assert.Equal(t, result.OrderID, entry.Reference)
	assert.True(t, entry.Accepted)
	assert.Empty(t, entry.Error)
}

func TestController_Rejected(t *testing.T) {
	broker := exchange.NewPaperBroker(zerolog.Nop())
	journal := &memoryJournal{}
	controller := newController(broker, journal)

	_, err := controller.PlaceMarketOrder(context.Background(), config, account, core.MarketOrder{Instrument: "EUR_USD"})
	require.ErrorIs(t, err, core.ErrOrderRejected)
	assert.Contains(t, err.Error(), "UNITS_INVALID")

	_, err = controller.CancelOrder(context.Background(), config, account, core.PendingOrder{ID: "9", Instrument: "EUR_USD"})
	require.ErrorIs(t, err, core.ErrOrderRejected)

	_, err = controller.CloseTrade(context.Background(), config, account, core.Position{TradeID: "7", Instrument: "EUR_USD"})
	require.ErrorIs(t, err, core.ErrOrderRejected)

	require.Len(t, journal.entries, 3)
	for _, entry := range journal.entries {
		assert.False(t, entry.Accepted)
		assert.NotEmpty(t, entry.Error)
	}
	assert.Equal(t, "9", journal.entries[1].Reference)
	assert.Equal(t, "7", journal.entries[2].Reference)
}

func TestController_CancelAndClose(t *testing.T) {
	broker := exchange.NewPaperBroker(zerolog.Nop())
	broker.AddPendingOrder(core.PendingOrder{ID: "42", AccountID: account.ID, Instrument: "EUR_USD", Price: 1.105})
	broker.SetPosition(core.Position{TradeID: "7", AccountID: account.ID, Instrument: "EUR_USD", Units: -500})
	journal := &memoryJournal{}
	controller := newController(broker, journal)

	_, err := controller.CancelOrder(context.Background(), config, account, core.PendingOrder{ID: "42", Instrument: "EUR_USD"})
	require.NoError(t, err)

	_, err = controller.CloseTrade(context.Background(), config, account, core.Position{TradeID: "7", Instrument: "EUR_USD", Units: -500})
	require.NoError(t, err)

	assert.Empty(t, broker.Trades(account.ID))
	require.Len(t, journal.entries, 2)
	assert.Equal(t, core.JournalCancel, journal.entries[0].Kind)
	assert.Equal(t, core.JournalClose, journal.entries[1].Kind)
	assert.Equal(t, int64(-500), journal.entries[1].Units)
}

func TestController_CallTimeout(t *testing.T) {
	broker := exchange.NewPaperBroker(zerolog.Nop(), exchange.WithHook(exchange.OperationPlaceOrder,
		func(ctx context.Context, _ string) error {
			<-ctx.Done()
			return ctx.Err()
		}))
	journal := &memoryJournal{}
	controller := newController(broker, journal)

	_, err := controller.PlaceMarketOrder(context.Background(), config, account, core.MarketOrder{
		Instrument: "EUR_USD", Side: core.SideTypeBuy, Units: 1000,
	})
	require.ErrorIs(t, err, context.DeadlineExceeded)
	require.Len(t, journal.entries, 1)
	assert.False(t, journal.entries[0].Accepted)
	assert.Empty(t, broker.Placed(account.ID))
}

func TestController_JournalFailureKeepsResult(t *testing.T) {
	broker := exchange.NewPaperBroker(zerolog.Nop())
	controller := newController(broker, &memoryJournal{fail: true})

	result, err := controller.PlaceMarketOrder(context.Background(), config, account, core.MarketOrder{
		Instrument: "EUR_USD", Side: core.SideTypeBuy, Units: 1000,
	})
	require.NoError(t, err)
	assert.True(t, result.Accepted)
}
