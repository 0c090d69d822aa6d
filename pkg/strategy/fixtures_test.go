package strategy

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/raykavin/hedgerun/pkg/core"
	"github.com/raykavin/hedgerun/pkg/exchange"
	"github.com/raykavin/hedgerun/pkg/logger/zerolog"
	"github.com/raykavin/hedgerun/pkg/order"
)

var (
	primaryAccount   = core.Account{ID: "101-001", Token: "primary-token"}
	secondaryAccount = core.Account{ID: "101-002", Token: "secondary-token"}
)

type recordingNotifier struct {
	mu     sync.Mutex
	alerts []core.Alert
}

func (r *recordingNotifier) Notify(_ context.Context, alert core.Alert) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.alerts = append(r.alerts, alert)
}

func (r *recordingNotifier) contains(text string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, alert := range r.alerts {
		if strings.Contains(alert.Message, text) {
			return true
		}
	}
	return false
}

func testConfig() core.MonitorConfig {
	cfg := core.MonitorConfig{
		Profile:    "alpha",
		ModelName:  "eurusd-hedge",
		Instrument: "EUR-USD",
		Status:     core.StatusActive,
		Primary:    primaryAccount,
		Secondary:  secondaryAccount,
	}
	cfg.ApplyDefaults()
	return cfg
}

func newPaper() *exchange.PaperBroker {
	return exchange.NewPaperBroker(zerolog.Nop())
}

// setMomentum stores one completed and one forming candle per timeframe, the
// completed one moving by the given number of pips
func setMomentum(broker *exchange.PaperBroker, m1, m5, m15 float64) {
	for timeframe, delta := range map[string]float64{
		core.TimeframeM1:  m1,
		core.TimeframeM5:  m5,
		core.TimeframeM15: m15,
	} {
		broker.SetCandles("EUR_USD", timeframe, []core.Candle{
			{Instrument: "EUR_USD", Timeframe: timeframe, Open: 1.1, Close: 1.1 + core.PipsToPrice(delta), Complete: true},
			{Instrument: "EUR_USD", Timeframe: timeframe, Open: 1.2, Close: 1.0},
		})
	}
}

// setTrend stores trend candles whose closes rise or fall steadily. Each candle
// body moves by step, so on M15 it also drives the M15 momentum.
func setTrend(broker *exchange.PaperBroker, timeframe string, count int, step float64) {
	candles := make([]core.Candle, count)
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	for i := range candles {
		price := 1.25 + float64(i)*step
		candles[i] = core.Candle{
			Instrument: "EUR_USD",
			Timeframe:  timeframe,
			Time:       start.Add(time.Duration(i) * 15 * time.Minute),
			Open:       price - step,
			Close:      price,
			Complete:   true,
		}
	}
	broker.SetCandles("EUR_USD", timeframe, candles)
}

func newController(broker core.Broker) *order.Controller {
	return order.NewController(broker, zerolog.Nop(), order.WithCallTimeout(time.Second))
}

func floatPtr(v float64) *float64 { return &v }
