package strategy

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/raykavin/hedgerun/pkg/core"
	"github.com/raykavin/hedgerun/pkg/indicator"
	"github.com/raykavin/hedgerun/pkg/logger"
	"github.com/raykavin/hedgerun/pkg/order"
	"github.com/samber/lo"
)

// extraCandles is requested on top of the long EMA period so that a few incomplete
// or missing candles do not starve the warmup window
const extraCandles = 50

// EntryEngine opens a new position on the primary account when the EMA trend and
// the short-term momentum agree, and keeps resting orders close to the market.
type EntryEngine struct {
	exchange    core.Exchange
	controller  *order.Controller
	notifier    core.Notifier
	log         logger.Logger
	callTimeout time.Duration
	candleCount func(cfg core.MonitorConfig) int
}

// EntryOption configures an EntryEngine
type EntryOption func(*EntryEngine)

// WithEntryCallTimeout bounds every data call made during an evaluation
func WithEntryCallTimeout(timeout time.Duration) EntryOption {
	return func(e *EntryEngine) {
		if timeout > 0 {
			e.callTimeout = timeout
		}
	}
}

// WithCandleCount overrides the number of trend candles requested per evaluation
func WithCandleCount(count int) EntryOption {
	return func(e *EntryEngine) {
		if count > 0 {
			e.candleCount = func(core.MonitorConfig) int { return count }
		}
	}
}

// NewEntryEngine creates an entry engine for the given exchange
func NewEntryEngine(exchange core.Exchange, controller *order.Controller, notifier core.Notifier,
	log logger.Logger, options ...EntryOption) *EntryEngine {

	engine := &EntryEngine{
		exchange:    exchange,
		controller:  controller,
		notifier:    notifier,
		log:         log,
		callTimeout: defaultCallTimeout,
		candleCount: func(cfg core.MonitorConfig) int {
			return max(cfg.EMAShortPeriod, cfg.EMALongPeriod) + extraCandles
		},
	}

	for _, option := range options {
		option(engine)
	}

	return engine
}

// PipDistance returns the distance in pips between a resting order and the mid price.
// The result is rounded to six decimals so float noise cannot flip a threshold check.
func PipDistance(orderPrice, mid float64) float64 {
	return math.Round(core.PriceToPips(math.Abs(mid-orderPrice))*1e6) / 1e6
}

// Evaluate decides the entry action for a configuration. It reads candles, pricing,
// trades and orders of the primary account but never changes anything on the broker.
func (e *EntryEngine) Evaluate(ctx context.Context, cfg core.MonitorConfig) (core.EntryAction, error) {
	account := cfg.Primary
	action := core.EntryAction{Kind: core.ActionNoOp}

	closes, err := e.closes(ctx, cfg)
	if err != nil {
		action.Reason = "trend candles unavailable"
		return action, err
	}

	trend, shortEMA, longEMA, err := indicator.DetectTrend(closes, cfg.EMAShortPeriod, cfg.EMALongPeriod)
	if err != nil {
		action.Reason = "not enough history for trend"
		return action, err
	}
	action.Trend, action.ShortEMA, action.LongEMA = trend, shortEMA, longEMA

	momentum, err := FetchMomentum(ctx, e.exchange, account, cfg.Instrument, e.callTimeout)
	if err != nil {
		action.Reason = "momentum unavailable"
		return action, err
	}

	side, hasDirection := trend.Direction()
	action.Validated = hasDirection && ValidateMomentum(momentum, side)

	open, err := e.openTrade(ctx, account, cfg.Instrument)
	if err != nil {
		action.Reason = "open trade unavailable"
		return action, err
	}
	if open != nil {
		action.Reason = fmt.Sprintf("⏳ Open trade %s exists ➔ Skipping", open.TradeID)
		return action, nil
	}

	pending, err := e.pendingOrder(ctx, account, cfg.Instrument)
	if err != nil {
		action.Reason = "pending orders unavailable"
		return action, err
	}

	if pending == nil && !action.Validated {
		action.Reason = fmt.Sprintf("❌ Conditions failed ➔ %s\n%s", trend, momentum)
		return action, nil
	}

	pricing, err := e.pricing(ctx, account, cfg.Instrument)
	if err != nil {
		action.Reason = "pricing unavailable"
		return action, err
	}

	if pending != nil {
		action.PipDistance = PipDistance(pending.Price, pricing.Mid())
		if action.PipDistance < cfg.PipDiffThreshold {
			action.Reason = fmt.Sprintf("⏳ Pending order %s within pip threshold (%.1f pips) ➔ No action",
				pending.ID, action.PipDistance)
			return action, nil
		}

		action.Kind = core.ActionCancelAndReplace
		action.Cancel = pending
		if !action.Validated {
			action.Reason = fmt.Sprintf("stale order, no replacement: trend %s, %s", trend, momentum)
			return action, nil
		}
		action.Order = newEntryOrder(cfg, side, pricing)
		action.Reason = fmt.Sprintf("stale order replaced: %s", momentum)
		return action, nil
	}

	action.Kind = core.ActionPlaceOrder
	action.Order = newEntryOrder(cfg, side, pricing)
	action.Reason = fmt.Sprintf("trend %s confirmed: %s", trend, momentum)
	return action, nil
}

// Run evaluates a configuration and executes the decision on the primary account
func (e *EntryEngine) Run(ctx context.Context, cfg core.MonitorConfig) (core.EntryAction, error) {
	log := e.log.WithField("model", cfg.Name())

	if err := cfg.Validate(); err != nil {
		log.WithError(err).Warn("skipping entry cycle")
		return core.EntryAction{Kind: core.ActionNoOp, Reason: "invalid configuration"}, err
	}
	if !cfg.Primary.HasToken() {
		err := fmt.Errorf("%w: %s account %s", core.ErrNoAccessToken, cfg.Name(), cfg.Primary.ID)
		log.WithError(err).Warn("skipping entry cycle")
		return core.EntryAction{Kind: core.ActionNoOp, Reason: "missing credentials"}, err
	}

	action, err := e.Evaluate(ctx, cfg)
	switch {
	case errors.Is(err, core.ErrInsufficientHistory):
		e.alert(ctx, cfg, core.SeverityWarning, "⚠️ Not enough data to calculate EMA%d/EMA%d: %v",
			cfg.EMAShortPeriod, cfg.EMALongPeriod, err)
		return action, err
	case err != nil:
		e.alert(ctx, cfg, core.SeverityWarning, "⚠️ Data fetch error, skipping entry: %v", err)
		return action, err
	}

	log.Infof("entry decision: %s", action)
	e.alert(ctx, cfg, core.SeverityInfo, "📊 %s | EMA%d: %.5f | EMA%d: %.5f",
		action.Trend, cfg.EMAShortPeriod, action.ShortEMA, cfg.EMALongPeriod, action.LongEMA)

	switch action.Kind {
	case core.ActionPlaceOrder:
		return action, e.place(ctx, cfg, *action.Order)

	case core.ActionCancelAndReplace:
		if _, err := e.controller.CancelOrder(ctx, cfg, cfg.Primary, *action.Cancel); err != nil {
			e.alert(ctx, cfg, core.SeverityError, "❌ Failed to cancel order %s: %v", action.Cancel.ID, err)
			return action, err
		}
		e.alert(ctx, cfg, core.SeverityInfo, "🗑️ Cancelled order %s, %.1f pips away from the market.",
			action.Cancel.ID, action.PipDistance)
		if action.Order == nil {
			return action, nil
		}
		return action, e.place(ctx, cfg, *action.Order)

	default:
		e.alert(ctx, cfg, core.SeverityInfo, "%s", action.Reason)
		return action, nil
	}
}

func (e *EntryEngine) place(ctx context.Context, cfg core.MonitorConfig, marketOrder core.MarketOrder) error {
	if _, err := e.controller.PlaceMarketOrder(ctx, cfg, cfg.Primary, marketOrder); err != nil {
		e.alert(ctx, cfg, core.SeverityError, "❌ Entry order failed: %v", err)
		return err
	}
	e.alert(ctx, cfg, core.SeverityInfo, "✅ Order placed: %s", marketOrder)
	return nil
}

func newEntryOrder(cfg core.MonitorConfig, side core.SideType, pricing core.Pricing) *core.MarketOrder {
	entry := pricing.EntryFor(side)
	takeProfit := core.TakeProfitPrice(side, entry, cfg.TakeProfitPips)

	return &core.MarketOrder{
		Instrument: cfg.Instrument,
		Side:       side,
		Units:      side.SignedUnits(cfg.TradeUnits),
		EntryPrice: entry,
		StopLoss:   core.StopLossPrice(side, entry, cfg.StopLossPips),
		TakeProfit: &takeProfit,
	}
}

func (e *EntryEngine) closes(ctx context.Context, cfg core.MonitorConfig) (core.Series[float64], error) {
	callCtx, cancel := context.WithTimeout(ctx, e.callTimeout)
	defer cancel()

	candles, err := e.exchange.Candles(callCtx, cfg.Primary, cfg.Instrument, cfg.TrendTimeframe, e.candleCount(cfg))
	if err != nil {
		return nil, dataUnavailable(err, "%s %s candles", cfg.Instrument, cfg.TrendTimeframe)
	}

	complete := lo.FilterMap(candles, func(c core.Candle, _ int) (float64, bool) {
		return c.Close, c.Complete
	})
	return complete, nil
}

func (e *EntryEngine) openTrade(ctx context.Context, account core.Account, instrument string) (*core.Position, error) {
	callCtx, cancel := context.WithTimeout(ctx, e.callTimeout)
	defer cancel()

	position, err := e.exchange.OpenTrade(callCtx, account, instrument)
	if err != nil {
		return nil, dataUnavailable(err, "open trade on %s", account.ID)
	}
	return position, nil
}

// pendingOrder returns the first resting order on the instrument, if any
func (e *EntryEngine) pendingOrder(ctx context.Context, account core.Account, instrument string) (*core.PendingOrder, error) {
	callCtx, cancel := context.WithTimeout(ctx, e.callTimeout)
	defer cancel()

	orders, err := e.exchange.PendingOrders(callCtx, account)
	if err != nil {
		return nil, dataUnavailable(err, "pending orders on %s", account.ID)
	}

	pending, found := lo.Find(orders, func(o core.PendingOrder) bool {
		return o.Instrument == instrument
	})
	if !found {
		return nil, nil
	}
	return &pending, nil
}

func (e *EntryEngine) pricing(ctx context.Context, account core.Account, instrument string) (core.Pricing, error) {
	callCtx, cancel := context.WithTimeout(ctx, e.callTimeout)
	defer cancel()

	pricing, err := e.exchange.Pricing(callCtx, account, instrument)
	if err != nil {
		return core.Pricing{}, dataUnavailable(err, "%s pricing", instrument)
	}
	return pricing, nil
}

func (e *EntryEngine) alert(ctx context.Context, cfg core.MonitorConfig, severity core.Severity,
	format string, args ...any) {

	e.notifier.Notify(ctx, core.NewAlert(cfg, severity, format, args...))
}
