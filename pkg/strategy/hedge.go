package strategy

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"sync"
	"time"

	"github.com/raykavin/hedgerun/pkg/core"
	"github.com/raykavin/hedgerun/pkg/logger"
	"github.com/raykavin/hedgerun/pkg/order"
	"golang.org/x/sync/singleflight"
)

const defaultCallTimeout = 15 * time.Second

// HedgeEngine protects a primary position by opening an opposing position on the
// hedge account, then closes both legs once the combined P/L reaches the target.
//
// No state is kept between ticks. Whether a pair is hedged is read from the live
// positions on every evaluation, so manual corrections on the broker are picked up.
// Ticks for the same account pair and instrument never overlap. A tick for a side
// that is already in flight joins it; a tick for the other side waits its turn.
type HedgeEngine struct {
	exchange    core.Exchange
	controller  *order.Controller
	notifier    core.Notifier
	log         logger.Logger
	callTimeout time.Duration
	inflight    singleflight.Group
	pairs       sync.Map
}

// HedgeOption configures a HedgeEngine
type HedgeOption func(*HedgeEngine)

// WithHedgeCallTimeout bounds every data call made during a tick
func WithHedgeCallTimeout(timeout time.Duration) HedgeOption {
	return func(e *HedgeEngine) {
		if timeout > 0 {
			e.callTimeout = timeout
		}
	}
}

// NewHedgeEngine creates a hedge engine reading positions and prices from exchange
// and sending mutations through controller
func NewHedgeEngine(exchange core.Exchange, controller *order.Controller, notifier core.Notifier,
	log logger.Logger, options ...HedgeOption) *HedgeEngine {

	engine := &HedgeEngine{
		exchange:    exchange,
		controller:  controller,
		notifier:    notifier,
		log:         log,
		callTimeout: defaultCallTimeout,
	}

	for _, option := range options {
		option(engine)
	}

	return engine
}

// PipsLoss expresses the unrealized P/L of a position per unit, in pips
func PipsLoss(position core.Position) float64 {
	units := position.AbsUnits()
	if units == 0 {
		return 0
	}
	return core.PriceToPips(position.UnrealizedPL / float64(units))
}

// HedgeUnits sizes the hedge leg: multiplier times the primary size, rounded,
// signed for the side opposite to the primary
func HedgeUnits(primary core.Position, multiplier float64) int64 {
	units := int64(math.Round(float64(primary.AbsUnits()) * multiplier))
	return primary.Side().Opposite().SignedUnits(units)
}

// CloseTriggered reports whether the combined P/L reached the profit target.
// The threshold is inclusive.
func CloseTriggered(combined, profitTrigger float64) bool {
	return combined >= profitTrigger
}

// Evaluate decides what to do with a pair of positions. It reads momentum and
// pricing when a hedge is considered but never changes anything on the broker.
func (e *HedgeEngine) Evaluate(ctx context.Context, cfg core.MonitorConfig, side core.MonitorSide,
	primary, hedge *core.Position) (core.HedgeAction, error) {

	if primary == nil {
		return core.HedgeAction{Kind: core.ActionNoOp, Reason: "no primary position"}, nil
	}

	if hedge != nil {
		combined := primary.UnrealizedPL + hedge.UnrealizedPL
		if CloseTriggered(combined, cfg.ProfitTriggerPips) {
			return core.HedgeAction{
				Kind:     core.ActionCloseBoth,
				Combined: combined,
				Reason:   fmt.Sprintf("combined P/L %.2f reached %.2f", combined, cfg.ProfitTriggerPips),
			}, nil
		}
		return core.HedgeAction{
			Kind:     core.ActionNoOp,
			Combined: combined,
			Reason:   fmt.Sprintf("combined P/L %.2f below %.2f", combined, cfg.ProfitTriggerPips),
		}, nil
	}

	pipsLoss := PipsLoss(*primary)
	action := core.HedgeAction{Kind: core.ActionNoOp, PipsLoss: pipsLoss}
	if pipsLoss > cfg.LossTriggerPips {
		action.Reason = fmt.Sprintf("loss %.2f pips above trigger %.2f", pipsLoss, cfg.LossTriggerPips)
		return action, nil
	}

	own, hedgeAccount := cfg.PairFor(side)
	hedgeSide := primary.Side().Opposite()

	momentum, err := FetchMomentum(ctx, e.exchange, own, cfg.Instrument, e.callTimeout)
	if err != nil {
		action.Reason = "momentum unavailable"
		return action, err
	}

	if !ValidateMomentum(momentum, hedgeSide) {
		action.Reason = fmt.Sprintf("reversal to %s not confirmed: %s", hedgeSide, momentum)
		return action, nil
	}

	units := HedgeUnits(*primary, cfg.HedgeMultiplier)
	if units == 0 {
		action.Reason = "hedge size rounds to zero"
		return action, nil
	}

	callCtx, cancel := context.WithTimeout(ctx, e.callTimeout)
	defer cancel()

	pricing, err := e.exchange.Pricing(callCtx, hedgeAccount, cfg.Instrument)
	if err != nil {
		action.Reason = "pricing unavailable"
		return action, dataUnavailable(err, "%s pricing", cfg.Instrument)
	}

	entry := pricing.EntryFor(hedgeSide)
	action.Kind = core.ActionPlaceHedge
	action.Reason = fmt.Sprintf("loss %.2f pips with confirmed reversal: %s", pipsLoss, momentum)
	action.Order = &core.MarketOrder{
		Instrument: cfg.Instrument,
		Side:       hedgeSide,
		Units:      units,
		EntryPrice: entry,
		StopLoss:   core.StopLossPrice(hedgeSide, entry, cfg.StopLossPips),
	}

	return action, nil
}

// Run performs one tick for a monitor side: read both legs, decide, execute and alert
func (e *HedgeEngine) Run(ctx context.Context, cfg core.MonitorConfig, side core.MonitorSide) (core.HedgeAction, error) {
	log := e.log.WithFields(map[string]any{"model": cfg.Name(), "side": side})

	if err := cfg.Validate(); err != nil {
		log.WithError(err).Warn("skipping hedge cycle")
		return core.HedgeAction{Kind: core.ActionNoOp, Reason: "invalid configuration"}, err
	}
	if err := cfg.ValidateAccess(side); err != nil {
		log.WithError(err).Warn("skipping hedge cycle")
		return core.HedgeAction{Kind: core.ActionNoOp, Reason: "missing credentials"}, err
	}

	own, hedgeAccount := cfg.PairFor(side)
	pair := pairKey(own.ID, hedgeAccount.ID, cfg.Instrument)
	key := pair + "|" + string(side)

	result, err, shared := e.inflight.Do(key, func() (any, error) {
		unlock, err := e.lockPair(ctx, pair)
		if err != nil {
			return core.HedgeAction{Kind: core.ActionNoOp, Reason: "cancelled waiting for pair"}, err
		}
		defer unlock()

		return e.tick(ctx, cfg, side, log)
	})
	if shared {
		log.Debugf("hedge evaluation for %s shared with an overlapping tick", key)
	}

	action, _ := result.(core.HedgeAction)
	return action, err
}

func (e *HedgeEngine) tick(ctx context.Context, cfg core.MonitorConfig, side core.MonitorSide,
	log logger.Logger) (core.HedgeAction, error) {

	own, hedgeAccount := cfg.PairFor(side)

	primary, err := e.openTrade(ctx, own, cfg.Instrument)
	if err != nil {
		e.alert(ctx, cfg, side, core.SeverityWarning, "⚠️ Could not read primary trade: %v", err)
		return core.HedgeAction{Kind: core.ActionNoOp, Reason: "primary unavailable"}, err
	}

	hedge, err := e.openTrade(ctx, hedgeAccount, cfg.Instrument)
	if err != nil {
		e.alert(ctx, cfg, side, core.SeverityWarning, "⚠️ Could not read hedge trade: %v", err)
		return core.HedgeAction{Kind: core.ActionNoOp, Reason: "hedge unavailable"}, err
	}

	action, err := e.Evaluate(ctx, cfg, side, primary, hedge)
	if err != nil {
		e.alert(ctx, cfg, side, core.SeverityWarning, "⚠️ Data fetch error, skipping validation: %v", err)
		return action, err
	}

	log.Infof("hedge decision: %s", action)

	switch action.Kind {
	case core.ActionPlaceHedge:
		return e.placeHedge(ctx, cfg, side, hedgeAccount, action)
	case core.ActionCloseBoth:
		return action, e.closeBoth(ctx, cfg, side, own, hedgeAccount, *primary, *hedge)
	}

	switch {
	case hedge != nil && primary != nil:
		e.alert(ctx, cfg, side, core.SeverityInfo, "📈 Combined P/L: %.2f", action.Combined)
	case primary != nil && action.PipsLoss <= cfg.LossTriggerPips:
		e.alert(ctx, cfg, side, core.SeverityInfo, "🔎 Hedge on hold at %.2f pips: %s", action.PipsLoss, action.Reason)
	}

	return action, nil
}

// placeHedge checks the hedge account once more right before placing, so a hedge
// that appeared since the positions were read is never doubled
func (e *HedgeEngine) placeHedge(ctx context.Context, cfg core.MonitorConfig, side core.MonitorSide,
	hedgeAccount core.Account, action core.HedgeAction) (core.HedgeAction, error) {

	existing, err := e.openTrade(ctx, hedgeAccount, cfg.Instrument)
	if err != nil {
		e.alert(ctx, cfg, side, core.SeverityWarning, "⚠️ Hedge NOT placed, could not re-check hedge account: %v", err)
		return core.HedgeAction{Kind: core.ActionNoOp, Reason: "hedge re-check failed"}, err
	}

	if existing != nil {
		e.alert(ctx, cfg, side, core.SeverityWarning, "⚠️ Hedge NOT placed: trade already open on %s.", cfg.Instrument)
		return core.HedgeAction{Kind: core.ActionNoOp, PipsLoss: action.PipsLoss, Reason: "hedge already open"}, nil
	}

	if _, err := e.controller.PlaceMarketOrder(ctx, cfg, hedgeAccount, *action.Order); err != nil {
		e.alert(ctx, cfg, side, core.SeverityError, "❌ Hedge order failed: %v", err)
		return action, err
	}

	stopLoss := "None"
	if action.Order.StopLoss != nil {
		stopLoss = fmt.Sprintf("%.5f", *action.Order.StopLoss)
	}

	e.alert(ctx, cfg, side, core.SeverityInfo, "🔄 Hedge placed: %s %d units with SL %s",
		action.Order.Side, abs(action.Order.Units), stopLoss)
	e.alert(ctx, cfg, side, core.SeverityInfo, "🛡️ Hedge triggered at %.2f pips loss.", action.PipsLoss)

	return action, nil
}

// closeBoth closes the primary then the hedge leg. The second close is attempted
// even when the first fails.
func (e *HedgeEngine) closeBoth(ctx context.Context, cfg core.MonitorConfig, side core.MonitorSide,
	own, hedgeAccount core.Account, primary, hedge core.Position) error {

	var errs []error

	if _, err := e.controller.CloseTrade(ctx, cfg, own, primary); err != nil {
		e.alert(ctx, cfg, side, core.SeverityError, "❌ Failed to close primary trade %s: %v", primary.TradeID, err)
		errs = append(errs, err)
	}

	if _, err := e.controller.CloseTrade(ctx, cfg, hedgeAccount, hedge); err != nil {
		e.alert(ctx, cfg, side, core.SeverityError, "❌ Failed to close hedge trade %s: %v", hedge.TradeID, err)
		errs = append(errs, err)
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}

	e.alert(ctx, cfg, side, core.SeverityInfo, "🏁 Profit target hit (%.2f). Trades closed.",
		primary.UnrealizedPL+hedge.UnrealizedPL)
	return nil
}

func (e *HedgeEngine) openTrade(ctx context.Context, account core.Account, instrument string) (*core.Position, error) {
	callCtx, cancel := context.WithTimeout(ctx, e.callTimeout)
	defer cancel()

	position, err := e.exchange.OpenTrade(callCtx, account, instrument)
	if err != nil {
		return nil, dataUnavailable(err, "open trade on %s", account.ID)
	}
	return position, nil
}

func (e *HedgeEngine) alert(ctx context.Context, cfg core.MonitorConfig, side core.MonitorSide,
	severity core.Severity, format string, args ...any) {

	alert := core.NewAlert(cfg, severity, format, args...)
	alert.Model = fmt.Sprintf("%s (%s)", cfg.ModelName, side)
	e.notifier.Notify(ctx, alert)
}

// lockPair waits until no other tick holds the pair
func (e *HedgeEngine) lockPair(ctx context.Context, pair string) (func(), error) {
	value, _ := e.pairs.LoadOrStore(pair, make(chan struct{}, 1))
	slot := value.(chan struct{})

	select {
	case slot <- struct{}{}:
		return func() { <-slot }, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// pairKey identifies a hedge pair regardless of which side is watching it, so the
// primary and secondary monitors of one configuration are serialized together
func pairKey(accountA, accountB, instrument string) string {
	if accountB < accountA {
		accountA, accountB = accountB, accountA
	}
	return strings.Join([]string{accountA, accountB, instrument}, "|")
}

func abs(v int64) int64 {
	if v < 0 {
		return -v
	}
	return v
}
