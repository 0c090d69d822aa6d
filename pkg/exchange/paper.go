// Package exchange provides brokers that do not reach a real brokerage: the paper
// broker used for dry runs and tests.
package exchange

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"sync/atomic"

	"github.com/raykavin/hedgerun/pkg/core"
	"github.com/raykavin/hedgerun/pkg/logger"
	"github.com/samber/lo"
)

// Operation names a broker call that can be hooked on the paper broker
type Operation string

const (
	OperationOpenTrade     Operation = "open_trade"
	OperationPendingOrders Operation = "pending_orders"
	OperationPlaceOrder    Operation = "place_order"
	OperationCancelOrder   Operation = "cancel_order"
	OperationCloseTrade    Operation = "close_trade"
	OperationCandles       Operation = "candles"
	OperationPricing       Operation = "pricing"
)

// Hook runs before an operation. A non-nil error fails the call. Hooks may block
// until the context is done.
type Hook func(ctx context.Context, accountID string) error

// PaperBroker simulates brokerage accounts in memory. Market orders fill immediately
// at the requested entry price and become open trades.
type PaperBroker struct {
	mu      sync.RWMutex
	counter atomic.Int64

	trades  map[string]map[string]*core.Position
	pending map[string][]core.PendingOrder
	placed  map[string][]core.MarketOrder
	candles map[string][]core.Candle
	pricing map[string]core.Pricing
	hooks   map[Operation]Hook

	feeder core.Feeder
	log    logger.Logger
}

// PaperOption configures a PaperBroker
type PaperOption func(*PaperBroker)

// WithDataFeed reads candles and pricing from a real feeder. Open trades are then
// marked to market on every read.
func WithDataFeed(feeder core.Feeder) PaperOption {
	return func(p *PaperBroker) {
		p.feeder = feeder
	}
}

// WithHook installs a hook for an operation
func WithHook(operation Operation, hook Hook) PaperOption {
	return func(p *PaperBroker) {
		p.hooks[operation] = hook
	}
}

// NewPaperBroker creates an empty paper broker
func NewPaperBroker(log logger.Logger, options ...PaperOption) *PaperBroker {
	broker := &PaperBroker{
		trades:  make(map[string]map[string]*core.Position),
		pending: make(map[string][]core.PendingOrder),
		placed:  make(map[string][]core.MarketOrder),
		candles: make(map[string][]core.Candle),
		pricing: make(map[string]core.Pricing),
		hooks:   make(map[Operation]Hook),
		log:     log,
	}

	for _, option := range options {
		option(broker)
	}

	return broker
}

func (p *PaperBroker) nextID() string {
	return strconv.FormatInt(p.counter.Add(1), 10)
}

func candleKey(instrument, timeframe string) string {
	return fmt.Sprintf("%s--%s", instrument, timeframe)
}

func (p *PaperBroker) hook(ctx context.Context, operation Operation, account string) error {
	p.mu.RLock()
	hook, ok := p.hooks[operation]
	p.mu.RUnlock()

	if !ok {
		return nil
	}
	return hook(ctx, account)
}

// SetHook replaces the hook of an operation. A nil hook removes it.
func (p *PaperBroker) SetHook(operation Operation, hook Hook) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if hook == nil {
		delete(p.hooks, operation)
		return
	}
	p.hooks[operation] = hook
}

// SetPricing sets the current bid and ask of an instrument
func (p *PaperBroker) SetPricing(pricing core.Pricing) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.pricing[pricing.Instrument] = pricing
}

// SetCandles replaces the candle history of an instrument and timeframe
func (p *PaperBroker) SetCandles(instrument, timeframe string, candles []core.Candle) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.candles[candleKey(instrument, timeframe)] = candles
}

// SetPosition opens or replaces the trade of an account on the position's instrument
func (p *PaperBroker) SetPosition(position core.Position) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if position.TradeID == "" {
		position.TradeID = p.nextID()
	}
	if p.trades[position.AccountID] == nil {
		p.trades[position.AccountID] = make(map[string]*core.Position)
	}
	p.trades[position.AccountID][position.Instrument] = &position
}

// AddPendingOrder rests an order on an account
func (p *PaperBroker) AddPendingOrder(order core.PendingOrder) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if order.ID == "" {
		order.ID = p.nextID()
	}
	p.pending[order.AccountID] = append(p.pending[order.AccountID], order)
}

// Placed returns the market orders filled on an account, oldest first
func (p *PaperBroker) Placed(accountID string) []core.MarketOrder {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return append([]core.MarketOrder(nil), p.placed[accountID]...)
}

// Trades returns the open trades of an account
func (p *PaperBroker) Trades(accountID string) []core.Position {
	p.mu.RLock()
	defer p.mu.RUnlock()

	return lo.MapToSlice(p.trades[accountID], func(_ string, position *core.Position) core.Position {
		return *position
	})
}

// OpenTrade returns the open trade of the account on the instrument, or nil
func (p *PaperBroker) OpenTrade(ctx context.Context, account core.Account, instrument string) (*core.Position, error) {
	if err := p.hook(ctx, OperationOpenTrade, account.ID); err != nil {
		return nil, err
	}

	p.mu.RLock()
	stored, ok := p.trades[account.ID][instrument]
	var position core.Position
	if ok {
		position = *stored
	}
	p.mu.RUnlock()

	if !ok {
		return nil, nil
	}

	if p.feeder != nil {
		pricing, err := p.feeder.Pricing(ctx, account, instrument)
		if err != nil {
			return nil, err
		}
		position.UnrealizedPL = markToMarket(position, pricing)
	}

	return &position, nil
}

// markToMarket values an open trade at the price it would close against
func markToMarket(position core.Position, pricing core.Pricing) float64 {
	exit := pricing.EntryFor(position.Side().Opposite())
	return float64(position.Units) * (exit - position.Price)
}

// PendingOrders returns the resting orders of an account
func (p *PaperBroker) PendingOrders(ctx context.Context, account core.Account) ([]core.PendingOrder, error) {
	if err := p.hook(ctx, OperationPendingOrders, account.ID); err != nil {
		return nil, err
	}

	p.mu.RLock()
	defer p.mu.RUnlock()
	return append([]core.PendingOrder(nil), p.pending[account.ID]...), nil
}

// PlaceMarketOrder fills the order at its entry price. A second order on an
// instrument that already has a trade is netted into it.
func (p *PaperBroker) PlaceMarketOrder(ctx context.Context, account core.Account,
	order core.MarketOrder) (core.OrderResult, error) {

	if err := p.hook(ctx, OperationPlaceOrder, account.ID); err != nil {
		return core.OrderResult{}, err
	}

	if order.Units == 0 {
		return core.OrderResult{Accepted: false, BrokerError: "UNITS_INVALID"}, nil
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	orderID := p.nextID()
	p.placed[account.ID] = append(p.placed[account.ID], order)

	if p.trades[account.ID] == nil {
		p.trades[account.ID] = make(map[string]*core.Position)
	}

	if existing, ok := p.trades[account.ID][order.Instrument]; ok {
		existing.Units += order.Units
		if existing.Units == 0 {
			delete(p.trades[account.ID], order.Instrument)
		}
		p.log.Infof("[PAPER] %s netted into trade %s on %s", order, existing.TradeID, account.ID)
		return core.OrderResult{Accepted: true, OrderID: orderID, TradeID: existing.TradeID}, nil
	}

	tradeID := p.nextID()
	p.trades[account.ID][order.Instrument] = &core.Position{
		TradeID:    tradeID,
		AccountID:  account.ID,
		Instrument: order.Instrument,
		Units:      order.Units,
		Price:      order.EntryPrice,
	}

	p.log.Infof("[PAPER] %s filled on %s as trade %s", order, account.ID, tradeID)
	return core.OrderResult{Accepted: true, OrderID: orderID, TradeID: tradeID}, nil
}

// CancelOrder removes a resting order
func (p *PaperBroker) CancelOrder(ctx context.Context, account core.Account, orderID string) (core.OrderResult, error) {
	if err := p.hook(ctx, OperationCancelOrder, account.ID); err != nil {
		return core.OrderResult{}, err
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	orders := p.pending[account.ID]
	_, index, found := lo.FindIndexOf(orders, func(o core.PendingOrder) bool { return o.ID == orderID })
	if !found {
		return core.OrderResult{Accepted: false, OrderID: orderID, BrokerError: "ORDER_DOESNT_EXIST"}, nil
	}

	p.pending[account.ID] = append(orders[:index:index], orders[index+1:]...)
	return core.OrderResult{Accepted: true, OrderID: orderID}, nil
}

// CloseTrade closes an open trade by its identifier
func (p *PaperBroker) CloseTrade(ctx context.Context, account core.Account, tradeID string) (core.OrderResult, error) {
	if err := p.hook(ctx, OperationCloseTrade, account.ID); err != nil {
		return core.OrderResult{}, err
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	for instrument, position := range p.trades[account.ID] {
		if position.TradeID == tradeID {
			delete(p.trades[account.ID], instrument)
			p.log.Infof("[PAPER] closed trade %s on %s (PL %.2f)", tradeID, account.ID, position.UnrealizedPL)
			return core.OrderResult{Accepted: true, TradeID: tradeID}, nil
		}
	}

	return core.OrderResult{Accepted: false, TradeID: tradeID, BrokerError: "TRADE_DOESNT_EXIST"}, nil
}

// Candles returns the last count candles of the instrument and timeframe
func (p *PaperBroker) Candles(ctx context.Context, account core.Account, instrument, timeframe string,
	count int) ([]core.Candle, error) {

	if err := p.hook(ctx, OperationCandles, account.ID); err != nil {
		return nil, err
	}

	if p.feeder != nil {
		return p.feeder.Candles(ctx, account, instrument, timeframe, count)
	}

	p.mu.RLock()
	defer p.mu.RUnlock()

	candles, ok := p.candles[candleKey(instrument, timeframe)]
	if !ok {
		return nil, fmt.Errorf("%w: no %s candles for %s", core.ErrNotFound, timeframe, instrument)
	}
	if count > 0 && len(candles) > count {
		candles = candles[len(candles)-count:]
	}
	return append([]core.Candle(nil), candles...), nil
}

// Pricing returns the current bid and ask of the instrument
func (p *PaperBroker) Pricing(ctx context.Context, account core.Account, instrument string) (core.Pricing, error) {
	if err := p.hook(ctx, OperationPricing, account.ID); err != nil {
		return core.Pricing{}, err
	}

	if p.feeder != nil {
		return p.feeder.Pricing(ctx, account, instrument)
	}

	p.mu.RLock()
	defer p.mu.RUnlock()

	pricing, ok := p.pricing[instrument]
	if !ok {
		return core.Pricing{}, fmt.Errorf("%w: no pricing for %s", core.ErrNotFound, instrument)
	}
	return pricing, nil
}
