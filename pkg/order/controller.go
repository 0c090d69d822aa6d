package order

import (
	"context"
	"fmt"
	"time"

	"github.com/raykavin/hedgerun/pkg/core"
	"github.com/raykavin/hedgerun/pkg/logger"
)

const defaultCallTimeout = 15 * time.Second

// Controller sends mutations to the broker. Every request is bounded by a timeout,
// recorded in the journal and logged. Rejections are never retried.
type Controller struct {
	broker      core.Broker
	journal     core.Journal
	log         logger.Logger
	callTimeout time.Duration
	now         func() time.Time
}

// Option configures a Controller
type Option func(*Controller)

// WithCallTimeout bounds every broker call
func WithCallTimeout(timeout time.Duration) Option {
	return func(c *Controller) {
		if timeout > 0 {
			c.callTimeout = timeout
		}
	}
}

// WithJournal records every request in the given journal
func WithJournal(journal core.Journal) Option {
	return func(c *Controller) {
		c.journal = journal
	}
}

// NewController creates a new order controller
func NewController(broker core.Broker, log logger.Logger, options ...Option) *Controller {
	controller := &Controller{
		broker:      broker,
		log:         log,
		callTimeout: defaultCallTimeout,
		now:         time.Now,
	}

	for _, option := range options {
		option(controller)
	}

	return controller
}

// PlaceMarketOrder submits a fill-or-kill market order on the account
func (c *Controller) PlaceMarketOrder(ctx context.Context, cfg core.MonitorConfig, account core.Account,
	order core.MarketOrder) (core.OrderResult, error) {

	c.log.Infof("[%s] placing %s on %s", cfg.Name(), order, account.ID)

	callCtx, cancel := context.WithTimeout(ctx, c.callTimeout)
	defer cancel()

	result, err := c.broker.PlaceMarketOrder(callCtx, account, order)
	err = c.finish(cfg, account, core.JournalEntry{
		Instrument: order.Instrument,
		Kind:       core.JournalPlace,
		Units:      order.Units,
		Price:      order.EntryPrice,
	}, result, err)

	return result, err
}

// CancelOrder cancels a pending order on the account
func (c *Controller) CancelOrder(ctx context.Context, cfg core.MonitorConfig, account core.Account,
	pending core.PendingOrder) (core.OrderResult, error) {

	c.log.Infof("[%s] cancelling order %s on %s", cfg.Name(), pending.ID, account.ID)

	callCtx, cancel := context.WithTimeout(ctx, c.callTimeout)
	defer cancel()

	result, err := c.broker.CancelOrder(callCtx, account, pending.ID)
	err = c.finish(cfg, account, core.JournalEntry{
		Instrument: pending.Instrument,
		Kind:       core.JournalCancel,
		Reference:  pending.ID,
		Price:      pending.Price,
	}, result, err)

	return result, err
}

// CloseTrade closes an open trade on the account
func (c *Controller) CloseTrade(ctx context.Context, cfg core.MonitorConfig, account core.Account,
	position core.Position) (core.OrderResult, error) {

	c.log.Infof("[%s] closing trade %s on %s", cfg.Name(), position.TradeID, account.ID)

	callCtx, cancel := context.WithTimeout(ctx, c.callTimeout)
	defer cancel()

	result, err := c.broker.CloseTrade(callCtx, account, position.TradeID)
	err = c.finish(cfg, account, core.JournalEntry{
		Instrument: position.Instrument,
		Kind:       core.JournalClose,
		Reference:  position.TradeID,
		Units:      position.Units,
		Price:      position.Price,
	}, result, err)

	return result, err
}

// finish turns a broker response into an error, journals it and logs it
func (c *Controller) finish(cfg core.MonitorConfig, account core.Account, entry core.JournalEntry,
	result core.OrderResult, err error) error {

	if err == nil && !result.Accepted {
		err = fmt.Errorf("%w: %s", core.ErrOrderRejected, result.BrokerError)
	}

	entry.Time = c.now()
	entry.Profile = cfg.Profile
	entry.Model = cfg.ModelName
	entry.AccountID = account.ID
	entry.Accepted = err == nil
	if entry.Reference == "" {
		entry.Reference = result.OrderID
	}
	if err != nil {
		entry.Error = err.Error()
	}

	if c.journal != nil {
		if jerr := c.journal.Record(&entry); jerr != nil {
			c.log.WithError(jerr).Warn("failed to journal broker request")
		}
	}

	if err != nil {
		c.log.WithError(err).Errorf("[%s] %s on %s failed", cfg.Name(), entry.Kind, account.ID)
		return err
	}

	c.log.Infof("[%s] %s on %s accepted (%s)", cfg.Name(), entry.Kind, account.ID, entry.Reference)
	return nil
}
