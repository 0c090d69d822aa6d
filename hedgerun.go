package hedgerun

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/raykavin/hedgerun/pkg/core"
	"github.com/raykavin/hedgerun/pkg/logger"
	"github.com/raykavin/hedgerun/pkg/notification"
	"github.com/raykavin/hedgerun/pkg/order"
	"github.com/raykavin/hedgerun/pkg/scheduler"
	"github.com/raykavin/hedgerun/pkg/storage"
	"github.com/raykavin/hedgerun/pkg/strategy"
)

// DefaultLog is the default logger instance
var DefaultLog logger.Logger

const defaultDatabase = "hedgerun.db"

// HedgeRun wires the configuration store, the brokerage environments, the engines
// and the scheduler into one running bot
type HedgeRun struct {
	settings  core.Settings
	storage   *storage.Store
	exchanges map[string]core.Exchange
	notifiers []core.Notifier
	log       logger.Logger

	dispatcher *notification.Dispatcher
	scheduler  *scheduler.Scheduler
	hedges     hedgeRouter
	entries    entryRouter
}

// New creates a bot. At least one exchange must be registered with WithExchange.
func New(settings core.Settings, options ...Option) (*HedgeRun, error) {
	bot := &HedgeRun{
		settings:  settings,
		exchanges: make(map[string]core.Exchange),
		log:       DefaultLog,
		hedges:    make(hedgeRouter),
		entries:   make(entryRouter),
	}

	for _, option := range options {
		option(bot)
	}

	if len(bot.exchanges) == 0 {
		return nil, errors.New("no exchange configured")
	}

	if err := initializeStorage(bot); err != nil {
		return nil, err
	}

	if err := initializeNotifications(bot); err != nil {
		return nil, err
	}

	initializeEngines(bot)

	bot.scheduler = scheduler.New(bot.storage, bot.hedges, bot.entries, bot.log, scheduler.Settings{
		Username:          settings.Username,
		Workers:           settings.Workers,
		EntryConfigDelay:  settings.EntryConfigDelay,
		EntryPassInterval: settings.EntryPassInterval,
	})

	return bot, nil
}

// initializeStorage opens the default database unless a store was provided
func initializeStorage(bot *HedgeRun) error {
	if bot.storage != nil {
		return nil
	}

	store, err := storage.FromFile(defaultDatabase)
	if err != nil {
		return err
	}
	bot.storage = store
	return nil
}

// initializeNotifications builds the dispatcher over the log, the registered
// notifiers and Telegram when enabled
func initializeNotifications(bot *HedgeRun) error {
	notifiers := append([]core.Notifier{notification.NewLog(bot.log)}, bot.notifiers...)

	if bot.settings.Telegram.Enabled {
		telegram, err := notification.NewTelegram(bot, bot.settings.Telegram,
			notification.WithJournal(bot.storage))
		if err != nil {
			return err
		}
		notifiers = append(notifiers, telegram)
	}

	bot.dispatcher = notification.NewDispatcher(0, notifiers...)
	return nil
}

// initializeEngines creates one hedge and one entry engine per environment
func initializeEngines(bot *HedgeRun) {
	for environment, exchange := range bot.exchanges {
		log := bot.log.WithField("environment", environment)

		controller := order.NewController(exchange, log,
			order.WithCallTimeout(bot.settings.CallTimeout),
			order.WithJournal(bot.storage),
		)

		bot.hedges[environment] = strategy.NewHedgeEngine(exchange, controller, bot.dispatcher, log,
			strategy.WithHedgeCallTimeout(bot.settings.CallTimeout))
		bot.entries[environment] = strategy.NewEntryEngine(exchange, controller, bot.dispatcher, log,
			strategy.WithEntryCallTimeout(bot.settings.CallTimeout))
	}
}

// Storage returns the configuration store
func (h *HedgeRun) Storage() *storage.Store {
	return h.storage
}

// Run starts the notifiers and the scheduler and blocks until ctx is done
func (h *HedgeRun) Run(ctx context.Context) error {
	h.dispatcher.Start()

	if err := h.scheduler.Start(ctx); err != nil {
		h.dispatcher.Stop()
		return fmt.Errorf("failed to start scheduler: %w", err)
	}

	h.log.Infof("[SETUP] hedge bot running for %s", h.settings.Username)
	<-ctx.Done()

	h.log.Info("[SHUTDOWN] waiting for running cycles")
	h.scheduler.Stop()
	h.dispatcher.Stop()

	return h.storage.Close()
}

// Status reports whether cycles are running or paused
func (h *HedgeRun) Status() string {
	return h.scheduler.Status()
}

// Pause stops new cycles from starting
func (h *HedgeRun) Pause() {
	h.scheduler.Pause()
}

// Resume lets cycles start again
func (h *HedgeRun) Resume() {
	h.scheduler.Resume()
}

func environmentKey(environment string) string {
	if environment == "" {
		return core.DefaultEnvironment
	}
	return strings.ToLower(environment)
}

// hedgeRouter sends each hedge tick to the engine of the configuration's environment
type hedgeRouter map[string]*strategy.HedgeEngine

func (r hedgeRouter) Run(ctx context.Context, cfg core.MonitorConfig, side core.MonitorSide) (core.HedgeAction, error) {
	engine, ok := r[environmentKey(cfg.Environment)]
	if !ok {
		return core.HedgeAction{Kind: core.ActionNoOp},
			fmt.Errorf("%w: no exchange for environment %q", core.ErrConfigMissing, cfg.Environment)
	}
	return engine.Run(ctx, cfg, side)
}

// entryRouter sends each entry evaluation to the engine of the configuration's environment
type entryRouter map[string]*strategy.EntryEngine

func (r entryRouter) Run(ctx context.Context, cfg core.MonitorConfig) (core.EntryAction, error) {
	engine, ok := r[environmentKey(cfg.Environment)]
	if !ok {
		return core.EntryAction{Kind: core.ActionNoOp},
			fmt.Errorf("%w: no exchange for environment %q", core.ErrConfigMissing, cfg.Environment)
	}
	return engine.Run(ctx, cfg)
}
