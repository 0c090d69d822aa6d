package hedgerun

import (
	"github.com/raykavin/hedgerun/pkg/core"
	"github.com/raykavin/hedgerun/pkg/logger"
	"github.com/raykavin/hedgerun/pkg/storage"
)

// Option is a functional option for configuring a HedgeRun instance
type Option func(*HedgeRun)

// WithStorage sets the store for the bot, by default it uses a local file called hedgerun.db
func WithStorage(store *storage.Store) Option {
	return func(bot *HedgeRun) {
		bot.storage = store
	}
}

// WithExchange serves the configurations of an environment (practice or live) from the given exchange
func WithExchange(environment string, exchange core.Exchange) Option {
	return func(bot *HedgeRun) {
		bot.exchanges[environmentKey(environment)] = exchange
	}
}

// WithNotifier registers a notifier to the bot, alerts are delivered asynchronously
func WithNotifier(notifier core.Notifier) Option {
	return func(bot *HedgeRun) {
		bot.notifiers = append(bot.notifiers, notifier)
	}
}

// WithLogger replaces the default logger
func WithLogger(log logger.Logger) Option {
	return func(bot *HedgeRun) {
		bot.log = log
	}
}

// WithLogLevel sets the log level. eg: logger.DebugLevel, logger.InfoLevel, logger.WarnLevel
func WithLogLevel(level logger.Level) Option {
	return func(bot *HedgeRun) {
		bot.log.SetLevel(level)
	}
}
