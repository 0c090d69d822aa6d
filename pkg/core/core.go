package core

import (
	"context"
)

// ConfigProvider loads monitor configurations with their account tokens resolved
type ConfigProvider interface {
	ProfilesForUser(ctx context.Context, username string) ([]string, error)
	ListActiveConfigs(ctx context.Context, profiles []string) ([]MonitorConfig, error)
	ActiveConfig(ctx context.Context, profile, model string) (MonitorConfig, error)
}

// Feeder provides candles and live pricing. The account carries the token used
// to authenticate the request.
type Feeder interface {
	Candles(ctx context.Context, account Account, instrument, timeframe string, count int) ([]Candle, error)
	Pricing(ctx context.Context, account Account, instrument string) (Pricing, error)
}

// Broker reads positions and orders and submits mutations for an account
type Broker interface {
	OpenTrade(ctx context.Context, account Account, instrument string) (*Position, error)
	PendingOrders(ctx context.Context, account Account) ([]PendingOrder, error)
	PlaceMarketOrder(ctx context.Context, account Account, order MarketOrder) (OrderResult, error)
	CancelOrder(ctx context.Context, account Account, orderID string) (OrderResult, error)
	CloseTrade(ctx context.Context, account Account, tradeID string) (OrderResult, error)
}

// Exchange is a brokerage reachable for both market data and account operations
type Exchange interface {
	Broker
	Feeder
}

// Notifier delivers alerts. Implementations must not block the caller for long:
// delivery failures are logged, never returned.
type Notifier interface {
	Notify(ctx context.Context, alert Alert)
}

// NotifierWithStart is a notifier that owns a background loop
type NotifierWithStart interface {
	Notifier
	Start()
}
