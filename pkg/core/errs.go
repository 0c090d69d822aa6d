package core

import "errors"

var (
	ErrInsufficientHistory = errors.New("insufficient price history")
	ErrDataUnavailable     = errors.New("market or account data unavailable")
	ErrConfigMissing       = errors.New("monitor configuration missing or incomplete")
	ErrNoAccessToken       = errors.New("no access token for account")
	ErrOrderRejected       = errors.New("order rejected by broker")
	ErrInvalidPeriod       = errors.New("invalid moving average period")
	ErrNotFound            = errors.New("not found")
)
