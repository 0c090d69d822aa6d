package core

import (
	"fmt"
	"time"
)

// Timeframes used by the momentum check and the trend detector
const (
	TimeframeM1  = "M1"
	TimeframeM5  = "M5"
	TimeframeM15 = "M15"
)

// Candle represents a mid-price candle returned by the broker
type Candle struct {
	Instrument string
	Timeframe  string
	Time       time.Time
	Open       float64
	High       float64
	Low        float64
	Close      float64
	Volume     float64
	Complete   bool
}

// PipDelta returns the candle body in pips, positive for a bullish candle
func (c Candle) PipDelta() float64 {
	return PriceToPips(c.Close - c.Open)
}

// IsComplete returns whether the candle period is closed
func (c Candle) IsComplete() bool { return c.Complete }

func (c Candle) String() string {
	return fmt.Sprintf("[%s %s] %s O:%.5f C:%.5f complete=%t",
		c.Instrument, c.Timeframe, c.Time.Format(time.RFC3339), c.Open, c.Close, c.Complete)
}
