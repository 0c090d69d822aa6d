package core

import (
	"fmt"
	"math"
)

// PipSize is the price increment of one pip for four-decimal quoted instruments.
// JPY-quoted pairs use 0.01 and are not handled differently.
const PipSize = 0.0001

// pricePrecision is the number of decimals accepted by the broker for stop and
// take-profit prices
const pricePrecision = 5

// SideType represents the direction of a position or order (BUY or SELL)
type SideType string

const (
	SideTypeBuy  SideType = "BUY"
	SideTypeSell SideType = "SELL"
)

// Opposite returns the reverse direction
func (s SideType) Opposite() SideType {
	if s == SideTypeBuy {
		return SideTypeSell
	}
	return SideTypeBuy
}

// SignedUnits applies the side sign to a unit count: positive for BUY, negative for SELL
func (s SideType) SignedUnits(units int64) int64 {
	if units < 0 {
		units = -units
	}
	if s == SideTypeSell {
		return -units
	}
	return units
}

// SideFromUnits derives the side from the sign of a unit count
func SideFromUnits(units int64) SideType {
	if units > 0 {
		return SideTypeBuy
	}
	return SideTypeSell
}

// PriceToPips converts a price difference into pips
func PriceToPips(diff float64) float64 {
	return diff / PipSize
}

// PipsToPrice converts a pip amount into a price difference
func PipsToPrice(pips float64) float64 {
	return pips * PipSize
}

// RoundPrice rounds a price to the precision accepted by the broker
func RoundPrice(price float64) float64 {
	p := math.Pow10(pricePrecision)
	return math.Round(price*p) / p
}

// Position is an open trade on one account. It is read fresh from the broker on
// every evaluation and never cached between ticks.
type Position struct {
	TradeID      string
	AccountID    string
	Instrument   string
	Units        int64
	Price        float64
	UnrealizedPL float64
}

// Side derives the direction from the sign of the current units
func (p Position) Side() SideType {
	return SideFromUnits(p.Units)
}

// AbsUnits returns the position size without sign
func (p Position) AbsUnits() int64 {
	if p.Units < 0 {
		return -p.Units
	}
	return p.Units
}

func (p Position) String() string {
	return fmt.Sprintf("[%s] %s %s %d units | PL: %.2f", p.AccountID, p.Instrument, p.Side(), p.AbsUnits(), p.UnrealizedPL)
}

// PendingOrder is a resting order that has not been filled yet
type PendingOrder struct {
	ID         string
	AccountID  string
	Instrument string
	Type       string
	Side       SideType
	Price      float64
}

// Pricing holds the current top of book for an instrument
type Pricing struct {
	Instrument string
	Bid        float64
	Ask        float64
}

// Mid returns the midpoint between bid and ask
func (p Pricing) Mid() float64 {
	return (p.Bid + p.Ask) / 2
}

// EntryFor returns the price a market order on the given side fills against
func (p Pricing) EntryFor(side SideType) float64 {
	if side == SideTypeBuy {
		return p.Ask
	}
	return p.Bid
}

// MarketOrder is a fill-or-kill market order request. Units carry the side sign.
type MarketOrder struct {
	Instrument string
	Side       SideType
	Units      int64
	EntryPrice float64
	StopLoss   *float64
	TakeProfit *float64
}

func (o MarketOrder) String() string {
	sl, tp := "None", "None"
	if o.StopLoss != nil {
		sl = fmt.Sprintf("%.5f", *o.StopLoss)
	}
	if o.TakeProfit != nil {
		tp = fmt.Sprintf("%.5f", *o.TakeProfit)
	}
	return fmt.Sprintf("%s %s %d units @ %.5f SL %s TP %s", o.Side, o.Instrument, abs(o.Units), o.EntryPrice, sl, tp)
}

// OrderResult is the broker response to a placement, cancel or close request
type OrderResult struct {
	Accepted    bool
	OrderID     string
	TradeID     string
	BrokerError string
}

// StopLossPrice returns the protective stop for an entry on the given side, or nil
// when no stop distance is configured
func StopLossPrice(side SideType, entry float64, stopLossPips *float64) *float64 {
	if stopLossPips == nil || *stopLossPips == 0 {
		return nil
	}

	var price float64
	if side == SideTypeBuy {
		price = RoundPrice(entry - PipsToPrice(*stopLossPips))
	} else {
		price = RoundPrice(entry + PipsToPrice(*stopLossPips))
	}
	return &price
}

// TakeProfitPrice returns the profit target for an entry on the given side
func TakeProfitPrice(side SideType, entry float64, takeProfitPips float64) float64 {
	if side == SideTypeBuy {
		return RoundPrice(entry + PipsToPrice(takeProfitPips))
	}
	return RoundPrice(entry - PipsToPrice(takeProfitPips))
}

func abs(v int64) int64 {
	if v < 0 {
		return -v
	}
	return v
}
