package strategy

import (
	"context"
	"fmt"
	"time"

	"github.com/raykavin/hedgerun/pkg/core"
	"github.com/samber/lo"
)

// momentumCandleCount is how many candles are requested per timeframe so that the
// last completed one is available while the current one is still forming
const momentumCandleCount = 2

// Momentum holds the body in pips of the last completed candle on each timeframe
type Momentum struct {
	M1  float64
	M5  float64
	M15 float64
}

func (m Momentum) String() string {
	return fmt.Sprintf("M1: %.2f, M5: %.2f, M15: %.2f", m.M1, m.M5, m.M15)
}

// ValidateMomentum reports whether all three timeframes move in the expected
// direction. There is no majority vote: one flat or opposing candle fails the check.
func ValidateMomentum(m Momentum, expected core.SideType) bool {
	switch expected {
	case core.SideTypeBuy:
		return m.M1 > 0 && m.M5 > 0 && m.M15 > 0
	case core.SideTypeSell:
		return m.M1 < 0 && m.M5 < 0 && m.M15 < 0
	default:
		return false
	}
}

// FetchMomentum reads the last completed M1, M5 and M15 candles. Any failing
// timeframe fails the whole fetch.
func FetchMomentum(ctx context.Context, feeder core.Feeder, account core.Account, instrument string,
	timeout time.Duration) (Momentum, error) {

	var (
		momentum Momentum
		targets  = []struct {
			timeframe string
			value     *float64
		}{
			{core.TimeframeM1, &momentum.M1},
			{core.TimeframeM5, &momentum.M5},
			{core.TimeframeM15, &momentum.M15},
		}
	)

	for _, target := range targets {
		candle, err := lastCompleteCandle(ctx, feeder, account, instrument, target.timeframe, timeout)
		if err != nil {
			return Momentum{}, err
		}
		*target.value = candle.PipDelta()
	}

	return momentum, nil
}

func lastCompleteCandle(ctx context.Context, feeder core.Feeder, account core.Account,
	instrument, timeframe string, timeout time.Duration) (core.Candle, error) {

	callCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	candles, err := feeder.Candles(callCtx, account, instrument, timeframe, momentumCandleCount)
	if err != nil {
		return core.Candle{}, dataUnavailable(err, "%s %s candles", instrument, timeframe)
	}

	complete := lo.Filter(candles, func(c core.Candle, _ int) bool { return c.Complete })
	if len(complete) == 0 {
		return core.Candle{}, fmt.Errorf("%w: no completed %s candle for %s",
			core.ErrDataUnavailable, timeframe, instrument)
	}

	return complete[len(complete)-1], nil
}
