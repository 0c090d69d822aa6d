package indicator

import (
	"fmt"

	"github.com/markcheno/go-talib"
	"github.com/raykavin/hedgerun/pkg/core"
)

// WarmupBuffer is the number of samples beyond the period that every EMA run consumes
const WarmupBuffer = 25

// EMA calculates the exponential moving average of the trailing period+WarmupBuffer
// samples. The average is seeded with the mean of the first period samples of that
// window and smoothed with k = 2/(period+1) over the rest.
func EMA(prices core.Series[float64], period int) (float64, error) {
	if period < 1 {
		return 0, fmt.Errorf("%w: %d", core.ErrInvalidPeriod, period)
	}

	window := period + WarmupBuffer
	if prices.Length() < window {
		return 0, fmt.Errorf("%w: EMA%d needs %d samples, got %d",
			core.ErrInsufficientHistory, period, window, prices.Length())
	}

	values := talib.Ema(prices.LastValues(window).Values(), period)
	return values[len(values)-1], nil
}

// DetectTrend classifies a close-price history with two independent EMA runs.
// Each run uses its own trailing window of the same input.
func DetectTrend(closes core.Series[float64], shortPeriod, longPeriod int) (core.TrendState, float64, float64, error) {
	if shortPeriod < 1 || longPeriod < 1 {
		return "", 0, 0, fmt.Errorf("%w: short %d long %d", core.ErrInvalidPeriod, shortPeriod, longPeriod)
	}

	required := max(shortPeriod, longPeriod) + WarmupBuffer
	if closes.Length() < required {
		return "", 0, 0, fmt.Errorf("%w: need %d closes, got %d",
			core.ErrInsufficientHistory, required, closes.Length())
	}

	shortEMA, err := EMA(closes, shortPeriod)
	if err != nil {
		return "", 0, 0, err
	}

	longEMA, err := EMA(closes, longPeriod)
	if err != nil {
		return "", 0, 0, err
	}

	switch {
	case shortEMA > longEMA:
		return core.TrendUp, shortEMA, longEMA, nil
	case shortEMA < longEMA:
		return core.TrendDown, shortEMA, longEMA, nil
	default:
		return core.TrendSideways, shortEMA, longEMA, nil
	}
}
