package ta

import (
	"math"

	"scalp-trading-bot/internal/types"
)

// TrueRange for one bar given the previous close.
func TrueRange(bar types.Bar, prevClose float64) float64 {
	tr1 := bar.High - bar.Low
	tr2 := math.Abs(bar.High - prevClose)
	tr3 := math.Abs(bar.Low - prevClose)
	return math.Max(tr1, math.Max(tr2, tr3))
}

// ATR is the simple moving average of true range over the trailing
// period bars, evaluated at the most recent complete window. Bars must
// be ordered oldest first. Needs period+1 bars (true range consumes the
// previous close); returns 0 when fewer are available.
func ATR(bars []types.Bar, period int) float64 {
	if period <= 0 || len(bars) < period+1 {
		return 0
	}
	sum := 0.0
	for i := len(bars) - period; i < len(bars); i++ {
		sum += TrueRange(bars[i], bars[i-1].Close)
	}
	return sum / float64(period)
}

// SMA of the closes over the trailing n bars; 0 when not enough data.
func SMA(bars []types.Bar, n int) float64 {
	if n <= 0 || len(bars) < n {
		return 0
	}
	sum := 0.0
	for i := len(bars) - n; i < len(bars); i++ {
		sum += bars[i].Close
	}
	return sum / float64(n)
}
