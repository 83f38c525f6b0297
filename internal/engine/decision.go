package engine

import "scalp-trading-bot/internal/types"

// Decide is the scalp decision rule: BUY when the ask has dipped to or
// below the buy band under the reference price, SELL when the bid has
// risen to or above the sell band over it, otherwise NONE. Exact
// equality acts rather than skips. Stateless; safe to call every cycle.
//
// The reference price is the last trade in the fixed-band mode, or a
// volatility-derived level in the ATR-band mode; the comparisons are
// identical either way.
func Decide(q types.Quote, referencePrice, buyBandRatio, sellBandRatio float64) types.Signal {
	targetBuy := referencePrice * (1 - buyBandRatio)
	targetSell := referencePrice * (1 + sellBandRatio)

	switch {
	case q.Ask <= targetBuy:
		return types.SignalBuy
	case q.Bid >= targetSell:
		return types.SignalSell
	default:
		return types.SignalNone
	}
}
