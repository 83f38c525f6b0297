package engine

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"scalp-trading-bot/internal/eod"
	"scalp-trading-bot/internal/interfaces"
	"scalp-trading-bot/internal/logger"
	"scalp-trading-bot/internal/metrics"
	"scalp-trading-bot/internal/pnl"
	"scalp-trading-bot/internal/store"
	"scalp-trading-bot/internal/ta"
	"scalp-trading-bot/internal/tradelog"
	"scalp-trading-bot/internal/types"
)

// scalpEngine runs one scalp cycle per Step call: roll the daily
// ledger, gate on risk and data freshness, then either look for an
// entry (flat) or hand the open position to the controller for up to
// one bar's worth of ticks.
type scalpEngine struct {
	cfg    *store.Config
	brk    interfaces.Broker
	ledger *pnl.Ledger
	ctl    *positionController

	instrumentID string
	lastBarTime  time.Time
	pos          *types.Position
	entryATR     float64

	now   func() time.Time
	sleep func(context.Context, time.Duration) error
}

var _ interfaces.Engine = (*scalpEngine)(nil)

func (e *scalpEngine) Step(ctx context.Context) (*types.CycleResult, error) {
	res := &types.CycleResult{Symbol: e.cfg.Symbol}
	now := e.now()

	closed := e.ledger.TotalFloat()
	if e.ledger.Rollover(now) {
		e.rollover(ctx, now, closed)
	}
	res.PnL = e.ledger.TotalFloat()

	if e.ledger.LimitBreached() {
		logger.Risk(ctx, e.cfg.Symbol, "DAILY_LOSS_LIMIT",
			"daily_pnl", e.ledger.TotalFloat(), "limit", e.cfg.Risk.DailyLossLimit)
		metrics.CyclesSkipped.WithLabelValues("daily_loss_limit").Inc()
		res.Reason = "DAILY_LOSS_LIMIT"
		if err := e.sleep(ctx, pnl.UntilMidnight(now)); err != nil {
			return nil, err
		}
		return res, nil
	}

	if e.instrumentID == "" {
		id, err := e.brk.SearchInstrument(ctx, e.cfg.Symbol, e.cfg.AssetType)
		if err != nil {
			return nil, fmt.Errorf("resolving instrument %s: %w", e.cfg.Symbol, err)
		}
		e.instrumentID = id
		logger.Info(ctx, "Instrument resolved", "symbol", e.cfg.Symbol, "instrument_id", id)
	}

	lookback := time.Duration(e.cfg.ATR.Period+2) * time.Minute
	bars, err := e.brk.GetHistoricalBars(ctx, e.instrumentID, lookback)
	if err != nil {
		return nil, fmt.Errorf("fetching bars: %w", err)
	}

	newBar := false
	var latest types.Bar
	if len(bars) > 0 {
		latest = bars[len(bars)-1]
		if latest.Timestamp.After(e.lastBarTime) {
			newBar = true
			e.lastBarTime = latest.Timestamp
		}
	}
	atr := ta.ATR(bars, e.cfg.ATR.Period)
	res.ATR = atr

	// A position can exist at the broker that this process does not
	// know about (restart mid-trade). Adopt it.
	if e.pos == nil {
		pos, err := e.brk.GetOpenPosition(ctx, e.instrumentID)
		if err != nil {
			return nil, fmt.Errorf("querying position: %w", err)
		}
		if pos != nil {
			logger.Warn(ctx, "Adopting existing open position",
				"quantity", pos.Quantity, "entry_price", pos.EntryPrice)
			e.pos = pos
			e.entryATR = atr
		}
	}

	if e.pos != nil {
		return e.manage(ctx, res, newBar, latest, atr)
	}

	if len(bars) < e.cfg.ATR.Period+1 {
		return e.skip(res, "NOT_ENOUGH_BARS"), nil
	}
	if !newBar {
		return e.skip(res, "NO_NEW_BAR"), nil
	}
	if atr < e.cfg.ATR.Min {
		logger.Info(ctx, "ATR below floor, sitting out", "atr", atr, "min_atr", e.cfg.ATR.Min)
		return e.skip(res, "ATR_BELOW_FLOOR"), nil
	}

	q, err := e.brk.GetQuote(ctx, e.instrumentID)
	if err != nil {
		return nil, fmt.Errorf("fetching quote: %w", err)
	}
	res.Quote = &q
	if q.Spread() > e.cfg.Risk.MaxSpread {
		logger.Info(ctx, "Spread too wide, sitting out",
			"spread", q.Spread(), "max_spread", e.cfg.Risk.MaxSpread)
		return e.skip(res, "SPREAD_TOO_WIDE"), nil
	}

	if e.cfg.Entry.Compound {
		return e.compoundEntry(ctx, res, q, atr)
	}

	sig := Decide(q, latest.Close, e.cfg.Bands.BuyRatio, e.cfg.Bands.SellRatio)
	res.Signal = sig
	metrics.Signals.WithLabelValues(string(sig)).Inc()

	if sig != types.SignalBuy {
		res.Reason = "NO_ENTRY"
		return res, nil
	}
	return e.enter(ctx, res, e.cfg.Quantity, atr, tradelog.ReasonEntryBasic)
}

// compoundEntry redeploys the full cash balance whenever the account is
// flat. The band decision gates only fixed-quantity entries; compound
// mode is gated by the ATR floor and spread checks alone.
func (e *scalpEngine) compoundEntry(ctx context.Context, res *types.CycleResult, q types.Quote, atr float64) (*types.CycleResult, error) {
	cash, err := e.brk.GetCashBalance(ctx, e.cfg.Currency)
	if err != nil {
		return nil, fmt.Errorf("fetching cash balance: %w", err)
	}
	qty := math.Floor(cash/q.Ask*100) / 100
	// The buy notional must clear the ATR floor; fractional remnants of
	// the balance do not make a position.
	if qty <= 0 || qty*q.Ask < e.cfg.ATR.Min {
		return e.skip(res, "INSUFFICIENT_CASH"), nil
	}
	return e.enter(ctx, res, qty, atr, tradelog.ReasonEntryCompound)
}

// enter buys at market, waits for the fill, then hands the new
// position to the controller.
func (e *scalpEngine) enter(ctx context.Context, res *types.CycleResult, qty, atr float64, reason string) (*types.CycleResult, error) {
	buyID, err := e.brk.PlaceMarketOrder(ctx, e.instrumentID, types.SideBuy, qty)
	if err != nil {
		return nil, fmt.Errorf("entry order: %w", err)
	}
	res.OrderIDs = append(res.OrderIDs, buyID)

	st, err := AwaitTerminal(ctx, e.brk, buyID, e.pollInterval(), e.maxWait())
	if err != nil {
		if errors.Is(err, ErrTimeout) {
			bestEffortCancel(ctx, e.brk, buyID)
		}
		return nil, fmt.Errorf("entry order %s: %w", buyID, err)
	}

	logger.Trade(ctx, e.cfg.Symbol, string(types.SideBuy), qty, st.AvgFillPrice, buyID, "reason", reason)
	_ = tradelog.Append(tradelog.Entry{
		Symbol:  e.cfg.Symbol,
		Side:    string(types.SideBuy),
		Qty:     qty,
		Price:   st.AvgFillPrice,
		OrderID: buyID,
		Reason:  reason,
	})

	e.pos = &types.Position{
		InstrumentID: e.instrumentID,
		Quantity:     qty,
		EntryPrice:   st.AvgFillPrice,
	}
	e.entryATR = atr
	return e.runController(ctx, res)
}

// manage runs bar-level logic for an open position, then ticks the
// controller until the next bar is due.
func (e *scalpEngine) manage(ctx context.Context, res *types.CycleResult, newBar bool, latest types.Bar, atr float64) (*types.CycleResult, error) {
	// An adopted position can precede usable bar history; without a
	// volatility estimate there is no sane stop distance yet.
	if e.entryATR <= 0 {
		if atr <= 0 {
			return e.skip(res, "NOT_ENOUGH_BARS"), nil
		}
		e.entryATR = atr
	}

	if newBar && atr > 0 && latest.IsRed() && latest.Open-latest.Close >= e.cfg.Stop.SellATRMult*atr {
		if err := e.sellAndBuyBack(ctx, res, atr); err != nil {
			return nil, err
		}
		// The round trip can discover the stop already filled, in which
		// case the exit is booked and there is nothing left to manage.
		if e.pos == nil {
			return res, nil
		}
	}
	return e.runController(ctx, res)
}

func (e *scalpEngine) runController(ctx context.Context, res *types.CycleResult) (*types.CycleResult, error) {
	deadline := e.now().Add(time.Duration(e.cfg.Poll.BarSeconds) * time.Second)
	exited, realized, err := e.ctl.Run(ctx, e.pos, e.entryATR, deadline)
	if err != nil {
		return nil, err
	}
	res.PnL = e.ledger.TotalFloat()
	if exited {
		e.pos = nil
		res.Reason = "POSITION_CLOSED"
		logger.Info(ctx, "Position closed", "realized_pnl", realized, "daily_pnl", res.PnL)
	} else {
		res.Reason = "POSITION_OPEN"
	}
	return res, nil
}

// sellAndBuyBack flattens into a sharp red candle and rests a limit buy
// at the sale price, re-entering at the same level if price comes back.
// The round trip re-prices the entry rather than realizing an exit, so
// the daily ledger is untouched; the one exception is a stop that filled
// before it could be cancelled, which is booked as a stop exit.
func (e *scalpEngine) sellAndBuyBack(ctx context.Context, res *types.CycleResult, atr float64) error {
	pos := e.pos
	logger.Risk(ctx, e.cfg.Symbol, "RED_CANDLE_SELL", "quantity", pos.Quantity, "entry_price", pos.EntryPrice)

	if pos.StopOrderID != "" {
		switch bestEffortCancel(ctx, e.brk, pos.StopOrderID) {
		case CancelFailed:
			// The old stop is still live; selling now would leave a
			// naked stop order. Keep the position and try next bar.
			logger.Warn(ctx, "Stop cancel failed, keeping position", "order_id", pos.StopOrderID)
			return nil
		case CancelAlreadyTerminal:
			// The stop reached a terminal state before the cancel. If it
			// filled, the position is already flat: take that exit rather
			// than market-selling into a short.
			st, err := e.brk.GetOrderStatus(ctx, pos.StopOrderID)
			if err != nil {
				logger.Warn(ctx, "Stop status check failed, keeping position",
					"order_id", pos.StopOrderID, "error", err)
				return nil
			}
			if st.Status == types.StatusFilled {
				realized := e.ctl.realize(ctx, pos, st, tradelog.ReasonExitStop)
				metrics.Exits.WithLabelValues("stop").Inc()
				e.pos = nil
				res.PnL = e.ledger.TotalFloat()
				res.Reason = "POSITION_CLOSED"
				logger.Info(ctx, "Position closed", "realized_pnl", realized, "daily_pnl", res.PnL)
				return nil
			}
			pos.StopOrderID = ""
		case CancelOK:
			pos.StopOrderID = ""
		}
	}

	sellID, err := e.brk.PlaceMarketOrder(ctx, e.instrumentID, types.SideSell, pos.Quantity)
	if err != nil {
		return fmt.Errorf("red-candle sell: %w", err)
	}
	res.OrderIDs = append(res.OrderIDs, sellID)
	st, err := AwaitTerminal(ctx, e.brk, sellID, e.pollInterval(), e.maxWait())
	if err != nil {
		return fmt.Errorf("red-candle sell %s: %w", sellID, err)
	}
	logger.Trade(ctx, e.cfg.Symbol, string(types.SideSell), pos.Quantity, st.AvgFillPrice, sellID,
		"reason", tradelog.ReasonSellRedCandle)
	_ = tradelog.Append(tradelog.Entry{
		Symbol:  e.cfg.Symbol,
		Side:    string(types.SideSell),
		Qty:     pos.Quantity,
		Price:   st.AvgFillPrice,
		OrderID: sellID,
		Reason:  tradelog.ReasonSellRedCandle,
	})

	buyID, err := e.brk.PlaceLimitOrder(ctx, e.instrumentID, pos.Quantity, st.AvgFillPrice)
	if err != nil {
		return fmt.Errorf("buy-back order: %w", err)
	}
	res.OrderIDs = append(res.OrderIDs, buyID)
	// The buy-back waits as long as it takes; the position is
	// intentionally parked at this price level.
	bst, err := AwaitTerminal(ctx, e.brk, buyID, e.pollInterval(), 0)
	if err != nil {
		return fmt.Errorf("buy-back order %s: %w", buyID, err)
	}
	logger.Trade(ctx, e.cfg.Symbol, string(types.SideBuy), pos.Quantity, bst.AvgFillPrice, buyID,
		"reason", tradelog.ReasonEntryBuyback)
	_ = tradelog.Append(tradelog.Entry{
		Symbol:  e.cfg.Symbol,
		Side:    string(types.SideBuy),
		Qty:     pos.Quantity,
		Price:   bst.AvgFillPrice,
		OrderID: buyID,
		Reason:  tradelog.ReasonEntryBuyback,
	})

	pos.EntryPrice = bst.AvgFillPrice
	pos.StopPrice = 0
	e.entryATR = atr
	return nil
}

// rollover closes out the previous trading day: reset the PnL gauge,
// write the EOD summary, and optionally sweep realized profit out.
func (e *scalpEngine) rollover(ctx context.Context, now time.Time, closedPnL float64) {
	logger.Info(ctx, "Daily ledger rolled over", "closed_pnl", closedPnL)
	metrics.DailyPnL.Set(0)

	day := now.AddDate(0, 0, -1)
	if _, err := eod.SummarizeDay(day); err != nil {
		logger.Warn(ctx, "EOD summary failed", "day", day.Format("2006-01-02"), "error", err)
	}

	if e.cfg.Withdraw.Enabled && closedPnL > e.cfg.Withdraw.MinProfit {
		if err := e.brk.Withdraw(ctx, closedPnL, e.cfg.Currency); err != nil {
			logger.ErrorWithErr(ctx, "Profit withdrawal failed", err, "amount", closedPnL)
		} else {
			logger.Info(ctx, "Profit withdrawn", "amount", closedPnL, "currency", e.cfg.Currency)
		}
	}
}

func (e *scalpEngine) skip(res *types.CycleResult, reason string) *types.CycleResult {
	metrics.CyclesSkipped.WithLabelValues(reason).Inc()
	res.Reason = reason
	return res
}

func (e *scalpEngine) pollInterval() time.Duration {
	return time.Duration(e.cfg.Poll.PriceSeconds) * time.Second
}

func (e *scalpEngine) maxWait() time.Duration {
	return time.Duration(e.cfg.Poll.MaxWaitSeconds) * time.Second
}
