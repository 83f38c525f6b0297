package engine

import (
	"context"
	"fmt"
	"time"

	"scalp-trading-bot/internal/interfaces"
	"scalp-trading-bot/internal/logger"
	"scalp-trading-bot/internal/metrics"
	"scalp-trading-bot/internal/pnl"
	"scalp-trading-bot/internal/store"
	"scalp-trading-bot/internal/tradelog"
	"scalp-trading-bot/internal/types"
)

// controllerState tracks where the position is in its lifecycle.
type controllerState string

const (
	stateEntering controllerState = "ENTERING"
	stateOpen     controllerState = "OPEN"
	stateTrailing controllerState = "TRAILING"
	stateClosed   controllerState = "CLOSED"
)

// positionController owns exactly one open position's risk management,
// from the moment an entry fill is confirmed until the position is
// flat: it keeps a protective stop resting at the broker, trails it as
// the mid price rises, and liquidates at market when price gaps below
// where the resting stop would trigger.
//
// Invariant: the recorded stop price never decreases, and a resting
// stop order exists at all times except during the cancel->replace
// window (and is restored on the next tick if a replace fails).
type positionController struct {
	brk    interfaces.Broker
	ledger *pnl.Ledger
	symbol string

	stopATRMult  float64
	trailATRMult float64
	minPriceMove float64
	failsafeMult float64

	pollInterval time.Duration
	maxWait      time.Duration

	state controllerState
}

func newPositionController(cfg *store.Config, brk interfaces.Broker, ledger *pnl.Ledger) *positionController {
	return &positionController{
		brk:          brk,
		ledger:       ledger,
		symbol:       cfg.Symbol,
		stopATRMult:  cfg.Stop.ATRMult,
		trailATRMult: cfg.Stop.TrailATRMult,
		minPriceMove: cfg.Stop.MinPriceMove,
		failsafeMult: cfg.Stop.FailsafeMult,
		pollInterval: time.Duration(cfg.Poll.PriceSeconds) * time.Second,
		maxWait:      time.Duration(cfg.Poll.MaxWaitSeconds) * time.Second,
		state:        stateEntering,
	}
}

// Run manages pos until it closes or deadline passes, whichever comes
// first (a zero deadline means run until the position closes). It
// reports whether the position exited, and if so the realized PnL. atr
// is the volatility estimate captured at entry; it sizes both the
// initial stop distance and the trailing distance for the whole
// lifetime of the position.
func (pc *positionController) Run(ctx context.Context, pos *types.Position, atr float64, deadline time.Time) (bool, float64, error) {
	pc.state = stateOpen

	if pos.StopOrderID == "" {
		stop := pos.EntryPrice - pc.stopATRMult*atr
		id, err := pc.brk.PlaceStopOrder(ctx, pos.InstrumentID, pos.Quantity, stop)
		if err != nil {
			return false, 0, fmt.Errorf("placing initial stop: %w", err)
		}
		pos.StopPrice = stop
		pos.StopOrderID = id
		logger.Info(ctx, "Initial stop placed",
			"symbol", pc.symbol, "stop_price", stop, "order_id", id, "entry_price", pos.EntryPrice)
	}

	trailDist := pc.trailATRMult * atr

	for {
		if err := ctx.Err(); err != nil {
			return false, 0, err
		}
		if !deadline.IsZero() && time.Now().After(deadline) {
			return false, 0, nil
		}

		// Restore the protective order if a previous replace failed
		// mid-window; nothing else runs without a resting stop.
		if pos.StopOrderID == "" {
			id, err := pc.brk.PlaceStopOrder(ctx, pos.InstrumentID, pos.Quantity, pos.StopPrice)
			if err != nil {
				logger.ErrorWithErr(ctx, "Failed to restore resting stop", err,
					"symbol", pc.symbol, "stop_price", pos.StopPrice)
				if err := sleepCtx(ctx, pc.pollInterval); err != nil {
					return false, 0, err
				}
				continue
			}
			pos.StopOrderID = id
			logger.Info(ctx, "Resting stop restored", "symbol", pc.symbol, "stop_price", pos.StopPrice, "order_id", id)
		}

		q, err := pc.brk.GetQuote(ctx, pos.InstrumentID)
		if err != nil {
			logger.Warn(ctx, "Quote fetch failed, retrying next tick", "symbol", pc.symbol, "error", err)
			if err := sleepCtx(ctx, pc.pollInterval); err != nil {
				return false, 0, err
			}
			continue
		}
		mid := q.Mid()

		// 1) Trail: raise the stop when the mid has moved far enough.
		if candidate := mid - trailDist; candidate > pos.StopPrice+pc.minPriceMove {
			pc.trail(ctx, pos, candidate)
		}

		// 2) Failsafe: price has gapped below where the resting stop
		// would trigger; the stop can no longer be trusted.
		if mid <= pc.failsafeMult*pos.StopPrice {
			return pc.failsafeExit(ctx, pos, mid)
		}

		// 3) Normal exit: the resting stop filled.
		if pos.StopOrderID != "" {
			st, err := pc.brk.GetOrderStatus(ctx, pos.StopOrderID)
			switch {
			case err != nil:
				logger.Warn(ctx, "Stop status check failed, retrying next tick", "order_id", pos.StopOrderID, "error", err)
			case st.Status == types.StatusFilled:
				realized := pc.realize(ctx, pos, st, tradelog.ReasonExitStop)
				metrics.Exits.WithLabelValues("stop").Inc()
				return true, realized, nil
			case st.Status.IsTerminal():
				// Cancelled or rejected out from under us; restore next tick.
				logger.Warn(ctx, "Resting stop reached terminal state without filling",
					"order_id", pos.StopOrderID, "status", st.Status)
				pos.StopOrderID = ""
			}
		}

		if err := sleepCtx(ctx, pc.pollInterval); err != nil {
			return false, 0, err
		}
	}
}

// trail replaces the resting stop with one at candidate. The recorded
// stop only advances after the new order is accepted, so the invariant
// holds even when the cancel or the replacement fails.
func (pc *positionController) trail(ctx context.Context, pos *types.Position, candidate float64) {
	switch bestEffortCancel(ctx, pc.brk, pos.StopOrderID) {
	case CancelOK:
		id, err := pc.brk.PlaceStopOrder(ctx, pos.InstrumentID, pos.Quantity, candidate)
		if err != nil {
			// Cancel landed but the replacement did not: no protective
			// order is resting. Restored at the prior level next tick.
			logger.ErrorWithErr(ctx, "Stop replacement failed after cancel", err,
				"symbol", pc.symbol, "stop_price", pos.StopPrice, "candidate", candidate)
			pos.StopOrderID = ""
			return
		}
		logger.Info(ctx, "Trailing stop moved",
			"symbol", pc.symbol, "old_stop", pos.StopPrice, "new_stop", candidate, "order_id", id)
		pos.StopPrice = candidate
		pos.StopOrderID = id
		pc.state = stateTrailing
		metrics.StopMoves.Inc()
	case CancelAlreadyTerminal:
		// The old stop raced us, most likely to a fill; the exit check
		// below settles it. Do not place a second sell.
	case CancelFailed:
		// The old stop is still resting and still protective; skip the
		// move this tick rather than risk a duplicate stop.
		logger.Risk(ctx, pc.symbol, "STOP_CANCEL_FAILED", "order_id", pos.StopOrderID, "stop_price", pos.StopPrice)
	}
}

// failsafeExit liquidates at market after price gapped through the
// stop. If the resting stop turns out to have filled during the gap,
// its fill is taken instead of selling a second time.
func (pc *positionController) failsafeExit(ctx context.Context, pos *types.Position, mid float64) (bool, float64, error) {
	logger.Risk(ctx, pc.symbol, "FAILSAFE_TRIGGERED",
		"mid", mid, "stop_price", pos.StopPrice, "threshold", pc.failsafeMult*pos.StopPrice)
	metrics.Failsafes.Inc()

	if pos.StopOrderID != "" {
		if bestEffortCancel(ctx, pc.brk, pos.StopOrderID) == CancelAlreadyTerminal {
			if st, err := pc.brk.GetOrderStatus(ctx, pos.StopOrderID); err == nil && st.Status == types.StatusFilled {
				realized := pc.realize(ctx, pos, st, tradelog.ReasonExitStop)
				metrics.Exits.WithLabelValues("stop").Inc()
				return true, realized, nil
			}
		}
	}

	sellID, err := pc.brk.PlaceMarketOrder(ctx, pos.InstrumentID, types.SideSell, pos.Quantity)
	if err != nil {
		return false, 0, fmt.Errorf("failsafe market sell: %w", err)
	}
	st, err := AwaitTerminal(ctx, pc.brk, sellID, pc.pollInterval, pc.maxWait)
	if err != nil {
		return false, 0, fmt.Errorf("failsafe sell %s: %w", sellID, err)
	}
	realized := pc.realize(ctx, pos, st, tradelog.ReasonExitFailsafe)
	metrics.Exits.WithLabelValues("failsafe").Inc()
	return true, realized, nil
}

// realize books the exit into the daily ledger and trade log and marks
// the position flat.
func (pc *positionController) realize(ctx context.Context, pos *types.Position, fill types.OrderState, reason string) float64 {
	realized := pc.ledger.Add(fill.AvgFillPrice, pos.EntryPrice, pos.Quantity)
	f, _ := realized.Float64()
	metrics.DailyPnL.Set(pc.ledger.TotalFloat())

	logger.Trade(ctx, pc.symbol, string(types.SideSell), pos.Quantity, fill.AvgFillPrice, fill.ID,
		"reason", reason, "pnl", f, "daily_pnl", pc.ledger.TotalFloat())
	_ = tradelog.Append(tradelog.Entry{
		Symbol:  pc.symbol,
		Side:    string(types.SideSell),
		Qty:     pos.Quantity,
		Price:   fill.AvgFillPrice,
		OrderID: fill.ID,
		Reason:  reason,
		PnL:     f,
	})

	pos.Quantity = 0
	pos.StopOrderID = ""
	pc.state = stateClosed
	return f
}
