package engine

import (
	"context"

	"scalp-trading-bot/internal/interfaces"
	"scalp-trading-bot/internal/logger"
)

// CancelOutcome classifies a best-effort cancel attempt. AlreadyTerminal
// is benign: the order raced us to a fill or cancel. Failed on a
// still-resting order is surfaced to the caller rather than swallowed.
type CancelOutcome int

const (
	CancelOK CancelOutcome = iota
	CancelAlreadyTerminal
	CancelFailed
)

// bestEffortCancel cancels orderID, distinguishing "already terminal"
// from a genuine failure. The status is re-checked after a failed
// cancel because the order may have reached a terminal state between
// our check and the cancel hitting the venue.
func bestEffortCancel(ctx context.Context, gw interfaces.OrderGateway, orderID string) CancelOutcome {
	if st, err := gw.GetOrderStatus(ctx, orderID); err == nil && st.Status.IsTerminal() {
		return CancelAlreadyTerminal
	}
	if err := gw.CancelOrder(ctx, orderID); err != nil {
		if st, err2 := gw.GetOrderStatus(ctx, orderID); err2 == nil && st.Status.IsTerminal() {
			return CancelAlreadyTerminal
		}
		logger.Warn(ctx, "Cancel failed on a resting order", "order_id", orderID, "error", err)
		return CancelFailed
	}
	return CancelOK
}
