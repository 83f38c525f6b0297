package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"scalp-trading-bot/internal/interfaces"
	"scalp-trading-bot/internal/logger"
	"scalp-trading-bot/internal/types"
)

// ErrTimeout is returned by PollUntil when maxWait elapses before the
// condition holds. Only possible with a non-zero maxWait.
var ErrTimeout = errors.New("poll timed out")

// ErrOrderNotFilled is returned by AwaitTerminal when an order reaches
// a terminal state other than FILLED. The leg must be abandoned; a
// fresh order is required to retry.
var ErrOrderNotFilled = errors.New("order not filled")

// PollUntil invokes fn at a fixed interval (no backoff) until it
// reports done, fn fails, the context is cancelled, or maxWait elapses.
// maxWait == 0 polls forever, which matches the broker's poll-only
// status model; a positive maxWait surfaces ErrTimeout instead.
func PollUntil(ctx context.Context, interval, maxWait time.Duration, fn func(context.Context) (bool, error)) error {
	var deadline time.Time
	if maxWait > 0 {
		deadline = time.Now().Add(maxWait)
	}
	for {
		done, err := fn(ctx)
		if err != nil {
			return err
		}
		if done {
			return nil
		}
		if !deadline.IsZero() && !time.Now().Before(deadline) {
			return ErrTimeout
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(interval):
		}
	}
}

// AwaitTerminal blocks until the order reaches a terminal status,
// sleeping interval between status checks. On FILLED the returned state
// carries the average fill price; any other terminal status yields
// ErrOrderNotFilled. Transient status-fetch failures are logged and
// retried on the next tick rather than aborting the wait.
func AwaitTerminal(ctx context.Context, gw interfaces.OrderGateway, orderID string, interval, maxWait time.Duration) (types.OrderState, error) {
	var final types.OrderState
	err := PollUntil(ctx, interval, maxWait, func(ctx context.Context) (bool, error) {
		st, err := gw.GetOrderStatus(ctx, orderID)
		if err != nil {
			logger.Warn(ctx, "Order status check failed, retrying next tick", "order_id", orderID, "error", err)
			return false, nil
		}
		if st.Status.IsTerminal() {
			final = st
			return true, nil
		}
		return false, nil
	})
	if err != nil {
		return types.OrderState{}, err
	}
	if final.Status != types.StatusFilled {
		return final, fmt.Errorf("%w: order %s ended %s", ErrOrderNotFilled, orderID, final.Status)
	}
	return final, nil
}

// sleepCtx sleeps for d or until the context is cancelled.
func sleepCtx(ctx context.Context, d time.Duration) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(d):
		return nil
	}
}
