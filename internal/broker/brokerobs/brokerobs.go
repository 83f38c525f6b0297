// Package brokerobs wraps a Broker with observability middleware:
// a span per call, debug/info logging, and order counters.
package brokerobs

import (
	"context"
	"time"

	"scalp-trading-bot/internal/interfaces"
	"scalp-trading-bot/internal/logger"
	"scalp-trading-bot/internal/metrics"
	"scalp-trading-bot/internal/trace"
	"scalp-trading-bot/internal/types"
)

type observableBroker struct {
	broker interfaces.Broker
}

var _ interfaces.Broker = (*observableBroker)(nil)

// Wrap wraps a broker with observability middleware
func Wrap(broker interfaces.Broker) interfaces.Broker {
	return &observableBroker{broker: broker}
}

func (ob *observableBroker) GetQuote(ctx context.Context, instrumentID string) (types.Quote, error) {
	ctx, span := trace.StartSpan(ctx, "broker.GetQuote")
	defer span.End()

	q, err := ob.broker.GetQuote(ctx, instrumentID)
	if err != nil {
		logger.ErrorWithErrSkip(ctx, 1, "Failed to fetch quote", err, "instrument_id", instrumentID)
		return types.Quote{}, err
	}
	logger.DebugSkip(ctx, 1, "Quote fetched", "instrument_id", instrumentID, "bid", q.Bid, "ask", q.Ask, "last", q.Last)
	return q, nil
}

func (ob *observableBroker) GetHistoricalBars(ctx context.Context, instrumentID string, lookback time.Duration) ([]types.Bar, error) {
	ctx, span := trace.StartSpan(ctx, "broker.GetHistoricalBars")
	defer span.End()

	bars, err := ob.broker.GetHistoricalBars(ctx, instrumentID, lookback)
	if err != nil {
		logger.ErrorWithErrSkip(ctx, 1, "Failed to fetch bars", err, "instrument_id", instrumentID)
		return nil, err
	}
	logger.DebugSkip(ctx, 1, "Bars fetched", "instrument_id", instrumentID, "count", len(bars))
	return bars, nil
}

func (ob *observableBroker) PlaceMarketOrder(ctx context.Context, instrumentID string, side types.Side, quantity float64) (string, error) {
	ctx, span := trace.StartSpan(ctx, "broker.PlaceMarketOrder")
	defer span.End()

	id, err := ob.broker.PlaceMarketOrder(ctx, instrumentID, side, quantity)
	if err != nil {
		logger.ErrorWithErrSkip(ctx, 1, "Failed to place market order", err,
			"instrument_id", instrumentID, "side", side, "qty", quantity)
		return "", err
	}
	metrics.Orders.WithLabelValues(string(types.OrderMarket), string(side)).Inc()
	logger.InfoSkip(ctx, 1, "Market order placed",
		"instrument_id", instrumentID, "side", side, "qty", quantity, "order_id", id)
	return id, nil
}

func (ob *observableBroker) PlaceLimitOrder(ctx context.Context, instrumentID string, quantity, limitPrice float64) (string, error) {
	ctx, span := trace.StartSpan(ctx, "broker.PlaceLimitOrder")
	defer span.End()

	id, err := ob.broker.PlaceLimitOrder(ctx, instrumentID, quantity, limitPrice)
	if err != nil {
		logger.ErrorWithErrSkip(ctx, 1, "Failed to place limit order", err,
			"instrument_id", instrumentID, "qty", quantity, "limit_price", limitPrice)
		return "", err
	}
	metrics.Orders.WithLabelValues(string(types.OrderLimit), string(types.SideBuy)).Inc()
	logger.InfoSkip(ctx, 1, "Limit order placed",
		"instrument_id", instrumentID, "qty", quantity, "limit_price", limitPrice, "order_id", id)
	return id, nil
}

func (ob *observableBroker) PlaceStopOrder(ctx context.Context, instrumentID string, quantity, stopPrice float64) (string, error) {
	ctx, span := trace.StartSpan(ctx, "broker.PlaceStopOrder")
	defer span.End()

	id, err := ob.broker.PlaceStopOrder(ctx, instrumentID, quantity, stopPrice)
	if err != nil {
		logger.ErrorWithErrSkip(ctx, 1, "Failed to place stop order", err,
			"instrument_id", instrumentID, "qty", quantity, "stop_price", stopPrice)
		return "", err
	}
	metrics.Orders.WithLabelValues(string(types.OrderStop), string(types.SideSell)).Inc()
	logger.InfoSkip(ctx, 1, "Stop order placed",
		"instrument_id", instrumentID, "qty", quantity, "stop_price", stopPrice, "order_id", id)
	return id, nil
}

func (ob *observableBroker) GetOrderStatus(ctx context.Context, orderID string) (types.OrderState, error) {
	ctx, span := trace.StartSpan(ctx, "broker.GetOrderStatus")
	defer span.End()

	st, err := ob.broker.GetOrderStatus(ctx, orderID)
	if err != nil {
		logger.ErrorWithErrSkip(ctx, 1, "Failed to fetch order status", err, "order_id", orderID)
		return types.OrderState{}, err
	}
	logger.DebugSkip(ctx, 1, "Order status fetched", "order_id", orderID, "status", st.Status)
	return st, nil
}

func (ob *observableBroker) CancelOrder(ctx context.Context, orderID string) error {
	ctx, span := trace.StartSpan(ctx, "broker.CancelOrder")
	defer span.End()

	if err := ob.broker.CancelOrder(ctx, orderID); err != nil {
		logger.ErrorWithErrSkip(ctx, 1, "Failed to cancel order", err, "order_id", orderID)
		return err
	}
	logger.DebugSkip(ctx, 1, "Order cancelled", "order_id", orderID)
	return nil
}

func (ob *observableBroker) SearchInstrument(ctx context.Context, symbol, assetType string) (string, error) {
	ctx, span := trace.StartSpan(ctx, "broker.SearchInstrument")
	defer span.End()

	id, err := ob.broker.SearchInstrument(ctx, symbol, assetType)
	if err != nil {
		logger.ErrorWithErrSkip(ctx, 1, "Instrument search failed", err, "symbol", symbol, "asset_type", assetType)
		return "", err
	}
	logger.InfoSkip(ctx, 1, "Instrument resolved", "symbol", symbol, "instrument_id", id)
	return id, nil
}

func (ob *observableBroker) GetOpenPosition(ctx context.Context, instrumentID string) (*types.Position, error) {
	ctx, span := trace.StartSpan(ctx, "broker.GetOpenPosition")
	defer span.End()

	pos, err := ob.broker.GetOpenPosition(ctx, instrumentID)
	if err != nil {
		logger.ErrorWithErrSkip(ctx, 1, "Failed to fetch position", err, "instrument_id", instrumentID)
		return nil, err
	}
	return pos, nil
}

func (ob *observableBroker) GetCashBalance(ctx context.Context, currency string) (float64, error) {
	ctx, span := trace.StartSpan(ctx, "broker.GetCashBalance")
	defer span.End()

	cash, err := ob.broker.GetCashBalance(ctx, currency)
	if err != nil {
		logger.ErrorWithErrSkip(ctx, 1, "Failed to fetch cash balance", err, "currency", currency)
		return 0, err
	}
	logger.DebugSkip(ctx, 1, "Cash balance fetched", "currency", currency, "available", cash)
	return cash, nil
}

func (ob *observableBroker) Withdraw(ctx context.Context, amount float64, currency string) error {
	ctx, span := trace.StartSpan(ctx, "broker.Withdraw")
	defer span.End()

	if err := ob.broker.Withdraw(ctx, amount, currency); err != nil {
		logger.ErrorWithErrSkip(ctx, 1, "Withdrawal failed", err, "amount", amount, "currency", currency)
		return err
	}
	logger.InfoSkip(ctx, 1, "Withdrawal requested", "amount", amount, "currency", currency)
	return nil
}
