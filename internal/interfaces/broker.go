package interfaces

import (
	"context"
	"time"

	"scalp-trading-bot/internal/types"
)

// MarketData serves quotes and historical bars for one instrument.
type MarketData interface {
	// GetQuote returns the current best bid/ask/last for an instrument.
	GetQuote(ctx context.Context, instrumentID string) (types.Quote, error)

	// GetHistoricalBars returns the last lookback minutes of 1-minute
	// OHLC bars, ordered oldest first.
	GetHistoricalBars(ctx context.Context, instrumentID string, lookback time.Duration) ([]types.Bar, error)
}

// OrderGateway places and manages orders. Order status is poll-only;
// there is no push notification.
type OrderGateway interface {
	PlaceMarketOrder(ctx context.Context, instrumentID string, side types.Side, quantity float64) (string, error)
	PlaceLimitOrder(ctx context.Context, instrumentID string, quantity, limitPrice float64) (string, error)
	PlaceStopOrder(ctx context.Context, instrumentID string, quantity, stopPrice float64) (string, error)

	GetOrderStatus(ctx context.Context, orderID string) (types.OrderState, error)

	// CancelOrder is best-effort: it must not fail fatally when the
	// order already reached a terminal state.
	CancelOrder(ctx context.Context, orderID string) error
}

// Account covers instrument lookup, position and cash queries.
type Account interface {
	// SearchInstrument resolves a ticker symbol to an instrument ID.
	// Fails if there is no match.
	SearchInstrument(ctx context.Context, symbol, assetType string) (string, error)

	// GetOpenPosition returns the open position for an instrument, or
	// nil if flat.
	GetOpenPosition(ctx context.Context, instrumentID string) (*types.Position, error)

	// GetCashBalance returns the available balance in the given currency.
	GetCashBalance(ctx context.Context, currency string) (float64, error)

	// Withdraw moves realized profit back out of the account.
	Withdraw(ctx context.Context, amount float64, currency string) error
}

// Broker is the full surface the bot needs from an execution venue.
// Session establishment (cookies, bearer tokens) is the implementation's
// concern; every call here is assumed already authenticated.
type Broker interface {
	MarketData
	OrderGateway
	Account
}
