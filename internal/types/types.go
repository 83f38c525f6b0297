package types

import "time"

// Side is the direction of an order.
type Side string

const (
	SideBuy  Side = "BUY"
	SideSell Side = "SELL"
)

// OrderType distinguishes how an order executes.
type OrderType string

const (
	OrderMarket OrderType = "MARKET"
	OrderLimit  OrderType = "LIMIT"
	OrderStop   OrderType = "STOP"
)

// OrderStatus is the broker-reported lifecycle state of an order.
// PENDING is the only non-terminal state; the broker never transitions
// out of the other four.
type OrderStatus string

const (
	StatusPending   OrderStatus = "PENDING"
	StatusFilled    OrderStatus = "FILLED"
	StatusCancelled OrderStatus = "CANCELLED"
	StatusRejected  OrderStatus = "REJECTED"
	StatusExpired   OrderStatus = "EXPIRED"
)

// IsTerminal reports whether no further status transitions can occur.
func (s OrderStatus) IsTerminal() bool {
	switch s {
	case StatusFilled, StatusCancelled, StatusRejected, StatusExpired:
		return true
	}
	return false
}

// Signal is the output of the scalp decision engine.
type Signal string

const (
	SignalBuy  Signal = "BUY"
	SignalSell Signal = "SELL"
	SignalNone Signal = "NONE"
)

// Quote is a best bid/ask snapshot. Fetched fresh every cycle, never
// persisted. Bid <= Ask in a healthy market; not enforced here.
type Quote struct {
	Bid       float64   `json:"bid"`
	Ask       float64   `json:"ask"`
	Last      float64   `json:"last"`
	Timestamp time.Time `json:"timestamp"`
}

// Mid returns the bid/ask midpoint.
func (q Quote) Mid() float64 { return (q.Bid + q.Ask) / 2 }

// Spread returns ask minus bid.
func (q Quote) Spread() float64 { return q.Ask - q.Bid }

// Bar is one OHLC candle. Sequences are ordered oldest first.
type Bar struct {
	Timestamp time.Time `json:"timestamp"`
	Open      float64   `json:"open"`
	High      float64   `json:"high"`
	Low       float64   `json:"low"`
	Close     float64   `json:"close"`
}

// IsRed reports whether the bar closed below its open.
func (b Bar) IsRed() bool { return b.Close < b.Open }

// OrderState is the polled view of an order held by the caller. The
// broker owns the order; we only keep the identifier and ask.
type OrderState struct {
	ID           string      `json:"order_id"`
	Status       OrderStatus `json:"status"`
	AvgFillPrice float64     `json:"avg_fill_price,omitempty"`
}

// Position is one open holding in one instrument. StopPrice/StopOrderID
// are rewritten on every trail move; Quantity reaching zero destroys it.
type Position struct {
	InstrumentID string  `json:"instrument_id"`
	Quantity     float64 `json:"quantity"`
	EntryPrice   float64 `json:"entry_price"`
	StopPrice    float64 `json:"stop_price,omitempty"`
	StopOrderID  string  `json:"stop_order_id,omitempty"`
}

// CycleResult summarizes one bar-cadence step for logging/inspection.
type CycleResult struct {
	Symbol   string   `json:"symbol"`
	Signal   Signal   `json:"signal,omitempty"`
	ATR      float64  `json:"atr"`
	Quote    *Quote   `json:"quote,omitempty"`
	PnL      float64  `json:"pnl,omitempty"`
	OrderIDs []string `json:"order_ids,omitempty"`
	Reason   string   `json:"reason"`
}
