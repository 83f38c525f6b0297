// Package pnl tracks realized profit and loss for one trading day.
//
// The ledger is an explicit state object owned by the engine, reset on
// the first observation after local midnight. Amounts are decimal so a
// day of sequential exits accumulates without float drift.
package pnl

import (
	"sync"
	"time"

	"github.com/shopspring/decimal"
)

// Ledger accumulates realized PnL across every exit for the trading day.
type Ledger struct {
	mu        sync.Mutex
	day       time.Time // midnight of the day the total belongs to
	total     decimal.Decimal
	lossLimit decimal.Decimal
}

// NewLedger creates a ledger for the day containing now, with the given
// daily loss limit (a positive number; entries are gated once total
// reaches -lossLimit).
func NewLedger(now time.Time, lossLimit float64) *Ledger {
	return &Ledger{
		day:       midnight(now),
		lossLimit: decimal.NewFromFloat(lossLimit),
	}
}

// Add records a realized exit: (fillPrice - entryPrice) * quantity.
func (l *Ledger) Add(fillPrice, entryPrice, quantity float64) decimal.Decimal {
	realized := decimal.NewFromFloat(fillPrice).
		Sub(decimal.NewFromFloat(entryPrice)).
		Mul(decimal.NewFromFloat(quantity))

	l.mu.Lock()
	defer l.mu.Unlock()
	l.total = l.total.Add(realized)
	return realized
}

// Total returns the accumulated realized PnL for the current day.
func (l *Ledger) Total() decimal.Decimal {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.total
}

// TotalFloat returns the day total as a float64 for logging and metrics.
func (l *Ledger) TotalFloat() float64 {
	f, _ := l.Total().Float64()
	return f
}

// LimitBreached reports whether the day total has reached the loss
// limit (total <= -limit). A zero limit disables the gate.
func (l *Ledger) LimitBreached() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.lossLimit.IsZero() {
		return false
	}
	return l.total.LessThanOrEqual(l.lossLimit.Neg())
}

// Rollover resets the total when now has crossed local midnight since
// the ledger's day. Returns true if a reset happened.
func (l *Ledger) Rollover(now time.Time) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	m := midnight(now)
	if m.Equal(l.day) {
		return false
	}
	l.day = m
	l.total = decimal.Zero
	return true
}

// UntilMidnight returns the duration from now until the next local
// midnight, padded slightly so a sleeper wakes on the new day.
func UntilMidnight(now time.Time) time.Duration {
	next := midnight(now).AddDate(0, 0, 1)
	return next.Sub(now) + 5*time.Second
}

func midnight(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}
