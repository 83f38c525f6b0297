// Package paper is an in-memory execution venue used for DRY_RUN mode
// and tests. Market orders fill immediately at the touch, stop and
// limit orders rest until a subsequent quote crosses them. No external
// calls are made.
package paper

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"scalp-trading-bot/internal/interfaces"
	"scalp-trading-bot/internal/types"
)

type restingOrder struct {
	state types.OrderState
	typ   types.OrderType
	side  types.Side
	qty   float64
	price float64 // limit or stop trigger
}

type Broker struct {
	mu     sync.Mutex
	instID string
	quote  types.Quote
	script []types.Quote // popped one per GetQuote when non-empty
	bars   []types.Bar
	cash   float64
	pos    *types.Position
	orders map[string]*restingOrder
	seq    int
}

var _ interfaces.Broker = (*Broker)(nil)

func New(symbol string, startingCash float64) *Broker {
	return &Broker{
		instID: "PAPER-" + symbol,
		cash:   startingCash,
		orders: make(map[string]*restingOrder),
	}
}

// SetQuote fixes the market the broker reports until changed.
func (b *Broker) SetQuote(q types.Quote) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.quote = q
	b.trigger(q)
}

// PushQuotes enqueues a deterministic quote sequence; GetQuote pops one
// per call until the script is drained, then the last quote sticks.
func (b *Broker) PushQuotes(qs ...types.Quote) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.script = append(b.script, qs...)
}

// SetBars fixes the historical bars the broker reports.
func (b *Broker) SetBars(bars []types.Bar) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.bars = bars
}

// SetPosition seeds an open position (restart scenarios in tests).
func (b *Broker) SetPosition(p *types.Position) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.pos = p
}

func (b *Broker) SearchInstrument(ctx context.Context, symbol, assetType string) (string, error) {
	return "PAPER-" + symbol, nil
}

func (b *Broker) GetQuote(ctx context.Context, instrumentID string) (types.Quote, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.script) > 0 {
		b.quote = b.script[0]
		b.script = b.script[1:]
	}
	q := b.quote
	if q.Timestamp.IsZero() {
		q.Timestamp = time.Now()
	}
	b.trigger(q)
	return q, nil
}

func (b *Broker) GetHistoricalBars(ctx context.Context, instrumentID string, lookback time.Duration) ([]types.Bar, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.bars) > 0 {
		return append([]types.Bar(nil), b.bars...), nil
	}
	return syntheticBars(int(lookback.Minutes())), nil
}

func (b *Broker) PlaceMarketOrder(ctx context.Context, instrumentID string, side types.Side, quantity float64) (string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	id := b.nextID()
	price := b.quote.Ask
	if side == types.SideSell {
		price = b.quote.Bid
	}
	b.orders[id] = &restingOrder{
		state: types.OrderState{ID: id, Status: types.StatusFilled, AvgFillPrice: price},
		typ:   types.OrderMarket,
		side:  side,
		qty:   quantity,
	}
	b.settle(side, quantity, price)
	return id, nil
}

func (b *Broker) PlaceLimitOrder(ctx context.Context, instrumentID string, quantity, limitPrice float64) (string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	id := b.nextID()
	// Buy-back convention: resting limits here are buys; the bot only
	// uses limit orders to re-enter at the sale price.
	o := &restingOrder{
		state: types.OrderState{ID: id, Status: types.StatusPending},
		typ:   types.OrderLimit,
		side:  types.SideBuy,
		qty:   quantity,
		price: limitPrice,
	}
	b.orders[id] = o
	b.trigger(b.quote)
	return id, nil
}

func (b *Broker) PlaceStopOrder(ctx context.Context, instrumentID string, quantity, stopPrice float64) (string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	id := b.nextID()
	b.orders[id] = &restingOrder{
		state: types.OrderState{ID: id, Status: types.StatusPending},
		typ:   types.OrderStop,
		side:  types.SideSell,
		qty:   quantity,
		price: stopPrice,
	}
	return id, nil
}

func (b *Broker) GetOrderStatus(ctx context.Context, orderID string) (types.OrderState, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	o, ok := b.orders[orderID]
	if !ok {
		return types.OrderState{}, fmt.Errorf("unknown order %s", orderID)
	}
	return o.state, nil
}

func (b *Broker) CancelOrder(ctx context.Context, orderID string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	o, ok := b.orders[orderID]
	if !ok {
		return fmt.Errorf("unknown order %s", orderID)
	}
	// Cancelling an already-terminal order is not an error at the venue.
	if o.state.Status.IsTerminal() {
		return nil
	}
	o.state.Status = types.StatusCancelled
	return nil
}

func (b *Broker) GetOpenPosition(ctx context.Context, instrumentID string) (*types.Position, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.pos == nil {
		return nil, nil
	}
	cp := *b.pos
	return &cp, nil
}

func (b *Broker) GetCashBalance(ctx context.Context, currency string) (float64, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.cash, nil
}

func (b *Broker) Withdraw(ctx context.Context, amount float64, currency string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if amount > b.cash {
		return fmt.Errorf("insufficient cash: have %.2f, want %.2f", b.cash, amount)
	}
	b.cash -= amount
	return nil
}

// trigger fills resting stop/limit orders crossed by q. Caller holds mu.
func (b *Broker) trigger(q types.Quote) {
	for _, o := range b.orders {
		if o.state.Status != types.StatusPending {
			continue
		}
		switch o.typ {
		case types.OrderStop:
			if q.Bid <= o.price {
				o.state.Status = types.StatusFilled
				o.state.AvgFillPrice = o.price
				b.settle(o.side, o.qty, o.price)
			}
		case types.OrderLimit:
			if o.side == types.SideBuy && q.Ask <= o.price {
				o.state.Status = types.StatusFilled
				o.state.AvgFillPrice = o.price
				b.settle(o.side, o.qty, o.price)
			}
		}
	}
}

// settle updates cash and the single position. Caller holds mu.
func (b *Broker) settle(side types.Side, qty, price float64) {
	if side == types.SideBuy {
		b.cash -= qty * price
		if b.pos == nil {
			b.pos = &types.Position{InstrumentID: b.instID, Quantity: qty, EntryPrice: price}
		} else {
			total := b.pos.EntryPrice*b.pos.Quantity + price*qty
			b.pos.Quantity += qty
			b.pos.EntryPrice = total / b.pos.Quantity
		}
		return
	}
	b.cash += qty * price
	if b.pos != nil {
		b.pos.Quantity -= qty
		if b.pos.Quantity <= 0 {
			b.pos = nil
		}
	}
}

func (b *Broker) nextID() string {
	b.seq++
	return fmt.Sprintf("SIM-%d", b.seq)
}

func syntheticBars(n int) []types.Bar {
	if n <= 0 {
		n = 20
	}
	bars := make([]types.Bar, 0, n)
	base := 100.0
	now := time.Now()
	for i := n; i > 0; i-- {
		c := base + float64(i%7) + (rand.Float64()-0.5)*2
		h := c + rand.Float64()*1.5
		l := c - rand.Float64()*1.5
		bars = append(bars, types.Bar{
			Timestamp: now.Add(-time.Duration(i) * time.Minute),
			Open:      c - 0.2,
			High:      h,
			Low:       l,
			Close:     c,
		})
	}
	return bars
}
