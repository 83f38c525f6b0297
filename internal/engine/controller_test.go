package engine

import (
	"context"
	"fmt"
	"math"
	"sync"
	"testing"
	"time"

	"scalp-trading-bot/internal/pnl"
	"scalp-trading-bot/internal/types"
)

// quoteStep is one scripted market tick. Actions apply before the quote
// is returned, so the controller observes their effect on that tick.
type quoteStep struct {
	quote         types.Quote
	fillResting   bool // fill the pending stop at its trigger price
	cancelResting bool // cancel the pending stop out from under the bot
}

// fakeBroker is a scripted execution venue for engine tests. Unlike the
// paper broker, resting stops never fill on their own; the script
// decides when and whether they do, so gap scenarios are expressible.
type fakeBroker struct {
	mu     sync.Mutex
	script []quoteStep
	cur    types.Quote

	bars []types.Bar
	pos  *types.Position
	cash float64

	orders             map[string]*types.OrderState
	seq                int
	failCancel         map[string]bool
	fillOnFailedCancel bool // refused cancels leave the order filled

	marketSells []float64 // fill prices
	marketBuys  []float64
	buyQtys     []float64
	sellQtys    []float64
	stopPrices  []float64 // every stop placement, in order
	limitPrices []float64
	withdrawn   float64
}

func newFakeBroker() *fakeBroker {
	return &fakeBroker{
		orders:     make(map[string]*types.OrderState),
		failCancel: make(map[string]bool),
		cash:       10000,
	}
}

func mid(m float64) types.Quote { return types.Quote{Bid: m, Ask: m, Timestamp: time.Now()} }

func (f *fakeBroker) push(steps ...quoteStep) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.script = append(f.script, steps...)
}

func (f *fakeBroker) pendingStop() *types.OrderState {
	for _, st := range f.orders {
		if st.Status == types.StatusPending {
			return st
		}
	}
	return nil
}

func (f *fakeBroker) SearchInstrument(ctx context.Context, symbol, assetType string) (string, error) {
	return "FAKE-" + symbol, nil
}

func (f *fakeBroker) GetQuote(ctx context.Context, instrumentID string) (types.Quote, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.script) > 0 {
		step := f.script[0]
		f.script = f.script[1:]
		f.cur = step.quote
		if st := f.pendingStop(); st != nil {
			if step.fillResting {
				st.Status = types.StatusFilled
				st.AvgFillPrice = f.stopPrices[len(f.stopPrices)-1]
			} else if step.cancelResting {
				st.Status = types.StatusCancelled
			}
		}
	}
	return f.cur, nil
}

func (f *fakeBroker) GetHistoricalBars(ctx context.Context, instrumentID string, lookback time.Duration) ([]types.Bar, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]types.Bar(nil), f.bars...), nil
}

func (f *fakeBroker) PlaceMarketOrder(ctx context.Context, instrumentID string, side types.Side, quantity float64) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	id := f.nextID()
	price := f.cur.Ask
	if side == types.SideSell {
		price = f.cur.Bid
		f.marketSells = append(f.marketSells, price)
		f.sellQtys = append(f.sellQtys, quantity)
	} else {
		f.marketBuys = append(f.marketBuys, price)
		f.buyQtys = append(f.buyQtys, quantity)
	}
	f.orders[id] = &types.OrderState{ID: id, Status: types.StatusFilled, AvgFillPrice: price}
	return id, nil
}

func (f *fakeBroker) PlaceLimitOrder(ctx context.Context, instrumentID string, quantity, limitPrice float64) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	id := f.nextID()
	f.limitPrices = append(f.limitPrices, limitPrice)
	// Buy-backs fill immediately at the limit in these tests.
	f.orders[id] = &types.OrderState{ID: id, Status: types.StatusFilled, AvgFillPrice: limitPrice}
	return id, nil
}

func (f *fakeBroker) PlaceStopOrder(ctx context.Context, instrumentID string, quantity, stopPrice float64) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	id := f.nextID()
	f.stopPrices = append(f.stopPrices, stopPrice)
	f.orders[id] = &types.OrderState{ID: id, Status: types.StatusPending}
	return id, nil
}

func (f *fakeBroker) GetOrderStatus(ctx context.Context, orderID string) (types.OrderState, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	st, ok := f.orders[orderID]
	if !ok {
		return types.OrderState{}, fmt.Errorf("unknown order %s", orderID)
	}
	return *st, nil
}

func (f *fakeBroker) CancelOrder(ctx context.Context, orderID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failCancel[orderID] {
		if f.fillOnFailedCancel {
			if st, ok := f.orders[orderID]; ok && st.Status == types.StatusPending {
				st.Status = types.StatusFilled
			}
		}
		return fmt.Errorf("venue rejected cancel of %s", orderID)
	}
	st, ok := f.orders[orderID]
	if !ok {
		return fmt.Errorf("unknown order %s", orderID)
	}
	if st.Status.IsTerminal() {
		return nil
	}
	st.Status = types.StatusCancelled
	return nil
}

func (f *fakeBroker) GetOpenPosition(ctx context.Context, instrumentID string) (*types.Position, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.pos == nil {
		return nil, nil
	}
	cp := *f.pos
	return &cp, nil
}

func (f *fakeBroker) GetCashBalance(ctx context.Context, currency string) (float64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.cash, nil
}

func (f *fakeBroker) Withdraw(ctx context.Context, amount float64, currency string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.withdrawn += amount
	return nil
}

func (f *fakeBroker) nextID() string {
	f.seq++
	return fmt.Sprintf("ORD-%d", f.seq)
}

func testController(brk *fakeBroker, ledger *pnl.Ledger) *positionController {
	return &positionController{
		brk:          brk,
		ledger:       ledger,
		symbol:       "AAPL",
		stopATRMult:  1.0,
		trailATRMult: 1.0,
		minPriceMove: 0.005,
		failsafeMult: 0.995,
		pollInterval: time.Millisecond,
		maxWait:      time.Second,
		state:        stateEntering,
	}
}

func TestControllerStopExit(t *testing.T) {
	t.Setenv("TRADER_LOG_DIR", t.TempDir())
	brk := newFakeBroker()
	ledger := pnl.NewLedger(time.Now(), 20)
	pc := testController(brk, ledger)

	pos := &types.Position{InstrumentID: "FAKE-AAPL", Quantity: 2, EntryPrice: 100.00}
	brk.push(
		quoteStep{quote: mid(99.50)},                    // nothing moves
		quoteStep{quote: mid(99.00), fillResting: true}, // stop fills at 98.00
	)

	exited, realized, err := pc.Run(context.Background(), pos, 2.0, time.Time{})
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if !exited {
		t.Fatal("Expected position to exit")
	}
	if len(brk.stopPrices) != 1 || brk.stopPrices[0] != 98.00 {
		t.Errorf("Expected one stop at 98.00, got %v", brk.stopPrices)
	}
	if math.Abs(realized-(-4.0)) > 1e-9 {
		t.Errorf("Expected realized -4.0, got %f", realized)
	}
	if math.Abs(ledger.TotalFloat()-(-4.0)) > 1e-9 {
		t.Errorf("Expected ledger total -4.0, got %f", ledger.TotalFloat())
	}
}

func TestControllerTrailingStopMonotonic(t *testing.T) {
	t.Setenv("TRADER_LOG_DIR", t.TempDir())
	brk := newFakeBroker()
	ledger := pnl.NewLedger(time.Now(), 20)
	pc := testController(brk, ledger)

	pos := &types.Position{InstrumentID: "FAKE-AAPL", Quantity: 1, EntryPrice: 100.00}
	brk.push(
		quoteStep{quote: mid(103.00)},                    // trail 98.00 -> 101.00
		quoteStep{quote: mid(102.00)},                    // candidate 100.00: below stop, no move
		quoteStep{quote: mid(103.004)},                   // candidate 101.004: under min move, no move
		quoteStep{quote: mid(103.50)},                    // trail 101.00 -> 101.50
		quoteStep{quote: mid(103.00), fillResting: true}, // stop fills at 101.50
	)

	exited, realized, err := pc.Run(context.Background(), pos, 2.0, time.Time{})
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if !exited {
		t.Fatal("Expected position to exit")
	}
	want := []float64{98.00, 101.00, 101.50}
	if len(brk.stopPrices) != len(want) {
		t.Fatalf("Expected stops %v, got %v", want, brk.stopPrices)
	}
	for i := range want {
		if math.Abs(brk.stopPrices[i]-want[i]) > 1e-9 {
			t.Errorf("Stop %d: expected %f, got %f", i, want[i], brk.stopPrices[i])
		}
	}
	for i := 1; i < len(brk.stopPrices); i++ {
		if brk.stopPrices[i] < brk.stopPrices[i-1] {
			t.Errorf("Stop price decreased: %v", brk.stopPrices)
		}
	}
	if math.Abs(realized-1.50) > 1e-9 {
		t.Errorf("Expected realized 1.50, got %f", realized)
	}
}

func TestControllerFailsafeAfterGap(t *testing.T) {
	t.Setenv("TRADER_LOG_DIR", t.TempDir())
	brk := newFakeBroker()
	ledger := pnl.NewLedger(time.Now(), 20)
	pc := testController(brk, ledger)

	// Entry at 100.00 with ATR 2.00: stop rests at 98.00. Mid rises to
	// 103.00 so the stop trails to 101.00. Mid then gaps to 100.40,
	// below 0.995*101.00 = 100.495, without the stop filling.
	pos := &types.Position{InstrumentID: "FAKE-AAPL", Quantity: 5, EntryPrice: 100.00}
	brk.push(
		quoteStep{quote: mid(103.00)},
		quoteStep{quote: mid(100.40)},
	)

	exited, realized, err := pc.Run(context.Background(), pos, 2.0, time.Time{})
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if !exited {
		t.Fatal("Expected position to exit")
	}
	if len(brk.marketSells) != 1 || math.Abs(brk.marketSells[0]-100.40) > 1e-9 {
		t.Errorf("Expected one market sell at 100.40, got %v", brk.marketSells)
	}
	if math.Abs(realized-2.0) > 1e-9 {
		t.Errorf("Expected realized 2.0, got %f", realized)
	}
	if math.Abs(ledger.TotalFloat()-2.0) > 1e-9 {
		t.Errorf("Expected ledger total 2.0, got %f", ledger.TotalFloat())
	}
}

func TestControllerFailsafeBoundaryEquality(t *testing.T) {
	t.Setenv("TRADER_LOG_DIR", t.TempDir())
	brk := newFakeBroker()
	ledger := pnl.NewLedger(time.Now(), 20)
	pc := testController(brk, ledger)

	// Stop rests at 98.00; the threshold is exactly 0.995*98.00 = 97.51.
	// Equality must fire.
	pos := &types.Position{InstrumentID: "FAKE-AAPL", Quantity: 1, EntryPrice: 100.00}
	brk.push(quoteStep{quote: mid(0.995 * 98.00)})

	exited, _, err := pc.Run(context.Background(), pos, 2.0, time.Time{})
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if !exited {
		t.Fatal("Expected failsafe exit at the exact threshold")
	}
	if len(brk.marketSells) != 1 {
		t.Errorf("Expected one market sell, got %d", len(brk.marketSells))
	}
}

func TestControllerTrailSkippedWhenCancelFails(t *testing.T) {
	t.Setenv("TRADER_LOG_DIR", t.TempDir())
	brk := newFakeBroker()
	ledger := pnl.NewLedger(time.Now(), 20)
	pc := testController(brk, ledger)

	pos := &types.Position{InstrumentID: "FAKE-AAPL", Quantity: 1, EntryPrice: 100.00}
	brk.push(
		quoteStep{quote: mid(103.00)},                    // trail wanted, cancel refused
		quoteStep{quote: mid(103.00), fillResting: true}, // original stop fills at 98.00
	)
	// Refuse every cancel; the initial stop is placed before the first tick.
	brk.failCancel["ORD-1"] = true

	exited, realized, err := pc.Run(context.Background(), pos, 2.0, time.Time{})
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if !exited {
		t.Fatal("Expected position to exit")
	}
	if len(brk.stopPrices) != 1 {
		t.Errorf("Expected trail move to be skipped, stops: %v", brk.stopPrices)
	}
	if math.Abs(realized-(-2.0)) > 1e-9 {
		t.Errorf("Expected realized -2.0 from the original stop, got %f", realized)
	}
}

func TestControllerRestoresExternallyCancelledStop(t *testing.T) {
	t.Setenv("TRADER_LOG_DIR", t.TempDir())
	brk := newFakeBroker()
	ledger := pnl.NewLedger(time.Now(), 20)
	pc := testController(brk, ledger)

	pos := &types.Position{InstrumentID: "FAKE-AAPL", Quantity: 1, EntryPrice: 100.00}
	brk.push(
		quoteStep{quote: mid(100.00), cancelResting: true}, // venue cancels the stop
		quoteStep{quote: mid(100.00)},                      // bot re-places it
		quoteStep{quote: mid(100.00), fillResting: true},
	)

	exited, _, err := pc.Run(context.Background(), pos, 2.0, time.Time{})
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if !exited {
		t.Fatal("Expected position to exit")
	}
	if len(brk.stopPrices) != 2 {
		t.Fatalf("Expected the stop to be re-placed once, stops: %v", brk.stopPrices)
	}
	if brk.stopPrices[0] != brk.stopPrices[1] {
		t.Errorf("Expected restoration at the same level, got %v", brk.stopPrices)
	}
}

func TestControllerDeadlineReturnsWithoutExit(t *testing.T) {
	t.Setenv("TRADER_LOG_DIR", t.TempDir())
	brk := newFakeBroker()
	ledger := pnl.NewLedger(time.Now(), 20)
	pc := testController(brk, ledger)

	pos := &types.Position{InstrumentID: "FAKE-AAPL", Quantity: 1, EntryPrice: 100.00}
	brk.push(quoteStep{quote: mid(100.00)})

	exited, _, err := pc.Run(context.Background(), pos, 2.0, time.Now().Add(20*time.Millisecond))
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if exited {
		t.Fatal("Expected the deadline to return control with the position open")
	}
	if pos.StopOrderID == "" {
		t.Error("Expected the stop to still be resting")
	}
	if ledger.TotalFloat() != 0 {
		t.Errorf("Expected no realized PnL, got %f", ledger.TotalFloat())
	}
}
