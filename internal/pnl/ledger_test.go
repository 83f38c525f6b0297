package pnl

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

func TestAddAccumulatesExactly(t *testing.T) {
	l := NewLedger(time.Now(), 20)

	// 0.1+0.2 style amounts that drift under float64 accumulation.
	for i := 0; i < 10; i++ {
		l.Add(100.10, 100.00, 1)
	}
	want := decimal.RequireFromString("1.0")
	if !l.Total().Equal(want) {
		t.Errorf("Expected total 1.0, got %s", l.Total())
	}

	l.Add(99.00, 100.00, 2.5)
	want = decimal.RequireFromString("-1.5")
	if !l.Total().Equal(want) {
		t.Errorf("Expected total -1.5, got %s", l.Total())
	}
}

func TestLimitBreached(t *testing.T) {
	l := NewLedger(time.Now(), 20)

	l.Add(88.00, 100.00, 1) // -12
	if l.LimitBreached() {
		t.Error("Expected limit not breached at -12 with limit 20")
	}
	l.Add(91.00, 100.00, 1) // -9, total -21
	if !l.LimitBreached() {
		t.Error("Expected limit breached at -21 with limit 20")
	}
}

func TestLimitBreachedExactBoundary(t *testing.T) {
	l := NewLedger(time.Now(), 20)
	l.Add(80.00, 100.00, 1) // exactly -20
	if !l.LimitBreached() {
		t.Error("Expected limit breached at exactly -20")
	}
}

func TestZeroLimitDisablesGate(t *testing.T) {
	l := NewLedger(time.Now(), 0)
	l.Add(0, 1000, 1)
	if l.LimitBreached() {
		t.Error("Expected zero limit to disable the gate")
	}
}

func TestRollover(t *testing.T) {
	day1 := time.Date(2025, 6, 2, 15, 0, 0, 0, time.Local)
	l := NewLedger(day1, 20)
	l.Add(95.00, 100.00, 1)

	if l.Rollover(day1.Add(2 * time.Hour)) {
		t.Error("Expected no rollover within the same day")
	}
	if l.TotalFloat() != -5 {
		t.Errorf("Expected total -5 before midnight, got %f", l.TotalFloat())
	}

	day2 := time.Date(2025, 6, 3, 0, 0, 1, 0, time.Local)
	if !l.Rollover(day2) {
		t.Error("Expected rollover after midnight")
	}
	if !l.Total().IsZero() {
		t.Errorf("Expected total reset to 0, got %s", l.Total())
	}
	if l.Rollover(day2.Add(time.Hour)) {
		t.Error("Expected no second rollover on the same day")
	}
}

func TestUntilMidnight(t *testing.T) {
	now := time.Date(2025, 6, 2, 23, 0, 0, 0, time.Local)
	d := UntilMidnight(now)
	// One hour plus the wake-up pad.
	if d < time.Hour || d > time.Hour+10*time.Second {
		t.Errorf("Expected ~1h until midnight, got %v", d)
	}
}
