package store

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(p, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	return p
}

func TestLoadConfigDefaults(t *testing.T) {
	p := writeConfig(t, `
symbol: AAPL
quantity: 1.5
`)
	cfg, err := LoadConfig(p)
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}
	if cfg.Mode != "DRY_RUN" {
		t.Errorf("Expected default mode DRY_RUN, got %s", cfg.Mode)
	}
	if cfg.Env != "demo" {
		t.Errorf("Expected default env demo, got %s", cfg.Env)
	}
	if cfg.Poll.BarSeconds != 60 || cfg.Poll.PriceSeconds != 5 {
		t.Errorf("Expected default polling 60/5, got %d/%d", cfg.Poll.BarSeconds, cfg.Poll.PriceSeconds)
	}
	if cfg.ATR.Period != 14 || cfg.ATR.Min != 2.0 {
		t.Errorf("Expected default ATR 14/2.0, got %d/%f", cfg.ATR.Period, cfg.ATR.Min)
	}
	if cfg.Stop.FailsafeMult != 0.995 {
		t.Errorf("Expected default failsafe 0.995, got %f", cfg.Stop.FailsafeMult)
	}
	if cfg.Risk.DailyLossLimit != 20.0 || cfg.Risk.MaxSpread != 0.20 {
		t.Errorf("Expected default risk 20/0.20, got %f/%f", cfg.Risk.DailyLossLimit, cfg.Risk.MaxSpread)
	}
	if !cfg.Entry.Basic || cfg.Entry.Compound {
		t.Error("Expected basic entry mode by default")
	}
	if cfg.Quantity != 1.5 {
		t.Errorf("Expected quantity 1.5, got %f", cfg.Quantity)
	}
}

func TestLoadConfigOverrides(t *testing.T) {
	p := writeConfig(t, `
mode: LIVE
env: live
symbol: MSFT
quantity: 2
poll:
  bar_seconds: 30
stop:
  failsafe_mult: 0.99
entry:
  compound: true
`)
	cfg, err := LoadConfig(p)
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}
	if cfg.Mode != "LIVE" || cfg.Env != "live" {
		t.Errorf("Expected LIVE/live, got %s/%s", cfg.Mode, cfg.Env)
	}
	if cfg.Poll.BarSeconds != 30 {
		t.Errorf("Expected bar_seconds 30, got %d", cfg.Poll.BarSeconds)
	}
	if cfg.Stop.FailsafeMult != 0.99 {
		t.Errorf("Expected failsafe_mult 0.99, got %f", cfg.Stop.FailsafeMult)
	}
	if !cfg.Entry.Compound {
		t.Error("Expected compound entry mode")
	}
}

func TestValidateRejectsBadValues(t *testing.T) {
	cases := []struct {
		name string
		body string
		want string
	}{
		{"bad mode", "mode: YOLO\nsymbol: AAPL\nquantity: 1\n", "invalid mode"},
		{"bad env", "env: staging\nsymbol: AAPL\nquantity: 1\n", "invalid env"},
		{"missing symbol", "quantity: 1\n", "symbol"},
		{"negative quantity", "symbol: AAPL\nquantity: -1\n", "quantity"},
		{"failsafe above one", "symbol: AAPL\nquantity: 1\nstop:\n  failsafe_mult: 1.5\n", "failsafe_mult"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			p := writeConfig(t, tc.body)
			_, err := LoadConfig(p)
			if err == nil {
				t.Fatal("Expected validation error")
			}
			if !strings.Contains(err.Error(), tc.want) {
				t.Errorf("Expected error mentioning %q, got %v", tc.want, err)
			}
		})
	}
}

func TestLoadConfigMissingFile(t *testing.T) {
	if _, err := LoadConfig(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Fatal("Expected error for missing file")
	}
}
