package store

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Mode      string  `yaml:"mode"` // DRY_RUN or LIVE
	Env       string  `yaml:"env"`  // demo or live broker environment
	Symbol    string  `yaml:"symbol"`
	AssetType string  `yaml:"asset_type"`
	Currency  string  `yaml:"currency"`
	Quantity  float64 `yaml:"quantity"` // fractional shares per cycle

	Poll struct {
		BarSeconds     int `yaml:"bar_seconds"`      // new-bar cadence
		PriceSeconds   int `yaml:"price_seconds"`    // fill/stop polling cadence
		MaxWaitSeconds int `yaml:"max_wait_seconds"` // 0 = poll forever
	} `yaml:"poll"`

	Bands struct {
		BuyRatio  float64 `yaml:"buy_ratio"`
		SellRatio float64 `yaml:"sell_ratio"`
	} `yaml:"bands"`

	ATR struct {
		Period int     `yaml:"period"`
		Min    float64 `yaml:"min"` // skip cycle when ATR below this
	} `yaml:"atr"`

	Stop struct {
		ATRMult      float64 `yaml:"atr_mult"`       // initial stop distance
		TrailATRMult float64 `yaml:"trail_atr_mult"` // trailing distance
		SellATRMult  float64 `yaml:"sell_atr_mult"`  // red-candle drop threshold
		MinPriceMove float64 `yaml:"min_price_move"` // minimum trail increment
		FailsafeMult float64 `yaml:"failsafe_mult"`  // mid <= mult*stop fires market exit
	} `yaml:"stop"`

	Risk struct {
		DailyLossLimit float64 `yaml:"daily_loss_limit"`
		MaxSpread      float64 `yaml:"max_spread"`
	} `yaml:"risk"`

	Entry struct {
		Basic    bool `yaml:"basic"`
		Compound bool `yaml:"compound"` // takes precedence when both set
	} `yaml:"entry"`

	Withdraw struct {
		Enabled   bool    `yaml:"enabled"`
		MinProfit float64 `yaml:"min_profit"`
	} `yaml:"withdraw"`

	Metrics struct {
		Enabled bool   `yaml:"enabled"`
		Addr    string `yaml:"addr"`
	} `yaml:"metrics"`
}

func (c *Config) Validate() error {
	if c.Mode != "DRY_RUN" && c.Mode != "LIVE" {
		return fmt.Errorf("invalid mode '%s': must be 'DRY_RUN' or 'LIVE'", c.Mode)
	}
	if c.Env != "demo" && c.Env != "live" {
		return fmt.Errorf("invalid env '%s': must be 'demo' or 'live'", c.Env)
	}
	if c.Symbol == "" {
		return fmt.Errorf("symbol cannot be empty")
	}
	if c.Quantity <= 0 {
		return fmt.Errorf("quantity must be positive, got %.4f", c.Quantity)
	}
	if c.ATR.Period <= 0 {
		return fmt.Errorf("atr.period must be positive, got %d", c.ATR.Period)
	}
	if c.Stop.FailsafeMult <= 0 || c.Stop.FailsafeMult >= 1 {
		return fmt.Errorf("stop.failsafe_mult must be in (0,1), got %.4f", c.Stop.FailsafeMult)
	}
	if c.Bands.BuyRatio < 0 || c.Bands.SellRatio < 0 {
		return fmt.Errorf("bands ratios must be non-negative")
	}
	if c.Risk.DailyLossLimit < 0 {
		return fmt.Errorf("risk.daily_loss_limit must be non-negative, got %.2f", c.Risk.DailyLossLimit)
	}
	return nil
}

func LoadConfig(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var c Config
	if err := yaml.Unmarshal(b, &c); err != nil {
		return nil, err
	}
	c.applyDefaults()
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return &c, nil
}

func (c *Config) applyDefaults() {
	if c.Mode == "" {
		c.Mode = "DRY_RUN"
	}
	if c.Env == "" {
		c.Env = "demo"
	}
	if c.AssetType == "" {
		c.AssetType = "EQUITY"
	}
	if c.Currency == "" {
		c.Currency = "EUR"
	}
	if c.Poll.BarSeconds == 0 {
		c.Poll.BarSeconds = 60
	}
	if c.Poll.PriceSeconds == 0 {
		c.Poll.PriceSeconds = 5
	}
	if c.Bands.BuyRatio == 0 {
		c.Bands.BuyRatio = 0.002
	}
	if c.Bands.SellRatio == 0 {
		c.Bands.SellRatio = 0.002
	}
	if c.ATR.Period == 0 {
		c.ATR.Period = 14
	}
	if c.ATR.Min == 0 {
		c.ATR.Min = 2.0
	}
	if c.Stop.ATRMult == 0 {
		c.Stop.ATRMult = 1.0
	}
	if c.Stop.TrailATRMult == 0 {
		c.Stop.TrailATRMult = 1.0
	}
	if c.Stop.SellATRMult == 0 {
		c.Stop.SellATRMult = 1.0
	}
	if c.Stop.MinPriceMove == 0 {
		c.Stop.MinPriceMove = 0.005
	}
	if c.Stop.FailsafeMult == 0 {
		c.Stop.FailsafeMult = 0.995
	}
	if c.Risk.DailyLossLimit == 0 {
		c.Risk.DailyLossLimit = 20.0
	}
	if c.Risk.MaxSpread == 0 {
		c.Risk.MaxSpread = 0.20
	}
	if !c.Entry.Basic && !c.Entry.Compound {
		c.Entry.Basic = true
	}
	if c.Metrics.Addr == "" {
		c.Metrics.Addr = ":9090"
	}
}
