package engine

import (
	"time"

	"scalp-trading-bot/internal/interfaces"
	"scalp-trading-bot/internal/pnl"
	"scalp-trading-bot/internal/store"
)

func New(cfg *store.Config, brk interfaces.Broker) interfaces.Engine {
	ledger := pnl.NewLedger(time.Now(), cfg.Risk.DailyLossLimit)
	return &scalpEngine{
		cfg:    cfg,
		brk:    brk,
		ledger: ledger,
		ctl:    newPositionController(cfg, brk, ledger),
		now:    time.Now,
		sleep:  sleepCtx,
	}
}
