package engineobs

import (
	"context"
	"time"

	"scalp-trading-bot/internal/interfaces"
	"scalp-trading-bot/internal/logger"
	"scalp-trading-bot/internal/trace"
	"scalp-trading-bot/internal/types"
)

type observableEngine struct {
	engine interfaces.Engine
}

var _ interfaces.Engine = (*observableEngine)(nil)

func Wrap(eng interfaces.Engine) interfaces.Engine {
	return &observableEngine{
		engine: eng,
	}
}

func (oe *observableEngine) Step(ctx context.Context) (*types.CycleResult, error) {
	ctx, span := trace.StartSpan(ctx, "engine.Step")
	defer span.End()

	start := time.Now()

	result, err := oe.engine.Step(ctx)
	if err != nil {
		logger.ErrorWithErrSkip(ctx, 1, "Scalp cycle failed", err,
			"duration_ms", time.Since(start).Milliseconds(),
		)
		return nil, err
	}

	logger.InfoSkip(ctx, 1, "Scalp cycle completed",
		"symbol", result.Symbol,
		"signal", result.Signal,
		"atr", result.ATR,
		"reason", result.Reason,
		"daily_pnl", result.PnL,
		"duration_ms", time.Since(start).Milliseconds(),
	)

	return result, nil
}
