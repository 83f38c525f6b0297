package interfaces

import (
	"context"

	"scalp-trading-bot/internal/types"
)

type Engine interface {
	Step(ctx context.Context) (*types.CycleResult, error)
}
