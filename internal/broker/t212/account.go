package t212

import (
	"context"
	"fmt"
	"math"

	"scalp-trading-bot/internal/types"
)

type positionResp struct {
	InstrumentID  string  `json:"instrumentId"`
	Quantity      float64 `json:"quantity"`
	AvgEntryPrice float64 `json:"avgEntryPrice"`
}

// GetOpenPosition returns the open position for the instrument, or nil
// when flat. The venue reports all positions; we filter client-side.
func (c *Client) GetOpenPosition(ctx context.Context, instrumentID string) (*types.Position, error) {
	var raw []positionResp
	resp, err := c.http.R().
		SetContext(ctx).
		SetResult(&raw).
		Get(pathPositions)
	if err != nil {
		return nil, fmt.Errorf("get positions: %w", err)
	}
	if resp.IsError() {
		return nil, httpError("get positions", resp)
	}
	for _, p := range raw {
		if p.InstrumentID == instrumentID && p.Quantity > 0 {
			return &types.Position{
				InstrumentID: p.InstrumentID,
				Quantity:     p.Quantity,
				EntryPrice:   p.AvgEntryPrice,
			}, nil
		}
	}
	return nil, nil
}

type accountsResp struct {
	Cash []struct {
		Currency  string  `json:"currency"`
		Available float64 `json:"available"`
	} `json:"cash"`
}

func (c *Client) GetCashBalance(ctx context.Context, currency string) (float64, error) {
	var ar accountsResp
	resp, err := c.http.R().
		SetContext(ctx).
		SetResult(&ar).
		Get(pathAccounts)
	if err != nil {
		return 0, fmt.Errorf("get cash balance: %w", err)
	}
	if resp.IsError() {
		return 0, httpError("get cash balance", resp)
	}
	for _, acct := range ar.Cash {
		if acct.Currency == currency {
			return acct.Available, nil
		}
	}
	return 0, nil
}

func (c *Client) Withdraw(ctx context.Context, amount float64, currency string) error {
	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(map[string]any{
			"amount":   math.Round(amount*100) / 100,
			"currency": currency,
		}).
		Post(pathWithdrawal)
	if err != nil {
		return fmt.Errorf("withdraw: %w", err)
	}
	if resp.IsError() {
		return httpError("withdraw", resp)
	}
	return nil
}
