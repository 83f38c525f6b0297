// Package t212 is the REST client for the broker's equity API.
//
// The upstream surface is third-party and versioned; the paths used
// here follow the /equity/... variant and are centralized below so a
// contract change touches one place. Session establishment (cookies,
// challenge solving) is out of scope: the client only needs a bearer
// token that is already authorized.
package t212

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/google/uuid"

	"scalp-trading-bot/internal/interfaces"
	"scalp-trading-bot/internal/types"
)

// ErrNoInstrument is returned when a symbol search has no match.
var ErrNoInstrument = errors.New("no instrument found")

const (
	demoBaseURL = "https://demo.trading212.com"
	liveBaseURL = "https://api.trading212.com"

	pathInstrumentSearch = "/equity/instrument/search"
	pathPrice            = "/equity/price"
	pathHistoricalBars   = "/equity/historicalBars"
	pathOrder            = "/equity/order"
	pathPositions        = "/equity/positions"
	pathAccounts         = "/equity/accounts"
	pathWithdrawal       = "/withdrawal"
)

type Params struct {
	APIKey  string
	Env     string // "demo" or "live"
	BaseURL string // optional override, used by tests
}

type Client struct {
	http *resty.Client
}

var _ interfaces.Broker = (*Client)(nil)

func New(p Params) *Client {
	base := p.BaseURL
	if base == "" {
		if p.Env == "live" {
			base = liveBaseURL
		} else {
			base = demoBaseURL
		}
	}

	c := resty.New()
	c.SetBaseURL(base)
	c.SetTimeout(15 * time.Second)
	c.SetAuthToken(p.APIKey)
	c.SetHeader("Content-Type", "application/json")
	c.SetHeader("Accept", "application/json")

	return &Client{http: c}
}

type instrumentHit struct {
	ID        string `json:"id"`
	Symbol    string `json:"symbol"`
	AssetType string `json:"assetType"`
}

func (c *Client) SearchInstrument(ctx context.Context, symbol, assetType string) (string, error) {
	var hits []instrumentHit
	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(map[string]string{"symbol": symbol, "assetType": assetType}).
		SetResult(&hits).
		Post(pathInstrumentSearch)
	if err != nil {
		return "", fmt.Errorf("instrument search: %w", err)
	}
	if resp.IsError() {
		return "", httpError("instrument search", resp)
	}
	if len(hits) == 0 {
		return "", fmt.Errorf("%w for '%s' (assetType=%s)", ErrNoInstrument, symbol, assetType)
	}
	// Prefer an exact symbol match over the first fuzzy hit.
	for _, h := range hits {
		if h.Symbol == symbol && h.AssetType == assetType {
			return h.ID, nil
		}
	}
	return hits[0].ID, nil
}

type priceResp struct {
	Bid       float64 `json:"bid"`
	Ask       float64 `json:"ask"`
	Last      float64 `json:"last"`
	Timestamp int64   `json:"timestamp"`
}

func (c *Client) GetQuote(ctx context.Context, instrumentID string) (types.Quote, error) {
	var pr priceResp
	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(map[string]string{"instrumentId": instrumentID}).
		SetResult(&pr).
		Post(pathPrice)
	if err != nil {
		return types.Quote{}, fmt.Errorf("get quote: %w", err)
	}
	if resp.IsError() {
		return types.Quote{}, httpError("get quote", resp)
	}
	q := types.Quote{Bid: pr.Bid, Ask: pr.Ask, Last: pr.Last}
	if pr.Timestamp > 0 {
		q.Timestamp = time.UnixMilli(pr.Timestamp)
	} else {
		q.Timestamp = time.Now()
	}
	return q, nil
}

type barResp struct {
	Timestamp int64   `json:"timestamp"`
	Open      float64 `json:"open"`
	High      float64 `json:"high"`
	Low       float64 `json:"low"`
	Close     float64 `json:"close"`
}

func (c *Client) GetHistoricalBars(ctx context.Context, instrumentID string, lookback time.Duration) ([]types.Bar, error) {
	now := time.Now()
	var raw []barResp
	resp, err := c.http.R().
		SetContext(ctx).
		SetQueryParams(map[string]string{
			"instrumentId": instrumentID,
			"resolution":   "1m",
			"from":         fmt.Sprintf("%d", now.Add(-lookback).UnixMilli()),
			"to":           fmt.Sprintf("%d", now.UnixMilli()),
		}).
		SetResult(&raw).
		Get(pathHistoricalBars)
	if err != nil {
		return nil, fmt.Errorf("historical bars: %w", err)
	}
	if resp.IsError() {
		return nil, httpError("historical bars", resp)
	}
	bars := make([]types.Bar, 0, len(raw))
	for _, b := range raw {
		bars = append(bars, types.Bar{
			Timestamp: time.UnixMilli(b.Timestamp),
			Open:      b.Open,
			High:      b.High,
			Low:       b.Low,
			Close:     b.Close,
		})
	}
	return bars, nil
}

type orderResp struct {
	OrderID string `json:"orderId"`
}

func (c *Client) PlaceMarketOrder(ctx context.Context, instrumentID string, side types.Side, quantity float64) (string, error) {
	return c.placeOrder(ctx, map[string]any{
		"instrumentId": instrumentID,
		"orderType":    string(types.OrderMarket),
		"side":         string(side),
		"quantity":     quantity,
	})
}

func (c *Client) PlaceLimitOrder(ctx context.Context, instrumentID string, quantity, limitPrice float64) (string, error) {
	return c.placeOrder(ctx, map[string]any{
		"instrumentId": instrumentID,
		"orderType":    string(types.OrderLimit),
		"quantity":     quantity,
		"limitPrice":   roundPrice(limitPrice),
	})
}

func (c *Client) PlaceStopOrder(ctx context.Context, instrumentID string, quantity, stopPrice float64) (string, error) {
	return c.placeOrder(ctx, map[string]any{
		"instrumentId": instrumentID,
		"orderType":    string(types.OrderStop),
		"quantity":     quantity,
		"stopPrice":    roundPrice(stopPrice),
	})
}

func (c *Client) placeOrder(ctx context.Context, payload map[string]any) (string, error) {
	var or orderResp
	resp, err := c.http.R().
		SetContext(ctx).
		SetHeader("X-Request-ID", uuid.NewString()).
		SetBody(payload).
		SetResult(&or).
		Post(pathOrder)
	if err != nil {
		return "", fmt.Errorf("place order: %w", err)
	}
	if resp.IsError() {
		return "", httpError("place order", resp)
	}
	return or.OrderID, nil
}

type orderStatusResp struct {
	Status   string  `json:"status"`
	AvgPrice float64 `json:"avgPrice"`
}

func (c *Client) GetOrderStatus(ctx context.Context, orderID string) (types.OrderState, error) {
	var sr orderStatusResp
	resp, err := c.http.R().
		SetContext(ctx).
		SetResult(&sr).
		Get(pathOrder + "/" + orderID)
	if err != nil {
		return types.OrderState{}, fmt.Errorf("order status: %w", err)
	}
	if resp.IsError() {
		return types.OrderState{}, httpError("order status", resp)
	}
	return types.OrderState{
		ID:           orderID,
		Status:       types.OrderStatus(sr.Status),
		AvgFillPrice: sr.AvgPrice,
	}, nil
}

func (c *Client) CancelOrder(ctx context.Context, orderID string) error {
	resp, err := c.http.R().
		SetContext(ctx).
		Post(pathOrder + "/" + orderID + "/cancel")
	if err != nil {
		return fmt.Errorf("cancel order: %w", err)
	}
	if resp.IsError() {
		return httpError("cancel order", resp)
	}
	return nil
}

func httpError(op string, resp *resty.Response) error {
	return fmt.Errorf("%s: HTTP %d - %s", op, resp.StatusCode(), resp.String())
}

// roundPrice keeps submitted prices at cent precision, matching what
// the venue accepts for limit/stop triggers.
func roundPrice(p float64) float64 {
	return math.Round(p*100) / 100
}
