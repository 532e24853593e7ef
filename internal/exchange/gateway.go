package exchange

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"

	"github.com/kairoslabs/derivatives-engine/internal/candle"
)

type rawCandle [6]json.Number // [openTime, open, high, low, close, volume]

// FetchCandles returns an ordered candle series for (symbol, intervalCode,
// limit). The caller (the Market-Data Adapter, C2) is responsible for the
// synthetic-fallback path; this method only ever returns a real series or
// an error.
func (c *Client) FetchCandles(ctx context.Context, symbol, intervalCode string, limit int) (candle.Set, error) {
	query := url.Values{
		"symbol":   {symbol},
		"interval": {intervalCode},
		"limit":    {strconv.Itoa(limit)},
	}
	body, err := c.publicRequest(ctx, "GET", "/api/v1/market/candles", query)
	if err != nil {
		return candle.Set{}, fmt.Errorf("exchange: fetch candles: %w", err)
	}

	var raw []rawCandle
	if err := json.Unmarshal(body, &raw); err != nil {
		return candle.Set{}, fmt.Errorf("exchange: decode candles: %w", err)
	}

	out := make([]candle.Candle, 0, len(raw))
	for _, r := range raw {
		c, err := parseRawCandle(r)
		if err != nil {
			return candle.Set{}, fmt.Errorf("exchange: malformed candle: %w", err)
		}
		out = append(out, c)
	}

	return candle.Set{
		Symbol:   symbol,
		Interval: intervalCode,
		Candles:  candle.Normalize(out),
	}, nil
}

func parseRawCandle(r rawCandle) (candle.Candle, error) {
	openTime, err := r[0].Int64()
	if err != nil {
		return candle.Candle{}, err
	}
	open, err := r[1].Float64()
	if err != nil {
		return candle.Candle{}, err
	}
	high, err := r[2].Float64()
	if err != nil {
		return candle.Candle{}, err
	}
	low, err := r[3].Float64()
	if err != nil {
		return candle.Candle{}, err
	}
	cl, err := r[4].Float64()
	if err != nil {
		return candle.Candle{}, err
	}
	volume, err := r[5].Float64()
	if err != nil {
		return candle.Candle{}, err
	}
	return candle.Candle{OpenTime: openTime, Open: open, High: high, Low: low, Close: cl, Volume: volume}, nil
}

// publicRequest is like request but does not require credentials, for
// endpoints the venue serves unauthenticated (market data).
func (c *Client) publicRequest(ctx context.Context, method, path string, query url.Values) ([]byte, error) {
	queryString := ""
	if len(query) > 0 {
		queryString = "?" + query.Encode()
	}
	req, err := newPublicRequest(ctx, method, c.cfg.BaseURL+path+queryString)
	if err != nil {
		return nil, err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	return readBody(resp)
}

// GetAssets returns the account's coin balances.
func (c *Client) GetAssets(ctx context.Context) ([]Asset, error) {
	body, err := c.request(ctx, "GET", "/api/v1/account/assets", nil, nil)
	if err != nil {
		return nil, fmt.Errorf("exchange: get assets: %w", err)
	}
	var assets []Asset
	if err := json.Unmarshal(body, &assets); err != nil {
		return nil, fmt.Errorf("exchange: decode assets: %w", err)
	}
	return assets, nil
}

// PlaceOrder submits a new order.
func (c *Client) PlaceOrder(ctx context.Context, req OrderRequest) (OrderResponse, error) {
	payload, err := marshalBody(req)
	if err != nil {
		return OrderResponse{}, fmt.Errorf("exchange: encode order: %w", err)
	}
	body, err := c.request(ctx, "POST", "/api/v1/order/place", nil, payload)
	if err != nil {
		return OrderResponse{}, fmt.Errorf("exchange: place order: %w", err)
	}
	var resp OrderResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return OrderResponse{}, fmt.Errorf("exchange: decode order response: %w", err)
	}
	return resp, nil
}

// CancelOrder cancels an existing order. symbol is optional on some venues
// but accepted here so callers can always supply it.
func (c *Client) CancelOrder(ctx context.Context, orderID, symbol string) (ActionResponse, error) {
	payload, err := marshalBody(map[string]string{"orderId": orderID, "symbol": symbol})
	if err != nil {
		return ActionResponse{}, fmt.Errorf("exchange: encode cancel: %w", err)
	}
	body, err := c.request(ctx, "POST", "/api/v1/order/cancel", nil, payload)
	if err != nil {
		return ActionResponse{}, fmt.Errorf("exchange: cancel order: %w", err)
	}
	var resp ActionResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return ActionResponse{}, fmt.Errorf("exchange: decode cancel response: %w", err)
	}
	return resp, nil
}

// ListPositions returns every open position record on the account.
func (c *Client) ListPositions(ctx context.Context) ([]PositionRecord, error) {
	body, err := c.request(ctx, "GET", "/api/v1/positions", nil, nil)
	if err != nil {
		return nil, fmt.Errorf("exchange: list positions: %w", err)
	}
	var positions []PositionRecord
	if err := json.Unmarshal(body, &positions); err != nil {
		return nil, fmt.Errorf("exchange: decode positions: %w", err)
	}
	return positions, nil
}
