package marketdata

import "context"

// NoopSignals satisfies institutional.MarketSignals with every term
// unavailable. The gateway's public REST surface (gateway.go) exposes
// candles, assets, orders, and positions only; WEEX's funding-rate,
// open-interest, and orderbook-depth endpoints are not wired, so the
// Institutional Orchestrator's composite score runs on its candle-derived
// terms alone until a gateway method for those feeds exists.
type NoopSignals struct{}

// FundingRate always reports unavailable.
func (NoopSignals) FundingRate(ctx context.Context, symbol string) *float64 { return nil }

// OIChange always reports unavailable.
func (NoopSignals) OIChange(ctx context.Context, symbol string) *float64 { return nil }

// OrderbookImbalance always reports unavailable.
func (NoopSignals) OrderbookImbalance(ctx context.Context, symbol string) *float64 { return nil }
