// Package marketdata implements the Market-Data Adapter (C2): an ordered
// candle series for (symbol, interval, limit) with a synthetic random-walk
// fallback so a gateway outage can never stall a cycle. The fallback is
// never hidden — callers can always tell a series came from it via
// candle.Set.Synthetic.
package marketdata

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	"github.com/rs/zerolog"

	"github.com/kairoslabs/derivatives-engine/internal/candle"
	"github.com/kairoslabs/derivatives-engine/internal/indicator"
)

// latestPriceInterval and latestPriceWindow are the fixed (interval, limit)
// pair LatestPrice fetches on every call, sized to clear indicator.Compute's
// warmup requirement.
const (
	latestPriceInterval = "5m"
	latestPriceWindow   = 100
)

// Gateway is the subset of exchange.Client the adapter depends on.
type Gateway interface {
	FetchCandles(ctx context.Context, symbol, intervalCode string, limit int) (candle.Set, error)
}

// intervalMillis maps the interval codes the engine uses to their duration
// in milliseconds, for synthetic candle spacing.
var intervalMillis = map[string]int64{
	"1m":  60_000,
	"5m":  300_000,
	"15m": 900_000,
	"1h":  3_600_000,
	"4h":  14_400_000,
	"1d":  86_400_000,
}

// Adapter wraps a Gateway with sorting, deduplication, and the synthetic
// fallback.
type Adapter struct {
	gateway Gateway
	logger  zerolog.Logger
	rand    *rand.Rand
}

// New builds an Adapter over the given Gateway.
func New(gateway Gateway, logger zerolog.Logger) *Adapter {
	return &Adapter{
		gateway: gateway,
		logger:  logger.With().Str("component", "MarketDataAdapter").Logger(),
		rand:    rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// Fetch returns an ordered, deduplicated candle series for (symbol,
// intervalCode, limit). It never raises across this boundary: a gateway
// failure is logged as MarketDataDegraded and answered with a synthetic
// series instead.
func (a *Adapter) Fetch(ctx context.Context, symbol, intervalCode string, limit int) candle.Set {
	set, err := a.gateway.FetchCandles(ctx, symbol, intervalCode, limit)
	if err != nil {
		a.logger.Warn().Err(err).Str("symbol", symbol).Str("interval", intervalCode).Msg("MarketDataDegraded")
		return a.synthetic(symbol, intervalCode, limit)
	}
	set.Candles = candle.Normalize(set.Candles)
	return set
}

// LatestPrice satisfies position.PriceFeed: the last close and current ATR
// for symbol, derived from the same candle path Fetch uses (gateway first,
// synthetic fallback on outage).
func (a *Adapter) LatestPrice(ctx context.Context, symbol string) (float64, float64, error) {
	set := a.Fetch(ctx, symbol, latestPriceInterval, latestPriceWindow)
	last, ok := set.Last()
	if !ok {
		return 0, 0, fmt.Errorf("marketdata: empty candle series for %s", symbol)
	}
	st, err := indicator.Compute(set.Candles)
	if err != nil {
		return last.Close, 0, nil
	}
	return last.Close, st.ATR, nil
}

// synthetic generates a tagged random-walk candle series so downstream
// cycles have a working window even during an outage.
func (a *Adapter) synthetic(symbol, intervalCode string, limit int) candle.Set {
	step, ok := intervalMillis[intervalCode]
	if !ok {
		step = 60_000
	}
	if limit <= 0 {
		limit = 1
	}

	now := time.Now().UnixMilli()
	price := 100.0
	candles := make([]candle.Candle, 0, limit)
	start := now - int64(limit)*step
	for i := 0; i < limit; i++ {
		openTime := start + int64(i)*step
		open := price
		move := (a.rand.Float64() - 0.5) * open * 0.004
		close := open + move
		high := maxOf(open, close) + a.rand.Float64()*open*0.001
		low := minOf(open, close) - a.rand.Float64()*open*0.001
		volume := 1000 + a.rand.Float64()*500

		candles = append(candles, candle.Candle{
			OpenTime: openTime, Open: open, High: high, Low: low, Close: close, Volume: volume,
		})
		price = close
	}

	return candle.Set{Symbol: symbol, Interval: intervalCode, Candles: candles, Synthetic: true}
}

func maxOf(a, b float64) float64 {
	if a > b {
		return a
	}
	return b
}

func minOf(a, b float64) float64 {
	if a < b {
		return a
	}
	return b
}
