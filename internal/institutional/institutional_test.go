package institutional

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kairoslabs/derivatives-engine/internal/candle"
	"github.com/kairoslabs/derivatives-engine/internal/exchange"
	"github.com/kairoslabs/derivatives-engine/internal/position"
	"github.com/kairoslabs/derivatives-engine/internal/risk"
	"github.com/kairoslabs/derivatives-engine/internal/safety"
	"github.com/kairoslabs/derivatives-engine/internal/signal"
)

type stubSymbols struct{ symbols []string }

func (s stubSymbols) EnabledSymbols() []string { return s.symbols }

type stubMarket struct{ sets map[string]candle.Set }

func (m stubMarket) Fetch(ctx context.Context, symbol, interval string, limit int) candle.Set {
	return m.sets[symbol]
}

type stubGateway struct {
	assets []exchange.Asset
	placed []exchange.OrderRequest
}

func (g *stubGateway) GetAssets(ctx context.Context) ([]exchange.Asset, error) { return g.assets, nil }
func (g *stubGateway) PlaceOrder(ctx context.Context, req exchange.OrderRequest) (exchange.OrderResponse, error) {
	g.placed = append(g.placed, req)
	return exchange.OrderResponse{Code: "00000"}, nil
}

type stubPositions struct {
	count  int
	opened []position.Position
}

func (p *stubPositions) Count() int                              { return p.count }
func (p *stubPositions) OpenRiskPositions() []risk.OpenPosition   { return nil }
func (p *stubPositions) Open(ctx context.Context, pos position.Position) error {
	p.opened = append(p.opened, pos)
	return nil
}

func trendingCandles(n int) []candle.Candle {
	out := make([]candle.Candle, 0, n)
	price := 100.0
	base := time.Now().Add(-time.Duration(n) * time.Minute).UnixMilli()
	for i := 0; i < n; i++ {
		open := price
		close := price * 1.008
		out = append(out, candle.Candle{
			OpenTime: base + int64(i)*60_000, Open: open, High: close * 1.002, Low: open * 0.998, Close: close, Volume: 1200,
		})
		price = close
	}
	return out
}

func flatCandles(n int) []candle.Candle {
	out := make([]candle.Candle, 0, n)
	base := time.Now().Add(-time.Duration(n) * time.Minute).UnixMilli()
	for i := 0; i < n; i++ {
		out = append(out, candle.Candle{OpenTime: base + int64(i)*60_000, Open: 50, High: 50.1, Low: 49.9, Close: 50, Volume: 500})
	}
	return out
}

func newHarness(t *testing.T) (*Loop, *stubGateway, *stubPositions) {
	t.Helper()
	market := stubMarket{sets: map[string]candle.Set{
		"BTCUSDT": {Symbol: "BTCUSDT", Candles: trendingCandles(520)},
		"ETHUSDT": {Symbol: "ETHUSDT", Candles: flatCandles(520)},
	}}
	gw := &stubGateway{assets: []exchange.Asset{{CoinName: "USDT", Available: 5000}}}
	positions := &stubPositions{}

	riskMgr := risk.NewManager(risk.DefaultConfig(), nil, zerolog.Nop())
	riskMgr.SetEquity(time.Now(), 5000)
	symbols := map[string]safety.SymbolRequirements{
		"BTCUSDT": {MinQty: 0.0001, MinNotional: 1},
		"ETHUSDT": {MinQty: 0.0001, MinNotional: 1},
	}
	safetyLayer := safety.NewLayer(symbols, riskMgr, zerolog.Nop())

	loop := New(DefaultConfig(), stubSymbols{symbols: []string{"BTCUSDT", "ETHUSDT"}}, market, nil,
		signal.NewSynthesizer(nil), riskMgr, safetyLayer, positions, gw, zerolog.Nop())
	return loop, gw, positions
}

func TestCycle_SkipsScanWhenPositionAlreadyOpen(t *testing.T) {
	loop, gw, positions := newHarness(t)
	positions.count = 1

	loop.cycle(context.Background())
	assert.Empty(t, gw.placed)
}

func TestCycle_OpensBestScoringCandidate(t *testing.T) {
	loop, gw, positions := newHarness(t)

	loop.cycle(context.Background())

	require.Len(t, gw.placed, 1)
	require.Len(t, positions.opened, 1)
	assert.Equal(t, position.SourceInstitutional, positions.opened[0].Source)
}

func TestCompositeScore_ClampsToZeroToHundred(t *testing.T) {
	riskMgr := risk.NewManager(risk.DefaultConfig(), nil, zerolog.Nop())
	riskMgr.SetEquity(time.Now(), 1000)

	score := compositeScore(map[string]float64{"trend_strength": 1000}, riskMgr)
	assert.LessOrEqual(t, score, 100.0)
}
