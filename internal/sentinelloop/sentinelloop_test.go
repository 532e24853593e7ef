package sentinelloop

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kairoslabs/derivatives-engine/internal/candle"
	"github.com/kairoslabs/derivatives-engine/internal/classifier"
	"github.com/kairoslabs/derivatives-engine/internal/exchange"
	"github.com/kairoslabs/derivatives-engine/internal/position"
	"github.com/kairoslabs/derivatives-engine/internal/risk"
	"github.com/kairoslabs/derivatives-engine/internal/ruleset"
	"github.com/kairoslabs/derivatives-engine/internal/safety"
	"github.com/kairoslabs/derivatives-engine/internal/sentiment"
	"github.com/kairoslabs/derivatives-engine/internal/signal"
)

type stubSettings struct{ s Settings }

func (s stubSettings) Get() Settings { return s.s }

type stubRules struct{ rules []ruleset.Rule }

func (r stubRules) Rules(symbol string) []ruleset.Rule { return r.rules }

type stubMarket struct{ set candle.Set }

func (m stubMarket) Fetch(ctx context.Context, symbol, interval string, limit int) candle.Set { return m.set }

type stubSentiment struct{}

func (stubSentiment) Read(ctx context.Context, symbol string) sentiment.Score {
	return sentiment.Score{Symbol: symbol, Label: sentiment.LabelNeutral}
}

type stubGateway struct {
	assets []exchange.Asset
	placed []exchange.OrderRequest
}

func (g *stubGateway) GetAssets(ctx context.Context) ([]exchange.Asset, error) { return g.assets, nil }
func (g *stubGateway) PlaceOrder(ctx context.Context, req exchange.OrderRequest) (exchange.OrderResponse, error) {
	g.placed = append(g.placed, req)
	return exchange.OrderResponse{Code: "00000", Data: struct {
		OrderID string `json:"orderId"`
	}{OrderID: "ord1"}}, nil
}

type stubPositions struct {
	existing map[string]position.Position
	opened   []position.Position
}

func (p *stubPositions) Get(symbol string) (position.Position, bool) {
	pos, ok := p.existing[symbol]
	return pos, ok
}
func (p *stubPositions) Open(ctx context.Context, pos position.Position) error {
	p.opened = append(p.opened, pos)
	return nil
}
func (p *stubPositions) OpenRiskPositions() []risk.OpenPosition { return nil }

type stubAudit struct{ entries []AuditEntry }

func (a *stubAudit) Record(e AuditEntry) { a.entries = append(a.entries, e) }

func bullishCandles(n int) []candle.Candle {
	out := make([]candle.Candle, 0, n)
	price := 100.0
	base := time.Now().Add(-time.Duration(n) * time.Minute).UnixMilli()
	for i := 0; i < n; i++ {
		open := price
		close := price + 0.6
		out = append(out, candle.Candle{
			OpenTime: base + int64(i)*60_000, Open: open, High: close + 0.2, Low: open - 0.2, Close: close, Volume: 1000,
		})
		price = close
	}
	return out
}

func newHarness(t *testing.T, symbol string, rules []ruleset.Rule) (*Loop, *stubGateway, *stubPositions, *stubAudit) {
	t.Helper()
	set := candle.Set{Symbol: symbol, Candles: bullishCandles(520)}
	gw := &stubGateway{assets: []exchange.Asset{{CoinName: "USDT", Available: 1000}}}
	positions := &stubPositions{existing: map[string]position.Position{}}
	audit := &stubAudit{}

	riskMgr := risk.NewManager(risk.DefaultConfig(), nil, zerolog.Nop())
	riskMgr.SetEquity(time.Now(), 1000)
	symbols := map[string]safety.SymbolRequirements{symbol: {MinQty: 0.0001, MinNotional: 1}}
	safetyLayer := safety.NewLayer(symbols, riskMgr, zerolog.Nop())

	cfg := DefaultConfig()
	loop := New(cfg, stubSettings{s: Settings{AutoTrading: true, RiskTolerance: 80, Symbol: symbol}},
		stubRules{rules: rules}, stubMarket{set: set}, stubSentiment{}, classifier.New(),
		signal.NewSynthesizer(nil), riskMgr, safetyLayer, positions, gw, audit, zerolog.Nop())
	return loop, gw, positions, audit
}

func TestCycle_RuleTriggerOpensPosition(t *testing.T) {
	rules := []ruleset.Rule{{ID: "1", Name: "always-buy", Predicate: "rsi > 0", Action: ruleset.ActionBuy, Active: true}}
	for _, r := range rules {
		require.NoError(t, (&r).Compile())
	}
	loop, gw, positions, _ := newHarness(t, "BTCUSDT", rules)

	loop.cycle(context.Background())

	require.Len(t, gw.placed, 1)
	require.Len(t, positions.opened, 1)
	assert.Equal(t, position.SourceSentinel, positions.opened[0].Source)
}

func TestCycle_SkipsWhenAutoTradingDisabled(t *testing.T) {
	loop, gw, _, _ := newHarness(t, "BTCUSDT", nil)
	loop.settings = stubSettings{s: Settings{AutoTrading: false, Symbol: "BTCUSDT"}}

	loop.cycle(context.Background())
	assert.Empty(t, gw.placed)
}

func TestCycle_SkipsWhenPositionAlreadyOpen(t *testing.T) {
	rules := []ruleset.Rule{{ID: "1", Name: "always-buy", Predicate: "rsi > 0", Action: ruleset.ActionBuy, Active: true}}
	for _, r := range rules {
		require.NoError(t, (&r).Compile())
	}
	loop, gw, positions, _ := newHarness(t, "BTCUSDT", rules)
	positions.existing["BTCUSDT"] = position.Position{Symbol: "BTCUSDT"}

	loop.cycle(context.Background())
	assert.Empty(t, gw.placed)
}

func TestStopAndTarget_BuyPlacesStopBelowAndTargetAbove(t *testing.T) {
	stop, target := stopAndTarget(signal.ActionBuy, 100, 2, 1.3, 1.8, 2.0)
	assert.Less(t, stop, 100.0)
	assert.Greater(t, target, 100.0)
}

func TestStopAndTarget_SellPlacesStopAboveAndTargetBelow(t *testing.T) {
	stop, target := stopAndTarget(signal.ActionSell, 100, 2, 1.3, 1.8, 2.0)
	assert.Greater(t, stop, 100.0)
	assert.Less(t, target, 100.0)
}

func TestClassifierDisagrees(t *testing.T) {
	assert.True(t, classifierDisagrees(signal.ActionBuy, classifier.Down))
	assert.True(t, classifierDisagrees(signal.ActionSell, classifier.Up))
	assert.False(t, classifierDisagrees(signal.ActionBuy, classifier.Up))
}
