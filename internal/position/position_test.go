package position

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kairoslabs/derivatives-engine/internal/exchange"
	"github.com/kairoslabs/derivatives-engine/internal/risk"
)

type stubGateway struct {
	placeErr    error
	placed      []exchange.OrderRequest
	positions   []exchange.PositionRecord
	positionErr error
}

func (g *stubGateway) PlaceOrder(ctx context.Context, req exchange.OrderRequest) (exchange.OrderResponse, error) {
	g.placed = append(g.placed, req)
	if g.placeErr != nil {
		return exchange.OrderResponse{}, g.placeErr
	}
	return exchange.OrderResponse{Code: "00000"}, nil
}

func (g *stubGateway) ListPositions(ctx context.Context) ([]exchange.PositionRecord, error) {
	return g.positions, g.positionErr
}

type stubFeed struct {
	price, atr float64
	err        error
}

func (f *stubFeed) LatestPrice(ctx context.Context, symbol string) (float64, float64, error) {
	return f.price, f.atr, f.err
}

func newTestManager(gw *stubGateway, feed *stubFeed) *Manager {
	riskMgr := risk.NewManager(risk.DefaultConfig(), nil, zerolog.Nop())
	riskMgr.SetEquity(time.Now(), 10000)
	return New(gw, feed, riskMgr, zerolog.Nop())
}

func TestOpen_TracksNewPosition(t *testing.T) {
	m := newTestManager(&stubGateway{}, &stubFeed{})
	err := m.Open(context.Background(), Position{
		Symbol: "BTCUSDT", Side: exchange.SideBuy, Direction: "Long",
		Size: 0.1, EntryPrice: 60000, StopLoss: 58000, TakeProfit: 64000,
		Leverage: 10, MarginUsed: 600, OpenedAt: time.Now(), Source: SourceSentinel,
	})
	require.NoError(t, err)

	p, ok := m.Get("BTCUSDT")
	require.True(t, ok)
	assert.Equal(t, 60000.0, p.HighestPrice)
	assert.Equal(t, 60000.0, p.LowestPrice)
	assert.Equal(t, 1, m.Count())
}

func TestOpen_ReplacesExistingPosition(t *testing.T) {
	m := newTestManager(&stubGateway{}, &stubFeed{})
	ctx := context.Background()
	base := Position{Symbol: "BTCUSDT", Side: exchange.SideBuy, EntryPrice: 60000, StopLoss: 58000, TakeProfit: 64000, Size: 0.1, OpenedAt: time.Now()}

	require.NoError(t, m.Open(ctx, base))
	base.EntryPrice = 61000
	require.NoError(t, m.Open(ctx, base))

	assert.Equal(t, 1, m.Count())
	p, _ := m.Get("BTCUSDT")
	assert.Equal(t, 61000.0, p.EntryPrice)
}

func TestUpdatePosition_TracksHighAndLowWaterMarks(t *testing.T) {
	m := newTestManager(&stubGateway{}, &stubFeed{})
	p := &Position{Symbol: "BTCUSDT", Side: exchange.SideBuy, EntryPrice: 60000, HighestPrice: 60000, LowestPrice: 60000, Size: 0.1, StopLoss: 58000}

	m.updatePosition(p, 61500, 500)
	assert.Equal(t, 61500.0, p.HighestPrice)
	assert.Equal(t, 60000.0, p.LowestPrice)
	assert.InDelta(t, 150.0, p.UnrealizedPnl, 0.01)

	m.updatePosition(p, 59000, 500)
	assert.Equal(t, 61500.0, p.HighestPrice)
	assert.Equal(t, 59000.0, p.LowestPrice)
}

func TestExitReason_LongHitsStopLoss(t *testing.T) {
	p := &Position{Side: exchange.SideBuy, CurrentPrice: 57900, StopLoss: 58000, TakeProfit: 64000, OpenedAt: time.Now()}
	reason, should := exitReason(p)
	assert.True(t, should)
	assert.Equal(t, CloseReasonStopLoss, reason)
}

func TestExitReason_ShortHitsTakeProfit(t *testing.T) {
	p := &Position{Side: exchange.SideSell, CurrentPrice: 55000, StopLoss: 62000, TakeProfit: 56000, OpenedAt: time.Now()}
	reason, should := exitReason(p)
	assert.True(t, should)
	assert.Equal(t, CloseReasonTakeProfit, reason)
}

func TestExitReason_TimeStopAfterMaxHold(t *testing.T) {
	p := &Position{Side: exchange.SideBuy, CurrentPrice: 60500, StopLoss: 58000, TakeProfit: 64000, OpenedAt: time.Now().Add(-25 * time.Hour)}
	reason, should := exitReason(p)
	assert.True(t, should)
	assert.Equal(t, CloseReasonTimeStop, reason)
}

func TestClose_SubmitsOppositeSideMarketOrder(t *testing.T) {
	gw := &stubGateway{positions: []exchange.PositionRecord{{Symbol: "BTCUSDT"}}}
	m := newTestManager(gw, &stubFeed{})
	ctx := context.Background()
	require.NoError(t, m.Open(ctx, Position{Symbol: "BTCUSDT", Side: exchange.SideBuy, EntryPrice: 60000, StopLoss: 58000, TakeProfit: 64000, Size: 0.1, OpenedAt: time.Now()}))

	require.NoError(t, m.Close(ctx, "BTCUSDT", CloseReasonManual))
	require.Len(t, gw.placed, 1)
	assert.Equal(t, exchange.SideSell, gw.placed[0].Side)

	_, ok := m.Get("BTCUSDT")
	assert.False(t, ok)
}

func TestClose_NoOrderWhenExternallyClosed(t *testing.T) {
	gw := &stubGateway{positions: nil}
	m := newTestManager(gw, &stubFeed{})
	ctx := context.Background()
	require.NoError(t, m.Open(ctx, Position{Symbol: "BTCUSDT", Side: exchange.SideBuy, EntryPrice: 60000, StopLoss: 58000, TakeProfit: 64000, Size: 0.1, OpenedAt: time.Now()}))

	require.NoError(t, m.Close(ctx, "BTCUSDT", CloseReasonManual))
	assert.Empty(t, gw.placed)
}

func TestClose_ErrorsWhenNoPositionTracked(t *testing.T) {
	m := newTestManager(&stubGateway{}, &stubFeed{})
	err := m.Close(context.Background(), "ETHUSDT", CloseReasonManual)
	assert.Error(t, err)
}

func TestShutdown_ClosesAllOpenPositions(t *testing.T) {
	gw := &stubGateway{positions: []exchange.PositionRecord{{Symbol: "BTCUSDT"}, {Symbol: "ETHUSDT"}}}
	m := newTestManager(gw, &stubFeed{})
	ctx := context.Background()
	require.NoError(t, m.Open(ctx, Position{Symbol: "BTCUSDT", Side: exchange.SideBuy, EntryPrice: 60000, StopLoss: 58000, TakeProfit: 64000, Size: 0.1, OpenedAt: time.Now()}))
	require.NoError(t, m.Open(ctx, Position{Symbol: "ETHUSDT", Side: exchange.SideSell, EntryPrice: 3000, StopLoss: 3200, TakeProfit: 2600, Size: 1, OpenedAt: time.Now()}))

	m.Shutdown(ctx)
	assert.Equal(t, 0, m.Count())
	assert.Len(t, gw.placed, 2)
}

func TestOpenRiskPositions_ReflectsTrackedPositions(t *testing.T) {
	m := newTestManager(&stubGateway{}, &stubFeed{})
	ctx := context.Background()
	require.NoError(t, m.Open(ctx, Position{Symbol: "BTCUSDT", CorrelationGroup: "majors", MarginUsed: 600, Side: exchange.SideBuy, EntryPrice: 60000, StopLoss: 58000, TakeProfit: 64000, Size: 0.1, OpenedAt: time.Now()}))

	open := m.OpenRiskPositions()
	require.Len(t, open, 1)
	assert.Equal(t, "majors", open[0].CorrelationGroup)
	assert.Equal(t, 600.0, open[0].MarginUsed)
}
