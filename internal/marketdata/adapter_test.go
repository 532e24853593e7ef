package marketdata

import (
	"context"
	"fmt"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kairoslabs/derivatives-engine/internal/candle"
)

type stubGateway struct {
	set candle.Set
	err error
}

func (g *stubGateway) FetchCandles(ctx context.Context, symbol, intervalCode string, limit int) (candle.Set, error) {
	return g.set, g.err
}

func TestFetch_ReturnsGatewaySeriesOnSuccess(t *testing.T) {
	gw := &stubGateway{set: candle.Set{
		Symbol: "BTCUSDT", Interval: "1m",
		Candles: []candle.Candle{{OpenTime: 2000, Close: 101}, {OpenTime: 1000, Close: 99}},
	}}
	a := New(gw, zerolog.Nop())

	set := a.Fetch(context.Background(), "BTCUSDT", "1m", 2)
	require.Len(t, set.Candles, 2)
	assert.False(t, set.Synthetic)
	assert.Equal(t, int64(1000), set.Candles[0].OpenTime) // normalized ascending
}

func TestFetch_FallsBackToSyntheticOnGatewayError(t *testing.T) {
	gw := &stubGateway{err: fmt.Errorf("connection refused")}
	a := New(gw, zerolog.Nop())

	set := a.Fetch(context.Background(), "ETHUSDT", "5m", 50)
	assert.True(t, set.Synthetic)
	assert.Len(t, set.Candles, 50)
	for i := 1; i < len(set.Candles); i++ {
		assert.Greater(t, set.Candles[i].OpenTime, set.Candles[i-1].OpenTime)
	}
}

func TestSynthetic_DefaultsUnknownIntervalToOneMinuteSpacing(t *testing.T) {
	gw := &stubGateway{err: fmt.Errorf("down")}
	a := New(gw, zerolog.Nop())

	set := a.Fetch(context.Background(), "BTCUSDT", "9x", 5)
	require.Len(t, set.Candles, 5)
	assert.Equal(t, int64(60_000), set.Candles[1].OpenTime-set.Candles[0].OpenTime)
}
