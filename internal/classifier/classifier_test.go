package classifier

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kairoslabs/derivatives-engine/internal/candle"
)

func genCandles(n int, trendUp bool) []candle.Candle {
	out := make([]candle.Candle, n)
	price := 100.0
	for i := 0; i < n; i++ {
		step := math.Sin(float64(i)*0.3) * 0.5
		if trendUp {
			price += 0.3 + step
		} else {
			price -= 0.3 + step
		}
		out[i] = candle.Candle{
			OpenTime: int64(i) * 60000,
			Open:     price,
			High:     price + 1,
			Low:      price - 1,
			Close:    price,
			Volume:   1000 + float64(i%10)*10,
		}
	}
	return out
}

func TestClassify_UntrainedBelowMinBars(t *testing.T) {
	m := New()
	_, err := m.Classify(genCandles(50, true))
	require.ErrorIs(t, err, ErrUntrained)
}

func TestClassify_TrendingUpProducesUpBias(t *testing.T) {
	m := New()
	pred, err := m.Classify(genCandles(150, true))
	require.NoError(t, err)
	assert.GreaterOrEqual(t, pred.Confidence, 0.5)
}

func TestClassify_RefitsOnNewBar(t *testing.T) {
	m := New()
	candles := genCandles(150, true)
	_, err := m.Classify(candles)
	require.NoError(t, err)
	firstBarTime := m.lastBarTime

	more := genCandles(151, true)
	_, err = m.Classify(more)
	require.NoError(t, err)
	assert.NotEqual(t, firstBarTime, m.lastBarTime)
}
