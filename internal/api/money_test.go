package api

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/kairoslabs/derivatives-engine/internal/risk"
)

func TestMoney_RoundsToCentPrecision(t *testing.T) {
	assert.Equal(t, "1234.57", money(1234.567))
	assert.Equal(t, "0.00", money(0))
	assert.Equal(t, "-12.30", money(-12.3))
}

func TestRenderEquity_FormatsEveryField(t *testing.T) {
	view := renderEquity(risk.Equity{Current: 10000.125, Peak: 10500, DailyStart: 9900, DailyPnl: 100.005, TotalPnl: -50.5})

	assert.Equal(t, "10000.13", view.Current)
	assert.Equal(t, "10500.00", view.Peak)
	assert.Equal(t, "9900.00", view.DailyStart)
	assert.Equal(t, "100.01", view.DailyPnl)
	assert.Equal(t, "-50.50", view.TotalPnl)
}

func TestRenderPositions_FormatsMarginForEachEntry(t *testing.T) {
	views := renderPositions([]risk.OpenPosition{
		{Symbol: "BTCUSDT", CorrelationGroup: "BTC", MarginUsed: 250.004},
		{Symbol: "ETHUSDT", CorrelationGroup: "ETH", MarginUsed: 100},
	})

	assert.Len(t, views, 2)
	assert.Equal(t, "250.00", views[0].MarginUsed)
	assert.Equal(t, "100.00", views[1].MarginUsed)
}
