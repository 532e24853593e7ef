package risk

import (
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestManager() *Manager {
	return NewManager(DefaultConfig(), map[string]string{
		"BTCUSDT": "majors",
		"ETHUSDT": "majors",
		"DOGEUSDT": "meme",
	}, zerolog.Nop())
}

func TestSetEquity_TracksPeakAndDailyStart(t *testing.T) {
	m := newTestManager()
	day1 := time.Date(2026, 7, 30, 1, 0, 0, 0, time.UTC)

	m.SetEquity(day1, 10000)
	m.SetEquity(day1.Add(time.Hour), 10500)

	eq := m.Snapshot()
	assert.Equal(t, 10000.0, eq.DailyStart)
	assert.Equal(t, 10500.0, eq.Peak)
	assert.Equal(t, 10500.0, eq.Current)
}

func TestSetEquity_ResetsDailyStartOnNewUTCDate(t *testing.T) {
	m := newTestManager()
	day1 := time.Date(2026, 7, 30, 23, 0, 0, 0, time.UTC)
	day2 := time.Date(2026, 7, 31, 0, 30, 0, 0, time.UTC)

	m.SetEquity(day1, 10000)
	m.SetEquity(day2, 9800)

	eq := m.Snapshot()
	assert.Equal(t, 9800.0, eq.DailyStart)
}

func TestCanOpenPosition_BlocksOnDailyLossKillSwitch(t *testing.T) {
	m := newTestManager()
	now := time.Now().UTC()
	m.SetEquity(now, 10000)
	m.SetEquity(now, 9600) // -4% breaches the 3% daily loss limit

	ok, reason := m.CanOpenPosition("BTCUSDT", nil)
	assert.False(t, ok)
	assert.Contains(t, reason, "daily loss")
}

func TestCanOpenPosition_BlocksOnDrawdownKillSwitch(t *testing.T) {
	m := newTestManager()
	day1 := time.Date(2026, 7, 30, 12, 0, 0, 0, time.UTC)
	m.SetEquity(day1, 10000)
	m.SetEquity(day1.Add(24*time.Hour), 8700) // next UTC day: daily start resets to 8700; -13% from peak breaches 12%

	ok, reason := m.CanOpenPosition("BTCUSDT", nil)
	assert.False(t, ok)
	assert.Contains(t, reason, "drawdown")
}

func TestCanOpenPosition_BlocksOnCorrelationConflict(t *testing.T) {
	m := newTestManager()
	m.SetEquity(time.Now(), 10000)

	open := []OpenPosition{{Symbol: "ETHUSDT", CorrelationGroup: "majors", MarginUsed: 100}}
	ok, reason := m.CanOpenPosition("BTCUSDT", open)
	assert.False(t, ok)
	assert.Contains(t, reason, "correlation group")
}

func TestCanOpenPosition_BlocksAtMaxConcurrentPositions(t *testing.T) {
	m := newTestManager()
	m.SetEquity(time.Now(), 10000)

	open := []OpenPosition{{Symbol: "DOGEUSDT", CorrelationGroup: "meme", MarginUsed: 50}}
	ok, _ := m.CanOpenPosition("BTCUSDT", open)
	assert.False(t, ok) // DefaultConfig caps at 1 concurrent position
}

func TestCanOpenPosition_AllowsCleanCandidate(t *testing.T) {
	m := newTestManager()
	m.SetEquity(time.Now(), 10000)

	ok, reason := m.CanOpenPosition("BTCUSDT", nil)
	assert.True(t, ok)
	assert.Empty(t, reason)
}

func TestPositionSize_ClampsStopDistanceToATRBand(t *testing.T) {
	m := newTestManager()
	m.SetEquity(time.Now(), 10000)

	// entry-stop distance of 0.5*ATR is below the 1.3*ATR floor.
	result, err := m.PositionSize(SizeCandidate{
		Entry: 100, Stop: 99.5, ATR: 1, Leverage: 5, AvailableMargin: 1000,
	}, nil)
	require.NoError(t, err)
	assert.InDelta(t, 1.3, result.StopDistance, 1e-9)
}

func TestPositionSize_DownscalesWhenMarginInsufficient(t *testing.T) {
	m := newTestManager()
	m.SetEquity(time.Now(), 10000)

	result, err := m.PositionSize(SizeCandidate{
		Entry: 100, Stop: 98, ATR: 1, Leverage: 2, AvailableMargin: 10,
	}, nil)
	require.NoError(t, err)
	assert.True(t, result.MarginClamped)
	assert.InDelta(t, 10, result.MarginRequired, 1e-6)
}

func TestPositionSize_RejectsWhenAggregateExposureTooHigh(t *testing.T) {
	m := newTestManager()
	m.SetEquity(time.Now(), 10000)

	open := []OpenPosition{{Symbol: "ETHUSDT", CorrelationGroup: "majors", MarginUsed: 3900}}
	_, err := m.PositionSize(SizeCandidate{
		Entry: 100, Stop: 98, ATR: 1.5, Leverage: 10, AvailableMargin: 5000,
	}, open)
	require.Error(t, err)
}

func TestTrailingStop_ActivatesAt1RAndTightensOnly(t *testing.T) {
	tsm := NewTrailingStopManager(zerolog.Nop())
	tsm.AddPosition("BTCUSDT", "Buy", 100, 98, 1) // R = 2

	// Below 1R profit: no activation, no stop movement.
	upd := tsm.UpdatePrice("BTCUSDT", 101, 1)
	assert.Nil(t, upd)

	// At 1R profit (price 102): activates, new stop = HWM(102) - 2*ATR(1) = 100.
	upd = tsm.UpdatePrice("BTCUSDT", 102, 1)
	require.NotNil(t, upd)
	assert.InDelta(t, 100, upd.NewStop, 1e-9)

	// Price retreats: stop never loosens even though HWM-2*ATR would be lower now.
	upd = tsm.UpdatePrice("BTCUSDT", 101, 1)
	assert.Nil(t, upd)

	stop, ok := tsm.GetCurrentStop("BTCUSDT")
	require.True(t, ok)
	assert.InDelta(t, 100, stop, 1e-9)
}

func TestTrailingStop_TriggersWhenPriceHitsStop(t *testing.T) {
	tsm := NewTrailingStopManager(zerolog.Nop())
	tsm.AddPosition("ETHUSDT", "Sell", 100, 102, 1)

	upd := tsm.UpdatePrice("ETHUSDT", 102.5, 1)
	require.NotNil(t, upd)
	assert.True(t, upd.Triggered)
}
