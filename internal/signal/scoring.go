package signal

import (
	"math"

	"github.com/kairoslabs/derivatives-engine/internal/indicator"
)

// Score runs the four intraday detectors (volatility compression, momentum,
// breakout, liquidation snapback) over one IndicatorState and returns the
// single Signal the Institutional path consumes, per §4.8's priority order:
// Breakout > Momentum(TrendFollow) > Snapback(LiquidationSnapback) > None.
func Score(st indicator.State, fundingRate, oiChange, orderbookImbalance *float64) Signal {
	isCompressed, compressionScore := detectCompression(st)
	momentumDir, momentumScore := detectMomentum(st)
	breakoutDir, breakoutScore := detectBreakout(st)
	snapbackDir, snapbackScore := detectSnapback(st)

	factors := map[string]float64{
		"volatility_compression": compressionScore,
		"momentum":               momentumScore,
		"breakout":               breakoutScore,
		"liquidation_snapback":   snapbackScore,
		"volume_confirmation":    clamp(st.VolumeZScore*20, 0, 100),
		"trend_strength":         clamp(st.ADX*2, 0, 100),
	}
	if fundingRate != nil {
		factors["funding_pressure"] = clamp(math.Abs(*fundingRate)*10000, 0, 100)
	}
	if oiChange != nil {
		factors["oi_momentum"] = clamp(math.Abs(*oiChange)*100, 0, 100)
	}
	if orderbookImbalance != nil {
		factors["orderbook_imbalance"] = clamp(math.Abs(*orderbookImbalance)*100, 0, 100)
	}

	direction := Neutral
	kind := KindNone
	strength := 0.0

	switch {
	case breakoutDir != Neutral && breakoutScore > 50:
		direction = breakoutDir
		kind = KindBreakout
		bonus := 0.0
		if isCompressed {
			bonus = compressionScore * 0.2
		}
		strength = breakoutScore*0.5 + momentumScore*0.3 + bonus
	case momentumDir != Neutral && momentumScore > 50:
		direction = momentumDir
		kind = KindTrendFollow
		strength = momentumScore*0.5 + factors["trend_strength"]*0.3 + factors["volume_confirmation"]*0.2
	case snapbackDir != Neutral && snapbackScore > 50:
		direction = snapbackDir
		kind = KindLiquidationSnapback
		strength = snapbackScore
	}
	strength = clamp(strength, 0, 100)

	entry := st.Price
	var stop, target, rr float64
	if direction != Neutral {
		stop, target = stopAndTarget(entry, direction, st.ATR, 2.0)
		rr = 2.0
	}

	return Signal{
		Direction:  direction,
		Kind:       kind,
		Strength:   strength,
		Entry:      entry,
		StopLoss:   stop,
		TakeProfit: target,
		RiskReward: rr,
		Factors:    factors,
		Meta: map[string]any{
			"compressionDetected": isCompressed,
			"momentumDirection":   momentumDir,
			"breakoutDetected":    breakoutDir != Neutral,
			"snapbackDetected":    snapbackDir != Neutral,
		},
	}
}

// detectCompression: BB-width in the lowest 20th percentile of its own
// trailing 20-bar history.
func detectCompression(st indicator.State) (bool, float64) {
	hist := st.BBWidthHistory
	if len(hist) < 20 {
		return false, 0
	}
	current := hist[len(hist)-1]
	below := 0
	for _, w := range hist[len(hist)-20:] {
		if w < current {
			below++
		}
	}
	percentile := float64(below) / 20.0
	isCompressed := percentile < 0.20
	return isCompressed, (1 - percentile) * 100
}

// detectMomentum: EMA alignment OR MACD confirmation (relaxed, either
// signal suffices), scored with a base + alignment bonuses + slope + ADX.
func detectMomentum(st indicator.State) (Direction, float64) {
	emaBullish := st.EMA9 > st.EMA21 && st.EMA21 > st.EMA50
	emaBearish := st.EMA9 < st.EMA21 && st.EMA21 < st.EMA50
	macdBullish := st.MACD > st.MACDSignal && st.MACDHist > 0
	macdBearish := st.MACD < st.MACDSignal && st.MACDHist < 0

	slopeStrength := math.Abs(st.EMA21SlopePct)
	adxScore := 0.0
	if st.ADX > 0 {
		adxScore = math.Min(st.ADX/25, 1.0) * 100
	}

	switch {
	case emaBullish || macdBullish:
		score := 40.0
		if emaBullish {
			score += 20
		}
		if macdBullish {
			score += 20
		}
		score += slopeStrength*1.5 + adxScore*0.3
		return Long, math.Min(score, 100)
	case emaBearish || macdBearish:
		score := 40.0
		if emaBearish {
			score += 20
		}
		if macdBearish {
			score += 20
		}
		score += slopeStrength*1.5 + adxScore*0.3
		return Short, math.Min(score, 100)
	default:
		return Neutral, 0
	}
}

// detectBreakout: price outside a Bollinger band, with a volume bonus and
// an ADX-rising bonus. Whether the previous bar was inside the band is not
// checked.
func detectBreakout(st indicator.State) (Direction, float64) {
	if len(st.BBWidthHistory) < 2 {
		return Neutral, 0
	}

	breakoutUp := st.Price > st.BBUpper
	breakoutDown := st.Price < st.BBLower
	if !breakoutUp && !breakoutDown {
		return Neutral, 0
	}

	volumeBonus := 0.0
	if st.VolumeZScore > 0 {
		volumeBonus = math.Min(st.VolumeZScore*10, 30)
	}

	adxRising := false
	if len(st.ADXHistory3) >= 2 {
		recentAvg := mean(st.ADXHistory3)
		adxRising = st.ADX > recentAvg
	}
	adxBonus := 0.0
	if adxRising {
		adxBonus = 20
	}

	score := 50 + volumeBonus + adxBonus
	if breakoutUp {
		return Long, math.Min(score, 100)
	}
	return Short, math.Min(score, 100)
}

// detectSnapback: a sharp adverse move followed by a quick recovery, with
// an RSI reversal across the 30/70 thresholds.
func detectSnapback(st indicator.State) (Direction, float64) {
	if len(st.ReturnsHistory5) < 5 || len(st.RSIHistory3) < 3 {
		return Neutral, 0
	}

	recent := st.ReturnsHistory5
	sharpDrop := false
	for _, r := range recent[:3] {
		if r < -0.02 {
			sharpDrop = true
			break
		}
	}
	quickRecovery := recent[len(recent)-1] > 0.01
	sharpRise := false
	for _, r := range recent[:3] {
		if r > 0.02 {
			sharpRise = true
			break
		}
	}
	quickDrop := recent[len(recent)-1] < -0.01

	rsiOversoldReversal := st.RSI > 30 && minOf(st.RSIHistory3) < 30
	rsiOverboughtReversal := st.RSI < 70 && maxOf(st.RSIHistory3) > 70
	volumeSpike := st.VolumeZScore > 2.0

	switch {
	case sharpDrop && quickRecovery && rsiOversoldReversal:
		score := 50.0
		if volumeSpike {
			score += 20
		}
		score += (st.RSI - 30) * 0.5
		return Long, math.Min(score, 100)
	case sharpRise && quickDrop && rsiOverboughtReversal:
		score := 50.0
		if volumeSpike {
			score += 20
		}
		score += (70 - st.RSI) * 0.5
		return Short, math.Min(score, 100)
	default:
		return Neutral, 0
	}
}

// stopAndTarget applies the §4.8 ATR-based stop/target formula.
func stopAndTarget(entry float64, direction Direction, atr float64, riskReward float64) (stop, target float64) {
	const stopMultiplier = 1.5
	if direction == Long {
		stop = entry - stopMultiplier*atr
		target = entry + riskReward*stopMultiplier*atr
	} else {
		stop = entry + stopMultiplier*atr
		target = entry - riskReward*stopMultiplier*atr
	}
	return stop, target
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func mean(vals []float64) float64 {
	if len(vals) == 0 {
		return 0
	}
	sum := 0.0
	for _, v := range vals {
		sum += v
	}
	return sum / float64(len(vals))
}

func minOf(vals []float64) float64 {
	m := vals[0]
	for _, v := range vals[1:] {
		if v < m {
			m = v
		}
	}
	return m
}

func maxOf(vals []float64) float64 {
	m := vals[0]
	for _, v := range vals[1:] {
		if v > m {
			m = v
		}
	}
	return m
}
