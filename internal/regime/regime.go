// Package regime implements the Regime Detector (C7): classifies the
// current market regime from an indicator snapshot and decides which
// signal kinds the synthesizer may emit this cycle.
package regime

import (
	"math"

	"github.com/kairoslabs/derivatives-engine/internal/indicator"
)

// Regime is the discrete market-behavior label.
type Regime string

const (
	Trending     Regime = "Trending"
	MeanReverting Regime = "MeanReverting"
	Compressed   Regime = "Compressed"
	Chaotic      Regime = "Chaotic"
)

// SignalKind mirrors the kinds a Signal may carry (duplicated here rather
// than imported from the signal package to avoid an import cycle; regime
// only needs the kind names as a gating vocabulary).
type SignalKind string

const (
	KindBreakout            SignalKind = "Breakout"
	KindTrendFollow         SignalKind = "TrendFollow"
	KindMeanRevert          SignalKind = "MeanRevert"
	KindLiquidationSnapback SignalKind = "LiquidationSnapback"
	KindNone                SignalKind = "None"
)

// State is the detector's output for one cycle.
type State struct {
	Regime     Regime
	Confidence float64 // 0..100
	Allowed    map[SignalKind]bool
}

// Detect classifies the regime from ADX (trend strength), BB-width
// percentile (compression), and realized volatility of recent returns.
// fundingRate and oiChange are accepted but not read: the mapping depends
// only on the IndicatorState, which keeps it deterministic.
func Detect(st indicator.State, fundingRate, oiChange *float64) State {
	compressionPercentile := bbWidthPercentile(st)
	realizedVol := realizedVolatility(st.ReturnsHistory5)

	isCompressed := compressionPercentile < 0.20
	isTrending := st.ADX >= 25
	isChaotic := realizedVol > 0.04 && st.ADX < 20

	var regime Regime
	var confidence float64

	switch {
	case isChaotic:
		regime = Chaotic
		confidence = clamp(50 + realizedVol*1000, 0, 100)
	case isCompressed:
		regime = Compressed
		confidence = clamp((1-compressionPercentile)*100, 0, 100)
	case isTrending:
		regime = Trending
		confidence = clamp(st.ADX*2, 0, 100)
	default:
		regime = MeanReverting
		confidence = clamp(100-st.ADX*2, 0, 100)
	}

	return State{
		Regime:     regime,
		Confidence: confidence,
		Allowed:    allowedKinds(regime),
	}
}

func allowedKinds(r Regime) map[SignalKind]bool {
	switch r {
	case Trending:
		return map[SignalKind]bool{KindTrendFollow: true, KindBreakout: true}
	case Compressed:
		return map[SignalKind]bool{KindBreakout: true}
	case MeanReverting:
		return map[SignalKind]bool{KindMeanRevert: true, KindLiquidationSnapback: true}
	case Chaotic:
		return map[SignalKind]bool{KindLiquidationSnapback: true}
	default:
		return map[SignalKind]bool{}
	}
}

// Allows reports whether the given kind name may fire under this regime.
func (s State) Allows(kind string) bool {
	return s.Allowed[SignalKind(kind)]
}

func bbWidthPercentile(st indicator.State) float64 {
	hist := st.BBWidthHistory
	if len(hist) < 5 {
		return 1.0 // not enough history: assume not compressed
	}
	current := hist[len(hist)-1]
	below := 0
	for _, w := range hist {
		if w < current {
			below++
		}
	}
	return float64(below) / float64(len(hist))
}

func realizedVolatility(returns []float64) float64 {
	if len(returns) == 0 {
		return 0
	}
	sumSq := 0.0
	for _, r := range returns {
		sumSq += r * r
	}
	return math.Sqrt(sumSq / float64(len(returns)))
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
