// Package signal implements the Signal Synthesizer (C8) and the intraday
// scoring detectors (§4.8) that feed its Institutional path.
package signal

// Direction is the trade direction a Signal or Decision recommends.
type Direction string

const (
	Long    Direction = "Long"
	Short   Direction = "Short"
	Neutral Direction = "Neutral"
)

// Kind identifies which detector produced a Signal.
type Kind string

const (
	KindBreakout            Kind = "Breakout"
	KindTrendFollow         Kind = "TrendFollow"
	KindMeanRevert          Kind = "MeanRevert"
	KindLiquidationSnapback Kind = "LiquidationSnapback"
	KindNone                Kind = "None"
)

// Signal is the Institutional path's scored trade candidate for one symbol.
type Signal struct {
	Direction   Direction
	Kind        Kind
	Strength    float64 // 0..100
	Entry       float64
	StopLoss    float64
	TakeProfit  float64
	RiskReward  float64
	Factors     map[string]float64
	Meta        map[string]any
}
