// Package indicator computes the technical-analysis snapshot (C3) consumed
// by the regime detector, classifier, strategy rule set, and signal
// synthesizer. Every function here is pure: candles in, numbers out, no
// network or clock access.
package indicator

import (
	"errors"
	"math"

	"github.com/kairoslabs/derivatives-engine/internal/candle"
)

// ErrInsufficientData is returned when the candle window cannot warm up the
// required indicator periods (spec requires >= 60 bars).
var ErrInsufficientData = errors.New("indicator: insufficient data")

const warmupBars = 60

// Trend classifies EMA20/EMA50/price alignment.
type Trend string

const (
	TrendBullish Trend = "Bullish"
	TrendBearish Trend = "Bearish"
	TrendNeutral Trend = "Neutral"
)

// State is a single derived snapshot of the tail of a candle series. It is
// never mutated after construction.
type State struct {
	Price        float64
	RSI          float64
	EMA20        float64
	EMA50        float64
	ATR          float64
	ADX          float64
	DIPlus       float64
	DIMinus      float64
	BBUpper      float64
	BBMiddle     float64
	BBLower      float64
	BBWidth      float64
	BBPercentB   float64
	MACD         float64
	MACDSignal   float64
	MACDHist     float64
	VolumeZScore float64
	Trend        Trend
	VolumeSpike  bool

	// EMA9/EMA21 and a short-window BB-width history are kept for the
	// intraday scoring detectors (signal package), which need more than a
	// single-instant snapshot of the moving pieces.
	EMA9             float64
	EMA21            float64
	EMA21SlopePct    float64
	BBWidthHistory   []float64 // last 20 bar-over-bar bb width values, oldest first
	ADXHistory3      []float64 // last 3 ADX values, oldest first
	ReturnsHistory5  []float64 // last 5 log-returns, oldest first
	RSIHistory3      []float64 // last 3 RSI values, oldest first
}

// Compute derives a State from the tail of candles. Requires at least 60
// bars; returns ErrInsufficientData otherwise.
func Compute(candles []candle.Candle) (State, error) {
	if len(candles) < warmupBars {
		return State{}, ErrInsufficientData
	}

	closes := closesOf(candles)
	last := candles[len(candles)-1]

	ema20 := ema(closes, 20)
	ema50 := ema(closes, 50)
	ema9 := ema(closes, 9)
	ema21 := ema(closes, 21)

	rsi := rsi(closes, 14)
	atrSeries := atrSeries(candles, 14)
	atr := lastOrZero(atrSeries)

	diPlusSeries, diMinusSeries, adxSeries := adx(candles, 14)
	adxVal := lastOrZero(adxSeries)
	diPlus := lastOrZero(diPlusSeries)
	diMinus := lastOrZero(diMinusSeries)

	bbUpper, bbMiddle, bbLower := bollinger(closes, 20, 2.0)
	bbWidth := 0.0
	if bbMiddle != 0 {
		bbWidth = (bbUpper - bbLower) / bbMiddle
	}
	bbPercentB := 0.0
	if bbUpper != bbLower {
		bbPercentB = (last.Close - bbLower) / (bbUpper - bbLower)
	}

	macdLine, macdSignal, macdHist := macd(closes, 12, 26, 9)

	volumes := volumesOf(candles)
	volZ := volumeZScore(volumes, 20)
	volSpike := last.Volume > 1.5*mean(tail(volumes[:len(volumes)-1], 20))

	trend := TrendNeutral
	if last.Close > ema20 && ema20 > ema50 {
		trend = TrendBullish
	} else if last.Close < ema20 && ema20 < ema50 {
		trend = TrendBearish
	}

	slope := ema21SlopePct(closes, 21, 5)

	return State{
		Price:            last.Close,
		RSI:              rsi,
		EMA20:            ema20,
		EMA50:            ema50,
		ATR:              atr,
		ADX:              adxVal,
		DIPlus:           diPlus,
		DIMinus:          diMinus,
		BBUpper:          bbUpper,
		BBMiddle:         bbMiddle,
		BBLower:          bbLower,
		BBWidth:          bbWidth,
		BBPercentB:       bbPercentB,
		MACD:             macdLine,
		MACDSignal:       macdSignal,
		MACDHist:         macdHist,
		VolumeZScore:     volZ,
		Trend:            trend,
		VolumeSpike:      volSpike,
		EMA9:             ema9,
		EMA21:            ema21,
		EMA21SlopePct:    slope,
		BBWidthHistory:   bbWidthHistory(closes, 20, 2.0, 20),
		ADXHistory3:      tail(adxSeries, 3),
		ReturnsHistory5:  tail(logReturns(closes), 5),
		RSIHistory3:      tail(rsiSeries(closes, 14), 3),
	}, nil
}

// ---------------------------------------------------------------------
// moving averages
// ---------------------------------------------------------------------

func sma(closes []float64, period int) float64 {
	if len(closes) < period {
		return 0
	}
	sum := 0.0
	for _, c := range closes[len(closes)-period:] {
		sum += c
	}
	return sum / float64(period)
}

// ema computes the exponential moving average over the full series, seeded
// by the SMA of the first `period` values, matching the teacher's
// CalculateEMA convention.
func ema(closes []float64, period int) float64 {
	series := emaSeries(closes, period)
	return lastOrZero(series)
}

// emaSeries returns the EMA value at every index from `period-1` onward.
func emaSeries(closes []float64, period int) []float64 {
	if len(closes) < period {
		return nil
	}
	multiplier := 2.0 / float64(period+1)
	out := make([]float64, 0, len(closes)-period+1)
	cur := sma(closes[:period], period)
	out = append(out, cur)
	for i := period; i < len(closes); i++ {
		cur = (closes[i] * multiplier) + (cur * (1 - multiplier))
		out = append(out, cur)
	}
	return out
}

func ema21SlopePct(closes []float64, period, lookback int) float64 {
	series := emaSeries(closes, period)
	if len(series) <= lookback {
		return 0
	}
	cur := series[len(series)-1]
	prior := series[len(series)-1-lookback]
	if prior == 0 {
		return 0
	}
	return (cur - prior) / prior * 100
}

// ---------------------------------------------------------------------
// RSI
// ---------------------------------------------------------------------

func rsi(closes []float64, period int) float64 {
	series := rsiSeries(closes, period)
	return lastOrZero(series)
}

func rsiSeries(closes []float64, period int) []float64 {
	if len(closes) < period+1 {
		return nil
	}
	gains := 0.0
	losses := 0.0
	for i := 1; i <= period; i++ {
		change := closes[i] - closes[i-1]
		if change > 0 {
			gains += change
		} else {
			losses += -change
		}
	}
	avgGain := gains / float64(period)
	avgLoss := losses / float64(period)

	out := make([]float64, 0, len(closes)-period)
	out = append(out, rsiFromAvg(avgGain, avgLoss))

	for i := period + 1; i < len(closes); i++ {
		change := closes[i] - closes[i-1]
		gain, loss := 0.0, 0.0
		if change > 0 {
			gain = change
		} else {
			loss = -change
		}
		avgGain = (avgGain*float64(period-1) + gain) / float64(period)
		avgLoss = (avgLoss*float64(period-1) + loss) / float64(period)
		out = append(out, rsiFromAvg(avgGain, avgLoss))
	}
	return out
}

func rsiFromAvg(avgGain, avgLoss float64) float64 {
	if avgLoss == 0 {
		return 100.0
	}
	rs := avgGain / avgLoss
	return 100 - (100 / (1 + rs))
}

// ---------------------------------------------------------------------
// ATR / True Range
// ---------------------------------------------------------------------

func trueRange(cur, prev candle.Candle) float64 {
	return math.Max(cur.High-cur.Low, math.Max(math.Abs(cur.High-prev.Close), math.Abs(cur.Low-prev.Close)))
}

// atrSeries returns Wilder-smoothed ATR at every index from `period` onward.
func atrSeries(candles []candle.Candle, period int) []float64 {
	if len(candles) < period+1 {
		return nil
	}
	trs := make([]float64, 0, len(candles)-1)
	for i := 1; i < len(candles); i++ {
		trs = append(trs, trueRange(candles[i], candles[i-1]))
	}
	return wilderSmooth(trs, period)
}

// wilderSmooth applies Wilder's smoothing: seed with the simple average of
// the first `period` values, then recursively blend.
func wilderSmooth(values []float64, period int) []float64 {
	if len(values) < period {
		return nil
	}
	sum := 0.0
	for _, v := range values[:period] {
		sum += v
	}
	cur := sum / float64(period)
	out := make([]float64, 0, len(values)-period+1)
	out = append(out, cur)
	for i := period; i < len(values); i++ {
		cur = (cur*float64(period-1) + values[i]) / float64(period)
		out = append(out, cur)
	}
	return out
}

// ---------------------------------------------------------------------
// ADX / DI+ / DI-
// ---------------------------------------------------------------------

// adx returns the DI+, DI-, and ADX series, properly derived from smoothed
// directional movement rather than approximated from price range (the
// teacher's CalculateADX only approximates; this replaces it with the
// textbook Wilder construction the spec requires).
func adx(candles []candle.Candle, period int) (diPlusSeries, diMinusSeries, adxSeries []float64) {
	if len(candles) < 2*period+1 {
		return nil, nil, nil
	}

	n := len(candles) - 1
	plusDM := make([]float64, n)
	minusDM := make([]float64, n)
	trs := make([]float64, n)

	for i := 1; i < len(candles); i++ {
		up := candles[i].High - candles[i-1].High
		down := candles[i-1].Low - candles[i].Low
		switch {
		case up > down && up > 0:
			plusDM[i-1] = up
		case down > up && down > 0:
			minusDM[i-1] = down
		}
		trs[i-1] = trueRange(candles[i], candles[i-1])
	}

	smoothTR := wilderSmooth(trs, period)
	smoothPlusDM := wilderSmooth(plusDM, period)
	smoothMinusDM := wilderSmooth(minusDM, period)

	m := len(smoothTR)
	if len(smoothPlusDM) < m {
		m = len(smoothPlusDM)
	}
	if len(smoothMinusDM) < m {
		m = len(smoothMinusDM)
	}

	diPlusSeries = make([]float64, m)
	diMinusSeries = make([]float64, m)
	dx := make([]float64, m)
	for i := 0; i < m; i++ {
		tr := smoothTR[i]
		if tr == 0 {
			continue
		}
		diPlusSeries[i] = 100 * smoothPlusDM[i] / tr
		diMinusSeries[i] = 100 * smoothMinusDM[i] / tr
		denom := diPlusSeries[i] + diMinusSeries[i]
		if denom != 0 {
			dx[i] = 100 * math.Abs(diPlusSeries[i]-diMinusSeries[i]) / denom
		}
	}

	adxSeries = wilderSmooth(dx, period)
	return diPlusSeries, diMinusSeries, adxSeries
}

// ---------------------------------------------------------------------
// Bollinger Bands
// ---------------------------------------------------------------------

func bollinger(closes []float64, period int, stdMult float64) (upper, middle, lower float64) {
	if len(closes) < period {
		return 0, 0, 0
	}
	window := closes[len(closes)-period:]
	middle = sma(closes, period)
	variance := 0.0
	for _, c := range window {
		d := c - middle
		variance += d * d
	}
	std := math.Sqrt(variance / float64(period))
	upper = middle + stdMult*std
	lower = middle - stdMult*std
	return upper, middle, lower
}

// bbWidthHistory returns the trailing `count` bb-width values (oldest
// first), used by the volatility-compression detector to rank the current
// width against its own recent percentile.
func bbWidthHistory(closes []float64, period int, stdMult float64, count int) []float64 {
	if len(closes) < period {
		return nil
	}
	out := make([]float64, 0, count)
	start := len(closes) - count + 1
	if start < period {
		start = period
	}
	for i := start; i <= len(closes); i++ {
		upper, middle, lower := bollinger(closes[:i], period, stdMult)
		if middle == 0 {
			continue
		}
		out = append(out, (upper-lower)/middle)
	}
	return out
}

// ---------------------------------------------------------------------
// MACD
// ---------------------------------------------------------------------

// macd computes the MACD line and a true EMA-of-MACD-line signal, fixing
// the teacher's `signalLine := macdLine * 0.8` placeholder approximation.
func macd(closes []float64, fast, slow, signalPeriod int) (line, signal, hist float64) {
	if len(closes) < slow+signalPeriod {
		return 0, 0, 0
	}
	fastSeries := emaSeries(closes, fast)
	slowSeries := emaSeries(closes, slow)

	offset := len(fastSeries) - len(slowSeries)
	n := len(slowSeries)
	macdLine := make([]float64, n)
	for i := 0; i < n; i++ {
		macdLine[i] = fastSeries[i+offset] - slowSeries[i]
	}

	signalSeries := emaSeries(macdLine, signalPeriod)
	line = lastOrZero(macdLine)
	signal = lastOrZero(signalSeries)
	hist = line - signal
	return line, signal, hist
}

// ---------------------------------------------------------------------
// Volume
// ---------------------------------------------------------------------

func volumeZScore(volumes []float64, period int) float64 {
	if len(volumes) < period+1 {
		return 0
	}
	window := volumes[len(volumes)-period-1 : len(volumes)-1]
	avg := mean(window)
	std := stddev(window, avg)
	if std == 0 {
		return 0
	}
	return (volumes[len(volumes)-1] - avg) / std
}

// ---------------------------------------------------------------------
// helpers
// ---------------------------------------------------------------------

func closesOf(candles []candle.Candle) []float64 {
	out := make([]float64, len(candles))
	for i, c := range candles {
		out[i] = c.Close
	}
	return out
}

func volumesOf(candles []candle.Candle) []float64 {
	out := make([]float64, len(candles))
	for i, c := range candles {
		out[i] = c.Volume
	}
	return out
}

func logReturns(closes []float64) []float64 {
	if len(closes) < 2 {
		return nil
	}
	out := make([]float64, 0, len(closes)-1)
	for i := 1; i < len(closes); i++ {
		if closes[i-1] <= 0 {
			out = append(out, 0)
			continue
		}
		out = append(out, math.Log(closes[i]/closes[i-1]))
	}
	return out
}

func mean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sum := 0.0
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

func stddev(values []float64, mean float64) float64 {
	if len(values) == 0 {
		return 0
	}
	variance := 0.0
	for _, v := range values {
		d := v - mean
		variance += d * d
	}
	return math.Sqrt(variance / float64(len(values)))
}

func tail(values []float64, n int) []float64 {
	if len(values) <= n {
		return values
	}
	return values[len(values)-n:]
}

func lastOrZero(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	return values[len(values)-1]
}
