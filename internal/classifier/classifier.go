// Package classifier implements the Classifier (C4): a small supervised
// binary model, refit on demand from the trailing candle window, that
// predicts whether the next bar closes up or down. Feature construction
// follows the shape of the teacher's internal/ai/ml.Predictor (rolling
// returns, RSI, volume ratio) but, unlike that package's fixed-weight
// heuristic ensemble, the weights here are actually fit by gradient
// descent against realized next-bar outcomes.
package classifier

import (
	"errors"
	"math"

	"github.com/kairoslabs/derivatives-engine/internal/candle"
)

// ErrUntrained is returned when fewer than minTrainingBars candles are
// available to fit the model.
var ErrUntrained = errors.New("classifier: not enough history to train")

const (
	minTrainingBars = 100
	featureCount    = 4
	learningRate    = 0.05
	epochs          = 300
)

// Direction is the model's binary prediction.
type Direction string

const (
	Up   Direction = "Up"
	Down Direction = "Down"
)

// Prediction is the Classifier's output for the most recent bar.
type Prediction struct {
	Direction  Direction
	Confidence float64 // probability of the predicted direction, 0.5..1.0
}

// Model is a logistic-regression binary classifier over
// [rsi, ema20-relative-price, log-return, volume/rolling-mean-20]. It is
// refit from scratch every time Fit observes a newer final candle than
// the one it last trained on, so a caller can call Classify every cycle
// without worrying about staleness itself.
type Model struct {
	weights     [featureCount]float64
	bias        float64
	trained     bool
	lastBarTime int64
}

func New() *Model {
	return &Model{}
}

// Classify fits (or refits, if the newest candle has advanced) the model
// over candles and returns a prediction for the direction of the bar that
// follows the most recent one.
func (m *Model) Classify(candles []candle.Candle) (Prediction, error) {
	if len(candles) < minTrainingBars {
		return Prediction{}, ErrUntrained
	}

	newest := candles[len(candles)-1]
	if !m.trained || newest.OpenTime != m.lastBarTime {
		if err := m.fit(candles); err != nil {
			return Prediction{}, err
		}
		m.lastBarTime = newest.OpenTime
		m.trained = true
	}

	features, err := featuresFor(candles, len(candles)-1)
	if err != nil {
		return Prediction{}, err
	}

	p := m.predictProb(features)
	if p >= 0.5 {
		return Prediction{Direction: Up, Confidence: p}, nil
	}
	return Prediction{Direction: Down, Confidence: 1 - p}, nil
}

// fit trains the logistic regression via batch gradient descent on every
// (features[i], label[i+1]) pair the window supports, where label is
// whether close[i+1] > close[i].
func (m *Model) fit(candles []candle.Candle) error {
	var X [][featureCount]float64
	var y []float64

	for i := 20; i < len(candles)-1; i++ {
		f, err := featuresFor(candles, i)
		if err != nil {
			continue
		}
		label := 0.0
		if candles[i+1].Close > candles[i].Close {
			label = 1.0
		}
		X = append(X, f)
		y = append(y, label)
	}

	if len(X) < minTrainingBars/2 {
		return ErrUntrained
	}

	var weights [featureCount]float64
	var bias float64

	n := float64(len(X))
	for epoch := 0; epoch < epochs; epoch++ {
		var gradW [featureCount]float64
		var gradB float64

		for i, x := range X {
			z := bias
			for j := 0; j < featureCount; j++ {
				z += weights[j] * x[j]
			}
			pred := sigmoid(z)
			errTerm := pred - y[i]
			for j := 0; j < featureCount; j++ {
				gradW[j] += errTerm * x[j]
			}
			gradB += errTerm
		}

		for j := 0; j < featureCount; j++ {
			weights[j] -= learningRate * gradW[j] / n
		}
		bias -= learningRate * gradB / n
	}

	m.weights = weights
	m.bias = bias
	return nil
}

func (m *Model) predictProb(features [featureCount]float64) float64 {
	z := m.bias
	for j := 0; j < featureCount; j++ {
		z += m.weights[j] * features[j]
	}
	return sigmoid(z)
}

func sigmoid(z float64) float64 {
	return 1.0 / (1.0 + math.Exp(-z))
}

// featuresFor builds [rsi, (price-ema20)/ema20, log-return, volume/rolling-mean20]
// for the candle at index i, using only data at or before i.
func featuresFor(candles []candle.Candle, i int) ([featureCount]float64, error) {
	if i < 20 || i >= len(candles) {
		return [featureCount]float64{}, errors.New("classifier: index out of warmup range")
	}

	window := candles[:i+1]
	closes := make([]float64, len(window))
	volumes := make([]float64, len(window))
	for k, c := range window {
		closes[k] = c.Close
		volumes[k] = c.Volume
	}

	r := rsi14(closes)
	ema20 := emaLast(closes, 20)
	priceRel := 0.0
	if ema20 != 0 {
		priceRel = (closes[len(closes)-1] - ema20) / ema20
	}

	logReturn := 0.0
	if len(closes) >= 2 && closes[len(closes)-2] > 0 {
		logReturn = math.Log(closes[len(closes)-1] / closes[len(closes)-2])
	}

	volRatio := 1.0
	if len(volumes) > 20 {
		rollingMean := mean(volumes[len(volumes)-21 : len(volumes)-1])
		if rollingMean != 0 {
			volRatio = volumes[len(volumes)-1] / rollingMean
		}
	}

	return [featureCount]float64{r / 100, priceRel, logReturn, volRatio}, nil
}

func rsi14(closes []float64) float64 {
	const period = 14
	if len(closes) < period+1 {
		return 50
	}
	gains, losses := 0.0, 0.0
	start := len(closes) - period
	for i := start; i < len(closes); i++ {
		change := closes[i] - closes[i-1]
		if change > 0 {
			gains += change
		} else {
			losses += -change
		}
	}
	avgGain := gains / period
	avgLoss := losses / period
	if avgLoss == 0 {
		return 100
	}
	rs := avgGain / avgLoss
	return 100 - (100 / (1 + rs))
}

func emaLast(closes []float64, period int) float64 {
	if len(closes) < period {
		return 0
	}
	multiplier := 2.0 / float64(period+1)
	cur := mean(closes[:period])
	for i := period; i < len(closes); i++ {
		cur = closes[i]*multiplier + cur*(1-multiplier)
	}
	return cur
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
