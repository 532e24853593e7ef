// Package candle defines the normalized OHLCV series the rest of the
// trading engine operates on (C2 Market-Data Adapter output).
package candle

import "sort"

// Candle is one immutable OHLCV observation.
type Candle struct {
	OpenTime int64 // unix millis
	Open     float64
	High     float64
	Low      float64
	Close    float64
	Volume   float64
}

// Set is a time-ordered candle series plus provenance. Synthetic is set
// when the series came from the fallback random-walk generator rather than
// a real market-data source, per the Market-Data Adapter's "never hidden"
// requirement.
type Set struct {
	Symbol    string
	Interval  string
	Candles   []Candle
	Synthetic bool
}

// Normalize sorts candles ascending by OpenTime and deduplicates timestamps,
// keeping the later candle on a collision. It does not mutate its input.
func Normalize(in []Candle) []Candle {
	if len(in) == 0 {
		return nil
	}

	sorted := make([]Candle, len(in))
	copy(sorted, in)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].OpenTime < sorted[j].OpenTime
	})

	out := make([]Candle, 0, len(sorted))
	for _, c := range sorted {
		if len(out) > 0 && out[len(out)-1].OpenTime == c.OpenTime {
			out[len(out)-1] = c // later candle for the same timestamp wins
			continue
		}
		out = append(out, c)
	}
	return out
}

// Closes returns the close price series.
func (s Set) Closes() []float64 {
	out := make([]float64, len(s.Candles))
	for i, c := range s.Candles {
		out[i] = c.Close
	}
	return out
}

// Len reports the number of candles in the set.
func (s Set) Len() int { return len(s.Candles) }

// Last returns the most recent candle and whether the set is non-empty.
func (s Set) Last() (Candle, bool) {
	if len(s.Candles) == 0 {
		return Candle{}, false
	}
	return s.Candles[len(s.Candles)-1], true
}
