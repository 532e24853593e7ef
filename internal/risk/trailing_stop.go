package risk

import (
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// TrailingATRMultiplier is the distance, in ATRs, the working stop trails
// behind the high (long) or low (short) water mark once activated.
const TrailingATRMultiplier = 2.0

// TrailingStopManager tracks the trailing-stop state for every open
// position. It activates a position's trail only once unrealized profit
// reaches 1R (R = |entry - initial stop|) and, from then on, only ever
// tightens the working stop.
type TrailingStopManager struct {
	positions map[string]*TrailingPosition
	logger    zerolog.Logger
	mu        sync.RWMutex
}

// TrailingPosition is one symbol's trailing-stop bookkeeping.
type TrailingPosition struct {
	Symbol        string
	Side          string // "Buy" or "Sell"
	EntryPrice    float64
	InitialStop   float64
	CurrentStop   float64
	ATRAtEntry    float64
	HighWaterMark float64
	LowWaterMark  float64
	Activated     bool
	LastUpdate    time.Time
}

// NewTrailingStopManager creates a new trailing stop manager.
func NewTrailingStopManager(logger zerolog.Logger) *TrailingStopManager {
	return &TrailingStopManager{
		positions: make(map[string]*TrailingPosition),
		logger:    logger.With().Str("component", "TrailingStopManager").Logger(),
	}
}

// AddPosition begins tracking a newly opened position.
func (tsm *TrailingStopManager) AddPosition(symbol, side string, entryPrice, initialStop, atrAtEntry float64) {
	tsm.mu.Lock()
	defer tsm.mu.Unlock()

	tsm.positions[symbol] = &TrailingPosition{
		Symbol:        symbol,
		Side:          side,
		EntryPrice:    entryPrice,
		InitialStop:   initialStop,
		CurrentStop:   initialStop,
		ATRAtEntry:    atrAtEntry,
		HighWaterMark: entryPrice,
		LowWaterMark:  entryPrice,
		LastUpdate:    time.Now(),
	}
}

// RemovePosition stops tracking a symbol, typically on close.
func (tsm *TrailingStopManager) RemovePosition(symbol string) {
	tsm.mu.Lock()
	defer tsm.mu.Unlock()
	delete(tsm.positions, symbol)
}

// StopUpdate describes the result of feeding a new price into the trail.
type StopUpdate struct {
	Symbol       string
	OldStop      float64
	NewStop      float64
	Triggered    bool
	TriggerPrice float64
}

// UpdatePrice feeds the latest price and ATR into a tracked position's
// trail, tightening the working stop if warranted. Returns nil if the
// symbol isn't tracked or nothing changed.
func (tsm *TrailingStopManager) UpdatePrice(symbol string, currentPrice, atr float64) *StopUpdate {
	tsm.mu.Lock()
	defer tsm.mu.Unlock()

	pos, exists := tsm.positions[symbol]
	if !exists {
		return nil
	}

	var update *StopUpdate
	if pos.Side == "Buy" {
		update = tsm.updateLong(pos, currentPrice, atr)
	} else {
		update = tsm.updateShort(pos, currentPrice, atr)
	}
	pos.LastUpdate = time.Now()
	return update
}

func riskPerUnit(pos *TrailingPosition) float64 {
	return absFloat(pos.EntryPrice - pos.InitialStop)
}

func (tsm *TrailingStopManager) updateLong(pos *TrailingPosition, currentPrice, atr float64) *StopUpdate {
	if currentPrice <= pos.CurrentStop {
		return &StopUpdate{Symbol: pos.Symbol, OldStop: pos.CurrentStop, NewStop: pos.CurrentStop, Triggered: true, TriggerPrice: currentPrice}
	}

	if currentPrice > pos.HighWaterMark {
		pos.HighWaterMark = currentPrice
	}

	r := riskPerUnit(pos)
	if !pos.Activated && r > 0 && currentPrice-pos.EntryPrice >= r {
		pos.Activated = true
		tsm.logger.Info().Str("symbol", pos.Symbol).Float64("price", currentPrice).Msg("trailing stop activated")
	}

	if pos.Activated && atr > 0 {
		candidate := pos.HighWaterMark - TrailingATRMultiplier*atr
		if candidate > pos.CurrentStop {
			old := pos.CurrentStop
			pos.CurrentStop = candidate
			return &StopUpdate{Symbol: pos.Symbol, OldStop: old, NewStop: candidate}
		}
	}
	return nil
}

func (tsm *TrailingStopManager) updateShort(pos *TrailingPosition, currentPrice, atr float64) *StopUpdate {
	if currentPrice >= pos.CurrentStop {
		return &StopUpdate{Symbol: pos.Symbol, OldStop: pos.CurrentStop, NewStop: pos.CurrentStop, Triggered: true, TriggerPrice: currentPrice}
	}

	if currentPrice < pos.LowWaterMark {
		pos.LowWaterMark = currentPrice
	}

	r := riskPerUnit(pos)
	if !pos.Activated && r > 0 && pos.EntryPrice-currentPrice >= r {
		pos.Activated = true
		tsm.logger.Info().Str("symbol", pos.Symbol).Float64("price", currentPrice).Msg("trailing stop activated")
	}

	if pos.Activated && atr > 0 {
		candidate := pos.LowWaterMark + TrailingATRMultiplier*atr
		if candidate < pos.CurrentStop {
			old := pos.CurrentStop
			pos.CurrentStop = candidate
			return &StopUpdate{Symbol: pos.Symbol, OldStop: old, NewStop: candidate}
		}
	}
	return nil
}

// GetCurrentStop returns the working stop for a tracked symbol.
func (tsm *TrailingStopManager) GetCurrentStop(symbol string) (float64, bool) {
	tsm.mu.RLock()
	defer tsm.mu.RUnlock()
	if pos, ok := tsm.positions[symbol]; ok {
		return pos.CurrentStop, true
	}
	return 0, false
}
