// Package position implements the Unified Position Manager (C11): open
// (replacing any tracked position for the symbol), a 5s monitor loop that mutates state under lock but
// issues close orders outside it, the ATR trailing stop, and a close path
// that tolerates an externally-liquidated position. It is grounded on the
// teacher's internal/orders.PositionTracker (zerolog-based component
// logger, mutex-guarded in-memory map keyed by a stable identity,
// Create/Update/Get shape), generalized from per-order lifecycle tracking
// to full open/monitor/close position ownership.
package position

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/kairoslabs/derivatives-engine/internal/exchange"
	"github.com/kairoslabs/derivatives-engine/internal/risk"
)

// Source records which mode loop opened a position.
type Source string

const (
	SourceSentinel      Source = "Sentinel"
	SourceInstitutional Source = "Institutional"
)

// CloseReason records why a position was closed.
type CloseReason string

const (
	CloseReasonStopLoss       CloseReason = "StopLoss"
	CloseReasonTakeProfit     CloseReason = "TakeProfit"
	CloseReasonTimeStop       CloseReason = "TimeStop"
	CloseReasonManual         CloseReason = "Manual"
	CloseReasonSystemShutdown CloseReason = "SystemShutdown"
	CloseReasonExternallyClosed CloseReason = "ExternallyClosed"
)

// Position is the in-memory record of one open trade. It is created by
// Open, mutated only by the monitor loop, and destroyed by Close.
type Position struct {
	Symbol           string
	Side             exchange.Side
	Direction        string // "Long" or "Short"
	Size             float64
	EntryPrice       float64
	CurrentPrice     float64
	StopLoss         float64
	TakeProfit       float64
	Leverage         float64
	MarginUsed       float64
	UnrealizedPnl    float64
	UnrealizedPnlPct float64
	OpenedAt         time.Time
	OrderID          string
	Source           Source
	HighestPrice     float64
	LowestPrice      float64
	ATRAtEntry       float64
	CorrelationGroup string
	Meta             map[string]any
}

// Gateway is the subset of exchange.Client the manager needs to place
// closing orders and read live prices.
type Gateway interface {
	PlaceOrder(ctx context.Context, req exchange.OrderRequest) (exchange.OrderResponse, error)
	ListPositions(ctx context.Context) ([]exchange.PositionRecord, error)
}

// PriceFeed supplies the latest price for a symbol, as produced by the
// Market-Data Adapter (C2).
type PriceFeed interface {
	LatestPrice(ctx context.Context, symbol string) (price, atr float64, err error)
}

const monitorInterval = 5 * time.Second
const maxHold = 24 * time.Hour

// Recorder persists position lifecycle events for crash recovery and trade
// history. A Manager with no Recorder set (the zero value) simply skips
// persistence; Open/Close never fail because of it.
type Recorder interface {
	SaveOpen(p Position)
	DeleteOpen(symbol string)
	RecordClosed(p Position, exitPrice float64, reason CloseReason, closedAt time.Time)
}

// Manager is the position manager. Open/Close take the lock only for the
// in-memory mutation; all outbound order submission happens outside it.
type Manager struct {
	mu        sync.Mutex
	positions map[string]*Position
	trailing  *risk.TrailingStopManager
	risk      *risk.Manager
	gateway   Gateway
	feed      PriceFeed
	logger    zerolog.Logger

	monitorOnce sync.Once
	stop        chan struct{}

	recorder Recorder
}

// SetRecorder attaches a persistence hook after construction. Called once
// during startup wiring, before any Open; not safe for concurrent use with
// Open/Close.
func (m *Manager) SetRecorder(r Recorder) {
	m.recorder = r
}

// New builds a Manager.
func New(gateway Gateway, feed PriceFeed, riskMgr *risk.Manager, logger zerolog.Logger) *Manager {
	l := logger.With().Str("component", "PositionManager").Logger()
	return &Manager{
		positions: make(map[string]*Position),
		trailing:  risk.NewTrailingStopManager(l),
		risk:      riskMgr,
		gateway:   gateway,
		feed:      feed,
		logger:    l,
		stop:      make(chan struct{}),
	}
}

// EnsureRunning starts the monitor loop if it has not already started. It
// satisfies coordinator.PositionMonitor: the Mode Coordinator calls this
// once, on the first mode transition out of Idle, so monitoring runs
// independently of whether any position has been opened yet.
func (m *Manager) EnsureRunning(ctx context.Context) {
	m.monitorOnce.Do(func() { go m.monitorLoop(ctx) })
}

// Open installs a new position for symbol, replacing any existing entry
// for that symbol under the lock, and starts the monitor loop on first use.
// The replaced position gets no closing order and no close record.
func (m *Manager) Open(ctx context.Context, p Position) error {
	m.mu.Lock()
	if existing, ok := m.positions[p.Symbol]; ok {
		m.logger.Info().Str("symbol", p.Symbol).Msg("replacing existing position")
		m.trailing.RemovePosition(existing.Symbol)
	}
	p.HighestPrice = p.EntryPrice
	p.LowestPrice = p.EntryPrice
	m.positions[p.Symbol] = &p
	m.mu.Unlock()

	trailSide := "Sell"
	if p.Side == exchange.SideBuy {
		trailSide = "Buy"
	}
	m.trailing.AddPosition(p.Symbol, trailSide, p.EntryPrice, p.StopLoss, p.ATRAtEntry)
	m.monitorOnce.Do(func() { go m.monitorLoop(ctx) })
	if m.recorder != nil {
		m.recorder.SaveOpen(p)
	}
	return nil
}

// Open positions returns the risk manager's view of currently open
// positions, for exposure and correlation checks.
func (m *Manager) OpenRiskPositions() []risk.OpenPosition {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]risk.OpenPosition, 0, len(m.positions))
	for _, p := range m.positions {
		out = append(out, risk.OpenPosition{Symbol: p.Symbol, CorrelationGroup: p.CorrelationGroup, MarginUsed: p.MarginUsed})
	}
	return out
}

// Get returns a copy of the tracked position for symbol, if any.
func (m *Manager) Get(symbol string) (Position, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.positions[symbol]
	if !ok {
		return Position{}, false
	}
	return *p, true
}

// Count returns the number of currently open positions.
func (m *Manager) Count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.positions)
}

func (m *Manager) monitorLoop(ctx context.Context) {
	ticker := time.NewTicker(monitorInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-m.stop:
			return
		case <-ticker.C:
			m.tick(ctx)
		}
	}
}

// tick fetches each open position's latest price and evaluates its exit
// conditions under the lock, collects symbols to close, releases the lock,
// then submits close orders outside it. The price fetches run while the
// lock is held; only the close orders run without it.
func (m *Manager) tick(ctx context.Context) {
	m.mu.Lock()
	toClose := make(map[string]CloseReason)
	for symbol, p := range m.positions {
		price, atr, err := m.feed.LatestPrice(ctx, symbol)
		if err != nil {
			m.logger.Warn().Err(err).Str("symbol", symbol).Msg("price update failed")
			continue
		}
		m.updatePosition(p, price, atr)

		if reason, shouldClose := exitReason(p); shouldClose {
			toClose[symbol] = reason
		}
	}
	m.mu.Unlock()

	for symbol, reason := range toClose {
		if err := m.Close(ctx, symbol, reason); err != nil {
			m.logger.Error().Err(err).Str("symbol", symbol).Msg("failed to close position")
		}
	}
}

func (m *Manager) updatePosition(p *Position, price, atr float64) {
	p.CurrentPrice = price
	if price > p.HighestPrice {
		p.HighestPrice = price
	}
	if price < p.LowestPrice {
		p.LowestPrice = price
	}

	if p.Side == exchange.SideBuy {
		p.UnrealizedPnl = (price - p.EntryPrice) * p.Size
	} else {
		p.UnrealizedPnl = (p.EntryPrice - price) * p.Size
	}
	if p.EntryPrice > 0 {
		p.UnrealizedPnlPct = p.UnrealizedPnl / (p.EntryPrice * p.Size) * 100
	}

	if upd := m.trailing.UpdatePrice(p.Symbol, price, atr); upd != nil && !upd.Triggered {
		p.StopLoss = upd.NewStop
	}
}

// exitReason evaluates stop/target/time-stop conditions for a position.
func exitReason(p *Position) (CloseReason, bool) {
	if p.Side == exchange.SideBuy {
		if p.CurrentPrice <= p.StopLoss {
			return CloseReasonStopLoss, true
		}
		if p.CurrentPrice >= p.TakeProfit {
			return CloseReasonTakeProfit, true
		}
	} else {
		if p.CurrentPrice >= p.StopLoss {
			return CloseReasonStopLoss, true
		}
		if p.CurrentPrice <= p.TakeProfit {
			return CloseReasonTakeProfit, true
		}
	}
	if time.Since(p.OpenedAt) >= maxHold {
		return CloseReasonTimeStop, true
	}
	return "", false
}

// Close closes a position. It first verifies the position is still present
// on the exchange (an external liquidation may have removed it); if
// absent, the close is recorded with ExternallyClosed and no order is
// submitted, to avoid inadvertently opening a new position on the opposite
// side.
func (m *Manager) Close(ctx context.Context, symbol string, reason CloseReason) error {
	m.mu.Lock()
	p, ok := m.positions[symbol]
	m.mu.Unlock()
	if !ok {
		return fmt.Errorf("position: no open position for %s", symbol)
	}

	stillOpen, err := m.stillOnExchange(ctx, symbol)
	if err != nil {
		m.logger.Warn().Err(err).Str("symbol", symbol).Msg("could not verify exchange position before close")
	}

	if err == nil && !stillOpen {
		reason = CloseReasonExternallyClosed
	} else {
		closingSide := exchange.SideSell
		if p.Side == exchange.SideSell {
			closingSide = exchange.SideBuy
		}
		_, err := m.gateway.PlaceOrder(ctx, exchange.OrderRequest{
			Symbol: symbol, Side: closingSide, Type: exchange.OrderTypeMarket, Size: p.Size,
		})
		if err != nil {
			return fmt.Errorf("position: closing order failed for %s: %w", symbol, err)
		}
	}

	realizedPnl := p.UnrealizedPnl
	if m.risk != nil {
		m.risk.RegisterClose(realizedPnl)
	}

	m.mu.Lock()
	delete(m.positions, symbol)
	m.mu.Unlock()
	m.trailing.RemovePosition(symbol)

	if m.recorder != nil {
		m.recorder.DeleteOpen(symbol)
		m.recorder.RecordClosed(*p, p.CurrentPrice, reason, time.Now())
	}

	m.logger.Info().Str("symbol", symbol).Str("reason", string(reason)).Float64("pnl", realizedPnl).Msg("position closed")
	return nil
}

func (m *Manager) stillOnExchange(ctx context.Context, symbol string) (bool, error) {
	records, err := m.gateway.ListPositions(ctx)
	if err != nil {
		return true, err
	}
	for _, r := range records {
		if r.Symbol == symbol {
			return true, nil
		}
	}
	return false, nil
}

// Shutdown stops the monitor loop and closes every open position at its
// last known price with reason SystemShutdown.
func (m *Manager) Shutdown(ctx context.Context) {
	close(m.stop)

	m.mu.Lock()
	symbols := make([]string, 0, len(m.positions))
	for s := range m.positions {
		symbols = append(symbols, s)
	}
	m.mu.Unlock()

	for _, s := range symbols {
		if err := m.Close(ctx, s, CloseReasonSystemShutdown); err != nil {
			m.logger.Error().Err(err).Str("symbol", s).Msg("shutdown close failed")
		}
	}
}
