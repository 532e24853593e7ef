package database

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/kairoslabs/derivatives-engine/internal/institutional"
	"github.com/kairoslabs/derivatives-engine/internal/position"
	"github.com/kairoslabs/derivatives-engine/internal/ruleset"
	"github.com/kairoslabs/derivatives-engine/internal/sentinelloop"
)

// AuditSink persists the Sentinel Loop's per-cycle AuditEntry rows to
// market_log. It satisfies sentinelloop.AuditSink.
type AuditSink struct {
	repo   *Repository
	logger zerolog.Logger
}

// NewAuditSink builds an AuditSink.
func NewAuditSink(repo *Repository, logger zerolog.Logger) *AuditSink {
	return &AuditSink{repo: repo, logger: logger.With().Str("component", "AuditSink").Logger()}
}

// Record writes one audit entry, logging but not failing the cycle on a
// persistence error.
func (a *AuditSink) Record(e sentinelloop.AuditEntry) {
	entry := MarketLogEntry{
		Symbol: e.Symbol, Action: string(e.Decision.Action), Confidence: e.Decision.Confidence,
		Provenance: string(e.Decision.Provenance), Reason: e.Decision.Reason, Trend: e.Trend,
		Price: e.Price, RSI: e.RSI, SkipReason: e.SkipReason,
	}
	if err := a.repo.InsertMarketLog(context.Background(), entry); err != nil {
		a.logger.Warn().Err(err).Str("symbol", e.Symbol).Msg("failed to persist audit entry")
	}
}

// SettingsStore reads and writes the operator's single-row settings. It
// satisfies sentinelloop.SettingsProvider.
type SettingsStore struct {
	repo   *Repository
	logger zerolog.Logger
}

// NewSettingsStore builds a SettingsStore.
func NewSettingsStore(repo *Repository, logger zerolog.Logger) *SettingsStore {
	return &SettingsStore{repo: repo, logger: logger.With().Str("component", "SettingsStore").Logger()}
}

// Get satisfies sentinelloop.SettingsProvider, falling back to a safe
// all-disabled default on a read error.
func (s *SettingsStore) Get() sentinelloop.Settings {
	row, err := s.repo.GetTradeSettings(context.Background())
	if err != nil {
		s.logger.Warn().Err(err).Msg("failed to read trade settings, defaulting to auto-trading disabled")
		return sentinelloop.Settings{}
	}
	return sentinelloop.Settings{AutoTrading: row.AutoTrading, RiskTolerance: row.RiskTolerance, Symbol: row.CurrentSymbol}
}

// Update persists a new settings row.
func (s *SettingsStore) Update(row TradeSettingsRow) error {
	return s.repo.UpdateTradeSettings(context.Background(), row)
}

// StrategyStore reads persisted rules for a symbol. It satisfies
// sentinelloop.RuleProvider.
type StrategyStore struct {
	repo   *Repository
	logger zerolog.Logger
}

// NewStrategyStore builds a StrategyStore.
func NewStrategyStore(repo *Repository, logger zerolog.Logger) *StrategyStore {
	return &StrategyStore{repo: repo, logger: logger.With().Str("component", "StrategyStore").Logger()}
}

// Rules satisfies sentinelloop.RuleProvider.
func (s *StrategyStore) Rules(symbol string) []ruleset.Rule {
	rows, err := s.repo.ListStrategies(context.Background(), symbol)
	if err != nil {
		s.logger.Warn().Err(err).Str("symbol", symbol).Msg("failed to load strategies")
		return nil
	}
	rules := make([]ruleset.Rule, 0, len(rows))
	for _, row := range rows {
		rules = append(rules, ruleset.Rule{
			ID: row.ID, Name: row.Name, Predicate: row.Predicate,
			Action: ruleset.Action(row.Action), Active: row.Active,
		})
	}
	return rules
}

// SymbolStore supplies the enabled symbol universe from the fixed symbol
// list in config. It satisfies institutional.SymbolProvider.
type SymbolStore struct {
	symbols []string
}

// NewSymbolStore builds a SymbolStore over a fixed symbol list (seeded from
// config.Config.Symbols at startup).
func NewSymbolStore(symbols []string) *SymbolStore {
	return &SymbolStore{symbols: symbols}
}

// EnabledSymbols satisfies institutional.SymbolProvider.
func (s *SymbolStore) EnabledSymbols() []string { return s.symbols }

var _ institutional.SymbolProvider = (*SymbolStore)(nil)

// PositionRecorder persists the Position Manager's open/close lifecycle to
// open_positions (crash recovery) and trade_history. It satisfies
// position.Recorder.
type PositionRecorder struct {
	repo   *Repository
	logger zerolog.Logger
}

// NewPositionRecorder builds a PositionRecorder.
func NewPositionRecorder(repo *Repository, logger zerolog.Logger) *PositionRecorder {
	return &PositionRecorder{repo: repo, logger: logger.With().Str("component", "PositionRecorder").Logger()}
}

// SaveOpen upserts the crash-recovery snapshot for a freshly opened
// position.
func (p *PositionRecorder) SaveOpen(pos position.Position) {
	row := OpenPositionRow{
		Symbol: pos.Symbol, Side: string(pos.Side), Source: string(pos.Source), Size: pos.Size,
		EntryPrice: pos.EntryPrice, StopLoss: pos.StopLoss, TakeProfit: pos.TakeProfit,
		Leverage: pos.Leverage, MarginUsed: pos.MarginUsed, OrderID: pos.OrderID, OpenedAt: pos.OpenedAt,
	}
	if err := p.repo.UpsertOpenPosition(context.Background(), row); err != nil {
		p.logger.Warn().Err(err).Str("symbol", pos.Symbol).Msg("failed to snapshot open position")
	}
}

// DeleteOpen removes the crash-recovery snapshot for a closed position.
func (p *PositionRecorder) DeleteOpen(symbol string) {
	if err := p.repo.DeleteOpenPosition(context.Background(), symbol); err != nil {
		p.logger.Warn().Err(err).Str("symbol", symbol).Msg("failed to clear open position snapshot")
	}
}

// RecordClosed appends a trade_history row for a closed position.
func (p *PositionRecorder) RecordClosed(pos position.Position, exitPrice float64, reason position.CloseReason, closedAt time.Time) {
	entry := TradeHistoryEntry{
		Symbol: pos.Symbol, Side: string(pos.Side), Source: string(pos.Source),
		EntryPrice: pos.EntryPrice, ExitPrice: exitPrice, Size: pos.Size, RealizedPnl: pos.UnrealizedPnl,
		CloseReason: string(reason), OpenedAt: pos.OpenedAt, ClosedAt: closedAt,
	}
	if err := p.repo.InsertTradeHistory(context.Background(), entry); err != nil {
		p.logger.Warn().Err(err).Str("symbol", pos.Symbol).Msg("failed to persist trade history")
	}
}

var _ position.Recorder = (*PositionRecorder)(nil)
