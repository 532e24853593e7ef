package database

import (
	"context"
	"fmt"
)

// Repository provides query methods over the six tables.
type Repository struct {
	db *DB
}

// NewRepository builds a Repository.
func NewRepository(db *DB) *Repository {
	return &Repository{db: db}
}

// HealthCheck pings the underlying pool.
func (r *Repository) HealthCheck(ctx context.Context) error {
	return r.db.Pool.Ping(ctx)
}

// InsertMarketLog appends one Sentinel Loop audit row.
func (r *Repository) InsertMarketLog(ctx context.Context, e MarketLogEntry) error {
	_, err := r.db.Pool.Exec(ctx, `
		INSERT INTO market_log (symbol, action, confidence, provenance, reason, trend, price, rsi, skip_reason)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		e.Symbol, e.Action, e.Confidence, e.Provenance, e.Reason, e.Trend, e.Price, e.RSI, e.SkipReason)
	if err != nil {
		return fmt.Errorf("inserting market log entry: %w", err)
	}
	return nil
}

// InsertAIAnalysis appends one classifier/sentiment snapshot.
func (r *Repository) InsertAIAnalysis(ctx context.Context, e AIAnalysisEntry) error {
	_, err := r.db.Pool.Exec(ctx, `
		INSERT INTO ai_analysis (symbol, classifier_direction, classifier_confidence, sentiment_label, sentiment_value, sentiment_source)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		e.Symbol, e.ClassifierDirection, e.ClassifierConfidence, e.SentimentLabel, e.SentimentValue, e.SentimentSource)
	if err != nil {
		return fmt.Errorf("inserting AI analysis entry: %w", err)
	}
	return nil
}

// InsertTradeHistory records a closed position.
func (r *Repository) InsertTradeHistory(ctx context.Context, e TradeHistoryEntry) error {
	_, err := r.db.Pool.Exec(ctx, `
		INSERT INTO trade_history (symbol, side, source, entry_price, exit_price, size, realized_pnl, close_reason, opened_at, closed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		e.Symbol, e.Side, e.Source, e.EntryPrice, e.ExitPrice, e.Size, e.RealizedPnl, e.CloseReason, e.OpenedAt, e.ClosedAt)
	if err != nil {
		return fmt.Errorf("inserting trade history entry: %w", err)
	}
	return nil
}

// UpsertOpenPosition writes a crash-recovery snapshot of a tracked position.
func (r *Repository) UpsertOpenPosition(ctx context.Context, p OpenPositionRow) error {
	_, err := r.db.Pool.Exec(ctx, `
		INSERT INTO open_positions (symbol, side, source, size, entry_price, stop_loss, take_profit, leverage, margin_used, order_id, opened_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (symbol) DO UPDATE SET
			side = EXCLUDED.side, source = EXCLUDED.source, size = EXCLUDED.size, entry_price = EXCLUDED.entry_price,
			stop_loss = EXCLUDED.stop_loss, take_profit = EXCLUDED.take_profit, leverage = EXCLUDED.leverage,
			margin_used = EXCLUDED.margin_used, order_id = EXCLUDED.order_id, opened_at = EXCLUDED.opened_at`,
		p.Symbol, p.Side, p.Source, p.Size, p.EntryPrice, p.StopLoss, p.TakeProfit, p.Leverage, p.MarginUsed, p.OrderID, p.OpenedAt)
	if err != nil {
		return fmt.Errorf("upserting open position: %w", err)
	}
	return nil
}

// DeleteOpenPosition removes a closed position's snapshot.
func (r *Repository) DeleteOpenPosition(ctx context.Context, symbol string) error {
	_, err := r.db.Pool.Exec(ctx, `DELETE FROM open_positions WHERE symbol = $1`, symbol)
	if err != nil {
		return fmt.Errorf("deleting open position: %w", err)
	}
	return nil
}

// ListOpenPositions returns every tracked position snapshot, used to
// rehydrate the Position Manager on restart.
func (r *Repository) ListOpenPositions(ctx context.Context) ([]OpenPositionRow, error) {
	rows, err := r.db.Pool.Query(ctx, `SELECT symbol, side, source, size, entry_price, stop_loss, take_profit, leverage, margin_used, order_id, opened_at FROM open_positions`)
	if err != nil {
		return nil, fmt.Errorf("listing open positions: %w", err)
	}
	defer rows.Close()

	var out []OpenPositionRow
	for rows.Next() {
		var p OpenPositionRow
		if err := rows.Scan(&p.Symbol, &p.Side, &p.Source, &p.Size, &p.EntryPrice, &p.StopLoss, &p.TakeProfit, &p.Leverage, &p.MarginUsed, &p.OrderID, &p.OpenedAt); err != nil {
			return nil, fmt.Errorf("scanning open position: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// ListStrategies returns the active rules for a symbol.
func (r *Repository) ListStrategies(ctx context.Context, symbol string) ([]StrategyRow, error) {
	rows, err := r.db.Pool.Query(ctx, `
		SELECT id, symbol, name, predicate, action, active, updated_at FROM strategies
		WHERE symbol = $1 AND active = true`, symbol)
	if err != nil {
		return nil, fmt.Errorf("listing strategies: %w", err)
	}
	defer rows.Close()

	var out []StrategyRow
	for rows.Next() {
		var s StrategyRow
		if err := rows.Scan(&s.ID, &s.Symbol, &s.Name, &s.Predicate, &s.Action, &s.Active, &s.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scanning strategy: %w", err)
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// UpsertStrategy writes one rule.
func (r *Repository) UpsertStrategy(ctx context.Context, s StrategyRow) error {
	_, err := r.db.Pool.Exec(ctx, `
		INSERT INTO strategies (id, symbol, name, predicate, action, active)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (id) DO UPDATE SET
			symbol = EXCLUDED.symbol, name = EXCLUDED.name, predicate = EXCLUDED.predicate,
			action = EXCLUDED.action, active = EXCLUDED.active, updated_at = now()`,
		s.ID, s.Symbol, s.Name, s.Predicate, s.Action, s.Active)
	if err != nil {
		return fmt.Errorf("upserting strategy: %w", err)
	}
	return nil
}

// GetTradeSettings reads the single operator settings row, seeding a
// default row on first read.
func (r *Repository) GetTradeSettings(ctx context.Context) (TradeSettingsRow, error) {
	var s TradeSettingsRow
	err := r.db.Pool.QueryRow(ctx, `SELECT auto_trading, risk_tolerance, current_symbol, updated_at FROM trade_settings WHERE id = 1`).
		Scan(&s.AutoTrading, &s.RiskTolerance, &s.CurrentSymbol, &s.UpdatedAt)
	if err == nil {
		return s, nil
	}

	if _, insertErr := r.db.Pool.Exec(ctx, `INSERT INTO trade_settings (id) VALUES (1) ON CONFLICT (id) DO NOTHING`); insertErr != nil {
		return TradeSettingsRow{}, fmt.Errorf("seeding default trade settings: %w", insertErr)
	}
	return TradeSettingsRow{RiskTolerance: 50, CurrentSymbol: "BTCUSDT"}, nil
}

// UpdateTradeSettings writes the operator's current settings.
func (r *Repository) UpdateTradeSettings(ctx context.Context, s TradeSettingsRow) error {
	_, err := r.db.Pool.Exec(ctx, `
		INSERT INTO trade_settings (id, auto_trading, risk_tolerance, current_symbol, updated_at)
		VALUES (1, $1, $2, $3, now())
		ON CONFLICT (id) DO UPDATE SET
			auto_trading = EXCLUDED.auto_trading, risk_tolerance = EXCLUDED.risk_tolerance,
			current_symbol = EXCLUDED.current_symbol, updated_at = now()`,
		s.AutoTrading, s.RiskTolerance, s.CurrentSymbol)
	if err != nil {
		return fmt.Errorf("updating trade settings: %w", err)
	}
	return nil
}
