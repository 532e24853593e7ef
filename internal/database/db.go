// Package database persists the six tables the engine needs: marketLog
// (the Sentinel Loop's per-cycle audit trail), aiAnalysis (classifier and
// sentiment output), tradeHistory (closed positions), openPositions (a
// crash-recovery snapshot of what C11 currently tracks), strategies (the
// active rule set per symbol), and tradeSettings (the operator-controlled
// Settings the Sentinel Loop reads every cycle). It is grounded on the
// teacher's internal/database package: a pgxpool-backed DB wrapper plus a
// Repository of query methods, trimmed from the teacher's multi-tenant
// migration set down to this engine's single-operator schema.
package database

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
)

// Config holds the PostgreSQL connection settings.
type Config struct {
	Host     string
	Port     int
	User     string
	Password string
	Database string
	SSLMode  string
}

// DB wraps the connection pool.
type DB struct {
	Pool   *pgxpool.Pool
	logger zerolog.Logger
}

// NewDB opens a connection pool and verifies connectivity.
func NewDB(cfg Config, logger zerolog.Logger) (*DB, error) {
	dsn := fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		cfg.Host, cfg.Port, cfg.User, cfg.Password, cfg.Database, cfg.SSLMode)

	poolConfig, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parsing database config: %w", err)
	}
	poolConfig.MaxConns = 10
	poolConfig.MinConns = 2
	poolConfig.MaxConnLifetime = time.Hour
	poolConfig.MaxConnIdleTime = 30 * time.Minute

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("creating connection pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	db := &DB{Pool: pool, logger: logger.With().Str("component", "Database").Logger()}
	db.logger.Info().Str("database", cfg.Database).Msg("connected")
	return db, nil
}

// Close releases the pool.
func (db *DB) Close() {
	if db.Pool != nil {
		db.Pool.Close()
		db.logger.Info().Msg("connection closed")
	}
}

// RunMigrations creates the six tables if they do not already exist.
func (db *DB) RunMigrations(ctx context.Context) error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS market_log (
			id BIGSERIAL PRIMARY KEY,
			symbol VARCHAR(20) NOT NULL,
			action VARCHAR(8) NOT NULL,
			confidence DOUBLE PRECISION NOT NULL,
			provenance VARCHAR(32) NOT NULL,
			reason TEXT,
			trend VARCHAR(16),
			price DOUBLE PRECISION,
			rsi DOUBLE PRECISION,
			skip_reason TEXT,
			recorded_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,
		`CREATE TABLE IF NOT EXISTS ai_analysis (
			id BIGSERIAL PRIMARY KEY,
			symbol VARCHAR(20) NOT NULL,
			classifier_direction VARCHAR(8),
			classifier_confidence DOUBLE PRECISION,
			sentiment_label VARCHAR(16),
			sentiment_value DOUBLE PRECISION,
			sentiment_source VARCHAR(16),
			recorded_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,
		`CREATE TABLE IF NOT EXISTS trade_history (
			id BIGSERIAL PRIMARY KEY,
			symbol VARCHAR(20) NOT NULL,
			side VARCHAR(4) NOT NULL,
			source VARCHAR(16) NOT NULL,
			entry_price DOUBLE PRECISION NOT NULL,
			exit_price DOUBLE PRECISION NOT NULL,
			size DOUBLE PRECISION NOT NULL,
			realized_pnl DOUBLE PRECISION NOT NULL,
			close_reason VARCHAR(24) NOT NULL,
			opened_at TIMESTAMPTZ NOT NULL,
			closed_at TIMESTAMPTZ NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS open_positions (
			symbol VARCHAR(20) PRIMARY KEY,
			side VARCHAR(4) NOT NULL,
			source VARCHAR(16) NOT NULL,
			size DOUBLE PRECISION NOT NULL,
			entry_price DOUBLE PRECISION NOT NULL,
			stop_loss DOUBLE PRECISION NOT NULL,
			take_profit DOUBLE PRECISION NOT NULL,
			leverage DOUBLE PRECISION NOT NULL,
			margin_used DOUBLE PRECISION NOT NULL,
			order_id VARCHAR(64),
			opened_at TIMESTAMPTZ NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS strategies (
			id VARCHAR(64) PRIMARY KEY,
			symbol VARCHAR(20) NOT NULL,
			name VARCHAR(128) NOT NULL,
			predicate TEXT NOT NULL,
			action VARCHAR(4) NOT NULL,
			active BOOLEAN NOT NULL DEFAULT true,
			updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,
		`CREATE TABLE IF NOT EXISTS trade_settings (
			id SMALLINT PRIMARY KEY DEFAULT 1,
			auto_trading BOOLEAN NOT NULL DEFAULT false,
			risk_tolerance DOUBLE PRECISION NOT NULL DEFAULT 50,
			current_symbol VARCHAR(20) NOT NULL DEFAULT 'BTCUSDT',
			updated_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			CONSTRAINT single_row CHECK (id = 1)
		)`,
	}

	for _, stmt := range statements {
		if _, err := db.Pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("running migration: %w", err)
		}
	}
	db.logger.Info().Msg("migrations complete")
	return nil
}
