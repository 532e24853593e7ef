package database

import "time"

// MarketLogEntry is one row of the Sentinel Loop's per-cycle audit trail.
type MarketLogEntry struct {
	ID         int64
	Symbol     string
	Action     string
	Confidence float64
	Provenance string
	Reason     string
	Trend      string
	Price      float64
	RSI        float64
	SkipReason string
	RecordedAt time.Time
}

// AIAnalysisEntry is one row of classifier/sentiment output captured
// alongside a cycle.
type AIAnalysisEntry struct {
	ID                    int64
	Symbol                string
	ClassifierDirection   string
	ClassifierConfidence  float64
	SentimentLabel        string
	SentimentValue        float64
	SentimentSource       string
	RecordedAt            time.Time
}

// TradeHistoryEntry is one closed position.
type TradeHistoryEntry struct {
	ID          int64
	Symbol      string
	Side        string
	Source      string
	EntryPrice  float64
	ExitPrice   float64
	Size        float64
	RealizedPnl float64
	CloseReason string
	OpenedAt    time.Time
	ClosedAt    time.Time
}

// OpenPositionRow is a crash-recovery snapshot of a currently tracked
// position.
type OpenPositionRow struct {
	Symbol     string
	Side       string
	Source     string
	Size       float64
	EntryPrice float64
	StopLoss   float64
	TakeProfit float64
	Leverage   float64
	MarginUsed float64
	OrderID    string
	OpenedAt   time.Time
}

// StrategyRow is one persisted rule.
type StrategyRow struct {
	ID        string
	Symbol    string
	Name      string
	Predicate string
	Action    string
	Active    bool
	UpdatedAt time.Time
}

// TradeSettingsRow is the single-row operator settings record the Sentinel
// Loop reads every cycle.
type TradeSettingsRow struct {
	AutoTrading   bool
	RiskTolerance float64
	CurrentSymbol string
	UpdatedAt     time.Time
}
