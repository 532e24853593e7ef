// Package risk implements the portfolio-level risk manager (C9): ATR-based
// position sizing, the daily-loss and drawdown kill switches, and
// correlation-group exclusion. It replaces the percent-of-equity sizing the
// teacher's RiskManager used with the ATR-stop model the engine requires,
// but keeps the teacher's mutex-guarded manager/Config shape and its
// zerolog-based component logger.
package risk

import (
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Config holds the risk parameters from the sizing and kill-switch rules.
type Config struct {
	RiskPerTrade           float64       // fraction of equity risked per trade, e.g. 0.0125
	MinATRMultiplier       float64       // lower clamp on stop distance, in ATRs
	MaxATRMultiplier       float64       // upper clamp on stop distance, in ATRs
	DefaultRiskReward      float64       // default R:R when a candidate doesn't set one
	MaxDailyLossPct        float64       // kill switch: daily PnL below -this fraction of dailyStartEquity
	MaxDrawdownPct         float64       // kill switch: drawdown from peakEquity above this fraction
	MaxExposurePct         float64       // max aggregate margin exposure as a fraction of equity
	MaxLeverage            float64       // hard ceiling on requested leverage
	MaxHold                time.Duration // time stop
	MaxConcurrentPositions int
}

// DefaultConfig returns the parameters named in the risk manager design.
func DefaultConfig() *Config {
	return &Config{
		RiskPerTrade:           0.0125,
		MinATRMultiplier:       1.3,
		MaxATRMultiplier:       1.8,
		DefaultRiskReward:      2.0,
		MaxDailyLossPct:        0.03,
		MaxDrawdownPct:         0.12,
		MaxExposurePct:         0.40,
		MaxLeverage:            20,
		MaxHold:                24 * time.Hour,
		MaxConcurrentPositions: 1,
	}
}

// OpenPosition is the minimal view of a live position the risk manager needs
// to evaluate exposure and correlation conflicts. The position manager owns
// the authoritative position map; it passes this slice in on every check
// rather than the risk manager holding its own copy.
type OpenPosition struct {
	Symbol           string
	CorrelationGroup string
	MarginUsed       float64
}

// Equity is the subset of PortfolioState the risk manager tracks and
// snapshots across the UTC day boundary.
type Equity struct {
	Current       float64
	Peak          float64
	DailyStart    float64
	LastResetDate time.Time
	DailyPnl      float64
	TotalPnl      float64
}

// Manager is the risk manager. It is safe for concurrent use; SetEquity,
// RegisterClose, CanOpenPosition, and PositionSize all take the same lock
// briefly and never perform I/O while holding it.
type Manager struct {
	mu     sync.RWMutex
	cfg    *Config
	equity Equity
	groups map[string]string // symbol -> correlation group
	logger zerolog.Logger
}

// NewManager builds a Manager. groups maps each tradable symbol to its
// correlation group; symbols absent from the map are treated as belonging
// to a singleton group equal to their own name.
func NewManager(cfg *Config, groups map[string]string, logger zerolog.Logger) *Manager {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if groups == nil {
		groups = make(map[string]string)
	}
	return &Manager{
		cfg:    cfg,
		groups: groups,
		logger: logger.With().Str("component", "RiskManager").Logger(),
	}
}

func (m *Manager) correlationGroupOf(symbol string) string {
	if g, ok := m.groups[symbol]; ok {
		return g
	}
	return symbol
}

// SetEquity records the latest account equity observation, rolling
// dailyStartEquity forward at the first observation of a new UTC date. The
// daily reset must run before any kill-switch evaluation in the same cycle,
// so callers should invoke SetEquity before CanOpenPosition.
func (m *Manager) SetEquity(now time.Time, current float64) {
	m.mu.Lock()
	defer m.mu.Unlock()

	today := now.UTC().Truncate(24 * time.Hour)
	if m.equity.LastResetDate.IsZero() || !m.equity.LastResetDate.Equal(today) {
		m.equity.LastResetDate = today
		m.equity.DailyStart = current
		m.equity.DailyPnl = 0
		m.logger.Info().Time("date", today).Float64("dailyStartEquity", current).Msg("daily equity reset")
	}

	m.equity.Current = current
	if current > m.equity.Peak {
		m.equity.Peak = current
	}
}

// RegisterClose folds a realized PnL into the daily and total totals. It
// does not itself update Current; callers call SetEquity separately with
// the post-close balance.
func (m *Manager) RegisterClose(realizedPnl float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.equity.DailyPnl += realizedPnl
	m.equity.TotalPnl += realizedPnl
}

// Snapshot returns a copy of the current equity state for introspection
// (status endpoints, the safety layer's DailyLossLimit/MaxDrawdown checks).
func (m *Manager) Snapshot() Equity {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.equity
}

// killSwitchActive reports whether either kill switch is currently
// tripped, and a human-readable reason. Callers must hold at least a read
// lock; it is called from within CanOpenPosition which already does.
func (m *Manager) killSwitchActive() (bool, string) {
	if m.equity.DailyStart > 0 {
		dailyLossPct := (m.equity.DailyStart - m.equity.Current) / m.equity.DailyStart
		if dailyLossPct > m.cfg.MaxDailyLossPct {
			return true, fmt.Sprintf("daily loss %.2f%% exceeds limit %.2f%%", dailyLossPct*100, m.cfg.MaxDailyLossPct*100)
		}
	}
	if m.equity.Peak > 0 {
		drawdownPct := (m.equity.Peak - m.equity.Current) / m.equity.Peak
		if drawdownPct > m.cfg.MaxDrawdownPct {
			return true, fmt.Sprintf("drawdown %.2f%% exceeds limit %.2f%%", drawdownPct*100, m.cfg.MaxDrawdownPct*100)
		}
	}
	return false, ""
}

// Limits returns a copy of the manager's configured thresholds.
func (m *Manager) Limits() Config {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return *m.cfg
}

// CorrelationGroup exposes the symbol-to-group resolution the safety
// layer's CorrelationConflict check needs without duplicating the mapping.
func (m *Manager) CorrelationGroup(symbol string) string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.correlationGroupOf(symbol)
}

// DailyLossExceeded reports whether today's PnL has breached
// MaxDailyLossPct of dailyStartEquity, along with the current loss fraction.
func (m *Manager) DailyLossExceeded() (bool, float64) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.equity.DailyStart <= 0 {
		return false, 0
	}
	pct := (m.equity.DailyStart - m.equity.Current) / m.equity.DailyStart
	return pct > m.cfg.MaxDailyLossPct, pct
}

// DrawdownExceeded reports whether drawdown from peakEquity has breached
// MaxDrawdownPct, along with the current drawdown fraction.
func (m *Manager) DrawdownExceeded() (bool, float64) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.equity.Peak <= 0 {
		return false, 0
	}
	pct := (m.equity.Peak - m.equity.Current) / m.equity.Peak
	return pct > m.cfg.MaxDrawdownPct, pct
}

// ExposureRatio returns the aggregate margin exposure, as a fraction of
// current equity, that would result from adding candidateMargin to the
// already-open positions.
func (m *Manager) ExposureRatio(candidateMargin float64, open []OpenPosition) float64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.equity.Current <= 0 {
		return 0
	}
	total := candidateMargin
	for _, p := range open {
		total += p.MarginUsed
	}
	return total / m.equity.Current
}

// CanOpenPosition evaluates the kill switches, the concurrent-position cap,
// and correlation exclusion for a candidate symbol against the currently
// open positions. It does not evaluate exposure — that depends on the
// sized margin and is checked by PositionSize once the candidate size is
// known.
func (m *Manager) CanOpenPosition(symbol string, open []OpenPosition) (bool, string) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if active, reason := m.killSwitchActive(); active {
		return false, reason
	}
	if len(open) >= m.cfg.MaxConcurrentPositions {
		return false, fmt.Sprintf("max concurrent positions (%d) reached", m.cfg.MaxConcurrentPositions)
	}
	group := m.correlationGroupOf(symbol)
	for _, p := range open {
		if p.CorrelationGroup == group {
			return false, fmt.Sprintf("correlation group %q already has an open position (%s)", group, p.Symbol)
		}
	}
	return true, ""
}

// SizeCandidate is the input to PositionSize: a prospective entry/stop/ATR
// triple plus the account state needed to turn it into an order size.
type SizeCandidate struct {
	Entry           float64
	Stop            float64
	ATR             float64
	Leverage        float64
	AvailableMargin float64
}

// SizeResult is the outcome of PositionSize.
type SizeResult struct {
	StopDistance   float64
	Size           float64
	MarginRequired float64
	MarginClamped  bool
}

// PositionSize computes an order size for a candidate trade per the sizing
// rule: clamp the stop distance into [minATRMultiplier, maxATRMultiplier]
// ATRs, risk riskPerTrade of equity against that distance, then down-scale
// for available margin and reject if the resulting aggregate exposure would
// exceed maxExposurePct.
func (m *Manager) PositionSize(c SizeCandidate, open []OpenPosition) (SizeResult, error) {
	if c.ATR <= 0 {
		return SizeResult{}, fmt.Errorf("risk: non-positive ATR")
	}
	if c.Leverage <= 0 {
		return SizeResult{}, fmt.Errorf("risk: non-positive leverage")
	}

	m.mu.RLock()
	cfg := *m.cfg
	equity := m.equity
	m.mu.RUnlock()

	leverage := c.Leverage
	if leverage > cfg.MaxLeverage {
		leverage = cfg.MaxLeverage
	}

	stopDistance := absFloat(c.Entry - c.Stop)
	minDist := cfg.MinATRMultiplier * c.ATR
	maxDist := cfg.MaxATRMultiplier * c.ATR
	switch {
	case stopDistance < minDist:
		stopDistance = minDist
	case stopDistance > maxDist:
		stopDistance = maxDist
	}

	riskAmount := cfg.RiskPerTrade * equity.Current
	size := riskAmount / stopDistance

	marginRequired := size * c.Entry / leverage
	clamped := false
	if marginRequired > c.AvailableMargin && marginRequired > 0 {
		scale := c.AvailableMargin / marginRequired
		size *= scale
		marginRequired = c.AvailableMargin
		clamped = true
	}

	aggregateMargin := marginRequired
	for _, p := range open {
		aggregateMargin += p.MarginUsed
	}
	if equity.Current > 0 && aggregateMargin/equity.Current > cfg.MaxExposurePct {
		return SizeResult{}, fmt.Errorf("risk: aggregate exposure %.2f%% exceeds limit %.2f%%",
			aggregateMargin/equity.Current*100, cfg.MaxExposurePct*100)
	}

	return SizeResult{
		StopDistance:   stopDistance,
		Size:           size,
		MarginRequired: marginRequired,
		MarginClamped:  clamped,
	}, nil
}

func absFloat(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}
