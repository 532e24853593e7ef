// Package safety implements the pre-trade safety layer (C10): an ordered
// chain of checks every candidate trade passes through before an order is
// submitted. It is grounded on the teacher's internal/autopilot
// SymbolValidator (per-symbol min-notional/min-qty table, ValidationError
// shape) for the exchange-rules checks, and on internal/risk.Manager for
// the account-state checks (kill switches, exposure, correlation).
package safety

import (
	"fmt"
	"sync"

	"github.com/rs/zerolog"

	"github.com/kairoslabs/derivatives-engine/internal/risk"
)

// Severity classifies a check's failure impact.
type Severity string

const (
	Critical Severity = "Critical"
	Warning  Severity = "Warning"
	Info     Severity = "Info"
)

// CheckResult is the outcome of one ordered check.
type CheckResult struct {
	Name     string
	Passed   bool
	Severity Severity
	Message  string
}

// SymbolRequirements is the per-symbol exchange-rules table the
// MinimumOrderSize check validates against.
type SymbolRequirements struct {
	MinQty      float64
	MinNotional float64
}

// Candidate is a prospective trade awaiting clearance.
type Candidate struct {
	Symbol          string
	Side            string // "Buy" or "Sell"
	Size            float64
	Entry           float64
	Stop            float64
	TakeProfit      float64
	Leverage        float64
	AvailableMargin float64
	MarginRequired  float64
	SpreadPct       float64 // current bid-ask spread as a fraction of mid price
}

// minLiquidationBufferPct is how far beyond the estimated liquidation price
// the stop must sit.
const minLiquidationBufferPct = 0.04

// liquidationMaintenanceFactor is the 0.9 constant in
// liq = entry*(1 ∓ 0.9/leverage).
const liquidationMaintenanceFactor = 0.9

// maxSpreadPct is the informational threshold above which SpreadWidth warns
// that slippage risk is elevated; it never blocks a trade.
const maxSpreadPct = 0.005

// Layer runs the ordered pre-trade checks and tracks rejection counters for
// introspection.
type Layer struct {
	mu         sync.Mutex
	symbols    map[string]SymbolRequirements
	risk       *risk.Manager
	logger     zerolog.Logger
	total      int
	rejections int
	reasons    map[string]int
}

// NewLayer builds a Layer over a per-symbol requirements table and the risk
// manager that owns equity, exposure, and correlation state.
func NewLayer(symbols map[string]SymbolRequirements, riskMgr *risk.Manager, logger zerolog.Logger) *Layer {
	if symbols == nil {
		symbols = make(map[string]SymbolRequirements)
	}
	return &Layer{
		symbols: symbols,
		risk:    riskMgr,
		logger:  logger.With().Str("component", "SafetyLayer").Logger(),
		reasons: make(map[string]int),
	}
}

// Evaluate runs every check in order against the candidate and the
// currently open positions. It returns every result (so warnings and info
// are visible even when nothing aborted) and whether the candidate cleared
// every Critical check.
func (l *Layer) Evaluate(c Candidate, open []risk.OpenPosition) ([]CheckResult, bool) {
	results := []CheckResult{
		l.symbolValidity(c),
		l.minimumOrderSize(c),
		l.priceReasonableness(c),
		l.marginAvailability(c),
		l.liquidationDistance(c),
		l.dailyLossLimit(),
		l.maxDrawdown(),
		l.exposureLimit(c, open),
		l.correlationConflict(c, open),
		l.spreadWidth(c),
	}

	passed := true
	l.mu.Lock()
	l.total++
	for _, r := range results {
		if !r.Passed && r.Severity == Critical {
			passed = false
			l.reasons[r.Name]++
		}
	}
	if !passed {
		l.rejections++
	}
	l.mu.Unlock()

	if !passed {
		l.logger.Warn().Str("symbol", c.Symbol).Interface("results", results).Msg("pre-trade safety rejection")
	}
	return results, passed
}

// Stats is the introspection surface: totals, rejections, and a
// per-check-name breakdown of Critical rejections.
type Stats struct {
	Total      int
	Rejections int
	Reasons    map[string]int
}

func (l *Layer) Stats() Stats {
	l.mu.Lock()
	defer l.mu.Unlock()
	reasons := make(map[string]int, len(l.reasons))
	for k, v := range l.reasons {
		reasons[k] = v
	}
	return Stats{Total: l.total, Rejections: l.rejections, Reasons: reasons}
}

func (l *Layer) symbolValidity(c Candidate) CheckResult {
	if _, ok := l.symbols[c.Symbol]; !ok {
		return CheckResult{Name: "SymbolValidity", Passed: false, Severity: Critical,
			Message: fmt.Sprintf("%s is not a recognized tradable symbol", c.Symbol)}
	}
	return CheckResult{Name: "SymbolValidity", Passed: true, Severity: Info, Message: "ok"}
}

func (l *Layer) minimumOrderSize(c Candidate) CheckResult {
	req, ok := l.symbols[c.Symbol]
	if !ok {
		return CheckResult{Name: "MinimumOrderSize", Passed: false, Severity: Critical, Message: "no size requirements for symbol"}
	}
	notional := c.Size * c.Entry
	if c.Size < req.MinQty {
		return CheckResult{Name: "MinimumOrderSize", Passed: false, Severity: Critical,
			Message: fmt.Sprintf("size %.8f below minimum %.8f", c.Size, req.MinQty)}
	}
	if req.MinNotional > 0 && notional < req.MinNotional {
		return CheckResult{Name: "MinimumOrderSize", Passed: false, Severity: Critical,
			Message: fmt.Sprintf("notional %.2f below minimum %.2f", notional, req.MinNotional)}
	}
	return CheckResult{Name: "MinimumOrderSize", Passed: true, Severity: Info, Message: "ok"}
}

func (l *Layer) priceReasonableness(c Candidate) CheckResult {
	if c.Entry <= 0 || c.Stop <= 0 || c.TakeProfit <= 0 {
		return CheckResult{Name: "PriceReasonableness", Passed: false, Severity: Critical, Message: "entry, stop, and target must all be positive"}
	}
	stopDistance := absFloat(c.Entry - c.Stop)
	targetDistance := absFloat(c.TakeProfit - c.Entry)
	if stopDistance == 0 {
		return CheckResult{Name: "PriceReasonableness", Passed: false, Severity: Critical, Message: "stop distance is zero"}
	}
	rr := targetDistance / stopDistance
	if rr < 1.0 {
		return CheckResult{Name: "PriceReasonableness", Passed: false, Severity: Critical,
			Message: fmt.Sprintf("risk:reward %.2f below minimum 1.0", rr)}
	}
	return CheckResult{Name: "PriceReasonableness", Passed: true, Severity: Info, Message: "ok"}
}

func (l *Layer) marginAvailability(c Candidate) CheckResult {
	if c.MarginRequired > c.AvailableMargin {
		return CheckResult{Name: "MarginAvailability", Passed: false, Severity: Critical,
			Message: fmt.Sprintf("margin required %.2f exceeds available %.2f", c.MarginRequired, c.AvailableMargin)}
	}
	return CheckResult{Name: "MarginAvailability", Passed: true, Severity: Info, Message: "ok"}
}

// liquidationDistance estimates the liquidation price as
// entry*(1 - maintenanceFactor/leverage) for a long (inverse for a short)
// and requires the stop to sit at least minLiquidationBufferPct beyond it.
func (l *Layer) liquidationDistance(c Candidate) CheckResult {
	if c.Leverage <= 0 {
		return CheckResult{Name: "LiquidationDistance", Passed: false, Severity: Critical, Message: "non-positive leverage"}
	}
	var liq, buffer float64
	if c.Side == "Buy" {
		liq = c.Entry * (1 - liquidationMaintenanceFactor/c.Leverage)
		buffer = (c.Stop - liq) / c.Entry
	} else {
		liq = c.Entry * (1 + liquidationMaintenanceFactor/c.Leverage)
		buffer = (liq - c.Stop) / c.Entry
	}
	if buffer < minLiquidationBufferPct {
		return CheckResult{Name: "LiquidationDistance", Passed: false, Severity: Critical,
			Message: fmt.Sprintf("stop sits only %.2f%% beyond estimated liquidation (%.4f), need %.2f%%", buffer*100, liq, minLiquidationBufferPct*100)}
	}
	return CheckResult{Name: "LiquidationDistance", Passed: true, Severity: Info, Message: "ok"}
}

func (l *Layer) dailyLossLimit() CheckResult {
	if l.risk == nil {
		return CheckResult{Name: "DailyLossLimit", Passed: true, Severity: Info, Message: "no risk manager configured"}
	}
	exceeded, pct := l.risk.DailyLossExceeded()
	if exceeded {
		return CheckResult{Name: "DailyLossLimit", Passed: false, Severity: Critical,
			Message: fmt.Sprintf("daily loss %.2f%% breaches limit", pct*100)}
	}
	return CheckResult{Name: "DailyLossLimit", Passed: true, Severity: Info, Message: "ok"}
}

func (l *Layer) maxDrawdown() CheckResult {
	if l.risk == nil {
		return CheckResult{Name: "MaxDrawdown", Passed: true, Severity: Info, Message: "no risk manager configured"}
	}
	exceeded, pct := l.risk.DrawdownExceeded()
	if exceeded {
		return CheckResult{Name: "MaxDrawdown", Passed: false, Severity: Critical,
			Message: fmt.Sprintf("drawdown %.2f%% breaches limit", pct*100)}
	}
	return CheckResult{Name: "MaxDrawdown", Passed: true, Severity: Info, Message: "ok"}
}

func (l *Layer) exposureLimit(c Candidate, open []risk.OpenPosition) CheckResult {
	if l.risk == nil {
		return CheckResult{Name: "ExposureLimit", Passed: true, Severity: Info, Message: "no risk manager configured"}
	}
	ratio := l.risk.ExposureRatio(c.MarginRequired, open)
	limit := l.risk.Limits().MaxExposurePct
	if ratio > limit {
		return CheckResult{Name: "ExposureLimit", Passed: false, Severity: Critical,
			Message: fmt.Sprintf("post-trade exposure %.2f%% exceeds limit %.2f%%", ratio*100, limit*100)}
	}
	return CheckResult{Name: "ExposureLimit", Passed: true, Severity: Info, Message: "ok"}
}

func (l *Layer) correlationConflict(c Candidate, open []risk.OpenPosition) CheckResult {
	if l.risk == nil {
		return CheckResult{Name: "CorrelationConflict", Passed: true, Severity: Info, Message: "no risk manager configured"}
	}
	group := l.risk.CorrelationGroup(c.Symbol)
	for _, p := range open {
		if p.CorrelationGroup == group {
			return CheckResult{Name: "CorrelationConflict", Passed: false, Severity: Critical,
				Message: fmt.Sprintf("correlation group %q already open via %s", group, p.Symbol)}
		}
	}
	return CheckResult{Name: "CorrelationConflict", Passed: true, Severity: Info, Message: "ok"}
}

// spreadWidth is an informational check: a wide spread raises slippage risk
// but never blocks a trade on its own.
func (l *Layer) spreadWidth(c Candidate) CheckResult {
	if c.SpreadPct > maxSpreadPct {
		return CheckResult{Name: "SpreadWidth", Passed: false, Severity: Warning,
			Message: fmt.Sprintf("spread %.3f%% exceeds the comfortable %.3f%%", c.SpreadPct*100, maxSpreadPct*100)}
	}
	return CheckResult{Name: "SpreadWidth", Passed: true, Severity: Info, Message: "ok"}
}

func absFloat(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}
