// Package institutional implements the Institutional Orchestrator (C13):
// a 30-second multi-symbol scan that scores every enabled symbol, ranks
// by opportunity, and rotates capital into the best candidate under the
// regime filter. It shares its cycle-pacing and running-flag shape with
// internal/sentinelloop, both grounded on the teacher's
// internal/autopilot ticker loop; this package generalizes that single-
// symbol shape into a scan-then-rotate loop across a symbol universe.
package institutional

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/kairoslabs/derivatives-engine/internal/candle"
	"github.com/kairoslabs/derivatives-engine/internal/exchange"
	"github.com/kairoslabs/derivatives-engine/internal/indicator"
	"github.com/kairoslabs/derivatives-engine/internal/position"
	"github.com/kairoslabs/derivatives-engine/internal/regime"
	"github.com/kairoslabs/derivatives-engine/internal/risk"
	"github.com/kairoslabs/derivatives-engine/internal/safety"
	"github.com/kairoslabs/derivatives-engine/internal/signal"
)

// minOpportunityScore is the floor a candidate's opportunity score must
// clear to be considered for execution.
const minOpportunityScore = 25.0

// SymbolProvider supplies the universe of symbols the orchestrator scans
// each cycle.
type SymbolProvider interface {
	EnabledSymbols() []string
}

// MarketSignals supplies the optional funding/open-interest/orderbook
// factors the scoring formula accepts. Any method may return a nil pointer
// to signal "unavailable", in which case its term contributes zero.
type MarketSignals interface {
	FundingRate(ctx context.Context, symbol string) *float64
	OIChange(ctx context.Context, symbol string) *float64
	OrderbookImbalance(ctx context.Context, symbol string) *float64
}

// CandleSource is the Market-Data Adapter contract.
type CandleSource interface {
	Fetch(ctx context.Context, symbol, intervalCode string, limit int) candle.Set
}

// Gateway is the subset of the Exchange Gateway the loop needs.
type Gateway interface {
	GetAssets(ctx context.Context) ([]exchange.Asset, error)
	PlaceOrder(ctx context.Context, req exchange.OrderRequest) (exchange.OrderResponse, error)
}

// PositionManager is the subset of the Position Manager the loop needs.
type PositionManager interface {
	Count() int
	OpenRiskPositions() []risk.OpenPosition
	Open(ctx context.Context, p position.Position) error
}

// Config holds the loop's tunables.
type Config struct {
	Tick         time.Duration
	CandleWindow int
	Interval     string
	BaseAsset    string
	Leverage     float64
}

// DefaultConfig returns the parameters named in the cycle design.
func DefaultConfig() Config {
	return Config{
		Tick:         30 * time.Second,
		CandleWindow: 500,
		Interval:     "5m",
		BaseAsset:    "USDT",
		Leverage:     10,
	}
}

// Loop is the Institutional Orchestrator.
type Loop struct {
	cfg Config

	symbols   SymbolProvider
	market    CandleSource
	signals   MarketSignals // may be nil: every optional term contributes zero
	synth     *signal.Synthesizer
	riskMgr   *risk.Manager
	safetyL   *safety.Layer
	positions PositionManager
	gateway   Gateway
	logger    zerolog.Logger

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
}

// New builds a Loop.
func New(cfg Config, symbols SymbolProvider, market CandleSource, signals MarketSignals, synth *signal.Synthesizer,
	riskMgr *risk.Manager, safetyL *safety.Layer, positions PositionManager, gateway Gateway, logger zerolog.Logger) *Loop {
	return &Loop{
		cfg: cfg, symbols: symbols, market: market, signals: signals, synth: synth,
		riskMgr: riskMgr, safetyL: safetyL, positions: positions, gateway: gateway,
		logger: logger.With().Str("component", "InstitutionalOrchestrator").Logger(),
	}
}

// Start launches the cycle goroutine if not already running.
func (l *Loop) Start(ctx context.Context) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.running {
		return
	}
	runCtx, cancel := context.WithCancel(ctx)
	l.cancel = cancel
	l.running = true
	go l.run(runCtx)
}

// Stop flips the running flag observed at the top of every iteration.
func (l *Loop) Stop() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.running {
		return
	}
	l.running = false
	if l.cancel != nil {
		l.cancel()
	}
}

func (l *Loop) isRunning() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.running
}

func (l *Loop) run(ctx context.Context) {
	ticker := time.NewTicker(l.cfg.Tick)
	defer ticker.Stop()
	for l.isRunning() {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if !l.isRunning() {
				return
			}
			l.cycle(ctx)
		}
	}
}

// candidate is one symbol's scored opportunity for a cycle.
type candidate struct {
	symbol      string
	opportunity float64
	sig         signal.Signal
	atr         float64
}

func (l *Loop) cycle(ctx context.Context) {
	// A position is already open: C11's own monitor loop is updating it
	// independently, so the scan is skipped entirely this cycle.
	if l.positions.Count() > 0 {
		return
	}

	var candidates []candidate
	for _, sym := range l.symbols.EnabledSymbols() {
		set := l.market.Fetch(ctx, sym, l.cfg.Interval, l.cfg.CandleWindow)
		st, err := indicator.Compute(set.Candles)
		if err != nil {
			continue
		}

		funding, oi, imbalance := l.optionalSignals(ctx, sym)
		regimeState := regime.Detect(st, funding, oi)
		sig, _ := l.synth.InstitutionalDecide(sym, st, regimeState, funding, oi, imbalance)
		if sig.Direction == signal.Neutral || sig.Kind == signal.KindNone {
			continue
		}
		if !regimeState.Allows(string(sig.Kind)) {
			continue
		}

		score := compositeScore(sig.Factors, l.riskMgr)
		opportunity := 0.5*score + 0.5*sig.Strength
		candidates = append(candidates, candidate{symbol: sym, opportunity: opportunity, sig: sig, atr: st.ATR})
	}

	sort.SliceStable(candidates, func(i, j int) bool { return candidates[i].opportunity > candidates[j].opportunity })

	assets, err := l.gateway.GetAssets(ctx)
	if err != nil {
		l.logger.Warn().Err(err).Msg("balance lookup failed")
		return
	}
	balance := balanceOf(assets, l.cfg.BaseAsset)

	for _, c := range candidates {
		if c.opportunity < minOpportunityScore {
			continue
		}
		open := l.positions.OpenRiskPositions()
		if ok, reason := l.riskMgr.CanOpenPosition(c.symbol, open); !ok {
			l.logger.Info().Str("symbol", c.symbol).Str("reason", reason).Msg("candidate rejected by risk manager")
			continue
		}

		sized, err := l.riskMgr.PositionSize(risk.SizeCandidate{
			Entry: c.sig.Entry, Stop: c.sig.StopLoss, ATR: c.atr, Leverage: l.cfg.Leverage, AvailableMargin: balance,
		}, open)
		if err != nil {
			l.logger.Info().Str("symbol", c.symbol).Err(err).Msg("candidate rejected by position sizing")
			continue
		}

		side := exchange.SideBuy
		if c.sig.Direction == signal.Short {
			side = exchange.SideSell
		}
		safetyCandidate := safety.Candidate{
			Symbol: c.symbol, Side: string(sideAction(side)), Size: sized.Size, Entry: c.sig.Entry,
			Stop: c.sig.StopLoss, TakeProfit: c.sig.TakeProfit, Leverage: l.cfg.Leverage,
			AvailableMargin: balance, MarginRequired: sized.MarginRequired,
		}
		results, passed := l.safetyL.Evaluate(safetyCandidate, open)
		if !passed {
			l.logger.Warn().Str("symbol", c.symbol).Interface("checks", results).Msg("SafetyRejected")
			continue
		}

		resp, err := l.gateway.PlaceOrder(ctx, exchange.OrderRequest{
			Symbol: c.symbol, Side: side, Type: exchange.OrderTypeMarket, Size: sized.Size,
			PresetSL: c.sig.StopLoss, PresetTP: c.sig.TakeProfit, ClientOid: uuid.NewString(),
		})
		if err != nil || !resp.Succeeded() {
			l.logger.Error().Err(err).Str("symbol", c.symbol).Str("code", resp.Code).Msg("order rejected")
			continue
		}

		direction := "Long"
		if side == exchange.SideSell {
			direction = "Short"
		}
		if err := l.positions.Open(ctx, position.Position{
			Symbol: c.symbol, Side: side, Direction: direction, Size: sized.Size, EntryPrice: c.sig.Entry,
			StopLoss: c.sig.StopLoss, TakeProfit: c.sig.TakeProfit, Leverage: l.cfg.Leverage,
			MarginUsed: sized.MarginRequired, OpenedAt: time.Now(), OrderID: resp.Data.OrderID,
			Source: position.SourceInstitutional, ATRAtEntry: c.atr,
		}); err != nil {
			l.logger.Error().Err(err).Msg("failed to register opened position")
		}
		return // capital rotated into the single best opportunity; one open per cycle
	}
}

func (l *Loop) optionalSignals(ctx context.Context, symbol string) (funding, oi, imbalance *float64) {
	if l.signals == nil {
		return nil, nil, nil
	}
	return l.signals.FundingRate(ctx, symbol), l.signals.OIChange(ctx, symbol), l.signals.OrderbookImbalance(ctx, symbol)
}

func sideAction(s exchange.Side) signal.Action {
	if s == exchange.SideSell {
		return signal.ActionSell
	}
	return signal.ActionBuy
}

// compositeScore implements the orchestrator's per-symbol scoring formula
// over the Signal's factor map: 0.30*trend + 0.25*momentum +
// 0.15*volatility + 0.15*fundingPressure + 0.10*orderbookImbalance -
// 0.05*riskPenalty. Optional terms default to zero when the Signal carries
// no corresponding factor. riskPenalty is the portfolio's current
// aggregate exposure, scaled to [0,100].
func compositeScore(factors map[string]float64, riskMgr *risk.Manager) float64 {
	trend := factors["trend_strength"]
	momentum := factors["momentum"]
	volatility := 100 - factors["volatility_compression"]
	fundingPressure := factors["funding_pressure"]
	orderbookImbalance := factors["orderbook_imbalance"]
	riskPenalty := riskMgr.ExposureRatio(0, nil) * 100

	score := 0.30*trend + 0.25*momentum + 0.15*volatility + 0.15*fundingPressure + 0.10*orderbookImbalance - 0.05*riskPenalty
	return clampScore(score, 0, 100)
}

func clampScore(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func balanceOf(assets []exchange.Asset, coin string) float64 {
	for _, a := range assets {
		if a.CoinName == coin {
			return a.Available
		}
	}
	return 0
}
