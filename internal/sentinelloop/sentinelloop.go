// Package sentinelloop implements the Sentinel Loop (C12): a 30-second,
// single-symbol cycle that drives the indicator/classifier/sentiment/rule
// pipeline down to an order, or a skip. It is grounded on the teacher's
// internal/autopilot engine loop (ticker-driven cycle, a running flag
// observed at the top of every iteration so Stop never needs to interrupt
// in-flight work), generalized from the teacher's single always-on
// strategy loop to the gated, multi-stage pipeline this engine requires.
package sentinelloop

import (
	"context"
	"math"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/kairoslabs/derivatives-engine/internal/candle"
	"github.com/kairoslabs/derivatives-engine/internal/classifier"
	"github.com/kairoslabs/derivatives-engine/internal/exchange"
	"github.com/kairoslabs/derivatives-engine/internal/indicator"
	"github.com/kairoslabs/derivatives-engine/internal/position"
	"github.com/kairoslabs/derivatives-engine/internal/risk"
	"github.com/kairoslabs/derivatives-engine/internal/ruleset"
	"github.com/kairoslabs/derivatives-engine/internal/safety"
	"github.com/kairoslabs/derivatives-engine/internal/sentiment"
	"github.com/kairoslabs/derivatives-engine/internal/signal"
)

// Settings is the operator-configurable state the loop reads at the top of
// every cycle.
type Settings struct {
	AutoTrading   bool
	RiskTolerance float64 // 0..100, higher tolerance lowers the confidence bar
	Symbol        string
}

// SettingsProvider supplies the current operator settings.
type SettingsProvider interface {
	Get() Settings
}

// RuleProvider supplies the active strategy rules for a symbol.
type RuleProvider interface {
	Rules(symbol string) []ruleset.Rule
}

// CandleSource is the Market-Data Adapter contract the loop depends on.
type CandleSource interface {
	Fetch(ctx context.Context, symbol, intervalCode string, limit int) candle.Set
}

// SentimentReader is the Sentiment Source contract the loop depends on.
type SentimentReader interface {
	Read(ctx context.Context, symbol string) sentiment.Score
}

// Gateway is the subset of the Exchange Gateway the loop needs to check
// balance and submit an order.
type Gateway interface {
	GetAssets(ctx context.Context) ([]exchange.Asset, error)
	PlaceOrder(ctx context.Context, req exchange.OrderRequest) (exchange.OrderResponse, error)
}

// PositionManager is the subset of the Position Manager the loop needs:
// a no-stacking check and a way to register a freshly-opened position.
type PositionManager interface {
	Get(symbol string) (position.Position, bool)
	Open(ctx context.Context, p position.Position) error
	OpenRiskPositions() []risk.OpenPosition
}

// AuditEntry is one row the loop writes to the audit log every cycle,
// decision taken or not.
type AuditEntry struct {
	Symbol     string
	Decision   signal.Decision
	Trend      string
	Price      float64
	RSI        float64
	Timestamp  time.Time
	SkipReason string
}

// AuditSink persists AuditEntry rows. The marketLog table is its natural
// backing store.
type AuditSink interface {
	Record(entry AuditEntry)
}

// Config holds the loop's tunables.
type Config struct {
	Tick         time.Duration
	CandleWindow int
	Interval     string // candle interval code, e.g. "5m"
	BaseAsset    string // balance lookup key, e.g. "USDT"
	Leverage     float64
	MinOrderSize float64
}

// DefaultConfig returns the parameters named in the cycle design.
func DefaultConfig() Config {
	return Config{
		Tick:         30 * time.Second,
		CandleWindow: 500,
		Interval:     "5m",
		BaseAsset:    "USDT",
		Leverage:     10,
		MinOrderSize: 0.001,
	}
}

// Loop is the Sentinel Loop. It is driven by the Mode Coordinator (C14) via
// Start/Stop and requires no external ticking.
type Loop struct {
	cfg Config

	settings   SettingsProvider
	rules      RuleProvider
	market     CandleSource
	sentimentR SentimentReader
	classifier *classifier.Model
	synth      *signal.Synthesizer
	riskMgr    *risk.Manager
	safetyL    *safety.Layer
	positions  PositionManager
	gateway    Gateway
	audit      AuditSink
	logger     zerolog.Logger

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
}

// New builds a Loop.
func New(cfg Config, settings SettingsProvider, rules RuleProvider, market CandleSource, sentimentR SentimentReader,
	model *classifier.Model, synth *signal.Synthesizer, riskMgr *risk.Manager, safetyL *safety.Layer,
	positions PositionManager, gateway Gateway, audit AuditSink, logger zerolog.Logger) *Loop {
	return &Loop{
		cfg: cfg, settings: settings, rules: rules, market: market, sentimentR: sentimentR,
		classifier: model, synth: synth, riskMgr: riskMgr, safetyL: safetyL,
		positions: positions, gateway: gateway, audit: audit,
		logger: logger.With().Str("component", "SentinelLoop").Logger(),
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

// Stop flips the running flag observed at the top of every iteration and
// cancels the context an in-flight HTTP call is bound to.
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

func (l *Loop) cycle(ctx context.Context) {
	settings := l.settings.Get()
	if !settings.AutoTrading {
		return
	}
	symbol := settings.Symbol
	logger := l.logger.With().Str("symbol", symbol).Logger()

	set := l.market.Fetch(ctx, symbol, l.cfg.Interval, l.cfg.CandleWindow)
	st, err := indicator.Compute(set.Candles)
	if err != nil {
		logger.Warn().Err(err).Msg("InsufficientData")
		return
	}

	pred, classErr := l.classifier.Classify(set.Candles)
	trained := classErr == nil

	sentScore := l.sentimentR.Read(ctx, symbol)
	rules := l.rules.Rules(symbol)
	env := ruleset.EnvFromState(st)

	decision := l.synth.SentinelDecide(symbol, rules, env, time.Now())
	entry := AuditEntry{Symbol: symbol, Decision: decision, Trend: string(st.Trend), Price: st.Price, RSI: st.RSI, Timestamp: time.Now()}

	defer func() {
		l.audit.Record(entry)
	}()
	_ = sentScore // read every cycle but unused: not a gating input on the Sentinel path and not written to the audit entry

	if decision.Action == signal.ActionWait {
		entry.SkipReason = "decision was Wait"
		return
	}
	requiredConfidence := 90 - settings.RiskTolerance
	if decision.Confidence < requiredConfidence {
		entry.SkipReason = "confidence below gate"
		return
	}
	if decision.Action == signal.ActionBuy && st.RSI > 70 {
		entry.SkipReason = "RSI overbought guard"
		return
	}
	if decision.Action == signal.ActionSell && st.RSI < 30 {
		entry.SkipReason = "RSI oversold guard"
		return
	}
	if trained && classifierDisagrees(decision.Action, pred.Direction) {
		entry.SkipReason = "classifier confluence miss"
		logger.Info().Str("predicted", string(pred.Direction)).Msg("SignalBlocked")
		return
	}

	if _, open := l.positions.Get(symbol); open {
		entry.SkipReason = "position already open, no stacking"
		return
	}

	assets, err := l.gateway.GetAssets(ctx)
	if err != nil {
		entry.SkipReason = "could not read balance"
		logger.Warn().Err(err).Msg("balance lookup failed")
		return
	}
	balance := balanceOf(assets, l.cfg.BaseAsset)
	price := st.Price
	if price <= 0 || balance <= 0 {
		entry.SkipReason = "no usable price or balance"
		return
	}
	positionNotional := clamp(0.03*balance, 5, 30)
	size := roundTo(positionNotional/price, 4)
	if size < l.cfg.MinOrderSize {
		entry.SkipReason = "insufficient balance for minimum order size"
		return
	}

	limits := l.riskMgr.Limits()
	stop, target := stopAndTarget(decision.Action, price, st.ATR, limits.MinATRMultiplier, limits.MaxATRMultiplier, limits.DefaultRiskReward)

	side := exchange.SideBuy
	if decision.Action == signal.ActionSell {
		side = exchange.SideSell
	}

	candidate := safety.Candidate{
		Symbol: symbol, Side: string(decision.Action), Size: size, Entry: price, Stop: stop, TakeProfit: target,
		Leverage: l.cfg.Leverage, AvailableMargin: balance, MarginRequired: size * price / l.cfg.Leverage,
	}
	results, passed := l.safetyL.Evaluate(candidate, l.positions.OpenRiskPositions())
	if !passed {
		entry.SkipReason = "SafetyRejected"
		logger.Warn().Interface("checks", results).Msg("SafetyRejected")
		return
	}

	resp, err := l.gateway.PlaceOrder(ctx, exchange.OrderRequest{
		Symbol: symbol, Side: side, Type: exchange.OrderTypeMarket, Size: size, PresetSL: stop, PresetTP: target,
		ClientOid: uuid.NewString(),
	})
	if err != nil || !resp.Succeeded() {
		entry.SkipReason = "order submission failed"
		logger.Error().Err(err).Str("code", resp.Code).Str("msg", resp.Msg).Msg("order rejected")
		return
	}

	direction := "Long"
	if side == exchange.SideSell {
		direction = "Short"
	}
	if err := l.positions.Open(ctx, position.Position{
		Symbol: symbol, Side: side, Direction: direction, Size: size, EntryPrice: price,
		StopLoss: stop, TakeProfit: target, Leverage: l.cfg.Leverage, MarginUsed: candidate.MarginRequired,
		OpenedAt: time.Now(), OrderID: resp.Data.OrderID, Source: position.SourceSentinel, ATRAtEntry: st.ATR,
	}); err != nil {
		logger.Error().Err(err).Msg("failed to register opened position")
	}
}

func classifierDisagrees(action signal.Action, dir classifier.Direction) bool {
	switch {
	case action == signal.ActionBuy && dir == classifier.Down:
		return true
	case action == signal.ActionSell && dir == classifier.Up:
		return true
	default:
		return false
	}
}

func balanceOf(assets []exchange.Asset, coin string) float64 {
	for _, a := range assets {
		if a.CoinName == coin {
			return a.Available
		}
	}
	return 0
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func roundTo(v float64, decimals int) float64 {
	mult := math.Pow(10, float64(decimals))
	return math.Round(v*mult) / mult
}

// stopAndTarget derives the stop-loss and take-profit from entry, ATR, and
// the risk manager's ATR clamp range, per the ATR-based sizing rule; the
// target is placed at defaultRiskReward times the stop distance.
func stopAndTarget(action signal.Action, entry, atr, minMult, maxMult, riskReward float64) (stop, target float64) {
	dist := clamp(1.5*atr, minMult*atr, maxMult*atr)
	if action == signal.ActionBuy {
		return entry - dist, entry + dist*riskReward
	}
	return entry + dist, entry - dist*riskReward
}
