package signal

import (
	"sync"
	"time"

	"github.com/kairoslabs/derivatives-engine/internal/indicator"
	"github.com/kairoslabs/derivatives-engine/internal/regime"
	"github.com/kairoslabs/derivatives-engine/internal/ruleset"
)

const (
	maxDailyAdvisorCalls = 15
	adviceCacheTTL       = 60 * time.Second
	quotaCooldown        = time.Hour
)

type cachedAdvice struct {
	resp    AdviceResponse
	expires time.Time
}

// Synthesizer implements the Signal Synthesizer (C8): the Sentinel path
// (rule trigger takes priority; otherwise the external Advisor is
// consulted, with a deterministic fallback on transport/quota failure) and
// the Institutional path (indicator snapshot -> scored Signal -> regime
// gate). The advisor cache/quota/cooldown state lives here rather than
// inside the Advisor implementation so a nil Advisor (not configured)
// degrades to the fallback heuristic without the caller needing to know
// why.
type Synthesizer struct {
	advisor Advisor

	mu            sync.Mutex
	cache         map[string]cachedAdvice
	dailyCalls    int
	dayStart      time.Time
	cooldownUntil time.Time
}

// NewSynthesizer builds a Synthesizer. advisor may be nil, in which case
// the Sentinel path always uses the fallback heuristic once no rule has
// triggered.
func NewSynthesizer(advisor Advisor) *Synthesizer {
	return &Synthesizer{
		advisor: advisor,
		cache:   make(map[string]cachedAdvice),
	}
}

// SentinelDecide evaluates rules against env. A triggered Buy/Sell rule is
// authoritative and short-circuits the advisor entirely; only when no rule
// fires is the Advisor consulted (subject to its cache/quota/cooldown).
func (s *Synthesizer) SentinelDecide(symbol string, rules []ruleset.Rule, env ruleset.Env, now time.Time) Decision {
	triggered := ruleset.Evaluate(rules, env)
	if first, ok := ruleset.FirstTriggered(triggered); ok {
		return Decision{
			Symbol:     symbol,
			Action:     mapRuleAction(first.Rule.Action),
			Confidence: 85,
			Reason:     "rule:" + first.Rule.Name,
			Provenance: ProvenanceRuleTriggered,
			Inputs: map[string]any{
				"rule": first.Rule.Name,
			},
		}
	}

	req := AdviceRequest{
		Symbol:      symbol,
		Trend:       env.Trend,
		RSI:         env.RSI,
		Price:       env.Price,
		EMA20:       env.EMA20,
		Volatility:  env.Volatility,
		VolumeSpike: env.VolumeSpike,
	}
	return s.queryAdvisor(symbol, req, now)
}

func mapRuleAction(a ruleset.Action) Action {
	if a == ruleset.ActionBuy {
		return ActionBuy
	}
	return ActionSell
}

// queryAdvisor applies the 60s per-symbol cache, the 15-call daily quota,
// and the 1-hour cooldown that follows exhausting it, only calling the
// Advisor when none of those short-circuit to the heuristic fallback.
func (s *Synthesizer) queryAdvisor(symbol string, req AdviceRequest, now time.Time) Decision {
	if s.advisor == nil {
		return fallbackDecision(symbol, req)
	}

	s.mu.Lock()
	if s.dayStart.IsZero() || now.Sub(s.dayStart) >= 24*time.Hour {
		s.dayStart = now
		s.dailyCalls = 0
	}
	if cached, ok := s.cache[symbol]; ok && now.Before(cached.expires) {
		s.mu.Unlock()
		return decisionFromResponse(symbol, cached.resp)
	}
	if now.Before(s.cooldownUntil) {
		s.mu.Unlock()
		return fallbackDecision(symbol, req)
	}
	if s.dailyCalls >= maxDailyAdvisorCalls {
		s.cooldownUntil = now.Add(quotaCooldown)
		s.mu.Unlock()
		return fallbackDecision(symbol, req)
	}
	s.dailyCalls++
	s.mu.Unlock()

	resp, err := s.advisor.Advise(req)
	if err != nil {
		return fallbackDecision(symbol, req)
	}

	s.mu.Lock()
	s.cache[symbol] = cachedAdvice{resp: resp, expires: now.Add(adviceCacheTTL)}
	s.mu.Unlock()

	return decisionFromResponse(symbol, resp)
}

func fallbackDecision(symbol string, req AdviceRequest) Decision {
	resp := FallbackHeuristic(req)
	return Decision{
		Symbol:     symbol,
		Action:     resp.Action,
		Confidence: resp.Confidence,
		Reason:     resp.Reason,
		Provenance: ProvenanceAdvisorFallback,
	}
}

func decisionFromResponse(symbol string, resp AdviceResponse) Decision {
	provenance := ProvenanceAdvisorOK
	if resp.Malformed {
		provenance = ProvenanceAdvisorError
	}
	return Decision{
		Symbol:     symbol,
		Action:     resp.Action,
		Confidence: resp.Confidence,
		Reason:     resp.Reason,
		Provenance: provenance,
	}
}

// InstitutionalDecide scores a Signal from the indicator snapshot, zeroes
// its strength when the regime disallows its kind (the orchestrator makes
// the actual reject/accept call; this only neutralizes the confidence),
// and converts it to a Decision whose action mirrors Signal.direction.
func (s *Synthesizer) InstitutionalDecide(symbol string, st indicator.State, regimeState regime.State, fundingRate, oiChange, orderbookImbalance *float64) (Signal, Decision) {
	sig := Score(st, fundingRate, oiChange, orderbookImbalance)

	if sig.Direction != Neutral && sig.Kind != KindNone && !regimeState.Allows(string(sig.Kind)) {
		sig.Strength = 0
	}

	action := ActionWait
	switch sig.Direction {
	case Long:
		action = ActionBuy
	case Short:
		action = ActionSell
	}

	return sig, Decision{
		Symbol:     symbol,
		Action:     action,
		Confidence: sig.Strength,
		Reason:     string(sig.Kind) + " signal",
		Provenance: ProvenanceSynthOnly,
		Inputs: map[string]any{
			"kind":   sig.Kind,
			"regime": regimeState.Regime,
		},
	}
}
