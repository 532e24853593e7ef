package signal

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kairoslabs/derivatives-engine/internal/indicator"
	"github.com/kairoslabs/derivatives-engine/internal/regime"
	"github.com/kairoslabs/derivatives-engine/internal/ruleset"
)

func TestScore_BreakoutBeatsMomentum(t *testing.T) {
	st := indicator.State{
		Price:          110,
		BBUpper:        105,
		BBLower:        95,
		ATR:            2,
		ADX:            30,
		EMA9:           108,
		EMA21:          104,
		EMA50:          100,
		MACD:           1,
		MACDSignal:     0.5,
		MACDHist:       0.5,
		VolumeZScore:   3,
		BBWidthHistory: tail20(),
		ADXHistory3:    []float64{20, 22, 24},
	}
	sig := Score(st, nil, nil, nil)
	assert.Equal(t, Long, sig.Direction)
	assert.Equal(t, KindBreakout, sig.Kind)
	assert.Greater(t, sig.Strength, 50.0)
	assert.Less(t, sig.StopLoss, sig.Entry)
	assert.Greater(t, sig.TakeProfit, sig.Entry)
}

func TestScore_NeutralWhenNothingFires(t *testing.T) {
	st := indicator.State{
		Price:   100,
		BBUpper: 105,
		BBLower: 95,
		ATR:     1,
		EMA9:    100,
		EMA21:   100,
		EMA50:   100,
	}
	sig := Score(st, nil, nil, nil)
	assert.Equal(t, Neutral, sig.Direction)
	assert.Equal(t, KindNone, sig.Kind)
}

func tail20() []float64 {
	out := make([]float64, 20)
	for i := range out {
		out[i] = float64(i%5) + 1
	}
	out[len(out)-1] = 0.5
	return out
}

func TestFallbackHeuristic_BullishRSIInRange(t *testing.T) {
	resp := FallbackHeuristic(AdviceRequest{Trend: "Bullish", RSI: 50})
	assert.Equal(t, ActionBuy, resp.Action)
}

func TestFallbackHeuristic_OverboughtMeanReverts(t *testing.T) {
	resp := FallbackHeuristic(AdviceRequest{Trend: "Neutral", RSI: 80})
	assert.Equal(t, ActionSell, resp.Action)
}

var nonTriggeringRules = []ruleset.Rule{
	{ID: "1", Name: "oversold", Predicate: "rsi < 30", Action: ruleset.ActionBuy, Active: true},
}

func TestSynthesizer_SentinelDecide_RuleTriggerSkipsAdvisor(t *testing.T) {
	adv := &stubAdvisor{}
	s := NewSynthesizer(adv)
	env := ruleset.Env{RSI: 20, Trend: "Neutral"}

	d := s.SentinelDecide("BTCUSDT", nonTriggeringRules, env, time.Now())
	assert.Equal(t, ProvenanceRuleTriggered, d.Provenance)
	assert.Equal(t, ActionBuy, d.Action)
	assert.Equal(t, 85.0, d.Confidence)
	assert.Equal(t, 0, adv.calls)
}

func TestSynthesizer_SentinelDecide_NoAdvisorUsesFallback(t *testing.T) {
	s := NewSynthesizer(nil)
	env := ruleset.Env{RSI: 60, Trend: "Bullish"}
	d := s.SentinelDecide("BTCUSDT", nonTriggeringRules, env, time.Now())
	require.Equal(t, ProvenanceAdvisorFallback, d.Provenance)
	assert.Equal(t, ActionBuy, d.Action)
}

func TestSynthesizer_SentinelDecide_NoTriggerNoAdvisorWaits(t *testing.T) {
	s := NewSynthesizer(nil)
	d := s.SentinelDecide("BTCUSDT", nonTriggeringRules, ruleset.Env{RSI: 50, Trend: "Neutral"}, time.Now())
	assert.Equal(t, ProvenanceAdvisorFallback, d.Provenance)
	assert.Equal(t, ActionWait, d.Action)
}

type stubAdvisor struct {
	calls int
}

func (a *stubAdvisor) Advise(req AdviceRequest) (AdviceResponse, error) {
	a.calls++
	return AdviceResponse{Action: ActionBuy, Confidence: 80, Reason: "stub"}, nil
}

func TestSynthesizer_SentinelDecide_AdvisorCachedWithinTTL(t *testing.T) {
	adv := &stubAdvisor{}
	s := NewSynthesizer(adv)
	env := ruleset.Env{RSI: 60}
	now := time.Now()

	d1 := s.SentinelDecide("BTCUSDT", nonTriggeringRules, env, now)
	d2 := s.SentinelDecide("BTCUSDT", nonTriggeringRules, env, now.Add(10*time.Second))

	assert.Equal(t, ProvenanceAdvisorOK, d1.Provenance)
	assert.Equal(t, ProvenanceAdvisorOK, d2.Provenance)
	assert.Equal(t, 1, adv.calls)
}

func TestSynthesizer_SentinelDecide_QuotaExhaustionTriggersCooldown(t *testing.T) {
	adv := &stubAdvisor{}
	s := NewSynthesizer(adv)
	now := time.Now()

	for i := 0; i < maxDailyAdvisorCalls; i++ {
		env := ruleset.Env{RSI: 60}
		_ = s.SentinelDecide("SYM"+string(rune('A'+i)), nonTriggeringRules, env, now.Add(time.Duration(i)*time.Minute))
	}
	assert.Equal(t, maxDailyAdvisorCalls, adv.calls)

	d := s.SentinelDecide("OVERFLOW", nonTriggeringRules, ruleset.Env{RSI: 60}, now.Add(2*time.Hour))
	assert.Equal(t, ProvenanceAdvisorFallback, d.Provenance)
}

// Without BB-width history no detector fires, so the decision is Wait
// whatever the regime allows.
func TestSynthesizer_InstitutionalDecide_NoDetectorFiresWaits(t *testing.T) {
	s := NewSynthesizer(nil)
	st := indicator.State{
		Price:   110,
		BBUpper: 105,
		BBLower: 95,
		ATR:     2,
		ADX:     30,
	}
	rs := regime.State{Regime: regime.MeanReverting, Allowed: map[regime.SignalKind]bool{regime.KindMeanRevert: true}}
	_, d := s.InstitutionalDecide("BTCUSDT", st, rs, nil, nil, nil)
	assert.Equal(t, ActionWait, d.Action)
}
