package ruleset

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEvaluate_RSIOversoldBuy(t *testing.T) {
	rules := []Rule{
		{ID: "1", Name: "RSI Oversold", Predicate: "rsi < 30", Action: ActionBuy, Active: true},
	}
	env := Env{RSI: 28.0, Price: 100, Trend: "Neutral", EMA20: 101}

	triggered := Evaluate(rules, env)
	require.Len(t, triggered, 1)
	assert.True(t, triggered[0].Matched)
	assert.False(t, triggered[0].Faulted)

	first, ok := FirstTriggered(triggered)
	require.True(t, ok)
	assert.Equal(t, ActionBuy, first.Rule.Action)
}

func TestEvaluate_CompoundPredicate(t *testing.T) {
	rules := []Rule{
		{ID: "1", Predicate: "price > ema20 and trend == 'Bullish'", Action: ActionBuy, Active: true},
	}
	env := Env{Price: 105, EMA20: 100, Trend: "Bullish"}
	triggered := Evaluate(rules, env)
	require.Len(t, triggered, 1)
	assert.True(t, triggered[0].Matched)
}

func TestEvaluate_FaultsOnUnknownIdentifier(t *testing.T) {
	rules := []Rule{
		{ID: "1", Predicate: "macd_hist > 0", Action: ActionBuy, Active: true},
	}
	triggered := Evaluate(rules, Env{})
	require.Len(t, triggered, 1)
	assert.False(t, triggered[0].Matched)
	assert.True(t, triggered[0].Faulted)
}

func TestEvaluate_InactiveRuleSkipped(t *testing.T) {
	rules := []Rule{
		{ID: "1", Predicate: "rsi < 30", Action: ActionBuy, Active: false},
	}
	triggered := Evaluate(rules, Env{RSI: 10})
	assert.Len(t, triggered, 0)
}

func TestEvaluate_NotAnd(t *testing.T) {
	rules := []Rule{
		{ID: "1", Predicate: "not (rsi > 70) and volumeSpike == True", Action: ActionBuy, Active: true},
	}
	triggered := Evaluate(rules, Env{RSI: 50, VolumeSpike: true})
	require.Len(t, triggered, 1)
	assert.True(t, triggered[0].Matched)
}

func TestEvaluate_NoFunctionCallsAllowed(t *testing.T) {
	_, err := parse("abs(rsi) < 30")
	require.Error(t, err)
}
