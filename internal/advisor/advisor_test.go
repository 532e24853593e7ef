package advisor

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kairoslabs/derivatives-engine/internal/ai/llm"
	"github.com/kairoslabs/derivatives-engine/internal/signal"
)

func TestStripCodeFence_UnwrapsJSONBlock(t *testing.T) {
	wrapped := "```json\n{\"action\":\"Buy\"}\n```"
	assert.Equal(t, `{"action":"Buy"}`, stripCodeFence(wrapped))
}

func TestStripCodeFence_PlainJSONUnchanged(t *testing.T) {
	plain := `{"action":"Sell"}`
	assert.Equal(t, plain, stripCodeFence(plain))
}

func TestNormalizeAction(t *testing.T) {
	cases := map[string]signal.Action{
		"Buy": signal.ActionBuy, "sell": signal.ActionSell, "WAIT": signal.ActionWait, "": signal.ActionWait,
	}
	for in, want := range cases {
		got, malformed := normalizeAction(in)
		assert.False(t, malformed)
		assert.Equal(t, want, got)
	}
	got, malformed := normalizeAction("maybe")
	assert.True(t, malformed)
	assert.Equal(t, signal.ActionWait, got)
}

func TestAdvise_ErrorsWhenNotConfigured(t *testing.T) {
	client := New(llm.NewClient(&llm.ClientConfig{Provider: llm.ProviderClaude}), 0)
	_, err := client.Advise(signal.AdviceRequest{Symbol: "BTCUSDT"})
	require.Error(t, err)
}

func TestBuildPrompt_IncludesSymbolAndTrend(t *testing.T) {
	prompt := buildPrompt(signal.AdviceRequest{Symbol: "ETHUSDT", Trend: "Bullish"})
	assert.Contains(t, prompt, "ETHUSDT")
	assert.Contains(t, prompt, "Bullish")
}
