// Package advisor implements the second-opinion LLM call the Sentinel path
// consults when no rule has triggered. It wraps the teacher's internal/ai/llm
// client (unchanged provider set: Claude, OpenAI, DeepSeek) behind the
// signal.Advisor interface so the synthesizer never depends on a concrete
// transport.
package advisor

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/kairoslabs/derivatives-engine/internal/ai/llm"
	"github.com/kairoslabs/derivatives-engine/internal/signal"
)

const defaultBudget = 8 * time.Second

var codeFenceRe = regexp.MustCompile("(?s)^```(?:json)?\\s*\\n?(.*?)\\n?```$")

// Client queries an LLM for a bounded-time second opinion when no rule
// has triggered. It never blocks past its configured time budget: a slow or
// failing provider is surfaced as an error so the caller falls back to the
// deterministic heuristic rather than stalling the Sentinel loop.
type Client struct {
	llm    *llm.Client
	budget time.Duration
}

// New builds a Client from an already-configured llm.Client. Passing a
// client whose IsConfigured() is false makes every Advise call return an
// error immediately, which is the desired behavior when no provider API
// key is set.
func New(llmClient *llm.Client, budget time.Duration) *Client {
	if budget <= 0 {
		budget = defaultBudget
	}
	return &Client{llm: llmClient, budget: budget}
}

var _ signal.Advisor = (*Client)(nil)

type adviceJSON struct {
	Action     string  `json:"action"`
	Confidence float64 `json:"confidence"`
	Reason     string  `json:"reason"`
}

// Advise asks the LLM for a trade action on a cycle where no rule
// triggered. The LLM call runs in a goroutine and Advise waits for it at
// most c.budget; past that it returns an error, and the abandoned call
// ends on the underlying http.Client's own timeout.
func (c *Client) Advise(req signal.AdviceRequest) (signal.AdviceResponse, error) {
	if c.llm == nil || !c.llm.IsConfigured() {
		return signal.AdviceResponse{}, fmt.Errorf("advisor: no LLM provider configured")
	}

	prompt := buildPrompt(req)
	var raw string
	var err error
	done := make(chan struct{})
	go func() { raw, err = c.llm.Complete(systemPrompt, prompt); close(done) }()
	select {
	case <-done:
	case <-time.After(c.budget):
		return signal.AdviceResponse{}, fmt.Errorf("advisor: no LLM response within %s", c.budget)
	}
	if err != nil {
		return signal.AdviceResponse{}, fmt.Errorf("advisor: LLM request failed: %w", err)
	}

	clean := stripCodeFence(raw)
	var parsed adviceJSON
	if err := json.Unmarshal([]byte(clean), &parsed); err != nil {
		return signal.AdviceResponse{}, fmt.Errorf("advisor: could not parse LLM response: %w", err)
	}

	action, malformed := normalizeAction(parsed.Action)
	confidence := parsed.Confidence
	if confidence < 0 || confidence > 100 {
		malformed = true
		confidence = clampConfidence(confidence)
	}

	return signal.AdviceResponse{
		Action:     action,
		Confidence: confidence,
		Reason:     parsed.Reason,
		Malformed:  malformed,
	}, nil
}

// normalizeAction coerces an unrecognized action string to Wait rather
// than erroring: an LLM response that parses as JSON but names an action
// outside {Buy,Sell,Wait} is a malformed-success case, not a transport
// failure, per the Advisor_Error provenance the synthesizer records for it.
func normalizeAction(s string) (signal.Action, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "buy":
		return signal.ActionBuy, false
	case "sell":
		return signal.ActionSell, false
	case "wait", "hold", "":
		return signal.ActionWait, false
	default:
		return signal.ActionWait, true
	}
}

func clampConfidence(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}

const systemPrompt = `You are a disciplined risk-averse trading assistant. No rule-based ` +
	`predicate fired this cycle; decide whether the current market state still warrants a trade. ` +
	`Respond with a single JSON object: {"action": "Buy"|"Sell"|"Wait", "confidence": 0-100, "reason": "<one sentence>"}. ` +
	`No prose outside the JSON object.`

func buildPrompt(req signal.AdviceRequest) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Symbol: %s\n", req.Symbol)
	fmt.Fprintf(&b, "Trend: %s\n", req.Trend)
	fmt.Fprintf(&b, "RSI: %.2f\n", req.RSI)
	fmt.Fprintf(&b, "Price: %.4f, EMA20: %.4f\n", req.Price, req.EMA20)
	fmt.Fprintf(&b, "ATR (volatility): %.4f\n", req.Volatility)
	fmt.Fprintf(&b, "Volume spike: %v\n", req.VolumeSpike)
	return b.String()
}

func stripCodeFence(s string) string {
	s = strings.TrimSpace(s)
	if m := codeFenceRe.FindStringSubmatch(s); len(m) > 1 {
		return strings.TrimSpace(m[1])
	}
	return s
}
