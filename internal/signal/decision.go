package signal

// Action is the final trade action a Decision carries.
type Action string

const (
	ActionBuy  Action = "Buy"
	ActionSell Action = "Sell"
	ActionWait Action = "Wait"
)

// Provenance records which stage of the pipeline produced a Decision, so
// downstream logging and the audit trail can show why a trade fired.
type Provenance string

const (
	ProvenanceRuleTriggered   Provenance = "Rule_Triggered"
	ProvenanceAdvisorOK       Provenance = "Advisor_OK"
	ProvenanceAdvisorFallback Provenance = "Advisor_Fallback"
	ProvenanceAdvisorError    Provenance = "Advisor_Error"
	ProvenanceSynthOnly       Provenance = "Synth_Only"
)

// Decision is the synthesizer's final, actionable output for one symbol.
type Decision struct {
	Symbol     string
	Action     Action
	Confidence float64 // 0..100
	Reason     string
	Provenance Provenance
	Inputs     map[string]any
}

// AdviceRequest is the context the synthesizer sends an Advisor when no
// rule has triggered and a second opinion is needed.
type AdviceRequest struct {
	Symbol      string
	Trend       string
	RSI         float64
	Price       float64
	EMA20       float64
	Volatility  float64
	VolumeSpike bool
}

// AdviceResponse is the Advisor's opinion: an action plus confidence. A
// transport/parse failure is reported as an error by Advise instead of
// through this struct; Malformed marks a structurally-odd but
// non-erroring response (unrecognized action coerced to Wait, confidence
// clamped) so the caller can record Advisor_Error provenance.
type AdviceResponse struct {
	Action     Action
	Confidence float64
	Reason     string
	Malformed  bool
}

// Advisor is implemented by internal/advisor's HTTP client. Defining the
// interface here, rather than importing the advisor package, keeps signal
// free of a dependency on its concrete transport and cache/quota state.
type Advisor interface {
	Advise(req AdviceRequest) (AdviceResponse, error)
}

// FallbackHeuristic is the deterministic, network-free decision used when
// no Advisor is configured, the Advisor errors, or it is cooling down after
// exhausting its daily quota. Bullish RSI in the neutral band favors Buy,
// Bearish favors Sell; deep extremes mean-revert; anything else waits.
func FallbackHeuristic(req AdviceRequest) AdviceResponse {
	switch {
	case req.Trend == "Bullish" && req.RSI > 30 && req.RSI < 70:
		return AdviceResponse{Action: ActionBuy, Confidence: 55, Reason: "bullish trend, RSI in range"}
	case req.Trend == "Bearish" && req.RSI > 30 && req.RSI < 70:
		return AdviceResponse{Action: ActionSell, Confidence: 55, Reason: "bearish trend, RSI in range"}
	case req.RSI > 75:
		return AdviceResponse{Action: ActionSell, Confidence: 65, Reason: "RSI overbought"}
	case req.RSI < 25:
		return AdviceResponse{Action: ActionBuy, Confidence: 65, Reason: "RSI oversold"}
	default:
		return AdviceResponse{Action: ActionWait, Confidence: 30, Reason: "no clear edge"}
	}
}
