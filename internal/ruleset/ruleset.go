// Package ruleset implements the Strategy Rule Set (C6): a sandboxed
// boolean-expression evaluator over a fixed variable and operator
// whitelist. It never embeds a general-purpose interpreter — predicates are
// parsed once into a small AST and rejected outright if they reference
// anything outside the whitelist, per the "runtime reflection / dynamic
// predicates" design note.
package ruleset

import (
	"fmt"

	"github.com/kairoslabs/derivatives-engine/internal/indicator"
)

// Action is the trade direction a triggered rule recommends.
type Action string

const (
	ActionBuy  Action = "Buy"
	ActionSell Action = "Sell"
)

// Rule is a user-authored predicate over IndicatorState field names.
type Rule struct {
	ID        string
	Name      string
	Predicate string
	Action    Action
	Active    bool

	compiled expr // cached AST, populated by Compile
}

// Compile parses the rule's predicate text into its AST once. Call before
// first evaluation; Evaluate will lazily compile if this was skipped.
func (r *Rule) Compile() error {
	e, err := parse(r.Predicate)
	if err != nil {
		return err
	}
	r.compiled = e
	return nil
}

// Triggered is the result of evaluating one rule against an IndicatorState.
type Triggered struct {
	Rule    Rule
	Matched bool
	Faulted bool // true if the predicate failed to parse or evaluate
	Err     error
}

// Env is the whitelisted variable set a predicate may reference. Any
// identifier outside this set is a compile error.
type Env struct {
	RSI         float64
	Price       float64
	EMA20       float64
	Volatility  float64
	Trend       string
	VolumeSpike bool
}

// EnvFromState builds the evaluator environment from an indicator snapshot.
// Volatility is bound to ATR, matching the original evaluator's usage.
func EnvFromState(st indicator.State) Env {
	return Env{
		RSI:         st.RSI,
		Price:       st.Price,
		EMA20:       st.EMA20,
		Volatility:  st.ATR,
		Trend:       string(st.Trend),
		VolumeSpike: st.VolumeSpike,
	}
}

// Evaluate runs every active rule against env, in order, and returns one
// Triggered entry per active rule. A parse or evaluation error never
// panics: the rule's Matched is false and Faulted is true.
func Evaluate(rules []Rule, env Env) []Triggered {
	out := make([]Triggered, 0, len(rules))
	for _, r := range rules {
		if !r.Active {
			continue
		}
		t := Triggered{Rule: r}

		e := r.compiled
		if e == nil {
			parsed, err := parse(r.Predicate)
			if err != nil {
				t.Faulted = true
				t.Err = err
				out = append(out, t)
				continue
			}
			e = parsed
		}

		v, err := e.eval(env)
		if err != nil {
			t.Faulted = true
			t.Err = err
			out = append(out, t)
			continue
		}
		b, ok := v.(bool)
		if !ok {
			t.Faulted = true
			t.Err = fmt.Errorf("ruleset: predicate %q did not evaluate to a boolean", r.Predicate)
			out = append(out, t)
			continue
		}
		t.Matched = b
		out = append(out, t)
	}
	return out
}

// FirstTriggered returns the first matching, non-faulted rule, per the
// "first triggered is authoritative for the cycle" rule.
func FirstTriggered(triggered []Triggered) (Triggered, bool) {
	for _, t := range triggered {
		if t.Matched && !t.Faulted {
			return t, true
		}
	}
	return Triggered{}, false
}
