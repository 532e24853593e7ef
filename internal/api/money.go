package api

import (
	"github.com/shopspring/decimal"

	"github.com/kairoslabs/derivatives-engine/internal/risk"
)

// equityView renders risk.Equity's float64 fields as fixed-precision decimal
// strings so the wire representation of account equity never carries
// binary floating-point rounding noise out to an operator dashboard.
type equityView struct {
	Current    string `json:"current"`
	Peak       string `json:"peak"`
	DailyStart string `json:"daily_start"`
	DailyPnl   string `json:"daily_pnl"`
	TotalPnl   string `json:"total_pnl"`
}

func renderEquity(e risk.Equity) equityView {
	return equityView{
		Current:    money(e.Current),
		Peak:       money(e.Peak),
		DailyStart: money(e.DailyStart),
		DailyPnl:   money(e.DailyPnl),
		TotalPnl:   money(e.TotalPnl),
	}
}

// positionView renders one open position's margin the same way.
type positionView struct {
	Symbol           string `json:"symbol"`
	CorrelationGroup string `json:"correlation_group"`
	MarginUsed       string `json:"margin_used"`
}

func renderPositions(positions []risk.OpenPosition) []positionView {
	views := make([]positionView, 0, len(positions))
	for _, p := range positions {
		views = append(views, positionView{
			Symbol: p.Symbol, CorrelationGroup: p.CorrelationGroup, MarginUsed: money(p.MarginUsed),
		})
	}
	return views
}

// money rounds v to cent precision via decimal.Decimal rather than
// fmt's binary-float rounding, and renders it as a string so JSON clients
// never have to re-parse a float themselves.
func money(v float64) string {
	return decimal.NewFromFloat(v).StringFixed(2)
}
