package market

import (
	"math"
	"strings"

	"github.com/shopspring/decimal"
)

const pePlaceholder = "—"

var (
	trillion = decimal.New(1, 12)
	billion  = decimal.New(1, 9)
	million  = decimal.New(1, 6)
)

// FormatPrice renders p as US dollars with thousands separators, e.g.
// "$1,234.56".
func FormatPrice(p float64) string {
	d := decimal.NewFromFloat(p)
	sign := ""
	if d.IsNegative() {
		sign = "-"
		d = d.Abs()
	}
	return sign + "$" + groupThousands(d.StringFixed(2))
}

// FormatChangePercent renders "+1.23%" / "-0.40%". A zero change renders
// as the empty string.
func FormatChangePercent(cp float64) string {
	if cp == 0 || math.IsNaN(cp) {
		return ""
	}
	s := decimal.NewFromFloat(cp).StringFixed(2) + "%"
	if cp > 0 {
		s = "+" + s
	}
	return s
}

// FormatMarketCap renders a USD market capitalisation with a T/B/M suffix.
func FormatMarketCap(usd float64) string {
	if math.IsNaN(usd) || math.IsInf(usd, 0) || usd <= 0 {
		return "N/A"
	}
	d := decimal.NewFromFloat(usd)
	switch {
	case d.GreaterThanOrEqual(trillion):
		return "$" + d.Div(trillion).StringFixed(2) + "T"
	case d.GreaterThanOrEqual(billion):
		return "$" + d.Div(billion).StringFixed(2) + "B"
	case d.GreaterThanOrEqual(million):
		return "$" + d.Div(million).StringFixed(2) + "M"
	default:
		return "$" + d.StringFixed(2)
	}
}

// FormatPE rounds a P/E ratio to one decimal. Missing or zero ratios
// render as a dash.
func FormatPE(pe *float64) string {
	if pe == nil || *pe == 0 || math.IsNaN(*pe) {
		return pePlaceholder
	}
	return decimal.NewFromFloat(*pe).StringFixed(1)
}

func groupThousands(fixed string) string {
	intPart, frac, _ := strings.Cut(fixed, ".")
	if len(intPart) <= 3 {
		return fixed
	}
	var b strings.Builder
	lead := len(intPart) % 3
	if lead > 0 {
		b.WriteString(intPart[:lead])
	}
	for i := lead; i < len(intPart); i += 3 {
		if b.Len() > 0 {
			b.WriteByte(',')
		}
		b.WriteString(intPart[i : i+3])
	}
	if frac != "" {
		b.WriteByte('.')
		b.WriteString(frac)
	}
	return b.String()
}
