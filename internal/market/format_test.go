package market

import (
	"testing"

	"github.com/go-playground/assert/v2"
)

func TestFormatPrice(t *testing.T) {
	cases := map[float64]string{
		0:           "$0.00",
		9.5:         "$9.50",
		189.254:     "$189.25",
		1234.56:     "$1,234.56",
		1234567.891: "$1,234,567.89",
	}
	for in, want := range cases {
		assert.Equal(t, want, FormatPrice(in))
	}
}

func TestFormatChangePercent(t *testing.T) {
	assert.Equal(t, "+1.23%", FormatChangePercent(1.2345))
	assert.Equal(t, "-0.40%", FormatChangePercent(-0.4))
	assert.Equal(t, "", FormatChangePercent(0))
}

func TestFormatMarketCap(t *testing.T) {
	assert.Equal(t, "$2.80T", FormatMarketCap(2.8e12))
	assert.Equal(t, "$512.34B", FormatMarketCap(512.34e9))
	assert.Equal(t, "$7.10M", FormatMarketCap(7.1e6))
	assert.Equal(t, "$950.00", FormatMarketCap(950))
	assert.Equal(t, "N/A", FormatMarketCap(0))
	assert.Equal(t, "N/A", FormatMarketCap(-3))
}

func TestFormatPE(t *testing.T) {
	pe := 31.96
	zero := 0.0
	assert.Equal(t, "32.0", FormatPE(&pe))
	assert.Equal(t, pePlaceholder, FormatPE(&zero))
	assert.Equal(t, pePlaceholder, FormatPE(nil))
}
