package scraper

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func str(s string) *string { return &s }

func TestParseNumber(t *testing.T) {
	cases := []struct {
		in   string
		want float64
	}{
		{"1,050", 1.05},
		{"5.10", 5.1},
		{" 0,92 ", 0.92},
		{"+0,05", 0.05},
		{"-0,01", -0.01},
		{"−0,5", -0.5},
		{"1.234,56", 1.234},
		{"12abc", 12},
	}
	for _, tc := range cases {
		got := ParseNumber(str(tc.in))
		require.NotNil(t, got, "input %q", tc.in)
		assert.InDelta(t, tc.want, *got, 1e-9, "input %q", tc.in)
	}
}

func TestParseNumber_Absent(t *testing.T) {
	for _, in := range []string{"", "   ", "abc", "-", ",", "%"} {
		assert.Nil(t, ParseNumber(str(in)), "input %q", in)
	}
	assert.Nil(t, ParseNumber(nil))
}

func TestParsePercent(t *testing.T) {
	got := ParsePercent(str("(-2,3%)"))
	require.NotNil(t, got)
	assert.InDelta(t, -2.3, *got, 1e-9)

	got = ParsePercent(str("+0,0125(+0,24%)"))
	require.NotNil(t, got)
	assert.InDelta(t, 0.24, *got, 1e-9)
}

func TestParsePercent_Absent(t *testing.T) {
	for _, in := range []string{"-2,3%", "()", "(%)", "(abc)"} {
		assert.Nil(t, ParsePercent(str(in)), "input %q", in)
	}
	assert.Nil(t, ParsePercent(nil))
}

func TestParseFields_Partial(t *testing.T) {
	last, change, pct := ParseFields(RawFields{Last: str("5,10"), Percent: str("bogus")})
	require.NotNil(t, last)
	assert.InDelta(t, 5.1, *last, 1e-9)
	assert.Nil(t, change)
	assert.Nil(t, pct)
}
