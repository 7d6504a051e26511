package message

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/kjannette/dolarbot/internal/models"
)

func f(v float64) *float64 { return &v }

func TestRender_Full(t *testing.T) {
	got := Render(models.Snapshot{
		Base:          "USD",
		ISO:           "BRL",
		LastPrice:     f(5.10),
		PriceChange:   f(0.05),
		PercentChange: f(1.0),
	})

	want := "<b>USD</b> -> <b>BRL</b>\n" +
		"<b>Price:</b> 5.1 💵\n" +
		"<b>Change:</b> 0.05 💹 (1%)"
	assert.Equal(t, want, got)
}

func TestRender_NegativeValues(t *testing.T) {
	got := Render(models.Snapshot{
		ISO:           "EUR",
		LastPrice:     f(0.92),
		PriceChange:   f(-0.01),
		PercentChange: f(-1.1),
	})

	assert.Contains(t, got, "<b>USD</b> -> <b>EUR</b>")
	assert.Contains(t, got, "<b>Price:</b> 0.92 ")
	assert.Contains(t, got, "<b>Change:</b> -0.01 💹 (-1.1%)")
}

func TestRender_AbsentFields(t *testing.T) {
	got := Render(models.Snapshot{Base: "USD", ISO: "BRL"})

	assert.Contains(t, got, "<b>Price:</b> N/A 💵")
	assert.Contains(t, got, "<b>Change:</b> N/A 💹 (N/A%)")
}
