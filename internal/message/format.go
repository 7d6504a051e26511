// Package message renders price snapshots into chat messages.
package message

import (
	"fmt"
	"html"
	"strconv"

	"github.com/kjannette/dolarbot/internal/models"
)

// Absent is printed in place of a missing numeric field.
const Absent = "N/A"

const template = "<b>%s</b> -> <b>%s</b>\n" +
	"<b>Price:</b> %s 💵\n" +
	"<b>Change:</b> %s 💹 (%s%%)"

// Render formats a snapshot with the fixed HTML template used for both
// scheduled reminders and /price replies.
func Render(s models.Snapshot) string {
	base := s.Base
	if base == "" {
		base = "USD"
	}
	return fmt.Sprintf(template,
		html.EscapeString(base),
		html.EscapeString(s.ISO),
		number(s.LastPrice),
		number(s.PriceChange),
		number(s.PercentChange),
	)
}

func number(v *float64) string {
	if v == nil {
		return Absent
	}
	return strconv.FormatFloat(*v, 'f', -1, 64)
}
