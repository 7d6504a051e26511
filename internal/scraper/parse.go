package scraper

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/kjannette/dolarbot/internal/models"
)

var (
	// Leading decimal literal; anything after it is ignored.
	numberPrefix  = regexp.MustCompile(`^[+-]?(\d+(\.\d*)?|\.\d+)([eE][+-]?\d+)?`)
	parenthesized = regexp.MustCompile(`\((.*)\)`)
)

// ParseFields converts raw element text into numbers. Fields that cannot be
// parsed come back nil.
func ParseFields(raw RawFields) (last, change, percent *float64) {
	return ParseNumber(raw.Last), ParseNumber(raw.Change), ParsePercent(raw.Percent)
}

// ParseNumber reads a locale-formatted number: the first comma is treated as
// the decimal separator, so "1,050" is 1.05.
func ParseNumber(raw *string) *float64 {
	if raw == nil {
		return nil
	}
	s := strings.TrimSpace(*raw)
	s = strings.Replace(s, ",", ".", 1)
	s = strings.ReplaceAll(s, "−", "-")

	m := numberPrefix.FindString(s)
	if m == "" {
		return nil
	}
	v, err := strconv.ParseFloat(m, 64)
	if err != nil {
		return nil
	}
	return models.Float(v)
}

// ParsePercent extracts the value inside the parenthesized suffix, e.g.
// "+0,12 (-2,3%)" gives -2.3.
func ParsePercent(raw *string) *float64 {
	if raw == nil {
		return nil
	}
	m := parenthesized.FindStringSubmatch(*raw)
	if m == nil {
		return nil
	}
	s := strings.Replace(m[1], "%", "", 1)
	return ParseNumber(&s)
}
