package models

import "strings"

// Pair describes one tracked conversion and where its price is scraped from.
type Pair struct {
	Base  string `yaml:"base" json:"base" validate:"required,len=3,uppercase"`
	Quote string `yaml:"quote" json:"quote" validate:"required,len=3,uppercase"`
	URL   string `yaml:"url" json:"url" validate:"required,url"`
}

func (p Pair) String() string {
	return p.Base + "->" + p.Quote
}

// NormalizeISO upper-cases and trims a currency code.
func NormalizeISO(iso string) string {
	return strings.ToUpper(strings.TrimSpace(iso))
}
