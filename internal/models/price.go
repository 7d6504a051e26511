package models

import (
	"math"
	"time"
)

// Snapshot is the result of one price fetch for a tracked pair. Numeric fields
// are nil when the source value was missing or unparseable.
type Snapshot struct {
	Base          string    `json:"base"`
	ISO           string    `json:"iso"`
	LastPrice     *float64  `json:"lastPrice"`
	PriceChange   *float64  `json:"priceChange"`
	PercentChange *float64  `json:"percentChange"`
	FetchedAt     time.Time `json:"fetchedAt"`
}

// Complete reports whether every numeric field is present.
func (s Snapshot) Complete() bool {
	return s.LastPrice != nil && s.PriceChange != nil && s.PercentChange != nil
}

// Float returns a pointer to v, or nil when v is NaN or infinite.
func Float(v float64) *float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return nil
	}
	return &v
}
