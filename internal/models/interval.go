package models

import (
	"fmt"
	"strings"
)

// Interval is the cadence of a reminder subscription.
type Interval string

const (
	Hourly Interval = "hourly"
	Daily  Interval = "daily"
	Weekly Interval = "weekly"
)

// Intervals lists every interval in display order.
var Intervals = []Interval{Hourly, Daily, Weekly}

func (i Interval) Valid() bool {
	switch i {
	case Hourly, Daily, Weekly:
		return true
	}
	return false
}

func (i Interval) String() string {
	return string(i)
}

// ParseInterval accepts any casing of a known interval name.
func ParseInterval(s string) (Interval, error) {
	i := Interval(strings.ToLower(strings.TrimSpace(s)))
	if !i.Valid() {
		return "", fmt.Errorf("unknown interval %q", s)
	}
	return i, nil
}
