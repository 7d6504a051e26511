package scraper

import (
	"context"
	"time"
)

// Navigator opens browser pages. Each Page is a live tab that stays on its URL
// until closed.
type Navigator interface {
	Open(ctx context.Context, url string) (Page, error)
}

type Page interface {
	// WaitForElement blocks until selector matches or timeout elapses, in
	// which case the error wraps ErrElementTimeout.
	WaitForElement(ctx context.Context, selector string, timeout time.Duration) error
	ExtractFields(ctx context.Context, sel Selectors) (RawFields, error)
	Close() error
}

// RawFields holds the text content of the three price elements. A nil field
// means the element was not found.
type RawFields struct {
	Last    *string `json:"last"`
	Change  *string `json:"change"`
	Percent *string `json:"percent"`
}

// Selectors locate the price elements inside the quote page.
type Selectors struct {
	Container string
	Last      string
	Change    string
	Percent   string
}

var DefaultSelectors = Selectors{
	Container: `[data-test='instrument-header-details']`,
	Last:      `[data-test='instrument-price-last']`,
	Change:    `[data-test='instrument-price-change']`,
	Percent:   `[data-test='instrument-price-change-percent']`,
}
