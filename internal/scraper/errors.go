package scraper

import (
	"errors"
	"fmt"
)

var (
	// ErrElementTimeout means the price container never appeared on the page.
	ErrElementTimeout = errors.New("price element did not appear in time")

	// ErrUntrackedPair means the requested currency has no configured pair.
	ErrUntrackedPair = errors.New("untracked currency pair")
)

// NavigationError reports a failure to open a page on the price source.
type NavigationError struct {
	URL string
	Err error
}

func (e *NavigationError) Error() string {
	return fmt.Sprintf("navigate to %s: %v", e.URL, e.Err)
}

func (e *NavigationError) Unwrap() error {
	return e.Err
}
