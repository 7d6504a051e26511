// Package scraper keeps one browser page open per tracked currency pair and
// reads prices from it.
package scraper

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/kjannette/dolarbot/internal/metrics"
	"github.com/kjannette/dolarbot/internal/models"
)

const defaultElementTimeout = 30 * time.Second

// FetchResult is the outcome of one pair inside FetchAll.
type FetchResult struct {
	Snapshot models.Snapshot
	Err      error
}

type slot struct {
	pair models.Pair
	busy chan struct{} // one token; serializes work on this pair
	page Page          // guarded by Source.mu
}

// acquire takes the pair or gives up when ctx is done.
func (sl *slot) acquire(ctx context.Context) error {
	select {
	case sl.busy <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (sl *slot) release() { <-sl.busy }

// Source is the price source. Sessions are opened lazily, reused across
// fetches, and only discarded by ResetSessions or Close.
type Source struct {
	nav            Navigator
	selectors      Selectors
	elementTimeout time.Duration
	log            zerolog.Logger
	metrics        *metrics.Recorder
	now            func() time.Time

	mu    sync.Mutex
	slots map[string]*slot
	order []string
}

type Option func(*Source)

func WithSelectors(sel Selectors) Option {
	return func(s *Source) { s.selectors = sel }
}

func WithElementTimeout(d time.Duration) Option {
	return func(s *Source) {
		if d > 0 {
			s.elementTimeout = d
		}
	}
}

func WithLogger(l zerolog.Logger) Option {
	return func(s *Source) { s.log = l }
}

func WithMetrics(m *metrics.Recorder) Option {
	return func(s *Source) { s.metrics = m }
}

func WithClock(now func() time.Time) Option {
	return func(s *Source) { s.now = now }
}

func NewSource(nav Navigator, pairs []models.Pair, opts ...Option) *Source {
	s := &Source{
		nav:            nav,
		selectors:      DefaultSelectors,
		elementTimeout: defaultElementTimeout,
		log:            zerolog.Nop(),
		now:            time.Now,
		slots:          make(map[string]*slot, len(pairs)),
	}
	for _, opt := range opts {
		opt(s)
	}
	for _, p := range pairs {
		iso := models.NormalizeISO(p.Quote)
		if _, dup := s.slots[iso]; dup {
			continue
		}
		s.slots[iso] = &slot{pair: p, busy: make(chan struct{}, 1)}
		s.order = append(s.order, iso)
	}
	return s
}

// Pairs returns the tracked pairs in configuration order.
func (s *Source) Pairs() []models.Pair {
	out := make([]models.Pair, len(s.order))
	for i, iso := range s.order {
		out[i] = s.slots[iso].pair
	}
	return out
}

// Quotes returns the target ISO of every tracked pair.
func (s *Source) Quotes() []string {
	out := make([]string, len(s.order))
	copy(out, s.order)
	return out
}

func (s *Source) Tracks(iso string) bool {
	_, ok := s.slots[models.NormalizeISO(iso)]
	return ok
}

func (s *Source) lookup(iso string) (*slot, error) {
	sl, ok := s.slots[models.NormalizeISO(iso)]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUntrackedPair, iso)
	}
	return sl, nil
}

// EnsureSession opens the page for iso unless one is already open.
func (s *Source) EnsureSession(ctx context.Context, iso string) error {
	sl, err := s.lookup(iso)
	if err != nil {
		return err
	}
	if err := sl.acquire(ctx); err != nil {
		return fmt.Errorf("wait for %s session: %w", sl.pair, err)
	}
	defer sl.release()

	_, err = s.ensure(ctx, sl)
	return err
}

func (s *Source) ensure(ctx context.Context, sl *slot) (Page, error) {
	s.mu.Lock()
	page := sl.page
	s.mu.Unlock()

	if page != nil {
		s.log.Debug().Str("pair", sl.pair.String()).Msg("using cached page")
		return page, nil
	}

	s.log.Info().Str("pair", sl.pair.String()).Str("url", sl.pair.URL).Msg("opening page")
	page, err := s.nav.Open(ctx, sl.pair.URL)
	if err != nil {
		var navErr *NavigationError
		if !errors.As(err, &navErr) {
			err = &NavigationError{URL: sl.pair.URL, Err: err}
		}
		return nil, err
	}

	s.mu.Lock()
	sl.page = page
	s.mu.Unlock()
	return page, nil
}

// FetchPrice reads the current price for iso, opening the session if needed.
// Unparseable fields are returned as absent rather than failing the fetch.
func (s *Source) FetchPrice(ctx context.Context, iso string) (models.Snapshot, error) {
	sl, err := s.lookup(iso)
	if err != nil {
		return models.Snapshot{}, err
	}

	start := s.now()
	var snap models.Snapshot
	if err = sl.acquire(ctx); err != nil {
		err = fmt.Errorf("wait for %s session: %w", sl.pair, err)
	} else {
		snap, err = s.fetch(ctx, sl)
		sl.release()
	}

	s.metrics.ObserveFetch(sl.pair.Quote, s.now().Sub(start), err)
	if err == nil && snap.LastPrice != nil {
		s.metrics.SetLastPrice(sl.pair.Quote, *snap.LastPrice)
	}
	return snap, err
}

func (s *Source) fetch(ctx context.Context, sl *slot) (models.Snapshot, error) {
	page, err := s.ensure(ctx, sl)
	if err != nil {
		return models.Snapshot{}, err
	}

	if err := page.WaitForElement(ctx, s.selectors.Container, s.elementTimeout); err != nil {
		return models.Snapshot{}, fmt.Errorf("wait for %s price: %w", sl.pair, err)
	}

	raw, err := page.ExtractFields(ctx, s.selectors)
	if err != nil {
		return models.Snapshot{}, fmt.Errorf("extract %s price: %w", sl.pair, err)
	}

	last, change, pct := ParseFields(raw)
	return models.Snapshot{
		Base:          sl.pair.Base,
		ISO:           sl.pair.Quote,
		LastPrice:     last,
		PriceChange:   change,
		PercentChange: pct,
		FetchedAt:     s.now(),
	}, nil
}

// FetchAll fetches every requested currency concurrently. Each entry holds its
// own result; one pair failing never affects another.
func (s *Source) FetchAll(ctx context.Context, isos []string) map[string]FetchResult {
	results := make(map[string]FetchResult, len(isos))
	var mu sync.Mutex
	var wg sync.WaitGroup

	seen := make(map[string]bool, len(isos))
	for _, iso := range isos {
		iso = models.NormalizeISO(iso)
		if seen[iso] {
			continue
		}
		seen[iso] = true

		wg.Add(1)
		go func() {
			defer wg.Done()
			snap, err := s.FetchPrice(ctx, iso)
			mu.Lock()
			results[iso] = FetchResult{Snapshot: snap, Err: err}
			mu.Unlock()
		}()
	}
	wg.Wait()
	return results
}

// Prewarm opens a session for every tracked pair.
func (s *Source) Prewarm(ctx context.Context) error {
	var errs []error
	for _, iso := range s.order {
		if err := s.EnsureSession(ctx, iso); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// ResetSessions discards every open page so the next fetch reopens it, and
// returns how many were discarded. A fetch already running keeps its page; the
// page is closed once that fetch is done.
func (s *Source) ResetSessions() int {
	type detached struct {
		sl   *slot
		page Page
	}

	s.mu.Lock()
	var pages []detached
	for _, iso := range s.order {
		sl := s.slots[iso]
		if sl.page != nil {
			pages = append(pages, detached{sl: sl, page: sl.page})
			sl.page = nil
		}
	}
	s.mu.Unlock()

	for _, d := range pages {
		go func() {
			d.sl.busy <- struct{}{}
			defer d.sl.release()
			if err := d.page.Close(); err != nil {
				s.log.Warn().Err(err).Str("pair", d.sl.pair.String()).Msg("close discarded page")
			}
		}()
	}
	s.log.Info().Int("discarded", len(pages)).Msg("sessions reset")
	return len(pages)
}

// OpenSessions reports how many pairs currently hold a page.
func (s *Source) OpenSessions() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, sl := range s.slots {
		if sl.page != nil {
			n++
		}
	}
	return n
}

// Close closes every page, waiting for in-flight fetches to finish.
func (s *Source) Close() error {
	var errs []error
	for _, iso := range s.order {
		sl := s.slots[iso]
		sl.busy <- struct{}{}
		s.mu.Lock()
		page := sl.page
		sl.page = nil
		s.mu.Unlock()
		if page != nil {
			if err := page.Close(); err != nil {
				errs = append(errs, err)
			}
		}
		sl.release()
	}
	return errors.Join(errs...)
}
