package scraper

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kjannette/dolarbot/internal/models"
)

var testPairs = []models.Pair{
	{Base: "USD", Quote: "BRL", URL: "https://quotes.test/usd-brl"},
	{Base: "USD", Quote: "EUR", URL: "https://quotes.test/usd-eur"},
}

// stubNavigator hands out stubPages and counts opens per URL.
type stubNavigator struct {
	mu      sync.Mutex
	opens   map[string]int
	openErr map[string]error
	fields  map[string]RawFields
	waitErr map[string]error
	delay   time.Duration

	inflight    atomic.Int32
	maxInflight atomic.Int32
	closed      atomic.Int32
}

func newStubNavigator() *stubNavigator {
	return &stubNavigator{
		opens:   map[string]int{},
		openErr: map[string]error{},
		fields:  map[string]RawFields{},
		waitErr: map[string]error{},
	}
}

func (n *stubNavigator) Open(_ context.Context, url string) (Page, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.opens[url]++
	if err := n.openErr[url]; err != nil {
		return nil, err
	}
	return &stubPage{nav: n, url: url}, nil
}

func (n *stubNavigator) openCount(url string) int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.opens[url]
}

type stubPage struct {
	nav *stubNavigator
	url string
}

func (p *stubPage) WaitForElement(ctx context.Context, _ string, _ time.Duration) error {
	cur := p.nav.inflight.Add(1)
	defer p.nav.inflight.Add(-1)
	for {
		peak := p.nav.maxInflight.Load()
		if cur <= peak || p.nav.maxInflight.CompareAndSwap(peak, cur) {
			break
		}
	}
	if p.nav.delay > 0 {
		time.Sleep(p.nav.delay)
	}
	p.nav.mu.Lock()
	defer p.nav.mu.Unlock()
	return p.nav.waitErr[p.url]
}

func (p *stubPage) ExtractFields(context.Context, Selectors) (RawFields, error) {
	p.nav.mu.Lock()
	defer p.nav.mu.Unlock()
	return p.nav.fields[p.url], nil
}

func (p *stubPage) Close() error {
	p.nav.closed.Add(1)
	return nil
}

func newTestSource(nav *stubNavigator) *Source {
	nav.fields["https://quotes.test/usd-brl"] = RawFields{Last: str("5,10"), Change: str("+0,05"), Percent: str("+0,05(+1,0%)")}
	nav.fields["https://quotes.test/usd-eur"] = RawFields{Last: str("0,92"), Change: str("-0,01"), Percent: str("(-1,1%)")}
	return NewSource(nav, testPairs, WithElementTimeout(time.Second))
}

func TestFetchPrice_ReusesSession(t *testing.T) {
	nav := newStubNavigator()
	src := newTestSource(nav)
	ctx := context.Background()

	_, err := src.FetchPrice(ctx, "BRL")
	require.NoError(t, err)
	_, err = src.FetchPrice(ctx, "brl")
	require.NoError(t, err)

	assert.Equal(t, 1, nav.openCount("https://quotes.test/usd-brl"))
	assert.Equal(t, 1, src.OpenSessions())
}

func TestFetchPrice_ParsesSnapshot(t *testing.T) {
	nav := newStubNavigator()
	src := newTestSource(nav)

	snap, err := src.FetchPrice(context.Background(), "BRL")
	require.NoError(t, err)

	assert.Equal(t, "USD", snap.Base)
	assert.Equal(t, "BRL", snap.ISO)
	require.NotNil(t, snap.LastPrice)
	assert.InDelta(t, 5.1, *snap.LastPrice, 1e-9)
	require.NotNil(t, snap.PriceChange)
	assert.InDelta(t, 0.05, *snap.PriceChange, 1e-9)
	require.NotNil(t, snap.PercentChange)
	assert.InDelta(t, 1.0, *snap.PercentChange, 1e-9)
}

func TestFetchPrice_LocaleDecimal(t *testing.T) {
	nav := newStubNavigator()
	src := newTestSource(nav)
	nav.fields["https://quotes.test/usd-brl"] = RawFields{Last: str("1,050")}

	snap, err := src.FetchPrice(context.Background(), "BRL")
	require.NoError(t, err)
	require.NotNil(t, snap.LastPrice)
	assert.InDelta(t, 1.05, *snap.LastPrice, 1e-9)
	assert.Nil(t, snap.PriceChange)
	assert.Nil(t, snap.PercentChange)
}

func TestResetSessions_ReopensExactlyOnce(t *testing.T) {
	nav := newStubNavigator()
	src := newTestSource(nav)
	ctx := context.Background()

	_, err := src.FetchPrice(ctx, "BRL")
	require.NoError(t, err)

	assert.Equal(t, 1, src.ResetSessions())
	assert.Equal(t, 0, src.ResetSessions())
	assert.Equal(t, 0, src.ResetSessions())
	assert.Equal(t, 0, src.OpenSessions())

	_, err = src.FetchPrice(ctx, "BRL")
	require.NoError(t, err)
	_, err = src.FetchPrice(ctx, "BRL")
	require.NoError(t, err)

	assert.Equal(t, 2, nav.openCount("https://quotes.test/usd-brl"))
	assert.Eventually(t, func() bool { return nav.closed.Load() == 1 }, time.Second, 10*time.Millisecond)
}

func TestEnsureSession_Idempotent(t *testing.T) {
	nav := newStubNavigator()
	src := newTestSource(nav)
	ctx := context.Background()

	require.NoError(t, src.EnsureSession(ctx, "EUR"))
	require.NoError(t, src.EnsureSession(ctx, "EUR"))
	assert.Equal(t, 1, nav.openCount("https://quotes.test/usd-eur"))
}

func TestFetchPrice_NavigationError(t *testing.T) {
	nav := newStubNavigator()
	src := newTestSource(nav)
	nav.openErr["https://quotes.test/usd-brl"] = errors.New("net::ERR_NAME_NOT_RESOLVED")

	_, err := src.FetchPrice(context.Background(), "BRL")
	var navErr *NavigationError
	require.True(t, errors.As(err, &navErr))
	assert.Equal(t, "https://quotes.test/usd-brl", navErr.URL)
	assert.Equal(t, 0, src.OpenSessions())
}

func TestFetchPrice_ElementTimeout(t *testing.T) {
	nav := newStubNavigator()
	src := newTestSource(nav)
	nav.waitErr["https://quotes.test/usd-brl"] = fmt.Errorf("%w: container", ErrElementTimeout)

	_, err := src.FetchPrice(context.Background(), "BRL")
	assert.ErrorIs(t, err, ErrElementTimeout)
}

func TestFetchPrice_UntrackedPair(t *testing.T) {
	src := newTestSource(newStubNavigator())

	_, err := src.FetchPrice(context.Background(), "JPY")
	assert.ErrorIs(t, err, ErrUntrackedPair)
	assert.ErrorIs(t, src.EnsureSession(context.Background(), "JPY"), ErrUntrackedPair)
}

func TestFetchAll_IsolatesFailures(t *testing.T) {
	nav := newStubNavigator()
	src := newTestSource(nav)
	nav.openErr["https://quotes.test/usd-brl"] = errors.New("timeout")

	results := src.FetchAll(context.Background(), src.Quotes())
	require.Len(t, results, 2)

	assert.Error(t, results["BRL"].Err)
	require.NoError(t, results["EUR"].Err)
	assert.Equal(t, "EUR", results["EUR"].Snapshot.ISO)
	require.NotNil(t, results["EUR"].Snapshot.LastPrice)
	assert.InDelta(t, 0.92, *results["EUR"].Snapshot.LastPrice, 1e-9)
}

func TestFetchAll_SerializesSamePair(t *testing.T) {
	nav := newStubNavigator()
	nav.delay = 20 * time.Millisecond
	src := newTestSource(nav)

	var wg sync.WaitGroup
	for range 5 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := src.FetchPrice(context.Background(), "BRL")
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), nav.maxInflight.Load())
	assert.Equal(t, 1, nav.openCount("https://quotes.test/usd-brl"))
}

func TestFetchPrice_GivesUpWaitingForBusyPair(t *testing.T) {
	nav := newStubNavigator()
	nav.delay = 500 * time.Millisecond
	src := newTestSource(nav)

	holding := make(chan error, 1)
	go func() {
		_, err := src.FetchPrice(context.Background(), "BRL")
		holding <- err
	}()
	require.Eventually(t, func() bool { return nav.inflight.Load() == 1 }, time.Second, time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	start := time.Now()
	_, err := src.FetchPrice(ctx, "BRL")

	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, time.Since(start), 300*time.Millisecond)
	assert.NoError(t, <-holding)
}

func TestEnsureSession_GivesUpWaitingForBusyPair(t *testing.T) {
	nav := newStubNavigator()
	nav.delay = 300 * time.Millisecond
	src := newTestSource(nav)

	go func() { _, _ = src.FetchPrice(context.Background(), "EUR") }()
	require.Eventually(t, func() bool { return nav.inflight.Load() == 1 }, time.Second, time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, src.EnsureSession(ctx, "EUR"), context.DeadlineExceeded)
	require.NoError(t, src.Close())
}

func TestPrewarmAndClose(t *testing.T) {
	nav := newStubNavigator()
	src := newTestSource(nav)

	require.NoError(t, src.Prewarm(context.Background()))
	assert.Equal(t, 2, src.OpenSessions())

	require.NoError(t, src.Close())
	assert.Equal(t, 0, src.OpenSessions())
	assert.Equal(t, int32(2), nav.closed.Load())
}

func TestPairsAndQuotes(t *testing.T) {
	src := newTestSource(newStubNavigator())
	assert.Equal(t, []string{"BRL", "EUR"}, src.Quotes())
	assert.Len(t, src.Pairs(), 2)
	assert.True(t, src.Tracks("eur"))
	assert.False(t, src.Tracks("JPY"))
}
