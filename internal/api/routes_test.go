package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kjannette/dolarbot/internal/broadcast"
	"github.com/kjannette/dolarbot/internal/cache"
	"github.com/kjannette/dolarbot/internal/metrics"
	"github.com/kjannette/dolarbot/internal/models"
)

type fakeDB struct{ err error }

func (f fakeDB) Ping(context.Context) error { return f.err }

type fakeSessions struct {
	mu   sync.Mutex
	open int
}

func (f *fakeSessions) Tracks(iso string) bool { return iso == "BRL" || iso == "EUR" }

func (f *fakeSessions) OpenSessions() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.open
}

func (f *fakeSessions) ResetSessions() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := f.open
	f.open = 0
	return n
}

type fakeScheduler struct {
	mu        sync.Mutex
	triggered []models.Interval
	done      chan struct{}
}

func (f *fakeScheduler) Trigger(_ context.Context, interval models.Interval) (*broadcast.Report, error) {
	f.mu.Lock()
	f.triggered = append(f.triggered, interval)
	f.mu.Unlock()
	if f.done != nil {
		close(f.done)
	}
	return &broadcast.Report{ID: "b1", Interval: interval}, nil
}

func (f *fakeScheduler) NextRuns() map[models.Interval]time.Time {
	return map[models.Interval]time.Time{models.Hourly: time.Date(2026, 1, 5, 13, 0, 0, 0, time.UTC)}
}

func (f *fakeScheduler) Running() bool { return true }

type fakeCounter struct{}

func (fakeCounter) Count(context.Context) (int64, error) { return 7, nil }

func newTestServer(t *testing.T, db Pinger) (*Server, *cache.Memory, *fakeScheduler) {
	t.Helper()
	snaps := cache.NewMemory(0)
	sched := &fakeScheduler{done: make(chan struct{})}
	s := NewServer(Deps{
		DB:          db,
		Sessions:    &fakeSessions{open: 2},
		Snapshots:   snaps,
		Scheduler:   sched,
		Subscribers: fakeCounter{},
		Metrics:     metrics.New().Handler(),
		Log:         zerolog.Nop(),
	}, 0, "secret123", "*")
	t.Cleanup(func() { s.Shutdown(context.Background()) })
	return s, snaps, sched
}

func serve(s *Server, method, path string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, nil)
	req.Header.Set("Authorization", "Bearer secret123")
	rr := httptest.NewRecorder()
	s.httpServer.Handler.ServeHTTP(rr, req)
	return rr
}

func TestHealth(t *testing.T) {
	s, _, _ := newTestServer(t, fakeDB{})
	rr := serve(s, http.MethodGet, "/health")
	require.Equal(t, http.StatusOK, rr.Code)

	var body healthResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	assert.Equal(t, "ok", body.Status)
	assert.Equal(t, "connected", body.Services.Database)
	assert.Equal(t, "running", body.Services.Scheduler)
	assert.Equal(t, 2, body.Services.OpenSessions)
	require.NotNil(t, body.Services.Subscribers)
	assert.Equal(t, int64(7), *body.Services.Subscribers)
	assert.Equal(t, "2026-01-05T13:00:00Z", body.NextRuns["hourly"])
}

func TestHealth_DatabaseDown(t *testing.T) {
	s, _, _ := newTestServer(t, fakeDB{err: errors.New("refused")})
	rr := serve(s, http.MethodGet, "/health")
	require.Equal(t, http.StatusOK, rr.Code)

	var body healthResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	assert.Equal(t, "degraded", body.Status)
	assert.Equal(t, "disconnected", body.Services.Database)
	assert.Nil(t, body.Services.Subscribers)
}

func TestPrices(t *testing.T) {
	s, snaps, _ := newTestServer(t, fakeDB{})
	require.NoError(t, snaps.Put(context.Background(), models.Snapshot{Base: "USD", ISO: "BRL", LastPrice: models.Float(5.1)}))

	rr := serve(s, http.MethodGet, "/v1/prices/latest")
	require.Equal(t, http.StatusOK, rr.Code)
	var all []models.Snapshot
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &all))
	require.Len(t, all, 1)
	assert.Equal(t, 5.1, *all[0].LastPrice)

	rr = serve(s, http.MethodGet, "/v1/prices/brl")
	require.Equal(t, http.StatusOK, rr.Code)

	assert.Equal(t, http.StatusNotFound, serve(s, http.MethodGet, "/v1/prices/EUR").Code)
	assert.Equal(t, http.StatusNotFound, serve(s, http.MethodGet, "/v1/prices/JPY").Code)
	assert.Equal(t, http.StatusBadRequest, serve(s, http.MethodGet, "/v1/prices/usd-brl").Code)
}

func TestTriggerBroadcast(t *testing.T) {
	s, _, sched := newTestServer(t, fakeDB{})

	assert.Equal(t, http.StatusBadRequest, serve(s, http.MethodPost, "/v1/broadcasts/monthly").Code)

	rr := serve(s, http.MethodPost, "/v1/broadcasts/Daily")
	require.Equal(t, http.StatusAccepted, rr.Code)

	select {
	case <-sched.done:
	case <-time.After(2 * time.Second):
		t.Fatal("batch was not triggered")
	}
	sched.mu.Lock()
	defer sched.mu.Unlock()
	assert.Equal(t, []models.Interval{models.Daily}, sched.triggered)
}

func TestMetricsRoute(t *testing.T) {
	s, _, _ := newTestServer(t, fakeDB{})
	assert.Equal(t, http.StatusOK, serve(s, http.MethodGet, "/metrics").Code)

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rr := httptest.NewRecorder()
	s.httpServer.Handler.ServeHTTP(rr, req)
	assert.Equal(t, http.StatusUnauthorized, rr.Code)
}

func TestResetSessions(t *testing.T) {
	s, _, _ := newTestServer(t, fakeDB{})
	require.Equal(t, 2, s.sessions.OpenSessions())

	rr := serve(s, http.MethodPost, "/v1/sessions/reset")
	require.Equal(t, http.StatusAccepted, rr.Code)

	var body resetResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	assert.Equal(t, 2, body.Discarded)
	assert.Equal(t, 0, s.sessions.OpenSessions())

	req := httptest.NewRequest(http.MethodPost, "/v1/sessions/reset", nil)
	unauth := httptest.NewRecorder()
	s.httpServer.Handler.ServeHTTP(unauth, req)
	assert.Equal(t, http.StatusUnauthorized, unauth.Code)
}
