// Package cache keeps the most recent successful snapshot per currency so the
// bot and the ops API can answer without touching the browser.
package cache

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/kjannette/dolarbot/internal/models"
)

type Store interface {
	Put(ctx context.Context, s models.Snapshot) error
	Get(ctx context.Context, iso string) (models.Snapshot, bool, error)
	All(ctx context.Context) ([]models.Snapshot, error)
}

type entry struct {
	snap models.Snapshot
	exp  time.Time
}

// Memory is an in-process TTL store. A zero ttl keeps entries forever.
type Memory struct {
	mu  sync.RWMutex
	m   map[string]entry
	ttl time.Duration
	now func() time.Time
}

func NewMemory(ttl time.Duration) *Memory {
	return &Memory{m: make(map[string]entry), ttl: ttl, now: time.Now}
}

func (c *Memory) Put(_ context.Context, s models.Snapshot) error {
	var exp time.Time
	if c.ttl > 0 {
		exp = c.now().Add(c.ttl)
	}
	c.mu.Lock()
	c.m[models.NormalizeISO(s.ISO)] = entry{snap: s, exp: exp}
	c.mu.Unlock()
	return nil
}

func (c *Memory) Get(_ context.Context, iso string) (models.Snapshot, bool, error) {
	key := models.NormalizeISO(iso)
	c.mu.RLock()
	e, ok := c.m[key]
	c.mu.RUnlock()
	if !ok {
		return models.Snapshot{}, false, nil
	}
	if !c.expired(e) {
		return e.snap, true, nil
	}

	// a Put may have landed since the read lock was released
	c.mu.Lock()
	defer c.mu.Unlock()
	cur, ok := c.m[key]
	if !ok {
		return models.Snapshot{}, false, nil
	}
	if !c.expired(cur) {
		return cur.snap, true, nil
	}
	delete(c.m, key)
	return models.Snapshot{}, false, nil
}

func (c *Memory) All(_ context.Context) ([]models.Snapshot, error) {
	c.mu.RLock()
	out := make([]models.Snapshot, 0, len(c.m))
	for _, e := range c.m {
		if !c.expired(e) {
			out = append(out, e.snap)
		}
	}
	c.mu.RUnlock()
	sortByISO(out)
	return out, nil
}

func (c *Memory) expired(e entry) bool {
	return !e.exp.IsZero() && c.now().After(e.exp)
}

func sortByISO(s []models.Snapshot) {
	sort.Slice(s, func(i, j int) bool { return s[i].ISO < s[j].ISO })
}
