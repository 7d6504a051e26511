// Package broadcast runs one reminder batch: fetch every tracked price once,
// then deliver to each subscriber of the interval.
package broadcast

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/kjannette/dolarbot/internal/cache"
	"github.com/kjannette/dolarbot/internal/message"
	"github.com/kjannette/dolarbot/internal/metrics"
	"github.com/kjannette/dolarbot/internal/models"
	"github.com/kjannette/dolarbot/internal/notifications"
	"github.com/kjannette/dolarbot/internal/scraper"
)

const defaultConcurrency = 8

type PriceFetcher interface {
	Quotes() []string
	FetchAll(ctx context.Context, isos []string) map[string]scraper.FetchResult
}

type Directory interface {
	ListByInterval(ctx context.Context, interval models.Interval) ([]models.Subscriber, error)
	MarkReminded(ctx context.Context, chatID int64, at time.Time) error
}

type Sender interface {
	Send(ctx context.Context, chatID int64, text string) error
}

type Alerter interface {
	Alert(ctx context.Context, msg string)
}

// Deps wires a Batch. Cache, Alerts and Metrics are optional.
type Deps struct {
	Prices      PriceFetcher
	Directory   Directory
	Sender      Sender
	Reaper      *Reaper
	Cache       cache.Store
	Alerts      Alerter
	Metrics     *metrics.Recorder
	Log         zerolog.Logger
	Concurrency int
}

type Batch struct {
	prices      PriceFetcher
	dir         Directory
	sender      Sender
	reaper      *Reaper
	cache       cache.Store
	alerts      Alerter
	metrics     *metrics.Recorder
	log         zerolog.Logger
	concurrency int
	now         func() time.Time
}

func NewBatch(d Deps) *Batch {
	if d.Concurrency <= 0 {
		d.Concurrency = defaultConcurrency
	}
	return &Batch{
		prices:      d.Prices,
		dir:         d.Directory,
		sender:      d.Sender,
		reaper:      d.Reaper,
		cache:       d.Cache,
		alerts:      d.Alerts,
		metrics:     d.Metrics,
		log:         d.Log,
		concurrency: d.Concurrency,
		now:         time.Now,
	}
}

// Report summarizes one batch run.
type Report struct {
	ID           string          `json:"id"`
	Interval     models.Interval `json:"interval"`
	PairsFetched int             `json:"pairsFetched"`
	PairsFailed  int             `json:"pairsFailed"`
	FailedPairs  []string        `json:"failedPairs,omitempty"`
	Subscribers  int             `json:"subscribers"`
	Delivered    int             `json:"delivered"`
	Skipped      int             `json:"skipped"`
	Failed       int             `json:"failed"`
	Reaped       int             `json:"reaped"`
	Duration     time.Duration   `json:"duration"`

	mu sync.Mutex
}

func (r *Report) add(field *int) {
	r.mu.Lock()
	*field++
	r.mu.Unlock()
}

func (r *Report) outcome() string {
	if r.PairsFailed > 0 || r.Failed > 0 {
		return "partial"
	}
	return "ok"
}

// Run executes one batch for interval. Only a failure to list subscribers is
// returned; per-pair and per-subscriber failures are recorded in the report.
func (b *Batch) Run(ctx context.Context, interval models.Interval) (*Report, error) {
	if !interval.Valid() {
		return nil, fmt.Errorf("run batch: unknown interval %q", interval)
	}

	start := b.now()
	rep := &Report{ID: uuid.NewString(), Interval: interval}
	log := b.log.With().Str("batch", rep.ID).Str("interval", interval.String()).Logger()
	log.Info().Msg("batch started")

	snaps := b.fetch(ctx, log, rep)

	subs, err := b.dir.ListByInterval(ctx, interval)
	if err != nil {
		rep.Duration = b.now().Sub(start)
		b.metrics.ObserveBatch(interval.String(), "error", rep.Duration)
		log.Error().Err(err).Msg("batch aborted")
		return rep, fmt.Errorf("run %s batch: %w", interval, err)
	}
	rep.Subscribers = len(subs)

	var g errgroup.Group
	g.SetLimit(b.concurrency)
	for _, sub := range subs {
		g.Go(func() error {
			b.deliver(ctx, log, interval, sub, snaps, rep)
			return nil
		})
	}
	_ = g.Wait()

	rep.Duration = b.now().Sub(start)
	b.metrics.ObserveBatch(interval.String(), rep.outcome(), rep.Duration)
	log.Info().
		Int("pairs_fetched", rep.PairsFetched).
		Int("pairs_failed", rep.PairsFailed).
		Int("subscribers", rep.Subscribers).
		Int("delivered", rep.Delivered).
		Int("skipped", rep.Skipped).
		Int("failed", rep.Failed).
		Int("reaped", rep.Reaped).
		Dur("duration", rep.Duration).
		Msg("batch finished")

	b.alert(ctx, rep)
	return rep, nil
}

// fetch reads every tracked pair and joins before returning. Failed pairs are
// left out of the returned map.
func (b *Batch) fetch(ctx context.Context, log zerolog.Logger, rep *Report) map[string]models.Snapshot {
	results := b.prices.FetchAll(ctx, b.prices.Quotes())

	snaps := make(map[string]models.Snapshot, len(results))
	for iso, res := range results {
		if res.Err != nil {
			rep.PairsFailed++
			rep.FailedPairs = append(rep.FailedPairs, iso)
			log.Error().Err(res.Err).Str("iso", iso).Msg("price fetch failed")
			continue
		}
		rep.PairsFetched++
		snaps[iso] = res.Snapshot

		if b.cache != nil {
			if err := b.cache.Put(ctx, res.Snapshot); err != nil {
				log.Warn().Err(err).Str("iso", iso).Msg("cache snapshot")
			}
		}
	}
	sort.Strings(rep.FailedPairs)
	return snaps
}

func (b *Batch) deliver(ctx context.Context, log zerolog.Logger, interval models.Interval, sub models.Subscriber, snaps map[string]models.Snapshot, rep *Report) {
	log = log.With().Int64("chat_id", sub.ChatID).Logger()
	defer func() {
		if r := recover(); r != nil {
			rep.add(&rep.Failed)
			b.metrics.Delivery(interval.String(), "failed")
			log.Error().Interface("panic", r).Msg("delivery panicked")
		}
	}()

	if sub.Reminder == nil {
		rep.add(&rep.Skipped)
		return
	}
	iso := models.NormalizeISO(sub.Reminder.Currency)
	snap, ok := snaps[iso]
	if !ok {
		rep.add(&rep.Skipped)
		b.metrics.Delivery(interval.String(), "skipped")
		log.Debug().Str("iso", iso).Msg("no snapshot for currency, skipping")
		return
	}

	err := b.sender.Send(ctx, sub.ChatID, message.Render(snap))
	switch {
	case err == nil:
		rep.add(&rep.Delivered)
		b.metrics.Delivery(interval.String(), "delivered")
		if err := b.dir.MarkReminded(ctx, sub.ChatID, b.now()); err != nil {
			log.Warn().Err(err).Msg("stamp latest remind")
		}
	case notifications.IsChatGone(err):
		if err := b.reaper.Reap(ctx, sub.ChatID); err != nil {
			rep.add(&rep.Failed)
			b.metrics.Delivery(interval.String(), "failed")
			log.Error().Err(err).Msg("reap failed")
			return
		}
		rep.add(&rep.Reaped)
		b.metrics.Delivery(interval.String(), "reaped")
	default:
		rep.add(&rep.Failed)
		b.metrics.Delivery(interval.String(), "failed")
		log.Warn().Err(err).Msg("delivery failed")
	}
}

func (b *Batch) alert(ctx context.Context, rep *Report) {
	if b.alerts == nil || (rep.PairsFailed == 0 && rep.Reaped == 0) {
		return
	}
	var parts []string
	if rep.PairsFailed > 0 {
		parts = append(parts, fmt.Sprintf("%d of %d pairs failed (%s)",
			rep.PairsFailed, rep.PairsFailed+rep.PairsFetched, strings.Join(rep.FailedPairs, ", ")))
	}
	if rep.Reaped > 0 {
		parts = append(parts, fmt.Sprintf("%d subscribers reaped", rep.Reaped))
	}
	b.alerts.Alert(ctx, fmt.Sprintf("%s batch %s: %s", rep.Interval, rep.ID, strings.Join(parts, "; ")))
}
