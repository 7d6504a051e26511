// Package scheduler fires reminder batches on fixed cron rules.
package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"github.com/kjannette/dolarbot/internal/broadcast"
	"github.com/kjannette/dolarbot/internal/logging"
	"github.com/kjannette/dolarbot/internal/models"
)

type Runner interface {
	Run(ctx context.Context, interval models.Interval) (*broadcast.Report, error)
}

// Rule binds an interval to a five-field cron expression.
type Rule struct {
	Interval models.Interval
	Spec     string
}

// DefaultRules: top of every hour, 06:00 daily, 12:00 on Mondays.
var DefaultRules = []Rule{
	{Interval: models.Hourly, Spec: "0 * * * *"},
	{Interval: models.Daily, Spec: "0 6 * * *"},
	{Interval: models.Weekly, Spec: "0 12 * * 1"},
}

type Config struct {
	Location  *time.Location
	RunOnInit bool
	Rules     []Rule
}

type Registry struct {
	runner Runner
	cfg    Config
	log    zerolog.Logger
	cron   *cron.Cron
	guards map[models.Interval]*sync.Mutex
	ids    map[models.Interval]cron.EntryID

	mu      sync.Mutex
	running bool
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// New registers every rule. An invalid cron expression is an error.
func New(runner Runner, cfg Config, log zerolog.Logger) (*Registry, error) {
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	if len(cfg.Rules) == 0 {
		cfg.Rules = DefaultRules
	}

	cl := logging.CronLogger{L: log}
	r := &Registry{
		runner: runner,
		cfg:    cfg,
		log:    log,
		cron: cron.New(
			cron.WithLocation(cfg.Location),
			cron.WithLogger(cl),
			cron.WithChain(cron.Recover(cl)),
		),
		guards: make(map[models.Interval]*sync.Mutex, len(cfg.Rules)),
		ids:    make(map[models.Interval]cron.EntryID, len(cfg.Rules)),
	}

	for _, rule := range cfg.Rules {
		if !rule.Interval.Valid() {
			return nil, fmt.Errorf("schedule rule: unknown interval %q", rule.Interval)
		}
		if _, dup := r.guards[rule.Interval]; dup {
			return nil, fmt.Errorf("schedule rule: duplicate interval %q", rule.Interval)
		}
		r.guards[rule.Interval] = &sync.Mutex{}

		interval := rule.Interval
		id, err := r.cron.AddFunc(rule.Spec, func() { r.fire(interval) })
		if err != nil {
			return nil, fmt.Errorf("schedule %s %q: %w", interval, rule.Spec, err)
		}
		r.ids[interval] = id
	}
	return r, nil
}

func (r *Registry) Start() {
	r.mu.Lock()
	if r.running {
		r.mu.Unlock()
		r.log.Warn().Msg("already running")
		return
	}
	r.running = true
	r.ctx, r.cancel = context.WithCancel(context.Background())
	r.mu.Unlock()

	r.cron.Start()

	if r.cfg.RunOnInit {
		for _, rule := range r.cfg.Rules {
			r.wg.Add(1)
			go func() {
				defer r.wg.Done()
				r.fire(rule.Interval)
			}()
		}
	}

	r.log.Info().
		Int("rules", len(r.cfg.Rules)).
		Str("location", r.cfg.Location.String()).
		Bool("run_on_init", r.cfg.RunOnInit).
		Msg("started")
}

// Stop cancels in-flight batches and waits for them to return.
func (r *Registry) Stop() {
	r.mu.Lock()
	if !r.running {
		r.mu.Unlock()
		return
	}
	r.running = false
	r.cancel()
	r.mu.Unlock()

	<-r.cron.Stop().Done()
	r.wg.Wait()
	r.log.Info().Msg("stopped")
}

func (r *Registry) Running() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.running
}

// NextRuns reports the next scheduled firing per interval. Times are zero
// until the registry is started.
func (r *Registry) NextRuns() map[models.Interval]time.Time {
	out := make(map[models.Interval]time.Time, len(r.ids))
	for interval, id := range r.ids {
		out[interval] = r.cron.Entry(id).Next
	}
	return out
}

// Trigger runs one batch for interval. Runs of the same interval never overlap:
// a trigger that finds one in progress waits for it to finish.
func (r *Registry) Trigger(ctx context.Context, interval models.Interval) (*broadcast.Report, error) {
	guard, ok := r.guards[interval]
	if !ok {
		return nil, fmt.Errorf("trigger: unknown interval %q", interval)
	}
	if !guard.TryLock() {
		r.log.Info().Str("interval", interval.String()).Msg("batch in progress, waiting")
		guard.Lock()
	}
	defer guard.Unlock()

	return r.runner.Run(ctx, interval)
}

func (r *Registry) fire(interval models.Interval) {
	r.mu.Lock()
	ctx := r.ctx
	r.mu.Unlock()
	if ctx == nil || ctx.Err() != nil {
		return
	}
	if _, err := r.Trigger(ctx, interval); err != nil {
		r.log.Error().Err(err).Str("interval", interval.String()).Msg("scheduled batch failed")
	}
}
