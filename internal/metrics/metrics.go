// Package metrics records bot activity with Prometheus. A nil *Recorder is
// valid and records nothing.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "dolarbot"

type Recorder struct {
	registry *prometheus.Registry

	fetchDuration *prometheus.HistogramVec
	fetchErrors   *prometheus.CounterVec
	lastPrice     *prometheus.GaugeVec
	batchRuns     *prometheus.CounterVec
	batchDuration *prometheus.HistogramVec
	deliveries    *prometheus.CounterVec
	reaped        prometheus.Counter
	commands      *prometheus.CounterVec
}

// New registers every collector on a fresh registry.
func New() *Recorder {
	reg := prometheus.NewRegistry()
	f := promauto.With(reg)

	return &Recorder{
		registry: reg,
		fetchDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "scraper",
				Name:      "fetch_duration_seconds",
				Help:      "Duration of a single price fetch.",
				Buckets:   prometheus.ExponentialBuckets(0.05, 2, 10),
			},
			[]string{"iso"},
		),
		fetchErrors: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "scraper",
				Name:      "fetch_errors_total",
				Help:      "Price fetches that failed.",
			},
			[]string{"iso"},
		),
		lastPrice: f.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: "scraper",
				Name:      "last_price",
				Help:      "Last scraped price per target currency.",
			},
			[]string{"iso"},
		),
		batchRuns: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "broadcast",
				Name:      "runs_total",
				Help:      "Broadcast batches by interval and outcome.",
			},
			[]string{"interval", "outcome"},
		),
		batchDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "broadcast",
				Name:      "run_duration_seconds",
				Help:      "Duration of a broadcast batch.",
				Buckets:   prometheus.ExponentialBuckets(0.5, 2, 10),
			},
			[]string{"interval"},
		),
		deliveries: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "broadcast",
				Name:      "deliveries_total",
				Help:      "Per-subscriber delivery outcomes.",
			},
			[]string{"interval", "outcome"},
		),
		reaped: f.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "broadcast",
				Name:      "reaped_subscribers_total",
				Help:      "Subscribers removed after their chat disappeared.",
			},
		),
		commands: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "bot",
				Name:      "commands_total",
				Help:      "Interactive commands handled.",
			},
			[]string{"command", "outcome"},
		),
	}
}

// Handler serves the registry in the Prometheus text format.
func (r *Recorder) Handler() http.Handler {
	if r == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{})
}

func (r *Recorder) Registry() *prometheus.Registry {
	if r == nil {
		return nil
	}
	return r.registry
}

func (r *Recorder) ObserveFetch(iso string, d time.Duration, err error) {
	if r == nil {
		return
	}
	r.fetchDuration.WithLabelValues(iso).Observe(d.Seconds())
	if err != nil {
		r.fetchErrors.WithLabelValues(iso).Inc()
	}
}

func (r *Recorder) SetLastPrice(iso string, v float64) {
	if r == nil {
		return
	}
	r.lastPrice.WithLabelValues(iso).Set(v)
}

func (r *Recorder) ObserveBatch(interval, outcome string, d time.Duration) {
	if r == nil {
		return
	}
	r.batchRuns.WithLabelValues(interval, outcome).Inc()
	r.batchDuration.WithLabelValues(interval).Observe(d.Seconds())
}

func (r *Recorder) Delivery(interval, outcome string) {
	if r == nil {
		return
	}
	r.deliveries.WithLabelValues(interval, outcome).Inc()
}

func (r *Recorder) Reaped() {
	if r == nil {
		return
	}
	r.reaped.Inc()
}

func (r *Recorder) Command(command, outcome string) {
	if r == nil {
		return
	}
	r.commands.WithLabelValues(command, outcome).Inc()
}
