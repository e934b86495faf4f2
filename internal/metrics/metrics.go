// Package metrics defines the Prometheus collectors of the bot.
//
// Labels are drawn from small closed sets (cache kind, lookup result, error
// code from errs.Code, command name) so cardinality stays bounded. A nil
// *Metrics is valid and records nothing, which keeps tests free of registries.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/daladal/discord-bot/internal/errs"
)

const namespace = "riotlink"

// Cache lookup results.
const (
	Hit   = "hit"
	Stale = "stale"
	Miss  = "miss"
)

// Metrics groups every collector. Create it with New.
type Metrics struct {
	reg prometheus.Registerer

	cacheLookups *prometheus.CounterVec
	verifies     *prometheus.CounterVec
	storeErrors  *prometheus.CounterVec
	commands     *prometheus.CounterVec
	commandDur   *prometheus.HistogramVec
}

// New builds the collectors and registers them with reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		reg: reg,
		cacheLookups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_lookups_total",
			Help:      "Cache lookups by record kind and result (hit, stale, miss).",
		}, []string{"kind", "result"}),
		verifies: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "riot_verifications_total",
			Help:      "Riot ID verifications by outcome.",
		}, []string{"outcome"}),
		storeErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "store_errors_total",
			Help:      "Failed durable store calls by operation.",
		}, []string{"op"}),
		commands: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "commands_total",
			Help:      "Handled chat commands by command and outcome.",
		}, []string{"command", "outcome"}),
		commandDur: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "command_duration_seconds",
			Help:      "Chat command handling time.",
			Buckets:   []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		}, []string{"command"}),
	}
	reg.MustRegister(m.cacheLookups, m.verifies, m.storeErrors, m.commands, m.commandDur)
	return m
}

// CacheLookup counts one cache read.
func (m *Metrics) CacheLookup(kind, result string) {
	if m == nil {
		return
	}
	m.cacheLookups.WithLabelValues(kind, result).Inc()
}

// Verification counts one verifier call by its outcome.
func (m *Metrics) Verification(err error) {
	if m == nil {
		return
	}
	m.verifies.WithLabelValues(errs.Code(err)).Inc()
}

// StoreError counts a failed store call for op.
func (m *Metrics) StoreError(op string) {
	if m == nil {
		return
	}
	m.storeErrors.WithLabelValues(op).Inc()
}

// Command records a handled command.
func (m *Metrics) Command(name string, err error, took time.Duration) {
	if m == nil {
		return
	}
	m.commands.WithLabelValues(name, errs.Code(err)).Inc()
	m.commandDur.WithLabelValues(name).Observe(took.Seconds())
}

// TrackCacheSize exports size() as the entry count of the cache of kind.
func (m *Metrics) TrackCacheSize(kind string, size func() int) {
	if m == nil {
		return
	}
	m.reg.MustRegister(prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace:   namespace,
		Name:        "cache_entries",
		Help:        "Entries currently held by a cache, fresh or stale.",
		ConstLabels: prometheus.Labels{"kind": kind},
	}, func() float64 { return float64(size()) }))
}

// TrackLimiterKeys exports size() as the number of owners with a live
// throttle bucket.
func (m *Metrics) TrackLimiterKeys(size func() int) {
	if m == nil {
		return
	}
	m.reg.MustRegister(prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "limiter_keys",
		Help:      "Owners currently tracked by the link throttle.",
	}, func() float64 { return float64(size()) }))
}
