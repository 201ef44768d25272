// Package metrics defines the Prometheus collectors used by the value index
// and exposes an HTTP handler for scraping. All recording methods are safe on
// a nil *Metrics, so components can run unobserved in tests and tools.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus collectors for the value index.
type Metrics struct {
	BuildsTotal      *prometheus.CounterVec
	BuildDuration    *prometheus.HistogramVec
	RunsSpilledTotal *prometheus.CounterVec
	LookupsTotal     *prometheus.CounterVec
	LookupDuration   *prometheus.HistogramVec
	CacheHitsTotal   *prometheus.CounterVec
	CacheMissesTotal *prometheus.CounterVec
	MutationsTotal   *prometheus.CounterVec
	IndexKeys        *prometheus.GaugeVec
	UpdateBatches    *prometheus.CounterVec
}

// New creates all collectors and registers them with reg. A nil reg
// registers with the default Prometheus registry.
func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	m := &Metrics{
		BuildsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "valueindex_builds_total",
				Help: "Total index builds by index type and status (ok, failed, cancelled).",
			},
			[]string{"index", "status"},
		),
		BuildDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "valueindex_build_duration_seconds",
				Help:    "Index build latency in seconds.",
				Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 10, 30, 60, 300},
			},
			[]string{"index", "mode"},
		),
		RunsSpilledTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "valueindex_runs_spilled_total",
				Help: "Total sorted runs spilled to disk during builds.",
			},
			[]string{"index"},
		),
		LookupsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "valueindex_lookups_total",
				Help: "Total read operations by index and operation (lookup, count, numeric_range, string_range).",
			},
			[]string{"index", "op"},
		),
		LookupDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "valueindex_lookup_duration_seconds",
				Help:    "Read operation latency in seconds.",
				Buckets: []float64{0.00001, 0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1},
			},
			[]string{"index", "op"},
		),
		CacheHitsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "valueindex_cache_hits_total",
				Help: "Total lookup cache hits.",
			},
			[]string{"index"},
		),
		CacheMissesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "valueindex_cache_misses_total",
				Help: "Total lookup cache misses.",
			},
			[]string{"index"},
		),
		MutationsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "valueindex_mutations_total",
				Help: "Total index mutations by operation (insert, delete, delete_keys, replace, batch).",
			},
			[]string{"index", "op"},
		),
		IndexKeys: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "valueindex_keys",
				Help: "Number of distinct keys per index.",
			},
			[]string{"index"},
		),
		UpdateBatches: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "valueindex_update_batches_total",
				Help: "Total update feed batches by status.",
			},
			[]string{"status"},
		),
	}

	reg.MustRegister(
		m.BuildsTotal,
		m.BuildDuration,
		m.RunsSpilledTotal,
		m.LookupsTotal,
		m.LookupDuration,
		m.CacheHitsTotal,
		m.CacheMissesTotal,
		m.MutationsTotal,
		m.IndexKeys,
		m.UpdateBatches,
	)

	return m
}

func (m *Metrics) ObserveBuild(index, mode, status string, d time.Duration) {
	if m == nil {
		return
	}
	m.BuildsTotal.WithLabelValues(index, status).Inc()
	if status == "ok" {
		m.BuildDuration.WithLabelValues(index, mode).Observe(d.Seconds())
	}
}

func (m *Metrics) RunSpilled(index string) {
	if m == nil {
		return
	}
	m.RunsSpilledTotal.WithLabelValues(index).Inc()
}

func (m *Metrics) ObserveLookup(index, op string, start time.Time) {
	if m == nil {
		return
	}
	m.LookupsTotal.WithLabelValues(index, op).Inc()
	m.LookupDuration.WithLabelValues(index, op).Observe(time.Since(start).Seconds())
}

func (m *Metrics) CacheHit(index string) {
	if m == nil {
		return
	}
	m.CacheHitsTotal.WithLabelValues(index).Inc()
}

func (m *Metrics) CacheMiss(index string) {
	if m == nil {
		return
	}
	m.CacheMissesTotal.WithLabelValues(index).Inc()
}

func (m *Metrics) Mutation(index, op string) {
	if m == nil {
		return
	}
	m.MutationsTotal.WithLabelValues(index, op).Inc()
}

func (m *Metrics) SetKeys(index string, n int) {
	if m == nil {
		return
	}
	m.IndexKeys.WithLabelValues(index).Set(float64(n))
}

func (m *Metrics) UpdateBatch(status string) {
	if m == nil {
		return
	}
	m.UpdateBatches.WithLabelValues(status).Inc()
}

// Handler returns the Prometheus scrape HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}
