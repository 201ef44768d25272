package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestRecording(t *testing.T) {
	m := New(prometheus.NewRegistry())

	m.ObserveBuild("text", "merge", "ok", 2*time.Second)
	m.ObserveBuild("text", "single", "failed", time.Second)
	m.RunSpilled("text")
	m.RunSpilled("text")
	m.CacheHit("text")
	m.CacheMiss("attribute")
	m.Mutation("text", "insert")
	m.SetKeys("text", 42)
	m.UpdateBatch("ok")
	m.ObserveLookup("text", "lookup", time.Now())

	assert.Equal(t, 1.0, testutil.ToFloat64(m.BuildsTotal.WithLabelValues("text", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.BuildsTotal.WithLabelValues("text", "failed")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.RunsSpilledTotal.WithLabelValues("text")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.CacheHitsTotal.WithLabelValues("text")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.CacheMissesTotal.WithLabelValues("attribute")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.MutationsTotal.WithLabelValues("text", "insert")))
	assert.Equal(t, 42.0, testutil.ToFloat64(m.IndexKeys.WithLabelValues("text")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.LookupsTotal.WithLabelValues("text", "lookup")))
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.ObserveBuild("text", "single", "ok", time.Second)
		m.RunSpilled("text")
		m.CacheHit("text")
		m.CacheMiss("text")
		m.Mutation("text", "delete")
		m.SetKeys("text", 1)
		m.UpdateBatch("failed")
		m.ObserveLookup("text", "count", time.Now())
	})
}
