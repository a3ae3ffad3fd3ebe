package observability

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/skillminer/memoryd/internal/ltm"
	"github.com/skillminer/memoryd/internal/memory"
	"github.com/skillminer/memoryd/internal/stm"
)

// Namespace prefixes every metric name.
const Namespace = "memoryd"

// ServiceMetrics is the service under which *Metrics is published.
const ServiceMetrics = "memory.metrics"

// Metrics groups all Prometheus instruments used by the service.
// It doubles as a memory.Observer and as the stm and ltm recorders.
type Metrics struct {
	registry *prometheus.Registry

	ActiveSessions   prometheus.Gauge
	Compactions      *prometheus.CounterVec
	FoldedTurns      prometheus.Counter
	ExpiredSessions  prometheus.Counter
	RecordsStored    *prometheus.CounterVec
	Retrievals       *prometheus.CounterVec
	RetrievalLatency prometheus.Histogram
	DegradedEvents   *prometheus.CounterVec
}

// Interface guards.
var (
	_ memory.Observer = (*Metrics)(nil)
	_ stm.Recorder    = (*Metrics)(nil)
	_ ltm.Recorder    = (*Metrics)(nil)
)

// NewMetrics registers every instrument on a fresh registry that also
// carries the Go runtime and process collectors.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	f := promauto.With(reg)
	return &Metrics{
		registry: reg,
		ActiveSessions: f.NewGauge(prometheus.GaugeOpts{
			Namespace: Namespace,
			Name:      "stm_active_sessions",
			Help:      "Number of live short-term memory sessions.",
		}),
		Compactions: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "stm_compactions_total",
			Help:      "Compaction attempts by result.",
		}, []string{"result"}),
		FoldedTurns: f.NewCounter(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "stm_folded_turns_total",
			Help:      "Raw turns folded into rolling summaries.",
		}),
		ExpiredSessions: f.NewCounter(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "stm_sessions_expired_total",
			Help:      "Sessions removed after their idle TTL.",
		}),
		RecordsStored: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "ltm_records_stored_total",
			Help:      "Long-term records persisted, by whether they carry an embedding.",
		}, []string{"embedded"}),
		Retrievals: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "ltm_retrievals_total",
			Help:      "Similarity retrievals by strategy.",
		}, []string{"strategy"}),
		RetrievalLatency: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: Namespace,
			Name:      "ltm_retrieval_seconds",
			Help:      "Similarity retrieval latency including the query embedding.",
			Buckets:   []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5},
		}),
		DegradedEvents: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "degraded_events_total",
			Help:      "Dependency failures absorbed by the memory subsystem, by operation.",
		}, []string{"op"}),
	}
}

// Registry returns the registry holding the instruments.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// Degraded implements memory.Observer.
func (m *Metrics) Degraded(_ context.Context, ev memory.DegradedEvent) {
	m.DegradedEvents.WithLabelValues(string(ev.Op)).Inc()
}

// Compaction implements stm.Recorder.
func (m *Metrics) Compaction(ok bool, folded int) {
	result := "ok"
	if !ok {
		result = "failed"
	}
	m.Compactions.WithLabelValues(result).Inc()
	m.FoldedTurns.Add(float64(folded))
}

// Expired implements stm.Recorder.
func (m *Metrics) Expired(n int) { m.ExpiredSessions.Add(float64(n)) }

// Active implements stm.Recorder.
func (m *Metrics) Active(n int) { m.ActiveSessions.Set(float64(n)) }

// Stored implements ltm.Recorder.
func (m *Metrics) Stored(embedded bool) {
	m.RecordsStored.WithLabelValues(strconv.FormatBool(embedded)).Inc()
}

// Retrieved implements ltm.Recorder.
func (m *Metrics) Retrieved(strategy string, elapsed time.Duration) {
	m.Retrievals.WithLabelValues(strategy).Inc()
	m.RetrievalLatency.Observe(elapsed.Seconds())
}
