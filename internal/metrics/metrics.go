// Package metrics exposes curator counters to Prometheus and keeps a small
// health snapshot for the /health endpoint.
package metrics

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Metrics struct {
	mu sync.RWMutex

	registry      *prometheus.Registry
	decisions     *prometheus.CounterVec
	verdicts      *prometheus.CounterVec
	evicted       prometheus.Counter
	cycleDuration prometheus.Histogram

	// Status
	Published         int64
	CyclesRun         int64
	LastCycleDuration time.Duration
	LastRunTime       time.Time
	LastErrorTime     time.Time
	LastError         string
	IsHealthy         bool
}

func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		decisions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "feedcurator",
			Name:      "entries_total",
			Help:      "Feed entries by the stage that decided them and the outcome.",
		}, []string{"stage", "outcome"}),
		verdicts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "feedcurator",
			Name:      "judgments_total",
			Help:      "Judgment service answers by question kind and verdict.",
		}, []string{"kind", "verdict"}),
		evicted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "feedcurator",
			Name:      "evicted_records_total",
			Help:      "History records removed by retention.",
		}),
		cycleDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "feedcurator",
			Name:      "cycle_duration_seconds",
			Help:      "Wall time of a full pass over all feeds.",
			Buckets:   []float64{1, 5, 15, 30, 60, 120, 300, 600, 1200},
		}),
		IsHealthy: true,
	}
	m.registry.MustRegister(m.decisions, m.verdicts, m.evicted, m.cycleDuration)
	return m
}

// RecordDecision counts one finished entry.
func (m *Metrics) RecordDecision(stage, outcome string) {
	m.decisions.WithLabelValues(stage, outcome).Inc()
	if outcome == "published" {
		m.mu.Lock()
		m.Published++
		m.mu.Unlock()
	}
}

func (m *Metrics) RecordVerdict(kind, verdict string) {
	m.verdicts.WithLabelValues(kind, verdict).Inc()
}

func (m *Metrics) AddEvicted(n int64) {
	if n > 0 {
		m.evicted.Add(float64(n))
	}
}

func (m *Metrics) RecordCycle(duration time.Duration) {
	m.cycleDuration.Observe(duration.Seconds())

	m.mu.Lock()
	defer m.mu.Unlock()
	m.CyclesRun++
	m.LastCycleDuration = duration
}

func (m *Metrics) SetLastRun() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.LastRunTime = time.Now()
	m.IsHealthy = true
}

func (m *Metrics) SetError(err string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.LastError = err
	m.LastErrorTime = time.Now()
	m.IsHealthy = false
}

func (m *Metrics) GetStats() map[string]interface{} {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return map[string]interface{}{
		"published":              m.Published,
		"cycles_run":             m.CyclesRun,
		"last_cycle_duration_ms": m.LastCycleDuration.Milliseconds(),
		"last_run_time":          m.LastRunTime.Format(time.RFC3339),
		"last_error_time":        m.LastErrorTime.Format(time.RFC3339),
		"last_error":             m.LastError,
		"is_healthy":             m.IsHealthy,
	}
}

// Registry is the registry all curator collectors live in.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
