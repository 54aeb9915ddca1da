package work

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds prometheus collectors for work generation. A nil *Metrics is
// valid and records nothing.
type Metrics struct {
	requests     *prometheus.CounterVec
	duration     *prometheus.HistogramVec
	queueDepth   *prometheus.GaugeVec
	cacheLookups *prometheus.CounterVec
}

// NewMetrics creates the collectors and registers them with reg. If reg is
// nil the collectors are created but not registered.
func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "nanowork",
			Name:      "requests_total",
			Help:      "Work requests by backend and outcome.",
		}, []string{"backend", "outcome"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "nanowork",
			Name:      "generation_seconds",
			Help:      "Time spent searching for work, by backend.",
			Buckets:   prometheus.ExponentialBuckets(0.01, 2, 14),
		}, []string{"backend"}),
		queueDepth: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "nanowork",
			Name:      "queue_depth",
			Help:      "Requests waiting in a generator queue.",
		}, []string{"backend"}),
		cacheLookups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "nanowork",
			Name:      "cache_lookups_total",
			Help:      "Work cache lookups by result.",
		}, []string{"result"}),
	}
	if reg != nil {
		for _, c := range []prometheus.Collector{m.requests, m.duration, m.queueDepth, m.cacheLookups} {
			if err := reg.Register(c); err != nil {
				return nil, err
			}
		}
	}
	return m, nil
}

func (m *Metrics) observeRequest(backend string, state State, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.requests.WithLabelValues(backend, state.String()).Inc()
	if state == StateCompleted {
		m.duration.WithLabelValues(backend).Observe(elapsed.Seconds())
	}
}

func (m *Metrics) setQueueDepth(backend string, depth int) {
	if m == nil {
		return
	}
	m.queueDepth.WithLabelValues(backend).Set(float64(depth))
}

func (m *Metrics) observeCacheLookup(hit bool) {
	if m == nil {
		return
	}
	result := "miss"
	if hit {
		result = "hit"
	}
	m.cacheLookups.WithLabelValues(result).Inc()
}
