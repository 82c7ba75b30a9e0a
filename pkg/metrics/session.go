package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// SessionMetrics tracks the in-memory storefront session registry.
type SessionMetrics struct {
	active  prometheus.Gauge
	evicted *prometheus.CounterVec
}

// NewSessionMetrics registers the session metrics on the provided registerer.
func NewSessionMetrics(reg prometheus.Registerer) *SessionMetrics {
	if reg == nil {
		return &SessionMetrics{}
	}
	active := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "storefront_sessions_active",
		Help: "Storefront sessions currently held in memory.",
	})
	evicted := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "storefront_sessions_evicted_total",
		Help: "Storefront sessions dropped from memory by reason.",
	}, []string{"reason"})
	reg.MustRegister(active, evicted)
	return &SessionMetrics{active: active, evicted: evicted}
}

// SetActive publishes the current number of sessions.
func (s *SessionMetrics) SetActive(n int) {
	if s == nil || s.active == nil {
		return
	}
	s.active.Set(float64(n))
}

// IncEvicted counts sessions removed for the given reason (idle or logout).
func (s *SessionMetrics) IncEvicted(reason string, n int) {
	if s == nil || s.evicted == nil || n <= 0 {
		return
	}
	s.evicted.WithLabelValues(normalizeLabel(reason)).Add(float64(n))
}
