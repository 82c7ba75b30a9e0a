package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// CartMetrics records guest-to-server cart migration outcomes.
type CartMetrics struct {
	migrations *prometheus.CounterVec
	items      *prometheus.CounterVec
	degraded   prometheus.Counter
}

// NewCartMetrics registers the cart metrics on the provided registerer.
func NewCartMetrics(reg prometheus.Registerer) *CartMetrics {
	if reg == nil {
		return &CartMetrics{}
	}
	migrations := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "cart_migrations_total",
		Help: "Guest cart migrations by result.",
	}, []string{"result"})
	items := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "cart_migration_items_total",
		Help: "Guest cart items replayed against the server cart.",
	}, []string{"outcome"})
	degraded := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "cart_guest_preview_degraded_total",
		Help: "Guest cart reads served without price enrichment.",
	})
	reg.MustRegister(migrations, items, degraded)
	return &CartMetrics{
		migrations: migrations,
		items:      items,
		degraded:   degraded,
	}
}

// ObserveMigration records one migration with its per-item outcome counts.
func (c *CartMetrics) ObserveMigration(succeeded, failed int) {
	if c == nil || c.migrations == nil {
		return
	}
	result := "complete"
	if failed > 0 {
		result = "partial"
	}
	c.migrations.WithLabelValues(result).Inc()
	c.items.WithLabelValues("succeeded").Add(float64(succeeded))
	c.items.WithLabelValues("failed").Add(float64(failed))
}

// IncDegradedPreview counts a guest read that fell back to ids and quantities.
func (c *CartMetrics) IncDegradedPreview() {
	if c == nil || c.degraded == nil {
		return
	}
	c.degraded.Inc()
}
