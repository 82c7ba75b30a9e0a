package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// CheckoutMetrics records submission and shipping lookup outcomes.
type CheckoutMetrics struct {
	submissions *prometheus.CounterVec
	duration    *prometheus.HistogramVec
	shipping    *prometheus.CounterVec
}

// NewCheckoutMetrics registers the checkout metrics on the provided registerer.
func NewCheckoutMetrics(reg prometheus.Registerer) *CheckoutMetrics {
	if reg == nil {
		return &CheckoutMetrics{}
	}
	submissions := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "checkout_submissions_total",
		Help: "Checkout submissions by payment method and result code.",
	}, []string{"method", "code"})
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "checkout_submission_duration_seconds",
		Help:    "Duration of checkout submissions in seconds.",
		Buckets: prometheus.DefBuckets,
	}, []string{"method"})
	shipping := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "checkout_shipping_lookups_total",
		Help: "Shipping quote lookups by outcome.",
	}, []string{"outcome"})
	reg.MustRegister(submissions, duration, shipping)
	return &CheckoutMetrics{
		submissions: submissions,
		duration:    duration,
		shipping:    shipping,
	}
}

// ObserveSubmission records the outcome of one submission. An empty code means success.
func (c *CheckoutMetrics) ObserveSubmission(method, code string, elapsed time.Duration) {
	if c == nil || c.submissions == nil {
		return
	}
	if code == "" {
		code = "OK"
	}
	c.submissions.WithLabelValues(normalizeLabel(method), code).Inc()
	c.duration.WithLabelValues(normalizeLabel(method)).Observe(elapsed.Seconds())
}

// IncShippingLookup counts a shipping lookup by outcome (quoted, cleared, cancelled, failed).
func (c *CheckoutMetrics) IncShippingLookup(outcome string) {
	if c == nil || c.shipping == nil {
		return
	}
	c.shipping.WithLabelValues(normalizeLabel(outcome)).Inc()
}

func normalizeLabel(value string) string {
	if value == "" {
		return "unknown"
	}
	return value
}
