package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// WebhookMetrics records gateway webhook delivery outcomes.
type WebhookMetrics struct {
	deliveries *prometheus.CounterVec
	duration   *prometheus.HistogramVec
}

const (
	WebhookOutcomeProcessed    = "processed"
	WebhookOutcomeDuplicate    = "duplicate"
	WebhookOutcomeBadSignature = "bad_signature"
	WebhookOutcomeFailed       = "failed"
)

// NewWebhookMetrics registers webhook metrics on the provided registerer.
func NewWebhookMetrics(reg prometheus.Registerer) *WebhookMetrics {
	if reg == nil {
		return &WebhookMetrics{}
	}
	deliveries := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "tably",
		Subsystem: "gateway",
		Name:      "webhook_deliveries_total",
		Help:      "Gateway webhook deliveries by outcome.",
	}, []string{"outcome"})
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "tably",
		Subsystem: "gateway",
		Name:      "webhook_processing_seconds",
		Help:      "Time spent processing a gateway webhook delivery.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"outcome"})
	reg.MustRegister(deliveries, duration)
	return &WebhookMetrics{deliveries: deliveries, duration: duration}
}

// Observe records one delivery with its outcome and processing time.
func (w *WebhookMetrics) Observe(outcome string, duration time.Duration) {
	if w == nil || w.deliveries == nil {
		return
	}
	w.deliveries.WithLabelValues(labelOrUnknown(outcome)).Inc()
	w.duration.WithLabelValues(labelOrUnknown(outcome)).Observe(duration.Seconds())
}
