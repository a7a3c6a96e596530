package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds Prometheus instruments for verification and key refresh.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	Verifications    *prometheus.CounterVec
	KeyFetches       *prometheus.CounterVec
	KeyFetchDuration prometheus.Histogram
	CachedKeys       prometheus.Gauge
}

// NewMetrics creates the instruments and registers them with reg.
// Pass prometheus.DefaultRegisterer to expose them on the default handler.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Verifications: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "hookverify_verifications_total",
			Help: "Webhook verification attempts by outcome reason.",
		}, []string{"reason"}),
		KeyFetches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "hookverify_key_fetches_total",
			Help: "Key-distribution endpoint fetches by result.",
		}, []string{"result"}),
		KeyFetchDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "hookverify_key_fetch_duration_seconds",
			Help:    "Latency of key-distribution endpoint fetches.",
			Buckets: prometheus.DefBuckets,
		}),
		CachedKeys: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "hookverify_cached_keys",
			Help: "Number of public keys in the current cache snapshot.",
		}),
	}
	if reg != nil {
		reg.MustRegister(m.Verifications, m.KeyFetches, m.KeyFetchDuration, m.CachedKeys)
	}
	return m
}

// RecordVerification counts one verification attempt.
func (m *Metrics) RecordVerification(reason string) {
	if m == nil {
		return
	}
	m.Verifications.WithLabelValues(reason).Inc()
}

// RecordKeyFetch records a fetch attempt. keys is the size of the new
// snapshot and is ignored when err is non-nil.
func (m *Metrics) RecordKeyFetch(err error, latencySeconds float64, keys int) {
	if m == nil {
		return
	}
	m.KeyFetchDuration.Observe(latencySeconds)
	if err != nil {
		m.KeyFetches.WithLabelValues("error").Inc()
		return
	}
	m.KeyFetches.WithLabelValues("ok").Inc()
	m.CachedKeys.Set(float64(keys))
}
