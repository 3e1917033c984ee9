package metrics

import "github.com/prometheus/client_golang/prometheus"

// OutreachMetrics exposes counters/histograms for outreach flows.
type OutreachMetrics struct {
	requestsTotal   *prometheus.CounterVec
	requestLatency  *prometheus.HistogramVec
	prospectsTotal  *prometheus.CounterVec
	aiFallbackTotal prometheus.Counter
	writeFailures   *prometheus.CounterVec
}

func NewOutreachMetrics(reg prometheus.Registerer) *OutreachMetrics {
	m := &OutreachMetrics{
		requestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "outreach",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total HTTP requests served",
		}, []string{"method", "path", "status"}),
		requestLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "outreach",
			Subsystem: "http",
			Name:      "request_latency_seconds",
			Help:      "Latency of HTTP request handling",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "path"}),
		prospectsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "outreach",
			Subsystem: "prospects",
			Name:      "created_total",
			Help:      "Total prospects created",
		}, []string{"analysis"}),
		aiFallbackTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "outreach",
			Subsystem: "aireview",
			Name:      "fallback_total",
			Help:      "Total AI assessments replaced by the default review",
		}),
		writeFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "outreach",
			Subsystem: "store",
			Name:      "write_failures_total",
			Help:      "Total persistence write failures",
		}, []string{"collection"}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(m.requestsTotal, m.requestLatency, m.prospectsTotal, m.aiFallbackTotal, m.writeFailures)
	return m
}

func (m *OutreachMetrics) ObserveRequest(method, path, status string, seconds float64) {
	if m == nil {
		return
	}
	m.requestsTotal.WithLabelValues(method, path, status).Inc()
	m.requestLatency.WithLabelValues(method, path).Observe(seconds)
}

func (m *OutreachMetrics) ObserveProspectCreated(degraded bool) {
	if m == nil {
		return
	}
	label := "ok"
	if degraded {
		label = "degraded"
		m.aiFallbackTotal.Inc()
	}
	m.prospectsTotal.WithLabelValues(label).Inc()
}

func (m *OutreachMetrics) ObserveWriteFailure(collection string) {
	if m == nil {
		return
	}
	m.writeFailures.WithLabelValues(collection).Inc()
}
