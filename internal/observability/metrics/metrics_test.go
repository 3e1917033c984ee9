package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
)

func TestOutreachMetricsObserve(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewOutreachMetrics(reg)
	m.ObserveRequest("POST", "/api/prospects", "201", 0.03)
	m.ObserveProspectCreated(false)
	m.ObserveProspectCreated(true)
	m.ObserveWriteFailure("prospects")
}

func TestOutreachMetricsNilSafe(t *testing.T) {
	var m *OutreachMetrics
	m.ObserveRequest("GET", "/healthz", "200", 0.001)
	m.ObserveProspectCreated(true)
	m.ObserveWriteFailure("users")
}
