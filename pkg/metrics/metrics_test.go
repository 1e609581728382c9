package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewWithRegistryRegistersCollectors(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewWithRegistry(reg, "triage", "test")

	m.EventsPublished.WithLabelValues("PATIENT_REGISTERED").Inc()
	m.GatewayConnections.Set(3)

	assert.Equal(t, float64(1), testutil.ToFloat64(m.EventsPublished.WithLabelValues("PATIENT_REGISTERED")))
	assert.Equal(t, float64(3), testutil.ToFloat64(m.GatewayConnections))

	families, err := reg.Gather()
	require.NoError(t, err)
	names := make([]string, 0, len(families))
	for _, f := range families {
		names = append(names, f.GetName())
	}
	assert.Contains(t, names, "triage_test_domain_events_published_total")
	assert.Contains(t, names, "triage_test_gateway_connections")
}

func TestNewNopIsIsolated(t *testing.T) {
	assert.NotPanics(t, func() {
		NewNop()
		NewNop()
	})
}
