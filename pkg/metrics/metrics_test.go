package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_RegistersCollectors(t *testing.T) {
	reg := prometheus.NewRegistry()
	m, err := New(reg)
	require.NoError(t, err)

	m.Flow("request", OutcomeStored)
	m.InterceptorFault("response")
	m.StorageError("save_request")
	m.TransportFault()

	families, err := reg.Gather()
	require.NoError(t, err)
	names := make(map[string]bool)
	for _, mf := range families {
		names[mf.GetName()] = true
	}
	for _, want := range []string{
		"wirecap_flows_total",
		"wirecap_interceptor_faults_total",
		"wirecap_storage_errors_total",
		"wirecap_transport_faults_total",
	} {
		assert.True(t, names[want], "missing %s", want)
	}
}

func TestNew_SharesAlreadyRegistered(t *testing.T) {
	reg := prometheus.NewRegistry()
	first, err := New(reg)
	require.NoError(t, err)
	second, err := New(reg)
	require.NoError(t, err)

	second.Flow("request", OutcomeBypassed)
	assert.Equal(t, 1.0, testutil.ToFloat64(first.FlowsTotal.WithLabelValues("request", OutcomeBypassed)))
}

func TestNilMetrics(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.Flow("request", OutcomeStored)
		m.InterceptorFault("request")
		m.StorageError("save_request")
		m.TransportFault()
	})
}

func TestNew_Unregistered(t *testing.T) {
	m, err := New(nil)
	require.NoError(t, err)
	m.TransportFault()
	assert.Equal(t, 1.0, testutil.ToFloat64(m.TransportFaultsTotal))
}
