// Package metrics provides Prometheus metrics for the interception pipeline.
package metrics

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"
)

// Flow outcomes.
const (
	OutcomeStored   = "stored"
	OutcomeBypassed = "bypassed"
	OutcomeFailed   = "failed"
)

// Metrics groups the pipeline collectors. A nil *Metrics is valid and
// records nothing.
type Metrics struct {
	// FlowsTotal counts flows by pipeline stage and outcome.
	FlowsTotal *prometheus.CounterVec
	// InterceptorFaultsTotal counts interceptor errors and panics by stage.
	InterceptorFaultsTotal *prometheus.CounterVec
	// StorageErrorsTotal counts failed capture store writes by operation.
	StorageErrorsTotal *prometheus.CounterVec
	// TransportFaultsTotal counts upstream round trips that failed.
	TransportFaultsTotal prometheus.Counter
}

// New creates the collectors and registers them with reg. A nil reg leaves
// them unregistered. Collectors already registered by another instance are
// shared.
func New(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		FlowsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "wirecap_flows_total",
				Help: "Flows seen by the interception pipeline",
			},
			[]string{"stage", "outcome"},
		),
		InterceptorFaultsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "wirecap_interceptor_faults_total",
				Help: "Interceptor errors and panics",
			},
			[]string{"stage"},
		),
		StorageErrorsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "wirecap_storage_errors_total",
				Help: "Failed capture store writes",
			},
			[]string{"op"},
		),
		TransportFaultsTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "wirecap_transport_faults_total",
				Help: "Upstream round trips that failed",
			},
		),
	}
	if reg == nil {
		return m, nil
	}

	var err error
	if m.FlowsTotal, err = register(reg, m.FlowsTotal); err != nil {
		return nil, err
	}
	if m.InterceptorFaultsTotal, err = register(reg, m.InterceptorFaultsTotal); err != nil {
		return nil, err
	}
	if m.StorageErrorsTotal, err = register(reg, m.StorageErrorsTotal); err != nil {
		return nil, err
	}
	if m.TransportFaultsTotal, err = register(reg, m.TransportFaultsTotal); err != nil {
		return nil, err
	}
	return m, nil
}

func register[C prometheus.Collector](reg prometheus.Registerer, c C) (C, error) {
	if err := reg.Register(c); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(C); ok {
				return existing, nil
			}
		}
		return c, err
	}
	return c, nil
}

// Flow records a flow outcome at a pipeline stage.
func (m *Metrics) Flow(stage, outcome string) {
	if m != nil {
		m.FlowsTotal.WithLabelValues(stage, outcome).Inc()
	}
}

// InterceptorFault records a failed interceptor call.
func (m *Metrics) InterceptorFault(stage string) {
	if m != nil {
		m.InterceptorFaultsTotal.WithLabelValues(stage).Inc()
	}
}

// StorageError records a failed store write.
func (m *Metrics) StorageError(op string) {
	if m != nil {
		m.StorageErrorsTotal.WithLabelValues(op).Inc()
	}
}

// TransportFault records a failed upstream round trip.
func (m *Metrics) TransportFault() {
	if m != nil {
		m.TransportFaultsTotal.Inc()
	}
}
