// Package metrics provides the Prometheus implementation of
// messaging.MetricsCollector.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/mjones3/event-governance-poc-sub000/contracts"
	"github.com/mjones3/event-governance-poc-sub000/internal/reliability"
)

const namespace = "eventgov"

// Collector exports pipeline outcome metrics to Prometheus. One increment
// per outcome transition; internal retry attempts surface only through the
// retry attempt counter.
type Collector struct {
	validationTotal    *prometheus.CounterVec
	publishesTotal     *prometheus.CounterVec
	retryAttemptsTotal *prometheus.CounterVec
	dlqRecordsTotal    *prometheus.CounterVec
	reprocessingTotal  *prometheus.CounterVec
	breakerState       *prometheus.GaugeVec
}

// NewCollector creates a collector registered on the given registerer.
// Pass prometheus.DefaultRegisterer for the process-global registry.
func NewCollector(registerer prometheus.Registerer) (*Collector, error) {
	c := &Collector{
		validationTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "schema",
				Name:      "validation_total",
				Help:      "Schema validation outcomes by subject and result.",
			},
			[]string{"subject", "result"},
		),
		publishesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "publish",
				Name:      "publishes_total",
				Help:      "Terminal publish outcomes by topic and result.",
			},
			[]string{"topic", "result"},
		),
		retryAttemptsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "publish",
				Name:      "retry_attempts_total",
				Help:      "Broker attempts consumed by publishes, per target.",
			},
			[]string{"target"},
		),
		dlqRecordsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "dlq",
				Name:      "records_total",
				Help:      "DLQ records created by module and error kind.",
			},
			[]string{"module", "error_kind"},
		),
		reprocessingTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "dlq",
				Name:      "reprocessing_total",
				Help:      "DLQ reprocessing outcomes by error kind and result.",
			},
			[]string{"error_kind", "result"},
		),
		breakerState: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: "reliability",
				Name:      "circuit_breaker_state",
				Help:      "Circuit breaker state per target (0 closed, 1 open, 2 half-open).",
			},
			[]string{"target"},
		),
	}

	collectors := []prometheus.Collector{
		c.validationTotal,
		c.publishesTotal,
		c.retryAttemptsTotal,
		c.dlqRecordsTotal,
		c.reprocessingTotal,
		c.breakerState,
	}
	for _, collector := range collectors {
		if err := registerer.Register(collector); err != nil {
			return nil, err
		}
	}
	return c, nil
}

// RecordValidation implements messaging.MetricsCollector
func (c *Collector) RecordValidation(subject string, valid bool) {
	c.validationTotal.WithLabelValues(subject, resultLabel(valid)).Inc()
}

// RecordPublish implements messaging.MetricsCollector
func (c *Collector) RecordPublish(topic string, success bool) {
	c.publishesTotal.WithLabelValues(topic, resultLabel(success)).Inc()
}

// RecordRetryAttempts implements messaging.MetricsCollector
func (c *Collector) RecordRetryAttempts(target string, attempts int) {
	if attempts <= 0 {
		return
	}
	c.retryAttemptsTotal.WithLabelValues(target).Add(float64(attempts))
}

// RecordDLQRouted implements messaging.MetricsCollector
func (c *Collector) RecordDLQRouted(module string, kind contracts.ErrorKind) {
	c.dlqRecordsTotal.WithLabelValues(module, string(kind)).Inc()
}

// RecordReprocessing implements messaging.MetricsCollector
func (c *Collector) RecordReprocessing(kind contracts.ErrorKind, success bool) {
	c.reprocessingTotal.WithLabelValues(string(kind), resultLabel(success)).Inc()
}

// RecordCircuitBreakerState implements messaging.MetricsCollector
func (c *Collector) RecordCircuitBreakerState(target string, state reliability.State) {
	c.breakerState.WithLabelValues(target).Set(float64(state))
}

// BreakerListener adapts the collector to the breaker's state change
// callback for a fixed target.
func (c *Collector) BreakerListener(target string) reliability.StateChangeListener {
	return reliability.StateChangeListenerFunc(func(from, to reliability.State, reason string) {
		c.RecordCircuitBreakerState(target, to)
	})
}

func resultLabel(ok bool) string {
	if ok {
		return "success"
	}
	return "failure"
}
