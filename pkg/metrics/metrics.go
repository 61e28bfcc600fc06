// Package metrics exposes Prometheus collectors for the funds-movement engine.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Recorder is what engine services depend on. Nop satisfies it in tests.
type Recorder interface {
	ObserveOperation(operation string, started time.Time, err error)
	WireTransition(from, to string)
	OTPVerification(result string)
}

type Collector struct {
	registry        *prometheus.Registry
	operations      *prometheus.CounterVec
	duration        *prometheus.HistogramVec
	wireTransitions *prometheus.CounterVec
	otpChecks       *prometheus.CounterVec
}

// NewCollector registers collectors on a private registry so tests can build
// several without duplicate-registration panics.
func NewCollector() *Collector {
	registry := prometheus.NewRegistry()
	factory := promauto.With(registry)

	return &Collector{
		registry: registry,
		operations: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "ledger_operations_total",
			Help: "Balance-mutating operations by name and result",
		}, []string{"operation", "result"}),
		duration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "ledger_operation_duration_seconds",
			Help:    "Time spent inside the commit boundary",
			Buckets: prometheus.DefBuckets,
		}, []string{"operation"}),
		wireTransitions: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "wire_transitions_total",
			Help: "Wire transfer status transitions applied",
		}, []string{"from", "to"}),
		otpChecks: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "otp_verifications_total",
			Help: "OTP verification attempts by result",
		}, []string{"result"}),
	}
}

func (c *Collector) ObserveOperation(operation string, started time.Time, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	c.operations.WithLabelValues(operation, result).Inc()
	c.duration.WithLabelValues(operation).Observe(time.Since(started).Seconds())
}

func (c *Collector) WireTransition(from, to string) {
	c.wireTransitions.WithLabelValues(from, to).Inc()
}

func (c *Collector) OTPVerification(result string) {
	c.otpChecks.WithLabelValues(result).Inc()
}

func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}

type nop struct{}

// Nop discards everything.
func Nop() Recorder { return nop{} }

func (nop) ObserveOperation(string, time.Time, error) {}
func (nop) WireTransition(string, string)             {}
func (nop) OTPVerification(string)                    {}
