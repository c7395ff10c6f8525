package probe

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"
)

type metrics struct {
	attempts *prometheus.CounterVec
	duration *prometheus.HistogramVec
}

func newMetrics(reg prometheus.Registerer) *metrics {
	m := &metrics{
		attempts: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "probe_attempts_total",
				Help: "Connection probes by method type and result.",
			},
			[]string{"method_type", "result"},
		),
		duration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "probe_duration_seconds",
				Help:    "Connection probe duration in seconds.",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method_type"},
		),
	}
	if reg == nil {
		return m
	}
	m.attempts = register(reg, m.attempts)
	m.duration = register(reg, m.duration)
	return m
}

// register adds c to reg, reusing an identical collector that a previous
// Prober already registered.
func register[C prometheus.Collector](reg prometheus.Registerer, c C) C {
	if err := reg.Register(c); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(C); ok {
				return existing
			}
		}
	}
	return c
}

func (m *metrics) observe(methodType string, ok bool, seconds float64) {
	result := "failure"
	if ok {
		result = "success"
	}
	m.attempts.WithLabelValues(methodType, result).Inc()
	m.duration.WithLabelValues(methodType).Observe(seconds)
}
