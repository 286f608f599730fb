package lss

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	outcomeConverged    = "converged"
	outcomeExhausted    = "exhausted"
	outcomeConfigError  = "config_error"
	outcomeBackendError = "backend_error"
)

var (
	// integrationsTotal counts integrations by routine and outcome
	integrationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "lss_integrations_total",
		Help: "Total integrations by routine and outcome",
	}, []string{"routine", "outcome"})

	// evaluationsTotal counts integrand evaluations by routine
	evaluationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "lss_integrand_evaluations_total",
		Help: "Total integrand evaluations by routine",
	}, []string{"routine"})

	// integrationDuration tracks the wall time of one integration
	integrationDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "lss_integration_duration_seconds",
		Help:    "Integration duration in seconds",
		Buckets: prometheus.ExponentialBuckets(0.0001, 4, 10), // 0.1ms to ~26s
	}, []string{"routine"})
)

func observe(r Routine, outcome string, evaluations int, elapsed time.Duration) {
	name := r.String()
	integrationsTotal.WithLabelValues(name, outcome).Inc()
	if evaluations > 0 {
		evaluationsTotal.WithLabelValues(name).Add(float64(evaluations))
	}
	integrationDuration.WithLabelValues(name).Observe(elapsed.Seconds())
}
