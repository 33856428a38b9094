package orchestrator

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	// Provisioning metrics
	provisionTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "modelgrid",
			Subsystem: "orchestrator",
			Name:      "provision_total",
			Help:      "Total number of provisioning runs by result",
		},
		[]string{"provider", "result"},
	)

	provisionDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "modelgrid",
			Subsystem: "orchestrator",
			Name:      "provision_duration_seconds",
			Help:      "Duration of provisioning runs in seconds",
			Buckets:   prometheus.ExponentialBuckets(1, 2, 12), // 1s to ~1h
		},
		[]string{"provider"},
	)

	stepRetriesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "modelgrid",
			Subsystem: "orchestrator",
			Name:      "step_retries_total",
			Help:      "Total number of retried provisioning step attempts",
		},
		[]string{"provider", "step"},
	)

	// Cleanup metrics
	cleanupFailuresTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "modelgrid",
			Subsystem: "orchestrator",
			Name:      "cleanup_failures_total",
			Help:      "Total number of resources cleanup could not delete",
		},
		[]string{"provider", "kind"},
	)

	// Deployment state metrics
	activeDeployments = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "modelgrid",
			Subsystem: "deployments",
			Name:      "active",
			Help:      "Number of deployments currently active",
		},
		[]string{"provider"},
	)

	degradedDeploymentsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "modelgrid",
			Subsystem: "deployments",
			Name:      "degraded_total",
			Help:      "Total number of deployments provisioned with a capacity fallback",
		},
		[]string{"provider"},
	)
)

func init() {
	prometheus.MustRegister(
		provisionTotal,
		provisionDuration,
		stepRetriesTotal,
		cleanupFailuresTotal,
		activeDeployments,
		degradedDeploymentsTotal,
	)
}
