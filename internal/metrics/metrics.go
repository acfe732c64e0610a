// Package metrics holds the Prometheus instruments shared by the
// orchestration components. Registered once at init; exposed on the admin
// mux via promhttp.
package metrics

import "github.com/prometheus/client_golang/prometheus"

var (
	// WorkerLaunchesTotal counts worker process starts by backend and
	// outcome ("ok" or "error").
	WorkerLaunchesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "smg",
			Subsystem: "workers",
			Name:      "launches_total",
			Help:      "Total worker process launches",
		},
		[]string{"backend", "outcome"},
	)

	// HealthProbesTotal counts liveness probes by protocol and outcome.
	HealthProbesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "smg",
			Subsystem: "health",
			Name:      "probes_total",
			Help:      "Total worker health probes",
		},
		[]string{"mode", "outcome"},
	)

	// StartupDuration observes how long a worker took from launch to
	// healthy.
	StartupDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "smg",
			Subsystem: "workers",
			Name:      "startup_duration_seconds",
			Help:      "Seconds from process start to first successful health probe",
			Buckets:   []float64{1, 5, 10, 30, 60, 120, 300, 600},
		},
	)

	// PoolWorkers tracks live workers in the shared pool by worker type.
	PoolWorkers = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "smg",
			Subsystem: "pool",
			Name:      "workers",
			Help:      "Workers currently registered in the shared pool",
		},
		[]string{"type"},
	)

	// PoolAcquiresTotal counts pool acquisitions by result ("hit",
	// "launch", "error").
	PoolAcquiresTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "smg",
			Subsystem: "pool",
			Name:      "acquires_total",
			Help:      "Total pool acquire operations",
		},
		[]string{"result"},
	)
)

func init() {
	prometheus.MustRegister(
		WorkerLaunchesTotal,
		HealthProbesTotal,
		StartupDuration,
		PoolWorkers,
		PoolAcquiresTotal,
	)
}
