package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Метрики регистрируются в глобальном registry и отдаются на /metrics.
var (
	// WorkflowRuns — завершённые runs по финальному статусу.
	WorkflowRuns = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "relay_workflow_runs_total",
		Help: "Finished workflow runs by terminal status",
	}, []string{"status"})

	// StepDuration — длительность шагов, включая retry.
	StepDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "relay_step_duration_seconds",
		Help:    "Workflow step duration by backend kind and status",
		Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
	}, []string{"backend_kind", "status"})

	// BackendCalls — отдельные вызовы backend'ов (каждая попытка retry).
	BackendCalls = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "relay_backend_calls_total",
		Help: "Backend invocations by backend kind and outcome",
	}, []string{"backend_kind", "outcome"})

	// RegistryBackends — количество backend'ов в реестре.
	RegistryBackends = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "relay_registry_backends",
		Help: "Registered backends by kind and availability",
	}, []string{"backend_kind", "availability"})

	// RegistryRefreshes — обновления реестра.
	RegistryRefreshes = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "relay_registry_refresh_total",
		Help: "Registry refresh attempts by result",
	}, []string{"result"})
)
