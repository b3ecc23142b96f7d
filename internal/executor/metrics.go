package executor

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// ExecutionsTotal counts terminal execution records by status.
	ExecutionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "arbbot_executions_total",
			Help: "Total number of reconciled opportunities by outcome",
		},
		[]string{"status"},
	)

	// RealizedProfit tracks the recomputed guaranteed profit per execution.
	RealizedProfit = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "arbbot_execution_profit",
		Help:    "Guaranteed profit of executed opportunities",
		Buckets: []float64{-100, -50, -20, -5, 0, 1, 2, 5, 10, 20},
	})

	// InFlightReconciliations is the number of reconciliations currently waiting or running.
	InFlightReconciliations = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "arbbot_reconciliations_in_flight",
		Help: "Number of reconciliations in progress",
	})

	// TaskFailuresTotal counts reconciliations that returned an error or panicked.
	TaskFailuresTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "arbbot_reconciliation_failures_total",
			Help: "Total number of reconciliation tasks that failed",
		},
		[]string{"reason"},
	)

	// DuplicatesTotal counts re-delivered opportunities skipped by the executor.
	DuplicatesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "arbbot_duplicate_opportunities_total",
		Help: "Total number of duplicate opportunities ignored",
	})
)
