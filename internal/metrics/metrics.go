package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// TaskTransitions counts successful task status transitions by edge.
	TaskTransitions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "engine_task_transitions_total",
		Help: "Task lifecycle transitions by from/to status.",
	}, []string{"from", "to"})

	// SettlementsTotal counts completed escrow release + paid settlements.
	SettlementsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "engine_settlements_total",
		Help: "Completed settlements (escrow released, task paid).",
	})

	// SettlementFailures counts settlement attempts that were surfaced for
	// retry or reconciliation.
	SettlementFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "engine_settlement_failures_total",
		Help: "Settlement attempts that failed and await retry.",
	})

	// ReconcileRepairs counts mismatches repaired by the reconciliation sweep.
	ReconcileRepairs = promauto.NewCounter(prometheus.CounterOpts{
		Name: "engine_reconcile_repairs_total",
		Help: "Released-but-unpaid mismatches repaired by reconciliation.",
	})
)

// Handler serves the Prometheus scrape endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}
