package monitoring

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Prometheus collectors for the inventory core. Exposed on the dedicated
// metrics server in cmd/main.go.
var (
	// ConsumptionsTotal counts ConsumeForOrder outcomes by result label
	// (ok, insufficient_stock, conflict, error).
	ConsumptionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "brasserie_consumptions_total",
		Help: "Order consumption attempts by outcome",
	}, []string{"outcome"})

	// ConsumptionCost observes the ingredient cost of fulfilled orders.
	ConsumptionCost = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "brasserie_consumption_cost",
		Help:    "Ingredient cost per fulfilled order",
		Buckets: prometheus.ExponentialBuckets(0.5, 2, 10),
	})

	// AvailabilityFlips counts menu items whose availability flag changed.
	AvailabilityFlips = promauto.NewCounter(prometheus.CounterOpts{
		Name: "brasserie_availability_flips_total",
		Help: "Menu item availability flag changes",
	})

	// ReconcileRuns counts scheduled reconciliation runs by result.
	ReconcileRuns = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "brasserie_reconcile_runs_total",
		Help: "Scheduled availability reconciliation runs by outcome",
	}, []string{"outcome"})

	// LedgerImbalances gauges the number of ingredients whose stock does not
	// match the sum of their ledger deltas, per the latest audit.
	LedgerImbalances = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "brasserie_ledger_imbalances",
		Help: "Ingredients failing the stock ledger balance audit",
	})
)

// Outcome labels for ConsumptionsTotal and ReconcileRuns.
const (
	OutcomeOK           = "ok"
	OutcomeInsufficient = "insufficient_stock"
	OutcomeConflict     = "conflict"
	OutcomeError        = "error"
)
