// Package reconciler runs the scheduled background pass that keeps menu
// availability and the stock ledger honest: the same checker used by
// on-demand requests, on a timer, with per-item error isolation.
package reconciler

import (
	"context"
	"log"
	"time"

	"brasserie/internal/inventory"
	"brasserie/internal/monitoring"

	"github.com/jinzhu/gorm"
)

// Reconciler periodically re-derives menu availability from stock and audits
// the ledger balance invariant.
type Reconciler struct {
	checker  *inventory.Checker
	ledger   *inventory.Ledger
	interval time.Duration
}

// New creates a reconciler running every interval
func New(db *gorm.DB, interval time.Duration) *Reconciler {
	return &Reconciler{
		checker:  inventory.NewChecker(db),
		ledger:   inventory.NewLedger(db),
		interval: interval,
	}
}

// Run blocks until ctx is cancelled, executing one pass per tick. A failed
// pass is logged and the next tick proceeds normally.
func (r *Reconciler) Run(ctx context.Context) {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	log.Printf("reconciler running every %s", r.interval)
	for {
		select {
		case <-ctx.Done():
			log.Println("reconciler stopped")
			return
		case <-ticker.C:
			r.RunOnce()
		}
	}
}

// RunOnce executes a single reconciliation pass.
func (r *Reconciler) RunOnce() {
	batch, err := r.checker.CheckAll()
	if err != nil {
		monitoring.ReconcileRuns.WithLabelValues(monitoring.OutcomeError).Inc()
		log.Printf("reconcile: availability pass failed: %v", err)
		return
	}
	for itemID, msg := range batch.Errors {
		log.Printf("reconcile: menu item %d skipped: %s", itemID, msg)
	}
	if len(batch.Flipped) > 0 {
		monitoring.AvailabilityFlips.Add(float64(len(batch.Flipped)))
		log.Printf("reconcile: availability flipped for %d menu items", len(batch.Flipped))
	}

	entries, err := r.ledger.AuditBalances()
	if err != nil {
		monitoring.ReconcileRuns.WithLabelValues(monitoring.OutcomeError).Inc()
		log.Printf("reconcile: ledger audit failed: %v", err)
		return
	}

	imbalanced := 0
	for _, e := range entries {
		if !e.Balanced {
			imbalanced++
			log.Printf("reconcile: ledger imbalance for ingredient %d (%s): stock %s, ledger %s",
				e.IngredientID, e.Name, e.CurrentStock, e.LedgerSum)
		}
	}
	monitoring.LedgerImbalances.Set(float64(imbalanced))
	monitoring.ReconcileRuns.WithLabelValues(monitoring.OutcomeOK).Inc()
}
