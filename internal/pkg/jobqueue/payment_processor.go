package jobqueue

import (
	"context"
	"fmt"
	"sync"

	"github.com/gofiber/fiber/v2/log"

	"github.com/colegio-mx/backoffice/internal/pkg/payments"
)

var (
	reconcilerMu sync.RWMutex
	reconciler   *payments.Reconciler
)

// SetReconciler wires the reconciliation engine used by payment jobs.
// Must be called during startup before the queue starts processing.
func SetReconciler(r *payments.Reconciler) {
	reconcilerMu.Lock()
	defer reconcilerMu.Unlock()
	reconciler = r
}

func getReconciler() *payments.Reconciler {
	reconcilerMu.RLock()
	defer reconcilerMu.RUnlock()
	return reconciler
}

// processPaymentReconcileJob converges a single payment against gateway
// truth. Errors bubble up so the queue retry mechanism redelivers the job;
// the reconciliation ledger makes redelivery a no-op once the event was
// fully applied.
func (q *Queue) processPaymentReconcileJob(ctx context.Context, job *Job) error {
	payload, err := PaymentReconcileJobPayloadFromMap(job.Payload)
	if err != nil {
		return fmt.Errorf("invalid payment reconcile payload: %w", err)
	}
	if payload.EventID == "" || payload.SessionID == "" {
		return fmt.Errorf("payment reconcile payload missing event or session id")
	}

	r := getReconciler()
	if r == nil {
		return fmt.Errorf("reconciler not configured")
	}

	result, err := r.ReconcileOne(ctx, payload.EventID, payload.SessionID)
	if err != nil {
		return err
	}

	if result.Applied {
		log.Infof("[JobQueue] Reconciled session %s (changed=%v, status=%s)",
			payload.SessionID, result.Changed, result.Status)
	}
	return nil
}

// processReconcileSweepJob runs the batch sweep over payments whose local
// state may have drifted. Per-payment failures are isolated inside the
// batch and recorded in the ledger; only a batch-level failure (candidate
// query, gateway outage) fails the job.
func (q *Queue) processReconcileSweepJob(ctx context.Context, job *Job) error {
	r := getReconciler()
	if r == nil {
		return fmt.Errorf("reconciler not configured")
	}

	result, err := r.ReconcileBatch(ctx)
	if err != nil {
		return err
	}

	log.Infof("[JobQueue] Sweep done: processed=%d updated=%d failed=%d",
		result.Processed, result.Updated, result.Failed)
	return nil
}
