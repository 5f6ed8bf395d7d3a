package payments

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2/log"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/colegio-mx/backoffice/app/models"
	"github.com/colegio-mx/backoffice/app/repository"
	"github.com/colegio-mx/backoffice/internal/pkg/env"
	"github.com/colegio-mx/backoffice/internal/pkg/money"
)

const (
	defaultFreshnessWindow  = 2 * time.Hour
	defaultLookbackWindow   = 30 * 24 * time.Hour
	defaultMaxBatchDuration = 30 * time.Minute
)

// ReconcilerConfig carries the sweep policy knobs. The freshness and
// lookback windows are policy constants inherited from operations, not hard
// invariants; they stay configurable.
type ReconcilerConfig struct {
	FreshnessWindow  time.Duration
	LookbackWindow   time.Duration
	MaxBatchDuration time.Duration
}

// ReconcilerConfigFromEnv reads the sweep policy from the environment with
// the operational defaults (2h freshness, 30d lookback).
func ReconcilerConfigFromEnv() ReconcilerConfig {
	cfg := ReconcilerConfig{
		FreshnessWindow:  defaultFreshnessWindow,
		LookbackWindow:   defaultLookbackWindow,
		MaxBatchDuration: defaultMaxBatchDuration,
	}
	if v, err := strconv.Atoi(env.GetEnv("RECONCILE_FRESHNESS_MINUTES", "")); err == nil && v > 0 {
		cfg.FreshnessWindow = time.Duration(v) * time.Minute
	}
	if v, err := strconv.Atoi(env.GetEnv("RECONCILE_LOOKBACK_DAYS", "")); err == nil && v > 0 {
		cfg.LookbackWindow = time.Duration(v) * 24 * time.Hour
	}
	if v, err := strconv.Atoi(env.GetEnv("RECONCILE_MAX_BATCH_MINUTES", "")); err == nil && v > 0 {
		cfg.MaxBatchDuration = time.Duration(v) * time.Minute
	}
	return cfg
}

// Reconciler converges local payments to the gateway's authoritative
// intent/charge state. Both the single-payment and the batch variant apply
// the same idempotent-append pattern as the webhook handlers, so the two
// paths commute: whichever runs first, the final state matches gateway truth.
type Reconciler struct {
	payments repository.PaymentRepository
	ledger   repository.PaymentEventRepository
	users    repository.UserRepository
	gateway  Gateway
	notifier Notifier
	cfg      ReconcilerConfig
}

func NewReconciler(repos *repository.Repositories, gw Gateway, n Notifier, cfg ReconcilerConfig) *Reconciler {
	return &Reconciler{
		payments: repos.Payment,
		ledger:   repos.PaymentEvent,
		users:    repos.User,
		gateway:  gw,
		notifier: n,
		cfg:      cfg,
	}
}

// ReconcileResult reports what a single reconciliation did.
type ReconcileResult struct {
	Applied        bool
	Changed        bool
	Status         string
	AmountReceived string
}

// BatchResult summarizes one sweep.
type BatchResult struct {
	Processed int
	Updated   int
	Failed    int
}

// ReconcileOne converges one payment identified by checkout session id.
// A completed-reconciliation ledger entry for eventID makes redelivery a
// zero-effect no-op; an unknown session means there is nothing to reconcile
// yet and is also a zero-effect result.
func (r *Reconciler) ReconcileOne(ctx context.Context, eventID, sessionID string) (ReconcileResult, error) {
	done, err := r.ledger.HasCompletedReconciliation(eventID)
	if err != nil {
		return ReconcileResult{}, err
	}
	if done {
		log.Infof("[Reconcile] Event %s already reconciled, skipping", eventID)
		return ReconcileResult{}, nil
	}

	payment, err := r.payments.GetBySessionID(sessionID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			log.Infof("[Reconcile] No local payment for session %s yet", sessionID)
			return ReconcileResult{}, nil
		}
		return ReconcileResult{}, err
	}
	if payment.PaymentIntentID == nil || *payment.PaymentIntentID == "" {
		log.Infof("[Reconcile] Payment %d has no intent id yet", payment.ID)
		return ReconcileResult{}, nil
	}

	startMeta := metadataJSON(map[string]interface{}{"session_id": sessionID})
	_, _, _ = r.ledger.CreateIfNotExists(&models.PaymentEvent{
		EventType:       models.PaymentEventReconciliationStarted,
		PaymentID:       &payment.ID,
		ExternalEventID: &eventID,
		SessionID:       &sessionID,
		IntentID:        payment.PaymentIntentID,
		Outcome:         models.PaymentOutcomeNoop,
		Metadata:        startMeta,
	})

	intent, charge, err := r.gateway.GetIntentAndCharge(ctx, *payment.PaymentIntentID)
	if err != nil {
		r.recordFailure(payment, eventID, err)
		return ReconcileResult{}, err
	}

	changed, status, received, err := r.converge(payment, eventID, intent, charge)
	if err != nil {
		r.recordFailure(payment, eventID, err)
		return ReconcileResult{}, err
	}

	return ReconcileResult{
		Applied:        true,
		Changed:        changed,
		Status:         status,
		AmountReceived: received,
	}, nil
}

// ReconcileBatch runs the scheduled sweep: select candidates by policy,
// fetch gateway truth in chunks, converge each payment in isolation and
// append one batch summary entry. One bad record never aborts the batch.
func (r *Reconciler) ReconcileBatch(ctx context.Context) (BatchResult, error) {
	started := time.Now()
	var result BatchResult

	candidates, err := r.payments.ListNeedingReconciliation(started, r.cfg.LookbackWindow, r.cfg.FreshnessWindow)
	if err != nil {
		return result, err
	}
	if len(candidates) == 0 {
		log.Info("[Reconcile] Sweep found no payments needing reconciliation")
		return result, nil
	}
	log.Infof("[Reconcile] Sweep starting over %d payments", len(candidates))

	intentIDs := make([]string, 0, len(candidates))
	for i := range candidates {
		intentIDs = append(intentIDs, *candidates[i].PaymentIntentID)
	}

	fetched, err := r.gateway.GetIntentsAndChargesBatch(ctx, intentIDs)
	if err != nil {
		return result, err
	}

	for i := range candidates {
		payment := &candidates[i]

		if time.Since(started) > r.cfg.MaxBatchDuration {
			log.Warnf("[Reconcile] Sweep hit max duration after %d of %d payments", i, len(candidates))
			break
		}
		if err := ctx.Err(); err != nil {
			log.Warnf("[Reconcile] Sweep canceled after %d of %d payments", i, len(candidates))
			break
		}

		result.Processed++
		ic, ok := fetched[*payment.PaymentIntentID]
		if !ok {
			result.Failed++
			r.recordFailure(payment, sweepEventID(), fmt.Errorf("intent %s not retrievable", *payment.PaymentIntentID))
			continue
		}

		changed, _, _, cerr := r.converge(payment, sweepEventID(), ic.Intent, ic.Charge)
		if cerr != nil {
			result.Failed++
			r.recordFailure(payment, sweepEventID(), cerr)
			continue
		}
		if changed {
			result.Updated++
		}
	}

	summary := metadataJSON(map[string]interface{}{
		"processed": result.Processed,
		"updated":   result.Updated,
		"failed":    result.Failed,
		"duration":  time.Since(started).String(),
	})
	if err := r.ledger.Append(&models.PaymentEvent{
		EventType: models.PaymentEventBatchReconciliationDone,
		Outcome:   models.PaymentOutcomeSuccess,
		Metadata:  summary,
	}); err != nil {
		log.Errorf("[Reconcile] Failed to append sweep summary: %v", err)
	}

	log.Infof("[Reconcile] Sweep done: processed=%d updated=%d failed=%d", result.Processed, result.Updated, result.Failed)
	return result, nil
}

// converge computes the new status/amount from gateway truth, persists the
// diff in one transaction, appends the completed ledger entry carrying the
// dedup key, and fires side effects only when something actually changed.
func (r *Reconciler) converge(payment *models.Payment, eventID string, intent *Intent, charge *Charge) (bool, string, string, error) {
	if intent == nil {
		return false, "", "", fmt.Errorf("gateway returned no intent for payment %d", payment.ID)
	}

	newStatus := statusFromIntent(intent)
	received, err := receivedAmount(intent, charge)
	if err != nil {
		return false, "", "", err
	}

	updates := map[string]interface{}{}
	if newStatus != payment.Status {
		updates["status"] = newStatus
	}
	if received != "" && (payment.AmountReceived == nil || *payment.AmountReceived != received) {
		updates["amount_received"] = received
	}
	if charge != nil && charge.MethodType != "" {
		details := metadataJSON(map[string]interface{}{
			"type":  charge.MethodType,
			"brand": charge.CardBrand,
			"last4": charge.CardLast4,
		})
		if payment.PaymentMethodDetails == nil || *payment.PaymentMethodDetails != *details {
			updates["payment_method_details"] = *details
		}
	}

	changed := len(updates) > 0
	if changed {
		if err := r.payments.UpdateFields(payment.ID, updates); err != nil {
			return false, "", "", err
		}
	}

	chargeID := ""
	if charge != nil {
		chargeID = charge.ID
	}
	meta := metadataJSON(map[string]interface{}{
		"before_status": payment.Status,
		"after_status":  newStatus,
		"charge_id":     chargeID,
		"changed":       changed,
	})
	event := &models.PaymentEvent{
		EventType:       models.PaymentEventReconciliationCompleted,
		PaymentID:       &payment.ID,
		ExternalEventID: &eventID,
		SessionID:       payment.StripeSessionID,
		IntentID:        payment.PaymentIntentID,
		Outcome:         models.PaymentOutcomeSuccess,
		Metadata:        meta,
		Status:          &newStatus,
	}
	if received != "" {
		event.Amount = &received
	}
	if _, _, err := r.ledger.CreateIfNotExists(event); err != nil {
		return false, "", "", err
	}

	if changed && newStatus == models.PaymentStatusPaid {
		r.sendConfirmation(payment, received)
		r.notifier.PublishEvent(PaymentReconciled{
			PaymentID:      payment.ID,
			Status:         newStatus,
			AmountReceived: received,
			ChargeID:       chargeID,
		})
	}

	return changed, newStatus, received, nil
}

// recordFailure appends a reconciliation_failed entry before the error
// propagates, so failures stay auditable even when the call ultimately
// fails. Failed entries carry no dedup key: every attempt is recorded.
func (r *Reconciler) recordFailure(payment *models.Payment, eventID string, cause error) {
	msg := cause.Error()
	meta := metadataJSON(map[string]interface{}{"event_id": eventID})
	event := &models.PaymentEvent{
		EventType: models.PaymentEventReconciliationFailed,
		PaymentID: &payment.ID,
		SessionID: payment.StripeSessionID,
		IntentID:  payment.PaymentIntentID,
		Outcome:   models.PaymentOutcomeErrorReconciliation,
		Metadata:  meta,
		Error:     &msg,
	}
	if err := r.ledger.Append(event); err != nil {
		log.Errorf("[Reconcile] Failed to record failure for payment %d: %v", payment.ID, err)
	}
}

func (r *Reconciler) sendConfirmation(payment *models.Payment, received string) {
	user, err := r.users.GetByID(payment.UserID)
	if err != nil {
		log.Warnf("[Reconcile] Cannot resolve user %d for confirmation mail: %v", payment.UserID, err)
		return
	}
	if err := r.notifier.EnqueuePaymentMail(MailTemplatePaymentConfirmation, user.Email, map[string]interface{}{
		"payment_id": payment.ID,
		"amount":     received,
	}); err != nil {
		log.Errorf("[Reconcile] Failed to enqueue confirmation mail for payment %d: %v", payment.ID, err)
	}
}

// statusFromIntent maps gateway intent status to the local state machine.
func statusFromIntent(intent *Intent) string {
	switch intent.Status {
	case "succeeded":
		return models.PaymentStatusPaid
	case "canceled":
		return models.PaymentStatusCanceled
	case "requires_action":
		return models.PaymentStatusRequiresAction
	case "processing", "requires_capture", "requires_confirmation":
		return models.PaymentStatusPending
	default:
		return models.PaymentStatusUnpaid
	}
}

// receivedAmount prefers the captured charge amount; the intent's
// amount_received is the fallback when no charge is expanded.
func receivedAmount(intent *Intent, charge *Charge) (string, error) {
	var units int64
	switch {
	case charge != nil && charge.AmountCaptured > 0:
		units = charge.AmountCaptured
	case intent.AmountReceived > 0:
		units = intent.AmountReceived
	default:
		return "", nil
	}
	m, err := money.FromMinorUnits(units, 100)
	if err != nil {
		return "", err
	}
	return m.Finalize2(), nil
}

// sweepEventID synthesizes the dedup key for sweep-originated
// reconciliations so the ledger uniqueness invariant holds for them too.
func sweepEventID() string {
	return "sweep:" + uuid.New().String()
}
