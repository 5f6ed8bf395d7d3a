package controllers

import (
	"context"
	"encoding/json"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"
	"github.com/stripe/stripe-go/v80/webhook"

	"github.com/colegio-mx/backoffice/app/models"
	"github.com/colegio-mx/backoffice/app/repository"
	"github.com/colegio-mx/backoffice/internal/pkg/apperr"
	"github.com/colegio-mx/backoffice/internal/pkg/env"
	"github.com/colegio-mx/backoffice/internal/pkg/jobqueue"
	"github.com/colegio-mx/backoffice/internal/pkg/payments"
)

var (
	paymentDispatcher *payments.Dispatcher
	webhookRepos      *repository.Repositories
)

// InitializeWebhookController wires the event dispatcher and repositories.
// Called once from router setup.
func InitializeWebhookController(d *payments.Dispatcher, repos *repository.Repositories) {
	paymentDispatcher = d
	webhookRepos = repos
}

// HandleStripeWebhook ingests gateway events. Every delivery is recorded in
// the payment event ledger before any processing; the marker row carries the
// processing outcome, settled after dispatch. A redelivery whose prior
// attempt succeeded is answered 200 without touching payment state; one whose
// prior attempt failed runs the handler again. Handler errors return 500 so
// the gateway redelivers; no-ops from expected races return 200.
func HandleStripeWebhook(c *fiber.Ctx) error {
	rawBody := append([]byte(nil), c.BodyRaw()...)
	signature := c.Get("Stripe-Signature")
	secret := env.GetEnv("STRIPE_WEBHOOK_SECRET", "")

	stripeEvent, err := webhook.ConstructEvent(rawBody, signature, secret)
	if err != nil {
		log.Warnf("[Webhook] Signature verification failed: %v", err)
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid_signature"})
	}

	eventID := stripeEvent.ID
	meta, _ := json.Marshal(fiber.Map{"type": string(stripeEvent.Type)})
	metaStr := string(meta)

	created, stored, err := webhookRepos.PaymentEvent.CreateIfNotExists(&models.PaymentEvent{
		EventType:       models.PaymentEventWebhookReceived,
		ExternalEventID: &eventID,
		Outcome:         models.PaymentOutcomeReceived,
		Metadata:        &metaStr,
	})
	if err != nil {
		log.Errorf("[Webhook] Failed to persist event %s: %v", eventID, err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "webhook_persist_failed"})
	}
	if !created {
		// Only a fully processed delivery short-circuits; a redelivery after
		// a failed attempt must run the handler again.
		if stored.Outcome == models.PaymentOutcomeSuccess {
			return c.Status(fiber.StatusOK).JSON(fiber.Map{"ok": true, "duplicate": true})
		}
		log.Infof("[Webhook] Reprocessing event %s after earlier failure (outcome %s)", eventID, stored.Outcome)
	}

	ev, err := payments.ParseStripeEvent(stripeEvent)
	if err != nil {
		if apperr.IsValidation(err) {
			log.Warnf("[Webhook] Malformed payload for event %s (%s): %v", eventID, stripeEvent.Type, err)
			markWebhookOutcome(stored.ID, models.PaymentOutcomeFailed, err)
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid_payload"})
		}
		markWebhookOutcome(stored.ID, models.PaymentOutcomeFailed, err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "event_parse_failed"})
	}

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	applied, err := paymentDispatcher.Handle(ctx, ev)
	if err != nil {
		log.Errorf("[Webhook] Processing event %s (%s) failed: %v", eventID, ev.Type, err)
		markWebhookOutcome(stored.ID, models.PaymentOutcomeFailed, err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "event_processing_failed"})
	}

	markWebhookOutcome(stored.ID, models.PaymentOutcomeSuccess, nil)

	// Paid checkouts also converge asynchronously against intent truth, so
	// the final amount received comes from the charge, not the session.
	if ev.Type == payments.EventSessionCompleted && ev.Session != nil && ev.Session.Mode == payments.SessionModePayment {
		payload := jobqueue.PaymentReconcileJobPayload{EventID: eventID, SessionID: ev.Session.ID}
		if _, err := jobqueue.GetManager().GetQueue().EnqueueJob(jobqueue.JobTypePaymentReconcile, payload.ToMap()); err != nil {
			log.Errorf("[Webhook] Failed to enqueue reconcile for session %s: %v", ev.Session.ID, err)
		}
	}

	return c.Status(fiber.StatusOK).JSON(fiber.Map{"ok": true, "applied": applied})
}

// markWebhookOutcome settles the marker row; a write failure here must not
// change the response already decided from the dispatch result.
func markWebhookOutcome(eventID uint, outcome string, processErr error) {
	var msg *string
	if processErr != nil {
		s := processErr.Error()
		msg = &s
	}
	if err := webhookRepos.PaymentEvent.MarkWebhookOutcome(eventID, outcome, msg); err != nil {
		log.Errorf("[Webhook] Failed to mark ledger entry %d as %s: %v", eventID, outcome, err)
	}
}
