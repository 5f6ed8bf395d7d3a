package payments

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/gofiber/fiber/v2/log"
	"gorm.io/gorm"

	"github.com/colegio-mx/backoffice/app/models"
	"github.com/colegio-mx/backoffice/app/repository"
	"github.com/colegio-mx/backoffice/internal/pkg/apperr"
	"github.com/colegio-mx/backoffice/internal/pkg/money"
)

// Handled inbound event types (gateway naming).
const (
	EventSessionCompleted      = "checkout.session.completed"
	EventSessionExpired        = "checkout.session.expired"
	EventPaymentFailed         = "payment_intent.payment_failed"
	EventPaymentRequiresAction = "payment_intent.requires_action"
	EventMethodAttached        = "payment_method.attached"
	EventMethodUpdated         = "payment_method.updated"
	EventMethodAutoUpdated     = "payment_method.automatically_updated"
	EventMethodDetached        = "payment_method.detached"
)

// Event is the normalized inbound webhook event. Exactly one of Session,
// Intent or Method is set depending on Type.
type Event struct {
	ID      string
	Type    string
	Session *Session
	Intent  *Intent
	Method  *GatewayPaymentMethod
}

// Dispatcher routes inbound webhook events to one idempotent handler per
// event type. Handlers check current state before acting, mutate inside a
// single transaction, and fire side effects only on the first application of
// a new transition; duplicate deliveries are safe no-ops.
type Dispatcher struct {
	payments repository.PaymentRepository
	methods  repository.PaymentMethodRepository
	users    repository.UserRepository
	gateway  Gateway
	notifier Notifier
}

func NewDispatcher(repos *repository.Repositories, gw Gateway, n Notifier) *Dispatcher {
	return &Dispatcher{
		payments: repos.Payment,
		methods:  repos.PaymentMethod,
		users:    repos.User,
		gateway:  gw,
		notifier: n,
	}
}

// Handle applies one event. The boolean reports whether an action was taken.
// ValidationError and NotFoundError from expected races are absorbed as
// handled no-ops; gateway and unexpected errors propagate so the delivery
// layer retries.
func (d *Dispatcher) Handle(ctx context.Context, ev Event) (bool, error) {
	switch ev.Type {
	case EventSessionCompleted:
		return d.handleSessionCompleted(ctx, ev)
	case EventSessionExpired:
		return d.handleSessionExpired(ctx, ev)
	case EventPaymentFailed:
		return d.handlePaymentFailed(ctx, ev)
	case EventPaymentRequiresAction:
		return d.handleRequiresAction(ctx, ev)
	case EventMethodAttached:
		return d.handleMethodAttached(ctx, ev)
	case EventMethodUpdated, EventMethodAutoUpdated:
		return d.handleMethodUpdated(ctx, ev)
	case EventMethodDetached:
		return d.handleMethodDetached(ctx, ev)
	default:
		log.Infof("[Webhook] Ignoring unhandled event type %s", ev.Type)
		return false, nil
	}
}

// handleSessionCompleted branches on session mode. Payment mode updates the
// local payment from the session payload; a completed session without a
// matching local record is a hard error, not an expected race. Setup mode
// stores the new payment method for the user who completed checkout.
func (d *Dispatcher) handleSessionCompleted(ctx context.Context, ev Event) (bool, error) {
	s := ev.Session
	if s == nil {
		return false, &apperr.ValidationError{Msg: "session payload missing"}
	}

	if s.Mode == SessionModeSetup {
		return d.completeSetupSession(ctx, s)
	}

	payment, err := d.payments.GetBySessionID(s.ID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return false, &apperr.NotFoundError{Entity: "payment for session", Key: s.ID}
		}
		return false, err
	}

	// Already applied: redelivery is a no-op with zero side effects.
	if payment.Status != models.PaymentStatusPending && payment.Status != "" {
		log.Infof("[Webhook] Session %s already applied to payment %d (status %s)", s.ID, payment.ID, payment.Status)
		return false, nil
	}

	newStatus := models.PaymentStatusUnpaid
	if s.PaymentStatus == SessionPaymentStatusPaid {
		newStatus = models.PaymentStatusPaid
	}

	updates := map[string]interface{}{
		"status": newStatus,
		"url":    nil,
	}
	if s.IntentID != "" {
		updates["payment_intent_id"] = s.IntentID
	}
	if newStatus == models.PaymentStatusPaid {
		received, convErr := minorUnitsString(s.AmountTotal)
		if convErr != nil {
			return false, convErr
		}
		updates["amount_received"] = received
	}

	if err := d.payments.UpdateFields(payment.ID, updates); err != nil {
		return false, err
	}

	if newStatus == models.PaymentStatusPaid {
		d.sendPaymentMail(payment.UserID, MailTemplatePaymentConfirmation, map[string]interface{}{
			"payment_id": payment.ID,
			"amount":     payment.Amount,
		})
		d.notifier.PublishEvent(PaymentReconciled{
			PaymentID: payment.ID,
			Status:    newStatus,
		})
	}
	return true, nil
}

func (d *Dispatcher) completeSetupSession(ctx context.Context, s *Session) (bool, error) {
	if s.CustomerEmail == "" {
		return false, &apperr.ValidationError{Msg: "setup session has no customer email"}
	}

	user, err := d.users.GetByEmail(s.CustomerEmail)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			log.Warnf("[Webhook] No local user for setup session %s email", s.ID)
			return false, nil
		}
		return false, err
	}

	si, err := d.gateway.GetSetupIntentFromSession(ctx, s.ID)
	if err != nil {
		return false, err
	}
	pm, err := d.gateway.RetrievePaymentMethod(ctx, si.PaymentMethodID)
	if err != nil {
		return false, err
	}
	if pm == nil {
		return false, nil
	}

	return d.storeMethod(user.ID, pm)
}

// handlePaymentFailed locates the payment by intent id; failed attempts that
// never settled are emailed about and removed. A payment that already
// reached PAID is left untouched (reconciliation won the race).
func (d *Dispatcher) handlePaymentFailed(ctx context.Context, ev Event) (bool, error) {
	if ev.Intent == nil {
		return false, &apperr.ValidationError{Msg: "intent payload missing"}
	}
	payment, err := d.payments.GetByIntentID(ev.Intent.ID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return false, nil
		}
		return false, err
	}
	return d.discardPayment(payment, "payment failed")
}

// handleSessionExpired is the expiry twin of handlePaymentFailed, keyed by
// session id instead of intent id.
func (d *Dispatcher) handleSessionExpired(ctx context.Context, ev Event) (bool, error) {
	if ev.Session == nil {
		return false, &apperr.ValidationError{Msg: "session payload missing"}
	}
	payment, err := d.payments.GetBySessionID(ev.Session.ID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return false, nil
		}
		return false, err
	}
	return d.discardPayment(payment, "session expired")
}

func (d *Dispatcher) discardPayment(payment *models.Payment, reason string) (bool, error) {
	if payment.IsPaid() {
		return false, nil
	}

	d.sendPaymentMail(payment.UserID, MailTemplatePaymentFailed, map[string]interface{}{
		"payment_id": payment.ID,
		"amount":     payment.Amount,
		"reason":     reason,
	})

	// Expired and failed attempts are not retained.
	if err := d.payments.Delete(payment.ID); err != nil {
		return false, err
	}
	d.notifier.PublishEvent(PaymentFailed{PaymentID: payment.ID, Reason: reason})
	return true, nil
}

// handleRequiresAction only emails the payer for voucher-based methods with
// a hosted voucher and bank transfers that carry instructions; everything
// else is a no-op.
func (d *Dispatcher) handleRequiresAction(ctx context.Context, ev Event) (bool, error) {
	intent := ev.Intent
	if intent == nil {
		return false, &apperr.ValidationError{Msg: "intent payload missing"}
	}
	payment, err := d.payments.GetByIntentID(intent.ID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return false, nil
		}
		return false, err
	}
	if payment.IsTerminal() {
		return false, nil
	}

	var template string
	data := map[string]interface{}{"payment_id": payment.ID, "amount": payment.Amount}
	switch {
	case intent.PaymentMethodType == models.PaymentMethodTypeOXXO && intent.HostedVoucherURL != "":
		template = MailTemplateOXXOVoucher
		data["voucher_url"] = intent.HostedVoucherURL
	case intent.PaymentMethodType == models.PaymentMethodTypeCustomerBalance && intent.HasTransferInstructions:
		template = MailTemplateTransferInstructions
	default:
		return false, nil
	}

	if payment.Status != models.PaymentStatusRequiresAction {
		if err := d.payments.UpdateFields(payment.ID, map[string]interface{}{
			"status": models.PaymentStatusRequiresAction,
		}); err != nil {
			return false, err
		}
	}

	d.sendPaymentMail(payment.UserID, template, data)
	return true, nil
}

// handleMethodAttached is create-if-absent: a redelivered attach event finds
// the stored method and does nothing.
func (d *Dispatcher) handleMethodAttached(ctx context.Context, ev Event) (bool, error) {
	if ev.Method == nil {
		return false, &apperr.ValidationError{Msg: "payment method payload missing"}
	}

	if _, err := d.methods.GetByExternalID(ev.Method.ID); err == nil {
		return false, nil
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		return false, err
	}

	if ev.Method.Email == "" {
		log.Warnf("[Webhook] Attached method %s has no billing email, skipping", ev.Method.ID)
		return false, nil
	}
	user, err := d.users.GetByEmail(ev.Method.Email)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return false, nil
		}
		return false, err
	}

	// Re-fetch from the gateway so stale webhook payload fields never win.
	pm, err := d.gateway.RetrievePaymentMethod(ctx, ev.Method.ID)
	if err != nil {
		return false, err
	}
	if pm == nil {
		return false, nil
	}

	return d.storeMethod(user.ID, pm)
}

func (d *Dispatcher) storeMethod(userID uint, pm *GatewayPaymentMethod) (bool, error) {
	stored := &models.PaymentMethod{
		UserID:     userID,
		ExternalID: pm.ID,
		Type:       pm.Type,
		Brand:      pm.Brand,
		Last4:      pm.Last4,
		ExpMonth:   pm.ExpMonth,
		ExpYear:    pm.ExpYear,
	}
	if err := d.methods.Create(stored); err != nil {
		return false, err
	}
	if err := d.notifier.InvalidateUserCards(userID); err != nil {
		log.Warnf("[Webhook] Card cache invalidation failed for user %d: %v", userID, err)
	}
	d.notifier.PublishEvent(PaymentMethodStored{UserID: userID, ExternalID: pm.ID})
	return true, nil
}

// handleMethodUpdated diffs incoming card fields against the stored snapshot
// and writes (and invalidates cache) only when something actually changed.
func (d *Dispatcher) handleMethodUpdated(ctx context.Context, ev Event) (bool, error) {
	if ev.Method == nil {
		return false, &apperr.ValidationError{Msg: "payment method payload missing"}
	}
	stored, err := d.methods.GetByExternalID(ev.Method.ID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return false, nil
		}
		return false, err
	}

	if stored.SameCard(ev.Method.Brand, ev.Method.Last4, ev.Method.ExpMonth, ev.Method.ExpYear) {
		return false, nil
	}

	stored.Brand = ev.Method.Brand
	stored.Last4 = ev.Method.Last4
	stored.ExpMonth = ev.Method.ExpMonth
	stored.ExpYear = ev.Method.ExpYear
	if err := d.methods.Update(stored); err != nil {
		return false, err
	}
	if err := d.notifier.InvalidateUserCards(stored.UserID); err != nil {
		log.Warnf("[Webhook] Card cache invalidation failed for user %d: %v", stored.UserID, err)
	}
	return true, nil
}

// handleMethodDetached deletes by external id; already absent is a no-op,
// not an error.
func (d *Dispatcher) handleMethodDetached(ctx context.Context, ev Event) (bool, error) {
	if ev.Method == nil {
		return false, &apperr.ValidationError{Msg: "payment method payload missing"}
	}
	stored, err := d.methods.GetByExternalID(ev.Method.ID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return false, nil
		}
		return false, err
	}

	deleted, err := d.methods.DeleteByExternalID(ev.Method.ID)
	if err != nil {
		return false, err
	}
	if deleted {
		if err := d.notifier.InvalidateUserCards(stored.UserID); err != nil {
			log.Warnf("[Webhook] Card cache invalidation failed for user %d: %v", stored.UserID, err)
		}
	}
	return deleted, nil
}

func (d *Dispatcher) sendPaymentMail(userID uint, template string, data map[string]interface{}) {
	user, err := d.users.GetByID(userID)
	if err != nil {
		log.Warnf("[Webhook] Cannot resolve user %d for %s mail: %v", userID, template, err)
		return
	}
	if err := d.notifier.EnqueuePaymentMail(template, user.Email, data); err != nil {
		log.Errorf("[Webhook] Failed to enqueue %s mail for user %d: %v", template, userID, err)
	}
}

func minorUnitsString(units int64) (string, error) {
	m, err := money.FromMinorUnits(units, 100)
	if err != nil {
		return "", err
	}
	return m.Finalize2(), nil
}

// metadataJSON marshals a metadata snapshot for ledger entries; marshal
// failures degrade to an empty object rather than blocking the append.
func metadataJSON(v map[string]interface{}) *string {
	b, err := json.Marshal(v)
	if err != nil {
		empty := "{}"
		return &empty
	}
	s := string(b)
	return &s
}
