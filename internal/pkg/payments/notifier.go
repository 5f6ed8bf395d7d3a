package payments

import (
	"sync"

	"github.com/gofiber/fiber/v2/log"
)

// Mail template keys used by the payment side effects.
const (
	MailTemplatePaymentConfirmation  = "payment_confirmation"
	MailTemplatePaymentFailed        = "payment_failed"
	MailTemplateOXXOVoucher          = "payment_oxxo_voucher"
	MailTemplateTransferInstructions = "payment_transfer_instructions"
)

// DomainEvent is a typed event emitted by the payment core for other
// subsystems to subscribe to. The bus owning fan-out is decoupled from the
// reconciliation logic itself.
type DomainEvent interface {
	EventName() string
}

// PaymentReconciled is emitted once per state-changing reconciliation.
type PaymentReconciled struct {
	PaymentID      uint
	Status         string
	AmountReceived string
	ChargeID       string
}

func (PaymentReconciled) EventName() string { return "payment.reconciled" }

// PaymentFailed is emitted when a failed or expired payment is cleaned up.
type PaymentFailed struct {
	PaymentID uint
	Reason    string
}

func (PaymentFailed) EventName() string { return "payment.failed" }

// PaymentMethodStored is emitted when a new payment method snapshot is saved.
type PaymentMethodStored struct {
	UserID     uint
	ExternalID string
}

func (PaymentMethodStored) EventName() string { return "payment_method.stored" }

// Notifier is the side-effect collaborator of the payment core. Side effects
// are attached to state transitions, not deliveries: handlers only call the
// notifier on the first successful application of an event.
type Notifier interface {
	// EnqueuePaymentMail queues a templated email; sending is asynchronous
	// and fire-and-forget from the core's point of view.
	EnqueuePaymentMail(templateKey, recipient string, data map[string]interface{}) error
	// InvalidateUserCards drops the cached card list namespace for a user.
	InvalidateUserCards(userID uint) error
	// PublishEvent hands a typed domain event to the event bus.
	PublishEvent(event DomainEvent)
}

// EventHandler consumes a domain event.
type EventHandler func(DomainEvent)

// EventBus is a minimal in-process dispatcher for domain events. Queue or
// topic binding for external consumers subscribes here.
type EventBus struct {
	mu   sync.RWMutex
	subs map[string][]EventHandler
}

func NewEventBus() *EventBus {
	return &EventBus{subs: make(map[string][]EventHandler)}
}

func (b *EventBus) Subscribe(eventName string, h EventHandler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subs[eventName] = append(b.subs[eventName], h)
}

func (b *EventBus) Publish(e DomainEvent) {
	b.mu.RLock()
	handlers := b.subs[e.EventName()]
	b.mu.RUnlock()

	for _, h := range handlers {
		func() {
			defer func() {
				if r := recover(); r != nil {
					log.Errorf("[Events] Subscriber for %s panicked: %v", e.EventName(), r)
				}
			}()
			h(e)
		}()
	}
}
