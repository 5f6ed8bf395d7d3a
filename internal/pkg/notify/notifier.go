package notify

import (
	"bytes"
	"fmt"
	"html/template"

	"github.com/gofiber/fiber/v2/log"

	"github.com/colegio-mx/backoffice/internal/pkg/cache"
	"github.com/colegio-mx/backoffice/internal/pkg/jobqueue"
	"github.com/colegio-mx/backoffice/internal/pkg/payments"
)

type mailTemplate struct {
	subject string
	body    *template.Template
}

var mailTemplates = map[string]mailTemplate{
	payments.MailTemplatePaymentConfirmation: {
		subject: "Pago recibido",
		body: template.Must(template.New("payment_confirmation").Parse(
			`<p>Recibimos tu pago #{{.payment_id}} por ${{.amount}} MXN.</p>` +
				`<p>Gracias por tu puntualidad.</p>`)),
	},
	payments.MailTemplatePaymentFailed: {
		subject: "Pago no completado",
		body: template.Must(template.New("payment_failed").Parse(
			`<p>Tu pago #{{.payment_id}} por ${{.amount}} MXN no se completó ({{.reason}}).</p>` +
				`<p>Puedes generar un nuevo intento de pago desde el portal.</p>`)),
	},
	payments.MailTemplateOXXOVoucher: {
		subject: "Ficha de pago OXXO",
		body: template.Must(template.New("payment_oxxo_voucher").Parse(
			`<p>Tu ficha para pagar #{{.payment_id}} por ${{.amount}} MXN en OXXO está lista.</p>` +
				`<p><a href="{{.voucher_url}}">Descargar ficha</a></p>`)),
	},
	payments.MailTemplateTransferInstructions: {
		subject: "Instrucciones de transferencia",
		body: template.Must(template.New("payment_transfer_instructions").Parse(
			`<p>Tu pago #{{.payment_id}} por ${{.amount}} MXN espera una transferencia bancaria.</p>` +
				`<p>Las instrucciones SPEI están disponibles en el portal.</p>`)),
	},
}

// QueueNotifier is the production side-effect implementation: mails go
// through the job queue, card caches live in Redis and domain events fan
// out over the in-process bus.
type QueueNotifier struct {
	bus *payments.EventBus
}

func NewQueueNotifier(bus *payments.EventBus) *QueueNotifier {
	if bus == nil {
		bus = payments.NewEventBus()
	}
	return &QueueNotifier{bus: bus}
}

// Bus exposes the event bus for subscribers.
func (n *QueueNotifier) Bus() *payments.EventBus {
	return n.bus
}

// EnqueuePaymentMail renders the template and hands the finished email to
// the job queue. Rendering failures are reported to the caller; delivery
// failures are the queue's problem.
func (n *QueueNotifier) EnqueuePaymentMail(templateKey, recipient string, data map[string]interface{}) error {
	tpl, ok := mailTemplates[templateKey]
	if !ok {
		return fmt.Errorf("unknown mail template %q", templateKey)
	}

	var buf bytes.Buffer
	if err := tpl.body.Execute(&buf, data); err != nil {
		return fmt.Errorf("render mail template %q: %w", templateKey, err)
	}

	payload := jobqueue.SendMailJobPayload{
		To:      recipient,
		Subject: tpl.subject,
		Body:    buf.String(),
	}
	_, err := jobqueue.GetManager().GetQueue().EnqueueJob(jobqueue.JobTypeSendMail, payload.ToMap())
	return err
}

// InvalidateUserCards drops the cached card list for a user.
func (n *QueueNotifier) InvalidateUserCards(userID uint) error {
	if err := cache.InvalidateUserCards(userID); err != nil {
		log.Errorf("[Notify] Failed to invalidate card cache for user %d: %v", userID, err)
		return err
	}
	return nil
}

// PublishEvent fans the event out to bus subscribers.
func (n *QueueNotifier) PublishEvent(event payments.DomainEvent) {
	n.bus.Publish(event)
}
