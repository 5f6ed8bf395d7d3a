package payments

import (
	"encoding/json"

	"github.com/stripe/stripe-go/v80"

	"github.com/colegio-mx/backoffice/internal/pkg/apperr"
)

// ParseStripeEvent normalizes a verified Stripe event into the dispatcher's
// typed Event. Unknown event types pass through with no payload; the
// dispatcher ignores them.
func ParseStripeEvent(raw stripe.Event) (Event, error) {
	ev := Event{ID: raw.ID, Type: string(raw.Type)}

	switch ev.Type {
	case EventSessionCompleted, EventSessionExpired:
		var s stripe.CheckoutSession
		if err := json.Unmarshal(raw.Data.Raw, &s); err != nil {
			return ev, &apperr.ValidationError{Msg: "malformed checkout session payload"}
		}
		ev.Session = sessionFromStripe(&s)
	case EventPaymentFailed, EventPaymentRequiresAction:
		var pi stripe.PaymentIntent
		if err := json.Unmarshal(raw.Data.Raw, &pi); err != nil {
			return ev, &apperr.ValidationError{Msg: "malformed payment intent payload"}
		}
		ev.Intent = intentFromStripe(&pi)
	case EventMethodAttached, EventMethodUpdated, EventMethodAutoUpdated, EventMethodDetached:
		var pm stripe.PaymentMethod
		if err := json.Unmarshal(raw.Data.Raw, &pm); err != nil {
			return ev, &apperr.ValidationError{Msg: "malformed payment method payload"}
		}
		ev.Method = paymentMethodFromStripe(&pm)
	}

	return ev, nil
}
