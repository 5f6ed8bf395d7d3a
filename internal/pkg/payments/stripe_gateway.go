package payments

import (
	"context"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2/log"
	"github.com/stripe/stripe-go/v80"
	"github.com/stripe/stripe-go/v80/balance"
	"github.com/stripe/stripe-go/v80/checkout/session"
	"github.com/stripe/stripe-go/v80/paymentintent"
	"github.com/stripe/stripe-go/v80/paymentmethod"
	"github.com/stripe/stripe-go/v80/payout"
	"github.com/stripe/stripe-go/v80/setupintent"

	"github.com/colegio-mx/backoffice/internal/pkg/apperr"
	"github.com/colegio-mx/backoffice/internal/pkg/env"
	"github.com/colegio-mx/backoffice/internal/pkg/money"
)

const (
	defaultRequestTimeout = 15 * time.Second
	defaultBatchChunkSize = 50
	defaultChunkPause     = 500 * time.Millisecond
	// Sessions older than this are left to Stripe's own expiry.
	expireMaxSessionAge = time.Hour
)

// StripeGateway implements Gateway against the Stripe API.
type StripeGateway struct {
	currency       string
	payoutFloor    money.Money
	requestTimeout time.Duration
	batchChunkSize int
	chunkPause     time.Duration
}

// NewStripeGatewayFromEnv configures the Stripe SDK key and policy knobs
// from the environment.
func NewStripeGatewayFromEnv() *StripeGateway {
	stripe.Key = env.GetEnv("STRIPE_SECRET_KEY", "")

	floor := money.MustFrom(env.GetEnv("PAYOUT_MINIMUM", "100.00"))
	chunk := defaultBatchChunkSize
	if v, err := strconv.Atoi(env.GetEnv("GATEWAY_BATCH_CHUNK_SIZE", "")); err == nil && v > 0 {
		chunk = v
	}
	pause := defaultChunkPause
	if v, err := strconv.Atoi(env.GetEnv("GATEWAY_CHUNK_PAUSE_MS", "")); err == nil && v >= 0 {
		pause = time.Duration(v) * time.Millisecond
	}

	return &StripeGateway{
		currency:       env.GetEnv("PAYMENT_CURRENCY", "mxn"),
		payoutFloor:    floor,
		requestTimeout: defaultRequestTimeout,
		batchChunkSize: chunk,
		chunkPause:     pause,
	}
}

func (g *StripeGateway) params(ctx context.Context) (stripe.Params, context.CancelFunc) {
	ctx, cancel := context.WithTimeout(ctx, g.requestTimeout)
	return stripe.Params{Context: ctx}, cancel
}

func (g *StripeGateway) GetIntentAndCharge(ctx context.Context, intentID string) (*Intent, *Charge, error) {
	p, cancel := g.params(ctx)
	defer cancel()

	params := &stripe.PaymentIntentParams{Params: p}
	params.AddExpand("latest_charge")
	params.AddExpand("payment_method")

	pi, err := paymentintent.Get(intentID, params)
	if err != nil {
		return nil, nil, &apperr.GatewayError{Op: "retrieve intent", Err: err}
	}
	return intentFromStripe(pi), chargeFromStripe(pi.LatestCharge), nil
}

// GetIntentsAndChargesBatch fetches intents in bounded chunks with a pause
// between chunks to respect gateway rate limits. Individual lookup failures
// are logged and omitted so one bad id cannot poison the batch.
func (g *StripeGateway) GetIntentsAndChargesBatch(ctx context.Context, intentIDs []string) (map[string]IntentCharge, error) {
	out := make(map[string]IntentCharge, len(intentIDs))

	for start := 0; start < len(intentIDs); start += g.batchChunkSize {
		end := start + g.batchChunkSize
		if end > len(intentIDs) {
			end = len(intentIDs)
		}
		for _, id := range intentIDs[start:end] {
			if err := ctx.Err(); err != nil {
				return out, &apperr.GatewayError{Op: "batch retrieve intents", Err: err}
			}
			intent, charge, err := g.GetIntentAndCharge(ctx, id)
			if err != nil {
				log.Warnf("[Gateway] Skipping intent %s in batch: %v", id, err)
				continue
			}
			out[id] = IntentCharge{Intent: intent, Charge: charge}
		}
		if end < len(intentIDs) {
			time.Sleep(g.chunkPause)
		}
	}
	return out, nil
}

func (g *StripeGateway) GetSession(ctx context.Context, sessionID string) (*Session, error) {
	p, cancel := g.params(ctx)
	defer cancel()

	s, err := session.Get(sessionID, &stripe.CheckoutSessionParams{Params: p})
	if err != nil {
		return nil, &apperr.GatewayError{Op: "retrieve session", Err: err}
	}
	return sessionFromStripe(s), nil
}

func (g *StripeGateway) GetSetupIntentFromSession(ctx context.Context, sessionID string) (*SetupIntent, error) {
	s, err := g.GetSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if s.SetupIntentID == "" {
		return nil, &apperr.NotFoundError{Entity: "setup intent for session", Key: sessionID}
	}

	p, cancel := g.params(ctx)
	defer cancel()

	si, err := setupintent.Get(s.SetupIntentID, &stripe.SetupIntentParams{Params: p})
	if err != nil {
		return nil, &apperr.GatewayError{Op: "retrieve setup intent", Err: err}
	}

	out := &SetupIntent{ID: si.ID, Status: string(si.Status)}
	if si.PaymentMethod != nil {
		out.PaymentMethodID = si.PaymentMethod.ID
	}
	return out, nil
}

func (g *StripeGateway) RetrievePaymentMethod(ctx context.Context, methodID string) (*GatewayPaymentMethod, error) {
	p, cancel := g.params(ctx)
	defer cancel()

	pm, err := paymentmethod.Get(methodID, &stripe.PaymentMethodParams{Params: p})
	if err != nil {
		return nil, &apperr.GatewayError{Op: "retrieve payment method", Err: err}
	}
	return paymentMethodFromStripe(pm), nil
}

func (g *StripeGateway) DetachPaymentMethod(ctx context.Context, methodID string) error {
	p, cancel := g.params(ctx)
	defer cancel()

	if _, err := paymentmethod.Detach(methodID, &stripe.PaymentMethodDetachParams{Params: p}); err != nil {
		return &apperr.GatewayError{Op: "detach payment method", Err: err}
	}
	return nil
}

func (g *StripeGateway) GetBalance(ctx context.Context) (*Balance, error) {
	p, cancel := g.params(ctx)
	defer cancel()

	b, err := balance.Get(&stripe.BalanceParams{Params: p})
	if err != nil {
		return nil, &apperr.GatewayError{Op: "retrieve balance", Err: err}
	}

	out := &Balance{Currency: g.currency}
	for _, a := range b.Available {
		if string(a.Currency) == g.currency {
			out.Available += a.Amount
		}
	}
	for _, a := range b.Pending {
		if string(a.Currency) == g.currency {
			out.Pending += a.Amount
		}
	}
	return out, nil
}

func (g *StripeGateway) GetPayouts(ctx context.Context, onlyThisYear bool) ([]Payout, error) {
	p, cancel := g.params(ctx)
	defer cancel()

	params := &stripe.PayoutListParams{}
	params.Context = p.Context
	if onlyThisYear {
		now := time.Now()
		yearStart := time.Date(now.Year(), time.January, 1, 0, 0, 0, 0, time.UTC)
		params.CreatedRange = &stripe.RangeQueryParams{GreaterThanOrEqual: yearStart.Unix()}
	}

	var out []Payout
	iter := payout.List(params)
	for iter.Next() {
		po := iter.Payout()
		out = append(out, Payout{
			ID:          po.ID,
			Amount:      po.Amount,
			Status:      string(po.Status),
			Currency:    string(po.Currency),
			ArrivalDate: time.Unix(po.ArrivalDate, 0),
			CreatedAt:   time.Unix(po.Created, 0),
		})
	}
	if err := iter.Err(); err != nil {
		return nil, &apperr.GatewayError{Op: "list payouts", Err: err}
	}
	return out, nil
}

// CreatePayout enforces the configured minimum payout floor before touching
// the gateway.
func (g *StripeGateway) CreatePayout(ctx context.Context, amount money.Money) (*Payout, error) {
	if amount.LessThan(g.payoutFloor) {
		return nil, &apperr.ValidationError{Msg: "payout amount below minimum of " + g.payoutFloor.Finalize2()}
	}

	cents, err := amount.ToMinorUnits(100)
	if err != nil {
		return nil, err
	}

	p, cancel := g.params(ctx)
	defer cancel()

	po, err := payout.New(&stripe.PayoutParams{
		Params:   p,
		Amount:   stripe.Int64(cents),
		Currency: stripe.String(g.currency),
	})
	if err != nil {
		return nil, &apperr.GatewayError{Op: "create payout", Err: err}
	}
	return &Payout{
		ID:          po.ID,
		Amount:      po.Amount,
		Status:      string(po.Status),
		Currency:    string(po.Currency),
		ArrivalDate: time.Unix(po.ArrivalDate, 0),
		CreatedAt:   time.Unix(po.Created, 0),
	}, nil
}

func (g *StripeGateway) CancelIntent(ctx context.Context, intentID string) error {
	p, cancel := g.params(ctx)
	defer cancel()

	if _, err := paymentintent.Cancel(intentID, &stripe.PaymentIntentCancelParams{Params: p}); err != nil {
		return &apperr.GatewayError{Op: "cancel intent", Err: err}
	}
	return nil
}

// sessionExpirable reports whether a session may be force-expired: only
// open, unpaid sessions no older than expireMaxSessionAge qualify. Terminal
// sessions and sessions past the age cutoff are left to Stripe's own expiry;
// a non-unpaid payment status means money may already be moving.
func sessionExpirable(s *Session, now time.Time) bool {
	if s.Status != SessionStatusOpen {
		return false
	}
	if now.Sub(s.CreatedAt) > expireMaxSessionAge {
		return false
	}
	return s.PaymentStatus == SessionPaymentStatusUnpaid
}

// ExpireSessionIfPending never force-expires an active attempt; see
// sessionExpirable for the policy.
func (g *StripeGateway) ExpireSessionIfPending(ctx context.Context, sessionID string) (bool, error) {
	s, err := g.GetSession(ctx, sessionID)
	if err != nil {
		return false, err
	}
	if !sessionExpirable(s, time.Now()) {
		return false, nil
	}

	p, cancel := g.params(ctx)
	defer cancel()

	if _, err := session.Expire(sessionID, &stripe.CheckoutSessionExpireParams{Params: p}); err != nil {
		return false, &apperr.GatewayError{Op: "expire session", Err: err}
	}
	return true, nil
}

func intentFromStripe(pi *stripe.PaymentIntent) *Intent {
	if pi == nil {
		return nil
	}
	out := &Intent{
		ID:             pi.ID,
		Status:         string(pi.Status),
		Amount:         pi.Amount,
		AmountReceived: pi.AmountReceived,
	}
	if pi.PaymentMethod != nil {
		out.PaymentMethodType = string(pi.PaymentMethod.Type)
	}
	if pi.NextAction != nil {
		out.NextActionType = string(pi.NextAction.Type)
		if pi.NextAction.OXXODisplayDetails != nil {
			out.HostedVoucherURL = pi.NextAction.OXXODisplayDetails.HostedVoucherURL
		}
		if pi.NextAction.DisplayBankTransferInstructions != nil {
			out.HasTransferInstructions = true
		}
	}
	return out
}

func chargeFromStripe(ch *stripe.Charge) *Charge {
	if ch == nil {
		return nil
	}
	out := &Charge{
		ID:             ch.ID,
		Status:         string(ch.Status),
		AmountCaptured: ch.AmountCaptured,
		ReceiptURL:     ch.ReceiptURL,
	}
	if ch.PaymentMethodDetails != nil {
		out.MethodType = string(ch.PaymentMethodDetails.Type)
		if ch.PaymentMethodDetails.Card != nil {
			out.CardBrand = string(ch.PaymentMethodDetails.Card.Brand)
			out.CardLast4 = ch.PaymentMethodDetails.Card.Last4
		}
	}
	return out
}

func sessionFromStripe(s *stripe.CheckoutSession) *Session {
	out := &Session{
		ID:            s.ID,
		Mode:          string(s.Mode),
		Status:        string(s.Status),
		PaymentStatus: string(s.PaymentStatus),
		AmountTotal:   s.AmountTotal,
		URL:           s.URL,
		CreatedAt:     time.Unix(s.Created, 0),
	}
	if s.PaymentIntent != nil {
		out.IntentID = s.PaymentIntent.ID
	}
	if s.SetupIntent != nil {
		out.SetupIntentID = s.SetupIntent.ID
	}
	if s.CustomerDetails != nil {
		out.CustomerEmail = s.CustomerDetails.Email
	} else {
		out.CustomerEmail = s.CustomerEmail
	}
	return out
}

func paymentMethodFromStripe(pm *stripe.PaymentMethod) *GatewayPaymentMethod {
	out := &GatewayPaymentMethod{
		ID:   pm.ID,
		Type: string(pm.Type),
	}
	if pm.BillingDetails != nil {
		out.Email = pm.BillingDetails.Email
	}
	if pm.Card != nil {
		out.Brand = string(pm.Card.Brand)
		out.Last4 = pm.Card.Last4
		out.ExpMonth = pm.Card.ExpMonth
		out.ExpYear = pm.Card.ExpYear
	}
	return out
}
