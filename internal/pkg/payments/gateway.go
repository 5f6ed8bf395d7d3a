package payments

import (
	"context"
	"time"

	"github.com/colegio-mx/backoffice/internal/pkg/money"
)

// Intent is the gateway-side object for an attempted money movement.
type Intent struct {
	ID                string
	Status            string
	Amount            int64
	AmountReceived    int64
	PaymentMethodType string
	NextActionType    string
	// HostedVoucherURL is set for voucher-based methods (OXXO) that require
	// the payer to act outside the checkout flow.
	HostedVoucherURL string
	// HasTransferInstructions is set when a bank-transfer intent carries
	// displayable transfer instructions.
	HasTransferInstructions bool
}

// Charge is the executed money movement behind an intent, if any.
type Charge struct {
	ID             string
	Status         string
	AmountCaptured int64
	MethodType     string
	CardBrand      string
	CardLast4      string
	ReceiptURL     string
}

// IntentCharge pairs an intent with its latest charge for batch retrieval.
type IntentCharge struct {
	Intent *Intent
	Charge *Charge
}

// Session is a hosted checkout session.
type Session struct {
	ID            string
	Mode          string
	Status        string
	PaymentStatus string
	IntentID      string
	SetupIntentID string
	CustomerEmail string
	AmountTotal   int64
	URL           string
	CreatedAt     time.Time
}

const (
	SessionModePayment = "payment"
	SessionModeSetup   = "setup"

	SessionStatusOpen     = "open"
	SessionStatusComplete = "complete"
	SessionStatusExpired  = "expired"

	SessionPaymentStatusPaid   = "paid"
	SessionPaymentStatusUnpaid = "unpaid"
)

// GatewayPaymentMethod is the gateway's view of a stored payment method.
// Email carries the billing email used to resolve the owning local user.
type GatewayPaymentMethod struct {
	ID       string
	Type     string
	Brand    string
	Last4    string
	ExpMonth int64
	ExpYear  int64
	Email    string
}

// SetupIntent is the gateway object behind a setup-mode session.
type SetupIntent struct {
	ID              string
	Status          string
	PaymentMethodID string
}

// Balance is the gateway account balance in minor units.
type Balance struct {
	Available int64
	Pending   int64
	Currency  string
}

// Payout is a transfer from the gateway balance to the school's bank account.
type Payout struct {
	ID          string
	Amount      int64
	Status      string
	Currency    string
	ArrivalDate time.Time
	CreatedAt   time.Time
}

// Gateway abstracts the remote payment gateway. All implementations wrap
// transport and API failures into apperr.GatewayError; the core never
// branches on gateway-specific error types. Every call honors ctx deadlines.
type Gateway interface {
	GetIntentAndCharge(ctx context.Context, intentID string) (*Intent, *Charge, error)
	// GetIntentsAndChargesBatch continues past individual lookup failures,
	// logging and omitting them from the result.
	GetIntentsAndChargesBatch(ctx context.Context, intentIDs []string) (map[string]IntentCharge, error)
	GetSession(ctx context.Context, sessionID string) (*Session, error)
	GetSetupIntentFromSession(ctx context.Context, sessionID string) (*SetupIntent, error)
	RetrievePaymentMethod(ctx context.Context, methodID string) (*GatewayPaymentMethod, error)
	DetachPaymentMethod(ctx context.Context, methodID string) error
	GetBalance(ctx context.Context) (*Balance, error)
	GetPayouts(ctx context.Context, onlyThisYear bool) ([]Payout, error)
	// CreatePayout fails with a ValidationError below the configured floor.
	CreatePayout(ctx context.Context, amount money.Money) (*Payout, error)
	CancelIntent(ctx context.Context, intentID string) error
	// ExpireSessionIfPending returns false without acting for sessions that
	// are already terminal, older than an hour, or not in a cancel-safe
	// status. It never force-expires an active payment attempt.
	ExpireSessionIfPending(ctx context.Context, sessionID string) (bool, error)
}
