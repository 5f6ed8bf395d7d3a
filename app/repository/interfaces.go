package repository

import (
	"time"

	"gorm.io/gorm"

	"github.com/colegio-mx/backoffice/app/models"
)

// PaymentRepository defines the interface for payment-related database operations
type PaymentRepository interface {
	Create(payment *models.Payment) error
	GetByID(id uint) (*models.Payment, error)
	GetBySessionID(sessionID string) (*models.Payment, error)
	GetByIntentID(intentID string) (*models.Payment, error)
	// UpdateFields applies the given column updates to one payment inside a
	// single transaction; the payment row is the unit of mutual exclusion.
	UpdateFields(id uint, updates map[string]interface{}) error
	Delete(id uint) error
	// ListNeedingReconciliation selects reconcilable payments with a known
	// intent id, created within the lookback window, whose last completed
	// reconciliation (if any) is older than the freshness window.
	ListNeedingReconciliation(now time.Time, lookback, freshness time.Duration) ([]models.Payment, error)
	Count() (int64, error)
}

// PaymentEventRepository defines the interface for the append-only payment ledger
type PaymentEventRepository interface {
	// CreateIfNotExists appends a ledger entry unless one with the same
	// (external_event_id, event_type) pair already exists. It reports whether
	// a new row was created and returns the stored row either way.
	CreateIfNotExists(event *models.PaymentEvent) (bool, *models.PaymentEvent, error)
	// Append inserts an entry without a dedup key (batch summaries).
	Append(event *models.PaymentEvent) error
	// MarkWebhookOutcome settles the processing outcome on a webhook marker
	// row. A nil processErr clears any error recorded by an earlier attempt.
	MarkWebhookOutcome(id uint, outcome string, processErr *string) error
	HasCompletedReconciliation(externalEventID string) (bool, error)
	LatestCompletedReconciliation(paymentID uint) (*models.PaymentEvent, error)
	ListByPaymentID(paymentID uint, limit int) ([]models.PaymentEvent, error)
}

// PaymentMethodRepository defines the interface for stored payment method snapshots
type PaymentMethodRepository interface {
	Create(pm *models.PaymentMethod) error
	GetByExternalID(externalID string) (*models.PaymentMethod, error)
	GetByUserID(userID uint) ([]models.PaymentMethod, error)
	Update(pm *models.PaymentMethod) error
	DeleteByExternalID(externalID string) (bool, error)
}

// UserRepository defines the interface for user-related database operations
type UserRepository interface {
	Create(user *models.User) error
	GetByID(id uint) (*models.User, error)
	GetByEmail(email string) (*models.User, error)
	Update(user *models.User) error
}

// Repositories holds all repository instances
type Repositories struct {
	Payment       PaymentRepository
	PaymentEvent  PaymentEventRepository
	PaymentMethod PaymentMethodRepository
	User          UserRepository
}

// NewRepositories creates a new instance of all repositories
func NewRepositories(db *gorm.DB) *Repositories {
	return &Repositories{
		Payment:       NewPaymentRepository(db),
		PaymentEvent:  NewPaymentEventRepository(db),
		PaymentMethod: NewPaymentMethodRepository(db),
		User:          NewUserRepository(db),
	}
}
