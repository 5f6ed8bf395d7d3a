package repository

import (
	"time"

	"gorm.io/gorm"

	"github.com/colegio-mx/backoffice/app/models"
)

// paymentRepository implements the PaymentRepository interface
type paymentRepository struct {
	db *gorm.DB
}

// NewPaymentRepository creates a new payment repository instance
func NewPaymentRepository(db *gorm.DB) PaymentRepository {
	return &paymentRepository{db: db}
}

func (r *paymentRepository) Create(payment *models.Payment) error {
	return r.db.Create(payment).Error
}

func (r *paymentRepository) GetByID(id uint) (*models.Payment, error) {
	var payment models.Payment
	err := r.db.First(&payment, id).Error
	if err != nil {
		return nil, err
	}
	return &payment, nil
}

func (r *paymentRepository) GetBySessionID(sessionID string) (*models.Payment, error) {
	var payment models.Payment
	err := r.db.Where("stripe_session_id = ?", sessionID).First(&payment).Error
	if err != nil {
		return nil, err
	}
	return &payment, nil
}

func (r *paymentRepository) GetByIntentID(intentID string) (*models.Payment, error) {
	var payment models.Payment
	err := r.db.Where("payment_intent_id = ?", intentID).First(&payment).Error
	if err != nil {
		return nil, err
	}
	return &payment, nil
}

// UpdateFields writes the given columns inside one transaction so a payment
// row is never half-updated.
func (r *paymentRepository) UpdateFields(id uint, updates map[string]interface{}) error {
	return r.db.Transaction(func(tx *gorm.DB) error {
		return tx.Model(&models.Payment{}).Where("id = ?", id).Updates(updates).Error
	})
}

func (r *paymentRepository) Delete(id uint) error {
	return r.db.Delete(&models.Payment{}, id).Error
}

// ListNeedingReconciliation applies the sweep selection policy: reconcilable
// status, known intent id, created within the lookback window, and either no
// completed reconciliation yet or the most recent one older than freshness.
func (r *paymentRepository) ListNeedingReconciliation(now time.Time, lookback, freshness time.Duration) ([]models.Payment, error) {
	var payments []models.Payment
	cutoff := now.Add(-lookback)
	freshCutoff := now.Add(-freshness)

	err := r.db.
		Where("status IN ?", models.ReconcilableStatuses()).
		Where("payment_intent_id IS NOT NULL").
		Where("created_at >= ?", cutoff).
		Where(`NOT EXISTS (
			SELECT 1 FROM payment_events
			WHERE payment_events.payment_id = payments.id
			  AND payment_events.event_type = ?
			  AND payment_events.created_at > ?
		)`, models.PaymentEventReconciliationCompleted, freshCutoff).
		Order("created_at ASC").
		Find(&payments).Error
	return payments, err
}

func (r *paymentRepository) Count() (int64, error) {
	var count int64
	err := r.db.Model(&models.Payment{}).Count(&count).Error
	return count, err
}
