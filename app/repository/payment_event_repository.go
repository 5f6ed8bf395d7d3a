package repository

import (
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/colegio-mx/backoffice/app/models"
)

// paymentEventRepository implements the PaymentEventRepository interface
type paymentEventRepository struct {
	db *gorm.DB
}

// NewPaymentEventRepository creates a new payment event repository instance
func NewPaymentEventRepository(db *gorm.DB) PaymentEventRepository {
	return &paymentEventRepository{db: db}
}

// CreateIfNotExists relies on the composite unique index on
// (external_event_id, event_type). The DoNothing insert keeps the check
// correct under true concurrent delivery, not just within one process.
func (r *paymentEventRepository) CreateIfNotExists(event *models.PaymentEvent) (bool, *models.PaymentEvent, error) {
	if event.ExternalEventID == nil || *event.ExternalEventID == "" {
		// No dedup key: plain append, always "new".
		if err := r.db.Create(event).Error; err != nil {
			return false, nil, err
		}
		return true, event, nil
	}

	tx := r.db.Clauses(clause.OnConflict{
		Columns: []clause.Column{
			{Name: "external_event_id"},
			{Name: "event_type"},
		},
		DoNothing: true,
	}).Create(event)
	if tx.Error != nil {
		return false, nil, tx.Error
	}

	created := tx.RowsAffected > 0
	var stored models.PaymentEvent
	if err := r.db.Where("external_event_id = ? AND event_type = ?", *event.ExternalEventID, event.EventType).
		First(&stored).Error; err != nil {
		return false, nil, err
	}
	return created, &stored, nil
}

func (r *paymentEventRepository) Append(event *models.PaymentEvent) error {
	return r.db.Create(event).Error
}

func (r *paymentEventRepository) MarkWebhookOutcome(id uint, outcome string, processErr *string) error {
	return r.db.Model(&models.PaymentEvent{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"outcome": outcome,
			"error":   processErr,
		}).Error
}

func (r *paymentEventRepository) HasCompletedReconciliation(externalEventID string) (bool, error) {
	var count int64
	err := r.db.Model(&models.PaymentEvent{}).
		Where("external_event_id = ? AND event_type = ?", externalEventID, models.PaymentEventReconciliationCompleted).
		Count(&count).Error
	return count > 0, err
}

func (r *paymentEventRepository) LatestCompletedReconciliation(paymentID uint) (*models.PaymentEvent, error) {
	var event models.PaymentEvent
	err := r.db.
		Where("payment_id = ? AND event_type = ?", paymentID, models.PaymentEventReconciliationCompleted).
		Order("created_at DESC").
		First(&event).Error
	if err != nil {
		return nil, err
	}
	return &event, nil
}

func (r *paymentEventRepository) ListByPaymentID(paymentID uint, limit int) ([]models.PaymentEvent, error) {
	if limit <= 0 {
		limit = 50
	}
	var events []models.PaymentEvent
	err := r.db.
		Where("payment_id = ?", paymentID).
		Order("created_at DESC").
		Limit(limit).
		Find(&events).Error
	return events, err
}
