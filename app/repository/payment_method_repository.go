package repository

import (
	"gorm.io/gorm"

	"github.com/colegio-mx/backoffice/app/models"
)

// paymentMethodRepository implements the PaymentMethodRepository interface
type paymentMethodRepository struct {
	db *gorm.DB
}

// NewPaymentMethodRepository creates a new payment method repository instance
func NewPaymentMethodRepository(db *gorm.DB) PaymentMethodRepository {
	return &paymentMethodRepository{db: db}
}

func (r *paymentMethodRepository) Create(pm *models.PaymentMethod) error {
	return r.db.Create(pm).Error
}

func (r *paymentMethodRepository) GetByExternalID(externalID string) (*models.PaymentMethod, error) {
	var pm models.PaymentMethod
	err := r.db.Where("external_id = ?", externalID).First(&pm).Error
	if err != nil {
		return nil, err
	}
	return &pm, nil
}

func (r *paymentMethodRepository) GetByUserID(userID uint) ([]models.PaymentMethod, error) {
	var pms []models.PaymentMethod
	err := r.db.Where("user_id = ?", userID).Order("created_at DESC").Find(&pms).Error
	return pms, err
}

func (r *paymentMethodRepository) Update(pm *models.PaymentMethod) error {
	return r.db.Save(pm).Error
}

// DeleteByExternalID removes a stored method and reports whether a row
// actually existed; deleting an already absent method is not an error.
func (r *paymentMethodRepository) DeleteByExternalID(externalID string) (bool, error) {
	tx := r.db.Where("external_id = ?", externalID).Delete(&models.PaymentMethod{})
	if tx.Error != nil {
		return false, tx.Error
	}
	return tx.RowsAffected > 0, nil
}
