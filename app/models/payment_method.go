package models

import "time"

const (
	PaymentMethodTypeCard            = "card"
	PaymentMethodTypeOXXO            = "oxxo"
	PaymentMethodTypeCustomerBalance = "customer_balance"
)

// PaymentMethod is the locally stored snapshot of a gateway payment method
// attached to a user (card brand/last4 shown in the back office).
type PaymentMethod struct {
	ID         uint      `gorm:"primaryKey" json:"id"`
	UserID     uint      `gorm:"not null;index" json:"user_id"`
	ExternalID string    `gorm:"type:varchar(191);not null;uniqueIndex" json:"external_id"`
	Type       string    `gorm:"type:varchar(32);not null;default:'card'" json:"type"`
	Brand      string    `gorm:"type:varchar(32)" json:"brand"`
	Last4      string    `gorm:"type:varchar(4)" json:"last4"`
	ExpMonth   int64     `json:"exp_month"`
	ExpYear    int64     `json:"exp_year"`
	CreatedAt  time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt  time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

// SameCard reports whether the stored snapshot already matches the incoming
// card fields, so duplicate webhook deliveries can skip the write.
func (pm *PaymentMethod) SameCard(brand, last4 string, expMonth, expYear int64) bool {
	return pm.Brand == brand && pm.Last4 == last4 && pm.ExpMonth == expMonth && pm.ExpYear == expYear
}
