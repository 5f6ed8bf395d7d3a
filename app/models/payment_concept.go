package models

import "time"

// PaymentConcept describes what a payment is for (tuition month, enrollment
// fee, materials). Concept CRUD lives outside this core; the reconciliation
// subsystem only reads it for mail content.
type PaymentConcept struct {
	ID          uint       `gorm:"primaryKey" json:"id"`
	Name        string     `gorm:"type:varchar(191);not null" json:"name"`
	Description string     `gorm:"type:text" json:"description"`
	Amount      string     `gorm:"type:decimal(12,2);not null" json:"amount"`
	DueDate     *time.Time `gorm:"type:timestamp;default:null" json:"due_date,omitempty"`
	CreatedAt   time.Time  `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt   time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}
