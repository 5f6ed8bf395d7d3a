package models

import (
	"time"
)

const (
	PaymentStatusPending        = "PENDING"
	PaymentStatusPaid           = "PAID"
	PaymentStatusUnpaid         = "UNPAID"
	PaymentStatusRequiresAction = "REQUIRES_ACTION"
	PaymentStatusCanceled       = "CANCELED"
)

// Payment is one row per attempted charge. It is created when a checkout
// session is initiated and mutated by webhook handlers and the reconciliation
// engine as the gateway's truth becomes known. The core never hard-deletes
// payments except the failed/expired cleanup in the webhook handlers.
type Payment struct {
	ID                   uint       `gorm:"primaryKey" json:"id"`
	UserID               uint       `gorm:"not null;index" json:"user_id"`
	ConceptID            uint       `gorm:"not null;index" json:"concept_id"`
	Amount               string     `gorm:"type:decimal(12,2);not null" json:"amount"`
	AmountReceived       *string    `gorm:"type:decimal(12,2);default:null" json:"amount_received,omitempty"`
	Status               string     `gorm:"type:varchar(32);not null;default:'PENDING';index" json:"status"`
	PaymentIntentID      *string    `gorm:"type:varchar(191);default:null;uniqueIndex:ux_payments_intent" json:"payment_intent_id,omitempty"`
	StripeSessionID      *string    `gorm:"type:varchar(191);default:null;uniqueIndex:ux_payments_session" json:"stripe_session_id,omitempty"`
	PaymentMethodDetails *string    `gorm:"type:json;default:null" json:"payment_method_details,omitempty"`
	URL                  *string    `gorm:"type:varchar(1024);default:null" json:"url,omitempty"`
	User                 *User      `gorm:"foreignKey:UserID" json:"-"`
	CreatedAt            time.Time  `gorm:"autoCreateTime;index" json:"created_at"`
	UpdatedAt            time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}

// ReconcilableStatuses lists the statuses eligible for the reconciliation
// sweep. PAID and CANCELED are terminal for reconciliation purposes.
func ReconcilableStatuses() []string {
	return []string{PaymentStatusPending, PaymentStatusUnpaid, PaymentStatusRequiresAction}
}

func (p *Payment) IsReconcilable() bool {
	switch p.Status {
	case PaymentStatusPending, PaymentStatusUnpaid, PaymentStatusRequiresAction:
		return true
	default:
		return false
	}
}

func (p *Payment) IsPaid() bool {
	return p.Status == PaymentStatusPaid
}

func (p *Payment) IsTerminal() bool {
	return p.Status == PaymentStatusPaid || p.Status == PaymentStatusCanceled
}
