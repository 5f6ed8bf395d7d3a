package models

import "time"

const (
	PaymentEventWebhookReceived          = "webhook_received"
	PaymentEventReconciliationStarted    = "reconciliation_started"
	PaymentEventReconciliationCompleted  = "reconciliation_completed"
	PaymentEventReconciliationFailed     = "reconciliation_failed"
	PaymentEventBatchReconciliationDone  = "batch_reconciliation_completed"
)

const (
	PaymentOutcomeReceived            = "received"
	PaymentOutcomeSuccess             = "success"
	PaymentOutcomeFailed              = "failed"
	PaymentOutcomeNoop                = "noop"
	PaymentOutcomeErrorReconciliation = "error_payment_reconciliation"
)

// PaymentEvent is one entry of the payment ledger: webhooks received,
// reconciliations attempted, succeeded or failed. Entries are appended, never
// deleted; the composite unique index on (external_event_id, event_type) is
// the dedup key that makes event application idempotent under at-least-once
// delivery. The one permitted mutation is settling Outcome and Error on a
// webhook_received marker once its delivery has been processed, so a
// redelivery can tell an applied event from a failed attempt.
type PaymentEvent struct {
	ID              uint      `gorm:"primaryKey" json:"id"`
	EventType       string    `gorm:"type:varchar(64);not null;index;uniqueIndex:ux_payment_events_dedup,priority:2" json:"event_type"`
	PaymentID       *uint     `gorm:"default:null;index" json:"payment_id,omitempty"`
	ExternalEventID *string   `gorm:"type:varchar(191);default:null;uniqueIndex:ux_payment_events_dedup,priority:1" json:"external_event_id,omitempty"`
	SessionID       *string   `gorm:"type:varchar(191);default:null;index" json:"session_id,omitempty"`
	IntentID        *string   `gorm:"type:varchar(191);default:null;index" json:"intent_id,omitempty"`
	Outcome         string    `gorm:"type:varchar(64);not null;default:''" json:"outcome"`
	Metadata        *string   `gorm:"type:json;default:null" json:"metadata,omitempty"`
	Amount          *string   `gorm:"type:decimal(12,2);default:null" json:"amount,omitempty"`
	Error           *string   `gorm:"type:text;default:null" json:"error,omitempty"`
	Status          *string   `gorm:"type:varchar(32);default:null" json:"status,omitempty"`
	CreatedAt       time.Time `gorm:"autoCreateTime;index" json:"created_at"`
}
