package payments

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestSessionExpirable(t *testing.T) {
	now := time.Date(2026, 9, 1, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name          string
		status        string
		paymentStatus string
		age           time.Duration
		want          bool
	}{
		{"open unpaid and fresh", SessionStatusOpen, SessionPaymentStatusUnpaid, 10 * time.Minute, true},
		{"open unpaid at the age cutoff", SessionStatusOpen, SessionPaymentStatusUnpaid, time.Hour, true},
		{"completed session is terminal", SessionStatusComplete, SessionPaymentStatusPaid, 10 * time.Minute, false},
		{"already expired session is terminal", SessionStatusExpired, SessionPaymentStatusUnpaid, 10 * time.Minute, false},
		{"older than the age cutoff", SessionStatusOpen, SessionPaymentStatusUnpaid, time.Hour + time.Minute, false},
		{"paid status is not cancel-safe", SessionStatusOpen, SessionPaymentStatusPaid, 10 * time.Minute, false},
		{"no_payment_required is not cancel-safe", SessionStatusOpen, "no_payment_required", 10 * time.Minute, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := &Session{
				ID:            "cs_test",
				Status:        tt.status,
				PaymentStatus: tt.paymentStatus,
				CreatedAt:     now.Add(-tt.age),
			}
			assert.Equal(t, tt.want, sessionExpirable(s, now))
		})
	}
}
