package jobqueue

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPaymentReconcileJobPayloadRoundTrip(t *testing.T) {
	payload := PaymentReconcileJobPayload{
		EventID:   "evt_123",
		SessionID: "cs_456",
	}

	restored, err := PaymentReconcileJobPayloadFromMap(payload.ToMap())
	require.NoError(t, err)
	assert.Equal(t, payload, *restored)
}

func TestSendMailJobPayloadRoundTrip(t *testing.T) {
	payload := SendMailJobPayload{
		To:      "ana@example.com",
		Subject: "Pago recibido",
		Body:    "<p>hola</p>",
	}

	restored, err := SendMailJobPayloadFromMap(payload.ToMap())
	require.NoError(t, err)
	assert.Equal(t, payload, *restored)
}

func TestJobStateTransitions(t *testing.T) {
	job := &Job{
		ID:         "job-1",
		Type:       JobTypePaymentReconcile,
		Status:     JobStatusPending,
		MaxRetries: 3,
	}

	job.MarkAsProcessing()
	assert.Equal(t, JobStatusProcessing, job.Status)
	require.NotNil(t, job.ProcessedAt)

	job.MarkAsFailed("gateway timeout")
	assert.Equal(t, JobStatusFailed, job.Status)
	assert.Equal(t, 1, job.RetryCount)
	assert.True(t, job.IsRetryable())

	job.MarkAsFailed("gateway timeout")
	job.MarkAsFailed("gateway timeout")
	assert.Equal(t, 3, job.RetryCount)
	assert.False(t, job.IsRetryable())

	job.MarkAsCompleted()
	assert.Equal(t, JobStatusCompleted, job.Status)
	assert.Empty(t, job.ErrorMsg)
	require.NotNil(t, job.CompletedAt)
	assert.WithinDuration(t, time.Now(), *job.CompletedAt, time.Minute)
}
