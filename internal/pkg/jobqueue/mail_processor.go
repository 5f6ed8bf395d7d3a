package jobqueue

import (
	"fmt"

	"github.com/colegio-mx/backoffice/internal/pkg/mail"
)

// processSendMailJob delivers one rendered email via SMTP. A transport
// error returns to the queue for retry with backoff.
func (q *Queue) processSendMailJob(job *Job) error {
	payload, err := SendMailJobPayloadFromMap(job.Payload)
	if err != nil {
		return fmt.Errorf("invalid send mail payload: %w", err)
	}
	if payload.To == "" {
		return fmt.Errorf("send mail payload missing recipient")
	}

	return mail.SendMail(payload.To, payload.Subject, payload.Body)
}
