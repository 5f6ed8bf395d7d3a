package apperr

import (
	"errors"
	"fmt"
)

// ValidationError signals bad input. It is always local and is surfaced to
// the caller instead of being retried.
type ValidationError struct {
	Msg string
}

func (e *ValidationError) Error() string {
	return e.Msg
}

// NotFoundError signals an expected entity that is missing. A missing local
// record for a gateway event is an expected race, so handlers treat this as
// a no-op rather than a failure.
type NotFoundError struct {
	Entity string
	Key    string
}

func (e *NotFoundError) Error() string {
	if e.Key == "" {
		return fmt.Sprintf("%s not found", e.Entity)
	}
	return fmt.Sprintf("%s not found: %s", e.Entity, e.Key)
}

// GatewayError wraps any failure talking to the payment gateway (transport,
// timeout, rate limit, API error). Callers never branch on gateway-specific
// error types, only on this kind.
type GatewayError struct {
	Op  string
	Err error
}

func (e *GatewayError) Error() string {
	return fmt.Sprintf("gateway %s: %v", e.Op, e.Err)
}

func (e *GatewayError) Unwrap() error {
	return e.Err
}

// LogicError signals a violated programmer invariant (e.g. dividing money by
// zero). It is never caught and never retried.
type LogicError struct {
	Msg string
}

func (e *LogicError) Error() string {
	return e.Msg
}

func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

func IsNotFound(err error) bool {
	var nf *NotFoundError
	return errors.As(err, &nf)
}

func IsGateway(err error) bool {
	var ge *GatewayError
	return errors.As(err, &ge)
}

func IsLogic(err error) bool {
	var le *LogicError
	return errors.As(err, &le)
}
