package apperr

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestErrorKindPredicates(t *testing.T) {
	validation := &ValidationError{Msg: "amount must be numeric"}
	notFound := &NotFoundError{Entity: "payment", Key: "cs_123"}
	gateway := &GatewayError{Op: "get intent", Err: errors.New("timeout")}
	logic := &LogicError{Msg: "money: division by zero"}

	assert.True(t, IsValidation(validation))
	assert.False(t, IsValidation(notFound))

	assert.True(t, IsNotFound(notFound))
	assert.False(t, IsNotFound(gateway))

	assert.True(t, IsGateway(gateway))
	assert.False(t, IsGateway(logic))

	assert.True(t, IsLogic(logic))
	assert.False(t, IsLogic(validation))
}

func TestPredicatesSeeThroughWrapping(t *testing.T) {
	cause := &GatewayError{Op: "create payout", Err: errors.New("rate limited")}
	wrapped := fmt.Errorf("sweep aborted: %w", cause)

	assert.True(t, IsGateway(wrapped))
	assert.False(t, IsValidation(wrapped))
}

func TestGatewayErrorUnwrap(t *testing.T) {
	inner := errors.New("connection reset")
	err := &GatewayError{Op: "get balance", Err: inner}

	assert.ErrorIs(t, err, inner)
	assert.Equal(t, "gateway get balance: connection reset", err.Error())
}

func TestNotFoundErrorMessage(t *testing.T) {
	assert.Equal(t, "payment not found: cs_1", (&NotFoundError{Entity: "payment", Key: "cs_1"}).Error())
	assert.Equal(t, "payment not found", (&NotFoundError{Entity: "payment"}).Error())
}
