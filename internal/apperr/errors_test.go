package apperr

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestInvalidUnwrapsToKind(t *testing.T) {
	err := fmt.Errorf("add item: %w", Invalid("size is required"))

	assert.ErrorIs(t, err, ErrInvalidInput)
	assert.NotErrorIs(t, err, ErrNotFound)
	assert.Equal(t, "size is required", Reason(err))
}

func TestReasonFallsBackToKind(t *testing.T) {
	assert.Equal(t, "amount mismatch", Reason(fmt.Errorf("order x: %w", ErrAmountMismatch)))
	assert.Equal(t, "internal error", Reason(errors.New("boom")))
}

func TestConflictAndNotFoundReasons(t *testing.T) {
	err := Conflict("order is not awaiting payment")
	assert.ErrorIs(t, err, ErrConflict)
	assert.Equal(t, "order is not awaiting payment", Reason(err))

	assert.ErrorIs(t, NotFound("order not found"), ErrNotFound)
}
