package apperr

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKindMatching(t *testing.T) {
	err := fmt.Errorf("mark paid: %w", Conflict("order %d already paid", 7))

	assert.True(t, errors.Is(err, ErrConflict))
	assert.False(t, errors.Is(err, ErrValidation))
	assert.Equal(t, KindConflict, KindOf(err))
	assert.Equal(t, "order 7 already paid", Message(err))
}

func TestExternalUnwrap(t *testing.T) {
	cause := errors.New("dial tcp: refused")
	err := External(cause, "sms provider")

	assert.ErrorIs(t, err, cause)
	assert.ErrorIs(t, err, ErrExternal)
	assert.Equal(t, "sms provider: dial tcp: refused", err.Error())
}

func TestKindOfPlainError(t *testing.T) {
	assert.Equal(t, Kind(""), KindOf(errors.New("boom")))
	assert.Equal(t, "boom", Message(errors.New("boom")))
}
