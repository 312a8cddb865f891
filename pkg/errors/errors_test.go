package errors

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCloneMatchesPredefinedByCode(t *testing.T) {
	err := Clone(ErrNoFeasibleSchedule, "level L1 cannot fit")
	assert.True(t, errors.Is(err, ErrNoFeasibleSchedule))
	assert.False(t, errors.Is(err, ErrBudgetExceeded))
	assert.Equal(t, "level L1 cannot fit", err.Error())
	assert.Equal(t, "no feasible schedule exists", ErrNoFeasibleSchedule.Message)
}

func TestWrapKeepsCause(t *testing.T) {
	cause := fmt.Errorf("bad duration")
	err := Wrap(cause, ErrMalformedInput.Code, ErrMalformedInput.Status, "exam e1")
	assert.ErrorIs(t, err, cause)
	assert.ErrorIs(t, err, ErrMalformedInput)
	assert.Equal(t, "exam e1: bad duration", err.Error())
}

func TestFromError(t *testing.T) {
	assert.Nil(t, FromError(nil))

	wrapped := fmt.Errorf("outer: %w", Clone(ErrInfeasibleDimensions, ""))
	appErr := FromError(wrapped)
	require.NotNil(t, appErr)
	assert.Equal(t, ErrInfeasibleDimensions.Code, appErr.Code)

	plain := FromError(errors.New("boom"))
	assert.Equal(t, ErrInternal.Code, plain.Code)
}
