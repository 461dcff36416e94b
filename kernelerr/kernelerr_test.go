package kernelerr

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestErrorsIs_ComparesOnlyKind(t *testing.T) {
	err := New(NotFound, "agent xyz not found")
	assert.True(t, errors.Is(err, NotFoundErr))
	assert.False(t, errors.Is(err, BadRequestErr))
}

func TestWrap_PreservesUnderlyingError(t *testing.T) {
	inner := fmt.Errorf("disk full")
	wrapped := Wrap(ToolFailure, "write failed", inner)
	assert.True(t, errors.Is(wrapped, ToolFailureErr))
	assert.ErrorIs(t, wrapped, inner)
}

func TestKindOf(t *testing.T) {
	kind, ok := KindOf(New(CancelledByUser, "stopped"))
	assert.True(t, ok)
	assert.Equal(t, CancelledByUser, kind)

	_, ok = KindOf(fmt.Errorf("plain error"))
	assert.False(t, ok)
}
