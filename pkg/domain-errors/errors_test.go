package domainerrors

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewAndHasCode(t *testing.T) {
	err := New(CodeNotFound, "property not found")
	assert.True(t, HasCode(err, CodeNotFound))
	assert.False(t, HasCode(err, CodeForbidden))
	assert.Contains(t, err.Error(), "property not found")
}

func TestNewf(t *testing.T) {
	err := Newf(CodeInvalidTransition, "invoice cannot move from %s to %s", "paid", "pending")
	assert.True(t, HasCode(err, CodeInvalidTransition))
	assert.Contains(t, err.Error(), "invoice cannot move from paid to pending")
}

func TestWrap_PreservesCause(t *testing.T) {
	cause := errors.New("connection refused")
	err := Wrap(cause, CodeInternal, "loading user")

	assert.True(t, HasCode(err, CodeInternal))
	assert.ErrorIs(t, err, cause)
}

func TestWrap_CodeTakesPrecedenceOverWrappedCode(t *testing.T) {
	inner := New(CodeNotFound, "row missing")
	outer := Wrap(inner, CodeStaleState, "conditional write lost")

	// The outermost code wins; HasCode inspects the nearest coded error.
	assert.Equal(t, CodeStaleState, CodeOf(outer))
}

func TestCodeOf(t *testing.T) {
	assert.Equal(t, CodeConflict, CodeOf(New(CodeConflict, "duplicate")))
	assert.Equal(t, CodeInternal, CodeOf(errors.New("uncoded")))
	assert.Equal(t, CodeInternal, CodeOf(nil))
}

func TestHasCode_ThroughFmtWrapping(t *testing.T) {
	err := fmt.Errorf("outer context: %w", New(CodeForbidden, "not_owner"))
	assert.True(t, HasCode(err, CodeForbidden))
}

func TestError_UnwrapChain(t *testing.T) {
	cause := errors.New("root")
	err := Wrap(Wrap(cause, CodeInternal, "mid"), CodeContention, "top")

	require.ErrorIs(t, err, cause)
	assert.True(t, HasCode(err, CodeContention))
}
