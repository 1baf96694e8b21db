package stagerunner

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRuntimeError(t *testing.T) {
	base := errors.New("config file unreadable")
	err := NewRuntimeError(base)

	assert.Contains(t, err.Error(), "runtime error")
	assert.Contains(t, err.Error(), "config file unreadable")
	assert.ErrorIs(t, err, base)

	assert.True(t, IsRuntimeError(err))
	assert.True(t, IsRuntimeError(fmt.Errorf("wrapped: %w", err)))
	assert.False(t, IsRuntimeError(base))
	assert.False(t, IsRuntimeError(nil))
}

func TestStageFailureError(t *testing.T) {
	err := NewStageFailureError("2 stages failed")

	assert.Contains(t, err.Error(), "stage failure")
	assert.True(t, IsStageFailureError(err))
	assert.True(t, IsStageFailureError(fmt.Errorf("wrapped: %w", err)))
	assert.False(t, IsStageFailureError(errors.New("other")))
	assert.False(t, IsStageFailureError(nil))
}

func TestErrorKindsAreDistinct(t *testing.T) {
	runtime := NewRuntimeError(errors.New("boom"))
	failure := NewStageFailureError("boom")

	assert.False(t, IsStageFailureError(runtime))
	assert.False(t, IsRuntimeError(failure))
}
