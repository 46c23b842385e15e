package utils

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type TestStruct struct {
	Prompt     string  `json:"prompt" validate:"required"`
	DeadlineMs int     `json:"deadline_ms" validate:"gte=0,lte=120000"`
	Mode       string  `json:"mode,omitempty" validate:"omitempty,oneof=fast full"`
	Untagged   float64 `validate:"lte=2"`
}

func TestValidateStruct(t *testing.T) {
	t.Run("valid struct", func(t *testing.T) {
		s := TestStruct{Prompt: "quiz", DeadlineMs: 30000, Mode: "fast"}

		assert.NoError(t, ValidateStruct(&s))
	})

	t.Run("missing required field uses json name", func(t *testing.T) {
		s := TestStruct{DeadlineMs: 1000}

		err := ValidateStruct(&s)
		require.Error(t, err)
		assert.True(t, IsValidationError(err))

		fields := GetValidationFields(err)
		assert.Equal(t, "prompt is required", fields["prompt"])
	})

	t.Run("out of range and oneof", func(t *testing.T) {
		s := TestStruct{Prompt: "quiz", DeadlineMs: 500000, Mode: "turbo"}

		err := ValidateStruct(&s)
		require.Error(t, err)

		fields := GetValidationFields(err)
		assert.Contains(t, fields, "deadline_ms")
		assert.Equal(t, "mode must be one of: fast full", fields["mode"])
	})

	t.Run("untagged field falls back to struct name", func(t *testing.T) {
		s := TestStruct{Prompt: "quiz", Untagged: 3}

		fields := GetValidationFields(ValidateStruct(&s))
		assert.Contains(t, fields, "Untagged")
	})
}

func TestNewValidationError(t *testing.T) {
	s := TestStruct{DeadlineMs: -1}

	err := ValidateStruct(&s)
	require.Error(t, err)

	validationErr, ok := err.(*ValidationError)
	require.True(t, ok)

	assert.Equal(t, "Validation failed", validationErr.Message)
	assert.Contains(t, validationErr.Fields, "prompt")
	assert.Contains(t, validationErr.Fields, "deadline_ms")
}

func TestValidationError_Error(t *testing.T) {
	t.Run("without fields", func(t *testing.T) {
		err := &ValidationError{Message: "Test validation error"}
		assert.Equal(t, "Test validation error", err.Error())
	})

	t.Run("fields are listed in order", func(t *testing.T) {
		err := &ValidationError{
			Message: "Validation failed",
			Fields: map[string]string{
				"b": "b is required",
				"a": "a is required",
			},
		}
		assert.Equal(t, "Validation failed: a is required; b is required", err.Error())
	})
}

func TestIsValidationError(t *testing.T) {
	assert.True(t, IsValidationError(&ValidationError{Message: "test"}))
	assert.False(t, IsValidationError(assert.AnError))
}

func TestGetValidationFields(t *testing.T) {
	fields := map[string]string{"field1": "error1"}
	assert.Equal(t, fields, GetValidationFields(&ValidationError{Message: "test", Fields: fields}))
	assert.Nil(t, GetValidationFields(assert.AnError))
}
