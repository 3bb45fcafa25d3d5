package schema

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidationResult_EmptyIsValid(t *testing.T) {
	r := &ValidationResult{}
	assert.True(t, r.Valid())
	assert.NoError(t, r.ToError())
}

func TestValidationResult_AddError(t *testing.T) {
	r := &ValidationResult{}
	r.AddError("recipes[prepare_1].inputs", ErrCodeValidation, "recipe has no inputs")

	assert.False(t, r.Valid())
	require.Len(t, r.Errors, 1)
	assert.Equal(t, "recipes[prepare_1].inputs", r.Errors[0].Path)
	assert.Equal(t, ErrCodeValidation, r.Errors[0].Code)
	assert.Equal(t, SeverityError, r.Errors[0].Severity)
}

func TestValidationResult_AddWarning(t *testing.T) {
	r := &ValidationResult{}
	r.AddWarning("datasets[df]", ErrCodeValidation, "orphan dataset")

	assert.True(t, r.Valid(), "warnings alone should not make result invalid")
	require.Len(t, r.Warnings, 1)
	assert.Equal(t, SeverityWarning, r.Warnings[0].Severity)
}

func TestValidationResult_Merge(t *testing.T) {
	r1 := &ValidationResult{}
	r1.AddError("/", ErrCodeValidation, "err1")
	r2 := &ValidationResult{}
	r2.AddError("/", ErrCodeCycleDetected, "err2")
	r2.AddWarning("/", ErrCodeValidation, "warn2")

	r1.Merge(r2)
	r1.Merge(nil)
	assert.Len(t, r1.Errors, 2)
	assert.Len(t, r1.Warnings, 1)
}

func TestValidationResult_ToError(t *testing.T) {
	r := &ValidationResult{}
	r.AddError("/", ErrCodeValidation, "first")
	r.AddError("/", ErrCodeValidation, "second")

	err := r.ToError()
	require.Error(t, err)
	var fe *FlowError
	require.True(t, errors.As(err, &fe))
	assert.Equal(t, ErrCodeValidation, fe.Code)
	assert.Equal(t, "validation failed with 2 errors", fe.Message)
	assert.Equal(t, 2, fe.Details["error_count"])
}

func TestValidationResult_Notes(t *testing.T) {
	r := &ValidationResult{}
	r.AddWarning("a", "W", "warn")
	r.AddError("b", "E", "err")

	notes := r.Notes()
	require.Len(t, notes, 2)
	assert.Equal(t, SeverityError, notes[0].Severity)
	assert.Equal(t, "b", notes[0].Ref)
	assert.Equal(t, SeverityWarning, notes[1].Severity)
}

func TestFlowError_Format(t *testing.T) {
	assert.Equal(t, "[SYNTAX_ERROR] line 3: unexpected token",
		NewError(ErrCodeSyntax, "unexpected token").WithLine(3).Error())
	assert.Equal(t, "[DANGLING_REFERENCE] df: never produced",
		NewError(ErrCodeDanglingReference, "never produced").WithRef("df").Error())
	assert.Equal(t, "[INTERNAL_ERROR] boom", NewErrorf(ErrCodeInternal, "%s", "boom").Error())
}

func TestFlowError_CodeThroughWrapping(t *testing.T) {
	cause := errors.New("dial tcp: connection refused")
	err := fmt.Errorf("semantic analysis: %w",
		NewError(ErrCodeProvider, "provider call failed").WithCause(cause).AsTransient())

	assert.True(t, HasCode(err, ErrCodeProvider))
	assert.False(t, HasCode(err, ErrCodeResponseParse))
	assert.ErrorIs(t, err, cause)

	var fe *FlowError
	require.True(t, errors.As(err, &fe))
	assert.True(t, fe.IsRetryable())
	assert.False(t, NewError(ErrCodeResponseParse, "bad json").IsRetryable())
	assert.Equal(t, "", ErrorCode(errors.New("plain")))
}

func TestFlowAddNote_Deduplicates(t *testing.T) {
	f := NewFlow("f")
	n := Warning(NoteEmptySettings, "sort_1", "sort recipe has no columns")
	assert.True(t, f.AddNote(n))
	assert.False(t, f.AddNote(n))
	assert.Len(t, f.Notes, 1)
	assert.Len(t, FilterNotes(append(f.Notes, Info("X", "", "i")), SeverityWarning), 1)
}
