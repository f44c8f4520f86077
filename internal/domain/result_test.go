package domain

import (
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
)

func TestResultFromError(t *testing.T) {
	validation := NewValidationError()
	validation.Add("rooms", "Please select a room")

	tests := []struct {
		name string
		err  error
		code ResultCode
	}{
		{"validation", validation, CodeValidation},
		{"unavailable", &UnavailableError{Units: []string{"r1"}}, CodeUnavailable},
		{"expired", &ExpiredHoldError{Code: "HT-1", Reason: "expired"}, CodeExpired},
		{"conflict", errors.Wrap(&ConflictDetectedError{Code: "HT-1"}, "get reserved"), CodeConflict},
		{"unauthenticated", ErrUnauthenticated, CodeUnauthenticated},
		{"forbidden", ErrForbidden, CodeForbidden},
		{"not found", errors.Wrap(ErrNotFound, "lookup"), CodeNotFound},
		{"payments disabled", ErrPaymentsDisabled, CodeUpstream},
		{"upstream", &UpstreamError{Op: "stripe", Err: errors.New("boom")}, CodeUpstream},
		{"unknown", errors.New("boom"), CodeUpstream},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := ResultFromError(tt.err)
			assert.False(t, r.Success)
			assert.Equal(t, tt.code, r.Code)
			assert.NotEmpty(t, r.Message)
		})
	}
}

func TestResultFromError_ExplainsWhy(t *testing.T) {
	r := ResultFromError(&ExpiredHoldError{Code: "FL-1", Reason: "Flight booking has expired as the flight date has passed"})
	assert.Equal(t, "Flight booking has expired as the flight date has passed", r.Message)

	validation := NewValidationError()
	validation.Add("guests[0].email", "Email is required")
	r = ResultFromError(validation)
	assert.Equal(t, map[string]string{"guests[0].email": "Email is required"}, r.Errors)
}

func TestUnavailableErrorIsConflict(t *testing.T) {
	assert.ErrorIs(t, &UnavailableError{Units: []string{"a"}}, ErrConflict)
	assert.ErrorIs(t, &ConflictDetectedError{}, ErrConflict)
}
