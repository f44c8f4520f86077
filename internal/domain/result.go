package domain

import (
	"github.com/cockroachdb/errors"
)

type ResultCode string

const (
	CodeValidation      ResultCode = "validation"
	CodeUnavailable     ResultCode = "unavailable"
	CodeExpired         ResultCode = "expired"
	CodeConflict        ResultCode = "conflict"
	CodeUpstream        ResultCode = "upstream"
	CodeUnauthenticated ResultCode = "unauthenticated"
	CodeForbidden       ResultCode = "forbidden"
	CodeNotFound        ResultCode = "not_found"
	CodeNotReserved     ResultCode = "not_reserved"
)

// Result is what every booking operation hands back to its caller. Failures
// are described by Code and Message; Errors holds per-field or per-unit detail.
type Result struct {
	Success bool       `json:"success"`
	Message string     `json:"message"`
	Code    ResultCode `json:"code,omitempty"`
	Data    any        `json:"data,omitempty"`
	Errors  any        `json:"errors,omitempty"`
}

func OK(message string, data any) Result {
	return Result{Success: true, Message: message, Data: data}
}

func Fail(code ResultCode, message string) Result {
	return Result{Code: code, Message: message}
}

// ResultFromError maps the error taxonomy onto a failed Result.
func ResultFromError(err error) Result {
	var (
		validation  *ValidationError
		unavailable *UnavailableError
		expired     *ExpiredHoldError
		conflict    *ConflictDetectedError
		upstream    *UpstreamError
		transition  *TransitionError
	)
	switch {
	case errors.As(err, &validation):
		r := Fail(CodeValidation, "Please fill in all the required fields")
		r.Errors = validation.Fields
		return r
	case errors.As(err, &unavailable):
		r := Fail(CodeUnavailable, "Some of the selected units have already been reserved by other users")
		r.Errors = map[string]any{"units": unavailable.Units}
		return r
	case errors.As(err, &expired):
		return Fail(CodeExpired, expired.Reason)
	case errors.As(err, &conflict):
		r := Fail(CodeConflict, "Your selection was taken by someone else, thus the booking has been canceled")
		r.Errors = map[string]any{"units": conflict.Units}
		return r
	case errors.As(err, &transition):
		r := Fail(CodeConflict, "The reservation can no longer be changed this way")
		r.Errors = map[string]any{"state": transition.From}
		return r
	case errors.Is(err, ErrUnauthenticated):
		return Fail(CodeUnauthenticated, "Please login first")
	case errors.Is(err, ErrForbidden):
		return Fail(CodeForbidden, "You are not allowed to perform this action")
	case errors.Is(err, ErrNotFound):
		return Fail(CodeNotFound, "Not found")
	case errors.Is(err, ErrPaymentsDisabled):
		return Fail(CodeUpstream, "Payments are currently disabled")
	case errors.As(err, &upstream):
		return Fail(CodeUpstream, "Something went wrong")
	default:
		return Fail(CodeUpstream, "Something went wrong")
	}
}
