package domain

import (
	"sort"
	"strings"

	"github.com/cockroachdb/errors"
)

var (
	ErrSerializationFailure = errors.New("serialization failure")
	ErrNotFound             = errors.New("not found")
	ErrConflict             = errors.New("conflict")
	ErrInvalidInput         = errors.New("invalid input")
	ErrUnauthenticated      = errors.New("unauthenticated")
	ErrForbidden            = errors.New("forbidden")
	ErrPaymentsDisabled     = errors.New("payments are disabled")
)

// ValidationError carries per-field messages for rejected booking input.
type ValidationError struct {
	Fields map[string]string
}

func NewValidationError() *ValidationError {
	return &ValidationError{Fields: map[string]string{}}
}

func (e *ValidationError) Add(field, msg string) {
	if _, ok := e.Fields[field]; !ok {
		e.Fields[field] = msg
	}
}

func (e *ValidationError) Empty() bool {
	return len(e.Fields) == 0
}

// Err returns e as an error, or nil when no field failed.
func (e *ValidationError) Err() error {
	if e.Empty() {
		return nil
	}
	return e
}

func (e *ValidationError) Error() string {
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return "invalid fields: " + strings.Join(keys, ", ")
}

type UnavailableError struct {
	Units []string
}

func (e *UnavailableError) Error() string {
	return "units unavailable: " + strings.Join(e.Units, ", ")
}

func (e *UnavailableError) Is(target error) bool {
	return target == ErrConflict
}

type ExpiredHoldError struct {
	Code   string
	Reason string
}

func (e *ExpiredHoldError) Error() string {
	return "reservation " + e.Code + " expired: " + e.Reason
}

type ConflictDetectedError struct {
	Code  string
	Units []string
}

func (e *ConflictDetectedError) Error() string {
	return "reservation " + e.Code + " lost units to another holder: " + strings.Join(e.Units, ", ")
}

func (e *ConflictDetectedError) Is(target error) bool {
	return target == ErrConflict
}

// UpstreamError wraps failures of collaborators such as the payment processor
// or the database.
type UpstreamError struct {
	Op  string
	Err error
}

func (e *UpstreamError) Error() string {
	return e.Op + ": " + e.Err.Error()
}

func (e *UpstreamError) Unwrap() error {
	return e.Err
}
