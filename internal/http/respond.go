package http

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/robertarktes/travel-reservations/internal/domain"
)

const dateLayout = "2006-01-02"

// StatusFor maps a failed result code onto an HTTP status.
func StatusFor(code domain.ResultCode) int {
	switch code {
	case domain.CodeValidation:
		return http.StatusBadRequest
	case domain.CodeUnavailable, domain.CodeConflict:
		return http.StatusConflict
	case domain.CodeExpired:
		return http.StatusGone
	case domain.CodeUpstream:
		return http.StatusBadGateway
	case domain.CodeUnauthenticated:
		return http.StatusUnauthorized
	case domain.CodeForbidden:
		return http.StatusForbidden
	case domain.CodeNotFound, domain.CodeNotReserved:
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeResult writes res with okStatus on success and the mapped status on
// failure.
func writeResult(w http.ResponseWriter, res domain.Result, okStatus int) {
	if res.Success {
		writeJSON(w, okStatus, res)
		return
	}
	writeJSON(w, StatusFor(res.Code), res)
}

func writeError(w http.ResponseWriter, err error) {
	writeResult(w, domain.ResultFromError(err), http.StatusOK)
}

func decode(r *http.Request, v any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		verr := domain.NewValidationError()
		verr.Add("body", "Request body is not valid JSON: "+err.Error())
		return verr
	}
	return nil
}

// dates parses YYYY-MM-DD (or RFC 3339) values, collecting problems per field.
type dates struct {
	errs *domain.ValidationError
}

func newDates() *dates {
	return &dates{errs: domain.NewValidationError()}
}

func (d *dates) parse(field, value string, required bool) time.Time {
	value = strings.TrimSpace(value)
	if value == "" {
		if required {
			d.errs.Add(field, "Date is required")
		}
		return time.Time{}
	}
	if t, err := time.Parse(dateLayout, value); err == nil {
		return t
	}
	if t, err := time.Parse(time.RFC3339, value); err == nil {
		return t.UTC()
	}
	d.errs.Add(field, "Date must look like 2030-07-20")
	return time.Time{}
}

func queryInt(r *http.Request, key string, def int) int {
	n, err := strconv.Atoi(r.URL.Query().Get(key))
	if err != nil || n < 0 {
		return def
	}
	return n
}
