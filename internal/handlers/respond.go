package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/ruralpay/collections/internal/middleware"
	"github.com/ruralpay/collections/internal/models"
	"github.com/ruralpay/collections/internal/scope"
	"github.com/ruralpay/collections/internal/services"
)

const maxBodyBytes = 1_048_576 // 1 MB

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("[HTTP] Failed to encode response: %v", err)
	}
}

// Envelope wraps every successful response.
type Envelope struct {
	Success bool `json:"success" example:"true"`
	Data    any  `json:"data,omitempty"`
}

func writeData(w http.ResponseWriter, status int, data any) {
	writeJSON(w, status, Envelope{Success: true, Data: data})
}

// statusFor maps a service error to its HTTP status.
func statusFor(err error) int {
	switch {
	case errors.Is(err, models.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, models.ErrInsufficientBalance):
		return http.StatusUnprocessableEntity
	case errors.Is(err, models.ErrInvalidState):
		return http.StatusBadRequest
	case errors.Is(err, models.ErrAlreadyExists), errors.Is(err, models.ErrConflict):
		return http.StatusConflict
	case errors.Is(err, models.ErrUnauthorized):
		return http.StatusUnauthorized
	case errors.Is(err, models.ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, models.ErrNoValidSubscription):
		return http.StatusPaymentRequired
	}
	return http.StatusInternalServerError
}

func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		log.Printf("[HTTP] %s %s failed: %v", r.Method, r.URL.Path, err)
		services.SendErrorResponse(w, "An Internal Error Occurred", status, nil)
		return
	}
	services.SendErrorResponse(w, err.Error(), status, nil)
}

// decode reads exactly one JSON object into dst and validates it. It writes
// the error response itself and reports whether the caller may continue.
func decode(w http.ResponseWriter, r *http.Request, v *services.ValidationHelper, dst any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()

	if err := dec.Decode(dst); err != nil {
		log.Printf("[HTTP] Invalid request body for %s: %v", r.URL.Path, err)
		services.SendErrorResponse(w, "Invalid request body", http.StatusBadRequest, nil)
		return false
	}

	if err := dec.Decode(&struct{}{}); err != io.EOF {
		services.SendErrorResponse(w, "Request body must only contain a single JSON object", http.StatusBadRequest, nil)
		return false
	}

	if err := v.ValidateStruct(dst); err != nil {
		services.SendErrorResponse(w, "Validation failed", http.StatusBadRequest, err)
		return false
	}
	return true
}

// callerScope resolves the caller's scope for the narrowing requested in the
// query string, overridden by any non-empty field of extra.
func callerScope(w http.ResponseWriter, r *http.Request, extra scope.Filter) (scope.Scope, bool) {
	id, ok := middleware.IdentityFrom(r.Context())
	if !ok {
		services.SendErrorResponse(w, "Unauthorized", http.StatusUnauthorized, nil)
		return scope.Scope{}, false
	}

	q := r.URL.Query()
	f := scope.Filter{
		CompanyID: q.Get("companyId"),
		BranchID:  q.Get("branchId"),
		AgentID:   q.Get("agentId"),
	}
	if extra.CompanyID != "" {
		f.CompanyID = extra.CompanyID
	}
	if extra.BranchID != "" {
		f.BranchID = extra.BranchID
	}
	if extra.AgentID != "" {
		f.AgentID = extra.AgentID
	}

	sc, err := scope.Resolve(id, f)
	if err != nil {
		writeError(w, r, err)
		return scope.Scope{}, false
	}
	return sc, true
}

// queryDate parses an optional yyyy-mm-dd or RFC 3339 query parameter. With
// endOfDay a bare date is taken as its last instant, so ranges are inclusive.
func queryDate(r *http.Request, name string, endOfDay bool) (*time.Time, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return nil, nil
	}
	if t, err := time.Parse(time.DateOnly, raw); err == nil {
		if endOfDay {
			t = t.Add(24*time.Hour - time.Nanosecond)
		}
		return &t, nil
	}
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return &t, nil
	}
	return nil, models.Invalid("%s must be a date (yyyy-mm-dd)", name)
}

func queryInt(r *http.Request, name string) (int, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0, models.Invalid("%s must be a non-negative integer", name)
	}
	return n, nil
}

func page(r *http.Request) (limit, offset int, err error) {
	if limit, err = queryInt(r, "limit"); err != nil {
		return 0, 0, err
	}
	offset, err = queryInt(r, "offset")
	return limit, offset, err
}
