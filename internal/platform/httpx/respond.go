// Package httpx provides the JSON envelope and error mapping shared by every
// API handler.
package httpx

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/mobilenet-retail/backoffice/internal/shared"
)

// Error codes exposed to clients.
const (
	CodeValidation       = "VALIDATION_ERROR"
	CodeScopeViolation   = "SCOPE_VIOLATION"
	CodeAuthentication   = "AUTHENTICATION_ERROR"
	CodeRateLimited      = "RATE_LIMIT_EXCEEDED"
	CodeNotFound         = "NOT_FOUND"
	CodeConflict         = "CONFLICT"
	CodeDuplicateRequest = "DUPLICATE_REQUEST"
	CodeServer           = "SERVER_ERROR"
)

// maxBodyBytes caps request bodies decoded by DecodeJSON.
const maxBodyBytes = 4 << 20

// Envelope is the success wrapper of every response.
type Envelope struct {
	Success bool `json:"success"`
	Data    any  `json:"data,omitempty"`
	Meta    any  `json:"meta,omitempty"`
}

// ErrorBody describes a failure.
type ErrorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

// ErrorEnvelope is the failure wrapper of every response.
type ErrorEnvelope struct {
	Success bool      `json:"success"`
	Error   ErrorBody `json:"error"`
}

// detailer is implemented by errors that carry structured details.
type detailer interface {
	Details() any
}

// JSON sends a JSON response with the given status code.
func JSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

// OK writes {success:true,data}.
func OK(w http.ResponseWriter, data any) {
	JSON(w, http.StatusOK, Envelope{Success: true, Data: data})
}

// OKWithMeta writes {success:true,data,meta}.
func OKWithMeta(w http.ResponseWriter, data, meta any) {
	JSON(w, http.StatusOK, Envelope{Success: true, Data: data, Meta: meta})
}

// Created writes a 201 envelope.
func Created(w http.ResponseWriter, data any) {
	JSON(w, http.StatusCreated, Envelope{Success: true, Data: data})
}

// Fail writes an error envelope.
func Fail(w http.ResponseWriter, status int, code, message string, details any) {
	JSON(w, status, ErrorEnvelope{Error: ErrorBody{Code: code, Message: message, Details: details}})
}

// StatusFor returns the status and code an error maps to.
func StatusFor(err error) (int, string) {
	switch {
	case errors.Is(err, shared.ErrScopeViolation):
		return http.StatusForbidden, CodeScopeViolation
	case errors.Is(err, shared.ErrValidation):
		return http.StatusUnprocessableEntity, CodeValidation
	case errors.Is(err, shared.ErrUnauthenticated),
		errors.Is(err, shared.ErrInvalidCredentials),
		errors.Is(err, shared.ErrCSRFTokenMissing),
		errors.Is(err, shared.ErrCSRFTokenMismatch):
		return http.StatusUnauthorized, CodeAuthentication
	case errors.Is(err, shared.ErrRateLimited):
		return http.StatusTooManyRequests, CodeRateLimited
	case errors.Is(err, shared.ErrNotFound):
		return http.StatusNotFound, CodeNotFound
	case errors.Is(err, shared.ErrDuplicateRequest):
		return http.StatusConflict, CodeDuplicateRequest
	case errors.Is(err, shared.ErrConflict):
		return http.StatusConflict, CodeConflict
	default:
		return http.StatusInternalServerError, CodeServer
	}
}

// RespondError maps domain errors to the error envelope. Server errors never
// expose their message.
func RespondError(w http.ResponseWriter, err error) {
	status, code := StatusFor(err)
	if status == http.StatusInternalServerError {
		Fail(w, status, code, "unexpected server error", nil)
		return
	}

	var details any
	var d detailer
	if errors.As(err, &d) {
		details = d.Details()
	}
	var rl *shared.RateLimitError
	if errors.As(err, &rl) {
		w.Header().Set("Retry-After", strconv.Itoa(RetryAfterSeconds(rl.RetryAfter)))
		details = map[string]int{"retry_after": RetryAfterSeconds(rl.RetryAfter)}
	}
	Fail(w, status, code, err.Error(), details)
}

// RetryAfterSeconds rounds d up to whole seconds, at least one.
func RetryAfterSeconds(d time.Duration) int {
	secs := int((d + time.Second - 1) / time.Second)
	if secs < 1 {
		secs = 1
	}
	return secs
}

// DecodeJSON decodes the request body into target. Unknown fields are
// tolerated; malformed bodies become validation errors.
func DecodeJSON(r *http.Request, target any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	if err := dec.Decode(target); err != nil {
		if errors.Is(err, io.EOF) {
			return shared.Validationf("request body is empty")
		}
		return fmt.Errorf("%w: malformed JSON body: %v", shared.ErrValidation, err)
	}
	return nil
}
