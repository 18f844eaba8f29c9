package httpx

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mobilenet-retail/backoffice/internal/shared"
)

func TestRespondErrorMapping(t *testing.T) {
	cases := []struct {
		err    error
		status int
		code   string
	}{
		{shared.Scopef("store 7"), http.StatusForbidden, CodeScopeViolation},
		{shared.FieldErrors{"carrier": "is required"}, http.StatusUnprocessableEntity, CodeValidation},
		{shared.ErrCSRFTokenMismatch, http.StatusUnauthorized, CodeAuthentication},
		{fmt.Errorf("wrap: %w", shared.ErrNotFound), http.StatusNotFound, CodeNotFound},
		{shared.ErrDuplicateRequest, http.StatusConflict, CodeDuplicateRequest},
		{shared.ErrConflict, http.StatusConflict, CodeConflict},
		{errors.New("pq: connection reset"), http.StatusInternalServerError, CodeServer},
	}
	for _, c := range cases {
		rec := httptest.NewRecorder()
		RespondError(rec, c.err)
		assert.Equal(t, c.status, rec.Code, c.err.Error())

		var body ErrorEnvelope
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
		assert.False(t, body.Success)
		assert.Equal(t, c.code, body.Error.Code)
	}
}

func TestRespondErrorHidesInternalDetail(t *testing.T) {
	rec := httptest.NewRecorder()
	RespondError(rec, errors.New("dial tcp 10.0.0.3:5432: refused"))
	assert.NotContains(t, rec.Body.String(), "10.0.0.3")
}

func TestRespondErrorRateLimitSetsRetryAfter(t *testing.T) {
	rec := httptest.NewRecorder()
	RespondError(rec, &shared.RateLimitError{Limit: 60, RetryAfter: 1500 * time.Millisecond})
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "2", rec.Header().Get("Retry-After"))
}

func TestValidateUsesJSONNames(t *testing.T) {
	type form struct {
		Carrier string `json:"carrier" validate:"required"`
	}
	err := Validate(NewValidator(), form{})
	var fe shared.FieldErrors
	require.ErrorAs(t, err, &fe)
	assert.Equal(t, "is required", fe["carrier"])
}
