package services

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testCollectionRequest struct {
	AccountID string          `json:"accountId" validate:"required"`
	Amount    decimal.Decimal `json:"amount" validate:"gte=0"`
	Expected  decimal.Decimal `json:"expectedAmount" validate:"gt=0"`
	Notes     string          `json:"notes" validate:"max=10"`
}

func TestValidationHelper_ValidateStruct(t *testing.T) {
	vh := NewValidationHelper()

	t.Run("valid struct", func(t *testing.T) {
		valid := testCollectionRequest{
			AccountID: "acc-1",
			Amount:    decimal.Zero,
			Expected:  decimal.RequireFromString("500"),
		}
		assert.NoError(t, vh.ValidateStruct(&valid))
	})

	t.Run("reports json field names", func(t *testing.T) {
		invalid := testCollectionRequest{
			Amount:   decimal.RequireFromString("-1"),
			Expected: decimal.Zero,
			Notes:    "far too long for the limit",
		}

		err := vh.ValidateStruct(&invalid)
		require.Error(t, err)

		var validationErrors validator.ValidationErrors
		require.True(t, errors.As(err, &validationErrors))
		fields := map[string]string{}
		for _, fe := range validationErrors {
			fields[fe.Field()] = fe.Tag()
		}
		assert.Equal(t, map[string]string{
			"accountId":      "required",
			"amount":         "gte",
			"expectedAmount": "gt",
			"notes":          "max",
		}, fields)
	})
}

func TestSendErrorResponse(t *testing.T) {
	t.Run("error response without validation errors", func(t *testing.T) {
		w := httptest.NewRecorder()

		SendErrorResponse(w, "Something went wrong", http.StatusInternalServerError, nil)

		assert.Equal(t, http.StatusInternalServerError, w.Code)
		assert.Equal(t, "application/json", w.Header().Get("Content-Type"))

		var response ErrorResponse
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &response))
		assert.Equal(t, "Something went wrong", response.Error)
		assert.Nil(t, response.Details)
	})

	t.Run("error response with validation errors", func(t *testing.T) {
		vh := NewValidationHelper()
		validationErr := vh.ValidateStruct(&testCollectionRequest{Expected: decimal.NewFromInt(1)})
		require.Error(t, validationErr)

		w := httptest.NewRecorder()
		SendErrorResponse(w, "Validation failed", http.StatusBadRequest, validationErr)

		assert.Equal(t, http.StatusBadRequest, w.Code)

		var response ErrorResponse
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &response))
		assert.Equal(t, "Validation failed", response.Error)
		assert.Equal(t, "Field Validation Failed on 'required' tag", response.Details["accountId"])
	})

	t.Run("non validation error carries no details", func(t *testing.T) {
		w := httptest.NewRecorder()

		SendErrorResponse(w, "Unauthorized", http.StatusUnauthorized, errors.New("token expired"))

		assert.Equal(t, http.StatusUnauthorized, w.Code)
		var response ErrorResponse
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &response))
		assert.Nil(t, response.Details)
	})
}
