package errors

import (
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKindsMapToStatus(t *testing.T) {
	cases := []struct {
		err    *ServiceError
		kind   Kind
		status int
	}{
		{Validation("number must have 4 digits"), KindValidation, http.StatusUnprocessableEntity},
		{Conflict("FRACTIONS_EXHAUSTED", "%d fraction available", 1), KindConflict, http.StatusConflict},
		{Configuration("no active prize plan"), KindConfiguration, http.StatusServiceUnavailable},
		{Processing(fmt.Errorf("boom"), "settle bet"), KindProcessing, http.StatusInternalServerError},
		{NotFound("lottery", "abc"), KindNotFound, http.StatusNotFound},
		{Unauthorized(""), KindUnauthorized, http.StatusUnauthorized},
		{RateLimited(5), KindRateLimited, http.StatusTooManyRequests},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.kind, tc.err.Kind)
		assert.Equal(t, tc.status, HTTPStatus(tc.err))
	}
}

func TestWrappedKindSurvives(t *testing.T) {
	base := Conflict("FRACTIONS_EXHAUSTED", "1 fraction available")
	wrapped := fmt.Errorf("place batch: %w", base)

	assert.True(t, IsKind(wrapped, KindConflict))
	assert.Equal(t, KindConflict, KindOf(wrapped))
	assert.True(t, Is(wrapped, &ServiceError{Kind: KindConflict}))
	assert.False(t, Is(wrapped, &ServiceError{Kind: KindConflict, Code: "OTHER"}))
	assert.Equal(t, KindProcessing, KindOf(fmt.Errorf("plain")))
}

func TestValidationMessageListsDetails(t *testing.T) {
	err := Validation("lottery is inactive", "amount must equal 2000")
	assert.Equal(t, "validation failed: lottery is inactive; amount must equal 2000", err.Error())
}
