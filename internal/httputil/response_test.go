package httputil

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	apperrors "github.com/R3E-Network/lottery_layer/internal/errors"
)

func TestWriteError_ServiceError(t *testing.T) {
	rec := httptest.NewRecorder()
	WriteError(rec, fmt.Errorf("place: %w", apperrors.Validation("number must have 4 digits")))

	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("status = %d, want 422", rec.Code)
	}
	var body ErrorBody
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if body.Kind != apperrors.KindValidation || len(body.Details) != 1 || body.Details[0] != "number must have 4 digits" {
		t.Errorf("unexpected body: %+v", body)
	}
}

func TestWriteError_HidesInternalMessages(t *testing.T) {
	rec := httptest.NewRecorder()
	WriteError(rec, fmt.Errorf("pq: connection refused"))

	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", rec.Code)
	}
	if strings.Contains(rec.Body.String(), "pq:") {
		t.Errorf("internal message leaked: %s", rec.Body.String())
	}
}

func TestDecodeJSON_RejectsUnknownFields(t *testing.T) {
	var dst struct {
		Number string `json:"number"`
	}
	err := DecodeJSON(io.NopCloser(strings.NewReader(`{"number":"0007","extra":1}`)), &dst)
	if !apperrors.IsKind(err, apperrors.KindValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}

	if err := DecodeJSON(io.NopCloser(strings.NewReader(`{"number":"0007"}`)), &dst); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if dst.Number != "0007" {
		t.Errorf("number = %q", dst.Number)
	}
}
