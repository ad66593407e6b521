package httputil

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	apperrors "github.com/R3E-Network/lottery_layer/internal/errors"
)

// MaxRequestBody caps decoded request bodies.
const MaxRequestBody = 1 << 20

// ErrorBody is the JSON shape of every error response.
type ErrorBody struct {
	Kind    apperrors.Kind `json:"kind"`
	Code    string         `json:"code"`
	Message string         `json:"message"`
	Details []string       `json:"details,omitempty"`
}

// DecodeJSON decodes a size limited body and rejects unknown fields.
func DecodeJSON(body io.ReadCloser, dst interface{}) error {
	defer body.Close()
	dec := json.NewDecoder(io.LimitReader(body, MaxRequestBody))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return apperrors.Validation(fmt.Sprintf("invalid request body: %v", err))
	}
	return nil
}

// WriteJSON writes data with the given status.
func WriteJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

// WriteError maps err onto a status and error body. Errors outside the
// service taxonomy are reported without their internal message.
func WriteError(w http.ResponseWriter, err error) {
	var se *apperrors.ServiceError
	if !apperrors.As(err, &se) {
		WriteJSON(w, http.StatusInternalServerError, ErrorBody{
			Kind:    apperrors.KindProcessing,
			Code:    "INTERNAL",
			Message: "internal error",
		})
		return
	}
	body := ErrorBody{Kind: se.Kind, Code: se.Code, Message: se.Message, Details: se.Details}
	if se.Kind == apperrors.KindProcessing {
		body.Message = "internal error"
	}
	WriteJSON(w, apperrors.HTTPStatus(err), body)
}
