// Package httputil maps domain results onto HTTP responses. Error codes carry
// the mapping so handlers never branch on error strings.
package httputil

import (
	"encoding/json"
	"errors"
	"net/http"

	dErrors "realhub/pkg/domain-errors"
)

// WriteJSON writes v as a JSON response with the given status.
func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v != nil {
		_ = json.NewEncoder(w).Encode(v)
	}
}

type errorBody struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}

var statusByCode = map[dErrors.Code]int{
	dErrors.CodeInvalidInput:       http.StatusBadRequest,
	dErrors.CodeValidation:         http.StatusBadRequest,
	dErrors.CodeInvalidTransition:  http.StatusConflict,
	dErrors.CodeForbidden:          http.StatusForbidden,
	dErrors.CodeStaleState:         http.StatusConflict,
	dErrors.CodeContention:         http.StatusServiceUnavailable,
	dErrors.CodeNotFound:           http.StatusNotFound,
	dErrors.CodeConflict:           http.StatusConflict,
	dErrors.CodeInvariantViolation: http.StatusBadRequest,
	dErrors.CodeInternal:           http.StatusInternalServerError,
}

// WriteError maps a coded error onto a status and JSON body. Uncoded errors
// become opaque 500s.
func WriteError(w http.ResponseWriter, err error) {
	code := dErrors.CodeOf(err)
	status, ok := statusByCode[code]
	if !ok {
		status = http.StatusInternalServerError
	}
	body := errorBody{Error: string(code)}
	var de *dErrors.Error
	if errors.As(err, &de) && status != http.StatusInternalServerError {
		body.Message = de.Message
	}
	WriteJSON(w, status, body)
}

// DecodeJSON decodes the request body into v, limiting size and rejecting
// unknown fields.
func DecodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	decoder := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20))
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(v); err != nil {
		return dErrors.Wrap(err, dErrors.CodeInvalidInput, "malformed JSON body")
	}
	return nil
}
