package httputil

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dErrors "realhub/pkg/domain-errors"
)

func decodeBody(t *testing.T, w *httptest.ResponseRecorder) map[string]string {
	t.Helper()
	var body map[string]string
	require.NoError(t, json.NewDecoder(w.Body).Decode(&body))
	return body
}

func TestWriteError(t *testing.T) {
	t.Run("internal error omits message", func(t *testing.T) {
		w := httptest.NewRecorder()
		WriteError(w, dErrors.New(dErrors.CodeInternal, "db failed"))

		assert.Equal(t, http.StatusInternalServerError, w.Code)
		body := decodeBody(t, w)
		assert.Equal(t, "internal", body["error"])
		assert.NotContains(t, body, "message")
	})

	t.Run("validation error includes message", func(t *testing.T) {
		w := httptest.NewRecorder()
		WriteError(w, dErrors.New(dErrors.CodeValidation, "title cannot be empty"))

		assert.Equal(t, http.StatusBadRequest, w.Code)
		body := decodeBody(t, w)
		assert.Equal(t, "validation_error", body["error"])
		assert.Equal(t, "title cannot be empty", body["message"])
	})

	t.Run("uncoded error becomes opaque 500", func(t *testing.T) {
		w := httptest.NewRecorder()
		WriteError(w, errors.New("raw infrastructure error"))

		assert.Equal(t, http.StatusInternalServerError, w.Code)
		body := decodeBody(t, w)
		assert.Equal(t, "internal", body["error"])
		assert.NotContains(t, body, "message")
	})

	t.Run("status mapping", func(t *testing.T) {
		tests := []struct {
			code   dErrors.Code
			status int
		}{
			{dErrors.CodeInvalidInput, http.StatusBadRequest},
			{dErrors.CodeInvalidTransition, http.StatusConflict},
			{dErrors.CodeForbidden, http.StatusForbidden},
			{dErrors.CodeStaleState, http.StatusConflict},
			{dErrors.CodeContention, http.StatusServiceUnavailable},
			{dErrors.CodeNotFound, http.StatusNotFound},
			{dErrors.CodeConflict, http.StatusConflict},
		}
		for _, tt := range tests {
			w := httptest.NewRecorder()
			WriteError(w, dErrors.New(tt.code, "x"))
			assert.Equal(t, tt.status, w.Code, "code %s", tt.code)
		}
	})
}

func TestDecodeJSON(t *testing.T) {
	type payload struct {
		Name string `json:"name"`
	}

	t.Run("decodes valid body", func(t *testing.T) {
		r := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"name":"ok"}`))
		var p payload
		require.NoError(t, DecodeJSON(httptest.NewRecorder(), r, &p))
		assert.Equal(t, "ok", p.Name)
	})

	t.Run("rejects unknown fields", func(t *testing.T) {
		r := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"name":"ok","extra":1}`))
		var p payload
		err := DecodeJSON(httptest.NewRecorder(), r, &p)
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidInput))
	})

	t.Run("rejects malformed JSON", func(t *testing.T) {
		r := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"name":`))
		var p payload
		err := DecodeJSON(httptest.NewRecorder(), r, &p)
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidInput))
	})
}
