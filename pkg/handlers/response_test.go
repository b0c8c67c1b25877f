package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/procmap-io/procmap/pkg/apperrors"
)

func TestErrorResponse(t *testing.T) {
	rec := httptest.NewRecorder()
	require.NoError(t, ErrorResponse(rec, http.StatusNotFound, "not_found", "cluster C9 not found"))

	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "not_found", body["error"])
	assert.Equal(t, "cluster C9 not found", body["message"])
}

func TestWriteJSON(t *testing.T) {
	rec := httptest.NewRecorder()
	require.NoError(t, WriteJSON(rec, http.StatusOK, map[string]int{"n": 1}))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"n":1}`, rec.Body.String())
}

func TestStatusForError(t *testing.T) {
	tests := []struct {
		err    error
		status int
		code   string
	}{
		{fmt.Errorf("cluster %q: %w", "C9", apperrors.ErrNotFound), http.StatusNotFound, "not_found"},
		{fmt.Errorf("name taken: %w", apperrors.ErrConflict), http.StatusConflict, "conflict"},
		{fmt.Errorf("no state: %w", apperrors.ErrInvalidState), http.StatusConflict, "invalid_state"},
		{fmt.Errorf("bad argument: %w", apperrors.ErrValidation), http.StatusBadRequest, "validation"},
		{errors.New("disk on fire"), http.StatusInternalServerError, "internal"},
	}
	for _, tt := range tests {
		status, code := statusForError(tt.err)
		assert.Equal(t, tt.status, status, tt.err.Error())
		assert.Equal(t, tt.code, code, tt.err.Error())
	}
}
