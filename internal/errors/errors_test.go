package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStatus(t *testing.T) {
	cases := []struct {
		err  *APIError
		want int
	}{
		{err: NewValidationError("bad"), want: http.StatusBadRequest},
		{err: NewNotFoundError("missing"), want: http.StatusNotFound},
		{err: NewUnauthorizedError("nope"), want: http.StatusUnauthorized},
		{err: NewExternalError("llm", fmt.Errorf("x")), want: http.StatusServiceUnavailable},
		{err: NewInternalError(fmt.Errorf("boom")), want: http.StatusInternalServerError},
		{err: &APIError{Type: ErrorType("SOMETHING_ELSE")}, want: http.StatusInternalServerError},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, tc.err.Status(), string(tc.err.Type))
	}
}

func TestAsThroughWrapping(t *testing.T) {
	wrapped := fmt.Errorf("generating brochure: %w", NewNotFoundError("no brochure for acme"))

	apiErr, ok := As(wrapped)
	require.True(t, ok)
	assert.Equal(t, ErrorTypeNotFound, apiErr.Type)
	assert.True(t, IsNotFound(wrapped))

	_, ok = As(stderrors.New("plain"))
	assert.False(t, ok)
}

func TestExternalErrorUnwraps(t *testing.T) {
	cause := stderrors.New("connection refused")
	err := NewExternalError("fetch", cause)

	assert.ErrorIs(t, err, cause)
	assert.Equal(t, "connection refused", err.Details)
	assert.Contains(t, err.Error(), "fetch")
}
