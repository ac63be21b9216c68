package errors

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSentinelErrors_AreDistinct(t *testing.T) {
	sentinels := []error{
		ErrNotFound, ErrInvalidInput, ErrUnauthorized, ErrForbidden,
		ErrInternal, ErrConflict, ErrServiceUnavail, ErrUnsupportedDialect,
	}

	for i := 0; i < len(sentinels); i++ {
		for j := i + 1; j < len(sentinels); j++ {
			assert.NotEqual(t, sentinels[i], sentinels[j],
				"sentinels %d and %d should be distinct", i, j)
		}
	}
}

func TestAppError_ErrorString(t *testing.T) {
	inner := fmt.Errorf("db connection lost")
	appErr := &AppError{Code: "INTERNAL_ERROR", Message: "something broke", Err: inner}
	assert.Contains(t, appErr.Error(), "INTERNAL_ERROR")
	assert.Contains(t, appErr.Error(), "something broke")
	assert.Contains(t, appErr.Error(), "db connection lost")

	bare := &AppError{Code: "NOT_FOUND", Message: "row not found"}
	assert.Equal(t, "NOT_FOUND: row not found", bare.Error())
}

func TestAppError_Unwrap(t *testing.T) {
	appErr := &AppError{Code: "NOT_FOUND", Message: "nope", Err: ErrNotFound}
	assert.True(t, errors.Is(appErr, ErrNotFound))

	assert.Nil(t, (&AppError{Code: "TEST", Message: "test"}).Unwrap())
}

func TestNotFound(t *testing.T) {
	err := NotFound("job", "abc-123")
	require.NotNil(t, err)
	assert.Equal(t, "NOT_FOUND", err.Code)
	assert.Contains(t, err.Message, "job")
	assert.Contains(t, err.Message, "abc-123")
	assert.Equal(t, http.StatusNotFound, err.Status)
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestConstructors_CarryStatusAndSentinel(t *testing.T) {
	tests := []struct {
		name     string
		err      *AppError
		status   int
		sentinel error
	}{
		{"invalid input", InvalidInput("bad term"), http.StatusBadRequest, ErrInvalidInput},
		{"unauthorized", Unauthorized("no token"), http.StatusUnauthorized, ErrUnauthorized},
		{"forbidden", Forbidden("not allowed"), http.StatusForbidden, ErrForbidden},
		{"conflict", Conflict("already queued"), http.StatusConflict, ErrConflict},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.status, tt.err.Status)
			assert.True(t, errors.Is(tt.err, tt.sentinel))
		})
	}
}

func TestInternal_WrapsCause(t *testing.T) {
	cause := fmt.Errorf("boom")
	err := Internal(cause)
	assert.Equal(t, http.StatusInternalServerError, err.Status)
	assert.True(t, errors.Is(err, cause))
}

func TestHTTPStatus(t *testing.T) {
	tests := []struct {
		err    error
		status int
	}{
		{NotFound("row", "1"), http.StatusNotFound},
		{fmt.Errorf("wrap: %w", ErrNotFound), http.StatusNotFound},
		{fmt.Errorf("wrap: %w", ErrInvalidInput), http.StatusBadRequest},
		{fmt.Errorf("wrap: %w", ErrUnauthorized), http.StatusUnauthorized},
		{fmt.Errorf("wrap: %w", ErrForbidden), http.StatusForbidden},
		{fmt.Errorf("wrap: %w", ErrConflict), http.StatusConflict},
		{fmt.Errorf("wrap: %w", ErrServiceUnavail), http.StatusServiceUnavailable},
		{fmt.Errorf("wrap: %w", ErrUnsupportedDialect), http.StatusInternalServerError},
		{fmt.Errorf("plain"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.status, HTTPStatus(tt.err), tt.err.Error())
	}
}

func TestWrap(t *testing.T) {
	err := Wrap(ErrNotFound, "load index row")
	assert.True(t, errors.Is(err, ErrNotFound))
	assert.Contains(t, err.Error(), "load index row")
}
