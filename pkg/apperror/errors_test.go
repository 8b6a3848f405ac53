package apperror

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAppError_Error(t *testing.T) {
	tests := []struct {
		name     string
		appErr   *AppError
		expected string
	}{
		{
			name:     "without wrapped error",
			appErr:   New("SUB_004", "Insufficient balance", http.StatusPaymentRequired),
			expected: "[SUB_004] Insufficient balance",
		},
		{
			name:     "with wrapped error",
			appErr:   Wrap("SYS_001", "DB error", http.StatusInternalServerError, fmt.Errorf("connection refused")),
			expected: "[SYS_001] DB error: connection refused",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, tt.appErr.Error())
		})
	}
}

func TestAppError_Unwrap(t *testing.T) {
	inner := fmt.Errorf("inner error")
	appErr := Wrap("SYS_001", "wrapped", http.StatusInternalServerError, inner)

	assert.True(t, errors.Is(appErr, inner))
	assert.Nil(t, ErrTooEarly().Unwrap())
}

func TestSubscriptionErrors(t *testing.T) {
	tests := []struct {
		name       string
		err        *AppError
		code       string
		httpStatus int
	}{
		{"Unauthorized", ErrUnauthorized("withdraw"), "SUB_001", 403},
		{"NotSubscribed", ErrNotSubscribed(), "SUB_002", 409},
		{"TooEarly", ErrTooEarly(), "SUB_003", 425},
		{"InsufficientFunds", ErrInsufficientFunds(), "SUB_004", 402},
		{"InvalidArgument", ErrInvalidArgument("price must be positive"), "SUB_005", 400},
		{"NotFound", ErrNotFound("wallet"), "SUB_006", 404},
		{"Validation", Validation("bad body"), "SUB_005", 400},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.code, tt.err.Code)
			assert.Equal(t, tt.httpStatus, tt.err.HTTPStatus)
		})
	}
}

func TestSecurityAndAuthErrors(t *testing.T) {
	tests := []struct {
		name       string
		err        *AppError
		code       string
		httpStatus int
	}{
		{"InvalidAccessKey", ErrInvalidAccessKey(), "SEC_001", 401},
		{"InvalidSignature", ErrInvalidSignature(), "SEC_002", 401},
		{"TimestampExpired", ErrTimestampExpired(), "SEC_003", 403},
		{"NonceUsed", ErrNonceUsed(), "SEC_004", 403},
		{"InvalidCredentials", ErrInvalidCredentials(), "AUTH_001", 401},
		{"UsernameExists", ErrUsernameExists(), "AUTH_002", 409},
		{"InvalidToken", ErrInvalidToken(), "AUTH_003", 401},
		{"IdentitySuspended", ErrIdentitySuspended(), "AUTH_004", 403},
		{"RateLimit", ErrRateLimitExceeded(), "RATE_001", 429},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.code, tt.err.Code)
			assert.Equal(t, tt.httpStatus, tt.err.HTTPStatus)
		})
	}
}

func TestSystemErrors(t *testing.T) {
	inner := fmt.Errorf("pg: connection closed")
	dbErr := ErrDatabaseError(inner)
	assert.Equal(t, "SYS_001", dbErr.Code)
	assert.Equal(t, 500, dbErr.HTTPStatus)
	assert.True(t, errors.Is(dbErr, inner))

	lockErr := ErrLockTimeout(inner)
	assert.Equal(t, "SYS_002", lockErr.Code)
	assert.Equal(t, 503, lockErr.HTTPStatus)

	encErr := ErrEncryptionFailure(inner)
	assert.Equal(t, "SYS_003", encErr.Code)
	assert.Equal(t, 500, encErr.HTTPStatus)

	streamErr := ErrStreamUnavailable()
	assert.Equal(t, "SYS_004", streamErr.Code)
	assert.Equal(t, 503, streamErr.HTTPStatus)

	bodyErr := ErrBodyTooLarge()
	assert.Equal(t, "SYS_005", bodyErr.Code)
	assert.Equal(t, 413, bodyErr.HTTPStatus)
}

func TestCodeOf(t *testing.T) {
	assert.Equal(t, CodeOK, CodeOf(nil))
	assert.Equal(t, CodeTooEarly, CodeOf(ErrTooEarly()))
	assert.Equal(t, CodeNotSubscribed, CodeOf(fmt.Errorf("outer: %w", ErrNotSubscribed())))
	assert.Equal(t, "SYS_000", CodeOf(errors.New("plain")))

	assert.True(t, Is(ErrInsufficientFunds(), CodeInsufficientFunds))
	assert.False(t, Is(nil, CodeOK))
}

func TestNotFoundEntity(t *testing.T) {
	err := ErrNotFound("manager")
	assert.Contains(t, err.Message, "manager")
	assert.Equal(t, CodeNotFound, err.Code)
}

func TestInternalError_KeepsExistingCode(t *testing.T) {
	lock := ErrLockTimeout(errors.New("canceling statement due to lock timeout"))
	err := InternalError(fmt.Errorf("lock wallet: %w", lock))
	assert.Equal(t, "SYS_002", err.Code)
	assert.Equal(t, 503, err.HTTPStatus)

	plain := InternalError(errors.New("connection reset"))
	assert.Equal(t, "SYS_001", plain.Code)
	assert.ErrorContains(t, plain, "connection reset")
}
