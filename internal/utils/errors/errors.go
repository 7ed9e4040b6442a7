package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// Common error types.
var (
	ErrNotFound           = errors.New("resource not found")
	ErrBadRequest         = errors.New("bad request")
	ErrInternal           = errors.New("internal error")
	ErrBackendUnavailable = errors.New("backend unavailable")
	ErrMalformedPayload   = errors.New("malformed payload")
	ErrRetryExhausted     = errors.New("retry exhausted")
)

// AppError represents an application error with HTTP status and error code.
type AppError struct {
	Code       string `json:"code"`
	Message    string `json:"message"`
	StatusCode int    `json:"-"`
	Err        error  `json:"-"`
}

// Error implements the error interface.
func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

// Unwrap returns the wrapped error.
func (e *AppError) Unwrap() error {
	return e.Err
}

// Is matches another AppError by code, then falls back to the wrapped error.
func (e *AppError) Is(target error) bool {
	if t, ok := target.(*AppError); ok {
		return e.Code == t.Code
	}
	return errors.Is(e.Err, target)
}

// ErrorResponse is the JSON body of every error reply.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// NewAppError creates a new application error.
func NewAppError(code string, message string, statusCode int, err error) *AppError {
	return &AppError{
		Code:       code,
		Message:    message,
		StatusCode: statusCode,
		Err:        err,
	}
}

// BackendUnavailable reports a remote tier failure that was absorbed locally.
func BackendUnavailable(op string, err error) *AppError {
	return &AppError{
		Code:       "BACKEND_UNAVAILABLE",
		Message:    fmt.Sprintf("remote backend unavailable during %s", op),
		StatusCode: http.StatusServiceUnavailable,
		Err:        errors.Join(ErrBackendUnavailable, err),
	}
}

// MalformedPayload reports a stored value that failed to deserialize.
func MalformedPayload(key string, err error) *AppError {
	return &AppError{
		Code:       "MALFORMED_PAYLOAD",
		Message:    fmt.Sprintf("stored value for %q is malformed", key),
		StatusCode: http.StatusInternalServerError,
		Err:        errors.Join(ErrMalformedPayload, err),
	}
}

// GetStatusCode returns the HTTP status code for an error.
func GetStatusCode(err error) int {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.StatusCode
	}

	switch {
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrBadRequest):
		return http.StatusBadRequest
	case errors.Is(err, ErrBackendUnavailable):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// IsNotFound checks if the error is a not found error.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}
