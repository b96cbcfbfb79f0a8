package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"
)

// ErrorCode represents application error codes
type ErrorCode string

const (
	// Session client failures surfaced through the client's error field.
	ErrCodeTransport       ErrorCode = "TRANSPORT_ERROR"
	ErrCodeProtocol        ErrorCode = "PROTOCOL_ERROR"
	ErrCodeAuthUnavailable ErrorCode = "AUTH_UNAVAILABLE"
	ErrCodeAuthRejected    ErrorCode = "AUTH_REJECTED"

	// Control surface.
	ErrCodeInvalidInput       ErrorCode = "INVALID_INPUT"
	ErrCodeNotFound           ErrorCode = "NOT_FOUND"
	ErrCodeNotLive            ErrorCode = "SESSION_NOT_LIVE"
	ErrCodeRateLimit          ErrorCode = "RATE_LIMIT_EXCEEDED"
	ErrCodeInternal           ErrorCode = "INTERNAL_ERROR"
	ErrCodeServiceUnavailable ErrorCode = "SERVICE_UNAVAILABLE"
)

// AppError represents an application error with code and context
type AppError struct {
	Code       ErrorCode
	Message    string
	HTTPStatus int
	Cause      error
	Context    map[string]interface{}
}

// Error implements error interface
func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying error
func (e *AppError) Unwrap() error {
	return e.Cause
}

// WithContext adds context to the error
func (e *AppError) WithContext(key string, value interface{}) *AppError {
	if e.Context == nil {
		e.Context = make(map[string]interface{})
	}
	e.Context[key] = value
	return e
}

// newAppError creates a new application error
func newAppError(code ErrorCode, message string, httpStatus int) *AppError {
	return &AppError{
		Code:       code,
		Message:    message,
		HTTPStatus: httpStatus,
		Context:    make(map[string]interface{}),
	}
}

// WrapError wraps an existing error with application error
func WrapError(err error, code ErrorCode, message string, httpStatus int) *AppError {
	return &AppError{
		Code:       code,
		Message:    message,
		HTTPStatus: httpStatus,
		Cause:      err,
		Context:    make(map[string]interface{}),
	}
}

// Session client errors

func NewTransportError(err error) *AppError {
	msg := "connection lost"
	if err != nil {
		msg = err.Error()
	}
	return WrapError(err, ErrCodeTransport, msg, http.StatusBadGateway)
}

// NewProtocolError carries the message of a server error frame verbatim.
func NewProtocolError(message string) *AppError {
	return newAppError(ErrCodeProtocol, message, http.StatusBadGateway)
}

func NewAuthUnavailableError(err error) *AppError {
	return WrapError(err, ErrCodeAuthUnavailable, "no authentication token available", http.StatusUnauthorized)
}

func NewAuthRejectedError(reason string) *AppError {
	if reason == "" {
		reason = "authentication rejected"
	}
	return newAppError(ErrCodeAuthRejected, reason, http.StatusUnauthorized)
}

// Control surface errors

func NewInvalidInputError(message string) *AppError {
	return newAppError(ErrCodeInvalidInput, message, http.StatusBadRequest)
}

func NewNotFoundError(resource string) *AppError {
	return newAppError(ErrCodeNotFound, fmt.Sprintf("%s not found", resource), http.StatusNotFound)
}

func NewNotLiveError() *AppError {
	return newAppError(ErrCodeNotLive, "session is not live", http.StatusConflict)
}

func NewRateLimitError() *AppError {
	return newAppError(ErrCodeRateLimit, "rate limit exceeded", http.StatusTooManyRequests)
}

func NewInternalError(message string) *AppError {
	return newAppError(ErrCodeInternal, message, http.StatusInternalServerError)
}

func NewServiceUnavailableError(message string) *AppError {
	return newAppError(ErrCodeServiceUnavailable, message, http.StatusServiceUnavailable)
}

// IsAppError checks if err or anything it wraps is an AppError
func IsAppError(err error) bool {
	return GetAppError(err) != nil
}

// GetAppError extracts AppError from error chain
func GetAppError(err error) *AppError {
	var appErr *AppError
	if stderrors.As(err, &appErr) {
		return appErr
	}
	return nil
}
