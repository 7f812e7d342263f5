package httpx

import (
	"errors"
	"fmt"
	"net/http"

	"proxy_manager/internal/apperr"
)

// Business error codes
const (
	CodeSuccess = 0

	// Authentication/Authorization errors (1000-1099)
	CodeUnauthorized = 1001 // Not logged in / Token missing
	CodeInvalidToken = 1002
	CodeTokenExpired = 1003
	CodeForbidden    = 1004

	// Parameter errors (2000-2099)
	CodeParamMissing = 2001
	CodeParamInvalid = 2002
	CodeValidation   = 2003 // rejected before any side effect

	// Resource/Business errors (3000-3999)
	CodeNotFound      = 3001
	CodeConfiguration = 3004 // nginx config could not be rendered or written
	CodeChallenge     = 3005 // ACME challenge failed

	// System errors (5000-5999)
	CodeInternalError = 5001
)

// AppError represents an application error with HTTP status and business code
type AppError struct {
	HTTPStatus int         // HTTP status code
	Code       int         // Business error code
	Message    string      // User-facing error message
	Err        error       // Internal error (for logging only, not returned to client)
	Data       interface{} // Additional data (for detailed error information)
}

// Error implements the error interface
func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("code=%d, message=%s, err=%v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("code=%d, message=%s", e.Code, e.Message)
}

// WithData adds additional data to the error
func (e *AppError) WithData(data interface{}) *AppError {
	e.Data = data
	return e
}

// NewAppError creates a new AppError
func NewAppError(httpStatus, code int, message string, err error) *AppError {
	return &AppError{
		HTTPStatus: httpStatus,
		Code:       code,
		Message:    message,
		Err:        err,
	}
}

// FromError maps an engine error to its HTTP representation. Errors that
// are already an *AppError pass through unchanged.
func FromError(err error) *AppError {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr
	}

	var engineErr *apperr.Error
	message := "internal error"
	if errors.As(err, &engineErr) {
		message = engineErr.Message
	}

	switch apperr.KindOf(err) {
	case apperr.KindValidation:
		// Validation messages are user facing; show the full chain
		return NewAppError(http.StatusBadRequest, CodeValidation, err.Error(), nil)
	case apperr.KindNotFound:
		return NewAppError(http.StatusNotFound, CodeNotFound, message, nil)
	case apperr.KindPermission:
		return NewAppError(http.StatusForbidden, CodeForbidden, message, nil)
	case apperr.KindConfiguration:
		return NewAppError(http.StatusInternalServerError, CodeConfiguration, message, err)
	case apperr.KindChallenge:
		return NewAppError(http.StatusBadGateway, CodeChallenge, message, err)
	default:
		return NewAppError(http.StatusInternalServerError, CodeInternalError, message, err)
	}
}

// ErrUnauthorized creates a 401 unauthorized error
func ErrUnauthorized(message string) *AppError {
	if message == "" {
		message = "unauthorized"
	}
	return NewAppError(http.StatusUnauthorized, CodeUnauthorized, message, nil)
}

// ErrInvalidToken creates a 401 invalid token error
func ErrInvalidToken(message string) *AppError {
	if message == "" {
		message = "invalid token"
	}
	return NewAppError(http.StatusUnauthorized, CodeInvalidToken, message, nil)
}

// ErrTokenExpired creates a 401 token expired error
func ErrTokenExpired(message string) *AppError {
	if message == "" {
		message = "token expired"
	}
	return NewAppError(http.StatusUnauthorized, CodeTokenExpired, message, nil)
}

// ErrParamMissing creates a 400 parameter missing error
func ErrParamMissing(message string) *AppError {
	if message == "" {
		message = "parameter missing"
	}
	return NewAppError(http.StatusBadRequest, CodeParamMissing, message, nil)
}

// ErrParamInvalid creates a 400 parameter invalid error
func ErrParamInvalid(message string) *AppError {
	if message == "" {
		message = "parameter format error"
	}
	return NewAppError(http.StatusBadRequest, CodeParamInvalid, message, nil)
}

// ErrNotFound creates a 404 not found error
func ErrNotFound(message string) *AppError {
	if message == "" {
		message = "resource not found"
	}
	return NewAppError(http.StatusNotFound, CodeNotFound, message, nil)
}

// ErrInternalError creates a 500 internal error
func ErrInternalError(message string, err error) *AppError {
	if message == "" {
		message = "internal error"
	}
	return NewAppError(http.StatusInternalServerError, CodeInternalError, message, err)
}
