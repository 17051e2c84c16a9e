package errors

import (
	stderrors "errors"
	"fmt"
)

// ErrorType represents different types of errors that can occur
type ErrorType string

const (
	ErrorTypeAccountNotFound    ErrorType = "account_not_found"
	ErrorTypeAuthExpired        ErrorType = "auth_expired"
	ErrorTypeRateLimited        ErrorType = "rate_limited"
	ErrorTypeMalformed          ErrorType = "malformed"
	ErrorTypeNotFound           ErrorType = "not_found"
	ErrorTypeMediaFetchFailed   ErrorType = "media_fetch_failed"
	ErrorTypePersistenceFailure ErrorType = "persistence_failure"
	ErrorTypeCancelled          ErrorType = "cancelled"
	ErrorTypeInvalidOptions     ErrorType = "invalid_options"
	ErrorTypeNetwork            ErrorType = "network"
	ErrorTypeServerError        ErrorType = "server_error"
	ErrorTypeUnknown            ErrorType = "unknown"
)

// Error is a typed pipeline error. Code carries the HTTP status or the
// remote status code when one is known.
type Error struct {
	Type    ErrorType
	Message string
	Code    int
	Err     error
}

func (e *Error) Error() string {
	msg := fmt.Sprintf("%s error", e.Type)
	if e.Code != 0 {
		msg = fmt.Sprintf("%s (code %d)", msg, e.Code)
	}
	if e.Message != "" {
		msg += ": " + e.Message
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches any *Error of the same type, so sentinels such as
// ErrAuthExpired work with errors.Is regardless of message or code.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Type == e.Type
}

// Sentinels for errors.Is checks.
var (
	ErrAccountNotFound    = &Error{Type: ErrorTypeAccountNotFound}
	ErrAuthExpired        = &Error{Type: ErrorTypeAuthExpired}
	ErrRateLimited        = &Error{Type: ErrorTypeRateLimited}
	ErrMalformed          = &Error{Type: ErrorTypeMalformed}
	ErrNotFound           = &Error{Type: ErrorTypeNotFound}
	ErrMediaFetchFailed   = &Error{Type: ErrorTypeMediaFetchFailed}
	ErrPersistenceFailure = &Error{Type: ErrorTypePersistenceFailure}
	ErrCancelled          = &Error{Type: ErrorTypeCancelled}
	ErrInvalidOptions     = &Error{Type: ErrorTypeInvalidOptions}
)

// New creates a typed error.
func New(t ErrorType, message string) *Error {
	return &Error{Type: t, Message: message}
}

// Newf creates a typed error with a formatted message.
func Newf(t ErrorType, format string, args ...interface{}) *Error {
	return &Error{Type: t, Message: fmt.Sprintf(format, args...)}
}

// Wrap attaches a type to an underlying error.
func Wrap(t ErrorType, err error, message string) *Error {
	return &Error{Type: t, Message: message, Err: err}
}

// TypeOf returns the type of the first *Error in err's chain, or
// ErrorTypeUnknown.
func TypeOf(err error) ErrorType {
	var e *Error
	if stderrors.As(err, &e) {
		return e.Type
	}
	return ErrorTypeUnknown
}

// IsType reports whether err's chain contains an *Error of type t.
func IsType(err error, t ErrorType) bool {
	return err != nil && TypeOf(err) == t
}

// IsRetryable checks if an error type should be retried
func IsRetryable(errorType ErrorType) bool {
	switch errorType {
	case ErrorTypeNetwork, ErrorTypeRateLimited, ErrorTypeServerError, ErrorTypeMediaFetchFailed:
		return true
	default:
		return false
	}
}

// IsRetryableStatusCode checks if an HTTP status code indicates a retryable error
func IsRetryableStatusCode(statusCode int) bool {
	switch statusCode {
	case 0, 429:
		return true
	case 401, 403, 404:
		return false
	default:
		return statusCode >= 500
	}
}

// FromStatusCode maps an HTTP status to an error type.
func FromStatusCode(statusCode int) ErrorType {
	switch {
	case statusCode == 401 || statusCode == 403:
		return ErrorTypeAuthExpired
	case statusCode == 404:
		return ErrorTypeNotFound
	case statusCode == 429:
		return ErrorTypeRateLimited
	case statusCode >= 500:
		return ErrorTypeServerError
	default:
		return ErrorTypeUnknown
	}
}
