package errors

import (
    "errors"
    "fmt"
    "net/http"
)

type ErrorType string

const (
    ErrorTypeUnknownEntity  ErrorType = "UNKNOWN_ENTITY"
    ErrorTypeRemoteTimeout  ErrorType = "REMOTE_TIMEOUT"
    ErrorTypeRemoteRejected ErrorType = "REMOTE_REJECTED"
    ErrorTypeEnqueueFailed  ErrorType = "ENQUEUE_FAILED"
    ErrorTypeNotFound       ErrorType = "NOT_FOUND"
    ErrorTypeValidation     ErrorType = "VALIDATION"
    ErrorTypeInternal       ErrorType = "INTERNAL"
)

type Error struct {
    Type    ErrorType `json:"type"`
    Message string    `json:"message"`
    Code    int       `json:"code"`
    Err     error     `json:"-"`
}

func (e *Error) Error() string {
    if e.Err != nil {
        return fmt.Sprintf("%s: %v", e.Message, e.Err)
    }
    return e.Message
}

func (e *Error) Unwrap() error {
    return e.Err
}

// UnknownEntity rejects an intent whose kind has no registered mutation
// handler. Raised before any mutation is applied.
func UnknownEntity(kind string) *Error {
    return &Error{
        Type:    ErrorTypeUnknownEntity,
        Message: fmt.Sprintf("no mutation handler for entity kind %q", kind),
        Code:    http.StatusBadRequest,
    }
}

// RemoteTimeout marks a remote call that did not settle within the deadline.
func RemoteTimeout(timeoutMs int64) *Error {
    return &Error{
        Type:    ErrorTypeRemoteTimeout,
        Message: fmt.Sprintf("remote call did not settle within %dms", timeoutMs),
        Code:    http.StatusGatewayTimeout,
    }
}

// RemoteRejected wraps the original remote failure unmodified so callers can
// still unwrap it.
func RemoteRejected(err error) *Error {
    return &Error{
        Type:    ErrorTypeRemoteRejected,
        Message: "remote call rejected",
        Code:    http.StatusBadGateway,
        Err:     err,
    }
}

// EnqueueFailed marks a sync-queue persistence failure. Surfaces through the
// same channel as remote failures, after rollback.
func EnqueueFailed(err error) *Error {
    return &Error{
        Type:    ErrorTypeEnqueueFailed,
        Message: "persisting sync queue entry",
        Code:    http.StatusInsufficientStorage,
        Err:     err,
    }
}

func NotFound(message string) *Error {
    return &Error{
        Type:    ErrorTypeNotFound,
        Message: message,
        Code:    http.StatusNotFound,
    }
}

func ValidationError(message string) *Error {
    return &Error{
        Type:    ErrorTypeValidation,
        Message: message,
        Code:    http.StatusBadRequest,
    }
}

func Internal(message string, err error) *Error {
    return &Error{
        Type:    ErrorTypeInternal,
        Message: message,
        Code:    http.StatusInternalServerError,
        Err:     err,
    }
}

// IsType reports whether err carries the given error type anywhere in its
// chain.
func IsType(err error, t ErrorType) bool {
    var e *Error
    if errors.As(err, &e) {
        return e.Type == t
    }
    return false
}
