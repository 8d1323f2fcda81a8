package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

type Code string

const (
	CodeUnknown          Code = "UNKNOWN"
	CodeInvalidArgument  Code = "INVALID_ARGUMENT"
	CodeNotFound         Code = "NOT_FOUND"
	CodePermissionDenied Code = "PERMISSION_DENIED"
	CodeUnauthenticated  Code = "UNAUTHENTICATED"
	CodeConflict         Code = "CONFLICT"
	CodeUnavailable      Code = "UNAVAILABLE"
)

type AppError struct {
	Code    Code   `json:"code"`
	Message string `json:"message"`
	Cause   error  `json:"-"`
}

func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *AppError) Unwrap() error { return e.Cause }

func New(code Code, message string) error {
	return &AppError{Code: code, Message: message}
}

func Wrap(code Code, message string, cause error) error {
	return &AppError{Code: code, Message: message, Cause: cause}
}

func InvalidInput(msg string) error {
	return New(CodeInvalidArgument, msg)
}

func NotFound(msg string) error {
	return New(CodeNotFound, msg)
}

func Unauthorized(msg string) error {
	return New(CodeUnauthenticated, msg)
}

func Forbidden(msg string) error {
	return New(CodePermissionDenied, msg)
}

func Conflict(msg string) error {
	return New(CodeConflict, msg)
}

// Transient marks a storage or collaborator failure the caller may retry.
func Transient(msg string, cause error) error {
	return Wrap(CodeUnavailable, msg, cause)
}

// CodeOf returns the code carried by err, or CodeUnknown.
func CodeOf(err error) Code {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code
	}
	return CodeUnknown
}

// Message returns the client-safe message of err.
func Message(err error) string {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Message
	}
	return "internal error"
}

func Is(err error, code Code) bool {
	return CodeOf(err) == code
}

// HTTPStatus maps an error to the response status used by the HTTP handlers.
func HTTPStatus(err error) int {
	switch CodeOf(err) {
	case CodeInvalidArgument:
		return http.StatusBadRequest
	case CodeNotFound:
		return http.StatusNotFound
	case CodePermissionDenied:
		return http.StatusForbidden
	case CodeUnauthenticated:
		return http.StatusUnauthorized
	case CodeConflict:
		return http.StatusConflict
	case CodeUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// EventCode maps an error to the code carried by websocket error events.
func EventCode(err error) string {
	switch CodeOf(err) {
	case CodeInvalidArgument:
		return "INVALID_INPUT"
	case CodeNotFound:
		return "NOT_FOUND"
	case CodePermissionDenied:
		return "FORBIDDEN"
	case CodeUnauthenticated:
		return "UNAUTHORIZED"
	case CodeConflict:
		return "CONFLICT"
	case CodeUnavailable:
		return "TRANSIENT_STORAGE_ERROR"
	default:
		return "INTERNAL"
	}
}
