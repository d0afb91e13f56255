// Package errorx defines the coded error type shared by every service layer.
// A CodeError carries a stable business code, a human readable message and an
// optional wrapped cause, and it is recognised by errors.Is / errors.As.
package errorx

import (
	"errors"
	"fmt"
	"net/http"
)

// CodeError is an error with a business code.
type CodeError struct {
	Code  int
	Msg   string
	cause error
}

func (e *CodeError) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %v", e.Msg, e.cause)
	}
	return e.Msg
}

func (e *CodeError) Unwrap() error {
	return e.cause
}

// Is matches any CodeError with the same code, so wrapped errors compare equal
// to the sentinels below.
func (e *CodeError) Is(target error) bool {
	var t *CodeError
	if !errors.As(target, &t) {
		return false
	}
	return t.Code == e.Code
}

// New creates a CodeError without a cause.
func New(code int, msg string) *CodeError {
	return &CodeError{Code: code, Msg: msg}
}

// Newf creates a CodeError with a formatted message.
func Newf(code int, format string, args ...any) *CodeError {
	return &CodeError{Code: code, Msg: fmt.Sprintf(format, args...)}
}

// Wrap attaches a code and message to err.
func Wrap(err error, code int, msg string) *CodeError {
	return &CodeError{Code: code, Msg: msg, cause: err}
}

// Wrapf is Wrap with a formatted message.
func Wrapf(err error, code int, format string, args ...any) *CodeError {
	return &CodeError{Code: code, Msg: fmt.Sprintf(format, args...), cause: err}
}

const (
	CodeSuccess      = 1000
	CodeInvalidParam = 1001
	CodeConflict     = 1002
	CodeNotFound     = 1003
	CodeInvalidState = 1004
	CodeTimeout      = 1005
	CodeForbidden    = 1006
	CodeUnauthorized = 1007
	CodeInternal     = 1010
)

var (
	ErrInvalidParam = New(CodeInvalidParam, "invalid parameter")
	ErrConflict     = New(CodeConflict, "conflict")
	ErrNotFound     = New(CodeNotFound, "not found")
	ErrInvalidState = New(CodeInvalidState, "invalid state")
	ErrTimeout      = New(CodeTimeout, "timed out")
	ErrForbidden    = New(CodeForbidden, "forbidden")
	ErrUnauthorized = New(CodeUnauthorized, "unauthorized")
	ErrInternal     = New(CodeInternal, "internal error")
)

// GetCode extracts the business code, defaulting to CodeInternal.
func GetCode(err error) int {
	var codeErr *CodeError
	if errors.As(err, &codeErr) {
		return codeErr.Code
	}
	return CodeInternal
}

// HTTPStatus maps a business code to the status the API answers with.
func HTTPStatus(err error) int {
	switch GetCode(err) {
	case CodeInvalidParam:
		return http.StatusBadRequest
	case CodeConflict, CodeInvalidState:
		return http.StatusConflict
	case CodeNotFound:
		return http.StatusNotFound
	case CodeTimeout:
		return http.StatusRequestTimeout
	case CodeForbidden:
		return http.StatusForbidden
	case CodeUnauthorized:
		return http.StatusUnauthorized
	default:
		return http.StatusInternalServerError
	}
}

// Slug returns the snake_case code clients switch on.
func Slug(err error) string {
	switch GetCode(err) {
	case CodeInvalidParam:
		return "invalid_param"
	case CodeConflict:
		return "conflict"
	case CodeNotFound:
		return "not_found"
	case CodeInvalidState:
		return "invalid_state"
	case CodeTimeout:
		return "timeout"
	case CodeForbidden:
		return "forbidden"
	case CodeUnauthorized:
		return "unauthorized"
	default:
		return "internal"
	}
}
