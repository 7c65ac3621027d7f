package apierror

import (
	"errors"
	"fmt"
	"strings"
)

// Error codes understood by the HTTP layer.
const (
	EInternal        = "internal error"
	EInvalid         = "invalid"
	EUnauthorized    = "unauthorized"
	EForbidden       = "forbidden"
	ENotFound        = "not found"
	EConflict        = "conflict"
	ETooManyRequests = "too many requests"
	EUnavailable     = "unavailable"
)

// Error carries a machine readable Code, a client facing Msg, the operation
// that failed and an optional wrapped cause.
//
// Err is never rendered to clients for EInternal errors.
type Error struct {
	Code string
	Msg  string
	Op   string
	Err  error
}

func New(options ...func(*Error)) *Error {
	err := &Error{}
	for _, o := range options {
		o(err)
	}
	return err
}

func WithCode(code string) func(*Error) {
	return func(e *Error) {
		e.Code = code
	}
}

func WithMsg(msg string) func(*Error) {
	return func(e *Error) {
		e.Msg = msg
	}
}

func WithMsgf(format string, args ...any) func(*Error) {
	return func(e *Error) {
		e.Msg = fmt.Sprintf(format, args...)
	}
}

func WithOp(op string) func(*Error) {
	return func(e *Error) {
		e.Op = op
	}
}

func WithErr(err error) func(*Error) {
	return func(e *Error) {
		e.Err = err
	}
}

func (e *Error) Error() string {
	if e.Msg != "" && e.Err != nil {
		var b strings.Builder
		b.WriteString(e.Msg)
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
		return b.String()
	} else if e.Msg != "" {
		return e.Msg
	} else if e.Err != nil {
		return e.Err.Error()
	}
	return fmt.Sprintf("<%s>", e.Code)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// ErrorCode returns the code of the outermost *Error in the chain, or
// EInternal for foreign errors.
func ErrorCode(err error) string {
	if err == nil {
		return ""
	}

	var e *Error
	if !errors.As(err, &e) {
		return EInternal
	}
	if e.Code != "" {
		return e.Code
	}
	if e.Err != nil {
		return ErrorCode(e.Err)
	}
	return EInternal
}

// ErrorMessage returns the client facing message. Internal errors always get
// a generic message so collaborator failures never leak.
func ErrorMessage(err error) string {
	if err == nil {
		return ""
	}

	var e *Error
	if !errors.As(err, &e) {
		return "An internal error has occurred."
	}
	if e.Code == EInternal {
		if e.Msg != "" {
			return e.Msg
		}
		return "An internal error has occurred."
	}
	if e.Msg != "" {
		return e.Msg
	}
	if e.Err != nil {
		return ErrorMessage(e.Err)
	}
	return "An internal error has occurred."
}

func Invalid(msg string) *Error {
	return &Error{Code: EInvalid, Msg: msg}
}

func Unauthorized(msg string) *Error {
	return &Error{Code: EUnauthorized, Msg: msg}
}

func Forbidden(msg string) *Error {
	return &Error{Code: EForbidden, Msg: msg}
}

func NotFound(msg string) *Error {
	return &Error{Code: ENotFound, Msg: msg}
}

func Conflict(msg string) *Error {
	return &Error{Code: EConflict, Msg: msg}
}

// Internal wraps cause behind a client safe message.
func Internal(msg string, cause error) *Error {
	return &Error{Code: EInternal, Msg: msg, Err: cause}
}

func Unavailable(msg string, cause error) *Error {
	return &Error{Code: EUnavailable, Msg: msg, Err: cause}
}
