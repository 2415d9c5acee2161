package errors

import (
	"errors"
	"fmt"
	"net/http"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

type Code codes.Code

const (
	// CodeInvalidArgument reports missing or malformed input.
	CodeInvalidArgument = Code(codes.InvalidArgument)
	// CodeUnauthenticated reports an unknown judge token or a wrong join PIN.
	CodeUnauthenticated = Code(codes.Unauthenticated)
	// CodePermissionDenied reports a host token mismatch.
	CodePermissionDenied = Code(codes.PermissionDenied)
	CodeNotFound         = Code(codes.NotFound)
	CodeAlreadyExists    = Code(codes.AlreadyExists)
	// CodeFailedPrecondition reports a mutation attempted on an ended session.
	CodeFailedPrecondition = Code(codes.FailedPrecondition)
	// CodeAborted reports a lost compare-and-swap race on a session update.
	CodeAborted  = Code(codes.Aborted)
	CodeInternal = Code(codes.Internal)
)

var code2http = map[Code]int{
	CodeInvalidArgument:    http.StatusBadRequest,
	CodeUnauthenticated:    http.StatusUnauthorized,
	CodePermissionDenied:   http.StatusForbidden,
	CodeNotFound:           http.StatusNotFound,
	CodeAlreadyExists:      http.StatusConflict,
	CodeFailedPrecondition: http.StatusConflict,
	CodeAborted:            http.StatusConflict,
	CodeInternal:           http.StatusInternalServerError,
}

type Error struct {
	Code    Code   `json:"code"`
	Message string `json:"message"`
	err     error
}

func New(code Code, opts ...Option) *Error {
	e := &Error{
		Code:    code,
		Message: codes.Code(code).String(),
	}

	for _, opt := range opts {
		opt.apply(e)
	}

	return e
}

func (e *Error) Error() string {
	s := fmt.Sprintf("code: %d, message: %s", e.Code, e.Message)
	if e.err != nil {
		s += fmt.Sprintf(", err: %s", e.err)
	}

	return s
}

func (e *Error) Unwrap() error {
	return e.err
}

func (e *Error) GRPCStatus() *status.Status {
	return status.New(codes.Code(e.Code), e.Message)
}

func (e *Error) HTTPStatusCode() int {
	if c, ok := code2http[e.Code]; ok {
		return c
	}

	return http.StatusInternalServerError
}

// Kind returns the error kind name used in API responses.
func (e *Error) Kind() string {
	switch e.Code {
	case CodeInvalidArgument:
		return "validation"
	case CodeUnauthenticated:
		return "authentication"
	case CodePermissionDenied:
		return "authorization"
	case CodeNotFound:
		return "not_found"
	case CodeFailedPrecondition:
		return "terminal_state"
	case CodeAborted, CodeAlreadyExists:
		return "conflict"
	default:
		return "internal"
	}
}

func Convert(err error) *Error {
	var e *Error
	if !errors.As(err, &e) {
		return Internal(err)
	}

	return e
}

// Is reports whether err carries an *Error with the given code.
func Is(err error, code Code) bool {
	var e *Error
	return errors.As(err, &e) && e.Code == code
}

func Internal(err error) *Error {
	return New(CodeInternal, WithCause(err))
}

func Validation(format string, args ...any) *Error {
	return New(CodeInvalidArgument, WithMessagef(format, args...))
}

func NotFound(format string, args ...any) *Error {
	return New(CodeNotFound, WithMessagef(format, args...))
}

func Unauthenticated(format string, args ...any) *Error {
	return New(CodeUnauthenticated, WithMessagef(format, args...))
}

func PermissionDenied(format string, args ...any) *Error {
	return New(CodePermissionDenied, WithMessagef(format, args...))
}

func TerminalState(sessionID string) *Error {
	return New(CodeFailedPrecondition, WithMessagef("session has ended: session=%s", sessionID))
}

type Option interface {
	apply(*Error)
}

type optionFunc func(*Error)

func (f optionFunc) apply(e *Error) {
	f(e)
}

func WithCause(err error) Option {
	return optionFunc(func(e *Error) {
		e.err = err
	})
}

func WithMessagef(format string, args ...any) Option {
	return optionFunc(func(e *Error) {
		e.Message = fmt.Sprintf(format, args...)
	})
}
