package errorutil

import (
	"context"
	"errors"
	"fmt"
	"net/http"
)

// Error codes shared by the session core and the HTTP layer.
const (
	CodeInvalidCredential = "INVALID_CREDENTIAL"
	CodeNotFound          = "NOT_FOUND"
	CodeDecodeError       = "DECODE_ERROR"
	CodeTimeout           = "TIMEOUT"
	CodeCancelled         = "CANCELLED"
	CodeUnreachable       = "UNREACHABLE"
	CodeTransientNetwork  = "TRANSIENT_NETWORK"
	CodeClientError       = "CLIENT_ERROR"
	CodeParseError        = "PARSE_ERROR"
	CodeValidationFailed  = "VALIDATION_FAILED"
	CodeUnauthorized      = "UNAUTHORIZED"
	CodeForbidden         = "FORBIDDEN"
	CodeConflict          = "CONFLICT"
	CodeInternal          = "INTERNAL_ERROR"
)

// Sentinels for errors.Is checks. Matching is by Code only.
var (
	ErrInvalidCredential = &DomainError{Code: CodeInvalidCredential}
	ErrNotFound          = &DomainError{Code: CodeNotFound}
	ErrDecode            = &DomainError{Code: CodeDecodeError}
	ErrTimeout           = &DomainError{Code: CodeTimeout}
	ErrCancelled         = &DomainError{Code: CodeCancelled}
	ErrUnreachable       = &DomainError{Code: CodeUnreachable}
	ErrTransientNetwork  = &DomainError{Code: CodeTransientNetwork}
	ErrClient            = &DomainError{Code: CodeClientError}
	ErrParse             = &DomainError{Code: CodeParseError}
)

// DomainError standardizes application errors.
type DomainError struct {
	Code       string
	Message    string
	HTTPStatus int
	Details    map[string]any
	Err        error
}

func (e *DomainError) Error() string {
	msg := e.Message
	if msg == "" {
		msg = e.Code
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

func (e *DomainError) Unwrap() error {
	return e.Err
}

// Is matches another DomainError with the same code.
func (e *DomainError) Is(target error) bool {
	var other *DomainError
	if !errors.As(target, &other) {
		return false
	}
	return other.Code != "" && other.Code == e.Code
}

// NewDomainError constructs a DomainError.
func NewDomainError(code, message string, status int, details map[string]any) *DomainError {
	return &DomainError{Code: code, Message: message, HTTPStatus: status, Details: details}
}

func NewValidationError(message string, details map[string]any) error {
	return NewDomainError(CodeValidationFailed, message, http.StatusBadRequest, details)
}

func NewUnauthorized(message string) error {
	return NewDomainError(CodeUnauthorized, message, http.StatusUnauthorized, nil)
}

func NewForbidden(message string) error {
	return NewDomainError(CodeForbidden, message, http.StatusForbidden, nil)
}

func NewConflict(message string, details map[string]any) error {
	return NewDomainError(CodeConflict, message, http.StatusConflict, details)
}

func NewInternalError(err error) error {
	return &DomainError{
		Code:       CodeInternal,
		Message:    "internal server error",
		HTTPStatus: http.StatusInternalServerError,
		Err:        err,
	}
}

func NewInvalidCredential(err error) error {
	return &DomainError{
		Code:       CodeInvalidCredential,
		Message:    "invalid credentials",
		HTTPStatus: http.StatusUnauthorized,
		Err:        err,
	}
}

// NewNotFound reports that no partition held the subject.
func NewNotFound(resource string, details map[string]any) error {
	if details == nil {
		details = map[string]any{}
	}
	return &DomainError{
		Code:       CodeNotFound,
		Message:    fmt.Sprintf("%s not found", resource),
		HTTPStatus: http.StatusNotFound,
		Details:    details,
	}
}

// NewDecodeError reports a matched record that could not be decoded.
func NewDecodeError(partition string, err error) error {
	return &DomainError{
		Code:       CodeDecodeError,
		Message:    "malformed identity record",
		HTTPStatus: http.StatusUnprocessableEntity,
		Details:    map[string]any{"partition": partition},
		Err:        err,
	}
}

func NewTimeout(message string, err error) error {
	return &DomainError{
		Code:       CodeTimeout,
		Message:    message,
		HTTPStatus: http.StatusGatewayTimeout,
		Err:        err,
	}
}

func NewCancelled(message string, err error) error {
	return &DomainError{
		Code:       CodeCancelled,
		Message:    message,
		HTTPStatus: http.StatusConflict,
		Err:        err,
	}
}

func NewUnreachable(message string) error {
	return NewDomainError(CodeUnreachable, message, http.StatusServiceUnavailable, nil)
}

func NewTransientNetwork(attempts int, err error) error {
	return &DomainError{
		Code:       CodeTransientNetwork,
		Message:    fmt.Sprintf("network unavailable after %d attempts", attempts),
		HTTPStatus: http.StatusBadGateway,
		Details:    map[string]any{"attempts": attempts},
		Err:        err,
	}
}

// NewClientError reports a terminal, non-retried outbound failure.
func NewClientError(kind, detail string, err error) error {
	return &DomainError{
		Code:       CodeClientError,
		Message:    detail,
		HTTPStatus: http.StatusBadGateway,
		Details:    map[string]any{"kind": kind},
		Err:        err,
	}
}

func NewParseError(detail string, err error) error {
	return &DomainError{
		Code:       CodeParseError,
		Message:    detail,
		HTTPStatus: http.StatusBadGateway,
		Err:        err,
	}
}

// FromContext maps a finished context into Timeout or Cancelled.
func FromContext(ctx context.Context, what string) error {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return NewTimeout(what+" timed out", ctx.Err())
	}
	return NewCancelled(what+" cancelled", ctx.Err())
}

// ToDomainError converts generic errors to DomainError.
func ToDomainError(err error) *DomainError {
	if err == nil {
		return nil
	}
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr
	}
	if de, ok := NewInternalError(err).(*DomainError); ok {
		return de
	}
	return &DomainError{
		Code:       CodeInternal,
		Message:    "internal server error",
		HTTPStatus: http.StatusInternalServerError,
		Err:        err,
	}
}

func MapError(err error) error {
	return ToDomainError(err)
}

// CodeOf returns the DomainError code of err, or empty.
func CodeOf(err error) string {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Code
	}
	return ""
}
