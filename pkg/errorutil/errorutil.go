package errorutil

import (
	"context"
	"errors"
	"fmt"
	"net/http"
)

// Error codes surfaced to API clients.
const (
	CodeUnauthenticated   = "UNAUTHENTICATED"
	CodeForbidden         = "FORBIDDEN"
	CodeNotFound          = "NOT_FOUND"
	CodeInvalidTransition = "INVALID_TRANSITION"
	CodeConflict          = "CONFLICT"
	CodeValidation        = "VALIDATION_FAILED"
	CodeDataIntegrity     = "DATA_INTEGRITY"
	CodeStoreFailure      = "STORE_FAILURE"
	CodeInternal          = "INTERNAL_ERROR"
)

// Sentinels for errors.Is checks. Any DomainError with the same code matches.
var (
	ErrUnauthenticated   = &DomainError{Code: CodeUnauthenticated}
	ErrForbidden         = &DomainError{Code: CodeForbidden}
	ErrNotFound          = &DomainError{Code: CodeNotFound}
	ErrInvalidTransition = &DomainError{Code: CodeInvalidTransition}
	ErrConflict          = &DomainError{Code: CodeConflict}
	ErrValidation        = &DomainError{Code: CodeValidation}
	ErrDataIntegrity     = &DomainError{Code: CodeDataIntegrity}
	ErrStoreFailure      = &DomainError{Code: CodeStoreFailure}
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
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *DomainError) Unwrap() error {
	return e.Err
}

// Is matches on the error code so sentinels work with errors.Is.
func (e *DomainError) Is(target error) bool {
	var other *DomainError
	if !errors.As(target, &other) {
		return false
	}
	return other.Code == e.Code
}

// NewDomainError constructs a DomainError.
func NewDomainError(code, message string, status int, details map[string]any) *DomainError {
	return &DomainError{Code: code, Message: message, HTTPStatus: status, Details: details}
}

func NewValidationError(message string, details map[string]any) error {
	return NewDomainError(CodeValidation, message, http.StatusBadRequest, details)
}

func NewNotFound(resource string, details map[string]any) error {
	if details == nil {
		details = map[string]any{}
	}
	return &DomainError{
		Code:       CodeNotFound,
		Message:    fmt.Sprintf("%s no longer present", resource),
		HTTPStatus: http.StatusNotFound,
		Details:    details,
	}
}

func NewUnauthenticated(message string) error {
	return NewDomainError(CodeUnauthenticated, message, http.StatusUnauthorized, nil)
}

func NewForbidden(message string) error {
	return NewDomainError(CodeForbidden, message, http.StatusForbidden, nil)
}

func NewConflict(message string, details map[string]any) error {
	return NewDomainError(CodeConflict, message, http.StatusConflict, details)
}

func NewInvalidTransition(from, to string) error {
	return NewDomainError(CodeInvalidTransition,
		fmt.Sprintf("status cannot change from %q to %q", from, to),
		http.StatusConflict,
		map[string]any{"from": from, "to": to})
}

func NewDataIntegrity(message string, details map[string]any) error {
	return NewDomainError(CodeDataIntegrity, message, http.StatusUnprocessableEntity, details)
}

// NewStoreFailure wraps a document store error so the caller can offer a retry.
func NewStoreFailure(op string, err error) error {
	msg := "document store unavailable"
	if errors.Is(err, context.DeadlineExceeded) {
		msg = "document store timed out"
	}
	return &DomainError{
		Code:       CodeStoreFailure,
		Message:    msg,
		HTTPStatus: http.StatusServiceUnavailable,
		Details:    map[string]any{"operation": op},
		Err:        err,
	}
}

func NewInternalError(err error) error {
	return &DomainError{
		Code:       CodeInternal,
		Message:    "internal server error",
		HTTPStatus: http.StatusInternalServerError,
		Err:        err,
	}
}

// ToDomainError converts generic errors to DomainError.
func ToDomainError(err error) *DomainError {
	if err == nil {
		return nil
	}
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		if domainErr.HTTPStatus == 0 {
			cp := *domainErr
			cp.HTTPStatus = http.StatusInternalServerError
			return &cp
		}
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
