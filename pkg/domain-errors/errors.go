// Package domainerrors defines coded domain errors shared across services,
// stores, and transport. Codes are stable identifiers surfaced to API
// clients; messages are free-form and may change.
package domainerrors

import (
	"errors"
	"fmt"
	"net/http"
)

// Code identifies a class of domain failure.
type Code string

const (
	CodeInvalidRecord     Code = "invalid_record"
	CodeAlreadyAnchored   Code = "already_anchored"
	CodeLedgerUnavailable Code = "ledger_unavailable"
	CodeNotAnchored       Code = "not_anchored"
	CodeNotFound          Code = "not_found"
	CodeBadRequest        Code = "bad_request"
	CodeInternal          Code = "internal"
)

// DomainError carries a stable code alongside a human-readable message and
// an optional wrapped cause.
type DomainError struct {
	Code    Code
	Message string
	cause   error
}

func (e *DomainError) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *DomainError) Unwrap() error { return e.cause }

// New builds a DomainError with the given code and message.
func New(code Code, message string) *DomainError {
	return &DomainError{Code: code, Message: message}
}

// Wrap attaches a code and message to an underlying error so callers can
// branch on the code while the cause stays inspectable via errors.Unwrap.
func Wrap(code Code, message string, cause error) *DomainError {
	return &DomainError{Code: code, Message: message, cause: cause}
}

// Is reports whether err (or anything it wraps) is a DomainError with the
// given code.
func Is(err error, code Code) bool {
	var de *DomainError
	if errors.As(err, &de) {
		return de.Code == code
	}
	return false
}

// CodeOf extracts the code from err, defaulting to CodeInternal for errors
// that did not originate in this package.
func CodeOf(err error) Code {
	var de *DomainError
	if errors.As(err, &de) {
		return de.Code
	}
	return CodeInternal
}

// ToHTTPStatus maps a domain code to the HTTP status the transport layer
// should respond with.
func ToHTTPStatus(code Code) int {
	switch code {
	case CodeInvalidRecord, CodeBadRequest:
		return http.StatusBadRequest
	case CodeAlreadyAnchored:
		return http.StatusConflict
	case CodeNotFound, CodeNotAnchored:
		return http.StatusNotFound
	case CodeLedgerUnavailable:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
