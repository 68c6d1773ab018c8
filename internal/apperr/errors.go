// Package apperr defines the tagged error type returned by every seeding entry point.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
)

type Code string

const (
	CodeConfiguration      Code = "configuration_error"
	CodeValidation         Code = "validation_error"
	CodeAssignment         Code = "assignment_error"
	CodeNotFound           Code = "not_found"
	CodeUnsupportedBackend Code = "unsupported_backend"
)

type Error struct {
	Status  int
	Code    Code
	Message string
	Details any
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func newError(status int, code Code, message string, details any) *Error {
	return &Error{
		Status:  status,
		Code:    code,
		Message: message,
		Details: details,
	}
}

// Configuration reports every missing required setting at once.
func Configuration(missing []string) *Error {
	return newError(
		http.StatusInternalServerError,
		CodeConfiguration,
		"missing required settings: "+strings.Join(missing, ", "),
		map[string]any{"missing": missing},
	)
}

// Validation reports rejected input, listing the offending values.
func Validation(message string, offending []string) *Error {
	if len(offending) > 0 {
		message = message + ": " + strings.Join(offending, ", ")
	}
	return newError(http.StatusBadRequest, CodeValidation, message, map[string]any{"values": offending})
}

// Assignment reports an entry that asks to be bound without being created.
func Assignment(alias string) *Error {
	return newError(
		http.StatusUnprocessableEntity,
		CodeAssignment,
		fmt.Sprintf("cannot assign a credential that is not created (%s)", alias),
		map[string]any{"alias": alias},
	)
}

// NotFound reports a missing user, template or other named record.
func NotFound(kind, key string) *Error {
	return newError(
		http.StatusNotFound,
		CodeNotFound,
		fmt.Sprintf("%s %q not found", kind, key),
		map[string]any{"kind": kind, "key": key},
	)
}

func UnsupportedBackend(dialect string) *Error {
	return newError(
		http.StatusNotImplemented,
		CodeUnsupportedBackend,
		fmt.Sprintf("unsupported database backend %q", dialect),
		map[string]any{"dialect": dialect},
	)
}

// CodeOf returns the code of the first *Error in err's chain, or "" when there is none.
func CodeOf(err error) Code {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr.Code
	}
	return ""
}

func Is(err error, code Code) bool {
	return CodeOf(err) == code
}
