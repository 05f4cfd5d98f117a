// Package apperrors defines the error taxonomy shared by the imitation services.
package apperrors

import (
	"errors"
	"fmt"
)

// Kind classifies a failure for the transport layer.
type Kind string

const (
	KindValidation      Kind = "validation"
	KindUnauthenticated Kind = "unauthenticated"
	KindForbidden       Kind = "forbidden"
	KindNotFound        Kind = "not_found"
	KindConflict        Kind = "conflict"
	KindInternal        Kind = "internal"
)

// ServiceError carries a kind, a stable `<operation>.<reason>` code and a caller-facing message.
type ServiceError struct {
	kind    Kind
	code    string
	message string
	err     error
}

// New builds a ServiceError for the operation and reason.
func New(kind Kind, operation, reason, message string, cause error) error {
	return &ServiceError{
		kind:    kind,
		code:    fmt.Sprintf("%s.%s", operation, reason),
		message: message,
		err:     cause,
	}
}

// Internal wraps a storage or infrastructure failure. The cause never reaches the caller.
func Internal(operation, reason string, cause error) error {
	return New(KindInternal, operation, reason, "internal error", cause)
}

func (e *ServiceError) Error() string {
	if e.err == nil {
		return fmt.Sprintf("%s: %s", e.code, e.message)
	}
	return fmt.Sprintf("%s: %s: %v", e.code, e.message, e.err)
}

func (e *ServiceError) Unwrap() error {
	return e.err
}

func (e *ServiceError) Kind() Kind {
	return e.kind
}

func (e *ServiceError) Code() string {
	return e.code
}

func (e *ServiceError) Message() string {
	return e.message
}

// KindOf reports the kind of err, treating unknown errors as internal.
func KindOf(err error) Kind {
	var serviceErr *ServiceError
	if errors.As(err, &serviceErr) {
		return serviceErr.kind
	}
	return KindInternal
}

// Is reports whether err is a ServiceError of the given kind.
func Is(err error, kind Kind) bool {
	var serviceErr *ServiceError
	return errors.As(err, &serviceErr) && serviceErr.kind == kind
}
