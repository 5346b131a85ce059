// Package errors provides the typed error taxonomy shared by the store and dashboard layers.
package errors

import (
	stderrors "errors"
	"fmt"
)

// Type identifies the category of error
type Type string

const (
	// TypeConfig indicates invalid or missing connection parameters
	TypeConfig Type = "CONFIG_ERROR"

	// TypeTransient indicates a store failure that may succeed on retry
	TypeTransient Type = "TRANSIENT_STORE_ERROR"

	// TypeQuery indicates a malformed query or constraint failure
	TypeQuery Type = "QUERY_ERROR"

	// TypeDataIntegrity indicates a stored value that cannot be coerced
	TypeDataIntegrity Type = "DATA_INTEGRITY_ERROR"

	// TypeInput indicates invalid user input
	TypeInput Type = "INPUT_ERROR"
)

// Error represents a domain error with context
type Error struct {
	Type    Type           `json:"type"`
	Message string         `json:"message"`
	Cause   error          `json:"-"`
	Context map[string]any `json:"context,omitempty"`
}

// Error implements the error interface
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Type, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Type, e.Message)
}

// Unwrap returns the underlying error
func (e *Error) Unwrap() error {
	return e.Cause
}

// WithContext adds context to the error
func (e *Error) WithContext(key string, value any) *Error {
	if e.Context == nil {
		e.Context = make(map[string]any)
	}
	e.Context[key] = value
	return e
}

// New creates a new error
func New(errType Type, message string) *Error {
	return &Error{Type: errType, Message: message}
}

// Wrap wraps an error with context
func Wrap(errType Type, message string, cause error) *Error {
	return &Error{Type: errType, Message: message, Cause: cause}
}

// IsType reports whether any error in err's chain is an *Error of type t.
func IsType(err error, t Type) bool {
	var e *Error
	for err != nil {
		if !stderrors.As(err, &e) {
			return false
		}
		if e.Type == t {
			return true
		}
		err = e.Cause
	}
	return false
}

// Config creates a configuration error
func Config(message string, cause error) *Error {
	return Wrap(TypeConfig, message, cause)
}

// Transient creates a transient store error
func Transient(message string, cause error) *Error {
	return Wrap(TypeTransient, message, cause)
}

// Query creates a query error
func Query(message string, cause error) *Error {
	return Wrap(TypeQuery, message, cause)
}

// DataIntegrity creates a data integrity error
func DataIntegrity(message string, cause error) *Error {
	return Wrap(TypeDataIntegrity, message, cause)
}

// Input creates an input error
func Input(message string) *Error {
	return New(TypeInput, message)
}
