package dataset

import (
	"errors"
	"fmt"
)

// Error is the single error type surfaced by cohort components.
//
// Kinds:
//   - ConfigurationError: required key absent or inconsistent configuration
//   - DataAccessError: a data file is missing or unreadable
//   - ValidationError: a filter or parameter failed a shape check
//   - SecurityRejection: an identifier failed the whitelist
//
// Most builder paths degrade a SecurityRejection to a warning instead of
// returning it. The kind still exists so callers that want a hard failure
// can ask for one.
type Error struct {
	// Kind identifies the error category.
	Kind ErrorKind

	// Op names the operation that failed (e.g. "detect structure").
	Op string

	// Message is a human-readable description.
	Message string

	// Err is the underlying cause, if any.
	Err error

	// Details contains additional context.
	Details map[string]string
}

// ErrorKind categorizes errors.
type ErrorKind string

const (
	// ConfigurationError indicates missing or inconsistent configuration.
	ConfigurationError ErrorKind = "CONFIGURATION_ERROR"

	// DataAccessError indicates a data source could not be read.
	DataAccessError ErrorKind = "DATA_ACCESS_ERROR"

	// ValidationError indicates malformed user input.
	ValidationError ErrorKind = "VALIDATION_ERROR"

	// SecurityRejection indicates an identifier outside the whitelist.
	SecurityRejection ErrorKind = "SECURITY_REJECTION"
)

// Error implements the error interface.
func (e *Error) Error() string {
	msg := fmt.Sprintf("%s: %s", e.Kind, e.Message)
	if e.Op != "" {
		msg = fmt.Sprintf("%s: %s: %s", e.Op, e.Kind, e.Message)
	}
	if e.Err != nil {
		return msg + ": " + e.Err.Error()
	}
	return msg
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Err
}

// IsKind reports whether err (or anything it wraps) is an *Error of the given kind.
func IsKind(err error, kind ErrorKind) bool {
	var de *Error
	if errors.As(err, &de) {
		return de.Kind == kind
	}
	return false
}

// KindOf returns the kind of the first *Error in err's chain.
func KindOf(err error) (ErrorKind, bool) {
	var de *Error
	if errors.As(err, &de) {
		return de.Kind, true
	}
	return "", false
}

// NewConfigurationError creates an Error of kind ConfigurationError.
func NewConfigurationError(op, message string, err error) *Error {
	return &Error{Kind: ConfigurationError, Op: op, Message: message, Err: err}
}

// NewDataAccessError creates an Error of kind DataAccessError.
func NewDataAccessError(op, path string, err error) *Error {
	return &Error{
		Kind:    DataAccessError,
		Op:      op,
		Message: fmt.Sprintf("cannot read %s", path),
		Err:     err,
		Details: map[string]string{"path": path},
	}
}

// NewValidationError creates an Error of kind ValidationError.
func NewValidationError(op, message string, err error) *Error {
	return &Error{Kind: ValidationError, Op: op, Message: message, Err: err}
}

// NewSecurityRejection creates an Error of kind SecurityRejection for an identifier.
func NewSecurityRejection(op, identifier string) *Error {
	return &Error{
		Kind:    SecurityRejection,
		Op:      op,
		Message: fmt.Sprintf("identifier %q is not allowed", identifier),
		Details: map[string]string{"identifier": identifier},
	}
}

// NewQueryError creates a DataAccessError for a failed query execution.
func NewQueryError(op string, err error) *Error {
	return &Error{Kind: DataAccessError, Op: op, Message: "query failed", Err: err}
}
