package optimization

import (
	"errors"
	"fmt"
)

// Sentinel errors for annealing configuration. Match them with errors.Is.
var (
	// ErrInvalidSchedule is returned when a cooling schedule can never make
	// progress or would stop before its first iteration.
	ErrInvalidSchedule = errors.New("optimization: invalid cooling schedule")

	// ErrInvalidConfig is returned for run configurations that cannot start.
	ErrInvalidConfig = errors.New("optimization: invalid configuration")

	// ErrUnknownAcceptance is returned when an acceptance function name is not registered.
	ErrUnknownAcceptance = errors.New("optimization: unknown acceptance function")

	// ErrUnknownProblem is returned when a problem name is not registered.
	ErrUnknownProblem = errors.New("optimization: unknown problem")
)

// Error represents an optimization error with context
// that can be wrapped with additional information.
type Error struct {
	// Message describes the error that occurred.
	Message string
	// Op is the operation that caused the error.
	Op string
	// Component is the component where the error occurred.
	Component string
	// Err is the underlying error, usually one of the sentinels above.
	Err error
}

// Error returns the string representation of the error.
func (e *Error) Error() string {
	if e == nil {
		return "<nil>"
	}
	var prefix string
	switch {
	case e.Component != "" && e.Op != "":
		prefix = e.Component + ": " + e.Op
	case e.Component != "":
		prefix = e.Component
	default:
		prefix = e.Op
	}

	msg := e.Message
	if e.Err != nil {
		if msg == "" {
			msg = e.Err.Error()
		} else {
			msg = fmt.Sprintf("%s: %v", msg, e.Err)
		}
	}
	if prefix == "" {
		return msg
	}
	return prefix + ": " + msg
}

// Unwrap returns the underlying error, if any.
func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// WithOperation adds operation context to the error.
func (e *Error) WithOperation(op string) *Error {
	e.Op = op
	return e
}

// WithComponent adds component context to the error.
func (e *Error) WithComponent(component string) *Error {
	e.Component = component
	return e
}

// Invalid builds an error wrapping sentinel with a formatted message.
//
//	return optimization.Invalid(optimization.ErrInvalidSchedule, "factor %v outside (0,1)", f)
func Invalid(sentinel error, format string, args ...interface{}) *Error {
	return &Error{
		Message: fmt.Sprintf(format, args...),
		Err:     sentinel,
	}
}

// WrapError wraps an existing error with additional context.
// If err is nil, WrapError returns nil.
func WrapError(err error, message string) *Error {
	if err == nil {
		return nil
	}
	return &Error{
		Message: message,
		Err:     err,
	}
}

// WrapErrorf wraps an existing error with additional formatted context.
// If err is nil, WrapErrorf returns nil.
func WrapErrorf(err error, format string, args ...interface{}) *Error {
	if err == nil {
		return nil
	}
	return &Error{
		Message: fmt.Sprintf(format, args...),
		Err:     err,
	}
}

// IsOptimizationError reports whether err is, or wraps, an *Error and returns it.
func IsOptimizationError(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}
