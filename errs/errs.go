// Package errs holds the error types returned by transport sessions.
package errs

import (
	"errors"
	"fmt"
)

// ConnectionError ... Returned when the session could not connect or authenticate.
type ConnectionError struct {
	Host string
	Err  error
}

func (e *ConnectionError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("could not connect to %s", e.Host)
	}
	return fmt.Sprintf("could not connect to %s: %s", e.Host, e.Err.Error())
}

func (e *ConnectionError) Unwrap() error {
	return e.Err
}

// TransportError ... Any protocol failure during an operation. The message of the
// underlying error is returned as-is.
type TransportError struct {
	Op   string
	Path string
	Err  error
}

func (e *TransportError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s %s failed", e.Op, e.Path)
	}
	return e.Err.Error()
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// NotFoundError ... The target of an operation does not exist on the remote host.
type NotFoundError struct {
	Op   string
	Path string
	Err  error
}

func (e *NotFoundError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s %s: no such file", e.Op, e.Path)
	}
	return fmt.Sprintf("%s %s: no such file: %s", e.Op, e.Path, e.Err.Error())
}

func (e *NotFoundError) Unwrap() error {
	return e.Err
}

// OperationError ... The remote host (or the session itself) refused the operation.
type OperationError struct {
	Op     string
	Path   string
	Reason string
	Err    error
}

func (e *OperationError) Error() string {
	msg := fmt.Sprintf("%s %s: %s", e.Op, e.Path, e.Reason)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *OperationError) Unwrap() error {
	return e.Err
}

// IsConnection ... Checks if err is, or wraps, a ConnectionError.
func IsConnection(err error) bool {
	var target *ConnectionError
	return errors.As(err, &target)
}

// IsTransport ... Checks if err is, or wraps, a TransportError.
func IsTransport(err error) bool {
	var target *TransportError
	return errors.As(err, &target)
}

// IsNotFound ... Checks if err is, or wraps, a NotFoundError.
func IsNotFound(err error) bool {
	var target *NotFoundError
	return errors.As(err, &target)
}

// IsOperation ... Checks if err is, or wraps, an OperationError.
func IsOperation(err error) bool {
	var target *OperationError
	return errors.As(err, &target)
}
