package procs

import "errors"

var (
	// ErrEmptyCommand is returned when a command has no tokens.
	ErrEmptyCommand = errors.New("empty command")

	// ErrTooManyArgs is returned when a command exceeds the argument cap.
	ErrTooManyArgs = errors.New("too many arguments")

	// ErrExecFailed is returned when the executable cannot be resolved or the
	// child fails to replace its image.
	ErrExecFailed = errors.New("exec failed")

	// ErrResourceExhausted is returned when a pipe, descriptor or fork could
	// not be allocated.
	ErrResourceExhausted = errors.New("resource exhausted")

	// ErrClosed is returned by launches on a closed Supervisor.
	ErrClosed = errors.New("supervisor closed")
)
