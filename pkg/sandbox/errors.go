package sandbox

import "errors"

var (
	// ErrInvalidTimeout is returned when the execution timeout is invalid
	ErrInvalidTimeout = errors.New("invalid timeout (must be > 0)")

	// ErrInvalidCallStack is returned when the call stack limit is invalid
	ErrInvalidCallStack = errors.New("invalid call stack limit (must be > 0)")

	// ErrUnknownModule is returned when the allow-list names a module with
	// no native implementation
	ErrUnknownModule = errors.New("unknown sandbox module")

	// ErrEmptyCode is returned when there is no code to run
	ErrEmptyCode = errors.New("code cannot be empty")
)
