package script

import "errors"

var (
	// ErrStepTimeout is returned when a step runs past its deadline.
	ErrStepTimeout = errors.New("script: step timed out")

	// ErrCompile is returned when step code does not parse.
	ErrCompile = errors.New("script: syntax error")

	// ErrSessionClosed is returned by Exec after Close.
	ErrSessionClosed = errors.New("script: session closed")
)
